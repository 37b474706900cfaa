package stockdocs

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/afco-erp/afco-erp/internal/ledger"
	"github.com/afco-erp/afco-erp/internal/platform/httpx"
	"github.com/afco-erp/afco-erp/internal/shared"
)

// Handler wires HTTP endpoints for stock documents.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
}

// NewHandler constructs stockdocs handler. The idempotency store may be nil;
// finalize requests then skip duplicate-submit protection.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency}
}

// MountRoutes registers stockdocs routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleFinalize)
		r.Get("/{id}", h.handleGet)
		r.Delete("/{id}", h.handleDelete)
	})
}

type finalizeRequest struct {
	FinalizeInput
	Date string `json:"date"`
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing company or fiscal year scope")
		return
	}
	var req finalizeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	input := req.FinalizeInput
	input.Date = date

	// Retried submits with the same Idempotency-Key must not finalize twice.
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "stockdocs"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", "request already processed")
				return
			}
			httpx.RespondError(w, err)
			return
		}
	}

	inv, err := h.service.FinalizeDocument(r.Context(), scope, input)
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			// Free the key so the client can retry after fixing the request.
			_ = h.idempotency.Delete(r.Context(), idemKey)
		}
		h.logger.Error("finalize document", slog.String("kind", string(input.Kind)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("document finalized",
		slog.Int64("invoice_id", inv.ID),
		slog.String("number", inv.Number),
		slog.Int("lines", len(inv.Lines)))
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing company or fiscal year scope")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	inv, err := h.service.GetDocument(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing company or fiscal year scope")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	if err := h.service.DeleteDocument(r.Context(), scope, id); err != nil {
		h.logger.Error("delete document", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("document deleted", slog.Int64("invoice_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing company or fiscal year scope")
		return
	}
	q := r.URL.Query()
	filter := ListFilter{Kind: ledger.Kind(q.Get("kind"))}
	if filter.Kind != "" && !filter.Kind.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown document kind")
		return
	}
	if v := q.Get("party_id"); v != "" {
		filter.PartyID, _ = strconv.ParseInt(v, 10, 64)
	}
	var err error
	if v := q.Get("from"); v != "" {
		if filter.From, err = time.Parse("2006-01-02", v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if filter.To, err = time.Parse("2006-01-02", v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	invoices, total, err := h.service.ListDocuments(r.Context(), scope, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices":   invoices,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}
