package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/afco-erp/afco-erp/internal/platform/httpx"
	"github.com/afco-erp/afco-erp/internal/shared"
)

// writeRetries bounds how often a handler replays a request that lost a
// storage conflict before surfacing 409 to the client.
const writeRetries = 3

// Handler wires HTTP endpoints for the movement ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handleRecord)
	r.Get("/movements/{id}", h.handleGet)
	r.Delete("/movements/{id}", h.handleDelete)
	r.Get("/products/{id}/movements", h.handleList)
	r.Post("/products/{id}/recompute", h.handleRecompute)
}

type recordRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Kind      string          `json:"kind" validate:"required"`
	Date      string          `json:"date" validate:"required"`
	SourceRef string          `json:"source_ref"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	GSTRate   decimal.Decimal `json:"gst_rate"`
	PartyID   int64           `json:"party_id"`
}

type movementResponse struct {
	ID             int64  `json:"id"`
	ProductID      int64  `json:"product_id"`
	Kind           string `json:"kind"`
	Date           string `json:"date"`
	SourceRef      string `json:"source_ref,omitempty"`
	PartyID        int64  `json:"party_id,omitempty"`
	DocumentID     int64  `json:"document_id,omitempty"`
	DocumentLineID int64  `json:"document_line_id,omitempty"`

	QtyIn        decimal.Decimal  `json:"qty_in"`
	QtyOut       decimal.Decimal  `json:"qty_out"`
	TargetQty    *decimal.Decimal `json:"target_qty,omitempty"`
	UnitPrice    decimal.Decimal  `json:"unit_price"`
	GSTRate      decimal.Decimal  `json:"gst_rate"`
	UnitCost     decimal.Decimal  `json:"unit_cost"`
	AvgCost      decimal.Decimal  `json:"avg_cost"`
	ValueIn      decimal.Decimal  `json:"value_in"`
	ValueOut     decimal.Decimal  `json:"value_out"`
	BalanceQty   decimal.Decimal  `json:"balance_qty"`
	BalanceValue decimal.Decimal  `json:"balance_value"`
	GSTIn        decimal.Decimal  `json:"gst_in"`
	GSTOut       decimal.Decimal  `json:"gst_out"`

	CreatedAt time.Time `json:"created_at"`
}

func toMovementResponse(m Movement) movementResponse {
	resp := movementResponse{
		ID:             m.ID,
		ProductID:      m.ProductID,
		Kind:           string(m.Kind),
		Date:           m.Date.Format("2006-01-02"),
		SourceRef:      m.SourceRef,
		PartyID:        m.PartyID,
		DocumentID:     m.DocumentID,
		DocumentLineID: m.DocumentLineID,
		QtyIn:          m.QtyIn,
		QtyOut:         m.QtyOut,
		UnitPrice:      m.UnitPrice,
		GSTRate:        m.GSTRate,
		UnitCost:       m.UnitCost,
		AvgCost:        m.AvgCost,
		ValueIn:        m.ValueIn,
		ValueOut:       m.ValueOut,
		BalanceQty:     m.BalanceQty,
		BalanceValue:   m.BalanceValue,
		GSTIn:          m.GSTIn,
		GSTOut:         m.GSTOut,
		CreatedAt:      m.CreatedAt,
	}
	if m.TargetQty.Valid {
		target := m.TargetQty.Decimal
		resp.TargetQty = &target
	}
	return resp
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing company or fiscal year scope")
		return
	}
	var req recordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}

	input := RecordInput{
		ProductID: req.ProductID,
		Kind:      Kind(req.Kind),
		Date:      date,
		SourceRef: req.SourceRef,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		GSTRate:   req.GSTRate,
		PartyID:   req.PartyID,
	}

	var movement Movement
	err = h.retryConflict(func() error {
		var recordErr error
		movement, recordErr = h.service.RecordMovement(r.Context(), scope, input)
		return recordErr
	})
	if err != nil {
		h.logger.Error("record movement",
			slog.Int64("product_id", req.ProductID),
			slog.String("kind", req.Kind),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("movement recorded",
		slog.Int64("movement_id", movement.ID),
		slog.Int64("product_id", movement.ProductID),
		slog.String("kind", string(movement.Kind)))
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing company or fiscal year scope")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid movement id")
		return
	}
	movement, err := h.service.GetMovement(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMovementResponse(movement))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing company or fiscal year scope")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid movement id")
		return
	}
	err = h.retryConflict(func() error {
		return h.service.DeleteMovement(r.Context(), scope, id)
	})
	if err != nil {
		h.logger.Error("delete movement", slog.Int64("movement_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("movement deleted", slog.Int64("movement_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing company or fiscal year scope")
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	q := r.URL.Query()
	var from, to time.Time
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	movements, err := h.service.ListByProduct(r.Context(), scope, productID, from, to, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

type recomputeRequest struct {
	From string `json:"from"`
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing company or fiscal year scope")
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	// Body is optional; an absent or empty body recomputes the full history.
	var req recomputeRequest
	_ = httpx.DecodeJSON(r, &req)
	fromDate := time.Time{}
	if req.From != "" {
		if fromDate, err = time.Parse("2006-01-02", req.From); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
	}

	var updated int
	err = h.retryConflict(func() error {
		var recomputeErr error
		updated, recomputeErr = h.service.RecomputeFrom(r.Context(), scope, productID, fromDate)
		return recomputeErr
	})
	if err != nil {
		h.logger.Error("recompute", slog.Int64("product_id", productID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("recompute done", slog.Int64("product_id", productID), slog.Int("updated", updated))
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// retryConflict replays fn while it keeps losing to a concurrent writer.
func (h *Handler) retryConflict(fn func() error) error {
	var err error
	for attempt := 0; attempt < writeRetries; attempt++ {
		err = fn()
		if !errors.Is(err, shared.ErrStorageConflict) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}
