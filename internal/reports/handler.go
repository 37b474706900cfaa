package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/afco-erp/afco-erp/internal/ledger"
	"github.com/afco-erp/afco-erp/internal/platform/httpx"
	"github.com/afco-erp/afco-erp/internal/shared"
)

// Handler wires HTTP endpoints for reporting.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs reports handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.handleMovements)
	r.Get("/valuation", h.handleValuation)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing company or fiscal year scope")
		return
	}
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("shape") == "summary" {
		rows, err := h.service.MovementSummary(r.Context(), scope, filter)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"groups": rows})
		return
	}
	rows, err := h.service.MovementDetailed(r.Context(), scope, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": rows})
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing company or fiscal year scope")
		return
	}
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	report, err := h.service.Valuation(r.Context(), scope, filter)
	if err != nil {
		h.logger.Error("valuation report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func parseFilter(w http.ResponseWriter, r *http.Request) (MovementFilter, bool) {
	q := r.URL.Query()
	filter := MovementFilter{
		Kind:    ledger.Kind(q.Get("kind")),
		GroupBy: GroupBy(q.Get("group_by")),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown movement kind")
		return MovementFilter{}, false
	}
	if v := q.Get("product_id"); v != "" {
		filter.ProductID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("category_id"); v != "" {
		filter.CategoryID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("hscode_id"); v != "" {
		filter.HSCodeID, _ = strconv.ParseInt(v, 10, 64)
	}
	var err error
	if v := q.Get("from"); v != "" {
		if filter.From, err = time.Parse("2006-01-02", v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return MovementFilter{}, false
		}
	}
	if v := q.Get("to"); v != "" {
		if filter.To, err = time.Parse("2006-01-02", v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return MovementFilter{}, false
		}
	}
	return filter, true
}
