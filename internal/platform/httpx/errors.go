package httpx

import (
	"errors"
	"net/http"

	"github.com/afco-erp/afco-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Scope mismatches deliberately answer 404 so one tenant cannot probe
// another tenant's record IDs.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrScopeMismatch):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrDateOutsideFiscalYear):
		Problem(w, http.StatusBadRequest, "Validation Failed", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrRecomputeTooLarge):
		Problem(w, http.StatusUnprocessableEntity, "Recompute Too Large", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrHasDependents):
		Problem(w, http.StatusConflict, "Conflict", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrStorageConflict):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Conflict", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
