package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/chapterhouse/chapterhouse/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var muted *shared.MutedError
	var limited *shared.RateLimitedError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.As(err, &muted):
		Problem(w, http.StatusForbidden, "Muted", muted.Error())
	case errors.Is(err, shared.ErrBanned), errors.Is(err, shared.ErrNotOwner), errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(int(limited.RetryAfter(time.Now())/time.Second)))
		Problem(w, http.StatusTooManyRequests, "Rate Limited", limited.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
