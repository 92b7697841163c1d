package httpx

import (
	"errors"
	"net/http"

	"github.com/keystone-iam/keystone/internal/shared"
)

// RespondError maps domain errors to HTTP statuses inside the envelope.
// Unclassified errors never leak details to the caller.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrDuplicateKey):
		Fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, shared.ErrPolicyViolation):
		Fail(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, shared.ErrValidation):
		Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Fail(w, http.StatusUnauthorized, err.Error())
	default:
		Fail(w, http.StatusInternalServerError, "internal error")
	}
}
