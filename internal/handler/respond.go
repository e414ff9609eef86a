package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/ticketkart/internal/domain/purchase"
	"github.com/xenking/ticketkart/internal/payu"
)

// writeJSON encodes v with the standard library encoder. Entities have
// struct-tagged views; errors and acks use the jx fast path below.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the uniform {code, message} error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeDomainError maps a domain error onto a transport status code. This is
// the single mapping point; handlers never pick status codes themselves.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		vErr  *purchase.ValidationError
		iqErr *purchase.InvalidQuantityError
	)

	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, purchase.ErrMissingFields),
		errors.Is(err, purchase.ErrTotalMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payu.ErrSignatureMismatch):
		writeError(w, http.StatusBadRequest, "payment verification failed")
	case errors.As(err, &iqErr):
		writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.Is(err, purchase.ErrEmptyItems),
		errors.Is(err, purchase.ErrZeroTotal):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, purchase.ErrNotFound):
		writeError(w, http.StatusNotFound, "purchase not found")
	case errors.Is(err, purchase.ErrAlreadyFinalized),
		errors.Is(err, purchase.ErrDeleteConfirmed),
		errors.Is(err, purchase.ErrNotPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payu.ErrMissingCredentials):
		// Configuration fault: checkout must hard-fail rather than emit an
		// unsigned payment request.
		writeError(w, http.StatusInternalServerError, "payment gateway is not configured")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
