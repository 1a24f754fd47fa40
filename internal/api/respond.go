package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"telegram-daily-spin/internal/kv"
	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/pkg/lock"
	"telegram-daily-spin/internal/pkg/token"
	"telegram-daily-spin/internal/session"
	"telegram-daily-spin/internal/spin"
)

const maxBodySize = 16 << 10

var errEmptyBody = errors.New("empty request body")

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error  string `json:"error"`
	Notice string `json:"notice,omitempty"`
}

func decode[T any](r *http.Request) (T, error) {
	var payload T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return payload, errEmptyBody
		}
		return payload, err
	}
	return payload, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, spin.ErrSpinInFlight),
		errors.Is(err, spin.ErrNothingRevealed),
		errors.Is(err, session.ErrClaimPending):
		return http.StatusConflict
	case errors.Is(err, session.ErrRecordNotFound), errors.Is(err, kv.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClaimRejected):
		return http.StatusBadGateway
	case errors.Is(err, kv.ErrBadKey), errors.Is(err, ledger.ErrNegativeAmount):
		return http.StatusBadRequest
	case errors.Is(err, kv.ErrValueTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrInitDataSignature),
		errors.Is(err, token.ErrInitDataExpired),
		errors.Is(err, token.ErrInitDataMalformed):
		return http.StatusUnauthorized
	case errors.Is(err, spin.ErrNoSlots),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, lock.ErrLockTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	switch status {
	case http.StatusInternalServerError:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		resp.Error = "internal error"
	case http.StatusBadGateway:
		resp.Notice = "The claim could not be delivered. Your item is still in your bag."
	case http.StatusServiceUnavailable:
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Request not served")
	}
	writeJSON(w, status, resp)
}
