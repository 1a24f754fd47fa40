package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"telegram-daily-spin/internal/pkg/token"
)

type ctxKey int

const userKey ctxKey = iota

var errNoToken = errors.New("missing bearer token")

// caller is the authenticated web app user.
type caller struct {
	ID       int64
	Username string
}

func callerFrom(ctx context.Context) caller {
	c, _ := ctx.Value(userKey).(caller)
	return c
}

// requestLogger logs every request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// authenticate requires a valid bearer token and stores the caller in the
// request context.
func authenticate(tokens *token.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errNoToken.Error()})
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				writeError(w, r, err)
				return
			}
			id, err := claims.UserID()
			if err != nil {
				writeError(w, r, token.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, caller{ID: id, Username: claims.Username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
