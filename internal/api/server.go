// Package api serves the web app's JSON API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/model"
	"telegram-daily-spin/internal/pkg/token"
	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/session"
)

// Wheel is the session side the API drives.
type Wheel interface {
	Open(ctx context.Context, userID int64, username string) error
	State(ctx context.Context, userID int64, username string) (session.View, error)
	Spin(ctx context.Context, userID int64) (session.View, error)
	Claim(ctx context.Context, userID int64) (session.ClaimResult, error)
	Dismiss(ctx context.Context, userID int64) (session.ClaimResult, error)
	Balance(ctx context.Context, userID int64) (committed, displayed int64, err error)
	Records(ctx context.Context, userID int64, cat prize.Category) ([]ledger.InventoryRecord, error)
	Stats(ctx context.Context, userID int64) (ledger.Stats, error)
	Convert(ctx context.Context, userID int64, recordID string) (session.ConvertResult, error)
	Remove(ctx context.Context, userID int64, recordID string) error
	ClaimExternal(ctx context.Context, userID int64, username string, recordID string) (ledger.InventoryRecord, error)
}

// Settings is per-user key-value storage.
type Settings interface {
	Get(userID int64, key string) ([]byte, error)
	Set(userID int64, key string, value []byte) error
}

// History reads the balance audit trail.
type History interface {
	History(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error)
}

// HandlerDeps wires a Handler.
type HandlerDeps struct {
	Wheel          Wheel
	Settings       Settings
	History        History
	Catalog        *prize.Catalog
	Tokens         *token.Issuer
	BotToken       string
	InitDataMaxAge time.Duration
	Now            func() time.Time
	// Ping reports storage health for /healthz; nil skips the check.
	Ping           func(ctx context.Context) error
}

// Handler implements the API endpoints.
type Handler struct {
	wheel          Wheel
	settings       Settings
	history        History
	catalog        *prize.Catalog
	tokens         *token.Issuer
	botToken       string
	initDataMaxAge time.Duration
	now            func() time.Time
	ping           func(ctx context.Context) error
}

// NewHandler creates a handler.
func NewHandler(deps HandlerDeps) *Handler {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		wheel:          deps.Wheel,
		settings:       deps.Settings,
		history:        deps.History,
		catalog:        deps.Catalog,
		tokens:         deps.Tokens,
		botToken:       deps.BotToken,
		initDataMaxAge: deps.InitDataMaxAge,
		now:            now,
		ping:           deps.Ping,
	}
}

// Router builds the route tree.
func (h *Handler) Router(allowedOrigins []string) chi.Router {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           60 * 15,
	}))

	r.Get("/healthz", h.Health)
	r.Route("/api", func(api chi.Router) {
		api.Post("/auth", h.Auth)

		api.Group(func(rr chi.Router) {
			rr.Use(authenticate(h.tokens))

			rr.Get("/state", h.State)
			rr.Get("/balance", h.Balance)
			rr.Post("/spin", h.Spin)
			rr.Post("/claim", h.Claim)
			rr.Post("/dismiss", h.Dismiss)

			rr.Get("/records", h.Records)
			rr.Get("/records/stats", h.Stats)
			rr.Get("/history", h.History)
			rr.Post("/records/{id}/convert", h.Convert)
			rr.Post("/records/{id}/claim", h.ClaimExternal)
			rr.Delete("/records/{id}", h.Remove)

			rr.Get("/settings/{key}", h.GetSetting)
			rr.Put("/settings/{key}", h.PutSetting)
		})
	})

	return r
}

// NewServer wraps handler in an http.Server with the given timeouts.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}
