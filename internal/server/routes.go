package server

import (
	"log/slog"
	"net/http"

	"github.com/maauso/clearmedia-api/internal/identity"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// AllowedHeaders are extra request headers browsers may send.
	AllowedHeaders []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// Every route except the health check, the payment webhook and file
// downloads requires an identity from resolver. Progress polling is throttled per user when
// limiter is non-nil.
func NewRouter(h *Handlers, resolver identity.Resolver, limiter *RateLimiter, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()
	auth := AuthMiddleware(resolver)
	authed := func(fn http.HandlerFunc) http.Handler {
		return auth(fn)
	}

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /payments/webhook", h.PaymentWebhook)
	mux.HandleFunc("GET /files/{key...}", h.DownloadFile)

	mux.Handle("POST /jobs", authed(h.CreateJob))
	mux.Handle("GET /jobs", authed(h.ListJobs))

	var progress http.Handler = http.HandlerFunc(h.JobProgress)
	if limiter != nil {
		progress = limiter.Middleware(progress)
	}
	mux.Handle("GET /jobs/{id}/progress", auth(progress))

	mux.Handle("GET /credits", authed(h.Credits))
	mux.Handle("POST /payments/checkout", authed(h.CreateCheckout))
	mux.Handle("POST /uploads/presign", authed(h.PresignUpload))
	mux.Handle("POST /uploads", authed(h.Upload))

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins, cfg.AllowedHeaders...),
	)

	return chain(mux)
}
