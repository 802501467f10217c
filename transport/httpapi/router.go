package httpapi

import (
	"context"
	"net/http"

	"github.com/MrEthical07/goRecover/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Options configures [NewRouter]. Zero values disable the optional parts.
type Options struct {
	AllowedOrigins []string
	// TrustProxy makes the client IP come from X-Forwarded-For.
	TrustProxy bool
	Logger     *zap.Logger
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
	// Ready backs GET /healthz; nil always reports ok.
	Ready func(ctx context.Context) error
}

// NewRouter builds the HTTP boundary in front of svc.
func NewRouter(svc Service, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.ClientIP(opts.TrustProxy))
	r.Use(middleware.AccessLog(opts.Logger))
	r.Use(chimiddleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	authH := NewAuthHandler(svc)

	r.Get("/healthz", healthz(opts.Ready))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authH.Signup)
		r.Post("/resend-code", authH.ResendCode)
		r.Post("/verify-email", authH.VerifyEmail)
		r.Post("/initiate-reset", authH.InitiateReset)
		r.Post("/verify-reset-code", authH.VerifyResetCode)
		r.Post("/complete-reset", authH.CompleteReset)
		r.Post("/login", authH.Login)
		r.Post("/logout", authH.Logout)
	})

	return r
}

func healthz(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, MessageEnvelope{Message: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
	}
}
