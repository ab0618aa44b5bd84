package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"checkout-confirmation/internal/usecase"
)

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Options struct {
	ClientCookie   string
	CookieSecure   bool
	LoginPath      string
	VerifyPath     string
	PlansPath      string
	RatePerHour    int           // verify attempts per client key, 0 disables
	RequestTimeout time.Duration // short routes only; must exceed the verify budget
}

// Server exposes the confirmation workflow to the browser.
type Server struct {
	confirm    usecase.ConfirmationUseCase
	guard      usecase.GuardUseCase
	reconciler usecase.ReconcileUseCase
	auth       *AuthManager
	limiter    RateLimiter
	opts       Options
	log        *zerolog.Logger
}

func NewServer(
	confirm usecase.ConfirmationUseCase,
	guard usecase.GuardUseCase,
	reconciler usecase.ReconcileUseCase,
	auth *AuthManager,
	limiter RateLimiter,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.ClientCookie == "" {
		opts.ClientCookie = "checkout_client"
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.VerifyPath == "" {
		opts.VerifyPath = "/checkout/success"
	}
	if opts.PlansPath == "" {
		opts.PlansPath = "/plans"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = usecase.DefaultRetryPolicy().Budget() + 5*time.Second
	}
	sl := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		confirm:    confirm,
		guard:      guard,
		reconciler: reconciler,
		auth:       auth,
		limiter:    limiter,
		opts:       opts,
		log:        &sl,
	}
}

// Router builds the chi router with the middleware stack applied.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(
		TraceID(s.log),
		RequestLog(s.log),
		Recover(s.log),
		ClientKey(s.opts.ClientCookie, s.opts.CookieSecure),
		s.auth.Authenticate(),
	)
	s.Register(r)
	return r
}

// Register attaches handlers to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	short := Timeout(s.opts.RequestTimeout)

	r.Get("/auth/resume", s.handleResume)
	r.With(s.requireAccount, short).Get(s.opts.VerifyPath, s.handleVerify)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAccount)
		r.With(short).Post("/checkout", s.handleStartCheckout)
		r.With(short).Get("/subscription", s.handleSubscription)
		r.Get("/upi/{intentID}/status", s.handleUPIStatus)
	})
}

func isAPIPath(p string) bool { return strings.HasPrefix(p, "/api/") }
