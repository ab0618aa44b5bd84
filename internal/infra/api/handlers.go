package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/infra/logging"
	"checkout-confirmation/internal/infra/metrics"
	red "checkout-confirmation/internal/infra/redis"
)

type errorResponse struct {
	Error    string `json:"error"`
	LoginURL string `json:"login_url,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// viewStatus maps a view onto an HTTP status. The body is always the full view.
func viewStatus(v model.ConfirmationView) int {
	switch v.State {
	case model.ViewSuccess:
		return http.StatusOK
	case model.ViewLoading:
		return http.StatusAccepted
	case model.ViewRecoverableError:
		if v.Action == model.ActionRetryLogin {
			return http.StatusUnauthorized
		}
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// requireAccount remembers where an anonymous user was going and sends them
// to the login page. API callers get a 401 instead of a redirect.
func (s *Server) requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := model.AccountFromContext(ctx); ok {
			next.ServeHTTP(w, r)
			return
		}

		target := r.URL.RequestURI()
		if isAPIPath(r.URL.Path) {
			target = s.opts.PlansPath
		}
		if err := s.guard.RememberResumeTarget(ctx, logging.ClientKey(ctx), target); err != nil {
			l := logging.With(ctx, s.log)
			l.Warn().Err(err).Str("target", target).Msg("could not remember resume target")
		}

		if isAPIPath(r.URL.Path) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required", LoginURL: s.opts.LoginPath})
			return
		}
		http.Redirect(w, r, s.opts.LoginPath, http.StatusFound)
	})
}

// allowed applies the per-client limit. A limiter outage never blocks checkout.
func (s *Server) allowed(ctx context.Context, clientKey, route string) bool {
	if s.limiter == nil || s.opts.RatePerHour <= 0 {
		return true
	}
	ok, err := s.limiter.Allow(ctx, red.ClientRouteKey(clientKey, route), s.opts.RatePerHour, time.Hour)
	if err != nil {
		l := logging.With(ctx, s.log)
		l.Warn().Err(err).Str("route", route).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimited(route)
	}
	return ok
}

// sessionParam returns nil when the redirect carried no session_id at all.
// Otherwise the whole query is handed to the validator, which resolves
// duplicated parameters itself.
func sessionParam(r *http.Request) *string {
	vals, ok := r.URL.Query()["session_id"]
	if !ok || len(vals) == 0 {
		return nil
	}
	raw := r.URL.RawQuery
	if strings.TrimSpace(vals[len(vals)-1]) == "" {
		raw = ""
	}
	return &raw
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	defer logging.TraceDuration(s.log, "Server.handleVerify")()
	start := time.Now()
	ctx := r.Context()
	clientKey := logging.ClientKey(ctx)

	if !s.allowed(ctx, clientKey, "verify") {
		writeError(w, http.StatusTooManyRequests, "too many verification attempts, please try again later")
		return
	}

	view := s.confirm.VerifyAndReconcile(ctx, clientKey, sessionParam(r))
	if view.Action == model.ActionRetryLogin {
		// The remote session is already ended; drop the local cookie too.
		s.auth.Clear(w)
		metrics.IncHandoff("stored")
	}
	metrics.ObserveConfirmation(string(model.PaymentMethodCard), string(view.State), time.Since(start))
	writeJSON(w, viewStatus(view), view)
}

func (s *Server) handleUPIStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	intentID := chi.URLParam(r, "intentID")

	view := s.confirm.PollUPIIntent(ctx, logging.ClientKey(ctx), intentID)
	metrics.ObserveConfirmation(string(model.PaymentMethodUPI), string(view.State), time.Since(start))
	if ctx.Err() != nil {
		// client went away
		return
	}
	writeJSON(w, viewStatus(view), view)
}

func (s *Server) handleStartCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req model.CheckoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start, err := s.confirm.StartCheckout(ctx, req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, start)
	case errors.Is(err, domain.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required", LoginURL: s.opts.LoginPath})
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidBillingCycle),
		errors.Is(err, domain.ErrInvalidPaymentMethod):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		l := logging.With(ctx, s.log)
		l.Error().Err(err).Str("plan_id", req.PlanID).Str("payment_method", string(req.PaymentMethod)).Msg("start checkout failed")
		writeError(w, http.StatusBadGateway, "could not start checkout, please try again")
	}
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.reconciler.Current(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "no subscription published yet")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleResume is the post-login landing route. The account service redirects
// here after a successful login. The stored handoff is only consumed once an
// account is present.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	defer logging.TraceDuration(s.log, "Server.handleResume")()
	ctx := r.Context()
	if _, ok := model.AccountFromContext(ctx); !ok {
		http.Redirect(w, r, s.opts.LoginPath, http.StatusFound)
		return
	}
	target, err := s.guard.ResumeAfterLogin(ctx, logging.ClientKey(ctx))
	if err != nil {
		l := logging.With(ctx, s.log)
		l.Error().Err(err).Msg("resume after login failed")
		writeError(w, http.StatusServiceUnavailable, "could not resume, please try again")
		return
	}
	if strings.HasPrefix(target, s.opts.VerifyPath) {
		metrics.IncHandoff("resumed")
	} else {
		metrics.IncHandoff("empty")
	}
	http.Redirect(w, r, target, http.StatusFound)
}
