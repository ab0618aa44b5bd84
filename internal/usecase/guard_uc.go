package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/domain/ports/adapter"
	"checkout-confirmation/internal/domain/ports/repository"
	"checkout-confirmation/internal/infra/logging"
)

// Compile-time check
var _ GuardUseCase = (*guardUC)(nil)

// MismatchReason is shown on the login page after a forced logout.
const MismatchReason = "Please log in with the account used at checkout."

// GuardUseCase is the only place where authentication state and payment state
// interact.
type GuardUseCase interface {
	// OnMismatch persists a pending handoff for sessionID, logs the current
	// account out and returns the login URL to redirect to.
	OnMismatch(ctx context.Context, clientKey string, sessionID model.SessionID) (string, error)
	// ResumeAfterLogin consumes the pending handoff (read-once) and returns the
	// post-login destination.
	ResumeAfterLogin(ctx context.Context, clientKey string) (string, error)
	// RememberResumeTarget stores the generic "go here after login" path.
	RememberResumeTarget(ctx context.Context, clientKey, path string) error
}

type GuardConfig struct {
	LoginPath   string
	VerifyPath  string
	DefaultPath string
	HandoffTTL  time.Duration
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		LoginPath:   "/login",
		VerifyPath:  "/checkout/success",
		DefaultPath: "/dashboard",
		HandoffTTL:  7 * 24 * time.Hour,
	}
}

func HandoffKey(clientKey string) string      { return "checkout_handoff:" + clientKey }
func ResumeTargetKey(clientKey string) string { return "resume_after_login:" + clientKey }

type guardUC struct {
	store   repository.ClientStateStore
	account adapter.AccountService
	cfg     GuardConfig
	clock   Clock
	log     *zerolog.Logger
}

func NewGuardUseCase(store repository.ClientStateStore, account adapter.AccountService, cfg GuardConfig, clock Clock, logger *zerolog.Logger) *guardUC {
	def := DefaultGuardConfig()
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}
	if cfg.VerifyPath == "" {
		cfg.VerifyPath = def.VerifyPath
	}
	if cfg.DefaultPath == "" {
		cfg.DefaultPath = def.DefaultPath
	}
	if cfg.HandoffTTL <= 0 {
		cfg.HandoffTTL = def.HandoffTTL
	}
	if clock == nil {
		clock = RealClock()
	}
	return &guardUC{store: store, account: account, cfg: cfg, clock: clock, log: logger}
}

func (uc *guardUC) OnMismatch(ctx context.Context, clientKey string, sessionID model.SessionID) (string, error) {
	defer logging.TraceDuration(uc.log, "GuardUC.OnMismatch")()
	if clientKey == "" {
		return "", fmt.Errorf("%w: client key required", domain.ErrInvalidArgument)
	}
	h := model.PendingHandoff{SessionID: sessionID, CreatedAt: uc.clock.Now().UTC()}
	b, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	// Last write wins: a newer mismatch replaces any unconsumed handoff.
	if err := uc.store.Set(ctx, HandoffKey(clientKey), string(b), uc.cfg.HandoffTTL); err != nil {
		return "", fmt.Errorf("persist checkout handoff: %w", err)
	}

	if err := uc.account.Logout(ctx); err != nil {
		// The session cookie is dropped by the HTTP layer regardless.
		uc.log.Warn().Err(err).Str("session_id", logging.RedactID(sessionID.String())).Msg("forced logout failed")
	}
	uc.log.Info().Str("session_id", logging.RedactID(sessionID.String())).Msg("checkout handoff stored; re-authentication required")

	q := url.Values{}
	q.Set("reason", MismatchReason)
	return uc.cfg.LoginPath + "?" + q.Encode(), nil
}

func (uc *guardUC) ResumeAfterLogin(ctx context.Context, clientKey string) (string, error) {
	defer logging.TraceDuration(uc.log, "GuardUC.ResumeAfterLogin")()
	if clientKey == "" {
		return uc.cfg.DefaultPath, nil
	}

	raw, err := uc.store.TakeAndClear(ctx, HandoffKey(clientKey))
	switch {
	case err == nil:
		var h model.PendingHandoff
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			uc.log.Warn().Err(err).Msg("discarding unreadable checkout handoff")
			break
		}
		id, err := ParseSessionID(h.SessionID.String())
		if err != nil {
			uc.log.Warn().Err(err).Msg("discarding checkout handoff with invalid session id")
			break
		}
		// The generic target is superseded by the owed verification.
		_ = uc.store.Delete(ctx, ResumeTargetKey(clientKey))
		q := url.Values{}
		q.Set("session_id", id.String())
		return uc.cfg.VerifyPath + "?" + q.Encode(), nil
	case errors.Is(err, domain.ErrNotFound):
	default:
		return "", fmt.Errorf("take checkout handoff: %w", err)
	}

	target, err := uc.store.TakeAndClear(ctx, ResumeTargetKey(clientKey))
	switch {
	case err == nil && isLocalPath(target):
		return target, nil
	case err == nil, errors.Is(err, domain.ErrNotFound):
		return uc.cfg.DefaultPath, nil
	default:
		return "", fmt.Errorf("take resume target: %w", err)
	}
}

func (uc *guardUC) RememberResumeTarget(ctx context.Context, clientKey, path string) error {
	if clientKey == "" || !isLocalPath(path) {
		return fmt.Errorf("%w: resume target", domain.ErrInvalidArgument)
	}
	return uc.store.Set(ctx, ResumeTargetKey(clientKey), path, uc.cfg.HandoffTTL)
}

// isLocalPath rejects absolute and protocol-relative URLs so a stored target can
// never turn into an open redirect.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, `\`)
}
