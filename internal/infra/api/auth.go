package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/infra/logging"

	"github.com/golang-jwt/jwt/v5"
)

// ===== Session/JWT primitives =====

type AuthConfig struct {
	HMACSecret   []byte
	CookieName   string
	SecureCookie bool
	TTL          time.Duration
}

// AuthManager reads the account session issued by the account service. Login
// happens elsewhere; this service only parses the token and drops it on a
// forced logout.
type AuthManager struct{ cfg AuthConfig }

func NewAuthManager(secret, cookieName string, secure bool, ttl time.Duration) *AuthManager {
	if cookieName == "" {
		cookieName = "session"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthManager{cfg: AuthConfig{
		HMACSecret:   []byte(secret),
		CookieName:   cookieName,
		SecureCookie: secure,
		TTL:          ttl,
	}}
}

type AccountClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Mint issues a session for acct and sets it as a cookie. Used by local tooling
// and tests; production sessions come from the account service.
func (a *AuthManager) Mint(w http.ResponseWriter, acct model.Account) (string, error) {
	now := time.Now()
	claims := AccountClaims{
		Email: acct.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TTL)),
			Subject:   acct.ID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.cfg.HMACSecret)
	if err != nil {
		return "", err
	}

	if w != nil {
		http.SetCookie(w, &http.Cookie{
			Name:     a.cfg.CookieName,
			Value:    signed,
			Path:     "/",
			MaxAge:   int(a.cfg.TTL.Seconds()),
			HttpOnly: true,
			Secure:   a.cfg.SecureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return signed, nil
}

// Clear drops the session cookie. The remote session is ended separately
// through the account service.
func (a *AuthManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (model.Account, error) {
	// Authorization: Bearer <jwt>
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
	}
	// Cookie
	if c, err := r.Cookie(a.cfg.CookieName); err == nil && c.Value != "" {
		return a.parse(c.Value)
	}
	return model.Account{}, errors.New("missing token")
}

func (a *AuthManager) parse(tok string) (model.Account, error) {
	claims := &AccountClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.cfg.HMACSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return model.Account{}, errors.New("invalid token")
	}
	return model.Account{ID: claims.Subject, Email: claims.Email, AccessToken: tok}, nil
}

// Authenticate attaches the account to the request context when a valid
// session is present. Anonymous requests pass through; routes that need an
// account wrap themselves with Server.requireAccount.
func (a *AuthManager) Authenticate() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct, err := a.ParseFromRequest(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := model.ContextWithAccount(r.Context(), acct)
			ctx = logging.WithAccountID(ctx, acct.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
