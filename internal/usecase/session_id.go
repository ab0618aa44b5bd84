package usecase

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/model"
)

const sessionIDParam = "session_id="

var sessionIDPattern = regexp.MustCompile(`^cs_(test|live)_[A-Za-z0-9_-]{24,}$`)

// ParseSessionID validates a checkout-session token as it arrives from a redirect.
//
// raw may be the bare token, "session_id=<token>", a whole query string or URL,
// or a redirect target that got nested into the query so the parameter appears
// more than once. The last session_id= occurrence wins, then the value is
// URL-decoded and trimmed before the grammar check. No I/O happens here; every
// failure wraps domain.ErrInvalidSessionID.
func ParseSessionID(raw string) (model.SessionID, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("%w: empty", domain.ErrInvalidSessionID)
	}

	// A nested redirect may itself be encoded, so decoding can reveal another
	// session_id= occurrence. Three rounds cover every real-world nesting seen.
	for i := 0; i < 3; i++ {
		if idx := strings.LastIndex(v, sessionIDParam); idx >= 0 {
			v = v[idx+len(sessionIDParam):]
			if cut := strings.IndexAny(v, "&#"); cut >= 0 {
				v = v[:cut]
			}
		}
		decoded, err := url.QueryUnescape(v)
		if err != nil {
			return "", fmt.Errorf("%w: undecodable", domain.ErrInvalidSessionID)
		}
		decoded = strings.TrimSpace(decoded)
		if decoded == v && !strings.Contains(decoded, sessionIDParam) {
			break
		}
		v = decoded
	}

	// A duplicated fragment can also be glued directly onto the token.
	if cut := strings.IndexAny(v, "?&#"); cut >= 0 {
		v = v[:cut]
	}

	if !sessionIDPattern.MatchString(v) {
		return "", fmt.Errorf("%w: malformed token", domain.ErrInvalidSessionID)
	}
	return model.SessionID(v), nil
}
