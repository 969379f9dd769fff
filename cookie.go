package sessionguard

import (
	"encoding/base64"
	"net/http"
	"time"
)

// sameSiteFromString maps the config's string SameSite value onto
// net/http's enum, defaulting to Lax on anything unrecognized (spec §6's
// default).
func sameSiteFromString(mode string) http.SameSite {
	switch mode {
	case "Strict", "strict":
		return http.SameSiteStrictMode
	case "None", "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// EncodeCookie wraps a sealed envelope (crypto.Envelope.Encode's output)
// in a single base64url-encoded cookie, carrying the same attribute
// surface session_config.go's CookieSecure/CookieHttpOnly/
// CookieSameSite/CookieMaxAge fields expose (§6). expiresAt is the
// session's own expiry; the cookie's Max-Age is derived from it so a
// stale cookie never outlives its session.
func EncodeCookie(cfg *Config, envelope []byte, expiresAt time.Time) *http.Cookie {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	return &http.Cookie{
		Name:     cfg.SessionKey,
		Value:    base64.RawURLEncoding.EncodeToString(envelope),
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		HttpOnly: cfg.CookieHTTPOnly,
		SameSite: sameSiteFromString(cfg.CookieSameSite),
		MaxAge:   maxAge,
		Expires:  expiresAt,
	}
}

// DecodeCookie reverses EncodeCookie, returning the raw envelope bytes.
func DecodeCookie(cookie *http.Cookie) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(cookie.Value)
}

// ExpireCookie builds a cookie that instructs the browser to delete the
// session cookie immediately (Max-Age=-1, empty value), for responses
// that end or replace a session.
func ExpireCookie(cfg *Config) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.SessionKey,
		Value:    "",
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		HttpOnly: cfg.CookieHTTPOnly,
		SameSite: sameSiteFromString(cfg.CookieSameSite),
		MaxAge:   -1,
	}
}
