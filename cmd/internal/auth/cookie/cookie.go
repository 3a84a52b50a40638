// Package cookie owns the session cookie contract: the cookie names, the
// attribute policy applied whenever they are set or cleared, and token
// extraction from requests. The HTTP handlers and the Go client both use it.
package cookie

import (
	"net/http"
	"strings"
	"time"
)

// Session cookie names. Every issue, refresh and logout writes all three.
const (
	NameSession       = "better_auth_session"
	NameSessionDotted = "better-auth.session"
	NameAuthToken     = "authToken"
)

var (
	writeOrder  = []string{NameSession, NameSessionDotted, NameAuthToken}
	lookupOrder = []string{NameAuthToken, NameSession, NameSessionDotted}
)

// Names returns the cookie names in the order they are written.
func Names() []string {
	return append([]string(nil), writeOrder...)
}

// Policy is the attribute policy shared by every Set-Cookie for the session.
type Policy struct {
	Path     string
	Domain   string
	SameSite http.SameSite

	// SecureDefault applies when the request is plain HTTP with no
	// X-Forwarded-Proto header (typically behind a TLS-terminating proxy
	// that does not forward the scheme).
	SecureDefault bool
}

// DefaultPolicy returns Path=/, SameSite=Lax, secure unless the request is known to be plain HTTP.
func DefaultPolicy() Policy {
	return Policy{
		Path:          "/",
		SameSite:      http.SameSiteLaxMode,
		SecureDefault: true,
	}
}

// Secure reports whether cookies for r carry the Secure attribute.
func (p Policy) Secure(r *http.Request) bool {
	if r == nil {
		return p.SecureDefault
	}
	if r.TLS != nil {
		return true
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if strings.TrimSpace(proto) == "" {
		return p.SecureDefault
	}
	return strings.Contains(strings.ToLower(proto), "https")
}

// Set writes the session token to every cookie name with a lifetime ending at expiresAt.
func (p Policy) Set(w http.ResponseWriter, r *http.Request, token string, expiresAt, now time.Time) {
	maxAge := int(expiresAt.Sub(now) / time.Second)
	if maxAge <= 0 {
		// Max-Age=0 would delete the cookie; keep it for the final second.
		maxAge = 1
	}
	secure := p.Secure(r)

	for _, name := range writeOrder {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    token,
			Path:     p.path(),
			Domain:   p.Domain,
			Expires:  expiresAt.UTC(),
			MaxAge:   maxAge,
			HttpOnly: true,
			Secure:   secure,
			SameSite: p.SameSite,
		})
	}
}

// Clear expires every session cookie (Max-Age=0) with the same attributes used to set them.
func (p Policy) Clear(w http.ResponseWriter, r *http.Request) {
	secure := p.Secure(r)

	for _, name := range writeOrder {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     p.path(),
			Domain:   p.Domain,
			Expires:  time.Unix(0, 0).UTC(),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: p.SameSite,
		})
	}
}

func (p Policy) path() string {
	if p.Path == "" {
		return "/"
	}
	return p.Path
}

// TokenFromRequest returns the presented session token: the first non-empty
// cookie in lookup order (authToken, better_auth_session, better-auth.session),
// then an Authorization: Bearer header.
func TokenFromRequest(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	if tok, ok := FromCookies(r.Cookies()); ok {
		return tok, true
	}
	return BearerToken(r.Header.Get("Authorization"))
}

// FromCookies applies the cookie lookup order to an arbitrary cookie list.
func FromCookies(cookies []*http.Cookie) (string, bool) {
	for _, name := range lookupOrder {
		for _, c := range cookies {
			if c == nil || c.Name != name {
				continue
			}
			if v := strings.TrimSpace(c.Value); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", false
	}
	return tok, true
}
