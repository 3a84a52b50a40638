package cookie

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPolicy_Secure(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	cases := []struct {
		name  string
		tls   bool
		proto string
		def   bool
		want  bool
	}{
		{"tls", true, "", false, true},
		{"forwarded https", false, "https", false, true},
		{"forwarded list", false, "http, https", false, true},
		{"forwarded upper", false, "HTTPS", false, true},
		{"forwarded http", false, "http", true, false},
		{"absent header default secure", false, "", true, true},
		{"absent header default insecure", false, "", false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.tls {
				r.TLS = &tls.ConnectionState{}
			}
			if tc.proto != "" {
				r.Header.Set("X-Forwarded-Proto", tc.proto)
			}
			p.SecureDefault = tc.def
			if got := p.Secure(r); got != tc.want {
				t.Fatalf("Secure = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPolicy_SetWritesAllNames(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := now.Add(7 * 24 * time.Hour)

	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()

	DefaultPolicy().Set(rr, r, "tok.sig", exp, now)

	cookies := rr.Result().Cookies()
	if len(cookies) != 3 {
		t.Fatalf("expected 3 cookies, got %d", len(cookies))
	}
	for i, c := range cookies {
		if c.Name != writeOrder[i] {
			t.Fatalf("cookie %d name = %q, want %q", i, c.Name, writeOrder[i])
		}
		if c.Value != "tok.sig" {
			t.Fatalf("%s value = %q", c.Name, c.Value)
		}
		if c.Path != "/" || !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
			t.Fatalf("%s attributes wrong: %+v", c.Name, c)
		}
		if c.MaxAge != 604800 {
			t.Fatalf("%s max-age = %d", c.Name, c.MaxAge)
		}
	}

	for _, h := range rr.Result().Header.Values("Set-Cookie") {
		if !strings.Contains(h, "Max-Age=604800") || !strings.Contains(h, "SameSite=Lax") {
			t.Fatalf("unexpected header %q", h)
		}
	}
}

func TestPolicy_SetPlainHTTP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Forwarded-Proto", "http")
	rr := httptest.NewRecorder()

	now := time.Now()
	DefaultPolicy().Set(rr, r, "t", now.Add(time.Hour), now)

	for _, c := range rr.Result().Cookies() {
		if c.Secure {
			t.Fatalf("%s should not be Secure over plain http", c.Name)
		}
	}
}

func TestPolicy_Clear(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rr := httptest.NewRecorder()

	p := DefaultPolicy()
	p.Domain = "example.com"
	p.Clear(rr, r)

	headers := rr.Result().Header.Values("Set-Cookie")
	if len(headers) != 3 {
		t.Fatalf("expected 3 Set-Cookie headers, got %d", len(headers))
	}
	for i, h := range headers {
		if !strings.HasPrefix(h, writeOrder[i]+"=;") {
			t.Fatalf("header %d = %q", i, h)
		}
		for _, want := range []string{"Max-Age=0", "Path=/", "HttpOnly", "Secure", "SameSite=Lax", "Domain=example.com"} {
			if !strings.Contains(h, want) {
				t.Fatalf("header %q missing %q", h, want)
			}
		}
	}
}

func TestTokenFromRequest_Order(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cookies map[string]string
		auth    string
		want    string
		ok      bool
	}{
		{"none", nil, "", "", false},
		{"authToken wins", map[string]string{NameSession: "s", NameAuthToken: "a", NameSessionDotted: "d"}, "Bearer b", "a", true},
		{"underscore before dotted", map[string]string{NameSession: "s", NameSessionDotted: "d"}, "", "s", true},
		{"dotted only", map[string]string{NameSessionDotted: "d"}, "", "d", true},
		{"empty cookie skipped", map[string]string{NameAuthToken: " ", NameSessionDotted: "d"}, "", "d", true},
		{"bearer fallback", map[string]string{"other": "x"}, "Bearer b", "b", true},
		{"bearer case-insensitive", nil, "bearer  b2 ", "b2", true},
		{"basic ignored", nil, "Basic abc", "", false},
		{"bearer empty", nil, "Bearer ", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for name, v := range tc.cookies {
				r.AddCookie(&http.Cookie{Name: name, Value: v})
			}
			if tc.auth != "" {
				r.Header.Set("Authorization", tc.auth)
			}
			got, ok := TokenFromRequest(r)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("TokenFromRequest = %q, %v; want %q, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestNames_ReturnsCopy(t *testing.T) {
	t.Parallel()

	n := Names()
	n[0] = "mutated"
	if Names()[0] != NameSession {
		t.Fatal("Names exposes internal slice")
	}
}
