// Package main provides a CI-friendly smoke test for a running sessiond.
//
// It validates:
//   - register issues a session
//   - the session resolves to the registered identity
//   - refresh keeps the token and does not shorten the expiry
//   - logout revokes the session
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"sessiond/cmd/internal/auth/client"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "sessiond base URL")
		email    = flag.String("email", "", "Account email (default: a fresh smoke-<ts>@example.com)")
		password = flag.String("password", "Smoke-Test-Password-1!", "Account password")
		bearer   = flag.Bool("bearer", false, "Send the token as a Bearer header instead of a cookie")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if *email == "" {
		*email = fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())
	}

	opts := []client.Option{client.WithHTTPClient(&http.Client{Timeout: *timeout})}
	if *bearer {
		opts = append(opts, client.WithBearer())
	}
	c, err := client.New(*baseURL, opts...)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()

	step(root, *timeout, "health", c.Health)

	var reg client.AuthResult
	step(root, *timeout, "register", func(ctx context.Context) error {
		reg, err = c.Register(ctx, *email, *password, "")
		return err
	})
	if *verbose {
		fmt.Printf("registered: user=%s expires_at=%s\n", reg.User.Email, reg.Session.ExpiresAt.Format(time.RFC3339))
	}

	step(root, *timeout, "user", func(ctx context.Context) error {
		u, err := c.CurrentUser(ctx)
		if err != nil {
			return err
		}
		if u.Email != reg.User.Email {
			return fmt.Errorf("email mismatch: got=%q want=%q", u.Email, reg.User.Email)
		}
		return nil
	})

	step(root, *timeout, "refresh", func(ctx context.Context) error {
		ref, err := c.Refresh(ctx)
		if err != nil {
			return err
		}
		if ref.Session.Token != reg.Session.Token {
			return errors.New("refresh changed the token")
		}
		if ref.Session.ExpiresAt.Before(reg.Session.ExpiresAt) {
			return fmt.Errorf("refresh shortened expiry: %s < %s", ref.Session.ExpiresAt, reg.Session.ExpiresAt)
		}
		return nil
	})

	step(root, *timeout, "logout", c.Logout)

	c.SetToken(reg.Session.Token)
	step(root, *timeout, "revoked", func(ctx context.Context) error {
		_, err := c.CurrentUser(ctx)
		if !errors.Is(err, client.ErrUnauthorized) {
			return fmt.Errorf("expected unauthorized after logout, got %v", err)
		}
		return nil
	})

	step(root, *timeout, "logout_all", func(ctx context.Context) error {
		if _, err := c.Login(ctx, *email, *password); err != nil {
			return err
		}
		n, err := c.LogoutAll(ctx)
		if err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("expected at least one revoked session, got %d", n)
		}
		return nil
	})

	fmt.Printf("OK: user=%s url=%s\n", reg.User.Email, *baseURL)
}

func step(parent context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		fatalf("%s: %v", name, err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
