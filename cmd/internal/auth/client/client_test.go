package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sessiond/cmd/identity"
	authapi "sessiond/cmd/internal/auth/api"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/security/token"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	key := []byte("client-test-key-client-test-key!")
	codec, err := session.NewHMACCodec(key)
	require.NoError(t, err)
	svc, err := session.NewService(session.DefaultConfig(), session.NewMemoryStore(), codec, token.NewHasher(key))
	require.NoError(t, err)

	cfg := authapi.DefaultConfig()
	cfg.LoginRate = 0
	h, err := authapi.NewHandler(nil, cfg, svc, identity.NewMemoryStore())
	require.NoError(t, err)

	r := chi.NewRouter()
	h.Register(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_SessionLifecycle(t *testing.T) {
	for name, opts := range map[string][]Option{
		"cookie": nil,
		"bearer": {WithBearer()},
	} {
		t.Run(name, func(t *testing.T) {
			ts := newTestServer(t)
			c, err := New(ts.URL+"/", append(opts, WithHTTPClient(ts.Client()))...)
			require.NoError(t, err)
			ctx := context.Background()

			require.NoError(t, c.Health(ctx))

			_, err = c.CurrentUser(ctx)
			require.ErrorIs(t, err, ErrUnauthorized)

			res, err := c.Register(ctx, "coach@team.gg", "pw", "Academy")
			require.NoError(t, err)
			assert.NotEmpty(t, res.OrganizationID)
			assert.Equal(t, "coach", res.User.Name)

			tok, ok := c.Token()
			require.True(t, ok)
			assert.Equal(t, res.Session.Token, tok)
			assert.True(t, strings.HasPrefix(tok, "Y29hY2hAdGVhbS5nZ"), "token should embed the email: %s", tok)

			u, err := c.CurrentUser(ctx)
			require.NoError(t, err)
			assert.Equal(t, "coach@team.gg", u.Email)
			assert.Equal(t, res.OrganizationID, u.OrganizationID)

			ref, err := c.Refresh(ctx)
			require.NoError(t, err)
			assert.Equal(t, tok, ref.Session.Token)
			assert.True(t, ref.Session.ExpiresAt.After(res.Session.ExpiresAt))

			require.NoError(t, c.Logout(ctx))
			_, ok = c.Token()
			assert.False(t, ok)

			// The revoked token stays unusable even if replayed.
			c.SetToken(tok)
			_, err = c.CurrentUser(ctx)
			require.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestClient_LogoutAll(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	laptop, err := New(ts.URL, WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	phone, err := New(ts.URL, WithHTTPClient(ts.Client()), WithBearer())
	require.NoError(t, err)

	_, err = laptop.Login(ctx, "coach@team.gg", "pw")
	require.NoError(t, err)
	_, err = phone.Login(ctx, "Coach@Team.gg", "pw")
	require.NoError(t, err)

	n, err := phone.LogoutAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, ok := phone.Token()
	assert.False(t, ok)

	_, err = laptop.CurrentUser(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = phone.LogoutAll(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_APIErrors(t *testing.T) {
	ts := newTestServer(t)
	c, err := New(ts.URL, WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "a@b.com", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Missing email or password", apiErr.Message)
	assert.False(t, errors.Is(err, ErrUnauthorized))

	_, err = c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "://bad"} {
		_, err := New(raw)
		assert.Error(t, err, raw)
	}
}
