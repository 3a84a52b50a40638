package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/cookie"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/security/password"

	"github.com/go-chi/chi/v5"
)

// Handler serves the /api/auth endpoints.
type Handler struct {
	log       *slog.Logger
	cfg       Config
	sessions  *session.Service
	accounts  identity.Store
	passwords password.Config
	dummyHash string
	cookies   cookie.Policy
	limiter   *ipLimiter

	audit      AuditDB
	auditTable string

	now func() time.Time
}

// HandlerOption configures optional Handler dependencies.
type HandlerOption func(*Handler)

// WithPasswordConfig overrides the Argon2id parameters and password policy.
func WithPasswordConfig(cfg password.Config) HandlerOption {
	return func(h *Handler) {
		h.passwords = cfg
	}
}

// WithAudit persists auth events to <schema>.audit_log through db.
func WithAudit(db AuditDB, schema string) HandlerOption {
	return func(h *Handler) {
		if db == nil {
			return
		}
		if strings.TrimSpace(schema) == "" {
			schema = "sessiond"
		}
		h.audit = db
		h.auditTable = auditTable(schema)
	}
}

// WithClock overrides the time source used for throttling and audit rows.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs the auth API handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, accounts identity.Store, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("authapi: session service is required")
	}
	if accounts == nil {
		return nil, errors.New("authapi: identity store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.PasswordMode == "" {
		cfg.PasswordMode = PasswordAccept
	}

	h := &Handler{
		log:       log,
		cfg:       cfg,
		sessions:  sessions,
		accounts:  accounts,
		passwords: password.DefaultConfig(),
		cookies:   cfg.CookiePolicy(),
		limiter:   newIPLimiter(cfg.loginLimit(), cfg.LoginBurst, cfg.LimiterIdle),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	if h.cfg.PasswordMode == PasswordVerify {
		h.dummyHash = h.passwords.DummyHash()
		if h.dummyHash == "" {
			return nil, errors.New("authapi: dummy hash generation failed")
		}
	}
	return h, nil
}

// Register mounts the auth routes. Every route accepts all methods and
// answers 405 itself so clients always get a JSON body.
func (h *Handler) Register(r chi.Router) {
	r.HandleFunc("/api/auth/login", h.handleLogin)
	r.HandleFunc("/api/auth/register", h.handleRegister)
	r.HandleFunc("/api/auth/logout", h.handleLogout)
	r.HandleFunc("/api/auth/logout_all", h.handleLogoutAll)
	r.HandleFunc("/api/auth/session/refresh", h.handleRefresh)
	r.HandleFunc("/api/auth/user", h.handleUser)
	r.HandleFunc("/api/auth/me", h.handleUser)
	r.HandleFunc("/api/auth/health", h.handleHealth)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	req, ok := h.readCredentials(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())
	email := identity.NormalizeEmail(req.Email)

	if h.cfg.PasswordMode == PasswordVerify {
		acct, err := h.accounts.GetAccount(ctx, email)
		if err != nil && !identity.IsNotFound(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if !h.checkPassword(ctx, acct, err == nil, req.Password) {
			h.auditLoginFailed(ctx, email, ip, ua, "invalid_credentials")
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
	}

	sess, ok := h.issue(w, r, req.Email, ip, ua)
	if !ok {
		return
	}
	h.auditSession(ctx, auditLoginSuccess, sess.Identity.ID, sess.ID, ip, ua, nil)
	writeJSON(w, http.StatusOK, toAuthResponse(sess, ""))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	req, ok := h.readCredentials(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())
	email := identity.NormalizeEmail(req.Email)

	created, status, msg := h.ensureAccount(ctx, email, req.Password)
	if status != 0 {
		if status == http.StatusUnauthorized {
			h.auditLoginFailed(ctx, email, ip, ua, "register_existing_bad_password")
		}
		writeError(w, status, msg)
		return
	}

	var orgID string
	if name := identity.NormalizeOrgName(req.OrgName); name != "" {
		org, err := h.accounts.CreateOrganization(ctx, identity.CreateOrganizationInput{
			Name:    name,
			OwnerID: email,
			Now:     h.now().UTC(),
		})
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusBadRequest, "Organization already exists")
			return
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "Invalid organization name")
			return
		case err != nil:
			h.log.Error("auth.register.create_org.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		orgID = org.ID
	}

	sess, ok := h.issue(w, r, req.Email, ip, ua)
	if !ok {
		return
	}

	meta := map[string]any{"created": created}
	if orgID != "" {
		meta["organization_id"] = orgID
	}
	h.auditSession(ctx, auditRegister, sess.Identity.ID, sess.ID, ip, ua, meta)
	writeJSON(w, http.StatusOK, toAuthResponse(sess, orgID))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	if raw, ok := cookie.TokenFromRequest(r); ok {
		err := h.sessions.Revoke(r.Context(), raw)
		switch {
		case err == nil:
			h.auditSession(r.Context(), auditLogout, "", "", clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()), nil)
		case session.IsUnauthorized(err):
		default:
			h.log.Error("auth.logout.revoke.fail", "err", err)
		}
	}

	h.cookies.Clear(w, r)
	writeJSON(w, http.StatusOK, logoutResponse{
		Success: true,
		Message: "Logged out successfully",
	})
}

// handleLogoutAll revokes every session of the caller's account, including
// the one presented, and clears the cookies.
func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	raw, ok := cookie.TokenFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx := r.Context()
	sess, err := h.sessions.Validate(ctx, raw)
	if err != nil {
		h.writeSessionError(w, "auth.logout_all.validate.fail", err)
		return
	}

	n, err := h.sessions.RevokeAll(ctx, sess.Identity.Email)
	if err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.auditSession(ctx, auditLogoutAll, sess.Identity.ID, sess.ID,
		clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()), map[string]any{"revoked": n})
	h.cookies.Clear(w, r)
	writeJSON(w, http.StatusOK, logoutAllResponse{
		Success: true,
		Revoked: n,
		Message: "Logged out of all sessions",
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	raw, ok := cookie.TokenFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sess, err := h.sessions.Refresh(r.Context(), raw)
	if err != nil {
		h.writeSessionError(w, "auth.refresh.fail", err)
		return
	}

	h.cookies.Set(w, r, sess.Token, sess.ExpiresAt, h.now())
	h.auditSession(r.Context(), auditRefresh, sess.Identity.ID, sess.ID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()), nil)
	writeJSON(w, http.StatusOK, toAuthResponse(sess, ""))
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	raw, ok := cookie.TokenFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sess, err := h.sessions.Validate(r.Context(), raw)
	if err != nil {
		h.writeSessionError(w, "auth.user.fail", err)
		return
	}

	resp := toUserResponse(sess.Identity)
	org, err := h.accounts.PrimaryOrganization(r.Context(), sess.Identity.ID)
	switch {
	case err == nil:
		resp.OrganizationID = org.ID
	case identity.IsNotFound(err):
	default:
		h.log.Warn("auth.user.organization.fail", "err", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: formatTime(h.now()),
		Service:   "auth",
	})
}

// readCredentials throttles by client IP, decodes the body and checks that
// email and password are present. It writes the error response itself.
func (h *Handler) readCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	ip := clientIP(r, h.cfg.TrustProxy)
	if ok, retry := h.limiter.allow(limiterKey(ip), h.now()); !ok {
		h.auditRateLimited(r.Context(), r.URL.Path, ip, strings.TrimSpace(r.UserAgent()), retry)
		writeRateLimited(w, retry)
		return credentialsRequest{}, false
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return credentialsRequest{}, false
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Password) == "" {
		writeError(w, http.StatusBadRequest, "Missing email or password")
		return credentialsRequest{}, false
	}
	return req, true
}

// checkPassword verifies pw against the account hash. Missing accounts and
// accounts without a hash are verified against the dummy hash so every
// failure costs one Argon2id run.
func (h *Handler) checkPassword(ctx context.Context, acct identity.Account, found bool, pw string) bool {
	if !found || acct.PasswordHash == "" {
		_, _ = h.passwords.Verify(h.dummyHash, pw)
		return false
	}

	ok, err := h.passwords.Verify(acct.PasswordHash, pw)
	if err != nil || !ok {
		return false
	}

	if h.passwords.NeedsRehash(acct.PasswordHash) {
		if hash, err := h.passwords.Hash(pw); err == nil {
			if err := h.accounts.SetPasswordHash(ctx, acct.Email, hash, h.now().UTC()); err != nil {
				h.log.Warn("auth.login.rehash.fail", "err", err)
			}
		}
	}
	return true
}

// ensureAccount creates the account for register. An existing account falls
// back to login semantics. A non-zero status is the error to return.
func (h *Handler) ensureAccount(ctx context.Context, email, pw string) (bool, int, string) {
	verify := h.cfg.PasswordMode == PasswordVerify

	acct, err := h.accounts.GetAccount(ctx, email)
	switch {
	case err == nil:
		if verify && !h.checkPassword(ctx, acct, true, pw) {
			return false, http.StatusUnauthorized, "Invalid email or password"
		}
		return false, 0, ""
	case !identity.IsNotFound(err):
		h.log.Error("auth.register.lookup.fail", "err", err)
		return false, http.StatusInternalServerError, "Internal Server Error"
	}

	in := identity.CreateAccountInput{Email: email, Now: h.now().UTC()}
	if verify {
		hash, err := h.passwords.Hash(pw)
		if err != nil {
			if password.IsPolicyViolation(err) {
				return false, http.StatusBadRequest, policyMessage(err)
			}
			h.log.Error("auth.register.hash.fail", "err", err)
			return false, http.StatusInternalServerError, "Internal Server Error"
		}
		in.PasswordHash = hash
	}

	_, err = h.accounts.CreateAccount(ctx, in)
	switch {
	case err == nil:
		return true, 0, ""
	case identity.IsConflict(err):
		// Lost a concurrent register race; treat like an existing account.
		if verify {
			acct, getErr := h.accounts.GetAccount(ctx, email)
			if getErr != nil || !h.checkPassword(ctx, acct, true, pw) {
				return false, http.StatusUnauthorized, "Invalid email or password"
			}
		}
		return false, 0, ""
	case identity.IsInvalidInput(err):
		return false, http.StatusBadRequest, "Missing email or password"
	default:
		h.log.Error("auth.register.create_account.fail", "err", err)
		return false, http.StatusInternalServerError, "Internal Server Error"
	}
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, email string, ip net.IP, ua string) (session.Session, bool) {
	sess, err := h.sessions.Issue(r.Context(), email, session.DeviceContext{UserAgent: ua, IP: ip})
	if err != nil {
		if errors.Is(err, session.ErrInvalidIdentity) {
			writeError(w, http.StatusBadRequest, "Missing email or password")
			return session.Session{}, false
		}
		h.log.Error("auth.issue_session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return session.Session{}, false
	}

	h.cookies.Set(w, r, sess.Token, sess.ExpiresAt, h.now())
	return sess, true
}

func (h *Handler) writeSessionError(w http.ResponseWriter, event string, err error) {
	if session.IsUnauthorized(err) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	h.log.Error(event, "err", err)
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func policyMessage(err error) string {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return "Password is too short"
	case errors.Is(err, password.ErrPasswordTooLong):
		return "Password is too long"
	default:
		return "Password is too weak"
	}
}

func limiterKey(ip net.IP) string {
	if ip == nil {
		return "unknown"
	}
	return ip.String()
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for p := range strings.SplitSeq(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
