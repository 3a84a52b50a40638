package authapi

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// AuditDB is the subset of *pgxpool.Pool used to append audit rows.
type AuditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	auditLoginSuccess     = "auth.login.success"
	auditLoginFailed      = "auth.login.failed"
	auditLoginRateLimited = "auth.login.rate_limited"
	auditRegister         = "auth.register.success"
	auditRefresh          = "auth.refresh.success"
	auditLogout           = "auth.logout"
	auditLogoutAll        = "auth.logout_all"
)

type auditEntry struct {
	action    string
	userID    string
	sessionID string
	ip        net.IP
	userAgent string
	meta      map[string]any
}

func (h *Handler) auditLoginFailed(ctx context.Context, email string, ip net.IP, ua string, reason string) {
	h.insertAudit(ctx, auditEntry{
		action:    auditLoginFailed,
		userID:    email,
		ip:        ip,
		userAgent: ua,
		meta:      map[string]any{"reason": reason},
	})
}

func (h *Handler) auditRateLimited(ctx context.Context, path string, ip net.IP, ua string, retryAfter time.Duration) {
	h.insertAudit(ctx, auditEntry{
		action:    auditLoginRateLimited,
		ip:        ip,
		userAgent: ua,
		meta: map[string]any{
			"path":          path,
			"retry_after_s": int64(retryAfter.Seconds()),
		},
	})
}

func (h *Handler) auditSession(ctx context.Context, action, userID, sessionID string, ip net.IP, ua string, meta map[string]any) {
	h.insertAudit(ctx, auditEntry{
		action:    action,
		userID:    userID,
		sessionID: sessionID,
		ip:        ip,
		userAgent: ua,
		meta:      meta,
	})
}

// insertAudit appends a row to <schema>.audit_log. Failures are logged and never
// affect the response.
func (h *Handler) insertAudit(ctx context.Context, e auditEntry) {
	if h == nil || h.audit == nil {
		return
	}

	action := strings.TrimSpace(e.action)
	if action == "" {
		return
	}

	var ipVal any
	if e.ip != nil {
		ipVal = e.ip.String()
	}

	var metaVal *string
	if len(e.meta) > 0 {
		if b, err := json.Marshal(e.meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := h.audit.Exec(ctx, `
		INSERT INTO `+h.auditTable+` (
			user_id, session_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, $4, $5::inet, $6, COALESCE($7::jsonb, '{}'::jsonb))
	`, trimOrNil(e.userID), trimOrNil(e.sessionID), action, h.now().UTC(), ipVal, trimOrNil(e.userAgent), metaVal)
	if err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func auditTable(schema string) string {
	return pgx.Identifier{schema, "audit_log"}.Sanitize()
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
