package flow

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit event kinds.
const (
	AuditLoginSuccess = "login_success"
	AuditLoginFailed  = "login_failed"
	AuditLoginBlocked = "login_blocked"
	AuditLogout       = "logout"
	AuditRefresh      = "token_refresh"
)

// AuditEvent is one structured audit record. Credential and activation
// failures produce the same event shape whether or not the identity exists.
type AuditEvent struct {
	Kind      string
	UserID    int64
	IP        net.IP
	UserAgent string
	Detail    string
	At        time.Time
}

// AuditSink receives audit events. Emit is fire-and-forget: implementations
// swallow their own failures and never block the login path on them.
type AuditSink interface {
	Emit(ctx context.Context, ev AuditEvent)
}

// NoopAudit discards events.
type NoopAudit struct{}

func (NoopAudit) Emit(context.Context, AuditEvent) {}

// PostgresAudit appends events to auth.audit_log. Insert failures are logged
// and dropped.
type PostgresAudit struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresAudit(pool *pgxpool.Pool, log *slog.Logger) *PostgresAudit {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAudit{pool: pool, log: log}
}

func (a *PostgresAudit) Emit(ctx context.Context, ev AuditEvent) {
	const q = `
INSERT INTO auth.audit_log (kind, user_id, ip, user_agent, detail, created_at)
VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6)`

	var ip *string
	if ev.IP != nil {
		s := ev.IP.String()
		ip = &s
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if _, err := a.pool.Exec(ctx, q, ev.Kind, ev.UserID, ip, ev.UserAgent, ev.Detail, at); err != nil {
		a.log.Error("audit.emit.fail", "kind", ev.Kind, "err", err)
	}
}
