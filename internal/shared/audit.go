package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog is one row of audit_logs. Actions are namespaced as
// "<component>:<entity>.<verb>", e.g. "sales:invoice.create".
type AuditLog struct {
	ActorID  int64
	Action   string `validate:"required"`
	Entity   string `validate:"required"`
	EntityID string `validate:"required"`
	Meta     map[string]any
	At       time.Time
}

// Execer is the write half of pgx, satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// AuditLogger appends audit rows. Passing a pgx.Tx keeps the row in the same
// transaction as the change it describes.
type AuditLogger struct {
	db  Execer
	now func() time.Time
}

// NewAuditLogger returns a logger writing through db.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db, now: time.Now}
}

const insertAuditSQL = `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// Record validates and stores entry.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit: logger not initialised")
	}
	if err := Validate(entry); err != nil {
		return err
	}
	meta := entry.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta for %s: %w", entry.Action, err)
	}
	at := entry.At
	if at.IsZero() {
		at = l.now()
	}
	if _, err := l.db.Exec(ctx, insertAuditSQL, entry.ActorID, entry.Action, entry.Entity, entry.EntityID, payload, at.UTC()); err != nil {
		return fmt.Errorf("audit: insert %s: %w", entry.Action, err)
	}
	return nil
}
