package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/odyssey-erp/sitebooks/internal/platform/db"
)

// AuditLog is one entry of a company's audit trail.
type AuditLog struct {
	CompanyID int64
	ActorID   int64
	Action    string
	Entity    string
	EntityID  string
	Meta      map[string]any
	At        time.Time
}

// Validate checks the fields every entry needs.
func (l AuditLog) Validate() error {
	if l.CompanyID <= 0 {
		return ErrCompanyRequired
	}
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return errors.New("audit log requires action, entity and entity id")
	}
	return nil
}

// AuditLogger appends entries to audit_logs.
type AuditLogger struct {
	q db.Querier
}

// NewAuditLogger binds the logger to q.
func NewAuditLogger(q db.Querier) *AuditLogger {
	return &AuditLogger{q: q}
}

// Record persists the entry. A zero At is stamped by the database.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.q == nil {
		return errors.New("audit logger not initialised")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	var at, actor any
	if !entry.At.IsZero() {
		at = entry.At
	}
	if entry.ActorID != 0 {
		actor = entry.ActorID
	}
	_, err = l.q.Exec(ctx, `INSERT INTO audit_logs (company_id, actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		entry.CompanyID, actor, entry.Action, entry.Entity, entry.EntityID, meta, at)
	return err
}
