package shared

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/sitebooks/internal/platform/db"
)

// TransitionLog records one lifecycle step of a document (voucher, import batch).
type TransitionLog struct {
	ID      int64
	Module  string
	RefID   int64
	ActorID int64
	From    string
	To      string
	Note    string
	At      time.Time
}

// RecordTransition writes the entry using the caller's transaction so the
// history commits or rolls back with the state change itself.
func RecordTransition(ctx context.Context, q db.Querier, log TransitionLog) error {
	if q == nil {
		return errors.New("transition log: querier required")
	}
	if log.Module == "" || log.RefID == 0 {
		return errors.New("transition log: module and ref id required")
	}
	if log.To == "" {
		return errors.New("transition log: target status required")
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	var actor any
	if log.ActorID != 0 {
		actor = log.ActorID
	}
	_, err := q.Exec(ctx, `INSERT INTO status_transitions (module, ref_id, actor_id, from_status, to_status, note, at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`, log.Module, log.RefID, actor, log.From, log.To, log.Note, at)
	return err
}

// ListTransitions returns the history for module/ref ordered by time.
func ListTransitions(ctx context.Context, q db.Querier, module string, refID int64) ([]TransitionLog, error) {
	rows, err := q.Query(ctx, `SELECT id, module, ref_id, COALESCE(actor_id, 0), from_status, to_status, note, at
FROM status_transitions WHERE module=$1 AND ref_id=$2 ORDER BY at ASC, id ASC`, module, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []TransitionLog
	for rows.Next() {
		var l TransitionLog
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.ActorID, &l.From, &l.To, &l.Note, &l.At); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
