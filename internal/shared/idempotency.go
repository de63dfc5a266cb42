package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/sitebooks/internal/platform/db"
)

// ErrIdempotencyConflict indicates the key was already claimed.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore claims request keys per module and remembers the outcome
// of the request that claimed them, so replays can be answered with it.
type IdempotencyStore struct {
	q db.Querier
}

// NewIdempotencyStore binds the store to q, a pool or a transaction.
func NewIdempotencyStore(q db.Querier) *IdempotencyStore {
	return &IdempotencyStore{q: q}
}

func checkKey(module, key string) error {
	if module == "" {
		return errors.New("idempotency module required")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	return nil
}

// Claim records the key as in flight. A second claim of the same module/key
// returns ErrIdempotencyConflict.
func (s *IdempotencyStore) Claim(ctx context.Context, module, key string) error {
	if s == nil || s.q == nil {
		return errors.New("idempotency store not initialised")
	}
	if err := checkKey(module, key); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, `INSERT INTO idempotency_keys (module, key) VALUES ($1, $2)`, module, key)
	if db.IsUniqueViolation(err, "") {
		return ErrIdempotencyConflict
	}
	return err
}

// Complete stores the JSON form of result against a claimed key.
func (s *IdempotencyStore) Complete(ctx context.Context, module, key string, result any) error {
	if err := checkKey(module, key); err != nil {
		return err
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode idempotent result: %w", err)
	}
	tag, err := s.q.Exec(ctx, `UPDATE idempotency_keys SET result=$3, completed_at=NOW() WHERE module=$1 AND key=$2`, module, key, body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency key %s/%s not claimed", module, key)
	}
	return nil
}

// Result decodes the stored outcome of key into dest. It reports false when
// the key is unknown or its request has not completed.
func (s *IdempotencyStore) Result(ctx context.Context, module, key string, dest any) (bool, error) {
	if err := checkKey(module, key); err != nil {
		return false, err
	}
	var body []byte
	err := s.q.QueryRow(ctx, `SELECT result FROM idempotency_keys WHERE module=$1 AND key=$2`, module, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(body) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return false, fmt.Errorf("decode idempotent result: %w", err)
	}
	return true, nil
}

// Release drops a claim so a failed request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, module, key string) error {
	if err := checkKey(module, key); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, `DELETE FROM idempotency_keys WHERE module=$1 AND key=$2`, module, key)
	return err
}

// Cleanup removes keys claimed before the retention window and returns how
// many were removed.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.q == nil {
		return 0, nil
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
