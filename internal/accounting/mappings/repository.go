package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/platform/db"
)

// TxRepository reads and writes purpose overrides.
type TxRepository interface {
	Get(ctx context.Context, companyID int64, purpose Purpose) (AccountMapping, error)
	Set(ctx context.Context, mapping AccountMapping) (AccountMapping, error)
	List(ctx context.Context, companyID int64) ([]AccountMapping, error)
}

// Repository is the pool-backed entry point.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Lookup returns a pool-bound store.
func (r *Repository) Lookup() TxRepository {
	return NewTxRepository(r.pool)
}

type repository struct {
	q db.Querier
}

// NewTxRepository binds mapping queries to q.
func NewTxRepository(q db.Querier) TxRepository {
	return &repository{q: q}
}

func scanMapping(row pgx.Row) (AccountMapping, error) {
	var m AccountMapping
	var purpose string
	if err := row.Scan(&m.CompanyID, &purpose, &m.AccountCode, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	m.Purpose = Purpose(purpose)
	return m, nil
}

// Get resolves the override for the purpose.
func (r *repository) Get(ctx context.Context, companyID int64, purpose Purpose) (AccountMapping, error) {
	if companyID <= 0 || purpose == "" {
		return AccountMapping{}, errors.New("accounting: company and purpose required")
	}
	return scanMapping(r.q.QueryRow(ctx, `SELECT company_id, purpose, account_code, created_at, updated_at FROM account_mappings WHERE company_id=$1 AND purpose=$2`,
		companyID, strings.ToUpper(string(purpose))))
}

func (r *repository) Set(ctx context.Context, m AccountMapping) (AccountMapping, error) {
	return scanMapping(r.q.QueryRow(ctx, `INSERT INTO account_mappings (company_id, purpose, account_code) VALUES ($1,$2,$3)
ON CONFLICT (company_id, purpose) DO UPDATE SET account_code = EXCLUDED.account_code, updated_at = NOW()
RETURNING company_id, purpose, account_code, created_at, updated_at`, m.CompanyID, string(m.Purpose), m.AccountCode))
}

func (r *repository) List(ctx context.Context, companyID int64) ([]AccountMapping, error) {
	rows, err := r.q.Query(ctx, `SELECT company_id, purpose, account_code, created_at, updated_at FROM account_mappings WHERE company_id=$1 ORDER BY purpose`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
