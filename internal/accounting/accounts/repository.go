package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/platform/db"
)

// TxRepository exposes account lookups and writes bound to one transaction
// (or to the pool for plain reads).
type TxRepository interface {
	FindByID(ctx context.Context, companyID, id int64) (Account, error)
	FindByCode(ctx context.Context, companyID int64, code string) (Account, error)
	FindByName(ctx context.Context, companyID int64, name string) (Account, error)
	FindByNameFold(ctx context.Context, companyID int64, name string) (Account, error)
	HasChildren(ctx context.Context, companyID, id int64) (bool, error)
	Upsert(ctx context.Context, account Account) (Account, error)
	List(ctx context.Context, companyID int64) ([]Account, error)
}

// Repository persists accounts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounts repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// Lookup returns a pool-backed store for reads outside a transaction.
func (r *Repository) Lookup() TxRepository {
	return NewTxRepository(r.pool)
}

type txRepository struct {
	q db.Querier
}

// NewTxRepository binds account queries to q, typically a pgx.Tx shared with
// other modules.
func NewTxRepository(q db.Querier) TxRepository {
	return &txRepository{q: q}
}

const accountColumns = `id, company_id, code, name, type, parent_id, is_system, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var accountType string
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &accountType, &a.ParentID, &a.IsSystem, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	a.Type = AccountType(accountType)
	return a, nil
}

func (r *txRepository) FindByID(ctx context.Context, companyID, id int64) (Account, error) {
	return scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2`, companyID, id))
}

func (r *txRepository) FindByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	return scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND code=$2`, companyID, code))
}

func (r *txRepository) FindByName(ctx context.Context, companyID int64, name string) (Account, error) {
	return scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND name=$2 ORDER BY is_active DESC, id ASC LIMIT 1`, companyID, name))
}

func (r *txRepository) FindByNameFold(ctx context.Context, companyID int64, name string) (Account, error) {
	return scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND lower(name)=lower($2) ORDER BY is_active DESC, id ASC LIMIT 1`, companyID, name))
}

func (r *txRepository) HasChildren(ctx context.Context, companyID, id int64) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE company_id=$1 AND parent_id=$2)`, companyID, id).Scan(&exists)
	return exists, err
}

// Upsert inserts the account or returns the existing row for (company, code)
// untouched.
func (r *txRepository) Upsert(ctx context.Context, account Account) (Account, error) {
	return scanAccount(r.q.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, type, parent_id, is_system, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,TRUE,NOW(),NOW())
ON CONFLICT (company_id, code) DO UPDATE SET updated_at = accounts.updated_at
RETURNING `+accountColumns, account.CompanyID, account.Code, account.Name, string(account.Type), account.ParentID, account.IsSystem))
}

func (r *txRepository) List(ctx context.Context, companyID int64) ([]Account, error) {
	rows, err := r.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
