package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/platform/db"
)

// TxRepository exposes the stock operations used by the engine. Writes must
// run on a transaction so balance locks hold until commit.
type TxRepository interface {
	EnsureBalance(ctx context.Context, companyID, itemID int64) error
	GetBalanceForUpdate(ctx context.Context, companyID, itemID int64) (Balance, error)
	SaveBalance(ctx context.Context, balance Balance) error
	FindMovement(ctx context.Context, key MovementKey) (Movement, bool, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, bool, error)
	ListMovementsByReference(ctx context.Context, companyID int64, refType, refID string) ([]Movement, error)
	GetItem(ctx context.Context, companyID, itemID int64) (StockItem, error)
	FindItemByName(ctx context.Context, companyID int64, normalizedName string) (StockItem, error)
	UpsertItem(ctx context.Context, item StockItem) (StockItem, bool, error)
	ListBalances(ctx context.Context, companyID int64) ([]BalanceView, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListItemIDs(ctx context.Context, companyID int64) ([]int64, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// Lookup returns a pool-backed store for reads.
func (r *Repository) Lookup() TxRepository {
	return NewTxRepository(r.pool)
}

// ListCompanyIDs returns every company with stock items, for maintenance jobs.
func (r *Repository) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT company_id FROM stock_items ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

type txRepository struct {
	q db.Querier
}

// NewTxRepository binds stock queries to q.
func NewTxRepository(q db.Querier) TxRepository {
	return &txRepository{q: q}
}

func (r *txRepository) EnsureBalance(ctx context.Context, companyID, itemID int64) error {
	_, err := r.q.Exec(ctx, `INSERT INTO stock_balances (company_id, stock_item_id, on_hand_qty, avg_cost) VALUES ($1,$2,0,0)
ON CONFLICT (company_id, stock_item_id) DO NOTHING`, companyID, itemID)
	return err
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, companyID, itemID int64) (Balance, error) {
	b := Balance{CompanyID: companyID, StockItemID: itemID}
	err := r.q.QueryRow(ctx, `SELECT on_hand_qty, avg_cost, updated_at FROM stock_balances WHERE company_id=$1 AND stock_item_id=$2 FOR UPDATE`, companyID, itemID).
		Scan(&b.OnHandQty, &b.AvgCost, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return b, fmt.Errorf("inventory: balance row missing for item %d", itemID)
		}
		return Balance{}, err
	}
	return b, nil
}

func (r *txRepository) SaveBalance(ctx context.Context, b Balance) error {
	_, err := r.q.Exec(ctx, `INSERT INTO stock_balances (company_id, stock_item_id, on_hand_qty, avg_cost, updated_at) VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (company_id, stock_item_id) DO UPDATE SET on_hand_qty = EXCLUDED.on_hand_qty, avg_cost = EXCLUDED.avg_cost, updated_at = NOW()`,
		b.CompanyID, b.StockItemID, b.OnHandQty, b.AvgCost)
	return err
}

const movementColumns = `id, company_id, stock_item_id, movement_date, type, qty, unit_cost, COALESCE(reference_type, ''), COALESCE(reference_id, ''), project_id, vendor_id, notes, created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var movementType string
	var cost decimal.NullDecimal
	if err := row.Scan(&m.ID, &m.CompanyID, &m.StockItemID, &m.MovementDate, &movementType, &m.Qty, &cost, &m.ReferenceType, &m.ReferenceID, &m.ProjectID, &m.VendorID, &m.Notes, &m.CreatedAt); err != nil {
		return Movement{}, err
	}
	m.Type = MovementType(movementType)
	if cost.Valid {
		c := cost.Decimal
		m.UnitCost = &c
	}
	return m, nil
}

func collectMovements(rows pgx.Rows) ([]Movement, error) {
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *txRepository) FindMovement(ctx context.Context, key MovementKey) (Movement, bool, error) {
	m, err := scanMovement(r.q.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE company_id=$1 AND stock_item_id=$2 AND type=$3 AND reference_type=$4 AND reference_id=$5`,
		key.CompanyID, key.StockItemID, string(key.Type), key.ReferenceType, key.ReferenceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, false, nil
		}
		return Movement{}, false, err
	}
	return m, true, nil
}

// InsertMovement appends m. The bool is false when the idempotency key
// already existed and nothing was written.
func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, bool, error) {
	var cost decimal.NullDecimal
	if m.UnitCost != nil {
		cost = decimal.NewNullDecimal(*m.UnitCost)
	}
	inserted, err := scanMovement(r.q.QueryRow(ctx, `INSERT INTO stock_movements
(company_id, stock_item_id, movement_date, type, qty, unit_cost, reference_type, reference_id, project_id, vendor_id, notes)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),NULLIF($8,''),$9,$10,$11)
ON CONFLICT ON CONSTRAINT uq_stock_movements_idem DO NOTHING
RETURNING `+movementColumns,
		m.CompanyID, m.StockItemID, m.MovementDate, string(m.Type), m.Qty, cost, m.ReferenceType, m.ReferenceID, m.ProjectID, m.VendorID, m.Notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, false, nil
		}
		return Movement{}, false, err
	}
	return inserted, true, nil
}

func (r *txRepository) ListMovementsByReference(ctx context.Context, companyID int64, refType, refID string) ([]Movement, error) {
	rows, err := r.q.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE company_id=$1 AND reference_type=$2 AND reference_id=$3 ORDER BY id`, companyID, refType, refID)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

const itemColumns = `id, company_id, name, normalized_name, unit, category, reorder_level, is_active, created_at, updated_at`

func scanItem(row pgx.Row) (StockItem, error) {
	var it StockItem
	err := row.Scan(&it.ID, &it.CompanyID, &it.Name, &it.NormalizedName, &it.Unit, &it.Category, &it.ReorderLevel, &it.IsActive, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, ErrItemNotFound
	}
	return it, err
}

func (r *txRepository) GetItem(ctx context.Context, companyID, itemID int64) (StockItem, error) {
	return scanItem(r.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE company_id=$1 AND id=$2`, companyID, itemID))
}

func (r *txRepository) FindItemByName(ctx context.Context, companyID int64, normalizedName string) (StockItem, error) {
	return scanItem(r.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE company_id=$1 AND normalized_name=$2`, companyID, normalizedName))
}

// UpsertItem inserts the item or returns the existing row for the same
// normalized name. The bool reports whether a row was created.
func (r *txRepository) UpsertItem(ctx context.Context, item StockItem) (StockItem, bool, error) {
	var created bool
	var it StockItem
	err := r.q.QueryRow(ctx, `INSERT INTO stock_items (company_id, name, normalized_name, unit, category, reorder_level)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT ON CONSTRAINT uq_stock_items_company_name DO UPDATE SET updated_at = stock_items.updated_at
RETURNING `+itemColumns+`, (xmax = 0)`, item.CompanyID, item.Name, item.NormalizedName, item.Unit, item.Category, item.ReorderLevel).
		Scan(&it.ID, &it.CompanyID, &it.Name, &it.NormalizedName, &it.Unit, &it.Category, &it.ReorderLevel, &it.IsActive, &it.CreatedAt, &it.UpdatedAt, &created)
	if err != nil {
		return StockItem{}, false, err
	}
	return it, created, nil
}

func (r *txRepository) ListBalances(ctx context.Context, companyID int64) ([]BalanceView, error) {
	rows, err := r.q.Query(ctx, `SELECT b.company_id, b.stock_item_id, b.on_hand_qty, b.avg_cost, b.updated_at, i.name, i.unit, i.category
FROM stock_balances b JOIN stock_items i ON i.id = b.stock_item_id
WHERE b.company_id=$1 ORDER BY i.normalized_name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceView
	for rows.Next() {
		var v BalanceView
		if err := rows.Scan(&v.CompanyID, &v.StockItemID, &v.OnHandQty, &v.AvgCost, &v.UpdatedAt, &v.ItemName, &v.Unit, &v.Category); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListMovements returns journal entries in posting order. A zero item id
// lists every item of the company.
func (r *txRepository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	sql := `SELECT ` + movementColumns + ` FROM stock_movements WHERE company_id=$1`
	args := []any{filter.CompanyID}
	if filter.StockItemID != 0 {
		args = append(args, filter.StockItemID)
		sql += fmt.Sprintf(" AND stock_item_id=$%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		sql += fmt.Sprintf(" AND movement_date >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		sql += fmt.Sprintf(" AND movement_date <= $%d", len(args))
	}
	sql += " ORDER BY stock_item_id, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

func (r *txRepository) ListItemIDs(ctx context.Context, companyID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT id FROM stock_items WHERE company_id=$1 ORDER BY id`, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
