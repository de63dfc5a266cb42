package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/sitebooks/internal/platform/db"
)

// TxRepository reads and records purchases on one connection or transaction.
type TxRepository interface {
	GetPurchase(ctx context.Context, companyID, purchaseID int64) (Purchase, error)
	CreatePurchase(ctx context.Context, p Purchase) (Purchase, error)
	ListByVendor(ctx context.Context, companyID, vendorID int64, asOf time.Time) ([]Purchase, error)
	ListByProject(ctx context.Context, companyID, projectID int64, from, to time.Time) ([]Purchase, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// Lookup returns a pool-backed reader.
func (r *Repository) Lookup() TxRepository {
	return NewTxRepository(r.pool)
}

type txRepo struct {
	q db.Querier
}

// NewTxRepository binds purchase queries to q.
func NewTxRepository(q db.Querier) TxRepository {
	return &txRepo{q: q}
}

// voucher_status is the status of the purchase's own voucher; reversal
// vouchers are excluded and at most one other exists per purchase.
const purchaseColumns = `id, company_id, vendor_id, project_id, invoice_no, invoice_date, discount, paid_amount, payment_account_code, created_at,
COALESCE((SELECT v.status FROM vouchers v WHERE v.company_id = purchases.company_id AND v.purchase_id = purchases.id AND v.reversal_of IS NULL), '')`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	err := row.Scan(&p.ID, &p.CompanyID, &p.VendorID, &p.ProjectID, &p.InvoiceNo, &p.InvoiceDate, &p.Discount, &p.PaidAmount, &p.PaymentAccountCode, &p.CreatedAt, &p.VoucherStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, ErrNotFound
	}
	return p, err
}

func (r *txRepo) GetPurchase(ctx context.Context, companyID, purchaseID int64) (Purchase, error) {
	p, err := scanPurchase(r.q.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE company_id=$1 AND id=$2`, companyID, purchaseID))
	if err != nil {
		return Purchase{}, err
	}
	if err := r.loadLines(ctx, []*Purchase{&p}); err != nil {
		return Purchase{}, err
	}
	return p, nil
}

// CreatePurchase records a purchase and its lines.
func (r *txRepo) CreatePurchase(ctx context.Context, p Purchase) (Purchase, error) {
	created, err := scanPurchase(r.q.QueryRow(ctx, `INSERT INTO purchases (company_id, vendor_id, project_id, invoice_no, invoice_date, discount, paid_amount, payment_account_code)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+purchaseColumns,
		p.CompanyID, p.VendorID, p.ProjectID, p.InvoiceNo, p.InvoiceDate, p.Discount, p.PaidAmount, p.PaymentAccountCode))
	if err != nil {
		return Purchase{}, fmt.Errorf("insert purchase: %w", err)
	}
	for _, line := range p.Lines {
		line.PurchaseID = created.ID
		err := r.q.QueryRow(ctx, `INSERT INTO purchase_lines (purchase_id, line_type, stock_item_id, item_name, category, qty, unit_price)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			created.ID, string(line.LineType), line.StockItemID, line.ItemName, line.Category, line.Qty, line.UnitPrice).Scan(&line.ID)
		if err != nil {
			return Purchase{}, fmt.Errorf("insert purchase line: %w", err)
		}
		created.Lines = append(created.Lines, line)
	}
	return created, nil
}

func (r *txRepo) ListByVendor(ctx context.Context, companyID, vendorID int64, asOf time.Time) ([]Purchase, error) {
	return r.list(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE company_id=$1 AND vendor_id=$2 AND invoice_date <= $3 ORDER BY invoice_date, id`, companyID, vendorID, asOf)
}

func (r *txRepo) ListByProject(ctx context.Context, companyID, projectID int64, from, to time.Time) ([]Purchase, error) {
	sql := `SELECT ` + purchaseColumns + ` FROM purchases WHERE company_id=$1 AND project_id=$2`
	args := []any{companyID, projectID}
	if !from.IsZero() {
		args = append(args, from)
		sql += fmt.Sprintf(" AND invoice_date >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		sql += fmt.Sprintf(" AND invoice_date <= $%d", len(args))
	}
	return r.list(ctx, sql+" ORDER BY invoice_date, id", args...)
}

func (r *txRepo) list(ctx context.Context, sql string, args ...any) ([]Purchase, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var purchases []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		purchases = append(purchases, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*Purchase, len(purchases))
	for i := range purchases {
		ptrs[i] = &purchases[i]
	}
	if err := r.loadLines(ctx, ptrs); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (r *txRepo) loadLines(ctx context.Context, purchases []*Purchase) error {
	if len(purchases) == 0 {
		return nil
	}
	byID := make(map[int64]*Purchase, len(purchases))
	ids := make([]int64, 0, len(purchases))
	for _, p := range purchases {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}
	rows, err := r.q.Query(ctx, `SELECT id, purchase_id, line_type, stock_item_id, item_name, category, qty, unit_price
FROM purchase_lines WHERE purchase_id = ANY($1) ORDER BY purchase_id, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var line PurchaseLine
		var lineType string
		if err := rows.Scan(&line.ID, &line.PurchaseID, &lineType, &line.StockItemID, &line.ItemName, &line.Category, &line.Qty, &line.UnitPrice); err != nil {
			return err
		}
		line.LineType = LineType(lineType)
		if p, ok := byID[line.PurchaseID]; ok {
			p.Lines = append(p.Lines, line)
		}
	}
	return rows.Err()
}
