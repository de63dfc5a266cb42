package vouchers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/mappings"
	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/inventory"
	"github.com/odyssey-erp/sitebooks/internal/platform/db"
	"github.com/odyssey-erp/sitebooks/internal/procurement"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

// Repository encapsulates DB operations for vouchers.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Lookup() TxRepository
}

// TxRepository exposes voucher persistence plus the stores of the modules a
// posting touches, all bound to the same transaction.
type TxRepository interface {
	Accounts() accounts.TxRepository
	Mappings() mappings.TxRepository
	Purchases() procurement.TxRepository
	Stock() inventory.TxRepository

	NextSequence(ctx context.Context, companyID int64, year int) (int64, error)
	InsertVoucher(ctx context.Context, v Voucher) (Voucher, error)
	InsertLines(ctx context.Context, v Voucher, lines []LineInput) ([]Line, error)
	UpdateHeader(ctx context.Context, v Voucher) error
	DeleteLines(ctx context.Context, companyID, voucherID int64) error
	DeleteVoucher(ctx context.Context, companyID, voucherID int64) error
	GetVoucher(ctx context.Context, companyID, voucherID int64, forUpdate bool) (Voucher, error)
	FindByPurchase(ctx context.Context, companyID, purchaseID int64) (Voucher, error)
	UpdateStatus(ctx context.Context, companyID, voucherID int64, status Status, postedAt *time.Time) error
	List(ctx context.Context, filter ListFilter) ([]Voucher, error)
	RecordTransition(ctx context.Context, log common.TransitionLog) error
	ListTransitions(ctx context.Context, voucherID int64) ([]common.TransitionLog, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *repository) Lookup() TxRepository {
	return NewTxRepository(r.pool)
}

type txRepository struct {
	q db.Querier
}

// NewTxRepository binds voucher queries, and the collaborating stores, to q.
func NewTxRepository(q db.Querier) TxRepository {
	return &txRepository{q: q}
}

func (r *txRepository) Accounts() accounts.TxRepository     { return accounts.NewTxRepository(r.q) }
func (r *txRepository) Mappings() mappings.TxRepository     { return mappings.NewTxRepository(r.q) }
func (r *txRepository) Purchases() procurement.TxRepository { return procurement.NewTxRepository(r.q) }
func (r *txRepository) Stock() inventory.TxRepository       { return inventory.NewTxRepository(r.q) }
func (r *txRepository) RecordTransition(ctx context.Context, log common.TransitionLog) error {
	return common.RecordTransition(ctx, r.q, log)
}

func (r *txRepository) ListTransitions(ctx context.Context, voucherID int64) ([]common.TransitionLog, error) {
	return common.ListTransitions(ctx, r.q, transitionModule, voucherID)
}

// NextSequence increments the (company, year) counter under its row lock. A
// new counter starts after the highest number already issued for the year.
func (r *txRepository) NextSequence(ctx context.Context, companyID int64, year int) (int64, error) {
	var next int64
	err := r.q.QueryRow(ctx, `INSERT INTO voucher_sequences (company_id, year, last_no)
VALUES ($1, $2, COALESCE((
    SELECT MAX(CAST(substring(voucher_no FROM 8) AS BIGINT))
    FROM vouchers
    WHERE company_id = $1 AND voucher_no LIKE $3 AND voucher_no ~ '^V-[0-9]{4}-[0-9]+$'
), 0) + 1)
ON CONFLICT (company_id, year) DO UPDATE SET last_no = voucher_sequences.last_no + 1
RETURNING last_no`, companyID, year, YearPrefix(year)+"%").Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocate voucher number: %w", err)
	}
	return next, nil
}

const voucherColumns = `id, company_id, voucher_no, date, type, status, project_id, narration, purchase_id, reversal_of, source_ref, COALESCE(created_by, 0), created_at, updated_at, posted_at`

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	var voucherType, status string
	err := row.Scan(&v.ID, &v.CompanyID, &v.VoucherNo, &v.Date, &voucherType, &status, &v.ProjectID, &v.Narration, &v.PurchaseID, &v.ReversalOf, &v.SourceRef, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt, &v.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, shared.ErrVoucherNotFound
		}
		return Voucher{}, err
	}
	v.Type = VoucherType(voucherType)
	v.Status = Status(status)
	return v, nil
}

func (r *txRepository) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	var createdBy any
	if v.CreatedBy != 0 {
		createdBy = v.CreatedBy
	}
	inserted, err := scanVoucher(r.q.QueryRow(ctx, `INSERT INTO vouchers (company_id, voucher_no, date, type, status, project_id, narration, purchase_id, reversal_of, source_ref, created_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING `+voucherColumns,
		v.CompanyID, v.VoucherNo, v.Date, string(v.Type), string(v.Status), v.ProjectID, v.Narration, v.PurchaseID, v.ReversalOf, v.SourceRef, createdBy, v.PostedAt))
	if err != nil {
		return Voucher{}, fmt.Errorf("insert voucher: %w", err)
	}
	return inserted, nil
}

func (r *txRepository) InsertLines(ctx context.Context, v Voucher, lines []LineInput) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for i, in := range lines {
		line := Line{
			VoucherID:       v.ID,
			LineNo:          i + 1,
			AccountID:       in.AccountID,
			AccountCode:     in.AccountCode,
			Debit:           in.Debit.Round(2),
			Credit:          in.Credit.Round(2),
			Description:     in.Description,
			ProjectID:       in.ProjectID,
			VendorID:        in.VendorID,
			PaymentMethodID: in.PaymentMethodID,
		}
		err := r.q.QueryRow(ctx, `INSERT INTO voucher_lines (voucher_id, company_id, line_no, account_id, debit, credit, description, project_id, vendor_id, payment_method_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
			v.ID, v.CompanyID, line.LineNo, line.AccountID, line.Debit, line.Credit, line.Description, line.ProjectID, line.VendorID, line.PaymentMethodID).Scan(&line.ID)
		if err != nil {
			return nil, fmt.Errorf("insert voucher line %d: %w", i+1, err)
		}
		out = append(out, line)
	}
	return out, nil
}

func (r *txRepository) UpdateHeader(ctx context.Context, v Voucher) error {
	tag, err := r.q.Exec(ctx, `UPDATE vouchers SET date=$3, type=$4, project_id=$5, narration=$6, updated_at=NOW() WHERE company_id=$1 AND id=$2`,
		v.CompanyID, v.ID, v.Date, string(v.Type), v.ProjectID, v.Narration)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrVoucherNotFound
	}
	return nil
}

func (r *txRepository) DeleteLines(ctx context.Context, companyID, voucherID int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM voucher_lines WHERE company_id=$1 AND voucher_id=$2`, companyID, voucherID)
	return err
}

func (r *txRepository) DeleteVoucher(ctx context.Context, companyID, voucherID int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM vouchers WHERE company_id=$1 AND id=$2 AND status='DRAFT'`, companyID, voucherID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotEditable
	}
	return nil
}

func (r *txRepository) GetVoucher(ctx context.Context, companyID, voucherID int64, forUpdate bool) (Voucher, error) {
	sql := `SELECT ` + voucherColumns + ` FROM vouchers WHERE company_id=$1 AND id=$2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	v, err := scanVoucher(r.q.QueryRow(ctx, sql, companyID, voucherID))
	if err != nil {
		return Voucher{}, err
	}
	if v.Lines, err = r.loadLines(ctx, companyID, voucherID); err != nil {
		return Voucher{}, err
	}
	return v, nil
}

func (r *txRepository) FindByPurchase(ctx context.Context, companyID, purchaseID int64) (Voucher, error) {
	v, err := scanVoucher(r.q.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE company_id=$1 AND purchase_id=$2 AND reversal_of IS NULL`, companyID, purchaseID))
	if err != nil {
		return Voucher{}, err
	}
	if v.Lines, err = r.loadLines(ctx, companyID, v.ID); err != nil {
		return Voucher{}, err
	}
	return v, nil
}

func (r *txRepository) loadLines(ctx context.Context, companyID, voucherID int64) ([]Line, error) {
	rows, err := r.q.Query(ctx, `SELECT l.id, l.voucher_id, l.line_no, l.account_id, a.code, l.debit, l.credit, l.description, l.project_id, l.vendor_id, l.payment_method_id
FROM voucher_lines l JOIN accounts a ON a.id = l.account_id
WHERE l.company_id=$1 AND l.voucher_id=$2 ORDER BY l.line_no`, companyID, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.VoucherID, &l.LineNo, &l.AccountID, &l.AccountCode, &l.Debit, &l.Credit, &l.Description, &l.ProjectID, &l.VendorID, &l.PaymentMethodID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepository) UpdateStatus(ctx context.Context, companyID, voucherID int64, status Status, postedAt *time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE vouchers SET status=$3, posted_at=COALESCE($4, posted_at), updated_at=NOW() WHERE company_id=$1 AND id=$2`,
		companyID, voucherID, string(status), postedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrVoucherNotFound
	}
	return nil
}

// List returns headers only, newest first.
func (r *txRepository) List(ctx context.Context, f ListFilter) ([]Voucher, error) {
	sql := `SELECT ` + voucherColumns + ` FROM vouchers WHERE company_id=$1`
	args := []any{f.CompanyID}
	add := func(cond string, v any) {
		args = append(args, v)
		sql += fmt.Sprintf(" AND "+cond, len(args))
	}
	if f.Status != "" {
		add("status=$%d", string(f.Status))
	}
	if f.ProjectID != 0 {
		add("project_id=$%d", f.ProjectID)
	}
	if f.PurchaseID != 0 {
		add("purchase_id=$%d", f.PurchaseID)
	}
	if !f.From.IsZero() {
		add("date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("date <= $%d", f.To)
	}
	args = append(args, f.Limit, f.Offset)
	sql += fmt.Sprintf(" ORDER BY date DESC, voucher_no DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
