package reports

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/procurement"
)

// Store provides the read models the reports are derived from.
type Store interface {
	Account(ctx context.Context, companyID, accountID int64) (accounts.Account, error)
	OpeningTotals(ctx context.Context, scope LedgerScope, before time.Time) (debit, credit decimal.Decimal, err error)
	PostedLines(ctx context.Context, scope LedgerScope, rng DateRange) ([]PostedLine, error)
	ExpenseLines(ctx context.Context, companyID, projectID int64, rng DateRange) ([]ExpenseLine, error)
	VendorPurchases(ctx context.Context, companyID, vendorID int64, asOf time.Time) ([]procurement.Purchase, error)
	ProjectPurchases(ctx context.Context, companyID, projectID int64, rng DateRange) ([]procurement.Purchase, error)
	AccountTotals(ctx context.Context, companyID int64, rng DateRange) ([]AccountTotals, error)
}

// Repository reads posted ledger data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const postedStatuses = `('POSTED','REVERSED')`

func dateArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func scopeFilter(scope LedgerScope) (string, int64, error) {
	switch {
	case scope.AccountID > 0 && scope.VendorID == 0:
		return "l.account_id", scope.AccountID, nil
	case scope.VendorID > 0 && scope.AccountID == 0:
		return "l.vendor_id", scope.VendorID, nil
	}
	return "", 0, errors.New("reports: ledger scope needs exactly one of account or vendor")
}

func (r *Repository) Account(ctx context.Context, companyID, accountID int64) (accounts.Account, error) {
	return accounts.NewTxRepository(r.pool).FindByID(ctx, companyID, accountID)
}

func (r *Repository) OpeningTotals(ctx context.Context, scope LedgerScope, before time.Time) (decimal.Decimal, decimal.Decimal, error) {
	if before.IsZero() {
		return decimal.Zero, decimal.Zero, nil
	}
	column, id, err := scopeFilter(scope)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	var debit, credit decimal.Decimal
	err = r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM voucher_lines l JOIN vouchers v ON v.id = l.voucher_id
WHERE l.company_id = $1 AND `+column+` = $2 AND v.status IN `+postedStatuses+` AND v.date < $3`,
		scope.CompanyID, id, before).Scan(&debit, &credit)
	return debit, credit, err
}

func (r *Repository) PostedLines(ctx context.Context, scope LedgerScope, rng DateRange) ([]PostedLine, error) {
	column, id, err := scopeFilter(scope)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT v.id, v.voucher_no, v.date, l.id, l.account_id, a.code, l.description, l.debit, l.credit
FROM voucher_lines l
JOIN vouchers v ON v.id = l.voucher_id
JOIN accounts a ON a.id = l.account_id
WHERE l.company_id = $1 AND `+column+` = $2 AND v.status IN `+postedStatuses+`
  AND ($3::date IS NULL OR v.date >= $3) AND ($4::date IS NULL OR v.date <= $4)
ORDER BY v.date, v.voucher_no, l.id`, scope.CompanyID, id, dateArg(rng.From), dateArg(rng.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PostedLine
	for rows.Next() {
		var l PostedLine
		if err := rows.Scan(&l.VoucherID, &l.VoucherNo, &l.Date, &l.LineID, &l.AccountID, &l.AccountCode, &l.Description, &l.Debit, &l.Credit); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ExpenseLines returns project expense lines of vouchers not derived from a
// purchase; purchase costs are read from the purchases themselves.
func (r *Repository) ExpenseLines(ctx context.Context, companyID, projectID int64, rng DateRange) ([]ExpenseLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT v.id, v.date, a.name, l.debit, l.credit
FROM voucher_lines l
JOIN vouchers v ON v.id = l.voucher_id
JOIN accounts a ON a.id = l.account_id
WHERE l.company_id = $1 AND COALESCE(l.project_id, v.project_id) = $2
  AND v.status IN `+postedStatuses+` AND v.purchase_id IS NULL AND a.type = 'EXPENSE'
  AND ($3::date IS NULL OR v.date >= $3) AND ($4::date IS NULL OR v.date <= $4)
ORDER BY v.date, l.id`, companyID, projectID, dateArg(rng.From), dateArg(rng.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExpenseLine
	for rows.Next() {
		var e ExpenseLine
		if err := rows.Scan(&e.VoucherID, &e.Date, &e.AccountName, &e.Debit, &e.Credit); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) VendorPurchases(ctx context.Context, companyID, vendorID int64, asOf time.Time) ([]procurement.Purchase, error) {
	return procurement.NewTxRepository(r.pool).ListByVendor(ctx, companyID, vendorID, asOf)
}

func (r *Repository) ProjectPurchases(ctx context.Context, companyID, projectID int64, rng DateRange) ([]procurement.Purchase, error) {
	return procurement.NewTxRepository(r.pool).ListByProject(ctx, companyID, projectID, rng.From, rng.To)
}

func (r *Repository) AccountTotals(ctx context.Context, companyID int64, rng DateRange) ([]AccountTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.type,
  COALESCE(SUM(l.debit) FILTER (WHERE v.id IS NOT NULL AND $2::date IS NOT NULL AND v.date < $2), 0),
  COALESCE(SUM(l.credit) FILTER (WHERE v.id IS NOT NULL AND $2::date IS NOT NULL AND v.date < $2), 0),
  COALESCE(SUM(l.debit) FILTER (WHERE v.id IS NOT NULL AND ($2::date IS NULL OR v.date >= $2) AND ($3::date IS NULL OR v.date <= $3)), 0),
  COALESCE(SUM(l.credit) FILTER (WHERE v.id IS NOT NULL AND ($2::date IS NULL OR v.date >= $2) AND ($3::date IS NULL OR v.date <= $3)), 0)
FROM accounts a
LEFT JOIN voucher_lines l ON l.account_id = a.id
LEFT JOIN vouchers v ON v.id = l.voucher_id AND v.status IN `+postedStatuses+`
WHERE a.company_id = $1
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, companyID, dateArg(rng.From), dateArg(rng.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotals
	for rows.Next() {
		var t AccountTotals
		if err := rows.Scan(&t.AccountID, &t.Code, &t.Name, &t.Type, &t.OpenDebit, &t.OpenCredit, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
