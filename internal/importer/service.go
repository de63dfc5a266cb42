package importer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

const (
	idempotencyModule = "import"
	resolveLimit      = 8
)

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

// AccountResolver looks up accounts by id, code or name and tells group
// accounts apart from postable leaves.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, companyID int64, q accounts.ResolveQuery) (accounts.Resolution, error)
	IsLeaf(ctx context.Context, companyID, accountID int64) (bool, error)
}

// IdempotencyPort guards batch commits and remembers their outcome.
type IdempotencyPort interface {
	Claim(ctx context.Context, module, key string) error
	Complete(ctx context.Context, module, key string, result any) error
	Result(ctx context.Context, module, key string, dest any) (bool, error)
	Release(ctx context.Context, module, key string) error
}

// Service previews and commits bulk voucher imports.
type Service struct {
	resolver AccountResolver
	ledger   *vouchers.Service
	idem     IdempotencyPort
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(resolver AccountResolver, ledger *vouchers.Service, idem IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver: resolver,
		ledger:   ledger,
		idem:     idem,
		validate: validator.New(),
		logger:   logger,
	}
}

type resolveKey struct {
	id   int64
	code string
	name string
}

func queryFor(row Row) accounts.ResolveQuery {
	id, _ := strconv.ParseInt(strings.TrimSpace(row.AccountID), 10, 64)
	return accounts.ResolveQuery{
		ID:   id,
		Code: accounts.NormalizeCode(row.AccountCode),
		Name: common.CollapseSpaces(row.AccountName),
	}
}

func keyOf(q accounts.ResolveQuery) resolveKey {
	return resolveKey{id: q.ID, code: q.Code, name: q.Name}
}

// ParseAndValidateVouchers groups rows and reports, per candidate voucher, the
// parsed totals and every blocking or warning issue. Every input row appears in
// the result.
func (s *Service) ParseAndValidateVouchers(ctx context.Context, companyID int64, rows []Row, strategy KeyStrategy) (ValidationResult, error) {
	if companyID <= 0 {
		return ValidationResult{}, common.ErrCompanyRequired
	}
	if len(rows) == 0 {
		return ValidationResult{}, ErrEmptyImport
	}
	if strategy == "" {
		strategy = KeyAuto
	}
	if !strategy.Valid() {
		return ValidationResult{}, fmt.Errorf("%w %q", ErrUnknownStrategy, strategy)
	}

	resolved, groupAccounts, err := s.resolveAll(ctx, companyID, rows)
	if err != nil {
		return ValidationResult{}, err
	}

	result := ValidationResult{CompanyID: companyID, Strategy: strategy, RowCount: len(rows)}
	for _, group := range GroupRowsIntoVouchers(rows, strategy) {
		vg := s.validateGroup(group, resolved, groupAccounts)
		for _, is := range vg.Issues {
			if is.Severity == SeverityBlocking {
				result.Blocking++
			} else {
				result.Warnings++
			}
		}
		result.Groups = append(result.Groups, vg)
	}
	s.logger.Info("import validated",
		slog.Int64("company_id", companyID),
		slog.Int("rows", result.RowCount),
		slog.Int("groups", len(result.Groups)),
		slog.Int("blocking", result.Blocking),
		slog.Int("warnings", result.Warnings))
	return result, nil
}

// resolveAll resolves each distinct account token once and collects the ids
// of matched accounts that have children.
func (s *Service) resolveAll(ctx context.Context, companyID int64, rows []Row) (map[resolveKey]accounts.Resolution, map[int64]bool, error) {
	pending := make(map[resolveKey]accounts.ResolveQuery)
	for _, row := range rows {
		q := queryFor(row)
		if q.Empty() {
			continue
		}
		pending[keyOf(q)] = q
	}

	var mu sync.Mutex
	out := make(map[resolveKey]accounts.Resolution, len(pending))
	groups := make(map[int64]bool)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveLimit)
	for key, q := range pending {
		key, q := key, q
		g.Go(func() error {
			res, err := s.resolver.ResolveAccount(gctx, companyID, q)
			if err != nil {
				return fmt.Errorf("importer: resolve account %q: %w", q.Code+q.Name, err)
			}
			leaf := true
			if res.Found() {
				if leaf, err = s.resolver.IsLeaf(gctx, companyID, res.Account.ID); err != nil {
					return fmt.Errorf("importer: check account %s: %w", res.Account.Code, err)
				}
			}
			mu.Lock()
			out[key] = res
			if !leaf {
				groups[res.Account.ID] = true
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return out, groups, nil
}

func (s *Service) validateGroup(group Group, resolved map[resolveKey]accounts.Resolution, groupAccounts map[int64]bool) ValidatedGroup {
	vg := ValidatedGroup{
		Key:         group.Key,
		Type:        vouchers.TypeJournal,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	issue := func(line int, severity Severity, code, msg string) {
		vg.Issues = append(vg.Issues, Issue{Group: group.Key, Line: line, Severity: severity, Code: code, Message: msg})
	}

	for i, row := range group.Rows {
		line := rowNumber(row, i)
		vr := ValidatedRow{Row: row, Debit: decimal.Zero, Credit: decimal.Zero, Resolution: accounts.Resolution{MatchedBy: accounts.MatchedByNone}}

		if err := s.validate.Struct(row); err != nil {
			issue(line, SeverityBlocking, IssueInvalidRow, err.Error())
		}

		date, ok := parseDate(row.Date)
		switch {
		case !ok:
			issue(line, SeverityBlocking, IssueInvalidDate, fmt.Sprintf("date %q is not a valid date", row.Date))
		case vg.Date.IsZero():
			vg.Date = date
		case !date.Equal(vg.Date):
			issue(line, SeverityWarning, IssueMixedDates, fmt.Sprintf("date %s differs from voucher date %s", date.Format(time.DateOnly), vg.Date.Format(time.DateOnly)))
		}

		debit, debitErr := parseAmount(row.Debit)
		credit, creditErr := parseAmount(row.Credit)
		debit, credit = debit.Round(2), credit.Round(2)
		switch {
		case debitErr != nil || creditErr != nil:
			issue(line, SeverityBlocking, IssueInvalidAmount, "debit and credit must be non-negative numbers")
		case debit.IsPositive() && credit.IsPositive():
			issue(line, SeverityBlocking, IssueBothSides, "line has both debit and credit")
		case debit.IsZero() && credit.IsZero():
			issue(line, SeverityBlocking, IssueNoAmount, "line has neither debit nor credit")
		}
		if debitErr == nil {
			vr.Debit = debit
		}
		if creditErr == nil {
			vr.Credit = credit
		}
		vg.TotalDebit = vg.TotalDebit.Add(vr.Debit)
		vg.TotalCredit = vg.TotalCredit.Add(vr.Credit)

		q := queryFor(row)
		if res, ok := resolved[keyOf(q)]; ok && !q.Empty() {
			vr.Resolution = res
		}
		switch {
		case !vr.Resolution.Found():
			issue(line, SeverityWarning, IssueUnresolvedAcct, fmt.Sprintf("account %s not found", describe(row)))
		case !vr.Resolution.Account.IsActive:
			issue(line, SeverityBlocking, IssueInactiveAcct, fmt.Sprintf("account %s is inactive", vr.Resolution.Account.Code))
		case groupAccounts[vr.Resolution.Account.ID]:
			issue(line, SeverityBlocking, IssueGroupAcct, fmt.Sprintf("account %s is a group account", vr.Resolution.Account.Code))
		}

		if raw := strings.TrimSpace(row.Type); raw != "" {
			vt := vouchers.VoucherType(strings.ToUpper(raw))
			switch {
			case !vt.Valid():
				issue(line, SeverityBlocking, IssueUnknownType, fmt.Sprintf("voucher type %q is not one of JOURNAL, PAYMENT, RECEIPT or CONTRA", raw))
			case i == 0:
				vg.Type = vt
			}
		}
		if vg.Narration == "" {
			vg.Narration = firstNonEmpty(row.Narration, row.Reference)
		}
		vg.Rows = append(vg.Rows, vr)
	}

	if len(group.Rows) < 2 {
		issue(0, SeverityBlocking, IssueTooFewLines, "a voucher needs at least two lines")
	}
	if vg.TotalDebit.Sub(vg.TotalCredit).Abs().GreaterThanOrEqual(vouchers.BalanceTolerance) {
		issue(0, SeverityBlocking, IssueUnbalanced, fmt.Sprintf("debit %s does not equal credit %s", vg.TotalDebit.StringFixed(2), vg.TotalCredit.StringFixed(2)))
	}
	if vg.Issues == nil {
		vg.Issues = []Issue{}
	}
	return vg
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseAmount accepts blanks as zero and tolerates thousands separators.
func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" || raw == "-" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("importer: negative amount %s", raw)
	}
	return d, nil
}

func describe(row Row) string {
	switch {
	case strings.TrimSpace(row.AccountCode) != "":
		return strconv.Quote(strings.TrimSpace(row.AccountCode))
	case strings.TrimSpace(row.AccountName) != "":
		return strconv.Quote(strings.TrimSpace(row.AccountName))
	case strings.TrimSpace(row.AccountID) != "":
		return "#" + strings.TrimSpace(row.AccountID)
	}
	return "(blank)"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
