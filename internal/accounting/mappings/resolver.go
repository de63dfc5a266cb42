package mappings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
)

// CodeFor returns the company override for purpose, falling back to the
// default code.
func CodeFor(ctx context.Context, store TxRepository, companyID int64, purpose Purpose) (string, error) {
	m, err := store.Get(ctx, companyID, purpose)
	if err == nil && m.AccountCode != "" {
		return m.AccountCode, nil
	}
	if err != nil && !errors.Is(err, shared.ErrMappingNotFound) {
		return "", err
	}
	code, ok := DefaultCodes[purpose]
	if !ok {
		return "", fmt.Errorf("%w: %s", shared.ErrMappingNotFound, purpose)
	}
	return code, nil
}

// PostableAccount resolves code to an active leaf account. Any failure is
// reported as a MissingDefaultAccountError for purpose.
func PostableAccount(ctx context.Context, store accounts.TxRepository, companyID int64, purpose Purpose, code string) (accounts.Account, error) {
	missing := func(reason error) error {
		return &shared.MissingDefaultAccountError{Purpose: string(purpose), Code: code, Reason: reason}
	}
	account, err := store.FindByCode(ctx, companyID, code)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return accounts.Account{}, missing(shared.ErrAccountInactiveOrMissing)
		}
		return accounts.Account{}, err
	}
	postable, err := accounts.EnsurePostable(ctx, store, companyID, account.ID)
	if err != nil {
		if errors.Is(err, shared.ErrAccountInactiveOrMissing) || errors.Is(err, shared.ErrAccountNotLeaf) {
			return accounts.Account{}, missing(err)
		}
		return accounts.Account{}, err
	}
	return postable, nil
}

// Store hands out a mapping store bound to the pool.
type Store interface {
	Lookup() TxRepository
}

// Service manages purpose overrides.
type Service struct {
	repo     Store
	accounts accounts.TxRepository
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo Store, accountStore accounts.TxRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, accounts: accountStore, logger: logger}
}

// Effective lists the account code used for every purpose, overrides applied.
func (s *Service) Effective(ctx context.Context, companyID int64) (map[Purpose]string, error) {
	return Effective(ctx, s.repo.Lookup(), companyID)
}

// Override points purpose at code after checking the account can be posted to.
func (s *Service) Override(ctx context.Context, companyID int64, purpose Purpose, code string) (AccountMapping, error) {
	return Override(ctx, s.repo.Lookup(), s.accounts, companyID, purpose, code, s.logger)
}

// Effective lists the account code used for every purpose against store.
func Effective(ctx context.Context, store TxRepository, companyID int64) (map[Purpose]string, error) {
	out := make(map[Purpose]string, len(DefaultCodes))
	for purpose, code := range DefaultCodes {
		out[purpose] = code
	}
	overrides, err := store.List(ctx, companyID)
	if err != nil {
		return nil, err
	}
	for _, m := range overrides {
		if m.Purpose.Valid() {
			out[m.Purpose] = m.AccountCode
		}
	}
	return out, nil
}

// Override validates and stores a purpose override.
func Override(ctx context.Context, store TxRepository, accountStore accounts.TxRepository, companyID int64, purpose Purpose, code string, logger *slog.Logger) (AccountMapping, error) {
	if !purpose.Valid() {
		return AccountMapping{}, fmt.Errorf("%w: unknown purpose %q", shared.ErrMappingNotFound, purpose)
	}
	code = accounts.NormalizeCode(code)
	if _, err := PostableAccount(ctx, accountStore, companyID, purpose, code); err != nil {
		return AccountMapping{}, err
	}
	m, err := store.Set(ctx, AccountMapping{CompanyID: companyID, Purpose: purpose, AccountCode: code})
	if err != nil {
		return AccountMapping{}, err
	}
	if logger != nil {
		logger.Info("account mapping overridden", slog.Int64("company_id", companyID), slog.String("purpose", string(purpose)), slog.String("code", code))
	}
	return m, nil
}
