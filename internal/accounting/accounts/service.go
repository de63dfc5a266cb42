package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Lookup() TxRepository
}

// Service exposes the account registry.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// List returns the company's chart ordered by code.
func (s *Service) List(ctx context.Context, companyID int64) ([]Account, error) {
	return s.repo.Lookup().List(ctx, companyID)
}

// ResolveAccount matches by id, then code, then exact name, then
// case-insensitive name.
func (s *Service) ResolveAccount(ctx context.Context, companyID int64, q ResolveQuery) (Resolution, error) {
	return Resolve(ctx, s.repo.Lookup(), companyID, q)
}

// IsLeaf reports whether the account has no children.
func (s *Service) IsLeaf(ctx context.Context, companyID, accountID int64) (bool, error) {
	hasChildren, err := s.repo.Lookup().HasChildren(ctx, companyID, accountID)
	if err != nil {
		return false, err
	}
	return !hasChildren, nil
}

// AutoCreateAccount creates (or fetches) an account with a type inferred from
// the code prefix. Reserved for bulk import.
func (s *Service) AutoCreateAccount(ctx context.Context, companyID int64, code, name string) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := AutoCreate(ctx, tx, companyID, code, name)
		if err != nil {
			return err
		}
		account = created
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.logger.Info("account auto-created", slog.Int64("company_id", companyID), slog.String("code", account.Code), slog.String("type", string(account.Type)))
	return account, nil
}

// SeedDefaults installs DefaultChart for the company; existing codes are kept.
func (s *Service) SeedDefaults(ctx context.Context, companyID int64) ([]Account, error) {
	if companyID <= 0 {
		return nil, common.ErrCompanyRequired
	}
	var seeded []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seeded = seeded[:0]
		for _, def := range DefaultChart {
			account, err := tx.Upsert(ctx, Account{
				CompanyID: companyID,
				Code:      def.Code,
				Name:      def.Name,
				Type:      InferType(def.Code),
				IsSystem:  true,
			})
			if err != nil {
				return fmt.Errorf("seed account %s: %w", def.Code, err)
			}
			seeded = append(seeded, account)
		}
		return nil
	})
	return seeded, err
}

// Resolve applies the resolution priority against store.
func Resolve(ctx context.Context, store TxRepository, companyID int64, q ResolveQuery) (Resolution, error) {
	none := Resolution{MatchedBy: MatchedByNone}
	if q.ID > 0 {
		account, err := store.FindByID(ctx, companyID, q.ID)
		if err == nil {
			return Resolution{Account: &account, MatchedBy: MatchedByID}, nil
		}
		if !errors.Is(err, shared.ErrAccountNotFound) {
			return none, err
		}
	}
	if code := NormalizeCode(q.Code); code != "" {
		account, err := store.FindByCode(ctx, companyID, code)
		if err == nil {
			return Resolution{Account: &account, MatchedBy: MatchedByCode}, nil
		}
		if !errors.Is(err, shared.ErrAccountNotFound) {
			return none, err
		}
	}
	name := common.CollapseSpaces(q.Name)
	if name == "" {
		return none, nil
	}
	account, err := store.FindByName(ctx, companyID, name)
	if err == nil {
		return Resolution{Account: &account, MatchedBy: MatchedByName}, nil
	}
	if !errors.Is(err, shared.ErrAccountNotFound) {
		return none, err
	}
	account, err = store.FindByNameFold(ctx, companyID, name)
	if err == nil {
		return Resolution{Account: &account, MatchedBy: MatchedByNameCI}, nil
	}
	if !errors.Is(err, shared.ErrAccountNotFound) {
		return none, err
	}
	return none, nil
}

// EnsurePostable loads the account and verifies it is active and a leaf.
func EnsurePostable(ctx context.Context, store TxRepository, companyID, accountID int64) (Account, error) {
	account, err := store.FindByID(ctx, companyID, accountID)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return Account{}, shared.ErrAccountInactiveOrMissing
		}
		return Account{}, err
	}
	if !account.IsActive {
		return account, shared.ErrAccountInactiveOrMissing
	}
	hasChildren, err := store.HasChildren(ctx, companyID, accountID)
	if err != nil {
		return account, err
	}
	if hasChildren {
		return account, shared.ErrAccountNotLeaf
	}
	return account, nil
}

// AutoCreate upserts an account keyed by (company, code).
func AutoCreate(ctx context.Context, store TxRepository, companyID int64, code, name string) (Account, error) {
	if companyID <= 0 {
		return Account{}, common.ErrCompanyRequired
	}
	code = NormalizeCode(code)
	if code == "" {
		return Account{}, errors.New("accounts: code required for auto-create")
	}
	name = common.CollapseSpaces(name)
	if name == "" {
		name = code
	}
	return store.Upsert(ctx, Account{
		CompanyID: companyID,
		Code:      code,
		Name:      name,
		Type:      InferType(code),
	})
}
