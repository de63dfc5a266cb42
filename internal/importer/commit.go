package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

// Commit creates one DRAFT voucher per validated group, atomically. A batch id
// is accepted once; a failed commit releases it for retry. Replaying a
// committed batch returns ErrBatchCommitted together with the original
// result when it is known.
func (s *Service) Commit(ctx context.Context, input CommitInput) (CommitResult, error) {
	if input.CompanyID <= 0 {
		return CommitResult{}, common.ErrCompanyRequired
	}
	if input.Result.CompanyID != 0 && input.Result.CompanyID != input.CompanyID {
		return CommitResult{}, errors.New("importer: validation result belongs to another company")
	}
	if len(input.Result.Groups) == 0 {
		return CommitResult{}, ErrEmptyImport
	}
	if input.Result.HasBlocking() {
		return CommitResult{}, ErrBlockingIssues
	}
	for _, g := range input.Result.Groups {
		if g.Blocking() {
			return CommitResult{}, ErrBlockingIssues
		}
	}
	if input.BatchID == uuid.Nil {
		input.BatchID = uuid.New()
	}
	key := input.BatchID.String()

	if s.idem != nil {
		if err := s.idem.Claim(ctx, idempotencyModule, key); err != nil {
			if errors.Is(err, common.ErrIdempotencyConflict) {
				var previous CommitResult
				if _, lookupErr := s.idem.Result(ctx, idempotencyModule, key, &previous); lookupErr != nil {
					s.logger.Warn("load committed import batch", slog.String("batch_id", key), slog.Any("error", lookupErr))
				}
				return previous, ErrBatchCommitted
			}
			return CommitResult{}, err
		}
	}

	result := CommitResult{BatchID: input.BatchID}
	err := s.ledger.Repository().WithTx(ctx, func(ctx context.Context, tx vouchers.TxRepository) error {
		result.Vouchers = result.Vouchers[:0]
		result.VoucherNos = result.VoucherNos[:0]
		result.AccountsCreated = result.AccountsCreated[:0]
		created := make(map[string]int64)

		for _, g := range input.Result.Groups {
			lines := make([]vouchers.LineInput, 0, len(g.Rows))
			for _, vr := range g.Rows {
				id, newCode, err := s.accountFor(ctx, tx.Accounts(), input, vr, created)
				if err != nil {
					return fmt.Errorf("group %s line %d: %w", g.Key, vr.Row.Line, err)
				}
				if newCode != "" {
					result.AccountsCreated = append(result.AccountsCreated, newCode)
				}
				lines = append(lines, vouchers.LineInput{
					AccountID:   id,
					Debit:       vr.Debit,
					Credit:      vr.Credit,
					Description: vr.Row.Description,
				})
			}
			v, err := s.ledger.CreateVoucherTx(ctx, tx, vouchers.CreateInput{
				Draft: vouchers.Draft{
					CompanyID: input.CompanyID,
					Date:      g.Date,
					Type:      g.Type,
					Narration: g.Narration,
					SourceRef: fmt.Sprintf("import:%s:%s", key, g.Key),
					Lines:     lines,
				},
				ActorID: input.ActorID,
			})
			if err != nil {
				return fmt.Errorf("group %s: %w", g.Key, err)
			}
			result.Vouchers = append(result.Vouchers, v)
			result.VoucherNos = append(result.VoucherNos, v.VoucherNo)
		}
		return nil
	})
	if err != nil {
		if s.idem != nil {
			if delErr := s.idem.Release(ctx, idempotencyModule, key); delErr != nil {
				s.logger.Warn("release import batch", slog.String("batch_id", key), slog.Any("error", delErr))
			}
		}
		return CommitResult{}, err
	}

	if s.idem != nil {
		if err := s.idem.Complete(ctx, idempotencyModule, key, result); err != nil {
			s.logger.Warn("record import batch result", slog.String("batch_id", key), slog.Any("error", err))
		}
	}

	s.logger.Info("import committed",
		slog.Int64("company_id", input.CompanyID),
		slog.String("batch_id", key),
		slog.Int("vouchers", len(result.Vouchers)),
		slog.Int("accounts_created", len(result.AccountsCreated)))
	return result, nil
}

// accountFor returns the account id for a row. Rows unresolved at preview are
// resolved again inside the transaction, then auto-created when allowed.
func (s *Service) accountFor(ctx context.Context, store accounts.TxRepository, input CommitInput, vr ValidatedRow, created map[string]int64) (int64, string, error) {
	if vr.Resolution.Found() {
		return vr.Resolution.Account.ID, "", nil
	}
	q := queryFor(vr.Row)
	if q.Code != "" {
		if id, ok := created[q.Code]; ok {
			return id, "", nil
		}
	}
	if !q.Empty() {
		res, err := accounts.Resolve(ctx, store, input.CompanyID, q)
		if err != nil {
			return 0, "", err
		}
		if res.Found() {
			return res.Account.ID, "", nil
		}
	}
	if !input.AutoCreateAccounts || q.Code == "" {
		return 0, "", fmt.Errorf("%w: %s", ErrUnresolvedAccount, describe(vr.Row))
	}
	account, err := accounts.AutoCreate(ctx, store, input.CompanyID, q.Code, q.Name)
	if err != nil {
		return 0, "", err
	}
	created[q.Code] = account.ID
	return account.ID, account.Code, nil
}
