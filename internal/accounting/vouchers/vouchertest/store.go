// Package vouchertest provides an in-memory voucher store for tests of
// packages that post through the voucher ledger.
package vouchertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/mappings"
	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	"github.com/odyssey-erp/sitebooks/internal/inventory"
	"github.com/odyssey-erp/sitebooks/internal/procurement"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

// Store keeps accounts, mappings, purchases and vouchers in memory. WithTx
// works on a copy and publishes it only when fn succeeds.
type Store struct {
	mu    sync.Mutex
	state *state
	// Stock is handed out by TxRepository.Stock.
	Stock inventory.TxRepository
	// FailOn makes the named operation return an error inside a transaction.
	FailOn string
}

type state struct {
	accounts    map[int64]accounts.Account
	mappings    map[string]mappings.AccountMapping
	purchases   map[int64]procurement.Purchase
	vouchers    map[int64]vouchers.Voucher
	sequences   map[string]int64
	transitions []common.TransitionLog
	nextID      int64
}

// New returns an empty store.
func New() *Store {
	return &Store{state: &state{
		accounts:  map[int64]accounts.Account{},
		mappings:  map[string]mappings.AccountMapping{},
		purchases: map[int64]procurement.Purchase{},
		vouchers:  map[int64]vouchers.Voucher{},
		sequences: map[string]int64{},
		nextID:    100,
	}}
}

func (s *state) clone() *state {
	c := &state{
		accounts:    make(map[int64]accounts.Account, len(s.accounts)),
		mappings:    make(map[string]mappings.AccountMapping, len(s.mappings)),
		purchases:   make(map[int64]procurement.Purchase, len(s.purchases)),
		vouchers:    make(map[int64]vouchers.Voucher, len(s.vouchers)),
		sequences:   make(map[string]int64, len(s.sequences)),
		transitions: append([]common.TransitionLog(nil), s.transitions...),
		nextID:      s.nextID,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.mappings {
		c.mappings[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	for k, v := range s.vouchers {
		c.vouchers[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// WithTx runs fn against a snapshot and commits it when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, vouchers.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &txStore{store: s, st: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

// Lookup reads committed state.
func (s *Store) Lookup() vouchers.TxRepository {
	return &txStore{store: s, st: s.state}
}

// AddAccount stores a leaf account and returns it with its id.
func (s *Store) AddAccount(companyID int64, code, name string) accounts.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := accounts.Account{
		ID:        s.state.id(),
		CompanyID: companyID,
		Code:      code,
		Name:      name,
		Type:      accounts.InferType(code),
		IsActive:  true,
	}
	s.state.accounts[a.ID] = a
	return a
}

// UpdateAccount replaces a stored account.
func (s *Store) UpdateAccount(a accounts.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.accounts[a.ID] = a
}

// SeedDefaultChart adds the default chart for companyID.
func (s *Store) SeedDefaultChart(companyID int64) map[string]accounts.Account {
	out := make(map[string]accounts.Account, len(accounts.DefaultChart))
	for _, def := range accounts.DefaultChart {
		out[def.Code] = s.AddAccount(companyID, def.Code, def.Name)
	}
	return out
}

// AddPurchase stores p, assigning ids when missing.
func (s *Store) AddPurchase(p procurement.Purchase) procurement.Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.state.id()
	}
	for i := range p.Lines {
		if p.Lines[i].ID == 0 {
			p.Lines[i].ID = s.state.id()
		}
		p.Lines[i].PurchaseID = p.ID
	}
	s.state.purchases[p.ID] = p
	return p
}

// Vouchers returns committed vouchers ordered by id.
func (s *Store) Vouchers() []vouchers.Voucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vouchers.Voucher, 0, len(s.state.vouchers))
	for _, v := range s.state.vouchers {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Accounts returns committed accounts of a company ordered by code.
func (s *Store) Accounts(companyID int64) []accounts.Account {
	list, _ := s.Lookup().Accounts().List(context.Background(), companyID)
	return list
}

type txStore struct {
	store *Store
	st    *state
}

func (t *txStore) fail(op string) error {
	if t.store.FailOn == op {
		return fmt.Errorf("vouchertest: %s failed", op)
	}
	return nil
}

func (t *txStore) Accounts() accounts.TxRepository     { return accountStore{t} }
func (t *txStore) Mappings() mappings.TxRepository     { return mappingStore{t} }
func (t *txStore) Purchases() procurement.TxRepository { return purchaseStore{t} }
func (t *txStore) Stock() inventory.TxRepository       { return t.store.Stock }

func (t *txStore) RecordTransition(ctx context.Context, log common.TransitionLog) error {
	t.st.transitions = append(t.st.transitions, log)
	return nil
}

func (t *txStore) ListTransitions(ctx context.Context, voucherID int64) ([]common.TransitionLog, error) {
	var out []common.TransitionLog
	for _, l := range t.st.transitions {
		if l.Module == "voucher" && l.RefID == voucherID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (t *txStore) NextSequence(ctx context.Context, companyID int64, year int) (int64, error) {
	key := fmt.Sprintf("%d/%d", companyID, year)
	if _, ok := t.st.sequences[key]; !ok {
		var max int64
		for _, v := range t.st.vouchers {
			if y, seq, ok := vouchers.ParseVoucherNo(v.VoucherNo); ok && v.CompanyID == companyID && y == year && seq > max {
				max = seq
			}
		}
		t.st.sequences[key] = max
	}
	t.st.sequences[key]++
	return t.st.sequences[key], nil
}

func (t *txStore) InsertVoucher(ctx context.Context, v vouchers.Voucher) (vouchers.Voucher, error) {
	if err := t.fail("InsertVoucher"); err != nil {
		return vouchers.Voucher{}, err
	}
	for _, other := range t.st.vouchers {
		if other.CompanyID == v.CompanyID && other.VoucherNo == v.VoucherNo {
			return vouchers.Voucher{}, fmt.Errorf("vouchertest: duplicate voucher number %s", v.VoucherNo)
		}
		if v.PurchaseID != nil && v.ReversalOf == nil && other.PurchaseID != nil && other.ReversalOf == nil &&
			other.CompanyID == v.CompanyID && *other.PurchaseID == *v.PurchaseID {
			return vouchers.Voucher{}, fmt.Errorf("vouchertest: purchase %d already has a voucher", *v.PurchaseID)
		}
	}
	v.ID = t.st.id()
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	v.Lines = nil
	t.st.vouchers[v.ID] = v
	return v, nil
}

func (t *txStore) InsertLines(ctx context.Context, v vouchers.Voucher, lines []vouchers.LineInput) ([]vouchers.Line, error) {
	stored, ok := t.st.vouchers[v.ID]
	if !ok {
		return nil, shared.ErrVoucherNotFound
	}
	out := make([]vouchers.Line, 0, len(lines))
	for i, in := range lines {
		out = append(out, vouchers.Line{
			ID:              t.st.id(),
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
		})
	}
	stored.Lines = append(stored.Lines, out...)
	t.st.vouchers[v.ID] = stored
	return out, nil
}

func (t *txStore) UpdateHeader(ctx context.Context, v vouchers.Voucher) error {
	stored, ok := t.st.vouchers[v.ID]
	if !ok || stored.CompanyID != v.CompanyID {
		return shared.ErrVoucherNotFound
	}
	stored.Date, stored.Type, stored.ProjectID, stored.Narration = v.Date, v.Type, v.ProjectID, v.Narration
	t.st.vouchers[v.ID] = stored
	return nil
}

func (t *txStore) DeleteLines(ctx context.Context, companyID, voucherID int64) error {
	stored, ok := t.st.vouchers[voucherID]
	if ok && stored.CompanyID == companyID {
		stored.Lines = nil
		t.st.vouchers[voucherID] = stored
	}
	return nil
}

func (t *txStore) DeleteVoucher(ctx context.Context, companyID, voucherID int64) error {
	stored, ok := t.st.vouchers[voucherID]
	if !ok || stored.CompanyID != companyID || stored.Status != vouchers.StatusDraft {
		return shared.ErrNotEditable
	}
	delete(t.st.vouchers, voucherID)
	return nil
}

func (t *txStore) GetVoucher(ctx context.Context, companyID, voucherID int64, forUpdate bool) (vouchers.Voucher, error) {
	v, ok := t.st.vouchers[voucherID]
	if !ok || v.CompanyID != companyID {
		return vouchers.Voucher{}, shared.ErrVoucherNotFound
	}
	v.Lines = append([]vouchers.Line(nil), v.Lines...)
	return v, nil
}

func (t *txStore) FindByPurchase(ctx context.Context, companyID, purchaseID int64) (vouchers.Voucher, error) {
	for _, v := range t.st.vouchers {
		if v.CompanyID == companyID && v.PurchaseID != nil && *v.PurchaseID == purchaseID && v.ReversalOf == nil {
			v.Lines = append([]vouchers.Line(nil), v.Lines...)
			return v, nil
		}
	}
	return vouchers.Voucher{}, shared.ErrVoucherNotFound
}

func (t *txStore) UpdateStatus(ctx context.Context, companyID, voucherID int64, status vouchers.Status, postedAt *time.Time) error {
	if err := t.fail("UpdateStatus"); err != nil {
		return err
	}
	v, ok := t.st.vouchers[voucherID]
	if !ok || v.CompanyID != companyID {
		return shared.ErrVoucherNotFound
	}
	v.Status = status
	if postedAt != nil {
		v.PostedAt = postedAt
	}
	t.st.vouchers[voucherID] = v
	return nil
}

func (t *txStore) List(ctx context.Context, f vouchers.ListFilter) ([]vouchers.Voucher, error) {
	var out []vouchers.Voucher
	for _, v := range t.st.vouchers {
		if v.CompanyID != f.CompanyID || (f.Status != "" && v.Status != f.Status) {
			continue
		}
		if f.PurchaseID != 0 && (v.PurchaseID == nil || *v.PurchaseID != f.PurchaseID) {
			continue
		}
		if f.ProjectID != 0 && (v.ProjectID == nil || *v.ProjectID != f.ProjectID) {
			continue
		}
		if (!f.From.IsZero() && v.Date.Before(f.From)) || (!f.To.IsZero() && v.Date.After(f.To)) {
			continue
		}
		v.Lines = nil
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].VoucherNo > out[j].VoucherNo
	})
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type accountStore struct{ t *txStore }

func (a accountStore) find(match func(accounts.Account) bool) (accounts.Account, error) {
	var found []accounts.Account
	for _, acc := range a.t.st.accounts {
		if match(acc) {
			found = append(found, acc)
		}
	}
	if len(found) == 0 {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found[0], nil
}

func (a accountStore) FindByID(ctx context.Context, companyID, id int64) (accounts.Account, error) {
	return a.find(func(acc accounts.Account) bool { return acc.CompanyID == companyID && acc.ID == id })
}

func (a accountStore) FindByCode(ctx context.Context, companyID int64, code string) (accounts.Account, error) {
	return a.find(func(acc accounts.Account) bool { return acc.CompanyID == companyID && acc.Code == code })
}

func (a accountStore) FindByName(ctx context.Context, companyID int64, name string) (accounts.Account, error) {
	return a.find(func(acc accounts.Account) bool { return acc.CompanyID == companyID && acc.Name == name })
}

func (a accountStore) FindByNameFold(ctx context.Context, companyID int64, name string) (accounts.Account, error) {
	return a.find(func(acc accounts.Account) bool {
		return acc.CompanyID == companyID && strings.EqualFold(acc.Name, name)
	})
}

func (a accountStore) HasChildren(ctx context.Context, companyID, id int64) (bool, error) {
	for _, acc := range a.t.st.accounts {
		if acc.CompanyID == companyID && acc.ParentID != nil && *acc.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (a accountStore) Upsert(ctx context.Context, account accounts.Account) (accounts.Account, error) {
	if existing, err := a.FindByCode(ctx, account.CompanyID, account.Code); err == nil {
		return existing, nil
	}
	account.ID = a.t.st.id()
	account.IsActive = true
	a.t.st.accounts[account.ID] = account
	return account, nil
}

func (a accountStore) List(ctx context.Context, companyID int64) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, acc := range a.t.st.accounts {
		if acc.CompanyID == companyID {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type mappingStore struct{ t *txStore }

func mappingKey(companyID int64, purpose mappings.Purpose) string {
	return fmt.Sprintf("%d/%s", companyID, purpose)
}

func (m mappingStore) Get(ctx context.Context, companyID int64, purpose mappings.Purpose) (mappings.AccountMapping, error) {
	row, ok := m.t.st.mappings[mappingKey(companyID, purpose)]
	if !ok {
		return mappings.AccountMapping{}, shared.ErrMappingNotFound
	}
	return row, nil
}

func (m mappingStore) Set(ctx context.Context, mapping mappings.AccountMapping) (mappings.AccountMapping, error) {
	m.t.st.mappings[mappingKey(mapping.CompanyID, mapping.Purpose)] = mapping
	return mapping, nil
}

func (m mappingStore) List(ctx context.Context, companyID int64) ([]mappings.AccountMapping, error) {
	var out []mappings.AccountMapping
	for _, row := range m.t.st.mappings {
		if row.CompanyID == companyID {
			out = append(out, row)
		}
	}
	return out, nil
}

type purchaseStore struct{ t *txStore }

func (p purchaseStore) GetPurchase(ctx context.Context, companyID, purchaseID int64) (procurement.Purchase, error) {
	row, ok := p.t.st.purchases[purchaseID]
	if !ok || row.CompanyID != companyID {
		return procurement.Purchase{}, procurement.ErrNotFound
	}
	return row, nil
}

func (p purchaseStore) CreatePurchase(ctx context.Context, purchase procurement.Purchase) (procurement.Purchase, error) {
	purchase.ID = p.t.st.id()
	p.t.st.purchases[purchase.ID] = purchase
	return purchase, nil
}

func (p purchaseStore) ListByVendor(ctx context.Context, companyID, vendorID int64, asOf time.Time) ([]procurement.Purchase, error) {
	return p.list(func(row procurement.Purchase) bool {
		return row.CompanyID == companyID && row.VendorID == vendorID && !row.InvoiceDate.After(asOf)
	}), nil
}

func (p purchaseStore) ListByProject(ctx context.Context, companyID, projectID int64, from, to time.Time) ([]procurement.Purchase, error) {
	return p.list(func(row procurement.Purchase) bool {
		if row.CompanyID != companyID || row.ProjectID == nil || *row.ProjectID != projectID {
			return false
		}
		return (from.IsZero() || !row.InvoiceDate.Before(from)) && (to.IsZero() || !row.InvoiceDate.After(to))
	}), nil
}

func (p purchaseStore) list(match func(procurement.Purchase) bool) []procurement.Purchase {
	var out []procurement.Purchase
	for _, row := range p.t.st.purchases {
		if match(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
