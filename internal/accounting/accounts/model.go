package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether balances of this type grow with debits.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Account models a chart of accounts node.
type Account struct {
	ID        int64
	CompanyID int64
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	IsSystem  bool
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatchedBy tells which rule resolved an account.
type MatchedBy string

const (
	MatchedByID     MatchedBy = "id"
	MatchedByCode   MatchedBy = "code"
	MatchedByName   MatchedBy = "name"
	MatchedByNameCI MatchedBy = "name_ci"
	MatchedByNone   MatchedBy = "none"
)

// ResolveQuery carries the raw identifiers a caller has for an account.
type ResolveQuery struct {
	ID   int64
	Code string
	Name string
}

// Empty reports whether the query has nothing to match on.
func (q ResolveQuery) Empty() bool {
	return q.ID == 0 && q.Code == "" && q.Name == ""
}

// Resolution is the outcome of ResolveAccount. Account is nil when MatchedBy is none.
type Resolution struct {
	Account   *Account
	MatchedBy MatchedBy
}

// Found reports whether an account matched.
func (r Resolution) Found() bool {
	return r.Account != nil && r.MatchedBy != MatchedByNone
}
