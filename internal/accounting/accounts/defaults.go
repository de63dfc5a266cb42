package accounts

// DefaultAccount is one entry of the starter chart installed per company.
type DefaultAccount struct {
	Code string
	Name string
}

// DefaultChart is the starter construction chart of accounts. Types follow the
// code prefix policy.
var DefaultChart = []DefaultAccount{
	{Code: "1010", Name: "Cash"},
	{Code: "1020", Name: "Bank"},
	{Code: "1300", Name: "Inventory - Materials"},
	{Code: "2010", Name: "Accounts Payable"},
	{Code: "3010", Name: "Owner Equity"},
	{Code: "4010", Name: "Contract Revenue"},
	{Code: "5010", Name: "Materials Expense"},
	{Code: "5020", Name: "Labor"},
	{Code: "5030", Name: "Site Overhead"},
	{Code: "6010", Name: "Miscellaneous Expense"},
}
