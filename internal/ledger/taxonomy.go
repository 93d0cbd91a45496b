package ledger

// GroupAccountReceivable hosts the mirror accounts created for special
// groups.
const GroupAccountReceivable = "Account Receivable"

// ReceivableSuffix is appended to an account name to form its mirror.
const ReceivableSuffix = " Receivable"

// DefaultGroups is the closed taxonomy created for every society at
// bootstrap. No user-facing operation adds to it.
var DefaultGroups = []string{
	"Bank Accounts",
	"Cash in Hand",
	GroupAccountReceivable,
	"Current Liabilities",
	"Reserve and Surplus",
	"Sundry Creditors",
	"Deposits",
	"Direct Income",
	"Indirect Income",
	"Direct Expenses",
	"Indirect Expenses",
	"Maintenance & Repairing",
}

// SpecialGroups are the groups whose accounts get a mirror account under
// Account Receivable when created interactively.
var SpecialGroups = map[string]bool{
	"Current Liabilities": true,
	"Reserve and Surplus": true,
	"Sundry Creditors":    true,
	"Deposits":            true,
}

// IncomeGroups classify accounts as income in reports.
var IncomeGroups = []string{"Direct Income", "Indirect Income"}

// ExpenditureGroups classify accounts as expenditure in reports.
var ExpenditureGroups = []string{"Direct Expenses", "Indirect Expenses", "Maintenance & Repairing"}

// SeedAccounts are created with zero opening balances at bootstrap, one set
// per predefined group.
var SeedAccounts = map[string][]string{
	"Bank Accounts":           {"Society Bank Account"},
	"Cash in Hand":            {"Cash"},
	"Direct Income":           {"Maintenance Charges", "Late Payment Charges"},
	"Indirect Income":         {"Bank Interest"},
	"Direct Expenses":         {"Security Charges", "Housekeeping Charges"},
	"Indirect Expenses":       {"Bank Charges"},
	"Maintenance & Repairing": {"Building Maintenance"},
}

// IsIncomeGroup reports whether the group counts toward income.
func IsIncomeGroup(name string) bool {
	for _, g := range IncomeGroups {
		if g == name {
			return true
		}
	}
	return false
}

// IsExpenditureGroup reports whether the group counts toward expenditure.
func IsExpenditureGroup(name string) bool {
	for _, g := range ExpenditureGroups {
		if g == name {
			return true
		}
	}
	return false
}
