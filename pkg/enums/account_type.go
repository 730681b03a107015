package enums

// AccountType is the coarse access classification derived from billing state.
type AccountType string

const (
	AccountTypeDemo    AccountType = "demo"
	AccountTypeTrial   AccountType = "trial"
	AccountTypePaid    AccountType = "paid"
	AccountTypePastDue AccountType = "past_due"
)

var validAccountTypes = []AccountType{
	AccountTypeDemo,
	AccountTypeTrial,
	AccountTypePaid,
	AccountTypePastDue,
}

// String implements fmt.Stringer.
func (a AccountType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AccountType.
func (a AccountType) IsValid() bool {
	return member(validAccountTypes, a)
}

// ParseAccountType converts raw input into an AccountType.
func ParseAccountType(value string) (AccountType, error) {
	return parse("account type", validAccountTypes, value)
}
