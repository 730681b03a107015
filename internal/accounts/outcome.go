package accounts

import (
	"errors"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
)

var (
	// ErrNotFound is returned when no account matches a lookup.
	ErrNotFound = errors.New("account not found")
	// ErrConflict means the account moved past the cursor a derivation was
	// based on. Callers re-read and re-derive.
	ErrConflict = errors.New("account changed concurrently")
)

// Status is the coarse result of handling one event.
type Status string

const (
	StatusApplied Status = "applied"
	StatusSkipped Status = "skipped"
)

// SkipReason explains a skipped event.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipDuplicate      SkipReason = "duplicate"
	SkipOutOfOrder     SkipReason = "out_of_order"
	SkipUnknownAccount SkipReason = "unknown_account"
	SkipUnhandled      SkipReason = "unhandled"
)

// Outcome is what the gateway did with an event.
type Outcome struct {
	Status  Status
	Reason  SkipReason
	Changed bool
	Account *models.Account
}

// Label is the value used in audit rows and metrics.
func (o Outcome) Label() string {
	if o.Status == StatusSkipped {
		return string(o.Reason)
	}
	if !o.Changed {
		return "noop"
	}
	return string(StatusApplied)
}

// Applied builds an applied outcome.
func Applied(account models.Account, changed bool) Outcome {
	return Outcome{Status: StatusApplied, Changed: changed, Account: &account}
}

// Skipped builds a skipped outcome.
func Skipped(reason SkipReason) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}
