package purchase

import "github.com/go-faster/errors"

// Sentinel errors for the purchase lifecycle. The HTTP layer maps these to
// status codes in exactly one place; nothing else inspects error strings.
var (
	// ErrNotFound is returned when a purchase id is unknown.
	ErrNotFound = errors.New("purchase not found")
	// ErrEmptyItems is returned when a purchase carries no line items.
	ErrEmptyItems = errors.New("at least one line item is required")
	// ErrZeroTotal is returned when checkout is attempted on a zero total.
	ErrZeroTotal = errors.New("total must be greater than zero")
	// ErrTotalMismatch is returned when the declared total disagrees with the
	// sum of line items.
	ErrTotalMismatch = errors.New("declared total does not match line items")
	// ErrAlreadyFinalized is returned when a mutation targets a purchase that
	// has already left the state the mutation requires.
	ErrAlreadyFinalized = errors.New("purchase already finalized")
	// ErrDeleteConfirmed is returned when deletion targets a confirmed purchase.
	ErrDeleteConfirmed = errors.New("confirmed purchase cannot be deleted")
	// ErrMissingFields is returned when a gateway notification lacks the
	// transaction id or status.
	ErrMissingFields = errors.New("transaction id and status are required")
)
