package purchase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a purchase. Transitions are monotonic:
//
//	created → pending_payment → {confirmed | cancelled}
//
// No other edge is reachable, and terminal states never change.
type Status string

const (
	StatusCreated        Status = "created"
	StatusPendingPayment Status = "pending_payment"
	StatusConfirmed      Status = "confirmed"
	StatusCancelled      Status = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// LineItem is a single ticket position in a purchase.
type LineItem struct {
	TicketID  string          `json:"ticket_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// GiftItem is a complimentary position attached to a purchase. It has the
// same shape as a LineItem but does not participate in the total.
type GiftItem struct {
	TicketID  string          `json:"ticket_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Purchase is the central entity: a cart tracked from creation through
// payment settlement. Its ID doubles as the gateway transaction id for the
// whole lifetime of the transaction.
type Purchase struct {
	ID               string
	UserID           string
	Name             string
	CompanyName      string
	StreetAddress    string
	ApartmentAddress string
	Town             string
	Phone            string
	Email            string
	Items            []LineItem
	Gifts            []GiftItem
	CouponCode       string
	Total            decimal.Decimal
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Details are the buyer-editable fields of a purchase, updatable only while
// the purchase is still in the created state.
type Details struct {
	Name             string
	CompanyName      string
	StreetAddress    string
	ApartmentAddress string
	Town             string
	Phone            string
	Email            string
}

// Repository defines persistence operations for purchases. Implementations
// must make the state-changing operations per-record atomic: MarkPendingPayment
// and Finalize are conditional updates guarded on the current status, so
// concurrent transition attempts for the same purchase serialize and only one
// reaches the terminal state.
type Repository interface {
	Create(ctx context.Context, p *Purchase) error
	GetByID(ctx context.Context, id string) (*Purchase, error)
	ListByOwner(ctx context.Context, userID string) ([]Purchase, error)

	// UpdateDetails overwrites the buyer fields while status is created.
	// Returns ErrAlreadyFinalized when the purchase has left created.
	UpdateDetails(ctx context.Context, id string, d Details) (*Purchase, error)

	// MarkPendingPayment moves created → pending_payment. Calling it again on
	// a purchase already in pending_payment is a no-op success, so a retried
	// checkout can re-issue a payment request.
	MarkPendingPayment(ctx context.Context, id string) error

	// Finalize conditionally moves pending_payment → to. It returns the
	// purchase as stored and whether this call performed the transition.
	// When the purchase is already terminal it returns (purchase, false, nil).
	Finalize(ctx context.Context, id string, to Status) (*Purchase, bool, error)

	// Delete removes a purchase. Confirmed purchases are never deleted;
	// attempting to returns ErrDeleteConfirmed.
	Delete(ctx context.Context, id string) error
}

// ValidationError reports a user-correctable problem with a request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	TicketID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for ticket %s", e.TicketID)
}
