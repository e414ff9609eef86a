package ticket

import (
	"context"

	"github.com/shopspring/decimal"
)

// Ticket represents a catalog item available for purchase.
type Ticket struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
}

// Repository resolves catalog entries for purchased line items. Missing ids
// are simply absent from the result; callers decide whether that matters.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Ticket, error)
}
