package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ticketkart/internal/domain/ticket"
)

const getTicketsByIDsSQL = `SELECT id, name, description, price FROM tickets WHERE id = ANY($1)`

var _ ticket.Repository = (*TicketRepository)(nil)

// TicketRepository implements ticket.Repository backed by PostgreSQL.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository returns a TicketRepository that uses the given pool.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

// GetByIDs returns tickets matching any of the given IDs.
func (r *TicketRepository) GetByIDs(ctx context.Context, ids []string) ([]ticket.Ticket, error) {
	rows, err := r.pool.Query(ctx, getTicketsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get tickets by ids")
	}
	return pgx.CollectRows(rows, scanTicket)
}

func scanTicket(row pgx.CollectableRow) (ticket.Ticket, error) {
	var t ticket.Ticket
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Price)
	return t, err
}
