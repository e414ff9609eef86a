package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ticketkart/internal/domain/purchase"
)

const purchaseColumns = `id, user_id, name, company_name, street_address, apartment_address,
	town, phone, email, items, gifts, coupon_code, total, status, created_at, updated_at`

const createPurchaseSQL = `INSERT INTO purchases
	(id, user_id, name, company_name, street_address, apartment_address,
	 town, phone, email, items, gifts, coupon_code, total, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING created_at, updated_at`

const getPurchaseSQL = `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`

const listPurchasesSQL = `SELECT ` + purchaseColumns + ` FROM purchases
	WHERE user_id = $1 ORDER BY created_at DESC`

const updateDetailsSQL = `UPDATE purchases SET
	name = $2, company_name = $3, street_address = $4, apartment_address = $5,
	town = $6, phone = $7, email = $8, updated_at = now()
	WHERE id = $1 AND status = 'created'
	RETURNING ` + purchaseColumns

const markPendingSQL = `UPDATE purchases SET status = 'pending_payment', updated_at = now()
	WHERE id = $1 AND status IN ('created', 'pending_payment')`

// finalizeSQL is the compare-and-swap transition guard: only a purchase still
// awaiting payment can be finalized, so concurrent webhook and redirect
// deliveries serialize and exactly one performs the transition.
const finalizeSQL = `UPDATE purchases SET status = $2, updated_at = now()
	WHERE id = $1 AND status = 'pending_payment'
	RETURNING ` + purchaseColumns

const deletePurchaseSQL = `DELETE FROM purchases WHERE id = $1 AND status <> 'confirmed'`

var _ purchase.Repository = (*PurchaseRepository)(nil)

// PurchaseRepository implements purchase.Repository backed by PostgreSQL.
type PurchaseRepository struct {
	pool *pgxpool.Pool
}

// NewPurchaseRepository returns a PurchaseRepository that uses the given pool.
func NewPurchaseRepository(pool *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{pool: pool}
}

// Create persists a new purchase. Line items and gifts are serialized to
// JSON for storage in JSONB columns.
func (r *PurchaseRepository) Create(ctx context.Context, p *purchase.Purchase) error {
	itemsJSON, err := json.Marshal(p.Items)
	if err != nil {
		return fmt.Errorf("marshaling purchase items: %w", err)
	}
	giftsJSON, err := json.Marshal(p.Gifts)
	if err != nil {
		return fmt.Errorf("marshaling purchase gifts: %w", err)
	}

	err = r.pool.QueryRow(ctx, createPurchaseSQL,
		p.ID, p.UserID, p.Name, p.CompanyName, p.StreetAddress, p.ApartmentAddress,
		p.Town, p.Phone, p.Email, itemsJSON, giftsJSON, p.CouponCode, p.Total, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating purchase %q: %w", p.ID, err)
	}
	return nil
}

// GetByID fetches a single purchase.
func (r *PurchaseRepository) GetByID(ctx context.Context, id string) (*purchase.Purchase, error) {
	p, err := scanPurchase(r.pool.QueryRow(ctx, getPurchaseSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, purchase.ErrNotFound
		}
		return nil, fmt.Errorf("getting purchase %q: %w", id, err)
	}
	return p, nil
}

// ListByOwner returns all purchases for a user, newest first.
func (r *PurchaseRepository) ListByOwner(ctx context.Context, userID string) ([]purchase.Purchase, error) {
	rows, err := r.pool.Query(ctx, listPurchasesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing purchases for %q: %w", userID, err)
	}
	defer rows.Close()

	var out []purchase.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning purchase: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing purchases for %q: %w", userID, err)
	}
	return out, nil
}

// UpdateDetails overwrites the buyer fields while the purchase is still in
// the created state.
func (r *PurchaseRepository) UpdateDetails(ctx context.Context, id string, d purchase.Details) (*purchase.Purchase, error) {
	p, err := scanPurchase(r.pool.QueryRow(ctx, updateDetailsSQL,
		id, d.Name, d.CompanyName, d.StreetAddress, d.ApartmentAddress,
		d.Town, d.Phone, d.Email,
	))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating purchase %q: %w", id, err)
	}

	// No row matched: either the purchase is gone or it left created.
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, purchase.ErrAlreadyFinalized
}

// MarkPendingPayment moves created → pending_payment. Re-marking a purchase
// already pending is a no-op success so checkout can be retried.
func (r *PurchaseRepository) MarkPendingPayment(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, markPendingSQL, id)
	if err != nil {
		return fmt.Errorf("marking purchase %q pending: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return purchase.ErrAlreadyFinalized
}

// Finalize conditionally moves pending_payment → to. When the conditional
// update matches no row, the current state decides the result: an already
// terminal purchase is an idempotent no-op, a still-created one is rejected.
func (r *PurchaseRepository) Finalize(ctx context.Context, id string, to purchase.Status) (*purchase.Purchase, bool, error) {
	p, err := scanPurchase(r.pool.QueryRow(ctx, finalizeSQL, id, to))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("finalizing purchase %q: %w", id, err)
	}

	p, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if p.Status.IsTerminal() {
		return p, false, nil
	}
	return nil, false, purchase.ErrNotPending
}

// Delete removes a purchase unless it is confirmed.
func (r *PurchaseRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deletePurchaseSQL, id)
	if err != nil {
		return fmt.Errorf("deleting purchase %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return purchase.ErrDeleteConfirmed
}

// scanPurchase reads one purchase row, decoding the JSONB item columns.
func scanPurchase(row pgx.Row) (*purchase.Purchase, error) {
	var (
		p         purchase.Purchase
		itemsJSON []byte
		giftsJSON []byte
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.CompanyName, &p.StreetAddress, &p.ApartmentAddress,
		&p.Town, &p.Phone, &p.Email, &itemsJSON, &giftsJSON, &p.CouponCode,
		&p.Total, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &p.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling purchase items: %w", err)
	}
	if err := json.Unmarshal(giftsJSON, &p.Gifts); err != nil {
		return nil, fmt.Errorf("unmarshaling purchase gifts: %w", err)
	}
	return &p, nil
}
