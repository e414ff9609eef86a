package purchase

import (
	"context"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/ticketkart/internal/domain/ticket"
	"github.com/xenking/ticketkart/internal/payu"
)

// ErrNotPending is returned when a gateway notification arrives for a
// purchase that never entered pending_payment. There is no defined edge out
// of created except checkout, so such a notification is rejected.
var ErrNotPending = errors.New("purchase is not awaiting payment")

// ConfirmationItem is one resolved line of the order-confirmation message.
type ConfirmationItem struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
	Gift     bool
}

// Notifier delivers the order confirmation to the buyer. Sends are
// fire-and-forget from the lifecycle's perspective: a failure is logged and
// never fails the transition that triggered it.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, email string, items []ConfirmationItem, orderID string) error
}

// CallbackURLs are this service's own endpoints the gateway reports back to.
type CallbackURLs struct {
	Success string
	Failure string
}

// CreateRequest holds the input for creating a purchase.
type CreateRequest struct {
	UserID     string
	Details    Details
	Items      []LineItem
	Gifts      []GiftItem
	CouponCode string
	// Total is the client-declared total. It must match the line-item sum;
	// zero means "not declared" and the computed sum is used.
	Total decimal.Decimal
}

// Service owns the purchase state machine: creation, payment-request
// construction, and finalization on verified gateway outcomes.
type Service struct {
	purchases Repository
	tickets   ticket.Repository
	notifier  Notifier
	gateway   payu.Config
	callbacks CallbackURLs
	lg        *zap.Logger

	// notifications tracks detached confirmation sends so shutdown can drain
	// them instead of killing them mid-flight.
	notifications sync.WaitGroup
}

// NewService creates a purchase Service with the required dependencies.
func NewService(
	purchases Repository,
	tickets ticket.Repository,
	notifier Notifier,
	gateway payu.Config,
	callbacks CallbackURLs,
	lg *zap.Logger,
) *Service {
	return &Service{
		purchases: purchases,
		tickets:   tickets,
		notifier:  notifier,
		gateway:   gateway,
		callbacks: callbacks,
		lg:        lg,
	}
}

// Create validates the request, recomputes the total from line items, and
// persists a new purchase in the created state.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Purchase, error) {
	if req.Details.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if req.Details.Email == "" {
		return nil, &ValidationError{Field: "email", Reason: "required"}
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	total := decimal.Zero
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, &InvalidQuantityError{TicketID: item.TicketID}
		}
		if item.UnitPrice.IsNegative() {
			return nil, &ValidationError{Field: "items", Reason: "unit price must not be negative"}
		}
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	for _, gift := range req.Gifts {
		if gift.Quantity < 1 {
			return nil, &InvalidQuantityError{TicketID: gift.TicketID}
		}
		if gift.UnitPrice.IsNegative() {
			return nil, &ValidationError{Field: "gifts", Reason: "unit price must not be negative"}
		}
	}
	total = total.Round(2)

	if !req.Total.IsZero() && !req.Total.Round(2).Equal(total) {
		return nil, ErrTotalMismatch
	}

	p := &Purchase{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		Name:             req.Details.Name,
		CompanyName:      req.Details.CompanyName,
		StreetAddress:    req.Details.StreetAddress,
		ApartmentAddress: req.Details.ApartmentAddress,
		Town:             req.Details.Town,
		Phone:            req.Details.Phone,
		Email:            req.Details.Email,
		Items:            req.Items,
		Gifts:            req.Gifts,
		CouponCode:       req.CouponCode,
		Total:            total,
		Status:           StatusCreated,
	}
	if err := s.purchases.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create purchase")
	}
	return p, nil
}

// Get returns a single purchase owned by userID.
func (s *Service) Get(ctx context.Context, id, userID string) (*Purchase, error) {
	return s.owned(ctx, id, userID)
}

// List returns all purchases owned by userID.
func (s *Service) List(ctx context.Context, userID string) ([]Purchase, error) {
	return s.purchases.ListByOwner(ctx, userID)
}

// UpdateDetails overwrites the buyer fields of a still-created purchase.
func (s *Service) UpdateDetails(ctx context.Context, id, userID string, d Details) (*Purchase, error) {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.purchases.UpdateDetails(ctx, id, d)
}

// Delete removes a purchase. Confirmed purchases are protected.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return err
	}
	return s.purchases.Delete(ctx, id)
}

// InitiateCheckout builds a signed payment request for the purchase and moves
// it to pending_payment before returning, so an abandoned redirect still
// leaves a traceable pending record. Calling it again while pending recomputes
// a fresh request; the purchase id is reused as the gateway transaction id.
func (s *Service) InitiateCheckout(ctx context.Context, id, userID string) (*payu.PaymentRequest, error) {
	p, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return nil, ErrAlreadyFinalized
	}
	if len(p.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if !p.Total.IsPositive() {
		return nil, ErrZeroTotal
	}
	if err := s.gateway.Validate(); err != nil {
		return nil, err
	}

	info, err := s.productInfo(ctx, p)
	if err != nil {
		return nil, err
	}

	req, err := payu.NewPaymentRequest(s.gateway, payu.CheckoutParams{
		TxnID:       p.ID,
		Amount:      p.Total,
		ProductInfo: info,
		FirstName:   p.Name,
		Email:       p.Email,
		Phone:       p.Phone,
		SuccessURL:  s.callbacks.Success,
		FailureURL:  s.callbacks.Failure,
	})
	if err != nil {
		return nil, err
	}

	if err := s.purchases.MarkPendingPayment(ctx, p.ID); err != nil {
		return nil, errors.Wrap(err, "mark pending payment")
	}
	return req, nil
}

// Finalize applies a verified gateway outcome: pending_payment → confirmed on
// success, pending_payment → cancelled otherwise. Repeat deliveries for an
// already-terminal purchase succeed without re-running side effects. The
// boolean result reports whether this call performed the transition.
func (s *Service) Finalize(ctx context.Context, id string, succeeded bool) (*Purchase, bool, error) {
	to := StatusCancelled
	if succeeded {
		to = StatusConfirmed
	}

	p, transitioned, err := s.purchases.Finalize(ctx, id, to)
	if err != nil {
		return nil, false, err
	}

	if transitioned && to == StatusConfirmed {
		s.sendConfirmation(ctx, p)
	}
	return p, transitioned, nil
}

// Cancel is the owner-initiated cancel: the same edge as a failure
// notification. Re-cancelling an already cancelled purchase is an idempotent
// no-op; a confirmed purchase cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id, userID string) (*Purchase, error) {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return nil, err
	}
	p, transitioned, err := s.purchases.Finalize(ctx, id, StatusCancelled)
	if err != nil {
		return nil, err
	}
	if !transitioned && p.Status != StatusCancelled {
		return nil, ErrAlreadyFinalized
	}
	return p, nil
}

// Shutdown waits for in-flight confirmation sends to drain, or for ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.notifications.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendConfirmation dispatches the order-confirmation email on a detached
// goroutine. The transition has already been persisted; a send failure is
// logged and never surfaces to the caller.
func (s *Service) sendConfirmation(ctx context.Context, p *Purchase) {
	// Detach from the request context: the HTTP response must not wait for
	// the send, and a client disconnect must not abort it.
	ctx = context.WithoutCancel(ctx)

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		items, err := s.confirmationItems(ctx, p)
		if err != nil {
			s.lg.Error("resolve confirmation items",
				zap.String("purchase_id", p.ID), zap.Error(err))
			return
		}
		if err := s.notifier.SendOrderConfirmation(ctx, p.Email, items, p.ID); err != nil {
			s.lg.Error("send order confirmation",
				zap.String("purchase_id", p.ID), zap.Error(err))
		}
	}()
}

// confirmationItems resolves ticket names for every line and gift item.
func (s *Service) confirmationItems(ctx context.Context, p *Purchase) ([]ConfirmationItem, error) {
	ids := make([]string, 0, len(p.Items)+len(p.Gifts))
	for _, item := range p.Items {
		ids = append(ids, item.TicketID)
	}
	for _, gift := range p.Gifts {
		ids = append(ids, gift.TicketID)
	}

	names, err := s.ticketNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]ConfirmationItem, 0, len(ids))
	for _, item := range p.Items {
		items = append(items, ConfirmationItem{
			Name:     names[item.TicketID],
			Quantity: item.Quantity,
			Price:    item.UnitPrice,
		})
	}
	for _, gift := range p.Gifts {
		items = append(items, ConfirmationItem{
			Name:     names[gift.TicketID],
			Quantity: gift.Quantity,
			Price:    gift.UnitPrice,
			Gift:     true,
		})
	}
	return items, nil
}

// productInfo builds the gateway product description from the purchased
// ticket names.
func (s *Service) productInfo(ctx context.Context, p *Purchase) (string, error) {
	ids := make([]string, len(p.Items))
	for i, item := range p.Items {
		ids[i] = item.TicketID
	}
	names, err := s.ticketNames(ctx, ids)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		name := names[id]
		if name == "" {
			name = id
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", "), nil
}

func (s *Service) ticketNames(ctx context.Context, ids []string) (map[string]string, error) {
	fetched, err := s.tickets.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get tickets")
	}
	names := make(map[string]string, len(fetched))
	for _, t := range fetched {
		names[t.ID] = t.Name
	}
	return names, nil
}

// owned loads a purchase and checks ownership. A purchase belonging to
// another user is reported as not found rather than forbidden.
func (s *Service) owned(ctx context.Context, id, userID string) (*Purchase, error) {
	p, err := s.purchases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrNotFound
	}
	return p, nil
}
