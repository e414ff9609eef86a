package purchase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/ticketkart/internal/domain/ticket"
	"github.com/xenking/ticketkart/internal/payu"
)

// --- Mock implementations ---

// mockPurchaseRepo is an in-memory Repository with the same conditional
// update semantics the postgres implementation guarantees.
type mockPurchaseRepo struct {
	mu        sync.Mutex
	byID      map[string]*Purchase
	createErr error
	markErr   error
}

func newMockPurchaseRepo() *mockPurchaseRepo {
	return &mockPurchaseRepo{byID: make(map[string]*Purchase)}
}

func (m *mockPurchaseRepo) Create(_ context.Context, p *Purchase) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockPurchaseRepo) GetByID(_ context.Context, id string) (*Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPurchaseRepo) ListByOwner(_ context.Context, userID string) ([]Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Purchase
	for _, p := range m.byID {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockPurchaseRepo) UpdateDetails(_ context.Context, id string, d Details) (*Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != StatusCreated {
		return nil, ErrAlreadyFinalized
	}
	p.Name, p.CompanyName, p.StreetAddress = d.Name, d.CompanyName, d.StreetAddress
	p.ApartmentAddress, p.Town, p.Phone, p.Email = d.ApartmentAddress, d.Town, d.Phone, d.Email
	cp := *p
	return &cp, nil
}

func (m *mockPurchaseRepo) MarkPendingPayment(_ context.Context, id string) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	switch p.Status {
	case StatusCreated, StatusPendingPayment:
		p.Status = StatusPendingPayment
		return nil
	default:
		return ErrAlreadyFinalized
	}
}

func (m *mockPurchaseRepo) Finalize(_ context.Context, id string, to Status) (*Purchase, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if p.Status == StatusPendingPayment {
		p.Status = to
		cp := *p
		return &cp, true, nil
	}
	if p.Status.IsTerminal() {
		cp := *p
		return &cp, false, nil
	}
	return nil, false, ErrNotPending
}

func (m *mockPurchaseRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status == StatusConfirmed {
		return ErrDeleteConfirmed
	}
	delete(m.byID, id)
	return nil
}

type mockTicketRepo struct {
	byID map[string]*ticket.Ticket
}

func (m *mockTicketRepo) GetByIDs(_ context.Context, ids []string) ([]ticket.Ticket, error) {
	var out []ticket.Ticket
	for _, id := range ids {
		if t, ok := m.byID[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

type mockNotifier struct {
	mu    sync.Mutex
	sends int
	last  []ConfirmationItem
	email string
	err   error
}

func (m *mockNotifier) SendOrderConfirmation(_ context.Context, email string, items []ConfirmationItem, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	m.email = email
	m.last = items
	return m.err
}

func (m *mockNotifier) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends
}

// --- Helpers ---

func newTicketRepo(tickets ...ticket.Ticket) *mockTicketRepo {
	byID := make(map[string]*ticket.Ticket, len(tickets))
	for i := range tickets {
		byID[tickets[i].ID] = &tickets[i]
	}
	return &mockTicketRepo{byID: byID}
}

func testGateway() payu.Config {
	return payu.Config{Key: "K", Salt: "S", PaymentURL: "https://secure.payu.test/_payment"}
}

func testCallbacks() CallbackURLs {
	return CallbackURLs{
		Success: "https://shop.test/api/payment/redirect",
		Failure: "https://shop.test/api/payment/redirect",
	}
}

type fixture struct {
	svc      *Service
	repo     *mockPurchaseRepo
	notifier *mockNotifier
}

func newFixture(t *testing.T, tickets ...ticket.Ticket) *fixture {
	t.Helper()
	if len(tickets) == 0 {
		tickets = []ticket.Ticket{
			{ID: "t1", Name: "Standard", Price: decimal.RequireFromString("50.00")},
			{ID: "t2", Name: "VIP", Price: decimal.RequireFromString("120.00")},
		}
	}
	repo := newMockPurchaseRepo()
	notifier := &mockNotifier{}
	svc := NewService(repo, newTicketRepo(tickets...), notifier, testGateway(), testCallbacks(), zap.NewNop())
	return &fixture{svc: svc, repo: repo, notifier: notifier}
}

func validCreate() CreateRequest {
	return CreateRequest{
		UserID: "u1",
		Details: Details{
			Name:  "Frida",
			Email: "frida@example.com",
			Phone: "555-0100",
			Town:  "Oslo",
		},
		Items: []LineItem{
			{TicketID: "t1", UnitPrice: decimal.RequireFromString("50.00"), Quantity: 2},
		},
	}
}

// seedPending creates a purchase and moves it to pending_payment.
func seedPending(t *testing.T, f *fixture) *Purchase {
	t.Helper()
	p, err := f.svc.Create(context.Background(), validCreate())
	require.NoError(t, err)
	_, err = f.svc.InitiateCheckout(context.Background(), p.ID, "u1")
	require.NoError(t, err)
	return p
}

// --- Create ---

func TestCreate_EmptyItems(t *testing.T) {
	f := newFixture(t)
	req := validCreate()
	req.Items = nil

	_, err := f.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreate_InvalidQuantity(t *testing.T) {
	f := newFixture(t)
	req := validCreate()
	req.Items[0].Quantity = 0

	_, err := f.svc.Create(context.Background(), req)

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "t1", iqErr.TicketID)
}

func TestCreate_MissingBuyerFields(t *testing.T) {
	f := newFixture(t)

	req := validCreate()
	req.Details.Name = ""
	_, err := f.svc.Create(context.Background(), req)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "name", vErr.Field)

	req = validCreate()
	req.Details.Email = ""
	_, err = f.svc.Create(context.Background(), req)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "email", vErr.Field)
}

func TestCreate_TotalComputedFromItems(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Create(context.Background(), validCreate())
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, p.Status)
	assert.True(t, decimal.RequireFromString("100.00").Equal(p.Total))
	assert.NotEmpty(t, p.ID)
}

func TestCreate_DeclaredTotalMismatch(t *testing.T) {
	f := newFixture(t)
	req := validCreate()
	req.Total = decimal.RequireFromString("99.99")

	_, err := f.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrTotalMismatch)
}

func TestCreate_DeclaredTotalMatches(t *testing.T) {
	f := newFixture(t)
	req := validCreate()
	req.Total = decimal.RequireFromString("100.00")

	p, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.00").Equal(p.Total))
}

func TestCreate_NegativeGiftPrice(t *testing.T) {
	f := newFixture(t)
	req := validCreate()
	req.Gifts = []GiftItem{
		{TicketID: "t2", UnitPrice: decimal.RequireFromString("-1.00"), Quantity: 1},
	}

	_, err := f.svc.Create(context.Background(), req)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "gifts", vErr.Field)
}

// --- InitiateCheckout ---

func TestInitiateCheckout_BuildsSignedRequest(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Create(context.Background(), validCreate())
	require.NoError(t, err)

	req, err := f.svc.InitiateCheckout(context.Background(), p.ID, "u1")
	require.NoError(t, err)

	assert.Equal(t, p.ID, req.TxnID, "purchase id doubles as gateway txnid")
	assert.Equal(t, "100.00", req.Amount)
	assert.Equal(t, "Standard", req.ProductInfo)
	assert.Equal(t, "frida@example.com", req.Email)
	assert.Equal(t, "https://shop.test/api/payment/redirect", req.SuccessURL)
	assert.NotEmpty(t, req.Hash)

	stored, err := f.repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingPayment, stored.Status, "pending persisted before returning")
}

func TestInitiateCheckout_RetryWhilePending(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)

	// A user retrying an abandoned redirect gets a fresh request, not an error.
	req, err := f.svc.InitiateCheckout(context.Background(), p.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, req.TxnID)
}

func TestInitiateCheckout_EmptyItems(t *testing.T) {
	f := newFixture(t)
	// Seed directly: Create refuses empty items, but a record could predate
	// validation.
	require.NoError(t, f.repo.Create(context.Background(), &Purchase{
		ID: "p-empty", UserID: "u1", Status: StatusCreated,
		Total: decimal.RequireFromString("10.00"),
	}))

	_, err := f.svc.InitiateCheckout(context.Background(), "p-empty", "u1")
	require.ErrorIs(t, err, ErrEmptyItems)

	stored, err := f.repo.GetByID(context.Background(), "p-empty")
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, stored.Status, "state must be left untouched")
}

func TestInitiateCheckout_ZeroTotal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.Create(context.Background(), &Purchase{
		ID: "p-zero", UserID: "u1", Status: StatusCreated,
		Items: []LineItem{{TicketID: "t1", UnitPrice: decimal.Zero, Quantity: 1}},
		Total: decimal.Zero,
	}))

	_, err := f.svc.InitiateCheckout(context.Background(), "p-zero", "u1")
	require.ErrorIs(t, err, ErrZeroTotal)
}

func TestInitiateCheckout_MissingCredentials(t *testing.T) {
	repo := newMockPurchaseRepo()
	svc := NewService(repo, newTicketRepo(), &mockNotifier{}, payu.Config{}, testCallbacks(), zap.NewNop())

	p, err := svc.Create(context.Background(), validCreate())
	require.NoError(t, err)

	_, err = svc.InitiateCheckout(context.Background(), p.ID, "u1")
	require.ErrorIs(t, err, payu.ErrMissingCredentials)

	stored, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, stored.Status)
}

func TestInitiateCheckout_WrongOwner(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Create(context.Background(), validCreate())
	require.NoError(t, err)

	_, err = f.svc.InitiateCheckout(context.Background(), p.ID, "intruder")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInitiateCheckout_Finalized(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)
	_, _, err := f.svc.Finalize(context.Background(), p.ID, true)
	require.NoError(t, err)

	_, err = f.svc.InitiateCheckout(context.Background(), p.ID, "u1")
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

// --- Finalize ---

func TestFinalize_Success(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)

	got, transitioned, err := f.svc.Finalize(context.Background(), p.ID, true)
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(context.Background()))

	assert.True(t, transitioned)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, 1, f.notifier.sendCount())
	assert.Equal(t, "frida@example.com", f.notifier.email)
	require.Len(t, f.notifier.last, 1)
	assert.Equal(t, "Standard", f.notifier.last[0].Name)
	assert.Equal(t, 2, f.notifier.last[0].Quantity)
}

func TestFinalize_Failure(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)

	got, transitioned, err := f.svc.Finalize(context.Background(), p.ID, false)
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(context.Background()))

	assert.True(t, transitioned)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 0, f.notifier.sendCount(), "no confirmation for a cancelled purchase")
}

func TestFinalize_RepeatDeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)

	_, transitioned, err := f.svc.Finalize(context.Background(), p.ID, true)
	require.NoError(t, err)
	assert.True(t, transitioned)

	got, transitioned, err := f.svc.Finalize(context.Background(), p.ID, true)
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(context.Background()))

	assert.False(t, transitioned, "second delivery observes the terminal state")
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, 1, f.notifier.sendCount(), "exactly one confirmation send")
}

func TestFinalize_NotPending(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Create(context.Background(), validCreate())
	require.NoError(t, err)

	// No created → confirmed edge exists.
	_, _, err = f.svc.Finalize(context.Background(), p.ID, true)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestFinalize_Unknown(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Finalize(context.Background(), "missing", true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFinalize_ConcurrentDeliveries(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)

	// Webhook and redirect race for the same transaction.
	const callers = 8
	results := make(chan bool, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, transitioned, err := f.svc.Finalize(context.Background(), p.ID, true)
			require.NoError(t, err)
			results <- transitioned
		}()
	}
	wg.Wait()
	close(results)
	require.NoError(t, f.svc.Shutdown(context.Background()))

	winners := 0
	for transitioned := range results {
		if transitioned {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one delivery performs the transition")
	assert.Equal(t, 1, f.notifier.sendCount())

	stored, err := f.repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)
}

func TestFinalize_NotifierFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = assert.AnError
	p := seedPending(t, f)

	got, transitioned, err := f.svc.Finalize(context.Background(), p.ID, true)
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(context.Background()))

	assert.True(t, transitioned)
	assert.Equal(t, StatusConfirmed, got.Status)
}

// --- Cancel ---

func TestCancel_Pending(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)

	got, err := f.svc.Cancel(context.Background(), p.ID, "u1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(context.Background()))

	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 0, f.notifier.sendCount(), "cancel never triggers a confirmation")
}

func TestCancel_RepeatIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)

	_, err := f.svc.Cancel(context.Background(), p.ID, "u1")
	require.NoError(t, err)

	got, err := f.svc.Cancel(context.Background(), p.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestCancel_ConfirmedRejected(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)
	_, _, err := f.svc.Finalize(context.Background(), p.ID, true)
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(context.Background()))

	_, err = f.svc.Cancel(context.Background(), p.ID, "u1")
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestCancel_Created(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Create(context.Background(), validCreate())
	require.NoError(t, err)

	// Nothing is owed yet; there is no created → cancelled edge.
	_, err = f.svc.Cancel(context.Background(), p.ID, "u1")
	require.ErrorIs(t, err, ErrNotPending)
}

func TestCancel_WrongOwner(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)

	_, err := f.svc.Cancel(context.Background(), p.ID, "intruder")
	require.ErrorIs(t, err, ErrNotFound)
}

// --- Delete / UpdateDetails ---

func TestDelete_ConfirmedRejected(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)
	_, _, err := f.svc.Finalize(context.Background(), p.ID, true)
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(context.Background()))

	err = f.svc.Delete(context.Background(), p.ID, "u1")
	require.ErrorIs(t, err, ErrDeleteConfirmed)
}

func TestDelete_Created(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Create(context.Background(), validCreate())
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), p.ID, "u1"))

	_, err = f.svc.Get(context.Background(), p.ID, "u1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateDetails_AfterCheckoutRejected(t *testing.T) {
	f := newFixture(t)
	p := seedPending(t, f)

	_, err := f.svc.UpdateDetails(context.Background(), p.ID, "u1", Details{
		Name: "Other", Email: "other@example.com",
	})
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}
