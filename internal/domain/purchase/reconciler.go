package purchase

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"

	"github.com/xenking/ticketkart/internal/payu"
)

// Bloom filter sizing for the duplicate-delivery pre-filter. False positives
// only cause an extra log line; the repository's conditional update stays
// authoritative.
const (
	seenCapacity = 1_000_000
	seenFPR      = 0.001
)

// Outcome reports how a gateway notification was reconciled.
type Outcome struct {
	Purchase *Purchase
	// Transitioned is true when this delivery performed the state change.
	// Repeat deliveries for an already-terminal purchase observe false.
	Transitioned bool
	// Succeeded is the classified gateway status.
	Succeeded bool
}

// Reconciler verifies inbound gateway notifications and drives the lifecycle
// transitions idempotently. The webhook and the browser redirect share this
// logic; only the HTTP response differs per surface.
type Reconciler struct {
	service *Service
	gateway payu.Config
	// allowUnverified downgrades a signature mismatch from a rejection to a
	// warning. Rejection is the secure default; this exists as an explicit,
	// logged debugging aid and must stay off in production.
	allowUnverified bool
	lg              *zap.Logger

	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// NewReconciler creates a Reconciler over the given lifecycle service.
func NewReconciler(service *Service, gateway payu.Config, allowUnverified bool, lg *zap.Logger) *Reconciler {
	if allowUnverified {
		lg.Warn("payment signature verification is disabled; forged confirmations will be accepted")
	}
	return &Reconciler{
		service:         service,
		gateway:         gateway,
		allowUnverified: allowUnverified,
		lg:              lg,
		seen:            bloom.NewWithEstimates(seenCapacity, seenFPR),
	}
}

// Process validates, verifies, and applies one gateway notification.
// It returns ErrMissingFields when the transaction id or status is absent,
// ErrNotFound for an unknown transaction, and payu.ErrSignatureMismatch when
// the hash does not verify and unverified notifications are not allowed.
func (r *Reconciler) Process(ctx context.Context, n payu.Notification) (*Outcome, error) {
	if n.TxnID == "" || n.Status == "" {
		return nil, ErrMissingFields
	}

	if r.testSeen(n.TxnID) {
		r.lg.Info("duplicate gateway delivery suspected", zap.String("txnid", n.TxnID))
	}

	if !payu.VerifyResponseSignature(n.ResponseFields(), r.gateway.Salt, n.Hash) {
		if !r.allowUnverified {
			return nil, payu.ErrSignatureMismatch
		}
		r.lg.Warn("accepting notification with invalid signature",
			zap.String("txnid", n.TxnID), zap.String("status", n.Status))
	}

	succeeded := n.Succeeded()
	p, transitioned, err := r.service.Finalize(ctx, n.TxnID, succeeded)
	if err != nil {
		return nil, err
	}

	r.markSeen(n.TxnID)

	r.lg.Info("payment notification reconciled",
		zap.String("txnid", n.TxnID),
		zap.String("status", n.Status),
		zap.Bool("succeeded", succeeded),
		zap.Bool("transitioned", transitioned),
	)
	return &Outcome{Purchase: p, Transitioned: transitioned, Succeeded: succeeded}, nil
}

func (r *Reconciler) testSeen(txnid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen.TestString(txnid)
}

func (r *Reconciler) markSeen(txnid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen.AddString(txnid)
}
