// Package notify delivers buyer-facing order confirmations over SMTP.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	mail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xenking/ticketkart/internal/domain/purchase"
)

// maxConcurrentSends caps simultaneous SMTP sessions.
const maxConcurrentSends = 4

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether the mailer is configured at all. When disabled the
// application falls back to the log notifier.
func (c Config) Enabled() bool {
	return c.Host != ""
}

var _ purchase.Notifier = (*Mailer)(nil)

// Mailer sends order confirmations via SMTP.
type Mailer struct {
	client *mail.Client
	from   string
	sem    *semaphore.Weighted
}

// NewMailer creates a Mailer from the given SMTP config.
func NewMailer(cfg Config) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create smtp client")
	}

	return &Mailer{
		client: client,
		from:   cfg.From,
		sem:    semaphore.NewWeighted(maxConcurrentSends),
	}, nil
}

// SendOrderConfirmation sends the buyer a summary of every purchased ticket
// and gift. The caller treats it as fire-and-forget; errors are only logged
// upstream.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, email string, items []purchase.ConfirmationItem, orderID string) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "acquire send slot")
	}
	defer m.sem.Release(1)

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return errors.Wrap(err, "set from")
	}
	if err := msg.To(email); err != nil {
		return errors.Wrap(err, "set to")
	}
	msg.Subject(fmt.Sprintf("Order confirmation %s", orderID))
	msg.SetBodyString(mail.TypeTextPlain, confirmationBody(items, orderID))

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrap(err, "send confirmation")
	}
	return nil
}

// confirmationBody renders the plain-text order summary.
func confirmationBody(items []purchase.ConfirmationItem, orderID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order %s.\n\n", orderID)
	for _, item := range items {
		label := ""
		if item.Gift {
			label = " (gift)"
		}
		fmt.Fprintf(&b, "  %dx %s%s - %s\n", item.Quantity, item.Name, label, item.Price.StringFixed(2))
	}
	return b.String()
}

var _ purchase.Notifier = (*LogNotifier)(nil)

// LogNotifier is the fallback when no SMTP host is configured: it records the
// confirmation instead of delivering it.
type LogNotifier struct {
	lg *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(lg *zap.Logger) *LogNotifier {
	return &LogNotifier{lg: lg}
}

// SendOrderConfirmation logs the confirmation that would have been sent.
func (n *LogNotifier) SendOrderConfirmation(_ context.Context, email string, items []purchase.ConfirmationItem, orderID string) error {
	n.lg.Info("order confirmation (mail disabled)",
		zap.String("order_id", orderID),
		zap.String("email", email),
		zap.Int("items", len(items)),
	)
	return nil
}
