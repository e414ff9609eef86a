package payu

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Config carries the merchant credentials and gateway endpoint. It is built
// once at process start and injected by reference; nothing in this package
// reads the environment.
type Config struct {
	// Key is the merchant key issued by the gateway.
	Key string
	// Salt is the shared signing secret. Never transmitted.
	Salt string
	// PaymentURL is the gateway's hosted checkout endpoint the buyer's
	// browser is redirected to.
	PaymentURL string
}

// Validate reports whether the config is complete enough to sign requests.
func (c Config) Validate() error {
	if c.Key == "" || c.Salt == "" {
		return ErrMissingCredentials
	}
	return nil
}

// CheckoutParams holds the per-transaction inputs for a payment request.
type CheckoutParams struct {
	TxnID       string
	Amount      decimal.Decimal
	ProductInfo string
	FirstName   string
	Email       string
	Phone       string
	SuccessURL  string
	FailureURL  string
}

// PaymentRequest is the redirect payload returned to the client. The client
// posts these fields verbatim to ActionURL; the gateway recomputes Hash on
// its side, so any field mutation in transit invalidates the transaction.
type PaymentRequest struct {
	ActionURL   string `json:"actionUrl"`
	Key         string `json:"key"`
	TxnID       string `json:"txnid"`
	Amount      string `json:"amount"`
	ProductInfo string `json:"productinfo"`
	FirstName   string `json:"firstname"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	SuccessURL  string `json:"surl"`
	FailureURL  string `json:"furl"`
	Hash        string `json:"hash"`
}

// NewPaymentRequest assembles and signs a payment request. Amount is
// normalized to a fixed two-decimal string; the same rendering participates
// in the signature, so gateway-side verification cannot drift from the
// payload.
func NewPaymentRequest(cfg Config, p CheckoutParams) (*PaymentRequest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	amount := p.Amount.StringFixed(2)
	hash := RequestSignature(RequestFields{
		Key:         cfg.Key,
		TxnID:       p.TxnID,
		Amount:      amount,
		ProductInfo: p.ProductInfo,
		FirstName:   p.FirstName,
		Email:       p.Email,
	}, cfg.Salt)

	return &PaymentRequest{
		ActionURL:   cfg.PaymentURL,
		Key:         cfg.Key,
		TxnID:       p.TxnID,
		Amount:      amount,
		ProductInfo: p.ProductInfo,
		FirstName:   p.FirstName,
		Email:       p.Email,
		Phone:       p.Phone,
		SuccessURL:  p.SuccessURL,
		FailureURL:  p.FailureURL,
		Hash:        hash,
	}, nil
}

// Notification carries the outcome fields the gateway reports back, via
// either the server-to-server webhook or the browser redirect. Both surfaces
// deliver the same field set.
type Notification struct {
	TxnID       string
	Status      string
	Hash        string
	Amount      string
	ProductInfo string
	FirstName   string
	Email       string
	Key         string
}

// Succeeded classifies the gateway status. Only "success" (case-insensitive)
// confirms the payment; every other value is a failure.
func (n Notification) Succeeded() bool {
	return strings.EqualFold(strings.TrimSpace(n.Status), "success")
}

// ResponseFields maps the notification onto the response-signature field set.
func (n Notification) ResponseFields() ResponseFields {
	return ResponseFields{
		Status:      n.Status,
		Email:       n.Email,
		FirstName:   n.FirstName,
		ProductInfo: n.ProductInfo,
		Amount:      n.Amount,
		TxnID:       n.TxnID,
		Key:         n.Key,
	}
}
