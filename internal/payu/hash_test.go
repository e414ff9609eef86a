package payu

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	return decimal.RequireFromString(s)
}

var testRequestFields = RequestFields{
	Key:         "K",
	TxnID:       "T1",
	Amount:      "100.00",
	ProductInfo: "P",
	FirstName:   "F",
	Email:       "e@x.com",
}

var testResponseFields = ResponseFields{
	Status:      "success",
	Email:       "e@x.com",
	FirstName:   "F",
	ProductInfo: "P",
	Amount:      "100.00",
	TxnID:       "T1",
	Key:         "K",
}

func TestRequestSignature_KnownVector(t *testing.T) {
	// sha512("K|T1|100.00|P|F|e@x.com|||||||||||S")
	const want = "f1e1334ad44c792d41e63dbe64745f032b56e7a790c4f90172e70838e5e897e5" +
		"760e8c09ccdb620b0243970772ee8195c394b97a5e8ade0380c7821e67e8f426"

	got := RequestSignature(testRequestFields, "S")
	assert.Equal(t, want, got)
}

func TestResponseSignature_KnownVector(t *testing.T) {
	// sha512("S|success|||||||||||e@x.com|F|P|100.00|T1|K")
	const want = "906d45992f2144c570b48ceeaeee8beba2ec2c319f54ee96f8497e18a5200c0b" +
		"8b0ee2165f0ce996af4f2d77880b4d62ecb6ca051802827fcc80db3ecf96de11"

	got := ResponseSignature(testResponseFields, "S")
	assert.Equal(t, want, got)
}

func TestSignatureDirections_Disjoint(t *testing.T) {
	// Request and response conventions must never verify each other.
	req := RequestSignature(testRequestFields, "S")
	resp := ResponseSignature(testResponseFields, "S")

	require.NotEqual(t, req, resp)
	assert.False(t, VerifyResponseSignature(testResponseFields, "S", req))
}

func TestVerifyResponseSignature(t *testing.T) {
	hash := ResponseSignature(testResponseFields, "S")

	assert.True(t, VerifyResponseSignature(testResponseFields, "S", hash))

	// Uppercase hex and surrounding whitespace are normalized.
	assert.True(t, VerifyResponseSignature(testResponseFields, "S", " "+hash+" "))

	// Wrong salt, tampered amount, or truncated hash must all fail.
	assert.False(t, VerifyResponseSignature(testResponseFields, "X", hash))

	tampered := testResponseFields
	tampered.Amount = "999.00"
	assert.False(t, VerifyResponseSignature(tampered, "S", hash))

	assert.False(t, VerifyResponseSignature(testResponseFields, "S", hash[:64]))
}

func TestNotification_Succeeded(t *testing.T) {
	assert.True(t, Notification{Status: "success"}.Succeeded())
	assert.True(t, Notification{Status: "SUCCESS"}.Succeeded())
	assert.True(t, Notification{Status: " Success "}.Succeeded())

	assert.False(t, Notification{Status: "failure"}.Succeeded())
	assert.False(t, Notification{Status: "pending"}.Succeeded())
	assert.False(t, Notification{Status: ""}.Succeeded())
}

func TestNewPaymentRequest(t *testing.T) {
	cfg := Config{Key: "K", Salt: "S", PaymentURL: "https://secure.payu.test/_payment"}

	req, err := NewPaymentRequest(cfg, CheckoutParams{
		TxnID:       "T1",
		Amount:      mustDecimal(t, "100"),
		ProductInfo: "P",
		FirstName:   "F",
		Email:       "e@x.com",
		Phone:       "555-0100",
		SuccessURL:  "https://shop.test/api/payment/redirect",
		FailureURL:  "https://shop.test/api/payment/redirect",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://secure.payu.test/_payment", req.ActionURL)
	assert.Equal(t, "100.00", req.Amount, "amount must be fixed two-decimal")
	assert.Equal(t, RequestSignature(testRequestFields, "S"), req.Hash)
}

func TestNewPaymentRequest_MissingCredentials(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{Key: "K"},
		{Salt: "S"},
	} {
		_, err := NewPaymentRequest(cfg, CheckoutParams{TxnID: "T1"})
		assert.ErrorIs(t, err, ErrMissingCredentials)
	}
}
