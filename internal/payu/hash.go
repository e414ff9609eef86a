// Package payu implements the PayU redirect-checkout contract: request
// signing, response signature verification, and payment request assembly.
//
// The gateway signs requests and responses with two distinct field orders.
// They are not mirror images of one algorithm; treat them as separate
// conventions and never swap them.
package payu

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/go-faster/errors"
)

// delimiter joins signature fields before hashing.
const delimiter = "|"

// placeholderSlots is the number of empty fields (unused UDF slots) the
// gateway reserves in both signature directions.
const placeholderSlots = 10

var (
	// ErrSignatureMismatch is returned when an inbound notification's hash
	// does not match the recomputed response signature.
	ErrSignatureMismatch = errors.New("payu: signature mismatch")
	// ErrMissingCredentials is returned when the merchant key or salt is not
	// configured. Checkout must hard-fail rather than emit an unsigned request.
	ErrMissingCredentials = errors.New("payu: merchant key and salt are required")
)

// RequestFields are the transaction fields bound by the outbound (request)
// signature, in their canonical order.
type RequestFields struct {
	Key         string // merchant key
	TxnID       string
	Amount      string // fixed two-decimal string, e.g. "100.00"
	ProductInfo string
	FirstName   string
	Email       string
}

// RequestSignature computes the outbound signature:
//
//	sha512(key|txnid|amount|productinfo|firstname|email|<10 empty slots>|salt)
//
// rendered as lowercase hex.
func RequestSignature(f RequestFields, salt string) string {
	parts := make([]string, 0, 7+placeholderSlots)
	parts = append(parts, f.Key, f.TxnID, f.Amount, f.ProductInfo, f.FirstName, f.Email)
	for range placeholderSlots {
		parts = append(parts, "")
	}
	parts = append(parts, salt)
	return digest(parts)
}

// ResponseFields are the transaction fields bound by the inbound (response)
// signature. The gateway signs responses in reverse order, salt first.
type ResponseFields struct {
	Status      string
	Email       string
	FirstName   string
	ProductInfo string
	Amount      string
	TxnID       string
	Key         string
}

// ResponseSignature computes the inbound signature:
//
//	sha512(salt|status|<10 empty slots>|email|firstname|productinfo|amount|txnid|key)
//
// rendered as lowercase hex.
func ResponseSignature(f ResponseFields, salt string) string {
	parts := make([]string, 0, 8+placeholderSlots)
	parts = append(parts, salt, f.Status)
	for range placeholderSlots {
		parts = append(parts, "")
	}
	parts = append(parts, f.Email, f.FirstName, f.ProductInfo, f.Amount, f.TxnID, f.Key)
	return digest(parts)
}

// VerifyResponseSignature recomputes the response signature and compares it
// byte-for-byte against the claimed hash in constant time.
func VerifyResponseSignature(f ResponseFields, salt, claimed string) bool {
	want := ResponseSignature(f, salt)
	got := strings.ToLower(strings.TrimSpace(claimed))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func digest(parts []string) string {
	sum := sha512.Sum512([]byte(strings.Join(parts, delimiter)))
	return hex.EncodeToString(sum[:])
}
