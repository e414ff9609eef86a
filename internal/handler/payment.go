package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/ticketkart/internal/domain/purchase"
	"github.com/xenking/ticketkart/internal/payu"
)

// notificationBody is the JSON shape of a webhook delivery. The gateway may
// also post form-encoded fields; both decode into payu.Notification.
type notificationBody struct {
	TxnID       string `json:"txnid"`
	Status      string `json:"status"`
	Hash        string `json:"hash"`
	Amount      string `json:"amount"`
	ProductInfo string `json:"productinfo"`
	FirstName   string `json:"firstname"`
	Email       string `json:"email"`
	Key         string `json:"key"`
}

// parseNotification extracts the outcome fields from either a JSON body or
// form/query values.
func parseNotification(r *http.Request) (payu.Notification, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body notificationBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return payu.Notification{}, errors.Wrap(err, "decode notification")
		}
		return payu.Notification(body), nil
	}

	if err := r.ParseForm(); err != nil {
		return payu.Notification{}, errors.Wrap(err, "parse form")
	}
	v := r.Form
	return payu.Notification{
		TxnID:       v.Get("txnid"),
		Status:      v.Get("status"),
		Hash:        v.Get("hash"),
		Amount:      v.Get("amount"),
		ProductInfo: v.Get("productinfo"),
		FirstName:   v.Get("firstname"),
		Email:       v.Get("email"),
		Key:         v.Get("key"),
	}, nil
}

// paymentNotify is the server-to-server webhook. The response is a plain
// acknowledgement, never a user-facing redirect.
func (h *Handler) paymentNotify(w http.ResponseWriter, r *http.Request) {
	n, err := parseNotification(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	out, err := h.reconciler.Process(r.Context(), n)
	if err != nil {
		status := notifyStatus(err)
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if out.Succeeded {
		_, _ = w.Write([]byte("payment processed"))
		return
	}
	_, _ = w.Write([]byte("payment failure recorded"))
}

// paymentRedirect is the browser return trip. It always answers with a 302
// to the frontend outcome page, never with a JSON body.
func (h *Handler) paymentRedirect(w http.ResponseWriter, r *http.Request) {
	n, err := parseNotification(r)
	if err != nil {
		h.redirectOutcome(w, r, false, "", "invalid_request")
		return
	}

	out, err := h.reconciler.Process(r.Context(), n)
	if err != nil {
		h.redirectOutcome(w, r, false, n.TxnID, redirectReason(err))
		return
	}
	h.redirectOutcome(w, r, out.Succeeded, n.TxnID, "")
}

// redirectOutcome issues the 302 to {frontendBase}/payment-success or
// /payment-failed, carrying the transaction id when known.
func (h *Handler) redirectOutcome(w http.ResponseWriter, r *http.Request, succeeded bool, txnid, reason string) {
	path := "/payment-failed"
	if succeeded {
		path = "/payment-success"
	}

	q := url.Values{}
	if txnid != "" {
		q.Set("txnid", txnid)
	}
	if reason != "" {
		q.Set("reason", reason)
	}

	dest := strings.TrimSuffix(h.frontendBase, "/") + path
	if enc := q.Encode(); enc != "" {
		dest += "?" + enc
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// notifyStatus maps reconciliation errors onto the webhook's plain status
// codes.
func notifyStatus(err error) int {
	switch {
	case errors.Is(err, purchase.ErrMissingFields):
		return http.StatusBadRequest
	case errors.Is(err, payu.ErrSignatureMismatch):
		return http.StatusBadRequest
	case errors.Is(err, purchase.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, purchase.ErrNotPending):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// redirectReason gives the frontend a coarse failure reason without leaking
// internals into the query string.
func redirectReason(err error) string {
	switch {
	case errors.Is(err, purchase.ErrMissingFields):
		return "missing_fields"
	case errors.Is(err, payu.ErrSignatureMismatch):
		return "verification_failed"
	case errors.Is(err, purchase.ErrNotFound):
		return "unknown_transaction"
	case errors.Is(err, purchase.ErrNotPending):
		return "not_pending"
	default:
		return "internal_error"
	}
}
