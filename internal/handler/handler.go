// Package handler exposes the cart and payment HTTP surfaces. Routing uses
// method-qualified ServeMux patterns; every domain error is mapped to a
// transport status code in exactly one place (respond.go).
package handler

import (
	"net/http"

	"github.com/xenking/ticketkart/internal/domain/purchase"
)

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	service      *purchase.Service
	reconciler   *purchase.Reconciler
	frontendBase string
}

// NewHandler constructs a Handler.
func NewHandler(service *purchase.Service, reconciler *purchase.Reconciler, frontendBase string) *Handler {
	return &Handler{
		service:      service,
		reconciler:   reconciler,
		frontendBase: frontendBase,
	}
}

// Register mounts all routes on mux. requireAuth wraps the owner-scoped cart
// endpoints; the two gateway-facing endpoints stay keyless because the
// gateway cannot present user credentials.
func (h *Handler) Register(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	authed := func(fn http.HandlerFunc) http.Handler { return requireAuth(fn) }

	mux.Handle("POST /api/cart", authed(h.createPurchase))
	mux.Handle("GET /api/cart", authed(h.listPurchases))
	mux.Handle("GET /api/cart/{id}", authed(h.getPurchase))
	mux.Handle("PATCH /api/cart/{id}", authed(h.updatePurchase))
	mux.Handle("DELETE /api/cart/{id}", authed(h.deletePurchase))
	mux.Handle("POST /api/cart/{id}/cancel", authed(h.cancelPurchase))
	mux.Handle("POST /api/cart/place-order", authed(h.placeOrder))

	mux.HandleFunc("POST /api/payment/notify", h.paymentNotify)
	mux.HandleFunc("GET /api/payment/redirect", h.paymentRedirect)
	mux.HandleFunc("POST /api/payment/redirect", h.paymentRedirect)
}
