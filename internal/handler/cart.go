package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/ticketkart/internal/domain/purchase"
)

// lineItemRequest is a line or gift item as submitted by the client.
type lineItemRequest struct {
	TicketID  string          `json:"ticketId"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// buyerFields are the buyer contact and shipping fields, shared between
// creation and update requests.
type buyerFields struct {
	Name             string `json:"name"`
	CompanyName      string `json:"companyName"`
	StreetAddress    string `json:"streetAddress"`
	ApartmentAddress string `json:"apartmentAddress"`
	Town             string `json:"town"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
}

func (b buyerFields) details() purchase.Details {
	return purchase.Details{
		Name:             b.Name,
		CompanyName:      b.CompanyName,
		StreetAddress:    b.StreetAddress,
		ApartmentAddress: b.ApartmentAddress,
		Town:             b.Town,
		Phone:            b.Phone,
		Email:            b.Email,
	}
}

type createPurchaseRequest struct {
	buyerFields
	Items      []lineItemRequest `json:"items"`
	Gifts      []lineItemRequest `json:"gifts"`
	CouponCode string            `json:"couponCode"`
	Total      decimal.Decimal   `json:"total"`
}

type placeOrderRequest struct {
	PurchaseID string `json:"purchaseId"`
}

// purchaseView is the JSON shape of a purchase. Monetary values are rendered
// as fixed two-decimal strings so clients never see float rounding.
type purchaseView struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	CompanyName      string         `json:"companyName,omitempty"`
	StreetAddress    string         `json:"streetAddress,omitempty"`
	ApartmentAddress string         `json:"apartmentAddress,omitempty"`
	Town             string         `json:"town,omitempty"`
	Phone            string         `json:"phone,omitempty"`
	Email            string         `json:"email"`
	Items            []lineItemView `json:"items"`
	Gifts            []lineItemView `json:"gifts,omitempty"`
	CouponCode       string         `json:"couponCode,omitempty"`
	Total            string         `json:"total"`
	Status           string         `json:"status"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

type lineItemView struct {
	TicketID  string `json:"ticketId"`
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

func viewOf(p *purchase.Purchase) purchaseView {
	items := make([]lineItemView, len(p.Items))
	for i, item := range p.Items {
		items[i] = lineItemView{
			TicketID:  item.TicketID,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Quantity:  item.Quantity,
		}
	}
	var gifts []lineItemView
	for _, gift := range p.Gifts {
		gifts = append(gifts, lineItemView{
			TicketID:  gift.TicketID,
			UnitPrice: gift.UnitPrice.StringFixed(2),
			Quantity:  gift.Quantity,
		})
	}
	return purchaseView{
		ID:               p.ID,
		Name:             p.Name,
		CompanyName:      p.CompanyName,
		StreetAddress:    p.StreetAddress,
		ApartmentAddress: p.ApartmentAddress,
		Town:             p.Town,
		Phone:            p.Phone,
		Email:            p.Email,
		Items:            items,
		Gifts:            gifts,
		CouponCode:       p.CouponCode,
		Total:            p.Total.StringFixed(2),
		Status:           p.Status.String(),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.service.Create(r.Context(), purchase.CreateRequest{
		UserID:     userID,
		Details:    req.details(),
		Items:      toLineItems(req.Items),
		Gifts:      toGiftItems(req.Gifts),
		CouponCode: req.CouponCode,
		Total:      req.Total,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(p))
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	purchases, err := h.service.List(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]purchaseView, len(purchases))
	for i := range purchases {
		views[i] = viewOf(&purchases[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	p, err := h.service.Get(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (h *Handler) updatePurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req buyerFields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.service.UpdateDetails(r.Context(), r.PathValue("id"), userID, req.details())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (h *Handler) deletePurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.service.Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cancelPurchase is the owner-initiated cancel of a pending payment.
func (h *Handler) cancelPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	p, err := h.service.Cancel(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

// placeOrder initiates checkout: the response carries the signed payment
// request the client posts to the gateway's hosted page.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PurchaseID == "" {
		writeError(w, http.StatusBadRequest, "purchaseId is required")
		return
	}

	payment, err := h.service.InitiateCheckout(r.Context(), req.PurchaseID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func toLineItems(in []lineItemRequest) []purchase.LineItem {
	out := make([]purchase.LineItem, len(in))
	for i, item := range in {
		out[i] = purchase.LineItem{
			TicketID:  item.TicketID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return out
}

func toGiftItems(in []lineItemRequest) []purchase.GiftItem {
	if len(in) == 0 {
		return nil
	}
	out := make([]purchase.GiftItem, len(in))
	for i, item := range in {
		out[i] = purchase.GiftItem{
			TicketID:  item.TicketID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return out
}
