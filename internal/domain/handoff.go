package domain

import "errors"

var ErrEmptyCart = errors.New("cart is empty")

// Handoff is the frozen content of a cart at the moment checkout begins.
type Handoff struct {
	Items []OrderItem `json:"items"`
	Quote
}

// NewHandoff snapshots lines and prices them. An empty cart cannot be handed
// off.
func NewHandoff(lines []CartLineItem) (Handoff, error) {
	if len(lines) == 0 {
		return Handoff{}, ErrEmptyCart
	}

	cart := Cart{Items: lines}
	items := make([]OrderItem, len(lines))
	for i, line := range lines {
		items[i] = OrderItem{
			CatalogItemID: line.CatalogItemID,
			Name:          line.DisplayName,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
		}
	}
	return Handoff{Items: items, Quote: QuoteFor(cart.Total())}, nil
}
