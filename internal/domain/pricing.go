package domain

import "github.com/shopspring/decimal"

const Currency = "CAD"

var (
	TaxRate      = decimal.RequireFromString("0.13")
	FlatShipping = decimal.RequireFromString("9.99")
)

// Quote is the price breakdown shown and charged at checkout.
type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// QuoteFor applies the fixed tax rate and the flat shipping fee to a
// subtotal. Shipping is only charged on a non-zero subtotal.
func QuoteFor(subtotal decimal.Decimal) Quote {
	tax := subtotal.Mul(TaxRate).Round(2)
	shipping := decimal.Zero
	if subtotal.IsPositive() {
		shipping = FlatShipping
	}
	return Quote{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal.Add(tax).Add(shipping),
		Currency: Currency,
	}
}

// Cents converts an amount to the minor currency unit for the payment
// processor.
func Cents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
