// Package api holds the JSON wire types shared by the storefront server and
// the kitshop client.
package api

import (
	"time"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	HeaderCartSession = "X-Cart-Session"
	HeaderRequestID   = "X-Request-ID"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalidRequest         = "invalid_request"
	CodeInvalidQuantity        = "invalid_quantity"
	CodeInvalidSession         = "invalid_session"
	CodeUnknownItem            = "unknown_item"
	CodeOutOfStock             = "out_of_stock"
	CodeLineNotFound           = "line_not_found"
	CodeInvalidMerge           = "invalid_merge"
	CodeEmptyCart              = "empty_cart"
	CodeCartChanged            = "cart_changed"
	CodeAuthenticationRequired = "authentication_required"
	CodeInvalidToken           = "invalid_token"
	CodeInvalidShipping        = "invalid_shipping"
	CodePaymentDeclined        = "payment_declined"
	CodePaymentUnavailable     = "payment_unavailable"
	CodeNotFound               = "not_found"
	CodeRateLimited            = "rate_limit_exceeded"
	CodeTimeout                = "timeout"
	CodeInternal               = "internal_error"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type CartResponse struct {
	Items     []domain.CartLineItem `json:"items"`
	ItemCount int                   `json:"item_count"`
	Total     decimal.Decimal       `json:"total"`
	Currency  string                `json:"currency"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func NewCartResponse(cart *domain.Cart) CartResponse {
	items := cart.Items
	if items == nil {
		items = []domain.CartLineItem{}
	}
	return CartResponse{
		Items:     items,
		ItemCount: cart.ItemCount(),
		Total:     cart.Total(),
		Currency:  domain.Currency,
		UpdatedAt: cart.UpdatedAt,
	}
}

type AddItemRequest struct {
	CatalogItemID string `json:"catalog_item_id"`
	Quantity      int    `json:"quantity"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CheckoutRequest struct {
	IdempotencyKey string                 `json:"idempotency_key"`
	Shipping       domain.ShippingAddress `json:"shipping"`
	ExpectedTotal  *decimal.Decimal       `json:"expected_total,omitempty"`
}
