package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLineItem is one catalog item in a cart. Price, name and thumbnail are
// captured when the line is first added and are not re-read from the catalog.
type CartLineItem struct {
	LineID        string          `json:"line_id"`
	CatalogItemID string          `json:"catalog_item_id"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity"`
	DisplayName   string          `json:"display_name"`
	ThumbnailRef  string          `json:"thumbnail_ref"`
	AddedAt       time.Time       `json:"added_at"`
}

func (l CartLineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart holds at most one line per catalog item. The total is always derived
// from the lines.
type Cart struct {
	ID        string         `json:"id,omitempty"`
	Owner     Owner          `json:"-"`
	Items     []CartLineItem `json:"items"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func EmptyCart(owner Owner) *Cart {
	now := time.Now()
	return &Cart{
		Owner:     owner,
		Items:     []CartLineItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) Line(lineID string) (CartLineItem, bool) {
	for _, item := range c.Items {
		if item.LineID == lineID {
			return item, true
		}
	}
	return CartLineItem{}, false
}

func (c *Cart) LineFor(catalogItemID string) (CartLineItem, bool) {
	for _, item := range c.Items {
		if item.CatalogItemID == catalogItemID {
			return item, true
		}
	}
	return CartLineItem{}, false
}

// MergeLines folds src into dst: a line whose catalog item is already in dst
// adds its quantity to the existing line (keeping dst's captured price),
// other lines are appended in order.
func MergeLines(dst, src []CartLineItem) []CartLineItem {
	merged := make([]CartLineItem, len(dst), len(dst)+len(src))
	copy(merged, dst)

	index := make(map[string]int, len(merged))
	for i, item := range merged {
		index[item.CatalogItemID] = i
	}

	for _, item := range src {
		if i, ok := index[item.CatalogItemID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.CatalogItemID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
