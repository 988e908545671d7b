package domain

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCartTotal(t *testing.T) {
	cart := &Cart{Items: []CartLineItem{
		{LineID: "l1", CatalogItemID: "kit-1", UnitPrice: price("49.99"), Quantity: 2},
		{LineID: "l2", CatalogItemID: "kit-2", UnitPrice: price("89.99"), Quantity: 1},
	}}

	assert.True(t, price("189.97").Equal(cart.Total()), "got %s", cart.Total())
	assert.Equal(t, 3, cart.ItemCount())
	assert.False(t, cart.IsEmpty())
}

func TestEmptyCart(t *testing.T) {
	cart := EmptyCart(AnonymousOwner("s1"))
	assert.True(t, cart.IsEmpty())
	assert.True(t, cart.Total().IsZero())
	assert.NotNil(t, cart.Items)
}

func TestCartLineLookup(t *testing.T) {
	cart := &Cart{Items: []CartLineItem{{LineID: "l1", CatalogItemID: "kit-1", Quantity: 1}}}

	line, ok := cart.Line("l1")
	require.True(t, ok)
	assert.Equal(t, "kit-1", line.CatalogItemID)

	_, ok = cart.Line("missing")
	assert.False(t, ok)

	line, ok = cart.LineFor("kit-1")
	require.True(t, ok)
	assert.Equal(t, "l1", line.LineID)
}

func TestMergeLines(t *testing.T) {
	dst := []CartLineItem{
		{LineID: "a1", CatalogItemID: "kit-1", UnitPrice: price("49.99"), Quantity: 1},
	}
	src := []CartLineItem{
		{LineID: "b1", CatalogItemID: "kit-1", UnitPrice: price("45.00"), Quantity: 2},
		{LineID: "b2", CatalogItemID: "kit-3", UnitPrice: price("129.99"), Quantity: 1},
	}

	merged := MergeLines(dst, src)

	require.Len(t, merged, 2)
	assert.Equal(t, "a1", merged[0].LineID)
	assert.Equal(t, 3, merged[0].Quantity)
	assert.True(t, price("49.99").Equal(merged[0].UnitPrice))
	assert.Equal(t, "b2", merged[1].LineID)
	assert.Equal(t, 1, dst[0].Quantity, "dst must not be mutated")
}

func TestCartTotalEqualsRecomputation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("total is the sum of price times quantity", prop.ForAll(
		func(cents []int64, quantities []int) bool {
			cart := &Cart{}
			expected := decimal.Zero
			for i := 0; i < len(cents) && i < len(quantities); i++ {
				p := decimal.New(cents[i], -2)
				cart.Items = append(cart.Items, CartLineItem{UnitPrice: p, Quantity: quantities[i]})
				expected = expected.Add(p.Mul(decimal.NewFromInt(int64(quantities[i]))))
			}
			return cart.Total().Equal(expected)
		},
		gen.SliceOf(gen.Int64Range(1, 100000)),
		gen.SliceOf(gen.IntRange(1, 99)),
	))

	properties.Property("merging keeps every quantity", prop.ForAll(
		func(a, b []int) bool {
			toLines := func(qs []int, prefix string) []CartLineItem {
				lines := make([]CartLineItem, 0, len(qs))
				seen := map[string]bool{}
				for i, q := range qs {
					id := "kit-" + string(rune('a'+i%5))
					if seen[id] {
						continue
					}
					seen[id] = true
					lines = append(lines, CartLineItem{LineID: prefix + id, CatalogItemID: id, Quantity: q})
				}
				return lines
			}
			dst, src := toLines(a, "d"), toLines(b, "s")
			before := (&Cart{Items: dst}).ItemCount() + (&Cart{Items: src}).ItemCount()
			merged := MergeLines(dst, src)

			ids := map[string]bool{}
			for _, l := range merged {
				if ids[l.CatalogItemID] {
					return false
				}
				ids[l.CatalogItemID] = true
			}
			return (&Cart{Items: merged}).ItemCount() == before
		},
		gen.SliceOf(gen.IntRange(1, 10)),
		gen.SliceOf(gen.IntRange(1, 10)),
	))

	properties.TestingRun(t)
}
