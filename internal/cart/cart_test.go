package cart

import (
	"math"
	"testing"

	"github.com/drstein77/luxestore/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(id string, price int64) models.Product {
	return models.Product{ID: id, Name: "p" + id, Price: decimal.NewFromInt(price)}
}

func TestAddIncrementsExistingLine(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(product("1", 10), 1))
	require.NoError(t, c.Add(product("2", 20), 2))
	require.NoError(t, c.Add(product("1", 10), 3))

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].ID)
	assert.Equal(t, 4, items[0].Quantity)
	assert.True(t, items[0].LineTotal.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, 6, c.TotalItems())
	assert.True(t, c.TotalPrice().Equal(decimal.NewFromInt(80)))
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.Add(product("1", 10), 0), ErrInvalidQuantity)
	assert.ErrorIs(t, c.Add(product("1", 10), -2), ErrInvalidQuantity)
	assert.Equal(t, 0, c.Len())
}

func TestQuantityIsCapped(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.Add(product("1", 10), MaxQuantity+1), ErrInvalidQuantity)
	assert.ErrorIs(t, c.Add(product("1", 10), math.MaxInt), ErrInvalidQuantity)
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.Add(product("1", 10), MaxQuantity-1))
	assert.ErrorIs(t, c.Add(product("1", 10), 2), ErrInvalidQuantity)
	assert.ErrorIs(t, c.Add(product("1", 10), math.MaxInt), ErrInvalidQuantity)
	assert.Equal(t, MaxQuantity-1, c.Quantity("1"))

	require.NoError(t, c.Increment("1"))
	assert.ErrorIs(t, c.Increment("1"), ErrInvalidQuantity)
	assert.Equal(t, MaxQuantity, c.Quantity("1"))

	assert.ErrorIs(t, c.SetQuantity("1", MaxQuantity+1), ErrInvalidQuantity)
	require.NoError(t, c.SetQuantity("1", MaxQuantity))
	assert.Equal(t, MaxQuantity, c.TotalItems())
}

func TestDecrementStopsAtOne(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(product("1", 10), 2))

	require.NoError(t, c.Decrement("1"))
	assert.Equal(t, 1, c.Quantity("1"))

	require.NoError(t, c.Decrement("1"))
	assert.Equal(t, 1, c.Quantity("1"))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Increment("1"))
	assert.Equal(t, 2, c.Quantity("1"))

	assert.ErrorIs(t, c.Decrement("9"), ErrItemNotFound)
	assert.ErrorIs(t, c.Increment("9"), ErrItemNotFound)
}

func TestSetQuantity(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(product("1", 10), 1))

	require.NoError(t, c.SetQuantity("1", 7))
	assert.Equal(t, 7, c.Quantity("1"))

	assert.ErrorIs(t, c.SetQuantity("1", 0), ErrInvalidQuantity)
	assert.Equal(t, 7, c.Quantity("1"))
	assert.ErrorIs(t, c.SetQuantity("2", 3), ErrItemNotFound)
}

func TestRemoveAndClear(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(product("1", 10), 1))
	require.NoError(t, c.Add(product("2", 20), 1))
	require.NoError(t, c.Add(product("3", 30), 1))

	require.NoError(t, c.Remove("2"))
	assert.ErrorIs(t, c.Remove("2"), ErrItemNotFound)
	assert.Equal(t, []models.CartLine{{ProductID: "1", Quantity: 1}, {ProductID: "3", Quantity: 1}}, c.Lines())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Quantity("1"))
	assert.True(t, c.TotalPrice().IsZero())

	require.NoError(t, c.Add(product("1", 10), 1))
	assert.Equal(t, 1, c.Len())
}

func TestShippingPolicy(t *testing.T) {
	p := DefaultShippingPolicy()

	cases := []struct {
		name     string
		subtotal int64
		cost     int64
		toFree   int64
		free     bool
	}{
		{"below threshold", 49, 15, 51, false},
		{"at threshold", 100, 0, 0, true},
		{"above threshold", 349, 0, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := decimal.NewFromInt(tc.subtotal)
			assert.True(t, p.Cost(sub).Equal(decimal.NewFromInt(tc.cost)))
			assert.True(t, p.AmountToFree(sub).Equal(decimal.NewFromInt(tc.toFree)))
			assert.Equal(t, tc.free, p.Free(sub))
		})
	}
}

func TestSummary(t *testing.T) {
	policy := DefaultShippingPolicy()

	t.Run("empty cart ships nothing", func(t *testing.T) {
		s := New().Summary(policy)
		assert.Empty(t, s.Items)
		assert.True(t, s.Shipping.IsZero())
		assert.True(t, s.Total.IsZero())
		assert.True(t, s.AmountToFreeShipping.Equal(decimal.NewFromInt(100)))
	})

	t.Run("small cart pays shipping", func(t *testing.T) {
		c := New()
		require.NoError(t, c.Add(product("9", 49), 1))
		s := c.Summary(policy)
		assert.Equal(t, 1, s.TotalItems)
		assert.True(t, s.Subtotal.Equal(decimal.NewFromInt(49)))
		assert.True(t, s.Shipping.Equal(decimal.NewFromInt(15)))
		assert.True(t, s.Total.Equal(decimal.NewFromInt(64)))
		assert.False(t, s.FreeShipping)
		assert.True(t, s.AmountToFreeShipping.Equal(decimal.NewFromInt(51)))
	})

	t.Run("large cart ships free", func(t *testing.T) {
		c := New()
		require.NoError(t, c.Add(product("9", 49), 2))
		require.NoError(t, c.Add(product("7", 79), 1))
		s := c.Summary(policy)
		assert.Equal(t, 3, s.TotalItems)
		assert.True(t, s.Subtotal.Equal(decimal.NewFromInt(177)))
		assert.True(t, s.Shipping.IsZero())
		assert.True(t, s.Total.Equal(decimal.NewFromInt(177)))
		assert.True(t, s.FreeShipping)
	})
}
