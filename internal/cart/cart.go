package cart

import (
	"errors"

	"github.com/drstein77/luxestore/internal/models"
	"github.com/shopspring/decimal"
)

// MaxQuantity caps the units of one product a cart line may hold.
const MaxQuantity = 9999

var (
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 9999")
	ErrItemNotFound    = errors.New("item not in cart")
)

// ShippingPolicy prices delivery for a cart subtotal.
type ShippingPolicy struct {
	Threshold decimal.Decimal
	Fee       decimal.Decimal
}

// DefaultShippingPolicy ships free at 100 and charges 15 below it.
func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{
		Threshold: decimal.NewFromInt(100),
		Fee:       decimal.NewFromInt(15),
	}
}

// Free reports whether subtotal qualifies for free shipping.
func (p ShippingPolicy) Free(subtotal decimal.Decimal) bool {
	return subtotal.GreaterThanOrEqual(p.Threshold)
}

// Cost returns the shipping charge for subtotal.
func (p ShippingPolicy) Cost(subtotal decimal.Decimal) decimal.Decimal {
	if p.Free(subtotal) {
		return decimal.Zero
	}
	return p.Fee
}

// AmountToFree is how much more must be spent to reach free shipping.
func (p ShippingPolicy) AmountToFree(subtotal decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, p.Threshold.Sub(subtotal))
}

type line struct {
	product  models.Product
	quantity int
}

// Cart holds line items keyed by product id, in the order they were first added.
// It is not safe for concurrent use.
type Cart struct {
	lines []*line
	index map[string]*line
}

func New() *Cart {
	return &Cart{index: make(map[string]*line)}
}

// Add puts qty units of p in the cart, incrementing an existing line.
// The cart is left unchanged when the line would exceed MaxQuantity.
func (c *Cart) Add(p models.Product, qty int) error {
	if qty < 1 || qty > MaxQuantity {
		return ErrInvalidQuantity
	}

	if l, ok := c.index[p.ID]; ok {
		if l.quantity > MaxQuantity-qty {
			return ErrInvalidQuantity
		}
		l.quantity += qty
		return nil
	}

	l := &line{product: p, quantity: qty}
	c.lines = append(c.lines, l)
	c.index[p.ID] = l
	return nil
}

// Increment raises the quantity of a line by one.
func (c *Cart) Increment(id string) error {
	l, ok := c.index[id]
	if !ok {
		return ErrItemNotFound
	}
	if l.quantity >= MaxQuantity {
		return ErrInvalidQuantity
	}
	l.quantity++
	return nil
}

// Decrement lowers the quantity of a line by one. A line at quantity 1 is left as is;
// use Remove to drop it.
func (c *Cart) Decrement(id string) error {
	l, ok := c.index[id]
	if !ok {
		return ErrItemNotFound
	}
	if l.quantity > 1 {
		l.quantity--
	}
	return nil
}

// SetQuantity replaces the quantity of a line.
func (c *Cart) SetQuantity(id string, qty int) error {
	if qty < 1 || qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	l, ok := c.index[id]
	if !ok {
		return ErrItemNotFound
	}
	l.quantity = qty
	return nil
}

// Remove drops a line from the cart.
func (c *Cart) Remove(id string) error {
	l, ok := c.index[id]
	if !ok {
		return ErrItemNotFound
	}

	delete(c.index, id)
	for i, cur := range c.lines {
		if cur == l {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			break
		}
	}
	return nil
}

func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[string]*line)
}

// Len is the number of distinct products in the cart.
func (c *Cart) Len() int {
	return len(c.lines)
}

// Quantity returns the quantity held for id, zero when absent.
func (c *Cart) Quantity(id string) int {
	if l, ok := c.index[id]; ok {
		return l.quantity
	}
	return 0
}

// Items returns the cart contents with line totals.
func (c *Cart) Items() []models.CartItem {
	items := make([]models.CartItem, 0, len(c.lines))
	for _, l := range c.lines {
		items = append(items, models.CartItem{
			Product:   l.product,
			Quantity:  l.quantity,
			LineTotal: l.product.Price.Mul(decimal.NewFromInt(int64(l.quantity))),
		})
	}
	return items
}

// Lines returns the cart in its persisted form.
func (c *Cart) Lines() []models.CartLine {
	out := make([]models.CartLine, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, models.CartLine{ProductID: l.product.ID, Quantity: l.quantity})
	}
	return out
}

// TotalItems is the sum of all quantities.
func (c *Cart) TotalItems() int {
	n := 0
	for _, l := range c.lines {
		n += l.quantity
	}
	return n
}

// TotalPrice is the sum of all line totals.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.product.Price.Mul(decimal.NewFromInt(int64(l.quantity))))
	}
	return total
}

// Summary derives totals and shipping under policy. An empty cart ships nothing
// and so costs nothing.
func (c *Cart) Summary(policy ShippingPolicy) models.CartSummary {
	subtotal := c.TotalPrice()

	shipping := policy.Cost(subtotal)
	if c.Len() == 0 {
		shipping = decimal.Zero
	}

	return models.CartSummary{
		Items:                c.Items(),
		TotalItems:           c.TotalItems(),
		Subtotal:             subtotal,
		Shipping:             shipping,
		Total:                subtotal.Add(shipping),
		FreeShipping:         policy.Free(subtotal),
		AmountToFreeShipping: policy.AmountToFree(subtotal),
	}
}
