package models

import "github.com/shopspring/decimal"

// Product is a catalog entry. Products are seeded at startup and never change.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	Features    []string        `json:"features,omitempty"`
	InStock     *bool           `json:"inStock,omitempty"`
}

// Available reports whether the product can be sold. Products without
// an explicit flag are treated as in stock.
func (p Product) Available() bool {
	return p.InStock == nil || *p.InStock
}

type Category struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Image        string `json:"image"`
	ProductCount int    `json:"productCount"`
}

// CartItem is a product together with the quantity held in a cart.
type CartItem struct {
	Product
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// CartSummary is the derived view of a cart.
type CartSummary struct {
	Items                []CartItem      `json:"items"`
	TotalItems           int             `json:"totalItems"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	Shipping             decimal.Decimal `json:"shipping"`
	Total                decimal.Decimal `json:"total"`
	FreeShipping         bool            `json:"freeShipping"`
	AmountToFreeShipping decimal.Decimal `json:"amountToFreeShipping"`
}

// CartLine is the persisted form of a cart entry.
type CartLine struct {
	ProductID string
	Quantity  int
}

type ProductDetail struct {
	Product Product   `json:"product"`
	Related []Product `json:"related"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	ID       string    `json:"id"`
	Role     string    `json:"role"`
	Content  string    `json:"content"`
	Products []Product `json:"products,omitempty"`
}

type ChatHistory struct {
	Messages    []ChatMessage `json:"messages"`
	Suggestions []string      `json:"suggestions,omitempty"`
}
