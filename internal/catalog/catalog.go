package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/drstein77/luxestore/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultRelatedLimit is how many related products a detail view carries.
const DefaultRelatedLimit = 4

var (
	ErrNotFound    = errors.New("product not found")
	ErrInvalidSeed = errors.New("invalid catalog seed")
)

//go:embed products.yaml
var defaultSeed []byte

type seedProduct struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Price       float64  `yaml:"price"`
	Description string   `yaml:"description"`
	Image       string   `yaml:"image"`
	Category    string   `yaml:"category"`
	Features    []string `yaml:"features"`
	InStock     *bool    `yaml:"inStock"`
}

type seedCategory struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Image string `yaml:"image"`
}

type seed struct {
	Products []seedProduct  `yaml:"products"`
	Featured []seedCategory `yaml:"featured"`
}

// Catalog is a read-only product list indexed by id.
type Catalog struct {
	products []models.Product
	index    map[string]int
	featured []seedCategory
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultSeed))
}

// Open loads a catalog from a YAML file, or the built-in one when path is empty.
func Open(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load decodes and validates a YAML seed document.
func Load(r io.Reader) (*Catalog, error) {
	var s seed
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	c := &Catalog{
		products: make([]models.Product, 0, len(s.Products)),
		index:    make(map[string]int, len(s.Products)),
		featured: s.Featured,
	}

	for i, sp := range s.Products {
		id := strings.TrimSpace(sp.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: product %d has no id", ErrInvalidSeed, i)
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("%w: duplicate product id %q", ErrInvalidSeed, id)
		}
		if strings.TrimSpace(sp.Name) == "" {
			return nil, fmt.Errorf("%w: product %q has no name", ErrInvalidSeed, id)
		}
		if math.IsNaN(sp.Price) || math.IsInf(sp.Price, 0) {
			return nil, fmt.Errorf("%w: product %q has no finite price", ErrInvalidSeed, id)
		}
		if sp.Price < 0 {
			return nil, fmt.Errorf("%w: product %q has negative price", ErrInvalidSeed, id)
		}

		c.index[id] = len(c.products)
		c.products = append(c.products, models.Product{
			ID:          id,
			Name:        sp.Name,
			Price:       decimal.NewFromFloat(sp.Price),
			Description: sp.Description,
			Image:       sp.Image,
			Category:    sp.Category,
			Features:    sp.Features,
			InStock:     sp.InStock,
		})
	}

	return c, nil
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.products)
}

// All returns every product in seed order.
func (c *Catalog) All() []models.Product {
	return c.collect(func(models.Product) bool { return true })
}

// Get looks a product up by id.
func (c *Catalog) Get(id string) (models.Product, error) {
	i, ok := c.index[id]
	if !ok {
		return models.Product{}, ErrNotFound
	}
	return clone(c.products[i]), nil
}

// ByCategory returns the products whose category matches name, ignoring case.
func (c *Catalog) ByCategory(name string) []models.Product {
	return c.collect(func(p models.Product) bool {
		return strings.EqualFold(p.Category, name)
	})
}

// Related returns up to limit products sharing the category of id, excluding id itself.
func (c *Catalog) Related(id string, limit int) ([]models.Product, error) {
	p, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}

	related := c.collect(func(o models.Product) bool {
		return strings.EqualFold(o.Category, p.Category) && o.ID != p.ID
	})
	if len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}

// Search matches query against product names and descriptions.
func (c *Catalog) Search(query string) []models.Product {
	q := strings.ToLower(strings.TrimSpace(query))
	return c.collect(func(p models.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q)
	})
}

// Filter returns the products for which keep reports true.
func (c *Catalog) Filter(keep func(models.Product) bool) []models.Product {
	return c.collect(keep)
}

// Categories returns the featured categories with their product counts.
func (c *Catalog) Categories() []models.Category {
	out := make([]models.Category, 0, len(c.featured))
	for _, f := range c.featured {
		out = append(out, models.Category{
			ID:           f.ID,
			Name:         f.Name,
			Image:        f.Image,
			ProductCount: len(c.ByCategory(f.Name)),
		})
	}
	return out
}

// Category resolves a featured category id, falling back to any product category.
func (c *Catalog) Category(id string) (models.Category, bool) {
	for _, cat := range c.Categories() {
		if strings.EqualFold(cat.ID, id) {
			return cat, true
		}
	}

	products := c.ByCategory(id)
	if len(products) == 0 {
		return models.Category{}, false
	}
	return models.Category{
		ID:           strings.ToLower(products[0].Category),
		Name:         products[0].Category,
		Image:        products[0].Image,
		ProductCount: len(products),
	}, true
}

// CategoryNames lists every distinct category in lower case, in first-seen order.
func (c *Catalog) CategoryNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, p := range c.products {
		name := strings.ToLower(p.Category)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Cheapest returns the lowest priced product. The first one wins on ties.
func (c *Catalog) Cheapest() (models.Product, bool) {
	return c.pick(func(a, b models.Product) bool { return a.Price.LessThan(b.Price) })
}

// MostExpensive returns the highest priced product. The first one wins on ties.
func (c *Catalog) MostExpensive() (models.Product, bool) {
	return c.pick(func(a, b models.Product) bool { return a.Price.GreaterThan(b.Price) })
}

// MinPrice is the lowest price in the catalog, zero when empty.
func (c *Catalog) MinPrice() decimal.Decimal {
	p, ok := c.Cheapest()
	if !ok {
		return decimal.Zero
	}
	return p.Price
}

func (c *Catalog) pick(better func(a, b models.Product) bool) (models.Product, bool) {
	if len(c.products) == 0 {
		return models.Product{}, false
	}
	best := c.products[0]
	for _, p := range c.products[1:] {
		if better(p, best) {
			best = p
		}
	}
	return clone(best), true
}

func (c *Catalog) collect(keep func(models.Product) bool) []models.Product {
	out := make([]models.Product, 0)
	for _, p := range c.products {
		if keep(p) {
			out = append(out, clone(p))
		}
	}
	return out
}

func clone(p models.Product) models.Product {
	if p.Features != nil {
		p.Features = append([]string(nil), p.Features...)
	}
	if p.InStock != nil {
		v := *p.InStock
		p.InStock = &v
	}
	return p
}
