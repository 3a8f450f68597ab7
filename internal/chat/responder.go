package chat

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"github.com/drstein77/luxestore/internal/cart"
	"github.com/drstein77/luxestore/internal/catalog"
	"github.com/drstein77/luxestore/internal/models"
	"github.com/shopspring/decimal"
)

// MaxProducts caps the product references attached to a reply.
const MaxProducts = 3

// Reply is the assistant's answer to one message.
type Reply struct {
	Rule     string
	Content  string
	Products []models.Product
}

type rule struct {
	name  string
	match func(r *Responder, msg string) (Reply, bool)
}

var budgetPattern = regexp.MustCompile(`under\s*\$?(\d+)|less\s*than\s*\$?(\d+)|\$?(\d+)\s*or\s*less|cheap`)

// Rules run in this order and the first match answers.
var rules = []rule{
	{"cheapest", (*Responder).cheapest},
	{"premium", (*Responder).premium},
	{"tech", (*Responder).tech},
	{"budget", (*Responder).budget},
	{"category", (*Responder).category},
	{"compare", (*Responder).compare},
	{"recommend", (*Responder).recommend},
	{"count", (*Responder).count},
	{"product", (*Responder).productByName},
	{"features", (*Responder).features},
	{"gift", (*Responder).gift},
	{"shipping", (*Responder).shipping},
	{"returns", (*Responder).returns},
	{"warranty", (*Responder).warranty},
	{"greeting", (*Responder).greeting},
	{"help", (*Responder).help},
}

// Responder answers shopper questions by keyword matching over the catalog.
// It is safe for concurrent use.
type Responder struct {
	catalog    *catalog.Catalog
	policy     cart.ShippingPolicy
	categories []string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewResponder builds a responder whose random picks are driven by seed.
func NewResponder(c *catalog.Catalog, policy cart.ShippingPolicy, seed int64) *Responder {
	return &Responder{
		catalog:    c,
		policy:     policy,
		categories: categoryKeywords(c),
		rnd:        rand.New(rand.NewSource(seed)),
	}
}

// categoryKeywords lists featured categories first, then the rest of the catalog's.
func categoryKeywords(c *catalog.Catalog) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, cat := range c.Categories() {
		id := strings.ToLower(cat.ID)
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, name := range c.CategoryNames() {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Respond runs the rule cascade against input.
func (r *Responder) Respond(input string) Reply {
	msg := strings.ToLower(strings.TrimSpace(input))

	for _, rl := range rules {
		if reply, ok := rl.match(r, msg); ok {
			reply.Rule = rl.name
			return capProducts(reply)
		}
	}

	return capProducts(Reply{
		Rule:     "fallback",
		Content:  `I'm not sure I understood that. Here are some popular products you might like, or type "help" to see what I can do:`,
		Products: r.shuffled(r.catalog.All(), MaxProducts),
	})
}

func capProducts(reply Reply) Reply {
	if len(reply.Products) > MaxProducts {
		reply.Products = reply.Products[:MaxProducts]
	}
	return reply
}

func containsAny(msg string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

func first(products []models.Product, n int) []models.Product {
	if len(products) > n {
		return products[:n]
	}
	return products
}

func (r *Responder) shuffled(products []models.Product, n int) []models.Product {
	r.mu.Lock()
	r.rnd.Shuffle(len(products), func(i, j int) {
		products[i], products[j] = products[j], products[i]
	})
	r.mu.Unlock()
	return first(products, n)
}

func (r *Responder) priceBetween(low, high int64) []models.Product {
	lo, hi := decimal.NewFromInt(low), decimal.NewFromInt(high)
	return r.catalog.Filter(func(p models.Product) bool {
		return p.Price.GreaterThanOrEqual(lo) && p.Price.LessThanOrEqual(hi)
	})
}

func (r *Responder) cheapest(msg string) (Reply, bool) {
	if !containsAny(msg, "cheapest", "lowest price", "least expensive") {
		return Reply{}, false
	}
	p, ok := r.catalog.Cheapest()
	if !ok {
		return Reply{}, false
	}
	return Reply{
		Content:  fmt.Sprintf("Our most affordable product is the **%s** at %s. It's a great entry point into our collection!", p.Name, FormatPrice(p.Price)),
		Products: []models.Product{p},
	}, true
}

func (r *Responder) premium(msg string) (Reply, bool) {
	if !containsAny(msg, "most expensive", "highest price", "premium") {
		return Reply{}, false
	}
	p, ok := r.catalog.MostExpensive()
	if !ok {
		return Reply{}, false
	}
	return Reply{
		Content:  fmt.Sprintf("Our premium offering is the **%s** at %s. It represents the pinnacle of our collection with exceptional quality.", p.Name, FormatPrice(p.Price)),
		Products: []models.Product{p},
	}, true
}

func (r *Responder) tech(msg string) (Reply, bool) {
	if !containsAny(msg, "electronics", "tech", "gadget", "device") {
		return Reply{}, false
	}
	products := r.catalog.Filter(func(p models.Product) bool {
		c := strings.ToLower(p.Category)
		return c == "tech" || c == "audio"
	})
	return Reply{
		Content:  fmt.Sprintf("Yes! We have %d tech products in our collection, including headphones, keyboards, fitness trackers, and more. Here are some highlights:", len(products)),
		Products: first(products, MaxProducts),
	}, true
}

func (r *Responder) budget(msg string) (Reply, bool) {
	m := budgetPattern.FindStringSubmatch(msg)
	if m == nil {
		return Reply{}, false
	}

	budget := decimal.NewFromInt(100)
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		if v, err := decimal.NewFromString(g); err == nil {
			budget = v
		}
		break
	}

	affordable := r.catalog.Filter(func(p models.Product) bool {
		return p.Price.LessThanOrEqual(budget)
	})
	if len(affordable) == 0 {
		return Reply{
			Content: fmt.Sprintf("I couldn't find any products under %s. Our prices start at %s. Would you like to see our most affordable items?", FormatPrice(budget), FormatPrice(r.catalog.MinPrice())),
		}, true
	}
	return Reply{
		Content:  fmt.Sprintf("I found %d products under %s. Here are some great options:", len(affordable), FormatPrice(budget)),
		Products: first(affordable, MaxProducts),
	}, true
}

func (r *Responder) category(msg string) (Reply, bool) {
	for _, cat := range r.categories {
		if !strings.Contains(msg, cat) {
			continue
		}
		products := r.catalog.ByCategory(cat)
		return Reply{
			Content:  fmt.Sprintf("We have %d products in our %s category. Take a look at these:", len(products), cat),
			Products: first(products, MaxProducts),
		}, true
	}
	return Reply{}, false
}

func (r *Responder) compare(msg string) (Reply, bool) {
	if !containsAny(msg, "compare", "difference", "vs") {
		return Reply{}, false
	}
	audio := r.catalog.Filter(func(p models.Product) bool { return p.Category == "Audio" })
	if len(audio) < 2 {
		return Reply{}, false
	}
	return Reply{
		Content:  "Here's a quick comparison of our popular items. Would you like more details on any specific product?",
		Products: first(audio, 2),
	}, true
}

func (r *Responder) recommend(msg string) (Reply, bool) {
	if !containsAny(msg, "best value", "recommend", "suggest", "what should i buy") {
		return Reply{}, false
	}
	return Reply{
		Content:  "Based on customer favorites, I'd recommend these products that offer excellent value for their price:",
		Products: r.shuffled(r.priceBetween(100, 250), MaxProducts),
	}, true
}

func (r *Responder) count(msg string) (Reply, bool) {
	if !containsAny(msg, "how many", "total products") {
		return Reply{}, false
	}
	return Reply{
		Content: fmt.Sprintf("We currently have **%d products** in our catalog across %d categories: %s.", r.catalog.Len(), len(r.categories), strings.Join(r.categories, ", ")),
	}, true
}

func (r *Responder) productByName(msg string) (Reply, bool) {
	for _, p := range r.catalog.All() {
		if !mentions(msg, p.Name) {
			continue
		}
		return Reply{
			Content:  fmt.Sprintf("The **%s** is a fantastic choice! Priced at %s, it's a %s item. %s...", p.Name, FormatPrice(p.Price), p.Category, truncate(p.Description, 100)),
			Products: []models.Product{p},
		}, true
	}
	return Reply{}, false
}

// mentions reports whether msg holds the whole name or any of its words longer than four letters.
func mentions(msg, name string) bool {
	name = strings.ToLower(name)
	if strings.Contains(msg, name) {
		return true
	}
	for _, word := range strings.Split(name, " ") {
		if len([]rune(word)) > 4 && strings.Contains(msg, word) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (r *Responder) features(msg string) (Reply, bool) {
	if !containsAny(msg, "features", "specs", "what does it have") {
		return Reply{}, false
	}
	featured := r.catalog.Filter(func(p models.Product) bool { return len(p.Features) > 0 })
	return Reply{
		Content:  "Many of our products come with impressive features. Here are some feature-rich options:",
		Products: first(featured, MaxProducts),
	}, true
}

func (r *Responder) gift(msg string) (Reply, bool) {
	if !containsAny(msg, "gift", "present") {
		return Reply{}, false
	}
	return Reply{
		Content:  "Looking for a gift? Here are some popular items in the perfect gift price range:",
		Products: r.shuffled(r.priceBetween(50, 200), MaxProducts),
	}, true
}

func (r *Responder) shipping(msg string) (Reply, bool) {
	if !containsAny(msg, "shipping", "delivery") {
		return Reply{}, false
	}
	return Reply{
		Content: fmt.Sprintf("We offer free shipping on orders over %s! For orders under %s, shipping is %s. All orders are delivered within 3-5 business days.",
			FormatPrice(r.policy.Threshold), FormatPrice(r.policy.Threshold), FormatPrice(r.policy.Fee)),
	}, true
}

func (r *Responder) returns(msg string) (Reply, bool) {
	if !containsAny(msg, "return", "refund") {
		return Reply{}, false
	}
	return Reply{
		Content: "We have a 30-day return policy on all products. If you're not satisfied, you can return any item within 30 days for a full refund.",
	}, true
}

func (r *Responder) warranty(msg string) (Reply, bool) {
	if !containsAny(msg, "warranty", "guarantee") {
		return Reply{}, false
	}
	return Reply{
		Content: "All our products come with a 2-year warranty. We stand behind the quality of every item we sell.",
	}, true
}

func (r *Responder) greeting(msg string) (Reply, bool) {
	if !containsAny(msg, "hello", "hi", "hey") {
		return Reply{}, false
	}
	return Reply{
		Content: "Hello! 👋 I'm your AI shopping assistant. I can help you find products, compare prices, or answer questions about our catalog. What are you looking for today?",
	}, true
}

const helpText = "I can help you with:\n\n" +
	"• **Finding products** by category (audio, tech, bags, etc.)\n" +
	"• **Price queries** (cheapest, under $X, premium)\n" +
	"• **Product recommendations** based on your needs\n" +
	"• **Comparisons** between products\n" +
	"• **Gift ideas** for any budget\n" +
	"• **Shipping, returns and warranty** questions\n" +
	"• **General questions** about our catalog\n\n" +
	`Try asking: "What's the cheapest?" or "Show me electronics"`

func (r *Responder) help(msg string) (Reply, bool) {
	if !containsAny(msg, "help", "what can you do") {
		return Reply{}, false
	}
	return Reply{Content: helpText}, true
}
