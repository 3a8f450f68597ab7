package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/drstein77/luxestore/internal/cart"
	"github.com/drstein77/luxestore/internal/catalog"
	"github.com/drstein77/luxestore/internal/chat"
	"github.com/drstein77/luxestore/internal/exchange"
	"github.com/drstein77/luxestore/internal/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidImport = errors.New("invalid cart import")
)

type Log interface {
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)
}

// Keeper interface for database operations
type Keeper interface {
	Ping(context.Context) bool
	Close() bool
	// SaveCarts replaces the stored lines of every session in carts.
	// An empty slice deletes the session's snapshot.
	SaveCarts(context.Context, map[string][]models.CartLine) error
	LoadCarts(context.Context) (map[string][]models.CartLine, error)
}

// Config carries what the storage serves besides sessions.
type Config struct {
	Catalog    *catalog.Catalog
	Responder  *chat.Responder
	Policy     cart.ShippingPolicy
	SessionTTL time.Duration
}

type session struct {
	cart    *cart.Cart
	chat    *chat.Conversation
	dirty   bool
	touched time.Time
}

// MemoryStorage keeps shopper sessions in memory and snapshots carts through the keeper
type MemoryStorage struct {
	mx       sync.RWMutex
	sessions map[string]*session
	evicted  map[string]struct{} // ids whose snapshots are dropped on the next flush

	catalog   *catalog.Catalog
	responder *chat.Responder
	policy    cart.ShippingPolicy
	ttl       time.Duration
	now       func() time.Time

	keeper Keeper
	log    Log
}

// NewMemoryStorage creates a new MemoryStorage instance and restores saved carts
// when a keeper is given.
func NewMemoryStorage(ctx context.Context, cfg Config, keeper Keeper, log Log) *MemoryStorage {
	s := &MemoryStorage{
		sessions:  make(map[string]*session),
		evicted:   make(map[string]struct{}),
		catalog:   cfg.Catalog,
		responder: cfg.Responder,
		policy:    cfg.Policy,
		ttl:       cfg.SessionTTL,
		now:       time.Now,
		keeper:    keeper,
		log:       log,
	}

	if keeper != nil {
		if err := s.Load(ctx); err != nil {
			log.Error("cannot load saved carts", zap.Error(err))
		}
	}

	return s
}

// Load restores cart snapshots from the keeper. Lines naming unknown products are skipped.
func (s *MemoryStorage) Load(ctx context.Context) error {
	if s.keeper == nil {
		return nil
	}

	carts, err := s.keeper.LoadCarts(ctx)
	if err != nil {
		return fmt.Errorf("load carts: %w", err)
	}

	s.mx.Lock()
	defer s.mx.Unlock()

	now := s.now()
	for id, lines := range carts {
		sess := s.newSession(now)
		for _, l := range lines {
			p, err := s.catalog.Get(l.ProductID)
			if err != nil {
				s.log.Warn("skipping saved cart line",
					zap.String("session", id), zap.String("product", l.ProductID), zap.Error(err))
				sess.dirty = true
				continue
			}
			if err := sess.cart.Add(p, l.Quantity); err != nil {
				s.log.Warn("skipping saved cart line",
					zap.String("session", id), zap.String("product", l.ProductID), zap.Error(err))
				sess.dirty = true
			}
		}
		s.sessions[id] = sess
	}

	s.log.Info("saved carts loaded", zap.Int("sessions", len(carts)))
	return nil
}

func (s *MemoryStorage) newSession(now time.Time) *session {
	return &session{
		cart:    cart.New(),
		chat:    chat.NewConversation(),
		touched: now,
	}
}

// session returns the session for id, creating it when absent. Callers hold the write lock.
func (s *MemoryStorage) session(id string) *session {
	now := s.now()
	sess, ok := s.sessions[id]
	if !ok {
		sess = s.newSession(now)
		s.sessions[id] = sess
		delete(s.evicted, id)
	}
	sess.touched = now
	return sess
}

// Products lists the catalog, narrowed by category and a search query when given.
func (s *MemoryStorage) Products(category, query string) []models.Product {
	var products []models.Product
	switch {
	case category != "":
		products = s.catalog.ByCategory(category)
	case query != "":
		return s.catalog.Search(query)
	default:
		return s.catalog.All()
	}

	if query == "" {
		return products
	}
	matches := make(map[string]struct{})
	for _, p := range s.catalog.Search(query) {
		matches[p.ID] = struct{}{}
	}
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if _, ok := matches[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Product returns a product with the products related to it.
func (s *MemoryStorage) Product(id string) (models.ProductDetail, error) {
	p, err := s.catalog.Get(id)
	if err != nil {
		return models.ProductDetail{}, fmt.Errorf("product %q: %w", id, ErrNotFound)
	}
	related, err := s.catalog.Related(id, catalog.DefaultRelatedLimit)
	if err != nil {
		return models.ProductDetail{}, err
	}
	return models.ProductDetail{Product: p, Related: related}, nil
}

func (s *MemoryStorage) Categories() []models.Category {
	return s.catalog.Categories()
}

// CategoryProducts lists the products of the category with the given id.
func (s *MemoryStorage) CategoryProducts(id string) ([]models.Product, error) {
	cat, ok := s.catalog.Category(id)
	if !ok {
		return nil, fmt.Errorf("category %q: %w", id, ErrNotFound)
	}
	return s.catalog.ByCategory(cat.Name), nil
}

// ExportProducts writes the whole catalog as CSV.
func (s *MemoryStorage) ExportProducts(w io.Writer) error {
	return exchange.WriteProducts(w, s.catalog.All())
}

func (s *MemoryStorage) Cart(sessionID string) models.CartSummary {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.session(sessionID).cart.Summary(s.policy)
}

// AddToCart puts qty units of a product in the session's cart.
func (s *MemoryStorage) AddToCart(sessionID, productID string, qty int) (models.CartSummary, error) {
	p, err := s.catalog.Get(productID)
	if err != nil {
		return models.CartSummary{}, fmt.Errorf("product %q: %w", productID, ErrNotFound)
	}

	return s.updateCart(sessionID, func(c *cart.Cart) error {
		return c.Add(p, qty)
	})
}

func (s *MemoryStorage) SetQuantity(sessionID, productID string, qty int) (models.CartSummary, error) {
	return s.updateCart(sessionID, func(c *cart.Cart) error {
		return c.SetQuantity(productID, qty)
	})
}

func (s *MemoryStorage) Increment(sessionID, productID string) (models.CartSummary, error) {
	return s.updateCart(sessionID, func(c *cart.Cart) error {
		return c.Increment(productID)
	})
}

func (s *MemoryStorage) Decrement(sessionID, productID string) (models.CartSummary, error) {
	return s.updateCart(sessionID, func(c *cart.Cart) error {
		return c.Decrement(productID)
	})
}

func (s *MemoryStorage) RemoveFromCart(sessionID, productID string) (models.CartSummary, error) {
	return s.updateCart(sessionID, func(c *cart.Cart) error {
		return c.Remove(productID)
	})
}

func (s *MemoryStorage) ClearCart(sessionID string) models.CartSummary {
	summary, _ := s.updateCart(sessionID, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
	return summary
}

// ImportCart adds every line of a product_id,quantity CSV document to the cart.
// Nothing is added unless every row is valid and names a known product.
func (s *MemoryStorage) ImportCart(sessionID string, r io.Reader) (models.CartSummary, error) {
	lines, err := exchange.ReadCartLines(r)
	if err != nil {
		return models.CartSummary{}, fmt.Errorf("%w: %w", ErrInvalidImport, err)
	}

	products := make([]models.Product, len(lines))
	for i, l := range lines {
		p, err := s.catalog.Get(l.ProductID)
		if err != nil {
			return models.CartSummary{}, fmt.Errorf("%w: unknown product %q", ErrInvalidImport, l.ProductID)
		}
		products[i] = p
	}

	return s.updateCart(sessionID, func(c *cart.Cart) error {
		// check the cap up front so a refused import leaves the cart untouched
		totals := make(map[string]int, len(lines))
		for _, l := range lines {
			if _, seen := totals[l.ProductID]; !seen {
				totals[l.ProductID] = c.Quantity(l.ProductID)
			}
			totals[l.ProductID] += l.Quantity
			if totals[l.ProductID] > cart.MaxQuantity {
				return fmt.Errorf("%w: product %q would exceed %d units", ErrInvalidImport, l.ProductID, cart.MaxQuantity)
			}
		}

		for i, l := range lines {
			if err := c.Add(products[i], l.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *MemoryStorage) updateCart(sessionID string, update func(*cart.Cart) error) (models.CartSummary, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	sess := s.session(sessionID)
	if err := update(sess.cart); err != nil {
		return models.CartSummary{}, err
	}
	sess.dirty = true
	return sess.cart.Summary(s.policy), nil
}

func (s *MemoryStorage) ChatHistory(sessionID string) models.ChatHistory {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.session(sessionID).chat.History()
}

// SendMessage records a shopper message and returns the assistant's answer.
func (s *MemoryStorage) SendMessage(sessionID, text string) (models.ChatMessage, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	answer, reply, err := s.session(sessionID).chat.Send(s.responder, text)
	if err != nil {
		return models.ChatMessage{}, err
	}
	s.log.Info("assistant replied",
		zap.String("session", sessionID), zap.String("rule", reply.Rule), zap.Int("products", len(reply.Products)))
	return answer, nil
}

// Sessions is the number of live sessions.
func (s *MemoryStorage) Sessions() int {
	s.mx.RLock()
	defer s.mx.RUnlock()

	return len(s.sessions)
}

// Ping reports whether the keeper is reachable. Without a keeper there is nothing to reach.
func (s *MemoryStorage) Ping(ctx context.Context) bool {
	if s.keeper == nil {
		return true
	}
	return s.keeper.Ping(ctx)
}

// Evict drops sessions idle for longer than the session TTL and returns how many went.
func (s *MemoryStorage) Evict() int {
	s.mx.Lock()
	defer s.mx.Unlock()

	deadline := s.now().Add(-s.ttl)
	n := 0
	for id, sess := range s.sessions {
		if sess.touched.Before(deadline) {
			delete(s.sessions, id)
			s.evicted[id] = struct{}{}
			n++
		}
	}
	return n
}

// Flush hands dirty carts and evicted sessions to the keeper. When the batch is
// refused each session is retried alone, so one bad cart cannot hold back the
// rest. Sessions that still fail stay pending for the next flush.
func (s *MemoryStorage) Flush(ctx context.Context) error {
	if s.keeper == nil {
		return nil
	}

	s.mx.Lock()
	batch := make(map[string][]models.CartLine)
	for id, sess := range s.sessions {
		if sess.dirty {
			batch[id] = sess.cart.Lines()
			sess.dirty = false
		}
	}
	for id := range s.evicted {
		batch[id] = nil
	}
	s.evicted = make(map[string]struct{})
	s.mx.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := s.keeper.SaveCarts(ctx, batch)
	if err == nil {
		s.log.Info("carts flushed", zap.Int("sessions", len(batch)))
		return nil
	}
	if len(batch) == 1 || ctx.Err() != nil {
		s.requeue(batch)
		return fmt.Errorf("save carts: %w", err)
	}

	s.log.Warn("batch flush refused, saving sessions one by one", zap.Error(err))

	var errs error
	failed := make(map[string][]models.CartLine)
	for id, lines := range batch {
		if err := s.keeper.SaveCarts(ctx, map[string][]models.CartLine{id: lines}); err != nil {
			s.log.Error("cannot flush cart", zap.String("session", id), zap.Error(err))
			failed[id] = lines
			errs = multierr.Append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	s.requeue(failed)

	s.log.Info("carts flushed", zap.Int("sessions", len(batch)-len(failed)), zap.Int("failed", len(failed)))
	if errs != nil {
		return fmt.Errorf("save carts: %w", errs)
	}
	return nil
}

// requeue marks the sessions of an unsaved batch pending again.
func (s *MemoryStorage) requeue(batch map[string][]models.CartLine) {
	s.mx.Lock()
	defer s.mx.Unlock()

	for id := range batch {
		if sess, ok := s.sessions[id]; ok {
			sess.dirty = true
		} else {
			s.evicted[id] = struct{}{}
		}
	}
}

// Run evicts idle sessions and flushes carts every interval until ctx is done,
// then flushes one last time.
func (s *MemoryStorage) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Flush(context.WithoutCancel(ctx))
		case <-ticker.C:
			if n := s.Evict(); n > 0 {
				s.log.Info("idle sessions evicted", zap.Int("count", n))
			}
			if err := s.Flush(ctx); err != nil {
				s.log.Error("cannot flush carts", zap.Error(err))
			}
		}
	}
}

// Close releases the keeper.
func (s *MemoryStorage) Close() {
	if s.keeper != nil {
		s.keeper.Close()
	}
}
