package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/drstein77/luxestore/internal/middleware"
	"github.com/drstein77/luxestore/internal/models"
	"github.com/go-chi/chi"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxBodySize = 1 << 20

// Storage interface for the storefront operations
type Storage interface {
	Ping(context.Context) bool

	Products(category, query string) []models.Product
	Product(id string) (models.ProductDetail, error)
	Categories() []models.Category
	CategoryProducts(id string) ([]models.Product, error)
	ExportProducts(io.Writer) error

	Cart(sessionID string) models.CartSummary
	AddToCart(sessionID, productID string, qty int) (models.CartSummary, error)
	SetQuantity(sessionID, productID string, qty int) (models.CartSummary, error)
	Increment(sessionID, productID string) (models.CartSummary, error)
	Decrement(sessionID, productID string) (models.CartSummary, error)
	RemoveFromCart(sessionID, productID string) (models.CartSummary, error)
	ClearCart(sessionID string) models.CartSummary
	ImportCart(sessionID string, r io.Reader) (models.CartSummary, error)

	ChatHistory(sessionID string) models.ChatHistory
	SendMessage(sessionID, text string) (models.ChatMessage, error)
}

// Log interface for logging
type Log interface {
	Info(string, ...zapcore.Field)
	Error(string, ...zapcore.Field)
}

// BaseController struct for handling requests
type BaseController struct {
	storage Storage
	log     Log
}

// NewBaseController creates a new BaseController instance
func NewBaseController(storage Storage, log Log) *BaseController {
	return &BaseController{
		storage: storage,
		log:     log,
	}
}

// Route sets up the routes for the BaseController
func (h *BaseController) Route() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/ping", h.ping)

	r.Route("/api/v0", func(r chi.Router) {
		r.Get("/products", h.getProducts)
		r.With(middleware.ArchiveResponse("products.csv")).Get("/products/export", h.exportProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/categories", h.getCategories)
		r.Get("/categories/{id}/products", h.getCategoryProducts)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session)

			r.Get("/cart", h.getCart)
			r.Delete("/cart", h.clearCart)
			r.Post("/cart/items", h.addItem)
			r.Put("/cart/items/{id}", h.setQuantity)
			r.Delete("/cart/items/{id}", h.removeItem)
			r.Post("/cart/items/{id}/increment", h.increment)
			r.Post("/cart/items/{id}/decrement", h.decrement)
			r.With(middleware.ArchiveRequest(maxBodySize)).Post("/cart/import", h.importCart)

			r.Get("/chat", h.getChat)
			r.Post("/chat", h.postChat)
		})
	})

	return r
}

func (h *BaseController) ping(w http.ResponseWriter, r *http.Request) {
	if !h.storage.Ping(r.Context()) {
		http.Error(w, "database is unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *BaseController) getProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.writeJSON(w, http.StatusOK, h.storage.Products(q.Get("category"), q.Get("q")))
}

func (h *BaseController) getProduct(w http.ResponseWriter, r *http.Request) {
	detail, err := h.storage.Product(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

func (h *BaseController) exportProducts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	if err := h.storage.ExportProducts(w); err != nil {
		h.log.Error("Failed to export products", zap.Error(err))
	}
}

func (h *BaseController) getCategories(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.storage.Categories())
}

func (h *BaseController) getCategoryProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.storage.CategoryProducts(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

func (h *BaseController) getCart(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.storage.Cart(middleware.SessionID(r.Context())))
}

func (h *BaseController) clearCart(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.storage.ClearCart(middleware.SessionID(r.Context())))
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

func (h *BaseController) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		h.writeError(w, badRequest("productId is required"))
		return
	}

	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	h.respondCart(w)(h.storage.AddToCart(middleware.SessionID(r.Context()), req.ProductID, qty))
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *BaseController) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, badRequest("quantity is required"))
		return
	}

	h.respondCart(w)(h.storage.SetQuantity(middleware.SessionID(r.Context()), chi.URLParam(r, "id"), *req.Quantity))
}

func (h *BaseController) increment(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w)(h.storage.Increment(middleware.SessionID(r.Context()), chi.URLParam(r, "id")))
}

func (h *BaseController) decrement(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w)(h.storage.Decrement(middleware.SessionID(r.Context()), chi.URLParam(r, "id")))
}

func (h *BaseController) removeItem(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w)(h.storage.RemoveFromCart(middleware.SessionID(r.Context()), chi.URLParam(r, "id")))
}

func (h *BaseController) importCart(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	h.respondCart(w)(h.storage.ImportCart(middleware.SessionID(r.Context()), body))
}

func (h *BaseController) respondCart(w http.ResponseWriter) func(models.CartSummary, error) {
	return func(summary models.CartSummary, err error) {
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, summary)
	}
}

func (h *BaseController) getChat(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.storage.ChatHistory(middleware.SessionID(r.Context())))
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *BaseController) postChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	answer, err := h.storage.SendMessage(middleware.SessionID(r.Context()), req.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, answer)
}

func (h *BaseController) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
