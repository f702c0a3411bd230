// Package handler exposes the SkyShop HTTP API.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/cart"
	"github.com/xenking/skyshop/internal/domain/order"
	"github.com/xenking/skyshop/internal/domain/product"
	"github.com/xenking/skyshop/pkg/httpmiddleware"
)

// ProductService is the catalog as seen by the API.
type ProductService interface {
	List(ctx context.Context) ([]product.Product, error)
	Get(ctx context.Context, id int64) (*product.Product, error)
	Create(ctx context.Context, p product.Product) (*product.Product, error)
	Update(ctx context.Context, id int64, patch product.Patch) (*product.Product, error)
	Delete(ctx context.Context, id int64) error
}

// CartService is the per-user cart as seen by the API.
type CartService interface {
	AddItem(ctx context.Context, userID, productID int64, quantity int) (*cart.Line, error)
	UpdateQuantity(ctx context.Context, userID, lineID int64, quantity int) (*cart.Line, error)
	RemoveItem(ctx context.Context, userID, lineID int64) error
	List(ctx context.Context, userID int64) ([]cart.LineView, error)
}

// OrderService is order placement and the order ledger as seen by the API.
type OrderService interface {
	PlaceOrder(ctx context.Context, userID int64, key string) (*order.PlaceOrderResult, error)
	Get(ctx context.Context, id int64) (*order.View, error)
	ListForUser(ctx context.Context, userID int64) ([]order.View, error)
	ListAll(ctx context.Context) ([]order.View, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*order.Order, error)
}

// Handler serves the catalog, cart and order endpoints.
type Handler struct {
	products ProductService
	carts    CartService
	orders   OrderService
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(products ProductService, carts CartService, orders OrderService) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		orders:   orders,
	}
}

// RouterConfig holds the collaborators of the API router.
type RouterConfig struct {
	Auth *Authenticator
	// PlaceOrderLimit guards order placement, keyed per user. Optional.
	PlaceOrderLimit httpmiddleware.Middleware
	// Middlewares run inside the router, where the route pattern resolves.
	Middlewares []httpmiddleware.Middleware
}

// Router returns the API routes, to be mounted under /api.
func (h *Handler) Router(cfg RouterConfig) chi.Router {
	placeLimit := cfg.PlaceOrderLimit
	if placeLimit == nil {
		placeLimit = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()
	for _, m := range cfg.Middlewares {
		r.Use(m)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.Authenticate, RequireAdmin)
			r.Post("/", h.CreateProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Authenticate)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.ListCart)
			r.Post("/", h.AddToCart)
			r.Put("/{id}", h.UpdateCartLine)
			r.Delete("/{id}", h.RemoveCartLine)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(placeLimit).Post("/place", h.PlaceOrder)
			r.Get("/my", h.MyOrders)
			r.With(RequireAdmin).Get("/", h.ListOrders)
			r.With(RequireAdmin).Put("/{id}/status", h.UpdateOrderStatus)
		})
	})
	return r
}

// pathID parses the {id} route parameter.
func pathID(r *http.Request, entity string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &apperr.ValidationError{Reason: capitalize(entity) + " id is not valid"}
	}
	return id, nil
}
