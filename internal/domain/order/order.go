package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/cart"
)

// Status is the fulfillment state of an order. Any status may move to any
// other; only membership in the enumeration is enforced.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
)

// ParseStatus validates s against the known statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusCompleted:
		return st, nil
	default:
		return "", apperr.Invalid("status", "invalid status")
	}
}

// Order is a placed order. TotalPrice is computed once at placement.
type Order struct {
	ID             int64
	UserID         int64
	TotalPrice     decimal.Decimal
	Status         Status
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Line is a frozen snapshot of one cart line at placement time.
type Line struct {
	ID              int64
	OrderID         int64
	ProductID       int64
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

// ProductSnapshot is the current catalog data for an order line's product.
type ProductSnapshot struct {
	ID       int64
	Name     string
	Category string
	Image    string
	Price    decimal.NullDecimal
}

// LineView is an order line with its product, which is nil when the product
// has since been deleted from the catalog.
type LineView struct {
	Line
	Product *ProductSnapshot
}

// Buyer identifies the purchasing user in administrator listings.
type Buyer struct {
	ID    int64
	Name  string
	Email string
}

// View is the read-side composition of an order, its lines and, for
// administrator listings, the buyer.
type View struct {
	Order
	Lines []LineView
	Buyer *Buyer
}

// Tx exposes the writes of order placement bound to one database
// transaction.
type Tx interface {
	// LockUser serializes concurrent placements for the same user until the
	// transaction ends.
	LockUser(ctx context.Context, userID int64) error
	// FindByIdempotencyKey returns a NotFoundError when no order carries key.
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (*Order, error)
	// CartLines returns the user's cart in insertion order.
	CartLines(ctx context.Context, userID int64) ([]cart.LineView, error)
	// Insert stores the order and its lines, filling ids and timestamps.
	Insert(ctx context.Context, o *Order, lines []Line) error
	ClearCart(ctx context.Context, userID int64) error
}

// Store defines persistence operations for the order ledger.
type Store interface {
	// InTx runs fn in a transaction that is committed when fn returns nil and
	// rolled back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, id int64) (*View, error)
	ListByUser(ctx context.Context, userID int64) ([]View, error)
	ListAll(ctx context.Context) ([]View, error)
	SetStatus(ctx context.Context, id int64, status Status) (*Order, error)
}
