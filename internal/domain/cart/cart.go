// Package cart implements the per-user shopping cart.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Line is one (user, product, quantity) record. At most one Line exists per
// (UserID, ProductID) pair.
type Line struct {
	ID        int64
	UserID    int64
	ProductID int64
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductSnapshot is the current catalog data joined onto a cart line.
type ProductSnapshot struct {
	ID       int64
	Name     string
	Category string
	Price    decimal.NullDecimal
	Image    string
	Stock    *int
}

// LineView is a Line combined with its product snapshot.
type LineView struct {
	Line
	Product ProductSnapshot
}

// Repository defines persistence operations for cart lines.
//
// Add must be atomic with respect to concurrent calls for the same
// (userID, productID) pair.
type Repository interface {
	// Add increments the quantity of the existing line or inserts a new one.
	// It returns a NotFoundError when the product does not exist.
	Add(ctx context.Context, userID, productID int64, quantity int) (*Line, error)
	// SetQuantity and Remove return a NotFoundError when the line does not
	// exist or belongs to another user.
	SetQuantity(ctx context.Context, userID, lineID int64, quantity int) (*Line, error)
	Remove(ctx context.Context, userID, lineID int64) error
	// List returns the user's lines in insertion order.
	List(ctx context.Context, userID int64) ([]LineView, error)
}
