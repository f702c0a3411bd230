package cart

import (
	"context"
	"math"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/skyshop/internal/domain/apperr"
)

// DefaultQuantity is used when an add request omits the quantity.
const DefaultQuantity = 1

// MaxQuantity is the largest quantity a cart line can hold.
const MaxQuantity = math.MaxInt32

// Service implements cart operations for an authenticated user.
type Service struct {
	repo Repository
}

// NewService creates a cart Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AddItem adds quantity units of productID to the user's cart.
func (s *Service) AddItem(ctx context.Context, userID, productID int64, quantity int) (*Line, error) {
	if productID <= 0 {
		return nil, apperr.Invalid("productId", "product id is not valid")
	}
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	line, err := s.repo.Add(ctx, userID, productID, quantity)
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Debug("Cart item added",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", line.Quantity),
	)
	return line, nil
}

// UpdateQuantity overwrites the quantity of a line owned by the user.
// Quantities below 1 are rejected; removal goes through RemoveItem.
func (s *Service) UpdateQuantity(ctx context.Context, userID, lineID int64, quantity int) (*Line, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	return s.repo.SetQuantity(ctx, userID, lineID, quantity)
}

func validateQuantity(quantity int) error {
	switch {
	case quantity < 1:
		return apperr.Invalid("quantity", "must be at least 1")
	case quantity > MaxQuantity:
		return apperr.Invalid("quantity", "is too large")
	}
	return nil
}

// RemoveItem deletes a line owned by the user.
func (s *Service) RemoveItem(ctx context.Context, userID, lineID int64) error {
	return s.repo.Remove(ctx, userID, lineID)
}

// List returns the user's cart with product snapshots.
func (s *Service) List(ctx context.Context, userID int64) ([]LineView, error) {
	return s.repo.List(ctx, userID)
}
