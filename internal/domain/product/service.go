package product

import (
	"context"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/skyshop/internal/domain/apperr"
)

// Service implements catalog administration on top of a Repository.
// Authorization is enforced by the HTTP layer.
type Service struct {
	repo Repository
}

// NewService creates a catalog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the whole catalog ordered by id.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

// Get returns a single product or a NotFoundError.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	if id <= 0 {
		return nil, apperr.Invalid("id", "product id is not valid")
	}
	return s.repo.GetByID(ctx, id)
}

// Create validates and stores a new product, filling its id and timestamps.
func (s *Service) Create(ctx context.Context, p Product) (*Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := Validate(p); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	return &p, nil
}

// Update applies patch to the product with the given id.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (*Product, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := patch.Apply(*current)
	next.Name = strings.TrimSpace(next.Name)
	if err := Validate(next); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Delete removes a product. Existing order lines keep their product id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperr.Invalid("id", "product id is not valid")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	zctx.From(ctx).Info("Product deleted", zap.Int64("product_id", id))
	return nil
}

// Validate checks the field-level invariants of a product.
func Validate(p Product) error {
	if p.Name == "" {
		return apperr.Invalid("name", "must not be empty")
	}
	if p.Price.Valid && p.Price.Decimal.IsNegative() {
		return apperr.Invalid("price", "must not be negative")
	}
	if p.Stock != nil && *p.Stock < 0 {
		return apperr.Invalid("stock", "must not be negative")
	}
	return nil
}
