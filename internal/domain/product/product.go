package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Product is an aircraft listing in the catalog.
//
// Price is NULL for "price on request" listings. Such products can be carted
// but an order cannot be placed for them.
type Product struct {
	ID          int64
	Name        string
	Category    string
	Description string
	Price       decimal.NullDecimal
	Image       string
	Stock       *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Patch carries a partial update. Nil fields are left unchanged; ClearPrice
// and ClearStock reset the nullable columns.
type Patch struct {
	Name        *string
	Category    *string
	Description *string
	Price       *decimal.Decimal
	ClearPrice  bool
	Image       *string
	Stock       *int
	ClearStock  bool
}

// Apply returns a copy of p with the patch applied.
func (pt Patch) Apply(p Product) Product {
	if pt.Name != nil {
		p.Name = *pt.Name
	}
	if pt.Category != nil {
		p.Category = *pt.Category
	}
	if pt.Description != nil {
		p.Description = *pt.Description
	}
	switch {
	case pt.ClearPrice:
		p.Price = decimal.NullDecimal{}
	case pt.Price != nil:
		p.Price = decimal.NewNullDecimal(*pt.Price)
	}
	if pt.Image != nil {
		p.Image = *pt.Image
	}
	switch {
	case pt.ClearStock:
		p.Stock = nil
	case pt.Stock != nil:
		v := *pt.Stock
		p.Stock = &v
	}
	return p
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id int64) error
}
