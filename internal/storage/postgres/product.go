package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/product"
)

const (
	productColumns = `id, name, category, description, price, image, stock, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	createProductSQL = `INSERT INTO products (name, category, description, price, image, stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	updateProductSQL = `UPDATE products
		SET name = $2, category = $3, description = $4, price = $5, image = $6, stock = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	listProductKeysSQL = `SELECT name, category FROM products`

	productExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM products WHERE lower(name) = lower($1) AND lower(category) = lower($2)
	)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, apperr.Persistence("list products", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, apperr.Persistence("list products", err)
	}
	return products, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, apperr.Persistence("get product", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("product", id)
		}
		return nil, apperr.Persistence("get product", err)
	}
	return &p, nil
}

// Create inserts p and fills its ID and timestamps.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, createProductSQL,
		p.Name, p.Category, p.Description, p.Price, p.Image, p.Stock,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return productWriteError("create product", err)
	}
	return nil
}

// Update overwrites every mutable column of p.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, updateProductSQL,
		p.ID, p.Name, p.Category, p.Description, p.Price, p.Image, p.Stock,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("product", p.ID)
		}
		return productWriteError("update product", err)
	}
	return nil
}

// Delete removes the product. Cart lines referencing it cascade.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return apperr.Persistence("delete product", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("product", id)
	}
	return nil
}

// Keys returns the (name, category) pair of every product, used by catalog
// imports to skip listings that already exist.
func (r *ProductRepository) Keys(ctx context.Context) ([][2]string, error) {
	rows, err := r.pool.Query(ctx, listProductKeysSQL)
	if err != nil {
		return nil, apperr.Persistence("list product keys", err)
	}
	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([2]string, error) {
		var k [2]string
		err := row.Scan(&k[0], &k[1])
		return k, err
	})
	if err != nil {
		return nil, apperr.Persistence("list product keys", err)
	}
	return keys, nil
}

// Exists reports whether a product with the same name and category, compared
// case-insensitively, is already listed.
func (r *ProductRepository) Exists(ctx context.Context, name, category string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, productExistsSQL, name, category).Scan(&ok); err != nil {
		return false, apperr.Persistence("product exists", err)
	}
	return ok, nil
}

func productWriteError(op string, err error) error {
	if pgErr, ok := pgError(err); ok && pgErr.Code == codeCheckViolation {
		return apperr.Invalid("", "price and stock must not be negative")
	}
	return apperr.Persistence(op, err)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Category, &p.Description, &p.Price, &p.Image, &p.Stock,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
