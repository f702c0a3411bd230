package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/cart"
)

const (
	cartLineColumns = `id, user_id, product_id, quantity, created_at, updated_at`

	// The upsert keeps (user_id, product_id) unique under concurrent adds.
	addCartLineSQL = `INSERT INTO cart_lines (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = cart_lines.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING ` + cartLineColumns

	setCartQuantitySQL = `UPDATE cart_lines SET quantity = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + cartLineColumns

	removeCartLineSQL = `DELETE FROM cart_lines WHERE id = $1 AND user_id = $2`

	listCartSQL = `SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at,
			p.id, p.name, p.category, p.price, p.image, p.stock
		FROM cart_lines c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.id`

	clearCartSQL = `DELETE FROM cart_lines WHERE user_id = $1`

	cartProductFK = "cart_lines_product_id_fkey"
	cartUserFK    = "cart_lines_user_id_fkey"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Add upserts the (user, product) line, incrementing an existing quantity.
func (r *CartRepository) Add(ctx context.Context, userID, productID int64, quantity int) (*cart.Line, error) {
	rows, err := r.pool.Query(ctx, addCartLineSQL, userID, productID, quantity)
	if err != nil {
		return nil, apperr.Persistence("add cart item", err)
	}
	line, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		if pgErr, ok := pgError(err); ok {
			switch {
			case pgErr.Code == codeForeignKeyViolation && pgErr.ConstraintName == cartProductFK:
				return nil, apperr.NotFound("product", productID)
			case pgErr.Code == codeForeignKeyViolation && pgErr.ConstraintName == cartUserFK:
				return nil, apperr.NotFound("user", userID)
			case pgErr.Code == codeCheckViolation:
				return nil, apperr.Invalid("quantity", "must be at least 1")
			case pgErr.Code == codeNumericOutOfRange:
				return nil, apperr.Invalid("quantity", "is too large")
			}
		}
		return nil, apperr.Persistence("add cart item", err)
	}
	return &line, nil
}

// SetQuantity overwrites the quantity of a line owned by userID.
func (r *CartRepository) SetQuantity(ctx context.Context, userID, lineID int64, quantity int) (*cart.Line, error) {
	rows, err := r.pool.Query(ctx, setCartQuantitySQL, lineID, userID, quantity)
	if err != nil {
		return nil, apperr.Persistence("update cart item", err)
	}
	line, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("item", lineID)
		}
		if pgErr, ok := pgError(err); ok {
			switch pgErr.Code {
			case codeCheckViolation:
				return nil, apperr.Invalid("quantity", "must be at least 1")
			case codeNumericOutOfRange:
				return nil, apperr.Invalid("quantity", "is too large")
			}
		}
		return nil, apperr.Persistence("update cart item", err)
	}
	return &line, nil
}

// Remove deletes a line owned by userID.
func (r *CartRepository) Remove(ctx context.Context, userID, lineID int64) error {
	tag, err := r.pool.Exec(ctx, removeCartLineSQL, lineID, userID)
	if err != nil {
		return apperr.Persistence("remove cart item", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("item", lineID)
	}
	return nil
}

// List returns the user's cart joined with current product data.
func (r *CartRepository) List(ctx context.Context, userID int64) ([]cart.LineView, error) {
	return listCart(ctx, r.pool, userID)
}

func listCart(ctx context.Context, q querier, userID int64) ([]cart.LineView, error) {
	rows, err := q.Query(ctx, listCartSQL, userID)
	if err != nil {
		return nil, apperr.Persistence("list cart", err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.LineView, error) {
		var v cart.LineView
		err := row.Scan(
			&v.ID, &v.UserID, &v.ProductID, &v.Quantity, &v.CreatedAt, &v.UpdatedAt,
			&v.Product.ID, &v.Product.Name, &v.Product.Category, &v.Product.Price,
			&v.Product.Image, &v.Product.Stock,
		)
		return v, err
	})
	if err != nil {
		return nil, apperr.Persistence("list cart", err)
	}
	return lines, nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
