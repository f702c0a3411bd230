package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/cart"
	"github.com/xenking/skyshop/internal/domain/order"
)

const (
	orderColumns = `o.id, o.user_id, o.total_price, o.status, coalesce(o.idempotency_key, ''), o.created_at, o.updated_at`

	lockUserSQL = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	findOrderByKeySQL = `SELECT ` + orderColumns + ` FROM orders o
		WHERE o.user_id = $1 AND o.idempotency_key = $2`

	insertOrderSQL = `INSERT INTO orders (user_id, total_price, status, idempotency_key)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id, created_at, updated_at`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, product_id, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders o
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id DESC`

	listAllOrdersSQL = `SELECT ` + orderColumns + `, u.id, u.name, u.email FROM orders o
		JOIN users u ON u.id = o.user_id
		ORDER BY o.created_at DESC, o.id DESC`

	listOrderLinesSQL = `SELECT l.id, l.order_id, l.product_id, l.quantity, l.price_at_purchase,
			p.id, p.name, p.category, p.image, p.price
		FROM order_lines l
		LEFT JOIN products p ON p.id = l.product_id
		WHERE l.order_id = ANY($1)
		ORDER BY l.order_id, l.id`

	setOrderStatusSQL = `UPDATE orders o SET status = $2, updated_at = now()
		WHERE o.id = $1
		RETURNING ` + orderColumns
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// InTx runs fn inside a read-committed transaction. Cancelling ctx rolls the
// transaction back.
func (s *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, orderTx{tx: tx})
	})
}

// Get returns one order with its lines.
func (s *OrderStore) Get(ctx context.Context, id int64) (*order.View, error) {
	rows, err := s.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, apperr.Persistence("get order", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("order", id)
		}
		return nil, apperr.Persistence("get order", err)
	}
	views, err := s.withLines(ctx, []order.View{{Order: o}})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListByUser returns the user's orders with lines, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID int64) ([]order.View, error) {
	rows, err := s.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, apperr.Persistence("list orders", err)
	}
	views, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.View, error) {
		o, err := scanOrder(row)
		return order.View{Order: o}, err
	})
	if err != nil {
		return nil, apperr.Persistence("list orders", err)
	}
	return s.withLines(ctx, views)
}

// ListAll returns every order with its buyer and lines, newest first.
func (s *OrderStore) ListAll(ctx context.Context) ([]order.View, error) {
	rows, err := s.pool.Query(ctx, listAllOrdersSQL)
	if err != nil {
		return nil, apperr.Persistence("list all orders", err)
	}
	views, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.View, error) {
		var (
			v order.View
			b order.Buyer
		)
		err := row.Scan(
			&v.ID, &v.UserID, &v.TotalPrice, &v.Status, &v.IdempotencyKey, &v.CreatedAt, &v.UpdatedAt,
			&b.ID, &b.Name, &b.Email,
		)
		v.Buyer = &b
		return v, err
	})
	if err != nil {
		return nil, apperr.Persistence("list all orders", err)
	}
	return s.withLines(ctx, views)
}

// SetStatus updates the status of an order.
func (s *OrderStore) SetStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, setOrderStatusSQL, id, string(status))
	if err != nil {
		return nil, apperr.Persistence("set order status", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("order", id)
		}
		return nil, apperr.Persistence("set order status", err)
	}
	return &o, nil
}

// withLines loads the lines of all views in one query and attaches them.
func (s *OrderStore) withLines(ctx context.Context, views []order.View) ([]order.View, error) {
	if len(views) == 0 {
		return views, nil
	}
	ids := make([]int64, len(views))
	index := make(map[int64]int, len(views))
	for i, v := range views {
		ids[i] = v.ID
		index[v.ID] = i
	}

	rows, err := s.pool.Query(ctx, listOrderLinesSQL, ids)
	if err != nil {
		return nil, apperr.Persistence("list order lines", err)
	}
	lines, err := pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return nil, apperr.Persistence("list order lines", err)
	}
	for _, l := range lines {
		i := index[l.OrderID]
		views[i].Lines = append(views[i].Lines, l)
	}
	return views, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.LineView, error) {
	var (
		l        order.LineView
		pID      *int64
		pName    *string
		pCat     *string
		pImage   *string
		snapshot order.ProductSnapshot
	)
	err := row.Scan(
		&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.PriceAtPurchase,
		&pID, &pName, &pCat, &pImage, &snapshot.Price,
	)
	if err != nil {
		return l, err
	}
	if pID != nil {
		snapshot.ID = *pID
		snapshot.Name = deref(pName)
		snapshot.Category = deref(pCat)
		snapshot.Image = deref(pImage)
		l.Product = &snapshot
	}
	return l, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// orderTx implements order.Tx on a pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

func (t orderTx) LockUser(ctx context.Context, userID int64) error {
	var id int64
	if err := t.tx.QueryRow(ctx, lockUserSQL, userID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("user", userID)
		}
		return apperr.Persistence("lock user", err)
	}
	return nil
}

func (t orderTx) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (*order.Order, error) {
	rows, err := t.tx.Query(ctx, findOrderByKeySQL, userID, key)
	if err != nil {
		return nil, apperr.Persistence("find order by key", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("order", 0)
		}
		return nil, apperr.Persistence("find order by key", err)
	}
	return &o, nil
}

func (t orderTx) CartLines(ctx context.Context, userID int64) ([]cart.LineView, error) {
	return listCart(ctx, t.tx, userID)
}

func (t orderTx) Insert(ctx context.Context, o *order.Order, lines []order.Line) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.UserID, o.TotalPrice, string(o.Status), o.IdempotencyKey,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return apperr.Persistence("insert order", err)
	}

	batch := &pgx.Batch{}
	for i := range lines {
		lines[i].OrderID = o.ID
		batch.Queue(insertOrderLineSQL,
			o.ID, lines[i].ProductID, lines[i].Quantity, lines[i].PriceAtPurchase,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&lines[i].ID)
		})
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return apperr.Persistence("insert order lines", err)
	}
	return nil
}

func (t orderTx) ClearCart(ctx context.Context, userID int64) error {
	if _, err := t.tx.Exec(ctx, clearCartSQL, userID); err != nil {
		return apperr.Persistence("clear cart", err)
	}
	return nil
}
