package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/cart"
)

// ErrEmptyCart is returned when an order is placed for an empty cart.
var ErrEmptyCart = errors.New("cart is empty")

// maxIdempotencyKeyLen bounds client-supplied idempotency keys.
const maxIdempotencyKeyLen = 128

// PricingError indicates a cart line whose product has no price.
type PricingError struct {
	ProductID int64
}

func (e *PricingError) Error() string {
	return fmt.Sprintf("price not found for productId=%d", e.ProductID)
}

// PlaceOrderResult holds the output of a placement.
type PlaceOrderResult struct {
	Order *Order
	Lines []Line
	// Replayed is set when the idempotency key matched an earlier order and
	// nothing was written.
	Replayed bool
}

// Service encapsulates order placement and the order ledger.
type Service struct {
	store  Store
	tracer trace.Tracer
	placed metric.Int64Counter
	failed metric.Int64Counter
}

// NewService creates an order Service with its telemetry instruments.
func NewService(store Store, tp trace.TracerProvider, mp metric.MeterProvider) (*Service, error) {
	meter := mp.Meter("skyshop/order")
	placed, err := meter.Int64Counter("skyshop.orders.placed",
		metric.WithDescription("Orders successfully placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	failed, err := meter.Int64Counter("skyshop.orders.failed",
		metric.WithDescription("Order placements rejected or aborted, by reason"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders failed counter")
	}
	return &Service{
		store:  store,
		tracer: tp.Tracer("skyshop/order"),
		placed: placed,
		failed: failed,
	}, nil
}

// PlaceOrder converts the user's cart into an order. The order insert, its
// lines and the cart clear are committed together or not at all.
//
// When key is non-empty and an order with that key already exists for the
// user, that order is returned with Replayed set.
func (s *Service) PlaceOrder(ctx context.Context, userID int64, key string) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(rerr))))
		}
		span.End()
	}()

	if len(key) > maxIdempotencyKeyLen {
		return nil, apperr.Invalid("Idempotency-Key", "must be at most 128 characters")
	}

	var result *PlaceOrderResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return errors.Wrap(err, "lock user")
		}

		if key != "" {
			existing, err := tx.FindByIdempotencyKey(ctx, userID, key)
			switch {
			case err == nil:
				result = &PlaceOrderResult{Order: existing, Replayed: true}
				return nil
			case !apperr.IsNotFound(err):
				return errors.Wrap(err, "find by idempotency key")
			}
		}

		items, err := tx.CartLines(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "load cart")
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		lines, total, err := priceLines(items)
		if err != nil {
			return err
		}

		o := &Order{
			UserID:         userID,
			TotalPrice:     total,
			Status:         StatusPending,
			IdempotencyKey: key,
		}
		if err := tx.Insert(ctx, o, lines); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.ClearCart(ctx, userID); err != nil {
			return errors.Wrap(err, "clear cart")
		}

		result = &PlaceOrderResult{Order: o, Lines: lines}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx)
	if result.Replayed {
		lg.Info("Order placement replayed",
			zap.Int64("order_id", result.Order.ID),
			zap.Int64("user_id", userID),
		)
		return result, nil
	}

	s.placed.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("order.id", result.Order.ID))
	lg.Info("Order placed",
		zap.Int64("order_id", result.Order.ID),
		zap.Int64("user_id", userID),
		zap.Int("lines", len(result.Lines)),
		zap.String("total", result.Order.TotalPrice.StringFixed(2)),
	)
	return result, nil
}

// priceLines snapshots each cart line's current unit price and sums the
// extensions in cart order.
func priceLines(items []cart.LineView) ([]Line, decimal.Decimal, error) {
	lines := make([]Line, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		if !item.Product.Price.Valid {
			return nil, decimal.Zero, &PricingError{ProductID: item.ProductID}
		}
		unit := item.Product.Price.Decimal
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
		lines = append(lines, Line{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			PriceAtPurchase: unit,
		})
	}
	return lines, total, nil
}

func failureReason(err error) string {
	var pe *PricingError
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.As(err, &pe):
		return "pricing"
	case apperr.IsValidation(err):
		return "validation"
	case apperr.IsNotFound(err):
		return "not_found"
	default:
		return "internal"
	}
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]View, error) {
	return s.store.ListByUser(ctx, userID)
}

// ListAll returns every order with its buyer, newest first.
func (s *Service) ListAll(ctx context.Context) ([]View, error) {
	return s.store.ListAll(ctx)
}

// UpdateStatus sets the fulfillment status of an order.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*Order, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, apperr.Invalid("id", "order id is not valid")
	}
	o, err := s.store.SetStatus(ctx, id, st)
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Order status updated",
		zap.Int64("order_id", id),
		zap.String("status", string(st)),
	)
	return o, nil
}

// Get returns a single order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	if id <= 0 {
		return nil, apperr.Invalid("id", "order id is not valid")
	}
	return s.store.Get(ctx, id)
}
