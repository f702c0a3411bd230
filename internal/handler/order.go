package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/skyshop/internal/domain/order"
)

// IdempotencyKeyHeader lets clients retry PlaceOrder safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// PlaceOrder turns the caller's cart into an order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.PlaceOrder(r.Context(), principal(r).UserID, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		fail(w, r, err)
		return
	}
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	respond(w, http.StatusOK, "Order placed successfully", "orderId", func(e *jx.Encoder) {
		e.Int64(res.Order.ID)
	})
}

// MyOrders lists the caller's orders, newest first.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.orders.ListForUser(r.Context(), principal(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respondOrders(w, views)
}

// ListOrders lists every order with its buyer, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.orders.ListAll(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	respondOrders(w, views)
}

func respondOrders(w http.ResponseWriter, views []order.View) {
	respond(w, http.StatusOK, "", "data", func(e *jx.Encoder) {
		e.ArrStart()
		for _, v := range views {
			encodeOrderView(e, v)
		}
		e.ArrEnd()
	})
}

// UpdateOrderStatus sets {status} on an order and returns it with its lines.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "order")
	if err != nil {
		fail(w, r, err)
		return
	}
	var status string
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		status, err = decodeString(d, key)
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	updated, err := h.orders.UpdateStatus(r.Context(), id, status)
	if err != nil {
		fail(w, r, err)
		return
	}

	view, err := h.orders.Get(r.Context(), id)
	if err != nil {
		// The status is committed; fall back to the bare order.
		zctx.From(r.Context()).Warn("Reload order", zap.Int64("order_id", id), zap.Error(err))
		view = &order.View{Order: *updated}
	}
	respond(w, http.StatusOK, "Order status updated", "order", func(e *jx.Encoder) {
		encodeOrderView(e, *view)
	})
}
