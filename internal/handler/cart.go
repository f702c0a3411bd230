package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/cart"
)

// ListCart returns the caller's cart with current product data.
func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.List(r.Context(), principal(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "", "data", func(e *jx.Encoder) {
		e.ArrStart()
		for _, l := range lines {
			encodeCartView(e, l)
		}
		e.ArrEnd()
	})
}

// AddToCart adds {productId, quantity?} to the caller's cart. Adding a
// product already in the cart increases its quantity.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var (
		productID int64
		quantity  int64 = cart.DefaultQuantity
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = decodeInt(d, key)
		case "quantity":
			quantity, err = decodeInt(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if productID == 0 {
		fail(w, r, apperr.Invalid("productId", "is required"))
		return
	}
	line, err := h.carts.AddItem(r.Context(), principal(r).UserID, productID, int(quantity))
	if err != nil {
		fail(w, r, err)
		return
	}
	msg := "Added to cart"
	if line.Quantity > int(quantity) {
		msg = "Updated quantity"
	}
	respond(w, http.StatusOK, msg, "data", func(e *jx.Encoder) {
		encodeCartLine(e, *line)
	})
}

// UpdateCartLine sets the quantity of one of the caller's cart lines.
func (h *Handler) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "cart item")
	if err != nil {
		fail(w, r, err)
		return
	}
	var (
		quantity int64
		seen     bool
	)
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		seen = true
		var err error
		quantity, err = decodeInt(d, key)
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if !seen {
		fail(w, r, apperr.Invalid("quantity", "is required"))
		return
	}
	line, err := h.carts.UpdateQuantity(r.Context(), principal(r).UserID, id, int(quantity))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Quantity updated", "data", func(e *jx.Encoder) {
		encodeCartLine(e, *line)
	})
}

// RemoveCartLine deletes one of the caller's cart lines.
func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "cart item")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.carts.RemoveItem(r.Context(), principal(r).UserID, id); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Item removed", "", nil)
}
