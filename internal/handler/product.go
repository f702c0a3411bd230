package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/skyshop/internal/domain/product"
)

// ListProducts returns the whole catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Products retrieved successfully", "data", func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			encodeProduct(e, p)
		}
		e.ArrEnd()
	})
}

// GetProduct returns one product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "product")
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Product was found", "data", func(e *jx.Encoder) {
		encodeProduct(e, *p)
	})
}

// CreateProduct adds a product to the catalog.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeProductPatch(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.products.Create(r.Context(), patch.Apply(product.Product{}))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Product created successfully", "data", func(e *jx.Encoder) {
		encodeProduct(e, *p)
	})
}

// UpdateProduct applies a partial update to a product.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "product")
	if err != nil {
		fail(w, r, err)
		return
	}
	patch, err := decodeProductPatch(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), id, patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Product updated successfully", "data", func(e *jx.Encoder) {
		encodeProduct(e, *p)
	})
}

// DeleteProduct removes a product from the catalog.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "product")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Product successfully deleted", "", nil)
}
