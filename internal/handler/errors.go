package handler

import (
	"context"
	"net/http"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/order"
)

// statusClientClosed is logged when the client went away mid-request.
const statusClientClosed = 499

// fail maps err to a status code and writes the failure envelope. Causes of
// internal errors are logged and never returned to the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	lg := zctx.From(r.Context())
	switch {
	case status == statusClientClosed:
		lg.Debug("Client closed request", zap.Error(err))
		return
	case status >= http.StatusInternalServerError:
		lg.Error("Request failed", zap.Error(err))
	}
	respondError(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		pe *order.PricingError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.As(err, &nf):
		return http.StatusNotFound, capitalize(nf.Entity) + " not found"
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest, "Cart is empty"
	case errors.As(err, &pe):
		return http.StatusInternalServerError, pe.Error()
	case errors.Is(err, context.Canceled):
		return statusClientClosed, ""
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
