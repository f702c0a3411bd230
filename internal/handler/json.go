package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/cart"
	"github.com/xenking/skyshop/internal/domain/order"
	"github.com/xenking/skyshop/internal/domain/product"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

var errBadBody = &apperr.ValidationError{Reason: "invalid request body"}

// respond writes the success envelope. An empty msg is omitted, and so is
// key when value is nil.
func respond(w http.ResponseWriter, status int, msg, key string, value func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	if msg != "" {
		e.FieldStart("message")
		e.Str(msg)
	}
	if value != nil {
		e.FieldStart(key)
		value(e)
	}
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

// respondError writes {"success":false,"message":msg}.
func respondError(w http.ResponseWriter, status int, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("success")
	e.Bool(false)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

// Money is written as a JSON number with two decimals.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

func encodeNullMoney(e *jx.Encoder, d decimal.NullDecimal) {
	if !d.Valid {
		e.Null()
		return
	}
	encodeMoney(e, d.Decimal)
}

func encodeNullInt(e *jx.Encoder, v *int) {
	if v == nil {
		e.Null()
		return
	}
	e.Int(*v)
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeNullMoney(e, p.Price)
	e.FieldStart("image")
	e.Str(p.Image)
	e.FieldStart("stock")
	encodeNullInt(e, p.Stock)
	e.FieldStart("createdAt")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}

func encodeCartLineFields(e *jx.Encoder, l cart.Line) {
	e.FieldStart("id")
	e.Int64(l.ID)
	e.FieldStart("userId")
	e.Int64(l.UserID)
	e.FieldStart("productId")
	e.Int64(l.ProductID)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("createdAt")
	encodeTime(e, l.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, l.UpdatedAt)
}

func encodeCartLine(e *jx.Encoder, l cart.Line) {
	e.ObjStart()
	encodeCartLineFields(e, l)
	e.ObjEnd()
}

func encodeCartView(e *jx.Encoder, v cart.LineView) {
	e.ObjStart()
	encodeCartLineFields(e, v.Line)
	e.FieldStart("product")
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(v.Product.ID)
	e.FieldStart("name")
	e.Str(v.Product.Name)
	e.FieldStart("category")
	e.Str(v.Product.Category)
	e.FieldStart("price")
	encodeNullMoney(e, v.Product.Price)
	e.FieldStart("image")
	e.Str(v.Product.Image)
	e.FieldStart("stock")
	encodeNullInt(e, v.Product.Stock)
	e.ObjEnd()
	e.ObjEnd()
}

func encodeOrderFields(e *jx.Encoder, o order.Order) {
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("userId")
	e.Int64(o.UserID)
	e.FieldStart("totalPrice")
	encodeMoney(e, o.TotalPrice)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
}

func encodeOrderView(e *jx.Encoder, v order.View) {
	e.ObjStart()
	encodeOrderFields(e, v.Order)
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range v.Lines {
		encodeOrderLine(e, l)
	}
	e.ArrEnd()
	if v.Buyer != nil {
		e.FieldStart("user")
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(v.Buyer.ID)
		e.FieldStart("name")
		e.Str(v.Buyer.Name)
		e.FieldStart("email")
		e.Str(v.Buyer.Email)
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeOrderLine(e *jx.Encoder, l order.LineView) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(l.ID)
	e.FieldStart("orderId")
	e.Int64(l.OrderID)
	e.FieldStart("productId")
	e.Int64(l.ProductID)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("priceAtPurchase")
	encodeMoney(e, l.PriceAtPurchase)
	e.FieldStart("product")
	if p := l.Product; p == nil {
		e.Null()
	} else {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(p.ID)
		e.FieldStart("name")
		e.Str(p.Name)
		e.FieldStart("category")
		e.Str(p.Category)
		e.FieldStart("image")
		e.Str(p.Image)
		e.FieldStart("price")
		encodeNullMoney(e, p.Price)
		e.ObjEnd()
	}
	e.ObjEnd()
}

// readBody returns a decoder over the request body. An empty body decodes
// as an empty object.
func readBody(r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, errBadBody
	}
	if len(data) > maxBodyBytes {
		return nil, &apperr.ValidationError{Reason: "request body too large"}
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	return jx.DecodeBytes(data), nil
}

// decodeObject iterates the fields of a JSON object body. Syntax errors are
// reported as errBadBody; errors returned by fn pass through unchanged.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	d, err := readBody(r)
	if err != nil {
		return err
	}
	if d.Next() != jx.Object {
		return errBadBody
	}
	var fieldErr error
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if err := fn(d, string(key)); err != nil {
			if apperr.IsValidation(err) {
				fieldErr = err
			}
			return err
		}
		return nil
	})
	if fieldErr != nil {
		return fieldErr
	}
	if err != nil {
		return errBadBody
	}
	return nil
}

// decodeInt accepts a JSON integer or a numeric string.
func decodeInt(d *jx.Decoder, field string) (int64, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil {
			return 0, apperr.Invalid(field, "must be an integer")
		}
		return v, nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, apperr.Invalid(field, "must be an integer")
		}
		return v, nil
	default:
		return 0, apperr.Invalid(field, "must be an integer")
	}
}

// decodeMoney accepts a JSON number or a numeric string.
func decodeMoney(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = string(n)
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	default:
		return decimal.Zero, apperr.Invalid(field, "must be a decimal number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Invalid(field, "must be a decimal number")
	}
	return v, nil
}

func decodeString(d *jx.Decoder, field string) (string, error) {
	if d.Next() != jx.String {
		return "", apperr.Invalid(field, "must be a string")
	}
	s, err := d.Str()
	if err != nil {
		return "", errors.Wrap(err, field)
	}
	return s, nil
}

// decodeProductPatch reads catalog fields from the body. Explicit nulls
// clear price and stock.
func decodeProductPatch(r *http.Request) (product.Patch, error) {
	var pt product.Patch
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		str := func(dst **string) error {
			s, err := decodeString(d, key)
			if err != nil {
				return err
			}
			*dst = &s
			return nil
		}
		switch key {
		case "name":
			return str(&pt.Name)
		case "category":
			return str(&pt.Category)
		case "description":
			return str(&pt.Description)
		case "image":
			return str(&pt.Image)
		case "price":
			if d.Next() == jx.Null {
				pt.ClearPrice = true
				return d.Null()
			}
			v, err := decodeMoney(d, key)
			if err != nil {
				return err
			}
			pt.Price = &v
			return nil
		case "stock":
			if d.Next() == jx.Null {
				pt.ClearStock = true
				return d.Null()
			}
			v, err := decodeInt(d, key)
			if err != nil {
				return err
			}
			n := int(v)
			pt.Stock = &n
			return nil
		default:
			return d.Skip()
		}
	})
	return pt, err
}
