package catalogimport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/product"
)

const maxLineBytes = 1 << 20

// GzipFile reads a gzip-compressed JSON-lines feed, one listing per line.
// A malformed line is emitted as an error and does not stop the feed.
func GzipFile(path string) Source {
	return Source{
		Name: filepath.Base(path),
		Read: func(ctx context.Context, emit Emit) error {
			f, err := os.Open(path)
			if err != nil {
				return errors.Wrap(err, "open")
			}
			defer func() { _ = f.Close() }()

			gz, err := pgzip.NewReader(f)
			if err != nil {
				return errors.Wrap(err, "gzip reader")
			}
			defer func() { _ = gz.Close() }()

			return readLines(ctx, gz, emit)
		},
	}
}

// JSONLines reads an uncompressed JSON-lines feed.
func JSONLines(name string, r io.Reader) Source {
	return Source{
		Name: name,
		Read: func(ctx context.Context, emit Emit) error {
			return readLines(ctx, r, emit)
		},
	}
}

// JSONArray reads a JSON array of listings, such as the bundled seed file.
func JSONArray(name string, r io.Reader) Source {
	return Source{
		Name: name,
		Read: func(ctx context.Context, emit Emit) error {
			return jx.Decode(r, 4096).Arr(func(d *jx.Decoder) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				p, err := decodeListing(d)
				if err != nil && !apperr.IsValidation(err) {
					return err
				}
				return emit(p, err)
			})
		},
	}
}

func readLines(ctx context.Context, r io.Reader, emit Emit) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		p, err := decodeListing(jx.DecodeBytes(data))
		if err != nil {
			err = errors.Wrapf(err, "line %d", line)
		}
		if err := emit(p, err); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}

// decodeListing reads one listing object. Price and stock may be null;
// price may be a number or a numeric string.
func decodeListing(d *jx.Decoder) (product.Product, error) {
	var (
		p        product.Product
		fieldErr error
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			p.Name, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "image":
			p.Image, err = d.Str()
		case "price":
			p.Price, err = decodePrice(d)
		case "stock":
			p.Stock, err = decodeStock(d)
		default:
			return d.Skip()
		}
		if err != nil && apperr.IsValidation(err) {
			if fieldErr == nil {
				fieldErr = err
			}
			return nil
		}
		return err
	})
	if err != nil {
		return p, errors.Wrap(err, "decode listing")
	}
	return p, fieldErr
}

func decodePrice(d *jx.Decoder) (decimal.NullDecimal, error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return decimal.NullDecimal{}, d.Null()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		raw = string(n)
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		raw = s
	default:
		if err := d.Skip(); err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NullDecimal{}, apperr.Invalid("price", "must be a decimal number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, apperr.Invalid("price", "must be a decimal number")
	}
	return decimal.NewNullDecimal(v), nil
}

func decodeStock(d *jx.Decoder) (*int, error) {
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		v, err := n.Int64()
		if err != nil {
			return nil, apperr.Invalid("stock", "must be an integer")
		}
		stock := int(v)
		return &stock, nil
	default:
		if err := d.Skip(); err != nil {
			return nil, err
		}
		return nil, apperr.Invalid("stock", "must be an integer")
	}
}
