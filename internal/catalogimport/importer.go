// Package catalogimport loads aircraft listings from dealer feeds into the
// catalog.
//
// Feeds are read concurrently and funneled into a single writer. Listings
// are keyed by case-insensitive (name, category); a bloom filter seeded with
// the existing catalog answers most "is this new?" questions without a
// database round trip, and only its positives are confirmed against the
// store.
package catalogimport

import (
	"context"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/product"
)

const (
	minBloomCapacity = 100_000
	bloomFPR         = 0.001
	progressEvery    = 10_000
	queueSize        = 256
)

// Sink is the catalog an import writes to.
type Sink interface {
	Keys(ctx context.Context) ([][2]string, error)
	Exists(ctx context.Context, name, category string) (bool, error)
	Create(ctx context.Context, p *product.Product) error
}

// Emit receives one decoded listing, or the error that prevented decoding
// it. It returns an error only when the import is being aborted.
type Emit func(p product.Product, err error) error

// Source produces listings.
type Source struct {
	Name string
	Read func(ctx context.Context, emit Emit) error
}

// Stats summarizes an import.
type Stats struct {
	Read       int
	Inserted   int
	Duplicates int
	Invalid    int
}

type record struct {
	source string
	p      product.Product
	err    error
}

// Importer writes listings from sources into a Sink.
type Importer struct {
	sink Sink
	lg   *zap.Logger
}

// New returns an Importer that writes to sink.
func New(sink Sink, lg *zap.Logger) *Importer {
	return &Importer{sink: sink, lg: lg}
}

// Import reads all sources concurrently and inserts every valid listing that
// is not already in the catalog. Invalid listings are counted and skipped;
// sink failures abort the import.
func (im *Importer) Import(ctx context.Context, sources ...Source) (Stats, error) {
	filter, err := im.seedFilter(ctx)
	if err != nil {
		return Stats{}, err
	}

	records := make(chan record, queueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(records)
		readers, rctx := errgroup.WithContext(gctx)
		for _, src := range sources {
			readers.Go(func() error {
				err := src.Read(rctx, func(p product.Product, err error) error {
					select {
					case records <- record{source: src.Name, p: p, err: err}:
						return nil
					case <-rctx.Done():
						return rctx.Err()
					}
				})
				if err != nil {
					return errors.Wrapf(err, "read %s", src.Name)
				}
				return nil
			})
		}
		return readers.Wait()
	})

	var stats Stats
	g.Go(func() error {
		for rec := range records {
			if err := im.write(gctx, filter, rec, &stats); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	im.lg.Info("Import complete",
		zap.Int("read", stats.Read),
		zap.Int("inserted", stats.Inserted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("invalid", stats.Invalid),
	)
	return stats, nil
}

func (im *Importer) seedFilter(ctx context.Context) (*bloom.BloomFilter, error) {
	keys, err := im.sink.Keys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog keys")
	}
	filter := bloom.NewWithEstimates(max(uint(len(keys))*4, minBloomCapacity), bloomFPR)
	for _, k := range keys {
		filter.AddString(listingKey(k[0], k[1]))
	}
	im.lg.Info("Catalog keys loaded", zap.Int("count", len(keys)))
	return filter, nil
}

func (im *Importer) write(ctx context.Context, filter *bloom.BloomFilter, rec record, stats *Stats) error {
	stats.Read++
	if stats.Read%progressEvery == 0 {
		im.lg.Info("Import progress", zap.Int("read", stats.Read), zap.Int("inserted", stats.Inserted))
	}

	p := rec.p
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	err := rec.err
	if err == nil {
		err = product.Validate(p)
	}
	if err != nil {
		stats.Invalid++
		im.lg.Warn("Skipping invalid listing", zap.String("source", rec.source), zap.Error(err))
		return nil
	}

	key := listingKey(p.Name, p.Category)
	if filter.TestString(key) {
		exists, err := im.sink.Exists(ctx, p.Name, p.Category)
		if err != nil {
			return errors.Wrap(err, "check listing")
		}
		if exists {
			stats.Duplicates++
			return nil
		}
	}

	if err := im.sink.Create(ctx, &p); err != nil {
		if apperr.IsValidation(err) {
			stats.Invalid++
			im.lg.Warn("Listing rejected", zap.String("source", rec.source), zap.String("name", p.Name), zap.Error(err))
			return nil
		}
		return errors.Wrapf(err, "create %q", p.Name)
	}
	filter.AddString(key)
	stats.Inserted++
	return nil
}

func listingKey(name, category string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.ToLower(strings.TrimSpace(category))
}
