// Package rediscache provides a Redis read-through cache for the product
// catalog.
package rediscache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/skyshop/internal/domain/product"
)

const (
	keyPrefix  = "skyshop:products:"
	listKey    = keyPrefix + "all"
	defaultTTL = 5 * time.Minute

	// maxListTTL bounds how long a list written by a read that raced a
	// catalog write can outlive the invalidation.
	maxListTTL = 30 * time.Second
)

func itemKey(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

// NewClient connects to Redis and verifies the connection with a ping.
// url takes precedence over addr when set.
func NewClient(ctx context.Context, addr, url, password string, db int) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	if url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		opts = parsed
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return rdb, nil
}

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository caches List and GetByID results of the wrapped
// repository and invalidates them on writes. Cache failures are logged and
// never fail a request.
type ProductRepository struct {
	next    product.Repository
	rdb     redis.Cmdable
	ttl     time.Duration
	listTTL time.Duration
}

// NewProductRepository wraps next with a cache stored in rdb.
func NewProductRepository(next product.Repository, rdb redis.Cmdable, ttl time.Duration) *ProductRepository {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ProductRepository{next: next, rdb: rdb, ttl: ttl, listTTL: min(ttl, maxListTTL)}
}

// List returns the catalog, served from cache when present.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	var cached []product.Product
	if r.get(ctx, listKey, &cached) {
		return cached, nil
	}
	products, err := r.next.List(ctx)
	if err != nil {
		return nil, err
	}
	r.set(ctx, listKey, products, r.listTTL)
	return products, nil
}

// GetByID returns a product, served from cache when present. Misses for
// unknown ids are not cached.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	var cached product.Product
	if r.get(ctx, itemKey(id), &cached) {
		return &cached, nil
	}
	p, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.set(ctx, itemKey(id), p, r.ttl)
	return p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	if err := r.next.Create(ctx, p); err != nil {
		return err
	}
	r.invalidate(ctx, listKey)
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	if err := r.next.Update(ctx, p); err != nil {
		return err
	}
	r.invalidate(ctx, listKey, itemKey(p.ID))
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	if err := r.next.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, listKey, itemKey(id))
	return nil
}

func (r *ProductRepository) get(ctx context.Context, key string, dest any) bool {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zctx.From(ctx).Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		zctx.From(ctx).Warn("Catalog cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (r *ProductRepository) set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		zctx.From(ctx).Warn("Catalog cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate drops keys; a failure leaves entries stale for at most the TTL.
func (r *ProductRepository) invalidate(ctx context.Context, keys ...string) {
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		zctx.From(ctx).Warn("Catalog cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
