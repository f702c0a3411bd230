package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/product"
)

// fakeRedis implements the Get/Set/Del subset of redis.Cmdable in memory.
// Calling any other method panics on the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable
	data    map[string][]byte
	ttls    map[string]time.Duration
	failAll bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	switch v, ok := f.data[key]; {
	case f.failAll:
		cmd.SetErr(errors.New("connection refused"))
	case ok:
		cmd.SetVal(string(v))
	default:
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	if f.failAll {
		cmd.SetErr(errors.New("connection refused"))
		return cmd
	}
	f.data[key] = value.([]byte)
	f.ttls[key] = ttl
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	if f.failAll {
		cmd.SetErr(errors.New("connection refused"))
		return cmd
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

// countingRepo records how often the backing store is hit.
type countingRepo struct {
	products  map[int64]product.Product
	listCalls int
	getCalls  int
}

func (c *countingRepo) List(_ context.Context) ([]product.Product, error) {
	c.listCalls++
	out := make([]product.Product, 0, len(c.products))
	for id := int64(1); id <= int64(len(c.products)); id++ {
		out = append(out, c.products[id])
	}
	return out, nil
}

func (c *countingRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	c.getCalls++
	p, ok := c.products[id]
	if !ok {
		return nil, apperr.NotFound("product", id)
	}
	return &p, nil
}

func (c *countingRepo) Create(_ context.Context, p *product.Product) error {
	p.ID = int64(len(c.products) + 1)
	c.products[p.ID] = *p
	return nil
}

func (c *countingRepo) Update(_ context.Context, p *product.Product) error {
	c.products[p.ID] = *p
	return nil
}

func (c *countingRepo) Delete(_ context.Context, id int64) error {
	delete(c.products, id)
	return nil
}

func newCatalog() *countingRepo {
	stock := 2
	return &countingRepo{products: map[int64]product.Product{
		1: {ID: 1, Name: "Cessna 172", Price: decimal.NewNullDecimal(decimal.RequireFromString("389000.00")), Stock: &stock},
		2: {ID: 2, Name: "Gulfstream G650ER"},
	}}
}

func TestList_ReadThrough(t *testing.T) {
	backing, rdb := newCatalog(), newFakeRedis()
	repo := NewProductRepository(backing, rdb, time.Minute)
	ctx := context.Background()

	first, err := repo.List(ctx)
	require.NoError(t, err)
	second, err := repo.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, backing.listCalls)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].Name, second[0].Name)
	assert.True(t, first[0].Price.Decimal.Equal(second[0].Price.Decimal))
	assert.Equal(t, 2, *second[0].Stock)
	assert.False(t, second[1].Price.Valid)
	assert.Equal(t, maxListTTL, rdb.ttls[listKey])

	short := NewProductRepository(backing, newFakeRedis(), 10*time.Second)
	assert.Equal(t, 10*time.Second, short.listTTL)
}

func TestGetByID_CachesHitsOnly(t *testing.T) {
	backing, rdb := newCatalog(), newFakeRedis()
	repo := NewProductRepository(backing, rdb, 0)
	ctx := context.Background()

	for range 3 {
		p, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Cessna 172", p.Name)
	}
	assert.Equal(t, 1, backing.getCalls)
	assert.Equal(t, defaultTTL, rdb.ttls[itemKey(1)])

	_, err := repo.GetByID(ctx, 99)
	assert.True(t, apperr.IsNotFound(err))
	assert.NotContains(t, rdb.data, itemKey(99))
}

func TestWrites_Invalidate(t *testing.T) {
	backing, rdb := newCatalog(), newFakeRedis()
	repo := NewProductRepository(backing, rdb, time.Minute)
	ctx := context.Background()

	_, err := repo.List(ctx)
	require.NoError(t, err)
	_, err = repo.GetByID(ctx, 1)
	require.NoError(t, err)

	p := backing.products[1]
	p.Name = "Cessna 172S"
	require.NoError(t, repo.Update(ctx, &p))
	assert.NotContains(t, rdb.data, listKey)
	assert.NotContains(t, rdb.data, itemKey(1))

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Cessna 172S", got.Name)

	_, err = repo.List(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, &product.Product{Name: "Piper Archer"}))
	assert.NotContains(t, rdb.data, listKey)

	require.NoError(t, repo.Delete(ctx, 1))
	assert.NotContains(t, rdb.data, itemKey(1))
}

// racingRepo runs onList after loading the catalog and before the cache
// stores it, as a concurrent write landing in that window would.
type racingRepo struct {
	*countingRepo
	onList func()
}

func (r *racingRepo) List(ctx context.Context) ([]product.Product, error) {
	out, err := r.countingRepo.List(ctx)
	if r.onList != nil {
		r.onList()
		r.onList = nil
	}
	return out, err
}

func TestList_StaleAfterRacingWriteIsShortLived(t *testing.T) {
	backing := &racingRepo{countingRepo: newCatalog()}
	rdb := newFakeRedis()
	repo := NewProductRepository(backing, rdb, time.Hour)
	ctx := context.Background()

	backing.onList = func() {
		p := backing.products[1]
		p.Name = "Cessna 172S"
		require.NoError(t, repo.Update(ctx, &p))
	}
	_, err := repo.List(ctx)
	require.NoError(t, err)

	// The list loaded before the update was cached after its invalidation.
	require.Contains(t, rdb.data, listKey)
	assert.Equal(t, maxListTTL, rdb.ttls[listKey])

	// Items are read and invalidated individually and keep the full TTL.
	_, err = repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, rdb.ttls[itemKey(1)])
}

func TestCacheFailuresFallThrough(t *testing.T) {
	backing, rdb := newCatalog(), newFakeRedis()
	rdb.failAll = true
	repo := NewProductRepository(backing, rdb, time.Minute)
	ctx := context.Background()

	products, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	_, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.listCalls)

	require.NoError(t, repo.Delete(ctx, 2))
}
