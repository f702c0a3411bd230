//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/skyshop/db"
	"github.com/xenking/skyshop/internal/catalogimport"
	"github.com/xenking/skyshop/internal/domain/auth"
	"github.com/xenking/skyshop/internal/handler"
	"github.com/xenking/skyshop/internal/storage/postgres"
	"github.com/xenking/skyshop/internal/storage/rediscache"
	"github.com/xenking/skyshop/pkg/health"
)

const e2eSecret = "integration-secret-0123456789"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	OrderID int64           `json:"orderId"`
	Order   json.RawMessage `json:"order"`
}

type productBody struct {
	ID    int64        `json:"id"`
	Name  string       `json:"name"`
	Price *json.Number `json:"price"`
}

type cartBody struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type orderBody struct {
	ID         int64       `json:"id"`
	TotalPrice json.Number `json:"totalPrice"`
	Status     string      `json:"status"`
	Items      []struct {
		ProductID       int64       `json:"productId"`
		Quantity        int         `json:"quantity"`
		PriceAtPurchase json.Number `json:"priceAtPurchase"`
	} `json:"items"`
	User *struct {
		Email string `json:"email"`
	} `json:"user"`
}

type env struct {
	srv     *httptest.Server
	adminID int64
	buyerID int64
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	ctr, err := testcontainers.GenericContainer(context.Background(), testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })
	return ctr
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := zctx.Base(context.Background(), zap.NewNop())
	ctx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)

	pg := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "skyshop",
			"POSTGRES_PASSWORD": "skyshop",
			"POSTGRES_DB":       "skyshop",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	})
	rd := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
	})

	pgHost, err := pg.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	redisAddr, err := rd.Endpoint(ctx, "")
	require.NoError(t, err)

	cfg := &Config{
		DatabaseURL:     fmt.Sprintf("postgres://skyshop:skyshop@%s:%s/skyshop?sslmode=disable", pgHost, pgPort.Port()),
		Auth:            AuthConfig{JWTSecret: e2eSecret, Issuer: "skyshop"},
		Redis:           RedisConfig{Addr: redisAddr, TTL: time.Minute},
		RateLimit:       RateLimitConfig{Max: 1000, Window: time.Minute},
		PlaceOrderLimit: PlaceOrderLimitConfig{Max: 4, Window: time.Minute},
		CORS:            CORSConfig{Origins: []string{"*"}},
	}
	require.NoError(t, cfg.Validate())

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.RunMigrations(ctx, pool))

	users := postgres.NewUserRepository(pool)
	adminID, err := users.Upsert(ctx, "Admin", "admin@skyshop.test", auth.RoleAdmin)
	require.NoError(t, err)
	buyerID, err := users.Upsert(ctx, "Amelia", "amelia@skyshop.test", auth.RoleCustomer)
	require.NoError(t, err)

	seed, err := db.Seed.ReadFile("seed/products.json")
	require.NoError(t, err)
	_, err = catalogimport.New(postgres.NewProductRepository(pool), zctx.From(ctx)).
		Import(ctx, catalogimport.JSONArray("products.json", bytes.NewReader(seed)))
	require.NoError(t, err)

	rdb, err := rediscache.NewClient(ctx, cfg.Redis.Addr, "", "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
	healthSvc.Start(ctx, time.Second)
	healthSvc.SetReady(true)
	t.Cleanup(healthSvc.Stop)

	h, err := newHandler(ctx, cfg, pool, rdb, healthSvc, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &env{srv: srv, adminID: adminID, buyerID: buyerID}
}

func signToken(t *testing.T, userID int64, role auth.Role) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, handler.Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    "skyshop",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(e2eSecret))
	require.NoError(t, err)
	return s
}

func (e *env) call(t *testing.T, method, path, tok, body string, hdr ...string) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, e.srv.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestStorefront(t *testing.T) {
	e := setup(t)
	admin := signToken(t, e.adminID, auth.RoleAdmin)
	buyer := signToken(t, e.buyerID, auth.RoleCustomer)

	t.Run("Health", func(t *testing.T) {
		for _, path := range []string{"/livez", "/readyz"} {
			resp, err := http.Get(e.srv.URL + path)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		}
	})

	var products []productBody
	t.Run("Catalog", func(t *testing.T) {
		resp, out := e.call(t, http.MethodGet, "/api/products", "", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		require.NoError(t, json.Unmarshal(out.Data, &products))
		require.NotEmpty(t, products)

		resp, out = e.call(t, http.MethodGet, "/api/products/abc", "", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, out.Success)

		resp, _ = e.call(t, http.MethodGet, "/api/products/999999", "", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("AdminGate", func(t *testing.T) {
		body := `{"name":"Honda HA-420","category":"Light Jet","price":"5400000.00","stock":1}`
		resp, _ := e.call(t, http.MethodPost, "/api/products", "", body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp, _ = e.call(t, http.MethodPost, "/api/products", buyer, body)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, out := e.call(t, http.MethodPost, "/api/products", admin, body)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var created productBody
		require.NoError(t, json.Unmarshal(out.Data, &created))
		products = append(products, created)

		// The cached list is invalidated by the write.
		_, out = e.call(t, http.MethodGet, "/api/products", "", "")
		var listed []productBody
		require.NoError(t, json.Unmarshal(out.Data, &listed))
		assert.Len(t, listed, len(products))
	})

	var priced []productBody
	for _, p := range products {
		if p.Price != nil {
			priced = append(priced, p)
		}
	}
	require.GreaterOrEqual(t, len(priced), 2)

	var firstOrder int64
	t.Run("CartToOrder", func(t *testing.T) {
		resp, out := e.call(t, http.MethodPost, "/api/cart", buyer, fmt.Sprintf(`{"productId":%d,"quantity":2}`, priced[0].ID))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Added to cart", out.Message)

		resp, out = e.call(t, http.MethodPost, "/api/cart", buyer, fmt.Sprintf(`{"productId":%d}`, priced[1].ID))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var line cartBody
		require.NoError(t, json.Unmarshal(out.Data, &line))

		resp, _ = e.call(t, http.MethodPost, "/api/cart", buyer, fmt.Sprintf(`{"productId":%d}`, priced[1].ID))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = e.call(t, http.MethodPut, fmt.Sprintf("/api/cart/%d", line.ID), admin, `{"quantity":5}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp, _ = e.call(t, http.MethodPut, fmt.Sprintf("/api/cart/%d", line.ID), buyer, `{"quantity":0}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp, _ = e.call(t, http.MethodPut, fmt.Sprintf("/api/cart/%d", line.ID), buyer, `{"quantity":1}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		_, out = e.call(t, http.MethodGet, "/api/cart", buyer, "")
		var lines []cartBody
		require.NoError(t, json.Unmarshal(out.Data, &lines))
		require.Len(t, lines, 2)

		resp, out = e.call(t, http.MethodPost, "/api/orders/place", buyer, "", handler.IdempotencyKeyHeader, "checkout-1")
		require.Equal(t, http.StatusOK, resp.StatusCode, out.Message)
		require.NotZero(t, out.OrderID)
		firstOrder = out.OrderID

		resp, out = e.call(t, http.MethodPost, "/api/orders/place", buyer, "", handler.IdempotencyKeyHeader, "checkout-1")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, firstOrder, out.OrderID)
		assert.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))

		resp, out = e.call(t, http.MethodPost, "/api/orders/place", buyer, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Cart is empty", out.Message)

		_, out = e.call(t, http.MethodGet, "/api/cart", buyer, "")
		assert.JSONEq(t, `[]`, string(out.Data))
	})

	t.Run("Ledger", func(t *testing.T) {
		_, out := e.call(t, http.MethodGet, "/api/orders/my", buyer, "")
		var mine []orderBody
		require.NoError(t, json.Unmarshal(out.Data, &mine))
		require.Len(t, mine, 1)
		assert.Equal(t, "Pending", mine[0].Status)
		require.Len(t, mine[0].Items, 2)
		assert.Equal(t, 2, mine[0].Items[0].Quantity)

		resp, _ := e.call(t, http.MethodGet, "/api/orders", buyer, "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		_, out = e.call(t, http.MethodGet, "/api/orders", admin, "")
		var all []orderBody
		require.NoError(t, json.Unmarshal(out.Data, &all))
		require.Len(t, all, 1)
		require.NotNil(t, all[0].User)
		assert.Equal(t, "amelia@skyshop.test", all[0].User.Email)

		path := fmt.Sprintf("/api/orders/%d/status", firstOrder)
		resp, _ = e.call(t, http.MethodPut, path, admin, `{"status":"Shipped"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, out = e.call(t, http.MethodPut, path, admin, `{"status":"Completed"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var updated orderBody
		require.NoError(t, json.Unmarshal(out.Order, &updated))
		assert.Equal(t, "Completed", updated.Status)
		assert.Equal(t, mine[0].TotalPrice, updated.TotalPrice)

		resp, _ = e.call(t, http.MethodPut, "/api/orders/999999/status", admin, `{"status":"Completed"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("PlaceOrderLimit", func(t *testing.T) {
		// Three placements were already counted for the buyer in this window.
		resp, _ := e.call(t, http.MethodPost, "/api/orders/place", buyer, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp, out := e.call(t, http.MethodPost, "/api/orders/place", buyer, "")
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.False(t, out.Success)
	})
}
