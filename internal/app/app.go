package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/skyshop/internal/domain/cart"
	"github.com/xenking/skyshop/internal/domain/order"
	"github.com/xenking/skyshop/internal/domain/product"
	"github.com/xenking/skyshop/internal/handler"
	"github.com/xenking/skyshop/internal/storage/postgres"
	"github.com/xenking/skyshop/internal/storage/rediscache"
	"github.com/xenking/skyshop/pkg/health"
	"github.com/xenking/skyshop/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = rediscache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
		lg.Info("Catalog cache enabled", zap.Duration("ttl", cfg.Redis.TTL))
	}

	apiHandler, err := newHandler(ctx, cfg, pool, rdb, healthSvc, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           apiHandler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler assembles repositories, services and the middleware chain. rdb
// may be nil, in which case the catalog is read straight from PostgreSQL.
func newHandler(
	ctx context.Context,
	cfg *Config,
	pool *pgxpool.Pool,
	rdb *redis.Client,
	healthSvc *health.Health,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (http.Handler, error) {
	var products product.Repository = postgres.NewProductRepository(pool)
	if rdb != nil {
		products = rediscache.NewProductRepository(products, rdb, cfg.Redis.TTL)
	}

	orderSvc, err := order.NewService(postgres.NewOrderStore(pool), tp, mp)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	h := handler.NewHandler(
		product.NewService(products),
		cart.NewService(postgres.NewCartRepository(pool)),
		orderSvc,
	)

	api := h.Router(handler.RouterConfig{
		Auth: handler.NewAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer),
		PlaceOrderLimit: httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.PlaceOrderLimit.Max,
			Window:  cfg.PlaceOrderLimit.Window,
			KeyFunc: handler.UserRateKey,
		}),
		Middlewares: []httpmiddleware.Middleware{
			httpmiddleware.Instrument("skyshop-api", tp, mp),
			httpmiddleware.LogRequests(),
		},
	})

	root := chi.NewRouter()
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Mount("/api", api)

	return httpmiddleware.Wrap(root,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.IdempotencyKeyHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Idempotent-Replayed", "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
	), nil
}
