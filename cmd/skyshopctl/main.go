// Command skyshopctl administers a SkyShop database: schema migrations,
// seed data and bulk catalog imports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	skyshop "github.com/xenking/skyshop/internal/app"
	"github.com/xenking/skyshop/internal/storage/postgres"
)

var (
	databaseURL string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "skyshopctl",
	Short:         "SkyShop administration tool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (default from SKYSHOP_DATABASE_URL or DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(importCatalogCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// boot returns a logger-carrying context and an open pool.
func boot(cmd *cobra.Command) (context.Context, *pgxpool.Pool, func(), error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level.SetLevel(zap.DebugLevel)
	}
	lg, err := cfg.Build()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "build logger")
	}
	ctx := zctx.Base(cmd.Context(), lg)

	dsn := databaseURL
	if dsn == "" {
		c, err := skyshop.LoadConfigFromEnv()
		if err != nil {
			return nil, nil, nil, err
		}
		dsn = c.DatabaseURL
	}

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup := func() {
		pool.Close()
		_ = lg.Sync()
	}
	return ctx, pool, cleanup, nil
}
