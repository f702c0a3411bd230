package main

import (
	"github.com/go-faster/sdk/zctx"
	"github.com/spf13/cobra"

	"github.com/xenking/skyshop/internal/catalogimport"
	"github.com/xenking/skyshop/internal/storage/postgres"
)

// skyshopctl import-catalog FEED...
var importCatalogCmd = &cobra.Command{
	Use:   "import-catalog FEED.jsonl.gz...",
	Short: "Import dealer feeds (gzip JSON lines), skipping listings already in the catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, pool, cleanup, err := boot(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		sources := make([]catalogimport.Source, 0, len(args))
		for _, path := range args {
			sources = append(sources, catalogimport.GzipFile(path))
		}

		im := catalogimport.New(postgres.NewProductRepository(pool), zctx.From(ctx))
		_, err = im.Import(ctx, sources...)
		return err
	},
}
