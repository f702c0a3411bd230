// Command skyshop-api serves the SkyShop storefront API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	skyshop "github.com/xenking/skyshop/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := skyshop.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		return skyshop.Run(ctx, lg, m, cfg)
	})
}
