package migrate

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/shopflow/shopflow-backend/pkg/config"
	"github.com/shopflow/shopflow-backend/pkg/db"
	"github.com/shopflow/shopflow-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations when running in dev with
// auto-migrate enabled. The users table must exist before the first identity
// event or cart write reaches the store.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	runner, err := NewRunner(goose.DialectPostgres, sqlDB, Migrations(), logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	pending, err := runner.Pending(ctx)
	if err != nil {
		return err
	}
	if !pending {
		logg.Debug(ctx, "schema up to date")
		return nil
	}

	logg.Info(ctx, "applying pending migrations (dev auto-run)")
	return runner.Up(ctx)
}
