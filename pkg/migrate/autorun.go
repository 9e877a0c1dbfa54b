package migrate

import (
	"context"
	"fmt"

	"github.com/farmolink/farmolink-backend/pkg/config"
	"github.com/farmolink/farmolink-backend/pkg/db"
	"github.com/farmolink/farmolink-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup when running in dev
// with FARMOLINK_AUTO_MIGRATE set. SQLite dev databases are skipped.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	if cfg.DB.Driver != db.DriverPostgres {
		logg.Warn(ctx, "auto-migrate skipped for non-postgres driver")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	if err := RunEmbedded(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	version, err := CurrentVersion(sqlDB)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "schema_version", version), "dev auto-migrate complete")
	return nil
}
