package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date at startup when running in dev with
// SWEETSHOP_AUTO_MIGRATE set. Postgres gets the embedded goose migrations; sqlite is migrated from
// the gorm models.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "auto_migrate": true})

	if cfg.DB.IsSQLite() {
		logg.Info(ctx, "auto-migrating sqlite schema from models")
		if err := client.DB().AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite auto-migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	m, err := NewMigrator(sqlDB, Migrations(), logg)
	if err != nil {
		return err
	}
	return m.Up(ctx)
}
