package migration

import (
	"github.com/smallbiznis/meterbill/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The embedded migrations are postgres SQL; sqlite setups
		// (local dev, tests) migrate through gorm instead.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(migratedModels...)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
