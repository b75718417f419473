package migration

import (
	"strings"

	"github.com/smallbiznis/pharmasettle/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if strings.EqualFold(strings.TrimSpace(cfg.DBType), "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}
		if !cfg.DBAutoMigrate {
			log.Info("schema migration skipped", zap.String("db_type", cfg.DBType))
			return nil
		}
		return AutoMigrate(conn)
	}),
)
