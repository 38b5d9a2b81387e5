package store

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/channelcast/channelcast/internal/config"
)

// Connect opens a GORM connection per cfg.Driver and runs AutoMigrate,
// matching the reference stack's database.Initialize/GetDB split but
// returning the handle directly rather than stashing it in a package global.
func Connect(cfg config.DatabaseConfig, logger hclog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.Info("database connected", "driver", cfg.Driver)
	return db, nil
}
