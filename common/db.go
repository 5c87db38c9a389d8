package common

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"blogroll/config"
)

// ConnectDb opens the primary database for the configured driver.
func ConnectDb(cfg config.Database, logger zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite", "":
		if cfg.SqlitePath == "" {
			return nil, fmt.Errorf("SQLITE_DB not set")
		}
		dialector = sqlite.Open(cfg.SqlitePath)
	case "postgres":
		if cfg.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL not set")
		}
		dialector = postgres.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, GormConfig(gormlogger.Warn))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	logger.Info().Str("driver", dialector.Name()).Msg("database connected")
	return db, nil
}

// GormConfig is shared by the server and the tests. Foreign keys are not
// created; cascades run in application code. Driver errors are translated so
// unique violations surface as gorm.ErrDuplicatedKey.
func GormConfig(level gormlogger.LogLevel) *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormlogger.Default.LogMode(level),
	}
}
