package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"waste-station-backend/config"
	"waste-station-backend/internal/model"
)

// Init opens the configured database, tunes the pool and runs migrations.
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// SQLite allows one writer; a single connection also keeps in-memory databases alive.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info("running database migrations", zap.String("driver", cfg.Driver))
	if err := db.AutoMigrate(&model.Station{}, &model.HistoryRecord{}); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	if cfg.EnforceAppendOnly {
		log.Info("installing append-only guard on history_records")
		if err := applyAppendOnlyDDL(db, cfg.Driver); err != nil {
			return nil, err
		}
	}

	log.Info("database initialization complete")
	return db, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		return sqlite.Open(cfg.DSN), nil
	case config.DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// applyAppendOnlyDDL installs triggers that abort UPDATE and DELETE on history_records.
func applyAppendOnlyDDL(db *gorm.DB, driver string) error {
	var ddls []string
	switch driver {
	case config.DriverPostgres:
		ddls = []string{
			"CREATE OR REPLACE FUNCTION history_records_append_only() RETURNS trigger AS $$ " +
				"BEGIN RAISE EXCEPTION 'history_records is append-only'; END; $$ LANGUAGE plpgsql;",
			"DROP TRIGGER IF EXISTS history_records_no_mutation ON history_records;",
			"CREATE TRIGGER history_records_no_mutation BEFORE UPDATE OR DELETE ON history_records " +
				"FOR EACH ROW EXECUTE FUNCTION history_records_append_only();",
		}
	default:
		ddls = []string{
			"CREATE TRIGGER IF NOT EXISTS history_records_no_update BEFORE UPDATE ON history_records " +
				"BEGIN SELECT RAISE(ABORT, 'history_records is append-only'); END;",
			"CREATE TRIGGER IF NOT EXISTS history_records_no_delete BEFORE DELETE ON history_records " +
				"BEGIN SELECT RAISE(ABORT, 'history_records is append-only'); END;",
		}
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
