package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/models"
)

// DB is the global database instance.
var DB *gorm.DB

// Connect opens the authoritative local database and optionally runs
// auto-migration. SQLite is the default; MySQL is opt-in via config.
func Connect(cfg *config.AppConfig, autoMigrate bool) (*gorm.DB, error) {
	db, err := openDB(cfg, resolveLogLevel(cfg))
	if err != nil {
		return nil, err
	}

	if autoMigrate {
		if err := migrate(db); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	DB = db
	return db, nil
}

// EnsureSchema applies database migration in a short-lived setup connection.
func EnsureSchema(cfg *config.AppConfig) error {
	db, err := openDB(cfg, resolveLogLevel(cfg))
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("resolve sql db: %w", err)
	}
	defer sqlDB.Close()

	if err := migrate(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func resolveLogLevel(cfg *config.AppConfig) logger.LogLevel {
	if cfg.IsDev() {
		return logger.Info
	}
	return logger.Warn
}

func openDB(cfg *config.AppConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	switch cfg.Database.Driver {
	case "mysql":
		db, err := gorm.Open(mysql.New(mysql.Config{
			DSN:               cfg.Database.DSNValue(),
			DefaultStringSize: 191,
		}), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		return db, nil
	default:
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath()), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("resolve sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
}

// migrate runs GORM auto-migration for all models.
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.UserModel{},
		&models.UserSession{},
		&models.APIToken{},
		&models.AuthnModel{},
		&models.EntryModel{},
		&models.MintAuditModel{},
		&models.EntryInsightModel{},
		&models.PromptModel{},
		&models.OptionModel{},
		&models.WebhookModel{},
		&models.WebhookEventModel{},
	); err != nil {
		return err
	}

	if db.Dialector.Name() == "mysql" {
		if err := db.Exec("ALTER TABLE `entries` MODIFY COLUMN `tags` LONGTEXT NULL").Error; err != nil {
			return err
		}
		if err := db.Exec("ALTER TABLE `entries` MODIFY COLUMN `breakdown` LONGTEXT NULL").Error; err != nil {
			return err
		}
		if err := db.Exec("ALTER TABLE `users` MODIFY COLUMN `preferences` LONGTEXT NULL").Error; err != nil {
			return err
		}
	}

	return nil
}
