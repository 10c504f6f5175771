package database

import (
	"context"
	"fmt"
	"time"

	"parley-chat/config"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the relational database backing the social graph.
// SOCIAL_STORE selects the dialect (postgres or mysql).
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.SocialStore {
	case config.StorePostgres:
		dialector = postgres.Open(cfg.PostgresDSN())
	case config.StoreMySQL:
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("MYSQL_DSN is not set")
		}
		dialector = mysql.Open(cfg.MySQLDSN)
	default:
		return nil, fmt.Errorf("unsupported social store %q", cfg.SocialStore)
	}

	logMode := logger.Warn
	if cfg.AppMode == "debug" {
		logMode = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:      logger.Default.LogMode(logMode),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get generic database object: %w", err)
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the pool can reach the server.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// TableCount returns the number of rows in table, or an error if it does not exist.
func TableCount(ctx context.Context, db *gorm.DB, table string) (int64, error) {
	if !db.Migrator().HasTable(table) {
		return 0, fmt.Errorf("table %s does not exist", table)
	}
	var count int64
	err := db.WithContext(ctx).Table(table).Count(&count).Error
	return count, err
}
