package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalogsync/internal/models"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	DB *gorm.DB
}

func New(databaseURL string) (*Database, error) {
	dialector, err := Dialector(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.TrackingEntry{}, &models.Issue{}, &models.SyncRun{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	return &Database{DB: db}, nil
}

// Dialector picks the gorm driver from the URL scheme: sqlite:// for
// development, mysql:// for a WordPress host, PostgreSQL (through lib/pq)
// otherwise.
func Dialector(databaseURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://")), nil
	case strings.HasPrefix(databaseURL, "mysql://"):
		dsn, err := MySQLDSN(databaseURL)
		if err != nil {
			return nil, err
		}
		return gormmysql.Open(dsn), nil
	default:
		return postgres.New(postgres.Config{DriverName: "postgres", DSN: databaseURL}), nil
	}
}

// MySQLDSN turns a mysql:// URL into a driver DSN with time parsing enabled.
func MySQLDSN(databaseURL string) (string, error) {
	cfg, err := mysql.ParseDSN(strings.TrimPrefix(databaseURL, "mysql://"))
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	return cfg.FormatDSN(), nil
}

// IsRetryable reports lock contention errors worth retrying a transaction for.
func IsRetryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		// 1213: deadlock, 1205: lock wait timeout
		return me.Number == 1213 || me.Number == 1205
	}
	return false
}

// WithTxRetry runs fn in a transaction, retrying on lock contention.
func WithTxRetry(ctx context.Context, db *gorm.DB, attempts int, fn func(tx *gorm.DB) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(50*(i+1)) * time.Millisecond):
		}
	}
	return err
}

func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
