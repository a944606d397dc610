package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/credits/internal/identity"
	"github.com/MarkoPoloResearchLab/credits/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/credits/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/credits/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormprometheus "gorm.io/plugin/prometheus"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"

	gormMetricsRefreshSeconds = 15
	gormSlowQueryThreshold    = 200 * time.Millisecond
)

// backend bundles the ledger store with the identity link store that shares its database.
type backend struct {
	store    ledger.Store
	accounts identity.AccountCreator
	links    identity.LinkStore
	close    func()
}

type backendOptions struct {
	migrate        bool
	collectMetrics bool
}

func openBackend(ctx context.Context, cfg *runtimeConfig, options backendOptions, logger *zap.Logger) (*backend, error) {
	switch cfg.Store {
	case storeMemory:
		store := memstore.New()
		logger.Warn("using in-memory store; balances are lost on exit")
		return &backend{store: store, accounts: store, links: identity.NewMemoryLinkStore(), close: func() {}}, nil
	case storePgx:
		return openPgxBackend(ctx, cfg, options)
	default:
		return openGormBackend(ctx, cfg, options, logger)
	}
}

func openPgxBackend(ctx context.Context, cfg *runtimeConfig, options backendOptions) (*backend, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	if options.migrate {
		if err := pgstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	store := pgstore.New(pool, pgstore.WithLockTimeout(cfg.LockTimeout))
	return &backend{store: store, accounts: store, links: store, close: pool.Close}, nil
}

func openGormBackend(ctx context.Context, cfg *runtimeConfig, options backendOptions, logger *zap.Logger) (*backend, error) {
	db, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL, newGormLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	if options.collectMetrics {
		if err := db.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          driver,
			RefreshInterval: gormMetricsRefreshSeconds,
		})); err != nil {
			_ = cleanup()
			return nil, fmt.Errorf("database metrics: %w", err)
		}
	}
	if options.migrate || driver == driverSQLite {
		if err := prepareSchema(ctx, db); err != nil {
			_ = cleanup()
			return nil, err
		}
	}
	store := gormstore.New(db, gormstore.WithLockTimeout(cfg.LockTimeout))
	return &backend{
		store:    store,
		accounts: store,
		links:    identity.NewGormLinkStore(db),
		close:    func() { _ = cleanup() },
	}, nil
}

// newGormLogger routes gorm warnings through zap and skips record-not-found misses.
func newGormLogger(logger *zap.Logger) gormlogger.Interface {
	return gormlogger.New(zap.NewStdLog(logger.Named("gorm")), gormlogger.Config{
		SlowThreshold:             gormSlowQueryThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func openDatabase(ctx context.Context, dsn string, dbLogger gormlogger.Interface) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	cfg := &gorm.Config{Logger: dbLogger}
	var db *gorm.DB
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	if driver == driverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "credits.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Anything else is a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(ctx context.Context, db *gorm.DB) error {
	if err := gormstore.Migrate(ctx, db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := identity.MigrateLinks(ctx, db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
