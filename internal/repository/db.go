package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/common"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers "sqlite", which sqlx does not know as a ? dialect.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DB is the store handle. pool is set for postgres only.
type DB struct {
	*sqlx.DB
	driver string
	pool   *pgxpool.Pool
}

func (db *DB) Driver() string { return db.driver }

// Open connects to the configured store and applies the schema.
func Open(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("repository.open", "driver", cfg.Driver)

	var (
		db  *DB
		err error
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		db, err = openSQLite(ctx, cfg)
	case DriverPostgres:
		db, err = openPostgres(ctx, cfg)
	default:
		err = fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		logger.Error("repository.open.failed", "driver", cfg.Driver, "error", err)
		return nil, common.NewAppError(common.CodeDatabase, "open store", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, common.NewAppError(common.CodeDatabase, "migrate store", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}
	logger.Info("repository.ready", "driver", db.driver)
	return db, nil
}

func openSQLite(ctx context.Context, cfg common.StoreConfig) (*DB, error) {
	x, err := sqlx.Open(DriverSQLite, cfg.DSN)
	if err != nil {
		return nil, err
	}
	// one writer at a time; also keeps :memory: databases on one connection
	x.SetMaxOpenConns(1)
	if err := ping(ctx, x, cfg.DialTimeout); err != nil {
		_ = x.Close()
		return nil, err
	}
	return &DB{DB: x, driver: DriverSQLite}, nil
}

// openPostgres creates a pgx pool and wraps it for database/sql.
func openPostgres(ctx context.Context, cfg common.StoreConfig) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "gradeparse"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	dialCtx, cancel := withTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, err
	}
	x := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
	if err := ping(ctx, x, cfg.DialTimeout); err != nil {
		_ = x.Close()
		pool.Close()
		return nil, err
	}
	return &DB{DB: x, driver: DriverPostgres, pool: pool}, nil
}

// Close closes the database connections gracefully
func (db *DB) Close() error {
	err := db.DB.Close()
	if db.pool != nil {
		db.pool.Close()
	}
	return err
}

// HealthCheck pings the store to catch DSN issues early.
func HealthCheck(ctx context.Context, db *DB, timeout time.Duration) error {
	return ping(ctx, db.DB, timeout)
}

func ping(ctx context.Context, x *sqlx.DB, timeout time.Duration) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return x.PingContext(ctx)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
