package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"starterkit/api/internal/config"
)

func NewPostgresPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpen)
	poolConfig.MinConns = int32(cfg.MaxIdle)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

// NewGorm opens the ORM on top of a pgx pool so both share one set of
// connections.
func NewGorm(pool *pgxpool.Pool, cfg config.PostgresConfig, log zerolog.Logger) (*gorm.DB, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), GormConfig(cfg.SlowThreshold, log))
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return db, nil
}

func GormConfig(slowThreshold time.Duration, log zerolog.Logger) *gorm.Config {
	logger := log.With().Str("component", "gorm").Logger()
	return &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(&logger, gormlogger.Config{
			SlowThreshold:             slowThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// DB is the ORM handle plus the pool it runs on.
type DB struct {
	*gorm.DB
	pool *pgxpool.Pool
}

// Wrap adopts an already opened ORM handle, e.g. an in-memory one in tests.
func Wrap(db *gorm.DB) *DB {
	return &DB{DB: db}
}

func Connect(ctx context.Context, cfg config.PostgresConfig, log zerolog.Logger) (*DB, error) {
	pool, err := NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db, err := NewGorm(pool, cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{DB: db, pool: pool}, nil
}

func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}
