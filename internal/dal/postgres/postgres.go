package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/spf13/viper"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Client represents a Postgres client.
type Client struct {
	pool *pgxpool.Pool
	db   *sqlx.DB
}

// Pool returns the underlying connection pool.
func (p *Client) Pool() *pgxpool.Pool {
	return p.pool
}

// DB returns a sqlx handle backed by the pool.
func (p *Client) DB() *sqlx.DB {
	return p.db
}

// Ping checks that the database is reachable.
func (p *Client) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the database connection for graceful shutdown.
func (p *Client) Close() {
	if err := p.db.Close(); err != nil {
		slog.Error("Failed to close sql handle", "error", err)
	}
	p.pool.Close()
}

// MustNewClient creates a new Postgres client and applies pending migrations.
func MustNewClient() *Client {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		os.Getenv("ORDER_PG_HOST"),
		viper.GetInt("postgres.port"),
		os.Getenv("ORDER_PG_USER"),
		os.Getenv("ORDER_PG_PASSWORD"),
		os.Getenv("ORDER_PG_DB"),
		viper.GetString("postgres.sslmode"),
	)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		panic(err)
	}
	if maxConns := viper.GetInt32("postgres.max_conns"); maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		panic(err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		panic(err)
	}

	db := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")

	if err := migrate(db); err != nil {
		panic(err)
	}

	slog.Info("Postgres connected", "host", config.ConnConfig.Host, "db", config.ConnConfig.Database)

	return &Client{
		pool: pool,
		db:   db,
	}
}

func migrate(db *sqlx.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
