package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dkuznetsov/link-registry/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	Pool *pgxpool.Pool
}

func NewPostgresDB(cfg config.DBConfig) (*PostgresDB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB config: %w", err)
	}

	// Настройка пула соединений
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.Pool.Close()
}

// Две логические коллекции: links (уникальный short_code) и users
// (уникальный username), плюс журнал доступов. Внешние ключи не форсируются.
const schema = `
CREATE TABLE IF NOT EXISTS links (
	id UUID PRIMARY KEY,
	short_code TEXT NOT NULL UNIQUE,
	original_url TEXT NOT NULL,
	owner_username TEXT,
	owner_role TEXT,
	access_count BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS access_events (
	id BIGSERIAL PRIMARY KEY,
	link_id UUID NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	browser TEXT NOT NULL,
	ip TEXT NOT NULL,
	requested_host TEXT NOT NULL,
	platform TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_access_events_link ON access_events (link_id, ts);

CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	role TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate создаёт схему. Вызывается из linkctl migrate и из интеграционных тестов.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
