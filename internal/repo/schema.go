package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — DDL для таблиц momo. Все выражения идемпотентны.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS schedule_leases (
		name        TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		last_alive  TIMESTAMPTZ NOT NULL,
		executions  JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,

	// Имя job не уникально: дубли от гонок redefine чистит JobRepo.Define.
	`CREATE TABLE IF NOT EXISTS jobs (
		id             UUID PRIMARY KEY,
		name           TEXT NOT NULL,
		schedule       JSONB NOT NULL,
		concurrency    INTEGER NOT NULL DEFAULT 1,
		max_running    INTEGER NOT NULL DEFAULT 0,
		timeout_ms     BIGINT NOT NULL DEFAULT 0,
		parameters     JSONB,
		execution_info JSONB,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_name ON jobs(name)`,
}

// EnsureSchema создаёт таблицы, если их нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
