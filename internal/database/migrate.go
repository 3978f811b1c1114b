package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS businesses (
		id BIGSERIAL PRIMARY KEY,
		source_id TEXT NOT NULL,
		scrape_source TEXT NOT NULL,
		name TEXT NOT NULL,
		address TEXT,
		phone TEXT,
		website TEXT,
		categories JSONB,
		rating DOUBLE PRECISION,
		review_count INTEGER,
		scraped_at TIMESTAMPTZ NOT NULL,
		execution_id TEXT,
		UNIQUE (scrape_source, source_id)
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id BIGSERIAL PRIMARY KEY,
		business_id BIGINT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		position TEXT,
		email TEXT,
		phone TEXT,
		is_decision_maker BOOLEAN NOT NULL DEFAULT FALSE,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		synthetic BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS search_history (
		execution_id TEXT PRIMARY KEY,
		query TEXT,
		location TEXT,
		industry TEXT,
		status TEXT NOT NULL,
		result_count INTEGER NOT NULL,
		execution_log JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS proxy_servers (
		protocol TEXT NOT NULL,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		username TEXT,
		password TEXT,
		source_id TEXT,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		consecutive_fail INTEGER NOT NULL DEFAULT 0,
		avg_response_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		country TEXT,
		city TEXT,
		last_used TIMESTAMPTZ,
		last_checked TIMESTAMPTZ,
		PRIMARY KEY (host, port)
	)`,
	`CREATE TABLE IF NOT EXISTS proxy_sources (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		endpoint TEXT,
		api_key TEXT,
		refresh_every_seconds BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		last_refreshed TIMESTAMPTZ
	)`,
}

// Migrate applies the schema. Statements are idempotent so this runs at
// every startup.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
