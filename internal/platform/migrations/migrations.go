// Package migrations applies the pool mirror schema. Statements are
// idempotent so Apply is safe to run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		creator_address TEXT NOT NULL,
		contract_address TEXT NOT NULL,
		token_address TEXT NOT NULL,
		total_saved DOUBLE PRECISION NOT NULL DEFAULT 0,
		target_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		members_count INTEGER NOT NULL DEFAULT 0,
		next_payout TIMESTAMPTZ,
		next_recipient TEXT,
		contribution_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		round_duration BIGINT NOT NULL DEFAULT 0,
		frequency TEXT,
		deadline TIMESTAMPTZ,
		minimum_deposit DOUBLE PRECISION NOT NULL DEFAULT 0,
		withdrawal_fee BIGINT NOT NULL DEFAULT 0,
		yield_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT pools_contract_address_key UNIQUE (contract_address)
	)`,

	`CREATE TABLE IF NOT EXISTS pool_members (
		id TEXT PRIMARY KEY,
		pool_id TEXT NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
		member_address TEXT NOT NULL,
		contribution_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS pool_activity (
		id TEXT PRIMARY KEY,
		pool_id TEXT NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
		activity_type TEXT NOT NULL,
		actor_address TEXT,
		amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		description TEXT,
		tx_hash TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT pool_activity_pool_id_tx_hash_key UNIQUE (pool_id, tx_hash)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_pools_creator ON pools (LOWER(creator_address))`,

	`CREATE INDEX IF NOT EXISTS idx_pools_created_at ON pools (created_at DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_pool_activity_pool ON pool_activity (pool_id, created_at DESC)`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
