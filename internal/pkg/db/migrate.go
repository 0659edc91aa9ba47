package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool, *Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

// migrations are applied in order. Every statement is idempotent so the
// whole list runs on each start.
var migrations = []migration{
	{
		name: "profiles table",
		sql: `
		CREATE TABLE IF NOT EXISTS profiles (
			id BIGSERIAL PRIMARY KEY,
			login TEXT NOT NULL UNIQUE,
			avatar_url TEXT NOT NULL DEFAULT '',
			claimed BOOLEAN NOT NULL DEFAULT FALSE,
			contributions BIGINT NOT NULL DEFAULT 0,
			weekly_contributions INT NOT NULL DEFAULT 0,
			app_streak INT NOT NULL DEFAULT 0,
			weekly_kudos_given INT NOT NULL DEFAULT 0,
			weekly_kudos_received INT NOT NULL DEFAULT 0,
			raid_xp BIGINT NOT NULL DEFAULT 0,
			raid_vehicle TEXT,
			raid_tag_style TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT profiles_login_lower CHECK (login = lower(login))
		);
		`,
	},
	{
		name: "catalog and purchases tables",
		sql: `
		CREATE TABLE IF NOT EXISTS catalog_items (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			bonus INT NOT NULL DEFAULT 0,
			tag_style TEXT
		);
		CREATE TABLE IF NOT EXISTS purchases (
			id BIGSERIAL PRIMARY KEY,
			profile_id BIGINT NOT NULL REFERENCES profiles(id),
			item_id TEXT NOT NULL REFERENCES catalog_items(id),
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_purchases_profile ON purchases(profile_id, status);
		`,
	},
	{
		name: "raids table",
		sql: `
		CREATE TABLE IF NOT EXISTS raids (
			id UUID PRIMARY KEY,
			attacker_id BIGINT NOT NULL REFERENCES profiles(id),
			defender_id BIGINT NOT NULL REFERENCES profiles(id),
			attack_score INT NOT NULL,
			defense_score INT NOT NULL,
			attack_breakdown JSONB NOT NULL,
			defense_breakdown JSONB NOT NULL,
			success BOOLEAN NOT NULL,
			xp_earned BIGINT NOT NULL,
			defender_xp BIGINT NOT NULL,
			vehicle TEXT NOT NULL,
			tag_style TEXT,
			boost_purchase_id BIGINT REFERENCES purchases(id),
			week_start DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT raids_not_self CHECK (attacker_id <> defender_id),
			CONSTRAINT raids_pair_week UNIQUE (attacker_id, defender_id, week_start)
		);
		CREATE INDEX IF NOT EXISTS idx_raids_attacker_time ON raids(attacker_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_raids_defender_time ON raids(defender_id, created_at DESC);
		`,
	},
	{
		name: "raid_tags table",
		sql: `
		CREATE TABLE IF NOT EXISTS raid_tags (
			building_id BIGINT PRIMARY KEY REFERENCES profiles(id),
			raid_id UUID NOT NULL,
			attacker_id BIGINT NOT NULL,
			attacker_login TEXT NOT NULL,
			tag_style TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			raided_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_raid_tags_expiry ON raid_tags(expires_at) WHERE active;
		`,
	},
	{
		name: "reward tables",
		sql: `
		CREATE TABLE IF NOT EXISTS raid_xp_grants (
			raid_id UUID NOT NULL REFERENCES raids(id),
			profile_id BIGINT NOT NULL REFERENCES profiles(id),
			xp BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (raid_id, profile_id)
		);
		CREATE TABLE IF NOT EXISTS profile_achievements (
			profile_id BIGINT NOT NULL REFERENCES profiles(id),
			achievement_id TEXT NOT NULL,
			raid_id UUID REFERENCES raids(id),
			earned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (profile_id, achievement_id)
		);
		CREATE TABLE IF NOT EXISTS raid_rewards (
			raid_id UUID PRIMARY KEY REFERENCES raids(id),
			completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		`,
	},
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db Execer) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
