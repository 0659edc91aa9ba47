package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"city-raid/internal/model"
)

// RewardRepository persists raid rewards. Every write is keyed so that
// repeating it for the same raid changes nothing.
type RewardRepository struct {
	pool *pgxpool.Pool
}

// NewRewardRepository creates a new RewardRepository instance.
func NewRewardRepository(pool *pgxpool.Pool) *RewardRepository {
	return &RewardRepository{pool: pool}
}

// GrantXP applies XP ledger entries and returns each profile's resulting raid XP.
// A (raid, profile) entry is applied once; later calls only read the total.
func (r *RewardRepository) GrantXP(ctx context.Context, grants []model.XPGrant) (map[int64]int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin xp transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	totals := make(map[int64]int64, len(grants))
	for _, g := range grants {
		tag, err := tx.Exec(ctx, `
			INSERT INTO raid_xp_grants (raid_id, profile_id, xp)
			VALUES ($1, $2, $3)
			ON CONFLICT (raid_id, profile_id) DO NOTHING
		`, g.RaidID, g.ProfileID, g.XP)
		if err != nil {
			return nil, fmt.Errorf("failed to record xp grant: %w", err)
		}

		var total int64
		if tag.RowsAffected() == 1 && g.XP != 0 {
			err = tx.QueryRow(ctx, `
				UPDATE profiles SET raid_xp = raid_xp + $2, updated_at = NOW()
				WHERE id = $1
				RETURNING raid_xp
			`, g.ProfileID, g.XP).Scan(&total)
		} else {
			err = tx.QueryRow(ctx, `SELECT raid_xp FROM profiles WHERE id = $1`, g.ProfileID).Scan(&total)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update raid xp: %w", err)
		}
		totals[g.ProfileID] = total
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit xp: %w", err)
	}
	return totals, nil
}

// AwardAchievements grants achievements to a profile and returns only the IDs
// that were not already held. Order of the result is unspecified.
func (r *RewardRepository) AwardAchievements(ctx context.Context, profileID int64, raidID uuid.UUID, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `
		INSERT INTO profile_achievements (profile_id, achievement_id, raid_id)
		SELECT $1, unnest($2::text[]), $3
		ON CONFLICT (profile_id, achievement_id) DO NOTHING
		RETURNING achievement_id
	`
	rows, err := r.pool.Query(ctx, query, profileID, ids, raidID)
	if err != nil {
		return nil, fmt.Errorf("failed to award achievements: %w", err)
	}
	defer rows.Close()

	var added []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		added = append(added, id)
	}
	return added, rows.Err()
}

// ListAchievements returns the achievement IDs a profile holds.
func (r *RewardRepository) ListAchievements(ctx context.Context, profileID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT achievement_id FROM profile_achievements WHERE profile_id = $1 ORDER BY earned_at, achievement_id`,
		profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkRewarded records that every reward for the raid has been applied.
func (r *RewardRepository) MarkRewarded(ctx context.Context, raidID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO raid_rewards (raid_id) VALUES ($1) ON CONFLICT (raid_id) DO NOTHING`,
		raidID)
	if err != nil {
		return fmt.Errorf("failed to mark raid rewarded: %w", err)
	}
	return nil
}
