package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"city-raid/internal/model"
)

// ErrTagNotFound is returned when a building carries no tag.
var ErrTagNotFound = errors.New("raid tag not found")

// TagRepository handles raid tags on buildings.
type TagRepository struct {
	pool *pgxpool.Pool
}

// NewTagRepository creates a new TagRepository instance.
func NewTagRepository(pool *pgxpool.Pool) *TagRepository {
	return &TagRepository{pool: pool}
}

// Upsert places tag on its building, replacing any previous tag.
// A tag from an older raid never replaces one from a newer raid.
func (r *TagRepository) Upsert(ctx context.Context, tag *model.RaidTag) error {
	const query = `
		INSERT INTO raid_tags (building_id, raid_id, attacker_id, attacker_login, tag_style,
			active, raided_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, NOW())
		ON CONFLICT (building_id)
		DO UPDATE SET raid_id = EXCLUDED.raid_id,
			attacker_id = EXCLUDED.attacker_id,
			attacker_login = EXCLUDED.attacker_login,
			tag_style = EXCLUDED.tag_style,
			active = TRUE,
			raided_at = EXCLUDED.raided_at,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		WHERE raid_tags.raided_at <= EXCLUDED.raided_at
	`
	_, err := r.pool.Exec(ctx, query,
		tag.BuildingID,
		tag.RaidID,
		tag.AttackerID,
		tag.AttackerLogin,
		tag.TagStyle,
		tag.RaidedAt,
		tag.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert raid tag: %w", err)
	}
	return nil
}

// Get returns the tag on a building, active or not.
func (r *TagRepository) Get(ctx context.Context, buildingID int64) (*model.RaidTag, error) {
	const query = `
		SELECT building_id, raid_id, attacker_id, attacker_login, tag_style,
			active, raided_at, expires_at, updated_at
		FROM raid_tags
		WHERE building_id = $1
	`
	var t model.RaidTag
	err := r.pool.QueryRow(ctx, query, buildingID).Scan(
		&t.BuildingID,
		&t.RaidID,
		&t.AttackerID,
		&t.AttackerLogin,
		&t.TagStyle,
		&t.Active,
		&t.RaidedAt,
		&t.ExpiresAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTagNotFound
		}
		return nil, fmt.Errorf("failed to get raid tag: %w", err)
	}
	return &t, nil
}

// DeactivateExpired marks every active tag expiring at or before now as
// inactive and returns how many were changed.
func (r *TagRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE raid_tags
		SET active = FALSE, updated_at = NOW()
		WHERE active AND expires_at <= $1
	`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate raid tags: %w", err)
	}
	return tag.RowsAffected(), nil
}
