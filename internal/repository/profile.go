// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"city-raid/internal/model"
)

// Common errors for repository operations.
var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrRaidNotFound     = errors.New("raid not found")
)

const profileColumns = `
	id, login, avatar_url, claimed, contributions, weekly_contributions,
	app_streak, weekly_kudos_given, weekly_kudos_received, raid_xp,
	raid_vehicle, raid_tag_style, created_at, updated_at`

// ProfileRepository handles profile persistence.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository creates a new ProfileRepository instance.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	err := row.Scan(
		&p.ID,
		&p.Login,
		&p.AvatarURL,
		&p.Claimed,
		&p.Contributions,
		&p.WeeklyContributions,
		&p.AppStreak,
		&p.WeeklyKudosGiven,
		&p.WeeklyKudosReceived,
		&p.RaidXP,
		&p.RaidVehicle,
		&p.RaidTagStyle,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a profile. Login is stored lowercased.
// Profiles are normally created by ingestion; raids only read them.
func (r *ProfileRepository) Create(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	query := `
		INSERT INTO profiles (login, avatar_url, claimed, contributions, weekly_contributions,
			app_streak, weekly_kudos_given, weekly_kudos_received, raid_xp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + profileColumns

	created, err := scanProfile(r.pool.QueryRow(ctx, query,
		strings.ToLower(p.Login),
		p.AvatarURL,
		p.Claimed,
		p.Contributions,
		p.WeeklyContributions,
		p.AppStreak,
		p.WeeklyKudosGiven,
		p.WeeklyKudosReceived,
		p.RaidXP,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return created, nil
}

// GetByLogin retrieves a profile by login, case-insensitively.
// Returns ErrProfileNotFound if the profile does not exist.
func (r *ProfileRepository) GetByLogin(ctx context.Context, login string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE login = $1`

	p, err := scanProfile(r.pool.QueryRow(ctx, query, strings.ToLower(login)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetByID retrieves a profile by ID.
// Returns ErrProfileNotFound if the profile does not exist.
func (r *ProfileRepository) GetByID(ctx context.Context, id int64) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	p, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// SaveLoadout stores the profile's preferred raid vehicle and tag style.
// A nil value clears the preference.
func (r *ProfileRepository) SaveLoadout(ctx context.Context, id int64, vehicle, tagStyle *string) error {
	const query = `
		UPDATE profiles
		SET raid_vehicle = $2, raid_tag_style = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, vehicle, tagStyle)
	if err != nil {
		return fmt.Errorf("failed to save loadout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
