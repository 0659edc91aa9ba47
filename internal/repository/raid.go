package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"city-raid/internal/model"
)

// Errors returned by InsertGuarded when a raid would break a cap.
var (
	ErrDailyCapReached = errors.New("daily raid cap reached")
	ErrPairCooldown    = errors.New("target already raided this week")
	ErrSelfRaid        = errors.New("attacker and defender are the same profile")
)

// raidLockClass is the advisory lock class of the per-attacker insert lock.
// It keeps raid locks out of the single-key space other code may use.
const raidLockClass int32 = 0x52414944

// Postgres error codes mapped by InsertGuarded.
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

const raidColumns = `
	r.id, r.attacker_id, r.defender_id, r.attack_score, r.defense_score,
	r.attack_breakdown, r.defense_breakdown, r.success, r.xp_earned, r.defender_xp,
	r.vehicle, r.tag_style, r.boost_purchase_id, r.week_start, r.created_at,
	a.login, d.login`

const raidFrom = `
	FROM raids r
	JOIN profiles a ON a.id = r.attacker_id
	JOIN profiles d ON d.id = r.defender_id`

// Guard carries the limits InsertGuarded re-checks inside its transaction.
type Guard struct {
	DayStart  time.Time // Start of the attacker's current day
	WeekStart time.Time // Monday 00:00 of the current week
	MaxPerDay int
}

// RaidRepository handles raid record persistence. Raid rows are never updated.
type RaidRepository struct {
	pool *pgxpool.Pool
}

// NewRaidRepository creates a new RaidRepository instance.
func NewRaidRepository(pool *pgxpool.Pool) *RaidRepository {
	return &RaidRepository{pool: pool}
}

func scanRaid(row pgx.Row) (*model.Raid, error) {
	var r model.Raid
	if err := row.Scan(
		&r.ID,
		&r.AttackerID,
		&r.DefenderID,
		&r.AttackScore,
		&r.DefenseScore,
		&r.AttackBreakdown,
		&r.DefenseBreakdown,
		&r.Success,
		&r.XPEarned,
		&r.DefenderXP,
		&r.Vehicle,
		&r.TagStyle,
		&r.BoostPurchaseID,
		&r.WeekStart,
		&r.CreatedAt,
		&r.AttackerLogin,
		&r.DefenderLogin,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRaids(rows pgx.Rows) ([]model.Raid, error) {
	defer rows.Close()
	var out []model.Raid
	for rows.Next() {
		r, err := scanRaid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raid: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CountSince counts the attacker's raids created at or after since.
func (r *RaidRepository) CountSince(ctx context.Context, attackerID int64, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM raids WHERE attacker_id = $1 AND created_at >= $2`

	var n int
	if err := r.pool.QueryRow(ctx, query, attackerID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count raids: %w", err)
	}
	return n, nil
}

// CountPairSince counts raids by attacker on defender created at or after since.
func (r *RaidRepository) CountPairSince(ctx context.Context, attackerID, defenderID int64, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM raids
		WHERE attacker_id = $1 AND defender_id = $2 AND created_at >= $3
	`
	var n int
	if err := r.pool.QueryRow(ctx, query, attackerID, defenderID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pair raids: %w", err)
	}
	return n, nil
}

// InsertGuarded inserts raid if the attacker is still under the daily cap and
// has not raided this defender this week.
//
// The check and the insert run in one transaction holding an advisory lock on
// the attacker, so concurrent inserts for one attacker are serialised across
// every instance sharing the database. The (attacker, defender, week_start)
// unique constraint backs the weekly rule independently.
//
// On success raid.CreatedAt is set from the database.
func (r *RaidRepository) InsertGuarded(ctx context.Context, raid *model.Raid, g Guard) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin raid transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashint8($2))`, raidLockClass, raid.AttackerID); err != nil {
		return fmt.Errorf("failed to lock attacker: %w", err)
	}

	var today, pair int
	err = tx.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE defender_id = $3 AND created_at >= $4)
		FROM raids
		WHERE attacker_id = $1
	`, raid.AttackerID, g.DayStart, raid.DefenderID, g.WeekStart).Scan(&today, &pair)
	if err != nil {
		return fmt.Errorf("failed to count raids: %w", err)
	}
	if today >= g.MaxPerDay {
		return ErrDailyCapReached
	}
	if pair > 0 {
		return ErrPairCooldown
	}

	const insert = `
		INSERT INTO raids (id, attacker_id, defender_id, attack_score, defense_score,
			attack_breakdown, defense_breakdown, success, xp_earned, defender_xp,
			vehicle, tag_style, boost_purchase_id, week_start, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::date, $15)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, insert,
		raid.ID,
		raid.AttackerID,
		raid.DefenderID,
		raid.AttackScore,
		raid.DefenseScore,
		raid.AttackBreakdown,
		raid.DefenseBreakdown,
		raid.Success,
		raid.XPEarned,
		raid.DefenderXP,
		raid.Vehicle,
		raid.TagStyle,
		raid.BoostPurchaseID,
		raid.WeekStart.Format(time.DateOnly),
		raid.CreatedAt,
	).Scan(&raid.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return ErrPairCooldown
			case pgCheckViolation:
				return ErrSelfRaid
			}
		}
		return fmt.Errorf("failed to insert raid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit raid: %w", err)
	}
	return nil
}

// GetByID retrieves one raid.
func (r *RaidRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Raid, error) {
	query := `SELECT ` + raidColumns + raidFrom + ` WHERE r.id = $1`

	raid, err := scanRaid(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRaidNotFound
		}
		return nil, fmt.Errorf("failed to get raid: %w", err)
	}
	return raid, nil
}

// ListForProfile returns the newest raids the profile took part in on either side.
func (r *RaidRepository) ListForProfile(ctx context.Context, profileID int64, limit int) ([]model.Raid, error) {
	query := `SELECT ` + raidColumns + raidFrom + `
		WHERE r.attacker_id = $1 OR r.defender_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list raids: %w", err)
	}
	return collectRaids(rows)
}

// ListUnrewarded returns raids created before olderThan whose reward step
// never completed, oldest first.
func (r *RaidRepository) ListUnrewarded(ctx context.Context, olderThan time.Time, limit int) ([]model.Raid, error) {
	query := `SELECT ` + raidColumns + raidFrom + `
		LEFT JOIN raid_rewards rw ON rw.raid_id = r.id
		WHERE rw.raid_id IS NULL AND r.created_at < $1
		ORDER BY r.created_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unrewarded raids: %w", err)
	}
	return collectRaids(rows)
}
