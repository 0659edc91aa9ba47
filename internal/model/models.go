// Package model defines the persistent data models for the raid service.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Profile is a developer identity rendered as a building in the city.
// Activity counters are maintained by external ingestion; raids only add XP.
type Profile struct {
	ID                  int64     `db:"id"`
	Login               string    `db:"login"`
	AvatarURL           string    `db:"avatar_url"`
	Claimed             bool      `db:"claimed"`
	Contributions       int64     `db:"contributions"`
	WeeklyContributions int       `db:"weekly_contributions"`
	AppStreak           int       `db:"app_streak"`
	WeeklyKudosGiven    int       `db:"weekly_kudos_given"`
	WeeklyKudosReceived int       `db:"weekly_kudos_received"`
	RaidXP              int64     `db:"raid_xp"`
	RaidVehicle         *string   `db:"raid_vehicle"`   // Saved loadout vehicle
	RaidTagStyle        *string   `db:"raid_tag_style"` // Saved loadout tag style
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// Purchase is a bought catalog item joined with its catalog row.
type Purchase struct {
	ID        int64     `db:"id"`
	ProfileID int64     `db:"profile_id"`
	ItemID    string    `db:"item_id"`
	Kind      string    `db:"kind"`
	Name      string    `db:"name"`
	Bonus     int       `db:"bonus"`
	TagStyle  *string   `db:"tag_style"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

// Purchase statuses. Only completed purchases count as owned.
const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusRefunded  = "refunded"
)

// Raid is the immutable record of one raid.
type Raid struct {
	ID               uuid.UUID      `db:"id"`
	AttackerID       int64          `db:"attacker_id"`
	DefenderID       int64          `db:"defender_id"`
	AttackScore      int            `db:"attack_score"`
	DefenseScore     int            `db:"defense_score"`
	AttackBreakdown  map[string]int `db:"attack_breakdown"`
	DefenseBreakdown map[string]int `db:"defense_breakdown"`
	Success          bool           `db:"success"`
	XPEarned         int64          `db:"xp_earned"` // Attacker's XP
	DefenderXP       int64          `db:"defender_xp"`
	Vehicle          string         `db:"vehicle"`
	TagStyle         *string        `db:"tag_style"` // Set only on success
	BoostPurchaseID  *int64         `db:"boost_purchase_id"`
	WeekStart        time.Time      `db:"week_start"`
	CreatedAt        time.Time      `db:"created_at"`

	// Filled by joins, not stored on the raids row.
	AttackerLogin string `db:"attacker_login"`
	DefenderLogin string `db:"defender_login"`
}

// RaidTag is the cosmetic marker left on a defeated building.
// BuildingID is the defender's profile ID.
type RaidTag struct {
	BuildingID    int64     `db:"building_id"`
	RaidID        uuid.UUID `db:"raid_id"`
	AttackerID    int64     `db:"attacker_id"`
	AttackerLogin string    `db:"attacker_login"`
	TagStyle      string    `db:"tag_style"`
	Active        bool      `db:"active"`
	RaidedAt      time.Time `db:"raided_at"`
	ExpiresAt     time.Time `db:"expires_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Achievement is an achievement earned by a profile.
type Achievement struct {
	ProfileID     int64     `db:"profile_id"`
	AchievementID string    `db:"achievement_id"`
	RaidID        uuid.UUID `db:"raid_id"`
	EarnedAt      time.Time `db:"earned_at"`
}

// XPGrant is one XP ledger entry for a raid participant.
type XPGrant struct {
	RaidID    uuid.UUID `db:"raid_id"`
	ProfileID int64     `db:"profile_id"`
	XP        int64     `db:"xp"`
}
