// Package service implements the raid gate, raid execution and reward granting.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"city-raid/internal/catalog"
	"city-raid/internal/model"
	"city-raid/internal/repository"
)

// Store interfaces. The repository package provides the Postgres implementations.

// ProfileStore reads profiles and saves loadouts.
type ProfileStore interface {
	GetByLogin(ctx context.Context, login string) (*model.Profile, error)
	SaveLoadout(ctx context.Context, id int64, vehicle, tagStyle *string) error
}

// PurchaseStore answers ownership questions.
type PurchaseStore interface {
	ListOwned(ctx context.Context, profileID int64, kind catalog.Kind) ([]model.Purchase, error)
	GetOwned(ctx context.Context, profileID, purchaseID int64) (*model.Purchase, error)
}

// RaidStore reads raid counts and inserts raids under the caps.
type RaidStore interface {
	CountSince(ctx context.Context, attackerID int64, since time.Time) (int, error)
	CountPairSince(ctx context.Context, attackerID, defenderID int64, since time.Time) (int, error)
	InsertGuarded(ctx context.Context, raid *model.Raid, g repository.Guard) error
	ListForProfile(ctx context.Context, profileID int64, limit int) ([]model.Raid, error)
	ListUnrewarded(ctx context.Context, olderThan time.Time, limit int) ([]model.Raid, error)
}

// RewardStore applies idempotent reward writes.
type RewardStore interface {
	GrantXP(ctx context.Context, grants []model.XPGrant) (map[int64]int64, error)
	AwardAchievements(ctx context.Context, profileID int64, raidID uuid.UUID, ids []string) ([]string, error)
	MarkRewarded(ctx context.Context, raidID uuid.UUID) error
}

// TagStore places raid tags on buildings.
type TagStore interface {
	Upsert(ctx context.Context, tag *model.RaidTag) error
}

var (
	_ ProfileStore  = (*repository.ProfileRepository)(nil)
	_ PurchaseStore = (*repository.PurchaseRepository)(nil)
	_ RaidStore     = (*repository.RaidRepository)(nil)
	_ RewardStore   = (*repository.RewardRepository)(nil)
	_ TagStore      = (*repository.TagRepository)(nil)
)
