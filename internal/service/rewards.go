package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"city-raid/internal/game/raid"
	"city-raid/internal/model"
)

// RewardResult is what the attacker gained from a raid.
type RewardResult struct {
	AttackerXP      int64    // Attacker's cumulative raid XP after the grant
	DefenderXP      int64    // Defender's cumulative raid XP after the grant
	NewAchievements []string // Attacker achievements first earned by this grant
}

// Rewards grants XP, achievements and the raid tag for a committed raid.
// Every step is idempotent, so Grant may be repeated for the same raid until
// it succeeds.
type Rewards struct {
	store       RewardStore
	tags        TagStore
	tagDuration time.Duration
}

// NewRewards creates a new Rewards instance.
func NewRewards(store RewardStore, tags TagStore, tagDuration time.Duration) *Rewards {
	return &Rewards{store: store, tags: tags, tagDuration: tagDuration}
}

// Grant applies the rewards for rec. rec.AttackerLogin must be set when the
// raid succeeded. The raid is marked rewarded only after every step succeeds.
func (r *Rewards) Grant(ctx context.Context, rec *model.Raid) (*RewardResult, error) {
	totals, err := r.store.GrantXP(ctx, []model.XPGrant{
		{RaidID: rec.ID, ProfileID: rec.AttackerID, XP: rec.XPEarned},
		{RaidID: rec.ID, ProfileID: rec.DefenderID, XP: rec.DefenderXP},
	})
	if err != nil {
		return nil, fmt.Errorf("grant xp: %w", err)
	}

	res := &RewardResult{
		AttackerXP: totals[rec.AttackerID],
		DefenderXP: totals[rec.DefenderID],
	}

	added, err := r.store.AwardAchievements(ctx, rec.AttackerID, rec.ID, raid.AchievementsUpTo(res.AttackerXP))
	if err != nil {
		return nil, fmt.Errorf("award attacker achievements: %w", err)
	}
	res.NewAchievements = raid.OrderAchievements(added)

	if _, err := r.store.AwardAchievements(ctx, rec.DefenderID, rec.ID, raid.AchievementsUpTo(res.DefenderXP)); err != nil {
		return nil, fmt.Errorf("award defender achievements: %w", err)
	}

	if rec.Success && rec.TagStyle != nil {
		tag := &model.RaidTag{
			BuildingID:    rec.DefenderID,
			RaidID:        rec.ID,
			AttackerID:    rec.AttackerID,
			AttackerLogin: rec.AttackerLogin,
			TagStyle:      *rec.TagStyle,
			Active:        true,
			RaidedAt:      rec.CreatedAt,
			ExpiresAt:     rec.CreatedAt.Add(r.tagDuration),
		}
		if err := r.tags.Upsert(ctx, tag); err != nil {
			return nil, fmt.Errorf("place raid tag: %w", err)
		}
	}

	if err := r.store.MarkRewarded(ctx, rec.ID); err != nil {
		return nil, fmt.Errorf("mark rewarded: %w", err)
	}

	log.Debug().
		Str("raid_id", rec.ID.String()).
		Int64("attacker_xp", res.AttackerXP).
		Strs("achievements", res.NewAchievements).
		Msg("Raid rewards granted")

	return res, nil
}

// Reconcile re-runs Grant for raids older than grace whose rewards never
// completed. It returns how many raids were rewarded.
func (r *Rewards) Reconcile(ctx context.Context, raids RaidStore, now time.Time, grace time.Duration, batch int) (int, error) {
	pending, err := raids.ListUnrewarded(ctx, now.Add(-grace), batch)
	if err != nil {
		return 0, fmt.Errorf("list unrewarded raids: %w", err)
	}

	done := 0
	for i := range pending {
		rec := &pending[i]
		if _, err := r.Grant(ctx, rec); err != nil {
			log.Warn().Err(err).Str("raid_id", rec.ID.String()).Msg("Reward retry failed")
			continue
		}
		done++
	}
	return done, nil
}
