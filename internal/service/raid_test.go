package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"city-raid/internal/catalog"
	"city-raid/internal/game/raid"
	"city-raid/internal/model"
	"city-raid/internal/pkg/ratelimit"
)

// Wednesday noon UTC.
var testNow = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *memStore
	clock *clockwork.FakeClock
	svc   *RaidService
}

func newFixture(maxPerDay int) *fixture {
	store := newMemStore()
	clock := clockwork.NewFakeClockAt(testNow)
	svc := NewRaidService(Deps{
		Profiles:  store,
		Purchases: store,
		Raids:     store,
		Rewards:   NewRewards(store, store, 7*24*time.Hour),
		Clock:     clock,
	}, Settings{
		MaxPerDay:   maxPerDay,
		TagDuration: 7 * 24 * time.Hour,
		XP:          raid.DefaultXP,
		Location:    time.UTC,
		LockTimeout: time.Second,
	})
	return &fixture{store: store, clock: clock, svc: svc}
}

// attacker scores 39, defender scores 27.
func (f *fixture) seedPair() (*model.Profile, *model.Profile) {
	a := f.store.addProfile(model.Profile{Login: "alice", Claimed: true, WeeklyContributions: 10, AppStreak: 5, WeeklyKudosGiven: 2})
	d := f.store.addProfile(model.Profile{Login: "bob", Claimed: true, WeeklyContributions: 8, AppStreak: 2, WeeklyKudosReceived: 1, Contributions: 400})
	return a, d
}

func TestPreviewGate(t *testing.T) {
	f := newFixture(3)
	f.seedPair()
	f.store.addProfile(model.Profile{Login: "ghost", Claimed: false})
	ctx := context.Background()

	tests := []struct {
		name   string
		caller string
		target string
		want   error
	}{
		{"anonymous", "", "bob", ErrAuthenticationRequired},
		{"unknown caller", "nobody", "bob", ErrProfileNotClaimed},
		{"unclaimed caller", "ghost", "bob", ErrProfileNotClaimed},
		{"missing target", "alice", "nobody", ErrTargetNotFound},
		{"self target", "alice", "alice", ErrSelfTargetForbidden},
		{"self target mixed case", "alice", "ALICE", ErrSelfTargetForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Preview(ctx, tt.caller, tt.target)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPreviewIsReadOnly(t *testing.T) {
	f := newFixture(3)
	a, _ := f.seedPair()
	f.store.addPurchase(a.ID, "boost_crowbar")
	f.store.addPurchase(a.ID, "rocket")
	ctx := context.Background()

	first, err := f.svc.Preview(ctx, "alice", "bob")
	require.NoError(t, err)
	second, err := f.svc.Preview(ctx, "alice", "bob")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Zero(t, f.store.raidCount())

	assert.Equal(t, 0, first.RaidsToday)
	assert.Equal(t, 3, first.RaidsMax)
	assert.False(t, first.TargetRaidedThisWeek)
	assert.Equal(t, 39, first.Attack.Total)
	assert.Equal(t, 0, first.Attack.Breakdown[raid.BreakdownBoost])
	assert.Equal(t, 27, first.Defense.Total)
	assert.Equal(t, raid.StrengthMedium, first.AttackEstimate)
	assert.Equal(t, raid.StrengthMedium, first.DefenseEstimate)
	assert.InDelta(t, 60.0, first.DefenderBuildingHeight, 0.001)
	require.Len(t, first.Boosts, 1)
	assert.Equal(t, "boost_crowbar", first.Boosts[0].ItemID)
	assert.Equal(t, []string{catalog.DefaultVehicle, "rocket"}, first.Vehicles)
	assert.Equal(t, catalog.DefaultVehicle, first.Vehicle)
}

func TestPreviewResetsUnownedSavedVehicle(t *testing.T) {
	f := newFixture(3)
	ufo := "ufo"
	f.store.addProfile(model.Profile{Login: "alice", Claimed: true, RaidVehicle: &ufo})
	f.store.addProfile(model.Profile{Login: "bob", Claimed: true})

	p, err := f.svc.Preview(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, catalog.DefaultVehicle, p.Vehicle)
}

func TestExecuteSuccess(t *testing.T) {
	f := newFixture(3)
	a, d := f.seedPair()
	ctx := context.Background()

	out, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob"})
	require.NoError(t, err)

	assert.True(t, out.Raid.Success)
	assert.Equal(t, 39, out.Attack.Total)
	assert.Equal(t, 27, out.Defense.Total)
	assert.Equal(t, int64(50), out.Raid.XPEarned)
	assert.Equal(t, int64(50), out.NewRaidXP)
	assert.False(t, out.RewardsPending)
	assert.Equal(t, catalog.DefaultVehicle, out.Raid.Vehicle)
	require.NotNil(t, out.Raid.TagStyle)
	assert.Equal(t, catalog.DefaultTagStyle, *out.Raid.TagStyle)
	assert.Equal(t, raid.WeekStart(testNow, time.UTC), out.Raid.WeekStart)

	assert.Equal(t, int64(50), f.store.profile("alice").RaidXP)
	assert.Equal(t, int64(30), f.store.profile("bob").RaidXP)

	tag, ok := f.store.tags[d.ID]
	require.True(t, ok)
	assert.Equal(t, a.ID, tag.AttackerID)
	assert.Equal(t, "alice", tag.AttackerLogin)
	assert.Equal(t, testNow.Add(7*24*time.Hour), tag.ExpiresAt)
	assert.True(t, f.store.rewarded[out.Raid.ID])
}

func TestExecuteTieGoesToDefender(t *testing.T) {
	f := newFixture(3)
	f.store.addProfile(model.Profile{Login: "alice", Claimed: true, WeeklyContributions: 5})
	d := f.store.addProfile(model.Profile{Login: "bob", Claimed: true, WeeklyContributions: 5})

	out, err := f.svc.Execute(context.Background(), "alice", ExecuteInput{TargetLogin: "bob"})
	require.NoError(t, err)

	assert.False(t, out.Raid.Success)
	assert.Equal(t, out.Attack.Total, out.Defense.Total)
	assert.Zero(t, out.Raid.XPEarned)
	assert.Equal(t, int64(30), out.Raid.DefenderXP)
	assert.Nil(t, out.Raid.TagStyle)
	_, tagged := f.store.tags[d.ID]
	assert.False(t, tagged)
}

func TestExecuteUsesOwnedTagStyle(t *testing.T) {
	f := newFixture(3)
	a, _ := f.seedPair()
	f.store.addPurchase(a.ID, "tag_neon")
	neon := "neon"
	require.NoError(t, f.store.SaveLoadout(context.Background(), a.ID, nil, &neon))

	out, err := f.svc.Execute(context.Background(), "alice", ExecuteInput{TargetLogin: "bob"})
	require.NoError(t, err)
	require.NotNil(t, out.Raid.TagStyle)
	assert.Equal(t, "neon", *out.Raid.TagStyle)
}

func TestExecuteBoost(t *testing.T) {
	f := newFixture(3)
	a, _ := f.seedPair()
	boostID := f.store.addPurchase(a.ID, "boost_blueprints")
	vehicleID := f.store.addPurchase(a.ID, "helicopter")
	ctx := context.Background()

	t.Run("not owned", func(t *testing.T) {
		missing := int64(9999)
		_, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob", BoostPurchaseID: &missing})
		assert.ErrorIs(t, err, ErrValidation)
		assert.Zero(t, f.store.raidCount())
	})

	t.Run("wrong kind", func(t *testing.T) {
		_, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob", BoostPurchaseID: &vehicleID})
		assert.ErrorIs(t, err, ErrValidation)
		assert.Zero(t, f.store.raidCount())
	})

	t.Run("applied", func(t *testing.T) {
		out, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob", BoostPurchaseID: &boostID})
		require.NoError(t, err)
		assert.Equal(t, 59, out.Attack.Total)
		assert.Equal(t, 20, out.Attack.Breakdown[raid.BreakdownBoost])
		require.NotNil(t, out.Raid.BoostPurchaseID)
		assert.Equal(t, boostID, *out.Raid.BoostPurchaseID)
	})
}

func TestExecuteVehicleFallback(t *testing.T) {
	f := newFixture(3)
	a, _ := f.seedPair()
	f.store.addPurchase(a.ID, "rocket")
	f.store.addProfile(model.Profile{Login: "carol", Claimed: true})
	ctx := context.Background()

	ufo := "ufo"
	out, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob", VehicleID: &ufo})
	require.NoError(t, err)
	assert.Equal(t, catalog.DefaultVehicle, out.Raid.Vehicle)

	rocket := "rocket"
	out, err = f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "carol", VehicleID: &rocket})
	require.NoError(t, err)
	assert.Equal(t, "rocket", out.Raid.Vehicle)
}

func TestExecuteWeeklyCooldown(t *testing.T) {
	f := newFixture(3)
	f.seedPair()
	ctx := context.Background()

	_, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob"})
	require.NoError(t, err)

	_, err = f.svc.Preview(ctx, "alice", "bob")
	require.ErrorIs(t, err, ErrWeeklyCooldownActive)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, true, e.Meta["target_raided_this_week"])
	assert.Equal(t, 1, e.Meta["raids_today"])

	_, err = f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob"})
	assert.ErrorIs(t, err, ErrWeeklyCooldownActive)
	assert.Equal(t, 1, f.store.raidCount())

	// Next Monday the pair may meet again.
	f.clock.Advance(5 * 24 * time.Hour)
	_, err = f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob"})
	assert.NoError(t, err)
}

func TestExecuteDailyLimit(t *testing.T) {
	f := newFixture(2)
	f.store.addProfile(model.Profile{Login: "alice", Claimed: true})
	for _, login := range []string{"t1", "t2", "t3"} {
		f.store.addProfile(model.Profile{Login: login, Claimed: true})
	}
	ctx := context.Background()

	for _, login := range []string{"t1", "t2"} {
		_, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: login})
		require.NoError(t, err)
	}

	_, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "t3"})
	require.ErrorIs(t, err, ErrDailyLimitExceeded)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 2, e.Meta["raids_today"])
	assert.Equal(t, 2, e.Meta["raids_max"])

	// Resets at local midnight.
	f.clock.Advance(12 * time.Hour)
	_, err = f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "t3"})
	assert.NoError(t, err)
}

func TestExecuteConcurrentDailyCap(t *testing.T) {
	const maxPerDay = 3
	const callers = 12

	f := newFixture(maxPerDay)
	f.store.addProfile(model.Profile{Login: "alice", Claimed: true, WeeklyContributions: 10})
	targets := make([]string, callers)
	for i := range targets {
		targets[i] = "target-" + string(rune('a'+i))
		f.store.addProfile(model.Profile{Login: targets[i], Claimed: true})
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, limited := 0, 0
	for _, target := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			_, err := f.svc.Execute(context.Background(), "alice", ExecuteInput{TargetLogin: target})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrDailyLimitExceeded):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(target)
	}
	wg.Wait()

	assert.Equal(t, maxPerDay, ok)
	assert.Equal(t, callers-maxPerDay, limited)
	assert.Equal(t, maxPerDay, f.store.raidCount())
}

func TestExecuteRewardFailureKeepsRaid(t *testing.T) {
	f := newFixture(3)
	f.seedPair()
	ctx := context.Background()

	f.store.failGrant = errors.New("connection reset")
	out, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob"})
	require.NoError(t, err)
	assert.True(t, out.RewardsPending)
	assert.Equal(t, int64(50), out.NewRaidXP)
	assert.Empty(t, out.NewAchievements)
	assert.Equal(t, 1, f.store.raidCount())
	assert.Zero(t, f.store.profile("alice").RaidXP)

	f.store.mu.Lock()
	f.store.failGrant = nil
	f.store.mu.Unlock()

	rewards := NewRewards(f.store, f.store, 7*24*time.Hour)

	n, err := rewards.Reconcile(ctx, f.store, testNow.Add(time.Minute), 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, n, "raids inside the grace period are left alone")

	n, err = rewards.Reconcile(ctx, f.store, testNow.Add(10*time.Minute), 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(50), f.store.profile("alice").RaidXP)

	n, err = rewards.Reconcile(ctx, f.store, testNow.Add(20*time.Minute), 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGrantIsIdempotent(t *testing.T) {
	f := newFixture(3)
	f.seedPair()
	ctx := context.Background()

	out, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob"})
	require.NoError(t, err)

	rewards := NewRewards(f.store, f.store, 7*24*time.Hour)
	res, err := rewards.Grant(ctx, out.Raid)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.AttackerXP)
	assert.Empty(t, res.NewAchievements)
	assert.Equal(t, int64(30), f.store.profile("bob").RaidXP)
}

func TestExecuteAwardsAchievementOnce(t *testing.T) {
	f := newFixture(5)
	f.store.addProfile(model.Profile{Login: "alice", Claimed: true, WeeklyContributions: 10})
	for _, login := range []string{"t1", "t2", "t3"} {
		f.store.addProfile(model.Profile{Login: login, Claimed: true})
	}
	ctx := context.Background()

	out, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "t1"})
	require.NoError(t, err)
	assert.Empty(t, out.NewAchievements)

	out, err = f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "t2"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), out.NewRaidXP)
	assert.Equal(t, []string{"pickpocket"}, out.NewAchievements)
	assert.Equal(t, raid.TitleName(100), out.NewTitle)

	out, err = f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "t3"})
	require.NoError(t, err)
	assert.Empty(t, out.NewAchievements)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(3)
	f.seedPair()
	f.svc.limiter = ratelimit.NewMemory(2, time.Minute, f.clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Preview(ctx, "alice", "bob")
		require.NoError(t, err)
	}
	_, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Zero(t, f.store.raidCount())

	f.clock.Advance(time.Minute + time.Second)
	_, err = f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob"})
	assert.NoError(t, err)
}

func TestRateLimitPrecedesTargetChecks(t *testing.T) {
	f := newFixture(3)
	f.seedPair()
	f.svc.limiter = ratelimit.NewMemory(1, time.Minute, f.clock)
	ctx := context.Background()

	_, err := f.svc.Preview(ctx, "alice", "alice")
	assert.ErrorIs(t, err, ErrSelfTargetForbidden)

	// Once throttled, the caller learns nothing about the target.
	_, err = f.svc.Preview(ctx, "alice", "alice")
	assert.ErrorIs(t, err, ErrRateLimited)
	_, err = f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "nobody"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRateLimiterFailureAllowsRequest(t *testing.T) {
	f := newFixture(3)
	f.seedPair()
	f.svc.limiter = errLimiter{}

	_, err := f.svc.Preview(context.Background(), "alice", "bob")
	assert.NoError(t, err)
}

func TestStorageFailureIsRetryable(t *testing.T) {
	f := newFixture(3)
	f.seedPair()
	f.store.failCount = errors.New("connection refused")

	_, err := f.svc.Preview(context.Background(), "alice", "bob")
	require.ErrorIs(t, err, ErrStorageFailure)
	assert.True(t, CodeOf(err).Retryable())
	assert.NotContains(t, ErrStorageFailure.Message, "connection refused")
}

// TestExecuteOutcomeProperty checks that the recorded outcome and XP always
// follow the scores.
func TestExecuteOutcomeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(3)
		f.store.addProfile(model.Profile{
			Login:               "alice",
			Claimed:             true,
			WeeklyContributions: rapid.IntRange(0, 50).Draw(t, "aContrib"),
			AppStreak:           rapid.IntRange(0, 30).Draw(t, "aStreak"),
			WeeklyKudosGiven:    rapid.IntRange(0, 20).Draw(t, "aKudos"),
		})
		f.store.addProfile(model.Profile{
			Login:               "bob",
			Claimed:             true,
			WeeklyContributions: rapid.IntRange(0, 50).Draw(t, "dContrib"),
			AppStreak:           rapid.IntRange(0, 30).Draw(t, "dStreak"),
			WeeklyKudosReceived: rapid.IntRange(0, 20).Draw(t, "dKudos"),
		})

		out, err := f.svc.Execute(context.Background(), "alice", ExecuteInput{TargetLogin: "bob"})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if out.Raid.Success != (out.Attack.Total > out.Defense.Total) {
			t.Fatalf("success=%v attack=%d defense=%d", out.Raid.Success, out.Attack.Total, out.Defense.Total)
		}
		if out.Raid.Success && out.Raid.XPEarned != 50 {
			t.Fatalf("winning attacker earned %d", out.Raid.XPEarned)
		}
		if !out.Raid.Success && (out.Raid.XPEarned != 0 || out.Raid.TagStyle != nil) {
			t.Fatalf("losing raid earned %d xp, tag=%v", out.Raid.XPEarned, out.Raid.TagStyle)
		}
	})
}

func TestSaveLoadout(t *testing.T) {
	f := newFixture(3)
	a, _ := f.seedPair()
	f.store.addPurchase(a.ID, "rocket")
	f.store.addPurchase(a.ID, "tag_gold")
	ctx := context.Background()

	ufo, gold, rocket := "ufo", "gold", "rocket"
	_, err := f.svc.SaveLoadout(ctx, "alice", LoadoutInput{VehicleID: &ufo})
	require.ErrorIs(t, err, ErrValidation)
	var e *Error
	require.True(t, errors.As(err, &e))
	require.Len(t, e.Fields, 1)
	assert.Equal(t, "vehicle_id", e.Fields[0].Field)

	lo, err := f.svc.SaveLoadout(ctx, "alice", LoadoutInput{VehicleID: &rocket, TagStyle: &gold})
	require.NoError(t, err)
	assert.Equal(t, "rocket", lo.Vehicle)
	assert.Equal(t, "gold", lo.TagStyle)
	assert.Equal(t, []string{catalog.DefaultTagStyle, "gold"}, lo.TagStyles)

	saved := f.store.profile("alice")
	require.NotNil(t, saved.RaidVehicle)
	assert.Equal(t, "rocket", *saved.RaidVehicle)

	_, err = f.svc.SaveLoadout(ctx, "", LoadoutInput{})
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
}

func TestHistory(t *testing.T) {
	f := newFixture(3)
	f.seedPair()
	f.store.addProfile(model.Profile{Login: "carol", Claimed: true, WeeklyContributions: 20})
	ctx := context.Background()

	_, err := f.svc.Execute(ctx, "alice", ExecuteInput{TargetLogin: "bob"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Execute(ctx, "carol", ExecuteInput{TargetLogin: "alice"})
	require.NoError(t, err)

	entries, err := f.svc.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Attacked)
	assert.Equal(t, "carol", entries[0].Raid.AttackerLogin)
	assert.True(t, entries[1].Attacked)

	entries, err = f.svc.History(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
