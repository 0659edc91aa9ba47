package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"city-raid/internal/catalog"
	"city-raid/internal/game/raid"
	"city-raid/internal/model"
	"city-raid/internal/pkg/lock"
	"city-raid/internal/pkg/metrics"
	"city-raid/internal/pkg/ratelimit"
	"city-raid/internal/repository"
)

// Operation names used for rate-limit keys and metrics.
const (
	OpPreview = "preview"
	OpExecute = "execute"
)

const rewardTimeout = 10 * time.Second

// Settings holds the raid rules.
type Settings struct {
	MaxPerDay   int
	TagDuration time.Duration
	XP          raid.XPTable
	Location    *time.Location // Defines local midnight and the ISO week
	LockTimeout time.Duration
}

// Deps holds the collaborators of RaidService.
type Deps struct {
	Profiles  ProfileStore
	Purchases PurchaseStore
	Raids     RaidStore
	Rewards   *Rewards
	Limiter   ratelimit.Limiter
	Lock      *lock.KeyedLock
	Clock     clockwork.Clock
}

// RaidService runs the eligibility gate, raid execution, loadouts and history.
type RaidService struct {
	profiles  ProfileStore
	purchases PurchaseStore
	raids     RaidStore
	rewards   *Rewards
	limiter   ratelimit.Limiter
	lock      *lock.KeyedLock
	clock     clockwork.Clock
	cfg       Settings
}

// NewRaidService creates a new RaidService instance.
func NewRaidService(d Deps, cfg Settings) *RaidService {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Lock == nil {
		d.Lock = lock.NewKeyedLock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	return &RaidService{
		profiles:  d.Profiles,
		purchases: d.Purchases,
		raids:     d.Raids,
		rewards:   d.Rewards,
		limiter:   d.Limiter,
		lock:      d.Lock,
		clock:     d.Clock,
		cfg:       cfg,
	}
}

// Preview is the read-only raid preview.
type Preview struct {
	RaidsToday             int
	RaidsMax               int
	TargetRaidedThisWeek   bool
	Attacker               *model.Profile
	Defender               *model.Profile
	Attack                 raid.Score
	Defense                raid.Score
	AttackEstimate         raid.Strength
	DefenseEstimate        raid.Strength
	DefenderBuildingHeight float64
	Boosts                 []model.Purchase
	Vehicles               []string // Always starts with the default vehicle
	Vehicle                string   // Saved preference, reset to default if no longer owned
}

// ExecuteInput is a validated execute request.
type ExecuteInput struct {
	TargetLogin     string
	BoostPurchaseID *int64
	VehicleID       *string
}

// Outcome is the result of an executed raid.
type Outcome struct {
	Raid            *model.Raid
	Attacker        *model.Profile
	Defender        *model.Profile
	Attack          raid.Score
	Defense         raid.Score
	NewRaidXP       int64
	NewTitle        string
	NewAchievements []string
	// RewardsPending is set when the raid committed but granting rewards
	// failed. The reconciler will apply them later.
	RewardsPending bool
}

// gateResult is what a passed gate knows.
type gateResult struct {
	attacker   *model.Profile
	defender   *model.Profile
	raidsToday int
	now        time.Time
	dayStart   time.Time
	weekStart  time.Time
}

// Preview runs every gate check and computes what a raid would look like.
// It performs no writes apart from counting against the caller's rate limit.
func (s *RaidService) Preview(ctx context.Context, caller, target string) (*Preview, error) {
	g, err := s.gate(ctx, OpPreview, caller, target)
	if err != nil {
		return nil, err
	}

	boosts, err := s.purchases.ListOwned(ctx, g.attacker.ID, catalog.KindRaidBoost)
	if err != nil {
		return nil, s.reject(OpPreview, storageError("list boosts", err))
	}
	vehicles, err := s.ownedVehicles(ctx, g.attacker.ID)
	if err != nil {
		return nil, s.reject(OpPreview, storageError("list vehicles", err))
	}

	attack := raid.AttackScore(attackInput(g.attacker, 0))
	defense := raid.DefenseScore(defenseInput(g.defender))

	return &Preview{
		RaidsToday:             g.raidsToday,
		RaidsMax:               s.cfg.MaxPerDay,
		TargetRaidedThisWeek:   false,
		Attacker:               g.attacker,
		Defender:               g.defender,
		Attack:                 attack,
		Defense:                defense,
		AttackEstimate:         raid.StrengthEstimate(attack.Total),
		DefenseEstimate:        raid.StrengthEstimate(defense.Total),
		DefenderBuildingHeight: raid.BuildingHeight(g.defender.Contributions),
		Boosts:                 boosts,
		Vehicles:               vehicles,
		Vehicle:                pickOwned(g.attacker.RaidVehicle, vehicles, catalog.DefaultVehicle),
	}, nil
}

// Execute re-runs the gate, resolves the raid, commits the record and grants
// rewards. Once the record is committed the raid stands: a reward failure is
// logged and reported through Outcome.RewardsPending, never returned.
func (s *RaidService) Execute(ctx context.Context, caller string, in ExecuteInput) (*Outcome, error) {
	g, err := s.gate(ctx, OpExecute, caller, in.TargetLogin)
	if err != nil {
		return nil, err
	}

	bonus := 0
	var boostID *int64
	if in.BoostPurchaseID != nil {
		boost, err := s.purchases.GetOwned(ctx, g.attacker.ID, *in.BoostPurchaseID)
		switch {
		case errors.Is(err, repository.ErrPurchaseNotFound):
			return nil, s.reject(OpExecute, ValidationError(FieldError{Field: "boost_purchase_id", Message: "boost not owned"}))
		case err != nil:
			return nil, s.reject(OpExecute, storageError("get boost", err))
		case boost.Kind != string(catalog.KindRaidBoost):
			return nil, s.reject(OpExecute, ValidationError(FieldError{Field: "boost_purchase_id", Message: "item is not a raid boost"}))
		}
		bonus = boost.Bonus
		boostID = &boost.ID
	}

	vehicles, err := s.ownedVehicles(ctx, g.attacker.ID)
	if err != nil {
		return nil, s.reject(OpExecute, storageError("list vehicles", err))
	}
	wanted := g.attacker.RaidVehicle
	if in.VehicleID != nil {
		wanted = in.VehicleID
	}
	vehicle := pickOwned(wanted, vehicles, catalog.DefaultVehicle)

	attack := raid.AttackScore(attackInput(g.attacker, bonus))
	defense := raid.DefenseScore(defenseInput(g.defender))
	success := raid.Succeeded(attack.Total, defense.Total)
	attackerXP, defenderXP := s.cfg.XP.Award(success)

	var tagStyle *string
	if success {
		style, err := s.tagStyle(ctx, g.attacker)
		if err != nil {
			return nil, s.reject(OpExecute, storageError("list tag styles", err))
		}
		tagStyle = &style
	}

	rec := &model.Raid{
		ID:               uuid.New(),
		AttackerID:       g.attacker.ID,
		DefenderID:       g.defender.ID,
		AttackScore:      attack.Total,
		DefenseScore:     defense.Total,
		AttackBreakdown:  attack.Breakdown,
		DefenseBreakdown: defense.Breakdown,
		Success:          success,
		XPEarned:         attackerXP,
		DefenderXP:       defenderXP,
		Vehicle:          vehicle,
		TagStyle:         tagStyle,
		BoostPurchaseID:  boostID,
		WeekStart:        g.weekStart,
		CreatedAt:        g.now,
		AttackerLogin:    g.attacker.Login,
		DefenderLogin:    g.defender.Login,
	}

	guard := repository.Guard{DayStart: g.dayStart, WeekStart: g.weekStart, MaxPerDay: s.cfg.MaxPerDay}
	err = s.lock.WithLockContext(ctx, g.attacker.ID, s.cfg.LockTimeout, func() error {
		return s.raids.InsertGuarded(ctx, rec, guard)
	})
	if err != nil {
		return nil, s.reject(OpExecute, s.insertError(err, g))
	}
	metrics.RecordRaid(success)

	log.Info().
		Str("raid_id", rec.ID.String()).
		Str("attacker", g.attacker.Login).
		Str("defender", g.defender.Login).
		Int("attack", attack.Total).
		Int("defense", defense.Total).
		Bool("success", success).
		Msg("Raid committed")

	out := &Outcome{
		Raid:     rec,
		Attacker: g.attacker,
		Defender: g.defender,
		Attack:   attack,
		Defense:  defense,
	}

	// The request may be cancelled after the commit; rewards still run.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rewardTimeout)
	defer cancel()
	res, err := s.rewards.Grant(rctx, rec)
	if err != nil {
		metrics.RecordRewardFailure()
		log.Warn().Err(err).Str("raid_id", rec.ID.String()).Msg("Raid rewards failed, left for reconciliation")
		out.RewardsPending = true
		out.NewRaidXP = g.attacker.RaidXP + attackerXP
	} else {
		out.NewRaidXP = res.AttackerXP
		out.NewAchievements = res.NewAchievements
	}
	out.NewTitle = raid.TitleName(out.NewRaidXP)

	return out, nil
}

// insertError maps InsertGuarded failures to coded errors.
func (s *RaidService) insertError(err error, g *gateResult) error {
	switch {
	case errors.Is(err, repository.ErrDailyCapReached):
		return withMeta(ErrDailyLimitExceeded, s.limitMeta(s.cfg.MaxPerDay, false))
	case errors.Is(err, repository.ErrPairCooldown):
		return withMeta(ErrWeeklyCooldownActive, s.limitMeta(g.raidsToday, true))
	case errors.Is(err, repository.ErrSelfRaid):
		return ErrSelfTargetForbidden
	case errors.Is(err, lock.ErrLockTimeout):
		return storageError("wait for attacker lock", err)
	default:
		return storageError("insert raid", err)
	}
}

// gate runs the shared precondition checks in order: identity, rate limit,
// claimed attacker, target, self target, daily cap, weekly pair cooldown.
func (s *RaidService) gate(ctx context.Context, op, caller, target string) (*gateResult, error) {
	caller = normalizeLogin(caller)
	if caller == "" {
		return nil, s.reject(op, ErrAuthenticationRequired)
	}

	if err := s.checkRate(ctx, caller); err != nil {
		return nil, s.reject(op, err)
	}

	attacker, err := s.profiles.GetByLogin(ctx, caller)
	switch {
	case errors.Is(err, repository.ErrProfileNotFound):
		return nil, s.reject(op, ErrProfileNotClaimed)
	case err != nil:
		return nil, s.reject(op, storageError("get attacker", err))
	case !attacker.Claimed:
		return nil, s.reject(op, ErrProfileNotClaimed)
	}

	defender, err := s.profiles.GetByLogin(ctx, normalizeLogin(target))
	switch {
	case errors.Is(err, repository.ErrProfileNotFound):
		return nil, s.reject(op, ErrTargetNotFound)
	case err != nil:
		return nil, s.reject(op, storageError("get defender", err))
	}

	if attacker.ID == defender.ID {
		return nil, s.reject(op, ErrSelfTargetForbidden)
	}

	now := s.clock.Now()
	g := &gateResult{
		attacker:  attacker,
		defender:  defender,
		now:       now,
		dayStart:  raid.DayStart(now, s.cfg.Location),
		weekStart: raid.WeekStart(now, s.cfg.Location),
	}

	g.raidsToday, err = s.raids.CountSince(ctx, attacker.ID, g.dayStart)
	if err != nil {
		return nil, s.reject(op, storageError("count raids", err))
	}
	if g.raidsToday >= s.cfg.MaxPerDay {
		return nil, s.reject(op, withMeta(ErrDailyLimitExceeded, s.limitMeta(g.raidsToday, false)))
	}

	pair, err := s.raids.CountPairSince(ctx, attacker.ID, defender.ID, g.weekStart)
	if err != nil {
		return nil, s.reject(op, storageError("count pair raids", err))
	}
	if pair > 0 {
		return nil, s.reject(op, withMeta(ErrWeeklyCooldownActive, s.limitMeta(g.raidsToday, true)))
	}

	return g, nil
}

// checkRate applies the per-caller sliding window. Preview and execute share
// one budget. A limiter backend failure lets the request through.
func (s *RaidService) checkRate(ctx context.Context, caller string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "raid:"+slug.Make(caller))
	if err != nil {
		log.Warn().Err(err).Str("caller", caller).Msg("Rate limiter unavailable, allowing request")
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

func (s *RaidService) limitMeta(today int, raidedThisWeek bool) map[string]any {
	return map[string]any{
		"raids_today":             today,
		"raids_max":               s.cfg.MaxPerDay,
		"target_raided_this_week": raidedThisWeek,
	}
}

// reject records a rejection and passes err through.
func (s *RaidService) reject(op string, err error) error {
	code := CodeOf(err)
	metrics.RecordRejection(op, string(code))
	ev := log.Debug()
	if code == CodeStorageFailure {
		ev = log.Error()
	}
	ev.Err(err).Str("operation", op).Str("code", string(code)).Msg("Raid request rejected")
	return err
}

// ownedVehicles returns the default vehicle followed by every owned vehicle.
func (s *RaidService) ownedVehicles(ctx context.Context, profileID int64) ([]string, error) {
	owned, err := s.purchases.ListOwned(ctx, profileID, catalog.KindRaidVehicle)
	if err != nil {
		return nil, err
	}
	vehicles := []string{catalog.DefaultVehicle}
	for _, p := range owned {
		if !contains(vehicles, p.ItemID) {
			vehicles = append(vehicles, p.ItemID)
		}
	}
	return vehicles, nil
}

// ownedTagStyles returns the default style followed by every owned style.
func (s *RaidService) ownedTagStyles(ctx context.Context, profileID int64) ([]string, error) {
	owned, err := s.purchases.ListOwned(ctx, profileID, catalog.KindRaidTag)
	if err != nil {
		return nil, err
	}
	styles := []string{catalog.DefaultTagStyle}
	for _, p := range owned {
		if p.TagStyle != nil && !contains(styles, *p.TagStyle) {
			styles = append(styles, *p.TagStyle)
		}
	}
	return styles, nil
}

// tagStyle returns the attacker's saved tag style if still owned, else the default.
func (s *RaidService) tagStyle(ctx context.Context, attacker *model.Profile) (string, error) {
	if attacker.RaidTagStyle == nil {
		return catalog.DefaultTagStyle, nil
	}
	styles, err := s.ownedTagStyles(ctx, attacker.ID)
	if err != nil {
		return "", err
	}
	return pickOwned(attacker.RaidTagStyle, styles, catalog.DefaultTagStyle), nil
}

func attackInput(p *model.Profile, bonus int) raid.AttackInput {
	return raid.AttackInput{
		WeeklyContributions: p.WeeklyContributions,
		AppStreak:           p.AppStreak,
		WeeklyKudosGiven:    p.WeeklyKudosGiven,
		BoostBonus:          bonus,
	}
}

func defenseInput(p *model.Profile) raid.DefenseInput {
	return raid.DefenseInput{
		WeeklyContributions: p.WeeklyContributions,
		AppStreak:           p.AppStreak,
		WeeklyKudosReceived: p.WeeklyKudosReceived,
	}
}

// pickOwned returns *want if it is in owned, else fallback.
func pickOwned(want *string, owned []string, fallback string) string {
	if want != nil && contains(owned, *want) {
		return *want
	}
	return fallback
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func normalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}
