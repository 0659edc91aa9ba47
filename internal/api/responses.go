package api

import (
	"time"

	"city-raid/internal/catalog"
	"city-raid/internal/game/raid"
	"city-raid/internal/model"
	"city-raid/internal/service"
)

// Boost is an owned boost offered in the preview.
type Boost struct {
	PurchaseID int64  `json:"purchase_id"`
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	Bonus      int    `json:"bonus"`
}

// Vehicle is a selectable vehicle.
type Vehicle struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PreviewResponse is the 200 body of POST /raid/preview.
type PreviewResponse struct {
	CanRaid                bool           `json:"can_raid"`
	RaidsToday             int            `json:"raids_today"`
	RaidsMax               int            `json:"raids_max"`
	TargetRaidedThisWeek   bool           `json:"target_raided_this_week"`
	AttackEstimate         raid.Strength  `json:"attack_estimate"`
	DefenseEstimate        raid.Strength  `json:"defense_estimate"`
	AttackScore            int            `json:"attack_score"`
	DefenseScore           int            `json:"defense_score"`
	AttackBreakdown        map[string]int `json:"attack_breakdown"`
	DefenseBreakdown       map[string]int `json:"defense_breakdown"`
	AttackerSlug           string         `json:"attacker_slug"`
	AttackerAvatar         string         `json:"attacker_avatar"`
	DefenderSlug           string         `json:"defender_slug"`
	DefenderAvatar         string         `json:"defender_avatar"`
	DefenderBuildingHeight float64        `json:"defender_building_height"`
	AvailableBoosts        []Boost        `json:"available_boosts"`
	AvailableVehicles      []Vehicle      `json:"available_vehicles"`
	Vehicle                string         `json:"vehicle"`
}

// Participant is one side of an executed raid. Position is left to the
// client, which owns the city geometry.
type Participant struct {
	Slug     string      `json:"slug"`
	Avatar   string      `json:"avatar"`
	Position *[3]float64 `json:"position"`
	Height   float64     `json:"height"`
}

// ExecuteResponse is the 200 body of POST /raid/execute.
type ExecuteResponse struct {
	RaidID           string         `json:"raid_id"`
	Success          bool           `json:"success"`
	AttackScore      int            `json:"attack_score"`
	DefenseScore     int            `json:"defense_score"`
	AttackBreakdown  map[string]int `json:"attack_breakdown"`
	DefenseBreakdown map[string]int `json:"defense_breakdown"`
	Attacker         Participant    `json:"attacker"`
	Defender         Participant    `json:"defender"`
	XPEarned         int64          `json:"xp_earned"`
	NewRaidXP        int64          `json:"new_raid_xp"`
	NewTitle         *string        `json:"new_title"`
	NewAchievements  []string       `json:"new_achievements"`
	Vehicle          string         `json:"vehicle"`
	TagStyle         *string        `json:"tag_style"`
	RewardsPending   bool           `json:"rewards_pending,omitempty"`
}

// LoadoutResponse is the 200 body of POST /raid/loadout.
type LoadoutResponse struct {
	Vehicle           string    `json:"vehicle"`
	TagStyle          string    `json:"tag_style"`
	AvailableVehicles []Vehicle `json:"available_vehicles"`
	AvailableStyles   []string  `json:"available_tag_styles"`
}

// HistoryItem is one row of GET /raid/history.
type HistoryItem struct {
	RaidID       string    `json:"raid_id"`
	Role         string    `json:"role"` // "attacker" or "defender"
	AttackerSlug string    `json:"attacker_slug"`
	DefenderSlug string    `json:"defender_slug"`
	Success      bool      `json:"success"`
	AttackScore  int       `json:"attack_score"`
	DefenseScore int       `json:"defense_score"`
	XPEarned     int64     `json:"xp_earned"`
	Vehicle      string    `json:"vehicle"`
	TagStyle     *string   `json:"tag_style"`
	CreatedAt    time.Time `json:"created_at"`
}

// HistoryResponse is the 200 body of GET /raid/history.
type HistoryResponse struct {
	Raids []HistoryItem `json:"raids"`
}

// NewPreviewResponse converts a service preview.
func NewPreviewResponse(p *service.Preview) PreviewResponse {
	boosts := make([]Boost, 0, len(p.Boosts))
	for _, b := range p.Boosts {
		boosts = append(boosts, Boost{PurchaseID: b.ID, ItemID: b.ItemID, Name: b.Name, Bonus: b.Bonus})
	}
	return PreviewResponse{
		CanRaid:                true,
		RaidsToday:             p.RaidsToday,
		RaidsMax:               p.RaidsMax,
		TargetRaidedThisWeek:   p.TargetRaidedThisWeek,
		AttackEstimate:         p.AttackEstimate,
		DefenseEstimate:        p.DefenseEstimate,
		AttackScore:            p.Attack.Total,
		DefenseScore:           p.Defense.Total,
		AttackBreakdown:        p.Attack.Breakdown,
		DefenseBreakdown:       p.Defense.Breakdown,
		AttackerSlug:           p.Attacker.Login,
		AttackerAvatar:         p.Attacker.AvatarURL,
		DefenderSlug:           p.Defender.Login,
		DefenderAvatar:         p.Defender.AvatarURL,
		DefenderBuildingHeight: p.DefenderBuildingHeight,
		AvailableBoosts:        boosts,
		AvailableVehicles:      vehicles(p.Vehicles),
		Vehicle:                p.Vehicle,
	}
}

// NewExecuteResponse converts a service outcome.
func NewExecuteResponse(o *service.Outcome) ExecuteResponse {
	var title *string
	if o.NewTitle != "" {
		t := o.NewTitle
		title = &t
	}
	achievements := o.NewAchievements
	if achievements == nil {
		achievements = []string{}
	}
	return ExecuteResponse{
		RaidID:           o.Raid.ID.String(),
		Success:          o.Raid.Success,
		AttackScore:      o.Attack.Total,
		DefenseScore:     o.Defense.Total,
		AttackBreakdown:  o.Attack.Breakdown,
		DefenseBreakdown: o.Defense.Breakdown,
		Attacker:         participant(o.Attacker),
		Defender:         participant(o.Defender),
		XPEarned:         o.Raid.XPEarned,
		NewRaidXP:        o.NewRaidXP,
		NewTitle:         title,
		NewAchievements:  achievements,
		Vehicle:          o.Raid.Vehicle,
		TagStyle:         o.Raid.TagStyle,
		RewardsPending:   o.RewardsPending,
	}
}

// NewLoadoutResponse converts a saved loadout.
func NewLoadoutResponse(l *service.Loadout) LoadoutResponse {
	return LoadoutResponse{
		Vehicle:           l.Vehicle,
		TagStyle:          l.TagStyle,
		AvailableVehicles: vehicles(l.Vehicles),
		AvailableStyles:   l.TagStyles,
	}
}

// NewHistoryResponse converts history entries.
func NewHistoryResponse(entries []service.HistoryEntry) HistoryResponse {
	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		role := "defender"
		if e.Attacked {
			role = "attacker"
		}
		items = append(items, HistoryItem{
			RaidID:       e.Raid.ID.String(),
			Role:         role,
			AttackerSlug: e.Raid.AttackerLogin,
			DefenderSlug: e.Raid.DefenderLogin,
			Success:      e.Raid.Success,
			AttackScore:  e.Raid.AttackScore,
			DefenseScore: e.Raid.DefenseScore,
			XPEarned:     e.Raid.XPEarned,
			Vehicle:      e.Raid.Vehicle,
			TagStyle:     e.Raid.TagStyle,
			CreatedAt:    e.Raid.CreatedAt,
		})
	}
	return HistoryResponse{Raids: items}
}

func participant(p *model.Profile) Participant {
	return Participant{
		Slug:   p.Login,
		Avatar: p.AvatarURL,
		Height: raid.BuildingHeight(p.Contributions),
	}
}

func vehicles(ids []string) []Vehicle {
	out := make([]Vehicle, 0, len(ids))
	for _, id := range ids {
		out = append(out, Vehicle{ID: id, Name: catalog.VehicleName(id)})
	}
	return out
}
