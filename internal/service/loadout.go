package service

import (
	"context"
	"errors"

	"city-raid/internal/model"
	"city-raid/internal/repository"
)

// History limits.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 50
)

// Loadout is a caller's saved vehicle and tag style, plus what they own.
type Loadout struct {
	Vehicle   string
	TagStyle  string
	Vehicles  []string
	TagStyles []string
}

// LoadoutInput is a loadout change. Nil fields are left unchanged.
type LoadoutInput struct {
	VehicleID *string
	TagStyle  *string
}

// SaveLoadout stores the caller's preferred vehicle and tag style. Both must
// be owned or be the defaults.
func (s *RaidService) SaveLoadout(ctx context.Context, caller string, in LoadoutInput) (*Loadout, error) {
	const op = "loadout"

	p, err := s.claimedCaller(ctx, op, caller)
	if err != nil {
		return nil, err
	}

	vehicles, err := s.ownedVehicles(ctx, p.ID)
	if err != nil {
		return nil, s.reject(op, storageError("list vehicles", err))
	}
	styles, err := s.ownedTagStyles(ctx, p.ID)
	if err != nil {
		return nil, s.reject(op, storageError("list tag styles", err))
	}

	var fields []FieldError
	if in.VehicleID != nil && !contains(vehicles, *in.VehicleID) {
		fields = append(fields, FieldError{Field: "vehicle_id", Message: "vehicle not owned"})
	}
	if in.TagStyle != nil && !contains(styles, *in.TagStyle) {
		fields = append(fields, FieldError{Field: "tag_style", Message: "tag style not owned"})
	}
	if len(fields) > 0 {
		return nil, s.reject(op, ValidationError(fields...))
	}

	vehicle, style := p.RaidVehicle, p.RaidTagStyle
	if in.VehicleID != nil {
		vehicle = in.VehicleID
	}
	if in.TagStyle != nil {
		style = in.TagStyle
	}
	if err := s.profiles.SaveLoadout(ctx, p.ID, vehicle, style); err != nil {
		return nil, s.reject(op, storageError("save loadout", err))
	}
	p.RaidVehicle, p.RaidTagStyle = vehicle, style

	return &Loadout{
		Vehicle:   pickOwned(vehicle, vehicles, vehicles[0]),
		TagStyle:  pickOwned(style, styles, styles[0]),
		Vehicles:  vehicles,
		TagStyles: styles,
	}, nil
}

// HistoryEntry is one raid from the caller's point of view.
type HistoryEntry struct {
	Raid     model.Raid
	Attacked bool // The caller was the attacker
}

// History lists the caller's most recent raids as attacker or defender.
// limit is clamped to 1..MaxHistoryLimit, 0 means DefaultHistoryLimit.
func (s *RaidService) History(ctx context.Context, caller string, limit int) ([]HistoryEntry, error) {
	const op = "history"

	p, err := s.claimedCaller(ctx, op, caller)
	if err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	raids, err := s.raids.ListForProfile(ctx, p.ID, limit)
	if err != nil {
		return nil, s.reject(op, storageError("list raids", err))
	}

	entries := make([]HistoryEntry, 0, len(raids))
	for _, r := range raids {
		entries = append(entries, HistoryEntry{Raid: r, Attacked: r.AttackerID == p.ID})
	}
	return entries, nil
}

// claimedCaller resolves the caller to a claimed profile.
func (s *RaidService) claimedCaller(ctx context.Context, op, caller string) (*model.Profile, error) {
	caller = normalizeLogin(caller)
	if caller == "" {
		return nil, s.reject(op, ErrAuthenticationRequired)
	}
	p, err := s.profiles.GetByLogin(ctx, caller)
	switch {
	case errors.Is(err, repository.ErrProfileNotFound):
		return nil, s.reject(op, ErrProfileNotClaimed)
	case err != nil:
		return nil, s.reject(op, storageError("get profile", err))
	case !p.Claimed:
		return nil, s.reject(op, ErrProfileNotClaimed)
	}
	return p, nil
}
