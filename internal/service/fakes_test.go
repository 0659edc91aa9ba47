package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"city-raid/internal/catalog"
	"city-raid/internal/model"
	"city-raid/internal/repository"
)

// memStore is an in-memory implementation of every store interface.
type memStore struct {
	mu           sync.Mutex
	nextID       int64
	profiles     map[string]*model.Profile
	purchases    []model.Purchase
	raids        []model.Raid
	xpLedger     map[string]bool
	achievements map[int64]map[string]bool
	tags         map[int64]model.RaidTag
	rewarded     map[uuid.UUID]bool

	failGrant error
	failCount error
}

func newMemStore() *memStore {
	return &memStore{
		profiles:     make(map[string]*model.Profile),
		xpLedger:     make(map[string]bool),
		achievements: make(map[int64]map[string]bool),
		tags:         make(map[int64]model.RaidTag),
		rewarded:     make(map[uuid.UUID]bool),
	}
}

func (m *memStore) addProfile(p model.Profile) *model.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.profiles[p.Login] = &p
	return &p
}

func (m *memStore) addPurchase(profileID int64, itemID string) int64 {
	item, _ := catalog.GetItem(itemID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p := model.Purchase{
		ID:        m.nextID,
		ProfileID: profileID,
		ItemID:    itemID,
		Kind:      string(item.Kind),
		Name:      item.Name,
		Bonus:     item.Bonus,
		Status:    model.PurchaseStatusCompleted,
	}
	if item.TagStyle != "" {
		style := item.TagStyle
		p.TagStyle = &style
	}
	m.purchases = append(m.purchases, p)
	return p.ID
}

func (m *memStore) profile(login string) model.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.profiles[login]
}

func (m *memStore) raidCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.raids)
}

func (m *memStore) GetByLogin(_ context.Context, login string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[login]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) SaveLoadout(_ context.Context, id int64, vehicle, tagStyle *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.ID == id {
			p.RaidVehicle, p.RaidTagStyle = vehicle, tagStyle
			return nil
		}
	}
	return repository.ErrProfileNotFound
}

func (m *memStore) ListOwned(_ context.Context, profileID int64, kind catalog.Kind) ([]model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Purchase
	for _, p := range m.purchases {
		if p.ProfileID == profileID && p.Kind == string(kind) && p.Status == model.PurchaseStatusCompleted {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetOwned(_ context.Context, profileID, purchaseID int64) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.purchases {
		if p.ID == purchaseID && p.ProfileID == profileID && p.Status == model.PurchaseStatusCompleted {
			cp := p
			return &cp, nil
		}
	}
	return nil, repository.ErrPurchaseNotFound
}

func (m *memStore) CountSince(_ context.Context, attackerID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCount != nil {
		return 0, m.failCount
	}
	return m.countLocked(attackerID, 0, since), nil
}

func (m *memStore) CountPairSince(_ context.Context, attackerID, defenderID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(attackerID, defenderID, since), nil
}

func (m *memStore) countLocked(attackerID, defenderID int64, since time.Time) int {
	n := 0
	for _, r := range m.raids {
		if r.AttackerID != attackerID || r.CreatedAt.Before(since) {
			continue
		}
		if defenderID != 0 && r.DefenderID != defenderID {
			continue
		}
		n++
	}
	return n
}

func (m *memStore) InsertGuarded(_ context.Context, raid *model.Raid, g repository.Guard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if raid.AttackerID == raid.DefenderID {
		return repository.ErrSelfRaid
	}
	if m.countLocked(raid.AttackerID, 0, g.DayStart) >= g.MaxPerDay {
		return repository.ErrDailyCapReached
	}
	if m.countLocked(raid.AttackerID, raid.DefenderID, g.WeekStart) > 0 {
		return repository.ErrPairCooldown
	}
	m.raids = append(m.raids, *raid)
	return nil
}

func (m *memStore) ListForProfile(_ context.Context, profileID int64, limit int) ([]model.Raid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Raid
	for i := len(m.raids) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.raids[i]
		if r.AttackerID == profileID || r.DefenderID == profileID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListUnrewarded(_ context.Context, olderThan time.Time, limit int) ([]model.Raid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Raid
	for _, r := range m.raids {
		if len(out) == limit {
			break
		}
		if !m.rewarded[r.ID] && r.CreatedAt.Before(olderThan) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) GrantXP(_ context.Context, grants []model.XPGrant) (map[int64]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGrant != nil {
		return nil, m.failGrant
	}
	totals := make(map[int64]int64, len(grants))
	for _, g := range grants {
		p := m.byIDLocked(g.ProfileID)
		key := g.RaidID.String() + "/" + p.Login
		if !m.xpLedger[key] {
			m.xpLedger[key] = true
			p.RaidXP += g.XP
		}
		totals[g.ProfileID] = p.RaidXP
	}
	return totals, nil
}

func (m *memStore) AwardAchievements(_ context.Context, profileID int64, _ uuid.UUID, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	have := m.achievements[profileID]
	if have == nil {
		have = make(map[string]bool)
		m.achievements[profileID] = have
	}
	var added []string
	for _, id := range ids {
		if !have[id] {
			have[id] = true
			added = append(added, id)
		}
	}
	return added, nil
}

func (m *memStore) MarkRewarded(_ context.Context, raidID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewarded[raidID] = true
	return nil
}

func (m *memStore) Upsert(_ context.Context, tag *model.RaidTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.tags[tag.BuildingID]; ok && cur.RaidedAt.After(tag.RaidedAt) {
		return nil
	}
	m.tags[tag.BuildingID] = *tag
	return nil
}

func (m *memStore) byIDLocked(id int64) *model.Profile {
	for _, p := range m.profiles {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// errLimiter always fails.
type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}
