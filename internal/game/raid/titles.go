package raid

// Title is a named raid XP threshold. Crossing one grants the
// achievement with the same ID.
type Title struct {
	ID    string
	Name  string
	MinXP int64
}

// Titles lists the raid titles in ascending threshold order.
var Titles = []Title{
	{ID: "pickpocket", Name: "Pickpocket", MinXP: 100},
	{ID: "burglar", Name: "Burglar", MinXP: 500},
	{ID: "heist_master", Name: "Heist Master", MinXP: 2000},
	{ID: "kingpin", Name: "Kingpin", MinXP: 10000},
}

// TitleFor returns the highest title met by xp, or nil below the first threshold.
func TitleFor(xp int64) *Title {
	var best *Title
	for i := range Titles {
		if xp < Titles[i].MinXP {
			break
		}
		best = &Titles[i]
	}
	return best
}

// TitleName is TitleFor returning the display name, empty when there is none.
func TitleName(xp int64) string {
	if t := TitleFor(xp); t != nil {
		return t.Name
	}
	return ""
}

// AchievementsUpTo returns the IDs of every title whose threshold xp meets,
// in ascending order.
func AchievementsUpTo(xp int64) []string {
	var ids []string
	for _, t := range Titles {
		if xp < t.MinXP {
			break
		}
		ids = append(ids, t.ID)
	}
	return ids
}

// OrderAchievements sorts achievement IDs by title threshold and drops unknown IDs.
func OrderAchievements(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	out := make([]string, 0, len(ids))
	for _, t := range Titles {
		if seen[t.ID] {
			out = append(out, t.ID)
		}
	}
	return out
}

// XPTable holds the XP awarded per raid.
type XPTable struct {
	WinAttacker  int64
	WinDefender  int64
	LoseDefender int64
}

// DefaultXP is the stock XP table.
var DefaultXP = XPTable{WinAttacker: 50, WinDefender: 30, LoseDefender: 30}

// Award returns the XP earned by each side. The attacker earns only on
// success. The defender always earns participation XP.
func (x XPTable) Award(success bool) (attacker, defender int64) {
	if success {
		return x.WinAttacker, x.WinDefender
	}
	return 0, x.LoseDefender
}
