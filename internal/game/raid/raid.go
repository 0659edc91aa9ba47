// Package raid implements the raid scoring rules.
// Everything here is pure: scores, strength buckets, titles and the outcome
// rule are computed from plain inputs with no I/O.
package raid

// Score weights.
const (
	ContributionWeight  = 3 // Weekly contributions, both sides
	StreakWeight        = 1 // App streak days, both sides
	KudosGivenWeight    = 2 // Kudos given, attack only
	KudosReceivedWeight = 1 // Kudos received, defense only
)

// Strength estimate thresholds (inclusive upper bounds).
const (
	WeakThreshold   = 15
	MediumThreshold = 40
)

// Breakdown keys shown by the UI.
const (
	BreakdownCommits = "commits"
	BreakdownStreak  = "streak"
	BreakdownKudos   = "kudos"
	BreakdownBoost   = "boost"
)

// Strength is a coarse display bucket for a score.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

// Breakdown maps a score component to its weighted contribution.
type Breakdown map[string]int

// Score is a total plus the components that produced it.
type Score struct {
	Total     int
	Breakdown Breakdown
}

// AttackInput holds the attacker's activity for the current week.
type AttackInput struct {
	WeeklyContributions int
	AppStreak           int
	WeeklyKudosGiven    int
	BoostBonus          int // Zero when no boost is used
}

// DefenseInput holds the defender's activity for the current week.
type DefenseInput struct {
	WeeklyContributions int
	AppStreak           int
	WeeklyKudosReceived int
}

// AttackScore computes the attacker's score.
// total = contributions*3 + streak + kudosGiven*2 + boost
func AttackScore(in AttackInput) Score {
	b := Breakdown{
		BreakdownCommits: in.WeeklyContributions * ContributionWeight,
		BreakdownStreak:  in.AppStreak * StreakWeight,
		BreakdownKudos:   in.WeeklyKudosGiven * KudosGivenWeight,
		BreakdownBoost:   in.BoostBonus,
	}
	return Score{Total: b.sum(), Breakdown: b}
}

// DefenseScore computes the defender's score. Defense has no boost path.
// total = contributions*3 + streak + kudosReceived
func DefenseScore(in DefenseInput) Score {
	b := Breakdown{
		BreakdownCommits: in.WeeklyContributions * ContributionWeight,
		BreakdownStreak:  in.AppStreak * StreakWeight,
		BreakdownKudos:   in.WeeklyKudosReceived * KudosReceivedWeight,
	}
	return Score{Total: b.sum(), Breakdown: b}
}

func (b Breakdown) sum() int {
	total := 0
	for _, v := range b {
		total += v
	}
	return total
}

// StrengthEstimate buckets a score: <=15 weak, <=40 medium, else strong.
func StrengthEstimate(score int) Strength {
	switch {
	case score <= WeakThreshold:
		return StrengthWeak
	case score <= MediumThreshold:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}

// Succeeded reports whether an attack beats a defense.
// Ties go to the defender.
func Succeeded(attack, defense int) bool {
	return attack > defense
}
