package raid

import "time"

// Building height bounds used by the raid animation.
const (
	HeightPerContribution = 0.15
	MinBuildingHeight     = 20.0
	MaxBuildingHeight     = 300.0
)

// DayStart returns local midnight of the day containing t.
func DayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// WeekStart returns Monday 00:00 of the ISO week containing t.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	day := DayStart(t, loc)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// BuildingHeight estimates a building's height from lifetime contributions.
func BuildingHeight(contributions int64) float64 {
	h := float64(contributions) * HeightPerContribution
	if h < MinBuildingHeight {
		return MinBuildingHeight
	}
	if h > MaxBuildingHeight {
		return MaxBuildingHeight
	}
	return h
}
