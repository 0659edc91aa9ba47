// Package catalog describes the purchasable raid items.
// Ownership lives in the purchases table; this package only knows what each
// item is and what it does in a raid.
package catalog

// Kind represents the catalog kind of an item.
type Kind string

// Item kinds that matter to raids.
const (
	KindRaidBoost   Kind = "raid_boost"   // Adds a flat attack bonus
	KindRaidVehicle Kind = "raid_vehicle" // Cosmetic vehicle for the flight phase
	KindRaidTag     Kind = "raid_tag"     // Cosmetic tag style left on a defeated building
)

// Defaults every profile has without buying anything.
const (
	DefaultVehicle  = "airplane"
	DefaultTagStyle = "default"
)

// Item holds the configuration for a catalog item.
type Item struct {
	ID       string
	Kind     Kind
	Name     string
	Emoji    string
	Bonus    int    // Attack bonus, boosts only
	TagStyle string // Tag style, tags only
}

// Items contains the raid items known to this service.
// New items only need an entry here; they are synced to catalog_items on start.
var Items = map[string]Item{
	"boost_energy_drink": {
		ID:    "boost_energy_drink",
		Kind:  KindRaidBoost,
		Name:  "Energy Drink",
		Emoji: "🥤",
		Bonus: 5,
	},
	"boost_crowbar": {
		ID:    "boost_crowbar",
		Kind:  KindRaidBoost,
		Name:  "Crowbar",
		Emoji: "🔧",
		Bonus: 10,
	},
	"boost_blueprints": {
		ID:    "boost_blueprints",
		Kind:  KindRaidBoost,
		Name:  "Stolen Blueprints",
		Emoji: "📜",
		Bonus: 20,
	},
	"helicopter": {
		ID:    "helicopter",
		Kind:  KindRaidVehicle,
		Name:  "Helicopter",
		Emoji: "🚁",
	},
	"rocket": {
		ID:    "rocket",
		Kind:  KindRaidVehicle,
		Name:  "Rocket",
		Emoji: "🚀",
	},
	"ufo": {
		ID:    "ufo",
		Kind:  KindRaidVehicle,
		Name:  "UFO",
		Emoji: "🛸",
	},
	"tag_neon": {
		ID:       "tag_neon",
		Kind:     KindRaidTag,
		Name:     "Neon Tag",
		Emoji:    "💡",
		TagStyle: "neon",
	},
	"tag_graffiti": {
		ID:       "tag_graffiti",
		Kind:     KindRaidTag,
		Name:     "Graffiti Tag",
		Emoji:    "🎨",
		TagStyle: "graffiti",
	},
	"tag_gold": {
		ID:       "tag_gold",
		Kind:     KindRaidTag,
		Name:     "Gold Tag",
		Emoji:    "🏆",
		TagStyle: "gold",
	},
}

// displayOrder is the order items are listed in.
var displayOrder = []string{
	"boost_energy_drink",
	"boost_crowbar",
	"boost_blueprints",
	"helicopter",
	"rocket",
	"ufo",
	"tag_neon",
	"tag_graffiti",
	"tag_gold",
}

// AllItems returns every item in display order.
func AllItems() []Item {
	items := make([]Item, 0, len(displayOrder))
	for _, id := range displayOrder {
		if item, ok := Items[id]; ok {
			items = append(items, item)
		}
	}
	return items
}

// GetItem returns the item with the given ID.
func GetItem(id string) (Item, bool) {
	item, ok := Items[id]
	return item, ok
}

// ByKind returns the items of one kind in display order.
func ByKind(kind Kind) []Item {
	var out []Item
	for _, item := range AllItems() {
		if item.Kind == kind {
			out = append(out, item)
		}
	}
	return out
}

// VehicleName returns the display name of a vehicle ID.
func VehicleName(id string) string {
	if id == DefaultVehicle {
		return "Airplane"
	}
	if item, ok := Items[id]; ok && item.Kind == KindRaidVehicle {
		return item.Name
	}
	return id
}
