package profiles

import (
	"sort"
	"strings"
	"time"

	"lifxctl/internal/lights"
	"lifxctl/internal/store"
)

type Category string

const (
	CategoryGaming  Category = "Gaming"
	CategoryReading Category = "Reading"
	CategoryFocus   Category = "Focus"
	CategoryMovie   Category = "Movie"
	CategoryChill   Category = "Chill"
)

// Preset is a built-in lighting state applied identically to every light.
type Preset struct {
	ID          string
	Name        string
	Description string
	Category    Category
	Power       bool
	Brightness  int
	// Hue, Saturation and Kelvin are optional; nil leaves the channel as is.
	Hue        *int
	Saturation *int
	Kelvin     *int
}

var builtInPresets = []Preset{
	{
		ID:          "gaming-mode",
		Name:        "Gaming Mode",
		Description: "Blue at 100% brightness for gaming",
		Category:    CategoryGaming,
		Power:       true,
		Brightness:  100,
		Hue:         lights.Int(220),
		Saturation:  lights.Int(100),
	},
	{
		ID:          "reading-mode",
		Name:        "Reading Mode",
		Description: "Neutral white at 80% brightness for comfortable reading",
		Category:    CategoryReading,
		Power:       true,
		Brightness:  80,
		Kelvin:      lights.Int(4000),
	},
	{
		ID:          "focus-mode",
		Name:        "Focus Mode",
		Description: "Bright daylight at 90% brightness for concentration",
		Category:    CategoryFocus,
		Power:       true,
		Brightness:  90,
		Kelvin:      lights.Int(5000),
	},
	{
		ID:          "movie-mode",
		Name:        "Movie Mode",
		Description: "Warm dim at 20% brightness for cinema experience",
		Category:    CategoryMovie,
		Power:       true,
		Brightness:  20,
		Kelvin:      lights.Int(2700),
	},
	{
		ID:          "night-mode",
		Name:        "Night Mode",
		Description: "Warm red at 10% brightness for nighttime",
		Category:    CategoryChill,
		Power:       true,
		Brightness:  10,
		Hue:         lights.Int(0),
		Saturation:  lights.Int(80),
	},
	{
		ID:          "relax-mode",
		Name:        "Relax Mode",
		Description: "Soft warm glow at 40% brightness",
		Category:    CategoryChill,
		Power:       true,
		Brightness:  40,
		Kelvin:      lights.Int(3000),
	},
	{
		ID:          "work-mode",
		Name:        "Work Mode",
		Description: "Bright neutral white at 85% brightness",
		Category:    CategoryFocus,
		Power:       true,
		Brightness:  85,
		Kelvin:      lights.Int(4500),
	},
}

// Presets returns a copy of the built-in presets.
func Presets() []Preset {
	return append([]Preset(nil), builtInPresets...)
}

// PresetByID accepts the full id ("movie-mode") or its short form ("movie").
func PresetByID(id string) (Preset, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range builtInPresets {
		if p.ID == id || strings.TrimSuffix(p.ID, "-mode") == id {
			return p, true
		}
	}
	return Preset{}, false
}

func PresetsByCategory(c Category) []Preset {
	var out []Preset
	for _, p := range builtInPresets {
		if strings.EqualFold(string(p.Category), string(c)) {
			out = append(out, p)
		}
	}
	return out
}

// SearchPresets matches query against name, description and category.
func SearchPresets(query string) []Preset {
	q := strings.ToLower(query)
	var out []Preset
	for _, p := range builtInPresets {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) ||
			strings.Contains(strings.ToLower(string(p.Category)), q) {
			out = append(out, p)
		}
	}
	return out
}

// PresetCategories returns the distinct categories in sorted order.
func PresetCategories() []Category {
	seen := make(map[Category]bool)
	var out []Category
	for _, p := range builtInPresets {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p Preset) ToControl() lights.PartialControl {
	c := lights.PartialControl{
		Power:      lights.Bool(p.Power),
		Brightness: lights.Int(p.Brightness),
	}
	if p.Hue != nil {
		c.Hue = lights.Int(*p.Hue)
	}
	if p.Saturation != nil {
		c.Saturation = lights.Int(*p.Saturation)
	}
	if p.Kelvin != nil {
		c.Kelvin = lights.Int(*p.Kelvin)
	}
	return c
}

// ToProfile builds a profile holding the preset state for each light.
// Channels the preset leaves open are stored as 0, kelvin as 3500.
func (p Preset) ToProfile(current []lights.Light, now time.Time) *store.Profile {
	hue, sat, kelvin := 0, 0, lights.DefaultKelvin
	if p.Hue != nil {
		hue = *p.Hue
	}
	if p.Saturation != nil {
		sat = *p.Saturation
	}
	if p.Kelvin != nil {
		kelvin = *p.Kelvin
	}

	prof := &store.Profile{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Tags:        []string{"preset", strings.ToLower(string(p.Category))},
		CreatedAt:   now,
		UpdatedAt:   now,
		Lights:      make([]store.ProfileLight, 0, len(current)),
	}
	for _, l := range current {
		label := l.Label
		if label == "" {
			label = l.ID
		}
		prof.Lights = append(prof.Lights, store.ProfileLight{
			LightID:    l.ID,
			Label:      label,
			Power:      p.Power,
			Brightness: p.Brightness,
			Hue:        hue,
			Saturation: sat,
			Kelvin:     kelvin,
		})
	}
	return prof
}
