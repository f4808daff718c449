package lights

import (
	"fmt"
	"strings"
	"time"
)

type Source string

const (
	SourceLAN  Source = "lan"
	SourceHTTP Source = "http"
	SourceNone Source = "none"
)

// priority orders transports for merging and routing; lower wins.
func (s Source) priority() int {
	switch s {
	case SourceLAN:
		return 0
	case SourceHTTP:
		return 1
	default:
		return 2
	}
}

// Canonical ranges used everywhere above the transport boundary.
const (
	MaxBrightness = 100
	MaxHue        = 360
	MaxSaturation = 100
	MinKelvin     = 2500
	MaxKelvin     = 9000

	DefaultKelvin   = 3500
	DefaultDuration = time.Second
)

// Light is the canonical snapshot of one bulb.
type Light struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Power      bool   `json:"power"`
	Brightness int    `json:"brightness"`
	Hue        int    `json:"hue"`
	Saturation int    `json:"saturation"`
	Kelvin     int    `json:"kelvin"`
	Connected  bool   `json:"connected"`
	Reachable  bool   `json:"reachable"`
	Source     Source `json:"source"`
	// Group is only reported by the cloud API.
	Group string `json:"group,omitempty"`
}

func (l Light) Color() HSBK {
	return HSBK{Hue: l.Hue, Saturation: l.Saturation, Brightness: l.Brightness, Kelvin: l.Kelvin}
}

// HSBK is the four color channels in canonical units.
type HSBK struct {
	Hue        int
	Saturation int
	Brightness int
	Kelvin     int
}

// PartialControl is a sparse change request. Nil fields are left unchanged.
type PartialControl struct {
	Power      *bool          `json:"power,omitempty"`
	Brightness *int           `json:"brightness,omitempty"`
	Hue        *int           `json:"hue,omitempty"`
	Saturation *int           `json:"saturation,omitempty"`
	Kelvin     *int           `json:"kelvin,omitempty"`
	Duration   *time.Duration `json:"duration,omitempty"`
}

func Bool(v bool) *bool { return &v }

func Int(v int) *int { return &v }

func Dur(v time.Duration) *time.Duration { return &v }

// FadeDuration returns the requested fade time, DefaultDuration if unset.
func (c PartialControl) FadeDuration() time.Duration {
	if c.Duration == nil || *c.Duration < 0 {
		return DefaultDuration
	}
	return *c.Duration
}

// HasColor reports whether any of the four color channels is requested.
func (c PartialControl) HasColor() bool {
	return c.Hue != nil || c.Saturation != nil || c.Brightness != nil || c.Kelvin != nil
}

func (c PartialControl) IsEmpty() bool {
	return c.Power == nil && !c.HasColor()
}

// Validate rejects values outside the canonical ranges.
func (c PartialControl) Validate() error {
	check := func(name string, v *int, lo, hi int) error {
		if v != nil && (*v < lo || *v > hi) {
			return fmt.Errorf("%w: %s %d outside %d-%d", ErrInvalidControl, name, *v, lo, hi)
		}
		return nil
	}
	if err := check("brightness", c.Brightness, 0, MaxBrightness); err != nil {
		return err
	}
	if err := check("hue", c.Hue, 0, MaxHue); err != nil {
		return err
	}
	if err := check("saturation", c.Saturation, 0, MaxSaturation); err != nil {
		return err
	}
	if err := check("kelvin", c.Kelvin, MinKelvin, MaxKelvin); err != nil {
		return err
	}
	if c.Duration != nil && *c.Duration < 0 {
		return fmt.Errorf("%w: negative duration %s", ErrInvalidControl, *c.Duration)
	}
	return nil
}

func (c PartialControl) String() string {
	var parts []string
	if c.Power != nil {
		parts = append(parts, fmt.Sprintf("power=%t", *c.Power))
	}
	if c.Brightness != nil {
		parts = append(parts, fmt.Sprintf("brightness=%d", *c.Brightness))
	}
	if c.Hue != nil {
		parts = append(parts, fmt.Sprintf("hue=%d", *c.Hue))
	}
	if c.Saturation != nil {
		parts = append(parts, fmt.Sprintf("saturation=%d", *c.Saturation))
	}
	if c.Kelvin != nil {
		parts = append(parts, fmt.Sprintf("kelvin=%d", *c.Kelvin))
	}
	parts = append(parts, fmt.Sprintf("duration=%s", c.FadeDuration()))
	return strings.Join(parts, " ")
}

// CanonicalID normalizes a device identifier so that the LAN target and the
// cloud serial of the same bulb compare equal.
func CanonicalID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.NewReplacer(":", "", "-", "").Replace(id)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
