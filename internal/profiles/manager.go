package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"lifxctl/internal/lights"
	"lifxctl/internal/store"
)

var (
	ErrEmptyName   = errors.New("profile name is required")
	ErrNoLights    = errors.New("no lights to capture")
	ErrApplyFailed = errors.New("profile could not be applied to any light")
)

// Controller is the part of the coordinator profiles need.
type Controller interface {
	ControlLight(ctx context.Context, id string, change lights.PartialControl) error
	ControlAll(ctx context.Context, ids []string, change lights.PartialControl) []lights.ControlResult
}

const maxConcurrentApply = 8

type Manager struct {
	mu     sync.Mutex
	store  *store.Store
	lights Controller
	now    func() time.Time
}

func NewManager(s *store.Store, c Controller) *Manager {
	return &Manager{
		store:  s,
		lights: c,
		now:    time.Now,
	}
}

func (m *Manager) List() ([]*store.Profile, error) {
	return m.store.ListProfiles()
}

func (m *Manager) Get(id string) (*store.Profile, error) {
	return m.store.GetProfile(id)
}

// Capture snapshots current into a profile named name. Capturing under an
// existing name replaces that profile's lights and keeps its ID.
func (m *Manager) Capture(name, description string, tags []string, current []lights.Light) (*store.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if len(current) == 0 {
		return nil, ErrNoLights
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	p := &store.Profile{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
	}
	if existing, err := m.byName(name); err == nil {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	p.Description = description
	p.Tags = normalizeTags(tags)
	p.UpdatedAt = now
	p.Lights = make([]store.ProfileLight, 0, len(current))
	for _, l := range current {
		p.Lights = append(p.Lights, store.ProfileLight{
			LightID:    l.ID,
			Label:      l.Label,
			Power:      l.Power,
			Brightness: l.Brightness,
			Hue:        l.Hue,
			Saturation: l.Saturation,
			Kelvin:     l.Kelvin,
		})
	}

	if err := m.store.SaveProfile(p); err != nil {
		return nil, err
	}
	log.Info().Str("component", "profiles").Str("profile", p.Name).Int("lights", len(p.Lights)).Msg("Profile saved")
	return p, nil
}

// Apply restores every captured light concurrently. It returns an error
// only when no light could be restored.
func (m *Manager) Apply(ctx context.Context, p *store.Profile, duration *time.Duration) ([]lights.ControlResult, error) {
	results := make([]lights.ControlResult, len(p.Lights))
	var g errgroup.Group
	g.SetLimit(maxConcurrentApply)
	for i, pl := range p.Lights {
		g.Go(func() error {
			change := pl.Control()
			change.Duration = duration
			results[i] = lights.ControlResult{LightID: pl.LightID, Err: m.lights.ControlLight(ctx, pl.LightID, change)}
			return nil
		})
	}
	_ = g.Wait()

	if err := summarize(results); err != nil {
		return results, fmt.Errorf("%s: %w", p.Name, err)
	}
	log.Info().Str("component", "profiles").Str("profile", p.Name).Msg("Profile applied")
	return results, nil
}

// ApplyPreset sends the preset's state to every id.
func (m *Manager) ApplyPreset(ctx context.Context, preset Preset, ids []string, duration *time.Duration) ([]lights.ControlResult, error) {
	change := preset.ToControl()
	change.Duration = duration
	results := m.lights.ControlAll(ctx, ids, change)
	if err := summarize(results); err != nil {
		return results, fmt.Errorf("%s: %w", preset.Name, err)
	}
	log.Info().Str("component", "profiles").Str("preset", preset.ID).Int("lights", len(ids)).Msg("Preset applied")
	return results, nil
}

// SavePreset stores the preset as a regular profile for the given lights.
func (m *Manager) SavePreset(preset Preset, current []lights.Light) (*store.Profile, error) {
	if len(current) == 0 {
		return nil, ErrNoLights
	}
	p := preset.ToProfile(current, m.now().UTC())
	if err := m.store.SaveProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Find resolves query against profile ids, names, tags and finally a loose
// name match, in that order.
func (m *Manager) Find(query string) (*store.Profile, error) {
	all, err := m.store.ListProfiles()
	if err != nil {
		return nil, err
	}
	if p := Match(all, query); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%q: %w", query, store.ErrNotFound)
}

func (m *Manager) Delete(id string) error {
	if err := m.store.DeleteProfile(id); err != nil {
		return err
	}
	log.Info().Str("component", "profiles").Str("id", id).Msg("Profile deleted")
	return nil
}

func (m *Manager) byName(name string) (*store.Profile, error) {
	all, err := m.store.ListProfiles()
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func summarize(results []lights.ControlResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			log.Warn().Err(r.Err).Str("component", "profiles").Str("light", r.LightID).Msg("Light not restored")
			errs = append(errs, r.Err)
		}
	}
	if len(results) > 0 && len(errs) == len(results) {
		return fmt.Errorf("%w: %w", ErrApplyFailed, errors.Join(errs...))
	}
	return nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
