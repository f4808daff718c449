package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"lifxctl/internal/command"
	"lifxctl/internal/config"
	"lifxctl/internal/lights"
	"lifxctl/internal/profiles"
	"lifxctl/internal/store"
)

// App owns the coordinator and profile storage for one invocation.
type App struct {
	cfg      *config.Config
	lights   *lights.Coordinator
	store    *store.Store
	profiles *profiles.Manager
	started  bool
}

func NewApp(cfg *config.Config) (*App, error) {
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile store: %w", err)
	}
	return newApp(cfg, lights.New(cfg.Lights()), s), nil
}

func newApp(cfg *config.Config, c *lights.Coordinator, s *store.Store) *App {
	return &App{
		cfg:      cfg,
		lights:   c,
		store:    s,
		profiles: profiles.NewManager(s, c),
	}
}

// Close tears down the transports and the store.
func (a *App) Close() error {
	return errors.Join(a.lights.Destroy(), a.store.Close())
}

// Discover initializes the coordinator on first use and returns the
// merged light set.
func (a *App) Discover(ctx context.Context) ([]lights.Light, error) {
	if !a.started {
		if err := a.lights.Initialize(ctx); err != nil {
			return nil, withTip(a.lights, err)
		}
		a.started = true
	}
	found, err := a.lights.DiscoverLights(ctx)
	if err != nil {
		return nil, withTip(a.lights, err)
	}
	return found, nil
}

// withTip appends the coordinator's diagnostic hint to err.
func withTip(c *lights.Coordinator, err error) error {
	if desc := c.ErrorDescription(); desc != "" {
		return fmt.Errorf("%w\n\n%s", err, desc)
	}
	return err
}

// duration returns the fade to use, falling back to the configured default.
func (a *App) duration(d *time.Duration) *time.Duration {
	if d != nil {
		return d
	}
	def := a.cfg.Control.DefaultDuration.Duration()
	return &def
}

// resolveLights picks the lights target addresses: "all", an id, or a
// case-insensitive label.
func resolveLights(all []lights.Light, target string) ([]lights.Light, error) {
	target = strings.TrimSpace(target)
	if strings.EqualFold(target, "all") {
		if len(all) == 0 {
			return nil, fmt.Errorf("%w: no lights discovered", lights.ErrDeviceNotFound)
		}
		return all, nil
	}

	id := lights.CanonicalID(target)
	for _, l := range all {
		if l.ID == id {
			return []lights.Light{l}, nil
		}
	}

	var out []lights.Light
	for _, l := range all {
		if strings.EqualFold(l.Label, target) {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", lights.ErrDeviceNotFound, target)
	}
	return out, nil
}

// groupLights returns the lights whose cloud group is name.
func groupLights(all []lights.Light, name string) ([]lights.Light, error) {
	var out []lights.Light
	for _, l := range all {
		if l.Group != "" && strings.EqualFold(l.Group, name) {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no lights in group %q", lights.ErrDeviceNotFound, name)
	}
	return out, nil
}

func lightIDs(ls []lights.Light) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}

// Set applies one change to every target light.
func (a *App) Set(ctx context.Context, targets []lights.Light, change lights.PartialControl) ([]lights.ControlResult, error) {
	change.Duration = a.duration(change.Duration)
	if err := change.Validate(); err != nil {
		return nil, err
	}
	results := a.lights.ControlAll(ctx, lightIDs(targets), change)
	return results, controlFailures(results)
}

// Do parses text and carries it out. It returns the parsed command along
// with the per-light results.
func (a *App) Do(ctx context.Context, text string, current []lights.Light) (command.Command, []lights.ControlResult, error) {
	saved, err := a.profiles.List()
	if err != nil {
		return command.Command{}, nil, err
	}

	cmd := command.Parse(text, saved)
	switch cmd.Kind {
	case command.KindUnknown:
		return cmd, nil, fmt.Errorf("could not understand %q", text)
	case command.KindProfile:
		p, err := a.profiles.Find(cmd.Profile)
		if err != nil {
			return cmd, nil, err
		}
		results, err := a.profiles.Apply(ctx, p, a.duration(nil))
		return cmd, results, err
	}

	if len(current) == 0 {
		return cmd, nil, fmt.Errorf("%w: no lights discovered", lights.ErrDeviceNotFound)
	}
	targets := current[:1]
	if cmd.Selector == command.SelectAll {
		targets = current
	}

	// Relative brightness depends on each light's own state, so every
	// light gets its own change.
	results := make([]lights.ControlResult, len(targets))
	var g errgroup.Group
	for i, l := range targets {
		g.Go(func() error {
			change := cmd.Control(l)
			change.Duration = a.duration(nil)
			results[i] = lights.ControlResult{LightID: l.ID, Err: a.lights.ControlLight(ctx, l.ID, change)}
			return nil
		})
	}
	_ = g.Wait()

	log.Debug().Str("command", string(cmd.Kind)).Float64("confidence", cmd.Confidence).Int("lights", len(targets)).Msg("Command executed")
	return cmd, results, controlFailures(results)
}

// ActivateScene runs a cloud scene, by uuid or name, with the default fade
// unless d is set.
func (a *App) ActivateScene(ctx context.Context, ref string, d *time.Duration) (lights.Scene, []lights.ControlResult, error) {
	scene, results, err := a.lights.ActivateScene(ctx, ref, *a.duration(d))
	if err != nil {
		return scene, nil, err
	}
	return scene, results, controlFailures(results)
}

func controlFailures(results []lights.ControlResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d light(s) failed: %w", len(errs), len(results), errors.Join(errs...))
}
