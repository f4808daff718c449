package lights

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds the options recognized by the Coordinator.
type Config struct {
	EnableLANDiscovery bool
	LANTimeout         time.Duration
	LANStateTimeout    time.Duration
	LANRetryAttempts   int
	LANCooldown        time.Duration
	LANBroadcast       string

	HTTPAPIToken  string
	HTTPBaseURL   string
	HTTPTimeout   time.Duration
	HTTPRateLimit float64

	ControlTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		EnableLANDiscovery: true,
		LANTimeout:         DefaultLANTimeout,
		LANStateTimeout:    DefaultStateTimeout,
		LANRetryAttempts:   DefaultRetryAttempts,
		LANCooldown:        DefaultCooldown,
		HTTPBaseURL:        DefaultHTTPBaseURL,
		HTTPTimeout:        DefaultHTTPTimeout,
		HTTPRateLimit:      DefaultHTTPRateLimit,
		ControlTimeout:     DefaultControlTimeout,
	}
}

type DiscoveryStatus string

const (
	DiscoveryIdle    DiscoveryStatus = "idle"
	DiscoveryRunning DiscoveryStatus = "running"
	DiscoverySuccess DiscoveryStatus = "success"
	DiscoveryFailed  DiscoveryStatus = "error"
)

// ConnectionState is a point-in-time view of the Coordinator.
type ConnectionState struct {
	LANAvailable  bool    `json:"lanAvailable"`
	HTTPAvailable bool    `json:"httpAvailable"`
	ActiveLights  []Light `json:"activeLights"`
	// LastDiscovery is zero until the first discovery completes.
	LastDiscovery   time.Time       `json:"lastDiscovery"`
	DiscoveryStatus DiscoveryStatus `json:"discoveryStatus"`
	ConnectionType  Source          `json:"connectionType"`
	LastError       string          `json:"lastError,omitempty"`
	ErrorType       ErrorType       `json:"errorType,omitempty"`
}

// ControlResult is the outcome for one light of a ControlAll call.
type ControlResult struct {
	LightID string
	Err     error
}

type Option func(*Coordinator)

// WithLANTransport replaces the LAN transport built from Config.
func WithLANTransport(t Transport) Option {
	return func(c *Coordinator) { c.lan = t }
}

// WithHTTPTransport replaces the HTTP transport built from Config.
func WithHTTPTransport(t Transport) Option {
	return func(c *Coordinator) { c.http = t }
}

const maxConcurrentControl = 8

// Coordinator merges both transports behind one control surface. Callers
// serialize Initialize, DiscoverLights and Destroy; ControlLight may run
// concurrently with itself.
type Coordinator struct {
	lan  Transport
	http Transport

	mu        sync.RWMutex
	state     ConnectionState
	known     map[Source]map[string]bool
	destroyed bool
}

func New(cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		state: ConnectionState{
			DiscoveryStatus: DiscoveryIdle,
			ConnectionType:  SourceNone,
		},
		known: make(map[Source]map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.lan == nil && cfg.EnableLANDiscovery {
		c.lan = NewLANTransport(LANConfig{
			DiscoveryTimeout: cfg.LANTimeout,
			StateTimeout:     cfg.LANStateTimeout,
			RetryAttempts:    cfg.LANRetryAttempts,
			Cooldown:         cfg.LANCooldown,
			ControlTimeout:   cfg.ControlTimeout,
			BroadcastHost:    cfg.LANBroadcast,
		})
	}
	if c.http == nil && cfg.HTTPAPIToken != "" {
		c.http = NewHTTPTransport(HTTPConfig{
			Token:     cfg.HTTPAPIToken,
			BaseURL:   cfg.HTTPBaseURL,
			Timeout:   cfg.HTTPTimeout,
			RateLimit: cfg.HTTPRateLimit,
		})
	}
	return c
}

// Initialize brings up LAN then HTTP. It fails only when every configured
// transport failed.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	c.state.DiscoveryStatus = DiscoveryRunning
	c.mu.Unlock()

	var errs []error

	if c.lan != nil {
		err := c.lan.Initialize(ctx)
		c.mu.Lock()
		if err == nil {
			c.state.LANAvailable = true
			c.state.ConnectionType = SourceLAN
			c.state.DiscoveryStatus = DiscoverySuccess
			c.state.LastError = ""
			c.state.ErrorType = ErrorTypeNone
		} else {
			errType := ClassifyError(err)
			c.state.LANAvailable = false
			c.state.DiscoveryStatus = DiscoveryFailed
			c.state.LastError = friendlyError(errType, err)
			c.state.ErrorType = errType
			errs = append(errs, err)
		}
		c.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("component", "coordinator").Msg("LAN transport unavailable")
		}
	}

	if c.http != nil {
		err := c.http.Initialize(ctx)
		c.mu.Lock()
		if err == nil {
			c.state.HTTPAvailable = true
			if !c.state.LANAvailable {
				c.state.ConnectionType = SourceHTTP
				c.state.DiscoveryStatus = DiscoverySuccess
			}
		} else {
			c.state.HTTPAvailable = false
			c.state.LastError = "HTTP API failed: " + err.Error()
			c.state.ErrorType = ClassifyError(err)
			errs = append(errs, err)
		}
		c.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("component", "coordinator").Msg("HTTP transport unavailable")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.LANAvailable && !c.state.HTTPAvailable {
		c.state.DiscoveryStatus = DiscoveryFailed
		c.state.ConnectionType = SourceNone
		if len(errs) == 0 {
			return fmt.Errorf("%w: enable LAN discovery or provide an HTTP API token", ErrNoTransportAvailable)
		}
		return fmt.Errorf("%w: %w", ErrNoTransportAvailable, errors.Join(errs...))
	}

	log.Info().
		Str("component", "coordinator").
		Bool("lan", c.state.LANAvailable).
		Bool("http", c.state.HTTPAvailable).
		Str("primary", string(c.state.ConnectionType)).
		Msg("Coordinator initialized")
	return nil
}

type discovered struct {
	source Source
	lights []Light
	err    error
}

// DiscoverLights queries every available transport and rebuilds the active
// light set. Zero lights is reported through ConnectionState, not an error.
func (c *Coordinator) DiscoverLights(ctx context.Context) ([]Light, error) {
	c.mu.Lock()
	c.state.DiscoveryStatus = DiscoveryRunning
	c.mu.Unlock()

	transports := c.available()
	if len(transports) == 0 {
		c.mu.Lock()
		c.state.DiscoveryStatus = DiscoveryFailed
		c.state.LastError = "No connection method available"
		c.state.ActiveLights = nil
		c.mu.Unlock()
		return nil, ErrNoTransportAvailable
	}

	results := make([]discovered, len(transports))
	var g errgroup.Group
	for i, t := range transports {
		g.Go(func() error {
			found, err := t.Discover(ctx)
			results[i] = discovered{source: t.Source(), lights: found, err: err}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].source.priority() < results[j].source.priority()
	})

	merged := make(map[string]Light)
	known := make(map[Source]map[string]bool)
	failed := make(map[Source]error)
	for _, r := range results {
		if r.err != nil {
			failed[r.source] = r.err
			log.Warn().Err(r.err).Str("component", "coordinator").Str("transport", string(r.source)).Msg("Discovery failed")
			continue
		}
		ids := make(map[string]bool, len(r.lights))
		for _, l := range r.lights {
			l.ID = CanonicalID(l.ID)
			l.Source = r.source
			ids[l.ID] = true
			if _, ok := merged[l.ID]; !ok {
				merged[l.ID] = l
			}
		}
		known[r.source] = ids
		log.Debug().Str("component", "coordinator").Str("transport", string(r.source)).Int("lights", len(r.lights)).Msg("Transport discovery complete")
	}

	active := make([]Light, 0, len(merged))
	for _, l := range merged {
		active = append(active, l)
	}
	sortLights(active)

	c.mu.Lock()
	defer c.mu.Unlock()

	for src, ids := range known {
		c.known[src] = ids
	}
	if _, lanFailed := failed[SourceLAN]; lanFailed && c.state.HTTPAvailable {
		c.state.ConnectionType = SourceHTTP
	} else if _, ok := known[SourceLAN]; ok {
		c.state.ConnectionType = SourceLAN
	}

	c.state.ActiveLights = active
	c.state.LastDiscovery = time.Now()

	if len(failed) == len(transports) {
		errs := &DiscoveryError{Errs: failed}
		c.state.DiscoveryStatus = DiscoveryFailed
		c.state.ErrorType = ClassifyError(errs)
		c.state.LastError = friendlyError(c.state.ErrorType, errs)
		return nil, errs
	}

	if len(active) == 0 {
		c.state.DiscoveryStatus = DiscoveryFailed
		c.state.LastError = "No lights discovered"
		c.state.ErrorType = ErrorTypeNoLights
		log.Info().Str("component", "coordinator").Msg("No lights discovered")
		return []Light{}, nil
	}

	c.state.DiscoveryStatus = DiscoverySuccess
	c.state.LastError = ""
	c.state.ErrorType = ErrorTypeNone
	log.Info().Str("component", "coordinator").Int("lights", len(active)).Msg("Discovery complete")
	return cloneLights(active), nil
}

// LightState runs a fresh discovery and returns the entry for id.
func (c *Coordinator) LightState(ctx context.Context, id string) (Light, error) {
	found, err := c.DiscoverLights(ctx)
	if err != nil {
		return Light{}, err
	}
	id = CanonicalID(id)
	for _, l := range found {
		if l.ID == id {
			return l, nil
		}
	}
	return Light{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// ControlLight routes change to the light's source transport and falls back
// to the other transport once if that one also knows the light.
func (c *Coordinator) ControlLight(ctx context.Context, id string, change PartialControl) error {
	if err := change.Validate(); err != nil {
		return err
	}
	id = CanonicalID(id)

	primary, ok := c.route(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if change.IsEmpty() {
		return nil
	}

	logger := log.With().Str("component", "coordinator").Str("light", id).Logger()
	cerr := &ControlError{LightID: id}

	for _, src := range []Source{primary, other(primary)} {
		t := c.transport(src)
		if t == nil || (src != primary && !c.knows(src, id)) {
			continue
		}
		err := t.Control(ctx, id, change)
		if err == nil {
			if len(cerr.Attempts) > 0 {
				logger.Info().Str("transport", string(src)).Msg("Control succeeded via fallback")
			} else {
				logger.Debug().Str("transport", string(src)).Stringer("change", change).Msg("Control succeeded")
			}
			return nil
		}
		logger.Warn().Err(err).Str("transport", string(src)).Msg("Control failed")
		cerr.Attempts = append(cerr.Attempts, ControlAttempt{Source: src, Err: err})
	}

	if len(cerr.Attempts) == 0 {
		return fmt.Errorf("%w: no transport can reach %s", ErrNoTransportAvailable, id)
	}
	return cerr
}

// ControlAll applies change to every id concurrently and reports each
// outcome. Partial success is expected.
func (c *Coordinator) ControlAll(ctx context.Context, ids []string, change PartialControl) []ControlResult {
	results := make([]ControlResult, len(ids))
	var g errgroup.Group
	g.SetLimit(maxConcurrentControl)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = ControlResult{LightID: CanonicalID(id), Err: c.ControlLight(ctx, id, change)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Scenes lists the account scenes sorted by name. Scenes live in the cloud,
// so this needs the HTTP transport but not a prior Initialize.
func (c *Coordinator) Scenes(ctx context.Context) ([]Scene, error) {
	st, err := c.scenes()
	if err != nil {
		return nil, err
	}
	scenes, err := st.Scenes(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(scenes, func(i, j int) bool {
		return strings.ToLower(scenes[i].Name) < strings.ToLower(scenes[j].Name)
	})
	return scenes, nil
}

// ActivateScene runs the scene whose uuid or name (case-insensitive) is ref.
func (c *Coordinator) ActivateScene(ctx context.Context, ref string, duration time.Duration) (Scene, []ControlResult, error) {
	scenes, err := c.Scenes(ctx)
	if err != nil {
		return Scene{}, nil, err
	}
	var scene *Scene
	for i := range scenes {
		if scenes[i].UUID == ref || strings.EqualFold(scenes[i].Name, strings.TrimSpace(ref)) {
			scene = &scenes[i]
			break
		}
	}
	if scene == nil {
		return Scene{}, nil, fmt.Errorf("%w: %q", ErrSceneNotFound, ref)
	}

	st, _ := c.scenes()
	results, err := st.ActivateScene(ctx, scene.UUID, duration)
	if err != nil {
		return *scene, nil, err
	}
	log.Info().Str("component", "coordinator").Str("scene", scene.Name).Int("lights", len(results)).Msg("Scene activated")
	return *scene, results, nil
}

func (c *Coordinator) scenes() (SceneTransport, error) {
	st, ok := c.http.(SceneTransport)
	if !ok {
		return nil, fmt.Errorf("%w: scenes need an HTTP API token", ErrNoTransportAvailable)
	}
	return st, nil
}

// GetConnectionState returns a copy of the current state.
func (c *Coordinator) GetConnectionState() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.state
	s.ActiveLights = cloneLights(c.state.ActiveLights)
	return s
}

// Destroy shuts down every owned transport. Calling it again is a no-op.
func (c *Coordinator) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.state.LANAvailable = false
	c.state.HTTPAvailable = false
	c.state.ConnectionType = SourceNone
	c.mu.Unlock()

	var errs []error
	for _, t := range []Transport{c.lan, c.http} {
		if t == nil {
			continue
		}
		if err := t.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Source(), err))
		}
	}
	log.Debug().Str("component", "coordinator").Msg("Coordinator destroyed")
	return errors.Join(errs...)
}

// route picks the transport that owns id: its recorded source, else the
// highest-priority transport that reported it.
func (c *Coordinator) route(id string) (Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.state.ActiveLights {
		if l.ID == id {
			return l.Source, true
		}
	}
	for _, src := range []Source{SourceLAN, SourceHTTP} {
		if c.known[src][id] {
			return src, true
		}
	}
	return SourceNone, false
}

func (c *Coordinator) knows(src Source, id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.known[src][id]
}

// transport returns the transport for src if it is initialized.
func (c *Coordinator) transport(src Source) Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case src == SourceLAN && c.state.LANAvailable:
		return c.lan
	case src == SourceHTTP && c.state.HTTPAvailable:
		return c.http
	}
	return nil
}

func (c *Coordinator) available() []Transport {
	var out []Transport
	if t := c.transport(SourceLAN); t != nil {
		out = append(out, t)
	}
	if t := c.transport(SourceHTTP); t != nil {
		out = append(out, t)
	}
	return out
}

func other(src Source) Source {
	if src == SourceLAN {
		return SourceHTTP
	}
	return SourceLAN
}

func sortLights(ls []Light) {
	sort.Slice(ls, func(i, j int) bool {
		a, b := strings.ToLower(ls[i].Label), strings.ToLower(ls[j].Label)
		if a != b {
			return a < b
		}
		return ls[i].ID < ls[j].ID
	})
}

func cloneLights(ls []Light) []Light {
	if ls == nil {
		return nil
	}
	out := make([]Light, len(ls))
	copy(out, ls)
	return out
}
