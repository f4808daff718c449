package lights

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type LANConfig struct {
	// DiscoveryTimeout bounds one broadcast scan.
	DiscoveryTimeout time.Duration
	// StateTimeout bounds one state query round trip.
	StateTimeout time.Duration
	// RetryAttempts is how many times a state query is tried during Discover.
	RetryAttempts int
	// Cooldown is the minimum interval between background rescans.
	Cooldown time.Duration
	// ControlTimeout bounds each acknowledged command.
	ControlTimeout time.Duration
	// BroadcastHost overrides the broadcast address; empty means the default.
	BroadcastHost string
}

const (
	DefaultLANTimeout      = 5 * time.Second
	DefaultStateTimeout    = 5 * time.Second
	DefaultRetryAttempts   = 3
	DefaultCooldown        = 2 * time.Second
	DefaultControlTimeout  = 10 * time.Second
	stateRetryDelay        = 200 * time.Millisecond
	maxConcurrentStateRead = 8
)

func (c LANConfig) withDefaults() LANConfig {
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = DefaultLANTimeout
	}
	if c.StateTimeout <= 0 {
		c.StateTimeout = DefaultStateTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.ControlTimeout <= 0 {
		c.ControlTimeout = DefaultControlTimeout
	}
	return c
}

// deviceColor is the bulb-native HSBK encoding: hue, saturation and
// brightness scaled to 0-65535, kelvin as-is.
type deviceColor struct {
	Hue        uint16
	Saturation uint16
	Brightness uint16
	Kelvin     uint16
}

func toDeviceColor(c HSBK) deviceColor {
	c = c.normalize()
	return deviceColor{
		Hue:        scaleTo16(c.Hue, MaxHue),
		Saturation: scaleTo16(c.Saturation, MaxSaturation),
		Brightness: scaleTo16(c.Brightness, MaxBrightness),
		Kelvin:     uint16(c.Kelvin),
	}
}

func fromDeviceColor(d deviceColor) HSBK {
	return HSBK{
		Hue:        scaleFrom16(d.Hue, MaxHue),
		Saturation: scaleFrom16(d.Saturation, MaxSaturation),
		Brightness: scaleFrom16(d.Brightness, MaxBrightness),
		Kelvin:     clamp(int(d.Kelvin), MinKelvin, MaxKelvin),
	}
}

func scaleTo16(v, max int) uint16 {
	return uint16(math.Round(float64(v) / float64(max) * math.MaxUint16))
}

func scaleFrom16(v uint16, max int) int {
	return int(math.Round(float64(v) / math.MaxUint16 * float64(max)))
}

// bulb is a discovered device handle owned by the LAN transport.
type bulb interface {
	ID() string
	Label() string
	Open() (bulbSession, error)
}

// bulbSession is one socket to a bulb. Set calls return after the bulb
// acknowledges.
type bulbSession interface {
	Power(ctx context.Context) (bool, error)
	Color(ctx context.Context) (deviceColor, error)
	SetPower(ctx context.Context, on bool, fade time.Duration) error
	SetColor(ctx context.Context, c deviceColor, fade time.Duration) error
	Close() error
}

// scanFunc broadcasts for bulbs until ctx is done, calling found for each.
type scanFunc func(ctx context.Context, found func(bulb)) error

// LANTransport discovers and controls bulbs over the local broadcast protocol.
// The bulb cache has a single writer: whichever goroutine holds scanMu.
type LANTransport struct {
	cfg  LANConfig
	scan scanFunc

	mu       sync.RWMutex
	bulbs    map[string]bulb
	lastScan time.Time
	closed   bool

	// scanned is closed when the first scan completes.
	scanned     chan struct{}
	scannedOnce sync.Once

	scanMu sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLANTransport(cfg LANConfig) *LANTransport {
	cfg = cfg.withDefaults()
	return newLANTransport(cfg, lifxScanner(cfg.BroadcastHost, cfg.StateTimeout))
}

func newLANTransport(cfg LANConfig, scan scanFunc) *LANTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &LANTransport{
		cfg:     cfg.withDefaults(),
		scan:    scan,
		bulbs:   make(map[string]bulb),
		scanned: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (t *LANTransport) Source() Source {
	return SourceLAN
}

// Initialize starts a broadcast scan and returns as soon as the first bulb
// answers. The scan keeps collecting replies in the background until the
// discovery timeout elapses.
func (t *LANTransport) Initialize(ctx context.Context) error {
	first := make(chan struct{})
	var once sync.Once
	done := make(chan error, 1)

	if !t.goBackground(func() {
		t.scanMu.Lock()
		defer t.scanMu.Unlock()
		done <- t.scanLocked(func() { once.Do(func() { close(first) }) })
	}) {
		return t.fail("initialize", "", ErrUnavailable, errors.New("transport shut down"))
	}

	select {
	case <-first:
		log.Info().Str("transport", "lan").Msg("LAN transport ready")
		return nil
	case err := <-done:
		if n := t.count(); n > 0 {
			log.Info().Str("transport", "lan").Int("lights", n).Msg("LAN transport ready")
			return nil
		}
		if err == nil {
			err = errNoLights
		}
		return t.fail("initialize", "", ErrUnavailable, err)
	case <-ctx.Done():
		return t.fail("initialize", "", ErrUnavailable, ctx.Err())
	}
}

// Discover queries the live state of every known bulb.
func (t *LANTransport) Discover(ctx context.Context) ([]Light, error) {
	if t.isClosed() {
		return nil, t.fail("discover", "", ErrUnavailable, errors.New("transport shut down"))
	}

	// Bulbs that answer late in the initial scan must still be listed.
	if t.count() > 0 {
		select {
		case <-t.scanned:
		case <-ctx.Done():
			return nil, t.fail("discover", "", classify(ctx.Err()), ctx.Err())
		}
	}

	bulbs := t.snapshot()
	if len(bulbs) == 0 {
		if err := t.rescan(); err != nil {
			return nil, t.fail("discover", "", classify(err), err)
		}
		bulbs = t.snapshot()
	} else {
		t.refreshInBackground()
	}

	results := make([]*Light, len(bulbs))
	var g errgroup.Group
	g.SetLimit(maxConcurrentStateRead)
	for i, b := range bulbs {
		g.Go(func() error {
			l, err := t.readState(ctx, b)
			if err != nil {
				log.Warn().Err(err).Str("transport", "lan").Str("light", b.ID()).Msg("Failed to read light state")
				return nil
			}
			results[i] = &l
			return nil
		})
	}
	_ = g.Wait()

	found := make([]Light, 0, len(results))
	for _, l := range results {
		if l != nil {
			found = append(found, *l)
		}
	}
	log.Debug().Str("transport", "lan").Int("known", len(bulbs)).Int("responded", len(found)).Msg("LAN discovery complete")
	return found, nil
}

// Control applies a partial change: power first, then a color command built
// from a state fetched within this call.
func (t *LANTransport) Control(ctx context.Context, id string, change PartialControl) error {
	id = CanonicalID(id)
	b, ok := t.lookup(id)
	if !ok {
		return t.fail("control", id, ErrNotFound, nil)
	}

	s, err := t.dial(ctx, b)
	if err != nil {
		kind := ErrUnavailable
		if errors.Is(err, ErrTimeout) {
			kind = ErrTimeout
		}
		return t.fail("control", id, kind, err)
	}
	defer s.Close()

	fade := change.FadeDuration()

	if change.Power != nil {
		on := *change.Power
		err := raceTimeout(ctx, t.cfg.ControlTimeout, func(ctx context.Context) error {
			return s.SetPower(ctx, on, fade)
		})
		if err != nil {
			return t.fail("set power", id, classify(err), err)
		}
		log.Debug().Str("transport", "lan").Str("light", id).Bool("power", on).Msg("Power set")
	}

	if !change.HasColor() {
		return nil
	}

	var current deviceColor
	err = raceTimeout(ctx, t.cfg.StateTimeout, func(ctx context.Context) error {
		var err error
		current, err = s.Color(ctx)
		return err
	})
	if err != nil {
		return t.fail("get color", id, classify(err), err)
	}

	next := resolveColor(change, fromDeviceColor(current))
	wire := toDeviceColor(next)
	wire.Kelvin = uint16(deviceKelvin(change, next, int(current.Kelvin)))
	err = raceTimeout(ctx, t.cfg.ControlTimeout, func(ctx context.Context) error {
		return s.SetColor(ctx, wire, fade)
	})
	if err != nil {
		return t.fail("set color", id, classify(err), err)
	}

	log.Debug().
		Str("transport", "lan").
		Str("light", id).
		Int("hue", next.Hue).
		Int("saturation", next.Saturation).
		Int("brightness", next.Brightness).
		Int("kelvin", next.Kelvin).
		Msg("Color set")
	return nil
}

func (t *LANTransport) Shutdown() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	log.Debug().Str("transport", "lan").Msg("LAN transport shut down")
	return nil
}

// dial opens a session within the control timeout, rescan included. A
// session that opens after the deadline is closed.
func (t *LANTransport) dial(ctx context.Context, b bulb) (bulbSession, error) {
	type opened struct {
		s   bulbSession
		err error
	}
	ch := make(chan opened, 1)
	go func() {
		s, err := t.open(b)
		ch <- opened{s, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, t.cfg.ControlTimeout)
	defer cancel()

	select {
	case r := <-ch:
		return r.s, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.s != nil {
				r.s.Close()
			}
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// open dials the bulb, rescanning once if the cached handle is dead.
func (t *LANTransport) open(b bulb) (bulbSession, error) {
	s, err := b.Open()
	if err == nil {
		return s, nil
	}
	log.Warn().Err(err).Str("transport", "lan").Str("light", b.ID()).Msg("Dial failed, re-discovering")
	if err := t.rescan(); err != nil {
		return nil, err
	}
	fresh, ok := t.lookup(CanonicalID(b.ID()))
	if !ok {
		return nil, fmt.Errorf("light %s not found after re-discovery", b.ID())
	}
	return fresh.Open()
}

func (t *LANTransport) readState(ctx context.Context, b bulb) (Light, error) {
	var lastErr error
	for attempt := 0; attempt < t.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * stateRetryDelay):
			case <-ctx.Done():
				return Light{}, ctx.Err()
			}
		}
		l, err := t.fetchLight(ctx, b)
		if err == nil {
			return l, nil
		}
		lastErr = err
	}
	return Light{}, lastErr
}

func (t *LANTransport) fetchLight(ctx context.Context, b bulb) (Light, error) {
	s, err := b.Open()
	if err != nil {
		return Light{}, err
	}
	defer s.Close()

	var (
		on    bool
		color deviceColor
	)
	err = raceTimeout(ctx, t.cfg.StateTimeout, func(ctx context.Context) error {
		var err error
		if on, err = s.Power(ctx); err != nil {
			return err
		}
		color, err = s.Color(ctx)
		return err
	})
	if err != nil {
		return Light{}, err
	}

	id := CanonicalID(b.ID())
	hsbk := fromDeviceColor(color)
	label := b.Label()
	if label == "" {
		label = fmt.Sprintf("Light %.8s", id)
	}
	return Light{
		ID:         id,
		Label:      label,
		Power:      on,
		Brightness: hsbk.Brightness,
		Hue:        hsbk.Hue,
		Saturation: hsbk.Saturation,
		Kelvin:     hsbk.Kelvin,
		Connected:  true,
		Reachable:  true,
		Source:     SourceLAN,
	}, nil
}

func (t *LANTransport) rescan() error {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()
	return t.scanLocked(nil)
}

// refreshInBackground picks up newly powered bulbs without delaying the
// caller. It is a no-op while another scan runs or within the cooldown.
func (t *LANTransport) refreshInBackground() {
	t.mu.RLock()
	stale := time.Since(t.lastScan) >= t.cfg.Cooldown
	t.mu.RUnlock()
	if !stale {
		return
	}
	t.goBackground(func() {
		if !t.scanMu.TryLock() {
			return
		}
		defer t.scanMu.Unlock()
		if err := t.scanLocked(nil); err != nil {
			log.Debug().Err(err).Str("transport", "lan").Msg("Background rescan failed")
		}
	})
}

// scanLocked must be called with scanMu held.
func (t *LANTransport) scanLocked(onFound func()) error {
	ctx, cancel := context.WithTimeout(t.ctx, t.cfg.DiscoveryTimeout)
	defer cancel()

	err := t.scan(ctx, func(b bulb) {
		id := CanonicalID(b.ID())
		t.mu.Lock()
		_, known := t.bulbs[id]
		t.bulbs[id] = b
		t.mu.Unlock()
		if !known {
			log.Info().Str("transport", "lan").Str("light", id).Str("label", b.Label()).Msg("Discovered light")
		}
		if onFound != nil {
			onFound()
		}
	})

	t.mu.Lock()
	t.lastScan = time.Now()
	t.mu.Unlock()
	t.scannedOnce.Do(func() { close(t.scanned) })

	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (t *LANTransport) goBackground(fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
	return true
}

func (t *LANTransport) lookup(id string) (bulb, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.bulbs[id]
	return b, ok
}

func (t *LANTransport) snapshot() []bulb {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]bulb, 0, len(t.bulbs))
	for _, b := range t.bulbs {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (t *LANTransport) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bulbs)
}

func (t *LANTransport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *LANTransport) fail(op, id string, kind, err error) error {
	return &TransportError{Source: SourceLAN, Op: op, LightID: id, Kind: kind, Err: err}
}
