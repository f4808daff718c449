package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifxctl/internal/config"
	"lifxctl/internal/lights"
	"lifxctl/internal/store"
)

// memTransport is an in-memory LAN transport.
type memTransport struct {
	mu        sync.Mutex
	lights    map[string]lights.Light
	durations []time.Duration
}

func newMemTransport(ls ...lights.Light) *memTransport {
	m := &memTransport{lights: make(map[string]lights.Light)}
	for _, l := range ls {
		l.Source = lights.SourceLAN
		l.Connected, l.Reachable = true, true
		m.lights[l.ID] = l
	}
	return m
}

func (m *memTransport) Source() lights.Source                { return lights.SourceLAN }
func (m *memTransport) Initialize(ctx context.Context) error { return nil }
func (m *memTransport) Shutdown() error                      { return nil }

func (m *memTransport) Discover(ctx context.Context) ([]lights.Light, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]lights.Light, 0, len(m.lights))
	for _, l := range m.lights {
		out = append(out, l)
	}
	return out, nil
}

func (m *memTransport) Control(ctx context.Context, id string, change lights.PartialControl) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lights[id]
	if !ok {
		return &lights.TransportError{Source: lights.SourceLAN, Op: "control", LightID: id, Kind: lights.ErrNotFound}
	}
	if change.Power != nil {
		l.Power = *change.Power
	}
	if change.Brightness != nil {
		l.Brightness = *change.Brightness
	}
	if change.Hue != nil {
		l.Hue = *change.Hue
	}
	if change.Saturation != nil {
		l.Saturation = *change.Saturation
	}
	if change.Kelvin != nil {
		l.Kelvin = *change.Kelvin
	}
	m.lights[id] = l
	m.durations = append(m.durations, change.FadeDuration())
	return nil
}

func (m *memTransport) get(id string) lights.Light {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lights[id]
}

// memScenes stands in for the cloud transport's scene endpoints.
type memScenes struct {
	*memTransport
	scenes    []lights.Scene
	activated []string
	fades     []time.Duration
}

func (m *memScenes) Source() lights.Source { return lights.SourceHTTP }

func (m *memScenes) Scenes(ctx context.Context) ([]lights.Scene, error) {
	return m.scenes, nil
}

func (m *memScenes) ActivateScene(ctx context.Context, uuid string, d time.Duration) ([]lights.ControlResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activated = append(m.activated, uuid)
	m.fades = append(m.fades, d)
	return []lights.ControlResult{{LightID: desk.ID}}, nil
}

func testApp(t *testing.T, tr lights.Transport, opts ...lights.Option) *App {
	t.Helper()
	cfg, err := config.Parse([]byte("control:\n  default_duration: 250ms\n"))
	require.NoError(t, err)

	s, err := store.Open(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)

	opts = append([]lights.Option{lights.WithLANTransport(tr)}, opts...)
	a := newApp(cfg, lights.New(lights.Config{}, opts...), s)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

var (
	desk = lights.Light{ID: "d073d5000001", Label: "Desk", Power: true, Brightness: 40, Kelvin: 3500, Group: "Office"}
	hall = lights.Light{ID: "d073d5000002", Label: "Hall", Power: true, Brightness: 80, Kelvin: 2700}
)

func TestResolveLights(t *testing.T) {
	all := []lights.Light{desk, hall}

	got, err := resolveLights(all, "all")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = resolveLights(all, "D0:73:D5:00:00:02")
	require.NoError(t, err)
	assert.Equal(t, "Hall", got[0].Label)

	got, err = resolveLights(all, "desk")
	require.NoError(t, err)
	assert.Equal(t, desk.ID, got[0].ID)

	_, err = resolveLights(all, "kitchen")
	assert.ErrorIs(t, err, lights.ErrDeviceNotFound)

	_, err = resolveLights(nil, "all")
	assert.ErrorIs(t, err, lights.ErrDeviceNotFound)
}

func TestGroupLights(t *testing.T) {
	got, err := groupLights([]lights.Light{desk, hall}, "office")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, desk.ID, got[0].ID)

	_, err = groupLights([]lights.Light{desk, hall}, "garage")
	assert.ErrorIs(t, err, lights.ErrDeviceNotFound)
}

func TestAppSetUsesDefaultDuration(t *testing.T) {
	tr := newMemTransport(desk, hall)
	a := testApp(t, tr)

	found, err := a.Discover(context.Background())
	require.NoError(t, err)

	results, err := a.Set(context.Background(), found, lights.PartialControl{Brightness: lights.Int(10)})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 10, tr.get(desk.ID).Brightness)
	assert.Equal(t, 10, tr.get(hall.ID).Brightness)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, tr.durations)

	_, err = a.Set(context.Background(), found, lights.PartialControl{Brightness: lights.Int(200)})
	assert.ErrorIs(t, err, lights.ErrInvalidControl)
}

func TestAppDo(t *testing.T) {
	tr := newMemTransport(desk, hall)
	a := testApp(t, tr)
	ctx := context.Background()

	found, err := a.Discover(ctx)
	require.NoError(t, err)

	_, _, err = a.Do(ctx, "turn off all lights", found)
	require.NoError(t, err)
	assert.False(t, tr.get(desk.ID).Power)
	assert.False(t, tr.get(hall.ID).Power)

	// Without "all" only the first light, in label order, changes.
	_, results, err := a.Do(ctx, "brighten a bit", found)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 55, tr.get(desk.ID).Brightness)
	assert.Equal(t, 80, tr.get(hall.ID).Brightness)

	_, _, err = a.Do(ctx, "set all to 3000k", found)
	require.NoError(t, err)
	assert.Equal(t, 3000, tr.get(hall.ID).Kelvin)

	cmd, _, err := a.Do(ctx, "what's the weather", found)
	assert.Error(t, err)
	assert.Equal(t, "unknown", string(cmd.Kind))
}

func TestAppDoAppliesProfile(t *testing.T) {
	tr := newMemTransport(desk, hall)
	a := testApp(t, tr)
	ctx := context.Background()

	found, err := a.Discover(ctx)
	require.NoError(t, err)
	_, err = a.profiles.Capture("Evening Reading", "", []string{"cozy"}, found)
	require.NoError(t, err)

	_, err = a.Set(ctx, found, lights.PartialControl{Power: lights.Bool(false), Brightness: lights.Int(5)})
	require.NoError(t, err)

	_, _, err = a.Do(ctx, "apply my evening profile", found)
	require.NoError(t, err)
	assert.True(t, tr.get(desk.ID).Power)
	assert.Equal(t, 40, tr.get(desk.ID).Brightness)
	assert.Equal(t, 80, tr.get(hall.ID).Brightness)

	// An unknown profile name is not a command at all.
	cmd, _, err := a.Do(ctx, "load the garage profile", found)
	assert.Error(t, err)
	assert.Equal(t, "unknown", string(cmd.Kind))
}

func TestAppActivateScene(t *testing.T) {
	sc := &memScenes{
		memTransport: newMemTransport(),
		scenes:       []lights.Scene{{UUID: "2b1a4a2e-6f3c-4d6e-9d1f-0c4a5b6e7f80", Name: "Evening"}},
	}
	a := testApp(t, newMemTransport(desk), lights.WithHTTPTransport(sc))
	ctx := context.Background()

	scene, results, err := a.ActivateScene(ctx, "evening", nil)
	require.NoError(t, err)
	assert.Equal(t, "Evening", scene.Name)
	assert.Len(t, results, 1)
	assert.Equal(t, []string{"2b1a4a2e-6f3c-4d6e-9d1f-0c4a5b6e7f80"}, sc.activated)
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, sc.fades)

	_, _, err = a.ActivateScene(ctx, "garage", nil)
	assert.ErrorIs(t, err, lights.ErrSceneNotFound)
}
