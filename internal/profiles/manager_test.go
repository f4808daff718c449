package profiles

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifxctl/internal/lights"
	"lifxctl/internal/store"
)

type fakeController struct {
	mu      sync.Mutex
	applied map[string]lights.PartialControl
	fail    map[string]error
}

func newFakeController() *fakeController {
	return &fakeController{applied: make(map[string]lights.PartialControl), fail: make(map[string]error)}
}

func (f *fakeController) ControlLight(ctx context.Context, id string, change lights.PartialControl) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[id]; err != nil {
		return err
	}
	f.applied[id] = change
	return nil
}

func (f *fakeController) ControlAll(ctx context.Context, ids []string, change lights.PartialControl) []lights.ControlResult {
	out := make([]lights.ControlResult, len(ids))
	for i, id := range ids {
		out[i] = lights.ControlResult{LightID: id, Err: f.ControlLight(ctx, id, change)}
	}
	return out
}

func newTestManager(t *testing.T) (*Manager, *fakeController) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := newFakeController()
	m := NewManager(s, c)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC) }
	return m, c
}

func sampleLights() []lights.Light {
	return []lights.Light{
		{ID: "d073d5000001", Label: "Desk", Power: true, Brightness: 40, Hue: 30, Saturation: 80, Kelvin: 2700, Source: lights.SourceLAN},
		{ID: "d073d5000002", Label: "Porch", Power: false, Brightness: 100, Hue: 0, Saturation: 0, Kelvin: 5000, Source: lights.SourceHTTP},
	}
}

func TestCapture(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.Capture("  Evening ", "after dinner", []string{"Cozy", "cozy", ""}, sampleLights())
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Evening", p.Name)
	assert.Equal(t, []string{"cozy"}, p.Tags)
	require.Len(t, p.Lights, 2)
	assert.Equal(t, store.ProfileLight{
		LightID: "d073d5000001", Label: "Desk", Power: true,
		Brightness: 40, Hue: 30, Saturation: 80, Kelvin: 2700,
	}, p.Lights[0])

	stored, err := m.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, stored.Name)
}

func TestCaptureSameNameReplaces(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Capture("Evening", "", nil, sampleLights())
	require.NoError(t, err)
	second, err := m.Capture("evening", "", nil, sampleLights()[:1])
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	all, err := m.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Lights, 1)
}

func TestCaptureErrors(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Capture(" ", "", nil, sampleLights())
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = m.Capture("Evening", "", nil, nil)
	assert.ErrorIs(t, err, ErrNoLights)
}

func TestApply(t *testing.T) {
	m, c := newTestManager(t)
	p, err := m.Capture("Evening", "", nil, sampleLights())
	require.NoError(t, err)

	fade := 2 * time.Second
	results, err := m.Apply(context.Background(), p, &fade)
	require.NoError(t, err)
	require.Len(t, results, 2)

	got := c.applied["d073d5000002"]
	require.NotNil(t, got.Power)
	assert.False(t, *got.Power)
	assert.Equal(t, 100, *got.Brightness)
	assert.Equal(t, 5000, *got.Kelvin)
	assert.Equal(t, fade, got.FadeDuration())
}

func TestApplyPartialAndTotalFailure(t *testing.T) {
	m, c := newTestManager(t)
	p, err := m.Capture("Evening", "", nil, sampleLights())
	require.NoError(t, err)

	c.fail["d073d5000001"] = lights.ErrDeviceNotFound
	results, err := m.Apply(context.Background(), p, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, lights.ErrDeviceNotFound)
	assert.NoError(t, results[1].Err)

	c.fail["d073d5000002"] = lights.ErrControlFailed
	_, err = m.Apply(context.Background(), p, nil)
	assert.ErrorIs(t, err, ErrApplyFailed)
	assert.ErrorIs(t, err, lights.ErrControlFailed)
}

func TestApplyPreset(t *testing.T) {
	m, c := newTestManager(t)
	preset, ok := PresetByID("night")
	require.True(t, ok)

	_, err := m.ApplyPreset(context.Background(), preset, []string{"d073d5000001", "d073d5000002"}, nil)
	require.NoError(t, err)

	got := c.applied["d073d5000001"]
	assert.Equal(t, 10, *got.Brightness)
	assert.Equal(t, 0, *got.Hue)
	assert.Equal(t, 80, *got.Saturation)
	assert.Nil(t, got.Kelvin)
}

func TestSavePreset(t *testing.T) {
	m, _ := newTestManager(t)
	preset, _ := PresetByID("movie-mode")

	p, err := m.SavePreset(preset, sampleLights())
	require.NoError(t, err)
	assert.Equal(t, "movie-mode", p.ID)

	found, err := m.Find("movie")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	_, err = m.SavePreset(preset, nil)
	assert.ErrorIs(t, err, ErrNoLights)
}

func TestFind(t *testing.T) {
	m, _ := newTestManager(t)
	evening, err := m.Capture("Evening Reading", "", []string{"cozy"}, sampleLights())
	require.NoError(t, err)
	_, err = m.Capture("Work", "", nil, sampleLights())
	require.NoError(t, err)

	tests := []struct {
		query string
		want  string
	}{
		{evening.ID, "Evening Reading"},
		{"work", "Work"},
		{"cozy", "Evening Reading"},
		{"my evening", "Evening Reading"},
		{"reading evening", "Evening Reading"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p, err := m.Find(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name)
		})
	}

	_, err = m.Find("party")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestDelete(t *testing.T) {
	m, _ := newTestManager(t)
	p, err := m.Capture("Evening", "", nil, sampleLights())
	require.NoError(t, err)

	require.NoError(t, m.Delete(p.ID))
	_, err = m.Get(p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
