package lights

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultHTTPBaseURL   = "https://api.lifx.com/v1"
	DefaultHTTPTimeout   = 10 * time.Second
	DefaultHTTPRateLimit = 2.0
)

type HTTPConfig struct {
	Token   string
	BaseURL string
	// Timeout bounds a single request round trip.
	Timeout time.Duration
	// RateLimit is the sustained request rate in requests per second.
	RateLimit float64
	// Client overrides the HTTP client, mostly for tests.
	Client *http.Client
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultHTTPBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultHTTPTimeout
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultHTTPRateLimit
	}
	return c
}

// cloudLight is the directory entry returned by the cloud API.
type cloudLight struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Connected bool    `json:"connected"`
	Power     string  `json:"power"`
	Color     cloudHS `json:"color"`
	// Brightness is 0.0-1.0.
	Brightness float64    `json:"brightness"`
	Group      cloudGroup `json:"group"`
}

type cloudHS struct {
	// Hue is in degrees, Saturation 0.0-1.0.
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Kelvin     int     `json:"kelvin"`
}

type cloudGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type cloudState struct {
	Power      string   `json:"power,omitempty"`
	Color      string   `json:"color,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Duration   float64  `json:"duration"`
}

type cloudResults struct {
	Results []cloudResult `json:"results"`
}

type cloudResult struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

// Scene is a scene saved in the LIFX cloud account.
type Scene struct {
	UUID   string       `json:"uuid"`
	Name   string       `json:"name"`
	States []SceneState `json:"states"`
}

// SceneState is the stored state of one selector within a scene.
type SceneState struct {
	Selector   string  `json:"selector"`
	Power      string  `json:"power,omitempty"`
	Brightness float64 `json:"brightness,omitempty"`
}

type sceneActivation struct {
	Duration float64 `json:"duration"`
}

type cloudError struct {
	Error string `json:"error"`
}

func (l cloudLight) toLight() Light {
	return Light{
		ID:         CanonicalID(l.ID),
		Label:      l.Label,
		Power:      l.Power == "on",
		Brightness: clamp(int(math.Round(l.Brightness*MaxBrightness)), 0, MaxBrightness),
		Hue:        clamp(int(math.Round(l.Color.Hue)), 0, MaxHue),
		Saturation: clamp(int(math.Round(l.Color.Saturation*MaxSaturation)), 0, MaxSaturation),
		Kelvin:     clamp(l.Color.Kelvin, MinKelvin, MaxKelvin),
		Connected:  l.Connected,
		Reachable:  l.Connected,
		Source:     SourceHTTP,
		Group:      l.Group.Name,
	}
}

// colorString renders an HSBK for the cloud "color" field. Kelvin comes first
// because the API resets saturation whenever it applies a kelvin term.
func colorString(c HSBK) string {
	return fmt.Sprintf("kelvin:%d hue:%d saturation:%.2f",
		c.Kelvin, c.Hue, float64(c.Saturation)/MaxSaturation)
}

// HTTPTransport controls bulbs through the LIFX cloud REST API.
type HTTPTransport struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter

	mu     sync.RWMutex
	known  map[string]string
	closed bool
}

func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	cfg = cfg.withDefaults()
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	burst := int(math.Ceil(cfg.RateLimit))
	return &HTTPTransport{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		known:   make(map[string]string),
	}
}

func (t *HTTPTransport) Source() Source {
	return SourceHTTP
}

// Initialize checks the token with one directory call.
func (t *HTTPTransport) Initialize(ctx context.Context) error {
	if t.cfg.Token == "" {
		return t.fail("initialize", "", ErrUnavailable, errAuth)
	}
	found, err := t.listLights(ctx, "discover", "", "all")
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return t.fail("initialize", "", ErrUnavailable, te.Err)
		}
		return t.fail("initialize", "", ErrUnavailable, err)
	}
	t.remember(found)
	log.Info().Str("transport", "http").Int("lights", len(found)).Msg("HTTP transport ready")
	return nil
}

func (t *HTTPTransport) Discover(ctx context.Context) ([]Light, error) {
	found, err := t.listLights(ctx, "discover", "", "all")
	if err != nil {
		return nil, err
	}
	t.remember(found)

	result := make([]Light, 0, len(found))
	for _, l := range found {
		result = append(result, l.toLight())
	}
	log.Debug().Str("transport", "http").Int("lights", len(result)).Msg("HTTP discovery complete")
	return result, nil
}

func (t *HTTPTransport) Control(ctx context.Context, id string, change PartialControl) error {
	id = CanonicalID(id)
	apiID, ok := t.lookup(id)
	if !ok {
		return t.fail("control", id, ErrNotFound, nil)
	}
	selector := "id:" + apiID
	duration := change.FadeDuration().Seconds()

	if change.Power != nil {
		power := "off"
		if *change.Power {
			power = "on"
		}
		if err := t.setState(ctx, "set power", id, selector, cloudState{Power: power, Duration: duration}); err != nil {
			return err
		}
		log.Debug().Str("transport", "http").Str("light", id).Str("power", power).Msg("Power set")
	}

	if !change.HasColor() {
		return nil
	}

	fresh, err := t.listLights(ctx, "get color", id, selector)
	if err != nil {
		return err
	}
	var current *cloudLight
	for i := range fresh {
		if CanonicalID(fresh[i].ID) == id {
			current = &fresh[i]
			break
		}
	}
	if current == nil {
		return t.fail("get color", id, ErrNotFound, nil)
	}

	next := resolveColor(change, current.toLight().Color())
	next.Kelvin = deviceKelvin(change, next, current.Color.Kelvin)
	brightness := float64(next.Brightness) / MaxBrightness
	state := cloudState{
		Color:      colorString(next),
		Brightness: &brightness,
		Duration:   duration,
	}
	if err := t.setState(ctx, "set color", id, selector, state); err != nil {
		return err
	}

	log.Debug().
		Str("transport", "http").
		Str("light", id).
		Int("hue", next.Hue).
		Int("saturation", next.Saturation).
		Int("brightness", next.Brightness).
		Int("kelvin", next.Kelvin).
		Msg("Color set")
	return nil
}

func (t *HTTPTransport) Shutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.client.CloseIdleConnections()
	log.Debug().Str("transport", "http").Msg("HTTP transport shut down")
	return nil
}

func (t *HTTPTransport) listLights(ctx context.Context, op, id, selector string) ([]cloudLight, error) {
	var out []cloudLight
	if err := t.do(ctx, op, id, http.MethodGet, "/lights/"+url.PathEscape(selector), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *HTTPTransport) setState(ctx context.Context, op, id, selector string, state cloudState) error {
	var out cloudResults
	if err := t.do(ctx, op, id, http.MethodPut, "/lights/"+url.PathEscape(selector)+"/state", state, &out); err != nil {
		return err
	}
	for _, r := range out.Results {
		if CanonicalID(r.ID) == id {
			return t.resultErr(op, id, r.Status)
		}
	}
	return t.fail(op, id, ErrProtocol, errors.New("light missing from results"))
}

// resultErr maps one entry of a 207 multi-status body to the taxonomy.
func (t *HTTPTransport) resultErr(op, id, status string) error {
	switch status {
	case "ok":
		return nil
	case "timed_out", "offline":
		return t.fail(op, id, ErrTimeout, fmt.Errorf("light reported %s", status))
	default:
		return t.fail(op, id, ErrProtocol, fmt.Errorf("unexpected status %q", status))
	}
}

// Scenes lists the scenes saved in the cloud account.
func (t *HTTPTransport) Scenes(ctx context.Context) ([]Scene, error) {
	var out []Scene
	if err := t.do(ctx, "list scenes", "", http.MethodGet, "/scenes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActivateScene applies a saved scene and reports the outcome per light.
func (t *HTTPTransport) ActivateScene(ctx context.Context, uuid string, duration time.Duration) ([]ControlResult, error) {
	var out cloudResults
	path := "/scenes/" + url.PathEscape("scene_id:"+uuid) + "/activate"
	if err := t.do(ctx, "activate scene", "", http.MethodPut, path, sceneActivation{Duration: duration.Seconds()}, &out); err != nil {
		return nil, err
	}

	results := make([]ControlResult, len(out.Results))
	for i, r := range out.Results {
		id := CanonicalID(r.ID)
		results[i] = ControlResult{LightID: id, Err: t.resultErr("activate scene", id, r.Status)}
	}
	log.Debug().Str("transport", "http").Str("scene", uuid).Int("lights", len(results)).Msg("Scene activated")
	return results, nil
}

func (t *HTTPTransport) do(ctx context.Context, op, id, method, path string, body, out any) error {
	if t.isClosed() {
		return t.fail(op, id, ErrUnavailable, errors.New("transport shut down"))
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	if err := t.limiter.Wait(ctx); err != nil {
		return t.fail(op, id, classify(err), err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return t.fail(op, id, ErrProtocol, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.cfg.BaseURL+path, reader)
	if err != nil {
		return t.fail(op, id, ErrProtocol, err)
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		kind := classify(err)
		if kind == ErrProtocol {
			kind = ErrUnavailable
		}
		return t.fail(op, id, kind, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return t.fail(op, id, classify(err), err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return t.fail(op, id, ErrUnavailable, errAuth)
	case resp.StatusCode == http.StatusNotFound:
		return t.fail(op, id, ErrNotFound, apiMessage(resp.StatusCode, data))
	case resp.StatusCode == http.StatusTooManyRequests:
		return t.fail(op, id, ErrUnavailable, apiMessage(resp.StatusCode, data))
	case resp.StatusCode >= 500:
		return t.fail(op, id, ErrUnavailable, apiMessage(resp.StatusCode, data))
	case resp.StatusCode >= 400:
		return t.fail(op, id, ErrProtocol, apiMessage(resp.StatusCode, data))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return t.fail(op, id, ErrProtocol, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func apiMessage(status int, data []byte) error {
	var e cloudError
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return fmt.Errorf("HTTP %d: %s", status, e.Error)
	}
	return fmt.Errorf("HTTP %d", status)
}

func (t *HTTPTransport) remember(found []cloudLight) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range found {
		t.known[CanonicalID(l.ID)] = l.ID
	}
}

func (t *HTTPTransport) lookup(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	apiID, ok := t.known[id]
	return apiID, ok
}

func (t *HTTPTransport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *HTTPTransport) fail(op, id string, kind, err error) error {
	return &TransportError{Source: SourceHTTP, Op: op, LightID: id, Kind: kind, Err: err}
}
