package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifxctl/internal/lights"
	"lifxctl/internal/store"
)

func TestParsePower(t *testing.T) {
	tests := []struct {
		input    string
		action   string
		selector Selector
	}{
		{"turn on", "on", SelectFirst},
		{"Turn on all lights", "on", SelectAll},
		{"lights off", "off", SelectFirst},
		{"all off", "off", SelectAll},
		{"shut down", "off", SelectFirst},
		{"power on", "on", SelectFirst},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c := Parse(tt.input, nil)
			assert.Equal(t, KindPower, c.Kind)
			assert.Equal(t, tt.action, c.Action)
			assert.Equal(t, tt.selector, c.Selector)
			assert.Equal(t, 0.95, c.Confidence)
			assert.Equal(t, tt.input, c.Text)
		})
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		input string
		want  Color
	}{
		{"red", Color{0, 100}},
		{"set it to blue", Color{240, 100}},
		{"make them purple", Color{270, 100}},
		{"turn the lights green", Color{120, 100}},
		{"coral light", Color{15, 80}},
		{"set to #ff0000", Color{0, 100}},
		{"set to #00f", Color{240, 100}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c := Parse(tt.input, nil)
			require.Equal(t, KindColor, c.Kind)
			assert.Equal(t, tt.want, *c.Color)
		})
	}
}

func TestParseBrightness(t *testing.T) {
	tests := []struct {
		input  string
		value  int
		adjust bool
	}{
		{"50%", 50, false},
		{"set brightness to 30 %", 30, false},
		{"max", 100, false},
		{"set to medium", 50, false},
		{"low brightness", 25, false},
		{"dim the lights", -25, true},
		{"dim it a little", -15, true},
		{"brighten a bit", 15, true},
		{"turn up", 25, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c := Parse(tt.input, nil)
			require.Equal(t, KindBrightness, c.Kind)
			assert.Equal(t, tt.value, c.Value)
			assert.Equal(t, tt.adjust, c.Action == ActionAdjust)
		})
	}

	assert.Equal(t, KindUnknown, Parse("150%", nil).Kind)
}

func TestParseTemperature(t *testing.T) {
	tests := []struct {
		input  string
		kelvin int
	}{
		{"daylight", 6500},
		{"set to neutral", 4000},
		{"3000k", 3000},
		{"set all to 6500 kelvin", 6500},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c := Parse(tt.input, nil)
			require.Equal(t, KindTemperature, c.Kind)
			assert.Equal(t, tt.kelvin, c.Kelvin)
		})
	}

	assert.Equal(t, KindUnknown, Parse("12000k", nil).Kind)
}

func TestParseProfile(t *testing.T) {
	saved := []*store.Profile{
		{ID: "1", Name: "Evening Reading", Tags: []string{"cozy"}},
		{ID: "2", Name: "Movie Night"},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"apply my evening profile", "Evening Reading"},
		{"load movie night", "Movie Night"},
		{"switch to cozy", "Evening Reading"},
		{"profile movie", "Movie Night"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c := Parse(tt.input, saved)
			require.Equal(t, KindProfile, c.Kind)
			assert.Equal(t, tt.want, c.Profile)
			assert.Equal(t, SelectAll, c.Selector)
		})
	}
}

func TestParseUnmatchedProfileFallsThrough(t *testing.T) {
	c := Parse("set to red", []*store.Profile{{ID: "1", Name: "Evening"}})
	assert.Equal(t, KindColor, c.Kind)
}

func TestParseCompound(t *testing.T) {
	c := Parse("set to red and dim it", nil)
	require.Equal(t, KindCompound, c.Kind)
	require.Len(t, c.Parts, 2)
	assert.Equal(t, KindColor, c.Parts[0].Kind)
	assert.Equal(t, KindBrightness, c.Parts[1].Kind)
	assert.InDelta(t, 0.72, c.Confidence, 1e-9)

	c = Parse("turn on all, then 40%", nil)
	require.Equal(t, KindCompound, c.Kind)
	assert.Equal(t, SelectAll, c.Selector)
	assert.Len(t, c.Parts, 2)
}

func TestParseUnknown(t *testing.T) {
	c := Parse("what's the weather", nil)
	assert.Equal(t, KindUnknown, c.Kind)
	assert.Zero(t, c.Confidence)
	assert.Equal(t, "Unknown command", Describe(c))
}

func TestCommandControl(t *testing.T) {
	current := lights.Light{Brightness: 90, Hue: 10, Saturation: 10, Kelvin: 3500}

	c := Parse("brighten", nil).Control(current)
	assert.Equal(t, 100, *c.Brightness)

	c = Parse("dim", nil).Control(current)
	assert.Equal(t, 25, *c.Brightness)

	c = Parse("darker", nil).Control(lights.Light{Brightness: 10})
	assert.Equal(t, 0, *c.Brightness)

	c = Parse("turn off", nil).Control(current)
	assert.False(t, *c.Power)
	assert.False(t, c.HasColor())

	c = Parse("blue and 40%", nil).Control(current)
	assert.Equal(t, 240, *c.Hue)
	assert.Equal(t, 100, *c.Saturation)
	assert.Equal(t, 40, *c.Brightness)
	assert.Nil(t, c.Kelvin)
	assert.NoError(t, c.Validate())

	c = Parse("warm white", nil).Control(lights.Light{Brightness: 60, Hue: 300, Saturation: 80, Kelvin: 6500})
	assert.Equal(t, 2700, *c.Kelvin)
	assert.Equal(t, 0, *c.Saturation)
	assert.Nil(t, c.Hue)

	c = Parse("3000k", nil).Control(current)
	assert.Equal(t, 3000, *c.Kelvin)
	assert.Equal(t, 0, *c.Saturation)

	assert.True(t, Parse("load evening", nil).Control(current).IsEmpty())
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"turn on all", "Turn on all lights"},
		{"off", "Turn off light"},
		{"red", "Set color to red"},
		{"set to #123456", "Set color to custom"},
		{"20%", "Set brightness to 20%"},
		{"dim a bit", "Decrease brightness by 15%"},
		{"brighter", "Increase brightness by 25%"},
		{"4000k", "Set color temperature to 4000K"},
		{"red and 50%", "Set color to red + Set brightness to 50%"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(Parse(tt.input, nil)))
		})
	}
}

func TestParseColorValues(t *testing.T) {
	c, err := ParseColor("Teal")
	require.NoError(t, err)
	assert.Equal(t, Color{180, 60}, c)

	c, err = ParseColor("00ff00")
	require.NoError(t, err)
	assert.Equal(t, Color{120, 100}, c)

	_, err = ParseColor("chartreuse-ish")
	assert.Error(t, err)
}
