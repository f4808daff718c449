// Package command turns short natural-language phrases into light changes.
package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lifxctl/internal/lights"
	"lifxctl/internal/profiles"
	"lifxctl/internal/store"
)

type Kind string

const (
	KindPower       Kind = "power"
	KindColor       Kind = "color"
	KindBrightness  Kind = "brightness"
	KindTemperature Kind = "temperature"
	KindProfile     Kind = "profile"
	KindCompound    Kind = "compound"
	KindUnknown     Kind = "unknown"
)

// Selector says which lights a command addresses.
type Selector string

const (
	SelectAll   Selector = "all"
	SelectFirst Selector = "first"
)

const ActionAdjust = "adjust"

type Command struct {
	Kind Kind
	// Action is "on"/"off" for power and ActionAdjust for relative brightness.
	Action string
	// Value is a brightness percentage, or a signed delta when Action is
	// ActionAdjust.
	Value      int
	Color      *Color
	Kelvin     int
	Profile    string
	Selector   Selector
	Confidence float64
	Text       string
	Parts      []Command
}

type keywordValue struct {
	word  string
	value int
}

var brightnessKeywords = []keywordValue{
	{"max", 100},
	{"maximum", 100},
	{"full", 100},
	{"bright", 100},
	{"high", 80},
	{"medium", 50},
	{"mid", 50},
	{"low", 25},
	{"dim", 25},
	{"minimal", 10},
	{"off", 0},
}

var temperatureKeywords = []keywordValue{
	{"warm", 2700},
	{"warm white", 2700},
	{"neutral", 4000},
	{"neutral white", 4000},
	{"cool", 5500},
	{"cool white", 5500},
	{"daylight", 6500},
	{"bright white", 6500},
}

var (
	compoundSplit = regexp.MustCompile(`\s*,\s*(?:(?:and|then)\s+)?|\s+(?:and|then)\s+`)

	powerOn = []*regexp.Regexp{
		regexp.MustCompile(`^(?:turn|switch)\s+(?:on|the lights? on)`),
		regexp.MustCompile(`^(?:lights?|all)\s+on$`),
		regexp.MustCompile(`^on$`),
		regexp.MustCompile(`^power\s+on`),
		regexp.MustCompile(`^enable`),
	}
	powerOff = []*regexp.Regexp{
		regexp.MustCompile(`^(?:turn|switch)\s+(?:off|the lights? off)`),
		regexp.MustCompile(`^(?:lights?|all)\s+off$`),
		regexp.MustCompile(`^off$`),
		regexp.MustCompile(`^power\s+off`),
		regexp.MustCompile(`^disable`),
		regexp.MustCompile(`^shut\s+(?:off|down)`),
	}

	profilePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:set|load|apply|use)(?:\s+to)?(?:\s+my)?(?:\s+the)?\s+(.+?)\s+profile`),
		regexp.MustCompile(`profile\s+(.+)`),
		regexp.MustCompile(`(?:set|load|apply|use)(?:\s+to)?(?:\s+my)?\s+(.+?)(?:\s+scene)?$`),
		regexp.MustCompile(`(?:switch to|go to)(?:\s+my)?\s+(.+)`),
	}

	hexColor   = regexp.MustCompile(`#(?:[0-9a-f]{6}|[0-9a-f]{3})\b`)
	percent    = regexp.MustCompile(`(\d+)\s*%`)
	kelvinTerm = regexp.MustCompile(`(\d{4,5})\s*k(?:elvin)?\b`)

	dimPatterns = []*regexp.Regexp{
		regexp.MustCompile(`dim(?:\s+(?:it|the lights?|them))?(?:\s+a\s+(?:bit|little))?`),
		regexp.MustCompile(`darker`),
		regexp.MustCompile(`lower(?:\s+(?:the\s+)?brightness)?`),
		regexp.MustCompile(`turn\s+down`),
	}
	brightenPatterns = []*regexp.Regexp{
		regexp.MustCompile(`bright(?:en)?(?:\s+(?:it|the lights?|them))?(?:\s+a\s+(?:bit|little))?`),
		regexp.MustCompile(`lighter`),
		regexp.MustCompile(`raise(?:\s+(?:the\s+)?brightness)?`),
		regexp.MustCompile(`turn\s+up`),
		regexp.MustCompile(`increase`),
	}

	colorPatterns       = compileKeywords(colorTemplates, ColorNames())
	brightnessPatterns  = compileKeywords(brightnessTemplates, words(brightnessKeywords))
	temperaturePatterns = compileKeywords(temperatureTemplates, words(temperatureKeywords))
)

var (
	colorTemplates = []string{
		`(?:set|change|make|turn)\s+(?:it|the lights?)?\s*(?:to)?\s*%s`,
		`^%s$`,
		`%s\s+(?:color|light)`,
		`(?:go|switch to)\s+%s`,
		`make\s+(?:it|them)?\s*%s`,
	}
	brightnessTemplates = []string{
		`(?:set|make|turn)\s+(?:it|the lights?|them)?\s*(?:to)?\s*%s`,
		`^%s$`,
		`%s\s+brightness`,
		`(?:go|switch to)\s+%s`,
	}
	temperatureTemplates = []string{
		`(?:set|change|make)\s+(?:to)?\s*%s`,
		`^%s$`,
	}
)

func compileKeywords(templates, keywords []string) [][]*regexp.Regexp {
	out := make([][]*regexp.Regexp, len(keywords))
	for i, kw := range keywords {
		for _, tmpl := range templates {
			out[i] = append(out[i], regexp.MustCompile(fmt.Sprintf(tmpl, regexp.QuoteMeta(kw))))
		}
	}
	return out
}

func words(kvs []keywordValue) []string {
	out := make([]string, len(kvs))
	for i, kv := range kvs {
		out[i] = kv.word
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Parse interprets input. Saved profiles are consulted for profile
// references. Unrecognized input yields KindUnknown with zero confidence.
func Parse(input string, saved []*store.Profile) Command {
	s := strings.ToLower(strings.TrimSpace(input))

	cmd := func() Command {
		if c := parseCompound(s); c.Confidence > 0.7 {
			return c
		}
		if c := parsePower(s); c.Confidence > 0.7 {
			return c
		}
		if c := parseProfile(s, saved); c.Confidence > 0.7 {
			return c
		}
		if c := parseColor(s); c.Confidence > 0.6 {
			return c
		}
		if c := parseTemperature(s); c.Confidence > 0.6 {
			return c
		}
		if c := parseBrightness(s); c.Confidence > 0.6 {
			return c
		}
		return unknown()
	}()
	cmd.Text = input
	return cmd
}

func parseCompound(s string) Command {
	parts := compoundSplit.Split(s, -1)
	if len(parts) < 2 {
		return unknown()
	}

	c := Command{Kind: KindCompound, Selector: SelectFirst}
	lowest := 1.0
	for _, part := range parts {
		sub := parseSingle(strings.TrimSpace(part))
		if sub.Kind == KindUnknown {
			continue
		}
		c.Parts = append(c.Parts, sub)
		lowest = min(lowest, sub.Confidence)
		if sub.Selector == SelectAll {
			c.Selector = SelectAll
		}
	}
	if len(c.Parts) < 2 {
		return unknown()
	}
	c.Confidence = lowest * 0.9
	return c
}

func parseSingle(s string) Command {
	if c := parsePower(s); c.Confidence > 0.7 {
		return c
	}
	if c := parseColor(s); c.Confidence > 0.6 {
		return c
	}
	if c := parseBrightness(s); c.Confidence > 0.6 {
		return c
	}
	if c := parseTemperature(s); c.Confidence > 0.6 {
		return c
	}
	return unknown()
}

func parsePower(s string) Command {
	switch {
	case anyMatch(powerOn, s):
		return Command{Kind: KindPower, Action: "on", Selector: selector(s), Confidence: 0.95, Text: s}
	case anyMatch(powerOff, s):
		return Command{Kind: KindPower, Action: "off", Selector: selector(s), Confidence: 0.95, Text: s}
	}
	return unknown()
}

func parseColor(s string) Command {
	if hex := hexColor.FindString(s); hex != "" {
		if c, err := ParseColor(hex); err == nil {
			return Command{Kind: KindColor, Color: &c, Selector: selector(s), Confidence: 0.9, Text: s}
		}
	}
	for i, patterns := range colorPatterns {
		if anyMatch(patterns, s) {
			c := namedColors[i].color
			return Command{Kind: KindColor, Color: &c, Selector: selector(s), Confidence: 0.9, Text: s}
		}
	}
	return unknown()
}

func parseBrightness(s string) Command {
	if m := percent.FindStringSubmatch(s); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v >= 0 && v <= lights.MaxBrightness {
			return Command{Kind: KindBrightness, Value: v, Selector: selector(s), Confidence: 0.95, Text: s}
		}
	}

	for i, patterns := range brightnessPatterns {
		if anyMatch(patterns, s) {
			return Command{Kind: KindBrightness, Value: brightnessKeywords[i].value, Selector: selector(s), Confidence: 0.85, Text: s}
		}
	}

	step := 25
	if strings.Contains(s, "a bit") || strings.Contains(s, "little") {
		step = 15
	}
	switch {
	case anyMatch(dimPatterns, s):
		return Command{Kind: KindBrightness, Action: ActionAdjust, Value: -step, Selector: selector(s), Confidence: 0.8, Text: s}
	case anyMatch(brightenPatterns, s):
		return Command{Kind: KindBrightness, Action: ActionAdjust, Value: step, Selector: selector(s), Confidence: 0.8, Text: s}
	}
	return unknown()
}

func parseTemperature(s string) Command {
	for i, patterns := range temperaturePatterns {
		if anyMatch(patterns, s) {
			return Command{Kind: KindTemperature, Kelvin: temperatureKeywords[i].value, Selector: selector(s), Confidence: 0.85, Text: s}
		}
	}
	if m := kelvinTerm.FindStringSubmatch(s); m != nil {
		if k, err := strconv.Atoi(m[1]); err == nil && k >= lights.MinKelvin && k <= lights.MaxKelvin {
			return Command{Kind: KindTemperature, Kelvin: k, Selector: selector(s), Confidence: 0.9, Text: s}
		}
	}
	return unknown()
}

func parseProfile(s string, saved []*store.Profile) Command {
	for _, p := range profilePatterns {
		m := p.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		query := strings.TrimSpace(m[1])
		if found := profiles.Match(saved, query); found != nil {
			return Command{Kind: KindProfile, Profile: found.Name, Selector: SelectAll, Confidence: 0.95, Text: s}
		}
		return Command{Kind: KindProfile, Profile: query, Selector: SelectAll, Confidence: 0.5, Text: s}
	}
	return unknown()
}

func selector(s string) Selector {
	if strings.Contains(s, "all") {
		return SelectAll
	}
	return SelectFirst
}

func unknown() Command {
	return Command{Kind: KindUnknown}
}

// Control converts the command into a change for a light currently in
// state current. Profile and unknown commands yield an empty change.
func (c Command) Control(current lights.Light) lights.PartialControl {
	var out lights.PartialControl
	c.apply(&out, current)
	return out
}

func (c Command) apply(out *lights.PartialControl, current lights.Light) {
	switch c.Kind {
	case KindPower:
		out.Power = lights.Bool(c.Action == "on")
	case KindColor:
		out.Hue = lights.Int(c.Color.Hue)
		out.Saturation = lights.Int(c.Color.Saturation)
	case KindBrightness:
		if c.Action == ActionAdjust {
			base := current.Brightness
			if out.Brightness != nil {
				base = *out.Brightness
			}
			out.Brightness = lights.Int(min(max(base+c.Value, 0), lights.MaxBrightness))
		} else {
			out.Brightness = lights.Int(c.Value)
		}
	case KindTemperature:
		// White light: kelvin only shows once saturation is gone.
		out.Kelvin = lights.Int(c.Kelvin)
		out.Saturation = lights.Int(0)
	case KindCompound:
		for _, p := range c.Parts {
			p.apply(out, current)
		}
	}
}

// Describe renders a one-line summary of c.
func Describe(c Command) string {
	switch c.Kind {
	case KindPower:
		target := "light"
		if c.Selector == SelectAll {
			target = "all lights"
		}
		return fmt.Sprintf("Turn %s %s", c.Action, target)
	case KindColor:
		if c.Color == nil {
			return "Change color"
		}
		name := colorName(*c.Color)
		if name == "" {
			name = "custom"
		}
		return "Set color to " + name
	case KindBrightness:
		if c.Action == ActionAdjust {
			if c.Value > 0 {
				return fmt.Sprintf("Increase brightness by %d%%", c.Value)
			}
			return fmt.Sprintf("Decrease brightness by %d%%", -c.Value)
		}
		return fmt.Sprintf("Set brightness to %d%%", c.Value)
	case KindTemperature:
		return fmt.Sprintf("Set color temperature to %dK", c.Kelvin)
	case KindProfile:
		return "Apply profile: " + c.Profile
	case KindCompound:
		parts := make([]string, len(c.Parts))
		for i, p := range c.Parts {
			parts[i] = Describe(p)
		}
		return strings.Join(parts, " + ")
	}
	return "Unknown command"
}
