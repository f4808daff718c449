package command

import (
	"fmt"
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Color is a hue in degrees and a saturation percentage.
type Color struct {
	Hue        int
	Saturation int
}

type namedColor struct {
	name  string
	color Color
}

// namedColors is ordered; parsing tries names in this order.
var namedColors = []namedColor{
	{"red", Color{0, 100}},
	{"orange", Color{30, 100}},
	{"yellow", Color{60, 100}},
	{"lime", Color{90, 100}},
	{"green", Color{120, 100}},
	{"cyan", Color{180, 100}},
	{"blue", Color{240, 100}},
	{"purple", Color{270, 100}},
	{"violet", Color{270, 100}},
	{"magenta", Color{300, 100}},
	{"pink", Color{330, 100}},
	{"white", Color{0, 0}},
	{"warm", Color{30, 20}},
	{"cool", Color{200, 20}},
	{"turquoise", Color{180, 80}},
	{"teal", Color{180, 60}},
	{"indigo", Color{260, 100}},
	{"lavender", Color{270, 40}},
	{"peach", Color{20, 70}},
	{"coral", Color{15, 80}},
}

// ColorNames lists the recognized color names.
func ColorNames() []string {
	names := make([]string, len(namedColors))
	for i, c := range namedColors {
		names[i] = c.name
	}
	return names
}

// ParseColor resolves a color name or a #rgb / #rrggbb hex value.
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range namedColors {
		if c.name == s {
			return c.color, nil
		}
	}

	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("unknown color %q", strings.TrimPrefix(s, "#"))
	}
	h, sat, _ := c.Hsv()
	hue := int(math.Round(h)) % 360
	return Color{Hue: hue, Saturation: int(math.Round(sat * 100))}, nil
}

// colorName returns the table name for c, or "" for a custom color.
func colorName(c Color) string {
	for _, nc := range namedColors {
		if nc.color == c {
			return nc.name
		}
	}
	return ""
}
