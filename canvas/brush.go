package canvas

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

const (
	MinLineWidth     = 1
	MaxLineWidth     = 40
	defaultLineWidth = 3
	defaultColor     = "#000000"
)

var ErrInvalidColor = errors.New("canvas: color must be #rgb or #rrggbb")

// PaletteColor is one preset swatch offered by the brush picker.
type PaletteColor struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var presetPalette = []PaletteColor{
	{Name: "Black", Value: "#000000"},
	{Name: "Gray", Value: "#666666"},
	{Name: "White", Value: "#ffffff"},
	{Name: "Blue", Value: "#2563eb"},
	{Name: "Red", Value: "#dc2626"},
	{Name: "Green", Value: "#16a34a"},
	{Name: "Yellow", Value: "#ca8a04"},
	{Name: "Purple", Value: "#9333ea"},
}

// Palette returns a copy of the preset swatches.
func Palette() []PaletteColor {
	out := make([]PaletteColor, len(presetPalette))
	copy(out, presetPalette)
	return out
}

// Brush is the mutable stroke state of a surface. Color is kept while the
// eraser is on so that switching the eraser off restores it.
type Brush struct {
	Color  string `json:"color"`
	Width  int    `json:"width"`
	Eraser bool   `json:"eraser"`
}

// DefaultBrush returns the brush a new surface starts with.
func DefaultBrush() Brush {
	return Brush{Color: defaultColor, Width: defaultLineWidth}
}

// clampLineWidth keeps width within MinLineWidth..MaxLineWidth.
func clampLineWidth(width int) int {
	if width < MinLineWidth {
		return MinLineWidth
	}
	if width > MaxLineWidth {
		return MaxLineWidth
	}
	return width
}

// normalizeHexColor lowercases and expands #rgb to #rrggbb.
func normalizeHexColor(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(trimmed, "#") {
		trimmed = "#" + trimmed
	}
	hex := trimmed[1:]
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	case 6:
	default:
		return "", ErrInvalidColor
	}
	if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
		return "", ErrInvalidColor
	}
	return "#" + hex, nil
}

// ParseHexColor converts #rgb / #rrggbb into an opaque color.
func ParseHexColor(raw string) (color.RGBA, error) {
	normalized, err := normalizeHexColor(raw)
	if err != nil {
		return color.RGBA{}, err
	}
	value, err := strconv.ParseUint(normalized[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("canvas: parse color %q: %w", raw, err)
	}
	return color.RGBA{
		R: uint8(value >> 16),
		G: uint8(value >> 8),
		B: uint8(value),
		A: 0xff,
	}, nil
}
