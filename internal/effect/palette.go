package effect

import "github.com/lumeworks/lume/internal/led"

// Palette is a 16-entry color table sampled with linear interpolation,
// matching the classic strip-library palette layout.
type Palette [16]led.Color

// Sample interpolates a color at pos (0-255 spans the whole table).
func (p *Palette) Sample(pos uint8) led.Color {
	idx := pos >> 4
	frac := (pos & 0x0F) << 4
	a := p[idx]
	b := p[(idx+1)&0x0F]
	return led.Blend(a, b, frac)
}

// PalettePreset names a built-in palette.
type PalettePreset uint8

const (
	PaletteRainbow PalettePreset = iota
	PaletteLava
	PaletteOcean
	PaletteParty
	PaletteForest
	PaletteHeat
	PaletteSunset
	PaletteIce
	paletteCount
)

var paletteNames = [paletteCount]string{
	"rainbow", "lava", "ocean", "party", "forest", "heat", "sunset", "ice",
}

func (p PalettePreset) String() string {
	if p < paletteCount {
		return paletteNames[p]
	}
	return "rainbow"
}

// ParsePalette maps a name back to a preset; unknown names fall back to rainbow.
func ParsePalette(name string) PalettePreset {
	for i, n := range paletteNames {
		if n == name {
			return PalettePreset(i)
		}
	}
	return PaletteRainbow
}

// PaletteNames lists the built-in palette names in preset order.
func PaletteNames() []string {
	return append([]string(nil), paletteNames[:]...)
}

// PresetPalette returns the table for a preset, clamping unknown values to
// rainbow.
func PresetPalette(p PalettePreset) Palette {
	if p >= paletteCount {
		p = PaletteRainbow
	}
	return Palettes[p]
}

// Palettes holds the built-in tables, indexed by preset.
var Palettes = [paletteCount]Palette{
	PaletteRainbow: gradient4(
		led.Color{R: 255}, led.Color{R: 255, G: 255},
		led.Color{G: 255, B: 255}, led.Color{R: 128, B: 255},
	),
	PaletteLava: gradient4(
		led.Color{}, led.Color{R: 128},
		led.Color{R: 255, G: 60}, led.Color{R: 255, G: 200, B: 40},
	),
	PaletteOcean: gradient4(
		led.Color{B: 80}, led.Color{G: 60, B: 160},
		led.Color{G: 140, B: 220}, led.Color{R: 120, G: 220, B: 255},
	),
	PaletteParty: gradient4(
		led.Color{R: 255, B: 100}, led.Color{G: 255, B: 255},
		led.Color{R: 255, G: 255}, led.Color{R: 255, B: 255},
	),
	PaletteForest: gradient4(
		led.Color{G: 60}, led.Color{G: 140, R: 20},
		led.Color{G: 200, R: 80}, led.Color{R: 160, G: 240, B: 60},
	),
	PaletteHeat: gradient4(
		led.Color{}, led.Color{R: 180},
		led.Color{R: 255, G: 120}, led.Color{R: 255, G: 255, B: 200},
	),
	PaletteSunset: gradient4(
		led.Color{R: 255, G: 100}, led.Color{R: 255, G: 50},
		led.Color{R: 200, B: 50}, led.Color{R: 100, B: 100},
	),
	PaletteIce: gradient4(
		led.Color{B: 50}, led.Color{G: 50, B: 100},
		led.Color{R: 50, G: 100, B: 200}, led.Color{R: 200, G: 220, B: 255},
	),
}

// gradient4 expands four anchors into a 16-entry table.
func gradient4(a, b, c, d led.Color) Palette {
	var p Palette
	anchors := [4]led.Color{a, b, c, d}
	for i := 0; i < 16; i++ {
		seg := i / 5
		if seg > 3 {
			seg = 3
		}
		next := seg + 1
		if next > 3 {
			next = 3
		}
		span := 5
		frac := uint8((i % 5) * 255 / span)
		p[i] = led.Blend(anchors[seg], anchors[next], frac)
	}
	return p
}
