package effect

import (
	"testing"

	"github.com/lumeworks/lume/internal/led"
)

func testSchema() Schema {
	return Schema{
		Int("speed", "Speed", 128, 1, 255),
		Float("density", "Density", 0.5, 0.1, 1.0),
		ColorParam("color", "Color", led.Color{R: 255}),
		Bool("mirror", "Mirror", true),
		Enum("mode", "Mode", []string{"soft", "hard"}, 0),
	}
}

func TestValuesDefaults(t *testing.T) {
	v := NewValues(testSchema())
	if got := v.Int(0); got != 128 {
		t.Fatalf("default speed = %d, want 128", got)
	}
	if got := v.Float(1); got != 0.5 {
		t.Fatalf("default density = %v, want 0.5", got)
	}
	if got := v.Color(2); got != (led.Color{R: 255}) {
		t.Fatalf("default color = %v, want red", got)
	}
	if !v.Bool(3) {
		t.Fatal("default mirror should be true")
	}
}

func TestValuesClamping(t *testing.T) {
	v := NewValues(testSchema())

	v.SetInt(0, 0)
	if got := v.Int(0); got != 1 {
		t.Fatalf("speed below min stored %d, want clamp to 1", got)
	}

	v.SetFloat(1, 5.0)
	if got := v.Float(1); got != 1.0 {
		t.Fatalf("density above max stored %v, want clamp to 1.0", got)
	}
	v.SetFloat(1, 0.01)
	if got := v.Float(1); got != 0.1 {
		t.Fatalf("density below min stored %v, want clamp to 0.1", got)
	}

	v.SetEnum(4, 99)
	if got := v.Enum(4); got != 1 {
		t.Fatalf("enum out of range stored %d, want clamp to last option", got)
	}
}

func TestValuesSetByID(t *testing.T) {
	v := NewValues(testSchema())

	if !v.SetByID("speed", 200) {
		t.Fatal("SetByID speed should succeed")
	}
	if got := v.Int(0); got != 200 {
		t.Fatalf("speed = %d, want 200", got)
	}

	if !v.SetByID("mirror", 0) {
		t.Fatal("SetByID mirror should succeed")
	}
	if v.Bool(3) {
		t.Fatal("mirror should be false after SetByID(0)")
	}

	if v.SetByID("nope", 1) {
		t.Fatal("unknown id should be rejected")
	}
	if v.SetByID("color", 1) {
		t.Fatal("numeric set on a color param should be rejected")
	}
}

func TestValuesColorByID(t *testing.T) {
	v := NewValues(testSchema())
	want := led.Color{R: 10, G: 20, B: 30}
	if !v.ColorByID("color", want) {
		t.Fatal("ColorByID should succeed")
	}
	if got := v.Color(2); got != want {
		t.Fatalf("color = %v, want %v", got, want)
	}
	if v.ColorByID("speed", want) {
		t.Fatal("ColorByID on a non-color param should be rejected")
	}
}

func TestPaletteSampleEndpoints(t *testing.T) {
	p := PresetPalette(PaletteRainbow)
	// sampling must stay in-bounds across the whole position range,
	// including the wrap from the last entry back to the first
	for pos := 0; pos <= 255; pos++ {
		_ = p.Sample(uint8(pos))
	}
	if got := p.Sample(0); got != p[0] {
		t.Fatalf("Sample(0) = %v, want first entry %v", got, p[0])
	}
}

func TestPresetPaletteClampsUnknown(t *testing.T) {
	if PresetPalette(200) != PresetPalette(PaletteRainbow) {
		t.Fatal("unknown preset should fall back to rainbow")
	}
	if ParsePalette("no-such-palette") != PaletteRainbow {
		t.Fatal("unknown name should parse to rainbow")
	}
	if ParsePalette("ocean") != PaletteOcean {
		t.Fatal("ocean should round-trip")
	}
}
