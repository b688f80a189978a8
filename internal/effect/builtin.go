package effect

import (
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/lumeworks/lume/internal/led"
)

// Slot layout shared by the built-in schemas: slot 0 is speed wherever the
// effect is animated, so generic speed commands land predictably.
const (
	slotSpeed = 0
)

// sin8 returns a sine wave mapped to 0-255 for an 0-255 phase.
func sin8(phase uint8) uint8 {
	return uint8((math.Sin(float64(phase)/255*2*math.Pi) + 1) * 127.5)
}

// RegisterBuiltins installs the stock effect library. All stateful effects
// keep their working memory in the segment scratch block.
func RegisterBuiltins(r *Registry) error {
	builtins := []Info{
		{
			ID: "solid", DisplayName: "Solid Color", Category: "static",
			Schema: Schema{ColorParam("color", "Color", led.Color{R: 255})},
			Render: renderSolid,
		},
		{
			ID: "gradient", DisplayName: "Gradient", Category: "static",
			Schema: Schema{
				ColorParam("color", "Start Color", led.Color{R: 255}),
				ColorParam("color2", "End Color", led.Color{B: 255}),
			},
			Render: renderGradient,
		},
		{
			ID: "rainbow", DisplayName: "Rainbow", Category: "animated",
			Schema: Schema{Int("speed", "Speed", 128, 1, 255)},
			Render: renderRainbow,
		},
		{
			ID: "breathe", DisplayName: "Breathe", Category: "animated",
			Schema: Schema{
				Int("speed", "Speed", 96, 1, 255),
				ColorParam("color", "Color", led.Color{R: 255, G: 80}),
			},
			Render: renderBreathe,
		},
		{
			ID: "pulse", DisplayName: "Pulse", Category: "animated",
			Schema: Schema{
				Int("speed", "Speed", 128, 1, 255),
				ColorParam("color", "Color", led.Color{B: 255}),
			},
			Render: renderPulse,
		},
		{
			ID: "strobe", DisplayName: "Strobe", Category: "animated",
			Schema: Schema{
				Int("speed", "Speed", 200, 1, 255),
				ColorParam("color", "Color", led.Color{R: 255, G: 255, B: 255}),
			},
			Render: renderStrobe,
		},
		{
			ID: "theater", DisplayName: "Theater Chase", Category: "animated",
			Schema: Schema{
				Int("speed", "Speed", 128, 1, 255),
				ColorParam("color", "Color", led.Color{R: 255}),
			},
			Render: renderTheater,
		},
		{
			ID: "scanner", DisplayName: "Scanner", Category: "animated",
			Schema: Schema{
				Int("speed", "Speed", 128, 1, 255),
				Int("intensity", "Tail Fade", 64, 1, 255),
				ColorParam("color", "Color", led.Color{R: 255}),
			},
			ScratchBytes: 3,
			Render:       renderScanner,
		},
		{
			ID: "comet", DisplayName: "Comet", Category: "animated",
			Schema: Schema{
				Int("speed", "Speed", 128, 1, 255),
				Int("intensity", "Tail Fade", 40, 1, 255),
				ColorParam("color", "Color", led.Color{R: 120, G: 180, B: 255}),
			},
			ScratchBytes: 2,
			Render:       renderComet,
		},
		{
			ID: "fire", DisplayName: "Fire", Category: "animated",
			Schema: Schema{
				Int("speed", "Sparking", 120, 1, 255),
				Int("intensity", "Cooling", 55, 1, 255),
				PaletteSelect("palette", "Palette"),
			},
			ScratchBytes: ScratchSize,
			Render:       renderFire,
		},
		{
			ID: "twinkle", DisplayName: "Twinkle", Category: "animated",
			Schema: Schema{
				Int("speed", "Speed", 128, 1, 255),
				Int("intensity", "Density", 60, 1, 255),
				ColorParam("color", "Color", led.Color{R: 255, G: 220, B: 160}),
			},
			ScratchBytes: ScratchSize,
			Render:       renderTwinkle,
		},
		{
			ID: "sparkle", DisplayName: "Sparkle", Category: "animated",
			Schema: Schema{
				Int("speed", "Fade", 96, 1, 255),
				Int("intensity", "Density", 40, 0, 255),
				ColorParam("color", "Color", led.Color{R: 255, G: 255, B: 255}),
			},
			Render: renderSparkle,
		},
		{
			ID: "candle", DisplayName: "Candle", Category: "animated",
			Schema: Schema{
				ColorParam("color", "Color", led.Color{R: 255, G: 140, B: 30}),
			},
			ScratchBytes: 3,
			Render:       renderCandle,
		},
		{
			ID: "meteor", DisplayName: "Meteor", Category: "animated",
			Schema: Schema{
				Int("speed", "Speed", 150, 1, 255),
				Int("intensity", "Decay", 64, 1, 255),
				ColorParam("color", "Color", led.Color{R: 255, G: 255, B: 255}),
			},
			ScratchBytes: 2,
			Render:       renderMeteor,
		},
		{
			ID: "colorwaves", DisplayName: "Color Waves", Category: "animated",
			Schema: Schema{
				Int("speed", "Speed", 100, 1, 255),
				PaletteSelect("palette", "Palette"),
			},
			Render: renderColorWaves,
		},
	}
	for _, info := range builtins {
		if err := r.Register(info); err != nil {
			return err
		}
	}
	return nil
}

func renderSolid(v View, p *Values, _ uint64, _ bool, _ []byte) {
	v.Fill(p.Color(0))
}

func renderGradient(v View, p *Values, _ uint64, _ bool, _ []byte) {
	v.Gradient(p.Color(0), p.Color(1))
}

func renderRainbow(v View, p *Values, frame uint64, _ bool, _ []byte) {
	hue := uint8((frame * uint64(p.Int(slotSpeed))) >> 6)
	n := v.Len()
	if n == 0 {
		return
	}
	delta := 255 / n
	if delta == 0 {
		delta = 1
	}
	for i := 0; i < n; i++ {
		v.Set(i, led.HSV(hue+uint8(i*delta), 255, 255))
	}
}

func renderBreathe(v View, p *Values, frame uint64, _ bool, _ []byte) {
	phase := uint8((frame * uint64(p.Int(slotSpeed))) >> 6)
	level := sin8(phase)
	// Keep a dim floor so the strip never fully blanks mid-breath.
	if level < 16 {
		level = 16
	}
	v.Fill(p.Color(1).Scale(level))
}

func renderPulse(v View, p *Values, frame uint64, _ bool, _ []byte) {
	phase := uint8((frame * uint64(p.Int(slotSpeed))) >> 6)
	if phase < 128 {
		v.Fill(p.Color(1))
	} else {
		v.Fill(p.Color(1).Scale(40))
	}
}

func renderStrobe(v View, p *Values, frame uint64, _ bool, _ []byte) {
	period := uint64(256-int(p.Int(slotSpeed))) >> 3
	if period == 0 {
		period = 1
	}
	if (frame/period)%2 == 0 {
		v.Fill(p.Color(1))
	} else {
		v.Clear()
	}
}

func renderTheater(v View, p *Values, frame uint64, _ bool, _ []byte) {
	step := int((frame * uint64(p.Int(slotSpeed))) >> 8 % 3)
	c := p.Color(1)
	for i := 0; i < v.Len(); i++ {
		if i%3 == step {
			v.Set(i, c)
		} else {
			v.Set(i, led.Color{})
		}
	}
}

// scanner scratch: pos uint16, dir byte.
func renderScanner(v View, p *Values, _ uint64, first bool, scratch []byte) {
	n := v.Len()
	if n == 0 {
		return
	}
	if first {
		binary.LittleEndian.PutUint16(scratch[0:2], 0)
		scratch[2] = 0
	}
	pos := int(binary.LittleEndian.Uint16(scratch[0:2]))
	dir := scratch[2]

	v.FadeBy(p.Int(1))
	v.Set(pos, p.Color(2))

	step := 1 + int(p.Int(slotSpeed))/64
	if dir == 0 {
		pos += step
		if pos >= n-1 {
			pos = n - 1
			dir = 1
		}
	} else {
		pos -= step
		if pos <= 0 {
			pos = 0
			dir = 0
		}
	}
	binary.LittleEndian.PutUint16(scratch[0:2], uint16(pos))
	scratch[2] = dir
}

// comet scratch: pos uint16, wraps around the segment.
func renderComet(v View, p *Values, _ uint64, first bool, scratch []byte) {
	n := v.Len()
	if n == 0 {
		return
	}
	if first {
		binary.LittleEndian.PutUint16(scratch[0:2], 0)
	}
	pos := int(binary.LittleEndian.Uint16(scratch[0:2]))

	v.FadeBy(p.Int(1))
	v.Set(pos%n, p.Color(2))

	pos += 1 + int(p.Int(slotSpeed))/96
	if pos >= n {
		pos = 0
	}
	binary.LittleEndian.PutUint16(scratch[0:2], uint16(pos))
}

// fire scratch: one heat byte per pixel, capped at the scratch budget.
func renderFire(v View, p *Values, _ uint64, first bool, scratch []byte) {
	n := v.Len()
	if n > len(scratch) {
		n = len(scratch)
	}
	if n == 0 {
		return
	}
	heat := scratch[:n]
	if first {
		for i := range heat {
			heat[i] = 0
		}
	}
	cooling := int(p.Int(1))
	sparking := p.Int(slotSpeed)

	for i := 0; i < n; i++ {
		heat[i] = led.QSub8(heat[i], uint8(rand.Intn(cooling*10/n+2)))
	}
	for k := n - 1; k >= 2; k-- {
		heat[k] = uint8((int(heat[k-1]) + int(heat[k-2]) + int(heat[k-2])) / 3)
	}
	if uint8(rand.Intn(256)) < sparking {
		y := rand.Intn(7)
		if y < n {
			heat[y] = led.QAdd8(heat[y], uint8(160+rand.Intn(96)))
		}
	}
	pal := p.Palette()
	for j := 0; j < n; j++ {
		v.Set(j, pal.Sample(led.Scale8(heat[j], 240)))
	}
}

// twinkle scratch: one phase byte per pixel; zero means dark.
func renderTwinkle(v View, p *Values, _ uint64, first bool, scratch []byte) {
	n := v.Len()
	if n > len(scratch) {
		n = len(scratch)
	}
	if n == 0 {
		return
	}
	phase := scratch[:n]
	if first {
		for i := range phase {
			phase[i] = 0
		}
	}
	step := 1 + p.Int(slotSpeed)/32
	density := int(p.Int(1))
	c := p.Color(2)

	for i := 0; i < n; i++ {
		if phase[i] == 0 {
			if rand.Intn(1024) < density {
				phase[i] = 1
			}
			v.Set(i, led.Color{})
			continue
		}
		v.Set(i, c.Scale(sin8(phase[i])))
		next := int(phase[i]) + int(step)
		if next >= 256 {
			next = 0
		}
		phase[i] = uint8(next)
	}
}

func renderSparkle(v View, p *Values, _ uint64, _ bool, _ []byte) {
	v.FadeBy(p.Int(slotSpeed))
	density := int(p.Int(1))
	n := v.Len()
	for i := 0; i < n; i++ {
		if rand.Intn(1024) < density {
			v.Set(i, p.Color(2))
		}
	}
}

// candle scratch: level, target, hold counter.
func renderCandle(v View, p *Values, _ uint64, first bool, scratch []byte) {
	if first {
		scratch[0] = 180
		scratch[1] = 180
		scratch[2] = 0
	}
	level, target, hold := scratch[0], scratch[1], scratch[2]
	if hold == 0 {
		target = uint8(120 + rand.Intn(136))
		hold = uint8(2 + rand.Intn(6))
	} else {
		hold--
	}
	switch {
	case level < target:
		level = led.QAdd8(level, 8)
	case level > target:
		level = led.QSub8(level, 8)
	}
	scratch[0], scratch[1], scratch[2] = level, target, hold
	v.Fill(p.Color(0).Scale(level))
}

// meteor scratch: pos uint16; trail decays randomly for a ragged tail.
func renderMeteor(v View, p *Values, _ uint64, first bool, scratch []byte) {
	n := v.Len()
	if n == 0 {
		return
	}
	if first {
		binary.LittleEndian.PutUint16(scratch[0:2], 0)
	}
	pos := int(binary.LittleEndian.Uint16(scratch[0:2]))

	decay := p.Int(1)
	for i := 0; i < n; i++ {
		if rand.Intn(10) > 4 {
			v.Set(i, v.At(i).Scale(255-decay))
		}
	}
	head := p.Color(2)
	for i := 0; i < 3; i++ {
		v.Set((pos+i)%n, head)
	}
	pos += 1 + int(p.Int(slotSpeed))/64
	if pos >= n {
		pos = 0
	}
	binary.LittleEndian.PutUint16(scratch[0:2], uint16(pos))
}

func renderColorWaves(v View, p *Values, frame uint64, _ bool, _ []byte) {
	base := uint8((frame * uint64(p.Int(slotSpeed))) >> 7)
	pal := p.Palette()
	n := v.Len()
	for i := 0; i < n; i++ {
		wave := sin8(uint8(i*7) + base)
		v.Set(i, pal.Sample(base+uint8(i*2)).Scale(wave/2+128))
	}
}
