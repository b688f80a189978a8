package led

// MaxCount is the hard cap on strip length. Fixed-size buffers throughout the
// controller and protocol layers are sized against this.
const MaxCount = 1024

// Color is one RGB pixel. Plain value type so frames can be copied cheaply.
type Color struct {
	R, G, B uint8
}

var Black = Color{}

// Scale dims the color by scale/255.
func (c Color) Scale(scale uint8) Color {
	return Color{
		R: Scale8(c.R, scale),
		G: Scale8(c.G, scale),
		B: Scale8(c.B, scale),
	}
}

// Add saturating-adds another color channel-wise.
func (c Color) Add(o Color) Color {
	return Color{
		R: QAdd8(c.R, o.R),
		G: QAdd8(c.G, o.G),
		B: QAdd8(c.B, o.B),
	}
}

// Blend mixes a toward b by amount/255.
func Blend(a, b Color, amount uint8) Color {
	inv := 255 - amount
	return Color{
		R: uint8((uint16(a.R)*uint16(inv) + uint16(b.R)*uint16(amount)) / 255),
		G: uint8((uint16(a.G)*uint16(inv) + uint16(b.G)*uint16(amount)) / 255),
		B: uint8((uint16(a.B)*uint16(inv) + uint16(b.B)*uint16(amount)) / 255),
	}
}

// Scale8 scales v by scale/255.
func Scale8(v, scale uint8) uint8 {
	return uint8(uint16(v) * uint16(scale) / 255)
}

// QAdd8 adds with saturation at 255.
func QAdd8(a, b uint8) uint8 {
	s := uint16(a) + uint16(b)
	if s > 255 {
		return 255
	}
	return uint8(s)
}

// QSub8 subtracts with saturation at 0.
func QSub8(a, b uint8) uint8 {
	if b > a {
		return 0
	}
	return a - b
}

// HSV converts hue/sat/val (all 0-255) to RGB.
func HSV(h, s, v uint8) Color {
	if s == 0 {
		return Color{v, v, v}
	}
	region := h / 43
	rem := (h - region*43) * 6

	p := uint8(uint16(v) * uint16(255-s) / 255)
	q := uint8(uint16(v) * uint16(255-uint8(uint16(s)*uint16(rem)/255)) / 255)
	t := uint8(uint16(v) * uint16(255-uint8(uint16(s)*uint16(255-rem)/255)) / 255)

	switch region {
	case 0:
		return Color{v, t, p}
	case 1:
		return Color{q, v, p}
	case 2:
		return Color{p, v, t}
	case 3:
		return Color{p, q, v}
	case 4:
		return Color{t, p, v}
	default:
		return Color{v, p, q}
	}
}

// Fill sets every pixel in buf to c.
func Fill(buf []Color, c Color) {
	for i := range buf {
		buf[i] = c
	}
}

// Clear blanks buf.
func Clear(buf []Color) {
	for i := range buf {
		buf[i] = Color{}
	}
}
