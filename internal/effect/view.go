package effect

import "github.com/lumeworks/lume/internal/led"

// View is a bounds-safe window into a sub-range of the strip's pixel buffer.
// Effects render through it and never learn where their segment sits on the
// physical strip; reversal is handled transparently on indexed access.
type View struct {
	pix      []led.Color
	reversed bool
}

// NewView wraps a slice of the controller's pixel buffer.
func NewView(pix []led.Color, reversed bool) View {
	return View{pix: pix, reversed: reversed}
}

func (v View) Len() int     { return len(v.pix) }
func (v View) Valid() bool  { return len(v.pix) > 0 }
func (v View) Reversed() bool { return v.reversed }

func (v View) index(i int) int {
	if v.reversed {
		return len(v.pix) - 1 - i
	}
	return i
}

// Set writes pixel i; out-of-range writes are dropped.
func (v View) Set(i int, c led.Color) {
	if i < 0 || i >= len(v.pix) {
		return
	}
	v.pix[v.index(i)] = c
}

// At reads pixel i; out-of-range reads return black.
func (v View) At(i int) led.Color {
	if i < 0 || i >= len(v.pix) {
		return led.Color{}
	}
	return v.pix[v.index(i)]
}

// Fill sets every pixel to c.
func (v View) Fill(c led.Color) {
	for i := range v.pix {
		v.pix[i] = c
	}
}

// Clear blanks the view.
func (v View) Clear() { v.Fill(led.Color{}) }

// FadeBy dims every pixel by amount/255.
func (v View) FadeBy(amount uint8) {
	scale := 255 - amount
	for i := range v.pix {
		v.pix[i] = v.pix[i].Scale(scale)
	}
}

// ScaleBy dims every pixel to scale/255 of its value.
func (v View) ScaleBy(scale uint8) {
	for i := range v.pix {
		v.pix[i] = v.pix[i].Scale(scale)
	}
}

// Gradient fills start-to-end, honoring reversal.
func (v View) Gradient(from, to led.Color) {
	n := len(v.pix)
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		frac := uint8(0)
		if n > 1 {
			frac = uint8(i * 255 / (n - 1))
		}
		v.Set(i, led.Blend(from, to, frac))
	}
}
