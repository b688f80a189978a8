package effect

import (
	"testing"

	"github.com/lumeworks/lume/internal/led"
)

func TestViewBoundsSafe(t *testing.T) {
	buf := make([]led.Color, 4)
	v := NewView(buf, false)

	v.Set(-1, led.Color{R: 1})
	v.Set(4, led.Color{R: 1})
	for i, c := range buf {
		if c != (led.Color{}) {
			t.Fatalf("out-of-range write landed at %d", i)
		}
	}
	if v.At(-1) != (led.Color{}) || v.At(4) != (led.Color{}) {
		t.Fatal("out-of-range read should return black")
	}
}

func TestViewReversal(t *testing.T) {
	buf := make([]led.Color, 3)
	v := NewView(buf, true)

	v.Set(0, led.Color{R: 10})
	if buf[2] != (led.Color{R: 10}) {
		t.Fatalf("reversed Set(0) wrote %v at wrong index", buf)
	}
	if got := v.At(0); got != (led.Color{R: 10}) {
		t.Fatalf("reversed At(0) = %v, want read-back of own write", got)
	}
}

func TestViewFadeBy(t *testing.T) {
	buf := []led.Color{{R: 200, G: 100, B: 50}}
	v := NewView(buf, false)
	v.FadeBy(255)
	if buf[0] != (led.Color{}) {
		t.Fatalf("full fade left %v", buf[0])
	}
}

func TestViewGradientEndpoints(t *testing.T) {
	buf := make([]led.Color, 5)
	v := NewView(buf, false)
	from, to := led.Color{R: 255}, led.Color{B: 255}
	v.Gradient(from, to)
	if buf[0] != from {
		t.Fatalf("gradient start = %v, want %v", buf[0], from)
	}
	if buf[4] != to {
		t.Fatalf("gradient end = %v, want %v", buf[4], to)
	}
}
