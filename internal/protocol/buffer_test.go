package protocol

import (
	"testing"
	"time"

	"github.com/lumeworks/lume/internal/led"
)

func TestFrameBufferHandoff(t *testing.T) {
	var fb FrameBuffer
	if fb.Ready() {
		t.Fatal("fresh buffer should not be ready")
	}
	if !fb.TimedOut(time.Hour) {
		t.Fatal("never-written buffer is always timed out")
	}

	fb.Write([]led.Color{{R: 1}, {G: 2}})
	if !fb.Ready() {
		t.Fatal("buffer should be ready after write")
	}
	if fb.Len() != 2 {
		t.Fatalf("len = %d, want 2", fb.Len())
	}
	if fb.Pixels()[1] != (led.Color{G: 2}) {
		t.Fatalf("pixel 1 = %v", fb.Pixels()[1])
	}

	fb.Clear()
	if fb.Ready() {
		t.Fatal("buffer should not be ready after consumer clear")
	}
	// clearing the ready flag must not count as staleness
	if fb.TimedOut(time.Minute) {
		t.Fatal("recently written buffer should not be timed out")
	}
}

func TestFrameBufferRGB(t *testing.T) {
	var fb FrameBuffer
	fb.WriteRGB([]byte{10, 20, 30, 40, 50, 60})
	if fb.Len() != 2 {
		t.Fatalf("len = %d, want 2", fb.Len())
	}
	if fb.Pixels()[0] != (led.Color{R: 10, G: 20, B: 30}) {
		t.Fatalf("pixel 0 = %v", fb.Pixels()[0])
	}
}

func TestFrameBufferCapsAtMax(t *testing.T) {
	var fb FrameBuffer
	fb.Write(make([]led.Color, led.MaxCount+10))
	if fb.Len() != led.MaxCount {
		t.Fatalf("len = %d, want cap at %d", fb.Len(), led.MaxCount)
	}
}
