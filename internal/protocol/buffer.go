package protocol

import (
	"sync/atomic"
	"time"

	"github.com/lumeworks/lume/internal/led"
)

// FrameBuffer is the handoff slot between a protocol's ingestion context and
// the render loop. The writer fills pix and then publishes with a ready-flag
// store; the single reader observes the flag, copies the pixels, and clears
// it. The atomic flag's release/acquire pairing is the only synchronization —
// writer and reader never touch the pixel array at the same time because the
// reader only looks after ready is set and the writer only rewrites after the
// protocol's update path runs again on the render loop.
type FrameBuffer struct {
	pix       [led.MaxCount]led.Color
	n         int
	ready     atomic.Bool
	lastWrite atomic.Int64 // unix nanos; zero until first write
}

// Write stores a frame and raises the ready flag.
func (b *FrameBuffer) Write(src []led.Color) {
	n := len(src)
	if n > led.MaxCount {
		n = led.MaxCount
	}
	copy(b.pix[:n], src[:n])
	b.n = n
	b.lastWrite.Store(time.Now().UnixNano())
	b.ready.Store(true)
}

// WriteRGB stores a frame from packed RGB bytes.
func (b *FrameBuffer) WriteRGB(raw []byte) {
	n := len(raw) / 3
	if n > led.MaxCount {
		n = led.MaxCount
	}
	for i := 0; i < n; i++ {
		b.pix[i] = led.Color{R: raw[i*3], G: raw[i*3+1], B: raw[i*3+2]}
	}
	b.n = n
	b.lastWrite.Store(time.Now().UnixNano())
	b.ready.Store(true)
}

// Ready reports whether an unconsumed frame is available.
func (b *FrameBuffer) Ready() bool { return b.ready.Load() }

// Clear drops the ready flag after the consumer has copied the frame.
func (b *FrameBuffer) Clear() { b.ready.Store(false) }

// Pixels returns the stored frame. Reader-side only, after Ready.
func (b *FrameBuffer) Pixels() []led.Color { return b.pix[:b.n] }

func (b *FrameBuffer) Len() int { return b.n }

// LastWrite returns the time of the most recent frame, zero if none yet.
func (b *FrameBuffer) LastWrite() time.Time {
	ns := b.lastWrite.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// TimedOut reports whether no frame has been written within d. A buffer that
// was never written is timed out.
func (b *FrameBuffer) TimedOut(d time.Duration) bool {
	ns := b.lastWrite.Load()
	if ns == 0 {
		return true
	}
	return time.Since(time.Unix(0, ns)) > d
}
