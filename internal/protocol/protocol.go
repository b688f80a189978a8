// Package protocol defines the contract for external data feeds that can
// temporarily become the sole writer of the strip's pixel buffer, and the
// double-buffer handoff they publish frames through.
package protocol

import (
	"time"

	"github.com/lumeworks/lume/internal/led"
)

// MaxProtocols bounds how many protocol instances a controller accepts.
const MaxProtocols = 4

// Protocol is an external data feed (sACN, Art-Net, ...) that renders whole
// frames. Implementations ingest on their own goroutines but must write only
// into their own FrameBuffer; the controller copies out of it on its frame
// loop. Update, the buffer accessors and ClearFrameReady are called from the
// render loop only.
type Protocol interface {
	Name() string

	// Begin starts listeners; Stop tears them down.
	Begin() error
	Stop()

	SetEnabled(bool)
	Enabled() bool

	// Update ingests any pending data. Reports whether a new frame arrived.
	// Must never block.
	Update() bool

	// Active reports whether the protocol currently holds live data.
	Active() bool

	// TimedOut reports whether no frame has been published within d.
	TimedOut(d time.Duration) bool

	// Double-buffer accessors.
	FrameReady() bool
	Frame() []led.Color
	FrameLen() int
	ClearFrameReady()

	// Diagnostics.
	PacketCount() uint64
	LastPacketAge() time.Duration
	SourceName() string
	SourcePriority() uint8
}
