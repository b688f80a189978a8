package core

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumeworks/lume/internal/effect"
	"github.com/lumeworks/lume/internal/led"
	"github.com/lumeworks/lume/internal/protocol"
)

func newTestController(t *testing.T, leds int, drv led.Driver) *Controller {
	t.Helper()
	reg := effect.NewRegistry()
	if err := effect.RegisterBuiltins(reg); err != nil {
		t.Fatalf("builtins: %v", err)
	}
	ctrl, err := NewController(zerolog.Nop(), reg, Options{
		LEDCount:  leds,
		TargetFPS: 60,
		Driver:    drv,
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	return ctrl
}

// tickN advances the controller n frames, spacing the injected clock past the
// frame interval each time.
func tickN(c *Controller, base time.Time, n int) time.Time {
	for i := 0; i < n; i++ {
		base = base.Add(20 * time.Millisecond)
		c.Tick(base)
	}
	return base
}

func TestControllerSolidColorEndToEnd(t *testing.T) {
	drv := led.NewSim()
	ctrl := newTestController(t, 100, drv)
	if _, err := ctrl.CreateFullStrip(); err != nil {
		t.Fatalf("full strip: %v", err)
	}

	ctrl.Enqueue(SetEffect(0, "solid"))
	ctrl.Enqueue(SetColor(0, led.Color{R: 10, G: 20, B: 30}))
	tickN(ctrl, time.Now(), 2)

	frame := drv.Last()
	if len(frame) != 100 {
		t.Fatalf("frame length = %d, want 100", len(frame))
	}
	for i, c := range frame {
		if c != (led.Color{R: 10, G: 20, B: 30}) {
			t.Fatalf("pixel %d = %v, want (10,20,30)", i, c)
		}
	}
}

func TestControllerFPSGate(t *testing.T) {
	ctrl := newTestController(t, 10, led.NewSim())
	base := time.Now()

	base = base.Add(20 * time.Millisecond)
	ctrl.Tick(base)
	start := ctrl.FrameCount()

	// same instant and sub-interval instants must not produce frames
	ctrl.Tick(base)
	ctrl.Tick(base.Add(time.Millisecond))
	if ctrl.FrameCount() != start {
		t.Fatalf("frame count advanced %d within one interval", ctrl.FrameCount()-start)
	}

	ctrl.Tick(base.Add(20 * time.Millisecond))
	if ctrl.FrameCount() != start+1 {
		t.Fatalf("frame count = %d, want exactly one more frame", ctrl.FrameCount())
	}
}

func TestControllerPowerOffBlanksAndFreezesClock(t *testing.T) {
	drv := led.NewSim()
	ctrl := newTestController(t, 8, drv)
	ctrl.CreateFullStrip()
	ctrl.Enqueue(SetEffect(0, "solid"))
	base := tickN(ctrl, time.Now(), 2)

	ctrl.Enqueue(SetPower(false))
	base = tickN(ctrl, base, 1)
	frozen := ctrl.FrameCount()

	for _, c := range drv.Last() {
		if c != (led.Color{}) {
			t.Fatalf("powered-off strip shows %v", c)
		}
	}

	tickN(ctrl, base, 3)
	if ctrl.FrameCount() != frozen {
		t.Fatal("animation clock advanced while powered off")
	}
	if ctrl.Power() {
		t.Fatal("power state should be off")
	}
}

func TestControllerGlobalBrightness(t *testing.T) {
	drv := led.NewSim()
	ctrl := newTestController(t, 4, drv)
	ctrl.CreateFullStrip()
	ctrl.Enqueue(SetEffect(0, "solid"))
	ctrl.Enqueue(SetColor(0, led.Color{R: 200, G: 200, B: 200}))
	ctrl.Enqueue(SetGlobalBrightness(128))
	tickN(ctrl, time.Now(), 2)

	got := drv.Last()[0]
	if got.R > 101 || got.R < 99 {
		t.Fatalf("half global brightness gave R=%d, want ~100", got.R)
	}
}

func TestControllerUnknownSegmentDiscarded(t *testing.T) {
	ctrl := newTestController(t, 8, led.NewSim())
	ctrl.CreateFullStrip()
	ctrl.Enqueue(SetEffect(42, "solid")) // no such segment
	tickN(ctrl, time.Now(), 1)           // must not panic
	if ctrl.SegmentCount() != 1 {
		t.Fatalf("segment count = %d, want 1", ctrl.SegmentCount())
	}
}

func TestControllerSegmentBounds(t *testing.T) {
	ctrl := newTestController(t, 10, led.NewSim())
	if _, err := ctrl.CreateSegment(5, 6, false); err == nil {
		t.Fatal("segment past strip end should be rejected")
	}
	if _, err := ctrl.CreateSegment(0, 0, false); err == nil {
		t.Fatal("zero-length segment should be rejected")
	}
	for i := 0; i < MaxSegments; i++ {
		if _, err := ctrl.CreateSegment(0, 1, false); err != nil {
			t.Fatalf("segment %d rejected: %v", i, err)
		}
	}
	if _, err := ctrl.CreateSegment(0, 1, false); err == nil {
		t.Fatal("segment table past capacity should reject")
	}
}

func TestControllerRemoveSegmentCompacts(t *testing.T) {
	ctrl := newTestController(t, 10, led.NewSim())
	a, _ := ctrl.CreateSegment(0, 2, false)
	b, _ := ctrl.CreateSegment(2, 2, false)
	c, _ := ctrl.CreateSegment(4, 2, false)
	_ = a

	if !ctrl.RemoveSegment(b.ID()) {
		t.Fatal("remove failed")
	}
	if ctrl.SegmentCount() != 2 {
		t.Fatalf("count = %d, want 2", ctrl.SegmentCount())
	}
	if ctrl.Segment(c.ID()) == nil {
		t.Fatal("later segment lost after compaction")
	}
	if ctrl.RemoveSegment(99) {
		t.Fatal("removing unknown id should report false")
	}
}

// fakeProtocol is a hand-driven protocol.Protocol for takeover tests.
type fakeProtocol struct {
	name    string
	enabled bool
	fb      protocol.FrameBuffer
}

func (f *fakeProtocol) Name() string                  { return f.name }
func (f *fakeProtocol) Begin() error                  { return nil }
func (f *fakeProtocol) Stop()                         {}
func (f *fakeProtocol) SetEnabled(e bool)             { f.enabled = e }
func (f *fakeProtocol) Enabled() bool                 { return f.enabled }
func (f *fakeProtocol) Update() bool                  { return false }
func (f *fakeProtocol) Active() bool                  { return f.fb.Ready() }
func (f *fakeProtocol) TimedOut(d time.Duration) bool { return f.fb.TimedOut(d) }
func (f *fakeProtocol) FrameReady() bool              { return f.fb.Ready() }
func (f *fakeProtocol) Frame() []led.Color            { return f.fb.Pixels() }
func (f *fakeProtocol) FrameLen() int                 { return f.fb.Len() }
func (f *fakeProtocol) ClearFrameReady()              { f.fb.Clear() }
func (f *fakeProtocol) PacketCount() uint64           { return 0 }
func (f *fakeProtocol) LastPacketAge() time.Duration  { return 0 }
func (f *fakeProtocol) SourceName() string            { return "" }
func (f *fakeProtocol) SourcePriority() uint8         { return 100 }

func TestControllerProtocolTakeoverAndHandback(t *testing.T) {
	drv := led.NewSim()
	reg := effect.NewRegistry()
	if err := effect.RegisterBuiltins(reg); err != nil {
		t.Fatalf("builtins: %v", err)
	}
	ctrl, err := NewController(zerolog.Nop(), reg, Options{
		LEDCount:        4,
		TargetFPS:       60,
		Driver:          drv,
		ProtocolTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	ctrl.CreateFullStrip()
	ctrl.Enqueue(SetEffect(0, "solid"))
	ctrl.Enqueue(SetColor(0, led.Color{R: 255}))

	fp := &fakeProtocol{name: "fake", enabled: true}
	if err := ctrl.RegisterProtocol(fp); err != nil {
		t.Fatalf("register: %v", err)
	}
	base := tickN(ctrl, time.Now(), 2)
	if drv.Last()[0] != (led.Color{R: 255}) {
		t.Fatal("segment rendering should run before the protocol has data")
	}

	// protocol publishes a frame: it must take over the whole strip
	fp.fb.Write([]led.Color{{B: 50}, {B: 50}, {B: 50}, {B: 50}})
	base = tickN(ctrl, base, 1)
	if got := drv.Last()[0]; got != (led.Color{B: 50}) {
		t.Fatalf("pixel = %v, want protocol frame to drive the strip", got)
	}

	// silence past the timeout hands the strip back to the segments
	time.Sleep(60 * time.Millisecond)
	tickN(ctrl, base, 2)
	if got := drv.Last()[0]; got != (led.Color{R: 255}) {
		t.Fatalf("pixel = %v, want segment rendering after protocol timeout", got)
	}
}

func TestControllerProtocolTableBounded(t *testing.T) {
	ctrl := newTestController(t, 4, led.NewSim())
	for i := 0; i < protocol.MaxProtocols; i++ {
		if err := ctrl.RegisterProtocol(&fakeProtocol{name: "p"}); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if err := ctrl.RegisterProtocol(&fakeProtocol{name: "extra"}); err == nil {
		t.Fatal("protocol table past capacity should reject")
	}
}

func TestControllerNightlightFadesDown(t *testing.T) {
	ctrl := newTestController(t, 4, led.NewSim())
	ctrl.CreateFullStrip()
	base := time.Now()
	base = base.Add(20 * time.Millisecond)
	ctrl.Tick(base) // establish lastFrame for the fade start

	ctrl.Enqueue(Nightlight(time.Second, 0))
	base = tickN(ctrl, base, 1)

	mid := ctrl.Brightness()
	if mid == 0 {
		t.Fatal("fade should be gradual, not instant")
	}

	// jump past the deadline
	ctrl.Tick(base.Add(2 * time.Second))
	if ctrl.Brightness() != 0 {
		t.Fatalf("brightness = %d, want 0 at fade end", ctrl.Brightness())
	}
	if ctrl.Power() {
		t.Fatal("fade to zero should power off")
	}
}
