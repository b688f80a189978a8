package core

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumeworks/lume/internal/effect"
	"github.com/lumeworks/lume/internal/led"
	"github.com/lumeworks/lume/internal/protocol"
)

// DefaultFPS is the frame-rate target when none is configured.
const DefaultFPS = 60

// Nightlight duration bounds.
const (
	NightlightMinDuration = time.Second
	NightlightMaxDuration = time.Hour
)

// Controller owns the pixel buffer, the segments, the command queue and the
// registered protocols, and runs the frame loop. The loop is driven by an
// external periodic tick; everything that mutates controller state funnels
// through the command queue and executes on the tick, so the pixel buffer has
// exactly one writer per frame.
type Controller struct {
	log zerolog.Logger
	reg *effect.Registry
	drv led.Driver

	pix      [led.MaxCount]led.Color
	out      [led.MaxCount]led.Color
	ledCount int

	segments  [MaxSegments]Segment
	segCount  int
	nextSegID uint8

	queue *CommandQueue

	protocols   []protocol.Protocol
	active      protocol.Protocol
	protTimeout time.Duration

	power      bool
	brightness uint8
	targetFPS  int

	frame     uint64
	lastFrame time.Time

	fpsWindow time.Time
	fpsFrames int
	actualFPS int

	night nightlight

	onFrame func([]led.Color)

	// snapshot of the last presented frame for read-only consumers
	snapMu   sync.Mutex
	snapshot []led.Color
}

type nightlight struct {
	active bool
	start  time.Time
	dur    time.Duration
	from   uint8
	target uint8
}

// Options configures a Controller.
type Options struct {
	LEDCount        int
	TargetFPS       int
	Brightness      uint8
	ProtocolTimeout time.Duration
	Driver          led.Driver
	OnFrame         func([]led.Color)
}

// NewController builds a controller for a strip of opts.LEDCount pixels,
// capped at the compile-time maximum.
func NewController(log zerolog.Logger, reg *effect.Registry, opts Options) (*Controller, error) {
	if reg == nil {
		return nil, errors.New("nil effect registry")
	}
	if opts.LEDCount <= 0 {
		return nil, errors.New("led count must be positive")
	}
	n := opts.LEDCount
	if n > led.MaxCount {
		n = led.MaxCount
	}
	fps := opts.TargetFPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	bri := opts.Brightness
	if bri == 0 {
		bri = 255
	}
	pt := opts.ProtocolTimeout
	if pt <= 0 {
		pt = 5 * time.Second
	}
	c := &Controller{
		log:         log.With().Str("comp", "controller").Logger(),
		reg:         reg,
		drv:         opts.Driver,
		ledCount:    n,
		power:       true,
		brightness:  bri,
		targetFPS:   fps,
		protTimeout: pt,
		onFrame:     opts.OnFrame,
		snapshot:    make([]led.Color, n),
	}
	c.queue = NewCommandQueue(log)
	return c, nil
}

// Enqueue submits a command from any goroutine. Returns false on overflow
// (the command was still accepted; the oldest pending one was dropped).
func (c *Controller) Enqueue(cmd Command) bool { return c.queue.Enqueue(cmd) }

// RegisterProtocol adds a protocol instance, bounded by MaxProtocols.
// Call during startup, before the tick loop runs.
func (c *Controller) RegisterProtocol(p protocol.Protocol) error {
	if len(c.protocols) >= protocol.MaxProtocols {
		return errors.New("protocol table full")
	}
	c.protocols = append(c.protocols, p)
	c.log.Info().Str("protocol", p.Name()).Msg("protocol registered")
	return nil
}

// Tick runs one frame-loop iteration. Call it from a single goroutine on a
// periodic timer; it returns immediately when the frame interval has not yet
// elapsed. now is injected so tests can drive time.
func (c *Controller) Tick(now time.Time) {
	interval := time.Second / time.Duration(c.targetFPS)
	if now.Sub(c.lastFrame) < interval {
		return
	}
	c.lastFrame = now

	c.drainCommands()
	c.updateFPS(now)
	c.updateNightlight(now)

	if !c.power {
		led.Clear(c.pix[:c.ledCount])
		c.present()
		return
	}

	// Protocol arbitration: an active protocol pre-empts segment rendering
	// until it is disabled or times out. First-ready-wins among protocols
	// polled in the same tick.
	for _, p := range c.protocols {
		if p.Enabled() {
			p.Update()
		}
	}
	if c.active != nil {
		if !c.active.Enabled() || c.active.TimedOut(c.protTimeout) {
			c.log.Info().Str("protocol", c.active.Name()).Msg("protocol released control")
			c.active = nil
		}
	}
	if c.active == nil {
		for _, p := range c.protocols {
			if p.Enabled() && p.FrameReady() {
				c.active = p
				c.log.Info().Str("protocol", p.Name()).Msg("protocol took control")
				break
			}
		}
	}

	if c.active != nil {
		if c.active.FrameReady() {
			src := c.active.Frame()
			n := len(src)
			if n > c.ledCount {
				n = c.ledCount
			}
			copy(c.pix[:n], src[:n])
			c.active.ClearFrameReady()
		}
		c.present()
		c.frame++
		return
	}

	led.Clear(c.pix[:c.ledCount])
	for i := 0; i < c.segCount; i++ {
		c.segments[i].Render(c.pix[:c.ledCount], c.frame)
	}
	c.present()
	c.frame++
}

func (c *Controller) drainCommands() {
	for {
		cmd, ok := c.queue.Dequeue()
		if !ok {
			return
		}
		c.execute(cmd)
	}
}

func (c *Controller) execute(cmd Command) {
	switch cmd.Type {
	case CmdSetPower:
		c.power = cmd.On
	case CmdSetGlobalBrightness:
		c.brightness = cmd.Level
		c.night.active = false
	case CmdNightlight:
		c.startNightlight(cmd.Duration, cmd.Level)
	case CmdCreateSegment:
		if _, err := c.CreateSegment(cmd.Start, cmd.Length, cmd.Reversed); err != nil {
			c.log.Warn().Err(err).Msg("create segment rejected")
		}
	case CmdRemoveSegment:
		if !c.RemoveSegment(cmd.Segment) {
			c.log.Debug().Uint8("segment", cmd.Segment).Msg("remove: unknown segment")
		}
	case CmdSetEffect, CmdSetParam, CmdSetColor, CmdSetPalette, CmdSetBrightness:
		c.executeSegment(cmd)
	default:
		c.log.Debug().Str("cmd", cmd.Type.String()).Msg("unknown command discarded")
	}
}

func (c *Controller) executeSegment(cmd Command) {
	seg := c.segment(cmd.Segment)
	if seg == nil {
		c.log.Debug().Uint8("segment", cmd.Segment).Str("cmd", cmd.Type.String()).
			Msg("command for unknown segment discarded")
		return
	}
	switch cmd.Type {
	case CmdSetEffect:
		info, ok := c.reg.Find(cmd.Effect)
		if !ok {
			c.log.Debug().Str("effect", cmd.Effect).Msg("unknown effect")
			return
		}
		if !seg.SetEffect(info) {
			c.log.Warn().Str("effect", cmd.Effect).Uint8("segment", seg.ID()).
				Msg("effect rejected: scratch requirement over budget")
		}
	case CmdSetParam:
		if !seg.Params().SetByID(cmd.Param, cmd.Value) {
			c.log.Debug().Str("param", cmd.Param).Msg("unknown parameter")
		}
	case CmdSetColor:
		id := cmd.ColorID
		if id == "" {
			id = "color"
		}
		seg.Params().ColorByID(id, cmd.Color)
	case CmdSetPalette:
		seg.Params().SetPalette(effect.PresetPalette(effect.PalettePreset(cmd.Palette)))
	case CmdSetBrightness:
		seg.SetBrightness(cmd.Level)
	}
}

// CreateSegment allocates a segment slot. Bounds are validated against the
// strip; the table is bounded by MaxSegments.
func (c *Controller) CreateSegment(start, length uint16, reversed bool) (*Segment, error) {
	if c.segCount >= MaxSegments {
		return nil, errors.New("segment table full")
	}
	if length == 0 {
		return nil, errors.New("segment length must be positive")
	}
	if int(start)+int(length) > c.ledCount {
		return nil, errors.New("segment exceeds strip bounds")
	}
	seg := &c.segments[c.segCount]
	seg.reset()
	seg.id = c.nextSegID
	seg.start = start
	seg.length = length
	seg.reversed = reversed
	seg.brightness = 255
	seg.active = true
	c.nextSegID++
	c.segCount++
	return seg, nil
}

// RemoveSegment frees a slot and compacts the table.
func (c *Controller) RemoveSegment(id uint8) bool {
	for i := 0; i < c.segCount; i++ {
		if c.segments[i].id == id {
			copy(c.segments[i:], c.segments[i+1:c.segCount])
			c.segCount--
			c.segments[c.segCount].reset()
			return true
		}
	}
	return false
}

// CreateFullStrip replaces all segments with one spanning the whole strip.
func (c *Controller) CreateFullStrip() (*Segment, error) {
	for c.segCount > 0 {
		c.segCount--
		c.segments[c.segCount].reset()
	}
	return c.CreateSegment(0, uint16(c.ledCount), false)
}

func (c *Controller) segment(id uint8) *Segment {
	for i := 0; i < c.segCount; i++ {
		if c.segments[i].id == id {
			return &c.segments[i]
		}
	}
	return nil
}

// Segment returns the segment with the given id. Render-loop context only;
// concurrent readers should use SegmentStatuses.
func (c *Controller) Segment(id uint8) *Segment { return c.segment(id) }

func (c *Controller) startNightlight(d time.Duration, target uint8) {
	if d < NightlightMinDuration {
		d = NightlightMinDuration
	}
	if d > NightlightMaxDuration {
		d = NightlightMaxDuration
	}
	c.night = nightlight{
		active: true,
		start:  c.lastFrame,
		dur:    d,
		from:   c.brightness,
		target: target,
	}
	c.log.Info().Dur("duration", d).Uint8("target", target).Msg("nightlight started")
}

func (c *Controller) updateNightlight(now time.Time) {
	if !c.night.active {
		return
	}
	elapsed := now.Sub(c.night.start)
	if elapsed >= c.night.dur {
		c.brightness = c.night.target
		c.night.active = false
		if c.night.target == 0 {
			c.power = false
		}
		c.log.Info().Msg("nightlight complete")
		return
	}
	span := int(c.night.target) - int(c.night.from)
	frac := float64(elapsed) / float64(c.night.dur)
	c.brightness = uint8(int(c.night.from) + int(frac*float64(span)))
}

func (c *Controller) updateFPS(now time.Time) {
	if c.fpsWindow.IsZero() {
		c.fpsWindow = now
	}
	c.fpsFrames++
	if now.Sub(c.fpsWindow) >= time.Second {
		c.actualFPS = c.fpsFrames
		c.fpsFrames = 0
		c.fpsWindow = now
	}
}

// present scales by global brightness, pushes the frame to the driver, and
// refreshes the read-only snapshot.
func (c *Controller) present() {
	out := c.out[:c.ledCount]
	if c.brightness < 255 {
		for i := 0; i < c.ledCount; i++ {
			out[i] = c.pix[i].Scale(c.brightness)
		}
	} else {
		copy(out, c.pix[:c.ledCount])
	}
	if c.drv != nil {
		if err := c.drv.Write(out); err != nil {
			c.log.Debug().Err(err).Msg("driver write failed")
		}
	}

	c.snapMu.Lock()
	copy(c.snapshot, out)
	c.snapMu.Unlock()

	if c.onFrame != nil {
		c.onFrame(out)
	}
}

// --- Read-only accessors (safe from any goroutine) ---

// Snapshot copies the last presented frame.
func (c *Controller) Snapshot() []led.Color {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	out := make([]led.Color, len(c.snapshot))
	copy(out, c.snapshot)
	return out
}

func (c *Controller) LEDCount() int               { return c.ledCount }
func (c *Controller) TargetFPS() int              { return c.targetFPS }
func (c *Controller) Registry() *effect.Registry  { return c.reg }

// The scalar state below is written only by the render loop; reads from other
// goroutines are monitoring-grade (status endpoints, state mirror) where a
// slightly stale value is fine.

func (c *Controller) Power() bool        { return c.power }
func (c *Controller) Brightness() uint8  { return c.brightness }
func (c *Controller) ActualFPS() int     { return c.actualFPS }
func (c *Controller) FrameCount() uint64 { return c.frame }
func (c *Controller) SegmentCount() int  { return c.segCount }

// NightlightStatus is a copyable view of the fade for external readers.
type NightlightStatus struct {
	Active   bool   `json:"active"`
	Target   uint8  `json:"target"`
	Duration string `json:"duration,omitempty"`
}

func (c *Controller) NightlightStatus() NightlightStatus {
	st := NightlightStatus{Active: c.night.active, Target: c.night.target}
	if c.night.active {
		st.Duration = c.night.dur.String()
	}
	return st
}

// SegmentStatus is a copyable summary of one segment for external readers.
type SegmentStatus struct {
	ID         uint8  `json:"id"`
	Start      uint16 `json:"start"`
	Length     uint16 `json:"length"`
	Reversed   bool   `json:"reversed"`
	Effect     string `json:"effect"`
	Brightness uint8  `json:"brightness"`
	Active     bool   `json:"active"`
}

// SegmentStatuses summarizes all segments.
func (c *Controller) SegmentStatuses() []SegmentStatus {
	n := c.segCount
	out := make([]SegmentStatus, 0, n)
	for i := 0; i < n && i < MaxSegments; i++ {
		s := &c.segments[i]
		out = append(out, SegmentStatus{
			ID:         s.id,
			Start:      s.start,
			Length:     s.length,
			Reversed:   s.reversed,
			Effect:     s.EffectID(),
			Brightness: s.brightness,
			Active:     s.active,
		})
	}
	return out
}

// ProtocolStatus summarizes one registered protocol for external readers.
type ProtocolStatus struct {
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	Active         bool   `json:"active"`
	PacketCount    uint64 `json:"packet_count"`
	LastPacketMs   int64  `json:"last_packet_ms"`
	SourceName     string `json:"source_name,omitempty"`
	SourcePriority uint8  `json:"source_priority,omitempty"`
}

// ProtocolStatuses summarizes all registered protocols.
func (c *Controller) ProtocolStatuses() []ProtocolStatus {
	out := make([]ProtocolStatus, 0, len(c.protocols))
	for _, p := range c.protocols {
		age := p.LastPacketAge()
		ms := int64(-1)
		if age >= 0 {
			ms = age.Milliseconds()
		}
		out = append(out, ProtocolStatus{
			Name:           p.Name(),
			Enabled:        p.Enabled(),
			Active:         p.Active(),
			PacketCount:    p.PacketCount(),
			LastPacketMs:   ms,
			SourceName:     p.SourceName(),
			SourcePriority: p.SourcePriority(),
		})
	}
	return out
}
