package core

import (
	"github.com/lumeworks/lume/internal/effect"
	"github.com/lumeworks/lume/internal/led"
)

// MaxSegments bounds the segment table.
const MaxSegments = 8

// Segment is a controllable region of the strip: a bounded view, one selected
// effect, its parameter values and a fixed private scratch block. The
// generation counter detects effect changes so the render path can hand the
// effect a one-shot firstFrame signal without extra bookkeeping.
type Segment struct {
	id       uint8
	start    uint16
	length   uint16
	reversed bool

	effect     *effect.Info
	params     effect.Values
	scratch    [effect.ScratchSize]byte
	generation uint8
	lastSeen   uint8

	brightness uint8
	active     bool
}

func (s *Segment) ID() uint8          { return s.id }
func (s *Segment) Start() uint16      { return s.start }
func (s *Segment) Length() uint16     { return s.length }
func (s *Segment) Reversed() bool     { return s.reversed }
func (s *Segment) Active() bool       { return s.active && s.length > 0 }
func (s *Segment) Brightness() uint8  { return s.brightness }
func (s *Segment) Generation() uint8  { return s.generation }

// EffectID returns the assigned effect id, or "none".
func (s *Segment) EffectID() string {
	if s.effect == nil {
		return "none"
	}
	return s.effect.ID
}

// Params exposes the segment's parameter store. Render-loop context only.
func (s *Segment) Params() *effect.Values { return &s.params }

func (s *Segment) SetBrightness(level uint8) { s.brightness = level }
func (s *Segment) SetActive(a bool)          { s.active = a }

// SetEffect assigns a new effect. The effect's declared scratch requirement
// is validated against the fixed budget; on failure the previous effect and
// parameters are left untouched and false is returned. On success the scratch
// block is zeroed, the generation bumps, and parameters reset to the new
// schema's defaults. Reassigning the same effect id goes through the same
// path, so its state resets too.
func (s *Segment) SetEffect(info *effect.Info) bool {
	if info == nil || info.Render == nil {
		return false
	}
	if info.ScratchBytes > len(s.scratch) {
		return false
	}
	s.effect = info
	s.params = effect.NewValues(info.Schema)
	for i := range s.scratch {
		s.scratch[i] = 0
	}
	s.generation++
	return true
}

// ClearEffect detaches the current effect.
func (s *Segment) ClearEffect() {
	s.effect = nil
	s.generation++
}

// Render runs the segment's effect for one frame against the strip buffer.
// No-op when the segment is inactive, out of bounds, or has no effect.
func (s *Segment) Render(strip []led.Color, frame uint64) {
	if !s.active || s.effect == nil || s.length == 0 {
		return
	}
	end := int(s.start) + int(s.length)
	if end > len(strip) {
		return
	}
	view := effect.NewView(strip[s.start:end], s.reversed)

	first := s.lastSeen != s.generation
	if first {
		s.lastSeen = s.generation
	}
	s.effect.Render(view, &s.params, frame, first, s.scratch[:])

	if s.brightness < 255 {
		view.ScaleBy(s.brightness)
	}
}

func (s *Segment) reset() {
	*s = Segment{}
}
