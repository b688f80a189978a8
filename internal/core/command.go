package core

import (
	"time"

	"github.com/lumeworks/lume/internal/led"
)

// GlobalTarget addresses a command at the controller rather than a segment.
const GlobalTarget = 255

// CommandType discriminates the closed set of mutation kinds.
type CommandType uint8

const (
	CmdSetEffect CommandType = iota
	CmdSetParam
	CmdSetColor
	CmdSetPalette
	CmdSetBrightness
	CmdCreateSegment
	CmdRemoveSegment
	CmdSetPower
	CmdSetGlobalBrightness
	CmdNightlight
)

func (t CommandType) String() string {
	switch t {
	case CmdSetEffect:
		return "set-effect"
	case CmdSetParam:
		return "set-param"
	case CmdSetColor:
		return "set-color"
	case CmdSetPalette:
		return "set-palette"
	case CmdSetBrightness:
		return "set-brightness"
	case CmdCreateSegment:
		return "create-segment"
	case CmdRemoveSegment:
		return "remove-segment"
	case CmdSetPower:
		return "set-power"
	case CmdSetGlobalBrightness:
		return "set-global-brightness"
	case CmdNightlight:
		return "nightlight"
	}
	return "unknown"
}

// Command is a value-type mutation request. All state changes flow through
// these: API handlers, the MQTT bridge and the prompt job enqueue commands,
// and only the render loop executes them.
type Command struct {
	Type    CommandType
	Segment uint8 // target segment id, GlobalTarget for controller-wide

	Effect  string // CmdSetEffect
	Param   string // CmdSetParam
	Value   float64
	Color   led.Color // CmdSetColor
	ColorID string    // parameter id, "color" by default
	Palette uint8     // CmdSetPalette
	Level   uint8     // brightness payloads

	Start    uint16 // CmdCreateSegment
	Length   uint16
	Reversed bool

	On bool // CmdSetPower

	Duration time.Duration // CmdNightlight
}

func SetEffect(seg uint8, id string) Command {
	return Command{Type: CmdSetEffect, Segment: seg, Effect: id}
}

func SetParam(seg uint8, param string, value float64) Command {
	return Command{Type: CmdSetParam, Segment: seg, Param: param, Value: value}
}

func SetColor(seg uint8, c led.Color) Command {
	return Command{Type: CmdSetColor, Segment: seg, Color: c, ColorID: "color"}
}

func SetNamedColor(seg uint8, paramID string, c led.Color) Command {
	return Command{Type: CmdSetColor, Segment: seg, Color: c, ColorID: paramID}
}

func SetPalette(seg uint8, preset uint8) Command {
	return Command{Type: CmdSetPalette, Segment: seg, Palette: preset}
}

func SetBrightness(seg uint8, level uint8) Command {
	return Command{Type: CmdSetBrightness, Segment: seg, Level: level}
}

func CreateSegment(start, length uint16, reversed bool) Command {
	return Command{Type: CmdCreateSegment, Segment: GlobalTarget, Start: start, Length: length, Reversed: reversed}
}

func RemoveSegment(seg uint8) Command {
	return Command{Type: CmdRemoveSegment, Segment: seg}
}

func SetPower(on bool) Command {
	return Command{Type: CmdSetPower, Segment: GlobalTarget, On: on}
}

func SetGlobalBrightness(level uint8) Command {
	return Command{Type: CmdSetGlobalBrightness, Segment: GlobalTarget, Level: level}
}

func Nightlight(d time.Duration, target uint8) Command {
	return Command{Type: CmdNightlight, Segment: GlobalTarget, Duration: d, Level: target}
}
