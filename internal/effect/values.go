package effect

import "github.com/lumeworks/lume/internal/led"

// slot holds one parameter value of any type. A touch wider than a union but
// keeps Values a plain copyable value.
type slot struct {
	i uint8
	f float32
	c led.Color
	b bool
}

// Values is the runtime store for one effect instance's parameters, one typed
// slot per schema entry. Setters clamp to the schema's declared range; reads
// by slot index are what effects use on the hot path.
type Values struct {
	schema  Schema
	slots   [MaxParams]slot
	palette Palette
}

// NewValues initializes a store from schema defaults.
func NewValues(schema Schema) Values {
	v := Values{schema: schema, palette: Palettes[PaletteRainbow]}
	v.ApplyDefaults()
	return v
}

func (v *Values) Schema() Schema { return v.schema }

// ApplyDefaults resets every slot to its schema default.
func (v *Values) ApplyDefaults() {
	for i := range v.schema {
		if i >= MaxParams {
			break
		}
		p := &v.schema[i]
		switch p.Type {
		case TypeInt, TypeEnum:
			v.slots[i].i = p.DefaultInt
		case TypeFloat:
			v.slots[i].f = p.DefaultFloat
		case TypeColor:
			v.slots[i].c = p.DefaultColor
		case TypeBool:
			v.slots[i].b = p.DefaultInt != 0
		case TypePalette:
			v.palette = Palettes[PaletteRainbow]
		}
	}
}

func (v *Values) Int(slot int) uint8        { return v.slots[slot].i }
func (v *Values) Float(slot int) float32    { return v.slots[slot].f }
func (v *Values) Color(slot int) led.Color  { return v.slots[slot].c }
func (v *Values) Bool(slot int) bool        { return v.slots[slot].b }
func (v *Values) Enum(slot int) uint8       { return v.slots[slot].i }
func (v *Values) Palette() *Palette         { return &v.palette }
func (v *Values) SetPalette(p Palette)      { v.palette = p }
func (v *Values) SetColorSlot(slot int, c led.Color) {
	if slot >= 0 && slot < MaxParams {
		v.slots[slot].c = c
	}
}

// SetInt clamps to the schema range before storing.
func (v *Values) SetInt(slot int, val uint8) {
	if slot < 0 || slot >= len(v.schema) || slot >= MaxParams {
		return
	}
	p := &v.schema[slot]
	if val < p.MinInt {
		val = p.MinInt
	}
	if p.MaxInt > 0 && val > p.MaxInt {
		val = p.MaxInt
	}
	v.slots[slot].i = val
}

func (v *Values) SetFloat(slot int, val float32) {
	if slot < 0 || slot >= len(v.schema) || slot >= MaxParams {
		return
	}
	p := &v.schema[slot]
	if val < p.MinFloat {
		val = p.MinFloat
	}
	if p.MaxFloat > p.MinFloat && val > p.MaxFloat {
		val = p.MaxFloat
	}
	v.slots[slot].f = val
}

func (v *Values) SetBool(slot int, val bool) {
	if slot >= 0 && slot < len(v.schema) && slot < MaxParams {
		v.slots[slot].b = val
	}
}

func (v *Values) SetEnum(slot int, val uint8) {
	if slot < 0 || slot >= len(v.schema) || slot >= MaxParams {
		return
	}
	p := &v.schema[slot]
	if n := len(p.EnumOptions); n > 0 && int(val) >= n {
		val = uint8(n - 1)
	}
	v.slots[slot].i = val
}

// SetByID applies a numeric value to the named parameter, converting to the
// slot's declared type. Unknown ids are ignored; this is how generic
// set-parameter commands land.
func (v *Values) SetByID(id string, val float64) bool {
	slot := v.schema.IndexOf(id)
	if slot < 0 {
		return false
	}
	switch v.schema[slot].Type {
	case TypeInt:
		v.SetInt(slot, clampU8(val))
	case TypeFloat:
		v.SetFloat(slot, float32(val))
	case TypeBool:
		v.SetBool(slot, val != 0)
	case TypeEnum:
		v.SetEnum(slot, clampU8(val))
	default:
		return false
	}
	return true
}

// ColorByID sets the named color parameter.
func (v *Values) ColorByID(id string, c led.Color) bool {
	slot := v.schema.IndexOf(id)
	if slot < 0 || v.schema[slot].Type != TypeColor {
		return false
	}
	v.slots[slot].c = c
	return true
}

func clampU8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
