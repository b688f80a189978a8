package effect

import "github.com/lumeworks/lume/internal/led"

// MaxParams caps parameters per effect so Values stays a fixed-size value type.
const MaxParams = 8

// ParamType selects the widget and the slot interpretation for a parameter.
type ParamType uint8

const (
	TypeInt ParamType = iota
	TypeFloat
	TypeColor
	TypePalette
	TypeBool
	TypeEnum
)

func (t ParamType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeColor:
		return "color"
	case TypePalette:
		return "palette"
	case TypeBool:
		return "bool"
	case TypeEnum:
		return "enum"
	}
	return "unknown"
}

// ParamDesc declares one typed, bounded parameter. Descriptors are static
// data; effects share them across all instances.
type ParamDesc struct {
	ID   string
	Name string
	Type ParamType

	DefaultInt   uint8
	MinInt       uint8
	MaxInt       uint8
	DefaultFloat float32
	MinFloat     float32
	MaxFloat     float32
	DefaultColor led.Color
	EnumOptions  []string
}

func Int(id, name string, def, min, max uint8) ParamDesc {
	return ParamDesc{ID: id, Name: name, Type: TypeInt, DefaultInt: def, MinInt: min, MaxInt: max}
}

func Float(id, name string, def, min, max float32) ParamDesc {
	return ParamDesc{ID: id, Name: name, Type: TypeFloat, DefaultFloat: def, MinFloat: min, MaxFloat: max}
}

func ColorParam(id, name string, def led.Color) ParamDesc {
	return ParamDesc{ID: id, Name: name, Type: TypeColor, DefaultColor: def}
}

func Bool(id, name string, def bool) ParamDesc {
	d := uint8(0)
	if def {
		d = 1
	}
	return ParamDesc{ID: id, Name: name, Type: TypeBool, DefaultInt: d, MaxInt: 1}
}

func Enum(id, name string, options []string, def uint8) ParamDesc {
	return ParamDesc{ID: id, Name: name, Type: TypeEnum, DefaultInt: def, EnumOptions: options}
}

func PaletteSelect(id, name string) ParamDesc {
	return ParamDesc{ID: id, Name: name, Type: TypePalette}
}

// Schema is an ordered set of parameter descriptors.
type Schema []ParamDesc

// IndexOf returns the slot for a parameter id, or -1.
func (s Schema) IndexOf(id string) int {
	for i := range s {
		if s[i].ID == id {
			return i
		}
	}
	return -1
}

func (s Schema) Find(id string) *ParamDesc {
	if i := s.IndexOf(id); i >= 0 {
		return &s[i]
	}
	return nil
}
