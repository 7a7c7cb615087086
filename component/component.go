// Package component defines the closed set of Component variants a Device's
// Entities can carry, their stable 16-bit wire IDs, and the subset that
// project to a uniform aggregatable value.
package component

import "fmt"

// Type is the discriminator for a Component variant. Its numeric value is
// also used as an offset into the WRITE_COMPONENT wire tag space (see
// ipc.CmdWriteComponentBase) and is checked against an extension's MSIC.
type Type uint16

// MaxComponentTypes bounds the dense per-entity indices array and the
// device-level presence bitmap. Entity.indices has MaxComponentTypes+1
// slots so that 0xFF ("absent") never collides with a legitimate offset
// for the types defined below.
const MaxComponentTypes = 64

// Absent marks the "no component of this type" sentinel in Entity.indices.
const Absent = 0xFF

const (
	TypeUnknown Type = iota
	TypeSwitch
	TypeDimmer
	TypeLightMarker
	TypeInt
	TypeReal
	TypeBool
	TypeText
	TypeColor
	TypeDate
	TypeTime
	TypeIntList
	TypeRealList
	TypeBoolList
	TypeTextList

	typeCount
)

func init() {
	if typeCount > MaxComponentTypes {
		panic("component: too many component types for MaxComponentTypes")
	}
}

var typeNames = map[Type]string{
	TypeUnknown:     "unknown",
	TypeSwitch:      "switch",
	TypeDimmer:      "dimmer",
	TypeLightMarker: "light_marker",
	TypeInt:         "int",
	TypeReal:        "real",
	TypeBool:        "bool",
	TypeText:        "text",
	TypeColor:       "color",
	TypeDate:        "date",
	TypeTime:        "time",
	TypeIntList:     "int_list",
	TypeRealList:    "real_list",
	TypeBoolList:    "bool_list",
	TypeTextList:    "text_list",
}

// String renders the type name for logs, or "type(N)" if unknown.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint16(t))
}

// Color is a fixed-width RGBA color value.
type Color struct {
	R, G, B, A uint8
}

// Date is a fixed-width calendar date (no timezone: extensions are assumed
// local to the hub).
type Date struct {
	Year  int16
	Month uint8
	Day   uint8
}

// Clock is a fixed-width time-of-day value.
type Clock struct {
	Hour, Minute, Second uint8
}

// Component is a tagged variant over the closed set of value shapes. Markers
// (e.g. LightMarker) carry no payload; domain variants (Switch, Dimmer) and
// scalar/list variants carry one.
type Component struct {
	Type Type

	Bool     bool
	Int      int64
	Real     float64
	Text     string
	Color    Color
	Date     Date
	Clock    Clock
	IntList  []int64
	RealList []float64
	BoolList []bool
	TextList []string
}

// valueBearing is the subset of types that project to a uniform Value via
// AsValue. Markers and structured records are not value-bearing.
var valueBearing = map[Type]bool{
	TypeSwitch: true,
	TypeDimmer: true,
	TypeInt:    true,
	TypeReal:   true,
	TypeBool:   true,
	TypeText:   true,
}

// IsValueBearing reports whether t can be projected to a uniform Value.
func IsValueBearing(t Type) bool {
	return valueBearing[t]
}

// Value is the uniform projection of a value-bearing Component, used by the
// query engine's GetValue/Set/Apply/aggregation machinery.
type Value struct {
	Kind Type
	Bool bool
	Num  float64
	Text string
}

// AsValue projects a value-bearing component to its uniform Value. The
// second return is false for markers/structured records.
func (c Component) AsValue() (Value, bool) {
	if !IsValueBearing(c.Type) {
		return Value{}, false
	}
	switch c.Type {
	case TypeSwitch, TypeBool:
		return Value{Kind: c.Type, Bool: c.Bool}, true
	case TypeDimmer, TypeReal:
		return Value{Kind: c.Type, Num: c.Real}, true
	case TypeInt:
		return Value{Kind: c.Type, Num: float64(c.Int)}, true
	case TypeText:
		return Value{Kind: c.Type, Text: c.Text}, true
	}
	return Value{}, false
}
