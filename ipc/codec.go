package ipc

import (
	"encoding/binary"
	"math"

	"hubd/component"
	"hubd/treeerr"
)

// Handshake is the payload carried by WHATS_UP_IGLOO and its reply
// HEY_BUDDY_YOU_AWAKE: the extension's maximum supported component type
// (MSIC) alongside the original igloo/floe protocol's minor-version byte,
// so both sides can negotiate the narrower of their two component sets.
type Handshake struct {
	MSIC         uint16
	MinorVersion uint8
}

// EncodeHandshake renders h as a handshake payload.
func EncodeHandshake(h Handshake) []byte {
	buf := make([]byte, 3)
	binary.BigEndian.PutUint16(buf[0:2], h.MSIC)
	buf[2] = h.MinorVersion
	return buf
}

// DecodeHandshake parses a handshake payload.
func DecodeHandshake(payload []byte) (Handshake, error) {
	if len(payload) < 3 {
		return Handshake{}, treeerr.ErrMalformedFrame
	}
	return Handshake{
		MSIC:         binary.BigEndian.Uint16(payload[0:2]),
		MinorVersion: payload[2],
	}, nil
}

// RegisterDevice is the decoded REGISTER_DEVICE payload: a 16-byte stable
// extension-local identifier (raw UUID bytes), an initial name, and a
// list of entity names to pre-register.
type RegisterDevice struct {
	LocalID     [16]byte
	Name        string
	EntityNames []string
}

// DecodeRegisterDevice parses a REGISTER_DEVICE payload.
func DecodeRegisterDevice(payload []byte) (RegisterDevice, error) {
	if len(payload) < 16 {
		return RegisterDevice{}, treeerr.ErrMalformedFrame
	}
	var rd RegisterDevice
	copy(rd.LocalID[:], payload[:16])
	rest := payload[16:]

	name, rest, err := ReadUint32Prefixed(rest)
	if err != nil {
		return RegisterDevice{}, err
	}
	rd.Name = name

	count, n, err := DecodeVarint(rest)
	if err != nil {
		return RegisterDevice{}, treeerr.ErrMalformedFrame
	}
	rest = rest[n:]
	for i := uint32(0); i < count; i++ {
		var entName string
		entName, rest, err = ReadUint32Prefixed(rest)
		if err != nil {
			return RegisterDevice{}, err
		}
		rd.EntityNames = append(rd.EntityNames, entName)
	}
	return rd, nil
}

// RegisterEntity is the decoded REGISTER_ENTITY payload.
type RegisterEntity struct {
	DeviceIndex uint32
	EntityIndex uint32
	Name        string
}

// DecodeRegisterEntity parses a REGISTER_ENTITY payload.
func DecodeRegisterEntity(payload []byte) (RegisterEntity, error) {
	devIdx, n, err := DecodeVarint(payload)
	if err != nil {
		return RegisterEntity{}, treeerr.ErrMalformedFrame
	}
	payload = payload[n:]
	entIdx, n, err := DecodeVarint(payload)
	if err != nil {
		return RegisterEntity{}, treeerr.ErrMalformedFrame
	}
	payload = payload[n:]
	name, _, err := ReadUint32Prefixed(payload)
	if err != nil {
		return RegisterEntity{}, err
	}
	return RegisterEntity{DeviceIndex: devIdx, EntityIndex: entIdx, Name: name}, nil
}

// EncodeComponent renders c using the length-delimited schema §6.1
// describes: booleans are one byte, strings are u32-length-prefixed UTF-8,
// colors/dates/times are fixed-width, lists are a varint count followed by
// that many elements.
func EncodeComponent(c component.Component) []byte {
	var buf []byte
	switch c.Type {
	case component.TypeSwitch, component.TypeBool:
		buf = append(buf, boolByte(c.Bool))
	case component.TypeDimmer, component.TypeReal:
		buf = appendFloat64(buf, c.Real)
	case component.TypeInt:
		buf = appendInt64(buf, c.Int)
	case component.TypeText:
		buf = PutUint32Prefixed(buf, c.Text)
	case component.TypeColor:
		buf = append(buf, c.Color.R, c.Color.G, c.Color.B, c.Color.A)
	case component.TypeDate:
		var yr [2]byte
		binary.BigEndian.PutUint16(yr[:], uint16(c.Date.Year))
		buf = append(buf, yr[:]...)
		buf = append(buf, c.Date.Month, c.Date.Day)
	case component.TypeTime:
		buf = append(buf, c.Clock.Hour, c.Clock.Minute, c.Clock.Second)
	case component.TypeIntList:
		buf = PutVarint(buf, uint32(len(c.IntList)))
		for _, v := range c.IntList {
			buf = appendInt64(buf, v)
		}
	case component.TypeRealList:
		buf = PutVarint(buf, uint32(len(c.RealList)))
		for _, v := range c.RealList {
			buf = appendFloat64(buf, v)
		}
	case component.TypeBoolList:
		buf = PutVarint(buf, uint32(len(c.BoolList)))
		for _, v := range c.BoolList {
			buf = append(buf, boolByte(v))
		}
	case component.TypeTextList:
		buf = PutVarint(buf, uint32(len(c.TextList)))
		for _, v := range c.TextList {
			buf = PutUint32Prefixed(buf, v)
		}
	case component.TypeLightMarker:
		// marker: no payload.
	}
	return buf
}

// DecodeComponent parses a component payload for the given type. An
// unrecognized type is fatal to the connection per §6.1. The list types
// (IntList, RealList, BoolList, TextList) are not decoded: like an
// unrecognized type they return ErrUnknownComponentType.
func DecodeComponent(t component.Type, payload []byte) (component.Component, error) {
	c := component.Component{Type: t}
	switch t {
	case component.TypeSwitch, component.TypeBool:
		if len(payload) < 1 {
			return c, treeerr.ErrMalformedFrame
		}
		c.Bool = payload[0] != 0
	case component.TypeDimmer, component.TypeReal:
		v, err := readFloat64(payload)
		if err != nil {
			return c, err
		}
		c.Real = v
	case component.TypeInt:
		v, err := readInt64(payload)
		if err != nil {
			return c, err
		}
		c.Int = v
	case component.TypeText:
		s, _, err := ReadUint32Prefixed(payload)
		if err != nil {
			return c, err
		}
		c.Text = s
	case component.TypeColor:
		if len(payload) < 4 {
			return c, treeerr.ErrMalformedFrame
		}
		c.Color = component.Color{R: payload[0], G: payload[1], B: payload[2], A: payload[3]}
	case component.TypeDate:
		if len(payload) < 4 {
			return c, treeerr.ErrMalformedFrame
		}
		c.Date = component.Date{
			Year:  int16(binary.BigEndian.Uint16(payload[0:2])),
			Month: payload[2],
			Day:   payload[3],
		}
	case component.TypeTime:
		if len(payload) < 3 {
			return c, treeerr.ErrMalformedFrame
		}
		c.Clock = component.Clock{Hour: payload[0], Minute: payload[1], Second: payload[2]}
	case component.TypeLightMarker:
		// marker: no payload.
	default:
		return c, treeerr.ErrUnknownComponentType
	}
	return c, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendInt64(buf []byte, v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

func readInt64(payload []byte) (int64, error) {
	if len(payload) < 8 {
		return 0, treeerr.ErrMalformedFrame
	}
	return int64(binary.BigEndian.Uint64(payload[:8])), nil
}

func appendFloat64(buf []byte, v float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	return append(buf, b[:]...)
}

func readFloat64(payload []byte) (float64, error) {
	if len(payload) < 8 {
		return 0, treeerr.ErrMalformedFrame
	}
	return math.Float64frombits(binary.BigEndian.Uint64(payload[:8])), nil
}
