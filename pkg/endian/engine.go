// Package endian provides the byte-order engines used by the system-file
// codec and the spill-file record format.
//
// An Engine combines binary.ByteOrder and binary.AppendByteOrder so that
// encoders can append fields to a growing record buffer and decoders can read
// them back through the same value:
//
//	e := endian.Native()
//	buf = e.AppendUint32(buf, 2)
//	code := e.Uint32(buf[64:])
//
// Engines are the stateless binary.LittleEndian and binary.BigEndian values,
// so they compare with == and are safe for concurrent use.
package endian

import (
	"encoding/binary"
	"math"
	"strings"
	"unsafe"
)

// Engine is a byte order that can both read fields and append them.
type Engine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Little returns the little-endian engine.
func Little() Engine { return binary.LittleEndian }

// Big returns the big-endian engine.
func Big() Engine { return binary.BigEndian }

// Native probes the host byte order.
func Native() Engine {
	var i uint16 = 0x0100
	b := (*[2]byte)(unsafe.Pointer(&i))
	if b[0] == 0x01 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// IsNative reports whether e matches the host byte order.
func IsNative(e Engine) bool {
	return e == Native()
}

// Swap returns the opposite engine of e.
func Swap(e Engine) Engine {
	if e == Engine(binary.BigEndian) {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Parse maps "little", "big" or "native" (case-insensitive, empty means
// native) to an engine.
func Parse(name string) (Engine, bool) {
	switch strings.ToLower(name) {
	case "", "native":
		return Native(), true
	case "little", "le":
		return binary.LittleEndian, true
	case "big", "be":
		return binary.BigEndian, true
	}
	return nil, false
}

// Name returns "little" or "big".
func Name(e Engine) string {
	if e == Engine(binary.BigEndian) {
		return "big"
	}
	return "little"
}

// Code returns the byte-order code used in the machine-integer extension
// record: 1 for big-endian, 2 for little-endian.
func Code(e Engine) int32 {
	if e == Engine(binary.BigEndian) {
		return 1
	}
	return 2
}

// Float64 decodes an IEEE-754 double stored in e's byte order.
func Float64(e Engine, b []byte) float64 {
	return math.Float64frombits(e.Uint64(b))
}

// AppendFloat64 appends f in e's byte order.
func AppendFloat64(e Engine, b []byte, f float64) []byte {
	return e.AppendUint64(b, math.Float64bits(f))
}

// PutFloat64 stores f into b in e's byte order.
func PutFloat64(e Engine, b []byte, f float64) {
	e.PutUint64(b, math.Float64bits(f))
}
