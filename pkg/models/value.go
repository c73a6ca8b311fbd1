// Package models defines the fixed-layout row representation shared by the
// dictionary, the system-file codec, the case streams and the pipeline.
//
// A case is a slice of 8-byte value slots. A slot holds either one double or
// up to eight bytes of string data; the slot itself carries no type. Which
// field is meaningful is decided by the owning variable, and wherever slots
// are serialized the caller supplies the matching SlotKind.
package models

import (
	"bytes"
	"math"

	"github.com/ajitpratap0/tabula/pkg/endian"
)

// SlotWidth is the number of bytes in one value slot.
const SlotWidth = 8

// MaxStringWidth is the widest string variable a dictionary accepts.
const MaxStringWidth = 255

const (
	// SysMis is the numeric system-missing value. It is a real double, not NaN.
	SysMis = -math.MaxFloat64
	// Highest is the largest finite double, used as the upper bound sentinel
	// in HIGH and RANGE missing-value specifications.
	Highest = math.MaxFloat64
)

// Lowest is the lower bound sentinel in LOW missing-value specifications. It
// is the double immediately above SysMis so the two never collide.
var Lowest = math.Nextafter(-math.MaxFloat64, 0)

// PadByte fills unused string bytes.
const PadByte = ' '

// SlotKind discriminates the two interpretations of a value slot.
type SlotKind uint8

const (
	// Numeric slots hold a float64.
	Numeric SlotKind = iota
	// String slots hold eight bytes of space-padded text.
	String
)

func (k SlotKind) String() string {
	if k == String {
		return "string"
	}
	return "numeric"
}

// Value is one slot of a case.
type Value struct {
	F float64
	S [SlotWidth]byte
}

// blankSlot is eight pad bytes.
var blankSlot = [SlotWidth]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}

// NumValue returns a numeric slot.
func NumValue(f float64) Value { return Value{F: f} }

// BlankValue returns a string slot of pad bytes.
func BlankValue() Value { return Value{S: blankSlot} }

// IsBlank reports whether a string slot is entirely pad bytes.
func (v Value) IsBlank() bool { return v.S == blankSlot }

// IsSysMis reports whether a numeric slot is system-missing.
func (v Value) IsSysMis() bool { return v.F == SysMis }

// Equal compares two slots under kind. Numeric slots compare by exact
// equality, string slots byte for byte.
func (v Value) Equal(kind SlotKind, o Value) bool {
	if kind == String {
		return v.S == o.S
	}
	return v.F == o.F
}

// EncodeSlot writes v into dst[:8]. Numeric slots are stored in e's byte
// order; string slots verbatim.
func EncodeSlot(e endian.Engine, kind SlotKind, v Value, dst []byte) {
	if kind == String {
		copy(dst[:SlotWidth], v.S[:])
		return
	}
	endian.PutFloat64(e, dst, v.F)
}

// DecodeSlot is the inverse of EncodeSlot.
func DecodeSlot(e endian.Engine, kind SlotKind, src []byte) Value {
	var v Value
	if kind == String {
		copy(v.S[:], src[:SlotWidth])
		return v
	}
	v.F = endian.Float64(e, src)
	return v
}

// SlotCount returns the number of slots a variable of the given width
// occupies: one for numeric variables, ceil(width/8) for strings.
func SlotCount(width int) int {
	if width == 0 {
		return 1
	}
	return (width + SlotWidth - 1) / SlotWidth
}

// TrimPad strips trailing pad bytes.
func TrimPad(b []byte) []byte {
	return bytes.TrimRight(b, " ")
}
