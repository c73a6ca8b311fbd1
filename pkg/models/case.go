package models

import "github.com/ajitpratap0/tabula/pkg/endian"

// Case is one record laid out as consecutive value slots.
type Case []Value

// NewCase allocates a case of n slots, all zero.
func NewCase(n int) Case {
	return make(Case, n)
}

// Num returns the numeric value at slot fv.
func (c Case) Num(fv int) float64 { return c[fv].F }

// SetNum stores a numeric value at slot fv.
func (c Case) SetNum(fv int, f float64) { c[fv].F = f }

// Str returns the first width bytes of the string stored from slot fv,
// including padding.
func (c Case) Str(fv, width int) string {
	return string(c.AppendStr(nil, fv, width))
}

// AppendStr appends the width bytes of the string stored from slot fv.
func (c Case) AppendStr(dst []byte, fv, width int) []byte {
	for i := 0; width > 0; i++ {
		n := width
		if n > SlotWidth {
			n = SlotWidth
		}
		dst = append(dst, c[fv+i].S[:n]...)
		width -= n
	}
	return dst
}

// SetStr stores s in the slots starting at fv, truncated or padded to width
// bytes. Bytes past width in the last slot are also padded.
func (c Case) SetStr(fv, width int, s string) {
	n := SlotCount(width)
	for i := 0; i < n; i++ {
		slot := &c[fv+i].S
		*slot = blankSlot
		off := i * SlotWidth
		if off < len(s) && off < width {
			end := off + SlotWidth
			if end > width {
				end = width
			}
			if end > len(s) {
				end = len(s)
			}
			copy(slot[:], s[off:end])
		}
	}
}

// Clone returns an independent copy of c.
func (c Case) Clone() Case {
	out := make(Case, len(c))
	copy(out, c)
	return out
}

// CopyFrom copies src into c and returns the number of slots copied.
func (c Case) CopyFrom(src Case) int {
	return copy(c, src)
}

// Layout is the slot kind of each slot of a case.
type Layout []SlotKind

// Bytes returns the serialized size of one case in this layout.
func (l Layout) Bytes() int { return len(l) * SlotWidth }

// Blank returns a case in this layout with numeric slots set to SysMis and
// string slots blank.
func (l Layout) Blank() Case {
	c := make(Case, len(l))
	for i, k := range l {
		if k == String {
			c[i] = BlankValue()
		} else {
			c[i].F = SysMis
		}
	}
	return c
}

// EncodeCase serializes c into dst, which must hold l.Bytes() bytes.
func (l Layout) EncodeCase(e endian.Engine, c Case, dst []byte) {
	for i, k := range l {
		EncodeSlot(e, k, c[i], dst[i*SlotWidth:])
	}
}

// DecodeCase fills c from src.
func (l Layout) DecodeCase(e endian.Engine, src []byte, c Case) {
	for i, k := range l {
		c[i] = DecodeSlot(e, k, src[i*SlotWidth:])
	}
}

// Equal reports whether two layouts are identical.
func (l Layout) Equal(o Layout) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if l[i] != o[i] {
			return false
		}
	}
	return true
}

// CaseReader produces cases one at a time. ReadCase fills c and returns
// false once the input is exhausted.
type CaseReader interface {
	ReadCase(c Case) (bool, error)
}

// CaseWriter consumes cases one at a time. Implementations copy what they
// need; c may be reused by the caller after WriteCase returns.
type CaseWriter interface {
	WriteCase(c Case) error
}
