package sysfile

import (
	"bytes"

	"github.com/ajitpratap0/tabula/pkg/endian"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// fileBuilder assembles system files record by record so tests can produce
// inputs no Writer would.
type fileBuilder struct {
	e endian.Engine
	bytes.Buffer
}

func newFileBuilder(e endian.Engine) *fileBuilder {
	return &fileBuilder{e: e}
}

func (b *fileBuilder) i32(vs ...int32) *fileBuilder {
	for _, v := range vs {
		b.Write(b.e.AppendUint32(nil, uint32(v)))
	}
	return b
}

func (b *fileBuilder) f64(vs ...float64) *fileBuilder {
	for _, v := range vs {
		b.Write(endian.AppendFloat64(b.e, nil, v))
	}
	return b
}

func (b *fileBuilder) str(s string, n int) *fileBuilder {
	b.Write(padded(nil, s, n))
	return b
}

// header writes a header for caseSize slots.
func (b *fileBuilder) header(caseSize, compressed, ncases int32) *fileBuilder {
	b.WriteString(magic)
	b.str(productPrefix+"test", productLen)
	b.i32(layoutCode, caseSize, compressed, 0, ncases)
	b.f64(DefaultBias)
	b.str("01 Jan 24", dateLen)
	b.str("12:00:00", timeLen)
	b.str("", labelLen)
	b.Write([]byte{0, 0, 0})
	return b
}

// numVar writes a numeric variable record without label or missing values.
func (b *fileBuilder) numVar(name string) *fileBuilder {
	b.i32(recVariable, 0, 0, 0, 0x050802, 0x050802)
	return b.str(name, 8)
}

// strVar writes a string variable record and its continuations.
func (b *fileBuilder) strVar(name string, width int) *fileBuilder {
	f := int32(1)<<16 | int32(width)<<8
	b.i32(recVariable, int32(width), 0, 0, f, f)
	b.str(name, 8)
	for i := 1; i < models.SlotCount(width); i++ {
		b.i32(recVariable, -1, 0, 0, 0, 0)
		b.str("", 8)
	}
	return b
}

func (b *fileBuilder) end() *fileBuilder {
	return b.i32(recEnd, 0)
}
