package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tabula/pkg/endian"
)

func TestSentinels(t *testing.T) {
	assert.Equal(t, -math.MaxFloat64, SysMis)
	assert.Greater(t, Lowest, SysMis)
	assert.False(t, math.IsNaN(SysMis))
	assert.True(t, NumValue(SysMis).IsSysMis())
	assert.False(t, NumValue(Lowest).IsSysMis())
}

func TestSlotCount(t *testing.T) {
	tests := map[int]int{0: 1, 1: 1, 8: 1, 9: 2, 16: 2, 17: 3, 255: 32}
	for width, want := range tests {
		assert.Equal(t, want, SlotCount(width), "width %d", width)
	}
}

func TestCaseStrings(t *testing.T) {
	c := NewCase(4)

	c.SetStr(0, 3, "abcdef")
	assert.Equal(t, "abc", c.Str(0, 3))
	assert.Equal(t, "abc     ", string(c[0].S[:]))

	c.SetStr(1, 20, "hello long string")
	assert.Equal(t, "hello long string   ", c.Str(1, 20))
	assert.Equal(t, "g       ", string(c[3].S[:]), "trailing slot padded past width")

	c.SetStr(1, 20, "")
	assert.True(t, c[1].IsBlank())
	assert.True(t, c[2].IsBlank())
	assert.True(t, c[3].IsBlank())
}

func TestCaseCloneIsIndependent(t *testing.T) {
	c := NewCase(2)
	c.SetNum(0, 1)
	d := c.Clone()
	d.SetNum(0, 2)
	assert.Equal(t, 1.0, c.Num(0))

	e := NewCase(1)
	assert.Equal(t, 1, e.CopyFrom(d))
	assert.Equal(t, 2.0, e.Num(0))
}

func TestLayoutEncoding(t *testing.T) {
	layout := Layout{Numeric, String, String, Numeric}
	require.Equal(t, 32, layout.Bytes())

	c := layout.Blank()
	assert.Equal(t, SysMis, c.Num(0))
	assert.True(t, c[1].IsBlank())

	c.SetNum(0, -12.25)
	c.SetStr(1, 12, "twelve bytes")
	c.SetNum(3, SysMis)

	for _, e := range []endian.Engine{endian.Little(), endian.Big()} {
		buf := make([]byte, layout.Bytes())
		layout.EncodeCase(e, c, buf)
		assert.Equal(t, "twelve bytes    ", string(buf[8:24]))

		got := NewCase(len(layout))
		layout.DecodeCase(e, buf, got)
		assert.Equal(t, c, got)
	}
}

func TestValueEqual(t *testing.T) {
	a, b := NumValue(1), NumValue(1)
	assert.True(t, a.Equal(Numeric, b))
	assert.False(t, a.Equal(Numeric, NumValue(2)))

	var s1, s2 Case = NewCase(1), NewCase(1)
	s1.SetStr(0, 4, "ab")
	s2.SetStr(0, 4, "ab")
	assert.True(t, s1[0].Equal(String, s2[0]))
	s2.SetStr(0, 4, "ac")
	assert.False(t, s1[0].Equal(String, s2[0]))
}

func TestLayoutEqual(t *testing.T) {
	assert.True(t, Layout{Numeric, String}.Equal(Layout{Numeric, String}))
	assert.False(t, Layout{Numeric}.Equal(Layout{String}))
	assert.False(t, Layout{Numeric}.Equal(Layout{Numeric, Numeric}))
}
