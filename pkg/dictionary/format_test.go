package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPack(t *testing.T) {
	f := Format{Type: FmtF, Width: 8, Decimals: 2}
	assert.Equal(t, int32(0x050802), f.Pack())
	assert.Equal(t, f, UnpackFormat(f.Pack()))
	assert.Equal(t, Format{Type: FmtA, Width: 255}, UnpackFormat(Format{Type: FmtA, Width: 255}.Pack()))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"F8.2", Format{Type: FmtF, Width: 8, Decimals: 2}},
		{"a10", Format{Type: FmtA, Width: 10}},
		{"COMMA12.1", Format{Type: FmtCOMMA, Width: 12, Decimals: 1}},
		{"DATE11", Format{Type: FmtDATE, Width: 11}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "8.2", "XYZ8", "F8.x"} {
		_, err := ParseFormat(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatCheckFor(t *testing.T) {
	assert.NoError(t, DefaultFormat(0).CheckFor(0))
	assert.NoError(t, DefaultFormat(17).CheckFor(17))
	assert.Error(t, Format{Type: FmtF, Width: 0}.CheckFor(0))
	assert.Error(t, Format{Type: FmtF, Width: 4, Decimals: 4}.CheckFor(0))
	assert.Error(t, Format{Type: 13, Width: 8}.CheckFor(0))
	assert.Error(t, Format{Type: FmtF, Width: 8}.CheckFor(8))
	assert.Equal(t, "F8.2", DefaultFormat(0).String())
	assert.Equal(t, "A17", DefaultFormat(17).String())
}
