package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tabula/pkg/models"
)

func TestMissingDiscrete(t *testing.T) {
	var mv MissingValues
	assert.True(t, mv.IsEmpty())
	for _, f := range []float64{9, 99, 999} {
		require.NoError(t, mv.AddNum(f))
	}
	assert.Error(t, mv.AddNum(9999))
	assert.Equal(t, MissingDiscrete, mv.Kind())
	assert.Len(t, mv.Discrete(), 3)

	assert.True(t, mv.IsNumMissing(99))
	assert.False(t, mv.IsNumMissing(98))
	assert.True(t, mv.IsMissing(models.NumValue(models.SysMis), 0))
	assert.False(t, mv.IsUserMissing(models.NumValue(models.SysMis), 0))
}

func TestMissingRanges(t *testing.T) {
	tests := []struct {
		name    string
		set     func(*MissingValues) error
		kind    MissingKind
		missing []float64
		valid   []float64
	}{
		{
			name:    "range",
			set:     func(m *MissingValues) error { return m.SetRange(1, 5) },
			kind:    MissingRange,
			missing: []float64{1, 3, 5},
			valid:   []float64{0, 6, models.SysMis},
		},
		{
			name:    "low",
			set:     func(m *MissingValues) error { return m.SetLow(0) },
			kind:    MissingLow,
			missing: []float64{-1e300, 0},
			valid:   []float64{0.5, models.SysMis},
		},
		{
			name:    "high",
			set:     func(m *MissingValues) error { return m.SetHigh(100) },
			kind:    MissingHigh,
			missing: []float64{100, models.Highest},
			valid:   []float64{99},
		},
		{
			name: "range plus one",
			set: func(m *MissingValues) error {
				if err := m.AddNum(-9); err != nil {
					return err
				}
				return m.SetRange(1, 5)
			},
			kind:    MissingRangeDiscrete,
			missing: []float64{-9, 2},
			valid:   []float64{-8, 6},
		},
		{
			name: "low plus one, discrete added after",
			set: func(m *MissingValues) error {
				if err := m.SetLow(0); err != nil {
					return err
				}
				return m.AddNum(99)
			},
			kind:    MissingLowDiscrete,
			missing: []float64{-5, 99},
			valid:   []float64{50},
		},
		{
			name: "high plus one",
			set: func(m *MissingValues) error {
				if err := m.SetHigh(10); err != nil {
					return err
				}
				return m.AddNum(-1)
			},
			kind:    MissingHighDiscrete,
			missing: []float64{11, -1},
			valid:   []float64{0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mv MissingValues
			require.NoError(t, tt.set(&mv))
			assert.Equal(t, tt.kind, mv.Kind())
			assert.True(t, mv.HasRange())
			for _, f := range tt.missing {
				assert.True(t, mv.IsNumMissing(f), "%g should be missing", f)
			}
			for _, f := range tt.valid {
				assert.False(t, mv.IsNumMissing(f), "%g should not be missing", f)
			}
		})
	}
}

func TestMissingRangeErrors(t *testing.T) {
	var mv MissingValues
	assert.Error(t, mv.SetRange(5, 1))

	require.NoError(t, mv.SetRange(1, 5))
	require.NoError(t, mv.AddNum(9))
	assert.Error(t, mv.AddNum(10))
	assert.Error(t, mv.SetRange(7, 8))

	var two MissingValues
	require.NoError(t, two.AddNum(1))
	require.NoError(t, two.AddNum(2))
	assert.Error(t, two.SetRange(3, 4))

	mv.Clear()
	assert.True(t, mv.IsEmpty())
}

func TestMissingStrings(t *testing.T) {
	var mv MissingValues
	require.NoError(t, mv.AddString("NA"))
	c := models.NewCase(1)
	c.SetStr(0, 4, "NA")
	assert.True(t, mv.IsMissing(c[0], 4))
	c.SetStr(0, 4, "OK")
	assert.False(t, mv.IsMissing(c[0], 4))
}

func TestValueLabels(t *testing.T) {
	vl := NewValueLabels(0)
	assert.True(t, vl.Add(models.NumValue(2), "two"))
	assert.True(t, vl.Add(models.NumValue(1), "one"))
	assert.False(t, vl.Add(models.NumValue(1), "uno"))
	vl.Replace(models.NumValue(3), "three")

	got, ok := vl.Get(models.Value{F: 1, S: [8]byte{'j', 'u', 'n', 'k'}})
	assert.True(t, ok, "numeric keys ignore string bytes")
	assert.Equal(t, "one", got)

	labels := vl.Labels()
	require.Len(t, labels, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{labels[0].Value.F, labels[1].Value.F, labels[2].Value.F})

	vl.Remove(models.NumValue(2))
	assert.Equal(t, 2, vl.Len())

	var none *ValueLabels
	assert.Equal(t, 0, none.Len())
	_, ok = none.Get(models.NumValue(1))
	assert.False(t, ok)

	s := NewValueLabels(3)
	c := models.NewCase(1)
	c.SetStr(0, 8, "abc")
	s.Add(c[0], "first")
	c.SetStr(0, 3, "abcdef")
	got, ok = s.Get(c[0])
	assert.True(t, ok)
	assert.Equal(t, "first", got)
}
