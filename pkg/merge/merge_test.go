package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/testutil"
)

func mkInput(t *testing.T, name string, kind Kind, vars []testutil.Var, rows ...[]interface{}) Input {
	t.Helper()
	d := testutil.NewDictionary(t, vars...)
	return Input{Name: name, Kind: kind, Dict: d, Reader: testutil.Reader(testutil.Cases(t, d, rows...))}
}

func merged(t *testing.T, m *Merger) [][]interface{} {
	t.Helper()
	out := testutil.Collect()
	require.NoError(t, m.Run(out))
	return testutil.Rows(m.OutputDictionary(), out.Cases)
}

func TestFilesAndTable(t *testing.T) {
	a := mkInput(t, "a", File, []testutil.Var{testutil.Num("ID"), testutil.Num("A")},
		[]interface{}{1, 10}, []interface{}{2, 20}, []interface{}{4, 40})
	b := mkInput(t, "b", File, []testutil.Var{testutil.Num("ID"), testutil.Str("B", 3)},
		[]interface{}{2, "two"}, []interface{}{3, "thr"}, []interface{}{4, "fou"})
	tab := mkInput(t, "t", Table, []testutil.Var{testutil.Num("ID"), testutil.Num("T")},
		[]interface{}{2, 200}, []interface{}{4, 400})

	m, err := New([]Input{a, b, tab}, []string{"ID"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"ID", "A", "B", "T"}, names(m.OutputDictionary()))
	assert.Equal(t, [][]interface{}{
		{1.0, 10.0, "", nil},
		{2.0, 20.0, "two", 200.0},
		{3.0, nil, "thr", nil},
		{4.0, 40.0, "fou", 400.0},
	}, merged(t, m))
	assert.EqualValues(t, 4, m.CasesWritten())
}

func names(d *dictionary.Dictionary) []interface{} {
	out := make([]interface{}, d.VarCount())
	for i, v := range d.Vars() {
		out[i] = v.Name()
	}
	return out
}

func TestTableRowsAreLookups(t *testing.T) {
	f := mkInput(t, "f", File, []testutil.Var{testutil.Str("K", 2), testutil.Num("X")},
		[]interface{}{"a", 1}, []interface{}{"b", 2}, []interface{}{"b", 3}, []interface{}{"d", 4})
	tab := mkInput(t, "t", Table, []testutil.Var{testutil.Str("K", 2), testutil.Num("Y")},
		[]interface{}{"0", 0}, []interface{}{"b", 20}, []interface{}{"c", 30}, []interface{}{"e", 50})

	m, err := New([]Input{f, tab}, []string{"K"})
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{
		{"a", 1.0, nil},
		{"b", 2.0, 20.0},
		{"b", 3.0, 20.0},
		{"d", 4.0, nil},
	}, merged(t, m))
}

func TestInVars(t *testing.T) {
	a := mkInput(t, "a", File, []testutil.Var{testutil.Num("ID")}, []interface{}{1}, []interface{}{2})
	b := mkInput(t, "b", File, []testutil.Var{testutil.Num("ID")}, []interface{}{2}, []interface{}{3})
	a.InVar, b.InVar = "INA", "INB"

	m, err := New([]Input{a, b}, []string{"ID"})
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{
		{1.0, 1.0, 0.0},
		{2.0, 1.0, 1.0},
		{3.0, 0.0, 1.0},
	}, merged(t, m))
	assert.Equal(t, "F1.0", m.OutputDictionary().Lookup("INA").PrintFormat().String())
}

func TestSharedVariableFirstContributorWins(t *testing.T) {
	a := mkInput(t, "a", File, []testutil.Var{testutil.Num("ID"), testutil.Num("V")}, []interface{}{1, 1}, []interface{}{2, 2})
	b := mkInput(t, "b", File, []testutil.Var{testutil.Num("ID"), testutil.Num("V")}, []interface{}{1, 100}, []interface{}{3, 300})

	m, err := New([]Input{a, b}, []string{"ID"})
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{1.0, 1.0}, {2.0, 2.0}, {3.0, 300.0}}, merged(t, m))
}

func TestPositionalMatch(t *testing.T) {
	a := mkInput(t, "a", File, []testutil.Var{testutil.Num("X")}, []interface{}{1}, []interface{}{2}, []interface{}{3})
	b := mkInput(t, "b", File, []testutil.Var{testutil.Str("Y", 1)}, []interface{}{"p"})

	core, logs := observer.New(zap.DebugLevel)
	m, err := New([]Input{a, b}, nil)
	require.NoError(t, err)
	m.WithLogger(zap.New(core))
	assert.Equal(t, [][]interface{}{{1.0, "p"}, {2.0, ""}, {3.0, ""}}, merged(t, m))
	require.Equal(t, 1, logs.FilterMessage("merge finished").Len())
	assert.EqualValues(t, 3, logs.FilterMessage("merge finished").All()[0].ContextMap()["cases"])
}

func TestOrderErrors(t *testing.T) {
	t.Run("unsorted file", func(t *testing.T) {
		f := mkInput(t, "f", File, []testutil.Var{testutil.Num("ID")}, []interface{}{2}, []interface{}{1})
		m, err := New([]Input{f}, []string{"ID"})
		require.NoError(t, err)
		err = m.Run(testutil.Collect())
		assert.ErrorIs(t, err, ErrUnsorted)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
	t.Run("duplicate table key", func(t *testing.T) {
		f := mkInput(t, "f", File, []testutil.Var{testutil.Num("ID")}, []interface{}{5})
		tab := mkInput(t, "t", Table, []testutil.Var{testutil.Num("ID")}, []interface{}{1}, []interface{}{1})
		m, err := New([]Input{f, tab}, []string{"ID"})
		require.NoError(t, err)
		assert.ErrorIs(t, m.Run(testutil.Collect()), ErrDuplicateKey)
	})
	t.Run("duplicate file keys are fine", func(t *testing.T) {
		f := mkInput(t, "f", File, []testutil.Var{testutil.Num("ID")}, []interface{}{1}, []interface{}{1})
		m, err := New([]Input{f}, []string{"ID"})
		require.NoError(t, err)
		assert.Len(t, merged(t, m), 2)
	})
}

func TestNewErrors(t *testing.T) {
	id := []testutil.Var{testutil.Num("ID")}
	tests := []struct {
		name   string
		inputs func(t *testing.T) []Input
		keys   []string
		typ    errors.ErrorType
	}{
		{"no inputs", func(*testing.T) []Input { return nil }, nil, errors.ErrorTypeConfig},
		{"only tables", func(t *testing.T) []Input { return []Input{mkInput(t, "t", Table, id)} }, []string{"ID"}, errors.ErrorTypeConfig},
		{"table without keys", func(t *testing.T) []Input {
			return []Input{mkInput(t, "f", File, id), mkInput(t, "t", Table, id)}
		}, nil, errors.ErrorTypeConfig},
		{"missing key", func(t *testing.T) []Input {
			return []Input{mkInput(t, "f", File, id), mkInput(t, "g", File, []testutil.Var{testutil.Num("X")})}
		}, []string{"ID"}, errors.ErrorTypeNotFound},
		{"conflicting widths", func(t *testing.T) []Input {
			return []Input{mkInput(t, "f", File, id), mkInput(t, "g", File, []testutil.Var{testutil.Str("ID", 4)})}
		}, nil, errors.ErrorTypeConfig},
		{"in var clash", func(t *testing.T) []Input {
			f := mkInput(t, "f", File, id)
			f.InVar = "ID"
			return []Input{f}
		}, nil, errors.ErrorTypeConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.inputs(t), tt.keys)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.typ), "%v", err)
		})
	}
}
