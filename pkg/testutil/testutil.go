// Package testutil provides builders and helpers shared by tabula tests.
package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Var describes a variable to create.
type Var struct {
	Name  string
	Width int
}

// Num is a numeric variable.
func Num(name string) Var { return Var{Name: name} }

// Str is a string variable of the given width.
func Str(name string, width int) Var { return Var{Name: name, Width: width} }

// NewDictionary creates a dictionary holding vars in order.
func NewDictionary(t testing.TB, vars ...Var) *dictionary.Dictionary {
	t.Helper()
	d := dictionary.New()
	for _, v := range vars {
		_, err := d.CreateVar(v.Name, v.Width)
		require.NoError(t, err, "creating %s", v.Name)
	}
	return d
}

// Cases builds one case per row in d's current layout. Row values follow
// d's variable order: float64 or int for numeric variables, string for
// string variables, nil for system-missing or blank.
func Cases(t testing.TB, d *dictionary.Dictionary, rows ...[]interface{}) []models.Case {
	t.Helper()
	out := make([]models.Case, len(rows))
	for i, row := range rows {
		require.Len(t, row, d.VarCount(), "row %d", i)
		c := d.NewCase()
		for j, v := range d.Vars() {
			switch x := row[j].(type) {
			case nil:
			case int:
				require.True(t, v.IsNumeric(), "row %d: %s is a string", i, v.Name())
				c.SetNum(v.FV(), float64(x))
			case float64:
				require.True(t, v.IsNumeric(), "row %d: %s is a string", i, v.Name())
				c.SetNum(v.FV(), x)
			case string:
				require.True(t, v.IsString(), "row %d: %s is numeric", i, v.Name())
				c.SetStr(v.FV(), v.Width(), x)
			default:
				t.Fatalf("row %d: unsupported value %T for %s", i, x, v.Name())
			}
		}
		out[i] = c
	}
	return out
}

// Values renders c the way Cases accepts it: float64 for numbers, nil for
// system-missing, strings with trailing blanks removed.
func Values(d *dictionary.Dictionary, c models.Case) []interface{} {
	out := make([]interface{}, d.VarCount())
	for i, v := range d.Vars() {
		switch {
		case v.IsString():
			out[i] = strings.TrimRight(c.Str(v.FV(), v.Width()), " ")
		case c.Num(v.FV()) == models.SysMis:
			out[i] = nil
		default:
			out[i] = c.Num(v.FV())
		}
	}
	return out
}

// Rows applies Values to every case.
func Rows(d *dictionary.Dictionary, cases []models.Case) [][]interface{} {
	out := make([][]interface{}, len(cases))
	for i, c := range cases {
		out[i] = Values(d, c)
	}
	return out
}

// Collect returns a CaseWriter that keeps copies of every case written.
func Collect() *Collector { return &Collector{} }

// Collector implements models.CaseWriter.
type Collector struct {
	Cases []models.Case
}

// WriteCase appends a copy of c.
func (c *Collector) WriteCase(cs models.Case) error {
	c.Cases = append(c.Cases, cs.Clone())
	return nil
}

// Reader returns a CaseReader over cases.
func Reader(cases []models.Case) models.CaseReader {
	return &sliceReader{cases: cases}
}

type sliceReader struct {
	cases []models.Case
	next  int
}

func (r *sliceReader) ReadCase(c models.Case) (bool, error) {
	if r.next >= len(r.cases) {
		return false, nil
	}
	copy(c, r.cases[r.next])
	r.next++
	return true, nil
}
