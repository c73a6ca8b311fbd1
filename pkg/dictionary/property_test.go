package dictionary

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// op is one step of a generated dictionary edit sequence.
type op struct {
	Kind  int // 0 create, 1 delete, 2 compact
	Width int
	Pick  int
}

func genOp() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 2),
		gen.IntRange(0, 40),
		gen.IntRange(0, 1000),
	).Map(func(vals []interface{}) op {
		return op{Kind: vals[0].(int), Width: vals[1].(int), Pick: vals[2].(int)}
	})
}

func apply(d *Dictionary, ops []op) {
	for i, o := range ops {
		switch o.Kind {
		case 0:
			width := o.Width
			if width > 30 {
				width = 0
			}
			_, _ = d.CreateVar(fmt.Sprintf("V%d", i), width)
		case 1:
			if d.VarCount() > 0 {
				d.DeleteVar(d.Var(o.Pick % d.VarCount()))
			}
		case 2:
			d.CompactValues()
		}
	}
}

func layoutOf(d *Dictionary) []int {
	out := make([]int, 0, 2*d.VarCount())
	for _, v := range d.Vars() {
		out = append(out, v.FV(), v.NV())
	}
	return out
}

// TestCompactionProperties checks that after any sequence of create, delete
// and compact operations followed by a final compaction the layout is dense,
// names stay unique and indexes match positions.
func TestCompactionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("compacted slots are contiguous from zero", prop.ForAll(
		func(ops []op) bool {
			d := New()
			apply(d, ops)
			d.CompactValues()

			next := 0
			for _, v := range d.Vars() {
				if v.FV() != next {
					return false
				}
				next += v.NV()
			}
			return next == d.ValueCount()
		},
		gen.SliceOf(genOp()),
	))

	properties.Property("names are unique and resolvable", prop.ForAll(
		func(ops []op) bool {
			d := New()
			apply(d, ops)

			seen := make(map[string]bool)
			for i, v := range d.Vars() {
				key := nameKey(v.Name())
				if seen[key] || d.Lookup(v.Name()) != v || v.Index() != i {
					return false
				}
				seen[key] = true
			}
			return len(d.byName) == d.VarCount()
		},
		gen.SliceOf(genOp()),
	))

	properties.Property("compaction is idempotent", prop.ForAll(
		func(ops []op) bool {
			d := New()
			apply(d, ops)
			d.CompactValues()
			once := layoutOf(d)
			count := d.ValueCount()
			d.CompactValues()
			twice := layoutOf(d)
			if count != d.ValueCount() || len(once) != len(twice) {
				return false
			}
			for i := range once {
				if once[i] != twice[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genOp()),
	))

	properties.TestingRun(t)
}
