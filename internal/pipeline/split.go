package pipeline

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// SplitValue is the value of one split variable for a group.
type SplitValue struct {
	Var *dictionary.Variable
	Num float64
	Str string
}

func (s SplitValue) String() string {
	if s.Var.IsString() {
		return fmt.Sprintf("%s = %q", s.Var.Name(), strings.TrimRight(s.Str, " "))
	}
	if s.Num == models.SysMis {
		return s.Var.Name() + " = ."
	}
	return fmt.Sprintf("%s = %g", s.Var.Name(), s.Num)
}

// splitTracker remembers the split variables' values of the current group.
type splitTracker struct {
	vars []*dictionary.Variable
	prev []models.Value
	open bool
}

func newSplitTracker(vars []*dictionary.Variable) *splitTracker {
	n := 0
	for _, v := range vars {
		n += v.NV()
	}
	return &splitTracker{vars: vars, prev: make([]models.Value, n)}
}

// changed reports whether c starts a new group and, if so, remembers its
// values. The first case always starts a group.
func (s *splitTracker) changed(c models.Case) bool {
	if s.open && s.same(c) {
		return false
	}
	i := 0
	for _, v := range s.vars {
		i += copy(s.prev[i:i+v.NV()], c[v.FV():v.FV()+v.NV()])
	}
	s.open = true
	return true
}

// same compares variables in order and stops at the first difference.
// String comparison covers the variable's width only.
func (s *splitTracker) same(c models.Case) bool {
	i := 0
	for _, v := range s.vars {
		if v.IsNumeric() {
			if c[v.FV()].F != s.prev[i].F {
				return false
			}
			i++
			continue
		}
		width := v.Width()
		for k := 0; k < v.NV(); k++ {
			n := width - k*models.SlotWidth
			if n > models.SlotWidth {
				n = models.SlotWidth
			}
			a, b := c[v.FV()+k].S, s.prev[i].S
			if string(a[:n]) != string(b[:n]) {
				return false
			}
			i++
		}
	}
	return true
}

// values describes the current group.
func (s *splitTracker) values() []SplitValue {
	out := make([]SplitValue, len(s.vars))
	i := 0
	for j, v := range s.vars {
		out[j].Var = v
		if v.IsNumeric() {
			out[j].Num = s.prev[i].F
		} else {
			out[j].Str = models.Case(s.prev).Str(i, v.Width())
		}
		i += v.NV()
	}
	return out
}
