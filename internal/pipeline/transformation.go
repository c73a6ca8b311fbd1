package pipeline

import (
	"fmt"

	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/models"
)

type resultKind uint8

const (
	resultContinue resultKind = iota
	resultDelete
	resultJump
)

// Result tells the dispatch loop what to do after a transformation.
type Result struct {
	kind   resultKind
	target int
}

var (
	// Continue proceeds to the next transformation.
	Continue = Result{}
	// Delete drops the case; no further transformation sees it.
	Delete = Result{kind: resultDelete}
)

// JumpTo continues at transformation index i, which may lie before or
// after the current one.
func JumpTo(i int) Result { return Result{kind: resultJump, target: i} }

// IsDelete reports whether r deletes the case.
func (r Result) IsDelete() bool { return r.kind == resultDelete }

// Target returns the jump target and whether r is a jump.
func (r Result) Target() (int, bool) { return r.target, r.kind == resultJump }

func (r Result) String() string {
	switch r.kind {
	case resultDelete:
		return "delete"
	case resultJump:
		return fmt.Sprintf("jump(%d)", r.target)
	default:
		return "continue"
	}
}

// Transformation modifies the working case in place. caseNum is the
// 1-based number the case will have in the output if it survives.
type Transformation interface {
	Apply(c models.Case, caseNum int64) Result
}

// Canceler is implemented by transformations that hold resources to
// release when the transformation list is discarded.
type Canceler interface {
	Cancel()
}

// TransformFunc adapts a function to Transformation.
type TransformFunc func(c models.Case, caseNum int64) Result

// Apply calls f.
func (f TransformFunc) Apply(c models.Case, caseNum int64) Result { return f(c, caseNum) }

// Compute stores fn(c) in the numeric variable v.
func Compute(v *dictionary.Variable, fn func(c models.Case) float64) Transformation {
	fv := v.FV()
	return TransformFunc(func(c models.Case, _ int64) Result {
		c.SetNum(fv, fn(c))
		return Continue
	})
}

// ComputeString stores fn(c) in the string variable v, truncated or padded
// to its width.
func ComputeString(v *dictionary.Variable, fn func(c models.Case) string) Transformation {
	fv, width := v.FV(), v.Width()
	return TransformFunc(func(c models.Case, _ int64) Result {
		c.SetStr(fv, width, fn(c))
		return Continue
	})
}

// SelectIf deletes every case for which pred is false.
func SelectIf(pred func(c models.Case) bool) Transformation {
	return TransformFunc(func(c models.Case, _ int64) Result {
		if pred(c) {
			return Continue
		}
		return Delete
	})
}

// JumpIf continues at target when pred holds.
func JumpIf(pred func(c models.Case) bool, target int) Transformation {
	return TransformFunc(func(c models.Case, _ int64) Result {
		if pred(c) {
			return JumpTo(target)
		}
		return Continue
	})
}

// Goto always continues at target.
func Goto(target int) Transformation {
	return TransformFunc(func(models.Case, int64) Result { return JumpTo(target) })
}

// LagCompute copies src as it was k cases back into dst, or system-missing
// (blanks for strings) when fewer than k cases precede this one. It
// requests the lag depth from pc.
func LagCompute(pc *Context, dst, src *dictionary.Variable, k int) (Transformation, error) {
	if k < 1 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "lag distance %d must be at least 1", k)
	}
	if dst.Width() != src.Width() {
		return nil, errors.Newf(errors.ErrorTypeConfig, "lag of %s into %s: widths %d and %d differ", src.Name(), dst.Name(), src.Width(), dst.Width())
	}
	pc.RequestLag(k)
	from, to, n := src.FV(), dst.FV(), src.NV()
	numeric := src.IsNumeric()
	return TransformFunc(func(c models.Case, _ int64) Result {
		prev := pc.Lagged(k)
		for i := 0; i < n; i++ {
			switch {
			case prev != nil:
				c[to+i] = prev[from+i]
			case numeric:
				c[to+i] = models.NumValue(models.SysMis)
			default:
				c[to+i] = models.BlankValue()
			}
		}
		return Continue
	}), nil
}
