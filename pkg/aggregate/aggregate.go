// Package aggregate reduces groups of consecutive cases with equal break
// values to one output case each.
//
// Input must already be sorted by the break variables; a change in any
// break value closes the current group.
//
//	agg, err := aggregate.New(dict, aggregate.Spec{
//	    Break: []string{"REGION"},
//	    Destinations: []aggregate.Destination{
//	        {Name: "TOTAL", Func: aggregate.Sum, Source: "SALES"},
//	        {Name: "COUNT", Func: aggregate.N},
//	    },
//	})
//	err = agg.Run(reader, writer)
package aggregate

import (
	"math"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/internal/pipeline"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// Spec configures an Aggregator.
type Spec struct {
	// Break names the variables whose values define a group.
	Break []string
	// Destinations are computed for every group, in order.
	Destinations []Destination
	// Columnwise forces every non-count destination to missing for a group
	// in which its source was missing at least once.
	Columnwise bool
	// Logger receives group statistics. nil disables logging.
	Logger *zap.Logger
}

// Aggregator computes the destinations over groups of input cases.
type Aggregator struct {
	in, out    *dictionary.Dictionary
	breaks     []*dictionary.Variable
	outBreaks  []*dictionary.Variable
	aggs       []*accumulator
	columnwise bool
	log        *zap.Logger

	prev    models.Case
	open    bool
	w       models.CaseWriter
	outCase models.Case
	groups  int64
}

// New validates spec against the input dictionary and builds the output
// dictionary: the break variables followed by the destinations.
func New(in *dictionary.Dictionary, spec Spec) (*Aggregator, error) {
	a := &Aggregator{
		in:         in,
		out:        dictionary.New(),
		columnwise: spec.Columnwise,
		log:        logger.Component(spec.Logger, "aggregate"),
		prev:       in.NewCase(),
	}

	breaks, err := in.LookupAll(spec.Break)
	if err != nil {
		return nil, err
	}
	a.breaks = breaks
	for _, v := range breaks {
		ov, err := a.out.CloneVar(v, v.Name())
		if err != nil {
			return nil, err
		}
		ov.Label = v.Label
		a.outBreaks = append(a.outBreaks, ov)
	}

	if len(spec.Destinations) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "aggregate needs at least one destination")
	}
	for _, d := range spec.Destinations {
		acc, err := a.newAccumulator(d)
		if err != nil {
			return nil, err
		}
		a.aggs = append(a.aggs, acc)
	}
	a.outCase = a.out.NewCase()
	return a, nil
}

func (a *Aggregator) newAccumulator(d Destination) (*accumulator, error) {
	if d.Func < 0 || int(d.Func) >= len(funcs) {
		return nil, errors.Newf(errors.ErrorTypeConfig, "aggregate %s: unknown function %d", d.Name, int(d.Func))
	}
	info := funcs[d.Func]
	acc := &accumulator{dest: d, fn: d.Func}

	if d.Source != "" {
		src, err := a.in.MustLookup(d.Source)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeNotFound, "aggregate %s", d.Name)
		}
		if src.IsString() && !info.strOK {
			return nil, errors.Newf(errors.ErrorTypeConfig, "aggregate %s: %s needs a numeric variable, %s is a string", d.Name, d.Func, src.Name())
		}
		acc.src = src
	} else if d.Func != N && d.Func != NU {
		return nil, errors.Newf(errors.ErrorTypeConfig, "aggregate %s: %s needs a source variable", d.Name, d.Func)
	}
	if len(d.Args) != info.args {
		return nil, errors.Newf(errors.ErrorTypeConfig, "aggregate %s: %s takes %d argument(s)", d.Name, d.Func, info.args)
	}
	if info.args == 2 && d.Args[0] > d.Args[1] {
		return nil, errors.Newf(errors.ErrorTypeConfig, "aggregate %s: range %g to %g is reversed", d.Name, d.Args[0], d.Args[1])
	}

	width := 0
	if acc.src != nil && acc.src.IsString() && !d.Func.counts() {
		width = acc.src.Width()
	}
	dst, err := a.out.CreateVar(d.Name, width)
	if err != nil {
		return nil, err
	}
	dst.Label = d.Label
	format := info.format
	if format.Type == 0 {
		format = dictionary.DefaultFormat(width)
		if acc.src != nil {
			format = acc.src.PrintFormat()
		}
	}
	if err := dst.SetFormats(format, format); err != nil {
		return nil, err
	}
	acc.dst = dst
	acc.reset()
	return acc, nil
}

// OutputDictionary describes the cases the aggregator writes.
func (a *Aggregator) OutputDictionary() *dictionary.Dictionary { return a.out }

// Add accumulates c, first writing the previous group to w when c's break
// values differ from it.
func (a *Aggregator) Add(c models.Case, w models.CaseWriter) error {
	if a.open && a.changed(c) {
		if err := a.flush(w); err != nil {
			return err
		}
	}
	if !a.open {
		for _, v := range a.breaks {
			copy(a.prev[v.FV():v.FV()+v.NV()], c[v.FV():v.FV()+v.NV()])
		}
		a.open = true
	}
	weight := a.in.CaseWeight(c)
	for _, acc := range a.aggs {
		acc.add(c, weight)
	}
	return nil
}

// Flush writes the open group, if any, to w.
func (a *Aggregator) Flush(w models.CaseWriter) error {
	if !a.open {
		return nil
	}
	return a.flush(w)
}

// changed walks the break variables in order and stops at the first
// difference.
func (a *Aggregator) changed(c models.Case) bool {
	for _, v := range a.breaks {
		if v.Compare(c, v.FV(), a.prev, v.FV()) != 0 {
			return true
		}
	}
	return false
}

func (a *Aggregator) flush(w models.CaseWriter) error {
	out := a.outCase
	for i, v := range a.breaks {
		ov := a.outBreaks[i]
		copy(out[ov.FV():ov.FV()+ov.NV()], a.prev[v.FV():v.FV()+v.NV()])
	}
	for _, acc := range a.aggs {
		acc.result(out, a.columnwise)
		acc.reset()
	}
	a.open = false
	a.groups++
	return w.WriteCase(out)
}

// Groups returns the number of groups written.
func (a *Aggregator) Groups() int64 { return a.groups }

// Run aggregates every case of r into w.
func (a *Aggregator) Run(r models.CaseReader, w models.CaseWriter) error {
	c := a.in.NewCase()
	for {
		ok, err := r.ReadCase(c)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := a.Add(c, w); err != nil {
			return err
		}
	}
	if err := a.Flush(w); err != nil {
		return err
	}
	a.log.Debug("aggregation finished", zap.Int64("groups", a.groups))
	return nil
}

// Procedure returns pipeline hooks that aggregate the active file into w.
// Under split files each split group is flushed at its end.
func (a *Aggregator) Procedure(w models.CaseWriter) pipeline.Procedure {
	return pipeline.Procedure{
		Name: "aggregate",
		Case: func(c models.Case) (bool, error) {
			return true, a.Add(c, w)
		},
		End: func() error {
			return a.Flush(w)
		},
	}
}

// accumulator holds the running state of one destination.
type accumulator struct {
	dest Destination
	fn   Func
	src  *dictionary.Variable
	dst  *dictionary.Variable

	w, sum, mean, m2 float64 // weighted Welford state
	min, max         float64
	hits             float64 // weight inside the threshold test
	n, nmiss         float64
	nu, numiss       int64
	strMin, strMax   models.Case
	first, last      models.Case
	seen             bool
	missing          bool
}

func (acc *accumulator) reset() {
	acc.w, acc.sum, acc.mean, acc.m2 = 0, 0, 0, 0
	acc.min, acc.max = math.Inf(1), math.Inf(-1)
	acc.hits, acc.n, acc.nmiss = 0, 0, 0
	acc.nu, acc.numiss = 0, 0
	acc.strMin, acc.strMax, acc.first, acc.last = nil, nil, nil, nil
	acc.seen, acc.missing = false, false
}

func (acc *accumulator) isMissing(c models.Case) bool {
	v := c[acc.src.FV()]
	if acc.dest.IncludeUserMissing {
		return acc.src.IsNumeric() && v.IsSysMis()
	}
	return acc.src.IsMissing(c)
}

func (acc *accumulator) add(c models.Case, weight float64) {
	if acc.src == nil {
		acc.n += weight
		acc.nu++
		return
	}
	if acc.isMissing(c) {
		acc.nmiss += weight
		acc.numiss++
		acc.missing = true
		return
	}

	fv, nv := acc.src.FV(), acc.src.NV()
	acc.n += weight
	acc.nu++
	if acc.src.IsString() {
		slots := c[fv : fv+nv]
		if acc.strMin == nil || acc.src.Compare(c, fv, acc.strMin, 0) < 0 {
			acc.strMin = append(acc.strMin[:0], slots...)
		}
		if acc.strMax == nil || acc.src.Compare(c, fv, acc.strMax, 0) > 0 {
			acc.strMax = append(acc.strMax[:0], slots...)
		}
		if !acc.seen {
			acc.first = append(models.Case(nil), slots...)
		}
		acc.last = append(acc.last[:0], slots...)
		acc.seen = true
		return
	}

	x := c[fv].F
	if !acc.seen {
		acc.first = models.Case{models.NumValue(x)}
	}
	acc.last = models.Case{models.NumValue(x)}
	acc.seen = true

	acc.sum += x * weight
	if weight > 0 {
		acc.w += weight
		delta := x - acc.mean
		acc.mean += delta * weight / acc.w
		acc.m2 += weight * delta * (x - acc.mean)
	}
	acc.min = math.Min(acc.min, x)
	acc.max = math.Max(acc.max, x)

	args := acc.dest.Args
	switch acc.fn {
	case PGT, FGT:
		if x > args[0] {
			acc.hits += weight
		}
	case PLT, FLT:
		if x < args[0] {
			acc.hits += weight
		}
	case PIN, FIN:
		if x >= args[0] && x <= args[1] {
			acc.hits += weight
		}
	case POUT, FOUT:
		if x < args[0] || x > args[1] {
			acc.hits += weight
		}
	}
}

// result stores the destination's value for the finished group in out.
func (acc *accumulator) result(out models.Case, columnwise bool) {
	fv := acc.dst.FV()
	if acc.dst.IsString() {
		var v models.Case
		switch acc.fn {
		case Min:
			v = acc.strMin
		case Max:
			v = acc.strMax
		case First:
			v = acc.first
		case Last:
			v = acc.last
		}
		if v == nil || (columnwise && acc.missing) {
			out.SetStr(fv, acc.dst.Width(), "")
			return
		}
		copy(out[fv:fv+acc.dst.NV()], v)
		return
	}

	if columnwise && acc.missing && !acc.fn.counts() {
		out.SetNum(fv, models.SysMis)
		return
	}
	out.SetNum(fv, acc.value())
}

func (acc *accumulator) value() float64 {
	sysmis := models.SysMis
	switch acc.fn {
	case Sum:
		if !acc.seen {
			return sysmis
		}
		return acc.sum
	case Mean:
		if acc.w == 0 {
			return sysmis
		}
		return acc.sum / acc.w
	case SD:
		if acc.w <= 1 {
			return sysmis
		}
		return math.Sqrt(acc.m2 / (acc.w - 1))
	case Min:
		if math.IsInf(acc.min, 1) {
			return sysmis
		}
		return acc.min
	case Max:
		if math.IsInf(acc.max, -1) {
			return sysmis
		}
		return acc.max
	case PGT, PLT, PIN, POUT, FGT, FLT, FIN, FOUT:
		if acc.n == 0 {
			return sysmis
		}
		f := acc.hits / acc.n
		if acc.fn.percent() {
			f *= 100
		}
		return f
	case N:
		return acc.n
	case NU:
		return float64(acc.nu)
	case NMiss:
		return acc.nmiss
	case NUMiss:
		return float64(acc.numiss)
	case First:
		if acc.first == nil {
			return sysmis
		}
		return acc.first[0].F
	case Last:
		if acc.last == nil {
			return sysmis
		}
		return acc.last[0].F
	}
	return sysmis
}
