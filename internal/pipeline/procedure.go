package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/casestream"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/metrics"
	"github.com/ajitpratap0/tabula/pkg/models"
	"github.com/ajitpratap0/tabula/pkg/observability"
)

// ErrNoSource is returned when a procedure is opened without an active
// file.
var ErrNoSource = errors.New(errors.ErrorTypeConfig, "no active file: a case source must be set before running a procedure")

// Procedure is the set of hooks a procedure supplies. Every hook is
// optional.
//
// Without split variables Begin runs before the first case and End after
// the last. With split variables they bracket each group, GroupHeader runs
// before each Begin, and none of them runs when no case reaches the
// callback.
type Procedure struct {
	// Name labels metrics, spans and log lines; default "procedure".
	Name        string
	Begin       func() error
	Case        func(c models.Case) (bool, error)
	End         func() error
	GroupHeader func(values []SplitValue)
}

type runState uint8

const (
	stateOpen runState = iota
	stateExecuted
	stateFailed
	stateClosed
)

// Run is one procedure in progress.
type Run struct {
	pc    *Context
	proc  Procedure
	span  *observability.Span
	log   *zap.Logger
	timer *metrics.Timer

	dict     *dictionary.Dictionary
	perm     *dictionary.Dictionary
	boundary int
	compact  bool
	cmap     dictionary.CompactionMap

	work models.Case
	out  models.Case
	sink *casestream.Sink
	lag  *lagRing

	split     *splitTracker
	filter    *dictionary.Variable
	reinitNum []int
	reinitStr []int
	limit     int64

	begun   bool
	stopped bool
	state   runState
	err     error
	stats   RunStats
}

// Procedure opens, executes and closes a run. On failure the previous
// source stays active and the error of the first failing step is
// returned.
func (pc *Context) Procedure(ctx context.Context, proc Procedure) (RunStats, error) {
	r, err := pc.Open(ctx, proc)
	if err != nil {
		return RunStats{}, err
	}
	if err := r.Execute(); err != nil {
		stats, _ := r.Close()
		return stats, err
	}
	return r.Close()
}

// Open prepares a run: it sizes the working case, applies the initial
// values, and creates the sink the surviving cases are written to.
func (pc *Context) Open(ctx context.Context, proc Procedure) (*Run, error) {
	if pc.run != nil {
		return nil, errors.New(errors.ErrorTypeInternal, "a procedure is already running on this context")
	}
	if pc.source == nil {
		return nil, ErrNoSource
	}
	if proc.Name == "" {
		proc.Name = "procedure"
	}

	_, span := observability.StartSpan(ctx, "pipeline.procedure")
	span.SetAttribute("procedure", proc.Name)
	r := &Run{
		pc:    pc,
		proc:  proc,
		span:  span,
		log:   logger.FromContext(ctx, pc.log).With(zap.String("procedure", proc.Name)),
		timer: metrics.NewTimer(proc.Name),
		dict:  pc.dict,
		perm:  pc.PermanentDict(),
		limit: pc.dict.CaseLimit(),
		stats: RunStats{Procedure: proc.Name},
	}
	if err := r.open(); err != nil {
		span.End(err)
		return nil, err
	}
	pc.run = r
	return r, nil
}

func (r *Run) open() error {
	pc := r.pc
	r.boundary = len(pc.trns)
	if pc.IsTemporary() {
		r.boundary = pc.boundary
	}

	srcLayout := pc.source.Layout()
	if len(srcLayout) > r.dict.ValueCount() {
		return errors.Newf(errors.ErrorTypeInternal,
			"active file has %d slots per case but the dictionary has %d", len(srcLayout), r.dict.ValueCount())
	}

	r.compact = pc.IsTemporary() || r.perm.ValueCount() != r.perm.CompactedValueCount()
	sinkLayout := r.perm.Layout()
	if r.compact {
		r.cmap = r.perm.CompactionMap()
		sinkLayout = r.perm.CompactedLayout()
		r.out = make(models.Case, len(sinkLayout))
	}

	r.work = make(models.Case, r.dict.ValueCount())
	r.initValues()
	r.filter = r.dict.Filter()
	if vars := r.dict.SplitVars(); len(vars) > 0 {
		r.split = newSplitTracker(vars)
	}
	if pc.lagDepth > 0 {
		r.lag = newLagRing(pc.lagDepth, len(r.work))
	}

	estimate := pc.source.CaseCount()
	if r.limit > 0 && r.limit < estimate {
		estimate = r.limit
	}
	opts, err := pc.streamOptions(sinkLayout, estimate)
	if err != nil {
		return err
	}
	if r.sink, err = casestream.NewSink(opts); err != nil {
		return err
	}

	r.log.Debug("procedure opened",
		zap.Int("transformations", len(pc.trns)),
		zap.Int("boundary", r.boundary),
		zap.Bool("temporary", pc.IsTemporary()),
		zap.Bool("compact", r.compact),
		zap.Int("lag", pc.lagDepth),
		zap.Int64("source_cases", pc.source.CaseCount()),
		zap.Bool("sink_on_disk", r.sink.OnDisk()))
	return nil
}

// initValues gives every slot its value before the first case: 0 for
// numeric variables that keep their value across cases, system-missing for
// other numeric variables, blanks for strings. It also builds the lists of
// slots reset before each later case.
func (r *Run) initValues() {
	for _, v := range r.dict.Vars() {
		for i := v.FV(); i < v.FV()+v.NV(); i++ {
			switch {
			case v.IsString():
				r.work[i] = models.BlankValue()
				if !v.Left {
					r.reinitStr = append(r.reinitStr, i)
				}
			case v.Left:
				r.work[i] = models.NumValue(0)
			default:
				r.work[i] = models.NumValue(models.SysMis)
				r.reinitNum = append(r.reinitNum, i)
			}
		}
	}
}

func (r *Run) reinit() {
	for _, i := range r.reinitNum {
		r.work[i].F = models.SysMis
	}
	for _, i := range r.reinitStr {
		r.work[i] = models.BlankValue()
	}
}

// Lagged returns a read-only view of the case k cases back, or nil.
func (r *Run) Lagged(k int) models.Case {
	if r.lag == nil {
		return nil
	}
	return r.lag.get(k)
}

// Execute pulls every case from the source through the transformations
// into the sink and the callback.
func (r *Run) Execute() error {
	if r.state != stateOpen {
		return errors.New(errors.ErrorTypeInternal, "procedure already executed")
	}
	if err := r.execute(); err != nil {
		r.state = stateFailed
		r.err = err
		return err
	}
	r.state = stateExecuted
	return nil
}

func (r *Run) execute() error {
	if r.split == nil {
		if err := r.begin(); err != nil {
			return err
		}
	}

	cur, err := r.pc.source.Cursor()
	if err != nil {
		return err
	}
	defer cur.Close()

	tracker := metrics.NewThroughputTracker(r.proc.Name)
	defer tracker.GetAndReset()
	for r.limit <= 0 || r.stats.CasesWritten < r.limit {
		ok, err := cur.ReadCase(r.work)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		r.stats.CasesRead++
		metrics.CasesRead.Inc()
		tracker.Increment(1)

		if err := r.processCase(); err != nil {
			return err
		}
		r.reinit()
	}

	if r.begun {
		return r.end()
	}
	return nil
}

func (r *Run) processCase() error {
	caseNum := r.stats.CasesWritten + 1
	next, kept, err := r.transform(0, 0, r.boundary, caseNum)
	if err != nil || !kept {
		return err
	}

	if r.lag != nil {
		r.lag.push(r.work)
	}
	out := r.work
	if r.compact {
		r.cmap.Apply(r.out, r.work)
		out = r.out
	}
	if err := r.sink.WriteCase(out); err != nil {
		return err
	}
	r.stats.CasesWritten++

	_, kept, err = r.transform(r.boundary, next, len(r.pc.trns), caseNum)
	if err != nil || !kept {
		return err
	}

	if r.excluded() {
		r.stats.CasesExcluded++
		metrics.CasesExcluded.Inc()
		return nil
	}

	if r.split != nil && r.split.changed(r.work) {
		if err := r.newGroup(); err != nil {
			return err
		}
	}

	if r.stopped || r.proc.Case == nil {
		return nil
	}
	more, err := r.proc.Case(r.work)
	if err != nil {
		return err
	}
	r.stopped = !more
	return nil
}

// transform runs the segment [from, to) of the transformations over the
// working case, starting at start. It returns false when the case was
// deleted. A jump at or past to ends the segment and the returned index is
// where dispatch resumes. Jumps below from reach a segment the case has
// already left.
func (r *Run) transform(from, start, to int, caseNum int64) (int, bool, error) {
	trns := r.pc.trns
	i := start
	for i < to {
		res := trns[i].Apply(r.work, caseNum)
		if res.IsDelete() {
			r.stats.CasesDeleted++
			metrics.CasesDeleted.Inc()
			return i, false, nil
		}
		k, jump := res.Target()
		if !jump {
			i++
			continue
		}
		if k < 0 || k > len(trns) {
			return i, false, errors.Newf(errors.ErrorTypeInternal,
				"transformation %d jumped to %d, outside [0, %d]", i, k, len(trns))
		}
		if k < from {
			return i, false, errors.Newf(errors.ErrorTypeInternal,
				"transformation %d jumped back to %d across the TEMPORARY boundary at %d", i, k, from)
		}
		i = k
	}
	return i, true, nil
}

func (r *Run) excluded() bool {
	return excluded(r.filter, r.pc.processIf, r.work)
}

func excluded(filter *dictionary.Variable, processIf func(models.Case) bool, c models.Case) bool {
	if filter != nil {
		v := c[filter.FV()]
		if v.F == 0 || v.IsSysMis() || filter.MissingValues().IsUserMissing(v, 0) {
			return true
		}
	}
	return processIf != nil && !processIf(c)
}

func (r *Run) newGroup() error {
	if r.begun {
		if err := r.end(); err != nil {
			return err
		}
	}
	r.stats.SplitGroups++
	metrics.SplitGroups.Inc()
	values := r.split.values()
	if r.proc.GroupHeader != nil {
		r.proc.GroupHeader(values)
	}
	r.span.AddEvent("split.group")
	return r.begin()
}

func (r *Run) begin() error {
	r.begun = true
	if r.proc.Begin == nil {
		return nil
	}
	return r.proc.Begin()
}

func (r *Run) end() error {
	r.begun = false
	if r.proc.End == nil {
		return nil
	}
	return r.proc.End()
}

// Close finishes the run. After a successful Execute the new cases become
// the active source, the permanent dictionary becomes authoritative and,
// when cases were compacted, scratch variables are deleted and slots
// renumbered. After a failed Execute, or without Execute, the sink is
// discarded and the previous source stays active. Either way the
// transformations, the process-if predicate, the lag request, the case
// limit and the vectors are cleared.
func (r *Run) Close() (RunStats, error) {
	if r.state == stateClosed {
		return r.stats, errors.New(errors.ErrorTypeInternal, "procedure already closed")
	}
	pc := r.pc
	err := r.err
	if r.state == stateExecuted {
		err = r.commit()
	} else {
		r.abandon()
	}
	r.state = stateClosed
	r.lag = nil
	pc.run = nil
	pc.reset()

	r.stats.Duration = r.timer.Stop()
	metrics.ProcedureDuration.WithLabelValues(r.proc.Name).Observe(r.stats.Duration.Seconds())
	r.span.SetAttribute("cases_read", r.stats.CasesRead)
	r.span.SetAttribute("cases_written", r.stats.CasesWritten)
	r.span.SetAttribute("spilled", r.stats.Spilled)
	r.span.End(err)

	if err != nil {
		r.log.Error("procedure failed", r.stats.Field(), zap.Error(err))
	} else {
		r.log.Info("procedure completed", r.stats.Field())
	}
	return r.stats, err
}

func (r *Run) commit() error {
	pc := r.pc
	r.stats.Spilled = r.sink.OnDisk()
	src, err := r.sink.ToSource()
	if err != nil {
		r.abandon()
		return err
	}
	pc.SetSource(src)

	if pc.IsTemporary() {
		pc.dict = pc.permanent
		pc.permanent = nil
		pc.boundary = -1
	}
	if r.compact {
		pc.dict.DeleteScratchVars()
		pc.dict.CompactValues()
	}
	if got, want := len(src.Layout()), pc.dict.ValueCount(); got != want {
		return errors.Newf(errors.ErrorTypeInternal, "new active file has %d slots, dictionary has %d", got, want)
	}
	return nil
}

// abandon discards the sink and any temporary dictionary.
func (r *Run) abandon() {
	if err := r.sink.Close(); err != nil {
		r.log.Warn("discarding case sink", zap.Error(err))
	}
	r.pc.CancelTemporary()
}

// String describes the run for debugging.
func (r *Run) String() string {
	return fmt.Sprintf("run{%s: %d read, %d written}", r.proc.Name, r.stats.CasesRead, r.stats.CasesWritten)
}
