// Package pipeline runs procedures over the active file.
//
// # Overview
//
// A Context owns everything the original engine kept in globals: the
// working dictionary, the transformation list, the active case source, the
// TEMPORARY boundary, the requested lag depth and the process-if predicate.
// A procedure pulls every case from the source, runs the transformations
// over it, writes the surviving case to a new case stream and hands it to
// the procedure's callback. When the run completes, the new stream replaces
// the source.
//
// # Basic Usage
//
//	pc := pipeline.NewContext(dict, cfg, logger)
//	pc.SetSource(casestream.FromCases(dict.Layout(), cases))
//	pc.AddTransformation(pipeline.SelectIf(func(c models.Case) bool {
//	    return c.Num(age.FV()) >= 18
//	}))
//	stats, err := pc.Procedure(ctx, pipeline.Procedure{
//	    Case: func(c models.Case) (bool, error) {
//	        total += c.Num(income.FV())
//	        return true, nil
//	    },
//	})
//
// A Context is not safe for concurrent use and runs one procedure at a
// time. Separate contexts are independent.
package pipeline

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/casestream"
	"github.com/ajitpratap0/tabula/pkg/config"
	"github.com/ajitpratap0/tabula/pkg/diag"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// Context is the state shared by successive procedure runs.
type Context struct {
	cfg  *config.Config
	log  *zap.Logger
	diag diag.Sink

	dict      *dictionary.Dictionary
	permanent *dictionary.Dictionary
	boundary  int

	trns      []Transformation
	source    *casestream.Source
	lagDepth  int
	processIf func(models.Case) bool

	run *Run
}

// NewContext creates a context whose working dictionary is dict. A nil cfg
// uses config.NewDefault.
func NewContext(dict *dictionary.Dictionary, cfg *config.Config, log *zap.Logger) *Context {
	if dict == nil {
		dict = dictionary.New()
	}
	if cfg == nil {
		cfg = config.NewDefault()
	}
	log = logger.Component(log, "pipeline")
	return &Context{
		cfg:      cfg,
		log:      log,
		diag:     diag.NewLogSink(log),
		dict:     dict,
		boundary: -1,
	}
}

// Dict returns the working dictionary. After Temporary it is the temporary
// dictionary that later transformations see.
func (pc *Context) Dict() *dictionary.Dictionary { return pc.dict }

// PermanentDict returns the dictionary that will be authoritative after the
// next procedure.
func (pc *Context) PermanentDict() *dictionary.Dictionary {
	if pc.permanent != nil {
		return pc.permanent
	}
	return pc.dict
}

// SetDict replaces the working dictionary and cancels any temporary
// boundary.
func (pc *Context) SetDict(d *dictionary.Dictionary) {
	pc.CancelTemporary()
	pc.dict = d
}

// SetSource replaces the active case source, closing the previous one.
func (pc *Context) SetSource(src *casestream.Source) {
	if pc.source != nil && pc.source != src {
		if err := pc.source.Close(); err != nil {
			pc.log.Warn("closing previous case source", zap.Error(err))
		}
	}
	pc.source = src
}

// Source returns the active case source, or nil.
func (pc *Context) Source() *casestream.Source { return pc.source }

// Load drains r, whose cases have the working dictionary's layout, into a
// new active source. It plays the part of GET: the cases are buffered under
// the same workspace budget a procedure uses.
func (pc *Context) Load(r models.CaseReader) error {
	if pc.run != nil {
		return errors.New(errors.ErrorTypeInternal, "load while a procedure is running")
	}
	opts, err := pc.streamOptions(pc.dict.Layout(), 0)
	if err != nil {
		return err
	}
	src, err := casestream.FromReader(r, opts)
	if err != nil {
		return err
	}
	pc.SetSource(src)
	pc.log.Debug("active file loaded", zap.Int64("cases", src.CaseCount()), zap.Bool("on_disk", src.OnDisk()))
	return nil
}

func (pc *Context) streamOptions(layout models.Layout, estimate int64) (casestream.Options, error) {
	codec, err := pc.cfg.Workspace.Codec()
	if err != nil {
		return casestream.Options{}, err
	}
	return casestream.Options{
		Layout:         layout,
		Workspace:      pc.cfg.Workspace.EffectiveWorkspace(),
		TempDir:        pc.cfg.Workspace.TempDir,
		Compression:    codec,
		EstimatedCases: estimate,
		Logger:         pc.log,
	}, nil
}

// SetDiagnostics routes recoverable conditions to s instead of the logger.
func (pc *Context) SetDiagnostics(s diag.Sink) { pc.diag = diag.OrDiscard(s) }

// AddTransformation appends t and returns its index, usable as a jump
// target.
func (pc *Context) AddTransformation(t Transformation) int {
	pc.trns = append(pc.trns, t)
	return len(pc.trns) - 1
}

// TransformationCount returns the number of transformations queued.
func (pc *Context) TransformationCount() int { return len(pc.trns) }

// Temporary marks the current end of the transformation list as the
// boundary. Cases are persisted as they are when they reach it, and the
// dictionary as it is now becomes authoritative after the next procedure.
// Changes made to Dict from here on last for one procedure only. Calling
// Temporary twice has no further effect.
func (pc *Context) Temporary() {
	if pc.permanent != nil {
		return
	}
	pc.permanent = pc.dict
	pc.dict = pc.dict.Clone()
	pc.boundary = len(pc.trns)
}

// IsTemporary reports whether a temporary boundary is in effect.
func (pc *Context) IsTemporary() bool { return pc.permanent != nil }

// CancelTemporary discards the temporary dictionary and clears the
// boundary. Transformations queued after the boundary remain.
func (pc *Context) CancelTemporary() {
	if pc.permanent == nil {
		return
	}
	pc.dict = pc.permanent
	pc.permanent = nil
	pc.boundary = -1
}

// RequestLag ensures the next run keeps at least n previous cases.
func (pc *Context) RequestLag(n int) {
	if n > pc.lagDepth {
		pc.lagDepth = n
	}
}

// LagDepth returns the lag depth the next run will allocate.
func (pc *Context) LagDepth() int { return pc.lagDepth }

// SetProcessIf sets a predicate that must hold for a case to reach the
// procedure's callback. It applies to the next procedure only.
func (pc *Context) SetProcessIf(pred func(models.Case) bool) { pc.processIf = pred }

// Excluded reports whether c is kept from the callback by the filter
// variable or the process-if predicate. A filter value of 0, system-missing
// or user-missing excludes the case.
func (pc *Context) Excluded(c models.Case) bool {
	return excluded(pc.dict.Filter(), pc.processIf, c)
}

// CaseWeight returns the weight of c under the working dictionary.
func (pc *Context) CaseWeight(c models.Case) float64 { return pc.dict.CaseWeight(c) }

// Lagged returns the case k cases back in the active run, or nil when
// there is no active run or fewer than k cases have been seen.
func (pc *Context) Lagged(k int) models.Case {
	if pc.run == nil {
		return nil
	}
	return pc.run.Lagged(k)
}

// CancelTransformations discards every queued transformation, giving each
// a chance to release what it holds.
func (pc *Context) CancelTransformations() {
	for _, t := range pc.trns {
		if c, ok := t.(Canceler); ok {
			c.Cancel()
		}
	}
	pc.trns = nil
	if pc.permanent == nil {
		pc.boundary = -1
	} else {
		pc.boundary = 0
	}
}

// reset clears what lasts for one procedure only.
func (pc *Context) reset() {
	pc.CancelTransformations()
	pc.processIf = nil
	pc.lagDepth = 0
	pc.dict.SetCaseLimit(0)
	pc.dict.ClearVectors()
}

// Close releases the active source.
func (pc *Context) Close() error {
	if pc.source == nil {
		return nil
	}
	err := pc.source.Close()
	pc.source = nil
	return err
}
