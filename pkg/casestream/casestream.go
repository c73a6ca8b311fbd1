// Package casestream stores the cases produced by one procedure run so the
// next run can read them back.
//
// A Sink accepts cases one at a time. It starts in memory and, once the
// workspace budget would be exceeded, moves every buffered case to a
// temporary file and keeps writing there. The move is one way. ToSource
// turns the sink into a Source that replays the cases in write order.
//
//	sink, err := casestream.NewSink(casestream.Options{Layout: layout})
//	for _, c := range cases {
//	    if err := sink.WriteCase(c); err != nil { ... }
//	}
//	src, err := sink.ToSource()
//	defer src.Close()
//	err = src.Read(func(c models.Case) error { ... })
package casestream

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/config"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/metrics"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// Options configures a Sink.
type Options struct {
	// Layout is the slot layout of every case written.
	Layout models.Layout
	// Workspace is the in-memory budget in bytes. Zero means
	// config.DefaultWorkspace; a negative value forces disk mode.
	Workspace int64
	// TempDir holds the temporary file; empty means os.TempDir().
	TempDir string
	// Compression wraps the temporary file. nil means no compression.
	Compression compression.Codec
	// EstimatedCases, when positive, selects disk mode up front if that
	// many cases cannot fit in the workspace.
	EstimatedCases int64
	// Logger receives stream events. nil disables logging.
	Logger *zap.Logger
}

// Sink accumulates cases. It is not safe for concurrent use.
type Sink struct {
	layout   models.Layout
	opts     Options
	log      *zap.Logger
	maxCases int64

	mem   []models.Value
	disk  *diskFile
	count int64
	done  bool
}

// NewSink creates a sink for opts.Layout.
func NewSink(opts Options) (*Sink, error) {
	workspace := opts.Workspace
	if workspace == 0 {
		workspace = config.DefaultWorkspace
	}
	caseBytes := int64(opts.Layout.Bytes())
	if caseBytes == 0 {
		caseBytes = models.SlotWidth
	}

	s := &Sink{
		layout: opts.Layout,
		opts:   opts,
		log:    logger.Component(opts.Logger, "casestream"),
	}
	if workspace > 0 {
		s.maxCases = workspace / caseBytes
	}

	if workspace < 0 || (opts.EstimatedCases > 0 && opts.EstimatedCases > s.maxCases) {
		s.log.Debug("writing cases directly to disk",
			zap.Int64("estimated_cases", opts.EstimatedCases),
			zap.Int64("workspace_bytes", workspace),
			zap.Int64("case_bytes", caseBytes))
		d, err := createDiskFile(opts.TempDir, opts.Layout, opts.Compression, s.log)
		if err != nil {
			return nil, err
		}
		s.disk = d
	}
	return s, nil
}

// Layout returns the sink's slot layout.
func (s *Sink) Layout() models.Layout { return s.layout }

// CaseCount returns the number of cases written so far.
func (s *Sink) CaseCount() int64 { return s.count }

// OnDisk reports whether the sink has moved to its temporary file.
func (s *Sink) OnDisk() bool { return s.disk != nil }

// WriteCase appends the first len(Layout) slots of c.
func (s *Sink) WriteCase(c models.Case) error {
	if s.done {
		return errors.New(errors.ErrorTypeInternal, "write to a finished case stream")
	}
	if len(c) < len(s.layout) {
		return errors.Newf(errors.ErrorTypeInternal, "case has %d slots, stream layout has %d", len(c), len(s.layout))
	}
	if s.disk == nil && s.count >= s.maxCases {
		if err := s.spill(); err != nil {
			return err
		}
	}
	if s.disk != nil {
		if err := s.disk.write(c); err != nil {
			return err
		}
		metrics.CasesWritten.WithLabelValues(metrics.StreamDisk).Inc()
	} else {
		s.mem = append(s.mem, c[:len(s.layout)]...)
		metrics.CasesWritten.WithLabelValues(metrics.StreamMemory).Inc()
	}
	s.count++
	return nil
}

// spill moves every buffered case to a temporary file.
func (s *Sink) spill() error {
	d, err := createDiskFile(s.opts.TempDir, s.layout, s.opts.Compression, s.log)
	if err != nil {
		return err
	}
	n := len(s.layout)
	for i := int64(0); i < s.count; i++ {
		if err := d.write(s.mem[i*int64(n) : (i+1)*int64(n)]); err != nil {
			d.remove()
			return err
		}
	}
	s.log.Warn("case stream moved to disk",
		zap.Error(errors.New(errors.ErrorTypeResource, "workspace exhausted")),
		zap.Int64("cases", s.count),
		zap.Int64("workspace_bytes", s.maxCases*int64(s.layout.Bytes())),
		zap.String("path", d.path))
	metrics.Spills.Inc()
	s.mem = nil
	s.disk = d
	return nil
}

// ToSource finishes writing and returns a Source over the cases written.
// The sink must not be used afterwards.
func (s *Sink) ToSource() (*Source, error) {
	if s.done {
		return nil, errors.New(errors.ErrorTypeInternal, "case stream already finished")
	}
	s.done = true
	src := &Source{layout: s.layout, count: s.count, log: s.log}
	if s.disk != nil {
		if err := s.disk.finishWrite(); err != nil {
			s.disk.remove()
			s.disk = nil
			return nil, err
		}
		src.disk = s.disk
		s.disk = nil
	} else {
		src.mem = s.mem
		s.mem = nil
	}
	return src, nil
}

// Close discards a sink that will not be turned into a source, removing
// its temporary file. It is a no-op after ToSource.
func (s *Sink) Close() error {
	s.done = true
	s.mem = nil
	if s.disk == nil {
		return nil
	}
	err := s.disk.remove()
	s.disk = nil
	return err
}

// FromCases returns a memory source holding copies of cases.
func FromCases(layout models.Layout, cases []models.Case) *Source {
	n := len(layout)
	mem := make([]models.Value, 0, n*len(cases))
	for _, c := range cases {
		mem = append(mem, c[:n]...)
	}
	return &Source{layout: layout, count: int64(len(cases)), mem: mem, log: zap.NewNop()}
}

// FromReader drains r into a sink configured by opts and returns the
// resulting source.
func FromReader(r models.CaseReader, opts Options) (*Source, error) {
	sink, err := NewSink(opts)
	if err != nil {
		return nil, err
	}
	c := opts.Layout.Blank()
	for {
		ok, err := r.ReadCase(c)
		if err != nil {
			sink.Close()
			return nil, err
		}
		if !ok {
			break
		}
		if err := sink.WriteCase(c); err != nil {
			sink.Close()
			return nil, err
		}
	}
	return sink.ToSource()
}
