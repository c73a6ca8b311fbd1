// Package merge combines several sorted case streams side by side, the way
// MATCH FILES does.
//
// FILE inputs drive the merge: every distinct key among them yields one
// output case carrying the data of each FILE input positioned on that key.
// TABLE inputs are lookups: a table row is merged into every output case
// with an equal key and never produces a case of its own.
//
// Without key variables FILE inputs are matched by position and TABLE
// inputs are not allowed.
package merge

import (
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/models"
)

var (
	// ErrUnsorted is returned when an input's keys decrease.
	ErrUnsorted = stderrors.New("input is not sorted by the key variables")
	// ErrDuplicateKey is returned when a TABLE input repeats a key.
	ErrDuplicateKey = stderrors.New("duplicate key in table input")
)

// Kind distinguishes driving inputs from lookup tables.
type Kind int

const (
	// File inputs contribute output cases.
	File Kind = iota
	// Table inputs only supply values for matching keys.
	Table
)

func (k Kind) String() string {
	if k == Table {
		return "TABLE"
	}
	return "FILE"
}

// Input is one source of cases.
type Input struct {
	// Name identifies the input in errors and logs.
	Name   string
	Kind   Kind
	Dict   *dictionary.Dictionary
	Reader models.CaseReader
	// InVar, when set, names a numeric output variable that is 1 for cases
	// this input contributed to and 0 otherwise.
	InVar string
}

type mapping struct {
	src, dst *dictionary.Variable
}

type input struct {
	Input
	keys  []*dictionary.Variable
	maps  []mapping
	inVar *dictionary.Variable

	cur, prev models.Case
	eof       bool
	started   bool
	read      int64
}

// Merger produces the merged cases. It implements models.CaseReader.
type Merger struct {
	inputs  []*input
	keys    []*dictionary.Variable // output key variables
	out     *dictionary.Dictionary
	log     *zap.Logger
	primed  bool
	match   []bool
	written int64
}

// New validates the inputs and builds the output dictionary: every variable
// of every input in order of first appearance. In each merged case a
// variable shared by several inputs takes its value from the first input
// that contributed to the case. Sharing a name with a different width is an
// error.
func New(inputs []Input, keys []string) (*Merger, error) {
	if len(inputs) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "match: no inputs")
	}
	m := &Merger{
		out:   dictionary.New(),
		log:   zap.NewNop(),
		match: make([]bool, len(inputs)),
	}
	files := 0
	for i, in := range inputs {
		if in.Dict == nil || in.Reader == nil {
			return nil, errors.Newf(errors.ErrorTypeConfig, "match: input %d has no dictionary or reader", i+1)
		}
		if in.Name == "" {
			in.Name = in.Kind.String()
		}
		if in.Kind == File {
			files++
		} else if len(keys) == 0 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "match: table %s needs key variables", in.Name)
		}
		vars, err := in.Dict.LookupAll(keys)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeNotFound, "match: key variable in %s", in.Name)
		}
		m.inputs = append(m.inputs, &input{
			Input: in,
			keys:  vars,
			cur:   in.Dict.NewCase(),
			prev:  in.Dict.NewCase(),
		})
	}
	if files == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "match: at least one FILE input is required")
	}

	for _, in := range m.inputs {
		for _, v := range in.Dict.Vars() {
			dst := m.out.Lookup(v.Name())
			if dst == nil {
				var err error
				if dst, err = m.out.CloneVar(v, v.Name()); err != nil {
					return nil, err
				}
			} else if dst.Width() != v.Width() {
				return nil, errors.Newf(errors.ErrorTypeConfig,
					"match: %s has width %d in %s but %d in an earlier input", v.Name(), v.Width(), in.Name, dst.Width())
			}
			in.maps = append(in.maps, mapping{src: v, dst: dst})
		}
	}
	for i, name := range keys {
		kv := m.out.Lookup(name)
		m.keys = append(m.keys, kv)
		for _, in := range m.inputs {
			if in.keys[i].Width() != kv.Width() {
				return nil, errors.Newf(errors.ErrorTypeConfig,
					"match: key %s has width %d in %s but %d in an earlier input", name, in.keys[i].Width(), in.Name, kv.Width())
			}
		}
	}
	for _, in := range m.inputs {
		if in.InVar == "" {
			continue
		}
		v, err := m.out.CreateVar(in.InVar, 0)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "match: IN variable for %s", in.Name)
		}
		if err := v.SetFormats(dictionary.Format{Type: dictionary.FmtF, Width: 1}, dictionary.Format{Type: dictionary.FmtF, Width: 1}); err != nil {
			return nil, err
		}
		in.inVar = v
	}
	return m, nil
}

// WithLogger sets the logger used for the summary at end of input.
func (m *Merger) WithLogger(log *zap.Logger) *Merger {
	m.log = logger.Component(log, "merge")
	return m
}

// OutputDictionary describes the merged cases.
func (m *Merger) OutputDictionary() *dictionary.Dictionary { return m.out }

// CasesWritten returns the number of merged cases produced so far.
func (m *Merger) CasesWritten() int64 { return m.written }

// compareKeys orders a's keys against b's. Key widths agree across inputs,
// so ka's variables describe both.
func compareKeys(ka []*dictionary.Variable, a models.Case, kb []*dictionary.Variable, b models.Case) int {
	for i, v := range ka {
		if c := v.Compare(a, v.FV(), b, kb[i].FV()); c != 0 {
			return c
		}
	}
	return 0
}

// advance reads the next case of in and checks its order against the one
// it replaces.
func (m *Merger) advance(in *input) error {
	if in.eof {
		return nil
	}
	in.cur, in.prev = in.prev, in.cur
	ok, err := in.Reader.ReadCase(in.cur)
	if err != nil {
		return err
	}
	if !ok {
		in.eof = true
		return nil
	}
	in.read++
	if in.started && len(in.keys) > 0 {
		switch c := compareKeys(in.keys, in.cur, in.keys, in.prev); {
		case c < 0:
			return errors.Wrapf(ErrUnsorted, errors.ErrorTypeValidation, "match: %s case %d", in.Name, in.read)
		case c == 0 && in.Kind == Table:
			return errors.Wrapf(ErrDuplicateKey, errors.ErrorTypeValidation, "match: %s case %d", in.Name, in.read)
		}
	}
	in.started = true
	return nil
}

// ReadCase writes the next merged case into dst, which must have the output
// dictionary's layout.
func (m *Merger) ReadCase(dst models.Case) (bool, error) {
	if !m.primed {
		for _, in := range m.inputs {
			if err := m.advance(in); err != nil {
				return false, err
			}
		}
		m.primed = true
	} else {
		for i, in := range m.inputs {
			if m.match[i] && in.Kind == File {
				if err := m.advance(in); err != nil {
					return false, err
				}
			}
		}
	}

	var min *input
	for _, in := range m.inputs {
		if in.Kind != File || in.eof {
			continue
		}
		if min == nil || (len(m.keys) > 0 && compareKeys(in.keys, in.cur, min.keys, min.cur) < 0) {
			min = in
		}
	}
	if min == nil {
		m.log.Debug("merge finished", zap.Int64("cases", m.written))
		return false, nil
	}

	for i, in := range m.inputs {
		m.match[i] = false
		switch {
		case in.Kind == File:
			m.match[i] = !in.eof && (len(m.keys) == 0 || compareKeys(in.keys, in.cur, min.keys, min.cur) == 0)
		default:
			for !in.eof && compareKeys(in.keys, in.cur, min.keys, min.cur) < 0 {
				if err := m.advance(in); err != nil {
					return false, err
				}
			}
			m.match[i] = !in.eof && compareKeys(in.keys, in.cur, min.keys, min.cur) == 0
		}
	}

	copy(dst, m.out.NewCase())
	// Last to first, so earlier inputs overwrite shared variables.
	for i := len(m.inputs) - 1; i >= 0; i-- {
		in := m.inputs[i]
		if in.inVar != nil {
			flag := 0.0
			if m.match[i] {
				flag = 1
			}
			dst.SetNum(in.inVar.FV(), flag)
		}
		if !m.match[i] {
			continue
		}
		for _, mp := range in.maps {
			copy(dst[mp.dst.FV():mp.dst.FV()+mp.dst.NV()], in.cur[mp.src.FV():mp.src.FV()+mp.src.NV()])
		}
	}
	m.written++
	return true, nil
}

// Run writes every merged case to w.
func (m *Merger) Run(w models.CaseWriter) error {
	c := m.out.NewCase()
	for {
		ok, err := m.ReadCase(c)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := w.WriteCase(c); err != nil {
			return err
		}
	}
}
