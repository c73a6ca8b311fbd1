// Package dictionary holds variable metadata and owns the mapping from
// variables to value slots in a case.
//
// Variables are kept in order; that order is both the serialization order
// and, after CompactValues, the slot order. Deleting or reordering variables
// does not move slots. Callers batch such changes and then call
// CompactValues once before the layout is used for new I/O; the pipeline
// does this at the end of a procedure, after translating each case with
// CompactionMap.
package dictionary

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/models"
)

var (
	// ErrDuplicateName is returned when a name is already in use.
	ErrDuplicateName = stderrors.New("duplicate variable name")
	// ErrInvalidName is returned for names that break the naming rules.
	ErrInvalidName = stderrors.New("invalid variable name")
	// ErrInvalidWidth is returned for widths outside 0..255.
	ErrInvalidWidth = stderrors.New("invalid variable width")
)

const (
	// MaxFileLabelLen is the longest file label a system file can hold.
	MaxFileLabelLen = 64
	// DocumentLineLen is the fixed width of a document line.
	DocumentLineLen = 80
)

// Vector is a named, ordered group of variables.
type Vector struct {
	Name string
	Vars []*Variable
}

// Dictionary is an ordered collection of variables plus file-level roles.
type Dictionary struct {
	vars       []*Variable
	byName     map[string]*Variable
	valueCount int

	split     []*Variable
	weight    *Variable
	filter    *Variable
	caseLimit int64
	label     string
	documents []string
	vectors   []*Vector
}

// New returns an empty dictionary.
func New() *Dictionary {
	return &Dictionary{byName: make(map[string]*Variable)}
}

// VarCount returns the number of variables.
func (d *Dictionary) VarCount() int { return len(d.vars) }

// ValueCount returns the number of slots in a case.
func (d *Dictionary) ValueCount() int { return d.valueCount }

// Var returns the variable at index i.
func (d *Dictionary) Var(i int) *Variable { return d.vars[i] }

// Vars returns the variables in order. The slice must not be modified.
func (d *Dictionary) Vars() []*Variable { return d.vars }

// Lookup finds a variable by name, ignoring case.
func (d *Dictionary) Lookup(name string) *Variable {
	return d.byName[nameKey(name)]
}

// MustLookup is Lookup returning a not_found error.
func (d *Dictionary) MustLookup(name string) (*Variable, error) {
	if v := d.Lookup(name); v != nil {
		return v, nil
	}
	return nil, errors.Newf(errors.ErrorTypeNotFound, "variable %s not found", name)
}

// LookupAll resolves several names.
func (d *Dictionary) LookupAll(names []string) ([]*Variable, error) {
	out := make([]*Variable, len(names))
	for i, n := range names {
		v, err := d.MustLookup(n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *Dictionary) checkNew(name string, width int) error {
	if err := ValidName(name); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "create variable")
	}
	if width < 0 || width > models.MaxStringWidth {
		return errors.Wrapf(ErrInvalidWidth, errors.ErrorTypeConfig, "variable %s width %d", name, width)
	}
	if d.Lookup(name) != nil {
		return errors.Wrapf(ErrDuplicateName, errors.ErrorTypeConfig, "variable %s", name)
	}
	return nil
}

// CreateVar appends a variable of the given width (0 for numeric) at the
// end of the case. The dictionary is unchanged on error.
func (d *Dictionary) CreateVar(name string, width int) (*Variable, error) {
	if err := d.checkNew(name, width); err != nil {
		return nil, err
	}
	v := newVariable(name, width)
	d.appendVar(v)
	return v, nil
}

func (d *Dictionary) appendVar(v *Variable) {
	v.index = len(d.vars)
	v.fv = d.valueCount
	d.valueCount += v.NV()
	d.vars = append(d.vars, v)
	d.byName[nameKey(v.name)] = v
}

// CloneVar creates newName with src's width, formats, missing values and
// value labels. src may belong to another dictionary.
func (d *Dictionary) CloneVar(src *Variable, newName string) (*Variable, error) {
	v, err := d.CreateVar(newName, src.width)
	if err != nil {
		return nil, err
	}
	v.copyAttrs(src)
	return v, nil
}

// DeleteVar removes one variable. See DeleteVars.
func (d *Dictionary) DeleteVar(v *Variable) {
	d.DeleteVars([]*Variable{v})
}

// DeleteVars removes variables, renumbers the indexes of those that remain,
// drops them from the split, weight and filter roles, and clears every
// vector. Slots are not reclaimed until CompactValues.
func (d *Dictionary) DeleteVars(vs []*Variable) {
	if len(vs) == 0 {
		return
	}
	drop := make(map[*Variable]bool, len(vs))
	for _, v := range vs {
		if d.owns(v) {
			drop[v] = true
		}
	}
	if len(drop) == 0 {
		return
	}

	kept := d.vars[:0]
	for _, v := range d.vars {
		if drop[v] {
			delete(d.byName, nameKey(v.name))
			v.valueLabels = nil
			continue
		}
		v.index = len(kept)
		kept = append(kept, v)
	}
	for i := len(kept); i < len(d.vars); i++ {
		d.vars[i] = nil
	}
	d.vars = kept

	split := d.split[:0]
	for _, v := range d.split {
		if !drop[v] {
			split = append(split, v)
		}
	}
	d.split = split
	if drop[d.weight] {
		d.weight = nil
	}
	if drop[d.filter] {
		d.filter = nil
	}
	d.vectors = nil
}

// DeleteScratchVars deletes every scratch variable.
func (d *Dictionary) DeleteScratchVars() {
	var scratch []*Variable
	for _, v := range d.vars {
		if v.IsScratch() {
			scratch = append(scratch, v)
		}
	}
	d.DeleteVars(scratch)
}

func (d *Dictionary) owns(v *Variable) bool {
	return v != nil && v.index < len(d.vars) && d.vars[v.index] == v
}

// ReorderVars moves the given variables to the front in the given order; the
// remaining variables follow in their existing order.
func (d *Dictionary) ReorderVars(order []*Variable) error {
	seen := make(map[*Variable]bool, len(order))
	out := make([]*Variable, 0, len(d.vars))
	for _, v := range order {
		if !d.owns(v) {
			return errors.Newf(errors.ErrorTypeValidation, "reorder: %s is not in the dictionary", v)
		}
		if seen[v] {
			return errors.Newf(errors.ErrorTypeValidation, "reorder: %s listed twice", v.name)
		}
		seen[v] = true
		out = append(out, v)
	}
	for _, v := range d.vars {
		if !seen[v] {
			out = append(out, v)
		}
	}
	for i, v := range out {
		v.index = i
	}
	d.vars = out
	return nil
}

// RenameVar renames one variable.
func (d *Dictionary) RenameVar(v *Variable, name string) error {
	return d.RenameVars([]*Variable{v}, []string{name})
}

// RenameVars renames several variables at once. If any new name is invalid
// or collides with another variable's name or with a sibling's new name,
// nothing is renamed and the error names the colliding name.
func (d *Dictionary) RenameVars(vs []*Variable, names []string) error {
	if len(vs) != len(names) {
		return errors.Newf(errors.ErrorTypeValidation, "rename: %d variables but %d names", len(vs), len(names))
	}
	renamed := make(map[*Variable]bool, len(vs))
	for _, v := range vs {
		if !d.owns(v) {
			return errors.Newf(errors.ErrorTypeValidation, "rename: %s is not in the dictionary", v)
		}
		if renamed[v] {
			return errors.Newf(errors.ErrorTypeValidation, "rename: %s listed twice", v.name)
		}
		renamed[v] = true
	}

	// Stage: take every renamed variable out of the index.
	for _, v := range vs {
		delete(d.byName, nameKey(v.name))
	}
	rollback := func(staged int) {
		for _, name := range names[:staged] {
			delete(d.byName, nameKey(name))
		}
		for _, v := range d.vars {
			if renamed[v] {
				d.byName[nameKey(v.name)] = v
			}
		}
	}
	for i, v := range vs {
		name := names[i]
		if err := ValidName(name); err != nil {
			rollback(i)
			return errors.Wrap(err, errors.ErrorTypeConfig, "rename")
		}
		if _, taken := d.byName[nameKey(name)]; taken {
			rollback(i)
			return errors.Wrapf(ErrDuplicateName, errors.ErrorTypeConfig, "rename %s to %s", v.name, name).
				WithDetail("name", name)
		}
		d.byName[nameKey(name)] = v
	}

	// Commit.
	for i, v := range vs {
		v.name = names[i]
	}
	return nil
}

// CompactValues assigns slots contiguously in variable order.
func (d *Dictionary) CompactValues() {
	d.valueCount = 0
	for _, v := range d.vars {
		v.fv = d.valueCount
		d.valueCount += v.NV()
	}
}

// CompactedValueCount is the slot count after deleting scratch variables
// and compacting.
func (d *Dictionary) CompactedValueCount() int {
	n := 0
	for _, v := range d.vars {
		if !v.IsScratch() {
			n += v.NV()
		}
	}
	return n
}

// SlotMove copies Count slots from From in the current layout to To in the
// compacted layout.
type SlotMove struct {
	From, To, Count int
}

// CompactionMap describes how to turn a case in the current layout into a
// case in the compacted layout.
type CompactionMap []SlotMove

// CompactionMap returns the moves for every non-scratch variable, merging
// runs that are already contiguous.
func (d *Dictionary) CompactionMap() CompactionMap {
	var m CompactionMap
	to := 0
	for _, v := range d.vars {
		if v.IsScratch() {
			continue
		}
		nv := v.NV()
		if n := len(m); n > 0 && m[n-1].From+m[n-1].Count == v.fv && m[n-1].To+m[n-1].Count == to {
			m[n-1].Count += nv
		} else {
			m = append(m, SlotMove{From: v.fv, To: to, Count: nv})
		}
		to += nv
	}
	return m
}

// Apply copies src into dst according to the map.
func (m CompactionMap) Apply(dst, src models.Case) {
	for _, mv := range m {
		copy(dst[mv.To:mv.To+mv.Count], src[mv.From:mv.From+mv.Count])
	}
}

// Size is the number of slots in the compacted case.
func (m CompactionMap) Size() int {
	n := 0
	for _, mv := range m {
		n += mv.Count
	}
	return n
}

// Layout returns the slot kind of each slot of the current layout. Slots
// owned by no variable are numeric.
func (d *Dictionary) Layout() models.Layout {
	l := make(models.Layout, d.valueCount)
	for _, v := range d.vars {
		if v.IsString() {
			for i := 0; i < v.NV(); i++ {
				l[v.fv+i] = models.String
			}
		}
	}
	return l
}

// CompactedLayout is the layout after deleting scratch variables and
// compacting.
func (d *Dictionary) CompactedLayout() models.Layout {
	l := make(models.Layout, 0, d.CompactedValueCount())
	for _, v := range d.vars {
		if v.IsScratch() {
			continue
		}
		for i := 0; i < v.NV(); i++ {
			l = append(l, v.Kind())
		}
	}
	return l
}

// SetSplitVars sets the split-file variables. Order defines break order.
func (d *Dictionary) SetSplitVars(vs []*Variable) error {
	for _, v := range vs {
		if !d.owns(v) {
			return errors.Newf(errors.ErrorTypeValidation, "split: %s is not in the dictionary", v)
		}
	}
	d.split = append([]*Variable(nil), vs...)
	return nil
}

// SplitVars returns the split-file variables.
func (d *Dictionary) SplitVars() []*Variable { return d.split }

// SetWeight sets the weight variable, which must be numeric. nil clears it.
func (d *Dictionary) SetWeight(v *Variable) error {
	if v != nil {
		if !d.owns(v) {
			return errors.Newf(errors.ErrorTypeValidation, "weight: %s is not in the dictionary", v)
		}
		if !v.IsNumeric() {
			return errors.Newf(errors.ErrorTypeConfig, "weight variable %s must be numeric", v.name)
		}
	}
	d.weight = v
	return nil
}

// Weight returns the weight variable or nil.
func (d *Dictionary) Weight() *Variable { return d.weight }

// CaseWeight returns the weight of c: 1 without a weight variable or when
// the weight is system-missing, and never less than 0.
func (d *Dictionary) CaseWeight(c models.Case) float64 {
	if d.weight == nil {
		return 1
	}
	w := c.Num(d.weight.fv)
	if w == models.SysMis {
		return 1
	}
	if w < 0 {
		return 0
	}
	return w
}

// SetFilter sets the filter variable, which must be numeric. nil clears it.
func (d *Dictionary) SetFilter(v *Variable) error {
	if v != nil {
		if !d.owns(v) {
			return errors.Newf(errors.ErrorTypeValidation, "filter: %s is not in the dictionary", v)
		}
		if !v.IsNumeric() {
			return errors.Newf(errors.ErrorTypeConfig, "filter variable %s must be numeric", v.name)
		}
	}
	d.filter = v
	return nil
}

// Filter returns the filter variable or nil.
func (d *Dictionary) Filter() *Variable { return d.filter }

// SetCaseLimit limits how many cases the next procedure reads. 0 means no
// limit.
func (d *Dictionary) SetCaseLimit(n int64) {
	if n < 0 {
		n = 0
	}
	d.caseLimit = n
}

// CaseLimit returns the case limit, 0 if none.
func (d *Dictionary) CaseLimit() int64 { return d.caseLimit }

// SetLabel sets the file label, truncated to MaxFileLabelLen bytes.
func (d *Dictionary) SetLabel(s string) {
	if len(s) > MaxFileLabelLen {
		s = s[:MaxFileLabelLen]
	}
	d.label = s
}

// Label returns the file label.
func (d *Dictionary) Label() string { return d.label }

// AddDocument appends text to the documents, one line per input line,
// breaking lines longer than DocumentLineLen.
func (d *Dictionary) AddDocument(text string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \r")
		for len(line) > DocumentLineLen {
			d.documents = append(d.documents, line[:DocumentLineLen])
			line = line[DocumentLineLen:]
		}
		d.documents = append(d.documents, line)
	}
}

// SetDocuments replaces the documents with lines, each truncated to
// DocumentLineLen bytes with trailing spaces removed.
func (d *Dictionary) SetDocuments(lines []string) {
	d.documents = make([]string, 0, len(lines))
	for _, l := range lines {
		if len(l) > DocumentLineLen {
			l = l[:DocumentLineLen]
		}
		d.documents = append(d.documents, strings.TrimRight(l, " "))
	}
}

// Documents returns the document lines.
func (d *Dictionary) Documents() []string { return d.documents }

// ClearDocuments removes every document line.
func (d *Dictionary) ClearDocuments() { d.documents = nil }

// CreateVector defines a named vector over vs.
func (d *Dictionary) CreateVector(name string, vs []*Variable) error {
	if d.Vector(name) != nil {
		return errors.Newf(errors.ErrorTypeConfig, "vector %s already exists", name)
	}
	if len(vs) == 0 {
		return errors.Newf(errors.ErrorTypeValidation, "vector %s has no variables", name)
	}
	for _, v := range vs {
		if !d.owns(v) {
			return errors.Newf(errors.ErrorTypeValidation, "vector %s: %s is not in the dictionary", name, v)
		}
	}
	d.vectors = append(d.vectors, &Vector{Name: name, Vars: append([]*Variable(nil), vs...)})
	return nil
}

// Vector finds a vector by name, ignoring case.
func (d *Dictionary) Vector(name string) *Vector {
	for _, vec := range d.vectors {
		if strings.EqualFold(vec.Name, name) {
			return vec
		}
	}
	return nil
}

// Vectors returns every vector.
func (d *Dictionary) Vectors() []*Vector { return d.vectors }

// ClearVectors removes every vector.
func (d *Dictionary) ClearVectors() { d.vectors = nil }

// Clone returns a deep copy. Roles and vectors are carried over by name.
// Slot assignments are copied as they are, so a clone of an uncompacted
// dictionary is equally uncompacted.
func (d *Dictionary) Clone() *Dictionary {
	c := New()
	for _, v := range d.vars {
		nv := *v
		nv.valueLabels = v.valueLabels.Clone()
		nv.Aux = nil
		c.vars = append(c.vars, &nv)
		c.byName[nameKey(nv.name)] = &nv
	}
	c.valueCount = d.valueCount

	byName := func(v *Variable) *Variable {
		if v == nil {
			return nil
		}
		return c.Lookup(v.name)
	}
	for _, v := range d.split {
		c.split = append(c.split, byName(v))
	}
	c.weight = byName(d.weight)
	c.filter = byName(d.filter)
	c.caseLimit = d.caseLimit
	c.label = d.label
	c.documents = append([]string(nil), d.documents...)
	for _, vec := range d.vectors {
		nvec := &Vector{Name: vec.Name}
		for _, v := range vec.Vars {
			nvec.Vars = append(nvec.Vars, byName(v))
		}
		c.vectors = append(c.vectors, nvec)
	}
	return c
}

// NewCase returns a case in the current layout with numeric slots system
// missing and string slots blank.
func (d *Dictionary) NewCase() models.Case {
	return d.Layout().Blank()
}

func (d *Dictionary) String() string {
	names := make([]string, len(d.vars))
	for i, v := range d.vars {
		names[i] = v.name
	}
	return fmt.Sprintf("dictionary{%s; %d slots}", strings.Join(names, " "), d.valueCount)
}
