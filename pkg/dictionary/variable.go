package dictionary

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ajitpratap0/tabula/pkg/models"
)

// MaxNameLen is the longest variable name.
const MaxNameLen = 8

// MaxLabelLen is the longest variable label.
const MaxLabelLen = 255

// Variable describes one column of a case.
type Variable struct {
	name  string
	width int
	index int
	fv    int

	print, write Format
	missing      MissingValues
	valueLabels  *ValueLabels

	// Label is the optional descriptive label.
	Label string
	// Left variables keep their value from one case to the next instead of
	// being reset before each case.
	Left bool
	// Aux is scratch space for the procedure currently using the variable.
	Aux interface{}
}

func newVariable(name string, width int) *Variable {
	return &Variable{
		name:  name,
		width: width,
		print: DefaultFormat(width),
		write: DefaultFormat(width),
	}
}

// Name returns the variable name.
func (v *Variable) Name() string { return v.name }

// Width is 0 for numeric variables, otherwise the string width in bytes.
func (v *Variable) Width() int { return v.width }

// Index is the position of the variable in its dictionary.
func (v *Variable) Index() int { return v.index }

// FV is the first value slot the variable occupies in a case.
func (v *Variable) FV() int { return v.fv }

// NV is the number of value slots the variable occupies.
func (v *Variable) NV() int { return models.SlotCount(v.width) }

// IsNumeric reports whether the variable is numeric.
func (v *Variable) IsNumeric() bool { return v.width == 0 }

// IsString reports whether the variable is a string.
func (v *Variable) IsString() bool { return v.width > 0 }

// IsLongString reports whether the variable spans more than one slot.
func (v *Variable) IsLongString() bool { return v.width > models.SlotWidth }

// Kind is the slot kind of the variable's slots.
func (v *Variable) Kind() models.SlotKind {
	if v.width > 0 {
		return models.String
	}
	return models.Numeric
}

// IsScratch reports whether the variable is a scratch variable. Scratch
// variables are never written to persisted output.
func (v *Variable) IsScratch() bool { return IsScratchName(v.name) }

// PrintFormat returns the print format.
func (v *Variable) PrintFormat() Format { return v.print }

// WriteFormat returns the write format.
func (v *Variable) WriteFormat() Format { return v.write }

// SetFormats sets the print and write formats after checking them against
// the variable's type.
func (v *Variable) SetFormats(print, write Format) error {
	if err := print.CheckFor(v.width); err != nil {
		return fmt.Errorf("variable %s print format: %w", v.name, err)
	}
	if err := write.CheckFor(v.width); err != nil {
		return fmt.Errorf("variable %s write format: %w", v.name, err)
	}
	v.print, v.write = print, write
	return nil
}

// MissingValues returns the user-missing specification.
func (v *Variable) MissingValues() *MissingValues { return &v.missing }

// SetMissingValues replaces the user-missing specification. Long strings
// cannot have missing values, and string variables cannot have ranges.
func (v *Variable) SetMissingValues(mv MissingValues) error {
	if !mv.IsEmpty() {
		if v.IsLongString() {
			return fmt.Errorf("variable %s: long string variables may not have missing values", v.name)
		}
		if v.IsString() && mv.HasRange() {
			return fmt.Errorf("variable %s: string variables may not have missing value ranges", v.name)
		}
	}
	v.missing = mv
	return nil
}

// IsMissing reports whether the variable's value in c is missing: system
// missing or user missing for numeric variables, user missing for strings.
func (v *Variable) IsMissing(c models.Case) bool {
	return v.missing.IsMissing(c[v.fv], v.width)
}

// ValueLabels returns the value labels, or nil if there are none.
func (v *Variable) ValueLabels() *ValueLabels { return v.valueLabels }

// SetValueLabels replaces the value labels. nil removes them.
func (v *Variable) SetValueLabels(vl *ValueLabels) error {
	if vl.Len() > 0 {
		if v.IsLongString() {
			return fmt.Errorf("variable %s: long string variables may not have value labels", v.name)
		}
		if vl.Width() != v.width && (vl.Width() == 0 || v.width == 0) {
			return fmt.Errorf("variable %s: value labels of the wrong type", v.name)
		}
	}
	v.valueLabels = vl
	return nil
}

// AddValueLabel labels one value, replacing an existing label.
func (v *Variable) AddValueLabel(val models.Value, label string) error {
	if v.IsLongString() {
		return fmt.Errorf("variable %s: long string variables may not have value labels", v.name)
	}
	if v.valueLabels == nil {
		v.valueLabels = NewValueLabels(v.width)
	}
	v.valueLabels.Replace(val, label)
	return nil
}

// ValueLabel returns the label of the variable's value in c.
func (v *Variable) ValueLabel(c models.Case) (string, bool) {
	return v.valueLabels.Get(c[v.fv])
}

// Compare orders the variable's value in case a, stored from slot fa,
// against its value in case b, stored from slot fb. Numbers compare
// numerically, with system-missing lowest. Strings compare bytewise over
// the variable's width.
func (v *Variable) Compare(a models.Case, fa int, b models.Case, fb int) int {
	if v.width == 0 {
		x, y := a[fa].F, b[fb].F
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	width := v.width
	for i := 0; width > 0; i++ {
		n := width
		if n > models.SlotWidth {
			n = models.SlotWidth
		}
		if c := bytes.Compare(a[fa+i].S[:n], b[fb+i].S[:n]); c != 0 {
			return c
		}
		width -= n
	}
	return 0
}

// copyAttrs copies formats, missing values and value labels from src.
func (v *Variable) copyAttrs(src *Variable) {
	v.print, v.write = src.print, src.write
	v.missing = src.missing
	v.valueLabels = src.valueLabels.Clone()
}

func (v *Variable) String() string {
	if v.width == 0 {
		return v.name
	}
	return fmt.Sprintf("%s (A%d)", v.name, v.width)
}

// IsScratchName reports whether name names a scratch variable.
func IsScratchName(name string) bool {
	return strings.HasPrefix(name, "#")
}

// ValidName reports whether name is a legal variable name: 1 to 8 bytes, a
// letter or one of @ # $ first, then letters, digits or . @ # $ _.
func ValidName(name string) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return fmt.Errorf("%w: %q must be 1 to %d bytes long", ErrInvalidName, name, MaxNameLen)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c == '@', c == '#', c == '$':
		case i > 0 && (c >= '0' && c <= '9' || c == '.' || c == '_'):
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, c)
		}
	}
	return nil
}

func nameKey(name string) string { return strings.ToUpper(name) }
