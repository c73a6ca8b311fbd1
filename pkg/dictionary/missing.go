package dictionary

import (
	"fmt"

	"github.com/ajitpratap0/tabula/pkg/models"
)

// MissingKind enumerates the shapes a user-missing specification can take.
type MissingKind uint8

const (
	MissingNone MissingKind = iota
	MissingDiscrete
	MissingRange
	MissingLow
	MissingHigh
	MissingRangeDiscrete
	MissingLowDiscrete
	MissingHighDiscrete
)

func (k MissingKind) String() string {
	switch k {
	case MissingDiscrete:
		return "discrete"
	case MissingRange:
		return "range"
	case MissingLow:
		return "low"
	case MissingHigh:
		return "high"
	case MissingRangeDiscrete:
		return "range+1"
	case MissingLowDiscrete:
		return "low+1"
	case MissingHighDiscrete:
		return "high+1"
	default:
		return "none"
	}
}

// MissingValues is a variable's user-missing specification: up to three
// discrete values, a closed range, or a range plus one discrete value. LOW
// and HIGH ranges are stored with Lo = models.Lowest or Hi = models.Highest.
type MissingValues struct {
	kind     MissingKind
	n        int
	discrete [3]models.Value
	Lo, Hi   float64
}

// Kind returns the specification shape.
func (m *MissingValues) Kind() MissingKind { return m.kind }

// IsEmpty reports whether no values are missing.
func (m *MissingValues) IsEmpty() bool { return m.kind == MissingNone }

// HasRange reports whether the specification includes a range.
func (m *MissingValues) HasRange() bool {
	return m.kind >= MissingRange
}

// Discrete returns the discrete values.
func (m *MissingValues) Discrete() []models.Value {
	return m.discrete[:m.n]
}

// Clear removes every missing value.
func (m *MissingValues) Clear() {
	*m = MissingValues{}
}

// AddValue adds a discrete missing value. At most three discrete values, or
// one alongside a range, are allowed.
func (m *MissingValues) AddValue(v models.Value) error {
	switch m.kind {
	case MissingNone, MissingDiscrete:
		if m.n == 3 {
			return fmt.Errorf("at most three discrete missing values")
		}
		m.kind = MissingDiscrete
	case MissingRange:
		m.kind = MissingRangeDiscrete
	case MissingLow:
		m.kind = MissingLowDiscrete
	case MissingHigh:
		m.kind = MissingHighDiscrete
	default:
		return fmt.Errorf("a range already carries its discrete missing value")
	}
	m.discrete[m.n] = v
	m.n++
	return nil
}

// AddNum adds a numeric discrete missing value.
func (m *MissingValues) AddNum(f float64) error {
	return m.AddValue(models.NumValue(f))
}

// AddString adds a short-string discrete missing value.
func (m *MissingValues) AddString(s string) error {
	c := models.NewCase(1)
	c.SetStr(0, models.SlotWidth, s)
	return m.AddValue(c[0])
}

// SetRange makes [lo, hi] missing. A lower bound of models.Lowest is a LOW
// range and an upper bound of models.Highest is a HIGH range. One existing
// discrete value is kept.
func (m *MissingValues) SetRange(lo, hi float64) error {
	if lo > hi {
		return fmt.Errorf("missing range %g thru %g is empty", lo, hi)
	}
	if m.n > 1 || m.HasRange() {
		return fmt.Errorf("a range may be combined with at most one discrete value")
	}
	kind := MissingRange
	switch {
	case lo == models.Lowest:
		kind = MissingLow
	case hi == models.Highest:
		kind = MissingHigh
	}
	if m.n == 1 {
		kind += MissingRangeDiscrete - MissingRange
	}
	m.kind, m.Lo, m.Hi = kind, lo, hi
	return nil
}

// SetLow makes LOWEST THRU hi missing.
func (m *MissingValues) SetLow(hi float64) error { return m.SetRange(models.Lowest, hi) }

// SetHigh makes lo THRU HIGHEST missing.
func (m *MissingValues) SetHigh(lo float64) error { return m.SetRange(lo, models.Highest) }

// IsNumMissing reports whether f is user-missing. System-missing is not
// covered here; see IsMissing.
func (m *MissingValues) IsNumMissing(f float64) bool {
	for i := 0; i < m.n; i++ {
		if m.discrete[i].F == f {
			return true
		}
	}
	return m.HasRange() && f >= m.Lo && f <= m.Hi && f != models.SysMis
}

// IsUserMissing reports whether the slot value v of a variable of the given
// width is user-missing.
func (m *MissingValues) IsUserMissing(v models.Value, width int) bool {
	if width == 0 {
		return m.IsNumMissing(v.F)
	}
	for i := 0; i < m.n; i++ {
		if m.discrete[i].S == v.S {
			return true
		}
	}
	return false
}

// IsMissing reports whether v is user-missing or, for numeric variables,
// system-missing.
func (m *MissingValues) IsMissing(v models.Value, width int) bool {
	if width == 0 && v.F == models.SysMis {
		return true
	}
	return m.IsUserMissing(v, width)
}

// Equal compares two specifications.
func (m *MissingValues) Equal(o *MissingValues) bool {
	return *m == *o
}
