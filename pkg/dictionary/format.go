package dictionary

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatType is a display format code as stored in system files.
type FormatType int

// Format codes. Gaps in the numbering are codes no writer produces.
const (
	FmtA        FormatType = 1
	FmtAHEX     FormatType = 2
	FmtCOMMA    FormatType = 3
	FmtDOLLAR   FormatType = 4
	FmtF        FormatType = 5
	FmtIB       FormatType = 6
	FmtPIBHEX   FormatType = 7
	FmtP        FormatType = 8
	FmtPIB      FormatType = 9
	FmtPK       FormatType = 10
	FmtRB       FormatType = 11
	FmtRBHEX    FormatType = 12
	FmtZ        FormatType = 15
	FmtN        FormatType = 16
	FmtE        FormatType = 17
	FmtDATE     FormatType = 20
	FmtTIME     FormatType = 21
	FmtDATETIME FormatType = 22
	FmtADATE    FormatType = 23
	FmtJDATE    FormatType = 24
	FmtDTIME    FormatType = 25
	FmtWKDAY    FormatType = 26
	FmtMONTH    FormatType = 27
	FmtMOYR     FormatType = 28
	FmtQYR      FormatType = 29
	FmtWKYR     FormatType = 30
	FmtPCT      FormatType = 31
	FmtDOT      FormatType = 32
	FmtCCA      FormatType = 33
	FmtCCB      FormatType = 34
	FmtCCC      FormatType = 35
	FmtCCD      FormatType = 36
	FmtCCE      FormatType = 37
	FmtEDATE    FormatType = 38
	FmtSDATE    FormatType = 39
)

var formatNames = map[FormatType]string{
	FmtA: "A", FmtAHEX: "AHEX", FmtCOMMA: "COMMA", FmtDOLLAR: "DOLLAR",
	FmtF: "F", FmtIB: "IB", FmtPIBHEX: "PIBHEX", FmtP: "P", FmtPIB: "PIB",
	FmtPK: "PK", FmtRB: "RB", FmtRBHEX: "RBHEX", FmtZ: "Z", FmtN: "N",
	FmtE: "E", FmtDATE: "DATE", FmtTIME: "TIME", FmtDATETIME: "DATETIME",
	FmtADATE: "ADATE", FmtJDATE: "JDATE", FmtDTIME: "DTIME", FmtWKDAY: "WKDAY",
	FmtMONTH: "MONTH", FmtMOYR: "MOYR", FmtQYR: "QYR", FmtWKYR: "WKYR",
	FmtPCT: "PCT", FmtDOT: "DOT", FmtCCA: "CCA", FmtCCB: "CCB", FmtCCC: "CCC",
	FmtCCD: "CCD", FmtCCE: "CCE", FmtEDATE: "EDATE", FmtSDATE: "SDATE",
}

// Known reports whether t is a recognized format code.
func (t FormatType) Known() bool {
	_, ok := formatNames[t]
	return ok
}

// IsString reports whether t formats string variables.
func (t FormatType) IsString() bool {
	return t == FmtA || t == FmtAHEX
}

func (t FormatType) String() string {
	if n, ok := formatNames[t]; ok {
		return n
	}
	return fmt.Sprintf("FMT%d", int(t))
}

// Format is a print or write format: type, field width and decimal places.
type Format struct {
	Type     FormatType
	Width    int
	Decimals int
}

// DefaultFormat returns F8.2 for numeric variables and A<width> for strings.
func DefaultFormat(width int) Format {
	if width == 0 {
		return Format{Type: FmtF, Width: 8, Decimals: 2}
	}
	return Format{Type: FmtA, Width: width}
}

// Pack encodes the format as (type << 16) | (width << 8) | decimals.
func (f Format) Pack() int32 {
	return int32(f.Type)<<16 | int32(f.Width&0xff)<<8 | int32(f.Decimals&0xff)
}

// UnpackFormat is the inverse of Pack.
func UnpackFormat(p int32) Format {
	return Format{
		Type:     FormatType((p >> 16) & 0xff),
		Width:    int((p >> 8) & 0xff),
		Decimals: int(p & 0xff),
	}
}

func (f Format) String() string {
	if f.Type.IsString() || f.Decimals == 0 {
		return fmt.Sprintf("%s%d", f.Type, f.Width)
	}
	return fmt.Sprintf("%s%d.%d", f.Type, f.Width, f.Decimals)
}

// ParseFormat parses "F8.2", "A10", "COMMA12.1".
func ParseFormat(s string) (Format, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	i := strings.IndexAny(s, "0123456789")
	if i <= 0 {
		return Format{}, fmt.Errorf("format %q: missing type or width", s)
	}
	name, rest := s[:i], s[i:]
	var typ FormatType
	for t, n := range formatNames {
		if n == name {
			typ = t
			break
		}
	}
	if typ == 0 {
		return Format{}, fmt.Errorf("format %q: unknown type %s", s, name)
	}
	f := Format{Type: typ}
	w, d, hasDot := strings.Cut(rest, ".")
	var err error
	if f.Width, err = strconv.Atoi(w); err != nil {
		return Format{}, fmt.Errorf("format %q: bad width", s)
	}
	if hasDot {
		if f.Decimals, err = strconv.Atoi(d); err != nil {
			return Format{}, fmt.Errorf("format %q: bad decimals", s)
		}
	}
	return f, nil
}

// CheckFor validates f for a variable of the given width (0 = numeric).
func (f Format) CheckFor(width int) error {
	if !f.Type.Known() {
		return fmt.Errorf("unknown format type %d", int(f.Type))
	}
	if width > 0 {
		switch f.Type {
		case FmtA:
			if f.Width != width {
				return fmt.Errorf("format %s does not match string width %d", f, width)
			}
		case FmtAHEX:
			if f.Width != 2*width {
				return fmt.Errorf("format %s does not match string width %d", f, width)
			}
		default:
			return fmt.Errorf("numeric format %s used with string variable", f)
		}
		return nil
	}
	if f.Type.IsString() {
		return fmt.Errorf("string format %s used with numeric variable", f)
	}
	if f.Width < 1 || f.Width > 40 {
		return fmt.Errorf("format %s: width out of range", f)
	}
	if f.Decimals < 0 || f.Decimals > 16 || (f.Decimals > 0 && f.Decimals >= f.Width) {
		return fmt.Errorf("format %s: decimals out of range", f)
	}
	return nil
}
