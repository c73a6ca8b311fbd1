package aggregate

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
)

// Func is an aggregation function.
type Func int

// Aggregation functions.
const (
	Sum Func = iota
	Mean
	SD
	Min
	Max
	PGT
	PLT
	PIN
	POUT
	FGT
	FLT
	FIN
	FOUT
	N
	NU
	NMiss
	NUMiss
	First
	Last
)

type funcInfo struct {
	name   string
	args   int
	strOK  bool
	format dictionary.Format
}

var (
	countFormat    = dictionary.Format{Type: dictionary.FmtF, Width: 8}
	percentFormat  = dictionary.Format{Type: dictionary.FmtF, Width: 5, Decimals: 1}
	fractionFormat = dictionary.Format{Type: dictionary.FmtF, Width: 5, Decimals: 3}
)

// A zero format means the source variable's format.
var funcs = [...]funcInfo{
	Sum:    {name: "SUM"},
	Mean:   {name: "MEAN"},
	SD:     {name: "SD"},
	Min:    {name: "MIN", strOK: true},
	Max:    {name: "MAX", strOK: true},
	PGT:    {name: "PGT", args: 1, format: percentFormat},
	PLT:    {name: "PLT", args: 1, format: percentFormat},
	PIN:    {name: "PIN", args: 2, format: percentFormat},
	POUT:   {name: "POUT", args: 2, format: percentFormat},
	FGT:    {name: "FGT", args: 1, format: fractionFormat},
	FLT:    {name: "FLT", args: 1, format: fractionFormat},
	FIN:    {name: "FIN", args: 2, format: fractionFormat},
	FOUT:   {name: "FOUT", args: 2, format: fractionFormat},
	N:      {name: "N", strOK: true, format: countFormat},
	NU:     {name: "NU", strOK: true, format: countFormat},
	NMiss:  {name: "NMISS", strOK: true, format: countFormat},
	NUMiss: {name: "NUMISS", strOK: true, format: countFormat},
	First:  {name: "FIRST", strOK: true},
	Last:   {name: "LAST", strOK: true},
}

func (f Func) String() string {
	if f >= 0 && int(f) < len(funcs) {
		return funcs[f].name
	}
	return "FUNC" + strconv.Itoa(int(f))
}

// ParseFunc looks up a function by name, ignoring case.
func ParseFunc(name string) (Func, bool) {
	name = strings.ToUpper(name)
	for i, info := range funcs {
		if info.name == name {
			return Func(i), true
		}
	}
	return 0, false
}

// counts reports whether f is exempt from columnwise missing handling.
func (f Func) counts() bool {
	return f == N || f == NU || f == NMiss || f == NUMiss
}

// percent reports whether f scales its fraction by 100.
func (f Func) percent() bool {
	return f == PGT || f == PLT || f == PIN || f == POUT
}

// Destination is one output variable and how it is computed.
type Destination struct {
	// Name of the output variable.
	Name string
	// Label is the optional variable label.
	Label string
	Func  Func
	// Source names the input variable. It may be empty only for N and NU,
	// which then count cases.
	Source string
	// Args are the thresholds of the P* and F* functions.
	Args []float64
	// IncludeUserMissing treats user-missing source values as valid.
	IncludeUserMissing bool
}

// ParseDestination parses NAME=FUNC(SOURCE[,A[,B]]). A period after the
// function name, as in SUM.(X), includes user-missing values. N and NU
// may omit the parenthesised part.
func ParseDestination(s string) (Destination, error) {
	var d Destination
	bad := func(msg string) (Destination, error) {
		return Destination{}, errors.Newf(errors.ErrorTypeConfig, "aggregate %q: %s", s, msg)
	}

	eq := strings.IndexByte(s, '=')
	if eq <= 0 {
		return bad("expected NAME=FUNC(VAR)")
	}
	d.Name = strings.TrimSpace(s[:eq])
	rest := strings.TrimSpace(s[eq+1:])

	fname, args := rest, ""
	if open := strings.IndexByte(rest, '('); open >= 0 {
		if !strings.HasSuffix(rest, ")") {
			return bad("missing closing parenthesis")
		}
		fname, args = strings.TrimSpace(rest[:open]), rest[open+1:len(rest)-1]
	}
	if strings.HasSuffix(fname, ".") {
		d.IncludeUserMissing = true
		fname = fname[:len(fname)-1]
	}
	f, ok := ParseFunc(fname)
	if !ok {
		return bad("unknown function " + fname)
	}
	d.Func = f

	if args == "" {
		if f != N && f != NU {
			return bad(f.String() + " needs a source variable")
		}
		return d, nil
	}
	parts := strings.Split(args, ",")
	d.Source = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return bad("argument " + strings.TrimSpace(p) + " is not a number")
		}
		d.Args = append(d.Args, x)
	}
	if len(d.Args) != funcs[f].args {
		return bad(f.String() + " takes " + strconv.Itoa(funcs[f].args) + " argument(s) after the variable")
	}
	return d, nil
}
