// Package sysfile reads and writes binary system files: a fixed header, one
// variable record per value slot, optional value-label, document and
// extension records, a terminator, and the case data either raw or
// compressed with the bias opcode scheme.
//
// The byte order of a file is discovered from its layout code and every
// multi-byte field is converted as a unit. Writers use the host byte order
// unless told otherwise.
package sysfile

import (
	"math"

	"github.com/ajitpratap0/tabula/pkg/models"
)

// Record types.
const (
	recVariable       = 2
	recValueLabels    = 3
	recValueLabelVars = 4
	recDocument       = 6
	recExtension      = 7
	recEnd            = 999
)

// Extension record subtypes.
const (
	extMachineInteger = 3
	extMachineFloat   = 4
)

const (
	magic         = "$FL2"
	productPrefix = "@(#) SPSS DATA FILE "
	layoutCode    = 2

	productLen = 60
	dateLen    = 9
	timeLen    = 8
	labelLen   = 64
	headerLen  = 176

	// ncasesOffset is where the case count lives in the header.
	ncasesOffset = 80

	// DefaultBias is the conventional compression bias.
	DefaultBias = 100.0

	// floatIEEE is the machine-integer record's code for IEEE-754 doubles.
	floatIEEE = 1
)

// Character codes in the machine-integer record.
const (
	charEBCDIC   = 1
	charASCII7   = 2
	charASCII8   = 3
	charDECKanji = 4
)

// Header describes a system file.
type Header struct {
	// Product is the product string with the conventional prefix removed.
	Product string
	// ByteOrder is "little" or "big".
	ByteOrder string
	// CaseSize is the number of value slots per case.
	CaseSize int
	// Compressed reports whether case data uses the opcode scheme.
	Compressed bool
	// WeightIndex is the 1-based slot of the weight variable, 0 for none.
	WeightIndex int
	// CaseCount is the declared number of cases, -1 if unknown.
	CaseCount int64
	// Bias is the compression bias.
	Bias float64
	// CreationDate is "dd Mon yy" and CreationTime "hh:mm:ss".
	CreationDate string
	CreationTime string
	// Label is the file label.
	Label string

	// SysMis, Highest and Lowest are the file's sentinel values.
	SysMis  float64
	Highest float64
	Lowest  float64
}

func defaultSentinels(h *Header) {
	h.SysMis = models.SysMis
	h.Highest = models.Highest
	h.Lowest = models.Lowest
}

func sameFloat(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}
