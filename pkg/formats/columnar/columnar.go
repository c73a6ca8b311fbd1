// Package columnar exports cases to Apache Arrow IPC, Parquet and Avro.
//
// Every non-scratch variable becomes one nullable column: numeric
// variables as float64, string variables as UTF-8 with trailing padding
// removed. Missing values, system or user, are written as nulls. Variable
// labels, print formats and value labels travel as column metadata so the
// output can be read back without the system file.
package columnar

import (
	"io"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// Format represents a columnar storage format
type Format string

const (
	// Parquet is Apache Parquet format
	Parquet Format = "parquet"
	// Arrow is the Apache Arrow IPC file format
	Arrow Format = "arrow"
	// Avro is an Apache Avro object container file
	Avro Format = "avro"
)

// Metadata keys attached to columns and files.
const (
	MetaLabel       = "tabula.label"
	MetaFormat      = "tabula.format"
	MetaValueLabels = "tabula.value_labels"
	MetaName        = "tabula.name"
	MetaFileLabel   = "tabula.file_label"
)

// Writer writes cases in a columnar format. Cases must have the layout of
// the dictionary the writer was created for.
type Writer interface {
	models.CaseWriter
	// Flush writes buffered cases as one batch
	Flush() error
	// Close flushes and writes the file footer. It does not close the
	// underlying io.Writer.
	Close() error
	// Format returns the columnar format
	Format() Format
	// BytesWritten returns bytes handed to the underlying writer
	BytesWritten() int64
	// CasesWritten returns cases accepted so far
	CasesWritten() int64
}

// WriterConfig configures columnar writers
type WriterConfig struct {
	Format Format
	// Compression is applied where the format supports it. Arrow accepts
	// none, lz4 and zstd; Parquet also snappy and gzip; Avro none, snappy
	// and gzip (written as deflate).
	Compression compression.Algorithm
	// BatchSize is the number of cases buffered per record batch.
	BatchSize int
	Logger    *zap.Logger
}

// DefaultWriterConfig returns default writer configuration
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		Format:      Parquet,
		Compression: compression.Snappy,
		BatchSize:   10000,
	}
}

// ParseFormat maps a name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(s), ".")); f {
	case Parquet, Arrow, Avro:
		return f, nil
	case "pq":
		return Parquet, nil
	case "ipc", "feather":
		return Arrow, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unsupported columnar format: %s", s)
}

// NewWriter creates a writer for the cases of d.
func NewWriter(w io.Writer, d *dictionary.Dictionary, config *WriterConfig) (Writer, error) {
	if config == nil {
		config = DefaultWriterConfig()
	}
	cfg := *config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	cfg.Logger = logger.Component(cfg.Logger, "columnar").With(zap.String("format", string(cfg.Format)))

	cols := columnsOf(d)
	if len(cols) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "dictionary has no variables to export")
	}
	cw := &countingWriter{w: w}

	switch cfg.Format {
	case Parquet:
		return newParquetWriter(cw, d, cols, &cfg)
	case Arrow:
		return newArrowWriter(cw, d, cols, &cfg)
	case Avro:
		return newAvroWriter(cw, d, cols, &cfg)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported columnar format: %s", cfg.Format)
	}
}

// FormatInfo provides information about columnar formats
type FormatInfo struct {
	Format        Format
	Name          string
	Description   string
	FileExtension string
	MIMEType      string
}

// GetFormatInfo returns information about a columnar format
func GetFormatInfo(format Format) *FormatInfo {
	switch format {
	case Parquet:
		return &FormatInfo{
			Format:        Parquet,
			Name:          "Apache Parquet",
			Description:   "Columnar storage format optimized for analytics",
			FileExtension: ".parquet",
			MIMEType:      "application/x-parquet",
		}
	case Arrow:
		return &FormatInfo{
			Format:        Arrow,
			Name:          "Apache Arrow",
			Description:   "Arrow IPC file format",
			FileExtension: ".arrow",
			MIMEType:      "application/vnd.apache.arrow.file",
		}
	case Avro:
		return &FormatInfo{
			Format:        Avro,
			Name:          "Apache Avro",
			Description:   "Row-oriented data serialization format",
			FileExtension: ".avro",
			MIMEType:      "application/avro",
		}
	default:
		return nil
	}
}

// column is one exported variable.
type column struct {
	v *dictionary.Variable
}

func columnsOf(d *dictionary.Dictionary) []column {
	var cols []column
	for _, v := range d.Vars() {
		if !v.IsScratch() {
			cols = append(cols, column{v: v})
		}
	}
	return cols
}

// num returns the value of a numeric column, or false for a null.
func (c column) num(cs models.Case) (float64, bool) {
	if c.v.IsMissing(cs) {
		return 0, false
	}
	return cs.Num(c.v.FV()), true
}

// str returns the value of a string column, or false for a null.
func (c column) str(cs models.Case) (string, bool) {
	if c.v.IsMissing(cs) {
		return "", false
	}
	return strings.TrimRight(cs.Str(c.v.FV(), c.v.Width()), " "), true
}

type valueLabel struct {
	Value interface{} `json:"value"`
	Label string      `json:"label"`
}

func valueLabelsOf(v *dictionary.Variable) []valueLabel {
	vl := v.ValueLabels()
	if vl.Len() == 0 {
		return nil
	}
	labels := make([]valueLabel, 0, vl.Len())
	for _, l := range vl.Labels() {
		var val interface{} = l.Value.F
		if v.IsString() {
			val = strings.TrimRight(string(l.Value.S[:]), " ")
		}
		labels = append(labels, valueLabel{Value: val, Label: l.Label})
	}
	return labels
}

// metadata returns the key/value pairs describing c. Empty attributes are
// left out.
func (c column) metadata() (keys, values []string, err error) {
	v := c.v
	add := func(k, val string) {
		keys = append(keys, k)
		values = append(values, val)
	}
	if v.Label != "" {
		add(MetaLabel, v.Label)
	}
	add(MetaFormat, v.PrintFormat().String())
	if labels := valueLabelsOf(v); len(labels) > 0 {
		b, err := json.Marshal(labels)
		if err != nil {
			return nil, nil, errors.Wrapf(err, errors.ErrorTypeInternal, "encoding value labels of %s", v.Name())
		}
		add(MetaValueLabels, string(b))
	}
	return keys, values, nil
}

// countingWriter counts bytes passed through. It is not an io.Closer, so
// format writers leave the caller's writer open.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
