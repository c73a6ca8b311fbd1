package columnar

import (
	"github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/models"
)

type avroField struct {
	Name        string       `json:"name"`
	Type        []string     `json:"type"`
	Default     interface{}  `json:"default"`
	Doc         string       `json:"doc,omitempty"`
	SourceName  string       `json:"tabula.name,omitempty"`
	Format      string       `json:"tabula.format,omitempty"`
	ValueLabels []valueLabel `json:"tabula.value_labels,omitempty"`
}

type avroRecord struct {
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Doc    string      `json:"doc,omitempty"`
	Fields []avroField `json:"fields"`
}

// avroName maps a variable name onto Avro's [A-Za-z_][A-Za-z0-9_]*.
// Variable names may contain . @ # and $.
func avroName(name string) string {
	b := []byte(name)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

// AvroSchema returns the Avro record schema the writer uses for d.
func AvroSchema(d *dictionary.Dictionary) (string, error) {
	s, _, err := avroSchema(d, columnsOf(d))
	return s, err
}

func avroSchema(d *dictionary.Dictionary, cols []column) (string, []string, error) {
	rec := avroRecord{Type: "record", Name: "tabula_case", Doc: d.Label()}
	names := make([]string, len(cols))
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		name := avroName(c.v.Name())
		if seen[name] {
			return "", nil, errors.Newf(errors.ErrorTypeValidation,
				"avro: %s and another variable both map to field name %s", c.v.Name(), name)
		}
		seen[name] = true
		names[i] = name

		typ := "double"
		if c.v.IsString() {
			typ = "string"
		}
		f := avroField{
			Name:   name,
			Type:   []string{"null", typ},
			Doc:    c.v.Label,
			Format: c.v.PrintFormat().String(),
		}
		if name != c.v.Name() {
			f.SourceName = c.v.Name()
		}
		f.ValueLabels = valueLabelsOf(c.v)
		rec.Fields = append(rec.Fields, f)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.ErrorTypeInternal, "avro: encoding schema")
	}
	return string(b), names, nil
}

func avroCompression(alg compression.Algorithm) (string, error) {
	switch alg {
	case "", compression.None:
		return goavro.CompressionNullLabel, nil
	case compression.Snappy:
		return goavro.CompressionSnappyLabel, nil
	case compression.Gzip:
		return goavro.CompressionDeflateLabel, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "avro: unsupported compression %s", alg)
}

// avroWriter implements Writer for Avro object container files
type avroWriter struct {
	out       *countingWriter
	config    *WriterConfig
	cols      []column
	names     []string
	ocfWriter *goavro.OCFWriter
	buffer    []interface{}
	cases     int64
	closed    bool
}

func newAvroWriter(out *countingWriter, d *dictionary.Dictionary, cols []column, config *WriterConfig) (*avroWriter, error) {
	schema, names, err := avroSchema(d, cols)
	if err != nil {
		return nil, err
	}
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "creating avro codec")
	}
	compressionName, err := avroCompression(config.Compression)
	if err != nil {
		return nil, err
	}
	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               out,
		Codec:           codec,
		CompressionName: compressionName,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "creating avro writer")
	}
	return &avroWriter{
		out:       out,
		config:    config,
		cols:      cols,
		names:     names,
		ocfWriter: ocfWriter,
		buffer:    make([]interface{}, 0, config.BatchSize),
	}, nil
}

func (aw *avroWriter) native(c models.Case) map[string]interface{} {
	rec := make(map[string]interface{}, len(aw.cols))
	for i, col := range aw.cols {
		var v interface{}
		if col.v.IsString() {
			if s, ok := col.str(c); ok {
				v = goavro.Union("string", s)
			}
		} else if x, ok := col.num(c); ok {
			v = goavro.Union("double", x)
		}
		rec[aw.names[i]] = v
	}
	return rec
}

func (aw *avroWriter) WriteCase(c models.Case) error {
	if aw.closed {
		return errors.New(errors.ErrorTypeInternal, "write to closed avro writer")
	}
	aw.buffer = append(aw.buffer, aw.native(c))
	aw.cases++
	if len(aw.buffer) >= aw.config.BatchSize {
		return aw.Flush()
	}
	return nil
}

// Flush writes the buffered cases as one OCF block.
func (aw *avroWriter) Flush() error {
	if len(aw.buffer) == 0 {
		return nil
	}
	if err := aw.ocfWriter.Append(aw.buffer); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "writing avro block")
	}
	for i := range aw.buffer {
		aw.buffer[i] = nil
	}
	aw.buffer = aw.buffer[:0]
	return nil
}

// Close flushes remaining cases. An OCF file has no footer.
func (aw *avroWriter) Close() error {
	if aw.closed {
		return nil
	}
	err := aw.Flush()
	aw.closed = true
	aw.config.Logger.Debug("export finished", zap.Int64("cases", aw.cases), zap.Int64("bytes", aw.out.n))
	return err
}

func (aw *avroWriter) Format() Format { return Avro }

func (aw *avroWriter) BytesWritten() int64 { return aw.out.n }

func (aw *avroWriter) CasesWritten() int64 { return aw.cases }
