package columnar

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// ArrowSchema returns the Arrow schema the writers use for d.
func ArrowSchema(d *dictionary.Dictionary) (*arrow.Schema, error) {
	return arrowSchema(d, columnsOf(d))
}

func arrowSchema(d *dictionary.Dictionary, cols []column) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		keys, values, err := c.metadata()
		if err != nil {
			return nil, err
		}
		var typ arrow.DataType = arrow.PrimitiveTypes.Float64
		if c.v.IsString() {
			typ = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{
			Name:     c.v.Name(),
			Type:     typ,
			Nullable: true,
			Metadata: arrow.NewMetadata(keys, values),
		}
	}
	var md *arrow.Metadata
	if d.Label() != "" {
		m := arrow.NewMetadata([]string{MetaFileLabel}, []string{d.Label()})
		md = &m
	}
	return arrow.NewSchema(fields, md), nil
}

// batchBuilder accumulates cases into Arrow record batches.
type batchBuilder struct {
	cols    []column
	builder *array.RecordBuilder
	pending int
}

func newBatchBuilder(mem memory.Allocator, schema *arrow.Schema, cols []column) *batchBuilder {
	return &batchBuilder{cols: cols, builder: array.NewRecordBuilder(mem, schema)}
}

func (b *batchBuilder) append(c models.Case) {
	for i, col := range b.cols {
		switch fb := b.builder.Field(i).(type) {
		case *array.Float64Builder:
			if x, ok := col.num(c); ok {
				fb.Append(x)
			} else {
				fb.AppendNull()
			}
		case *array.StringBuilder:
			if s, ok := col.str(c); ok {
				fb.Append(s)
			} else {
				fb.AppendNull()
			}
		}
	}
	b.pending++
}

// record returns the pending cases as a record, or nil when there are none.
// The caller releases it.
func (b *batchBuilder) record() arrow.Record {
	if b.pending == 0 {
		return nil
	}
	b.pending = 0
	return b.builder.NewRecord()
}

func (b *batchBuilder) release() { b.builder.Release() }

// arrowWriter implements Writer for the Arrow IPC file format
type arrowWriter struct {
	out        *countingWriter
	config     *WriterConfig
	batch      *batchBuilder
	fileWriter *ipc.FileWriter
	cases      int64
	closed     bool
}

func arrowCompression(alg compression.Algorithm) ([]ipc.Option, error) {
	switch alg {
	case "", compression.None:
		return nil, nil
	case compression.LZ4:
		return []ipc.Option{ipc.WithLZ4()}, nil
	case compression.Zstd:
		return []ipc.Option{ipc.WithZstd()}, nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "arrow: unsupported compression %s", alg)
}

func newArrowWriter(out *countingWriter, d *dictionary.Dictionary, cols []column, config *WriterConfig) (*arrowWriter, error) {
	schema, err := arrowSchema(d, cols)
	if err != nil {
		return nil, err
	}
	opts, err := arrowCompression(config.Compression)
	if err != nil {
		return nil, err
	}
	mem := memory.NewGoAllocator()
	opts = append(opts, ipc.WithSchema(schema), ipc.WithAllocator(mem))

	fw, err := ipc.NewFileWriter(out, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "creating arrow writer")
	}
	return &arrowWriter{
		out:        out,
		config:     config,
		batch:      newBatchBuilder(mem, schema, cols),
		fileWriter: fw,
	}, nil
}

func (aw *arrowWriter) WriteCase(c models.Case) error {
	if aw.closed {
		return errors.New(errors.ErrorTypeInternal, "write to closed arrow writer")
	}
	aw.batch.append(c)
	aw.cases++
	if aw.batch.pending >= aw.config.BatchSize {
		return aw.Flush()
	}
	return nil
}

func (aw *arrowWriter) Flush() error {
	rec := aw.batch.record()
	if rec == nil {
		return nil
	}
	defer rec.Release()
	if err := aw.fileWriter.Write(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "writing arrow record batch")
	}
	return nil
}

func (aw *arrowWriter) Close() error {
	if aw.closed {
		return nil
	}
	err := aw.Flush()
	aw.closed = true
	if cerr := aw.fileWriter.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, errors.ErrorTypeIO, "closing arrow writer")
	}
	aw.batch.release()
	aw.config.Logger.Debug("export finished", zap.Int64("cases", aw.cases), zap.Int64("bytes", aw.out.n))
	return err
}

func (aw *arrowWriter) Format() Format { return Arrow }

func (aw *arrowWriter) BytesWritten() int64 { return aw.out.n }

func (aw *arrowWriter) CasesWritten() int64 { return aw.cases }
