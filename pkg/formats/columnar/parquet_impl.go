package columnar

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// parquetWriter implements Writer for Parquet format
type parquetWriter struct {
	out        *countingWriter
	config     *WriterConfig
	batch      *batchBuilder
	fileWriter *pqarrow.FileWriter
	cases      int64
	closed     bool
}

func parquetCompression(alg compression.Algorithm) (compress.Compression, error) {
	switch alg {
	case "", compression.None:
		return compress.Codecs.Uncompressed, nil
	case compression.Snappy, compression.S2:
		return compress.Codecs.Snappy, nil
	case compression.Gzip:
		return compress.Codecs.Gzip, nil
	case compression.Zstd:
		return compress.Codecs.Zstd, nil
	case compression.LZ4:
		return compress.Codecs.Lz4Raw, nil
	}
	return compress.Codecs.Uncompressed, errors.Newf(errors.ErrorTypeConfig, "parquet: unsupported compression %s", alg)
}

func newParquetWriter(out *countingWriter, d *dictionary.Dictionary, cols []column, config *WriterConfig) (*parquetWriter, error) {
	schema, err := arrowSchema(d, cols)
	if err != nil {
		return nil, err
	}
	codec, err := parquetCompression(config.Compression)
	if err != nil {
		return nil, err
	}
	mem := memory.NewGoAllocator()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithCreatedBy("tabula"),
		parquet.WithAllocator(mem),
	)
	// The stored Arrow schema keeps the column metadata readable through
	// pqarrow.
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(mem),
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(schema, out, props, arrowProps)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "creating parquet writer")
	}
	return &parquetWriter{
		out:        out,
		config:     config,
		batch:      newBatchBuilder(mem, schema, cols),
		fileWriter: fw,
	}, nil
}

func (pw *parquetWriter) WriteCase(c models.Case) error {
	if pw.closed {
		return errors.New(errors.ErrorTypeInternal, "write to closed parquet writer")
	}
	pw.batch.append(c)
	pw.cases++
	if pw.batch.pending >= pw.config.BatchSize {
		return pw.Flush()
	}
	return nil
}

func (pw *parquetWriter) Flush() error {
	rec := pw.batch.record()
	if rec == nil {
		return nil
	}
	defer rec.Release()
	if err := pw.fileWriter.WriteBuffered(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "writing parquet row group")
	}
	return nil
}

func (pw *parquetWriter) Close() error {
	if pw.closed {
		return nil
	}
	err := pw.Flush()
	pw.closed = true
	if cerr := pw.fileWriter.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, errors.ErrorTypeIO, "closing parquet writer")
	}
	pw.batch.release()
	pw.config.Logger.Debug("export finished", zap.Int64("cases", pw.cases), zap.Int64("bytes", pw.out.n))
	return err
}

func (pw *parquetWriter) Format() Format { return Parquet }

func (pw *parquetWriter) BytesWritten() int64 { return pw.out.n }

func (pw *parquetWriter) CasesWritten() int64 { return pw.cases }
