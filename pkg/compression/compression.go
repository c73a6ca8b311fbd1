// Package compression provides streaming codecs for the temporary files
// that back disk case streams.
//
// # Overview
//
// A Codec wraps an io.Writer or io.Reader in a compressing writer or a
// decompressing reader. Algorithms:
//   - None: bytes pass through unchanged
//   - LZ4: fastest, the default for spill files
//   - Snappy/S2: fast with a moderate ratio
//   - Zstd: best ratio, moderate speed
//   - Gzip: widest compatibility
//
// # Basic Usage
//
//	codec, err := compression.NewCodec(&compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Fastest,
//	})
//
//	w, err := codec.NewWriter(file)
//	w.Write(record)
//	w.Close() // flushes the codec; file stays open
//
//	r, err := codec.NewReader(file)
//	io.ReadFull(r, record)
//	r.Close()
//
// Encoders and decoders that are expensive to build (zstd, gzip) are pooled
// and returned to their pool on Close.
package compression

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{None, LZ4, Snappy, S2, Zstd, Gzip}

// ParseAlgorithm maps a configuration string to an Algorithm. The empty
// string selects LZ4.
func ParseAlgorithm(s string) (Algorithm, error) {
	if s == "" {
		return LZ4, nil
	}
	a := Algorithm(strings.ToLower(s))
	for _, known := range Algorithms {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unsupported compression algorithm: %s", s)
}

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

func (l Level) String() string {
	switch l {
	case Fastest:
		return "fastest"
	case Default:
		return "default"
	case Better:
		return "better"
	case Best:
		return "best"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Config represents codec configuration.
type Config struct {
	Algorithm Algorithm // Compression algorithm to use
	Level     Level     // Compression level
}

// DefaultConfig returns the spill-file default: LZ4 at the fastest level.
// Spill files are written once and read once, so speed wins over ratio.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: LZ4,
		Level:     Fastest,
	}
}

// Codec creates compressing writers and decompressing readers.
// Implementations are safe for concurrent use; the writers and readers
// they return are not.
type Codec interface {
	// NewWriter returns a writer compressing into w. Close flushes the
	// compressed stream but does not close w.
	NewWriter(w io.Writer) (io.WriteCloser, error)

	// NewReader returns a reader decompressing from r. Close releases
	// codec resources but does not close r.
	NewReader(r io.Reader) (io.ReadCloser, error)

	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm

	// Level returns the compression level configured.
	Level() Level
}

// NewCodec creates a codec for config. If config is nil, DefaultConfig is
// used.
func NewCodec(config *Config) (Codec, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Level == 0 {
		config = &Config{Algorithm: config.Algorithm, Level: Default}
	}
	base := baseCodec{algorithm: config.Algorithm, level: config.Level}

	switch config.Algorithm {
	case None, "":
		base.algorithm = None
		return &noneCodec{base}, nil
	case LZ4:
		return &lz4Codec{baseCodec: base, compressionLevel: mapLZ4Level(config.Level)}, nil
	case Snappy:
		return &snappyCodec{base}, nil
	case S2:
		return &s2Codec{baseCodec: base, opts: mapS2Level(config.Level)}, nil
	case Zstd:
		return newZstdCodec(base)
	case Gzip:
		return newGzipCodec(base), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}
}

type baseCodec struct {
	algorithm Algorithm
	level     Level
}

// Algorithm returns the compression algorithm
func (bc baseCodec) Algorithm() Algorithm { return bc.algorithm }

// Level returns the compression level
func (bc baseCodec) Level() Level { return bc.level }

// writeCloser adapts a writer whose Close must not reach the underlying
// stream.
type writeCloser struct {
	io.Writer
	close func() error
}

func (w *writeCloser) Close() error {
	if w.close == nil {
		return nil
	}
	err := w.close()
	w.close = nil
	return err
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error {
	if r.close == nil {
		return nil
	}
	err := r.close()
	r.close = nil
	return err
}

// None codec (no compression)
type noneCodec struct {
	baseCodec
}

func (nc *noneCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return &writeCloser{Writer: w}, nil
}

func (nc *noneCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// LZ4 codec
type lz4Codec struct {
	baseCodec
	compressionLevel lz4.CompressionLevel
}

func (lc *lz4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	if err := zw.Apply(lz4.CompressionLevelOption(lc.compressionLevel)); err != nil {
		return nil, err
	}
	return zw, nil
}

func (lc *lz4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

// Snappy codec
type snappyCodec struct {
	baseCodec
}

func (sc *snappyCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (sc *snappyCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

// S2 codec (Snappy-compatible but better compression)
type s2Codec struct {
	baseCodec
	opts []s2.WriterOption
}

func (sc *s2Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return s2.NewWriter(w, sc.opts...), nil
}

func (sc *s2Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(r)), nil
}

// Zstd codec with pooled encoders and decoders.
type zstdCodec struct {
	baseCodec
	level       zstd.EncoderLevel
	encoderPool sync.Pool
	decoderPool sync.Pool
}

func newZstdCodec(base baseCodec) (*zstdCodec, error) {
	zc := &zstdCodec{baseCodec: base, level: mapZstdLevel(base.level)}
	zc.encoderPool.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zc.level))
		return enc
	}
	zc.decoderPool.New = func() interface{} {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return dec
	}
	return zc, nil
}

func (zc *zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	enc := zc.encoderPool.Get().(*zstd.Encoder)
	enc.Reset(w)
	return &writeCloser{Writer: enc, close: func() error {
		err := enc.Close()
		zc.encoderPool.Put(enc)
		return err
	}}, nil
}

func (zc *zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec := zc.decoderPool.Get().(*zstd.Decoder)
	if err := dec.Reset(r); err != nil {
		zc.decoderPool.Put(dec)
		return nil, err
	}
	return &readCloser{Reader: dec, close: func() error {
		// Detach from r before pooling.
		_ = dec.Reset(nil)
		zc.decoderPool.Put(dec)
		return nil
	}}, nil
}

// Gzip codec with pooled writers.
type gzipCodec struct {
	baseCodec
	writerPool sync.Pool
	readerPool sync.Pool
}

func newGzipCodec(base baseCodec) *gzipCodec {
	level := mapGzipLevel(base.level)
	gc := &gzipCodec{baseCodec: base}
	gc.writerPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, level)
		return w
	}
	gc.readerPool.New = func() interface{} {
		return new(gzip.Reader)
	}
	return gc
}

func (gc *gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw := gc.writerPool.Get().(*gzip.Writer)
	zw.Reset(w)
	return &writeCloser{Writer: zw, close: func() error {
		err := zw.Close()
		gc.writerPool.Put(zw)
		return err
	}}, nil
}

func (gc *gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr := gc.readerPool.Get().(*gzip.Reader)
	if err := zr.Reset(r); err != nil {
		gc.readerPool.Put(zr)
		return nil, err
	}
	return &readCloser{Reader: zr, close: func() error {
		err := zr.Close()
		gc.readerPool.Put(zr)
		return err
	}}, nil
}

// Helper functions to map compression levels

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapS2Level(level Level) []s2.WriterOption {
	switch level {
	case Better:
		return []s2.WriterOption{s2.WriterBetterCompression()}
	case Best:
		return []s2.WriterOption{s2.WriterBestCompression()}
	default:
		return nil
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
