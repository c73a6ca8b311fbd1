package sysfile

import (
	"bufio"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/endian"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/metrics"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Compress selects the opcode compression scheme for case data.
	Compress bool
	// Bias is the compression bias; 0 means DefaultBias.
	Bias float64
	// ByteOrder defaults to the host byte order.
	ByteOrder endian.Engine
	// Product is written after the conventional product prefix.
	Product string
	// Timestamp is the creation time; zero means now.
	Timestamp time.Time
}

// DefaultWriterOptions returns compressed output with the default bias.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{Compress: true, Bias: DefaultBias}
}

// Writer writes a dictionary and its cases as a system file. Scratch
// variables are not written.
type Writer struct {
	name   string
	dst    io.Writer
	w      *bufio.Writer
	closer io.Closer
	e      endian.Engine
	opts   WriterOptions

	slots  []int
	layout models.Layout
	comp   *compressor
	buf    []byte
	cases  int64
	closed bool
}

// Create creates path and writes the dictionary to it.
func Create(path string, d *dictionary.Dictionary, opts WriterOptions) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "creating system file").At(path, -1)
	}
	w, err := newWriter(f, path, d, opts)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter writes the dictionary to w. If w is an io.WriteSeeker the case
// count is patched into the header on Close.
func NewWriter(w io.Writer, d *dictionary.Dictionary, opts WriterOptions) (*Writer, error) {
	return newWriter(w, "", d, opts)
}

func newWriter(dst io.Writer, name string, d *dictionary.Dictionary, opts WriterOptions) (*Writer, error) {
	if opts.Bias == 0 {
		opts.Bias = DefaultBias
	}
	if opts.ByteOrder == nil {
		opts.ByteOrder = endian.Native()
	}
	if opts.Timestamp.IsZero() {
		opts.Timestamp = time.Now()
	}
	if opts.Product == "" {
		opts.Product = "tabula"
	}

	w := &Writer{
		name: name,
		dst:  dst,
		w:    bufio.NewWriterSize(dst, 64*1024),
		e:    opts.ByteOrder,
		opts: opts,
	}
	var vars []*dictionary.Variable
	for _, v := range d.Vars() {
		if v.IsScratch() {
			continue
		}
		vars = append(vars, v)
		for i := 0; i < v.NV(); i++ {
			w.slots = append(w.slots, v.FV()+i)
			w.layout = append(w.layout, v.Kind())
		}
	}
	if len(vars) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "dictionary has no variables to write")
	}
	w.buf = make([]byte, 0, w.layout.Bytes())

	if err := w.writeDictionary(d, vars); err != nil {
		return nil, w.ioError(err, "writing dictionary")
	}
	if opts.Compress {
		w.comp = newCompressor(w.w, w.e, opts.Bias)
	}
	return w, nil
}

func (w *Writer) ioError(err error, msg string) error {
	if _, ok := err.(*errors.Error); ok {
		return err
	}
	e := errors.Wrap(err, errors.ErrorTypeIO, msg)
	if w.name != "" {
		e = e.At(w.name, -1)
	}
	return e
}

func (w *Writer) int32(b []byte, v int32) []byte { return w.e.AppendUint32(b, uint32(v)) }

func (w *Writer) float(b []byte, f float64) []byte { return endian.AppendFloat64(w.e, b, f) }

// padded appends s truncated or space padded to n bytes.
func padded(b []byte, s string, n int) []byte {
	if len(s) > n {
		s = s[:n]
	}
	b = append(b, s...)
	for i := len(s); i < n; i++ {
		b = append(b, ' ')
	}
	return b
}

func (w *Writer) writeDictionary(d *dictionary.Dictionary, vars []*dictionary.Variable) error {
	b := make([]byte, 0, 512)
	b = w.header(b, d)
	for _, v := range vars {
		b = w.variable(b, v)
	}
	b = w.valueLabels(b, vars)
	if docs := d.Documents(); len(docs) > 0 {
		b = w.int32(b, recDocument)
		b = w.int32(b, int32(len(docs)))
		for _, line := range docs {
			b = padded(b, line, dictionary.DocumentLineLen)
		}
	}
	b = w.machineRecords(b)
	b = w.int32(b, recEnd)
	b = w.int32(b, 0)
	_, err := w.w.Write(b)
	return err
}

func (w *Writer) header(b []byte, d *dictionary.Dictionary) []byte {
	b = append(b, magic...)
	b = padded(b, productPrefix+w.opts.Product, productLen)
	b = w.int32(b, layoutCode)
	b = w.int32(b, int32(len(w.slots)))
	if w.opts.Compress {
		b = w.int32(b, 1)
	} else {
		b = w.int32(b, 0)
	}
	b = w.int32(b, int32(w.weightIndex(d)))
	b = w.int32(b, -1)
	b = w.float(b, w.opts.Bias)
	b = padded(b, w.opts.Timestamp.Format("02 Jan 06"), dateLen)
	b = padded(b, w.opts.Timestamp.Format("15:04:05"), timeLen)
	b = padded(b, d.Label(), labelLen)
	return append(b, 0, 0, 0)
}

func (w *Writer) weightIndex(d *dictionary.Dictionary) int {
	wv := d.Weight()
	if wv == nil {
		return 0
	}
	for i, fv := range w.slots {
		if fv == wv.FV() && !wv.IsScratch() {
			return i + 1
		}
	}
	return 0
}

func missingCode(mv *dictionary.MissingValues) int32 {
	switch mv.Kind() {
	case dictionary.MissingDiscrete:
		return int32(len(mv.Discrete()))
	case dictionary.MissingRange, dictionary.MissingLow, dictionary.MissingHigh:
		return -2
	case dictionary.MissingRangeDiscrete, dictionary.MissingLowDiscrete, dictionary.MissingHighDiscrete:
		return -3
	}
	return 0
}

func (w *Writer) variable(b []byte, v *dictionary.Variable) []byte {
	mv := v.MissingValues()
	b = w.int32(b, recVariable)
	b = w.int32(b, int32(v.Width()))
	if v.Label != "" {
		b = w.int32(b, 1)
	} else {
		b = w.int32(b, 0)
	}
	b = w.int32(b, missingCode(mv))
	b = w.int32(b, v.PrintFormat().Pack())
	b = w.int32(b, v.WriteFormat().Pack())
	b = padded(b, strings.ToUpper(v.Name()), dictionary.MaxNameLen)

	if v.Label != "" {
		label := v.Label
		if len(label) > dictionary.MaxLabelLen {
			label = label[:dictionary.MaxLabelLen]
		}
		b = w.int32(b, int32(len(label)))
		b = append(b, label...)
		for n := len(label); n%4 != 0; n++ {
			b = append(b, ' ')
		}
	}

	if mv.HasRange() {
		lo, hi := mv.Lo, mv.Hi
		switch mv.Kind() {
		case dictionary.MissingLow, dictionary.MissingLowDiscrete:
			lo = models.Lowest
		case dictionary.MissingHigh, dictionary.MissingHighDiscrete:
			hi = models.Highest
		}
		b = w.float(b, lo)
		b = w.float(b, hi)
	}
	for _, val := range mv.Discrete() {
		b = w.slotValue(b, v, val)
	}

	for i := 1; i < v.NV(); i++ {
		b = w.int32(b, recVariable)
		b = w.int32(b, -1)
		b = w.int32(b, 0)
		b = w.int32(b, 0)
		b = w.int32(b, 0)
		b = w.int32(b, 0)
		b = padded(b, "", dictionary.MaxNameLen)
	}
	return b
}

func (w *Writer) slotValue(b []byte, v *dictionary.Variable, val models.Value) []byte {
	if v.IsString() {
		return append(b, val.S[:]...)
	}
	return w.float(b, val.F)
}

func (w *Writer) slotIndex(v *dictionary.Variable) int {
	for i, fv := range w.slots {
		if fv == v.FV() {
			return i + 1
		}
	}
	return 0
}

func (w *Writer) valueLabels(b []byte, vars []*dictionary.Variable) []byte {
	for _, v := range vars {
		labels := v.ValueLabels().Labels()
		if len(labels) == 0 || v.IsLongString() {
			continue
		}
		b = w.int32(b, recValueLabels)
		b = w.int32(b, int32(len(labels)))
		for _, vl := range labels {
			b = w.slotValue(b, v, vl.Value)
			b = append(b, byte(len(vl.Label)))
			b = append(b, vl.Label...)
			for n := 1 + len(vl.Label); n%8 != 0; n++ {
				b = append(b, ' ')
			}
		}
		b = w.int32(b, recValueLabelVars)
		b = w.int32(b, 1)
		b = w.int32(b, int32(w.slotIndex(v)))
	}
	return b
}

func (w *Writer) machineRecords(b []byte) []byte {
	b = w.int32(b, recExtension)
	b = w.int32(b, extMachineInteger)
	b = w.int32(b, 4)
	b = w.int32(b, 8)
	for _, v := range []int32{1, 0, 0, -1, floatIEEE, 1, endian.Code(w.e), charASCII7} {
		b = w.int32(b, v)
	}

	b = w.int32(b, recExtension)
	b = w.int32(b, extMachineFloat)
	b = w.int32(b, 8)
	b = w.int32(b, 3)
	b = w.float(b, models.SysMis)
	b = w.float(b, models.Highest)
	b = w.float(b, models.Lowest)
	return b
}

// WriteCase appends one case in the dictionary's current layout.
func (w *Writer) WriteCase(c models.Case) error {
	if w.closed {
		return errors.New(errors.ErrorTypeInternal, "write to closed system file writer")
	}
	if w.comp != nil {
		for i, fv := range w.slots {
			if err := w.comp.putSlot(w.layout[i], c[fv]); err != nil {
				return w.ioError(err, "writing case")
			}
		}
	} else {
		b := w.buf[:0]
		for i, fv := range w.slots {
			if w.layout[i] == models.String {
				b = append(b, c[fv].S[:]...)
			} else {
				b = w.float(b, c[fv].F)
			}
		}
		w.buf = b
		if _, err := w.w.Write(b); err != nil {
			return w.ioError(err, "writing case")
		}
	}
	w.cases++
	metrics.SysFileCases.WithLabelValues(metrics.DirectionWrite).Inc()
	return nil
}

// CaseCount returns the number of cases written so far.
func (w *Writer) CaseCount() int64 { return w.cases }

// Close terminates the case data, flushes, patches the case count when the
// destination is seekable, and closes a file opened by Create.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.finish()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil && cerr != nil {
			err = w.ioError(cerr, "closing system file")
		}
	}
	return err
}

func (w *Writer) finish() error {
	if w.comp != nil {
		if err := w.comp.finish(); err != nil {
			return w.ioError(err, "writing case data")
		}
	}
	if err := w.w.Flush(); err != nil {
		return w.ioError(err, "flushing system file")
	}
	ws, ok := w.dst.(io.WriteSeeker)
	if !ok {
		return nil
	}
	if _, err := ws.Seek(ncasesOffset, io.SeekStart); err != nil {
		return w.ioError(err, "seeking to case count")
	}
	if _, err := ws.Write(w.int32(nil, int32(w.cases))); err != nil {
		return w.ioError(err, "patching case count")
	}
	if _, err := ws.Seek(0, io.SeekEnd); err != nil {
		return w.ioError(err, "seeking to end")
	}
	return nil
}
