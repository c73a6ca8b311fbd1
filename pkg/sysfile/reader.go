package sysfile

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/ajitpratap0/tabula/pkg/diag"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/endian"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/metrics"
	"github.com/ajitpratap0/tabula/pkg/models"
)

const component = "sysfile"

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Diagnostics receives consistency warnings. nil discards them.
	Diagnostics diag.Sink
}

// Reader reads a system file's dictionary and then its cases.
type Reader struct {
	name   string
	r      *bufio.Reader
	closer io.Closer
	off    int64
	e      endian.Engine
	diag   diag.Sink

	hdr    Header
	dict   *dictionary.Dictionary
	layout models.Layout
	dec    *decompressor
	buf    []byte
	cases  int64
	done   bool

	// Dictionary decoding state.
	slotVars    []*dictionary.Variable
	lastVar     *dictionary.Variable
	pendingCont int
	pastVars    bool
	seenDocs    bool
	deferred    []func() error
}

// Open opens path and reads its dictionary.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "opening system file").At(path, -1)
	}
	r, err := NewReader(f, path, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads a dictionary from src. name is used in errors and
// diagnostics.
func NewReader(src io.Reader, name string, opts ReaderOptions) (*Reader, error) {
	r := &Reader{
		name: name,
		r:    bufio.NewReaderSize(src, 64*1024),
		diag: diag.OrDiscard(opts.Diagnostics),
		dict: dictionary.New(),
	}
	defaultSentinels(&r.hdr)
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	if err := r.readDictionary(); err != nil {
		return nil, err
	}
	r.layout = r.dict.Layout()
	r.buf = make([]byte, r.layout.Bytes())
	if r.hdr.Compressed {
		r.dec = newDecompressor(r.r, r.hdr.Bias, r.off)
	}
	return r, nil
}

// Dictionary returns the file's dictionary. Its layout is compact.
func (r *Reader) Dictionary() *dictionary.Dictionary { return r.dict }

// Header returns the file header.
func (r *Reader) Header() Header { return r.hdr }

// Name returns the name the reader was opened with.
func (r *Reader) Name() string { return r.name }

// Close closes a file opened by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "closing system file").At(r.name, -1)
	}
	return nil
}

func (r *Reader) corrupt(off int64, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrorTypeCorrupt, format, args...).At(r.name, off)
}

func (r *Reader) warn(off int64, format string, args ...interface{}) {
	diag.Warnf(r.diag, component, r.name, off, format, args...)
}

// read returns the next n bytes. The slice is only valid until the next
// call.
func (r *Reader) read(n int) ([]byte, error) {
	if n > len(r.buf) {
		r.buf = make([]byte, n)
	}
	b := r.buf[:n]
	got, err := io.ReadFull(r.r, b)
	r.off += int64(got)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, r.corrupt(r.off, "unexpected end of file")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "reading system file").At(r.name, r.off)
	}
	return b, nil
}

func (r *Reader) int32() (int32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return int32(r.e.Uint32(b)), nil
}

func (r *Reader) int32s(n int) ([]int32, error) {
	b, err := r.read(4 * n)
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(r.e.Uint32(b[4*i:]))
	}
	return out, nil
}

func (r *Reader) float() (float64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return endian.Float64(r.e, b), nil
}

func (r *Reader) raw8() ([models.SlotWidth]byte, error) {
	var out [models.SlotWidth]byte
	b, err := r.read(models.SlotWidth)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func trimField(b []byte) string {
	return string(bytes.TrimRight(bytes.TrimRight(b, "\x00"), " "))
}

func (r *Reader) readHeader() error {
	b, err := r.read(headerLen)
	if err != nil {
		return err
	}
	if string(b[:4]) != magic {
		return r.corrupt(0, "not a system file: bad magic %q", b[:4])
	}
	r.e = endian.Native()
	if int32(r.e.Uint32(b[64:])) != layoutCode {
		r.e = endian.Swap(r.e)
		if int32(r.e.Uint32(b[64:])) != layoutCode {
			return r.corrupt(64, "bad layout code")
		}
	}

	h := &r.hdr
	h.Product = strings.TrimPrefix(trimField(b[4:4+productLen]), productPrefix)
	h.ByteOrder = endian.Name(r.e)
	h.CaseSize = int(int32(r.e.Uint32(b[68:])))
	switch compressed := int32(r.e.Uint32(b[72:])); compressed {
	case 0:
	case 1:
		h.Compressed = true
	default:
		return r.corrupt(72, "unsupported compression code %d", compressed)
	}
	h.WeightIndex = int(int32(r.e.Uint32(b[76:])))
	h.CaseCount = int64(int32(r.e.Uint32(b[ncasesOffset:])))
	if h.CaseCount < -1 {
		return r.corrupt(ncasesOffset, "bad case count %d", h.CaseCount)
	}
	h.Bias = endian.Float64(r.e, b[84:])
	if h.Compressed && (h.Bias <= 0 || h.Bias > opEnd-1) {
		return r.corrupt(84, "bad compression bias %g", h.Bias)
	}
	h.CreationDate = trimField(b[92 : 92+dateLen])
	h.CreationTime = trimField(b[101 : 101+timeLen])
	h.Label = trimField(b[109 : 109+labelLen])
	r.dict.SetLabel(h.Label)
	return nil
}

func (r *Reader) readDictionary() error {
	for {
		recOff := r.off
		rt, err := r.int32()
		if err != nil {
			return err
		}
		if rt != recVariable && !r.pastVars {
			if r.pendingCont > 0 {
				return r.corrupt(recOff, "variable %s is missing %d continuation records",
					r.lastVar.Name(), r.pendingCont)
			}
			r.pastVars = true
		}
		switch rt {
		case recVariable:
			if r.pastVars {
				return r.corrupt(recOff, "variable record after dictionary extension records")
			}
			err = r.readVariable(recOff)
		case recValueLabels:
			err = r.readValueLabels(recOff)
		case recValueLabelVars:
			err = r.corrupt(recOff, "value label variable record without preceding value label record")
		case recDocument:
			err = r.readDocuments(recOff)
		case recExtension:
			err = r.readExtension(recOff)
		case recEnd:
			if _, err = r.int32(); err != nil {
				return err
			}
			return r.finishDictionary(recOff)
		default:
			err = r.corrupt(recOff, "unrecognized record type %d", rt)
		}
		if err != nil {
			return err
		}
	}
}

func validMissingCode(n int32) bool {
	return n >= -3 && n <= 3 && n != -1
}

func (r *Reader) readVariable(recOff int64) error {
	f, err := r.int32s(5)
	if err != nil {
		return err
	}
	typ, hasLabel, nMissing, print, write := f[0], f[1], f[2], f[3], f[4]
	rawName, err := r.raw8()
	if err != nil {
		return err
	}

	if typ == -1 {
		if r.pendingCont == 0 {
			return r.corrupt(recOff, "continuation record without a preceding long string variable")
		}
		if hasLabel != 0 || nMissing != 0 {
			return r.corrupt(recOff, "continuation record for %s carries a label or missing values", r.lastVar.Name())
		}
		r.pendingCont--
		r.slotVars = append(r.slotVars, nil)
		return nil
	}
	if r.pendingCont > 0 {
		return r.corrupt(recOff, "variable %s is missing %d continuation records", r.lastVar.Name(), r.pendingCont)
	}
	if typ < 0 || typ > models.MaxStringWidth {
		return r.corrupt(recOff, "bad variable type code %d", typ)
	}
	width := int(typ)

	name := trimField(rawName[:])
	if upper := strings.ToUpper(name); upper != name {
		r.warn(recOff, "variable name %s is not uppercase; using %s", name, upper)
		name = upper
	}
	if err := dictionary.ValidName(name); err != nil {
		return r.corrupt(recOff, "%v", err)
	}

	if hasLabel != 0 && hasLabel != 1 {
		return r.corrupt(recOff, "variable %s: bad label flag %d", name, hasLabel)
	}
	if !validMissingCode(nMissing) {
		return r.corrupt(recOff, "variable %s: bad missing value code %d", name, nMissing)
	}
	if width > 0 && nMissing < 0 {
		return r.corrupt(recOff, "string variable %s has a missing value range", name)
	}
	if width > models.SlotWidth && nMissing != 0 {
		return r.corrupt(recOff, "long string variable %s has missing values", name)
	}

	v, err := r.dict.CreateVar(name, width)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeCorrupt, "variable record").At(r.name, recOff)
	}
	r.lastVar = v
	r.slotVars = append(r.slotVars, v)
	r.pendingCont = v.NV() - 1

	if err := r.readFormats(recOff, v, print, write); err != nil {
		return err
	}

	if hasLabel == 1 {
		n, err := r.int32()
		if err != nil {
			return err
		}
		if n < 0 || n > dictionary.MaxLabelLen {
			return r.corrupt(r.off-4, "variable %s: bad label length %d", name, n)
		}
		b, err := r.read(int(n+3) / 4 * 4)
		if err != nil {
			return err
		}
		v.Label = string(bytes.TrimRight(b[:n], " "))
	}

	if nMissing != 0 {
		count := int(nMissing)
		if count < 0 {
			count = -count
		}
		raw := make([][models.SlotWidth]byte, count)
		for i := range raw {
			if raw[i], err = r.raw8(); err != nil {
				return err
			}
		}
		off := r.off
		r.deferred = append(r.deferred, func() error {
			return r.resolveMissing(off, v, nMissing, raw)
		})
	}
	return nil
}

func (r *Reader) readFormats(off int64, v *dictionary.Variable, print, write int32) error {
	pf, wf := dictionary.UnpackFormat(print), dictionary.UnpackFormat(write)
	for _, f := range []dictionary.Format{pf, wf} {
		if !f.Type.Known() {
			return r.corrupt(off, "variable %s: unknown format type %d", v.Name(), int(f.Type))
		}
		if f.Type.IsString() != v.IsString() {
			return r.corrupt(off, "variable %s: format %s does not match its type", v.Name(), f)
		}
	}
	if err := v.SetFormats(pf, wf); err != nil {
		r.warn(off, "%v; using default format", err)
	}
	return nil
}

// num decodes a double, mapping the file's system-missing value to ours.
func (r *Reader) num(b []byte) float64 {
	f := endian.Float64(r.e, b)
	if sameFloat(f, r.hdr.SysMis) {
		return models.SysMis
	}
	return f
}

func (r *Reader) resolveMissing(off int64, v *dictionary.Variable, code int32, raw [][models.SlotWidth]byte) error {
	var mv dictionary.MissingValues
	if v.IsString() {
		for _, b := range raw {
			if err := mv.AddValue(models.Value{S: b}); err != nil {
				return r.corrupt(off, "variable %s: %v", v.Name(), err)
			}
		}
		return v.SetMissingValues(mv)
	}

	vals := make([]float64, len(raw))
	for i := range raw {
		vals[i] = r.num(raw[i][:])
	}
	var err error
	if code < 0 {
		lo, hi := vals[0], vals[1]
		switch {
		case sameFloat(lo, r.hdr.Lowest):
			err = mv.SetLow(hi)
		case sameFloat(hi, r.hdr.Highest):
			err = mv.SetHigh(lo)
		default:
			err = mv.SetRange(lo, hi)
		}
		if err == nil && code == -3 {
			err = mv.AddNum(vals[2])
		}
	} else {
		for _, f := range vals {
			if err = mv.AddNum(f); err != nil {
				break
			}
		}
	}
	if err != nil {
		return r.corrupt(off, "variable %s: %v", v.Name(), err)
	}
	return v.SetMissingValues(mv)
}

func (r *Reader) readValueLabels(recOff int64) error {
	n, err := r.int32()
	if err != nil {
		return err
	}
	if n < 0 || int64(n) > 1<<24 {
		return r.corrupt(recOff, "bad value label count %d", n)
	}
	type label struct {
		raw   [models.SlotWidth]byte
		label string
	}
	labels := make([]label, 0, min(int(n), 256))
	for i := int32(0); i < n; i++ {
		var l label
		if l.raw, err = r.raw8(); err != nil {
			return err
		}
		lb, err := r.read(1)
		if err != nil {
			return err
		}
		size := int(lb[0])
		b, err := r.read((size+1+7)/8*8 - 1)
		if err != nil {
			return err
		}
		l.label = string(b[:size])
		labels = append(labels, l)
	}

	varsOff := r.off
	rt, err := r.int32()
	if err != nil {
		return err
	}
	if rt != recValueLabelVars {
		return r.corrupt(varsOff, "value label record not followed by value label variable record")
	}
	count, err := r.int32()
	if err != nil {
		return err
	}
	if count < 1 || int(count) > len(r.slotVars) {
		return r.corrupt(varsOff, "bad value label variable count %d", count)
	}
	idx, err := r.int32s(int(count))
	if err != nil {
		return err
	}
	vars := make([]*dictionary.Variable, count)
	for i, ix := range idx {
		if ix < 1 || int(ix) > len(r.slotVars) {
			return r.corrupt(varsOff, "value label variable index %d out of range", ix)
		}
		v := r.slotVars[ix-1]
		if v == nil {
			return r.corrupt(varsOff, "value label variable index %d refers to a continuation slot", ix)
		}
		if v.IsLongString() {
			return r.corrupt(varsOff, "value labels on long string variable %s", v.Name())
		}
		if i > 0 && v.IsString() != vars[0].IsString() {
			return r.corrupt(varsOff, "value labels for %s and %s of different types", vars[0].Name(), v.Name())
		}
		vars[i] = v
	}

	r.deferred = append(r.deferred, func() error {
		for _, v := range vars {
			for _, l := range labels {
				val := models.Value{S: l.raw}
				if v.IsNumeric() {
					val = models.NumValue(r.num(l.raw[:]))
				}
				if _, dup := v.ValueLabels().Get(val); dup {
					r.warn(recOff, "duplicate value label for %s", v.Name())
				}
				if err := v.AddValueLabel(val, l.label); err != nil {
					return r.corrupt(recOff, "%v", err)
				}
			}
		}
		return nil
	})
	return nil
}

func (r *Reader) readDocuments(recOff int64) error {
	if r.seenDocs {
		return r.corrupt(recOff, "multiple document records")
	}
	r.seenDocs = true
	n, err := r.int32()
	if err != nil {
		return err
	}
	if n < 0 || int64(n) > 1<<20 {
		return r.corrupt(recOff, "bad document line count %d", n)
	}
	lines := make([]string, n)
	for i := range lines {
		b, err := r.read(dictionary.DocumentLineLen)
		if err != nil {
			return err
		}
		lines[i] = string(b)
	}
	r.dict.SetDocuments(lines)
	return nil
}

func (r *Reader) readExtension(recOff int64) error {
	f, err := r.int32s(3)
	if err != nil {
		return err
	}
	subtype, size, count := f[0], f[1], f[2]
	if size < 0 || count < 0 || int64(size)*int64(count) > 1<<30 {
		return r.corrupt(recOff, "bad extension record size %d x %d", size, count)
	}

	switch subtype {
	case extMachineInteger:
		if size != 4 || count != 8 {
			return r.corrupt(recOff, "machine integer record has size %d x %d, expected 4 x 8", size, count)
		}
		info, err := r.int32s(8)
		if err != nil {
			return err
		}
		floatRep, byteOrder, charCode := info[4], info[6], info[7]
		if floatRep != floatIEEE {
			return r.corrupt(recOff, "floating-point representation %d is not IEEE-754", floatRep)
		}
		if want := endian.Code(r.e); byteOrder != want {
			r.warn(recOff, "byte order code %d does not match the %s-endian header", byteOrder, endian.Name(r.e))
		}
		if charCode <= 0 || charCode == charEBCDIC || charCode == charDECKanji {
			return r.corrupt(recOff, "character code %d is not ASCII", charCode)
		}
		return nil

	case extMachineFloat:
		if size != 8 || count != 3 {
			return r.corrupt(recOff, "machine float record has size %d x %d, expected 8 x 3", size, count)
		}
		var vals [3]float64
		for i := range vals {
			if vals[i], err = r.float(); err != nil {
				return err
			}
		}
		names := [3]string{"system-missing", "highest", "lowest"}
		ours := [3]float64{models.SysMis, models.Highest, models.Lowest}
		for i := range vals {
			if !sameFloat(vals[i], ours[i]) {
				r.warn(recOff, "file %s value %g differs from %g; using the file's value", names[i], vals[i], ours[i])
			}
		}
		r.hdr.SysMis, r.hdr.Highest, r.hdr.Lowest = vals[0], vals[1], vals[2]
		return nil

	default:
		r.warn(recOff, "skipping unrecognized extension record subtype %d", subtype)
		remaining := int64(size) * int64(count)
		n, err := io.CopyN(io.Discard, r.r, remaining)
		r.off += n
		if err != nil {
			if err == io.EOF {
				return r.corrupt(r.off, "unexpected end of file")
			}
			return errors.Wrap(err, errors.ErrorTypeIO, "reading system file").At(r.name, r.off)
		}
		return nil
	}
}

func (r *Reader) finishDictionary(recOff int64) error {
	if r.dict.VarCount() == 0 {
		return r.corrupt(recOff, "system file has no variables")
	}
	slots := len(r.slotVars)
	if r.hdr.CaseSize != -1 && r.hdr.CaseSize != slots {
		return r.corrupt(68, "header declares %d slots per case but variable records define %d", r.hdr.CaseSize, slots)
	}
	r.hdr.CaseSize = slots

	for _, fn := range r.deferred {
		if err := fn(); err != nil {
			return err
		}
	}
	r.deferred = nil

	if wi := r.hdr.WeightIndex; wi != 0 {
		if wi < 0 || wi > slots || r.slotVars[wi-1] == nil || !r.slotVars[wi-1].IsNumeric() {
			return r.corrupt(76, "weight index %d does not refer to a numeric variable", wi)
		}
		if err := r.dict.SetWeight(r.slotVars[wi-1]); err != nil {
			return r.corrupt(76, "%v", err)
		}
	}
	r.slotVars = nil
	return nil
}

// ReadCase reads the next case into c, which must have at least
// Dictionary().ValueCount() slots. It returns false at the end of the data.
func (r *Reader) ReadCase(c models.Case) (bool, error) {
	if r.done {
		return false, nil
	}
	start := r.off
	if r.dec != nil {
		start = r.dec.off
	}
	var ok bool
	var err error
	if r.dec != nil {
		ok, err = r.readCompressed(c)
	} else {
		ok, err = r.readRaw(c)
	}
	if err != nil {
		r.done = true
		return false, err
	}
	if !ok {
		r.done = true
		if n := r.hdr.CaseCount; n >= 0 && n != r.cases {
			return false, r.corrupt(start, "header declares %d cases but the file contains %d", n, r.cases)
		}
		return false, nil
	}
	r.cases++
	if n := r.hdr.CaseCount; n >= 0 && r.cases > n {
		r.done = true
		return false, r.corrupt(start, "file contains more than the %d cases the header declares", n)
	}
	metrics.SysFileCases.WithLabelValues(metrics.DirectionRead).Inc()
	return true, nil
}

func (r *Reader) readRaw(c models.Case) (bool, error) {
	n := r.layout.Bytes()
	b := r.buf[:n]
	got, err := io.ReadFull(r.r, b)
	r.off += int64(got)
	switch {
	case err == io.EOF:
		return false, nil
	case err == io.ErrUnexpectedEOF:
		return false, r.corrupt(r.off, "partial case at end of file")
	case err != nil:
		return false, errors.Wrap(err, errors.ErrorTypeIO, "reading case data").At(r.name, r.off)
	}
	for i, k := range r.layout {
		s := b[i*models.SlotWidth:]
		if k == models.String {
			copy(c[i].S[:], s[:models.SlotWidth])
		} else {
			c[i].F = r.num(s)
		}
	}
	return true, nil
}

func (r *Reader) readCompressed(c models.Case) (bool, error) {
	d := r.dec
	for i, k := range r.layout {
		op, err := d.next()
		if err == io.EOF {
			if i == 0 {
				return false, nil
			}
			return false, r.corrupt(d.off, "partial case at end of file")
		}
		if err != nil {
			if err == io.ErrUnexpectedEOF {
				return false, r.corrupt(d.off, "truncated instruction block")
			}
			return false, errors.Wrap(err, errors.ErrorTypeIO, "reading case data").At(r.name, d.off)
		}

		switch {
		case op == opEnd:
			if i == 0 {
				return false, nil
			}
			return false, r.corrupt(d.off, "end of data in the middle of a case")
		case op == opLiteral:
			var lit [models.SlotWidth]byte
			if err := d.literal(lit[:]); err != nil {
				if err == io.ErrUnexpectedEOF {
					return false, r.corrupt(d.off, "partial case at end of file")
				}
				return false, errors.Wrap(err, errors.ErrorTypeIO, "reading case data").At(r.name, d.off)
			}
			if k == models.String {
				c[i].S = lit
			} else {
				c[i].F = r.num(lit[:])
			}
		case op == opBlank:
			if k != models.String {
				return false, r.corrupt(d.off, "blank string opcode in numeric slot %d", i)
			}
			c[i] = models.BlankValue()
		case op == opSysMis:
			if k != models.Numeric {
				return false, r.corrupt(d.off, "system-missing opcode in string slot %d", i)
			}
			c[i].F = models.SysMis
		default:
			if k != models.Numeric {
				return false, r.corrupt(d.off, "numeric opcode %d in string slot %d", op, i)
			}
			c[i].F = float64(op) - r.hdr.Bias
		}
	}
	return true, nil
}
