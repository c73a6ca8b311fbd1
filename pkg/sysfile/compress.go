package sysfile

import (
	"io"
	"math"

	"github.com/ajitpratap0/tabula/pkg/endian"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// Compression opcodes. Each instruction block holds eight opcodes, one per
// following data slot; literals referenced by opcode 253 follow the block
// in order.
const (
	opNop     = 0
	opEnd     = 252
	opLiteral = 253
	opBlank   = 254
	opSysMis  = 255

	blockSize = 8
)

// compressNum returns the opcode for f, or opLiteral when f has to be stored
// verbatim. Only doubles that survive op-bias exactly are compressed, which
// excludes -0 and NaN.
func compressNum(f, bias float64) byte {
	if f == models.SysMis {
		return opSysMis
	}
	op := f + bias
	if op < 1 || op > opEnd-1 || op != math.Trunc(op) || op-bias != f {
		return opLiteral
	}
	if f == 0 && math.Signbit(f) {
		return opLiteral
	}
	return byte(op)
}

// compressor packs slots into instruction blocks and their literals.
type compressor struct {
	w    io.Writer
	e    endian.Engine
	bias float64

	ops  [blockSize]byte
	n    int
	lits []byte
}

func newCompressor(w io.Writer, e endian.Engine, bias float64) *compressor {
	return &compressor{w: w, e: e, bias: bias, lits: make([]byte, 0, blockSize*models.SlotWidth)}
}

func (c *compressor) put(op byte, lit []byte) error {
	c.ops[c.n] = op
	c.n++
	c.lits = append(c.lits, lit...)
	if c.n == blockSize {
		return c.flush()
	}
	return nil
}

// putSlot encodes one slot of the given kind.
func (c *compressor) putSlot(kind models.SlotKind, v models.Value) error {
	if kind == models.String {
		if v.IsBlank() {
			return c.put(opBlank, nil)
		}
		return c.put(opLiteral, v.S[:])
	}
	op := compressNum(v.F, c.bias)
	if op != opLiteral {
		return c.put(op, nil)
	}
	var lit [models.SlotWidth]byte
	endian.PutFloat64(c.e, lit[:], v.F)
	return c.put(opLiteral, lit[:])
}

// flush writes the pending block, zero filling unused opcodes.
func (c *compressor) flush() error {
	if c.n == 0 {
		return nil
	}
	for i := c.n; i < blockSize; i++ {
		c.ops[i] = opNop
	}
	if _, err := c.w.Write(c.ops[:]); err != nil {
		return err
	}
	if _, err := c.w.Write(c.lits); err != nil {
		return err
	}
	c.n = 0
	c.lits = c.lits[:0]
	return nil
}

// finish appends the end-of-data opcode and flushes.
func (c *compressor) finish() error {
	if err := c.put(opEnd, nil); err != nil {
		return err
	}
	return c.flush()
}

// decompressor reads instruction blocks. It tracks its position inside the
// current block exactly as the compressor filled it.
type decompressor struct {
	r    io.Reader
	bias float64

	ops [blockSize]byte
	pos int
	off int64
}

func newDecompressor(r io.Reader, bias float64, off int64) *decompressor {
	return &decompressor{r: r, bias: bias, pos: blockSize, off: off}
}

// next returns the next non-nop opcode. io.EOF means the input ended
// cleanly on a block boundary.
func (d *decompressor) next() (byte, error) {
	for {
		if d.pos == blockSize {
			n, err := io.ReadFull(d.r, d.ops[:])
			d.off += int64(n)
			if err != nil {
				if err == io.EOF {
					return 0, io.EOF
				}
				return 0, err
			}
			d.pos = 0
		}
		op := d.ops[d.pos]
		d.pos++
		if op != opNop {
			return op, nil
		}
	}
}

// literal reads the eight bytes that follow the current block.
func (d *decompressor) literal(dst []byte) error {
	n, err := io.ReadFull(d.r, dst[:models.SlotWidth])
	d.off += int64(n)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
