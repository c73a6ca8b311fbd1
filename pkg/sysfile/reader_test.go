package sysfile

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tabula/pkg/diag"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/endian"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/models"
)

func requireCorrupt(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorrupt), "want corrupt error, got %v", err)
	assert.Contains(t, err.Error(), contains)
	assert.Contains(t, err.Error(), "test.sav")
}

func open(data []byte, sink diag.Sink) (*Reader, error) {
	return NewReader(bytes.NewReader(data), "test.sav", ReaderOptions{Diagnostics: sink})
}

func TestReaderHeaderErrors(t *testing.T) {
	d := dictionary.New()
	_, _ = d.CreateVar("X", 0)
	good := writeAll(t, d, nil, WriterOptions{ByteOrder: endian.Little()})

	t.Run("magic", func(t *testing.T) {
		data := append([]byte(nil), good...)
		data[0] = 'X'
		_, err := open(data, nil)
		requireCorrupt(t, err, "bad magic")
		assert.Contains(t, err.Error(), "at offset 0")
	})

	t.Run("layout code", func(t *testing.T) {
		data := append([]byte(nil), good...)
		endian.Little().PutUint32(data[64:], 3)
		_, err := open(data, nil)
		requireCorrupt(t, err, "bad layout code")
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := open(good[:100], nil)
		requireCorrupt(t, err, "unexpected end of file")
	})

	t.Run("case size mismatch", func(t *testing.T) {
		data := append([]byte(nil), good...)
		endian.Little().PutUint32(data[68:], 2)
		_, err := open(data, nil)
		requireCorrupt(t, err, "slots per case")
	})

	t.Run("compression code", func(t *testing.T) {
		data := append([]byte(nil), good...)
		endian.Little().PutUint32(data[72:], 2)
		_, err := open(data, nil)
		requireCorrupt(t, err, "compression code")
	})

	t.Run("weight index", func(t *testing.T) {
		data := append([]byte(nil), good...)
		endian.Little().PutUint32(data[76:], 5)
		_, err := open(data, nil)
		requireCorrupt(t, err, "weight index")
	})
}

func TestReaderRecordErrors(t *testing.T) {
	le := endian.Little()
	tests := []struct {
		name     string
		build    func(b *fileBuilder)
		contains string
	}{
		{
			name:     "unknown record type",
			build:    func(b *fileBuilder) { b.header(1, 0, -1).numVar("X").i32(5) },
			contains: "unrecognized record type 5",
		},
		{
			name:     "bad name",
			build:    func(b *fileBuilder) { b.header(1, 0, -1).numVar("1X").end() },
			contains: "invalid variable name",
		},
		{
			name:     "duplicate name",
			build:    func(b *fileBuilder) { b.header(2, 0, -1).numVar("X").numVar("X").end() },
			contains: "duplicate variable name",
		},
		{
			name: "bad type code",
			build: func(b *fileBuilder) {
				b.header(1, 0, -1).i32(recVariable, 300, 0, 0, 0, 0).str("X", 8).end()
			},
			contains: "bad variable type code 300",
		},
		{
			name: "missing continuation",
			build: func(b *fileBuilder) {
				b.header(2, 0, -1).i32(recVariable, 12, 0, 0, 0x010c00, 0x010c00).str("S", 8).end()
			},
			contains: "missing 1 continuation",
		},
		{
			name: "continuation interrupted by variable",
			build: func(b *fileBuilder) {
				b.header(3, 0, -1).i32(recVariable, 12, 0, 0, 0x010c00, 0x010c00).str("S", 8).numVar("X").end()
			},
			contains: "missing 1 continuation",
		},
		{
			name: "stray continuation",
			build: func(b *fileBuilder) {
				b.header(2, 0, -1).numVar("X").i32(recVariable, -1, 0, 0, 0, 0).str("", 8).end()
			},
			contains: "continuation record without",
		},
		{
			name: "bad missing code",
			build: func(b *fileBuilder) {
				b.header(1, 0, -1).i32(recVariable, 0, 0, 4, 0x050802, 0x050802).str("X", 8).end()
			},
			contains: "bad missing value code 4",
		},
		{
			name: "string missing range",
			build: func(b *fileBuilder) {
				b.header(1, 0, -1).i32(recVariable, 4, 0, -2, 0x010400, 0x010400).str("S", 8).
					str("a", 8).str("b", 8).end()
			},
			contains: "missing value range",
		},
		{
			name: "numeric with string format",
			build: func(b *fileBuilder) {
				b.header(1, 0, -1).i32(recVariable, 0, 0, 0, 0x010800, 0x010800).str("X", 8).end()
			},
			contains: "does not match its type",
		},
		{
			name:     "type 4 without type 3",
			build:    func(b *fileBuilder) { b.header(1, 0, -1).numVar("X").i32(recValueLabelVars, 1, 1).end() },
			contains: "without preceding value label record",
		},
		{
			name: "type 3 without type 4",
			build: func(b *fileBuilder) {
				b.header(1, 0, -1).numVar("X").i32(recValueLabels, 1).f64(1)
				b.WriteByte(3)
				b.str("one", 7)
				b.end()
			},
			contains: "not followed by value label variable record",
		},
		{
			name: "value label count beyond end of file",
			build: func(b *fileBuilder) {
				b.header(1, 0, -1).numVar("X").i32(recValueLabels, 1<<24).f64(1)
				b.WriteByte(3)
				b.str("one", 7)
			},
			contains: "unexpected end of file",
		},
		{
			name: "value label index out of range",
			build: func(b *fileBuilder) {
				b.header(1, 0, -1).numVar("X").i32(recValueLabels, 0, recValueLabelVars, 1, 2).end()
			},
			contains: "out of range",
		},
		{
			name: "value label on continuation slot",
			build: func(b *fileBuilder) {
				b.header(2, 0, -1).strVar("S", 12).i32(recValueLabels, 0, recValueLabelVars, 1, 2).end()
			},
			contains: "continuation slot",
		},
		{
			name: "value labels on mixed types",
			build: func(b *fileBuilder) {
				b.header(2, 0, -1).numVar("X").strVar("S", 4).
					i32(recValueLabels, 0, recValueLabelVars, 2, 1, 2).end()
			},
			contains: "different types",
		},
		{
			name: "two document records",
			build: func(b *fileBuilder) {
				b.header(1, 0, -1).numVar("X").
					i32(recDocument, 1).str("a", 80).
					i32(recDocument, 1).str("b", 80).end()
			},
			contains: "multiple document records",
		},
		{
			name: "variable after extension",
			build: func(b *fileBuilder) {
				b.header(2, 0, -1).numVar("X").i32(recDocument, 0).numVar("Y").end()
			},
			contains: "variable record after",
		},
		{
			name: "not IEEE",
			build: func(b *fileBuilder) {
				b.header(1, 0, -1).numVar("X").
					i32(recExtension, extMachineInteger, 4, 8, 1, 0, 0, -1, 2, 1, 2, 2).end()
			},
			contains: "not IEEE-754",
		},
		{
			name: "EBCDIC",
			build: func(b *fileBuilder) {
				b.header(1, 0, -1).numVar("X").
					i32(recExtension, extMachineInteger, 4, 8, 1, 0, 0, -1, 1, 1, 2, 1).end()
			},
			contains: "not ASCII",
		},
		{
			name: "machine integer size",
			build: func(b *fileBuilder) {
				b.header(1, 0, -1).numVar("X").i32(recExtension, extMachineInteger, 4, 7).i32(0, 0, 0, 0, 0, 0, 0).end()
			},
			contains: "expected 4 x 8",
		},
		{
			name:     "no variables",
			build:    func(b *fileBuilder) { b.header(0, 0, -1).end() },
			contains: "no variables",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFileBuilder(le)
			tt.build(b)
			_, err := open(b.Bytes(), nil)
			requireCorrupt(t, err, tt.contains)
		})
	}
}

func TestReaderValueLabelCountDoesNotPreallocate(t *testing.T) {
	b := newFileBuilder(endian.Little())
	b.header(1, 0, -1).numVar("X").i32(recValueLabels, 1<<24).f64(1)
	data := b.Bytes()

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err := open(data, nil)
	runtime.ReadMemStats(&after)

	requireCorrupt(t, err, "unexpected end of file")
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}

func TestReaderWarnings(t *testing.T) {
	b := newFileBuilder(endian.Little())
	b.header(2, 0, 2).numVar("age").numVar("X").
		i32(recExtension, extMachineInteger, 4, 8, 1, 0, 0, -1, 1, 1, 1, 3).
		i32(recExtension, 99, 1, 5).str("junk!", 5).
		i32(recExtension, extMachineFloat, 8, 3).f64(-1e300, models.Highest, models.Lowest).
		end()
	b.f64(-1e300, 7)
	b.f64(1, -1e300)

	var warnings diag.Collector
	r, err := open(b.Bytes(), &warnings)
	require.NoError(t, err)
	assert.Equal(t, 4, warnings.Count(diag.Warning))

	msgs := warnings.Messages()
	assert.Contains(t, msgs[0].Text, "not uppercase")
	assert.Contains(t, msgs[1].Text, "byte order")
	assert.Contains(t, msgs[2].Text, "subtype 99")
	assert.Contains(t, msgs[3].Text, "system-missing")
	for _, m := range msgs {
		assert.Equal(t, "test.sav", m.File)
		assert.GreaterOrEqual(t, m.Offset, int64(headerLen))
	}

	assert.NotNil(t, r.Dictionary().Lookup("AGE"))
	assert.Equal(t, -1e300, r.Header().SysMis)

	cases := readAll(t, r)
	require.Len(t, cases, 2)
	assert.Equal(t, models.SysMis, cases[0].Num(0), "file sysmis maps to ours")
	assert.Equal(t, 7.0, cases[0].Num(1))
	assert.Equal(t, models.SysMis, cases[1].Num(1))
}

func TestReaderFileSentinelsDecodeMissingValues(t *testing.T) {
	fileLowest := -1e300
	b := newFileBuilder(endian.Little())
	b.header(1, 0, -1).
		i32(recVariable, 0, 0, -2, 0x050802, 0x050802).str("X", 8).f64(fileLowest, 5).
		i32(recExtension, extMachineFloat, 8, 3).f64(models.SysMis, models.Highest, fileLowest).
		end()

	var warnings diag.Collector
	r, err := open(b.Bytes(), &warnings)
	require.NoError(t, err)
	assert.Equal(t, 1, warnings.Count(diag.Warning))
	mv := r.Dictionary().Lookup("X").MissingValues()
	assert.Equal(t, dictionary.MissingLow, mv.Kind())
	assert.Equal(t, 5.0, mv.Hi)
}

func TestReaderCaseErrors(t *testing.T) {
	d := dictionary.New()
	_, _ = d.CreateVar("N", 0)
	_, _ = d.CreateVar("S", 8)
	c := d.NewCase()
	c.SetNum(0, 1)
	c.SetStr(1, 8, "x")

	t.Run("partial raw case", func(t *testing.T) {
		data := writeAll(t, d, []models.Case{c}, WriterOptions{})
		_, err := readAllErr(data[:len(data)-3])
		requireCorrupt(t, err, "partial case")
	})

	t.Run("case count mismatch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "x.sav")
		w, err := Create(path, d, WriterOptions{})
		require.NoError(t, err)
		require.NoError(t, w.WriteCase(c))
		require.NoError(t, w.WriteCase(c))
		require.NoError(t, w.Close())
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		_, err = readAllErr(data[:len(data)-16])
		requireCorrupt(t, err, "declares 2 cases but the file contains 1")

		_, err = readAllErr(append(data, data[len(data)-16:]...))
		requireCorrupt(t, err, "more than the 2 cases")
	})

	dictBytes := func() *fileBuilder {
		b := newFileBuilder(endian.Little())
		b.header(2, 1, -1).numVar("N").strVar("S", 8).end()
		return b
	}

	t.Run("end of data mid case", func(t *testing.T) {
		b := dictBytes()
		b.Write([]byte{101, 252, 0, 0, 0, 0, 0, 0})
		_, err := readAllErr(b.Bytes())
		requireCorrupt(t, err, "middle of a case")
	})

	t.Run("blank opcode in numeric slot", func(t *testing.T) {
		b := dictBytes()
		b.Write([]byte{254, 254, 0, 0, 0, 0, 0, 0})
		_, err := readAllErr(b.Bytes())
		requireCorrupt(t, err, "numeric slot 0")
	})

	t.Run("sysmis opcode in string slot", func(t *testing.T) {
		b := dictBytes()
		b.Write([]byte{101, 255, 0, 0, 0, 0, 0, 0})
		_, err := readAllErr(b.Bytes())
		requireCorrupt(t, err, "string slot 1")
	})

	t.Run("compressed case split across eof", func(t *testing.T) {
		b := dictBytes()
		b.Write([]byte{101, 0, 0, 0, 0, 0, 0, 0})
		_, err := readAllErr(b.Bytes())
		requireCorrupt(t, err, "partial case")
	})

	t.Run("missing literal", func(t *testing.T) {
		b := dictBytes()
		b.Write([]byte{101, 253, 0, 0, 0, 0, 0, 0})
		b.WriteString("abc")
		_, err := readAllErr(b.Bytes())
		requireCorrupt(t, err, "partial case")
	})

	t.Run("clean end without terminator", func(t *testing.T) {
		b := dictBytes()
		b.Write([]byte{101, 254, 0, 0, 0, 0, 0, 0})
		cases, err := readAllErr(b.Bytes())
		require.NoError(t, err)
		require.Len(t, cases, 1)
		assert.Equal(t, 1.0, cases[0].Num(0))
		assert.True(t, cases[0][1].IsBlank())
	})
}

func readAllErr(data []byte) ([]models.Case, error) {
	r, err := open(data, nil)
	if err != nil {
		return nil, err
	}
	var out []models.Case
	for {
		c := r.Dictionary().NewCase()
		ok, err := r.ReadCase(c)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, c)
	}
}
