package pool

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolResetsOnPut(t *testing.T) {
	type buffer struct{ data []byte }
	p := New(
		func() *buffer { return &buffer{data: make([]byte, 0, 16)} },
		func(b *buffer) { b.data = b.data[:0] },
	)

	b := p.Get()
	b.data = append(b.data, "dirty"...)
	p.Put(b)

	allocated, inUse, _, misses := p.Stats()
	assert.Equal(t, int64(1), allocated)
	assert.Equal(t, int64(0), inUse)
	assert.Equal(t, int64(1), misses)
	assert.Empty(t, b.data)
}

func TestBufferPoolBuckets(t *testing.T) {
	bp := NewBufferPool()

	buf := bp.Get(100)
	assert.Len(t, buf, 100)
	assert.Equal(t, 512, cap(buf))
	bp.Put(buf)

	buf = bp.Get(3000)
	assert.Len(t, buf, 3000)
	assert.Equal(t, 8192, cap(buf))
	bp.Put(buf)

	huge := bp.Get(32 << 20)
	assert.Len(t, huge, 32<<20)
	bp.Put(huge)
}

func TestReaderWriterPools(t *testing.T) {
	var dst bytes.Buffer
	w := GetWriter(&dst)
	_, err := w.WriteString("case data")
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	PutWriter(w)
	assert.Equal(t, "case data", dst.String())

	r := GetReader(strings.NewReader("spilled"))
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	PutReader(r)
	assert.Equal(t, "spilled", string(got))

	// A recycled writer must not leak the previous destination.
	var other bytes.Buffer
	w = GetWriter(&other)
	_, _ = w.WriteString("x")
	require.NoError(t, w.Flush())
	PutWriter(w)
	assert.Equal(t, "x", other.String())
	assert.Equal(t, "case data", dst.String())

	_, inUse, _, _ := WriterStats()
	assert.Equal(t, int64(0), inUse)
	_, inUse, _, _ = ReaderStats()
	assert.Equal(t, int64(0), inUse)

	PutReader(nil)
	PutWriter(nil)
}
