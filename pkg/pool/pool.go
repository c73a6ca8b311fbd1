// Package pool provides typed object pooling for tabula's I/O paths.
//
// The package provides:
//   - Generic type-safe object pooling with Pool[T]
//   - Byte buffer pooling with size-based buckets
//   - Pooled bufio readers and writers for case-stream temporary files
//
// Example usage:
//
//	w := pool.GetWriter(file)
//	defer pool.PutWriter(w)
//	w.Write(record)
//	w.Flush()
package pool

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// IOBufferSize is the buffer size of pooled readers and writers.
const IOBufferSize = 64 * 1024

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with statistics tracking and an optional reset
// function. The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		hits      int64
		misses    int64
	}
}

// New creates a new typed pool. newFn builds an object when the pool is
// empty; reset, if non-nil, is called on every object returned with Put.
//
// Example:
//
//	p := New(
//	    func() *Buffer { return &Buffer{data: make([]byte, 0, 1024)} },
//	    func(b *Buffer) { b.data = b.data[:0] },
//	)
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		atomic.AddInt64(&p.stats.misses, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, creating one if the pool is
// empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	before := atomic.LoadInt64(&p.stats.misses)
	obj := p.pool.Get().(T)
	if atomic.LoadInt64(&p.stats.misses) == before {
		atomic.AddInt64(&p.stats.hits, 1)
	}
	return obj
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns current pool statistics.
//
// Returns:
//   - allocated: Total number of objects created by the pool
//   - inUse: Number of objects currently checked out from the pool
//   - hits: Number of Get calls served from the pool
//   - misses: Number of Get calls that had to allocate
//
// Under concurrent use hits and misses are approximate.
func (p *Pool[T]) Stats() (allocated, inUse, hits, misses int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.hits),
		atomic.LoadInt64(&p.stats.misses)
}

// BufferPool manages byte buffer pooling with size-based buckets.
// It selects the smallest bucket that fits a request. Requests larger than
// the biggest bucket are allocated directly.
type BufferPool struct {
	pools []*Pool[[]byte]
	sizes []int
}

// NewBufferPool creates a buffer pool with power-of-four buckets from
// 512 bytes to 16MB.
func NewBufferPool() *BufferPool {
	sizes := []int{
		512,
		2048,
		8192,
		32768,
		131072,
		524288,
		2097152,
		8388608,
		16777216,
	}

	pools := make([]*Pool[[]byte], len(sizes))
	for i, size := range sizes {
		size := size
		pools[i] = New(func() []byte { return make([]byte, size) }, nil)
	}

	return &BufferPool{
		pools: pools,
		sizes: sizes,
	}
}

// Get returns a buffer of length size. Its capacity may be larger.
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			buf := p.pools[i].Get()
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a buffer obtained from Get. Buffers whose capacity does not
// match a bucket are left to the garbage collector.
func (p *BufferPool) Put(buf []byte) {
	size := cap(buf)
	for i, s := range p.sizes {
		if s == size {
			p.pools[i].Put(buf[:size])
			return
		}
	}
}

// Buffers is the shared buffer pool.
var Buffers = NewBufferPool()

var (
	readerPool = New(
		func() *bufio.Reader { return bufio.NewReaderSize(nil, IOBufferSize) },
		func(r *bufio.Reader) { r.Reset(nil) },
	)
	writerPool = New(
		func() *bufio.Writer { return bufio.NewWriterSize(nil, IOBufferSize) },
		func(w *bufio.Writer) { w.Reset(nil) },
	)
)

// GetReader returns a pooled buffered reader reading from r.
func GetReader(r io.Reader) *bufio.Reader {
	br := readerPool.Get()
	br.Reset(r)
	return br
}

// PutReader returns a reader obtained from GetReader.
func PutReader(br *bufio.Reader) {
	if br != nil {
		readerPool.Put(br)
	}
}

// GetWriter returns a pooled buffered writer writing to w. Callers must
// Flush before PutWriter; unflushed data is discarded.
func GetWriter(w io.Writer) *bufio.Writer {
	bw := writerPool.Get()
	bw.Reset(w)
	return bw
}

// PutWriter returns a writer obtained from GetWriter.
func PutWriter(bw *bufio.Writer) {
	if bw != nil {
		writerPool.Put(bw)
	}
}

// ReaderStats returns the statistics of the reader pool.
func ReaderStats() (allocated, inUse, hits, misses int64) { return readerPool.Stats() }

// WriterStats returns the statistics of the writer pool.
func WriterStats() (allocated, inUse, hits, misses int64) { return writerPool.Stats() }
