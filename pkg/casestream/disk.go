package casestream

import (
	"bufio"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/endian"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/models"
	"github.com/ajitpratap0/tabula/pkg/pool"
)

// diskFile is a temporary file of fixed-size little-endian case records,
// optionally compressed.
type diskFile struct {
	path   string
	f      *os.File
	layout models.Layout
	codec  compression.Codec
	log    *zap.Logger

	bw  *bufio.Writer
	zw  io.WriteCloser
	buf []byte
	off int64
}

func createDiskFile(dir string, layout models.Layout, codec compression.Codec, log *zap.Logger) (*diskFile, error) {
	f, err := os.CreateTemp(dir, "tabula-cases-*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "creating temporary case file").At(dir, -1)
	}
	d := &diskFile{
		path:   f.Name(),
		f:      f,
		layout: layout,
		codec:  codec,
		log:    log,
		buf:    pool.Buffers.Get(layout.Bytes()),
	}
	d.bw = pool.GetWriter(f)
	if codec != nil {
		if d.zw, err = codec.NewWriter(d.bw); err != nil {
			d.remove()
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "starting case file compression").At(d.path, -1)
		}
	}
	log.Debug("created temporary case file", zap.String("path", d.path))
	return d, nil
}

func (d *diskFile) ioError(err error, msg string) error {
	return errors.Wrap(err, errors.ErrorTypeIO, msg).At(d.path, d.off)
}

func (d *diskFile) write(c models.Case) error {
	d.layout.EncodeCase(endian.Little(), c, d.buf)
	var w io.Writer = d.bw
	if d.zw != nil {
		w = d.zw
	}
	if _, err := w.Write(d.buf); err != nil {
		return d.ioError(err, "writing temporary case file")
	}
	d.off += int64(len(d.buf))
	return nil
}

// finishWrite flushes everything written and releases the writer.
func (d *diskFile) finishWrite() error {
	if d.zw != nil {
		if err := d.zw.Close(); err != nil {
			return d.ioError(err, "finishing temporary case file")
		}
		d.zw = nil
	}
	if d.bw != nil {
		err := d.bw.Flush()
		pool.PutWriter(d.bw)
		d.bw = nil
		if err != nil {
			return d.ioError(err, "flushing temporary case file")
		}
	}
	return nil
}

// rewind returns a reader over the records from the start of the file.
func (d *diskFile) rewind() (*diskReader, error) {
	if _, err := d.f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "rewinding temporary case file").At(d.path, 0)
	}
	r := &diskReader{d: d, br: pool.GetReader(d.f)}
	r.r = r.br
	if d.codec != nil {
		zr, err := d.codec.NewReader(r.br)
		if err != nil {
			r.close()
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "starting case file decompression").At(d.path, 0)
		}
		r.zr = zr
		r.r = zr
	}
	return r, nil
}

func (d *diskFile) remove() error {
	if d.zw != nil {
		_ = d.zw.Close()
		d.zw = nil
	}
	if d.bw != nil {
		pool.PutWriter(d.bw)
		d.bw = nil
	}
	if d.buf != nil {
		pool.Buffers.Put(d.buf)
		d.buf = nil
	}
	closeErr := d.f.Close()
	err := os.Remove(d.path)
	d.log.Debug("removed temporary case file", zap.String("path", d.path))
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "removing temporary case file").At(d.path, -1)
	}
	return nil
}

type diskReader struct {
	d   *diskFile
	br  *bufio.Reader
	zr  io.ReadCloser
	r   io.Reader
	off int64
}

// read fills c with the next record.
func (r *diskReader) read(c models.Case) error {
	buf := r.d.buf
	n, err := io.ReadFull(r.r, buf)
	r.off += int64(n)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errors.New(errors.ErrorTypeIO, "short read in temporary case file").At(r.d.path, r.off)
		}
		return errors.Wrap(err, errors.ErrorTypeIO, "reading temporary case file").At(r.d.path, r.off)
	}
	r.d.layout.DecodeCase(endian.Little(), buf, c)
	return nil
}

func (r *diskReader) close() {
	if r.zr != nil {
		_ = r.zr.Close()
		r.zr = nil
	}
	if r.br != nil {
		pool.PutReader(r.br)
		r.br = nil
	}
}
