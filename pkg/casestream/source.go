package casestream

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// Source replays the cases written to a sink.
type Source struct {
	layout models.Layout
	count  int64
	log    *zap.Logger

	mem    []models.Value
	disk   *diskFile
	cursor *Cursor
	closed bool
}

// Layout returns the slot layout of the source's cases.
func (s *Source) Layout() models.Layout { return s.layout }

// CaseCount returns the number of cases in the source.
func (s *Source) CaseCount() int64 { return s.count }

// OnDisk reports whether the cases are in a temporary file.
func (s *Source) OnDisk() bool { return s.disk != nil }

// Cursor returns a reader positioned at the first case. Opening a new
// cursor invalidates the previous one.
func (s *Source) Cursor() (*Cursor, error) {
	if s.closed {
		return nil, errors.New(errors.ErrorTypeInternal, "read from a closed case stream")
	}
	if s.cursor != nil {
		s.cursor.Close()
	}
	c := &Cursor{src: s}
	if s.disk != nil {
		r, err := s.disk.rewind()
		if err != nil {
			return nil, err
		}
		c.disk = r
	}
	s.cursor = c
	return c, nil
}

// Read calls fn with every case in order. The case passed to fn is reused
// between calls. Read stops at the first error.
func (s *Source) Read(fn func(models.Case) error) error {
	cur, err := s.Cursor()
	if err != nil {
		return err
	}
	defer cur.Close()
	c := make(models.Case, len(s.layout))
	for {
		ok, err := cur.ReadCase(c)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(c); err != nil {
			return err
		}
	}
}

// Close releases the source and removes its temporary file.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cursor != nil {
		s.cursor.Close()
		s.cursor = nil
	}
	s.mem = nil
	if s.disk == nil {
		return nil
	}
	err := s.disk.remove()
	s.disk = nil
	return err
}

// Cursor reads a source one case at a time. It implements
// models.CaseReader.
type Cursor struct {
	src  *Source
	disk *diskReader
	next int64
	done bool
}

// ReadCase copies the next case into c, which must have at least
// len(Layout()) slots.
func (c *Cursor) ReadCase(dst models.Case) (bool, error) {
	if c.done || c.next >= c.src.count {
		return false, nil
	}
	n := int64(len(c.src.layout))
	if c.disk != nil {
		if err := c.disk.read(dst); err != nil {
			c.done = true
			return false, err
		}
	} else {
		copy(dst, c.src.mem[c.next*n:(c.next+1)*n])
	}
	c.next++
	return true, nil
}

// Close releases buffered readers held by the cursor.
func (c *Cursor) Close() {
	c.done = true
	if c.disk != nil {
		c.disk.close()
		c.disk = nil
	}
}
