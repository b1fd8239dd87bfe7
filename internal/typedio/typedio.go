// Package typedio implements the typed span and vector of spec §4.3:
// strongly-typed views over a binary file, with double-buffered async
// prefetch for sequential reads and double-buffered async flush for
// appends.
package typedio

import (
	"github.com/gotchess/chessposdb/internal/filelayer"
	"github.com/gotchess/chessposdb/internal/ioqueue"
)

// Codec converts between a value of T and its fixed-width wire encoding.
type Codec[T any] interface {
	Size() int
	Encode(v T, dst []byte)
	Decode(src []byte) T
}

// Span is an ImmutableSpan[T]: a read-only, element-typed view over a
// binary file, supporting both random access and a sequential,
// double-buffered Iterator.
type Span[T any] struct {
	sched *ioqueue.Scheduler
	file  filelayer.File
	codec Codec[T]
}

// Open wraps file as a typed span of elements described by codec. Reads go
// through sched.
func Open[T any](sched *ioqueue.Scheduler, file filelayer.File, codec Codec[T]) *Span[T] {
	return &Span[T]{sched: sched, file: file, codec: codec}
}

// Len returns the number of elements currently stored.
func (s *Span[T]) Len() (int64, error) {
	n, err := s.file.Size()
	if err != nil {
		return 0, err
	}
	return n / int64(s.codec.Size()), nil
}

// ReadAt performs a bulk random-access read of up to len(dst) elements
// starting at element offset off, returning the number actually read.
func (s *Span[T]) ReadAt(dst []T, off int64) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	size := s.codec.Size()
	buf := make([]byte, size*len(dst))
	n, err := s.file.ReadAt(buf, off, size, len(dst))
	for i := 0; i < n; i++ {
		dst[i] = s.codec.Decode(buf[i*size : (i+1)*size])
	}
	return n, err
}

// At reads the single element at index i.
func (s *Span[T]) At(i int64) (T, error) {
	var out [1]T
	n, err := s.ReadAt(out[:], i)
	var zero T
	if n < 1 {
		if err == nil {
			err = &filelayer.Error{Kind: filelayer.ShortRead, Path: s.file.Path(), Requested: 1, Actual: 0}
		}
		return zero, err
	}
	return out[0], nil
}

// Iterator is a sequential, double-buffered reader over a Span. It
// maintains two buffers of B elements; while the front buffer is being
// consumed, the back buffer's read is already in flight, so Advance only
// blocks when it catches up to an outstanding prefetch.
type Iterator[T any] struct {
	span *Span[T]
	size int
	buf  int64 // B, elements per buffer

	front   []byte
	frontN  int
	pos     int
	back    []byte
	pending *ioqueue.Future
	next    int64 // absolute element offset the pending read started at
	atEnd   bool
}

// NewIterator creates an iterator starting at element offset 0, with two
// buffers of bufElems elements each. It loads the front buffer, waiting for
// that read, and then (if the front buffer came back full) schedules the
// back buffer's prefetch, which runs while the front buffer is consumed.
func (s *Span[T]) NewIterator(bufElems int) *Iterator[T] {
	if bufElems <= 0 {
		bufElems = 1
	}
	size := s.codec.Size()
	it := &Iterator[T]{span: s, size: size, buf: int64(bufElems)}
	it.front = make([]byte, size*bufElems)
	it.back = make([]byte, size*bufElems)

	filelayer.Advise(s.file, 0, int64(size)*int64(bufElems)*2)
	frontFuture := s.sched.Submit(&ioqueue.Job{Kind: ioqueue.Read, File: s.file, Buffer: it.front, Offset: 0, Elem: size, Count: bufElems})
	n, err := frontFuture.Get()
	it.frontN = n
	it.pos = 0
	if err != nil || n < bufElems {
		it.atEnd = n == 0
		it.pending = nil
		it.next = int64(bufElems)
		if err != nil {
			it.atEnd = true
		}
		return it
	}
	it.pending = s.sched.Submit(&ioqueue.Job{Kind: ioqueue.Read, File: s.file, Buffer: it.back, Offset: int64(bufElems), Elem: size, Count: bufElems})
	it.next = int64(2 * bufElems)
	return it
}

// Advance returns the next element in sequence, ok=false once the span is
// exhausted.
func (it *Iterator[T]) Advance() (T, bool, error) {
	var zero T
	if it.pos >= it.frontN {
		if it.pending == nil {
			return zero, false, nil
		}
		n, err := it.pending.Get()
		it.pending = nil
		it.front, it.back = it.back, it.front
		it.frontN = n
		it.pos = 0
		if fe, ok := err.(*filelayer.Error); ok && fe.Kind == filelayer.ShortRead {
			// A short read only marks the last, partial buffer of the span.
			err = nil
		}
		if err != nil {
			return zero, false, err
		}
		if n == 0 {
			return zero, false, nil
		}
		if n == int(it.buf) {
			it.pending = it.span.sched.Submit(&ioqueue.Job{
				Kind: ioqueue.Read, File: it.span.file, Buffer: it.back,
				Offset: it.next, Elem: it.size, Count: int(it.buf),
			})
			it.next += it.buf
		}
		if it.pos >= it.frontN {
			return zero, false, nil
		}
	}
	val := it.span.codec.Decode(it.front[it.pos*it.size : (it.pos+1)*it.size])
	it.pos++
	return val, true, nil
}
