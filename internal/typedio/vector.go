package typedio

import (
	"github.com/grailbio/base/log"

	"github.com/gotchess/chessposdb/internal/filelayer"
	"github.com/gotchess/chessposdb/internal/ioqueue"
)

// Vector (aka BackInserter) is an append-only sink: it fills a front buffer
// on Push and, once that is full, copies its contents out and schedules an
// async append of the copy, so computation and I/O overlap (spec §4.3).
type Vector[T any] struct {
	sched    *ioqueue.Scheduler
	file     filelayer.File
	codec    Codec[T]
	bufElems int

	front  []byte
	frontN int

	pending *ioqueue.Future
}

// BackInserter is the same sink under the spec's other name for it.
type BackInserter[T any] = Vector[T]

// NewVector creates a Vector writing through sched to file, buffering up
// to bufElems elements per side before flushing.
func NewVector[T any](sched *ioqueue.Scheduler, file filelayer.File, codec Codec[T], bufElems int) *Vector[T] {
	if bufElems <= 0 {
		bufElems = 1
	}
	return &Vector[T]{
		sched: sched, file: file, codec: codec, bufElems: bufElems,
		front: make([]byte, codec.Size()*bufElems),
	}
}

// NewBackInserter is an alias constructor matching the spec's other name.
func NewBackInserter[T any](sched *ioqueue.Scheduler, file filelayer.File, codec Codec[T], bufElems int) *BackInserter[T] {
	return NewVector[T](sched, file, codec, bufElems)
}

func (v *Vector[T]) awaitPending() error {
	if v.pending == nil {
		return nil
	}
	_, err := v.pending.Get()
	v.pending = nil
	return err
}

// scheduleAppend awaits any previously scheduled append first, so that
// writes are observed on disk in the order they were submitted (spec §5).
func (v *Vector[T]) scheduleAppend(data []byte, count int) error {
	if err := v.awaitPending(); err != nil {
		return err
	}
	v.pending = v.sched.Submit(&ioqueue.Job{
		Kind: ioqueue.Append, File: v.file, Buffer: data,
		Elem: v.codec.Size(), Count: count,
	})
	return nil
}

func (v *Vector[T]) flip() error {
	size := v.codec.Size()
	data := make([]byte, v.frontN*size)
	copy(data, v.front[:v.frontN*size])
	count := v.frontN
	v.frontN = 0
	if count == 0 {
		return nil
	}
	return v.scheduleAppend(data, count)
}

// Push appends a single element, flushing the front buffer first if it is
// already full.
func (v *Vector[T]) Push(val T) error {
	if v.frontN == v.bufElems {
		if err := v.flip(); err != nil {
			return err
		}
	}
	size := v.codec.Size()
	v.codec.Encode(val, v.front[v.frontN*size:(v.frontN+1)*size])
	v.frontN++
	return nil
}

// PushBatch appends many elements at once. If they fit in the remaining
// front buffer they are batched normally; otherwise the front buffer is
// flushed and the caller's elements are written directly, after first
// awaiting any outstanding append so the direct write lands after it
// (spec §4.3).
func (v *Vector[T]) PushBatch(vals []T) error {
	remaining := v.bufElems - v.frontN
	if len(vals) <= remaining {
		for _, val := range vals {
			if err := v.Push(val); err != nil {
				return err
			}
		}
		return nil
	}
	if err := v.flip(); err != nil {
		return err
	}
	if err := v.awaitPending(); err != nil {
		return err
	}
	size := v.codec.Size()
	data := make([]byte, size*len(vals))
	for i, val := range vals {
		v.codec.Encode(val, data[i*size:(i+1)*size])
	}
	return v.scheduleAppend(data, len(vals))
}

// Flush flushes the front buffer (if non-empty) and awaits the in-flight
// append, so that every Push/PushBatch call so far is durable on return.
func (v *Vector[T]) Flush() error {
	if v.frontN > 0 {
		if err := v.flip(); err != nil {
			return err
		}
	}
	return v.awaitPending()
}

// Close flushes and closes the underlying file.
func (v *Vector[T]) Close() error {
	err := v.Flush()
	if cerr := v.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// CloseBestEffort flushes and closes, logging but swallowing any error.
// This is the closest Go equivalent of the source's destructor-time
// best-effort flush (spec §4.3, §7): Go has no destructors, so callers that
// want guaranteed cleanup without caring about the result call this
// instead of Close from a defer.
func (v *Vector[T]) CloseBestEffort() {
	if err := v.Close(); err != nil {
		log.Error.Printf("typedio: best-effort close of %s failed: %v", v.file.Path(), err)
	}
}
