// Package filelayer implements the pooled and unpooled random-access file
// abstractions of spec §4.1: size/read/append-at-end/truncate over a path,
// with a process-global cap on concurrently-open OS handles.
package filelayer

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Mode selects how a file is (re)opened. ModeTruncate is only meaningful on
// the initial open of a fresh segment; if the handle is later evicted from
// the pool and reopened, it is reopened in ModeAppend so that previously
// written bytes are not clobbered (spec §4.1, and the Open Question in
// spec §9 about truncate bypassing the pool's LRU).
type Mode int

const (
	ModeRead Mode = iota
	ModeAppend
	ModeTruncate
)

// File is the contract shared by Pooled and Unpooled files. Read and Append
// are denominated in elements of a caller-chosen byte width, matching the
// typed spans/vectors built on top (spec §4.3).
type File interface {
	Path() string
	// Size returns the file's length in bytes.
	Size() (int64, error)
	// ReadAt reads up to count elements of width elem starting at element
	// offset off, into dst (which must hold at least elem*count bytes). It
	// returns the number of whole elements actually read.
	ReadAt(dst []byte, off int64, elem int, count int) (int, error)
	// Append writes count elements of width elem from src to the end of the
	// file. It returns the number of whole elements actually written.
	Append(src []byte, elem int, count int) (int, error)
	Flush() error
	Truncate() error
	Close() error
}

// adviser is implemented by files that can pass a sequential-access hint to
// the kernel. Advise is a no-op if f does not implement it or has no
// currently-open handle.
type adviser interface {
	Advise(offset, length int64)
}

// Advise hints that f will be read sequentially starting at element offset
// for length elements' worth of bytes, for use by the typed span iterator's
// prefetcher (spec §4.3).
func Advise(f File, offsetBytes, lengthBytes int64) {
	if a, ok := f.(adviser); ok {
		a.Advise(offsetBytes, lengthBytes)
	}
}

func openOS(path string, mode Mode) (*os.File, error) {
	switch mode {
	case ModeRead:
		return os.OpenFile(path, os.O_RDONLY, 0644)
	case ModeAppend:
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	case ModeTruncate:
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	default:
		return nil, errors.Errorf("filelayer: unknown mode %d", mode)
	}
}

// reopenMode rewrites ModeTruncate to ModeAppend, per spec §4.1: "any
// 'truncate' mode is rewritten to 'append' on reopen so data is not lost".
func reopenMode(mode Mode) Mode {
	if mode == ModeTruncate {
		return ModeAppend
	}
	return mode
}

func readAt(f *os.File, dst []byte, off int64, elem, count int) (int, error) {
	n, err := f.ReadAt(dst[:elem*count], off*int64(elem))
	whole := n / elem
	if err == io.EOF {
		// Reaching end of file is not an error here: the caller sees the
		// short count and reports it as a ShortRead.
		err = nil
	}
	return whole, err
}

func appendAt(f *os.File, src []byte, elem, count int) (int, error) {
	n, err := f.Write(src[:elem*count])
	return n / elem, err
}
