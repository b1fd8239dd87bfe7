package extsort

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/gotchess/chessposdb/internal/entry"
)

// blockEntries is the number of entries buffered per on-disk block before
// it is snappy-compressed and flushed, mirroring the block granularity of
// cmd/bio-bam-sort/sorter's sortShardWriter.
const blockEntries = 4096

// fileTempSegment is a scratch sorted run backed by a snappy-compressed
// temporary file: a sequence of blocks, each framed as a 4-byte
// little-endian compressed length followed by that many compressed bytes.
type fileTempSegment struct {
	path string
	f    *os.File
	w    *bufio.Writer

	buf    []entry.Entry
	closed bool
}

// NewFileTempFactory returns a TempFactory creating scratch segments as
// snappy-compressed temp files under dir (spec §4.4's temporary merge
// segments).
func NewFileTempFactory(dir string) TempFactory {
	return func() (TempSegment, error) {
		f, err := os.CreateTemp(dir, "chessposdb-merge-*.tmp")
		if err != nil {
			return nil, errors.Wrap(err, "extsort: create temp segment")
		}
		return &fileTempSegment{path: f.Name(), f: f, w: bufio.NewWriterSize(f, 1<<20)}, nil
	}
}

func (s *fileTempSegment) Push(e entry.Entry) error {
	s.buf = append(s.buf, e)
	if len(s.buf) >= blockEntries {
		return s.flushBlock()
	}
	return nil
}

func (s *fileTempSegment) flushBlock() error {
	if len(s.buf) == 0 {
		return nil
	}
	raw := make([]byte, entry.Size*len(s.buf))
	for i, e := range s.buf {
		e.Encode(raw[i*entry.Size : (i+1)*entry.Size])
	}
	s.buf = s.buf[:0]

	compressed := snappy.Encode(nil, raw)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	if _, err := s.w.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "extsort: write temp segment block length")
	}
	if _, err := s.w.Write(compressed); err != nil {
		return errors.Wrap(err, "extsort: write temp segment block")
	}
	return nil
}

func (s *fileTempSegment) Close() error {
	if s.closed {
		return nil
	}
	if err := s.flushBlock(); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return errors.Wrap(err, "extsort: flush temp segment")
	}
	s.closed = true
	return s.f.Close()
}

func (s *fileTempSegment) Source() (Source, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "extsort: reopen temp segment")
	}
	return &fileTempSource{f: f, r: bufio.NewReaderSize(f, 1<<20)}, nil
}

func (s *fileTempSegment) Remove() error {
	return os.Remove(s.path)
}

// fileTempSource reads entries back out of a fileTempSegment's blocks in
// order, decompressing one block at a time.
type fileTempSource struct {
	f   *os.File
	r   *bufio.Reader
	buf []entry.Entry
	pos int
}

func (s *fileTempSource) Next() (entry.Entry, bool, error) {
	if s.pos >= len(s.buf) {
		if err := s.readBlock(); err != nil {
			if err == io.EOF {
				s.f.Close()
				return entry.Entry{}, false, nil
			}
			return entry.Entry{}, false, err
		}
	}
	e := s.buf[s.pos]
	s.pos++
	return e, true, nil
}

func (s *fileTempSource) readBlock() error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	compressed := make([]byte, n)
	if _, err := io.ReadFull(s.r, compressed); err != nil {
		return errors.Wrap(err, "extsort: read temp segment block")
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return errors.Wrap(err, "extsort: decode temp segment block")
	}
	count := len(raw) / entry.Size
	s.buf = make([]entry.Entry, count)
	for i := 0; i < count; i++ {
		s.buf[i] = entry.Decode(raw[i*entry.Size : (i+1)*entry.Size])
	}
	s.pos = 0
	return nil
}
