// Package segment implements the segment file and partition of spec §4.7:
// an immutable K-full-sorted entry file with a sibling K-rm range index,
// and the directory of numbered segments that owns them.
package segment

import (
	"os"

	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/filelayer"
	"github.com/gotchess/chessposdb/internal/ioqueue"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/rangeindex"
	"github.com/gotchess/chessposdb/internal/search"
	"github.com/gotchess/chessposdb/internal/typedio"
)

// Segment is one on-disk, K-full-sorted entry file plus its sibling K-rm
// range index, loaded fully into memory (ranges are small — bounded by
// file size / granularity).
type Segment struct {
	ID       int
	dataPath string
	idxPath  string

	sched *ioqueue.Scheduler
	data  filelayer.File
	span  *typedio.Span[entry.Entry]

	ranges []rangeindex.Range
}

// Open opens an existing segment's data file and loads its sibling index.
func Open(sched *ioqueue.Scheduler, dir string, id int) (*Segment, error) {
	dp := dataPath(dir, id)
	ip := siblingIndexPath(dp)

	data := filelayer.OpenPooled(dp, filelayer.ModeRead)
	span := typedio.Open[entry.Entry](sched, data, entryCodec{})

	ranges, err := loadRanges(sched, ip)
	if err != nil {
		data.Close()
		return nil, err
	}
	return &Segment{ID: id, dataPath: dp, idxPath: ip, sched: sched, data: data, span: span, ranges: ranges}, nil
}

func loadRanges(sched *ioqueue.Scheduler, path string) ([]rangeindex.Range, error) {
	f := filelayer.OpenPooled(path, filelayer.ModeRead)
	defer f.Close()
	span := typedio.Open[rangeindex.Range](sched, f, rangeCodec{})
	n, err := span.Len()
	if err != nil {
		return nil, err
	}
	out := make([]rangeindex.Range, n)
	if n == 0 {
		return out, nil
	}
	if _, err := span.ReadAt(out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of entries in the segment.
func (s *Segment) Len() (int64, error) { return s.span.Len() }

// EqualRange locates the interval of entries K-rm-equal to k.
func (s *Segment) EqualRange(k key.Key, strategy search.Strategy) (search.Interval, error) {
	return search.EqualRange(s.span, s.ranges, k, strategy)
}

// EqualRangeBatch resolves a batch of keys, optionally sharing buffered
// reads across them (spec §4.6's cross-update optimisation).
func (s *Segment) EqualRangeBatch(keys []key.Key, strategy search.Strategy, crossUpdate bool) ([]search.Interval, error) {
	return search.EqualRangeBatch(s.span, s.ranges, keys, strategy, crossUpdate)
}

// Query resolves k's K-rm equal-range and returns the entries matching sel
// (spec §4.7: Continuations/Transpositions/All filtering over the K-rm
// interval).
func (s *Segment) Query(k key.Key, sel key.Select, strategy search.Strategy) ([]entry.Entry, error) {
	iv, err := s.EqualRange(k, strategy)
	if err != nil || iv.Empty() {
		return nil, err
	}
	buf := make([]entry.Entry, iv.Hi-iv.Lo)
	if _, err := s.span.ReadAt(buf, iv.Lo); err != nil {
		return nil, err
	}
	return filterSelect(buf, k, sel), nil
}

// QueryBatch resolves a batch of keys in one pass, per-key filtered by sel.
func (s *Segment) QueryBatch(keys []key.Key, sel key.Select, strategy search.Strategy, crossUpdate bool) ([][]entry.Entry, error) {
	intervals, err := s.EqualRangeBatch(keys, strategy, crossUpdate)
	if err != nil {
		return nil, err
	}
	out := make([][]entry.Entry, len(keys))
	for i, iv := range intervals {
		if iv.Empty() {
			continue
		}
		buf := make([]entry.Entry, iv.Hi-iv.Lo)
		if _, err := s.span.ReadAt(buf, iv.Lo); err != nil {
			return nil, err
		}
		out[i] = filterSelect(buf, keys[i], sel)
	}
	return out, nil
}

func filterSelect(entries []entry.Entry, query key.Key, sel key.Select) []entry.Entry {
	out := entries[:0]
	for _, e := range entries {
		if key.Matches(sel, query, e.Key) {
			out = append(out, e)
		}
	}
	return out
}

// ReadAt bulk-reads entries starting at element offset off.
func (s *Segment) ReadAt(dst []entry.Entry, off int64) (int, error) {
	return s.span.ReadAt(dst, off)
}

// Iterator returns a sequential iterator over the segment's entries,
// suitable as an extsort.Source.
func (s *Segment) Iterator(bufElems int) *typedio.Iterator[entry.Entry] {
	return s.span.NewIterator(bufElems)
}

// Close closes the segment's open file handle(s). The sibling index file
// was only held open during loadRanges and is already closed.
func (s *Segment) Close() error {
	return s.data.Close()
}

// Remove closes and deletes both the segment's data file and its sibling
// index.
func (s *Segment) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.dataPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(s.idxPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// iteratorSource adapts a Segment's Iterator to extsort.Source.
type iteratorSource struct {
	it *typedio.Iterator[entry.Entry]
}

func (s *iteratorSource) Next() (entry.Entry, bool, error) { return s.it.Advance() }
