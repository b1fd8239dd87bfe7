// Package extsort implements the external sort and k-way merge of
// spec §4.4: a stable, fanout-limited merge over N sorted entry sources,
// switching between a priority-tree and a linear scan by input count, plus
// the chunked sort-then-merge used when a span doesn't fit in memory.
package extsort

import (
	"sort"

	"github.com/biogo/store/llrb"
	"v.io/x/lib/vlog"

	"github.com/gotchess/chessposdb/internal/entry"
)

// DefaultFanout is the default limit on inputs merged in a single pass
// ("F", spec §4.4).
const DefaultFanout = 192

// linearScanThreshold is the input count at and below which the merge uses
// a plain linear scan instead of the priority-tree (spec §4.4).
const linearScanThreshold = 32

// Less orders two entries for merge purposes. It must be a strict weak
// order consistent with the entries' comparator of choice (K-full by key
// only, for segment/compaction merges; K-full plus offset tie-break, for
// the in-memory pre-write sort — see Sort vs Merge callers).
type Less func(a, b entry.Entry) bool

// Source yields entries in ascending order under the merge's Less.
type Source interface {
	// Next returns the next entry, or ok=false at end of input.
	Next() (e entry.Entry, ok bool, err error)
}

// Sink consumes entries in ascending order.
type Sink interface {
	Push(e entry.Entry) error
}

// SliceSource adapts an in-memory, already-sorted slice into a Source.
type SliceSource struct {
	entries []entry.Entry
	pos     int
}

func NewSliceSource(entries []entry.Entry) *SliceSource {
	return &SliceSource{entries: entries}
}

func (s *SliceSource) Next() (entry.Entry, bool, error) {
	if s.pos >= len(s.entries) {
		return entry.Entry{}, false, nil
	}
	e := s.entries[s.pos]
	s.pos++
	return e, true, nil
}

type cursor struct {
	idx int // stable input index; smaller wins merge ties (spec §4.4)
	src Source
	cur entry.Entry
	has bool
}

func newCursor(idx int, src Source) (*cursor, error) {
	c := &cursor{idx: idx, src: src}
	if err := c.advance(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *cursor) advance() error {
	e, ok, err := c.src.Next()
	if err != nil {
		return err
	}
	c.has = ok
	c.cur = e
	return nil
}

// heapItem wraps a cursor for use as an llrb.Comparable, exactly as
// cmd/bio-bam-sort/sorter.mergeLeaf uses an llrb.Tree as its priority
// structure for a many-way merge.
type heapItem struct {
	c    *cursor
	less Less
}

func (h *heapItem) Compare(other llrb.Comparable) int {
	o := other.(*heapItem)
	switch {
	case h.less(h.c.cur, o.c.cur):
		return -1
	case h.less(o.c.cur, h.c.cur):
		return 1
	case h.c.idx < o.c.idx:
		return -1
	case h.c.idx > o.c.idx:
		return 1
	default:
		return 0
	}
}

// mergeOnePass merges len(sources) <= any count of already-sorted sources
// (no fanout recursion) into emit, stably.
func mergeOnePass(sources []Source, less Less, emit func(entry.Entry) error) error {
	cursors := make([]*cursor, 0, len(sources))
	for i, s := range sources {
		c, err := newCursor(i, s)
		if err != nil {
			return err
		}
		if c.has {
			cursors = append(cursors, c)
		}
	}

	if len(cursors) > linearScanThreshold {
		tree := &llrb.Tree{}
		for _, c := range cursors {
			tree.Insert(&heapItem{c: c, less: less})
		}
		vlog.VI(1).Infof("extsort: merging %d inputs via priority tree", tree.Len())
		for tree.Len() > linearScanThreshold {
			var top *heapItem
			tree.Do(func(item llrb.Comparable) bool {
				top = item.(*heapItem)
				return true
			})
			if err := emit(top.c.cur); err != nil {
				return err
			}
			tree.DeleteMin()
			if err := top.c.advance(); err != nil {
				return err
			}
			if top.c.has {
				tree.Insert(top)
			}
		}
		cursors = cursors[:0]
		for tree.Len() > 0 {
			var top *heapItem
			tree.Do(func(item llrb.Comparable) bool {
				top = item.(*heapItem)
				return true
			})
			tree.DeleteMin()
			cursors = append(cursors, top.c)
		}
	}

	for len(cursors) > 0 {
		minI := 0
		for i := 1; i < len(cursors); i++ {
			if isBefore(cursors[i], cursors[minI], less) {
				minI = i
			}
		}
		if err := emit(cursors[minI].cur); err != nil {
			return err
		}
		if err := cursors[minI].advance(); err != nil {
			return err
		}
		if !cursors[minI].has {
			cursors = append(cursors[:minI], cursors[minI+1:]...)
		}
	}
	return nil
}

func isBefore(a, b *cursor, less Less) bool {
	if less(a.cur, b.cur) {
		return true
	}
	if less(b.cur, a.cur) {
		return false
	}
	return a.idx < b.idx
}

// TempSegment is a scratch sorted run created during fanout recursion: it
// is written once (Push* then Close), then reopened for reading via
// Source, then discarded via Remove once no longer needed.
type TempSegment interface {
	Sink
	Close() error
	Source() (Source, error)
	Remove() error
}

// TempFactory creates a new scratch TempSegment, e.g. backed by a
// snappy-compressed temporary file (spec §4.4's temporary merge segments).
type TempFactory func() (TempSegment, error)

// MergeFanout merges sources into out, recursing through groups of at most
// fanout inputs at a time when len(sources) > fanout (spec §4.4). Temporary
// segments created for intermediate levels are deleted only after the
// outermost merge has consumed them.
func MergeFanout(sources []Source, less Less, fanout int, tmp TempFactory, out Sink) error {
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	cur := sources
	var scratch []TempSegment
	for len(cur) > fanout {
		var next []Source
		for i := 0; i < len(cur); i += fanout {
			end := i + fanout
			if end > len(cur) {
				end = len(cur)
			}
			seg, err := tmp()
			if err != nil {
				return cleanupAndReturn(scratch, err)
			}
			if err := mergeOnePass(cur[i:end], less, seg.Push); err != nil {
				return cleanupAndReturn(scratch, err)
			}
			if err := seg.Close(); err != nil {
				return cleanupAndReturn(scratch, err)
			}
			src, err := seg.Source()
			if err != nil {
				return cleanupAndReturn(scratch, err)
			}
			next = append(next, src)
			scratch = append(scratch, seg)
		}
		cur = next
	}
	err := mergeOnePass(cur, less, out.Push)
	return cleanupAndReturn(scratch, err)
}

func cleanupAndReturn(scratch []TempSegment, err error) error {
	for _, seg := range scratch {
		if rmErr := seg.Remove(); rmErr != nil {
			vlog.Errorf("extsort: failed to remove temp segment: %v", rmErr)
		}
	}
	return err
}

// sortStable sorts entries in place under less, stably (ties preserve
// input order), mirroring cmd/bio-bam-sort/sorter.Sorter.sortRecords.
func sortStable(entries []entry.Entry, less Less) {
	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
}

// SortStable is the exported form of sortStable, used by the ingest
// pipeline's sort stage (spec §4.8) on an in-memory buffer.
func SortStable(entries []entry.Entry, less Less) {
	sortStable(entries, less)
}
