package segment

import (
	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/filelayer"
	"github.com/gotchess/chessposdb/internal/ioqueue"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/rangeindex"
	"github.com/gotchess/chessposdb/internal/typedio"
)

// Writer streams an already K-full-sorted (and, for a fresh segment,
// deduplicated) entry sequence to a segment's data file, building its
// sibling range index in the same pass (spec §4.5: "the segment and its
// sibling index are produced in one pass").
type Writer struct {
	data *typedio.Vector[entry.Entry]
	idx  *typedio.Vector[rangeindex.Range]
	b    *rangeindex.Builder
	pos  int64
}

// vectorBufElems is the per-side buffer size (in elements) used for both a
// segment's data and sibling-index vectors.
const vectorBufElems = 1024

// NewWriter creates a Writer for a fresh segment at dataPath/its sibling,
// truncating any existing contents.
func NewWriter(sched *ioqueue.Scheduler, dataFilePath string, granularity int64) (*Writer, error) {
	dataFile := filelayer.OpenPooled(dataFilePath, filelayer.ModeTruncate)
	idxFile := filelayer.OpenPooled(siblingIndexPath(dataFilePath), filelayer.ModeTruncate)
	return &Writer{
		data: typedio.NewVector[entry.Entry](sched, dataFile, entryCodec{}, vectorBufElems),
		idx:  typedio.NewVector[rangeindex.Range](sched, idxFile, rangeCodec{}, vectorBufElems),
		b:    rangeindex.NewBuilder(granularity),
	}, nil
}

// Push appends e to the segment, implementing extsort.Sink so a Writer can
// be the terminal sink of a k-way merge.
func (w *Writer) Push(e entry.Entry) error {
	w.b.AppendValue(e.Key, w.pos)
	w.pos++
	return w.data.Push(e)
}

// PushAll writes a full, already-sorted slice in one call.
func (w *Writer) PushAll(entries []entry.Entry) error {
	for _, e := range entries {
		if err := w.Push(e); err != nil {
			return err
		}
	}
	return nil
}

// Finish flushes the sibling index and both files and closes them.
func (w *Writer) Finish() error {
	ranges := w.b.Finalize()
	if err := w.idx.PushBatch(ranges); err != nil {
		return err
	}
	if err := w.idx.Close(); err != nil {
		return err
	}
	return w.data.Close()
}

// DedupSorted collapses adjacent K-full-equal entries in an already
// K-full-sorted slice via entry.Combine (spec §4.4's in-memory
// std::unique-style pass, used when preparing a fresh segment — as
// opposed to the deduplicating merge used during compaction).
func DedupSorted(entries []entry.Entry) []entry.Entry {
	if len(entries) == 0 {
		return entries
	}
	out := entries[:1]
	for _, e := range entries[1:] {
		last := len(out) - 1
		if key.CompareFull(out[last].Key, e.Key) == 0 {
			out[last] = entry.Combine(out[last], e)
		} else {
			out = append(out, e)
		}
	}
	return out
}
