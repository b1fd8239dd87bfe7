package segment

import (
	"os"
	"sync"

	graerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/extsort"
	"github.com/gotchess/chessposdb/internal/ioqueue"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/search"
)

// Partition is a directory of numbered segment files plus their pending
// "future file" writes (spec §3's Partition, §4.7).
type Partition struct {
	dir         string
	sched       *ioqueue.Scheduler
	granularity int64

	mu       sync.Mutex
	segments map[int]*Segment
	pending  map[int]*Future
	nextID   int
}

// OpenPartition discovers dir's existing segments and returns a ready
// Partition.
func OpenPartition(sched *ioqueue.Scheduler, dir string, granularity int64) (*Partition, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "segment: create partition directory")
	}
	p := &Partition{
		dir:         dir,
		sched:       sched,
		granularity: granularity,
		segments:    make(map[int]*Segment),
		pending:     make(map[int]*Future),
	}
	if err := p.discover(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Partition) discover() error {
	ids, err := discoverIDs(p.dir)
	if err != nil {
		return err
	}
	for _, id := range ids {
		seg, err := Open(p.sched, p.dir, id)
		if err != nil {
			log.Error.Printf("segment: discover: failed to open segment %d in %s: %v", id, p.dir, err)
			continue
		}
		p.segments[id] = seg
		if id >= p.nextID {
			p.nextID = id + 1
		}
	}
	return nil
}

// AllocateID reserves and returns the next free segment id.
func (p *Partition) AllocateID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocateIDLocked()
}

func (p *Partition) allocateIDLocked() int {
	id := p.nextID
	p.nextID++
	return id
}

// ReserveIDRange reserves n consecutive ids starting at the current
// next_id and returns the first one, advancing next_id past the whole
// range — used by the ingest pipeline's forced-id scheduling for
// parallel parse blocks (spec §4.8).
func (p *Partition) ReserveIDRange(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := p.nextID
	p.nextID += n
	return start
}

// idInUseLocked reports whether id already names a present segment or a
// pending future file.
func (p *Partition) idInUseLocked(id int) bool {
	if _, ok := p.segments[id]; ok {
		return true
	}
	_, ok := p.pending[id]
	return ok
}

// StoreUnordered allocates the next id, asynchronously sorts, dedups,
// writes, and indexes entries under that id, and returns a Future for the
// new segment's id (spec §4.7's store_unordered).
func (p *Partition) StoreUnordered(entries []entry.Entry) (*Future, error) {
	p.mu.Lock()
	id := p.allocateIDLocked()
	fut := newFuture()
	p.pending[id] = fut
	p.mu.Unlock()
	p.writeAsync(id, entries, fut)
	return fut, nil
}

// StoreUnorderedWithID is StoreUnordered but targets a caller-supplied id,
// failing with IdConflict if that id is already present or pending — used
// by forced-id parallel ingest (spec §4.8).
func (p *Partition) StoreUnorderedWithID(id int, entries []entry.Entry) (*Future, error) {
	p.mu.Lock()
	if p.idInUseLocked(id) {
		p.mu.Unlock()
		return nil, &Error{Kind: IdConflict, ID: id}
	}
	fut := newFuture()
	p.pending[id] = fut
	if id >= p.nextID {
		p.nextID = id + 1
	}
	p.mu.Unlock()
	p.writeAsync(id, entries, fut)
	return fut, nil
}

func (p *Partition) writeAsync(id int, entries []entry.Entry, fut *Future) {
	go func() {
		err := p.writeSegment(id, entries)
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		fut.complete(id, err)
	}()
}

// writeSegment sorts entries under K-full (offset tie-break), dedups
// adjacent K-full-equal entries, and writes the segment plus its sibling
// index (spec §4.4, §4.8's write stage).
func (p *Partition) writeSegment(id int, entries []entry.Entry) error {
	extsort.SortStable(entries, entry.LessFull)
	entries = DedupSorted(entries)
	return p.storeFinal(id, entries)
}

// storeFinal writes already-sorted, already-deduplicated entries to a
// fresh segment under id and registers the resulting segment, synchronously.
func (p *Partition) storeFinal(id int, entries []entry.Entry) error {
	w, err := NewWriter(p.sched, dataPath(p.dir, id), p.granularity)
	if err != nil {
		return err
	}
	if err := w.PushAll(entries); err != nil {
		return err
	}
	if err := w.Finish(); err != nil {
		return err
	}

	seg, err := Open(p.sched, p.dir, id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.segments[id] = seg
	p.mu.Unlock()
	return nil
}

// StoreOrdered writes an already-sorted buffer directly under id, with no
// dedup pass (spec §4.7's store_ordered).
func (p *Partition) StoreOrdered(id int, entries []entry.Entry) error {
	p.mu.Lock()
	if id >= p.nextID {
		p.nextID = id + 1
	}
	p.mu.Unlock()
	return p.storeFinal(id, entries)
}

// allocateOrReserve returns forcedID (after checking it is not already in
// use) or, if nil, a freshly allocated sequential id.
func (p *Partition) allocateOrReserve(forcedID *int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if forcedID != nil {
		if p.idInUseLocked(*forcedID) {
			return 0, &Error{Kind: IdConflict, ID: *forcedID}
		}
		if *forcedID >= p.nextID {
			p.nextID = *forcedID + 1
		}
		return *forcedID, nil
	}
	return p.allocateIDLocked(), nil
}

// WriteFinal writes already K-full-sorted, already-deduplicated entries to
// a fresh segment, targeting forcedID if non-nil (failing with IdConflict
// if already in use) or else the next sequential id, and registers the
// resulting segment synchronously. This is the entry point the ingest
// pipeline's single write-stage worker uses directly (spec §4.8): the
// pipeline's own sort stage has already sorted and deduplicated the
// buffer, so this must not sort again.
func (p *Partition) WriteFinal(entries []entry.Entry, forcedID *int) (int, error) {
	id, err := p.allocateOrReserve(forcedID)
	if err != nil {
		return 0, err
	}
	if err := p.storeFinal(id, entries); err != nil {
		return 0, err
	}
	return id, nil
}

// CollectFutureFiles awaits every currently pending write and promotes it
// into the segment list (spec §4.7).
func (p *Partition) CollectFutureFiles() error {
	p.mu.Lock()
	futures := make([]*Future, 0, len(p.pending))
	for _, f := range p.pending {
		futures = append(futures, f)
	}
	p.mu.Unlock()

	var reporter graerrors.Once
	for _, f := range futures {
		if _, err := f.Get(); err != nil {
			reporter.Set(err)
		}
	}
	return reporter.Err()
}

// Segments returns the partition's present segments ordered by id.
func (p *Partition) Segments() []*Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int, 0, len(p.segments))
	for id := range p.segments {
		ids = append(ids, id)
	}
	sortInts(ids)
	out := make([]*Segment, len(ids))
	for i, id := range ids {
		out[i] = p.segments[id]
	}
	return out
}

func sortInts(ids []int) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// Clear awaits pending writes, then removes every segment and its sibling
// index, best-effort: partial failure leaves the partition in a
// discoverable state rather than aborting midway (spec §4.7, §7).
func (p *Partition) Clear() error {
	if err := p.CollectFutureFiles(); err != nil {
		log.Error.Printf("segment: clear: pending write failed: %v", err)
	}

	p.mu.Lock()
	segs := make([]*Segment, 0, len(p.segments))
	for _, s := range p.segments {
		segs = append(segs, s)
	}
	p.segments = make(map[int]*Segment)
	p.mu.Unlock()

	var reporter graerrors.Once
	for _, s := range segs {
		if err := s.Remove(); err != nil {
			reporter.Set(err)
		}
	}
	return reporter.Err()
}

// MergeAll builds one new segment from every current segment via a
// deduplicating k-way merge, writes it to a temporary id, deletes the
// originals, then renames the temporary to the lowest original id (spec
// §4.7's merge_all).
func (p *Partition) MergeAll() error {
	if err := p.CollectFutureFiles(); err != nil {
		return err
	}
	segs := p.Segments()
	if len(segs) <= 1 {
		return nil
	}

	lowest := segs[0].ID
	tmpID := p.AllocateID()
	if err := p.mergeInto(segs, p.dir, tmpID); err != nil {
		return err
	}

	p.mu.Lock()
	for _, s := range segs {
		delete(p.segments, s.ID)
	}
	p.mu.Unlock()
	for _, s := range segs {
		if err := s.Remove(); err != nil {
			log.Error.Printf("segment: merge_all: failed to remove old segment %d: %v", s.ID, err)
		}
	}

	if err := p.renameSegment(tmpID, lowest); err != nil {
		return err
	}
	seg, err := Open(p.sched, p.dir, lowest)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.segments[lowest] = seg
	if lowest >= p.nextID {
		p.nextID = lowest + 1
	}
	p.mu.Unlock()
	return nil
}

// ReplicateMergeAll merges every current segment into a single new segment
// written under dstDir, leaving the source partition untouched (spec
// §4.7's replicate_merge_all).
func (p *Partition) ReplicateMergeAll(dstDir string) error {
	if err := p.CollectFutureFiles(); err != nil {
		return err
	}
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return errors.Wrap(err, "segment: create replicate destination")
	}
	segs := p.Segments()
	if len(segs) == 0 {
		return nil
	}
	return p.mergeInto(segs, dstDir, 0)
}

// mergeInto runs a deduplicating k-way merge of segs into a fresh writer
// at id within dir.
func (p *Partition) mergeInto(segs []*Segment, dir string, id int) error {
	sources := make([]extsort.Source, len(segs))
	for i, s := range segs {
		sources[i] = &iteratorSource{it: s.Iterator(vectorBufElems)}
	}

	w, err := NewWriter(p.sched, dataPath(dir, id), p.granularity)
	if err != nil {
		return err
	}
	tmp := extsort.NewFileTempFactory(dir)
	if err := extsort.MergeFanoutDedup(sources, entry.LessKey, extsort.DefaultFanout, tmp, w, entry.EqualKey, entry.Combine); err != nil {
		return err
	}
	return w.Finish()
}

func (p *Partition) renameSegment(from, to int) error {
	if err := os.Rename(dataPath(p.dir, from), dataPath(p.dir, to)); err != nil {
		return errors.Wrap(err, "segment: rename merged data file")
	}
	if err := os.Rename(siblingIndexPath(dataPath(p.dir, from)), siblingIndexPath(dataPath(p.dir, to))); err != nil {
		return errors.Wrap(err, "segment: rename merged index file")
	}
	return nil
}

// Query resolves k against every present segment, aggregating stats across
// all of them (spec §4.7). strategy selects interpolation vs. binary probe
// for each segment's internal search.
func (p *Partition) Query(k key.Key, sel key.Select, strategy search.Strategy) (Stats, error) {
	segs := p.Segments()
	stats := NewStats()
	for _, s := range segs {
		entries, err := s.Query(k, sel, strategy)
		if err != nil {
			return stats, err
		}
		for _, e := range entries {
			stats.Add(e)
		}
	}
	return stats, nil
}

// QueryBatch resolves keys against every present segment in one pass per
// segment, aggregating each key's stats across segments (spec §4.6's
// batched equal-range search, consumed by the database facade's query
// orchestration per spec §4.9). crossUpdate enables each segment's
// cross-update optimisation across the batch.
func (p *Partition) QueryBatch(keys []key.Key, sel key.Select, strategy search.Strategy, crossUpdate bool) ([]Stats, error) {
	out := make([]Stats, len(keys))
	for i := range out {
		out[i] = NewStats()
	}
	segs := p.Segments()
	for _, s := range segs {
		perKey, err := s.QueryBatch(keys, sel, strategy, crossUpdate)
		if err != nil {
			return nil, err
		}
		for i, entries := range perKey {
			for _, e := range entries {
				out[i].Add(e)
			}
		}
	}
	return out, nil
}

// Close closes every present segment's open handle.
func (p *Partition) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var reporter graerrors.Once
	for _, s := range p.segments {
		if err := s.Close(); err != nil {
			reporter.Set(err)
		}
	}
	return reporter.Err()
}

// Dir returns the partition's root directory.
func (p *Partition) Dir() string { return p.dir }
