package extsort

import (
	"testing"

	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/key"
)

// memSegment is an in-memory TempSegment, used so extsort's tests don't
// depend on the filelayer package.
type memSegment struct {
	buf    []entry.Entry
	closed bool
}

func (m *memSegment) Push(e entry.Entry) error {
	m.buf = append(m.buf, e)
	return nil
}
func (m *memSegment) Close() error { m.closed = true; return nil }
func (m *memSegment) Source() (Source, error) {
	cp := make([]entry.Entry, len(m.buf))
	copy(cp, m.buf)
	return NewSliceSource(cp), nil
}
func (m *memSegment) Remove() error { m.buf = nil; return nil }

func memTempFactory() TempFactory {
	return func() (TempSegment, error) { return &memSegment{}, nil }
}

type sliceSink struct {
	out []entry.Entry
}

func (s *sliceSink) Push(e entry.Entry) error {
	s.out = append(s.out, e)
	return nil
}

func keyN(n uint32) key.Key {
	return key.Key{H: [4]uint32{n, 0, 0, 0}}
}

func entryN(n uint32, offset uint64) entry.Entry {
	return entry.New(keyN(n), offset)
}

func keyOnlyLess(a, b entry.Entry) bool {
	return key.CompareFull(a.Key, b.Key) < 0
}

func TestMergeFanoutSmallStable(t *testing.T) {
	a := NewSliceSource([]entry.Entry{entryN(1, 0), entryN(3, 0), entryN(5, 0)})
	b := NewSliceSource([]entry.Entry{entryN(2, 0), entryN(4, 0), entryN(6, 0)})

	sink := &sliceSink{}
	if err := MergeFanout([]Source{a, b}, keyOnlyLess, DefaultFanout, memTempFactory(), sink); err != nil {
		t.Fatalf("MergeFanout: %v", err)
	}
	for i, e := range sink.out {
		if e.Key.H[0] != uint32(i+1) {
			t.Fatalf("out[%d] key = %d, want %d", i, e.Key.H[0], i+1)
		}
	}
}

func TestMergeFanoutManyInputsSwitchesStrategy(t *testing.T) {
	const numInputs = 50
	var sources []Source
	for i := 0; i < numInputs; i++ {
		sources = append(sources, NewSliceSource([]entry.Entry{entryN(uint32(i), 0), entryN(uint32(i+1000), 0)}))
	}
	sink := &sliceSink{}
	if err := MergeFanout(sources, keyOnlyLess, DefaultFanout, memTempFactory(), sink); err != nil {
		t.Fatalf("MergeFanout: %v", err)
	}
	if len(sink.out) != numInputs*2 {
		t.Fatalf("got %d entries, want %d", len(sink.out), numInputs*2)
	}
	for i := 1; i < len(sink.out); i++ {
		if key.CompareFull(sink.out[i-1].Key, sink.out[i].Key) > 0 {
			t.Fatalf("output not sorted at index %d: %v > %v", i, sink.out[i-1].Key, sink.out[i].Key)
		}
	}
}

func TestMergeFanoutRecursesOnFanoutLimit(t *testing.T) {
	const numInputs = 10
	var sources []Source
	for i := 0; i < numInputs; i++ {
		sources = append(sources, NewSliceSource([]entry.Entry{entryN(uint32(i), 0)}))
	}
	sink := &sliceSink{}
	if err := MergeFanout(sources, keyOnlyLess, 3, memTempFactory(), sink); err != nil {
		t.Fatalf("MergeFanout: %v", err)
	}
	if len(sink.out) != numInputs {
		t.Fatalf("got %d entries, want %d", len(sink.out), numInputs)
	}
	for i, e := range sink.out {
		if e.Key.H[0] != uint32(i) {
			t.Fatalf("out[%d] key = %d, want %d", i, e.Key.H[0], i)
		}
	}
}

func TestMergeFanoutTiesBreakByInputIndex(t *testing.T) {
	a := NewSliceSource([]entry.Entry{entryN(1, 100)})
	b := NewSliceSource([]entry.Entry{entryN(1, 200)})
	sink := &sliceSink{}
	if err := MergeFanout([]Source{a, b}, keyOnlyLess, DefaultFanout, memTempFactory(), sink); err != nil {
		t.Fatalf("MergeFanout: %v", err)
	}
	if len(sink.out) != 2 {
		t.Fatalf("got %d entries, want 2", len(sink.out))
	}
	off, ok := sink.out[0].Counts.Offset()
	if !ok || off != 100 {
		t.Fatalf("first emitted entry should come from input 0 (offset 100), got offset=%d ok=%v", off, ok)
	}
}

func TestSortFitsInMemory(t *testing.T) {
	src := NewSliceSource([]entry.Entry{entryN(3, 0), entryN(1, 0), entryN(2, 0)})
	sink := &sliceSink{}
	if err := Sort(src, 100, keyOnlyLess, DefaultFanout, memTempFactory(), sink); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	for i, e := range sink.out {
		if e.Key.H[0] != uint32(i+1) {
			t.Fatalf("out[%d] key = %d, want %d", i, e.Key.H[0], i+1)
		}
	}
}

func TestSortSpillsAndMerges(t *testing.T) {
	const n = 97
	var entries []entry.Entry
	for i := n - 1; i >= 0; i-- {
		entries = append(entries, entryN(uint32(i), 0))
	}
	src := NewSliceSource(entries)
	sink := &sliceSink{}
	if err := Sort(src, 10, keyOnlyLess, DefaultFanout, memTempFactory(), sink); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if len(sink.out) != n {
		t.Fatalf("got %d entries, want %d", len(sink.out), n)
	}
	for i, e := range sink.out {
		if e.Key.H[0] != uint32(i) {
			t.Fatalf("out[%d] key = %d, want %d", i, e.Key.H[0], i)
		}
	}
}

func TestMergeFanoutDedupCombinesAdjacentDuplicates(t *testing.T) {
	a := NewSliceSource([]entry.Entry{entryN(1, 0), entryN(2, 0)})
	b := NewSliceSource([]entry.Entry{entryN(1, 1), entryN(2, 1)})

	sink := &sliceSink{}
	equal := func(x, y entry.Entry) bool { return key.CompareFull(x.Key, y.Key) == 0 }
	combine := func(x, y entry.Entry) entry.Entry { return entry.Combine(x, y) }

	if err := MergeFanoutDedup([]Source{a, b}, keyOnlyLess, DefaultFanout, memTempFactory(), sink, equal, combine); err != nil {
		t.Fatalf("MergeFanoutDedup: %v", err)
	}
	if len(sink.out) != 2 {
		t.Fatalf("got %d entries, want 2 (deduplicated)", len(sink.out))
	}
	for i, e := range sink.out {
		if e.Key.H[0] != uint32(i+1) {
			t.Fatalf("out[%d] key = %d, want %d", i, e.Key.H[0], i+1)
		}
		if e.Counts.Count() != 2 {
			t.Fatalf("out[%d] count = %d, want 2", i, e.Counts.Count())
		}
	}
}

func TestMergeFanoutDedupAcrossRecursionLevels(t *testing.T) {
	var sources []Source
	for i := 0; i < 6; i++ {
		sources = append(sources, NewSliceSource([]entry.Entry{entryN(1, uint64(i))}))
	}
	sink := &sliceSink{}
	equal := func(x, y entry.Entry) bool { return key.CompareFull(x.Key, y.Key) == 0 }
	combine := func(x, y entry.Entry) entry.Entry { return entry.Combine(x, y) }

	if err := MergeFanoutDedup(sources, keyOnlyLess, 2, memTempFactory(), sink, equal, combine); err != nil {
		t.Fatalf("MergeFanoutDedup: %v", err)
	}
	if len(sink.out) != 1 {
		t.Fatalf("got %d entries, want 1 fully combined entry", len(sink.out))
	}
	if sink.out[0].Counts.Count() != 6 {
		t.Fatalf("combined count = %d, want 6", sink.out[0].Counts.Count())
	}
}

func TestSortStableDeterministicOnTies(t *testing.T) {
	entries := []entry.Entry{entryN(1, 5), entryN(1, 2), entryN(1, 9)}
	SortStable(entries, func(a, b entry.Entry) bool {
		return entry.LessFull(a, b)
	})
	offsets := make([]uint64, len(entries))
	for i, e := range entries {
		off, _ := e.Counts.Offset()
		offsets[i] = off
	}
	want := []uint64{2, 5, 9}
	for i := range want {
		if offsets[i] != want[i] {
			t.Fatalf("offsets = %v, want %v", offsets, want)
		}
	}
}
