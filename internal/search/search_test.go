package search

import (
	"testing"

	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/rangeindex"
)

type sliceReader struct {
	entries []entry.Entry
}

func (s *sliceReader) Len() (int64, error) { return int64(len(s.entries)), nil }

func (s *sliceReader) ReadAt(dst []entry.Entry, off int64) (int, error) {
	if off >= int64(len(s.entries)) || off < 0 {
		return 0, nil
	}
	n := copy(dst, s.entries[off:])
	return n, nil
}

func rm(n uint32) key.Key {
	return key.Key{H: [4]uint32{n, 0, 0, 0}}
}

// buildFixture returns a sorted (under K-rm) span where rm value v occurs
// count(v) times, for v in [0, len(counts)).
func buildFixture(counts []int) []entry.Entry {
	var out []entry.Entry
	for v, c := range counts {
		for i := 0; i < c; i++ {
			out = append(out, entry.New(rm(uint32(v)), uint64(i)))
		}
	}
	return out
}

func TestEqualRangeNoIndexBinary(t *testing.T) {
	entries := buildFixture([]int{2, 1, 3, 1, 5, 1, 2})
	r := &sliceReader{entries: entries}

	iv, err := EqualRange(r, nil, rm(4), Binary)
	if err != nil {
		t.Fatalf("EqualRange: %v", err)
	}
	wantLo, wantHi := 0, 0
	idx := 0
	for v, c := range []int{2, 1, 3, 1, 5, 1, 2} {
		if v == 4 {
			wantLo = idx
			wantHi = idx + c
			break
		}
		idx += c
	}
	if int(iv.Lo) != wantLo || int(iv.Hi) != wantHi {
		t.Fatalf("EqualRange(4) = %+v, want [%d,%d)", iv, wantLo, wantHi)
	}
}

func TestEqualRangeNoIndexInterpolation(t *testing.T) {
	entries := buildFixture([]int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	r := &sliceReader{entries: entries}
	for v := 0; v < 10; v++ {
		iv, err := EqualRange(r, nil, rm(uint32(v)), Interpolation)
		if err != nil {
			t.Fatalf("EqualRange(%d): %v", v, err)
		}
		if iv.Lo != int64(v) || iv.Hi != int64(v+1) {
			t.Fatalf("EqualRange(%d) = %+v, want [%d,%d)", v, iv, v, v+1)
		}
	}
}

func TestEqualRangeAbsentKeyReturnsEmptyAtSpanEnd(t *testing.T) {
	entries := buildFixture([]int{1, 0, 1})
	r := &sliceReader{entries: entries}
	iv, err := EqualRange(r, nil, rm(5), Binary)
	if err != nil {
		t.Fatalf("EqualRange: %v", err)
	}
	n, _ := r.Len()
	if iv.Lo != n || iv.Hi != n {
		t.Fatalf("EqualRange(5) = %+v, want [%d,%d)", iv, n, n)
	}
}

func TestEqualRangeWithIndexSeeds(t *testing.T) {
	counts := []int{1, 1, 1, 1, 1, 1, 1, 1}
	entries := buildFixture(counts)
	r := &sliceReader{entries: entries}

	var values []key.Key
	for _, e := range entries {
		values = append(values, e.Key)
	}
	idx := rangeindex.Build(values, 2)

	for v := 0; v < len(counts); v++ {
		iv, err := EqualRange(r, idx, rm(uint32(v)), Binary)
		if err != nil {
			t.Fatalf("EqualRange(%d): %v", v, err)
		}
		if iv.Lo != int64(v) || iv.Hi != int64(v+1) {
			t.Fatalf("EqualRange(%d) = %+v, want [%d,%d)", v, iv, v, v+1)
		}
	}

	iv, err := EqualRange(r, idx, rm(999), Binary)
	if err != nil {
		t.Fatalf("EqualRange(absent): %v", err)
	}
	if !iv.Empty() {
		t.Fatalf("EqualRange(absent with index) = %+v, want empty", iv)
	}
}

func TestEqualRangeWideDuplicateRunGrowsOutward(t *testing.T) {
	// A run of the same rm value much wider than the search window,
	// forcing the grow-outward path.
	var entries []entry.Entry
	const dupCount = 500
	for i := 0; i < 100; i++ {
		entries = append(entries, entry.New(rm(1), uint64(i)))
	}
	for i := 0; i < dupCount; i++ {
		entries = append(entries, entry.New(rm(2), uint64(i)))
	}
	for i := 0; i < 100; i++ {
		entries = append(entries, entry.New(rm(3), uint64(i)))
	}
	r := &sliceReader{entries: entries}

	iv, err := EqualRange(r, nil, rm(2), Binary)
	if err != nil {
		t.Fatalf("EqualRange: %v", err)
	}
	if iv.Lo != 100 || iv.Hi != 100+dupCount {
		t.Fatalf("EqualRange(2) = %+v, want [100,%d)", iv, 100+dupCount)
	}
}

// TestEqualRangeAsymmetricWindowResolvesBothSides covers the case where a
// probed window resolves only one edge of a run wider than the window
// itself (e.g. loInside but the run still extends past winHi): the
// unresolved edge must be grown outward, never collapsed to the window
// boundary, or entries beyond the window are silently dropped from the
// result.
func TestEqualRangeAsymmetricWindowResolvesBothSides(t *testing.T) {
	counts := []int{1000, 2000, 2000}
	entries := buildFixture(counts)
	r := &sliceReader{entries: entries}

	iv, err := EqualRange(r, nil, rm(1), Binary)
	if err != nil {
		t.Fatalf("EqualRange: %v", err)
	}
	if iv.Lo != 1000 || iv.Hi != 3000 {
		t.Fatalf("EqualRange(1) = %+v, want [1000,3000)", iv)
	}
}

func TestEqualRangeBatchAsymmetricWindowWithCrossUpdate(t *testing.T) {
	counts := []int{1000, 2000, 2000}
	entries := buildFixture(counts)
	r := &sliceReader{entries: entries}
	queries := []key.Key{rm(0), rm(1), rm(2)}

	batch, err := EqualRangeBatch(r, nil, queries, Binary, true)
	if err != nil {
		t.Fatalf("EqualRangeBatch: %v", err)
	}
	want := []Interval{{0, 1000}, {1000, 3000}, {3000, 5000}}
	for i := range queries {
		if batch[i] != want[i] {
			t.Fatalf("batch[%d] = %+v, want %+v", i, batch[i], want[i])
		}
	}
}

func TestEqualRangeBatchPreservesOrderWithoutCrossUpdate(t *testing.T) {
	entries := buildFixture([]int{1, 2, 1, 3, 1})
	r := &sliceReader{entries: entries}
	queries := []key.Key{rm(3), rm(0), rm(4), rm(1)}

	ivs, err := EqualRangeBatch(r, nil, queries, Binary, false)
	if err != nil {
		t.Fatalf("EqualRangeBatch: %v", err)
	}
	if len(ivs) != len(queries) {
		t.Fatalf("got %d intervals, want %d", len(ivs), len(queries))
	}

	single, err := EqualRange(r, nil, rm(3), Binary)
	if err != nil {
		t.Fatalf("EqualRange: %v", err)
	}
	if ivs[0] != single {
		t.Fatalf("batch[0] = %+v, want %+v", ivs[0], single)
	}
}

func TestEqualRangeBatchWithCrossUpdateMatchesIndividual(t *testing.T) {
	entries := buildFixture([]int{3, 1, 4, 2, 5, 1, 2, 6})
	r := &sliceReader{entries: entries}
	queries := []key.Key{rm(0), rm(1), rm(2), rm(3), rm(4), rm(5), rm(6), rm(7)}

	batch, err := EqualRangeBatch(r, nil, queries, Interpolation, true)
	if err != nil {
		t.Fatalf("EqualRangeBatch: %v", err)
	}

	for i, k := range queries {
		want, err := EqualRange(r, nil, k, Interpolation)
		if err != nil {
			t.Fatalf("EqualRange(%d): %v", i, err)
		}
		if batch[i] != want {
			t.Fatalf("batch[%d] = %+v, want %+v (cross-update must preserve correctness)", i, batch[i], want)
		}
	}
}
