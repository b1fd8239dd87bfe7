package segment

import (
	"testing"

	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/ioqueue"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/search"
)

func newTestScheduler(t *testing.T, dir string) *ioqueue.Scheduler {
	s := ioqueue.NewScheduler(map[string]string{dir: "data"}, 2)
	t.Cleanup(s.Close)
	return s
}

func keyN(n uint32) key.Key {
	return key.Key{H: [4]uint32{n, 0, 0, 0}}
}

func keyNTagged(n uint32, rm uint32, lvl key.GameLevel, res key.GameResult) key.Key {
	return keyN(n).WithTags(rm, lvl, res)
}

func TestWriterThenSegmentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sched := newTestScheduler(t, dir)

	w, err := NewWriter(sched, dataPath(dir, 0), 4)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	var entries []entry.Entry
	for i := uint32(0); i < 50; i++ {
		e := entry.New(keyN(i), uint64(i))
		entries = append(entries, e)
	}
	if err := w.PushAll(entries); err != nil {
		t.Fatalf("PushAll: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	seg, err := Open(sched, dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer seg.Close()

	n, err := seg.Len()
	if err != nil || n != 50 {
		t.Fatalf("Len() = (%d,%v), want (50,nil)", n, err)
	}

	got, err := seg.Query(keyN(10), key.All, search.Binary)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || key.CompareRM(got[0].Key, keyN(10)) != 0 {
		t.Fatalf("Query(10) = %+v, want single entry keyed 10", got)
	}

	miss, err := seg.Query(keyN(1000), key.All, search.Binary)
	if err != nil {
		t.Fatalf("Query miss: %v", err)
	}
	if len(miss) != 0 {
		t.Fatalf("Query(1000) = %+v, want empty", miss)
	}
}

func TestSegmentQuerySelectFiltering(t *testing.T) {
	dir := t.TempDir()
	sched := newTestScheduler(t, dir)

	w, err := NewWriter(sched, dataPath(dir, 0), 4)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	// Two K-rm-equal entries sharing board key 7: one continuation (same
	// reverse move as the query), one transposition (different reverse move).
	continuation := keyNTagged(7, 3, key.Human, key.Win)
	transposition := keyNTagged(7, 9, key.Engine, key.Loss)
	query := keyNTagged(7, 3, key.Human, key.Draw)

	entries := DedupSorted(sortedByFull([]entry.Entry{
		entry.New(continuation, 0),
		entry.New(transposition, 1),
	}))
	if err := w.PushAll(entries); err != nil {
		t.Fatalf("PushAll: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	seg, err := Open(sched, dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer seg.Close()

	all, err := seg.Query(query, key.All, search.Binary)
	if err != nil {
		t.Fatalf("Query All: %v", err)
	}
	cont, err := seg.Query(query, key.Continuations, search.Binary)
	if err != nil {
		t.Fatalf("Query Continuations: %v", err)
	}
	trans, err := seg.Query(query, key.Transpositions, search.Binary)
	if err != nil {
		t.Fatalf("Query Transpositions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(All) = %d, want 2", len(all))
	}
	if len(cont) != 1 || cont[0].Key.ReverseMove() != continuation.ReverseMove() {
		t.Fatalf("Continuations = %+v, want the shared-reverse-move entry", cont)
	}
	if len(trans) != 1 || trans[0].Key.ReverseMove() != transposition.ReverseMove() {
		t.Fatalf("Transpositions = %+v, want the other-reverse-move entry", trans)
	}
	if len(cont)+len(trans) != len(all) {
		t.Fatalf("|All| = %d != |Continuations|+|Transpositions| = %d", len(all), len(cont)+len(trans))
	}
}

// sortedByFull is a tiny local helper; avoids importing extsort just for a
// 2-element sort in one test.
func sortedByFull(entries []entry.Entry) []entry.Entry {
	if len(entries) == 2 && key.CompareFull(entries[0].Key, entries[1].Key) > 0 {
		entries[0], entries[1] = entries[1], entries[0]
	}
	return entries
}
