package pipeline

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/ioqueue"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/search"
	"github.com/gotchess/chessposdb/internal/segment"
)

func newTestPartition(t *testing.T) *segment.Partition {
	dir := t.TempDir()
	sched := ioqueue.NewScheduler(map[string]string{dir: "data"}, 2)
	t.Cleanup(sched.Close)
	p, err := segment.OpenPartition(sched, dir, 8)
	if err != nil {
		t.Fatalf("OpenPartition: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func keyN(n uint32) key.Key {
	return key.Key{H: [4]uint32{n, 0, 0, 0}}
}

func TestPipelineSingleBufferRoundTrip(t *testing.T) {
	part := newTestPartition(t)
	pl := New(part, 2, 16, 2)

	buf := pl.AcquireBuffer()
	for i := uint32(0); i < 5; i++ {
		buf = append(buf, entry.New(keyN(i), uint64(i)))
	}
	fut, err := pl.SubmitUnordered(buf, nil)
	if err != nil {
		t.Fatalf("SubmitUnordered: %v", err)
	}
	if _, err := fut.Get(); err != nil {
		t.Fatalf("future.Get: %v", err)
	}
	pl.WaitForCompletion()

	if n := len(part.Segments()); n != 1 {
		t.Fatalf("segment count = %d, want 1", n)
	}
	stats, err := part.Query(keyN(2), key.All, search.Binary)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if stats[key.Human][key.Win].Count() != 1 {
		t.Fatalf("count for key 2 = %d, want 1", stats[key.Human][key.Win].Count())
	}
}

func TestPipelineForcedIDsDoNotCollide(t *testing.T) {
	part := newTestPartition(t)
	pl := New(part, 4, 16, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	ids := []int{10, 20}
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := []entry.Entry{entry.New(keyN(uint32(id)), uint64(id))}
			fut, err := pl.SubmitUnordered(buf, &id)
			if err != nil {
				errs <- err
				return
			}
			gotID, err := fut.Get()
			if err != nil {
				errs <- err
				return
			}
			if gotID != id {
				errs <- fmt.Errorf("segment id = %d, want forced id %d", gotID, id)
			}
		}()
	}
	wg.Wait()
	pl.WaitForCompletion()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("forced-id submit failed: %v", err)
		}
	}

	if n := len(part.Segments()); n != 2 {
		t.Fatalf("segment count = %d, want 2", n)
	}
}

func TestPipelineRejectsSubmitAfterWaitForCompletion(t *testing.T) {
	part := newTestPartition(t)
	pl := New(part, 1, 4, 1)
	pl.WaitForCompletion()

	_, err := pl.SubmitUnordered([]entry.Entry{entry.New(keyN(1), 0)}, nil)
	if err == nil {
		t.Fatalf("SubmitUnordered after WaitForCompletion: want error, got nil")
	}
	if pipeErr, ok := err.(*Error); !ok || pipeErr.Kind != PipelineShutdown {
		t.Fatalf("err = %v, want *Error{Kind: PipelineShutdown}", err)
	}
}

func TestForcedIDPlanProducesNonOverlappingRanges(t *testing.T) {
	ids := ForcedIDPlan(0, []int64{1000, 1000, 1000}, 100, 10)
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids[%d]=%d not strictly greater than ids[%d]=%d", i, ids[i], i-1, ids[i-1])
		}
	}
}
