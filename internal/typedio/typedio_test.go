package typedio

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/gotchess/chessposdb/internal/filelayer"
	"github.com/gotchess/chessposdb/internal/ioqueue"
)

type u32Codec struct{}

func (u32Codec) Size() int { return 4 }
func (u32Codec) Encode(v uint32, dst []byte) {
	binary.LittleEndian.PutUint32(dst, v)
}
func (u32Codec) Decode(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

func newScheduler(t *testing.T, dir string) *ioqueue.Scheduler {
	s := ioqueue.NewScheduler(map[string]string{dir: "data"}, 2)
	t.Cleanup(s.Close)
	return s
}

func TestVectorThenSpanRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sched := newScheduler(t, dir)
	path := filepath.Join(dir, "vec")

	w := filelayer.OpenPooled(path, filelayer.ModeTruncate)
	vec := NewVector[uint32](sched, w, u32Codec{}, 4)
	for i := uint32(0); i < 10; i++ {
		if err := vec.Push(i); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	if err := vec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := filelayer.OpenPooled(path, filelayer.ModeRead)
	defer r.Close()
	span := Open[uint32](sched, r, u32Codec{})
	n, err := span.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 10 {
		t.Fatalf("Len() = %d, want 10", n)
	}
	for i := int64(0); i < 10; i++ {
		v, err := span.At(i)
		if err != nil {
			t.Fatalf("At(%d): %v", i, err)
		}
		if v != uint32(i) {
			t.Fatalf("At(%d) = %d, want %d", i, v, i)
		}
	}
}

func TestPushBatchOverflow(t *testing.T) {
	dir := t.TempDir()
	sched := newScheduler(t, dir)
	path := filepath.Join(dir, "vec")

	w := filelayer.OpenPooled(path, filelayer.ModeTruncate)
	vec := NewVector[uint32](sched, w, u32Codec{}, 4)
	if err := vec.Push(0); err != nil {
		t.Fatalf("Push: %v", err)
	}
	batch := make([]uint32, 20)
	for i := range batch {
		batch[i] = uint32(i + 1)
	}
	if err := vec.PushBatch(batch); err != nil {
		t.Fatalf("PushBatch: %v", err)
	}
	if err := vec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := filelayer.OpenPooled(path, filelayer.ModeRead)
	defer r.Close()
	span := Open[uint32](sched, r, u32Codec{})
	n, err := span.Len()
	if err != nil || n != 21 {
		t.Fatalf("Len() = (%d,%v), want (21,nil)", n, err)
	}
	for i := int64(0); i < n; i++ {
		v, err := span.At(i)
		if err != nil || v != uint32(i) {
			t.Fatalf("At(%d) = (%d,%v), want %d", i, v, err, i)
		}
	}
}

func TestIteratorSequential(t *testing.T) {
	dir := t.TempDir()
	sched := newScheduler(t, dir)
	path := filepath.Join(dir, "vec")

	w := filelayer.OpenPooled(path, filelayer.ModeTruncate)
	vec := NewVector[uint32](sched, w, u32Codec{}, 3)
	const total = 25
	for i := uint32(0); i < total; i++ {
		if err := vec.Push(i); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	if err := vec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := filelayer.OpenPooled(path, filelayer.ModeRead)
	defer r.Close()
	span := Open[uint32](sched, r, u32Codec{})
	it := span.NewIterator(4)
	var got []uint32
	for {
		v, ok, err := it.Advance()
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, v)
	}
	if len(got) != total {
		t.Fatalf("iterator yielded %d elements, want %d", len(got), total)
	}
	for i, v := range got {
		if v != uint32(i) {
			t.Fatalf("got[%d] = %d, want %d", i, v, i)
		}
	}
}
