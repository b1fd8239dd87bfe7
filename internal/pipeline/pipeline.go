// Package pipeline implements the bounded three-stage async ingest
// pipeline of spec §4.8: parse workers hand full buffers to a sort stage,
// which hands sorted buffers to a single write stage, which performs the
// dedup pass, builds each segment's sibling range index, and writes both
// files in one pass.
package pipeline

import (
	"sync"

	"github.com/grailbio/base/log"

	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/extsort"
	"github.com/gotchess/chessposdb/internal/segment"
)

// Kind classifies the typed errors a Pipeline can raise (spec §7).
type Kind int

const (
	// PipelineShutdown means Submit was called after WaitForCompletion.
	PipelineShutdown Kind = iota
)

func (k Kind) String() string {
	switch k {
	case PipelineShutdown:
		return "pipeline shutdown"
	default:
		return "unknown"
	}
}

// Error is the typed error a Pipeline raises.
type Error struct {
	Kind Kind
}

func (e *Error) Error() string { return e.Kind.String() }

// Future resolves to the id of the segment a submitted buffer ended up
// written to, mirroring ioqueue.Future's repeatable-Get idiom at the
// pipeline level.
type Future struct {
	done chan struct{}
	id   int
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) complete(id int, err error) {
	f.id, f.err = id, err
	close(f.done)
}

// Get blocks until the submitted buffer has been written (or failed).
func (f *Future) Get() (int, error) {
	<-f.done
	return f.id, f.err
}

// job is one submitted buffer travelling through sort -> write.
type job struct {
	entries  []entry.Entry
	forcedID *int
	result   *Future
}

// Pipeline owns the buffer pool and the sort/write worker goroutines. One
// Pipeline serves exactly one ingest run (spec §4.8, §5: "one ingest at a
// time").
type Pipeline struct {
	partition *segment.Partition

	bufCap int
	bufs   chan []entry.Entry

	sortQueue chan *job

	closeOnce sync.Once
	closedMu  sync.Mutex
	closed    bool

	wg sync.WaitGroup
}

// New creates a Pipeline writing into partition, with bufCount reusable
// entry buffers of capacity bufCap and sortWorkers sort-stage goroutines
// feeding a single write-stage goroutine (spec §4.8: "a single write
// worker").
func New(partition *segment.Partition, bufCount, bufCap, sortWorkers int) *Pipeline {
	if sortWorkers <= 0 {
		sortWorkers = 1
	}
	if bufCount <= 0 {
		bufCount = 1
	}
	p := &Pipeline{
		partition: partition,
		bufCap:    bufCap,
		bufs:      make(chan []entry.Entry, bufCount),
		sortQueue: make(chan *job, bufCount),
	}
	for i := 0; i < bufCount; i++ {
		p.bufs <- make([]entry.Entry, 0, bufCap)
	}

	writeQueue := make(chan *job, bufCount)
	var sortWG sync.WaitGroup
	sortWG.Add(sortWorkers)
	for i := 0; i < sortWorkers; i++ {
		go func() {
			defer sortWG.Done()
			p.sortWorker(writeQueue)
		}()
	}
	p.wg.Add(1)
	go func() {
		// Bridges the sort stage's fan-in to the single write stage: only
		// this goroutine closes writeQueue, once every sort worker has
		// drained p.sortQueue (spec §4.8's termination sequence).
		defer p.wg.Done()
		sortWG.Wait()
		close(writeQueue)
	}()
	p.wg.Add(1)
	go p.writeWorker(writeQueue)

	return p
}

// BufferCap returns the capacity of each reusable entry buffer.
func (p *Pipeline) BufferCap() int { return p.bufCap }

// AcquireBuffer blocks until a reusable buffer is available (spec §4.8's
// parse-stage "worker takes an empty buffer from the pipeline's buffer
// queue, blocking if none").
func (p *Pipeline) AcquireBuffer() []entry.Entry {
	return (<-p.bufs)[:0]
}

// SubmitUnordered hands a full (or final, partial) buffer to the sort
// stage, optionally targeting a forced segment id for parallel parse
// blocks (spec §4.8). It returns a Future for the resulting segment's id;
// the buffer itself is returned to the pool once the write stage has
// consumed it.
func (p *Pipeline) SubmitUnordered(entries []entry.Entry, forcedID *int) (*Future, error) {
	p.closedMu.Lock()
	closed := p.closed
	p.closedMu.Unlock()
	if closed {
		return nil, &Error{Kind: PipelineShutdown}
	}

	j := &job{entries: entries, forcedID: forcedID, result: newFuture()}
	p.sortQueue <- j
	return j.result, nil
}

func (p *Pipeline) sortWorker(writeQueue chan<- *job) {
	for j := range p.sortQueue {
		extsort.SortStable(j.entries, entry.LessFull)
		writeQueue <- j
	}
}

func (p *Pipeline) writeWorker(writeQueue <-chan *job) {
	defer p.wg.Done()
	for j := range writeQueue {
		p.writeJob(j)
	}
}

func (p *Pipeline) writeJob(j *job) {
	deduped := segment.DedupSorted(j.entries)

	id, err := p.partition.WriteFinal(deduped, j.forcedID)
	if err != nil {
		log.Error.Printf("pipeline: write stage failed for buffer of %d entries: %v", len(j.entries), err)
	}

	buf := j.entries[:0]
	select {
	case p.bufs <- buf:
	default:
		// More buffers returned than acquired is a caller bug; never block
		// the write worker waiting for pool room that will not appear.
	}
	j.result.complete(id, err)
}

// WaitForCompletion drains the sort and write stages, per spec §4.8's
// termination sequence: "the parse stage drops its final buffer... then
// wait_for_completion signals the sort stage, which drains and signals the
// write stage, which drains and exits." After this call, SubmitUnordered
// returns PipelineShutdown.
func (p *Pipeline) WaitForCompletion() {
	p.closeOnce.Do(func() {
		p.closedMu.Lock()
		p.closed = true
		p.closedMu.Unlock()
		close(p.sortQueue)
	})
	p.wg.Wait()
}

// ForcedIDPlan computes the non-overlapping forced-id ranges for n blocks
// of a parallelised parse stage (spec §4.8's forced-id scheduling).
// blockPGNBytes gives each block's share of total PGN bytes; bufCap is the
// pipeline's buffer capacity C; minBytesPerMove conservatively estimates
// the smallest plausible PGN encoding of one ply, used to upper-bound how
// many segments a block could possibly produce so blocks never collide.
func ForcedIDPlan(baseNextID int, blockPGNBytes []int64, bufCap int, minBytesPerMove int64) []int {
	if bufCap <= 0 {
		bufCap = 1
	}
	if minBytesPerMove <= 0 {
		minBytesPerMove = 1
	}
	ids := make([]int, len(blockPGNBytes))
	offset := 0
	for i, nbytes := range blockPGNBytes {
		ids[i] = baseNextID + offset
		maxEntriesFromBlock := nbytes / minBytesPerMove
		blockIDSpan := int(maxEntriesFromBlock/int64(bufCap)) + 1
		offset += blockIDSpan
	}
	return ids
}
