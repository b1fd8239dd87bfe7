// Package ioqueue implements the per-volume I/O scheduler of spec §4.2: a
// small static map from path prefix to a thread pool, each pool serving a
// FIFO queue of read/append jobs against the file layer.
package ioqueue

import (
	"sort"
	"strings"
	"sync"

	"github.com/grailbio/base/log"

	"github.com/gotchess/chessposdb/internal/filelayer"
)

// DefaultWorkers is the default number of workers per volume pool ("T",
// default 8 per spec §4.2).
const DefaultWorkers = 8

// Kind distinguishes the two job shapes the scheduler serves.
type Kind int

const (
	Read Kind = iota
	Append
)

// Future resolves to the element count transferred by a submitted job. It
// may be awaited (Get) any number of times from any goroutine.
type Future struct {
	done chan struct{}
	n    int
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) complete(n int, err error) {
	f.n, f.err = n, err
	close(f.done)
}

// Get blocks until the job completes and returns its transferred element
// count and error, exactly as the file-layer operation it wraps would.
func (f *Future) Get() (int, error) {
	<-f.done
	return f.n, f.err
}

// Job describes one scheduled Read or Append against a file-layer handle.
// Elem/Count/Offset are denominated in elements, as in filelayer.File.
type Job struct {
	Kind   Kind
	File   filelayer.File
	Buffer []byte
	Offset int64 // element offset; meaningful for Read only
	Elem   int
	Count  int
}

type volumePrefix struct {
	prefix string
	pool   *workerPool
}

// Scheduler owns one workerPool per configured volume prefix plus a
// fallback pool for paths matching no prefix.
type Scheduler struct {
	prefixes []volumePrefix // sorted by descending prefix length: longest match wins
	byID     map[string]*workerPool
	fallback *workerPool
}

// NewScheduler builds a scheduler from a path-prefix -> pool-id map
// (spec's volume_map config). Every distinct pool id gets its own
// workerPool of workersPerPool goroutines; a path matching no prefix is
// served by a dedicated fallback pool.
func NewScheduler(volumeMap map[string]string, workersPerPool int) *Scheduler {
	if workersPerPool <= 0 {
		workersPerPool = DefaultWorkers
	}
	s := &Scheduler{byID: make(map[string]*workerPool)}
	for _, poolID := range volumeMap {
		if _, ok := s.byID[poolID]; !ok {
			s.byID[poolID] = newWorkerPool(poolID, workersPerPool)
		}
	}
	for prefix, poolID := range volumeMap {
		s.prefixes = append(s.prefixes, volumePrefix{prefix: prefix, pool: s.byID[poolID]})
	}
	sort.Slice(s.prefixes, func(i, j int) bool {
		return len(s.prefixes[i].prefix) > len(s.prefixes[j].prefix)
	})
	s.fallback = newWorkerPool("_fallback", workersPerPool)
	return s
}

func (s *Scheduler) resolve(path string) *workerPool {
	for _, vp := range s.prefixes {
		if strings.HasPrefix(path, vp.prefix) {
			return vp.pool
		}
	}
	return s.fallback
}

// Submit enqueues job on the pool owned by job.File.Path()'s volume prefix
// and returns a Future for its result. Submission never blocks the caller
// beyond acquiring the pool's queue lock; the job always runs to
// completion once dequeued (spec §5, "Cancellation: none").
func (s *Scheduler) Submit(job *Job) *Future {
	pool := s.resolve(job.File.Path())
	future := newFuture()
	pool.enqueue(&queuedJob{Job: job, future: future})
	return future
}

// Close stops every worker once its queue drains. It does not cancel
// in-flight or already-queued jobs.
func (s *Scheduler) Close() {
	for _, p := range s.byID {
		p.close()
	}
	s.fallback.close()
}

type queuedJob struct {
	*Job
	future *Future
}

// workerPool is one volume's FIFO job queue plus its fixed worker
// goroutines. Workers block on a condition variable when the queue is
// empty; jobs submitted to the same pool are dequeued in FIFO order, but
// since multiple workers run concurrently there is no ordering guarantee
// across jobs unless the caller sequences its Submit/Get calls (spec §5).
type workerPool struct {
	id   string
	mu   sync.Mutex
	cond *sync.Cond
	jobs []*queuedJob
	done bool
	wg   sync.WaitGroup
}

func newWorkerPool(id string, workers int) *workerPool {
	p := &workerPool{id: id}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *workerPool) enqueue(j *queuedJob) {
	p.mu.Lock()
	p.jobs = append(p.jobs, j)
	p.cond.Signal()
	p.mu.Unlock()
}

func (p *workerPool) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.jobs) == 0 && !p.done {
			p.cond.Wait()
		}
		if len(p.jobs) == 0 && p.done {
			p.mu.Unlock()
			return
		}
		j := p.jobs[0]
		p.jobs = p.jobs[1:]
		p.mu.Unlock()

		var n int
		var err error
		switch j.Kind {
		case Read:
			n, err = j.File.ReadAt(j.Buffer, j.Offset, j.Elem, j.Count)
		case Append:
			n, err = j.File.Append(j.Buffer, j.Elem, j.Count)
		}
		if err != nil {
			log.Debug.Printf("ioqueue[%s]: job on %s failed: %v", p.id, j.File.Path(), err)
		}
		j.future.complete(n, err)
	}
}

func (p *workerPool) close() {
	p.mu.Lock()
	p.done = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}
