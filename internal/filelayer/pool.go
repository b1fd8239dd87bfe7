package filelayer

import (
	"container/list"
	"os"
	"sync"

	"github.com/grailbio/base/log"
)

// DefaultPoolCapacity is the default maximum number of simultaneously open
// OS handles the global pool will hold (spec §4.1, "P, default 256").
const DefaultPoolCapacity = 256

// pool is the process-global LRU of open OS handles shared by every
// PooledFile. Structural state (the LRU list itself) is guarded by mu; each
// handle's os.File pointer is guarded by that handle's own ioMu so that an
// in-flight read/append is never evicted out from under itself (eviction
// uses TryLock and simply skips a busy handle rather than risk a lock-order
// inversion with mu).
type pool struct {
	mu       sync.Mutex
	capacity int
	lru      *list.List // front = MRU; Value is *PooledFile
}

func newPool(capacity int) *pool {
	return &pool{capacity: capacity, lru: list.New()}
}

var globalPool = newPool(DefaultPoolCapacity)

// SetGlobalPoolCapacity reconfigures the process-global pool's capacity.
// Intended for tests and for config-driven startup; never called from
// within a request path.
func SetGlobalPoolCapacity(capacity int) {
	globalPool.mu.Lock()
	defer globalPool.mu.Unlock()
	globalPool.capacity = capacity
}

// PooledFile is a logical handle to a path+mode that does not itself hold
// an OS handle: every operation borrows one from the global pool, possibly
// evicting the pool's current LRU entry, possibly reopening a handle that
// was itself evicted earlier (spec §4.1 "Pooled").
type PooledFile struct {
	path string

	ioMu       sync.Mutex // serializes operations and guards f/mode below
	f          *os.File
	mode       Mode
	everOpened bool // true once the first OS-level open has happened

	elem *list.Element // back-pointer into pool.lru; guarded by pool.mu
}

// OpenPooled returns a PooledFile for path. No OS handle is opened yet; the
// first operation opens (or reopens) it lazily.
func OpenPooled(path string, mode Mode) *PooledFile {
	return &PooledFile{path: path, mode: mode}
}

func (pf *PooledFile) Path() string { return pf.path }

// ensureOpen must be called with pf.ioMu held. It guarantees pf.f != nil on
// success, touching the pool's LRU bookkeeping.
func (pf *PooledFile) ensureOpen() error {
	if pf.f != nil {
		globalPool.touch(pf)
		return nil
	}
	openMode := pf.mode
	if pf.everOpened {
		// Reopening a handle evicted earlier: never truncate data already
		// written (spec §4.1, §9).
		openMode = reopenMode(pf.mode)
	}
	pf.mode = openMode
	f, err := openOS(pf.path, openMode)
	if err != nil {
		return &Error{Kind: OpenFailure, Path: pf.path, Err: err}
	}
	pf.f = f
	pf.everOpened = true
	globalPool.insert(pf)
	return nil
}

func (p *pool) touch(pf *PooledFile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pf.elem != nil {
		p.lru.MoveToFront(pf.elem)
	}
}

func (p *pool) insert(pf *PooledFile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lru.Len() >= p.capacity {
		p.evictOneLocked()
	}
	pf.elem = p.lru.PushFront(pf)
}

// evictOneLocked is called with p.mu held. It walks from the LRU tail
// towards the front looking for a handle that is not mid-operation
// (TryLock succeeds), closes its OS handle, and removes it from the list.
// If every handle is currently busy, the pool is allowed to exceed its
// soft capacity by one rather than block or force-close a live handle.
func (p *pool) evictOneLocked() {
	for e := p.lru.Back(); e != nil; e = e.Prev() {
		victim := e.Value.(*PooledFile)
		if !victim.ioMu.TryLock() {
			continue
		}
		if victim.f != nil {
			if err := victim.f.Close(); err != nil {
				log.Error.Printf("filelayer: evict close %s: %v", victim.path, err)
			}
			victim.f = nil
		}
		p.lru.Remove(e)
		victim.elem = nil
		victim.ioMu.Unlock()
		return
	}
	log.Debug.Printf("filelayer: pool at capacity %d but every handle is busy; allowing soft overflow", p.capacity)
}

// remove evicts pf from the pool unconditionally, used by Close.
func (p *pool) remove(pf *PooledFile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pf.elem != nil {
		p.lru.Remove(pf.elem)
		pf.elem = nil
	}
}

func (pf *PooledFile) Size() (int64, error) {
	pf.ioMu.Lock()
	defer pf.ioMu.Unlock()
	if err := pf.ensureOpen(); err != nil {
		return 0, err
	}
	return pf.f.Seek(0, os.SEEK_END)
}

func (pf *PooledFile) ReadAt(dst []byte, off int64, elem, count int) (int, error) {
	pf.ioMu.Lock()
	defer pf.ioMu.Unlock()
	if err := pf.ensureOpen(); err != nil {
		return 0, err
	}
	n, err := readAt(pf.f, dst, off, elem, count)
	if n < count && err == nil {
		err = &Error{Kind: ShortRead, Path: pf.path, Requested: int64(count), Actual: int64(n)}
	}
	return n, err
}

func (pf *PooledFile) Append(src []byte, elem, count int) (int, error) {
	pf.ioMu.Lock()
	defer pf.ioMu.Unlock()
	if err := pf.ensureOpen(); err != nil {
		return 0, err
	}
	n, err := appendAt(pf.f, src, elem, count)
	if n < count && err == nil {
		err = &Error{Kind: ShortAppend, Path: pf.path, Requested: int64(count), Actual: int64(n)}
	}
	return n, err
}

func (pf *PooledFile) Flush() error {
	pf.ioMu.Lock()
	defer pf.ioMu.Unlock()
	if pf.f == nil {
		return nil
	}
	return pf.f.Sync()
}

// Truncate truncates the file to zero length. Per the Open Question
// resolution in SPEC_FULL.md §D, this bypasses the pool's LRU position: it
// closes the native handle directly, truncates by path, and lets the next
// access reopen-and-reinsert the handle at MRU.
func (pf *PooledFile) Truncate() error {
	pf.ioMu.Lock()
	defer pf.ioMu.Unlock()
	if pf.f != nil {
		globalPool.remove(pf)
		if err := pf.f.Close(); err != nil {
			return &Error{Kind: TruncateFailure, Path: pf.path, Err: err}
		}
		pf.f = nil
	}
	if err := os.Truncate(pf.path, 0); err != nil {
		return &Error{Kind: TruncateFailure, Path: pf.path, Err: err}
	}
	pf.mode = ModeTruncate
	return nil
}

// Advise implements the adviser interface used by the typed span iterator.
func (pf *PooledFile) Advise(offset, length int64) {
	pf.ioMu.Lock()
	defer pf.ioMu.Unlock()
	if pf.f != nil {
		adviseSequential(pf.f, offset, length)
	}
}

func (pf *PooledFile) Close() error {
	pf.ioMu.Lock()
	defer pf.ioMu.Unlock()
	globalPool.remove(pf)
	if pf.f == nil {
		return nil
	}
	err := pf.f.Close()
	pf.f = nil
	return err
}
