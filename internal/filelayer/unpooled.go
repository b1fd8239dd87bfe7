package filelayer

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// DefaultUnpooledSoftCap is the default ceiling on concurrently open
// Unpooled handles, left low to leave room for the pool (spec §4.1).
const DefaultUnpooledSoftCap = 128

var unpooledOpenCount int64
var unpooledSoftCap int64 = DefaultUnpooledSoftCap

// SetUnpooledSoftCap reconfigures the process-wide ceiling on concurrently
// open Unpooled handles. Intended for tests and config-driven startup.
func SetUnpooledSoftCap(n int) {
	atomic.StoreInt64(&unpooledSoftCap, int64(n))
}

// Unpooled holds its OS handle for its entire lifetime rather than sharing
// it through the global pool. A process-wide counter enforces a soft cap
// so that long-lived Unpooled handles (e.g. a header store's append log)
// leave room for the pool to operate (spec §4.1).
type Unpooled struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenUnpooled opens path for the lifetime of the returned handle. It
// fails if doing so would push the process-wide Unpooled count above the
// configured soft cap.
func OpenUnpooled(path string, mode Mode) (*Unpooled, error) {
	cap := atomic.LoadInt64(&unpooledSoftCap)
	if n := atomic.AddInt64(&unpooledOpenCount, 1); n > cap {
		atomic.AddInt64(&unpooledOpenCount, -1)
		return nil, &Error{Kind: OpenFailure, Path: path,
			Err: errors.Errorf("unpooled open count would exceed soft cap %d", cap)}
	}
	f, err := openOS(path, mode)
	if err != nil {
		atomic.AddInt64(&unpooledOpenCount, -1)
		return nil, &Error{Kind: OpenFailure, Path: path, Err: err}
	}
	return &Unpooled{path: path, f: f}, nil
}

func (u *Unpooled) Path() string { return u.path }

func (u *Unpooled) Size() (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.f.Seek(0, os.SEEK_END)
}

func (u *Unpooled) ReadAt(dst []byte, off int64, elem, count int) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	n, err := readAt(u.f, dst, off, elem, count)
	if n < count && err == nil {
		err = &Error{Kind: ShortRead, Path: u.path, Requested: int64(count), Actual: int64(n)}
	}
	return n, err
}

func (u *Unpooled) Append(src []byte, elem, count int) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	n, err := appendAt(u.f, src, elem, count)
	if n < count && err == nil {
		err = &Error{Kind: ShortAppend, Path: u.path, Requested: int64(count), Actual: int64(n)}
	}
	return n, err
}

func (u *Unpooled) Flush() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.f.Sync()
}

func (u *Unpooled) Truncate() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.f.Truncate(0); err != nil {
		return &Error{Kind: TruncateFailure, Path: u.path, Err: err}
	}
	_, err := u.f.Seek(0, os.SEEK_SET)
	return err
}

// Advise implements the adviser interface used by the typed span iterator.
func (u *Unpooled) Advise(offset, length int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	adviseSequential(u.f, offset, length)
}

func (u *Unpooled) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	err := u.f.Close()
	atomic.AddInt64(&unpooledOpenCount, -1)
	return err
}
