//go:build linux

package filelayer

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential is a best-effort hint to the kernel that f will be read
// sequentially from here on, used by the typed span's prefetching iterator
// (spec §4.3). Failure is ignored: this is an optimization, never a
// correctness requirement.
func adviseSequential(f *os.File, offset, length int64) {
	_ = unix.Fadvise(int(f.Fd()), offset, length, unix.FADV_SEQUENTIAL)
}
