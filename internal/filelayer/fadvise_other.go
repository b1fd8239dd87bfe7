//go:build !linux

package filelayer

import "os"

// adviseSequential is a no-op on platforms without fadvise(2).
func adviseSequential(f *os.File, offset, length int64) {}
