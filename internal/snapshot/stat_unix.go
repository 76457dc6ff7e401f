//go:build unix

package snapshot

import (
	"fmt"
	"io/fs"
	"syscall"
)

// linkCount extracts the hardlink count from a FileInfo. Returns an error
// if the underlying Sys() type is not *syscall.Stat_t, which would happen
// with mock filesystems that don't provide real stat data.
func linkCount(info fs.FileInfo) (uint64, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("cannot extract stat data: expected *syscall.Stat_t, got %T", info.Sys())
	}
	return uint64(stat.Nlink), nil
}
