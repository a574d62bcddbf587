//go:build windows

package ledger

import "os"

// openFileNoFollow opens a ledger file.
// On Windows, O_NOFOLLOW is not available; symlink creation needs elevated
// privileges there, so a plain open is used.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// replaceFile moves src over dst. os.Rename fails on Windows when dst exists,
// so dst is removed first; a crash in between leaves only the temp file.
func replaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(src, dst)
}
