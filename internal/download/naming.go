package download

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// PartSuffix marks a file that is still being transferred.
const PartSuffix = ".part"

// NextAvailableName returns path if nothing exists there, otherwise
// path.N for the smallest N >= 1 that is free.
func NextAvailableName(path string, exists func(string) bool) string {
	if !exists(path) {
		return path
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d", path, i)
		if !exists(candidate) {
			return candidate
		}
	}
}

// DatedDirectory returns dir when it does not exist yet. An existing
// directory is never reused: the batch goes to dir_YYYY-MM-DD instead
// (with a .N suffix if that is taken as well).
func DatedDirectory(dir string, now time.Time, exists func(string) bool) string {
	if !exists(dir) {
		return dir
	}
	return NextAvailableName(fmt.Sprintf("%s_%s", dir, now.Format("2006-01-02")), exists)
}

// PathExists reports whether anything, including a dangling symlink, is at path.
func PathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
