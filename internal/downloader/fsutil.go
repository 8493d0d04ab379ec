package downloader

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const stageSuffix = ".part"

// stagePath returns a hidden, unique staging file next to dest, so concurrent
// writers never share a staging file and a crash leaves nothing under dest's name.
func stagePath(dest string) string {
	dir, name := filepath.Split(dest)
	return filepath.Join(dir, "."+name+"."+uuid.NewString()+stageSuffix)
}

// lockPath is the advisory lock guarding writes to dest.
func lockPath(dest string) string {
	dir, name := filepath.Split(dest)
	return filepath.Join(dir, "."+name+".lock")
}

// writeChecksum writes a sha256sum-compatible sidecar next to dest.
func writeChecksum(dest, sum string) error {
	return writeAndSync(dest+".sha256", []byte(sum+"  "+filepath.Base(dest)+"\n"))
}

// writeAndSync writes content to path and fsyncs the file.
func writeAndSync(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}

func fsyncDir(dir string) error {
	df, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = df.Close() }()
	return df.Sync()
}

// IsStaged reports whether name looks like a staging file written by Download.
func IsStaged(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, stageSuffix)
}

// CleanStaged removes staging files older than olderThan under dir, left behind
// by interrupted processes. It returns the removed paths.
func CleanStaged(dir string, olderThan time.Duration, dryRun bool) ([]string, error) {
	cutoff := time.Now().Add(-olderThan)
	var removed []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !IsStaged(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if !dryRun {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		removed = append(removed, p)
		return nil
	})
	return removed, err
}
