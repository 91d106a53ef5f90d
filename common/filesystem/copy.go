// Package filesystem provides tree copies with exclude patterns and filter expressions on top of
// afero so callers can be tested against an in-memory filesystem.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	doublestar "github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

type CopyOptions struct {
	// Exclude are doublestar patterns matched against slash separated paths relative to the source
	// root. An excluded directory is not descended into.
	Exclude []string
	// Filter is optional. Files (not directories) it rejects are skipped.
	Filter FileInfoFilter
}

type CopyStats struct {
	Files    int
	Dirs     int
	Symlinks int
	Skipped  int
	Bytes    int64
}

// ValidatePatterns returns an error for the first pattern that is not a valid doublestar pattern.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
	}
	return nil
}

// CopyTree recursively copies src to dst preserving permissions, modification times and symlinks.
// The destination must not exist. A partially copied destination is left in place on error.
func CopyTree(ctx context.Context, fsys afero.Fs, src string, dst string, opts CopyOptions) (CopyStats, error) {
	var stats CopyStats
	if err := ValidatePatterns(opts.Exclude); err != nil {
		return stats, err
	}
	if _, err := lstat(fsys, src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		return stats, err
	}
	if exists, err := afero.Exists(fsys, dst); err != nil {
		return stats, err
	} else if exists {
		return stats, fmt.Errorf("%w: %s", ErrTargetExists, dst)
	}

	err := afero.Walk(fsys, src, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if rel != "." && excluded(filepath.ToSlash(rel), opts.Exclude) {
			stats.Skipped++
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			if keep, err := keepFile(rel, info, opts.Filter); err != nil || !keep {
				stats.Skipped++
				return err
			}
			if err := copySymlink(fsys, path, target); err != nil {
				return err
			}
			stats.Symlinks++
		case info.IsDir():
			if err := fsys.MkdirAll(target, info.Mode().Perm()); err != nil {
				return fmt.Errorf("unable to create directory %s: %w", target, err)
			}
			stats.Dirs++
		case info.Mode().IsRegular():
			if keep, err := keepFile(rel, info, opts.Filter); err != nil || !keep {
				stats.Skipped++
				return err
			}
			n, err := copyFile(fsys, path, target, info)
			if err != nil {
				return err
			}
			stats.Files++
			stats.Bytes += n
		default:
			// Sockets, devices and pipes are not part of a project tree.
			stats.Skipped++
		}
		return nil
	})
	return stats, err
}

func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		// Patterns were validated up front so errors can't happen here.
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func keepFile(rel string, info fs.FileInfo, filter FileInfoFilter) (bool, error) {
	if filter == nil {
		return true, nil
	}
	keep, err := filter(FileInfoFromStat(filepath.ToSlash(rel), info))
	if err != nil {
		return false, fmt.Errorf("unable to apply filter: %w", err)
	}
	return keep, nil
}

func copyFile(fsys afero.Fs, src string, dst string, info fs.FileInfo) (int64, error) {
	in, err := fsys.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("unable to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return n, err
	}
	// The umask may have stripped bits from the mode used to create the file.
	if err := fsys.Chmod(dst, info.Mode().Perm()); err != nil {
		return n, err
	}
	return n, fsys.Chtimes(dst, info.ModTime(), info.ModTime())
}

func copySymlink(fsys afero.Fs, src string, dst string) error {
	reader, ok := fsys.(afero.LinkReader)
	if !ok {
		return fmt.Errorf("%w: reading links", ErrSymlinksUnsupported)
	}
	linker, ok := fsys.(afero.Linker)
	if !ok {
		return fmt.Errorf("%w: creating links", ErrSymlinksUnsupported)
	}
	dest, err := reader.ReadlinkIfPossible(src)
	if err != nil {
		return err
	}
	return linker.SymlinkIfPossible(dest, dst)
}

func lstat(fsys afero.Fs, path string) (fs.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}

// Symlink links newname to oldname if the filesystem supports it.
// ResolvePath returns the absolute form of p with symlinks resolved. Symlinks only exist on the
// OS filesystem, for other filesystems the cleaned absolute path is returned.
func ResolvePath(fsys afero.Fs, p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if _, ok := fsys.(*afero.OsFs); !ok {
		return abs, nil
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, abs)
	}
	return resolved, err
}

func Symlink(fsys afero.Fs, oldname string, newname string) error {
	linker, ok := fsys.(afero.Linker)
	if !ok {
		return ErrSymlinksUnsupported
	}
	return linker.SymlinkIfPossible(oldname, newname)
}
