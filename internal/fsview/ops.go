package fsview

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Metadata describes one path.
type Metadata struct {
	Path     string
	Size     int64
	Mode     fs.FileMode
	IsDir    bool
	Modified time.Time
}

// Stat returns metadata for path, following symlinks.
func Stat(path string) (Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, err
	}

	return Metadata{
		Path:     path,
		Size:     info.Size(),
		Mode:     info.Mode(),
		IsDir:    info.IsDir(),
		Modified: info.ModTime().UTC(),
	}, nil
}

// Move renames src to dst, copying and removing when they are on different
// devices. It returns dst.
func Move(src, dst string) (string, error) {
	if _, err := os.Lstat(src); err != nil {
		return "", err
	}

	err := os.Rename(src, dst)
	if err == nil {
		return dst, nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return "", fmt.Errorf("move %s: %w", src, err)
	}

	if _, err := Copy(src, dst); err != nil {
		return "", err
	}

	if err := os.RemoveAll(src); err != nil {
		return "", fmt.Errorf("remove moved source %s: %w", src, err)
	}

	return dst, nil
}

// Copy copies a file or a directory tree from src to dst. Existing files at
// the destination are not overwritten.
func Copy(src, dst string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}

	if info.IsDir() {
		if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
			return "", fmt.Errorf("copy directory %s: %w", src, err)
		}

		return dst, nil
	}

	if err := copyFile(src, dst, info.Mode().Perm()); err != nil {
		return "", err
	}

	return dst, nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // G304: path chosen by the caller
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	// #nosec G301 -- destination directories follow the user's umask
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm) //nolint:gosec // G304: path chosen by the caller
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := out.ReadFrom(in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)

		return fmt.Errorf("copy %s: %w", src, err)
	}

	return out.Close()
}

// Delete removes a file or directory tree. A missing path is an error.
func Delete(path string) error {
	if _, err := os.Lstat(path); err != nil {
		return err
	}

	return os.RemoveAll(path)
}

// Replace copies the file src to dst, overwriting a file already at dst.
func Replace(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return fmt.Errorf("replace %s: source is a directory", src)
	}

	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("replace %s: %w", dst, err)
	}

	return copyFile(src, dst, info.Mode().Perm())
}
