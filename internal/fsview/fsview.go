// Package fsview lists and manipulates directories on the local host, inside
// the Linux subsystem, and (eventually) on remote machines.
package fsview

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrUnreadable is returned when a directory cannot be listed.
	ErrUnreadable = errors.New("directory could not be read")
	// ErrListingMismatch is returned when subsystem name and metadata
	// listings do not line up.
	ErrListingMismatch = errors.New("listing names and metadata do not match")
	// ErrRemoteUnsupported is returned for remote filesystems.
	ErrRemoteUnsupported = errors.New("remote filesystems are not supported")
)

// Kind selects where a path lives.
type Kind string

// Filesystem kinds.
const (
	Local     Kind = "Local"
	Subsystem Kind = "LocalWSL"
	Remote    Kind = "Remote"
)

// Filesystem names a filesystem. Server is set for Remote only.
type Filesystem struct {
	Kind   Kind   `json:"kind"`
	Server string `json:"server,omitempty"`
}

// Listing is the content of one directory, split by entry type. Names are
// relative to Root and sorted.
type Listing struct {
	Root        string   `json:"root"`
	Files       []string `json:"files"`
	Directories []string `json:"directories"`
}

// ListLocal lists dir on the host. Symlinks count as directories when their
// target is a directory.
func ListLocal(dir string) (Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Listing{}, fmt.Errorf("%w: %s: %w", ErrUnreadable, dir, err)
	}

	listing := Listing{Root: dir, Files: []string{}, Directories: []string{}}

	for _, entry := range entries {
		name := entry.Name()

		isDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
				isDir = info.IsDir()
			}
		}

		if isDir {
			listing.Directories = append(listing.Directories, name)
		} else {
			listing.Files = append(listing.Files, name)
		}
	}

	sort.Strings(listing.Files)
	sort.Strings(listing.Directories)

	return listing, nil
}

// Filter keeps entries whose name matches the doublestar pattern. An empty
// pattern keeps everything.
func Filter(l Listing, pattern string) (Listing, error) {
	if pattern == "" {
		return l, nil
	}

	if !doublestar.ValidatePattern(pattern) {
		return Listing{}, fmt.Errorf("invalid pattern %q", pattern)
	}

	keep := func(names []string) []string {
		out := []string{}

		for _, name := range names {
			if ok, _ := doublestar.Match(pattern, name); ok {
				out = append(out, name)
			}
		}

		return out
	}

	return Listing{Root: l.Root, Files: keep(l.Files), Directories: keep(l.Directories)}, nil
}

// Paths returns every entry joined onto Root, directories first.
func (l Listing) Paths() (dirs, files []string) {
	for _, d := range l.Directories {
		dirs = append(dirs, filepath.Join(l.Root, d))
	}

	for _, f := range l.Files {
		files = append(files, filepath.Join(l.Root, f))
	}

	return dirs, files
}
