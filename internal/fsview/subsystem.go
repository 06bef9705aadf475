package fsview

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/colony-launcher/colony/internal/singularity"
	"github.com/colony-launcher/colony/internal/supervisor"
)

// Lister lists directories on any supported filesystem.
type Lister struct {
	Host singularity.Host
	// Exec runs one command; nil uses supervisor.Run.
	Exec func(context.Context, supervisor.Command) (supervisor.Result, error)
}

// List lists dir on fs.
func (l Lister) List(ctx context.Context, fs Filesystem, dir string) (Listing, error) {
	switch fs.Kind {
	case Local, "":
		return ListLocal(dir)
	case Subsystem:
		return l.listSubsystem(ctx, dir)
	case Remote:
		return Listing{}, fmt.Errorf("%w: %s", ErrRemoteUnsupported, fs.Server)
	default:
		return Listing{}, fmt.Errorf("unknown filesystem kind %q", fs.Kind)
	}
}

func (l Lister) listSubsystem(ctx context.Context, dir string) (Listing, error) {
	exec := l.Exec
	if exec == nil {
		exec = supervisor.Run
	}

	run := func(flags string) (string, error) {
		cmd := l.Host.Command("ls", flags, dir)
		cmd.Env = []string{"WSL_UTF8=1"}

		res, err := exec(ctx, cmd)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrUnreadable, dir, err)
		}

		return string(res.Stdout), nil
	}

	names, err := run("-1Q")
	if err != nil {
		return Listing{}, err
	}

	meta, err := run("-1lQocF")
	if err != nil {
		return Listing{}, err
	}

	return ParseLS(dir, names, meta)
}

// ParseLS combines the output of `ls -1Q` (quoted names) and `ls -1lQocF`
// (long format, one summary line first, type indicator suffixes) into a
// Listing.
func ParseLS(dir, namesOut, metaOut string) (Listing, error) {
	names := splitLines(namesOut)
	meta := splitLines(metaOut)

	if len(names) == 0 && len(meta) == 0 {
		return Listing{}, fmt.Errorf("%w: %s: no output, directory probably does not exist", ErrUnreadable, dir)
	}

	if len(names)+1 != len(meta) {
		return Listing{}, fmt.Errorf("%w: %d names, %d metadata lines", ErrListingMismatch, len(names), len(meta))
	}

	listing := Listing{Root: dir, Files: []string{}, Directories: []string{}}

	for i, quoted := range names {
		name := unquote(quoted)
		line := meta[i+1]

		isDir, err := classify(name, line)
		if err != nil {
			return Listing{}, err
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

// classify reports whether the long-format line for name denotes a directory.
// Symlinks show "name" -> "target" and take the indicator of their target.
func classify(name, line string) (bool, error) {
	quotedName := regexp.QuoteMeta(`"` + name + `"`)

	var pattern *regexp.Regexp
	if strings.Count(line, "->") > strings.Count(name, "->") {
		pattern = regexp.MustCompile(`(?s)` + quotedName + ` -> "(?:.*)"(=>|[*/@|]?)`)
	} else {
		pattern = regexp.MustCompile(`(?s)` + quotedName + `(=>|[*/@|]?)`)
	}

	m := pattern.FindStringSubmatch(line)
	if m == nil {
		return false, fmt.Errorf("%w: cannot parse metadata for %q: %q", ErrListingMismatch, name, line)
	}

	return m[1] == "/", nil
}

func splitLines(s string) []string {
	var out []string

	for line := range strings.SplitSeq(strings.ReplaceAll(s, "\r", ""), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}

	return out
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}

	return ""
}
