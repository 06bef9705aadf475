package helperserver

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/colony-launcher/colony/internal/supervisor"
)

// Picker shows host file dialogs. ok is false when the user cancels.
type Picker interface {
	PickFile(ctx context.Context, startDir string) (path string, ok bool, err error)
	PickFiles(ctx context.Context, startDir string) (paths []string, ok bool, err error)
	PickDirectory(ctx context.Context, startDir string) (path string, ok bool, err error)
	PickDirectories(ctx context.Context, startDir string) (paths []string, ok bool, err error)
	SaveFile(ctx context.Context, startDir, suggestedName string) (path string, ok bool, err error)
}

// NoPicker cancels every dialog. It serves headless hosts.
type NoPicker struct{}

// PickFile implements Picker.
func (NoPicker) PickFile(context.Context, string) (string, bool, error) { return "", false, nil }

// PickFiles implements Picker.
func (NoPicker) PickFiles(context.Context, string) ([]string, bool, error) { return nil, false, nil }

// PickDirectory implements Picker.
func (NoPicker) PickDirectory(context.Context, string) (string, bool, error) { return "", false, nil }

// PickDirectories implements Picker.
func (NoPicker) PickDirectories(context.Context, string) ([]string, bool, error) {
	return nil, false, nil
}

// SaveFile implements Picker.
func (NoPicker) SaveFile(context.Context, string, string) (string, bool, error) { return "", false, nil }

// ZenityPicker shows GTK dialogs through the zenity tool.
type ZenityPicker struct {
	// Exec runs one command; nil uses supervisor.Run.
	Exec func(context.Context, supervisor.Command) (supervisor.Result, error)
}

// DefaultPicker returns a ZenityPicker when zenity is installed and NoPicker
// otherwise.
func DefaultPicker() Picker {
	if _, err := exec.LookPath("zenity"); err == nil {
		return ZenityPicker{}
	}

	return NoPicker{}
}

func (z ZenityPicker) run(ctx context.Context, args ...string) ([]string, bool, error) {
	run := z.Exec
	if run == nil {
		run = supervisor.Run
	}

	argv := []string{"--file-selection", "--separator=\n"}
	for _, a := range args {
		if a != "" {
			argv = append(argv, a)
		}
	}

	res, err := run(ctx, supervisor.Command{Path: "zenity", Args: argv})
	if err != nil {
		return nil, false, fmt.Errorf("run zenity: %w", err)
	}

	// zenity exits 1 on cancel.
	if res.ExitCode != 0 {
		return nil, false, nil
	}

	var paths []string

	for line := range strings.SplitSeq(strings.TrimRight(string(res.Stdout), "\n"), "\n") {
		if line != "" {
			paths = append(paths, line)
		}
	}

	return paths, len(paths) > 0, nil
}

func startAt(dir string) string {
	if dir == "" {
		return ""
	}

	return "--filename=" + dir + string(filepath.Separator)
}

func first(paths []string, ok bool, err error) (string, bool, error) {
	if !ok || err != nil {
		return "", false, err
	}

	return paths[0], true, nil
}

// PickFile implements Picker.
func (z ZenityPicker) PickFile(ctx context.Context, startDir string) (string, bool, error) {
	return first(z.run(ctx, startAt(startDir)))
}

// PickFiles implements Picker.
func (z ZenityPicker) PickFiles(ctx context.Context, startDir string) ([]string, bool, error) {
	return z.run(ctx, "--multiple", startAt(startDir))
}

// PickDirectory implements Picker.
func (z ZenityPicker) PickDirectory(ctx context.Context, startDir string) (string, bool, error) {
	return first(z.run(ctx, "--directory", startAt(startDir)))
}

// PickDirectories implements Picker.
func (z ZenityPicker) PickDirectories(ctx context.Context, startDir string) ([]string, bool, error) {
	return z.run(ctx, "--directory", "--multiple", startAt(startDir))
}

// SaveFile implements Picker.
func (z ZenityPicker) SaveFile(ctx context.Context, startDir, suggestedName string) (string, bool, error) {
	name := "--filename=" + filepath.Join(startDir, suggestedName)

	return first(z.run(ctx, "--save", "--confirm-overwrite", "--file-filter=JSON files | *.json", name))
}
