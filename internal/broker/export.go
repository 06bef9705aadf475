package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/colony-launcher/colony/internal/fsview"
	"github.com/colony-launcher/colony/internal/singularity"
)

var errNoConfiguration = errors.New("configuration path is empty")

const (
	inputDir   = "input"
	outputDir  = "output"
	pathSuffix = "_path"
)

// exportAnalysis lays out workdir as a self-contained analysis: the container,
// an input/ directory holding every file the configuration references, an
// empty output/ directory, and the configuration rewritten to point into
// input/.
func exportAnalysis(host singularity.Host, workdir, container, configuration string) error {
	if configuration == "" {
		return errNoConfiguration
	}

	for _, dir := range []string{outputDir, inputDir} {
		// #nosec G301 -- analysis directories follow the user's umask
		if err := os.MkdirAll(filepath.Join(workdir, dir), 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", dir, err)
		}
	}

	if err := fsview.Replace(container, filepath.Join(workdir, filepath.Base(container))); err != nil {
		return fmt.Errorf("copy container: %w", err)
	}

	return rewriteConfiguration(host, workdir, configuration)
}

func rewriteConfiguration(host singularity.Host, workdir, configuration string) error {
	raw, err := os.ReadFile(configuration) //nolint:gosec // G304: path chosen by the user
	if err != nil {
		return fmt.Errorf("read configuration: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse configuration: %w", err)
	}

	var sources []string

	doc, err = rewritePaths(doc, func(value string) (string, error) {
		native := host.HostPath(value)

		if !filepath.IsAbs(native) {
			if _, err := os.Stat(filepath.Join(workdir, native)); err != nil {
				return "", fmt.Errorf("relative path %q is not inside the analysis: %w", value, err)
			}

			return value, nil
		}

		base := filepath.Base(native)
		if base == "." || base == string(filepath.Separator) {
			return "", fmt.Errorf("path %q names no file", value)
		}

		sources = append(sources, native)

		return "./" + inputDir + "/" + base, nil
	})
	if err != nil {
		return err
	}

	for _, src := range sources {
		if err := fsview.Replace(src, filepath.Join(workdir, inputDir, filepath.Base(src))); err != nil {
			return fmt.Errorf("copy referenced file: %w", err)
		}
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}

	if err := os.WriteFile(filepath.Join(workdir, filepath.Base(configuration)), out, 0o644); err != nil { //nolint:gosec // G306: shared with the container
		return fmt.Errorf("write configuration: %w", err)
	}

	return nil
}

// rewritePaths walks a decoded JSON document and replaces every string value
// whose key ends in _path.
func rewritePaths(v any, rewrite func(string) (string, error)) (any, error) {
	switch node := v.(type) {
	case map[string]any:
		for key, child := range node {
			if s, ok := child.(string); ok && strings.HasSuffix(key, pathSuffix) {
				replaced, err := rewrite(s)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}

				node[key] = replaced

				continue
			}

			replaced, err := rewritePaths(child, rewrite)
			if err != nil {
				return nil, err
			}

			node[key] = replaced
		}

		return node, nil
	case []any:
		for i, child := range node {
			replaced, err := rewritePaths(child, rewrite)
			if err != nil {
				return nil, err
			}

			node[i] = replaced
		}

		return node, nil
	default:
		return v, nil
	}
}
