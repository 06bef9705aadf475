package broker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colony-launcher/colony/internal/singularity"
)

func TestExportAnalysis(t *testing.T) {
	src := t.TempDir()
	workdir := t.TempDir()

	container := filepath.Join(src, "tool.sif")
	data := filepath.Join(src, "reads.fastq")
	reference := filepath.Join(src, "ref.fa")
	config := filepath.Join(src, "run.json")

	require.NoError(t, os.WriteFile(container, []byte("image"), 0o600))
	require.NoError(t, os.WriteFile(data, []byte("ACGT"), 0o600))
	require.NoError(t, os.WriteFile(reference, []byte(">ref"), 0o600))
	require.NoError(t, os.WriteFile(config, []byte(`{
		"input_path": "`+data+`",
		"threads": 4,
		"steps": [{"reference_path": "`+reference+`", "name": "align"}]
	}`), 0o600))

	require.NoError(t, exportAnalysis(singularity.Host{}, workdir, container, config))

	assert.FileExists(t, filepath.Join(workdir, "tool.sif"))
	assert.DirExists(t, filepath.Join(workdir, "output"))
	assert.FileExists(t, filepath.Join(workdir, "input", "reads.fastq"))
	assert.FileExists(t, filepath.Join(workdir, "input", "ref.fa"))

	raw, err := os.ReadFile(filepath.Join(workdir, "run.json"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "./input/reads.fastq", got["input_path"])
	assert.InDelta(t, 4, got["threads"], 0)

	step := got["steps"].([]any)[0].(map[string]any)
	assert.Equal(t, "./input/ref.fa", step["reference_path"])
	assert.Equal(t, "align", step["name"])

	// A second export overwrites the earlier copies.
	require.NoError(t, exportAnalysis(singularity.Host{}, workdir, container, config))
}

func TestExportAnalysisRelativePaths(t *testing.T) {
	src := t.TempDir()
	workdir := t.TempDir()

	container := filepath.Join(src, "tool.sif")
	config := filepath.Join(src, "run.json")

	require.NoError(t, os.WriteFile(container, []byte("image"), 0o600))
	require.NoError(t, os.WriteFile(config, []byte(`{"input_path": "./input/reads.fastq"}`), 0o600))

	err := exportAnalysis(singularity.Host{}, workdir, container, config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input_path")

	require.NoError(t, os.WriteFile(filepath.Join(workdir, "input", "reads.fastq"), nil, 0o600))
	require.NoError(t, exportAnalysis(singularity.Host{}, workdir, container, config))
}

func TestExportAnalysisNeedsConfiguration(t *testing.T) {
	assert.ErrorIs(t, exportAnalysis(singularity.Host{}, t.TempDir(), "/c.img", ""), errNoConfiguration)
}
