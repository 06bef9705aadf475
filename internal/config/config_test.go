package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// unsetEnvForTest unsets an environment variable and registers cleanup to
// restore its original state.
func unsetEnvForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func clearColonyEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"COLONY_PERSISTENCE_DIR",
		"COLONY_HELPER_PORT",
		"COLONY_HELPER_FRONTEND_ORIGIN_PORT",
		"COLONY_HELPER_BODY_LIMIT",
		"COLONY_API_LISTEN",
		"COLONY_TERMINAL_RENDERER",
		"COLONY_TERMINAL_ROWS",
		"COLONY_TERMINAL_COLS",
		"COLONY_SUBSYSTEM_DISTRIBUTION",
		"COLONY_SUBSYSTEM_WRAPPER",
		"COLONY_JOBS_PTY",
		"COLONY_JOBS_TRANSCRIPTS",
		"COLONY_JOURNAL_RETENTION",
		"COLONY_TELEMETRY_ENDPOINT",
		"COLONY_TELEMETRY_INSECURE",
		"COLONY_TELEMETRY_SAMPLE_RATIO",
	} {
		unsetEnvForTest(t, key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearColonyEnv(t)

	cfg := LoadFrom(t.TempDir())

	tests := []struct {
		name     string
		accessor func(*Config) interface{}
		want     interface{}
	}{
		{"helper port", func(c *Config) interface{} { return c.HelperPort() }, DefaultHelperPort},
		{"front-end origin port", func(c *Config) interface{} { return c.FrontendOriginPort() }, DefaultFrontendOriginPort},
		{"body limit", func(c *Config) interface{} { return c.BodyLimit() }, int64(DefaultHelperBodyLimit)},
		{"api listen", func(c *Config) interface{} { return c.APIListen() }, DefaultAPIListen},
		{"renderer", func(c *Config) interface{} { return c.Renderer() }, DefaultRenderer},
		{"distribution", func(c *Config) interface{} { return c.Distribution() }, DefaultDistribution},
		{"jobs pty", func(c *Config) interface{} { return c.JobsPTY() }, false},
		{"journal retention", func(c *Config) interface{} { return c.JournalRetention() }, DefaultJournalRetention},
		{"persistence dir", func(c *Config) interface{} { return c.PersistenceDir() }, ""},
		{"telemetry endpoint", func(c *Config) interface{} { return c.TelemetryEndpoint() }, ""},
		{"telemetry sample ratio", func(c *Config) interface{} { return c.TelemetrySampleRatio() }, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.accessor(cfg); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	rows, cols := cfg.TerminalSize()
	if rows != DefaultTerminalRows || cols != DefaultTerminalCols {
		t.Errorf("TerminalSize() = %dx%d, want %dx%d", rows, cols, DefaultTerminalRows, DefaultTerminalCols)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearColonyEnv(t)
	t.Setenv("COLONY_HELPER_PORT", "21000")
	t.Setenv("COLONY_TERMINAL_RENDERER", "screen")
	t.Setenv("COLONY_JOBS_TRANSCRIPTS", "true")
	t.Setenv("COLONY_JOURNAL_RETENTION", "48h")

	cfg := LoadFrom(t.TempDir())

	if got := cfg.HelperPort(); got != 21000 {
		t.Errorf("HelperPort() = %d, want 21000", got)
	}

	if got := cfg.Renderer(); got != "screen" {
		t.Errorf("Renderer() = %q, want %q", got, "screen")
	}

	if !cfg.JobsTranscripts() {
		t.Error("JobsTranscripts() = false, want true")
	}

	if got := cfg.JournalRetention(); got != 48*time.Hour {
		t.Errorf("JournalRetention() = %v, want 48h", got)
	}
}

func TestLoad_FromDotEnv(t *testing.T) {
	clearColonyEnv(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("COLONY_API_LISTEN=127.0.0.1:9999\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Cleanup(func() { os.Unsetenv("COLONY_API_LISTEN") })

	cfg := LoadFrom(dir)

	if got := cfg.APIListen(); got != "127.0.0.1:9999" {
		t.Errorf("APIListen() = %q, want %q", got, "127.0.0.1:9999")
	}
}

func TestLoad_FromFile(t *testing.T) {
	clearColonyEnv(t)

	dir := t.TempDir()
	yaml := "helper:\n  port: 22000\nsubsystem:\n  wrapper: \"ssh build-host\"\n"

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := LoadFrom(dir)

	if got := cfg.HelperPort(); got != 22000 {
		t.Errorf("HelperPort() = %d, want 22000", got)
	}

	if got, want := cfg.SubsystemWrapper(), []string{"ssh", "build-host"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SubsystemWrapper() = %v, want %v", got, want)
	}
}

func TestConfig_SetPersists(t *testing.T) {
	clearColonyEnv(t)

	dir := t.TempDir()
	cfg := LoadFrom(dir)

	if err := cfg.Set("helper.port", 23000); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reloaded := LoadFrom(dir)
	if got := reloaded.HelperPort(); got != 23000 {
		t.Errorf("HelperPort() after reload = %d, want 23000", got)
	}
}

func TestConfig_All(t *testing.T) {
	clearColonyEnv(t)

	all := LoadFrom(t.TempDir()).All()

	for _, key := range []string{"helper", "api", "terminal", "subsystem", "jobs", "journal"} {
		if _, ok := all[key]; !ok {
			t.Errorf("All() missing %q", key)
		}
	}
}

func TestDefaultWrapper(t *testing.T) {
	if got := DefaultWrapper("linux", "ColonyWSL"); got != nil {
		t.Errorf("DefaultWrapper(linux) = %v, want nil", got)
	}

	want := []string{"wsl", "-d", "ColonyWSL", "-e"}
	if got := DefaultWrapper("windows", "ColonyWSL"); !reflect.DeepEqual(got, want) {
		t.Errorf("DefaultWrapper(windows) = %v, want %v", got, want)
	}
}

func TestJournalRetention_InvalidFallsBack(t *testing.T) {
	clearColonyEnv(t)
	t.Setenv("COLONY_JOURNAL_RETENTION", "forever")

	if got := LoadFrom(t.TempDir()).JournalRetention(); got != DefaultJournalRetention {
		t.Errorf("JournalRetention() = %v, want default", got)
	}
}

func TestTelemetryFromEnv(t *testing.T) {
	clearColonyEnv(t)
	t.Setenv("COLONY_TELEMETRY_ENDPOINT", "127.0.0.1:4318")
	t.Setenv("COLONY_TELEMETRY_INSECURE", "true")
	t.Setenv("COLONY_TELEMETRY_SAMPLE_RATIO", "0.25")

	cfg := LoadFrom(t.TempDir())

	if got := cfg.TelemetryEndpoint(); got != "127.0.0.1:4318" {
		t.Errorf("TelemetryEndpoint() = %q", got)
	}

	if !cfg.TelemetryInsecure() {
		t.Error("TelemetryInsecure() = false, want true")
	}

	if got := cfg.TelemetrySampleRatio(); got != 0.25 {
		t.Errorf("TelemetrySampleRatio() = %v, want 0.25", got)
	}
}
