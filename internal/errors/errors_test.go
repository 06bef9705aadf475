package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/colony-launcher/colony/internal/testutil"
)

func TestExecutionFailed(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		output   string
		wantMsg  string
		wantHint string
	}{
		{
			name:     "missing container",
			exitCode: 255,
			output:   "FATAL: could not open image /c.img: no such file or directory",
			wantMsg:  "exited with code 255",
			wantHint: "container path exists",
		},
		{
			name:     "permission denied",
			exitCode: 1,
			output:   "open /w/out: Permission denied",
			wantMsg:  "exited with code 1",
			wantHint: "file permissions",
		},
		{
			name:     "generic output",
			exitCode: 2,
			output:   "something broke",
			wantMsg:  "exited with code 2",
			wantHint: "something broke",
		},
		{
			name:     "long output truncated",
			exitCode: 2,
			output:   strings.Repeat("x", 250),
			wantMsg:  "exited with code 2",
			wantHint: strings.Repeat("x", 200) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ExecutionFailed(tt.exitCode, tt.output)

			if !strings.Contains(err.Message, tt.wantMsg) {
				t.Errorf("message = %q, want to contain %q", err.Message, tt.wantMsg)
			}

			if !strings.Contains(err.Hint, tt.wantHint) {
				t.Errorf("hint = %q, want to contain %q", err.Hint, tt.wantHint)
			}

			if err.Code != ExitExecution {
				t.Errorf("code = %d, want %d", err.Code, ExitExecution)
			}
		})
	}
}

func TestPersistenceErrorsUsePersistenceExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  *CLIError
	}{
		{"PersistenceDirUnavailable", PersistenceDirUnavailable(nil)},
		{"JournalSchemaMismatch", JournalSchemaMismatch("/tmp/journal.db", nil)},
		{"JournalOpenFailed", JournalOpenFailed("/tmp/journal.db", nil)},
		{"CatalogFailed", CatalogFailed("load", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != ExitPersistence {
				t.Errorf("code = %d, want %d", tt.err.Code, ExitPersistence)
			}
		})
	}
}

func TestContainsAny(t *testing.T) {
	tests := []struct {
		s          string
		substrings []string
		want       bool
	}{
		{"Permission denied", []string{"permission denied"}, true},
		{"NOT FOUND", []string{"not found"}, true},
		{"some error", []string{"not found", "denied"}, false},
		{"", []string{"test"}, false},
	}

	for _, tt := range tests {
		result := containsAny(tt.s, tt.substrings...)
		if result != tt.want {
			t.Errorf("containsAny(%q, %v) = %v, want %v", tt.s, tt.substrings, result, tt.want)
		}
	}
}

// TestAllErrorsHaveHints verifies that all error constructors provide actionable hints.
func TestAllErrorsHaveHints(t *testing.T) {
	tests := []struct {
		name string
		err  *CLIError
	}{
		{"ConfigFailed", ConfigFailed("test operation", nil)},
		{"PersistenceDirUnavailable", PersistenceDirUnavailable(nil)},
		{"JournalSchemaMismatch", JournalSchemaMismatch("journal.db", nil)},
		{"JournalOpenFailed", JournalOpenFailed("journal.db", nil)},
		{"CatalogFailed", CatalogFailed("save", nil)},
		{"ContainerNotFound", ContainerNotFound("/a.img")},
		{"JobNotFound", JobNotFound("job-123")},
		{"HelperBindFailed", HelperBindFailed("127.0.0.1:20311", nil)},
		{"PlatformCheckFailed", PlatformCheckFailed("InstallingWSL", nil)},
		{"SingularityNotFound", SingularityNotFound()},
		{"InvalidRenderer", InvalidRenderer("vt", []string{"automaton", "screen"})},
		{"ExecutionFailed", ExecutionFailed(1, "error message")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Hint == "" {
				t.Errorf("%s() should have a hint, got empty string", tt.name)
			}

			if tt.err.Message == "" {
				t.Errorf("%s() should have a message, got empty string", tt.name)
			}
		})
	}
}

func TestCLIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CLIError
		want string
	}{
		{
			name: "message only",
			err:  &CLIError{Message: "test error"},
			want: "test error",
		},
		{
			name: "message with cause",
			err:  &CLIError{Message: "test error", Cause: New(1, "underlying")},
			want: "test error: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCLIError_Unwrap(t *testing.T) {
	cause := New(1, "cause")
	err := &CLIError{Message: "wrapper", Cause: cause}

	if got := err.Unwrap(); got != cause { //nolint:errorlint // testing identity
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestWithHint(t *testing.T) {
	err := New(1, "test").WithHint("do this")

	if err.Hint != "do this" {
		t.Errorf("WithHint() hint = %q, want %q", err.Hint, "do this")
	}
}

func TestWrap(t *testing.T) {
	cause := New(1, "cause")
	err := Wrap(ExitNetwork, "wrapped", cause)

	if err.Code != ExitNetwork {
		t.Errorf("Wrap() code = %d, want %d", err.Code, ExitNetwork)
	}

	if err.Cause != cause { //nolint:errorlint // testing struct field identity
		t.Errorf("Wrap() cause = %v, want %v", err.Cause, cause)
	}
}

// formatCLIError produces a deterministic string representation of a CLIError for golden file comparison.
func formatCLIError(err *CLIError) string {
	return fmt.Sprintf("Message: %s\nHint: %s\nCode: %d\n", err.Message, err.Hint, err.Code)
}

func TestErrorMessages_Golden(t *testing.T) {
	tests := []struct {
		name string
		err  *CLIError
	}{
		{"ConfigFailed", ConfigFailed("save config", nil)},
		{"PersistenceDirUnavailable", PersistenceDirUnavailable(nil)},
		{"JournalSchemaMismatch", JournalSchemaMismatch("/data/colony_journal.db", nil)},
		{"CatalogFailed", CatalogFailed("load", nil)},
		{"ContainerNotFound", ContainerNotFound("/data/a.img")},
		{"JobNotFound", JobNotFound("job-abc-123")},
		{"HelperBindFailed", HelperBindFailed("127.0.0.1:20311", nil)},
		{"PlatformCheckFailed", PlatformCheckFailed("ImportingDistribution", nil)},
		{"SingularityNotFound", SingularityNotFound()},
		{"InvalidRenderer", InvalidRenderer("vt", []string{"automaton", "screen"})},
		{"ExecutionFailed_Generic", ExecutionFailed(1, "something broke")},
	}

	var sb strings.Builder
	for _, tt := range tests {
		fmt.Fprintf(&sb, "--- %s ---\n", tt.name)
		sb.WriteString(formatCLIError(tt.err))
		sb.WriteString("\n")
	}

	testutil.AssertGolden(t, sb.String(), "error_messages.golden")
}
