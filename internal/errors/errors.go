// Package errors provides structured CLI error types for colony.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes for CLI errors.
const (
	ExitSuccess     = 0  // Successful execution
	ExitGeneral     = 1  // General error
	ExitNetwork     = 3  // Network error
	ExitConfig      = 4  // Configuration error
	ExitTimeout     = 5  // Execution timeout
	ExitExecution   = 6  // Execution failure
	ExitPersistence = 7  // Journal or catalog unusable
	ExitUsage       = 64 // Command line usage error (BSD convention)
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- Common error constructors ---

// ConfigFailed returns an error for configuration save failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check file permissions for your colony config directory",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// PersistenceDirUnavailable returns an error when no persistence directory
// can be resolved or created.
func PersistenceDirUnavailable(cause error) *CLIError {
	return &CLIError{
		Message: "Cannot open persistence directory",
		Hint:    "Set COLONY_CONFIGDIR to a writable directory or pass --persistence-dir",
		Cause:   cause,
		Code:    ExitPersistence,
	}
}

// JournalSchemaMismatch returns an error for a journal file whose tables do
// not match the expected layout.
func JournalSchemaMismatch(path string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Journal schema mismatch: %s", path),
		Hint:    "Move the journal file aside; a fresh one is created on next start",
		Cause:   cause,
		Code:    ExitPersistence,
	}
}

// JournalOpenFailed returns an error when the journal database cannot be opened.
func JournalOpenFailed(path string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to open journal: %s", path),
		Hint:    "Check that the persistence directory is writable",
		Cause:   cause,
		Code:    ExitPersistence,
	}
}

// CatalogFailed returns an error for catalog load or save failures.
func CatalogFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s catalog", operation),
		Hint:    "The catalog file may be corrupt; check colony_launcher_configuration.json",
		Cause:   cause,
		Code:    ExitPersistence,
	}
}

// ContainerNotFound returns an error for a catalog lookup that matched nothing.
func ContainerNotFound(ref string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Container not found: %s", ref),
		Hint:    "Run 'colony catalog list' to see registered containers",
		Code:    ExitGeneral,
	}
}

// JobNotFound returns an error for an unknown job.
func JobNotFound(jobID string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Job not found: %s", jobID),
		Hint:    "Run 'colony history list' to see recorded jobs",
		Code:    ExitGeneral,
	}
}

// HelperBindFailed returns an error when the loopback helper cannot listen.
func HelperBindFailed(addr string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Helper server could not bind %s", addr),
		Hint:    "Another process may hold the port; set helper.port or stop it",
		Cause:   cause,
		Code:    ExitNetwork,
	}
}

// PlatformCheckFailed returns an error for a failed platform setup stage.
func PlatformCheckFailed(stage string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Platform setup failed at stage: %s", stage),
		Hint:    "Run with --log-level=debug for the stage output",
		Cause:   cause,
		Code:    ExitExecution,
	}
}

// SingularityNotFound returns an error when no singularity runtime is reachable.
func SingularityNotFound() *CLIError {
	return &CLIError{
		Message: "Singularity runtime not found",
		Hint:    "Run 'colony platform check' to install it",
		Code:    ExitConfig,
	}
}

// InvalidRenderer returns an error for an unknown terminal renderer name.
func InvalidRenderer(name string, supported []string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Invalid terminal renderer: %s", name),
		Hint:    fmt.Sprintf("Supported renderers: %s", strings.Join(supported, ", ")),
		Code:    ExitUsage,
	}
}

// ExecutionFailed returns an error for a child that exited non-zero. Output
// longer than 200 bytes is truncated in the hint.
func ExecutionFailed(exitCode int, output string) *CLIError {
	hint := ""

	switch {
	case containsAny(output, "no such file", "not found"):
		hint = "Check that the container path exists and is readable"
	case containsAny(output, "permission denied"):
		hint = "Check file permissions on the container and working directory"
	case output != "":
		if len(output) > 200 {
			output = output[:200] + "..."
		}

		hint = output
	}

	return &CLIError{
		Message: fmt.Sprintf("Container run exited with code %d", exitCode),
		Hint:    hint,
		Code:    ExitExecution,
	}
}

// containsAny checks if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}

	return false
}
