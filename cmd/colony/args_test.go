package main

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"

	clierrors "github.com/colony-launcher/colony/internal/errors"
)

func TestAllRunnableCommandsHaveArgsValidator(t *testing.T) {
	root := newRootCmd()

	var missing []string

	for _, cmd := range collectAllCommands(root) {
		if !cmd.Runnable() {
			continue
		}

		if cmd.Args == nil {
			missing = append(missing, cmd.CommandPath())
		}
	}

	if len(missing) > 0 {
		t.Errorf("runnable commands missing Args validator:\n  %s\n\nAdd Args: noArgs (or another validator) to each command.",
			strings.Join(missing, "\n  "))
	}
}

// collectAllCommands returns every command in the tree, root included.
func collectAllCommands(root *cobra.Command) []*cobra.Command {
	var all []*cobra.Command

	var walk func(cmd *cobra.Command)

	walk = func(cmd *cobra.Command) {
		all = append(all, cmd)
		for _, child := range cmd.Commands() {
			walk(child)
		}
	}

	walk(root)

	return all
}

func TestUnknownFlagReturnsCLIError(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"catalog", "list", "--bogus"})

	err := root.Execute()
	if err == nil {
		t.Fatal("expected error for unknown flag, got nil")
	}

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) {
		t.Fatalf("expected CLIError, got %T: %v", err, err)
	}

	if cliErr.Code != clierrors.ExitUsage {
		t.Errorf("exit code = %d, want %d (ExitUsage)", cliErr.Code, clierrors.ExitUsage)
	}

	if !strings.Contains(cliErr.Message, "unknown flag") {
		t.Errorf("message = %q, want to contain 'unknown flag'", cliErr.Message)
	}

	if !strings.Contains(cliErr.Hint, "colony catalog list") {
		t.Errorf("hint = %q, want to contain command path 'colony catalog list'", cliErr.Hint)
	}
}

func TestNoArgsCommandRejectsExtraArgs(t *testing.T) {
	for _, args := range [][]string{
		{"version", "extra"},
		{"serve", "extra"},
		{"journal", "prune", "extra"},
	} {
		root := newRootCmd()
		root.SetArgs(args)

		err := root.Execute()
		if err == nil {
			t.Fatalf("%v: expected error for extra argument, got nil", args)
		}

		var cliErr *clierrors.CLIError
		if !clierrors.As(err, &cliErr) {
			t.Fatalf("%v: expected CLIError, got %T: %v", args, err, err)
		}

		if cliErr.Code != clierrors.ExitUsage {
			t.Errorf("%v: exit code = %d, want %d (ExitUsage)", args, cliErr.Code, clierrors.ExitUsage)
		}

		if !strings.Contains(cliErr.Message, "accepts no arguments") {
			t.Errorf("%v: message = %q, want to contain 'accepts no arguments'", args, cliErr.Message)
		}
	}
}
