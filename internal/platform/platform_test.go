package platform

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/colony-launcher/colony/internal/job"
	"github.com/colony-launcher/colony/internal/singularity"
	"github.com/colony-launcher/colony/internal/supervisor"
	"github.com/colony-launcher/colony/internal/termrender"
)

// fakeRunner completes every command with the exit code registered for its
// argv, or zero.
type fakeRunner struct {
	codes map[string]int
	ran   []string
	ids   map[job.ID]string
}

func (f *fakeRunner) Spawn(_ context.Context, cmd supervisor.Command) (job.ID, error) {
	id := job.NewID()
	if f.ids == nil {
		f.ids = map[job.ID]string{}
	}

	f.ids[id] = cmd.String()
	f.ran = append(f.ran, cmd.String())
	_ = cmd.Output.AppendLine("ran " + cmd.String())

	return id, nil
}

func (f *fakeRunner) Wait(_ context.Context, id job.ID) (job.State, error) {
	return job.CompletedWith(f.codes[f.ids[id]]), nil
}

func collect(states *[]State) func(State) {
	return func(s State) { *states = append(*states, s) }
}

func TestRunSkipsSatisfiedStages(t *testing.T) {
	runner := &fakeRunner{}
	buf := termrender.NewBuffer()

	stages := []Stage{
		{State: InstallationStarted, Message: "start"},
		{
			State:    InstallingWSL,
			Probe:    func(context.Context) (bool, error) { return true, nil },
			Commands: []supervisor.Command{{Path: "never"}},
		},
		{State: InstallingSingularity, Commands: []supervisor.Command{{Path: "install"}}},
	}

	var states []State
	if err := NewChecker(runner, nil).Run(context.Background(), stages, buf, collect(&states)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []State{InstallationStarted, InstallingWSL, InstallingSingularity, InstallationEnded}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("states = %v, want %v", states, want)
	}

	if !reflect.DeepEqual(runner.ran, []string{"install"}) {
		t.Fatalf("ran = %v", runner.ran)
	}

	lines := buf.Snapshot()
	if lines[0] != "start" || !strings.Contains(strings.Join(lines, "\n"), "ran install") {
		t.Fatalf("output = %q", lines)
	}
}

func TestRunFailsOnRequiredStage(t *testing.T) {
	runner := &fakeRunner{codes: map[string]int{"bad": 1}}

	stages := []Stage{
		{State: InstallationStarted, Commands: []supervisor.Command{{Path: "bad"}}, Optional: true},
		{State: InstallingWSL, Commands: []supervisor.Command{{Path: "bad"}}},
		{State: InstallingSingularity, Commands: []supervisor.Command{{Path: "unreached"}}},
	}

	var states []State

	err := NewChecker(runner, nil).Run(context.Background(), stages, termrender.NewBuffer(), collect(&states))
	if !errors.Is(err, ErrStageFailed) {
		t.Fatalf("Run() error = %v, want ErrStageFailed", err)
	}

	want := []State{InstallationStarted, InstallationFailed}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
}

func TestPlanWindowsMissingDistribution(t *testing.T) {
	opts := PlanOptions{
		GOOS:            "windows",
		Distribution:    "ColonyWSL",
		DistributionTar: filepath.Join(t.TempDir(), "missing.tar"),
		InstallDir:      t.TempDir(),
		Exec: func(_ context.Context, cmd supervisor.Command) (supervisor.Result, error) {
			if reflect.DeepEqual(cmd.Args, []string{"-l"}) {
				return supervisor.Result{Stdout: []byte("Windows Subsystem for Linux Distributions:\nUbuntu-22.04 (Default)\n")}, nil
			}

			return supervisor.Result{}, nil
		},
	}

	var states []State

	err := NewChecker(&fakeRunner{}, nil).Run(context.Background(), Plan(opts), termrender.NewBuffer(), collect(&states))
	if !errors.Is(err, ErrStageFailed) {
		t.Fatalf("Run() error = %v, want ErrStageFailed", err)
	}

	want := []State{InstallationStarted, InstallingWSL, DistributionWasNotFound, DistributionNeedsToBeSelected, InstallationFailed}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
}

func TestPlanLinux(t *testing.T) {
	querier := singularity.Querier{Exec: func(context.Context, supervisor.Command) (supervisor.Result, error) {
		return supervisor.Result{Stdout: []byte("singularity-ce version 3.11.4")}, nil
	}}

	runner := &fakeRunner{}

	var states []State
	if err := NewChecker(runner, nil).Run(context.Background(), Plan(PlanOptions{GOOS: "linux", Querier: querier}), termrender.NewBuffer(), collect(&states)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []State{InstallationStarted, InstallingSingularity, InstallationEnded}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("states = %v, want %v", states, want)
	}

	if len(runner.ran) != 0 {
		t.Fatalf("ran = %v, want probe to skip the install command", runner.ran)
	}
}

func TestHasDistribution(t *testing.T) {
	tests := []struct {
		name    string
		listing string
		want    bool
	}{
		{"listed", "Windows Subsystem for Linux Distributions:\nColonyWSL\nUbuntu\n", true},
		{"utf16", "W\x00i\x00n\x00\n\x00C\x00o\x00l\x00o\x00n\x00y\x00W\x00S\x00L\x00\n\x00", true},
		{"absent", "Windows Subsystem for Linux Distributions:\nUbuntu\n", false},
		{"no default", "DEFAULT_DISTRO_NOT_FOUND", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasDistribution(tt.listing, "ColonyWSL"); got != tt.want {
				t.Fatalf("HasDistribution() = %v, want %v", got, tt.want)
			}
		})
	}
}
