package transcript

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecorderWriteAndRead(t *testing.T) {
	tmp := t.TempDir()

	rec, err := NewRecorder(Options{JobID: "job-1", Dir: tmp, Command: []string{"singularity", "run"}, Container: "/c.img"})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	if _, err := rec.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if _, err := rec.Write([]byte("wor")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := rec.Finish(0); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	out, err := ReadOutput(tmp, "job-1")
	if err != nil {
		t.Fatalf("ReadOutput() error = %v", err)
	}

	if string(out) != "hello\nwor" {
		t.Fatalf("ReadOutput() = %q", out)
	}

	list, err := List(tmp)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(list) != 1 || list[0].JobID != "job-1" || list[0].Container != "/c.img" {
		t.Fatalf("List() = %#v", list)
	}

	if list[0].ExitCode == nil || *list[0].ExitCode != 0 {
		t.Fatalf("ExitCode = %v, want 0", list[0].ExitCode)
	}

	if _, err := rec.Write([]byte("late")); err == nil {
		t.Fatal("Write() after Close expected error")
	}
}

func TestReadChunksFallsBackToLiveFile(t *testing.T) {
	tmp := t.TempDir()

	rec, err := NewRecorder(Options{JobID: "crashed", Dir: tmp})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	if _, err := rec.Write([]byte("partial")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// Simulate a crash: the gzip stream was never closed.
	if err := os.Remove(filepath.Join(tmp, "crashed", chunksFileName)); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	out, err := ReadOutput(tmp, "crashed")
	if err != nil {
		t.Fatalf("ReadOutput() error = %v", err)
	}

	if string(out) != "partial" {
		t.Fatalf("ReadOutput() = %q, want partial", out)
	}
}

func TestPruneOlderThan(t *testing.T) {
	tmp := t.TempDir()

	for _, id := range []string{"old", "new"} {
		rec, err := NewRecorder(Options{JobID: id, Dir: tmp})
		if err != nil {
			t.Fatalf("NewRecorder(%s) error = %v", id, err)
		}

		if err := rec.Close(); err != nil {
			t.Fatalf("Close(%s) error = %v", id, err)
		}
	}

	removed, err := PruneOlderThan(tmp, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan() error = %v", err)
	}

	if removed != 0 {
		t.Fatalf("PruneOlderThan(past) removed = %d, want 0", removed)
	}

	removed, err = PruneOlderThan(tmp, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan() error = %v", err)
	}

	if removed != 2 {
		t.Fatalf("PruneOlderThan(future) removed = %d, want 2", removed)
	}
}

func TestInvalidJobIDRejected(t *testing.T) {
	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		if _, err := NewRecorder(Options{JobID: id, Dir: t.TempDir()}); err == nil {
			t.Fatalf("NewRecorder(%q) expected error", id)
		}
	}
}
