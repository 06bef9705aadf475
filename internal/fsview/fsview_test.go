package fsview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/colony-launcher/colony/internal/supervisor"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestListLocal(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "b.txt"), "b")
	mustWrite(t, filepath.Join(dir, "a.json"), "a")
	mustWrite(t, filepath.Join(dir, "sub", "x"), "x")

	if runtime.GOOS != "windows" {
		if err := os.Symlink(filepath.Join(dir, "sub"), filepath.Join(dir, "link")); err != nil {
			t.Fatalf("Symlink() error = %v", err)
		}
	}

	got, err := ListLocal(dir)
	if err != nil {
		t.Fatalf("ListLocal() error = %v", err)
	}

	wantDirs := []string{"sub"}
	if runtime.GOOS != "windows" {
		wantDirs = []string{"link", "sub"}
	}

	if !reflect.DeepEqual(got.Files, []string{"a.json", "b.txt"}) || !reflect.DeepEqual(got.Directories, wantDirs) {
		t.Fatalf("ListLocal() = %+v", got)
	}

	filtered, err := Filter(got, "*.json")
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}

	if !reflect.DeepEqual(filtered.Files, []string{"a.json"}) || len(filtered.Directories) != 0 {
		t.Fatalf("Filter() = %+v", filtered)
	}
}

func TestListLocalMissing(t *testing.T) {
	_, err := ListLocal(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("ListLocal() error = %v, want ErrUnreadable", err)
	}
}

func TestParseLS(t *testing.T) {
	names := "\"bin\"\n\"data.sif\"\n\"a -> b\"\n\"lib\"\n\"run.sh\"\n"
	meta := "total 12\n" +
		"lrwxrwxrwx 1 root 7 Jan 1 00:00 \"bin\" -> \"usr/bin\"/\n" +
		"-rw-r--r-- 1 root 4096 Jan 1 00:00 \"data.sif\"\n" +
		"-rw-r--r-- 1 root 10 Jan 1 00:00 \"a -> b\"\n" +
		"drwxr-xr-x 2 root 4096 Jan 1 00:00 \"lib\"/\n" +
		"-rwxr-xr-x 1 root 10 Jan 1 00:00 \"run.sh\"*\n"

	got, err := ParseLS("/", names, meta)
	if err != nil {
		t.Fatalf("ParseLS() error = %v", err)
	}

	want := Listing{Root: "/", Files: []string{"a -> b", "data.sif", "run.sh"}, Directories: []string{"bin", "lib"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseLS() = %+v, want %+v", got, want)
	}
}

func TestParseLSMismatch(t *testing.T) {
	tests := []struct {
		name  string
		names string
		meta  string
		want  error
	}{
		{"no output", "", "", ErrUnreadable},
		{"counts differ", "\"a\"\n\"b\"\n", "total 0\n-rw \"a\"\n", ErrListingMismatch},
		{"unparseable", "\"a\"\n", "total 0\n-rw \"zzz\"\n", ErrListingMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseLS("/x", tt.names, tt.meta); !errors.Is(err, tt.want) {
				t.Fatalf("ParseLS() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseLSEmptyDirectory(t *testing.T) {
	got, err := ParseLS("/empty", "", "total 0\n")
	if err != nil {
		t.Fatalf("ParseLS() error = %v", err)
	}

	if len(got.Files) != 0 || len(got.Directories) != 0 {
		t.Fatalf("ParseLS() = %+v", got)
	}
}

func TestListerSubsystemAndRemote(t *testing.T) {
	var calls [][]string

	l := Lister{Exec: func(_ context.Context, cmd supervisor.Command) (supervisor.Result, error) {
		calls = append(calls, cmd.Argv())
		if cmd.Args[0] == "-1Q" {
			return supervisor.Result{Stdout: []byte("\"x\"\n")}, nil
		}

		return supervisor.Result{Stdout: []byte("total 0\ndrwx \"x\"/\n")}, nil
	}}
	l.Host.Wrapper = nil

	got, err := l.List(context.Background(), Filesystem{Kind: Subsystem}, "/home")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if !reflect.DeepEqual(got.Directories, []string{"x"}) {
		t.Fatalf("List() = %+v", got)
	}

	if len(calls) != 2 || calls[0][0] != "ls" || calls[1][1] != "-1lQocF" {
		t.Fatalf("calls = %v", calls)
	}

	if _, err := l.List(context.Background(), Filesystem{Kind: Remote, Server: "hpc"}, "/"); !errors.Is(err, ErrRemoteUnsupported) {
		t.Fatalf("List(remote) error = %v", err)
	}
}

func TestCopyMoveDelete(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	mustWrite(t, filepath.Join(src, "a.txt"), "a")
	mustWrite(t, filepath.Join(src, "nested", "b.txt"), "b")

	copied, err := Copy(src, filepath.Join(dir, "copy"))
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}

	if data, err := os.ReadFile(filepath.Join(copied, "nested", "b.txt")); err != nil || string(data) != "b" {
		t.Fatalf("copied file = %q, %v", data, err)
	}

	single, err := Copy(filepath.Join(src, "a.txt"), filepath.Join(dir, "out", "a.txt"))
	if err != nil {
		t.Fatalf("Copy(file) error = %v", err)
	}

	if _, err := Copy(filepath.Join(src, "a.txt"), single); err == nil {
		t.Fatal("Copy() over existing file error = nil")
	}

	moved, err := Move(copied, filepath.Join(dir, "moved"))
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	if _, err := os.Stat(copied); !os.IsNotExist(err) {
		t.Fatalf("source still exists after Move(): %v", err)
	}

	meta, err := Stat(moved)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}

	if !meta.IsDir {
		t.Fatalf("Stat() = %+v, want directory", meta)
	}

	if err := Delete(moved); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if err := Delete(moved); err == nil {
		t.Fatal("Delete() of missing path error = nil")
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.UserAgent(), "colony/") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if user, pass, ok := r.BasicAuth(); !ok || user != "u" || pass != "p" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "file.bin")

	if err := Download(context.Background(), srv.Client(), srv.URL, dst, &Credentials{Username: "u", Password: "p"}); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	if data, _ := os.ReadFile(dst); string(data) != "payload" {
		t.Fatalf("downloaded = %q", data)
	}

	failed := filepath.Join(t.TempDir(), "denied.bin")
	if err := Download(context.Background(), srv.Client(), srv.URL, failed, nil); err == nil {
		t.Fatal("Download() without auth error = nil")
	}

	if _, err := os.Stat(failed); !os.IsNotExist(err) {
		t.Fatalf("failed download left a file: %v", err)
	}
}
