package helperserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colony-launcher/colony/internal/supervisor"
)

type fakePicker struct {
	file  string
	files []string
	save  string
	err   error
}

func (f fakePicker) PickFile(context.Context, string) (string, bool, error) {
	return f.file, f.file != "", f.err
}

func (f fakePicker) PickFiles(context.Context, string) ([]string, bool, error) {
	return f.files, len(f.files) > 0, f.err
}

func (f fakePicker) PickDirectory(ctx context.Context, dir string) (string, bool, error) {
	return f.PickFile(ctx, dir)
}

func (f fakePicker) PickDirectories(ctx context.Context, dir string) ([]string, bool, error) {
	return f.PickFiles(ctx, dir)
}

func (f fakePicker) SaveFile(context.Context, string, string) (string, bool, error) {
	return f.save, f.save != "", f.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))

	return rec
}

func TestBanner(t *testing.T) {
	h := New(Options{}).Handler()

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, banner, rec.Body.String())
}

func TestChooseFileTranslatesPath(t *testing.T) {
	h := New(Options{
		Picker:    fakePicker{file: `C:\Data\a.img`},
		Translate: func(p string) string { return "translated:" + p },
	}).Handler()

	for _, path := range []string{"/choose-file", "/choosefile", "/choose-file/r1/input", "/choose-directory"} {
		rec := get(t, h, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, `translated:C:\Data\a.img`, rec.Body.String(), path)
	}
}

func TestChooseCancelledIsEmpty(t *testing.T) {
	h := New(Options{}).Handler()

	rec := get(t, h, "/choose-file")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = get(t, h, "/choose-files/rid/name")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestChooseFilesReturnsList(t *testing.T) {
	h := New(Options{Picker: fakePicker{files: []string{"/a", "/b"}}}).Handler()

	rec := get(t, h, "/choosedirectories")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"/a", "/b"}, got)
}

func TestDialogErrorIs500(t *testing.T) {
	h := New(Options{Picker: fakePicker{err: assert.AnError}}).Handler()

	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/choose-file").Code)
}

func TestCORS(t *testing.T) {
	h := New(Options{FrontendPort: 9283}).Handler()

	t.Run("preflight from front end", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/config/json", http.NoBody)
		req.Header.Set("Origin", "http://localhost:9283")
		req.Header.Set("Access-Control-Request-Method", "POST")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:9283", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "300", rec.Header().Get("Access-Control-Max-Age"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
	})

	t.Run("preflight from elsewhere", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/config/json", http.NoBody)
		req.Header.Set("Origin", "http://evil.example")
		req.Header.Set("Access-Control-Request-Method", "POST")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("simple request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("Origin", "http://127.0.0.1:9283")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http://127.0.0.1:9283", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSaveConfiguration(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out", "cfg.json")

	var saved []string

	h := New(Options{
		Picker:          fakePicker{save: target},
		OnConfiguration: func(p string) { saved = append(saved, p) },
	}).Handler()

	body := `{"input_path":"/mnt/c/data.txt"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/config/json", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{target}, saved)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(data))
}

func TestSaveConfigurationCancelled(t *testing.T) {
	called := false
	h := New(Options{OnConfiguration: func(string) { called = true }}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/config/json", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
}

func TestSaveConfigurationLimits(t *testing.T) {
	h := New(Options{BodyLimit: 16, Picker: fakePicker{save: filepath.Join(t.TempDir(), "c.json")}}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/config/json",
		strings.NewReader(`{"k":"`+strings.Repeat("x", 64)+`"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/config/json", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	return port
}

func TestStartReplacesPreviousInstance(t *testing.T) {
	ctx := context.Background()
	opts := Options{Port: freePort(t), FrontendPort: freePort(t)}

	first := New(opts)
	port, err := first.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, opts.Port, port)

	second := New(opts)
	port, err = second.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, opts.Port, port)

	t.Cleanup(func() { _ = second.Stop(ctx) })

	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("first instance did not stop")
	}

	resp, err := http.Get("http://" + second.Addr().String() + "/")
	require.NoError(t, err)

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, banner, string(data))

	_, err = second.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestZenityPicker(t *testing.T) {
	var got supervisor.Command

	z := ZenityPicker{Exec: func(_ context.Context, c supervisor.Command) (supervisor.Result, error) {
		got = c
		return supervisor.Result{Stdout: []byte("/a\n/b\n")}, nil
	}}

	paths, ok, err := z.PickFiles(context.Background(), "/home")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"/a", "/b"}, paths)
	assert.Equal(t, "zenity", got.Path)
	assert.Contains(t, got.Args, "--multiple")
	assert.Contains(t, got.Args, "--filename=/home/")

	z.Exec = func(context.Context, supervisor.Command) (supervisor.Result, error) {
		return supervisor.Result{ExitCode: 1}, nil
	}

	path, ok, err := z.PickFile(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, path)
}
