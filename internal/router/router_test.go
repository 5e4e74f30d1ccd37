package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFile_ReturnsNilNil(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	require.Nil(t, cfg)
}

func TestLoadConfig_ParsesBackendsAndDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_backend: a
backends:
  a:
    type: local
    url: http://localhost:9001
  b:
    type: vllm
    url: http://localhost:9002
`), 0o644))

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	require.Equal(t, "a", cfg.DefaultBackend)
	require.Len(t, cfg.Backends, 2)
	require.Equal(t, "local", cfg.Backends["a"].Type)
}

func TestNew_NilConfig_HasNoBackends(t *testing.T) {
	r := New(nil)

	require.False(t, r.HasBackends())
	_, ok := r.GetBackend("anything")
	require.False(t, ok)
}

func TestBuildBackends_SkipsUnrecognizedTypeAndBlankURL(t *testing.T) {
	cfg := &FileConfig{Backends: map[string]BackendConfig{
		"a": {Type: "local", URL: "http://x"},
		"b": {Type: "modal", URL: "http://y"},
		"c": {Type: "local", URL: ""},
	}}

	backends := BuildBackends(cfg)

	require.Len(t, backends, 1)
	require.Contains(t, backends, "a")
}

func TestGetBackend_FallsBackToDefaultThenAny(t *testing.T) {
	cfg := &FileConfig{
		DefaultBackend: "a",
		Backends: map[string]BackendConfig{
			"a": {Type: "local", URL: "http://x"},
			"b": {Type: "local", URL: "http://y"},
		},
	}
	r := New(cfg)

	b, ok := r.GetBackend("unknown-model")

	require.True(t, ok)
	require.NotNil(t, b)
}

func TestGetBackend_ExactModelMatchTakesPriority(t *testing.T) {
	cfg := &FileConfig{
		DefaultBackend: "a",
		Backends: map[string]BackendConfig{
			"a": {Type: "local", URL: "http://x"},
			"b": {Type: "local", URL: "http://y"},
		},
	}
	r := New(cfg)

	got, ok := r.GetBackend("b")

	require.True(t, ok)
	require.Same(t, r.backends["b"], got)
}

func TestHTTPBackend_Generate_ExtractsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" hi there "}}]}`))
	}))
	defer srv.Close()
	b := newHTTPBackend(srv.URL)

	got, err := b.Generate(context.Background(), "hello")

	require.NoError(t, err)
	require.Equal(t, "hi there", got)
}

func TestHTTPBackend_GenerateStream_YieldsContentDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n"))
		_, _ = w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()
	b := newHTTPBackend(srv.URL)

	contents, errs := b.GenerateStream(context.Background(), "hi")

	var got []string
	for c := range contents {
		got = append(got, c)
	}
	for e := range errs {
		require.NoError(t, e)
	}
	require.Equal(t, []string{"He", "llo"}, got)
}
