/// Package router implements the alternative multi-backend router:
// YAML-configured, type-tagged backend selection, independent of the
// single-dispatcher BACKENDS env var path.
package router

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend is the capability set every router-managed backend implements:
// a unary reply and a lazy streaming sequence of content deltas.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string) (<-chan string, <-chan error)
}

// BackendConfig is one entry under the `backends:` map in config.yaml.
type BackendConfig struct {
	Type string `yaml:"type"`
	URL  string `yaml:"url"`
}

// FileConfig is the top-level shape of config.yaml.
type FileConfig struct {
	Backends       map[string]BackendConfig `yaml:"backends"`
	DefaultBackend string                   `yaml:"default_backend"`
}

// LoadConfig reads and parses path. A missing file is not an error — it
// returns (nil, nil), matching the Python original's "router with no
// config is simply empty" behavior.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("router: reading %s: %w", path, err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("router: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// BuildBackends constructs one Backend per entry in cfg.Backends whose
// type is recognized and whose url is non-empty. Unrecognized types are
// silently skipped, matching the Python original.
func BuildBackends(cfg *FileConfig) map[string]Backend {
	backends := make(map[string]Backend)
	for name, bc := range cfg.Backends {
		url := strings.TrimSpace(bc.URL)
		if url == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(bc.Type)) {
		case "local":
			backends[name] = newHTTPBackend(url)
		case "vllm":
			backends[name] = newHTTPBackend(url)
		}
	}
	return backends
}

// Router picks a Backend by model name, falling back to the configured
// default or the first backend found.
type Router struct {
	backends   map[string]Backend
	defaultKey string
}

// New constructs a Router from cfg. A nil cfg yields a router with no
// backends (HasBackends() == false).
func New(cfg *FileConfig) *Router {
	if cfg == nil {
		return &Router{backends: map[string]Backend{}}
	}
	backends := BuildBackends(cfg)
	defaultKey := strings.TrimSpace(cfg.DefaultBackend)
	if defaultKey != "" {
		if _, ok := backends[defaultKey]; !ok {
			defaultKey = firstKey(backends)
		}
	} else {
		defaultKey = firstKey(backends)
	}
	return &Router{backends: backends, defaultKey: defaultKey}
}

// HasBackends reports whether any backend was configured.
func (r *Router) HasBackends() bool {
	return len(r.backends) > 0
}

// GetBackend returns the backend for model, falling back to the default
// backend, then to any configured backend, in that order. Returns
// (nil, false) if none are configured.
func (r *Router) GetBackend(model string) (Backend, bool) {
	if len(r.backends) == 0 {
		return nil, false
	}
	model = strings.TrimSpace(model)
	if model != "" {
		if b, ok := r.backends[model]; ok {
			return b, true
		}
	}
	if r.defaultKey != "" {
		if b, ok := r.backends[r.defaultKey]; ok {
			return b, true
		}
	}
	for _, b := range r.backends {
		return b, true
	}
	return nil, false
}

func firstKey(m map[string]Backend) string {
	for k := range m {
		return k
	}
	return ""
}
