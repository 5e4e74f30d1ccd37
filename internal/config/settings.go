// Package config reads the relayserve environment-variable settings layer.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Settings is the immutable configuration snapshot consumed at engine
// construction. It is read once from the environment and shared freely
// afterward.
type Settings struct {
	Port            int
	ModelID         string
	Backends        []string
	BatchSize       int
	BatchWaitMs     int
	MetricsMaxItems int
	TotalLayers     int
	PrettyJSON      bool
	PrettyDefault   bool
	LogLevel        string
}

// FromEnv builds a Settings from the process environment, applying the
// same defaults as relayserve's Python predecessor.
func FromEnv() Settings {
	return Settings{
		Port:            envInt("PORT", 8080),
		ModelID:         envString("MODEL_ID", "relay-gguf"),
		Backends:        envList("BACKENDS"),
		BatchSize:       envInt("BATCH_SIZE", 4),
		BatchWaitMs:     envInt("BATCH_WAIT_MS", 10),
		MetricsMaxItems: envInt("METRICS_MAX_ITEMS", 1000),
		TotalLayers:     envInt("TOTAL_LAYERS", 32),
		PrettyJSON:      envBool("PRETTY_JSON", false),
		PrettyDefault:   envBool("PRETTY_DEFAULT", false),
		LogLevel:        envString("LOG_LEVEL", "info"),
	}
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v == "1"
}

func envList(name string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
