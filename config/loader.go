package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	maxConfigFileSize = 1 << 20
	maxJSONDepth      = 20
)

// Loader loads configuration from layered JSON files with environment
// overrides applied last.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader with no layers.
func NewLoader() *Loader {
	return &Loader{envPrefix: "CUBESTREAM"}
}

// AddLayer appends a configuration file. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation turns on validation of the merged result.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads a single file over the defaults.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, file layers, and environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = l.mergeFromMap(cfg, raw)
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	l.parseDurations(raw)
	return raw, nil
}

// mergeFromMap overlays a raw JSON map onto a config, touching only the
// keys present in the map.
func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if override == nil {
		return base
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	merged := deepMergeMaps(baseMap, override)
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return base
	}
	var cfg Config
	if err := json.Unmarshal(mergedJSON, &cfg); err != nil {
		return base
	}
	return &cfg
}

func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// parseDurations converts duration strings to nanoseconds so the standard
// json unmarshaler accepts them.
func (l *Loader) parseDurations(raw map[string]any) {
	if server, ok := raw["server"].(map[string]any); ok {
		for _, key := range []string{"read_timeout", "write_timeout", "idle_timeout"} {
			parseDurationKey(server, key)
		}
	}
	if nats, ok := raw["nats"].(map[string]any); ok {
		parseDurationKey(nats, "reconnect_wait")
	}
}

func parseDurationKey(m map[string]any, key string) {
	if s, ok := m[key].(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			m[key] = d.Nanoseconds()
		}
	}
}

func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_LISTEN_ADDR"); val != "" {
		cfg.Server.ListenAddr = val
	}
	if val := os.Getenv(l.envPrefix + "_METRICS_ADDR"); val != "" {
		cfg.Server.MetricsAddr = val
	}
	if val := os.Getenv(l.envPrefix + "_DATA_ROOT"); val != "" {
		cfg.Data.Root = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.NATS.Enabled = b
		}
	}
	if val := os.Getenv(l.envPrefix + "_NATS_URLS"); val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val := os.Getenv(l.envPrefix + "_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
	if val := os.Getenv(l.envPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv(l.envPrefix + "_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
}

// safeReadFile reads a config file after rejecting suspicious paths and
// oversized files.
func safeReadFile(path string) ([]byte, error) {
	if strings.Contains(path, "..") {
		return nil, fmt.Errorf("config path %q must not contain '..'", path)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %q is a directory", clean)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %q exceeds %d bytes", clean, maxConfigFileSize)
	}
	return os.ReadFile(clean)
}

// validateJSONDepth rejects pathologically nested JSON.
func validateJSONDepth(data []byte) error {
	depth := 0
	inString := false
	escaped := false
	for _, b := range data {
		if escaped {
			escaped = false
			continue
		}
		switch b {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
				if depth > maxJSONDepth {
					return fmt.Errorf("nesting exceeds %d levels", maxJSONDepth)
				}
			}
		case '}', ']':
			if !inString {
				depth--
			}
		}
	}
	return nil
}
