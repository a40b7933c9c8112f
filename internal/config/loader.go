package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"titanflow/internal/domain"
)

// EnvPath overrides the config file location.
const EnvPath = "TITANFLOW_CONFIG"

// DefaultPath is used when EnvPath is unset.
const DefaultPath = "titanflow.json"

// Defaults applied by ApplyDefaults to zero-valued fields.
const (
	DefaultPort          = 8080
	DefaultProvider      = "gemini"
	DefaultMaxIterations = 5
	DefaultSanitizer     = "greedy"
	DefaultToolsMode     = "pool"
	DefaultToolsTimeout  = 10
	DefaultPoolSize      = 2
	DefaultStoreURL      = "file:pricing.db"
	DefaultLogFormat     = "text"
	DefaultLogLevel      = "info"
)

// marshalIndent and writeFile are used by WriteDefault and Save; tests may replace to force errors.
var (
	marshalIndent = json.MarshalIndent
	writeFile     = os.WriteFile
)

// Path returns the config path from EnvPath, or DefaultPath.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Default returns a Config with every default applied.
func Default() *domain.Config {
	var c domain.Config
	ApplyDefaults(&c)
	return &c
}

// ApplyDefaults fills zero-valued fields of cfg. Explicit values are kept.
func ApplyDefaults(cfg *domain.Config) {
	if cfg == nil {
		return
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Engine.Provider == "" {
		cfg.Engine.Provider = DefaultProvider
	}
	if cfg.Engine.MaxIterations <= 0 {
		cfg.Engine.MaxIterations = DefaultMaxIterations
	}
	if cfg.Engine.Sanitizer == "" {
		cfg.Engine.Sanitizer = DefaultSanitizer
	}
	if cfg.Tools.Mode == "" {
		cfg.Tools.Mode = DefaultToolsMode
	}
	if cfg.Tools.TimeoutSeconds <= 0 {
		cfg.Tools.TimeoutSeconds = DefaultToolsTimeout
	}
	if cfg.Tools.PoolSize <= 0 {
		cfg.Tools.PoolSize = DefaultPoolSize
	}
	if cfg.Store.URL == "" {
		cfg.Store.URL = DefaultStoreURL
	}
	if cfg.Infra.LogFormat == "" {
		cfg.Infra.LogFormat = DefaultLogFormat
	}
	if cfg.Infra.LogLevel == "" {
		cfg.Infra.LogLevel = DefaultLogLevel
	}
}

// WriteDefault writes the default Config to path. Parent directories are not created.
func WriteDefault(path string) error {
	data, err := encode(path, Default())
	if err != nil {
		return err
	}
	return writeFile(path, data, 0644)
}

// Load reads a JSON or YAML config (chosen by extension), applies defaults
// and cleans path fields. A missing file is an error; use LoadOrDefault to
// tolerate it.
func Load(path string) (*domain.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	var c domain.Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &c)
	} else {
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("config parse %s: %w", filepath.Base(path), err)
	}
	ApplyDefaults(&c)
	CleanPaths(&c)
	return &c, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*domain.Config, error) {
	cfg, err := Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// CleanPaths applies filepath.Clean to all path fields in cfg to prevent path traversal.
func CleanPaths(cfg *domain.Config) {
	if cfg == nil {
		return
	}
	if cfg.Inbox.Dir != "" {
		cfg.Inbox.Dir = filepath.Clean(cfg.Inbox.Dir)
	}
	if cfg.Engine.ScriptPath != "" {
		cfg.Engine.ScriptPath = filepath.Clean(cfg.Engine.ScriptPath)
	}
}

// Save writes cfg to path as JSON, or YAML for .yaml/.yml paths.
func Save(path string, cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("config save: nil config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config save mkdir: %w", err)
	}
	data, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("config save: %w", err)
	}
	if err := writeFile(path, data, 0644); err != nil {
		return fmt.Errorf("config save write: %w", err)
	}
	return nil
}

func encode(path string, cfg *domain.Config) ([]byte, error) {
	if isYAML(path) {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("yaml marshal: %w", err)
		}
		return data, nil
	}
	data, err := marshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	return data, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
