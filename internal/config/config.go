// Package config provides configuration loading and structs for kioku.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Skills    SkillsConfig    `yaml:"skills"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
	StatePath string          `yaml:"state_path"`
	BatchSize int             `yaml:"batch_size"`
}

// SessionsConfig holds transcript ingestion settings. Chunking is counted in
// messages.
type SessionsConfig struct {
	Dir          string `yaml:"dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// WorkspaceConfig holds file tree ingestion settings. Chunking is counted in
// lines.
type WorkspaceConfig struct {
	Dir           string   `yaml:"dir"`
	Extensions    []string `yaml:"extensions"`
	MaxFileSizeMB int      `yaml:"max_file_size_mb"`
	ChunkSize     int      `yaml:"chunk_size"`
	ChunkOverlap  int      `yaml:"chunk_overlap"`
}

// SkillsConfig holds skill documentation roots.
type SkillsConfig struct {
	Dirs []string `yaml:"dirs"`
}

// StoreConfig holds vector store settings.
type StoreConfig struct {
	DatabasePath   string `yaml:"database_path"`
	CollectionName string `yaml:"collection_name"`
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WatchConfig holds filesystem watch settings.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	expandAll(&cfg, filepath.Dir(path))
	return &cfg, nil
}

// LoadOrDefault behaves like Load but a missing file is not an error. The
// built-in defaults fully describe a working setup, so the config file is
// optional.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = &Config{}
	ApplyDefaults(cfg)
	expandAll(cfg, filepath.Dir(path))
	return cfg, nil
}

// Validate checks the chunking and batching invariants. Called once at
// startup; a violation is a configuration error, not a runtime condition.
func (c *Config) Validate() error {
	if err := validateChunking("sessions", c.Sessions.ChunkSize, c.Sessions.ChunkOverlap); err != nil {
		return err
	}
	if err := validateChunking("workspace", c.Workspace.ChunkSize, c.Workspace.ChunkOverlap); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	return nil
}

func validateChunking(section string, size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%s chunk_size must be positive, got %d", section, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%s chunk_overlap must satisfy 0 <= overlap < chunk_size, got overlap=%d size=%d", section, overlap, size)
	}
	return nil
}

func expandAll(cfg *Config, configDir string) {
	cfg.Sessions.Dir = expandPath(cfg.Sessions.Dir, configDir)
	cfg.Workspace.Dir = expandPath(cfg.Workspace.Dir, configDir)
	for i := range cfg.Skills.Dirs {
		cfg.Skills.Dirs[i] = expandPath(cfg.Skills.Dirs[i], configDir)
	}
	cfg.Store.DatabasePath = expandPath(cfg.Store.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.StatePath = expandPath(cfg.StatePath, configDir)
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
