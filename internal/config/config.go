package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Providers understood by the inference package.
const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Storage backends understood by the kv layer.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
)

// Config holds application configuration.
type Config struct {
	// Provider selects the inference transport: "anthropic" or "ollama".
	Provider string `json:"provider,omitempty" env:"SCREENFLOW_PROVIDER"`

	// Model is the provider model identifier.
	Model string `json:"model,omitempty" env:"SCREENFLOW_MODEL"`

	// MaxTokens caps the analysis length requested from the provider.
	MaxTokens int `json:"max_tokens,omitempty" env:"SCREENFLOW_MAX_TOKENS"`

	// OllamaURL is the base URL of a local Ollama server.
	OllamaURL string `json:"ollama_url,omitempty" env:"SCREENFLOW_OLLAMA_URL"`

	// Storage selects where history and prompts persist: "sqlite" or "file".
	Storage string `json:"storage,omitempty" env:"SCREENFLOW_STORAGE"`

	// MaxUploadBytes limits multipart uploads in the web UI.
	MaxUploadBytes int64 `json:"max_upload_bytes,omitempty" env:"SCREENFLOW_MAX_UPLOAD_BYTES"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" env:"SCREENFLOW_LOG_LEVEL"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.screenflow/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known types: "history", "prompt", "screens".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:       ProviderAnthropic,
		Model:          "claude-3-5-sonnet-20241022",
		MaxTokens:      4000,
		OllamaURL:      "http://localhost:11434",
		Storage:        StorageSQLite,
		MaxUploadBytes: 10 << 20,
		LogLevel:       "info",
	}
}

// Load loads configuration from baseDir/config.json and applies
// SCREENFLOW_* environment overrides on top.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	fileCfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	envCfg := &Config{}
	if err := env.Parse(envCfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg := Merge(Merge(DefaultConfig(), fileCfg), envCfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown enum values.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	switch c.Storage {
	case StorageSQLite, StorageFile:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Provider = firstString(overlay.Provider, base.Provider)
	result.Model = firstString(overlay.Model, base.Model)
	result.OllamaURL = firstString(overlay.OllamaURL, base.OllamaURL)
	result.Storage = firstString(overlay.Storage, base.Storage)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)

	result.MaxTokens = overlay.MaxTokens
	if result.MaxTokens == 0 {
		result.MaxTokens = base.MaxTokens
	}

	result.MaxUploadBytes = overlay.MaxUploadBytes
	if result.MaxUploadBytes == 0 {
		result.MaxUploadBytes = base.MaxUploadBytes
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstString(overlay, base string) string {
	if s := strings.TrimSpace(overlay); s != "" {
		return s
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
