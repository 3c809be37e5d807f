package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.Provider != def.Provider {
		t.Fatalf("Provider = %q, want %q", cfg.Provider, def.Provider)
	}
	if cfg.MaxTokens != def.MaxTokens {
		t.Fatalf("MaxTokens = %d, want %d", cfg.MaxTokens, def.MaxTokens)
	}
	if cfg.Storage != StorageSQLite {
		t.Fatalf("Storage = %q, want %q", cfg.Storage, StorageSQLite)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"max_tokens": 500, "storage": "file"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxTokens != 500 {
		t.Fatalf("MaxTokens = %d, want %d", cfg.MaxTokens, 500)
	}
	if cfg.Storage != StorageFile {
		t.Fatalf("Storage = %q, want %q", cfg.Storage, StorageFile)
	}
	if cfg.Model != DefaultConfig().Model {
		t.Fatalf("Model = %q, want default", cfg.Model)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"provider": "anthropic", "model": "from-file"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("SCREENFLOW_PROVIDER", "ollama")
	t.Setenv("SCREENFLOW_MAX_TOKENS", "1234")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider != ProviderOllama {
		t.Fatalf("Provider = %q, want %q", cfg.Provider, ProviderOllama)
	}
	if cfg.MaxTokens != 1234 {
		t.Fatalf("MaxTokens = %d, want 1234", cfg.MaxTokens)
	}
	if cfg.Model != "from-file" {
		t.Fatalf("Model = %q, want %q", cfg.Model, "from-file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_UnknownProvider(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"provider": "carrier-pigeon"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error for unknown provider")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	content := `{"disabled_tools": ["history_clear", " history_clear ", "prompt_delete"]}`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools = %v, want 2 entries", cfg.DisabledTools)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{Model: "a", MaxTokens: 100}
	overlay := &Config{Model: "b"}

	result := Merge(base, overlay)
	if result.Model != "b" {
		t.Errorf("Model = %q, want %q", result.Model, "b")
	}
	if result.MaxTokens != 100 {
		t.Errorf("MaxTokens = %d, want 100", result.MaxTokens)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{AllowUnsafePaths: true}, &Config{})
	if !result.AllowUnsafePaths {
		t.Errorf("AllowUnsafePaths = false, want true")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{AllowedPaths: []string{"/a", "/b"}}
	overlay := &Config{AllowedPaths: []string{"/b", "/c"}}

	result := Merge(base, overlay)
	want := []string{"/a", "/b", "/c"}
	if len(result.AllowedPaths) != len(want) {
		t.Fatalf("AllowedPaths = %v, want %v", result.AllowedPaths, want)
	}
	for i := range want {
		if result.AllowedPaths[i] != want[i] {
			t.Errorf("AllowedPaths[%d] = %q, want %q", i, result.AllowedPaths[i], want[i])
		}
	}
}
