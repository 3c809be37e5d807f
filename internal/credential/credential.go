// Package credential stores the opaque API key passed through to the
// inference provider.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// EnvVar is consulted when no key has been saved.
const EnvVar = "ANTHROPIC_API_KEY"

// FileName is the credential file under the base directory.
const FileName = "credentials.json"

// Store loads and saves the credential.
type Store interface {
	// Load returns the credential and whether one is configured.
	Load(ctx context.Context) (string, bool, error)
	Save(ctx context.Context, key string) error
}

type fileBlob struct {
	APIKey string `json:"api_key"`
}

// FileStore keeps the key in an owner-only JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

// NewFileStore returns a FileStore rooted at baseDir.
func NewFileStore(baseDir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: filepath.Join(baseDir, FileName), log: logger}
}

// Load reads the saved key, falling back to the ANTHROPIC_API_KEY
// environment variable. An unreadable file counts as no key.
func (s *FileStore) Load(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		var blob fileBlob
		if err := json.Unmarshal(data, &blob); err != nil {
			s.log.Warn("ignoring unreadable credential file", "path", s.path, "error", err)
		} else if key := strings.TrimSpace(blob.APIKey); key != "" {
			return key, true, nil
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		s.log.Warn("credential file read failed", "path", s.path, "error", err)
	}

	if key := strings.TrimSpace(os.Getenv(EnvVar)); key != "" {
		return key, true, nil
	}
	return "", false, nil
}

// Save writes key atomically with 0600 permissions. An empty key clears
// the saved credential.
func (s *FileStore) Save(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(fileBlob{APIKey: strings.TrimSpace(key)}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename credential: %w", err)
	}
	return nil
}

// Static is a fixed credential, used by tests and one-shot commands.
type Static string

func (k Static) Load(context.Context) (string, bool, error) {
	return string(k), strings.TrimSpace(string(k)) != "", nil
}

func (Static) Save(context.Context, string) error {
	return errors.New("static credential is read-only")
}

// Mask renders key for display, keeping the last four characters.
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}
