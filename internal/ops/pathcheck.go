package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/hpungsan/screenflow/internal/config"
	"github.com/hpungsan/screenflow/internal/errors"
)

// PathCheckMode says whether a path will be read (import) or written (export).
type PathCheckMode int

const (
	PathCheckRead PathCheckMode = iota
	PathCheckWrite
)

// exportExt is the only extension export and import accept.
const exportExt = ".jsonl"

// ValidatePath checks an import/export path. The file must end in .jsonl,
// contain no ".." segment and sit directly inside the exports directory or
// one of cfg.AllowedPaths (subdirectories are refused, so no intermediate
// directory can be swapped for a symlink before the open). Neither the file
// nor its directory may be a symlink. With cfg.AllowUnsafePaths the
// directory rule is lifted and the symlink rule still holds.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config, env Env) error {
	abs, err := normalizeExportPath(path)
	if err != nil {
		return err
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		roots, err := exportRoots(cfg, env)
		if err != nil {
			return err
		}
		dir := filepath.Dir(abs)
		if !containsDir(roots, dir) {
			return errors.NewInvalidRequest(fmt.Sprintf(
				"file must be directly in an allowed directory (no subdirectories); allowed: %v", roots))
		}
		if isSymlink(dir) {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}
	if isSymlink(abs) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// normalizeExportPath applies the syntactic rules and returns the absolute path.
func normalizeExportPath(path string) (string, error) {
	if path == "" {
		return "", errors.NewInvalidRequest("path is required")
	}
	if hasDotDot(path) {
		return "", errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}
	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != exportExt {
		return "", errors.NewInvalidRequest("path must have " + exportExt + " extension")
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	return abs, nil
}

// exportRoots lists the directories an export file may live in: the exports
// directory and every absolute entry of allowed_paths, symlinks resolved.
func exportRoots(cfg *config.Config, env Env) ([]string, error) {
	candidates := []string{env.ExportsDir}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				candidates = append(candidates, p)
			}
		}
	}

	roots := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		abs, err := filepath.Abs(filepath.Clean(c))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if isSymlink(abs) {
			if abs, err = filepath.EvalSymlinks(abs); err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
		}
		roots = append(roots, abs)
	}
	return roots, nil
}

func containsDir(roots []string, dir string) bool {
	dir = filepath.Clean(dir)
	for _, r := range roots {
		if filepath.Clean(r) == dir {
			return true
		}
	}
	return false
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// hasDotDot reports a ".." segment under either separator.
func hasDotDot(path string) bool {
	segments := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	for _, s := range segments {
		if s == ".." {
			return true
		}
	}
	return false
}

// SanitizeForFilename turns a project name into a safe file name stem.
// Separators and ".." become dashes, control characters are dropped and runs
// of dashes collapse. An empty result becomes "unnamed".
func SanitizeForFilename(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if s == "" {
		return "unnamed"
	}
	return s
}
