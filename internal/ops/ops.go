// Package ops implements the history export and import operations shared
// by the CLI and MCP surfaces.
package ops

import (
	"path/filepath"
)

// ExportsDirName is the subdirectory of the base directory that export and
// import may always use.
const ExportsDirName = "exports"

// ExportsDir returns <baseDir>/exports.
func ExportsDir(baseDir string) string {
	return filepath.Join(baseDir, ExportsDirName)
}

// Env carries the filesystem context of an operation.
type Env struct {
	// ExportsDir is the default (always allowed) import/export directory.
	ExportsDir string
}
