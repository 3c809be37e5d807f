package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/screenflow/internal/config"
	"github.com/hpungsan/screenflow/internal/errors"
	"github.com/hpungsan/screenflow/internal/history"
)

// SchemaVersion is written in the export header.
const SchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path  string        // optional, default: <exports>/<project|all>-<timestamp>.jsonl
	Query history.Query // optional filter
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of an export file.
type ExportHeader struct {
	ScreenflowExport bool   `json:"_screenflow_export"`
	SchemaVersion    string `json:"schema_version"`
	ExportedAt       int64  `json:"exported_at"`
}

// Export writes the (optionally filtered) history to a JSONL file, oldest
// line last, through a temp file that is renamed into place.
func Export(ctx context.Context, store *history.Store, cfg *config.Config, env Env, input ExportInput) (*ExportOutput, error) {
	now := time.Now()
	exportedAt := now.Unix()

	exportPath := input.Path
	if exportPath == "" {
		exportPath = defaultExportPath(env, input.Query.Project, now)
	}

	// Default paths are validated too; the project name is user input.
	if err := ValidatePath(exportPath, PathCheckWrite, cfg, env); err != nil {
		return nil, err
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := createExportTemp(tempPath)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	enc := json.NewEncoder(file)
	if err := enc.Encode(ExportHeader{
		ScreenflowExport: true,
		SchemaVersion:    SchemaVersion,
		ExportedAt:       exportedAt,
	}); err != nil {
		return nil, errors.NewInternal(err)
	}

	subs := history.Filter(store.Snapshot(), input.Query)
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("export cancelled: %w", err))
		}
		if err := enc.Encode(sub); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// On Windows, Rename fails if the destination exists; keep the old file
	// rather than delete-then-rename.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Count:      len(subs),
		ExportedAt: exportedAt,
	}, nil
}

// defaultExportPath returns <exports>/<project>-<timestamp>.jsonl, or
// all-<timestamp>.jsonl without a project filter.
func defaultExportPath(env Env, project string, now time.Time) string {
	name := "all"
	if project != "" {
		name = SanitizeForFilename(project)
	}
	filename := fmt.Sprintf("%s-%s.jsonl", name, now.Format("2006-01-02T150405"))
	return filepath.Join(env.ExportsDir, filename)
}
