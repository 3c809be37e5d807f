package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/screenflow/internal/config"
	"github.com/hpungsan/screenflow/internal/errors"
	"github.com/hpungsan/screenflow/internal/history"
)

// maxLineBytes bounds one JSONL record; submissions embed base64 images.
const maxLineBytes = 256 << 20

// ImportMode controls behavior when a record's id is already in history.
type ImportMode string

const (
	ImportModeSkip  ImportMode = "skip"  // keep the existing entry
	ImportModeError ImportMode = "error" // import nothing if any record collides or fails to parse
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: skip
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Evicted  int           `json:"evicted"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one rejected line.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// exportLine decodes either the header or a submission.
type exportLine struct {
	ScreenflowExport bool `json:"_screenflow_export"`
	history.Submission
}

// Import merges submissions from an export file into history. Entries are
// placed by timestamp and the capacity rule applies afterwards, so an
// import never holds more than history.Capacity entries.
func Import(ctx context.Context, store *history.Store, cfg *config.Config, env Env, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeSkip
	}
	if input.Mode != ImportModeSkip && input.Mode != ImportModeError {
		return nil, errors.NewInvalidRequest("mode must be one of: skip, error")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg, env); err != nil {
		return nil, err
	}

	file, err := openImportFile(input.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, parseErrors, err := parseExportFile(ctx, bufio.NewScanner(file))
	if err != nil {
		return nil, err
	}

	out := &ImportOutput{Errors: parseErrors}
	var accepted []history.Submission
	seen := make(map[string]bool)
	for _, rec := range records {
		_, _, exists := store.Find(rec.sub.ID)
		if exists || seen[rec.sub.ID] {
			out.Skipped++
			if input.Mode == ImportModeError {
				out.Errors = append(out.Errors, ImportError{
					Line:    rec.line,
					ID:      rec.sub.ID,
					Code:    "DUPLICATE_ID",
					Message: "submission already exists",
				})
			}
			continue
		}
		seen[rec.sub.ID] = true
		accepted = append(accepted, rec.sub)
	}

	if input.Mode == ImportModeError && len(out.Errors) > 0 {
		out.Skipped = 0
		return out, nil
	}

	if len(accepted) > 0 {
		evicted := store.Merge(ctx, accepted)
		out.Evicted = len(evicted)
	}
	out.Imported = len(accepted)
	return out, nil
}

type parsedRecord struct {
	line int
	sub  history.Submission
}

func parseExportFile(ctx context.Context, scanner *bufio.Scanner) ([]parsedRecord, []ImportError, error) {
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		records     []parsedRecord
		parseErrors []ImportError
		lineNum     int
	)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, nil, errors.NewInternal(fmt.Errorf("import cancelled: %w", err))
		}
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec exportLine
		if err := json.Unmarshal(line, &rec); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if rec.ScreenflowExport {
			continue
		}
		if rec.ID == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: "missing id field",
			})
			continue
		}
		if rec.Timestamp.IsZero() || rec.AnalysisText == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      rec.ID,
				Code:    "INVALID_RECORD",
				Message: "missing timestamp or analysis_text",
			})
			continue
		}

		sub := rec.Submission
		sub.Tags = history.NormalizeTags(sub.Tags)
		records = append(records, parsedRecord{line: lineNum, sub: sub})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}
	return records, parseErrors, nil
}
