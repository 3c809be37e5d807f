package ops

import (
	"fmt"
	"os"

	"github.com/hpungsan/screenflow/internal/errors"
)

// createExportTemp creates the temp file an export is written to before it is
// renamed into place. The final path component must not be a symlink;
// ValidatePath already rejects nested directories.
func createExportTemp(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_EXCL|noFollowFlags, 0600)
	if err != nil {
		if isSymlinkErr(err) {
			return nil, errors.NewInvalidRequest("cannot write to symlink")
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}
	return f, nil
}

// openImportFile opens an export file for reading without following a
// symlinked final component.
func openImportFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|noFollowFlags, 0)
	if err != nil {
		switch {
		case isSymlinkErr(err):
			return nil, errors.NewInvalidRequest("cannot read from symlink")
		case os.IsNotExist(err):
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	return f, nil
}
