package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideBaseDir is returned for input paths that escape the allowed directory
var ErrOutsideBaseDir = errors.New("path is outside the allowed base directory")

// ValidatePath resolves inputPath (symlinks included) and checks that it lies
// inside allowedBaseDir. The file must exist.
func ValidatePath(inputPath, allowedBaseDir string) (string, error) {
	if allowedBaseDir == "" {
		return "", errors.New("allowed base directory is not configured")
	}

	resolvedInput, err := resolve(inputPath)
	if err != nil {
		return "", fmt.Errorf("cannot resolve input path: %w", err)
	}
	resolvedBase, err := resolve(allowedBaseDir)
	if err != nil {
		return "", fmt.Errorf("cannot resolve base directory: %w", err)
	}

	rel, err := filepath.Rel(resolvedBase, resolvedInput)
	if err != nil {
		return "", fmt.Errorf("cannot compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBaseDir, inputPath)
	}

	return resolvedInput, nil
}

func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// ValidatePathExists checks that resolvedPath is a regular file
func ValidatePathExists(resolvedPath string) error {
	info, err := os.Stat(resolvedPath)
	if err != nil {
		return fmt.Errorf("file does not exist: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", resolvedPath)
	}
	return nil
}
