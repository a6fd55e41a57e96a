package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	tmpDir := t.TempDir()
	allowedBase := filepath.Join(tmpDir, "incoming")
	require.NoError(t, os.MkdirAll(allowedBase, 0o755))

	products := filepath.Join(allowedBase, "products.csv")
	require.NoError(t, os.WriteFile(products, []byte("sku,ean\n"), 0o644))

	tests := []struct {
		name      string
		inputPath string
		outside   bool
		wantErr   bool
	}{
		{name: "file inside base", inputPath: products},
		{name: "dot-dot escape", inputPath: filepath.Join(allowedBase, "..", "products.csv"), wantErr: true},
		{name: "sibling with common prefix", inputPath: filepath.Join(tmpDir, "incoming_evil", "products.csv"), wantErr: true},
		{name: "absolute path outside", inputPath: os.TempDir(), outside: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.inputPath, allowedBase)
			if !tt.wantErr {
				require.NoError(t, err)
				resolved, _ := filepath.EvalSymlinks(products)
				assert.Equal(t, resolved, got)
				return
			}
			require.Error(t, err)
			if tt.outside {
				assert.ErrorIs(t, err, ErrOutsideBaseDir)
			}
		})
	}
}

func TestValidatePathRequiresBaseDir(t *testing.T) {
	_, err := ValidatePath("/tmp/x.csv", "")
	assert.Error(t, err)
}

func TestValidatePathSymlinkEscape(t *testing.T) {
	tmpDir := t.TempDir()
	allowedBase := filepath.Join(tmpDir, "incoming")
	outsideDir := filepath.Join(tmpDir, "outside")
	require.NoError(t, os.MkdirAll(allowedBase, 0o755))
	require.NoError(t, os.MkdirAll(outsideDir, 0o755))

	secret := filepath.Join(outsideDir, "secret.csv")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o644))

	link := filepath.Join(allowedBase, "link.csv")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("Symlinks not supported: %v", err)
	}

	_, err := ValidatePath(link, allowedBase)
	assert.ErrorIs(t, err, ErrOutsideBaseDir)
}

func TestValidatePathExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.NoError(t, ValidatePathExists(file))
	assert.Error(t, ValidatePathExists(dir), "directories are rejected")
	assert.Error(t, ValidatePathExists(filepath.Join(dir, "missing.csv")))
}
