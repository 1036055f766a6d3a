package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	require.NoError(t, os.MkdirAll(safeDir, 0o755))
	require.NoError(t, os.MkdirAll(unsafeDir, 0o755))
	require.NoError(t, os.Symlink(unsafeDir, filepath.Join(safeDir, "evil-symlink")))

	tests := []struct {
		name      string
		filePath  string
		wantError bool
	}{
		{name: "file in directory", filePath: filepath.Join(safeDir, "a.jpg")},
		{name: "nested new file", filePath: filepath.Join(safeDir, "sub", "dir", "a.jpg")},
		{name: "dot-dot escape", filePath: filepath.Join(safeDir, "..", "a.jpg"), wantError: true},
		{name: "sibling directory", filePath: filepath.Join(unsafeDir, "a.jpg"), wantError: true},
		{name: "through symlink", filePath: filepath.Join(safeDir, "evil-symlink", "a.jpg"), wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, safeDir)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(tmpDir, "x"), filepath.Join(tmpDir, "missing")))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                  "unknown",
		"smoke":             "smoke",
		"play phone":        "play_phone",
		"../../etc/passwd":  "etc_passwd",
		"cam:1//north":      "cam_1_north",
		"a__b":              "a_b",
		"...":               "unknown",
		"foreign_matter-v2": "foreign_matter-v2",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}

	assert.Len(t, SanitizeFilename(strings.Repeat("x", 300)), 128)
}

func TestSnapshotPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := SnapshotPath(dir, "cam/1", "smoke", 42, ".png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cam_1_smoke_00000042.png"), path)

	path, err = SnapshotPath(dir, "", "..", 7, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "unknown_unknown_00000007.jpg"), path)
}
