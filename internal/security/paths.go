// Package security keeps file names derived from event data inside the
// directories they are meant for.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// canonical resolves symlinks in path, or in its deepest existing parent
// when path itself does not exist yet.
func canonical(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, path)
			return filepath.Join(resolved, rel)
		}
		if filepath.Dir(dir) == dir {
			return path
		}
	}
}

// ValidatePathWithinDirectory returns an error when filePath, after
// cleaning and symlink resolution, lies outside safeDir.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonical(absPath))
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// SanitizeFilename maps s to ASCII letters, digits, dot, underscore and
// dash. Runs of other characters become one underscore and the result is
// capped at 128 bytes. An empty result is "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_':
			if !lastUnderscore {
				b.WriteRune(r)
			}
			lastUnderscore = true
		default:
			if !lastUnderscore {
				b.WriteRune('_')
			}
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// SnapshotPath returns dir/<pipeline>_<behavior>_<frame>.<ext> with each
// component sanitised, and checks that the result stays inside dir.
func SnapshotPath(dir, pipelineID, behavior string, frameID int64, ext string) (string, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "jpg"
	}
	name := fmt.Sprintf("%s_%s_%08d.%s", SanitizeFilename(pipelineID), SanitizeFilename(behavior), frameID, SanitizeFilename(ext))
	path := filepath.Join(dir, name)
	if err := ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	return path, nil
}
