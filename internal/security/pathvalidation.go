// Package security validates filesystem paths the daemon and its tools
// accept from operators: the model asset directory, raw capture files,
// and report or backup outputs.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory reports an error unless filePath resolves
// to a location inside safeDir. Symlinks on both sides are resolved
// first, so a link cannot smuggle the path out of the directory.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	absDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("resolving directory: %w", err)
	}
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("resolving directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalDir, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", safeDir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s escapes %s", filePath, safeDir)
	}
	return nil
}

// canonicalize resolves symlinks in absPath. A path that does not exist
// yet is resolved through its nearest existing ancestor with the
// remaining components re-attached, so "dir-link/new.ndjson" lands where
// the link points, not where it claims to be.
func canonicalize(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}

	dir := absPath
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, err := filepath.Rel(parent, absPath)
			if err != nil {
				return absPath
			}
			return filepath.Join(resolved, rel)
		}
		dir = parent
	}
}

// ValidateExportPath accepts output paths under the working directory or
// the system temp directory and rejects everything else. Report files
// and database backups are written through this check.
func ValidateExportPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}

	for _, dir := range []string{cwd, os.TempDir()} {
		if ValidatePathWithinDirectory(filePath, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("export path %s must stay under the working or temp directory", filePath)
}

// ValidateAssetDir checks that dir exists and is a directory. Missing
// bundle files inside it are reported later by the asset loader with the
// file name attached.
func ValidateAssetDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("asset directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("asset path %s is not a directory", dir)
	}
	return nil
}

// SanitizeFilename reduces an arbitrary identifier to a safe file name.
// ASCII letters, digits, dot, underscore and dash pass through; runs of
// anything else collapse to a single underscore. The result is capped at
// 128 bytes and never empty.
func SanitizeFilename(s string) string {
	const maxLen = 128

	var b strings.Builder
	underscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			underscore = false
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
