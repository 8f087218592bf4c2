// Package pathutil provides path validation for file-backed log sinks.
package pathutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrForbidden is returned for paths that could escape their intended location.
var ErrForbidden = errors.New("forbidden path")

// Clean sanitizes a relative file path to prevent directory traversal attacks.
// It performs the following security checks:
// 1. Rejects absolute paths that could escape the root
// 2. Cleans path traversal sequences like "../"
// 3. Ensures the cleaned path doesn't escape the root boundary
// 4. Normalizes the path for consistent handling
func Clean(path string) (string, error) {
	if path == "" {
		return "/", nil
	}

	// Reject absolute paths that might escape root
	if filepath.IsAbs(path) && path != "/" {
		return "", ErrForbidden
	}

	// Clean the path to resolve any ".." or "." components
	cleaned := filepath.Clean("/" + strings.TrimPrefix(path, "/"))
	if cleaned == "/" {
		return cleaned, nil
	}

	// Simulate the path resolution to see if it goes above root
	depth := 0
	for _, part := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			depth--
			if depth < 0 {
				return "", ErrForbidden
			}
		} else {
			depth++
		}
	}

	return cleaned, nil
}

// ValidateLogPath checks a sink file path and returns its cleaned form.
// Absolute paths are allowed but may not contain ".." segments; relative
// paths may not climb above the working directory.
func ValidateLogPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	// Check for null bytes (can be used to bypass file extension checks)
	if strings.Contains(path, "\x00") {
		return "", ErrForbidden
	}

	// Check for control characters
	for _, char := range path {
		if char < 32 && char != '\t' {
			return "", ErrForbidden
		}
	}

	if filepath.IsAbs(path) {
		for _, part := range strings.Split(filepath.ToSlash(path), "/") {
			if part == ".." {
				return "", ErrForbidden
			}
		}
		return filepath.Clean(path), nil
	}

	cleaned, err := Clean(path)
	if err != nil {
		return "", err
	}
	if cleaned == "/" {
		return "", fmt.Errorf("path %q does not name a file", path)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}
