package util

import (
	"errors"
	"strings"
)

// SanitizeFileName flattens path separators out of an uploaded recording's
// name and rejects traversal patterns, so the name can appear in a storage
// key as a single segment.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" {
		return "", errors.New("invalid file name")
	}
	return s, nil
}
