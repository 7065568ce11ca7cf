package service

import (
	"os"
	"path/filepath"
	"strings"
)

type PathKind string

const (
	PathKindFile PathKind = "file"
	PathKindDir  PathKind = "dir"
)

func ParsePathKind(s string) (PathKind, bool) {
	switch PathKind(strings.ToLower(strings.TrimSpace(s))) {
	case PathKindFile:
		return PathKindFile, true
	case PathKindDir:
		return PathKindDir, true
	}
	return "", false
}

// PathSelector answers a selection request with a chosen path, or false when
// nothing was chosen. A cancelled selection is not an error.
type PathSelector interface {
	SelectPath(kind PathKind, hint string) (string, bool)
}

// LocalPathSelector is the headless selector: it accepts a hint that exists
// with the requested kind and otherwise falls back to DefaultDir for directories.
type LocalPathSelector struct {
	DefaultDir string
}

func (s LocalPathSelector) SelectPath(kind PathKind, hint string) (string, bool) {
	hint = strings.TrimSpace(hint)
	if hint != "" {
		if fi, err := os.Stat(hint); err == nil && fi.IsDir() == (kind == PathKindDir) {
			return filepath.Clean(hint), true
		}
		return "", false
	}
	if kind == PathKindDir && s.DefaultDir != "" {
		return filepath.Clean(s.DefaultDir), true
	}
	return "", false
}
