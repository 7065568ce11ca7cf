package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathKind(t *testing.T) {
	kind, ok := ParsePathKind(" DIR ")
	assert.True(t, ok)
	assert.Equal(t, PathKindDir, kind)

	kind, ok = ParsePathKind("file")
	assert.True(t, ok)
	assert.Equal(t, PathKindFile, kind)

	_, ok = ParsePathKind("socket")
	assert.False(t, ok)
}

func TestLocalPathSelector(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	sel := LocalPathSelector{DefaultDir: dir}

	got, ok := sel.SelectPath(PathKindFile, file)
	assert.True(t, ok)
	assert.Equal(t, file, got)

	_, ok = sel.SelectPath(PathKindDir, file)
	assert.False(t, ok, "a file hint does not satisfy a directory request")

	_, ok = sel.SelectPath(PathKindFile, filepath.Join(dir, "missing"))
	assert.False(t, ok)

	got, ok = sel.SelectPath(PathKindDir, "")
	assert.True(t, ok)
	assert.Equal(t, dir, got)

	_, ok = sel.SelectPath(PathKindFile, "")
	assert.False(t, ok)
}
