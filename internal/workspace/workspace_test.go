package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	root := t.TempDir()

	w, err := Create(root, "  BANKING-123  ")
	require.NoError(t, err)

	assert.Equal(t, "BANKING-123", w.Reference)
	assert.Equal(t, filepath.Join(root, "BANKING-123"), w.Base)
	for _, dir := range []string{w.Source, w.Target, w.Retro} {
		assert.DirExists(t, dir)
	}

	// A second run reuses the tree.
	_, err = Create(root, "BANKING-123")
	require.NoError(t, err)
}

func TestCreate_InvalidReference(t *testing.T) {
	for _, ref := range []string{"", "   ", "..", "a/b", `a\b`} {
		_, err := Create(t.TempDir(), ref)
		assert.ErrorIs(t, err, ErrInvalidReference, "reference %q", ref)
	}
}

func TestPaths(t *testing.T) {
	w, err := At("/ws", "REF")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/ws", "REF", "Retro", "pkg", "a.sql"), w.RetroPath("pkg/a.sql"))
	assert.Equal(t, filepath.Join("/ws", "REF", "Source", "a.sql"), w.SourceCopyPath("a.sql"))
	assert.Equal(t, filepath.Join("/ws", "REF", "Target", "x", "a.sql"), w.TargetCopyPath("x/a.sql"))
}

func TestSnapshot(t *testing.T) {
	root := t.TempDir()
	w, err := Create(root, "REF")
	require.NoError(t, err)

	src := filepath.Join(root, "orig.sql")
	require.NoError(t, os.WriteFile(src, []byte("a\xffb"), 0644))

	dst := w.TargetCopyPath("deep/orig.sql")
	require.NoError(t, w.Snapshot(src, dst))

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "a\xffb", string(raw))
}
