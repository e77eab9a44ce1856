package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/retrofit/internal/fs"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}

func hash(t *testing.T, path string) string {
	t.Helper()
	h, err := fs.GetFileSHA256(path)
	require.NoError(t, err)
	return h
}

func TestManager_RoundTrip(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	require.NoError(t, err)

	ops := []Operation{
		{Action: ActionModify, Path: "/t/a.sql", ContentHash: "h1", PrevHash: "h0", Snapshot: "/ws/Target/a.sql", Retro: "/ws/Retro/a.sql"},
		{Action: ActionCreate, Path: "/t/b.sql", ContentHash: "h2", Retro: "/ws/Retro/b.sql"},
	}
	require.NoError(t, m.Write("REF-1", ops))

	reloaded, err := New(root)
	require.NoError(t, err)

	entry, err := reloaded.GetOperationsToUndo()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "REF-1", entry.Reference)
	assert.Equal(t, ops, entry.Operations)

	entry, err = reloaded.GetOperationsToUndo()
	require.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = reloaded.GetOperationsToRedo()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Len(t, entry.Operations, 2)

	entry, err = reloaded.GetOperationsToRedo()
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestManager_WriteDropsUndoneRuns(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.Write("A", nil))
	require.NoError(t, m.Write("B", nil))
	_, err = m.GetOperationsToUndo()
	require.NoError(t, err)
	require.NoError(t, m.Write("C", nil))

	entry, err := m.GetOperationsToRedo()
	require.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = m.GetOperationsToUndo()
	require.NoError(t, err)
	assert.Equal(t, "C", entry.Reference)
	entry, err = m.GetOperationsToUndo()
	require.NoError(t, err)
	assert.Equal(t, "A", entry.Reference)
}

func TestManager_CorruptFile(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, stateDirName, stateFileName), "not-a-number\n")

	_, err := New(root)
	assert.Error(t, err)
}

func TestUndoRedo_Modify(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target", "a.sql")
	snapshot := filepath.Join(dir, "ws", "Target", "a.sql")
	retro := filepath.Join(dir, "ws", "Retro", "a.sql")

	write(t, target, "before")
	write(t, snapshot, "before")
	prev := hash(t, target)
	write(t, retro, "after")
	write(t, target, "after")

	ops := CreateOperations([]Change{{Path: target, Action: ActionModify, PrevHash: prev, Snapshot: snapshot, Retro: retro}})
	require.Len(t, ops, 1)

	var progress []int
	undone, failed := UndoFiles(ops, func(n int) { progress = append(progress, n) })
	assert.Equal(t, []string{target}, undone)
	assert.Empty(t, failed)
	assert.Equal(t, []int{1}, progress)
	assert.Equal(t, "before", read(t, target))

	redone, failed := RedoFiles(ops, nil)
	assert.Equal(t, []string{target}, redone)
	assert.Empty(t, failed)
	assert.Equal(t, "after", read(t, target))
}

func TestUndo_RefusesEditedFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.sql")
	snapshot := filepath.Join(dir, "snap.sql")
	write(t, snapshot, "before")
	write(t, target, "after")

	ops := CreateOperations([]Change{{Path: target, Action: ActionModify, Snapshot: snapshot}})
	write(t, target, "edited by hand")

	undone, failed := UndoFiles(ops, nil)
	assert.Empty(t, undone)
	assert.Equal(t, []string{target}, failed)
	assert.Equal(t, "edited by hand", read(t, target))
}

func TestUndo_StaleSnapshotLeavesTargetAlone(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.sql")
	snapshot := filepath.Join(dir, "snap.sql")
	write(t, target, "original")
	prev := hash(t, target)

	// The snapshot was taken after the file had already been changed.
	write(t, snapshot, "intermediate")
	write(t, target, "final")
	ops := CreateOperations([]Change{{Path: target, Action: ActionModify, PrevHash: prev, Snapshot: snapshot}})

	undone, failed := UndoFiles(ops, nil)
	assert.Empty(t, undone)
	assert.Equal(t, []string{target}, failed)
	assert.Equal(t, "final", read(t, target))
}

func TestUndoRedo_Create(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target", "new", "b.sql")
	retro := filepath.Join(dir, "Retro", "b.sql")
	write(t, retro, "new unit")
	write(t, target, "new unit")

	ops := CreateOperations([]Change{{Path: target, Action: ActionCreate, Retro: retro}})

	undone, failed := UndoFiles(ops, nil)
	assert.Equal(t, []string{target}, undone)
	assert.Empty(t, failed)
	assert.NoFileExists(t, target)
	assert.NoDirExists(t, filepath.Dir(target))

	redone, failed := RedoFiles(ops, nil)
	assert.Equal(t, []string{target}, redone)
	assert.Empty(t, failed)
	assert.Equal(t, "new unit", read(t, target))

	// Redo refuses to clobber a file that appeared in the meantime.
	_, failed = RedoFiles(ops, nil)
	assert.Equal(t, []string{target}, failed)
}
