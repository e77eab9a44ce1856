package state

import (
	"os"
	"path/filepath"

	"github.com/sokinpui/retrofit/internal/fs"
)

// UndoFiles reverts a set of operations. A file is only touched when its
// content still matches what the run wrote.
func UndoFiles(ops []Operation, progressCb func(int)) (undone, failed []string) {
	return processSequentially(ops, undoFile, progressCb)
}

// RedoFiles re-applies a set of undone operations. A file is only touched
// when it still matches its state from before the run.
func RedoFiles(ops []Operation, progressCb func(int)) (redone, failed []string) {
	return processSequentially(ops, redoFile, progressCb)
}

func processSequentially(ops []Operation, fn func(Operation) bool, progressCb func(int)) (ok, failed []string) {
	for i, op := range ops {
		if fn(op) {
			ok = append(ok, op.Path)
		} else {
			failed = append(failed, op.Path)
		}
		if progressCb != nil {
			progressCb(i + 1)
		}
	}
	return ok, failed
}

func undoFile(op Operation) bool {
	currentHash, err := fs.GetFileSHA256(op.Path)
	if err != nil {
		// Undoing a create whose file is already gone is a no-op.
		return os.IsNotExist(err) && op.Action == ActionCreate
	}
	if op.ContentHash == "" || currentHash != op.ContentHash {
		return false
	}

	switch op.Action {
	case ActionCreate:
		if err := os.Remove(op.Path); err != nil {
			return false
		}
		parentDir := filepath.Dir(op.Path)
		if isEmpty, _ := fs.IsEmpty(parentDir); isEmpty {
			_ = os.Remove(parentDir)
		}
		return true
	case ActionModify:
		if op.Snapshot == "" {
			return false
		}
		// The snapshot must be the file as it was before the run.
		snapshotHash, err := fs.GetFileSHA256(op.Snapshot)
		if err != nil || (op.PrevHash != "" && snapshotHash != op.PrevHash) {
			return false
		}
		return fs.CopyFile(op.Snapshot, op.Path) == nil
	default:
		return false
	}
}

func redoFile(op Operation) bool {
	if op.Retro == "" {
		return false
	}
	switch op.Action {
	case ActionCreate:
		if _, err := os.Stat(op.Path); !os.IsNotExist(err) {
			// Don't overwrite a file created since the undo.
			return false
		}
	case ActionModify:
		currentHash, err := fs.GetFileSHA256(op.Path)
		if err != nil || currentHash != op.PrevHash {
			return false
		}
	default:
		return false
	}
	if err := fs.CopyFile(op.Retro, op.Path); err != nil {
		return false
	}
	redoneHash, err := fs.GetFileSHA256(op.Path)
	return err == nil && redoneHash == op.ContentHash
}
