package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sokinpui/retrofit/internal/fs"
)

const (
	SourceDir = "Source"
	TargetDir = "Target"
	RetroDir  = "Retro"
)

// ErrInvalidReference is returned for a reference that is empty or is not a
// single path segment.
var ErrInvalidReference = errors.New("workspace: invalid reference name")

// Workspace is the review tree of one reference:
//
//	<root>/<reference>/
//	    Source/   copies of the source files that were processed
//	    Target/   copies of the target files before they were touched
//	    Retro/    retrofitted output, mirroring the source layout
type Workspace struct {
	Reference string
	Base      string
	Source    string
	Target    string
	Retro     string
}

// ValidateReference trims reference and checks it can be used as a folder
// name.
func ValidateReference(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	switch {
	case ref == "", ref == ".", ref == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, reference)
	case strings.ContainsAny(ref, `/\`):
		return "", fmt.Errorf("%w: %q must not contain path separators", ErrInvalidReference, reference)
	}
	return ref, nil
}

// At returns the workspace layout without touching the disk.
func At(root, reference string) (*Workspace, error) {
	ref, err := ValidateReference(reference)
	if err != nil {
		return nil, err
	}
	base := filepath.Join(root, ref)
	return &Workspace{
		Reference: ref,
		Base:      base,
		Source:    filepath.Join(base, SourceDir),
		Target:    filepath.Join(base, TargetDir),
		Retro:     filepath.Join(base, RetroDir),
	}, nil
}

// Create makes the workspace directories. Existing directories are reused.
func Create(root, reference string) (*Workspace, error) {
	w, err := At(root, reference)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{w.Source, w.Target, w.Retro} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
		}
	}
	return w, nil
}

// RetroPath is where the output for a source-relative path goes.
func (w *Workspace) RetroPath(rel string) string {
	return filepath.Join(w.Retro, filepath.FromSlash(rel))
}

// SourceCopyPath is where the review copy of a source file goes.
func (w *Workspace) SourceCopyPath(rel string) string {
	return filepath.Join(w.Source, filepath.FromSlash(rel))
}

// TargetCopyPath is where the review copy of a target file goes. rel is
// relative to the target root.
func (w *Workspace) TargetCopyPath(rel string) string {
	return filepath.Join(w.Target, filepath.FromSlash(rel))
}

// Snapshot copies a file into the workspace unchanged.
func (w *Workspace) Snapshot(src, dst string) error {
	return fs.CopyFile(src, dst)
}
