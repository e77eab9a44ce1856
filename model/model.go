package model

import (
	"errors"
	"fmt"
)

// BlockType is the shape of a tagged change.
type BlockType string

const (
	// BlockTypeBlock is a region delimited by "-- <tag> ... starts" and "-- <tag> ... ends".
	BlockTypeBlock BlockType = "BLOCK"
	// BlockTypeInline is a single line mentioning the tag outside any block region.
	BlockTypeInline BlockType = "INLINE"
)

// ErrMalformedBlock is returned when a TaggedBlock is missing required fields.
var ErrMalformedBlock = errors.New("malformed tagged block")

// TaggedBlock is one tagged change found in a source file, with the
// neighbouring lines used to relocate it in a target file.
type TaggedBlock struct {
	Type    BlockType `json:"type"`
	Content string    `json:"content"`
	// ContextAbove runs oldest to nearest, ContextBelow nearest to farthest.
	ContextAbove []string `json:"context_above"`
	ContextBelow []string `json:"context_below"`
	Tag          string   `json:"tag"`
	// StartLine and EndLine are 0-indexed and inclusive.
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Validate rejects blocks that cannot be placed without guessing.
func (b TaggedBlock) Validate() error {
	switch {
	case b.Tag == "":
		return fmt.Errorf("%w: missing tag (lines %d-%d)", ErrMalformedBlock, b.StartLine, b.EndLine)
	case b.Content == "":
		return fmt.Errorf("%w: empty content for tag %s", ErrMalformedBlock, b.Tag)
	case b.Type != BlockTypeBlock && b.Type != BlockTypeInline:
		return fmt.Errorf("%w: unknown block type %q for tag %s", ErrMalformedBlock, b.Type, b.Tag)
	case b.StartLine < 0 || b.EndLine < b.StartLine:
		return fmt.Errorf("%w: invalid line range %d-%d for tag %s", ErrMalformedBlock, b.StartLine, b.EndLine, b.Tag)
	}
	return nil
}

// RetrofitType classifies what happened to one source file.
type RetrofitType string

const (
	RetrofitNewUnit RetrofitType = "NEW_UNIT"
	RetrofitMerged  RetrofitType = "MERGED"
	RetrofitSkipped RetrofitType = "SKIPPED"
)

// RetrofitResult is the outcome of processing one source file.
type RetrofitResult struct {
	Type        RetrofitType
	BlocksFound int
	// Fallbacks counts blocks that could not be matched and were appended
	// at the end of the file behind a warning line.
	Fallbacks int
	// RetroPath is the review-root copy; it is never the original target.
	RetroPath string

	SourceFile  string // relative to the source root
	TargetFile  string // resolved target path, empty for new units
	TargetFound bool
	Applied     bool // content was also written into the target tree
	Diff        string
	Err         error
}

// Summary holds the results of a run for display.
type Summary struct {
	RunID        string
	WorkspaceDir string
	Preview      bool
	// Scanned counts enumerated source files, including those without tags.
	Scanned      int
	Results      []RetrofitResult

	NewUnits []string
	Merged   []string
	Skipped  []string
	Failed   []string
	// Reverted lists files restored by undo or re-applied by redo.
	Reverted []string
	Message  string
}

// Add files a result under its category.
func (s *Summary) Add(r RetrofitResult) {
	s.Results = append(s.Results, r)
	switch {
	case r.Err != nil:
		s.Failed = append(s.Failed, r.SourceFile)
	case r.Type == RetrofitNewUnit:
		s.NewUnits = append(s.NewUnits, r.SourceFile)
	case r.Type == RetrofitMerged:
		s.Merged = append(s.Merged, r.SourceFile)
	default:
		s.Skipped = append(s.Skipped, r.SourceFile)
	}
}

// Fallbacks is the number of blocks across the run that needed the
// end-of-file fallback.
func (s *Summary) Fallbacks() int {
	n := 0
	for _, r := range s.Results {
		n += r.Fallbacks
	}
	return n
}
