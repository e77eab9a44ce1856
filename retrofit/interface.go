package retrofit

import (
	"github.com/sokinpui/retrofit/internal/applier"
	"github.com/sokinpui/retrofit/internal/extract"
	"github.com/sokinpui/retrofit/internal/merge"
	"github.com/sokinpui/retrofit/model"
)

// Types shared with callers using retrofit as a library.
type (
	TaggedBlock    = model.TaggedBlock
	RetrofitResult = model.RetrofitResult
	Summary        = model.Summary
)

// ExtractTaggedBlocks returns the tagged blocks of content sorted by start
// line.
func ExtractTaggedBlocks(content string, tags []string) ([]TaggedBlock, error) {
	return extract.Extract(content, tags)
}

// HasAnyTag reports whether content mentions any of the tags, ignoring case.
func HasAnyTag(content string, tags []string) bool {
	return extract.HasAnyTag(content, tags)
}

// SmartMerge extracts the tagged blocks of source and splices them into
// target.
func SmartMerge(source, target string, tags []string) (string, error) {
	out, _, err := merge.SmartMerge(source, target, tags)
	return out, err
}

// RetrofitFile processes one file and writes the result to outputPath. A
// nil target makes the source a new unit.
func RetrofitFile(source string, target *string, tags []string, outputPath string) (RetrofitResult, error) {
	return applier.RetrofitFile(source, target, tags, outputPath, applier.Options{})
}
