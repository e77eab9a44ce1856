package extract

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/sokinpui/retrofit/internal/lines"
	"github.com/sokinpui/retrofit/model"
)

// DefaultContextLines is how many non-blank neighbours are captured on each
// side of a block.
const DefaultContextLines = 10

// ErrNoTags is returned when no usable tag was supplied.
var ErrNoTags = errors.New("extract: at least one non-empty tag is required")

// Region is a tagged line range found by marker detection, before any
// context is attached.
type Region struct {
	Type  model.BlockType
	Tag   string
	Start int
	End   int
}

// markers holds the compiled patterns for one tag. The tag is always quoted
// so callers never pass regex syntax by accident.
type markers struct {
	tag    string
	start  *regexp.Regexp
	end    *regexp.Regexp
	inline *regexp.Regexp
}

func compile(tag string) markers {
	q := regexp.QuoteMeta(tag)
	return markers{
		tag:    tag,
		start:  regexp.MustCompile(`(?i)^--\s*` + q + `.*(?:starts?|begins?)`),
		end:    regexp.MustCompile(`(?i)^--\s*` + q + `.*ends?`),
		inline: regexp.MustCompile(`(?i)` + q),
	}
}

// CleanTags trims the tags and drops empty entries and case-insensitive
// duplicates, preserving order.
func CleanTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToUpper(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// HasAnyTag is a cheap pre-filter: a case-insensitive substring test for any
// of the tags.
func HasAnyTag(content string, tags []string) bool {
	upper := strings.ToUpper(content)
	for _, t := range CleanTags(tags) {
		if strings.Contains(upper, strings.ToUpper(t)) {
			return true
		}
	}
	return false
}

// Extractor finds tagged blocks in text.
type Extractor struct {
	ContextLines int
}

// New returns an Extractor capturing contextLines lines on each side. A
// non-positive value selects DefaultContextLines.
func New(contextLines int) Extractor {
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}
	return Extractor{ContextLines: contextLines}
}

// Extract uses DefaultContextLines.
func Extract(content string, tags []string) ([]model.TaggedBlock, error) {
	return New(DefaultContextLines).Extract(content, tags)
}

// Extract returns every tagged block in content, sorted by start line.
func (e Extractor) Extract(content string, tags []string) ([]model.TaggedBlock, error) {
	tags = CleanTags(tags)
	if len(tags) == 0 {
		return nil, ErrNoTags
	}
	src := lines.Split(content)
	s := newScanner(src)

	var blocks []model.TaggedBlock
	capture := func(r Region) {
		above, below := s.context(r, e.contextLines())
		text := src[r.Start]
		if r.Type == model.BlockTypeBlock {
			text = lines.Join(src[r.Start : r.End+1])
		}
		blocks = append(blocks, model.TaggedBlock{
			Type:         r.Type,
			Content:      text,
			ContextAbove: above,
			ContextBelow: below,
			Tag:          r.Tag,
			StartLine:    r.Start,
			EndLine:      r.End,
		})
	}
	s.scan(tags, capture)

	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].StartLine < blocks[j].StartLine
	})
	return blocks, nil
}

func (e Extractor) contextLines() int {
	if e.ContextLines <= 0 {
		return DefaultContextLines
	}
	return e.ContextLines
}

// Regions runs marker detection over already-split lines, with the same
// rules Extract uses, and returns the regions sorted by start line.
func Regions(src []string, tags []string) []Region {
	tags = CleanTags(tags)
	if len(tags) == 0 {
		return nil
	}
	var out []Region
	newScanner(src).scan(tags, func(r Region) {
		out = append(out, r)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}
