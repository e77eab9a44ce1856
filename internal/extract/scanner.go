package extract

import (
	"strings"

	"github.com/sokinpui/retrofit/internal/lines"
	"github.com/sokinpui/retrofit/model"
)

// scanner owns the consumed bitmap for a single pass over one document.
// A line is marked as soon as it becomes part of a region, so it can never
// be reported twice.
type scanner struct {
	lines    []string
	consumed []bool
}

func newScanner(src []string) *scanner {
	return &scanner{lines: src, consumed: make([]bool, len(src))}
}

// scan resolves BLOCK regions for every tag first, then INLINE lines for
// every tag over what is left. emit is called at discovery time, before the
// region is marked, so context reflects what was consumed so far.
func (s *scanner) scan(tags []string, emit func(Region)) {
	compiled := make([]markers, len(tags))
	for i, t := range tags {
		compiled[i] = compile(t)
	}
	for _, m := range compiled {
		s.blocks(m, emit)
	}
	for _, m := range compiled {
		s.inlines(m, emit)
	}
}

func (s *scanner) blocks(m markers, emit func(Region)) {
	for i := 0; i < len(s.lines); i++ {
		if s.consumed[i] || !m.start.MatchString(strings.TrimSpace(s.lines[i])) {
			continue
		}
		end, ok := s.findEnd(m, i)
		if !ok {
			// Left for the inline pass.
			continue
		}
		r := Region{Type: model.BlockTypeBlock, Tag: m.tag, Start: i, End: end}
		emit(r)
		s.mark(r)
		i = end
	}
}

// findEnd looks for the first end marker after start. A region may not run
// into lines that already belong to another region.
func (s *scanner) findEnd(m markers, start int) (int, bool) {
	for j := start + 1; j < len(s.lines); j++ {
		if s.consumed[j] {
			return 0, false
		}
		if m.end.MatchString(strings.TrimSpace(s.lines[j])) {
			return j, true
		}
	}
	return 0, false
}

func (s *scanner) inlines(m markers, emit func(Region)) {
	for i, line := range s.lines {
		if s.consumed[i] || !m.inline.MatchString(line) {
			continue
		}
		r := Region{Type: model.BlockTypeInline, Tag: m.tag, Start: i, End: i}
		emit(r)
		s.mark(r)
	}
}

func (s *scanner) mark(r Region) {
	for k := r.Start; k <= r.End; k++ {
		s.consumed[k] = true
	}
}

// context collects up to n non-blank, unconsumed lines on each side of r.
// Consumed lines and blank lines are skipped, not treated as a boundary.
func (s *scanner) context(r Region, n int) (above, below []string) {
	for i := r.Start - 1; i >= 0 && len(above) < n; i-- {
		if s.consumed[i] || lines.IsBlank(s.lines[i]) {
			continue
		}
		above = append(above, s.lines[i])
	}
	for a, b := 0, len(above)-1; a < b; a, b = a+1, b-1 {
		above[a], above[b] = above[b], above[a]
	}
	for i := r.End + 1; i < len(s.lines) && len(below) < n; i++ {
		if s.consumed[i] || lines.IsBlank(s.lines[i]) {
			continue
		}
		below = append(below, s.lines[i])
	}
	return above, below
}
