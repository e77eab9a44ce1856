package placement

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sokinpui/retrofit/internal/extract"
	"github.com/sokinpui/retrofit/internal/lines"
	"github.com/sokinpui/retrofit/model"
)

// DefaultBelowWindow is how many lines after a candidate insertion point are
// searched for the first below-context line.
const DefaultBelowWindow = 15

// Strategy identifies which rule produced a Plan.
type Strategy int

const (
	StrategyExistingTag Strategy = iota + 1
	StrategyExactContext
	StrategyFuzzyContext
	StrategyNearestContext
	StrategyFallback
)

func (s Strategy) String() string {
	switch s {
	case StrategyExistingTag:
		return "existing-tag"
	case StrategyExactContext:
		return "exact-context"
	case StrategyFuzzyContext:
		return "fuzzy-context"
	case StrategyNearestContext:
		return "nearest-context"
	case StrategyFallback:
		return "fallback-append"
	default:
		return "unknown"
	}
}

// Plan is where one block goes: either a replacement of target lines
// [Start, End] or an insertion before original line InsertAt.
type Plan struct {
	Strategy Strategy
	Replace  bool
	Start    int
	End      int
	InsertAt int
	// Lines is what gets written, including the warning header for the
	// fallback.
	Lines []string
}

const warningPrefix = "-- WARNING: Auto-placed by Retrofit Automation"

// WarningLine is the comment written above a block that could not be
// matched to any context in the target.
func WarningLine(tag string) string {
	return fmt.Sprintf("%s (no context match for %s)", warningPrefix, tag)
}

// IsWarningLine reports whether line is a header written by WarningLine.
func IsWarningLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), warningPrefix)
}

// Options tunes the matching rules.
type Options struct {
	FuzzyThreshold float64
	BelowWindow    int
}

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{FuzzyThreshold: DefaultFuzzyThreshold, BelowWindow: DefaultBelowWindow}
}

func (o Options) withDefaults() Options {
	if o.FuzzyThreshold <= 0 || o.FuzzyThreshold > 1 {
		o.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if o.BelowWindow <= 0 {
		o.BelowWindow = DefaultBelowWindow
	}
	return o
}

// Target is an immutable target document prepared for placement. Tag
// regions found in it can be claimed once each by blocks of one merge.
type Target struct {
	Lines      []string
	trimmed    []string
	normalized []string
	regions    []extract.Region
	claimed    []bool
}

// NewTarget indexes target lines for the given tags.
func NewTarget(targetLines []string, tags []string) *Target {
	t := &Target{
		Lines:      targetLines,
		trimmed:    make([]string, len(targetLines)),
		normalized: make([]string, len(targetLines)),
		regions:    extract.Regions(withoutWarnings(targetLines), tags),
	}
	for i, l := range targetLines {
		t.trimmed[i] = strings.TrimSpace(l)
		t.normalized[i] = lines.Normalize(l)
	}
	t.claimed = make([]bool, len(t.regions))
	return t
}

// withoutWarnings blanks fallback headers so the tag they name is not taken
// for a tagged region. Line indexes are unchanged.
func withoutWarnings(src []string) []string {
	var out []string
	for i, l := range src {
		if !IsWarningLine(l) {
			continue
		}
		if out == nil {
			out = make([]string, len(src))
			copy(out, src)
		}
		out[i] = ""
	}
	if out == nil {
		return src
	}
	return out
}

// claimExisting returns the first unclaimed region of the same tag and shape
// as block and marks it taken.
func (t *Target) claimExisting(block model.TaggedBlock) (extract.Region, bool) {
	for i, r := range t.regions {
		if t.claimed[i] || r.Type != block.Type || !strings.EqualFold(r.Tag, block.Tag) {
			continue
		}
		t.claimed[i] = true
		return r, true
	}
	return extract.Region{}, false
}

// Resolver picks a Plan for each block.
type Resolver struct {
	opts Options
	log  *zap.Logger
}

// NewResolver creates a Resolver. A nil logger disables logging.
func NewResolver(opts Options, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{opts: opts.withDefaults(), log: log}
}

// Place plans a single block against fresh target lines with the default
// options.
func Place(targetLines []string, block model.TaggedBlock, tags []string) Plan {
	return NewResolver(DefaultOptions(), nil).Place(NewTarget(targetLines, tags), block)
}

// Place runs the strategies in order and returns the first that succeeds.
// It always returns a plan: the last strategy cannot fail.
func (r *Resolver) Place(t *Target, block model.TaggedBlock) Plan {
	content := lines.Split(block.Content)
	log := r.log.With(zap.String("tag", block.Tag), zap.Int("source_line", block.StartLine))

	if reg, ok := t.claimExisting(block); ok {
		log.Info("tag already in target, replacing", zap.Int("start", reg.Start), zap.Int("end", reg.End))
		return Plan{Strategy: StrategyExistingTag, Replace: true, Start: reg.Start, End: reg.End, Lines: content}
	}

	if pos, ok := r.byContext(t, block.ContextAbove, block.ContextBelow, t.exact()); ok {
		log.Info("exact context match", zap.Int("line", pos))
		return Plan{Strategy: StrategyExactContext, InsertAt: pos, Lines: content}
	}

	fuzzy := t.fuzzy(r.opts.FuzzyThreshold)
	if pos, ok := r.byContext(t, block.ContextAbove, block.ContextBelow, fuzzy); ok {
		log.Info("fuzzy context match", zap.Int("line", pos))
		return Plan{Strategy: StrategyFuzzyContext, InsertAt: pos, Lines: content}
	}

	if pos, ok := r.byNearest(t, block.ContextAbove, block.ContextBelow, fuzzy); ok {
		log.Info("nearest context match", zap.Int("line", pos))
		return Plan{Strategy: StrategyNearestContext, InsertAt: pos, Lines: content}
	}

	log.Warn("no context match, appending at end of file")
	out := make([]string, 0, len(content)+2)
	out = append(out, "", WarningLine(block.Tag))
	out = append(out, content...)
	return Plan{Strategy: StrategyFallback, InsertAt: len(t.Lines), Lines: out}
}

// byContext anchors on trailing windows of the above-context, largest first.
// A candidate is only accepted when the first below-context line shows up
// shortly after it. If the above-context never anchors, leading windows of
// the below-context are tried and the block goes before them.
func (r *Resolver) byContext(t *Target, above, below []string, eq equalFunc) (int, bool) {
	if len(above) == 0 && len(below) == 0 {
		return 0, false
	}

	for window := len(above); window > 0; window-- {
		pos, ok := t.findSequence(above[len(above)-window:], eq)
		if !ok {
			continue
		}
		at := pos + window
		if len(below) == 0 || r.belowFollows(t, at, below[0], eq) {
			return at, true
		}
	}

	for window := len(below); window > 0; window-- {
		if pos, ok := t.findSequence(below[:window], eq); ok {
			return pos, true
		}
	}
	return 0, false
}

func (r *Resolver) belowFollows(t *Target, at int, want string, eq equalFunc) bool {
	limit := min(at+r.opts.BelowWindow, len(t.Lines))
	for i := at; i < limit; i++ {
		if eq(i, want) {
			return true
		}
	}
	return false
}

// byNearest matches only the single closest context line anywhere in the
// target.
func (r *Resolver) byNearest(t *Target, above, below []string, eq equalFunc) (int, bool) {
	if len(above) > 0 {
		if i, ok := t.findLine(above[len(above)-1], eq); ok {
			return i + 1, true
		}
	}
	if len(below) > 0 {
		if i, ok := t.findLine(below[0], eq); ok {
			return i, true
		}
	}
	return 0, false
}
