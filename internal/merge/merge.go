package merge

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sokinpui/retrofit/internal/extract"
	"github.com/sokinpui/retrofit/internal/lines"
	"github.com/sokinpui/retrofit/internal/placement"
	"github.com/sokinpui/retrofit/model"
)

// Stats describes how the blocks of one merge were placed.
type Stats struct {
	Blocks     int
	ByStrategy map[placement.Strategy]int
	// Collisions counts inserts that landed inside a replaced range and
	// were moved to just after it.
	Collisions int
}

// Fallbacks is the number of blocks appended at the end of the file.
func (s Stats) Fallbacks() int {
	return s.ByStrategy[placement.StrategyFallback]
}

// Options configures extraction and placement for a Merger.
type Options struct {
	ContextLines int
	Placement    placement.Options
}

// Merger splices tagged blocks into target documents.
type Merger struct {
	extractor extract.Extractor
	resolver  *placement.Resolver
	log       *zap.Logger
}

// New creates a Merger. A nil logger disables logging.
func New(opts Options, log *zap.Logger) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{
		extractor: extract.New(opts.ContextLines),
		resolver:  placement.NewResolver(opts.Placement, log),
		log:       log,
	}
}

var defaultMerger = New(Options{}, nil)

// Merge uses the default options.
func Merge(target string, blocks []model.TaggedBlock, tags []string) (string, Stats, error) {
	return defaultMerger.Merge(target, blocks, tags)
}

// SmartMerge extracts the tagged blocks of source and merges them into target.
func SmartMerge(source, target string, tags []string) (string, Stats, error) {
	return defaultMerger.SmartMerge(source, target, tags)
}

// SmartMerge extracts the tagged blocks of source and merges them into target.
func (m *Merger) SmartMerge(source, target string, tags []string) (string, Stats, error) {
	blocks, err := m.Extract(source, tags)
	if err != nil {
		return "", Stats{}, err
	}
	return m.Merge(target, blocks, tags)
}

// Extract runs the Merger's extractor.
func (m *Merger) Extract(content string, tags []string) ([]model.TaggedBlock, error) {
	return m.extractor.Extract(content, tags)
}

// pending is a planned edit keyed by its index in the original target.
type pending struct {
	order int
	plan  placement.Plan
}

// Merge places every block against the original target lines and then
// builds the result in a single pass over them. The target is never
// re-matched against already inserted content.
func (m *Merger) Merge(target string, blocks []model.TaggedBlock, tags []string) (string, Stats, error) {
	stats := Stats{ByStrategy: make(map[placement.Strategy]int)}
	if len(blocks) == 0 {
		return target, stats, nil
	}
	if len(extract.CleanTags(tags)) == 0 {
		return "", stats, extract.ErrNoTags
	}
	for _, b := range blocks {
		if err := b.Validate(); err != nil {
			return "", stats, fmt.Errorf("merge: %w", err)
		}
	}

	ordered := make([]model.TaggedBlock, len(blocks))
	copy(ordered, blocks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartLine < ordered[j].StartLine
	})

	original := lines.Split(target)
	t := placement.NewTarget(original, tags)

	replaces := make(map[int]placement.Plan)
	var inserts []pending
	for i, b := range ordered {
		plan := m.resolver.Place(t, b)
		stats.Blocks++
		stats.ByStrategy[plan.Strategy]++
		if plan.Replace {
			replaces[plan.Start] = plan
			continue
		}
		inserts = append(inserts, pending{order: i, plan: plan})
	}

	for i := range inserts {
		p := &inserts[i].plan
		for _, r := range replaces {
			if p.InsertAt > r.Start && p.InsertAt <= r.End {
				m.log.Warn("insert collides with replaced range, moving after it",
					zap.Int("insert_at", p.InsertAt),
					zap.Int("range_start", r.Start),
					zap.Int("range_end", r.End))
				p.InsertAt = r.End + 1
				stats.Collisions++
				break
			}
		}
	}

	out := apply(original, replaces, inserts)
	result := lines.Join(out)
	if lines.HasTrailingNewline(target) {
		result += "\n"
	}
	return result, stats, nil
}

// apply walks the original lines once. Inserts at an index come before the
// original line (or replaced range) at that index and keep source order.
func apply(original []string, replaces map[int]placement.Plan, inserts []pending) []string {
	sort.SliceStable(inserts, func(i, j int) bool {
		if inserts[i].plan.InsertAt != inserts[j].plan.InsertAt {
			return inserts[i].plan.InsertAt < inserts[j].plan.InsertAt
		}
		return inserts[i].order < inserts[j].order
	})

	size := len(original)
	for _, p := range inserts {
		size += len(p.plan.Lines)
	}
	out := make([]string, 0, size)

	next := 0
	flush := func(at int) {
		for next < len(inserts) && inserts[next].plan.InsertAt <= at {
			out = append(out, inserts[next].plan.Lines...)
			next++
		}
	}
	for i := 0; i < len(original); i++ {
		flush(i)
		if r, ok := replaces[i]; ok {
			out = append(out, r.Lines...)
			i = r.End
			continue
		}
		out = append(out, original[i])
	}
	flush(len(original))
	return out
}
