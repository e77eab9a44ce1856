package applier

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sokinpui/retrofit/internal/extract"
	"github.com/sokinpui/retrofit/internal/fs"
	"github.com/sokinpui/retrofit/internal/merge"
	"github.com/sokinpui/retrofit/internal/report"
	"github.com/sokinpui/retrofit/model"
)

// Options controls where a result is written.
type Options struct {
	// ApplyToTarget also writes the result to TargetPath.
	ApplyToTarget bool
	TargetPath    string
	// SourcePath is the file source was read from. A new unit is copied
	// from it byte for byte instead of being written from decoded text.
	SourcePath string
	// DryRun classifies and merges without writing anything.
	DryRun bool
	// Diff fills RetrofitResult.Diff with a unified diff against the target.
	Diff bool
	// Name labels the diff header; it defaults to the output path.
	Name string
}

// Applier classifies one source file and writes its retrofitted content.
type Applier struct {
	merger *merge.Merger
	log    *zap.Logger
}

// New creates an Applier. A nil merger uses the default options.
func New(merger *merge.Merger, log *zap.Logger) *Applier {
	if log == nil {
		log = zap.NewNop()
	}
	if merger == nil {
		merger = merge.New(merge.Options{}, log)
	}
	return &Applier{merger: merger, log: log}
}

// RetrofitFile uses a default Applier.
func RetrofitFile(source string, target *string, tags []string, outputPath string, opts Options) (model.RetrofitResult, error) {
	return New(nil, nil).RetrofitFile(source, target, tags, outputPath, opts)
}

// RetrofitFile decides what happens to one source file:
//
//   - no tag anywhere in source: SKIPPED, nothing is written
//   - no target: NEW_UNIT, the source is copied as is
//   - no extractable block: SKIPPED
//   - otherwise: MERGED into the target content
//
// Non-skipped content is written to outputPath, and to opts.TargetPath too
// when opts.ApplyToTarget is set.
func (a *Applier) RetrofitFile(source string, target *string, tags []string, outputPath string, opts Options) (model.RetrofitResult, error) {
	if len(extract.CleanTags(tags)) == 0 {
		return model.RetrofitResult{}, extract.ErrNoTags
	}
	res := model.RetrofitResult{
		Type:        model.RetrofitSkipped,
		TargetFile:  opts.TargetPath,
		TargetFound: target != nil,
	}
	log := a.log.With(zap.String("output", outputPath))

	if !extract.HasAnyTag(source, tags) {
		log.Debug("no tag in source, skipping")
		return res, nil
	}

	var content, before string
	if target == nil {
		res.Type = model.RetrofitNewUnit
		content = source
	} else {
		before = *target
		blocks, err := a.merger.Extract(source, tags)
		if err != nil {
			return res, err
		}
		if len(blocks) == 0 {
			log.Info("no tagged blocks in source, skipping")
			return res, nil
		}
		merged, stats, err := a.merger.Merge(before, blocks, tags)
		if err != nil {
			return res, err
		}
		res.Type = model.RetrofitMerged
		res.BlocksFound = len(blocks)
		res.Fallbacks = stats.Fallbacks()
		content = merged
		if stats.Fallbacks() > 0 {
			log.Warn("blocks appended without context match", zap.Int("count", stats.Fallbacks()))
		}
	}
	res.RetroPath = outputPath

	if opts.Diff {
		name := opts.Name
		if name == "" {
			name = outputPath
		}
		diff, err := report.UnifiedDiff(name, before, content)
		if err != nil {
			return res, fmt.Errorf("applier: diff %s: %w", name, err)
		}
		res.Diff = diff
	}

	if opts.DryRun {
		return res, nil
	}
	write := func(path string) error {
		if res.Type == model.RetrofitNewUnit && opts.SourcePath != "" {
			return fs.CopyFile(opts.SourcePath, path)
		}
		return fs.WriteText(path, content)
	}
	if err := write(outputPath); err != nil {
		return res, err
	}
	if opts.ApplyToTarget && opts.TargetPath != "" {
		if err := write(opts.TargetPath); err != nil {
			return res, err
		}
		res.Applied = true
	}
	log.Info("retrofit written", zap.String("type", string(res.Type)), zap.Int("blocks", res.BlocksFound))
	return res, nil
}
