package retrofit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sokinpui/retrofit/cli"
	"github.com/sokinpui/retrofit/internal/applier"
	"github.com/sokinpui/retrofit/internal/config"
	"github.com/sokinpui/retrofit/internal/fs"
	"github.com/sokinpui/retrofit/internal/merge"
	"github.com/sokinpui/retrofit/internal/placement"
	"github.com/sokinpui/retrofit/internal/report"
	"github.com/sokinpui/retrofit/internal/state"
	"github.com/sokinpui/retrofit/internal/workspace"
	"github.com/sokinpui/retrofit/model"
)

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// App orchestrates a retrofit run over whole source and target trees.
type App struct {
	cfg              *cli.Config
	settings         *config.Config
	log              *zap.Logger
	applier          *applier.Applier
	progressCallback ProgressUpdate
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// New creates a new App. A nil settings value uses the defaults and a nil
// logger disables engine logs.
func New(cfg *cli.Config, settings *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("retrofit: nil config")
	}
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.NormalizeTags()
	cfg.ApplyDefaults(settings)

	merger := merge.New(merge.Options{
		ContextLines: settings.ContextLines,
		Placement: placement.Options{
			FuzzyThreshold: settings.FuzzyThreshold,
			BelowWindow:    settings.BelowWindow,
		},
	}, log)

	return &App{
		cfg:      cfg,
		settings: settings,
		log:      log,
		applier:  applier.New(merger, log),
	}, nil
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// Execute runs the command selected by the config.
func (a *App) Execute(ctx context.Context) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch {
	case a.cfg.Undo:
		return a.undoLastOperation()
	case a.cfg.Redo:
		return a.redoLastOperation()
	default:
		return a.Run(ctx)
	}
}

// fileOutcome is what processing one source file produced. result is nil
// for files that do not mention any tag.
type fileOutcome struct {
	result *model.RetrofitResult
	change *state.Change
}

// unit is one source file and the target file it writes to.
type unit struct {
	index     int
	rel       string
	target    string
	found     bool
	writePath string
}

// groupByTarget resolves every file and groups the ones that share a write
// path. Groups keep the order of their first file, and files keep their
// order within a group.
func (a *App) groupByTarget(files []string, resolver *fs.TargetResolver) [][]unit {
	var groups [][]unit
	byPath := make(map[string]int)
	for i, rel := range files {
		u := unit{index: i, rel: rel}
		u.target, u.found = resolver.Resolve(rel)
		u.writePath = u.target
		if !u.found {
			u.writePath = filepath.Join(a.cfg.TargetRoot, filepath.FromSlash(rel))
		}
		if g, ok := byPath[u.writePath]; ok {
			a.log.Debug("target shared by several source files",
				zap.String("target", u.writePath),
				zap.String("file", rel))
			groups[g] = append(groups[g], u)
			continue
		}
		byPath[u.writePath] = len(groups)
		groups = append(groups, []unit{u})
	}
	return groups
}

// Run retrofits every tagged source file. Per-file failures are reported in
// the summary; only unusable arguments fail the run.
func (a *App) Run(ctx context.Context) (model.Summary, error) {
	if err := a.cfg.ValidateRun(); err != nil {
		return model.Summary{}, err
	}

	var (
		ws  *workspace.Workspace
		err error
	)
	if a.cfg.Preview {
		ws, err = workspace.At(a.cfg.WorkspaceRoot, a.cfg.Reference)
	} else {
		ws, err = workspace.Create(a.cfg.WorkspaceRoot, a.cfg.Reference)
	}
	if err != nil {
		return model.Summary{}, err
	}

	files, err := fs.Enumerate(a.cfg.SourceRoot, a.settings.SupportedExtensions, a.settings.Exclude)
	if err != nil {
		return model.Summary{}, err
	}
	summary := model.Summary{RunID: report.NewRunID(), Preview: a.cfg.Preview, Scanned: len(files)}
	if len(files) == 0 {
		summary.Message = "No supported files found in source path."
		return summary, nil
	}
	a.log.Info("retrofit run started",
		zap.String("run_id", summary.RunID),
		zap.String("reference", ws.Reference),
		zap.Strings("tags", a.cfg.Tags),
		zap.Int("files", len(files)),
		zap.Int("jobs", a.cfg.Jobs))

	resolver := fs.NewTargetResolver(a.cfg.SourceRoot, a.cfg.TargetRoot, a.settings.FolderMapping, a.log)
	groups := a.groupByTarget(files, resolver)
	outcomes := make([]fileOutcome, len(files))

	var (
		mu   sync.Mutex
		done int
	)
	total := len(files)
	if a.progressCallback != nil {
		a.progressCallback(0, total)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Jobs)
	// Files sharing a target run one after another in a single worker, so
	// each sees what the previous one wrote.
	for _, group := range groups {
		g.Go(func() error {
			var prior *state.Change
			for _, u := range group {
				if err := gctx.Err(); err != nil {
					return err
				}
				o := a.processFile(u, ws, prior)
				if o.change != nil {
					prior = o.change
				}
				outcomes[u.index] = o
				if a.progressCallback != nil {
					mu.Lock()
					done++
					a.progressCallback(done, total)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	// One journal entry per target path. A later change for the same path
	// already carries the first snapshot and hash.
	var changes []state.Change
	seen := make(map[string]int)
	for _, o := range outcomes {
		if o.result == nil {
			continue
		}
		summary.Add(*o.result)
		if o.change == nil {
			continue
		}
		if i, ok := seen[o.change.Path]; ok {
			changes[i] = *o.change
			continue
		}
		seen[o.change.Path] = len(changes)
		changes = append(changes, *o.change)
	}

	if a.cfg.Preview {
		summary.Message = "Preview complete: no files were written."
		return summary, nil
	}

	summary.WorkspaceDir = ws.Base
	rep := report.Report{
		Reference:  ws.Reference,
		SourceRoot: a.cfg.SourceRoot,
		TargetRoot: a.cfg.TargetRoot,
		Tags:       a.cfg.Tags,
		Generated:  time.Now(),
		Summary:    summary,
	}
	if _, err := rep.Write(ws.Base); err != nil {
		return summary, err
	}

	if len(changes) > 0 {
		stateManager, err := state.New(a.cfg.WorkspaceRoot)
		if err != nil {
			return summary, err
		}
		if err := stateManager.Write(ws.Reference, state.CreateOperations(changes)); err != nil {
			return summary, err
		}
	}
	summary.Message = fmt.Sprintf("Processed %d tagged file(s).", len(summary.Results))
	return summary, nil
}

// processFile runs the per-file pipeline. It never returns an error: a
// failure is recorded on the result. prior is the journal entry of an
// earlier file of the same run that already wrote this target; the target
// is then not snapshotted again.
func (a *App) processFile(u unit, ws *workspace.Workspace, prior *state.Change) fileOutcome {
	log := a.log.With(zap.String("file", u.rel))
	res := &model.RetrofitResult{SourceFile: u.rel, Type: model.RetrofitSkipped}
	fail := func(err error) fileOutcome {
		log.Error("retrofit failed", zap.Error(err))
		res.Err = err
		return fileOutcome{result: res}
	}

	srcPath := filepath.Join(a.cfg.SourceRoot, filepath.FromSlash(u.rel))
	src, err := fs.ReadText(srcPath)
	if err != nil {
		return fail(err)
	}
	if !HasAnyTag(src, a.cfg.Tags) {
		return fileOutcome{}
	}

	var target *string
	if u.found {
		content, err := fs.ReadText(u.target)
		if err != nil {
			return fail(err)
		}
		target = &content
	}

	var change *state.Change
	if !a.cfg.Preview {
		if err := ws.Snapshot(srcPath, ws.SourceCopyPath(u.rel)); err != nil {
			return fail(err)
		}
		switch {
		case prior != nil:
			c := *prior
			change = &c
		case u.found:
			change, err = a.snapshotTarget(ws, u.target)
			if err != nil {
				return fail(err)
			}
		default:
			change = &state.Change{Path: u.writePath, Action: state.ActionCreate}
		}
	}

	out, err := a.applier.RetrofitFile(src, target, a.cfg.Tags, ws.RetroPath(u.rel), applier.Options{
		ApplyToTarget: a.cfg.ApplyToTarget,
		TargetPath:    u.writePath,
		SourcePath:    srcPath,
		DryRun:        a.cfg.Preview,
		Diff:          a.cfg.Diff,
		Name:          u.rel,
	})
	out.SourceFile = u.rel
	if !u.found {
		out.TargetFile = ""
	}
	if err != nil {
		out.Err = err
		log.Error("retrofit failed", zap.Error(err))
		return fileOutcome{result: &out}
	}

	if !out.Applied {
		return fileOutcome{result: &out}
	}
	change.Retro = out.RetroPath
	return fileOutcome{result: &out, change: change}
}

// snapshotTarget copies the target into the workspace before anything can
// write to it.
func (a *App) snapshotTarget(ws *workspace.Workspace, targetPath string) (*state.Change, error) {
	rel, err := filepath.Rel(a.cfg.TargetRoot, targetPath)
	if err != nil {
		rel = filepath.Base(targetPath)
	}
	snapshot := ws.TargetCopyPath(filepath.ToSlash(rel))
	if err := ws.Snapshot(targetPath, snapshot); err != nil {
		return nil, err
	}
	prev, err := fs.GetFileSHA256(targetPath)
	if err != nil {
		return nil, fmt.Errorf("retrofit: hash %s: %w", targetPath, err)
	}
	return &state.Change{Path: targetPath, Action: state.ActionModify, PrevHash: prev, Snapshot: snapshot}, nil
}

// undoLastOperation restores the target files written by the last apply run.
func (a *App) undoLastOperation() (model.Summary, error) {
	stateManager, err := state.New(a.cfg.WorkspaceRoot)
	if err != nil {
		return model.Summary{}, err
	}
	entry, err := stateManager.GetOperationsToUndo()
	if err != nil {
		return model.Summary{}, err
	}
	if entry == nil {
		return model.Summary{Message: "No operation to undo."}, nil
	}

	undone, failed := state.UndoFiles(entry.Operations, a.progressFor(len(entry.Operations)))
	summary := model.Summary{
		Reverted: undone,
		Failed:   failed,
		Message:  fmt.Sprintf("Undid last apply run (%s).", entry.Reference),
	}
	a.relativizeSummaryPaths(&summary)
	return summary, nil
}

// redoLastOperation re-applies the last undone run.
func (a *App) redoLastOperation() (model.Summary, error) {
	stateManager, err := state.New(a.cfg.WorkspaceRoot)
	if err != nil {
		return model.Summary{}, err
	}
	entry, err := stateManager.GetOperationsToRedo()
	if err != nil {
		return model.Summary{}, err
	}
	if entry == nil {
		return model.Summary{Message: "No operation to redo."}, nil
	}

	redone, failed := state.RedoFiles(entry.Operations, a.progressFor(len(entry.Operations)))
	summary := model.Summary{
		Reverted: redone,
		Failed:   failed,
		Message:  fmt.Sprintf("Redid last undone apply run (%s).", entry.Reference),
	}
	a.relativizeSummaryPaths(&summary)
	return summary, nil
}

func (a *App) progressFor(total int) func(int) {
	if a.progressCallback == nil {
		return nil
	}
	a.progressCallback(0, total)
	return func(current int) {
		a.progressCallback(current, total)
	}
}

// relativizeSummaryPaths converts absolute file paths in a summary to be
// relative to the current working directory for cleaner display.
func (a *App) relativizeSummaryPaths(summary *model.Summary) {
	wd, err := os.Getwd()
	if err != nil {
		return
	}

	makeRelative := func(absPaths []string) []string {
		relPaths := make([]string, len(absPaths))
		for i, p := range absPaths {
			rel, err := filepath.Rel(wd, p)
			if err != nil {
				relPaths[i] = p
			} else {
				relPaths[i] = rel
			}
		}
		return relPaths
	}

	summary.Reverted = makeRelative(summary.Reverted)
	summary.Failed = makeRelative(summary.Failed)
}
