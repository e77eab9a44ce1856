package main

import (
	"encoding/json"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sokinpui/retrofit/internal/fs"
	"github.com/sokinpui/retrofit/internal/merge"
	"github.com/sokinpui/retrofit/internal/placement"
	"github.com/sokinpui/retrofit/internal/report"
	"github.com/sokinpui/retrofit/internal/source"
	"github.com/sokinpui/retrofit/internal/tui"
	"github.com/sokinpui/retrofit/internal/ui"
	"github.com/sokinpui/retrofit/model"
	"github.com/sokinpui/retrofit/retrofit"
)

var mergeOutput string

func runRetrofit(cmd *cobra.Command, args []string) error {
	cfg.NormalizeTags()
	if len(cfg.Tags) == 0 {
		tags, err := source.New().GetTags()
		if err != nil {
			return err
		}
		cfg.Tags = tags
	}

	app, err := retrofit.New(&cfg, settings, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.NoAnimation {
		var bar *ui.ProgressBar
		app.SetProgressCallback(func(current, total int) {
			if bar == nil {
				bar = ui.NewProgressBar(total, "Retrofitting")
				bar.Start()
			}
			bar.Set(current)
		})
		summary, err := app.Execute(ctx)
		if bar != nil {
			bar.Finish()
		}
		if err != nil {
			return err
		}
		ui.PrintRetrofitSummary(summary)
		return nil
	}

	m := tui.New(ctx, app)
	p := tea.NewProgram(m)
	m.SetProgram(p)
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	if fm, ok := final.(tui.Model); ok && fm.Err() != nil {
		return fm.Err()
	}
	return nil
}

func runHistory(cmd *cobra.Command) error {
	app, err := retrofit.New(&cfg, settings, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	summary, err := app.Execute(cmd.Context())
	if err != nil {
		return err
	}
	if summary.Message != "" {
		ui.Header("%s", summary.Message)
	}
	if cfg.Undo {
		ui.PrintUndoSummary(summary.Reverted, summary.Failed)
	} else {
		ui.PrintRedoSummary(summary.Reverted, summary.Failed)
	}
	if len(summary.Failed) > 0 {
		return errors.New("some files were changed since the run and were left untouched")
	}
	return nil
}

func newMerger() *merge.Merger {
	return merge.New(merge.Options{
		ContextLines: settings.ContextLines,
		Placement: placement.Options{
			FuzzyThreshold: settings.FuzzyThreshold,
			BelowWindow:    settings.BelowWindow,
		},
	}, logger)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg.NormalizeTags()
	content, err := fs.ReadText(args[0])
	if err != nil {
		return err
	}
	blocks, err := newMerger().Extract(content, cfg.Tags)
	if err != nil {
		return err
	}
	if blocks == nil {
		blocks = []model.TaggedBlock{}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(blocks)
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg.NormalizeTags()
	src, err := fs.ReadText(args[0])
	if err != nil {
		return err
	}
	target, err := fs.ReadText(args[1])
	if err != nil {
		return err
	}

	merged, stats, err := newMerger().SmartMerge(src, target, cfg.Tags)
	if err != nil {
		return err
	}
	logger.Debug("merged",
		zap.Int("blocks", stats.Blocks),
		zap.Int("collisions", stats.Collisions),
		zap.Int("fallbacks", stats.Fallbacks()))
	if n := stats.Fallbacks(); n > 0 {
		ui.Warning("%d block(s) had no context match and were appended at the end.", n)
	}

	if cfg.Diff {
		diff, err := report.UnifiedDiff(args[1], target, merged)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), diff)
		return err
	}
	if mergeOutput != "" {
		if err := fs.WriteText(mergeOutput, merged); err != nil {
			return err
		}
		ui.Success("Wrote %s", mergeOutput)
		return nil
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), merged)
	return err
}
