package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/sokinpui/retrofit/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	PromptColor  = color.New(color.FgMagenta)
)

// Output receives everything printed by this package.
var Output io.Writer = os.Stderr

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Output, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Output, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Output, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Output, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Output, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Output, "  "+format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

// --- Summaries ---

// FormatResult is the one-line breakdown entry for a file.
func FormatResult(r model.RetrofitResult) string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s: failed (%v)", r.SourceFile, r.Err)
	case r.Type == model.RetrofitNewUnit:
		return fmt.Sprintf("%s: new unit (direct copy)", r.SourceFile)
	case r.Type == model.RetrofitMerged && r.Fallbacks > 0:
		return fmt.Sprintf("%s: retrofitted (%d blocks applied, %d without context match)", r.SourceFile, r.BlocksFound, r.Fallbacks)
	case r.Type == model.RetrofitMerged:
		return fmt.Sprintf("%s: retrofitted (%d blocks applied)", r.SourceFile, r.BlocksFound)
	default:
		return fmt.Sprintf("%s: skipped (no valid blocks matched)", r.SourceFile)
	}
}

func PrintRetrofitSummary(s model.Summary) {
	mode := "APPLY"
	if s.Preview {
		mode = "PREVIEW"
	}
	Header("\n--- Retrofit Summary (%s) ---", mode)

	if len(s.Results) == 0 {
		Info("No files matched the search tags in the source path.")
		return
	}

	Info("New units: %d  Merged: %d  Skipped: %d  Failed: %d", len(s.NewUnits), len(s.Merged), len(s.Skipped), len(s.Failed))

	Header("\nDetailed Breakdown")
	for _, r := range s.Results {
		line := FormatResult(r)
		switch {
		case r.Err != nil:
			Error("  - %s", line)
		case r.Fallbacks > 0:
			Warning("  - %s", line)
		case r.Type == model.RetrofitSkipped:
			fmt.Fprintf(Output, "  - %s\n", line)
		default:
			Success("  - %s", line)
		}
	}

	if n := s.Fallbacks(); n > 0 {
		Warning("\n%d block(s) were appended at end of file; search for \"Auto-placed by Retrofit Automation\".", n)
	}
	Success("\nProcess complete: %d file(s) analyzed.", len(s.Results))
	if s.Preview {
		Info("Preview complete: no files were written.")
	} else if s.WorkspaceDir != "" {
		Info("Files written to: %s", s.WorkspaceDir)
	}
}

func PrintUndoSummary(undone, failed []string) {
	Header("\n--- Undo Summary ---")
	if len(undone) > 0 {
		Success("Successfully restored %d file(s):", len(undone))
		for _, f := range undone {
			fmt.Fprintf(Output, "  - %s\n", f)
		}
	}
	if len(failed) > 0 {
		Error("Failed to restore %d file(s) (changed since the run?):", len(failed))
		for _, f := range failed {
			fmt.Fprintf(Output, "  - %s\n", f)
		}
	}
}

func PrintRedoSummary(redone, failed []string) {
	Header("\n--- Redo Summary ---")
	if len(redone) > 0 {
		Success("Successfully redid %d file(s):", len(redone))
		for _, f := range redone {
			fmt.Fprintf(Output, "  - %s\n", f)
		}
	}
	if len(failed) > 0 {
		Error("Failed to redo %d file(s):", len(failed))
		for _, f := range failed {
			fmt.Fprintf(Output, "  - %s\n", f)
		}
	}
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

// Set moves the bar to an absolute position.
func (p *ProgressBar) Set(current int) {
	p.current = current
	p.draw()
}

func (p *ProgressBar) Increment() {
	p.current++
	p.draw()
}

func (p *ProgressBar) Finish() {
	fmt.Fprintln(Output)
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	percentStr := fmt.Sprintf("%.1f%%", percent*100)
	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)

	fmt.Fprintf(Output, "\r%s |%s| %s %s", p.prefix, bar, countStr, percentStr)
}
