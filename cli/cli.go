package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sokinpui/retrofit/internal/config"
	"github.com/sokinpui/retrofit/internal/source"
)

// Config holds all the command-line flag values.
type Config struct {
	Reference     string
	SourceRoot    string
	TargetRoot    string
	Tags          []string
	Preview       bool
	ApplyToTarget bool
	Diff          bool
	Jobs          int
	NoAnimation   bool
	WorkspaceRoot string
	ConfigDir     string
	Verbose       bool

	Undo bool
	Redo bool
}

// BindGlobalFlags registers the flags shared by every command.
func BindGlobalFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging.")
	fs.StringVarP(&cfg.ConfigDir, "config-dir", "c", ".", "Directory holding retrofit.yml and .env.")
	fs.BoolVar(&cfg.NoAnimation, "no-animation", false, "Disable loading spinner and progress updates.")
}

// BindRunFlags registers the flags of a retrofit run.
func BindRunFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.Reference, "reference", "r", "", "Reference name, used as the workspace folder (e.g. BANKING-123456).")
	fs.StringVarP(&cfg.SourceRoot, "source", "s", "", "Source tree holding the tagged changes (default $RETROFIT_SOURCE).")
	fs.StringVarP(&cfg.TargetRoot, "target", "t", "", "Target tree to retrofit the changes into (default $RETROFIT_TARGET).")
	fs.StringSliceVarP(&cfg.Tags, "tag", "g", []string{}, "Search tag; repeatable or semicolon-separated. Read from stdin or clipboard when omitted.")
	fs.BoolVarP(&cfg.Preview, "preview", "p", false, "Classify and count only; write nothing.")
	fs.BoolVarP(&cfg.ApplyToTarget, "apply", "a", false, "Also write results into the target tree (undoable).")
	fs.BoolVarP(&cfg.Diff, "diff", "d", false, "Include unified diffs in the report.")
	fs.IntVarP(&cfg.Jobs, "jobs", "j", 0, "Files processed in parallel (default from config, 1 = sequential).")
	fs.StringVarP(&cfg.WorkspaceRoot, "workspace", "w", "", "Workspace root (default from config or RETROFIT_WORKSPACE_ROOT).")
}

// NormalizeTags splits semicolon-separated flag values and drops blanks
// and duplicates.
func (c *Config) NormalizeTags() {
	c.Tags = source.ParseTags(strings.Join(c.Tags, ";"))
}

// ApplyDefaults fills unset values from the environment and the loaded
// settings. Call it after .env has been loaded.
func (c *Config) ApplyDefaults(settings *config.Config) {
	if c.SourceRoot == "" {
		c.SourceRoot = os.Getenv(config.EnvSource)
	}
	if c.TargetRoot == "" {
		c.TargetRoot = os.Getenv(config.EnvTarget)
	}
	if c.Jobs <= 0 {
		c.Jobs = settings.Jobs
	}
	if c.Jobs <= 0 {
		c.Jobs = 1
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = settings.WorkspaceRoot
	}
}

// ValidateRun checks everything a retrofit run needs before any file is
// touched.
func (c *Config) ValidateRun() error {
	var errs []error
	if c.Reference == "" {
		errs = append(errs, errors.New("--reference is required"))
	}
	for _, dir := range []struct{ flag, path string }{{"--source", c.SourceRoot}, {"--target", c.TargetRoot}} {
		if dir.path == "" {
			errs = append(errs, fmt.Errorf("%s is required", dir.flag))
			continue
		}
		info, err := os.Stat(dir.path)
		if err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("%s path does not exist or is not a directory: %s", dir.flag, dir.path))
		}
	}
	if len(c.Tags) == 0 {
		errs = append(errs, errors.New("at least one search tag is required"))
	}
	if c.Preview && c.ApplyToTarget {
		errs = append(errs, errors.New("--preview and --apply are mutually exclusive"))
	}
	return errors.Join(errs...)
}
