package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sokinpui/retrofit/cli"
	"github.com/sokinpui/retrofit/internal/config"
)

var version = "dev"

const logFileName = "retrofit.log"

var (
	cfg      cli.Config
	settings *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "retrofit",
	Short: "Carry tagged PL/SQL changes from one source tree into another",
	Long: `retrofit finds the code blocks marked with a change tag in a source tree
and merges them into the matching files of a target tree.

Every run is staged under <workspace>/<reference>/ (Source, Target, Retro and
a report). With --apply the results are also written into the target tree,
and the last apply can be reverted with "retrofit undo".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(cfg.ConfigDir); err != nil {
			return err
		}
		var err error
		settings, err = config.Load(cfg.ConfigDir)
		if err != nil {
			return err
		}

		// Initialize logger. The TUI owns the terminal, so its logs go to a
		// file under the workspace root.
		var logFile string
		if cmd.Name() == "run" && !cfg.NoAnimation {
			logFile, err = tuiLogFile(cfg.WorkspaceRoot, settings.WorkspaceRoot)
			if err != nil {
				return err
			}
		}
		logger, err = loggerConfig(cfg.Verbose, logFile).Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if settings.Path != "" {
			logger.Debug("loaded settings", zap.String("path", settings.Path))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Retrofit every tagged file of the source tree",
	Example: `  retrofit run -r BANKING-123 -s ./sit -t ./uat -g BANKING-123
  retrofit run -r BANKING-123 -g "BANKING-123;BANKING-124" --apply --diff
  echo BANKING-123 | retrofit run -r BANKING-123 --preview`,
	Args: cobra.NoArgs,
	RunE: runRetrofit,
}

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Print the tagged blocks found in a file as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var mergeCmd = &cobra.Command{
	Use:   "merge SOURCE TARGET",
	Short: "Merge the tagged blocks of one file into another",
	Args:  cobra.ExactArgs(2),
	RunE:  runMerge,
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Revert the target files written by the last apply run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.Undo = true
		return runHistory(cmd)
	},
}

var redoCmd = &cobra.Command{
	Use:   "redo",
	Short: "Re-apply the last undone run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.Redo = true
		return runHistory(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "retrofit", version)
	},
}

func init() {
	cli.BindGlobalFlags(rootCmd.PersistentFlags(), &cfg)
	cli.BindRunFlags(runCmd.Flags(), &cfg)

	extractCmd.Flags().StringSliceVarP(&cfg.Tags, "tag", "g", []string{}, "Search tag; repeatable or semicolon-separated.")
	mergeCmd.Flags().StringSliceVarP(&cfg.Tags, "tag", "g", []string{}, "Search tag; repeatable or semicolon-separated.")
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "Write the result to this file instead of stdout.")
	mergeCmd.Flags().BoolVarP(&cfg.Diff, "diff", "d", false, "Print a unified diff against TARGET instead of the result.")
	undoCmd.Flags().StringVarP(&cfg.WorkspaceRoot, "workspace", "w", "", "Workspace root holding the journal.")
	redoCmd.Flags().StringVarP(&cfg.WorkspaceRoot, "workspace", "w", "", "Workspace root holding the journal.")

	rootCmd.AddCommand(runCmd, extractCmd, mergeCmd, undoCmd, redoCmd, versionCmd)
}

// loggerConfig is the production config at Warn level, or Debug when
// verbose. A non-empty logFile replaces stderr as the output.
func loggerConfig(verbose bool, logFile string) zap.Config {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if logFile != "" {
		zc.OutputPaths = []string{logFile}
		zc.ErrorOutputPaths = []string{logFile}
	}
	return zc
}

// tuiLogFile returns the log path under the workspace root, creating the
// root. The flag value wins over the configured one.
func tuiLogFile(flagRoot, configRoot string) (string, error) {
	root := flagRoot
	if root == "" {
		root = configRoot
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace root: %w", err)
	}
	return filepath.Join(root, logFileName), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
