package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/pytrail"
	"github.com/jward/pytrail/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		if !a.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		stop()
		os.Exit(1)
	}
}

// app holds the persistent flags and the state PersistentPreRunE derives
// from them.
type app struct {
	flagDB      string
	flagFormat  string
	flagConfig  string
	flagVerbose bool

	cfg    *config.Config
	logger *slog.Logger

	// errorHandled is set by outputError so main() doesn't double-print.
	errorHandled bool
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pytrail",
		Short:         "Scope-aware symbol and reference indexing for Python",
		Long:          "pytrail parses Python sources with tree-sitter, resolves every name to its definition and writes the symbol graph to a SQLite database for queries.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		// No Run, prints help by default.
	}

	root.PersistentFlags().StringVar(&a.flagDB, "db", "", "database path (default: .pytrail/index.db relative to repo root)")
	root.PersistentFlags().StringVar(&a.flagFormat, "format", "json", "output format: json|text")
	root.PersistentFlags().StringVar(&a.flagConfig, "config", "", "config file (default: ./"+config.FileName+" when present)")
	root.PersistentFlags().BoolVarP(&a.flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(a.indexCmd())
	root.AddCommand(a.watchCmd())
	root.AddCommand(a.queryCmd())
	root.AddCommand(a.scriptCmd())
	root.AddCommand(a.serveCmd())
	root.AddCommand(a.mcpCmd())
	return root
}

// setup validates the output format, loads the configuration and installs
// the stderr logger.
func (a *app) setup(cmd *cobra.Command) error {
	if err := validateFormat(a.flagFormat); err != nil {
		return err
	}
	cfg, err := config.Load(a.flagConfig)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := slog.LevelInfo
	if a.flagVerbose || cfg.Verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// engineOptions maps the loaded configuration onto Engine options. roots
// overrides the configured search roots when non-empty.
func (a *app) engineOptions(roots []string) []pytrail.Option {
	if len(roots) == 0 {
		roots = a.cfg.SearchRoots
	}
	return []pytrail.Option{
		pytrail.WithSearchRoots(roots...),
		pytrail.WithExcludeDirs(a.cfg.ExcludeDirs...),
		pytrail.WithWorkers(a.cfg.Workers),
		pytrail.WithCacheSize(a.cfg.CacheSize),
		pytrail.WithLogger(a.logger),
		pytrail.WithVerbose(a.cfg.Verbose),
	}
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag, the
// configuration, or the default, anchored at repoRoot when relative.
func (a *app) resolveDBPath(repoRoot string) string {
	db := a.flagDB
	if db == "" && a.cfg != nil {
		db = a.cfg.Database
	}
	if db == "" {
		db = config.DefaultDatabase
	}
	if filepath.IsAbs(db) {
		return db
	}
	return filepath.Join(repoRoot, db)
}
