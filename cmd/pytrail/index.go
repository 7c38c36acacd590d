package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jward/pytrail"
)

type indexFlags struct {
	force       bool
	searchRoots []string
	workers     int
	serial      bool
}

func (a *app) indexCmd() *cobra.Command {
	var f indexFlags
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index the Python files under a directory",
		Long:  "Parses every Python file with tree-sitter, resolves each name to its definition and writes symbols, references and diagnostics to the SQLite database.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIndex(cmd, args, f)
		},
	}
	cmd.Flags().BoolVar(&f.force, "force", false, "delete database and reindex from scratch")
	cmd.Flags().StringArrayVar(&f.searchRoots, "search-root", nil, "import search root (repeatable, default: the indexed directory)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "worker goroutines (default: config or number of CPUs)")
	cmd.Flags().BoolVar(&f.serial, "serial", false, "index files one at a time")
	return cmd
}

func (a *app) runIndex(cmd *cobra.Command, args []string, f indexFlags) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	dbPath := a.resolveDBPath(findRepoRoot(targetDir))

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dataDir, err)
	}

	// Handle --force: delete the DB file entirely.
	if f.force {
		for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing database for --force: %w", err)
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Cleared database: %s\n", dbPath)
	}

	opts := a.engineOptions(a.searchRoots(f.searchRoots, targetDir))
	if f.workers > 0 {
		opts = append(opts, pytrail.WithWorkers(f.workers))
	}
	opts = append(opts, pytrail.WithParallel(!f.serial), pytrail.WithForce(f.force))

	engine, err := pytrail.New(dbPath, opts...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	indexErr := engine.IndexDirectory(cmd.Context(), targetDir)

	fmt.Fprintf(cmd.ErrOrStderr(), "Indexed %s in %s\n", targetDir, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(cmd.ErrOrStderr(), "Database: %s\n", dbPath)
	if indexErr != nil {
		return fmt.Errorf("indexing: %w", indexErr)
	}
	return nil
}

// searchRoots picks the import roots: explicit flags, then the configured
// roots, then the indexed directory itself.
func (a *app) searchRoots(flagged []string, targetDir string) []string {
	if len(flagged) > 0 {
		return flagged
	}
	if len(a.cfg.SearchRoots) > 0 {
		return a.cfg.SearchRoots
	}
	return []string{targetDir}
}

// --- watch ---

func (a *app) watchCmd() *cobra.Command {
	var (
		debounce    time.Duration
		searchRoots []string
	)
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Index a directory and keep the index current as files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir, err := resolveTargetDir(args)
			if err != nil {
				return err
			}
			dbPath := a.resolveDBPath(findRepoRoot(targetDir))
			if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
			}
			engine, err := pytrail.New(dbPath, a.engineOptions(a.searchRoots(searchRoots, targetDir))...)
			if err != nil {
				return fmt.Errorf("creating engine: %w", err)
			}
			defer engine.Close()

			if err := engine.IndexDirectory(cmd.Context(), targetDir); err != nil {
				a.logger.Warn("initial index incomplete", "err", err)
			}
			return a.watch(cmd.Context(), engine, targetDir, debounce)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "quiet period before re-indexing changed files")
	cmd.Flags().StringArrayVar(&searchRoots, "search-root", nil, "import search root (repeatable, default: the indexed directory)")
	return cmd
}

// watch re-indexes Python files under root as fsnotify reports changes,
// batching events that arrive within debounce of each other. It returns
// when ctx is done.
func (a *app) watch(ctx context.Context, engine *pytrail.Engine, root string, debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := addWatchTree(w, engine, root); err != nil {
		return err
	}
	a.logger.Info("watching", "root", root, "debounce", debounce)

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !engine.SkipsDir(filepath.Base(ev.Name)) {
						if err := addWatchTree(w, engine, ev.Name); err != nil {
							a.logger.Warn("watch directory", "path", ev.Name, "err", err)
						}
					}
					continue
				}
			}
			if !pytrail.IsPythonFile(ev.Name) {
				continue
			}
			pending[ev.Name] = true
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watcher error", "err", err)

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			pending = make(map[string]bool)
			changed, removed, err := syncChanges(ctx, engine, paths)
			if err != nil {
				a.logger.Warn("re-index incomplete", "err", err)
			}
			a.logger.Info("re-indexed", "changed", changed, "removed", removed)
		}
	}
}

// addWatchTree registers dir and every non-skipped subdirectory.
func addWatchTree(w *fsnotify.Watcher, engine *pytrail.Engine, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && engine.SkipsDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// syncChanges brings the index in line with the current state of paths:
// files that still exist are re-indexed, vanished ones are removed, and
// files depending on either are refreshed afterwards.
func syncChanges(ctx context.Context, engine *pytrail.Engine, paths []string) (changed, removed int, err error) {
	sort.Strings(paths)
	var existing []string
	var errs []error
	for _, p := range paths {
		if _, statErr := os.Stat(p); statErr == nil {
			existing = append(existing, p)
			continue
		}
		if rmErr := engine.RemoveFile(p); rmErr != nil {
			errs = append(errs, rmErr)
			continue
		}
		removed++
	}
	if len(existing) > 0 {
		if idxErr := engine.IndexFiles(ctx, existing); idxErr != nil {
			errs = append(errs, idxErr)
		}
		changed = len(existing)
	}
	if refErr := engine.RefreshDependents(ctx); refErr != nil {
		errs = append(errs, refErr)
	}
	if len(errs) > 0 {
		return changed, removed, fmt.Errorf("sync had %d error(s): %w", len(errs), errs[0])
	}
	return changed, removed, nil
}
