package pytrail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jward/pytrail/internal/store"
)

// workItem holds everything an indexing worker needs.
type workItem struct {
	path      string
	hash      string
	lineCount int
	batch     *store.Batch
}

// indexFilesParallel indexes files using a three-phase parallel pipeline:
//
//	Phase A (serial):   Hash check, queue dependents, delete old data.
//	Phase B (parallel): Index each file in a session writing to its own Batch.
//	Phase C (serial):   Commit batches to SQLite, stamp file hashes.
func (e *Engine) indexFilesParallel(ctx context.Context, paths []string, force bool) (int, []error) {
	var errs []error

	// ---- Phase A: Serial file preparation ----
	var items []workItem
	for _, path := range paths {
		item, skip, err := e.prepareFile(path, force)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		if skip {
			continue
		}
		item.batch = store.NewBatch(e.store)
		items = append(items, item)
	}
	if len(items) == 0 {
		return 0, errs
	}
	e.invalidate(items)

	// ---- Phase B: Parallel indexing ----
	workCh := make(chan workItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	type result struct {
		item workItem
		err  error
	}
	resultCh := make(chan result, len(items))

	var wg sync.WaitGroup
	for range e.numWorkers(len(items)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				if err := ctx.Err(); err != nil {
					resultCh <- result{item: item, err: err}
					continue
				}
				err := e.indexFile(ctx, item, item.batch)
				resultCh <- result{item: item, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// ---- Phase C: Serial commit ----
	indexed := 0
	for res := range resultCh {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", res.item.path, res.err))
			continue
		}
		if err := e.store.CommitBatch(res.item.batch); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", res.item.path, err))
			continue
		}
		if err := e.store.MarkFileIndexed(res.item.path, res.item.hash, res.item.lineCount); err != nil {
			errs = append(errs, err)
			continue
		}
		indexed++
	}
	return indexed, errs
}

// prepareFile does Phase A work for a single file: hash check, dependents
// and cleanup. Returns (item, skip, error). skip=true means the file is
// unchanged.
func (e *Engine) prepareFile(path string, force bool) (workItem, bool, error) {
	if !IsPythonFile(path) {
		return workItem{}, false, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return workItem{}, false, err
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return workItem{}, false, fmt.Errorf("read file: %w", err)
	}
	hash := store.ContentHash(content)

	existing, err := e.store.FileByPath(abs)
	if err != nil {
		return workItem{}, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Indexed && existing.Hash == hash && !force {
		return workItem{}, true, nil // unchanged
	}

	// Clean up old data, remembering who pointed into it.
	if existing != nil {
		if err := e.queueDependents(existing); err != nil {
			return workItem{}, false, fmt.Errorf("dependents: %w", err)
		}
		if err := e.store.DeleteFileData(existing.ID); err != nil {
			return workItem{}, false, fmt.Errorf("delete old data: %w", err)
		}
	}

	return workItem{
		path:      abs,
		hash:      hash,
		lineCount: store.LineCount(content),
	}, false, nil
}
