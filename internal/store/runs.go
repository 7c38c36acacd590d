package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BeginRun records the start of an indexing run under a fresh UUID.
func (s *Store) BeginRun() (*IndexRun, error) {
	run := &IndexRun{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	if _, err := s.db.Exec("INSERT INTO index_runs (id, started_at) VALUES (?, ?)", run.ID, run.StartedAt); err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return run, nil
}

// FinishRun stamps a run with its totals.
func (s *Store) FinishRun(run *IndexRun, files, errs int) error {
	run.FinishedAt = time.Now().UTC()
	run.Files = files
	run.Errors = errs
	if _, err := s.db.Exec(
		"UPDATE index_runs SET finished_at = ?, files = ?, errors = ? WHERE id = ?",
		run.FinishedAt, files, errs, run.ID,
	); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs first. limit <= 0 returns all.
func (s *Store) Runs(limit int) ([]*IndexRun, error) {
	query := "SELECT id, started_at, finished_at, files, errors FROM index_runs ORDER BY started_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	defer rows.Close()
	var out []*IndexRun
	for rows.Next() {
		r := &IndexRun{}
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Files, &r.Errors); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
