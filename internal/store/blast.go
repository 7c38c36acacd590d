package store

import "fmt"

// FilesReferencingSymbols returns the IDs of files that hold a reference
// location targeting any of the given symbols.
func (s *Store) FilesReferencingSymbols(symbolIDs []int64) ([]int64, error) {
	if len(symbolIDs) == 0 {
		return nil, nil
	}
	placeholders := placeholderList(len(symbolIDs))
	query := `SELECT DISTINCT rl.file_id
		FROM reference_locations rl
		JOIN references_ r ON r.id = rl.reference_id
		WHERE r.target_symbol_id IN (` + placeholders + `)
		ORDER BY rl.file_id`
	rows, err := s.db.Query(query, int64sToArgs(symbolIDs)...)
	if err != nil {
		return nil, fmt.Errorf("files referencing symbols: %w", err)
	}
	defer rows.Close()
	var fileIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan file id: %w", err)
		}
		fileIDs = append(fileIDs, id)
	}
	return fileIDs, rows.Err()
}

// SymbolsDefinedInFile returns the IDs of symbols with a token location in
// the file.
func (s *Store) SymbolsDefinedInFile(fileID int64) ([]int64, error) {
	rows, err := s.db.Query(
		"SELECT DISTINCT symbol_id FROM symbol_locations WHERE file_id = ? AND kind = ? ORDER BY symbol_id",
		fileID, string(LocationToken),
	)
	if err != nil {
		return nil, fmt.Errorf("symbols defined in file: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan symbol id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DependentFiles returns the other files whose references point at symbols
// defined in fileID. These are the files whose resolution may change when
// fileID changes.
func (s *Store) DependentFiles(fileID int64) ([]*File, error) {
	symIDs, err := s.SymbolsDefinedInFile(fileID)
	if err != nil {
		return nil, err
	}
	fileIDs, err := s.FilesReferencingSymbols(symIDs)
	if err != nil {
		return nil, err
	}
	var out []*File
	for _, id := range fileIDs {
		if id == fileID {
			continue
		}
		f, err := s.FileByID(id)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}

// PruneOrphans removes references and local symbols that no longer have a
// location anywhere. Symbols stay interned.
func (s *Store) PruneOrphans() (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	for _, q := range []string{
		`DELETE FROM references_ WHERE NOT EXISTS (
			SELECT 1 FROM reference_locations rl WHERE rl.reference_id = references_.id)`,
		`DELETE FROM local_symbols WHERE NOT EXISTS (
			SELECT 1 FROM local_symbol_locations l WHERE l.local_symbol_id = local_symbols.id)`,
	} {
		res, err := tx.Exec(q)
		if err != nil {
			return 0, fmt.Errorf("prune orphans: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, tx.Commit()
}
