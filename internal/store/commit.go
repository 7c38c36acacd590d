package store

import (
	"fmt"

	"github.com/jward/pytrail/internal/symbol"
)

// CommitBatch inserts all buffered data from a Batch into SQLite within a
// single transaction. Fake (negative) IDs are remapped to real IDs, and all
// references within the batch are rewritten using the fakeToReal mapping.
// Symbols already in the database keep their IDs, so batches committed one
// after another agree on cross-file symbols.
//
// Insert order respects FK dependencies:
//  1. Files
//  2. Symbols (interned by serialized name, kinds upgraded)
//  3. Symbol locations (depend on symbol_id, file_id)
//  4. References (depend on context and target symbol ids)
//  5. Reference locations (depend on reference_id, file_id)
//  6. Local symbols, then their locations
//  7. Atomic ranges and errors (depend on file_id)
func (s *Store) CommitBatch(batch *Batch) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64)
	realID := func(what string, id int64) (int64, error) {
		if id >= 0 {
			return id, nil
		}
		r, ok := fakeToReal[id]
		if !ok {
			return 0, fmt.Errorf("commit batch: %s id %d not in fakeToReal map", what, id)
		}
		return r, nil
	}
	interned := make(map[string]int64, len(batch.Symbols))

	// 1. Files
	for _, f := range batch.Files {
		id, err := upsertFile(tx, f.Path, f.Language)
		if err != nil {
			return fmt.Errorf("commit batch: file %q: %w", f.Path, err)
		}
		fakeToReal[f.ID] = id
	}

	// 2. Symbols
	for _, sym := range batch.Symbols {
		id, ok := s.ids.Get(sym.Serialized)
		if !ok {
			h, err := symbol.ParseHierarchy(sym.Serialized)
			if err != nil {
				return fmt.Errorf("commit batch: symbol %q: %w", sym.DisplayName, err)
			}
			if id, err = internSymbol(tx, h); err != nil {
				return fmt.Errorf("commit batch: symbol %q: %w", sym.DisplayName, err)
			}
		}
		if sym.Kind != "" {
			if err := upgradeSymbolKind(tx, id, sym.Kind); err != nil {
				return fmt.Errorf("commit batch: symbol kind %q: %w", sym.DisplayName, err)
			}
		}
		if sym.DefinitionKind == symbol.DefinitionExplicit {
			if err := setDefinitionKind(tx, id, sym.DefinitionKind); err != nil {
				return fmt.Errorf("commit batch: definition kind %q: %w", sym.DisplayName, err)
			}
		}
		fakeToReal[sym.ID] = id
		interned[sym.Serialized] = id
	}

	// 3. Symbol locations
	for _, l := range batch.Locations {
		symID, err := realID("symbol", l.SymbolID)
		if err != nil {
			return err
		}
		fileID, err := realID("file", l.FileID)
		if err != nil {
			return err
		}
		if err := insertLocation(tx, symID, fileID, l.Kind, l.Range); err != nil {
			return fmt.Errorf("commit batch: %s location: %w", l.Kind, err)
		}
	}

	// 4. References
	for _, ref := range batch.References {
		ctxID, err := realID("context symbol", ref.ContextSymbolID)
		if err != nil {
			return err
		}
		targetID, err := realID("target symbol", ref.TargetSymbolID)
		if err != nil {
			return err
		}
		id, err := internReference(tx, ctxID, targetID, ref.Kind)
		if err != nil {
			return fmt.Errorf("commit batch: reference: %w", err)
		}
		fakeToReal[ref.ID] = id
	}

	// 5. Reference locations
	for _, rl := range batch.ReferenceLocations {
		refID, err := realID("reference", rl.ReferenceID)
		if err != nil {
			return err
		}
		fileID, err := realID("file", rl.FileID)
		if err != nil {
			return err
		}
		if err := insertReferenceLocation(tx, refID, fileID, rl.Range); err != nil {
			return fmt.Errorf("commit batch: reference location: %w", err)
		}
	}

	// 6. Local symbols and their locations
	for _, ls := range batch.LocalSymbols {
		id, err := internLocalSymbol(tx, ls.Name)
		if err != nil {
			return fmt.Errorf("commit batch: local symbol %q: %w", ls.Name, err)
		}
		fakeToReal[ls.ID] = id
	}
	for _, lo := range batch.LocalOccurrences {
		localID, err := realID("local symbol", lo.LocalSymbolID)
		if err != nil {
			return err
		}
		fileID, err := realID("file", lo.FileID)
		if err != nil {
			return err
		}
		if err := insertLocalLocation(tx, localID, fileID, lo.Range); err != nil {
			return fmt.Errorf("commit batch: local symbol location: %w", err)
		}
	}

	// 7. Atomic ranges and errors
	for _, a := range batch.AtomicRanges {
		fileID, err := realID("file", a.FileID)
		if err != nil {
			return err
		}
		if err := insertAtomicRange(tx, fileID, a.Range); err != nil {
			return fmt.Errorf("commit batch: atomic range: %w", err)
		}
	}
	for _, e := range batch.Errors {
		fileID, err := realID("file", e.FileID)
		if err != nil {
			return err
		}
		if err := insertError(tx, fileID, e.Message, e.Fatal, e.Range); err != nil {
			return fmt.Errorf("commit batch: error record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	for key, id := range interned {
		s.ids.Add(key, id)
	}
	return nil
}
