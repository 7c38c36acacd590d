package store

import (
	"sync"

	"github.com/jward/pytrail/internal/symbol"
)

// Batch buffers one session's records in memory using fake (negative) IDs.
// It implements index.Sink so a session can write to it without knowing
// whether it is hitting SQLite or an in-memory buffer. Store.CommitBatch
// replays it in a single transaction.
//
// Symbols, references and local symbols are interned inside the batch the
// same way the database interns them, so a hierarchy recorded twice yields
// the same fake ID.
type Batch struct {
	store *Store // for read passthrough
	mu    sync.Mutex

	Files              []File
	Symbols            []Symbol
	Locations          []Location
	References         []Reference
	ReferenceLocations []ReferenceLocation
	LocalSymbols       []LocalSymbol
	LocalOccurrences   []LocalOccurrence
	AtomicRanges       []AtomicRange
	Errors             []ErrorRecord

	symbolIdx map[string]int // serialized -> index into Symbols
	byFakeID  map[int64]int  // symbol fake id -> index into Symbols
	refIDs    map[refKey]int64
	localIDs  map[string]int64

	nextFakeID int64 // starts at -1, decrements
}

type refKey struct {
	context, target int64
	kind            symbol.ReferenceKind
}

// NewBatch creates a Batch backed by s for read queries.
func NewBatch(s *Store) *Batch {
	return &Batch{
		store:      s,
		symbolIdx:  make(map[string]int),
		byFakeID:   make(map[int64]int),
		refIDs:     make(map[refKey]int64),
		localIDs:   make(map[string]int64),
		nextFakeID: -1,
	}
}

func (b *Batch) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

// Empty reports whether nothing was recorded.
func (b *Batch) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Files) == 0 && len(b.Symbols) == 0
}

func (b *Batch) RecordFile(path, language string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.Files {
		if f.Path == path {
			return f.ID, nil
		}
	}
	fakeID := b.allocFakeID()
	b.Files = append(b.Files, File{ID: fakeID, Path: path, Language: language})
	return fakeID, nil
}

func (b *Batch) RecordSymbol(h symbol.Hierarchy) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := h.Serialize()
	if i, ok := b.symbolIdx[key]; ok {
		return b.Symbols[i].ID, nil
	}
	fakeID := b.allocFakeID()
	b.Symbols = append(b.Symbols, Symbol{
		ID:             fakeID,
		Serialized:     key,
		DisplayName:    h.DisplayString(),
		Name:           h.Last(),
		DefinitionKind: symbol.DefinitionImplicit,
	})
	b.symbolIdx[key] = len(b.Symbols) - 1
	b.byFakeID[fakeID] = len(b.Symbols) - 1
	return fakeID, nil
}

// RecordSymbolKind applies the same upgrade rule as the database. Kinds of
// symbols that are not buffered here are ignored.
func (b *Batch) RecordSymbolKind(symbolID int64, kind symbol.Kind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.byFakeID[symbolID]; ok && b.Symbols[i].Kind.Rank() < kind.Rank() {
		b.Symbols[i].Kind = kind
	}
	return nil
}

func (b *Batch) RecordSymbolDefinitionKind(symbolID int64, kind symbol.DefinitionKind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.byFakeID[symbolID]; ok && b.Symbols[i].DefinitionKind != symbol.DefinitionExplicit {
		b.Symbols[i].DefinitionKind = kind
	}
	return nil
}

func (b *Batch) addLocation(symbolID, fileID int64, kind LocationKind, r symbol.Range) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Locations = append(b.Locations, Location{SymbolID: symbolID, FileID: fileID, Kind: kind, Range: r})
}

func (b *Batch) RecordSymbolLocation(symbolID, fileID int64, r symbol.Range) error {
	b.addLocation(symbolID, fileID, LocationToken, r)
	return nil
}

func (b *Batch) RecordSymbolScopeLocation(symbolID, fileID int64, r symbol.Range) error {
	b.addLocation(symbolID, fileID, LocationScope, r)
	return nil
}

func (b *Batch) RecordQualifierLocation(symbolID, fileID int64, r symbol.Range) error {
	b.addLocation(symbolID, fileID, LocationQualifier, r)
	return nil
}

func (b *Batch) RecordReference(contextID, targetID int64, kind symbol.ReferenceKind) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := refKey{contextID, targetID, kind}
	if id, ok := b.refIDs[key]; ok {
		return id, nil
	}
	fakeID := b.allocFakeID()
	b.References = append(b.References, Reference{
		ID: fakeID, ContextSymbolID: contextID, TargetSymbolID: targetID, Kind: kind,
	})
	b.refIDs[key] = fakeID
	return fakeID, nil
}

func (b *Batch) RecordReferenceLocation(referenceID, fileID int64, r symbol.Range) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ReferenceLocations = append(b.ReferenceLocations, ReferenceLocation{ReferenceID: referenceID, FileID: fileID, Range: r})
	return nil
}

func (b *Batch) RecordLocalSymbol(name string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.localIDs[name]; ok {
		return id, nil
	}
	fakeID := b.allocFakeID()
	b.LocalSymbols = append(b.LocalSymbols, LocalSymbol{ID: fakeID, Name: name})
	b.localIDs[name] = fakeID
	return fakeID, nil
}

func (b *Batch) RecordLocalSymbolLocation(localSymbolID, fileID int64, r symbol.Range) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.LocalOccurrences = append(b.LocalOccurrences, LocalOccurrence{LocalSymbolID: localSymbolID, FileID: fileID, Range: r})
	return nil
}

func (b *Batch) RecordAtomicSourceRange(fileID int64, r symbol.Range) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.AtomicRanges = append(b.AtomicRanges, AtomicRange{FileID: fileID, Range: r})
	return nil
}

func (b *Batch) RecordError(message string, fatal bool, fileID int64, r symbol.Range) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Errors = append(b.Errors, ErrorRecord{FileID: fileID, Message: message, Fatal: fatal, Range: r})
	return nil
}

// FileByPath passes through to the underlying Store.
func (b *Batch) FileByPath(path string) (*File, error) {
	return b.store.FileByPath(path)
}
