package index

import (
	"fmt"

	"github.com/jward/pytrail/internal/symbol"
	"github.com/jward/pytrail/internal/syntax"
)

// Sink receives the symbol graph of one file. Implementations assign IDs; a
// hierarchy recorded twice must yield the same symbol ID.
type Sink interface {
	RecordFile(path, language string) (int64, error)
	RecordSymbol(h symbol.Hierarchy) (int64, error)
	RecordSymbolKind(symbolID int64, kind symbol.Kind) error
	RecordSymbolDefinitionKind(symbolID int64, kind symbol.DefinitionKind) error
	RecordSymbolLocation(symbolID, fileID int64, r symbol.Range) error
	RecordSymbolScopeLocation(symbolID, fileID int64, r symbol.Range) error
	RecordReference(contextID, targetID int64, kind symbol.ReferenceKind) (int64, error)
	RecordReferenceLocation(referenceID, fileID int64, r symbol.Range) error
	RecordQualifierLocation(symbolID, fileID int64, r symbol.Range) error
	RecordLocalSymbol(name string) (int64, error)
	RecordLocalSymbolLocation(localSymbolID, fileID int64, r symbol.Range) error
	RecordAtomicSourceRange(fileID int64, r symbol.Range) error
	RecordError(message string, fatal bool, fileID int64, r symbol.Range) error
}

// RangeOf converts a node's span to a symbol range.
func RangeOf(n *syntax.Node) symbol.Range {
	return symbol.Range{
		StartLine:   n.Start.Line,
		StartColumn: n.Start.Column + 1,
		EndLine:     n.End.Line,
		EndColumn:   n.End.Column,
	}
}

// recorder forwards to a Sink for one file. The first failing write is kept
// and every later call becomes a no-op.
type recorder struct {
	sink   Sink
	fileID int64
	err    error
}

func (r *recorder) fail(op string, err error) {
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%s: %w", op, err)
	}
}

func (r *recorder) file(path, language string) int64 {
	if r.err != nil {
		return 0
	}
	id, err := r.sink.RecordFile(path, language)
	r.fail("record file", err)
	r.fileID = id
	return id
}

func (r *recorder) symbol(h symbol.Hierarchy) int64 {
	if r.err != nil {
		return 0
	}
	id, err := r.sink.RecordSymbol(h)
	r.fail("record symbol", err)
	return id
}

func (r *recorder) symbolKind(id int64, kind symbol.Kind) {
	if r.err != nil {
		return
	}
	r.fail("record symbol kind", r.sink.RecordSymbolKind(id, kind))
}

func (r *recorder) explicit(id int64) {
	if r.err != nil {
		return
	}
	r.fail("record definition kind", r.sink.RecordSymbolDefinitionKind(id, symbol.DefinitionExplicit))
}

func (r *recorder) location(id int64, rng symbol.Range) {
	if r.err != nil {
		return
	}
	r.fail("record symbol location", r.sink.RecordSymbolLocation(id, r.fileID, rng))
}

func (r *recorder) scopeLocation(id int64, rng symbol.Range) {
	if r.err != nil {
		return
	}
	r.fail("record scope location", r.sink.RecordSymbolScopeLocation(id, r.fileID, rng))
}

func (r *recorder) reference(contextID, targetID int64, kind symbol.ReferenceKind, rng symbol.Range) {
	if r.err != nil {
		return
	}
	refID, err := r.sink.RecordReference(contextID, targetID, kind)
	r.fail("record reference", err)
	if r.err != nil {
		return
	}
	r.fail("record reference location", r.sink.RecordReferenceLocation(refID, r.fileID, rng))
}

func (r *recorder) qualifier(id int64, rng symbol.Range) {
	if r.err != nil {
		return
	}
	r.fail("record qualifier location", r.sink.RecordQualifierLocation(id, r.fileID, rng))
}

func (r *recorder) local(name string, rng symbol.Range) {
	if r.err != nil {
		return
	}
	id, err := r.sink.RecordLocalSymbol(name)
	r.fail("record local symbol", err)
	if r.err != nil {
		return
	}
	r.fail("record local symbol location", r.sink.RecordLocalSymbolLocation(id, r.fileID, rng))
}

func (r *recorder) atomic(rng symbol.Range) {
	if r.err != nil {
		return
	}
	r.fail("record atomic range", r.sink.RecordAtomicSourceRange(r.fileID, rng))
}

func (r *recorder) error(message string, fatal bool, rng symbol.Range) {
	if r.err != nil {
		return
	}
	r.fail("record error", r.sink.RecordError(message, fatal, r.fileID, rng))
}
