package store

import (
	"database/sql"
	"strings"

	"github.com/jward/pytrail/internal/symbol"
)

// querier is satisfied by both *sql.DB and *sql.Tx so that the write
// helpers serve direct writes and batch commits alike.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// int64sToArgs converts []int64 to []any for use with database/sql.
func int64sToArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// rangeArgs flattens a range into its four column values.
func rangeArgs(r symbol.Range) []any {
	return []any{r.StartLine, r.StartColumn, r.EndLine, r.EndColumn}
}

// kindRankSQL mirrors symbol.Kind.Rank for the stored kind column.
const kindRankSQL = `CASE kind
	WHEN 'module' THEN 3 WHEN 'class' THEN 3 WHEN 'function' THEN 3
	WHEN 'field' THEN 2 WHEN 'global_variable' THEN 1 ELSE 0 END`
