package pytrail

import "github.com/jward/pytrail/internal/store"

// Public type aliases for internal store types used in the QueryBuilder API.

type Store = store.Store
type Symbol = store.Symbol
type File = store.File
type Location = store.Location
type Reference = store.Reference
type ReferenceLocation = store.ReferenceLocation
type ErrorRecord = store.ErrorRecord
type IndexRun = store.IndexRun
