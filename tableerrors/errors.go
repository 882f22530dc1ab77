package tableerrors

import "errors"

// Table lookup sentinel errors. Used by both the table and ws packages
// to avoid circular imports.
var (
	ErrTableNotFound = errors.New("table not found")
	ErrTableLimit    = errors.New("too many open tables")
	ErrTableClosed   = errors.New("table closed")
	ErrNotAtTable    = errors.New("not seated at a table")
)
