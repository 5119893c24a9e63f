// Package query executes SQL against the connected database: reads return
// row sets, writes run inside a transaction and batches commit or roll back
// as a unit.
package query

import (
	"errors"
	"fmt"

	"github.com/Misty-Star/Speak2SQL/internal/sqltext"
)

var (
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrEmptyStatement       = errors.New("sql statement is empty")
	ErrEmptyBatch           = errors.New("transaction batch is empty")
	ErrInvalidIdentifier    = errors.New("invalid identifier")
)

// RowSet is a fully materialized result. Binary cells are already replaced
// by a "BINARY(<n> bytes)" placeholder.
type RowSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (r RowSet) Len() int {
	return len(r.Rows)
}

type WriteResult struct {
	SQL          string       `json:"sql"`
	Kind         sqltext.Kind `json:"kind"`
	AffectedRows int64        `json:"affected_rows"`
}

// Outcome is the result of one statement of a transaction batch. Rows is set
// for SELECT statements only.
type Outcome struct {
	SQL          string       `json:"sql"`
	Kind         sqltext.Kind `json:"kind"`
	Rows         *RowSet      `json:"rows,omitempty"`
	AffectedRows int64        `json:"affected_rows"`
}

// QueryError wraps an error reported by the database driver.
type QueryError struct {
	Op  string
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.SQL, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
