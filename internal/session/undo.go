package session

import (
	"context"
	"fmt"

	"github.com/Misty-Star/Speak2SQL/internal/history"
	"github.com/Misty-Star/Speak2SQL/internal/query"
	"github.com/Misty-Star/Speak2SQL/internal/sqltext"
)

// Execution is the result of re-running a recorded statement.
type Execution struct {
	Operation    history.Operation `json:"-"`
	Kind         sqltext.Kind      `json:"kind"`
	SQL          string            `json:"sql"`
	AffectedRows int64             `json:"affected_rows"`
	Rows         *query.RowSet     `json:"result,omitempty"`
	Warning      string            `json:"warning,omitempty"`
}

// Undone is the entry Undo stepped back past, with its index and the
// cursor afterwards, read under the same lock.
type Undone struct {
	history.Operation
	Index  int
	Cursor int
}

// Undo moves the history cursor back one entry and returns the entry it
// left. The database is not touched; see Revert for reversing a change.
func (s *Session) Undo() (Undone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.history.Undo()
	if !ok {
		return Undone{}, ErrNothingToUndo
	}
	cursor := s.history.Cursor()
	return Undone{Operation: op, Index: cursor + 1, Cursor: cursor}, nil
}

// Redo advances the cursor and re-executes the entry it lands on without
// appending to the log. A failed re-execution restores the cursor.
func (s *Session) Redo(ctx context.Context) (Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.history.Redo()
	if !ok {
		return Execution{}, ErrNothingToRedo
	}
	exec, err := s.execute(ctx, op.SQL)
	if err != nil {
		s.history.Undo()
		return Execution{}, err
	}
	exec.Operation = op
	return exec, nil
}

// Replay re-executes the entry at index and appends the run as a new entry.
func (s *Session) Replay(ctx context.Context, index int) (Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.history.Get(index)
	if !ok {
		return Execution{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	exec, err := s.execute(ctx, op.SQL)
	if err != nil {
		return Execution{}, err
	}
	exec.Operation, exec.Warning = s.record(ctx, history.Operation{
		Kind:         exec.Kind,
		SQL:          exec.SQL,
		NaturalQuery: op.NaturalQuery,
		AffectedRows: exec.AffectedRows,
		Result:       executionSummary(exec),
		RollbackSQL:  op.RollbackSQL,
	})
	return exec, nil
}

// Revert runs the rollback SQL of the entry at index through the write path
// and records it as "undo: <original request>". Reverting the revert
// re-applies the original statement.
func (s *Session) Revert(ctx context.Context, index int) (Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.history.Get(index)
	if !ok {
		return Execution{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	if op.RollbackSQL == "" {
		return Execution{}, ErrNoRollback
	}
	written, err := s.engine.ExecuteWrite(ctx, op.RollbackSQL)
	if err != nil {
		return Execution{}, err
	}
	s.invalidateSchema()

	exec := Execution{Kind: written.Kind, SQL: written.SQL, AffectedRows: written.AffectedRows}
	exec.Operation, exec.Warning = s.record(ctx, history.Operation{
		Kind:         written.Kind,
		SQL:          written.SQL,
		NaturalQuery: "undo: " + op.NaturalQuery,
		AffectedRows: written.AffectedRows,
		Result:       writeSummary(written),
		RollbackSQL:  op.SQL,
	})
	return exec, nil
}

// execute dispatches by classified kind: changes take the write path and
// everything else is read.
func (s *Session) execute(ctx context.Context, stmt string) (Execution, error) {
	kind := sqltext.Classify(stmt)
	if kind.IsMutation() {
		written, err := s.engine.ExecuteWrite(ctx, stmt)
		if err != nil {
			return Execution{}, err
		}
		s.invalidateSchema()
		return Execution{Kind: written.Kind, SQL: written.SQL, AffectedRows: written.AffectedRows}, nil
	}
	rows, err := s.engine.ExecuteRead(ctx, stmt)
	if err != nil {
		return Execution{}, err
	}
	return Execution{Kind: kind, SQL: sqltext.Sanitize(stmt), AffectedRows: int64(rows.Len()), Rows: &rows}, nil
}

func executionSummary(exec Execution) string {
	if exec.Rows != nil {
		return fmt.Sprintf("query ok, %d rows", exec.Rows.Len())
	}
	return fmt.Sprintf("%s ok, %d rows affected", exec.Kind, exec.AffectedRows)
}
