package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Misty-Star/Speak2SQL/internal/observability"
	"github.com/Misty-Star/Speak2SQL/internal/sqltext"
)

// Engine owns the database handle. Calls are serialized so two logical
// operations never interleave on it.
type Engine struct {
	db      *sql.DB
	mu      sync.Mutex
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Engine)

func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) { e.timeout = timeout }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func NewEngine(db *sql.DB, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	e := &Engine{db: db}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = observability.OrDiscard(e.logger)
	return e, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.db.PingContext(ctx)
}

// ExecuteRead runs a single statement and materializes its rows.
func (e *Engine) ExecuteRead(ctx context.Context, sqlText string) (RowSet, error) {
	stmt, err := prepare(sqlText)
	if err != nil {
		return RowSet{}, err
	}
	kind := sqltext.Classify(stmt)

	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	result, err := queryRows(ctx, e.db, stmt)
	e.observe(ctx, kind, stmt, start, err)
	if err != nil {
		return RowSet{}, &QueryError{Op: "query", SQL: stmt, Err: err}
	}
	return result, nil
}

// ExecuteWrite runs one data or schema change inside its own transaction.
// Statements that do not classify as INSERT, UPDATE, DELETE, CREATE TABLE,
// ALTER TABLE or DROP TABLE are rejected before anything is sent.
func (e *Engine) ExecuteWrite(ctx context.Context, sqlText string) (WriteResult, error) {
	stmt, err := prepare(sqlText)
	if err != nil {
		return WriteResult{}, err
	}
	kind := sqltext.Classify(stmt)
	if !kind.IsMutation() {
		return WriteResult{}, fmt.Errorf("%w: %s statements are not allowed on the write path", ErrUnsupportedOperation, kind)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var affected int64
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var execErr error
		affected, execErr = execAffected(ctx, tx, stmt)
		return execErr
	})
	e.observe(ctx, kind, stmt, start, err)
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{SQL: stmt, Kind: kind, AffectedRows: affected}, nil
}

// ExecuteTransaction runs statements in order on one transaction. Any
// failure rolls back the whole batch.
func (e *Engine) ExecuteTransaction(ctx context.Context, statements []string) ([]Outcome, error) {
	if len(statements) == 0 {
		return nil, ErrEmptyBatch
	}
	prepared := make([]string, 0, len(statements))
	for i, raw := range statements {
		stmt, err := prepare(raw)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		prepared = append(prepared, stmt)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	outcomes := make([]Outcome, 0, len(prepared))
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range prepared {
			kind := sqltext.Classify(stmt)
			start := time.Now()
			outcome := Outcome{SQL: stmt, Kind: kind}
			var stmtErr error
			if kind == sqltext.KindSelect {
				var rows RowSet
				rows, stmtErr = queryRows(ctx, tx, stmt)
				outcome.Rows = &rows
				outcome.AffectedRows = int64(rows.Len())
			} else {
				outcome.AffectedRows, stmtErr = execAffected(ctx, tx, stmt)
			}
			e.observe(ctx, kind, stmt, start, stmtErr)
			if stmtErr != nil {
				return &QueryError{Op: "execute", SQL: stmt, Err: stmtErr}
			}
			outcomes = append(outcomes, outcome)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Preview reads up to limit rows of a table, e.g. to show the effect of a
// change right after it was applied.
func (e *Engine) Preview(ctx context.Context, table string, limit int) (RowSet, error) {
	if !identifierPattern.MatchString(table) {
		return RowSet{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, table)
	}
	if limit <= 0 {
		limit = 100
	}
	return e.ExecuteRead(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, limit))
}

func (e *Engine) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return &QueryError{Op: "begin", Err: err}
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			e.logger.ErrorContext(ctx, "rollback failed", slog.Any("error", rbErr))
		}
		var queryErr *QueryError
		if errors.As(err, &queryErr) {
			return err
		}
		return &QueryError{Op: "execute", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &QueryError{Op: "commit", Err: err}
	}
	return nil
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Engine) observe(ctx context.Context, kind sqltext.Kind, stmt string, start time.Time, err error) {
	elapsed := time.Since(start)
	observability.ObserveStatement(string(kind), elapsed, err)
	if err != nil {
		e.logger.WarnContext(ctx, "statement failed",
			slog.String("kind", string(kind)),
			slog.String("sql", stmt),
			slog.String("duration", elapsed.String()),
			slog.Any("error", err),
		)
		return
	}
	e.logger.DebugContext(ctx, "statement executed",
		slog.String("kind", string(kind)),
		slog.String("duration", elapsed.String()),
	)
}

func prepare(sqlText string) (string, error) {
	stmt := sqltext.Sanitize(sqlText)
	if strings.TrimSuffix(stmt, ";") == "" {
		return "", ErrEmptyStatement
	}
	return stmt, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execAffected(ctx context.Context, db execer, stmt string) (int64, error) {
	res, err := db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil || affected < 0 {
		// Some drivers cannot report a count for DDL.
		return 0, nil
	}
	return affected, nil
}

func queryRows(ctx context.Context, db queryer, stmt string) (RowSet, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return RowSet{}, err
	}
	defer func() { _ = rows.Close() }()
	return ScanRows(rows)
}

// ScanRows materializes rows, rendering each cell for display.
func ScanRows(rows *sql.Rows) (RowSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return RowSet{}, fmt.Errorf("query columns: %w", err)
	}
	dbTypes := make([]string, len(columns))
	if columnTypes, err := rows.ColumnTypes(); err == nil {
		for i, columnType := range columnTypes {
			if i < len(dbTypes) {
				dbTypes[i] = columnType.DatabaseTypeName()
			}
		}
	}

	result := RowSet{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return RowSet{}, fmt.Errorf("scan row: %w", err)
		}
		for i := range values {
			values[i] = RenderValue(values[i], dbTypes[i])
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return RowSet{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
