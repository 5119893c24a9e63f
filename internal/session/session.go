// Package session runs the translate, validate, execute and record pipeline
// and the undo/redo operations on top of the operation history.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Misty-Star/Speak2SQL/internal/history"
	"github.com/Misty-Star/Speak2SQL/internal/nl2sql"
	"github.com/Misty-Star/Speak2SQL/internal/observability"
	"github.com/Misty-Star/Speak2SQL/internal/query"
	"github.com/Misty-Star/Speak2SQL/internal/schema"
)

const DefaultPreviewLimit = 100

var (
	ErrNoRollback         = errors.New("operation has no rollback sql")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrNothingToRedo      = errors.New("nothing to redo")
	ErrIndexOutOfRange    = errors.New("history index out of range")
	ErrCancelled          = errors.New("modification cancelled")
	ErrPersistenceMissing = errors.New("history persistence is not configured")
)

type SchemaProvider interface {
	Snapshot(ctx context.Context) (schema.Snapshot, error)
}

type Translator interface {
	TranslateQuery(ctx context.Context, natural string, snapshot schema.Snapshot) (nl2sql.Result, error)
	TranslateMutation(ctx context.Context, natural string, snapshot schema.Snapshot, currentTable string) (nl2sql.MutationDescriptor, error)
}

type Executor interface {
	ExecuteRead(ctx context.Context, sql string) (query.RowSet, error)
	ExecuteWrite(ctx context.Context, sql string) (query.WriteResult, error)
	ExecuteTransaction(ctx context.Context, statements []string) ([]query.Outcome, error)
	Preview(ctx context.Context, table string, limit int) (query.RowSet, error)
}

// Config wires a Session. Store receives the history after every append;
// a nil Store disables autosave.
type Config struct {
	Schema       SchemaProvider
	Translator   Translator
	Engine       Executor
	History      *history.Log
	Store        history.Store
	PreviewLimit int
	Logger       *slog.Logger
}

type Session struct {
	mu           sync.Mutex
	schema       SchemaProvider
	translator   Translator
	engine       Executor
	history      *history.Log
	store        history.Store
	previewLimit int
	logger       *slog.Logger
	snapshot     *schema.Snapshot
	// unreadable is set when the stored history could not be decoded; the
	// stored copy is backed up before the first write replaces it.
	unreadable bool
}

func New(cfg Config) (*Session, error) {
	if cfg.Schema == nil {
		return nil, fmt.Errorf("schema provider is required")
	}
	if cfg.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("execution engine is required")
	}
	log := cfg.History
	if log == nil {
		log = history.New(history.DefaultMaxEntries)
	}
	limit := cfg.PreviewLimit
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	return &Session{
		schema:       cfg.Schema,
		translator:   cfg.Translator,
		engine:       cfg.Engine,
		history:      log,
		store:        cfg.Store,
		previewLimit: limit,
		logger:       observability.OrDiscard(cfg.Logger),
	}, nil
}

// StageError attributes an error without a more specific type to the
// pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Schema returns the cached snapshot, reading it on first use.
func (s *Session) Schema(ctx context.Context) (schema.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSnapshot(ctx)
}

// RefreshSchema drops the cached snapshot and reads a new one.
func (s *Session) RefreshSchema(ctx context.Context) (schema.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	return s.currentSnapshot(ctx)
}

func (s *Session) currentSnapshot(ctx context.Context) (schema.Snapshot, error) {
	if s.snapshot != nil {
		return *s.snapshot, nil
	}
	snapshot, err := s.schema.Snapshot(ctx)
	if err != nil {
		return schema.Snapshot{}, &StageError{Stage: StageConnection, Err: err}
	}
	s.snapshot = &snapshot
	return snapshot, nil
}

func (s *Session) invalidateSchema() {
	s.snapshot = nil
}

// HistoryView is a consistent copy of the log and its cursor.
type HistoryView struct {
	Operations []history.Operation `json:"operations"`
	Cursor     int                 `json:"cursor"`
	CanUndo    bool                `json:"can_undo"`
	CanRedo    bool                `json:"can_redo"`
}

func (s *Session) History() HistoryView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return HistoryView{
		Operations: s.history.Operations(),
		Cursor:     s.history.Cursor(),
		CanUndo:    s.history.CanUndo(),
		CanRedo:    s.history.CanRedo(),
	}
}

func (s *Session) SaveHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return ErrPersistenceMissing
	}
	return s.save(ctx)
}

// LoadHistory replaces the log with the persisted one. A missing file is
// reported as history.ErrNotFound and leaves the log empty.
func (s *Session) LoadHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return ErrPersistenceMissing
	}
	err := s.history.LoadFrom(ctx, s.store)
	observability.SetHistoryEntries(s.history.Len())
	s.unreadable = errors.Is(err, history.ErrCorrupt)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "history loaded",
		slog.String("location", s.store.Location()),
		slog.Int("entries", s.history.Len()),
	)
	return nil
}

// record appends op and autosaves. A failed save is logged and returned as
// a warning; the operation itself already happened.
func (s *Session) record(ctx context.Context, op history.Operation) (history.Operation, string) {
	op = s.history.Add(op)
	observability.SetHistoryEntries(s.history.Len())
	if s.store == nil {
		return op, ""
	}
	if err := s.save(ctx); err != nil {
		observability.IncrementHistorySaveFailures()
		s.logger.WarnContext(ctx, "history autosave failed", slog.Any("error", err))
		return op, "history was not saved: " + err.Error()
	}
	return op, ""
}

func (s *Session) save(ctx context.Context) error {
	if s.unreadable {
		backup, err := history.Quarantine(ctx, s.store, time.Now())
		if err != nil {
			return err
		}
		s.unreadable = false
		s.logger.WarnContext(ctx, "unreadable history backed up before overwrite",
			slog.String("location", s.store.Location()),
			slog.String("backup", backup),
		)
	}
	return s.history.SaveTo(ctx, s.store)
}
