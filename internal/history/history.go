// Package history keeps the linear undo/redo log of executed SQL operations.
//
// The log is a single ordered sequence with a cursor. Appending while the
// cursor is behind the tail discards the entries after it, and the oldest
// entries are evicted once the configured capacity is exceeded.
package history

import (
	"sync"
	"time"

	"github.com/Misty-Star/Speak2SQL/internal/sqltext"
)

const DefaultMaxEntries = 100

// Operation is one executed statement together with the request that
// produced it. Values handed out by Log are copies.
type Operation struct {
	Timestamp    time.Time
	Kind         sqltext.Kind
	SQL          string
	NaturalQuery string
	AffectedRows int64
	Result       string
	RollbackSQL  string
}

type Log struct {
	mu     sync.Mutex
	ops    []Operation
	cursor int
	max    int
	now    func() time.Time
}

type Option func(*Log)

// WithClock overrides the timestamp source used by Add.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

func New(maxEntries int, opts ...Option) *Log {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	l := &Log{cursor: -1, max: maxEntries, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add truncates everything after the cursor, appends op, evicts from the
// front when over capacity and moves the cursor to the new tail.
func (l *Log) Add(op Operation) Operation {
	if op.Timestamp.IsZero() {
		op.Timestamp = l.now()
	}
	if op.Kind == "" {
		op.Kind = sqltext.KindUnknown
	}
	if op.AffectedRows < 0 {
		op.AffectedRows = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ops = append(l.ops[:l.cursor+1], op)
	if overflow := len(l.ops) - l.max; overflow > 0 {
		l.ops = append([]Operation(nil), l.ops[overflow:]...)
	}
	l.cursor = len(l.ops) - 1
	return op
}

func (l *Log) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor >= 0
}

func (l *Log) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor < len(l.ops)-1
}

// Undo returns the entry at the cursor and steps the cursor back. It never
// touches the database.
func (l *Log) Undo() (Operation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor < 0 {
		return Operation{}, false
	}
	op := l.ops[l.cursor]
	l.cursor--
	return op, true
}

// Redo advances the cursor and returns the entry it now points at.
// Re-executing that entry is up to the caller.
func (l *Log) Redo() (Operation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor >= len(l.ops)-1 {
		return Operation{}, false
	}
	l.cursor++
	return l.ops[l.cursor], true
}

// Current returns the entry under the cursor.
func (l *Log) Current() (Operation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor < 0 {
		return Operation{}, false
	}
	return l.ops[l.cursor], true
}

func (l *Log) Get(index int) (Operation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.ops) {
		return Operation{}, false
	}
	return l.ops[index], true
}

func (l *Log) Operations() []Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Operation(nil), l.ops...)
}

func (l *Log) Cursor() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops)
}

func (l *Log) MaxEntries() int {
	return l.max
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = nil
	l.cursor = -1
}

// replace installs a restored sequence, keeping the newest entries that fit.
func (l *Log) replace(ops []Operation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if overflow := len(ops) - l.max; overflow > 0 {
		ops = ops[overflow:]
	}
	l.ops = append([]Operation(nil), ops...)
	l.cursor = len(l.ops) - 1
}
