package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Misty-Star/Speak2SQL/internal/sqltext"
	"github.com/Misty-Star/Speak2SQL/internal/storage"
)

var (
	ErrNotFound = errors.New("history record not found")
	ErrCorrupt  = errors.New("history record is unreadable")
)

// PersistError reports a failed save or load against a history store.
type PersistError struct {
	Op     string
	Target string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s history %s: %v", e.Op, e.Target, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Store is a durable location for the serialized history.
type Store interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Location() string
}

type FileStore struct {
	Path string
}

func (s FileStore) Location() string {
	return s.Path
}

// WithSuffix returns a store for a sibling file named path+suffix.
func (s FileStore) WithSuffix(suffix string) Store {
	return FileStore{Path: s.Path + suffix}
}

func (s FileStore) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write replaces the file atomically through a temp file in the same directory.
func (s FileStore) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// ObjectStore keeps the history as a single object in a bucket.
type ObjectStore struct {
	Objects storage.ObjectStore
	Key     string
}

func (s ObjectStore) Location() string {
	return s.Key
}

func (s ObjectStore) WithSuffix(suffix string) Store {
	return ObjectStore{Objects: s.Objects, Key: s.Key + suffix}
}

func (s ObjectStore) Read(ctx context.Context) ([]byte, error) {
	if s.Objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	data, err := storage.ReadObject(ctx, s.Objects, s.Key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s ObjectStore) Write(ctx context.Context, data []byte) error {
	if s.Objects == nil {
		return fmt.Errorf("object store is required")
	}
	_, err := s.Objects.Put(ctx, s.Key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "application/json"})
	return err
}

// Save writes the log to a JSON file at path.
func (l *Log) Save(path string) error {
	return l.SaveTo(context.Background(), FileStore{Path: path})
}

// Load restores the log from a JSON file at path. A missing file yields
// ErrNotFound; any failure leaves the log empty.
func (l *Log) Load(path string) error {
	return l.LoadFrom(context.Background(), FileStore{Path: path})
}

func (l *Log) SaveTo(ctx context.Context, store Store) error {
	data, err := Encode(l.Operations())
	if err != nil {
		return &PersistError{Op: "save", Target: store.Location(), Err: err}
	}
	if err := store.Write(ctx, data); err != nil {
		return &PersistError{Op: "save", Target: store.Location(), Err: err}
	}
	return nil
}

func (l *Log) LoadFrom(ctx context.Context, store Store) error {
	l.Clear()
	data, err := store.Read(ctx)
	if err != nil {
		return &PersistError{Op: "load", Target: store.Location(), Err: err}
	}
	ops, err := Decode(data)
	if err != nil {
		return &PersistError{Op: "load", Target: store.Location(), Err: fmt.Errorf("%w: %w", ErrCorrupt, err)}
	}
	l.replace(ops)
	return nil
}

// Quarantine copies the current contents of store to a sibling named
// <location>.corrupt-<timestamp> and returns the copy's location. The store
// must support WithSuffix.
func Quarantine(ctx context.Context, store Store, now time.Time) (string, error) {
	sibling, ok := store.(interface{ WithSuffix(string) Store })
	if !ok {
		return "", &PersistError{Op: "quarantine", Target: store.Location(), Err: fmt.Errorf("store %T cannot hold a backup copy", store)}
	}
	data, err := store.Read(ctx)
	if err != nil {
		return "", &PersistError{Op: "quarantine", Target: store.Location(), Err: err}
	}
	backup := sibling.WithSuffix(".corrupt-" + now.UTC().Format("20060102T150405Z"))
	if err := backup.Write(ctx, data); err != nil {
		return "", &PersistError{Op: "quarantine", Target: backup.Location(), Err: err}
	}
	return backup.Location(), nil
}

type record struct {
	Timestamp     string  `json:"timestamp"`
	OperationType string  `json:"operation_type"`
	SQL           string  `json:"sql"`
	NaturalQuery  string  `json:"natural_query"`
	AffectedRows  int64   `json:"affected_rows"`
	Result        *string `json:"result"`
	RollbackSQL   *string `json:"rollback_sql"`
}

// Encode renders operations as the indented JSON array stored on disk.
func Encode(ops []Operation) ([]byte, error) {
	records := make([]record, 0, len(ops))
	for _, op := range ops {
		records = append(records, record{
			Timestamp:     op.Timestamp.Format(time.RFC3339Nano),
			OperationType: string(op.Kind),
			SQL:           op.SQL,
			NaturalQuery:  op.NaturalQuery,
			AffectedRows:  op.AffectedRows,
			Result:        nullable(op.Result),
			RollbackSQL:   nullable(op.RollbackSQL),
		})
	}
	return json.MarshalIndent(records, "", "  ")
}

func Decode(data []byte) ([]Operation, error) {
	var records []record
	decoder := json.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode history: trailing data")
	}

	ops := make([]Operation, 0, len(records))
	for i, rec := range records {
		ts, err := parseTimestamp(rec.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("decode history entry %d: %w", i, err)
		}
		kind := sqltext.ParseKind(rec.OperationType)
		if kind == sqltext.KindUnknown && rec.OperationType != "" {
			kind = sqltext.Classify(rec.SQL)
		}
		affected := rec.AffectedRows
		if affected < 0 {
			affected = 0
		}
		ops = append(ops, Operation{
			Timestamp:    ts,
			Kind:         kind,
			SQL:          rec.SQL,
			NaturalQuery: rec.NaturalQuery,
			AffectedRows: affected,
			Result:       deref(rec.Result),
			RollbackSQL:  deref(rec.RollbackSQL),
		})
	}
	return ops, nil
}

var legacyTimestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("timestamp is required")
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	for _, layout := range legacyTimestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
