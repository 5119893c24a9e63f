package cli

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Misty-Star/Speak2SQL/internal/completion"
	"github.com/Misty-Star/Speak2SQL/internal/config"
	"github.com/Misty-Star/Speak2SQL/internal/history"
	"github.com/Misty-Star/Speak2SQL/internal/nl2sql"
	"github.com/Misty-Star/Speak2SQL/internal/query"
	"github.com/Misty-Star/Speak2SQL/internal/schema"
	"github.com/Misty-Star/Speak2SQL/internal/session"
	"github.com/Misty-Star/Speak2SQL/internal/sqltext"
)

type stubTranslator struct {
	sql  string
	plan nl2sql.MutationDescriptor
	err  error
}

func (s *stubTranslator) TranslateQuery(context.Context, string, schema.Snapshot) (nl2sql.Result, error) {
	if s.err != nil {
		return nl2sql.Result{}, s.err
	}
	return nl2sql.Result{SQL: s.sql, Provider: "stub", Model: "stub"}, nil
}

func (s *stubTranslator) TranslateMutation(context.Context, string, schema.Snapshot, string) (nl2sql.MutationDescriptor, error) {
	if s.err != nil {
		return nl2sql.MutationDescriptor{}, s.err
	}
	return s.plan, nil
}

type fakeBackend struct {
	*session.Session
	closed int
}

func (f *fakeBackend) Ping(context.Context) error                { return nil }
func (f *fakeBackend) PingModel(context.Context) (string, error) { return "OK", nil }
func (f *fakeBackend) Close() error                              { f.closed++; return nil }

type harness struct {
	db         *sql.DB
	backend    *fakeBackend
	translator *stubTranslator
	configs    []config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	for _, stmt := range []string{
		`CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT NOT NULL)`,
		`INSERT INTO notes (body) VALUES ('first'), ('second')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	engine, err := query.NewEngine(db)
	require.NoError(t, err)
	introspector, err := schema.NewIntrospector(db, schema.SQLite{})
	require.NoError(t, err)
	translator := &stubTranslator{}
	s, err := session.New(session.Config{
		Schema:     introspector,
		Translator: translator,
		Engine:     engine,
		History:    history.New(20),
	})
	require.NoError(t, err)
	return &harness{db: db, backend: &fakeBackend{Session: s}, translator: translator}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), append([]string{"--no-color"}, args...), Options{
		Lookup: func(string) (string, bool) { return "", false },
		Open: func(_ context.Context, cfg config.Config, _ *slog.Logger) (Backend, error) {
			h.configs = append(h.configs, cfg)
			return h.backend, nil
		},
		ReadPassword: func(string) (string, error) { return "s3cret", nil },
		Stdin:        strings.NewReader(stdin),
		Stdout:       &stdout,
		Stderr:       &stderr,
	})
	return code, stdout.String(), stderr.String()
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, h.db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n))
	return n
}

func insertPlan() nl2sql.MutationDescriptor {
	return nl2sql.MutationDescriptor{
		Kind:          sqltext.KindInsert,
		SQL:           "INSERT INTO notes (body) VALUES ('third');",
		AffectedTable: "notes",
		RollbackSQL:   "DELETE FROM notes WHERE body = 'third';",
		Description:   "adds a note",
	}
}

func TestQueryPrintsRows(t *testing.T) {
	h := newHarness(t)
	h.translator.sql = "SELECT body FROM notes ORDER BY id;"

	code, stdout, stderr := h.run(t, "", "query", "list", "all", "notes")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "SELECT body FROM notes ORDER BY id;")
	assert.Contains(t, stdout, "first")
	assert.Contains(t, stdout, "(2 rows)")
	assert.Equal(t, 1, h.backend.closed)
}

func TestQueryJSONAndExport(t *testing.T) {
	h := newHarness(t)
	h.translator.sql = "SELECT id, body FROM notes;"
	path := filepath.Join(t.TempDir(), "notes.parquet")

	code, stdout, stderr := h.run(t, "", "query", "--json", "--export", path, "notes")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, `"natural_query": "notes"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestQuerySQLOnlyDoesNotRecord(t *testing.T) {
	h := newHarness(t)
	h.translator.sql = "SELECT COUNT(*) FROM notes;"

	code, stdout, _ := h.run(t, "", "query", "--sql-only", "how many notes")
	require.Equal(t, 0, code)
	assert.Equal(t, "SELECT COUNT(*) FROM notes;\n", stdout)
	assert.Equal(t, -1, h.backend.History().Cursor)
}

func TestModifyAsksForConfirmation(t *testing.T) {
	h := newHarness(t)
	h.translator.plan = insertPlan()

	code, stdout, _ := h.run(t, "n\n", "modify", "add a third note")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Apply this change? [y/N]")
	assert.Contains(t, stdout, "Cancelled")
	assert.Equal(t, 2, h.count(t))

	code, stdout, _ = h.run(t, "yes\n", "modify", "--table", "notes", "add a third note")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "DELETE FROM notes WHERE body = 'third';")
	assert.Contains(t, stdout, "INSERT ok, 1 row affected")
	assert.Equal(t, 3, h.count(t))
}

func TestModifyYesSkipsPrompt(t *testing.T) {
	h := newHarness(t)
	h.translator.plan = insertPlan()

	code, stdout, _ := h.run(t, "", "modify", "-y", "add a third note")
	require.Equal(t, 0, code)
	assert.NotContains(t, stdout, "Apply this change?")
	assert.Equal(t, 3, h.count(t))
}

func TestHistoryReplayAndRevert(t *testing.T) {
	h := newHarness(t)
	h.translator.plan = insertPlan()

	code, _, _ := h.run(t, "", "modify", "-y", "add a third note")
	require.Equal(t, 0, code)

	code, stdout, _ := h.run(t, "", "history")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "add a third note")
	assert.Contains(t, stdout, "INSERT")

	code, stdout, stderr := h.run(t, "", "revert", "0")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "DELETE ok, 1 row affected")
	assert.Equal(t, 2, h.count(t))

	code, _, _ = h.run(t, "", "replay", "0")
	require.Equal(t, 0, code)
	assert.Equal(t, 3, h.count(t))
	assert.Len(t, h.backend.History().Operations, 3)
}

func TestReplayRejectsBadIndex(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run(t, "", "replay", "first")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `invalid history index "first"`)

	code, _, stderr = h.run(t, "", "replay", "9")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unsupported error")
}

func TestBatchRunsStatements(t *testing.T) {
	h := newHarness(t)

	code, stdout, stderr := h.run(t, "", "batch",
		"-e", "INSERT INTO notes (body) VALUES ('a')",
		"-e", "SELECT COUNT(*) AS total FROM notes",
	)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "INSERT ok, 1 row affected")
	assert.Contains(t, stdout, "total")
	assert.Equal(t, 3, h.count(t))

	code, _, stderr = h.run(t, "", "batch")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "at least one -e statement is required")
}

func TestSchemaAndPing(t *testing.T) {
	h := newHarness(t)

	code, stdout, _ := h.run(t, "", "schema")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Table notes has 2 columns.")

	code, stdout, _ = h.run(t, "", "schema", "--json")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, `"table_count": 1`)

	code, stdout, _ = h.run(t, "", "ping")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "database ok")
	assert.Contains(t, stdout, "model ok: OK")
}

func TestFlagsOverrideConfig(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run(t, "", "--driver", "sqlite", "--database", "notes.db", "--provider", "ollama", "-p", "ping", "--skip-model")
	require.Equal(t, 0, code, stderr)
	require.Len(t, h.configs, 1)
	cfg := h.configs[0]
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "notes.db", cfg.Database.Name)
	assert.Equal(t, config.ProviderOllama, cfg.AI.Provider)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestErrorsNameTheirCategory(t *testing.T) {
	h := newHarness(t)
	h.translator.err = completion.ErrEmptyCompletion

	code, _, stderr := h.run(t, "", "query", "anything")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "translation error")
}

func TestShellExecutesCommands(t *testing.T) {
	h := newHarness(t)
	h.translator.sql = "SELECT body FROM notes;"
	h.translator.plan = insertPlan()

	var out bytes.Buffer
	st := &state{printer: newPrinter(&out), prompt: func(string) bool { return true }}
	sh := &shell{state: st, backend: h.backend}
	st.backend = h.backend

	lines := []string{
		"show notes",
		":table notes",
		":modify add a third note",
		":history",
		":undo",
		":redo",
		":bogus",
		":quit",
		"never reached",
	}
	next := 0
	readLine := func() (string, error) {
		if next >= len(lines) {
			return "", io.EOF
		}
		next++
		return lines[next-1], nil
	}

	require.NoError(t, sh.loop(context.Background(), readLine))
	assert.Equal(t, 8, next)
	assert.Equal(t, "notes", sh.table)
	assert.Contains(t, out.String(), "(2 rows)")
	assert.Contains(t, out.String(), "INSERT ok, 1 row affected")
	assert.Contains(t, out.String(), "use :revert")
	assert.Contains(t, out.String(), "unknown command :bogus")
	// :redo ran the insert a second time.
	assert.Equal(t, 4, h.count(t))
	assert.Len(t, h.backend.History().Operations, 2)
}

func TestShellStopsAtEOF(t *testing.T) {
	h := newHarness(t)
	var out bytes.Buffer
	sh := &shell{state: &state{printer: newPrinter(&out)}, backend: h.backend}

	err := sh.loop(context.Background(), func() (string, error) { return "", io.EOF })
	require.NoError(t, err)

	failing := errors.New("terminal gone")
	err = sh.loop(context.Background(), func() (string, error) { return "", failing })
	require.ErrorIs(t, err, failing)
}
