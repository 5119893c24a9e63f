package schema

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T, stmts ...string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q error = %v", stmt, err)
		}
	}
	return db
}

func TestSnapshotSQLite(t *testing.T) {
	db := openSQLite(t,
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, email TEXT NOT NULL UNIQUE, avatar BLOB)`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER REFERENCES customers(id), note TEXT DEFAULT 'none')`,
		`CREATE INDEX idx_orders_note ON orders(note)`,
		`INSERT INTO customers (id, email, avatar) VALUES
			(1, 'a@example.com', X'0102'), (2, 'b@example.com', NULL), (3, 'c@example.com', NULL),
			(4, 'd@example.com', NULL), (5, 'e@example.com', NULL), (6, 'f@example.com', NULL)`,
	)
	introspector, err := NewIntrospector(db, SQLite{})
	if err != nil {
		t.Fatalf("NewIntrospector() error = %v", err)
	}

	snapshot, err := introspector.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snapshot.DatabaseName != "main" || snapshot.Dialect != "sqlite" {
		t.Fatalf("unexpected snapshot header: %q %q", snapshot.DatabaseName, snapshot.Dialect)
	}
	if snapshot.TableCount() != 2 {
		t.Fatalf("expected 2 tables, got %d", snapshot.TableCount())
	}

	customers, ok := snapshot.Table("customers")
	if !ok {
		t.Fatalf("customers table missing")
	}
	if len(customers.PrimaryKey) != 1 || customers.PrimaryKey[0] != "id" {
		t.Fatalf("unexpected primary key: %v", customers.PrimaryKey)
	}
	email := customers.Columns[1]
	if email.Name != "email" || email.Nullable || email.KeyRole != KeyUnique {
		t.Fatalf("unexpected email column: %#v", email)
	}
	if len(customers.SampleRows) != DefaultSampleRows {
		t.Fatalf("expected %d sample rows, got %d", DefaultSampleRows, len(customers.SampleRows))
	}
	first := customers.SampleRows[0]
	if first["id"] != "1" || first["avatar"] != "BINARY(2 bytes)" {
		t.Fatalf("unexpected sample row: %#v", first)
	}
	if customers.SampleRows[1]["avatar"] != nil {
		t.Fatalf("expected NULL avatar in sample, got %#v", customers.SampleRows[1]["avatar"])
	}

	orders, _ := snapshot.Table("ORDERS")
	if len(orders.ForeignKeys) != 1 {
		t.Fatalf("expected 1 foreign key, got %#v", orders.ForeignKeys)
	}
	if fk := orders.ForeignKeys[0]; fk.Column != "customer_id" || fk.ReferencedTable != "customers" || fk.ReferencedColumn != "id" {
		t.Fatalf("unexpected foreign key: %#v", fk)
	}
	if len(orders.Indexes) != 1 || orders.Indexes[0].Name != "idx_orders_note" || orders.Indexes[0].Unique {
		t.Fatalf("unexpected indexes: %#v", orders.Indexes)
	}
	roles := map[string]string{}
	for _, column := range orders.Columns {
		roles[column.Name] = column.KeyRole
	}
	if roles["id"] != KeyPrimary || roles["customer_id"] != KeyMultiple || roles["note"] != KeyMultiple {
		t.Fatalf("unexpected key roles: %v", roles)
	}
	if note := orders.Columns[2]; note.Default == nil || *note.Default != "'none'" {
		t.Fatalf("unexpected default: %#v", note.Default)
	}
	if len(orders.SampleRows) != 0 || orders.SampleRows == nil {
		t.Fatalf("expected empty, non-nil sample rows, got %#v", orders.SampleRows)
	}

	if !strings.Contains(snapshot.Description, "Database main (sqlite) contains 2 tables.") {
		t.Fatalf("unexpected description: %q", snapshot.Description)
	}
	if !strings.Contains(snapshot.Description, "customer_id references customers.id") {
		t.Fatalf("description lacks foreign key: %q", snapshot.Description)
	}
}

func TestSnapshotSampleRowsDisabled(t *testing.T) {
	db := openSQLite(t, `CREATE TABLE t (id INTEGER)`, `INSERT INTO t VALUES (1)`)
	introspector, err := NewIntrospector(db, SQLite{}, WithSampleRows(0))
	if err != nil {
		t.Fatalf("NewIntrospector() error = %v", err)
	}
	snapshot, err := introspector.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snapshot.Tables[0].SampleRows) != 0 {
		t.Fatalf("expected no samples, got %#v", snapshot.Tables[0].SampleRows)
	}
}

func TestSnapshotNoTables(t *testing.T) {
	db := openSQLite(t)
	introspector, _ := NewIntrospector(db, SQLite{})
	if _, err := introspector.Snapshot(context.Background()); !errors.Is(err, ErrNoTables) {
		t.Fatalf("expected ErrNoTables, got %v", err)
	}
}

func TestSnapshotNotConnected(t *testing.T) {
	introspector, _ := NewIntrospector(nil, SQLite{})
	if _, err := introspector.Snapshot(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	db := openSQLite(t)
	_ = db.Close()
	introspector, _ = NewIntrospector(db, SQLite{})
	if _, err := introspector.Snapshot(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected for closed db, got %v", err)
	}
}

func TestPromptContextIncludesTableCount(t *testing.T) {
	snapshot := Snapshot{DatabaseName: "shop", Dialect: "mysql", Tables: []Table{{Name: "users"}}}
	payload, err := snapshot.PromptContext()
	if err != nil {
		t.Fatalf("PromptContext() error = %v", err)
	}
	for _, want := range []string{`"database_name": "shop"`, `"table_count": 1`, `"table": "users"`} {
		if !strings.Contains(payload, want) {
			t.Fatalf("prompt context missing %s: %s", want, payload)
		}
	}
}

func TestDialectFor(t *testing.T) {
	for driver, want := range map[string]string{"mysql": "mysql", "pgx": "postgres", "sqlite": "sqlite", "duckdb": "duckdb"} {
		dialect, err := DialectFor(driver)
		if err != nil {
			t.Fatalf("DialectFor(%q) error = %v", driver, err)
		}
		if dialect.Name() != want {
			t.Fatalf("DialectFor(%q) = %s, want %s", driver, dialect.Name(), want)
		}
	}
	if _, err := DialectFor("oracle"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := (MySQL{}).QuoteIdent("we`ird"); got != "`we``ird`" {
		t.Fatalf("MySQL.QuoteIdent() = %s", got)
	}
	if got := (Postgres{}).QuoteIdent(`a"b`); got != `"a""b"` {
		t.Fatalf("Postgres.QuoteIdent() = %s", got)
	}
}
