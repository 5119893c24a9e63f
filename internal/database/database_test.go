package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"

	"github.com/Misty-Star/Speak2SQL/internal/config"
)

func TestDriverName(t *testing.T) {
	for input, want := range map[string]string{
		"mysql":      "mysql",
		"MariaDB":    "mysql",
		"postgres":   "pgx",
		"postgresql": "pgx",
		"sqlite3":    "sqlite",
		"duckdb":     "duckdb",
	} {
		got, err := DriverName(input)
		if err != nil {
			t.Fatalf("DriverName(%q) error = %v", input, err)
		}
		if got != want {
			t.Fatalf("DriverName(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := DriverName("oracle"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
}

func TestDSNMySQL(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{Driver: "mysql", Host: "db.internal", User: "reporter", Password: "p@ss:word", Name: "shop"})
	if err != nil {
		t.Fatalf("DSN() error = %v", err)
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("mysql.ParseDSN(%q) error = %v", dsn, err)
	}
	if parsed.Addr != "db.internal:3306" || parsed.User != "reporter" || parsed.Passwd != "p@ss:word" || parsed.DBName != "shop" {
		t.Fatalf("unexpected mysql config: %+v", parsed)
	}
	if !parsed.ParseTime {
		t.Fatalf("expected parseTime to be enabled")
	}
}

func TestDSNPostgres(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{Driver: "postgres", Host: "pg", User: "app", Password: "secret", Name: "ledger"})
	if err != nil {
		t.Fatalf("DSN() error = %v", err)
	}
	if dsn != "postgres://app:secret@pg:5432/ledger" {
		t.Fatalf("DSN() = %q", dsn)
	}
}

func TestDSNPrefersExplicitValue(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{Driver: "postgres", DSN: "postgres://x@y/z?sslmode=disable", Host: "ignored"})
	if err != nil {
		t.Fatalf("DSN() error = %v", err)
	}
	if dsn != "postgres://x@y/z?sslmode=disable" {
		t.Fatalf("DSN() = %q", dsn)
	}
}

func TestDSNEmbedded(t *testing.T) {
	if dsn, _ := DSN(config.DatabaseConfig{Driver: "sqlite"}); dsn != ":memory:" {
		t.Fatalf("sqlite DSN() = %q", dsn)
	}
	if dsn, _ := DSN(config.DatabaseConfig{Driver: "duckdb", Name: "/data/analytics.duckdb"}); dsn != "/data/analytics.duckdb" {
		t.Fatalf("duckdb DSN() = %q", dsn)
	}
}

func TestOpenSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", Name: path, MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create table error = %v", err)
	}
	if got := db.Stats().MaxOpenConnections; got != 2 {
		t.Fatalf("MaxOpenConnections = %d, want 2", got)
	}
}

func TestOpenInMemoryUsesSingleConnection(t *testing.T) {
	db, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestOpenUnreachableIsNotConnected(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "postgres", DSN: "postgres://nobody@127.0.0.1:1/none?connect_timeout=1"})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
