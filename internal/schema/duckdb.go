package schema

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// DuckDB reads information_schema plus the duckdb_constraints and
// duckdb_indexes table functions.
type DuckDB struct{}

func (DuckDB) Name() string { return "duckdb" }

func (DuckDB) QuoteIdent(name string) string { return quoteWith(name, `"`) }

func (DuckDB) DatabaseName(ctx context.Context, db *sql.DB) (string, error) {
	var name string
	err := db.QueryRowContext(ctx, "SELECT current_database()").Scan(&name)
	return name, err
}

func (DuckDB) Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryStrings(ctx, db, `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`)
}

func (DuckDB) Columns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = ?
ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var (
			column     Column
			nullable   string
			defaultVal sql.NullString
		)
		if err := rows.Scan(&column.Name, &column.Type, &nullable, &defaultVal); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		column.Nullable = nullable == "YES"
		column.Default = nullableString(defaultVal)
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	primary, err := queryStrings(ctx, db, `SELECT unnest(constraint_column_names)
FROM duckdb_constraints()
WHERE schema_name = current_schema() AND table_name = ? AND constraint_type = 'PRIMARY KEY'`, table)
	if err != nil {
		return nil, fmt.Errorf("primary key: %w", err)
	}
	markPrimaryKey(columns, primary)
	return columns, nil
}

var duckForeignKeyPattern = regexp.MustCompile(`(?i)FOREIGN\s+KEY\s*\(([^)]*)\)\s*REFERENCES\s+"?([\w.]+)"?\s*\(([^)]*)\)`)

func (DuckDB) ForeignKeys(ctx context.Context, db *sql.DB, table string) ([]ForeignKey, error) {
	texts, err := queryStrings(ctx, db, `SELECT constraint_text
FROM duckdb_constraints()
WHERE schema_name = current_schema() AND table_name = ? AND constraint_type = 'FOREIGN KEY'`, table)
	if err != nil {
		return nil, err
	}
	var out []ForeignKey
	for _, text := range texts {
		out = append(out, parseDuckForeignKey(text)...)
	}
	return out, nil
}

// parseDuckForeignKey pairs the local and referenced column lists of a
// constraint such as FOREIGN KEY (a, b) REFERENCES t(x, y).
func parseDuckForeignKey(text string) []ForeignKey {
	match := duckForeignKeyPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	local := splitIdentList(match[1])
	remote := splitIdentList(match[3])
	out := make([]ForeignKey, 0, len(local))
	for i, column := range local {
		fk := ForeignKey{Column: column, ReferencedTable: match[2]}
		if i < len(remote) {
			fk.ReferencedColumn = remote[i]
		}
		out = append(out, fk)
	}
	return out
}

var duckIndexColumnsPattern = regexp.MustCompile(`(?is)\bON\s+"?[\w.]+"?\s*\((.*)\)`)

func (DuckDB) Indexes(ctx context.Context, db *sql.DB, table string) ([]Index, error) {
	rows, err := db.QueryContext(ctx, `SELECT index_name, is_unique, sql
FROM duckdb_indexes()
WHERE schema_name = current_schema() AND table_name = ?
ORDER BY index_name`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Index
	for rows.Next() {
		var (
			name   string
			unique bool
			text   sql.NullString
		)
		if err := rows.Scan(&name, &unique, &text); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		for _, column := range parseDuckIndexColumns(text.String) {
			out = append(out, Index{Name: name, Column: column, Unique: unique})
		}
	}
	return out, rows.Err()
}

func parseDuckIndexColumns(text string) []string {
	match := duckIndexColumnsPattern.FindStringSubmatch(strings.TrimSuffix(strings.TrimSpace(text), ";"))
	if match == nil {
		return nil
	}
	return splitIdentList(match[1])
}

func splitIdentList(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
