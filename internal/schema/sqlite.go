package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) QuoteIdent(name string) string { return quoteWith(name, `"`) }

// DatabaseName is the base name of the main database file, or "main" for
// in-memory databases.
func (SQLite) DatabaseName(ctx context.Context, db *sql.DB) (string, error) {
	var file sql.NullString
	err := db.QueryRowContext(ctx, "SELECT file FROM pragma_database_list WHERE name = 'main'").Scan(&file)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if file.String == "" {
		return "main", nil
	}
	base := filepath.Base(file.String)
	return strings.TrimSuffix(base, filepath.Ext(base)), nil
}

func (SQLite) Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryStrings(ctx, db, `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`)
}

func (SQLite) Columns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var (
			column     Column
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&column.Name, &column.Type, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		column.Nullable = notNull == 0 && pk == 0
		column.Default = nullableString(defaultVal)
		if pk > 0 {
			column.KeyRole = KeyPrimary
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

// ForeignKeys resolves references that omit the target column to "id".
func (SQLite) ForeignKeys(ctx context.Context, db *sql.DB, table string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, `SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ForeignKey
	for rows.Next() {
		var (
			fk ForeignKey
			to sql.NullString
		)
		if err := rows.Scan(&fk.Column, &fk.ReferencedTable, &to); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fk.ReferencedColumn = to.String
		if fk.ReferencedColumn == "" {
			fk.ReferencedColumn = "id"
		}
		out = append(out, fk)
	}
	return out, rows.Err()
}

func (SQLite) Indexes(ctx context.Context, db *sql.DB, table string) ([]Index, error) {
	rows, err := db.QueryContext(ctx, `SELECT il.name, ii.name, il."unique"
FROM pragma_index_list(?) AS il
JOIN pragma_index_info(il.name) AS ii
WHERE il.origin != 'pk'
ORDER BY il.name, ii.seqno`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Index
	for rows.Next() {
		var (
			index  Index
			column sql.NullString
			unique int
		)
		if err := rows.Scan(&index.Name, &column, &unique); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		if !column.Valid {
			continue
		}
		index.Column = column.String
		index.Unique = unique == 1
		out = append(out, index)
	}
	return out, rows.Err()
}
