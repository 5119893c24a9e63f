package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func quoteWith(name, quote string) string {
	return quote + strings.ReplaceAll(name, quote, quote+quote) + quote
}

func queryStrings(ctx context.Context, db *sql.DB, stmt string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var value sql.NullString
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if value.Valid {
			out = append(out, value.String)
		}
	}
	return out, rows.Err()
}

// queryNamed scans every row into a map keyed by column name. It suits
// statements such as SHOW INDEX whose column set varies across versions.
func queryNamed(ctx context.Context, db *sql.DB, stmt string, args ...any) ([]map[string]sql.NullString, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var out []map[string]sql.NullString
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]sql.NullString, len(columns))
		for i, column := range columns {
			row[column] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	out := value.String
	return &out
}

func markPrimaryKey(columns []Column, primary []string) {
	set := make(map[string]bool, len(primary))
	for _, name := range primary {
		set[name] = true
	}
	for i := range columns {
		if set[columns[i].Name] {
			columns[i].KeyRole = KeyPrimary
		}
	}
}
