package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// Postgres reads the catalog of the current schema.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) QuoteIdent(name string) string { return quoteWith(name, `"`) }

func (Postgres) DatabaseName(ctx context.Context, db *sql.DB) (string, error) {
	var name string
	err := db.QueryRowContext(ctx, "SELECT current_database()").Scan(&name)
	return name, err
}

func (Postgres) Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryStrings(ctx, db, `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`)
}

func (Postgres) Columns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `SELECT column_name, data_type, is_nullable, column_default, is_identity
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
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
			identity   sql.NullString
		)
		if err := rows.Scan(&column.Name, &column.Type, &nullable, &defaultVal, &identity); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		column.Nullable = nullable == "YES"
		column.Default = nullableString(defaultVal)
		if identity.String == "YES" {
			column.Extra = "identity"
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	primary, err := queryStrings(ctx, db, `SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.table_schema = current_schema() AND tc.table_name = $1 AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY kcu.ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("primary key: %w", err)
	}
	markPrimaryKey(columns, primary)
	return columns, nil
}

func (Postgres) ForeignKeys(ctx context.Context, db *sql.DB, table string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, `SELECT kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.table_schema = current_schema() AND tc.table_name = $1 AND tc.constraint_type = 'FOREIGN KEY'
ORDER BY kcu.ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		out = append(out, fk)
	}
	return out, rows.Err()
}

func (Postgres) Indexes(ctx context.Context, db *sql.DB, table string) ([]Index, error) {
	rows, err := db.QueryContext(ctx, `SELECT i.relname, a.attname, ix.indisunique
FROM pg_index ix
JOIN pg_class t ON t.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
WHERE n.nspname = current_schema() AND t.relname = $1 AND NOT ix.indisprimary
ORDER BY i.relname, a.attnum`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Index
	for rows.Next() {
		var index Index
		if err := rows.Scan(&index.Name, &index.Column, &index.Unique); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		out = append(out, index)
	}
	return out, rows.Err()
}
