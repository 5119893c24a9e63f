package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) QuoteIdent(name string) string { return quoteWith(name, "`") }

func (MySQL) DatabaseName(ctx context.Context, db *sql.DB) (string, error) {
	var name sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&name); err != nil {
		return "", err
	}
	return name.String, nil
}

func (MySQL) Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryStrings(ctx, db, "SHOW TABLES")
}

func (d MySQL) Columns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	rows, err := queryNamed(ctx, db, "SHOW COLUMNS FROM "+d.QuoteIdent(table))
	if err != nil {
		return nil, err
	}
	columns := make([]Column, 0, len(rows))
	for _, row := range rows {
		columns = append(columns, Column{
			Name:     row["Field"].String,
			Type:     row["Type"].String,
			Nullable: strings.EqualFold(row["Null"].String, "YES"),
			KeyRole:  row["Key"].String,
			Default:  nullableString(row["Default"]),
			Extra:    row["Extra"].String,
		})
	}
	return columns, nil
}

func (MySQL) ForeignKeys(ctx context.Context, db *sql.DB, table string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, `SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY ORDINAL_POSITION`, table)
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

func (d MySQL) Indexes(ctx context.Context, db *sql.DB, table string) ([]Index, error) {
	rows, err := queryNamed(ctx, db, "SHOW INDEX FROM "+d.QuoteIdent(table))
	if err != nil {
		return nil, err
	}
	var out []Index
	for _, row := range rows {
		name := row["Key_name"].String
		if name == "PRIMARY" {
			continue
		}
		out = append(out, Index{
			Name:   name,
			Column: row["Column_name"].String,
			Unique: row["Non_unique"].String == "0",
		})
	}
	return out, nil
}
