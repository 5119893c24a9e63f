package schema

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresColumnsMarksPrimaryKey(t *testing.T) {
	db, mock := newSQLMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WithArgs("accounts").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default", "is_identity"}).
			AddRow("id", "bigint", "NO", nil, "YES").
			AddRow("balance", "numeric", "YES", "0", "NO"))
	mock.ExpectQuery(regexp.QuoteMeta("tc.constraint_type = 'PRIMARY KEY'")).
		WithArgs("accounts").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))

	columns, err := Postgres{}.Columns(context.Background(), db, "accounts")
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}
	assertSQLMock(t, mock)
	if len(columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(columns))
	}
	if columns[0].KeyRole != KeyPrimary || columns[0].Extra != "identity" || columns[0].Nullable {
		t.Fatalf("unexpected id column: %#v", columns[0])
	}
	if columns[1].KeyRole != "" || !columns[1].Nullable || *columns[1].Default != "0" {
		t.Fatalf("unexpected balance column: %#v", columns[1])
	}
}

func TestPostgresIndexesAndForeignKeys(t *testing.T) {
	db, mock := newSQLMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM pg_index ix")).
		WithArgs("transfers").
		WillReturnRows(sqlmock.NewRows([]string{"relname", "attname", "indisunique"}).
			AddRow("transfers_ref_key", "ref", true))
	mock.ExpectQuery(regexp.QuoteMeta("information_schema.constraint_column_usage")).
		WithArgs("transfers").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "table_name", "column_name"}).
			AddRow("account_id", "accounts", "id"))

	indexes, err := Postgres{}.Indexes(context.Background(), db, "transfers")
	if err != nil {
		t.Fatalf("Indexes() error = %v", err)
	}
	if len(indexes) != 1 || indexes[0] != (Index{Name: "transfers_ref_key", Column: "ref", Unique: true}) {
		t.Fatalf("unexpected indexes: %#v", indexes)
	}
	fks, err := Postgres{}.ForeignKeys(context.Background(), db, "transfers")
	if err != nil {
		t.Fatalf("ForeignKeys() error = %v", err)
	}
	if len(fks) != 1 || fks[0] != (ForeignKey{Column: "account_id", ReferencedTable: "accounts", ReferencedColumn: "id"}) {
		t.Fatalf("unexpected foreign keys: %#v", fks)
	}
	assertSQLMock(t, mock)
}
