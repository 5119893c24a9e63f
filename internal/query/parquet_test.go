package query

import (
	"bytes"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func TestWriteParquet(t *testing.T) {
	rs := RowSet{
		Columns: []string{"id", "name", "id"},
		Rows: [][]any{
			{int64(1), "alice", int64(10)},
			{int64(2), nil, int64(20)},
		},
	}
	var buf bytes.Buffer
	if err := WriteParquet(&buf, rs); err != nil {
		t.Fatalf("WriteParquet() error = %v", err)
	}

	file, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("parquet.OpenFile() error = %v", err)
	}
	if file.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", file.NumRows())
	}
	for _, name := range []string{"id", "name", "id_2"} {
		if _, ok := file.Schema().Lookup(name); !ok {
			t.Fatalf("expected column %q in schema", name)
		}
	}
}

func TestWriteParquetRequiresColumns(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteParquet(&buf, RowSet{}); err == nil {
		t.Fatalf("expected error for empty column list")
	}
}

func TestUniqueColumnNames(t *testing.T) {
	got := uniqueColumnNames([]string{"a", "", "a", "a"})
	want := []string{"a", "column_2", "a_2", "a_3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("uniqueColumnNames() = %v, want %v", got, want)
		}
	}
}
