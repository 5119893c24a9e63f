package query

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
)

// WriteParquet exports a row set as a parquet file with one optional string
// column per result column. NULL cells stay null; everything else is written
// in its display form.
func WriteParquet(w io.Writer, rs RowSet) error {
	names := uniqueColumnNames(rs.Columns)
	if len(names) == 0 {
		return fmt.Errorf("parquet export requires at least one column")
	}
	group := parquet.Group{}
	for _, name := range names {
		group[name] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("result", group)

	columnIndex := make([]int, len(names))
	for i, name := range names {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return fmt.Errorf("parquet column %q missing from schema", name)
		}
		columnIndex[i] = leaf.ColumnIndex
	}

	writer := parquet.NewWriter(w, schema)
	rows := make([]parquet.Row, 0, len(rs.Rows))
	for _, values := range rs.Rows {
		row := make(parquet.Row, len(names))
		for i := range names {
			var cell any
			if i < len(values) {
				cell = values[i]
			}
			idx := columnIndex[i]
			if cell == nil {
				row[idx] = parquet.NullValue().Level(0, 0, idx)
				continue
			}
			row[idx] = parquet.ValueOf(cellText(cell)).Level(0, 1, idx)
		}
		rows = append(rows, row)
	}
	if _, err := writer.WriteRows(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func uniqueColumnNames(columns []string) []string {
	seen := make(map[string]int, len(columns))
	out := make([]string, 0, len(columns))
	for i, name := range columns {
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		base := name
		for seen[name] > 0 {
			seen[base]++
			name = base + "_" + strconv.Itoa(seen[base])
		}
		seen[name]++
		out = append(out, name)
	}
	return out
}

func cellText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
