// Package schema introspects the connected database into a snapshot that is
// handed to the language model as context.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotConnected = errors.New("database is not connected")
	ErrNoTables     = errors.New("database has no tables")
)

const (
	KeyPrimary  = "PRI"
	KeyUnique   = "UNI"
	KeyMultiple = "MUL"
)

type Column struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	KeyRole  string  `json:"key"`
	Default  *string `json:"default"`
	Extra    string  `json:"extra"`
}

type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// Index describes one column of a non-primary index. Multi-column indexes
// appear once per column.
type Index struct {
	Name   string `json:"name"`
	Column string `json:"column"`
	Unique bool   `json:"unique"`
}

type Table struct {
	Name        string           `json:"table"`
	Columns     []Column         `json:"columns"`
	PrimaryKey  []string         `json:"primary_key"`
	ForeignKeys []ForeignKey     `json:"foreign_keys"`
	Indexes     []Index          `json:"indexes"`
	SampleRows  []map[string]any `json:"sample_data"`
}

type Snapshot struct {
	DatabaseName string  `json:"database_name"`
	Dialect      string  `json:"dialect"`
	Tables       []Table `json:"tables"`
	Description  string  `json:"description"`
}

func (s Snapshot) TableCount() int {
	return len(s.Tables)
}

func (s Snapshot) Table(name string) (Table, bool) {
	for _, table := range s.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return Table{}, false
}

// PromptContext renders the snapshot as the JSON document embedded in
// translation prompts.
func (s Snapshot) PromptContext() (string, error) {
	payload, err := json.MarshalIndent(struct {
		Snapshot
		TableCount int `json:"table_count"`
	}{Snapshot: s, TableCount: len(s.Tables)}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema snapshot: %w", err)
	}
	return string(payload), nil
}

// Describe builds the natural-language summary of a snapshot.
func Describe(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database %s (%s) contains %d tables.\n\n", s.DatabaseName, s.Dialect, len(s.Tables))
	for _, table := range s.Tables {
		fmt.Fprintf(&b, "Table %s has %d columns.", table.Name, len(table.Columns))
		if len(table.PrimaryKey) > 0 {
			fmt.Fprintf(&b, " Primary key: %s.", strings.Join(table.PrimaryKey, ", "))
		}
		if len(table.ForeignKeys) > 0 {
			refs := make([]string, 0, len(table.ForeignKeys))
			for _, fk := range table.ForeignKeys {
				refs = append(refs, fmt.Sprintf("%s references %s.%s", fk.Column, fk.ReferencedTable, fk.ReferencedColumn))
			}
			fmt.Fprintf(&b, " Foreign keys: %s.", strings.Join(refs, ", "))
		}
		columns := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			desc := fmt.Sprintf("%s (%s)", column.Name, column.Type)
			if column.KeyRole == KeyPrimary {
				desc += ", primary key"
			}
			if !column.Nullable {
				desc += ", not null"
			}
			columns = append(columns, desc)
		}
		fmt.Fprintf(&b, " Columns: %s.\n\n", strings.Join(columns, ", "))
	}
	return b.String()
}
