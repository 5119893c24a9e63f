package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Misty-Star/Speak2SQL/internal/observability"
	"github.com/Misty-Star/Speak2SQL/internal/query"
)

const DefaultSampleRows = 5

// Dialect knows how one database engine exposes its catalog.
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	DatabaseName(ctx context.Context, db *sql.DB) (string, error)
	Tables(ctx context.Context, db *sql.DB) ([]string, error)
	Columns(ctx context.Context, db *sql.DB, table string) ([]Column, error)
	ForeignKeys(ctx context.Context, db *sql.DB, table string) ([]ForeignKey, error)
	Indexes(ctx context.Context, db *sql.DB, table string) ([]Index, error)
}

// DialectFor returns the dialect matching a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL{}, nil
	case "pgx", "postgres", "postgresql":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "duckdb":
		return DuckDB{}, nil
	default:
		return nil, fmt.Errorf("no schema dialect for driver %q", driver)
	}
}

type Introspector struct {
	db         *sql.DB
	dialect    Dialect
	sampleRows int
	logger     *slog.Logger
}

type Option func(*Introspector)

func WithSampleRows(n int) Option {
	return func(i *Introspector) { i.sampleRows = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Introspector) { i.logger = logger }
}

func NewIntrospector(db *sql.DB, dialect Dialect, opts ...Option) (*Introspector, error) {
	if dialect == nil {
		return nil, fmt.Errorf("schema dialect is required")
	}
	i := &Introspector{db: db, dialect: dialect, sampleRows: DefaultSampleRows}
	for _, opt := range opts {
		opt(i)
	}
	if i.sampleRows < 0 {
		i.sampleRows = 0
	}
	i.logger = observability.OrDiscard(i.logger)
	return i, nil
}

// Snapshot reads the whole catalog. Failing to read columns aborts the
// snapshot; foreign keys, indexes and sample rows are best effort.
func (i *Introspector) Snapshot(ctx context.Context) (Snapshot, error) {
	if i.db == nil {
		return Snapshot{}, ErrNotConnected
	}
	if err := i.db.PingContext(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	name, err := i.dialect.DatabaseName(ctx, i.db)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read database name: %w", err)
	}
	tableNames, err := i.dialect.Tables(ctx, i.db)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list tables: %w", err)
	}
	if len(tableNames) == 0 {
		i.logger.WarnContext(ctx, "database has no tables", slog.String("database", name))
		return Snapshot{}, ErrNoTables
	}

	snapshot := Snapshot{DatabaseName: name, Dialect: i.dialect.Name(), Tables: make([]Table, 0, len(tableNames))}
	for _, tableName := range tableNames {
		table, err := i.describeTable(ctx, tableName)
		if err != nil {
			return Snapshot{}, err
		}
		snapshot.Tables = append(snapshot.Tables, table)
	}
	snapshot.Description = Describe(snapshot)
	i.logger.InfoContext(ctx, "schema snapshot ready",
		slog.String("database", name),
		slog.Int("tables", len(snapshot.Tables)),
	)
	return snapshot, nil
}

func (i *Introspector) describeTable(ctx context.Context, name string) (Table, error) {
	table := Table{
		Name:        name,
		PrimaryKey:  []string{},
		ForeignKeys: []ForeignKey{},
		Indexes:     []Index{},
		SampleRows:  []map[string]any{},
	}

	columns, err := i.dialect.Columns(ctx, i.db, name)
	if err != nil {
		return Table{}, fmt.Errorf("describe table %s: %w", name, err)
	}
	table.Columns = columns

	if fks, err := i.dialect.ForeignKeys(ctx, i.db, name); err != nil {
		i.logger.WarnContext(ctx, "foreign keys unavailable", slog.String("table", name), slog.Any("error", err))
	} else if fks != nil {
		table.ForeignKeys = fks
	}
	if indexes, err := i.dialect.Indexes(ctx, i.db, name); err != nil {
		i.logger.WarnContext(ctx, "indexes unavailable", slog.String("table", name), slog.Any("error", err))
	} else if indexes != nil {
		table.Indexes = indexes
	}
	assignKeyRoles(&table)

	if i.sampleRows > 0 {
		samples, err := i.sample(ctx, name)
		if err != nil {
			i.logger.WarnContext(ctx, "sample rows unavailable", slog.String("table", name), slog.Any("error", err))
		} else {
			table.SampleRows = samples
		}
	}
	return table, nil
}

func (i *Introspector) sample(ctx context.Context, table string) ([]map[string]any, error) {
	stmt := fmt.Sprintf("SELECT * FROM %s LIMIT %d", i.dialect.QuoteIdent(table), i.sampleRows)
	rows, err := i.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result, err := query.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	samples := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		sample := make(map[string]any, len(result.Columns))
		for idx, column := range result.Columns {
			sample[column] = sampleValue(row[idx])
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func sampleValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// assignKeyRoles derives the primary key list and fills key roles the
// dialect left empty from index and foreign key membership.
func assignKeyRoles(table *Table) {
	unique := map[string]bool{}
	indexed := map[string]bool{}
	columnsPerIndex := map[string]int{}
	for _, index := range table.Indexes {
		columnsPerIndex[index.Name]++
	}
	for _, index := range table.Indexes {
		if index.Unique && columnsPerIndex[index.Name] == 1 {
			unique[index.Column] = true
		}
		indexed[index.Column] = true
	}
	for _, fk := range table.ForeignKeys {
		indexed[fk.Column] = true
	}

	table.PrimaryKey = table.PrimaryKey[:0]
	for idx := range table.Columns {
		column := &table.Columns[idx]
		if column.KeyRole == "" {
			switch {
			case unique[column.Name]:
				column.KeyRole = KeyUnique
			case indexed[column.Name]:
				column.KeyRole = KeyMultiple
			}
		}
		if column.KeyRole == KeyPrimary {
			table.PrimaryKey = append(table.PrimaryKey, column.Name)
		}
	}
}
