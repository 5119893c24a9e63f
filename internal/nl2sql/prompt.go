package nl2sql

import (
	"fmt"
	"strings"

	"github.com/Misty-Star/Speak2SQL/internal/completion"
	"github.com/Misty-Star/Speak2SQL/internal/schema"
)

func dialectLabel(dialect string) string {
	switch dialect {
	case "postgres":
		return "PostgreSQL"
	case "sqlite":
		return "SQLite"
	case "duckdb":
		return "DuckDB"
	default:
		return "MySQL"
	}
}

const querySystemPrompt = `You are a SQL expert who turns natural-language questions into precise %[1]s queries.
Read the database structure (tables, columns, types, keys, relationships, sample rows) and write the best query for it.

Guidelines:
- Join tables along their foreign keys.
- Pick precise WHERE conditions and use GROUP BY, HAVING and ORDER BY where the question needs them.
- Use subqueries or common table expressions when they make the query clearer.
- Prefer predicates that can use existing indexes.

Return exactly one %[1]s statement. No explanation, no markdown, no code fences.
Do not include reasoning or tags such as <think>, <thinking> or <thoughts>.`

const mutationSystemPrompt = `You are a SQL expert who turns natural-language requests into precise %[1]s data modification statements.
Read the database structure (tables, columns, types, keys) and produce one of:
INSERT, UPDATE, DELETE, CREATE TABLE, ALTER TABLE, DROP TABLE.

Rules:
- The statement must be valid %[1]s.
- Match column types for INSERT and UPDATE values.
- Always give DELETE a WHERE clause so it never empties a whole table by accident.
- Provide rollback SQL that undoes the change whenever that is possible.

Reply with a single JSON object and nothing else, without markdown:
{
  "operation_type": "INSERT|UPDATE|DELETE|CREATE|ALTER|DROP",
  "sql": "the complete statement;",
  "affected_table": "name of the affected table",
  "rollback_sql": "statement that reverts the change, if applicable",
  "description": "short description of the effect"
}
Do not include reasoning or tags such as <think>, <thinking> or <thoughts>.`

func queryRequest(natural string, snapshot schema.Snapshot) (completion.Request, error) {
	natural = strings.TrimSpace(natural)
	if natural == "" {
		return completion.Request{}, fmt.Errorf("natural language request is empty")
	}
	schemaJSON, err := snapshot.PromptContext()
	if err != nil {
		return completion.Request{}, err
	}
	label := dialectLabel(snapshot.Dialect)
	return completion.Request{
		SystemPrompt: fmt.Sprintf(querySystemPrompt, label),
		UserPrompt: fmt.Sprintf("Database structure:\n%s\n\nQuestion:\n%s\n\nWrite the %s query and return only the SQL statement:",
			schemaJSON, natural, label),
	}, nil
}

func mutationRequest(natural string, snapshot schema.Snapshot, currentTable string) (completion.Request, error) {
	natural = strings.TrimSpace(natural)
	if natural == "" {
		return completion.Request{}, fmt.Errorf("natural language request is empty")
	}
	schemaJSON, err := snapshot.PromptContext()
	if err != nil {
		return completion.Request{}, err
	}
	label := dialectLabel(snapshot.Dialect)

	var user strings.Builder
	fmt.Fprintf(&user, "Database structure:\n%s\n\nRequest: %s\n", schemaJSON, natural)
	if table := strings.TrimSpace(currentTable); table != "" {
		fmt.Fprintf(&user, "\nThe currently selected table is: %s\n", table)
	}
	fmt.Fprintf(&user, "\nWrite the %s modification statement and return it as JSON:", label)
	return completion.Request{
		SystemPrompt: fmt.Sprintf(mutationSystemPrompt, label),
		UserPrompt:   user.String(),
	}, nil
}
