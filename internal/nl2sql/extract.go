package nl2sql

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/Misty-Star/Speak2SQL/internal/completion"
	"github.com/Misty-Star/Speak2SQL/internal/sqltext"
)

type fence struct {
	language string
	body     string
}

// fencedBlocks returns every fenced code block of a markdown document.
func fencedBlocks(markdown string) []fence {
	src := []byte(markdown)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var blocks []fence
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var body strings.Builder
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			segment := lines.At(i)
			body.Write(segment.Value(src))
		}
		blocks = append(blocks, fence{
			language: strings.ToLower(string(block.Language(src))),
			body:     body.String(),
		})
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

var strayFencePattern = regexp.MustCompile("(?m)^[ \t]*```[\\w-]*[ \t]*$")

// unfence returns the body of the preferred fenced block, or the input with
// stray fence markers removed when no block exists.
func unfence(reply string, language string) string {
	blocks := fencedBlocks(reply)
	for _, block := range blocks {
		if block.language == language {
			return block.body
		}
	}
	if len(blocks) > 0 {
		return blocks[0].body
	}
	out := strayFencePattern.ReplaceAllString(reply, "")
	return strings.ReplaceAll(out, "```", "")
}

var (
	lineStartKeywordPattern = regexp.MustCompile(`(?im)^[ \t]*(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP|SHOW|USE|WITH)\b`)

	// USE and WITH are common English words, so they only count at a line start.
	anyKeywordPattern = regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP|SHOW)\b`)
)

// ExtractSQL pulls one statement out of a model reply. Text before the first
// SQL keyword and anything after the first semicolon is discarded.
func ExtractSQL(reply string) (string, error) {
	body := unquote(strings.TrimSpace(unfence(completion.StripReasoning(reply), "sql")))

	start := -1
	if loc := lineStartKeywordPattern.FindStringSubmatchIndex(body); loc != nil {
		start = loc[2]
	} else if loc := anyKeywordPattern.FindStringIndex(body); loc != nil {
		start = loc[0]
	}
	if start < 0 {
		return "", ErrNoSQLExtracted
	}
	stmt := body[start:]
	if end := strings.IndexByte(stmt, ';'); end >= 0 {
		stmt = stmt[:end]
	}
	stmt = sqltext.Sanitize(stmt)
	if strings.TrimSuffix(stmt, ";") == "" {
		return "", ErrNoSQLExtracted
	}
	return stmt, nil
}

func unquote(body string) string {
	if len(body) >= 2 && body[0] == body[len(body)-1] && (body[0] == '"' || body[0] == '\'') {
		return body[1 : len(body)-1]
	}
	return body
}

// ParseMutation decodes a modification plan. operation_type and sql are
// required; sql and rollback_sql are sanitized.
func ParseMutation(reply string) (MutationDescriptor, error) {
	body := strings.TrimSpace(unfence(completion.StripReasoning(reply), "json"))

	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		start, end := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}')
		if start < 0 || end <= start {
			return MutationDescriptor{}, fmt.Errorf("%w: no json object", ErrMalformedMutation)
		}
		if err := json.Unmarshal([]byte(body[start:end+1]), &raw); err != nil {
			return MutationDescriptor{}, fmt.Errorf("%w: %v", ErrMalformedMutation, err)
		}
	}

	opType := stringField(raw, "operation_type")
	if opType == "" {
		return MutationDescriptor{}, fmt.Errorf("%w: missing operation_type", ErrMalformedMutation)
	}
	stmt := sqltext.Sanitize(stringField(raw, "sql"))
	if strings.TrimSuffix(stmt, ";") == "" {
		return MutationDescriptor{}, fmt.Errorf("%w: missing sql", ErrMalformedMutation)
	}

	kind := sqltext.ParseKind(opType)
	if kind == sqltext.KindUnknown {
		kind = sqltext.Classify(stmt)
	}
	desc := MutationDescriptor{
		Kind:          kind,
		SQL:           stmt,
		AffectedTable: stringField(raw, "affected_table"),
		RollbackSQL:   sqltext.Sanitize(stringField(raw, "rollback_sql")),
		Description:   stringField(raw, "description"),
	}
	if desc.RollbackSQL == ";" {
		desc.RollbackSQL = ""
	}
	if desc.AffectedTable == "" {
		desc.AffectedTable = sqltext.TableName(stmt)
	}
	return desc, nil
}

func stringField(raw map[string]any, key string) string {
	value, ok := raw[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
