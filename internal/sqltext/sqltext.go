// Package sqltext normalizes and classifies SQL text produced by language
// models before it reaches a database driver.
package sqltext

import (
	"regexp"
	"strings"
	"unicode"
)

type Kind string

const (
	KindSelect  Kind = "SELECT"
	KindInsert  Kind = "INSERT"
	KindUpdate  Kind = "UPDATE"
	KindDelete  Kind = "DELETE"
	KindCreate  Kind = "CREATE"
	KindAlter   Kind = "ALTER"
	KindDrop    Kind = "DROP"
	KindUnknown Kind = "UNKNOWN"
)

// IsMutation reports whether statements of this kind change data or schema.
func (k Kind) IsMutation() bool {
	switch k {
	case KindInsert, KindUpdate, KindDelete, KindCreate, KindAlter, KindDrop:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	return string(k)
}

var (
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentPattern  = regexp.MustCompile(`(?m)--.*$`)
)

// Sanitize removes comments and wrapping quotes and terminates the statement
// with exactly one semicolon. Only the empty string yields "". The result is a
// fixpoint: Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(sql string) string {
	if sql == "" {
		return ""
	}
	body := sql
	for {
		next := normalizeOnce(body)
		if next == body {
			break
		}
		body = next
	}
	return body + ";"
}

func normalizeOnce(sql string) string {
	out := blockCommentPattern.ReplaceAllString(sql, " ")
	out = lineCommentPattern.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	out = unwrapQuotes(out)
	return strings.TrimRightFunc(out, func(r rune) bool {
		return r == ';' || unicode.IsSpace(r)
	})
}

// unwrapQuotes strips one pair of matching quotes around the statement. No
// statement starts with a quote, so quotes inside the body are literals.
func unwrapQuotes(sql string) string {
	if len(sql) < 2 {
		return sql
	}
	first, last := sql[0], sql[len(sql)-1]
	if first != last || (first != '\'' && first != '"') {
		return sql
	}
	return sql[1 : len(sql)-1]
}

var classifyPrefixes = []struct {
	prefix string
	kind   Kind
}{
	{"SELECT", KindSelect},
	{"INSERT", KindInsert},
	{"UPDATE", KindUpdate},
	{"DELETE", KindDelete},
	{"CREATE TABLE", KindCreate},
	{"ALTER TABLE", KindAlter},
	{"DROP TABLE", KindDrop},
}

// Classify maps a statement to its operation kind by leading keyword.
func Classify(sql string) Kind {
	normalized := strings.ToUpper(strings.Join(strings.Fields(sql), " "))
	for _, candidate := range classifyPrefixes {
		if strings.HasPrefix(normalized, candidate.prefix) {
			return candidate.kind
		}
	}
	return KindUnknown
}

// ParseKind interprets a kind named by a model or a persisted record, e.g.
// "insert" or "CREATE TABLE".
func ParseKind(raw string) Kind {
	fields := strings.Fields(strings.ToUpper(raw))
	if len(fields) == 0 {
		return KindUnknown
	}
	switch kind := Kind(fields[0]); kind {
	case KindSelect, KindInsert, KindUpdate, KindDelete, KindCreate, KindAlter, KindDrop:
		return kind
	default:
		return KindUnknown
	}
}

var tableNamePatterns = []*regexp.Regexp{
	regexp.MustCompile("(?is)^\\s*INSERT\\s+(?:IGNORE\\s+)?INTO\\s+[`\"\\[]?([\\w.]+)"),
	regexp.MustCompile("(?is)^\\s*UPDATE\\s+[`\"\\[]?([\\w.]+)"),
	regexp.MustCompile("(?is)^\\s*DELETE\\s+FROM\\s+[`\"\\[]?([\\w.]+)"),
	regexp.MustCompile("(?is)^\\s*(?:CREATE|ALTER|DROP)\\s+TABLE\\s+(?:IF\\s+(?:NOT\\s+)?EXISTS\\s+)?[`\"\\[]?([\\w.]+)"),
	regexp.MustCompile("(?is)\\bFROM\\s+[`\"\\[]?([\\w.]+)"),
}

// TableName returns the first table a statement targets, or "".
func TableName(sql string) string {
	for _, pattern := range tableNamePatterns {
		if match := pattern.FindStringSubmatch(sql); match != nil {
			return match[1]
		}
	}
	return ""
}
