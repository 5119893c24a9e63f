// Package nl2sql turns natural-language requests into SQL through a
// completion provider and defends against loosely formatted model replies.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Misty-Star/Speak2SQL/internal/completion"
	"github.com/Misty-Star/Speak2SQL/internal/observability"
	"github.com/Misty-Star/Speak2SQL/internal/schema"
	"github.com/Misty-Star/Speak2SQL/internal/sqltext"
)

var (
	ErrNoSQLExtracted    = errors.New("no sql statement found in model output")
	ErrMalformedMutation = errors.New("malformed modification reply")
)

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// MutationDescriptor is the model's plan for a data or schema change.
type MutationDescriptor struct {
	Kind          sqltext.Kind `json:"operation_type"`
	SQL           string       `json:"sql"`
	AffectedTable string       `json:"affected_table,omitempty"`
	RollbackSQL   string       `json:"rollback_sql,omitempty"`
	Description   string       `json:"description,omitempty"`
}

type Translator struct {
	provider completion.Provider
	logger   *slog.Logger
}

func NewTranslator(provider completion.Provider, logger *slog.Logger) (*Translator, error) {
	if provider == nil {
		return nil, fmt.Errorf("completion provider is required")
	}
	return &Translator{provider: provider, logger: observability.OrDiscard(logger)}, nil
}

func (t *Translator) Provider() string { return t.provider.Name() }

func (t *Translator) Model() string { return t.provider.Model() }

// TranslateQuery asks for a single read statement answering natural.
func (t *Translator) TranslateQuery(ctx context.Context, natural string, snapshot schema.Snapshot) (result Result, err error) {
	defer func() { observability.ObserveTranslation("query", err) }()

	req, err := queryRequest(natural, snapshot)
	if err != nil {
		return Result{}, err
	}
	reply, err := t.provider.Complete(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("translate query: %w", err)
	}
	stmt, err := ExtractSQL(reply)
	if err != nil {
		t.logger.WarnContext(ctx, "model reply had no sql", slog.String("reply", truncate(reply, 200)))
		return Result{}, err
	}
	t.logger.InfoContext(ctx, "query translated",
		slog.String("provider", t.provider.Name()),
		slog.String("sql", stmt),
	)
	return Result{SQL: stmt, Provider: t.provider.Name(), Model: t.provider.Model()}, nil
}

// TranslateMutation asks for a modification plan. currentTable, when set,
// hints which table the user is looking at.
func (t *Translator) TranslateMutation(ctx context.Context, natural string, snapshot schema.Snapshot, currentTable string) (desc MutationDescriptor, err error) {
	defer func() { observability.ObserveTranslation("mutation", err) }()

	req, err := mutationRequest(natural, snapshot, currentTable)
	if err != nil {
		return MutationDescriptor{}, err
	}
	reply, err := t.provider.Complete(ctx, req)
	if err != nil {
		return MutationDescriptor{}, fmt.Errorf("translate modification: %w", err)
	}
	desc, err = ParseMutation(reply)
	if err != nil {
		t.logger.WarnContext(ctx, "model reply was not a modification plan", slog.String("reply", truncate(reply, 200)))
		return MutationDescriptor{}, err
	}
	t.logger.InfoContext(ctx, "modification translated",
		slog.String("provider", t.provider.Name()),
		slog.String("kind", string(desc.Kind)),
		slog.String("sql", desc.SQL),
	)
	return desc, nil
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
