package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Misty-Star/Speak2SQL/internal/history"
	"github.com/Misty-Star/Speak2SQL/internal/nl2sql"
	"github.com/Misty-Star/Speak2SQL/internal/query"
	"github.com/Misty-Star/Speak2SQL/internal/sqltext"
)

type QueryResult struct {
	Natural   string            `json:"natural_query"`
	SQL       string            `json:"sql"`
	Rows      query.RowSet      `json:"result"`
	Operation history.Operation `json:"-"`
	Warning   string            `json:"warning,omitempty"`
}

type ModifyResult struct {
	Plan         nl2sql.MutationDescriptor `json:"plan"`
	AffectedRows int64                     `json:"affected_rows"`
	Operation    history.Operation         `json:"-"`
	Preview      *query.RowSet             `json:"preview,omitempty"`
	Warning      string                    `json:"warning,omitempty"`
}

type BatchResult struct {
	Outcomes   []query.Outcome     `json:"outcomes"`
	Operations []history.Operation `json:"-"`
	Warning    string              `json:"warning,omitempty"`
}

// Translate produces the SQL for natural without executing it.
func (s *Session) Translate(ctx context.Context, natural string) (nl2sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.translateQuery(ctx, natural)
}

func (s *Session) translateQuery(ctx context.Context, natural string) (nl2sql.Result, error) {
	snapshot, err := s.currentSnapshot(ctx)
	if err != nil {
		return nl2sql.Result{}, err
	}
	result, err := s.translator.TranslateQuery(ctx, natural, snapshot)
	if err != nil {
		return nl2sql.Result{}, &StageError{Stage: StageTranslation, Err: err}
	}
	return result, nil
}

// Query answers a natural-language question with a read statement. Generated
// statements that would change data are refused.
func (s *Session) Query(ctx context.Context, natural string) (QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	translated, err := s.translateQuery(ctx, natural)
	if err != nil {
		return QueryResult{}, err
	}
	kind := sqltext.Classify(translated.SQL)
	if kind.IsMutation() {
		return QueryResult{}, fmt.Errorf("%w: generated %s statement on the query path", query.ErrUnsupportedOperation, kind)
	}

	rows, err := s.engine.ExecuteRead(ctx, translated.SQL)
	if err != nil {
		return QueryResult{}, err
	}
	op, warning := s.record(ctx, history.Operation{
		Kind:         kind,
		SQL:          translated.SQL,
		NaturalQuery: natural,
		AffectedRows: int64(rows.Len()),
		Result:       fmt.Sprintf("query ok, %d rows", rows.Len()),
	})
	return QueryResult{Natural: natural, SQL: translated.SQL, Rows: rows, Operation: op, Warning: warning}, nil
}

// PlanModification asks the model for a change plan without executing it.
func (s *Session) PlanModification(ctx context.Context, natural, currentTable string) (nl2sql.MutationDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planModification(ctx, natural, currentTable)
}

func (s *Session) planModification(ctx context.Context, natural, currentTable string) (nl2sql.MutationDescriptor, error) {
	snapshot, err := s.currentSnapshot(ctx)
	if err != nil {
		return nl2sql.MutationDescriptor{}, err
	}
	plan, err := s.translator.TranslateMutation(ctx, natural, snapshot, currentTable)
	if err != nil {
		return nl2sql.MutationDescriptor{}, &StageError{Stage: StageTranslation, Err: err}
	}
	return plan, nil
}

// ApplyModification executes a previously planned change and records it
// with its rollback SQL.
func (s *Session) ApplyModification(ctx context.Context, natural string, plan nl2sql.MutationDescriptor) (ModifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyModification(ctx, natural, plan)
}

func (s *Session) applyModification(ctx context.Context, natural string, plan nl2sql.MutationDescriptor) (ModifyResult, error) {
	if !plan.Kind.IsMutation() {
		return ModifyResult{}, fmt.Errorf("%w: %s is not a modification", query.ErrUnsupportedOperation, plan.Kind)
	}
	written, err := s.engine.ExecuteWrite(ctx, plan.SQL)
	if err != nil {
		return ModifyResult{}, err
	}
	s.invalidateSchema()

	op, warning := s.record(ctx, history.Operation{
		Kind:         written.Kind,
		SQL:          written.SQL,
		NaturalQuery: natural,
		AffectedRows: written.AffectedRows,
		Result:       writeSummary(written),
		RollbackSQL:  plan.RollbackSQL,
	})
	result := ModifyResult{Plan: plan, AffectedRows: written.AffectedRows, Operation: op, Warning: warning}
	result.Preview = s.preview(ctx, written.Kind, plan.AffectedTable, written.SQL)
	return result, nil
}

// Modify plans and applies a change. confirm, when set, sees the plan first
// and may decline it.
func (s *Session) Modify(ctx context.Context, natural, currentTable string, confirm func(nl2sql.MutationDescriptor) bool) (ModifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := s.planModification(ctx, natural, currentTable)
	if err != nil {
		return ModifyResult{}, err
	}
	if confirm != nil && !confirm(plan) {
		return ModifyResult{Plan: plan}, ErrCancelled
	}
	return s.applyModification(ctx, natural, plan)
}

// ExecuteBatch runs statements in one transaction and records one history
// entry per statement once the batch committed.
func (s *Session) ExecuteBatch(ctx context.Context, natural string, statements []string) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes, err := s.engine.ExecuteTransaction(ctx, statements)
	if err != nil {
		return BatchResult{}, err
	}
	result := BatchResult{Outcomes: outcomes, Operations: make([]history.Operation, 0, len(outcomes))}
	var warnings []string
	for _, outcome := range outcomes {
		if outcome.Kind.IsMutation() {
			s.invalidateSchema()
		}
		op, warning := s.record(ctx, history.Operation{
			Kind:         outcome.Kind,
			SQL:          outcome.SQL,
			NaturalQuery: natural,
			AffectedRows: outcome.AffectedRows,
			Result:       outcomeSummary(outcome),
		})
		result.Operations = append(result.Operations, op)
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}
	if len(warnings) > 0 {
		result.Warning = warnings[len(warnings)-1]
	}
	return result, nil
}

func (s *Session) preview(ctx context.Context, kind sqltext.Kind, table, stmt string) *query.RowSet {
	switch kind {
	case sqltext.KindInsert, sqltext.KindUpdate, sqltext.KindDelete:
	default:
		return nil
	}
	if strings.TrimSpace(table) == "" {
		table = sqltext.TableName(stmt)
	}
	if table == "" {
		return nil
	}
	rows, err := s.engine.Preview(ctx, table, s.previewLimit)
	if err != nil {
		s.logger.WarnContext(ctx, "table preview failed", slog.String("table", table), slog.Any("error", err))
		return nil
	}
	return &rows
}

func writeSummary(written query.WriteResult) string {
	return fmt.Sprintf("%s ok, %d rows affected", written.Kind, written.AffectedRows)
}

func outcomeSummary(outcome query.Outcome) string {
	if outcome.Rows != nil {
		return fmt.Sprintf("query ok, %d rows", outcome.Rows.Len())
	}
	return fmt.Sprintf("%s ok, %d rows affected", outcome.Kind, outcome.AffectedRows)
}
