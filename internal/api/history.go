package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Misty-Star/Speak2SQL/internal/auth"
	"github.com/Misty-Star/Speak2SQL/internal/history"
	"github.com/Misty-Star/Speak2SQL/internal/session"
)

type operationView struct {
	Index         int    `json:"index"`
	Timestamp     string `json:"timestamp"`
	OperationType string `json:"operation_type"`
	SQL           string `json:"sql"`
	NaturalQuery  string `json:"natural_query"`
	AffectedRows  int64  `json:"affected_rows"`
	Result        string `json:"result,omitempty"`
	RollbackSQL   string `json:"rollback_sql,omitempty"`
	Current       bool   `json:"current"`
}

func toOperationView(index, cursor int, op history.Operation) operationView {
	return operationView{
		Index:         index,
		Timestamp:     op.Timestamp.UTC().Format(time.RFC3339Nano),
		OperationType: op.Kind.String(),
		SQL:           op.SQL,
		NaturalQuery:  op.NaturalQuery,
		AffectedRows:  op.AffectedRows,
		Result:        op.Result,
		RollbackSQL:   op.RollbackSQL,
		Current:       index == cursor,
	}
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, auth.RoleQueryReader) {
		return
	}
	view := deps.Session.History()
	ops := make([]operationView, 0, len(view.Operations))
	for i, op := range view.Operations {
		ops = append(ops, toOperationView(i, view.Cursor, op))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"operations": ops,
		"cursor":     view.Cursor,
		"can_undo":   view.CanUndo,
		"can_redo":   view.CanRedo,
	})
}

func handleUndo(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, auth.RoleDataWriter) {
		return
	}
	undone, err := deps.Session.Undo()
	if err != nil {
		writeSessionError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"operation": toOperationView(undone.Index, undone.Cursor, undone.Operation),
		"cursor":    undone.Cursor,
	})
}

func handleRedo(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, auth.RoleDataWriter) {
		return
	}
	exec, err := deps.Session.Redo(r.Context())
	if err != nil {
		writeSessionError(deps, w, r, err)
		return
	}
	writeExecution(deps, w, exec)
}

func handleReplay(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	runAtIndex(deps, w, r, deps.Session.Replay)
}

func handleRevert(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	runAtIndex(deps, w, r, deps.Session.Revert)
}

func runAtIndex(deps Dependencies, w http.ResponseWriter, r *http.Request, run func(context.Context, int) (session.Execution, error)) {
	if !requireRole(w, r, auth.RoleDataWriter) {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_INDEX", "index must be a non-negative integer", false, map[string]any{"index": r.PathValue("index")})
		return
	}
	exec, err := run(r.Context(), index)
	if err != nil {
		writeSessionError(deps, w, r, err)
		return
	}
	writeExecution(deps, w, exec)
}

func writeExecution(deps Dependencies, w http.ResponseWriter, exec session.Execution) {
	view := deps.Session.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"execution": exec,
		"cursor":    view.Cursor,
		"can_undo":  view.CanUndo,
		"can_redo":  view.CanRedo,
	})
}
