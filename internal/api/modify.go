package api

import (
	"net/http"
	"strings"

	"github.com/Misty-Star/Speak2SQL/internal/auth"
)

type modifyRequest struct {
	Request      string `json:"request"`
	CurrentTable string `json:"current_table"`
	DryRun       bool   `json:"dry_run"`
}

type batchRequest struct {
	Description string   `json:"description"`
	Statements  []string `json:"statements"`
}

// handleModify plans and applies a change in one call. Clients that want to
// review first send dry_run and apply the returned plan with a second call.
func handleModify(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role := auth.RoleDataWriter
	if req.DryRun {
		role = auth.RoleQueryReader
	}
	if !requireRole(w, r, role) {
		return
	}
	natural := strings.TrimSpace(req.Request)
	if natural == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "request is required", false, nil)
		return
	}

	if req.DryRun {
		plan, err := deps.Session.PlanModification(r.Context(), natural, req.CurrentTable)
		if err != nil {
			writeSessionError(deps, w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"plan": plan, "dry_run": true})
		return
	}

	result, err := deps.Session.Modify(r.Context(), natural, req.CurrentTable, nil)
	if err != nil {
		writeSessionError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleBatch(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, auth.RoleDataWriter) {
		return
	}
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Statements) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "statements are required", false, nil)
		return
	}
	result, err := deps.Session.ExecuteBatch(r.Context(), req.Description, req.Statements)
	if err != nil {
		writeSessionError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
