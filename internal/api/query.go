package api

import (
	"net/http"
	"strings"

	"github.com/Misty-Star/Speak2SQL/internal/auth"
)

type questionRequest struct {
	Question string `json:"question"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, auth.RoleQueryReader) {
		return
	}
	load := deps.Session.Schema
	if r.URL.Query().Get("refresh") == "true" {
		load = deps.Session.RefreshSchema
	}
	snapshot, err := load(r.Context())
	if err != nil {
		writeSessionError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table_count": snapshot.TableCount(),
		"schema":      snapshot,
	})
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, auth.RoleQueryReader) {
		return
	}
	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	result, err := deps.Session.Query(r.Context(), question)
	if err != nil {
		writeSessionError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, auth.RoleQueryReader) {
		return
	}
	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	result, err := deps.Session.Translate(r.Context(), question)
	if err != nil {
		writeSessionError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req questionRequest
	if !decodeJSON(w, r, &req) {
		return "", false
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "question is required", false, nil)
		return "", false
	}
	return question, true
}
