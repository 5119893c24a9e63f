package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Misty-Star/Speak2SQL/internal/auth"
	"github.com/Misty-Star/Speak2SQL/internal/config"
	"github.com/Misty-Star/Speak2SQL/internal/nl2sql"
	"github.com/Misty-Star/Speak2SQL/internal/observability"
	"github.com/Misty-Star/Speak2SQL/internal/schema"
	"github.com/Misty-Star/Speak2SQL/internal/session"
)

type ReadinessCheck func(ctx context.Context) error

// Pipeline is the slice of *session.Session the HTTP surface drives.
type Pipeline interface {
	Schema(ctx context.Context) (schema.Snapshot, error)
	RefreshSchema(ctx context.Context) (schema.Snapshot, error)
	Translate(ctx context.Context, natural string) (nl2sql.Result, error)
	Query(ctx context.Context, natural string) (session.QueryResult, error)
	PlanModification(ctx context.Context, natural, currentTable string) (nl2sql.MutationDescriptor, error)
	Modify(ctx context.Context, natural, currentTable string, confirm func(nl2sql.MutationDescriptor) bool) (session.ModifyResult, error)
	ExecuteBatch(ctx context.Context, natural string, statements []string) (session.BatchResult, error)
	History() session.HistoryView
	Undo() (session.Undone, error)
	Redo(ctx context.Context) (session.Execution, error)
	Replay(ctx context.Context, index int) (session.Execution, error)
	Revert(ctx context.Context, index int) (session.Execution, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Session           Pipeline
}

type route struct {
	pattern string
	handle  func(Dependencies, http.ResponseWriter, *http.Request)
}

var protectedRoutes = []route{
	{"GET /v1/schema", handleSchema},
	{"POST /v1/query", handleQuery},
	{"POST /v1/query/translate", handleTranslate},
	{"POST /v1/modify", handleModify},
	{"POST /v1/batch", handleBatch},
	{"GET /v1/history", handleHistory},
	{"POST /v1/history/undo", handleUndo},
	{"POST /v1/history/redo", handleRedo},
	{"POST /v1/history/{index}/replay", handleReplay},
	{"POST /v1/history/{index}/revert", handleRevert},
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			observability.SetRoute(r.Context(), pattern)
			h.ServeHTTP(w, r)
		}))
	}

	handle("GET /v1/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	}))

	handle("GET /v1/ready", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))

	handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	for _, rt := range protectedRoutes {
		serve := rt.handle
		protected.HandleFunc(rt.pattern, func(w http.ResponseWriter, r *http.Request) {
			if deps.Session == nil {
				writeError(r.Context(), w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "session is not configured", true, nil)
				return
			}
			serve(deps, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, rt := range protectedRoutes {
		handle(rt.pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckDatabase reports the target database unreachable when ping fails.
func CheckDatabase(ping func(ctx context.Context) error) ReadinessCheck {
	return func(ctx context.Context) error {
		if ping == nil {
			return errors.New("database is not configured")
		}
		return ping(ctx)
	}
}

// CheckObjectStoreConfig only applies when history lives in a bucket.
func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.History.Backend != config.HistoryBackendS3 {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// requireRole passes requests without an identity; those only reach a
// handler when auth is disabled.
func requireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return true
	}
	if identity.HasRole(role) {
		return true
	}
	observability.Annotate(r.Context(), slog.String("denied_role", role))
	writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "missing required role", false, map[string]any{"required_role": role})
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", err.Error(), false, nil)
		return false
	}
	return true
}

type failure struct {
	status    int
	code      string
	retryable bool
}

var failures = map[string]failure{
	session.StageConnection:  {http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE", true},
	session.StageQuery:       {http.StatusUnprocessableEntity, "QUERY_FAILED", false},
	session.StageTranslation: {http.StatusBadGateway, "TRANSLATION_FAILED", true},
	session.StageUnsupported: {http.StatusBadRequest, "UNSUPPORTED_OPERATION", false},
	session.StagePersistence: {http.StatusInternalServerError, "HISTORY_PERSISTENCE_FAILED", false},
	session.StageInternal:    {http.StatusInternalServerError, "INTERNAL", false},
}

// writeSessionError maps a pipeline error onto the response envelope by its
// category.
func writeSessionError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	category := session.Classify(err)
	f, ok := failures[category]
	if !ok {
		f = failures[session.StageInternal]
	}
	observability.Annotate(r.Context(), slog.String("error_category", category))
	if f.status >= http.StatusInternalServerError && deps.Logger != nil {
		deps.Logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("category", category),
			slog.Any("error", err),
		)
	}
	writeError(r.Context(), w, f.status, f.code, err.Error(), f.retryable, map[string]any{"category": category})
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
