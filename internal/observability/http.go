package observability

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	traceHeader = "X-Trace-ID"
	notesKey    = ctxKey("request_notes")

	// unmatchedRoute labels requests no route claimed, so stray paths do not
	// each become a metric series.
	unmatchedRoute = "unmatched"
)

// requestNotes carries what inner handlers learn about a request back out to
// the access log and the request metrics.
type requestNotes struct {
	mu    sync.Mutex
	route string
	attrs []slog.Attr
}

func withNotes(r *http.Request) (*http.Request, *requestNotes) {
	if notes, ok := r.Context().Value(notesKey).(*requestNotes); ok {
		return r, notes
	}
	notes := &requestNotes{}
	return r.WithContext(context.WithValue(r.Context(), notesKey, notes)), notes
}

func notesFrom(ctx context.Context) *requestNotes {
	notes, _ := ctx.Value(notesKey).(*requestNotes)
	return notes
}

// Annotate adds attributes to the access log line of the request carried by
// ctx. Outside the HTTP middleware it does nothing.
func Annotate(ctx context.Context, attrs ...slog.Attr) {
	notes := notesFrom(ctx)
	if notes == nil {
		return
	}
	notes.mu.Lock()
	notes.attrs = append(notes.attrs, attrs...)
	notes.mu.Unlock()
}

// SetRoute records the route pattern that served the request. Metrics and
// logs use it instead of the raw path, so /v1/history/3/replay and
// /v1/history/4/replay share a series.
func SetRoute(ctx context.Context, pattern string) {
	notes := notesFrom(ctx)
	if notes == nil {
		return
	}
	notes.mu.Lock()
	notes.route = pattern
	notes.mu.Unlock()
}

func (n *requestNotes) routeLabel() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.route == "" {
		return unmatchedRoute
	}
	return n.route
}

func (n *requestNotes) annotations() []slog.Attr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]slog.Attr(nil), n.attrs...)
}

func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := ContextWithTraceID(r.Context(), traceID)
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware writes one line per request. Server errors log at warn;
// attributes added with Annotate are appended.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, notes := withNotes(r)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			level := slog.LevelInfo
			if recorder.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("trace_id", TraceIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", notes.routeLabel()),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", recorder.status),
				slog.String("duration", time.Since(start).String()),
				slog.Int("bytes", recorder.bytes),
			}
			attrs = append(attrs, notes.annotations()...)
			logger.LogAttrs(r.Context(), level, "http_request", attrs...)
		})
	}
}

// MetricsMiddleware counts requests by method, route pattern and status.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r, notes := withNotes(r)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := notes.routeLabel()
		status := strconv.Itoa(recorder.status)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}
