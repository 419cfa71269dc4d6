package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/giantswarm/mcp-hive/internal/instrumentation"
)

// otherRoute labels requests outside every known route.
const otherRoute = "other"

// Routes is the bounded set of path labels used in request metrics. A
// request is labelled with the longest route that equals its path or is a
// whole-segment prefix of it, so /mcp/abc counts as /mcp.
type Routes []string

// Label returns the route for path, or "other".
func (r Routes) Label(path string) string {
	best := ""
	for _, route := range r {
		if route == "" || len(route) <= len(best) {
			continue
		}
		if path == route || strings.HasPrefix(path, strings.TrimSuffix(route, "/")+"/") {
			best = route
		}
	}
	if best == "" {
		return otherRoute
	}
	return best
}

// statusRecorder remembers the first status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Flush keeps SSE and streamable HTTP responses streaming through the wrapper.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// code is the recorded status; a handler that wrote nothing answered 200.
func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// HTTPMetrics records a request counter and duration histogram per method,
// route and status. It passes requests straight through when provider is nil
// or disabled.
func HTTPMetrics(provider *instrumentation.Provider, routes Routes) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if provider == nil || !provider.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			provider.Metrics().RecordHTTPRequest(r.Context(), r.Method, routes.Label(r.URL.Path), rec.code(), time.Since(start))
		})
	}
}
