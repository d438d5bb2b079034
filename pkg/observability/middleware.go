package observability

import (
	"net/http"
	"strconv"
	"time"
)

// Routes are the paths reported in the route label. Anything else is
// counted as "other".
var Routes = []string{"/v1/chat/completions", "/v1/models", "/healthz", "/metrics"}

// MetricsMiddleware records weiche_http_requests_total and
// weiche_http_request_duration_seconds for every request. Open SSE
// streams are counted by the SSE writer instead.
func MetricsMiddleware(next http.Handler) http.Handler {
	known := make(map[string]bool, len(Routes))
	for _, r := range Routes {
		known[r] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if !known[route] {
			route = "other"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, statusClass(sw.statusCode())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// statusWriter remembers the first status written.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Flush passes through so SSE responses are not buffered.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
