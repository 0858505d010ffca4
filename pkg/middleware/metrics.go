package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pinnedref/pinnedref/pkg/metrics"
)

// Metrics records request count, latency and in-flight requests. Requests
// are labelled by the ServeMux route pattern, so it must wrap the mux
// directly.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				m.HTTPRequestsInFlight.Dec()
				route := routeLabel(r)
				m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code())).Inc()
				m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

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

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// routeLabel prefers the matched mux pattern without its method. Unmatched
// requests fall back to the path with article ids collapsed.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		_, path, found := strings.Cut(r.Pattern, " ")
		if !found {
			return r.Pattern
		}
		return path
	}
	const articles = "/api/v1/articles/"
	if strings.HasPrefix(r.URL.Path, articles) && len(r.URL.Path) > len(articles) {
		return articles + "{id}"
	}
	return r.URL.Path
}
