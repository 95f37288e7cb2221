package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"dispatchd/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument records request counts and latencies. Paths with ids are
// collapsed to their route prefix to keep label cardinality bounded.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		path := metricPath(r.URL.Path)
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

func metricPath(p string) string {
	for _, prefix := range []string{"/v1/drivers/", "/v1/orders/", "/v1/subscriptions/"} {
		if strings.HasPrefix(p, prefix) && len(p) > len(prefix) {
			return prefix + ":id"
		}
	}
	return p
}
