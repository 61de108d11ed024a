package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"

	"github.com/rudderlabs/rudder-go-kit/stats"
)

// LimitConcurrentRequests rejects requests with 503 while maxRequests are already
// being served. Zero means no limit.
func LimitConcurrentRequests(maxRequests int) func(http.Handler) http.Handler {
	requests := make(chan struct{}, maxRequests)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxRequests != 0 {
				select {
				case requests <- struct{}{}:
					defer func() {
						<-requests
					}()
				default:
					http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StatMiddleware times every request by route and reports the number of
// requests in flight every 10 seconds until ctx is done.
func StatMiddleware(ctx context.Context, statsFactory stats.Stats, component string) func(http.Handler) http.Handler {
	var concurrentRequests atomic.Int32
	activeClientCount := statsFactory.NewTaggedStat("visitor_log_http_concurrent_requests", stats.GaugeType, stats.Tags{"component": component})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Second):
				activeClientCount.Gauge(concurrentRequests.Load())
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			concurrentRequests.Inc()
			defer concurrentRequests.Dec()

			next.ServeHTTP(w, r)

			statsFactory.NewTaggedStat("visitor_log_http_response_time", stats.TimerType, stats.Tags{
				"component": component,
				"reqType":   routePattern(r),
				"method":    r.Method,
			}).Since(start)
		})
	}
}

// routePattern keeps the tag cardinality bounded by the routes that exist.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
