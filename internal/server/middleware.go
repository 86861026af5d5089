package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default per-client limits for mutating routes.
const (
	defaultRate  = 5
	defaultBurst = 10
)

// RateLimitMiddleware limits mutating requests per remote host.
func RateLimitMiddleware(r rate.Limit, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limiters := sync.Map{} // remote host -> *rate.Limiter

		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			host, _, err := net.SplitHostPort(req.RemoteAddr)
			if err != nil {
				host = req.RemoteAddr
			}

			v, _ := limiters.LoadOrStore(host, rate.NewLimiter(r, burst))
			if !v.(*rate.Limiter).Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// RequestLogMiddleware logs one line per request with method, path, and
// duration.
func RequestLogMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, req)
			log.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"remote", req.RemoteAddr,
				"duration", time.Since(start),
			)
		})
	}
}
