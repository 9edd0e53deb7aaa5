package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/utils"

	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// RequestLogger logs every request through LogAPI; client and server errors
// are raised to WARN and ERROR.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start).String()
			switch {
			case status >= 500:
				log.Error("API", fmt.Sprintf("%s %s - %d (%s)", r.Method, r.URL.Path, status, duration))
			case status >= 400:
				log.Warn("API", fmt.Sprintf("%s %s - %d (%s) - Client Error", r.Method, r.URL.Path, status, duration))
			default:
				log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(status), duration)
			}
			log.Debug("REQUEST", fmt.Sprintf("IP: %s, UserAgent: %s", r.RemoteAddr, r.UserAgent()))
		})
	}
}

func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("PANIC", fmt.Sprintf("Recovered from panic in %s %s: %v", r.Method, r.URL.Path, rec))
					_ = utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Internal Server Error", "internal error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit applies one token bucket to every request passing through.
func RateLimit(rps float64, burst int, log *logger.Logger) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.LogSecurity("RATE_LIMIT", fmt.Sprintf("Rate limit exceeded for %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr))
				w.Header().Set("Retry-After", "1")
				_ = utils.WriteJSON(w, http.StatusTooManyRequests, utils.ErrorResponse("Too Many Requests", "Rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}
