package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// rateLimit is the admission-control middleware. It runs before any protocol
// or facilitator work so rejected requests cost one counter round-trip.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := s.limiter.Check(r.Context(), clientIP(r), r.URL.Path)

		if decision.Disabled {
			s.log.Debug("rate limit bypassed", zap.String("path", r.URL.Path))
		}

		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "Too Many Requests"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP returns the request's client address. chi's RealIP middleware has
// already folded X-Forwarded-For / X-Real-IP into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
