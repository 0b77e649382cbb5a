package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrymomot/dialbill/pkg/logger"
	"github.com/dmitrymomot/dialbill/pkg/ratelimiter"
)

// RateLimiter is satisfied by *ratelimiter.Bucket.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimiter.Result, error)
}

// WithRateLimiter throttles the public webhook per client IP.
func WithRateLimiter(l RateLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

// rateLimit fails open: a broken limiter store must not drop carrier
// callbacks.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		res, err := s.limiter.Allow(r.Context(), "webhook:"+ip)
		if err != nil {
			s.log.WarnContext(r.Context(), "rate limiter unavailable", logger.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			if secs := int(res.RetryAfter(s.now()).Seconds()); secs > 0 {
				h.Set("Retry-After", strconv.Itoa(secs))
			} else {
				h.Set("Retry-After", "1")
			}
			s.log.WarnContext(r.Context(), "webhook rate limited", slog.String("client_ip", ip))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	for _, header := range []string{"CF-Connecting-IP", "X-Real-IP"} {
		if ip := parseIP(r.Header.Get(header)); ip != "" {
			return ip
		}
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for part := range strings.SplitSeq(fwd, ",") {
			if ip := parseIP(part); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
