package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dmitrymomot/dialbill/pkg/logger"
)

// cronTokens returns every secret candidate the request carries.
func cronTokens(r *http.Request) []string {
	var out []string
	if v := r.URL.Query().Get("token"); v != "" {
		out = append(out, v)
	}
	for _, h := range []string{"X-Cron-Key", "X-Cron-Token"} {
		if v := r.Header.Get(h); v != "" {
			out = append(out, v)
		}
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && v != "" {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

// cronAuth accepts a request when any of its tokens matches secret. Without
// a secret the endpoint is open unless strict is set.
func (s *Server) cronAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.CronSecret == "" {
			if s.cfg.Strict {
				s.log.WarnContext(r.Context(), "cron request rejected, no secret configured in strict mode")
				writeError(w, http.StatusUnauthorized, "unauthorized", "cron secret is not configured")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		secret := []byte(s.cfg.CronSecret)
		for _, tok := range cronTokens(r) {
			if subtle.ConstantTimeCompare([]byte(tok), secret) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
	})
}

func (s *Server) runReminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := s.reminders.Tick(ctx, s.now())
	if err != nil {
		s.log.ErrorContext(ctx, "reminder tick failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "tick_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
