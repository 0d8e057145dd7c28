package util

import (
	"net/http"
	"strings"
)

// CORS echoes the request origin back only when it appears in a fixed
// allow-list. Non-listed origins get no CORS headers at all, so the browser
// blocks the response.
type CORS struct {
	allowed map[string]struct{}
}

// NewCORS builds the allow-list from exact origin strings
// (scheme://host[:port]). Entries are matched case-insensitively.
func NewCORS(origins []string) *CORS {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	return &CORS{allowed: allowed}
}

// Wrap applies the allow-list to every request and short-circuits preflights.
func (c *CORS) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" && c.Allowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Anonymous-Id")
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allowed reports whether the origin is on the allow-list.
func (c *CORS) Allowed(origin string) bool {
	_, ok := c.allowed[strings.TrimRight(strings.ToLower(origin), "/")]
	return ok
}
