package middleware

import (
	"net/http"
	"strings"
)

// idempotencyHeader is sent by collectors on every submission and must
// survive preflight whatever the configured header list says.
const idempotencyHeader = "Idempotency-Key"

// CORSMiddleware answers cross-origin requests from the configured origins.
// A "*" entry admits any origin. Preflight requests end here.
func CORSMiddleware(allowedOrigins, allowedMethods, allowedHeaders string) func(http.Handler) http.Handler {
	origins := splitList(allowedOrigins)
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}

	headers := splitList(allowedHeaders)
	if !containsFold(headers, idempotencyHeader) {
		headers = append(headers, idempotencyHeader)
	}
	headerValue := strings.Join(headers, ", ")
	methodValue := strings.Join(splitList(allowedMethods), ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			switch {
			case wildcard:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "" && containsFold(origins, origin):
				h.Set("Access-Control-Allow-Origin", origin)
			}

			h.Set("Access-Control-Allow-Methods", methodValue)
			h.Set("Access-Control-Allow-Headers", headerValue)
			h.Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
