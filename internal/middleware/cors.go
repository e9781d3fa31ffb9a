// Package middleware provides HTTP middleware for the pool service.
package middleware

import (
	"net/http"
	"strings"
)

// CORSMiddleware answers preflight requests and stamps allow headers on
// responses for browser clients of the REST surface.
type CORSMiddleware struct {
	origins  []string
	allowAll bool
}

// NewCORSMiddleware creates a CORS middleware. An entry of "*" allows every
// origin; entries starting with "." match any subdomain of that suffix.
func NewCORSMiddleware(origins []string) *CORSMiddleware {
	m := &CORSMiddleware{origins: origins}
	for _, o := range origins {
		if o == "*" {
			m.allowAll = true
		}
	}
	return m
}

// Handler returns the CORS middleware handler.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && m.allowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Max-Age", "3600")
		}

		// Preflight requests stop here.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) allowed(origin string) bool {
	if m.allowAll {
		return true
	}
	for _, o := range m.origins {
		if o == origin {
			return true
		}
		if strings.HasPrefix(o, ".") && strings.HasSuffix(origin, o) {
			return true
		}
	}
	return false
}
