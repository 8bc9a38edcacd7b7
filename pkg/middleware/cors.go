package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists exact origins. "*" allows any origin.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
	// AllowCredentials lets browsers send the refresh cookie cross-origin.
	// Browsers reject "*" on credentialed requests, so the request origin
	// is echoed instead.
	AllowCredentials bool
	// Environment "development" allows any origin.
	Environment string
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	defaultCORSHeaders = []string{"Accept", "Authorization", "Content-Type", CorrelationHeader}
)

const defaultCORSMaxAge = 3600

// DefaultCORSConfig allows any origin with credentials, for development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   defaultCORSMethods,
		AllowedHeaders:   defaultCORSHeaders,
		ExposedHeaders:   []string{CorrelationHeader},
		MaxAge:           defaultCORSMaxAge,
		AllowCredentials: true,
		Environment:      "development",
	}
}

// CORS answers preflight requests with 204 and decorates every other
// response with the configured access-control headers.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = defaultCORSMethods
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = defaultCORSHeaders
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = defaultCORSMaxAge
	}
	anyOrigin := cfg.Environment == "development" || slices.Contains(cfg.AllowedOrigins, "*")

	static := map[string]string{
		"Access-Control-Allow-Methods": strings.Join(cfg.AllowedMethods, ", "),
		"Access-Control-Allow-Headers": strings.Join(cfg.AllowedHeaders, ", "),
		"Access-Control-Max-Age":       strconv.Itoa(cfg.MaxAge),
	}
	if len(cfg.ExposedHeaders) > 0 {
		static["Access-Control-Expose-Headers"] = strings.Join(cfg.ExposedHeaders, ", ")
	}
	if cfg.AllowCredentials {
		static["Access-Control-Allow-Credentials"] = "true"
	}

	allowOrigin := func(h http.Header, origin string) {
		switch {
		case anyOrigin && (origin == "" || !cfg.AllowCredentials):
			h.Set("Access-Control-Allow-Origin", "*")
		case anyOrigin, slices.Contains(cfg.AllowedOrigins, origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			allowOrigin(h, r.Header.Get("Origin"))
			for k, v := range static {
				h.Set(k, v)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
