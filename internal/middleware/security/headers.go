package security

import (
	"fmt"
	"net/http"
	"strings"
)

// HeadersConfig holds the response headers applied to every API response.
type HeadersConfig struct {
	CSP string

	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	CrossOriginResource string
}

// DefaultHeadersConfig suits a JSON API that serves no documents.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:                   "default-src 'none'; frame-ancestors 'none'",
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
		CrossOriginResource:   "cross-origin",
	}
}

// CORSConfig controls cross-origin access. The zero value of each list means
// "allow everything".
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         int
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition", "Retry-After"},
		MaxAge:         600,
	}
}

type HeadersMiddleware struct {
	config HeadersConfig
	cors   CORSConfig
}

func NewHeadersMiddleware(config HeadersConfig, cors CORSConfig) *HeadersMiddleware {
	return &HeadersMiddleware{config: config, cors: cors}
}

// Middleware applies security and CORS headers, and answers preflight
// requests with 204 before they reach the router.
func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.applyHeaders(w, r)
		h.applyCORS(w, r)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HeadersMiddleware) applyHeaders(w http.ResponseWriter, r *http.Request) {
	headers := w.Header()

	headers.Set("X-Content-Type-Options", h.config.XContentTypeOptions)
	headers.Set("X-Frame-Options", h.config.XFrameOptions)
	if h.config.CSP != "" {
		headers.Set("Content-Security-Policy", h.config.CSP)
	}
	headers.Set("Referrer-Policy", h.config.ReferrerPolicy)
	headers.Set("Cross-Origin-Resource-Policy", h.config.CrossOriginResource)
	headers.Set("Cache-Control", "no-store")

	if r.TLS != nil && h.config.HSTSMaxAge > 0 {
		hsts := fmt.Sprintf("max-age=%d", h.config.HSTSMaxAge)
		if h.config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		headers.Set("Strict-Transport-Security", hsts)
	}
}

func (h *HeadersMiddleware) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	headers := w.Header()

	switch {
	case allowsAll(h.cors.AllowedOrigins):
		headers.Set("Access-Control-Allow-Origin", "*")
	case contains(h.cors.AllowedOrigins, origin):
		headers.Set("Access-Control-Allow-Origin", origin)
		headers.Add("Vary", "Origin")
	default:
		return
	}

	if len(h.cors.ExposedHeaders) > 0 {
		headers.Set("Access-Control-Expose-Headers", strings.Join(h.cors.ExposedHeaders, ", "))
	}

	if r.Method != http.MethodOptions {
		return
	}
	methods := h.cors.AllowedMethods
	if len(methods) == 0 {
		methods = DefaultCORSConfig().AllowedMethods
	}
	headers.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))

	if allowsAll(h.cors.AllowedHeaders) {
		if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
			headers.Set("Access-Control-Allow-Headers", requested)
		}
	} else {
		headers.Set("Access-Control-Allow-Headers", strings.Join(h.cors.AllowedHeaders, ", "))
	}
	if h.cors.MaxAge > 0 {
		headers.Set("Access-Control-Max-Age", fmt.Sprint(h.cors.MaxAge))
	}
}

func allowsAll(list []string) bool {
	return len(list) == 0 || contains(list, "*")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
