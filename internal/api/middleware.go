package api

import (
	"net/http"
	"net/url"
	"strings"

	"cellrun/internal/logging"
)

type apiError struct {
	Status  int
	Message string
	Code    string
}

type apiHandler func(http.ResponseWriter, *http.Request) *apiError

const cacheControlNoStore = "no-store, must-revalidate"

func setSecurityHeaders(w http.ResponseWriter, cacheControl string) {
	headers := w.Header()
	headers.Set("X-Content-Type-Options", "nosniff")
	if cacheControl != "" {
		headers.Set("Cache-Control", cacheControl)
	}
}

func securityHeadersHandler(cacheControl string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cacheControl)
		next(w, r)
	}
}

func securityHeadersMiddleware(cacheControl string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cacheControl)
		next.ServeHTTP(w, r)
	})
}

func authMiddleware(token string, next apiHandler) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) *apiError {
		if !validateToken(r, token) {
			return &apiError{Status: http.StatusUnauthorized, Message: "unauthorized"}
		}
		return next(w, r)
	}
}

func jsonErrorMiddleware(next apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := next(w, r); err != nil {
			writeJSONError(w, err)
		}
	}
}

func loggingMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Debug("api request", map[string]string{
				"method": r.Method,
				"path":   r.URL.Path,
			})
		}
		next.ServeHTTP(w, r)
	})
}

func methodNotAllowed(w http.ResponseWriter, allow string) *apiError {
	w.Header().Set("Allow", allow)
	return &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
}

func restHandler(token string, handler apiHandler) http.HandlerFunc {
	return securityHeadersHandler(cacheControlNoStore, jsonErrorMiddleware(authMiddleware(token, handler)))
}

func validateToken(r *http.Request, token string) bool {
	if token == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == token
	}

	queryToken := r.URL.Query().Get("token")
	if queryToken != "" {
		return queryToken == token
	}

	return false
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := parsed.Hostname()
	if originHost == "" {
		return false
	}

	if len(allowed) > 0 {
		for _, allowedOrigin := range allowed {
			if strings.EqualFold(origin, allowedOrigin) || strings.EqualFold(originHost, allowedOrigin) {
				return true
			}
		}
		return false
	}

	return strings.EqualFold(originHost, hostOnly(r.Host))
}

func hostOnly(hostport string) string {
	if index := strings.LastIndex(hostport, ":"); index >= 0 && !strings.Contains(hostport[index:], "]") {
		hostport = hostport[:index]
	}
	return strings.Trim(hostport, "[]")
}
