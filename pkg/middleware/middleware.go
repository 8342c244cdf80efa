// Package middleware holds the HTTP middleware chain shared by every route.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/psantana5/e2e-tester/pkg/auth"
	"github.com/psantana5/e2e-tester/pkg/logging"
	"github.com/psantana5/e2e-tester/pkg/models"
)

type contextKey string

// RequestIDContextKey holds the request id in the request context
const RequestIDContextKey contextKey = "request_id"

// RequestIDHeader is read from and echoed back to clients
const RequestIDHeader = "X-Request-ID"

// RequestObserver receives one call per served request
type RequestObserver interface {
	ObserveRequest(method, route string, status, size int, d time.Duration)
}

// RequestID reuses the client's X-Request-ID or assigns a new uuid
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), RequestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request id from a context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return id
	}
	return ""
}

type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Logging logs every request and reports it to obs when set. router, when
// given, turns paths into route templates for the metric labels.
func Logging(log *logging.Logger, obs RequestObserver, router *mux.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r)
			if rw.status == 0 {
				rw.status = http.StatusOK
			}
			elapsed := time.Since(start)

			log.Info(fmt.Sprintf("%s %s %d - %dms", r.Method, r.URL.Path, rw.status, elapsed.Milliseconds()), map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rw.status,
				"duration_ms": elapsed.Milliseconds(),
				"bytes":       rw.size,
				"request_id":  GetRequestID(r.Context()),
			})
			if obs != nil {
				obs.ObserveRequest(r.Method, routeName(router, r), rw.status, rw.size, elapsed)
			}
		})
	}
}

// routeName keeps metric label cardinality bounded
func routeName(router *mux.Router, r *http.Request) string {
	if router == nil {
		return "unmatched"
	}
	var match mux.RouteMatch
	if router.Match(r, &match) && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// Recovery converts a panic into a JSON 500. stack adds the trace to the log.
func Recovery(log *logging.Logger, stack bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					fields := map[string]interface{}{
						"panic":      fmt.Sprint(rec),
						"path":       r.URL.Path,
						"request_id": GetRequestID(r.Context()),
					}
					if stack {
						fields["stack"] = string(debug.Stack())
					}
					log.Error("Unhandled error", fields)
					WriteError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets a conservative subset of browser security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'self'")
		next.ServeHTTP(w, r)
	})
}

// CORS allows the configured origins to call the API from a browser
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", RequestIDHeader}),
		handlers.ExposedHeaders([]string{RequestIDHeader}),
	)
}

// APIKey rejects requests without a valid bearer key. Paths in public are
// always allowed, as are CORS preflights.
func APIKey(v *auth.Verifier, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		if v == nil || !v.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if !v.Verify(auth.KeyFromHeader(r.Header.Get("Authorization"))) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="e2e-tester"`)
				WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes the standard {success:false,message} body
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Success: false, Message: message})
}
