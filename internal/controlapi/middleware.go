package controlapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rafaeljc/tagflow/internal/logger"
	"github.com/rafaeljc/tagflow/internal/observability"
)

// APIKeyHeader carries the operator API key.
const APIKeyHeader = "X-API-Key"

// RequestLogger injects a request-scoped logger into the context and logs
// the outcome of each request. Info for success, Warn for 4xx, Error for 5xx.
func (a *API) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())

		log := a.logger.With(slog.String("request_id", reqID))
		r = r.WithContext(logger.WithContext(r.Context(), log))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		status := ww.Status()
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		log.Log(r.Context(), level, "HTTP request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("duration", time.Since(start).String()),
			slog.String("remote_ip", r.RemoteAddr),
		)
	})
}

// Metrics records request count and latency labelled by the matched route
// pattern, never the raw path. Unmatched paths collapse to "not_found".
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "not_found"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "/*") {
				route = strings.TrimSuffix(pattern, "/")
				if route == "" {
					route = "/"
				}
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		observability.APIReqDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		observability.APIReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// authenticateAPIKey compares the SHA-256 of the presented key with the
// configured hash in constant time.
func (a *API) authenticateAPIKey(next http.Handler) http.Handler {
	expected, _ := hex.DecodeString(strings.ToLower(a.apiKeyHash))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipAuth {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if key == "" {
			writeError(w, r, http.StatusUnauthorized, "ERR_UNAUTHORIZED", "Missing API key")
			return
		}

		sum := sha256.Sum256([]byte(key))
		if len(expected) != len(sum) || subtle.ConstantTimeCompare(sum[:], expected) != 1 {
			logger.FromContext(r.Context()).Warn("rejected request with invalid API key")
			writeError(w, r, http.StatusUnauthorized, "ERR_UNAUTHORIZED", "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
