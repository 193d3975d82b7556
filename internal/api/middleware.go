package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// APIKeyAuth rejects requests whose x-api-key header does not match one of
// keys. Browsers cannot set headers on a WebSocket handshake, so the key may
// also come from the api_key query parameter. An empty key list disables the
// check.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("x-api-key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key == "" {
				writeError(w, http.StatusUnauthorized, errorDetail{
					Code:        codeUnauthorized,
					Message:     "API key required",
					Suggestions: []string{"Send the device API key in the x-api-key header"},
				})
				return
			}
			if !validKey(keys, key) {
				writeError(w, http.StatusUnauthorized, errorDetail{
					Code:    codeUnauthorized,
					Message: "Invalid API key",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validKey(keys []string, key string) bool {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
			return true
		}
	}
	return false
}

// RequestLogger logs one line per request with the chi request id
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
