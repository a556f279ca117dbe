package restapi

import (
	"net/http"
	"strconv"
)

const noStoreCacheControl = "no-cache, no-store, must-revalidate"

// cacheControlValue is the header sent with successful responses of a route
// cached for maxAgeSeconds. Zero disables caching.
func cacheControlValue(maxAgeSeconds int) string {
	if maxAgeSeconds <= 0 {
		return noStoreCacheControl
	}
	return "public, max-age=" + strconv.Itoa(maxAgeSeconds)
}

// CacheControlMiddleware sets Cache-Control once the status is known. Only
// 2xx responses are cacheable; errors such as "extracting" must be retried.
func CacheControlMiddleware(maxAgeSeconds int, next http.Handler) http.Handler {
	onSuccess := cacheControlValue(maxAgeSeconds)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&cacheControlWriter{ResponseWriter: w, onSuccess: onSuccess}, r)
	})
}

type cacheControlWriter struct {
	http.ResponseWriter
	onSuccess string
	decided   bool
}

func (w *cacheControlWriter) WriteHeader(code int) {
	if !w.decided {
		w.decided = true
		value := noStoreCacheControl
		if code >= 200 && code < 300 {
			value = w.onSuccess
		}
		w.Header().Set("Cache-Control", value)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheControlWriter) Write(b []byte) (int, error) {
	if !w.decided {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *cacheControlWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
