package app

import (
	"crypto/subtle"
	"net/http"
	"slices"
)

// APIKeyHeader is accepted as an alternative to the key query parameter.
const APIKeyHeader = "X-API-Key"

// RequestAPIKey returns the key a client presented, preferring ?key=.
func RequestAPIKey(r *http.Request) string {
	if key := r.URL.Query().Get("key"); key != "" {
		return key
	}
	return r.Header.Get(APIKeyHeader)
}

func (app *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	return app.IsInvalidAPIKey(RequestAPIKey(r))
}

// IsInvalidAPIKey reports whether key matches none of the configured keys.
// Comparisons run in constant time.
func (app *Application) IsInvalidAPIKey(key string) bool {
	if key == "" {
		return true
	}
	return !slices.ContainsFunc(app.Config.ApiKeys, func(valid string) bool {
		return subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1
	})
}
