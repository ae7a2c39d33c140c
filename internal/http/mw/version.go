// Package mw provides HTTP middleware and huma registration helpers for the
// prayer intake API.
package mw

import (
	"net/http"

	"github.com/jmylchreest/prayerline/internal/version"
)

// APIVersion returns middleware that adds the X-API-Version header to all
// responses so the chat widget can detect a server upgrade mid-session.
func APIVersion() func(http.Handler) http.Handler {
	apiVersion := version.Get().Short()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-API-Version", apiVersion)
			next.ServeHTTP(w, r)
		})
	}
}
