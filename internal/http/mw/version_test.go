package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmylchreest/prayerline/internal/version"
)

func TestAPIVersion(t *testing.T) {
	testCases := []struct {
		name   string
		method string
		status int
	}{
		{"GET 200", http.MethodGet, http.StatusOK},
		{"POST 400", http.MethodPost, http.StatusBadRequest},
		{"POST 404", http.MethodPost, http.StatusNotFound},
		{"GET 503", http.MethodGet, http.StatusServiceUnavailable},
	}

	want := version.Get().Short()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			rec := httptest.NewRecorder()
			APIVersion()(handler).ServeHTTP(rec, httptest.NewRequest(tc.method, "/api/v1/health", nil))

			if got := rec.Header().Get("X-API-Version"); got != want {
				t.Errorf("X-API-Version = %q, want %q", got, want)
			}
		})
	}
}
