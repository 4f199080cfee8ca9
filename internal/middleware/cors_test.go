package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MegaGrindStone/elf-therapist/internal/middleware"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name            string
		allowed         []string
		method          string
		origin          string
		wantStatus      int
		wantOrigin      string
		wantCredentials string
	}{
		{
			name:       "wildcard echoes origin",
			allowed:    []string{"*"},
			method:     http.MethodPost,
			origin:     "https://north.pole",
			wantStatus: http.StatusTeapot,
			wantOrigin: "https://north.pole",
		},
		{
			name:            "explicit origin gets credentials",
			allowed:         []string{"https://north.pole"},
			method:          http.MethodGet,
			origin:          "https://north.pole",
			wantStatus:      http.StatusTeapot,
			wantOrigin:      "https://north.pole",
			wantCredentials: "true",
		},
		{
			name:       "unlisted origin",
			allowed:    []string{"https://north.pole"},
			method:     http.MethodGet,
			origin:     "https://south.pole",
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "preflight",
			allowed:    []string{"*"},
			method:     http.MethodOptions,
			origin:     "https://north.pole",
			wantStatus: http.StatusNoContent,
			wantOrigin: "https://north.pole",
		},
		{
			name:       "same origin request",
			allowed:    []string{"*"},
			method:     http.MethodGet,
			wantStatus: http.StatusTeapot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/chat", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()

			middleware.CORS(tt.allowed)(next).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredentials {
				t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, tt.wantCredentials)
			}
		})
	}
}
