package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := CORSMiddleware([]string{"https://app.example.com", " http://localhost:5173 "})(next)

	tests := []struct {
		headers         map[string]string
		name            string
		method          string
		wantAllowOrigin string
		wantStatus      int
	}{
		{
			name:            "allowed origin",
			method:          http.MethodPost,
			headers:         map[string]string{"Origin": "https://app.example.com"},
			wantStatus:      http.StatusOK,
			wantAllowOrigin: "https://app.example.com",
		},
		{
			name:            "trimmed origin from config",
			method:          http.MethodPost,
			headers:         map[string]string{"Origin": "http://localhost:5173"},
			wantStatus:      http.StatusOK,
			wantAllowOrigin: "http://localhost:5173",
		},
		{
			name:       "unknown origin",
			method:     http.MethodPost,
			headers:    map[string]string{"Origin": "https://evil.example.com"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "no origin",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
		{
			name:   "preflight",
			method: http.MethodOptions,
			headers: map[string]string{
				"Origin":                        "https://app.example.com",
				"Access-Control-Request-Method": "POST",
			},
			wantStatus:      http.StatusNoContent,
			wantAllowOrigin: "https://app.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/login", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllowOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantAllowOrigin != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}
