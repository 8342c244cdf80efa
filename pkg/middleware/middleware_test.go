package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/e2e-tester/pkg/auth"
	"github.com/psantana5/e2e-tester/pkg/logging"
	"github.com/psantana5/e2e-tester/pkg/models"
)

type observed struct {
	method, route string
	status, size  int
}

type fakeObserver struct {
	mu    sync.Mutex
	calls []observed
}

func (f *fakeObserver) ObserveRequest(method, route string, status, size int, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, observed{method, route, status, size})
}

func ok(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", seen)
}

func TestLoggingReportsRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/health", ok).Methods(http.MethodGet)

	obs := &fakeObserver{}
	h := Logging(logging.Nop(), obs, router)(router)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	require.Len(t, obs.calls, 2)
	assert.Equal(t, observed{"GET", "/health", 200, 2}, obs.calls[0])
	assert.Equal(t, "unmatched", obs.calls[1].route)
	assert.Equal(t, http.StatusNotFound, obs.calls[1].status)
}

func TestRecoveryReturnsJSON500(t *testing.T) {
	h := Recovery(logging.Nop(), true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "Internal server error", body.Message)
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(ok)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodOptions, "/run-test", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPIKey(t *testing.T) {
	v, err := auth.NewVerifier("s3cret", "")
	require.NoError(t, err)
	h := APIKey(v, "/health", "/")(http.HandlerFunc(ok))

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"public health", "/health", "", http.StatusOK},
		{"missing key", "/run-test", "", http.StatusUnauthorized},
		{"wrong key", "/run-test", "Bearer nope", http.StatusUnauthorized},
		{"valid key", "/run-test", "Bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestAPIKeyDisabledPassesThrough(t *testing.T) {
	v, _ := auth.NewVerifier("", "")
	w := httptest.NewRecorder()
	APIKey(v)(http.HandlerFunc(ok)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run-test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
