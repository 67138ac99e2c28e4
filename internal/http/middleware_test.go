package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/logging"
)

type stubVerifier struct {
	valid string
	err   error
	seen  []string
}

func (s *stubVerifier) VerifyAPIKey(key string) error {
	s.seen = append(s.seen, key)
	if s.err != nil {
		return s.err
	}
	if key != s.valid {
		return application.ErrInvalidAPIKey
	}
	return nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		path           string
		headers        map[string]string
		verifierErr    error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "missing credentials",
			path:           "/calendars",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong key",
			path:           "/calendars",
			headers:        map[string]string{"X-API-Key": "guess"},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "INVALID_API_KEY",
		},
		{
			name:           "malformed authorization header",
			path:           "/calendars",
			headers:        map[string]string{"Authorization": "Basic secret"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "x-api-key header",
			path:           "/calendars",
			headers:        map[string]string{"X-API-Key": "secret"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "bearer token",
			path:           "/calendars",
			headers:        map[string]string{"Authorization": "bearer secret"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "health check is public",
			path:           healthPath,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "verifier failure",
			path:           "/calendars",
			headers:        map[string]string{"X-API-Key": "secret"},
			verifierErr:    errors.New("hash unreadable"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			verifier := &stubVerifier{valid: "secret", err: tc.verifierErr}
			handler := RequireAPIKey(verifier, logging.Discard())(okHandler())

			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.expectedStatus, rec.Code)
			if tc.expectedCode != "" {
				var body errorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, tc.expectedCode, body.ErrorCode)
			}
		})
	}
}

func TestRequireAPIKey_WithArgon2Verifier(t *testing.T) {
	t.Parallel()

	params := application.Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}
	hash, err := application.HashAPIKey("correct horse", params)
	require.NoError(t, err)
	verifier, err := application.NewAPIKeyVerifier(hash)
	require.NoError(t, err)

	handler := RequireAPIKey(verifier, nil)(okHandler())
	for key, status := range map[string]int{"correct horse": http.StatusOK, "battery staple": http.StatusUnauthorized} {
		req := httptest.NewRequest(http.MethodGet, "/calendars", nil)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, status, rec.Code, key)
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	t.Run("reuses an incoming request id", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		var seenID string
		var seenLogger *slog.Logger
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID, _ = RequestIDFromContext(r.Context())
			seenLogger = LoggerFromContext(r.Context())
			w.WriteHeader(http.StatusTeapot)
		}))

		req := httptest.NewRequest(http.MethodGet, "/calendars", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", seenID)
		assert.NotNil(t, seenLogger)
		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Equal(t, "request completed", entry["msg"])
		assert.Equal(t, "req-42", entry["request_id"])
		assert.EqualValues(t, http.StatusTeapot, entry["status"])
	})

	t.Run("assigns a uuid otherwise", func(t *testing.T) {
		t.Parallel()

		handler := RequestLogger(logging.Discard())(okHandler())
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
		assert.NoError(t, err)
	})
}
