package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/config"
	"github.com/example/calendar-scheduler/internal/logging"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		HTTPPort:            8080,
		DatabaseURL:         "file:" + filepath.Join(t.TempDir(), "scheduler.db"),
		LogLevel:            "info",
		ConflictHorizon:     30 * 24 * time.Hour,
		MaxCandidates:       1000,
		TZCacheSize:         8,
		FreeBusyCacheTTL:    time.Minute,
		MaintenanceSchedule: "@daily",
		EventRetention:      24 * time.Hour,
	}
}

func cheapHash(t *testing.T, key string) string {
	t.Helper()
	hash, err := application.HashAPIKey(key, application.Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16})
	require.NoError(t, err)
	return hash
}

func TestHashKey(t *testing.T) {
	t.Parallel()

	t.Run("hashes the given key", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		require.NoError(t, hashKey([]string{"s3cret"}, &out))
		assert.NotContains(t, out.String(), "key:")

		hash := strings.TrimSpace(strings.TrimPrefix(out.String(), "hash:"))
		assert.NoError(t, application.VerifyAPIKey(hash, "s3cret"))
		assert.ErrorIs(t, application.VerifyAPIKey(hash, "other"), application.ErrInvalidAPIKey)
	})

	t.Run("generates a key when none is given", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		require.NoError(t, hashKey(nil, &out))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 2)
		key := strings.TrimSpace(strings.TrimPrefix(lines[0], "key:"))
		hash := strings.TrimSpace(strings.TrimPrefix(lines[1], "hash:"))
		assert.NotEmpty(t, key)
		assert.NoError(t, application.VerifyAPIKey(hash, key))
	})
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), []string{"migrate"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown command")
}

func TestRunReportsInvalidConfiguration(t *testing.T) {
	t.Setenv("SCHEDULER_HTTP_PORT", "not-a-port")

	err := run(context.Background(), nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "SCHEDULER_HTTP_PORT")
}

func TestNewAppServesAPI(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.APIKeyHash = cheapHash(t, "team-key")

	app, err := newApp(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	do := func(method, target, body, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/calendars", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/calendars", "", "wrong").Code)

	rec := do(http.MethodPost, "/calendars", `{"owner_id":"o","name":"Ops","time_zone":"Asia/Tokyo"}`, "team-key")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	result, err := app.maintenance.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.EventsDeleted)
}

func TestNewAppWithoutAPIKeyHash(t *testing.T) {
	t.Parallel()

	app, err := newApp(context.Background(), testConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calendars?owner_id=o", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewAppRejectsMalformedHash(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.APIKeyHash = "$argon2id$broken"

	_, err := newApp(context.Background(), cfg, logging.Discard())
	assert.ErrorIs(t, err, application.ErrInvalidKeyHash)
}
