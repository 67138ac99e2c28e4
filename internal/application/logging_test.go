package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/calendar-scheduler/internal/logging"
	"github.com/example/calendar-scheduler/internal/scheduler"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, custom, defaultLogger(custom))
	assert.Same(t, slog.Default(), defaultLogger(nil))
}

func TestServiceLogger_PrefersContextLogger(t *testing.T) {
	t.Parallel()

	var base, scoped bytes.Buffer
	baseLogger := slog.New(slog.NewTextHandler(&base, nil))
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&scoped, nil)))

	serviceLogger(ctx, baseLogger, "EventService", "CreateEvent", "calendar_id", "cal-1").Info("hello")

	assert.Empty(t, base.String())
	assert.Contains(t, scoped.String(), "service=EventService")
	assert.Contains(t, scoped.String(), "operation=CreateEvent")
	assert.Contains(t, scoped.String(), "calendar_id=cal-1")

	serviceLogger(context.Background(), baseLogger, "CalendarService", "").Info("fallback")
	assert.Contains(t, base.String(), "service=CalendarService")
	assert.NotContains(t, base.String(), "operation=")
}

func TestErrorAttrs(t *testing.T) {
	t.Parallel()

	vErr := &ValidationError{}
	vErr.add("start", "start is required")
	vErr.add("duration", "duration must not be negative")

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Error("rejected", ErrorAttrs(vErr)...)
	assert.Contains(t, buf.String(), "error_kind=validation")
	assert.Contains(t, buf.String(), "invalid_fields=\"[duration start]\"")

	buf.Reset()
	slog.New(slog.NewTextHandler(&buf, nil)).Error("rejected", ErrorAttrs(&ConflictError{Conflicts: make([]scheduler.Conflict, 2)})...)
	assert.Contains(t, buf.String(), "error_kind=conflict")
	assert.Contains(t, buf.String(), "conflicts=2")

	assert.Len(t, ErrorAttrs(errors.New("boom")), 4)
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                  nil,
		"not_found":         ErrNotFound,
		"already_exists":    ErrAlreadyExists,
		"conflict":          &ConflictError{},
		"concurrent_update": ErrConcurrentUpdate,
		"resource_limit":    ErrResourceLimit,
		"invalid_api_key":   ErrInvalidAPIKey,
		"canceled":          context.DeadlineExceeded,
		"validation":        fieldError("start", "bad"),
		"unexpected":        errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, ErrorKind(err), "error %v", err)
	}
}
