package application

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/example/calendar-scheduler/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// serviceLogger scopes the request logger (or base) to one service call.
func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = defaultLogger(base)
	}

	pairs := make([]any, 0, 4+len(attrs))
	pairs = append(pairs, "service", serviceName)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	return logger.With(append(pairs, attrs...)...)
}

// ErrorAttrs returns the log attributes describing err: the error, its kind,
// the rejected fields of a validation error and the number of conflicting
// occurrences of a scheduling conflict.
func ErrorAttrs(err error) []any {
	attrs := []any{"error", err, "error_kind", ErrorKind(err)}

	var vErr *ValidationError
	if errors.As(err, &vErr) && len(vErr.FieldErrors) > 0 {
		attrs = append(attrs, "invalid_fields", slices.Sorted(maps.Keys(vErr.FieldErrors)))
	}
	var cErr *ConflictError
	if errors.As(err, &cErr) {
		attrs = append(attrs, "conflicts", len(cErr.Conflicts))
	}
	return attrs
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrConcurrentUpdate):
		return "concurrent_update"
	case errors.Is(err, ErrResourceLimit):
		return "resource_limit"
	case errors.Is(err, ErrInvalidAPIKey):
		return "invalid_api_key"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	return "unexpected"
}
