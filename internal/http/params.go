package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	iso8601duration "github.com/ChannelMeter/iso8601duration"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/temporal"
)

// fieldErr names the request field a parse failure belongs to.
type fieldErr struct {
	field   string
	message string
}

func (e *fieldErr) Error() string {
	return e.field + ": " + e.message
}

func invalidField(field, format string, args ...any) error {
	return &fieldErr{field: field, message: fmt.Sprintf(format, args...)}
}

func parseTime(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, invalidField(field, "must be an RFC 3339 timestamp")
	}
	return ts.UTC(), nil
}

func parseWindow(values url.Values) (interval.Interval, error) {
	from, err := parseTime("from", values.Get("from"))
	if err != nil {
		return interval.Interval{}, err
	}
	to, err := parseTime("to", values.Get("to"))
	if err != nil {
		return interval.Interval{}, err
	}
	return interval.Interval{Start: from, End: to}, nil
}

// parseOptionalWindow returns nil when neither bound is present.
func parseOptionalWindow(values url.Values) (*interval.Interval, error) {
	if strings.TrimSpace(values.Get("from")) == "" && strings.TrimSpace(values.Get("to")) == "" {
		return nil, nil
	}
	window, err := parseWindow(values)
	if err != nil {
		return nil, err
	}
	return &window, nil
}

// parseDuration reads an ISO 8601 duration such as PT1H30M.
func parseDuration(field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := iso8601duration.FromString(strings.ToUpper(value))
	if err != nil {
		return 0, invalidField(field, "must be an ISO 8601 duration")
	}
	return d.ToDuration(), nil
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "PT0S"
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	iso := iso8601duration.Duration{
		Days:    days,
		Hours:   int(d / time.Hour),
		Minutes: int(d % time.Hour / time.Minute),
		Seconds: int(d % time.Minute / time.Second),
	}
	return iso.String()
}

func parseWallClock(field, value string) (temporal.WallClock, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return temporal.WallClock{}, nil
	}
	w, err := temporal.ParseWallClock(value)
	if err != nil {
		return temporal.WallClock{}, invalidField(field, "must be a local date time such as 2006-01-02T15:04")
	}
	return w, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "su": time.Sunday,
	"monday": time.Monday, "mo": time.Monday,
	"tuesday": time.Tuesday, "tu": time.Tuesday,
	"wednesday": time.Wednesday, "we": time.Wednesday,
	"thursday": time.Thursday, "th": time.Thursday,
	"friday": time.Friday, "fr": time.Friday,
	"saturday": time.Saturday, "sa": time.Saturday,
}

func parseWeekday(field string, value *string) (*time.Weekday, error) {
	if value == nil {
		return nil, nil
	}
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(*value))]
	if !ok {
		return nil, invalidField(field, "must be a weekday name")
	}
	return &wd, nil
}

func formatWeekday(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// writeParseError renders a field parse failure as a validation response.
func (r responder) writeParseError(ctx context.Context, w http.ResponseWriter, err error) {
	var fErr *fieldErr
	if errors.As(err, &fErr) {
		r.writeValidation(ctx, w, fErr.field, fErr.message)
		return
	}
	r.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
}
