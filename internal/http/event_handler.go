package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/occurrence"
)

const (
	calendarContentType = "text/calendar; charset=utf-8"
	maxImportBytes      = 4 << 20
)

type eventService interface {
	CreateEvent(ctx context.Context, calendarID string, input application.EventInput) (application.Event, error)
	UpdateEvent(ctx context.Context, eventID string, input application.EventInput) (application.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
	GetEvent(ctx context.Context, eventID string) (application.Event, error)
	ListEventInstances(ctx context.Context, calendarID string, window interval.Interval) ([]application.EventInstances, error)
	ImportEvents(ctx context.Context, calendarID string, r io.Reader) (application.ImportResult, error)
	ExportEvents(ctx context.Context, calendarID string, window *interval.Interval, w io.Writer) error
}

type EventHandler struct {
	service   eventService
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	calendarID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCalendarID)
		return
	}

	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	event, err := h.service.CreateEvent(r.Context(), calendarID, input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "event", "create", "event_id", event.ID, "calendar_id", calendarID).InfoContext(r.Context(), "event created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toEventDTO(event))
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	event, err := h.service.UpdateEvent(r.Context(), eventID, input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDTO(event))
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	if err := h.service.DeleteEvent(r.Context(), eventID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	event, err := h.service.GetEvent(r.Context(), eventID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDTO(event))
}

// ListInstances returns the calendar's events with their occurrences between
// the from and to query parameters.
func (h *EventHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	calendarID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCalendarID)
		return
	}

	window, err := parseWindow(r.URL.Query())
	if err != nil {
		h.responder.writeParseError(r.Context(), w, err)
		return
	}

	found, err := h.service.ListEventInstances(r.Context(), calendarID, window)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := listEventsResponse{Events: make([]eventInstancesDTO, 0, len(found))}
	for _, item := range found {
		response.Events = append(response.Events, eventInstancesDTO{
			Event:     toEventDTO(item.Event),
			Instances: toOccurrenceDTOs(item.Instances),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *EventHandler) Import(w http.ResponseWriter, r *http.Request) {
	calendarID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCalendarID)
		return
	}

	result, err := h.service.ImportEvents(r.Context(), calendarID, http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := importResponse{
		Created: make([]eventDTO, 0, len(result.Created)),
		Skipped: make([]importSkipDTO, 0, len(result.Skipped)),
	}
	for _, event := range result.Created {
		response.Created = append(response.Created, toEventDTO(event))
	}
	for _, skip := range result.Skipped {
		response.Skipped = append(response.Skipped, importSkipDTO{UID: skip.UID, Reason: skip.Reason})
	}

	handlerLogger(r.Context(), h.logger, "event", "import", "calendar_id", calendarID).InfoContext(r.Context(), "calendar imported",
		"created", len(result.Created), "skipped", len(result.Skipped))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

// Export writes the calendar as iCalendar, limited to from and to when given.
func (h *EventHandler) Export(w http.ResponseWriter, r *http.Request) {
	calendarID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCalendarID)
		return
	}

	window, err := parseOptionalWindow(r.URL.Query())
	if err != nil {
		h.responder.writeParseError(r.Context(), w, err)
		return
	}

	var buf bytes.Buffer
	if err := h.service.ExportEvents(r.Context(), calendarID, window, &buf); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	writeCalendar(w, &buf)
}

func (h *EventHandler) decodeInput(w http.ResponseWriter, r *http.Request) (application.EventInput, bool) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return application.EventInput{}, false
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeParseError(r.Context(), w, err)
		return application.EventInput{}, false
	}
	return input, true
}

func writeCalendar(w http.ResponseWriter, body *bytes.Buffer) {
	w.Header().Set("Content-Type", calendarContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = body.WriteTo(w)
}

type eventRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Start          string   `json:"start"`
	Duration       string   `json:"duration"`
	TimeZone       string   `json:"time_zone"`
	RecurrenceRule string   `json:"recurrence_rule"`
	ExceptionDates []string `json:"exception_dates"`
	Transparent    bool     `json:"transparent"`
}

func (r eventRequest) toInput() (application.EventInput, error) {
	start, err := parseWallClock("start", r.Start)
	if err != nil {
		return application.EventInput{}, err
	}
	duration, err := parseDuration("duration", r.Duration)
	if err != nil {
		return application.EventInput{}, err
	}

	input := application.EventInput{
		Title:          strings.TrimSpace(r.Title),
		Description:    r.Description,
		Start:          start,
		Duration:       duration,
		TimeZone:       strings.TrimSpace(r.TimeZone),
		RecurrenceRule: strings.TrimSpace(r.RecurrenceRule),
		Transparent:    r.Transparent,
	}
	for _, raw := range r.ExceptionDates {
		ts, err := parseTime("exception_dates", raw)
		if err != nil {
			return application.EventInput{}, err
		}
		if !ts.IsZero() {
			input.ExceptionDates = append(input.ExceptionDates, ts)
		}
	}
	return input, nil
}

type eventDTO struct {
	ID             string   `json:"id"`
	CalendarID     string   `json:"calendar_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Start          string   `json:"start"`
	Duration       string   `json:"duration"`
	TimeZone       string   `json:"time_zone"`
	RecurrenceRule string   `json:"recurrence_rule,omitempty"`
	ExceptionDates []string `json:"exception_dates,omitempty"`
	Transparent    bool     `json:"transparent"`
	FirstStart     string   `json:"first_start"`
	LastEnd        *string  `json:"last_end"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

func toEventDTO(event application.Event) eventDTO {
	dto := eventDTO{
		ID:          event.ID,
		CalendarID:  event.CalendarID,
		Title:       event.Title,
		Description: event.Description,
		Start:       event.Start.String(),
		Duration:    formatDuration(event.Duration),
		TimeZone:    event.TimeZone,
		Transparent: event.Transparent,
		FirstStart:  formatTime(event.FirstStart),
		CreatedAt:   formatTime(event.CreatedAt),
		UpdatedAt:   formatTime(event.UpdatedAt),
	}
	if event.LastEnd != nil {
		lastEnd := formatTime(*event.LastEnd)
		dto.LastEnd = &lastEnd
	}
	if event.Rule != nil {
		// Stored rules were validated on write.
		dto.RecurrenceRule, _ = event.Rule.RRule()
		for _, ex := range event.Rule.Exceptions {
			dto.ExceptionDates = append(dto.ExceptionDates, formatTime(ex))
		}
	}
	return dto
}

type occurrenceDTO struct {
	EventID string `json:"event_id"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func toOccurrenceDTOs(occs []occurrence.Occurrence) []occurrenceDTO {
	out := make([]occurrenceDTO, 0, len(occs))
	for _, o := range occs {
		out = append(out, toOccurrenceDTO(o))
	}
	return out
}

func toOccurrenceDTO(o occurrence.Occurrence) occurrenceDTO {
	return occurrenceDTO{EventID: o.EventID, Start: formatTime(o.Start), End: formatTime(o.End)}
}

type eventInstancesDTO struct {
	Event     eventDTO        `json:"event"`
	Instances []occurrenceDTO `json:"instances"`
}

type listEventsResponse struct {
	Events []eventInstancesDTO `json:"events"`
}

type importSkipDTO struct {
	UID    string `json:"uid"`
	Reason string `json:"reason"`
}

type importResponse struct {
	Created []eventDTO      `json:"created"`
	Skipped []importSkipDTO `json:"skipped"`
}
