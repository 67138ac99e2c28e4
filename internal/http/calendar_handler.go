package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/calendar-scheduler/internal/application"
)

type calendarService interface {
	CreateCalendar(ctx context.Context, input application.CalendarInput) (application.Calendar, error)
	GetCalendar(ctx context.Context, id string) (application.Calendar, error)
	ListCalendars(ctx context.Context, ownerID string) ([]application.Calendar, error)
	UpdateCalendarSettings(ctx context.Context, id string, input application.CalendarSettingsInput) (application.Calendar, error)
	DeleteCalendar(ctx context.Context, id string) error
}

type CalendarHandler struct {
	service   calendarService
	responder responder
	logger    *slog.Logger
}

func NewCalendarHandler(service calendarService, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req calendarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.responder.writeParseError(r.Context(), w, err)
		return
	}

	calendar, err := h.service.CreateCalendar(r.Context(), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "calendar", "create", "calendar_id", calendar.ID).InfoContext(r.Context(), "calendar created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toCalendarDTO(calendar))
}

func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCalendarID)
		return
	}

	calendar, err := h.service.GetCalendar(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCalendarDTO(calendar))
}

// List filters by the owner_id query parameter when present.
func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	calendars, err := h.service.ListCalendars(r.Context(), strings.TrimSpace(r.URL.Query().Get("owner_id")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]calendarDTO, 0, len(calendars))
	for _, calendar := range calendars {
		out = append(out, toCalendarDTO(calendar))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listCalendarsResponse{Calendars: out})
}

func (h *CalendarHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCalendarID)
		return
	}

	var req calendarSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	weekStart, err := parseWeekday("week_start", req.WeekStart)
	if err != nil {
		h.responder.writeParseError(r.Context(), w, err)
		return
	}

	calendar, err := h.service.UpdateCalendarSettings(r.Context(), id, application.CalendarSettingsInput{
		Name:      req.Name,
		TimeZone:  req.TimeZone,
		WeekStart: weekStart,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCalendarDTO(calendar))
}

func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCalendarID)
		return
	}

	if err := h.service.DeleteCalendar(r.Context(), id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "calendar", "delete", "calendar_id", id).InfoContext(r.Context(), "calendar deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func pathID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	return id, id != ""
}

type calendarRequest struct {
	OwnerID   string  `json:"owner_id"`
	Name      string  `json:"name"`
	TimeZone  string  `json:"time_zone"`
	WeekStart *string `json:"week_start"`
}

func (r calendarRequest) toInput() (application.CalendarInput, error) {
	weekStart, err := parseWeekday("week_start", r.WeekStart)
	if err != nil {
		return application.CalendarInput{}, err
	}
	return application.CalendarInput{
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		TimeZone:  strings.TrimSpace(r.TimeZone),
		WeekStart: weekStart,
	}, nil
}

type calendarSettingsRequest struct {
	Name      *string `json:"name"`
	TimeZone  *string `json:"time_zone"`
	WeekStart *string `json:"week_start"`
}

type calendarDTO struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	TimeZone  string `json:"time_zone"`
	WeekStart string `json:"week_start"`
	Version   int64  `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type listCalendarsResponse struct {
	Calendars []calendarDTO `json:"calendars"`
}

func toCalendarDTO(calendar application.Calendar) calendarDTO {
	return calendarDTO{
		ID:        calendar.ID,
		OwnerID:   calendar.OwnerID,
		Name:      calendar.Name,
		TimeZone:  calendar.TimeZone,
		WeekStart: formatWeekday(calendar.WeekStart),
		Version:   calendar.Version,
		CreatedAt: formatTime(calendar.CreatedAt),
		UpdatedAt: formatTime(calendar.UpdatedAt),
	}
}
