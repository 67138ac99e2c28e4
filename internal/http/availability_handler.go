package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/scheduler"
)

type availabilityService interface {
	BusyTime(ctx context.Context, calendarID string, window interval.Interval) ([]scheduler.BusyInterval, error)
	FreeBusy(ctx context.Context, calendarID string, window interval.Interval) (scheduler.FreeBusy, error)
	CheckConflicts(ctx context.Context, input application.ConflictCheckInput) (scheduler.EventDecision, error)
	BookingSlots(ctx context.Context, calendarID string, query application.SlotQuery) ([]scheduler.Slot, error)
	ServiceSlots(ctx context.Context, calendarIDs []string, query application.SlotQuery) ([]scheduler.ServiceSlot, error)
	ExportFreeBusy(ctx context.Context, calendarID string, window interval.Interval, w io.Writer) error
}

type AvailabilityHandler struct {
	service   availabilityService
	responder responder
}

func NewAvailabilityHandler(service availabilityService, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, responder: newResponder(logger)}
}

func (h *AvailabilityHandler) Busy(w http.ResponseWriter, r *http.Request) {
	calendarID, window, ok := h.calendarWindow(w, r)
	if !ok {
		return
	}

	busy, err := h.service.BusyTime(r.Context(), calendarID, window)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, busyResponse{Busy: toBusyDTOs(busy)})
}

func (h *AvailabilityHandler) FreeBusy(w http.ResponseWriter, r *http.Request) {
	calendarID, window, ok := h.calendarWindow(w, r)
	if !ok {
		return
	}

	fb, err := h.service.FreeBusy(r.Context(), calendarID, window)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, freeBusyResponse{
		Busy: toBusyDTOs(fb.Busy),
		Free: toIntervalDTOs(fb.Free),
	})
}

func (h *AvailabilityHandler) ExportFreeBusy(w http.ResponseWriter, r *http.Request) {
	calendarID, window, ok := h.calendarWindow(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.service.ExportFreeBusy(r.Context(), calendarID, window, &buf); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	writeCalendar(w, &buf)
}

// CheckConflicts reports whether a proposed event fits every listed calendar
// without storing it.
func (h *AvailabilityHandler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	var req conflictCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.responder.writeParseError(r.Context(), w, err)
		return
	}

	decision, err := h.service.CheckConflicts(r.Context(), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, conflictCheckResponse{
		Accepted:  decision.Accepted,
		Checked:   decision.Checked,
		Conflicts: toConflictDTOs(decision.Conflicts),
	})
}

func (h *AvailabilityHandler) BookingSlots(w http.ResponseWriter, r *http.Request) {
	calendarID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCalendarID)
		return
	}

	query, err := parseSlotQuery(r.URL.Query())
	if err != nil {
		h.responder.writeParseError(r.Context(), w, err)
		return
	}

	slots, err := h.service.BookingSlots(r.Context(), calendarID, query)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]slotDTO, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slotDTO{
			Start:          formatTime(slot.Start),
			Duration:       formatDuration(slot.Duration),
			AvailableUntil: formatTime(slot.AvailableUntil),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, slotsResponse{Slots: out})
}

// ServiceSlots groups the slots of the calendars in calendar_ids by start.
func (h *AvailabilityHandler) ServiceSlots(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	query, err := parseSlotQuery(values)
	if err != nil {
		h.responder.writeParseError(r.Context(), w, err)
		return
	}

	slots, err := h.service.ServiceSlots(r.Context(), parseCSV(values.Get("calendar_ids")), query)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]serviceSlotDTO, 0, len(slots))
	for _, slot := range slots {
		out = append(out, serviceSlotDTO{
			Start:       formatTime(slot.Start),
			Duration:    formatDuration(slot.Duration),
			CalendarIDs: slot.HostIDs,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, serviceSlotsResponse{Slots: out})
}

func (h *AvailabilityHandler) calendarWindow(w http.ResponseWriter, r *http.Request) (string, interval.Interval, bool) {
	calendarID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCalendarID)
		return "", interval.Interval{}, false
	}
	window, err := parseWindow(r.URL.Query())
	if err != nil {
		h.responder.writeParseError(r.Context(), w, err)
		return "", interval.Interval{}, false
	}
	return calendarID, window, true
}

func parseSlotQuery(values url.Values) (application.SlotQuery, error) {
	date, err := parseWallClock("date", values.Get("date"))
	if err != nil {
		return application.SlotQuery{}, err
	}
	duration, err := parseDuration("duration", values.Get("duration"))
	if err != nil {
		return application.SlotQuery{}, err
	}
	step, err := parseDuration("interval", values.Get("interval"))
	if err != nil {
		return application.SlotQuery{}, err
	}
	return application.SlotQuery{
		Date:     date.DateOnly(),
		TimeZone: strings.TrimSpace(values.Get("tz")),
		Duration: duration,
		Interval: step,
	}, nil
}

type conflictCheckRequest struct {
	CalendarIDs []string     `json:"calendar_ids"`
	Event       eventRequest `json:"event"`
	From        string       `json:"from"`
	To          string       `json:"to"`
}

func (r conflictCheckRequest) toInput() (application.ConflictCheckInput, error) {
	event, err := r.Event.toInput()
	if err != nil {
		return application.ConflictCheckInput{}, err
	}
	from, err := parseTime("from", r.From)
	if err != nil {
		return application.ConflictCheckInput{}, err
	}
	to, err := parseTime("to", r.To)
	if err != nil {
		return application.ConflictCheckInput{}, err
	}
	return application.ConflictCheckInput{
		CalendarIDs: r.CalendarIDs,
		Event:       event,
		Window:      interval.Interval{Start: from, End: to},
	}, nil
}

type intervalDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func toIntervalDTOs(in []interval.Interval) []intervalDTO {
	out := make([]intervalDTO, 0, len(in))
	for _, iv := range in {
		out = append(out, intervalDTO{Start: formatTime(iv.Start), End: formatTime(iv.End)})
	}
	return out
}

type busyDTO struct {
	Start    string   `json:"start"`
	End      string   `json:"end"`
	EventIDs []string `json:"event_ids"`
}

func toBusyDTOs(busy []scheduler.BusyInterval) []busyDTO {
	out := make([]busyDTO, 0, len(busy))
	for _, b := range busy {
		out = append(out, busyDTO{Start: formatTime(b.Start), End: formatTime(b.End), EventIDs: b.EventIDs})
	}
	return out
}

type conflictDTO struct {
	Occurrence  occurrenceDTO `json:"occurrence"`
	Overlapping []busyDTO     `json:"overlapping"`
}

func toConflictDTOs(conflicts []scheduler.Conflict) []conflictDTO {
	if len(conflicts) == 0 {
		return nil
	}
	out := make([]conflictDTO, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictDTO{
			Occurrence:  toOccurrenceDTO(c.Occurrence),
			Overlapping: toBusyDTOs(c.Overlapping),
		})
	}
	return out
}

type busyResponse struct {
	Busy []busyDTO `json:"busy"`
}

type freeBusyResponse struct {
	Busy []busyDTO     `json:"busy"`
	Free []intervalDTO `json:"free"`
}

type conflictCheckResponse struct {
	Accepted  bool          `json:"accepted"`
	Checked   int           `json:"checked"`
	Conflicts []conflictDTO `json:"conflicts"`
}

type slotDTO struct {
	Start          string `json:"start"`
	Duration       string `json:"duration"`
	AvailableUntil string `json:"available_until"`
}

type slotsResponse struct {
	Slots []slotDTO `json:"slots"`
}

type serviceSlotDTO struct {
	Start       string   `json:"start"`
	Duration    string   `json:"duration"`
	CalendarIDs []string `json:"calendar_ids"`
}

type serviceSlotsResponse struct {
	Slots []serviceSlotDTO `json:"slots"`
}
