package http

import (
	"context"
	"log/slog"
	"net/http"
)

const healthPath = "/healthz"

type RouterConfig struct {
	Calendars    *CalendarHandler
	Events       *EventHandler
	Availability *AvailabilityHandler
	// Health is pinged by GET /healthz when set.
	Health     Pinger
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	responder := newResponder(cfg.Logger)

	mux.HandleFunc("GET "+healthPath, func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health.Ping(r.Context()); err != nil {
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	})

	if h := cfg.Calendars; h != nil {
		mux.HandleFunc("GET /calendars", h.List)
		mux.HandleFunc("POST /calendars", h.Create)
		mux.HandleFunc("GET /calendars/{id}", h.Get)
		mux.HandleFunc("PATCH /calendars/{id}", h.UpdateSettings)
		mux.HandleFunc("DELETE /calendars/{id}", h.Delete)
	}

	if h := cfg.Events; h != nil {
		mux.HandleFunc("GET /calendars/{id}/events", h.ListInstances)
		mux.HandleFunc("POST /calendars/{id}/events", h.Create)
		mux.HandleFunc("GET /calendars/{id}/export.ics", h.Export)
		mux.HandleFunc("POST /calendars/{id}/import", h.Import)
		mux.HandleFunc("GET /events/{id}", h.Get)
		mux.HandleFunc("PUT /events/{id}", h.Update)
		mux.HandleFunc("DELETE /events/{id}", h.Delete)
	}

	if h := cfg.Availability; h != nil {
		mux.HandleFunc("GET /calendars/{id}/busy", h.Busy)
		mux.HandleFunc("GET /calendars/{id}/freebusy", h.FreeBusy)
		mux.HandleFunc("GET /calendars/{id}/freebusy.ics", h.ExportFreeBusy)
		mux.HandleFunc("GET /calendars/{id}/slots", h.BookingSlots)
		mux.HandleFunc("GET /slots", h.ServiceSlots)
		mux.HandleFunc("POST /conflicts/check", h.CheckConflicts)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

type healthResponse struct {
	Status string `json:"status"`
}
