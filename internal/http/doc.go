// Package http provides HTTP handlers and middleware for the scheduler API.
//
// The router exposes the following endpoints:
//   - GET /healthz: reports {"status":"ok"} when the store answers a ping. It is
//     the only route that skips API key checks.
//   - GET /calendars?owner_id=, POST /calendars, GET|PATCH|DELETE /calendars/{id}:
//     calendar management exchanging the `calendarDTO` payload defined in
//     calendar_handler.go. PATCH changes name, time zone and week start.
//   - GET|POST /calendars/{id}/events, GET|PUT|DELETE /events/{id}: event
//     definitions exchanging `eventDTO`. Listing takes from and to (RFC 3339) and
//     returns each event with its expanded instances. Writes that overlap busy
//     time fail with 409 SCHEDULING_CONFLICT and the conflicting occurrences.
//   - GET /calendars/{id}/export.ics and POST /calendars/{id}/import: iCalendar
//     exchange. Imports report created events and skipped components.
//   - GET /calendars/{id}/busy, /freebusy and /freebusy.ics: merged busy time and
//     the availability advertised by transparent events.
//   - GET /calendars/{id}/slots and GET /slots?calendar_ids=: bookable slots for
//     one local day, stepping by an ISO 8601 interval of 10 to 60 minutes.
//   - POST /conflicts/check: evaluates a proposed event against calendars
//     without storing it.
//
// Durations use ISO 8601 (PT30M); event starts are wall clocks
// (2006-01-02T15:04) read in the event or calendar time zone.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
