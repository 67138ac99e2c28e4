// Package ical converts calendar events to and from RFC 5545 iCalendar
// streams using github.com/emersion/go-ical.
package ical

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/temporal"
)

const (
	// DefaultProductID is written as PRODID when a codec has none configured.
	DefaultProductID = "-//calendar-scheduler//EN"

	dateLayout          = "20060102"
	localDateTimeLayout = "20060102T150405"
	utcDateTimeLayout   = "20060102T150405Z"

	transparent = "TRANSPARENT"
)

var (
	// ErrMalformedCalendar is returned when a stream is not a VCALENDAR.
	ErrMalformedCalendar = errors.New("ical: malformed calendar")
	// ErrUnsupportedComponent is wrapped by per-event decode failures.
	ErrUnsupportedComponent = errors.New("ical: unsupported event")
)

// Event is the zone-aware event shape exchanged with iCalendar streams.
type Event struct {
	UID         string
	Summary     string
	Description string
	Start       temporal.WallClock
	// TimeZone is the IANA zone of Start. Empty means floating time, which
	// the importer places in its default zone.
	TimeZone       string
	AllDay         bool
	Duration       time.Duration
	RecurrenceRule string
	ExceptionDates []time.Time
	Transparent    bool
}

// ComponentError describes a VEVENT that could not be decoded.
type ComponentError struct {
	UID string
	Err error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("event %q: %v", e.UID, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// FreeBusy is the content of one VFREEBUSY component.
type FreeBusy struct {
	UID    string
	Window interval.Interval
	Busy   []interval.Interval
	Free   []interval.Interval
	Stamp  time.Time
}

// Codec reads and writes iCalendar streams. Zone names found in TZID
// parameters are resolved through the configured resolver.
type Codec struct {
	zones     temporal.Resolver
	productID string
}

// NewCodec returns a codec. A nil resolver falls back to the system tz database.
func NewCodec(zones temporal.Resolver, productID string) *Codec {
	if zones == nil {
		zones = temporal.SystemResolver{}
	}
	if productID == "" {
		productID = DefaultProductID
	}
	return &Codec{zones: zones, productID: productID}
}

// Decode reads every VEVENT of the first calendar in r. Events that cannot be
// represented are reported as ComponentErrors and skipped; a stream that
// cannot be parsed at all fails with ErrMalformedCalendar.
func (c *Codec) Decode(r io.Reader) ([]Event, []*ComponentError, error) {
	cal, err := goical.NewDecoder(r).Decode()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedCalendar, err)
	}

	var (
		events  []Event
		skipped []*ComponentError
	)
	for _, child := range cal.Children {
		if child.Name != goical.CompEvent {
			continue
		}
		ev, err := c.decodeEvent(child)
		if err != nil {
			skipped = append(skipped, &ComponentError{UID: ev.UID, Err: err})
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func (c *Codec) decodeEvent(comp *goical.Component) (Event, error) {
	var ev Event
	ev.UID = textValue(comp.Props, goical.PropUID)
	ev.Summary = textValue(comp.Props, goical.PropSummary)
	ev.Description = textValue(comp.Props, goical.PropDescription)
	ev.Transparent = strings.EqualFold(textValue(comp.Props, goical.PropTransparency), transparent)

	if comp.Props.Get(goical.PropRecurrenceID) != nil {
		return ev, fmt.Errorf("%w: RECURRENCE-ID overrides", ErrUnsupportedComponent)
	}
	if len(comp.Props[goical.PropRecurrenceDates]) > 0 {
		return ev, fmt.Errorf("%w: RDATE", ErrUnsupportedComponent)
	}

	dtstart := comp.Props.Get(goical.PropDateTimeStart)
	if dtstart == nil {
		return ev, fmt.Errorf("%w: missing DTSTART", ErrUnsupportedComponent)
	}
	start, err := c.readDateTime(dtstart)
	if err != nil {
		return ev, err
	}
	ev.Start, ev.TimeZone, ev.AllDay = start.wall, start.zone, start.allDay

	switch {
	case comp.Props.Get(goical.PropDuration) != nil:
		d, err := comp.Props.Get(goical.PropDuration).Duration()
		if err != nil {
			return ev, fmt.Errorf("%w: DURATION: %v", ErrUnsupportedComponent, err)
		}
		ev.Duration = d
	case comp.Props.Get(goical.PropDateTimeEnd) != nil:
		end, err := c.readDateTime(comp.Props.Get(goical.PropDateTimeEnd))
		if err != nil {
			return ev, err
		}
		ev.Duration, err = c.span(start, end)
		if err != nil {
			return ev, err
		}
	case ev.AllDay:
		ev.Duration = 24 * time.Hour
	}
	if ev.Duration < 0 {
		return ev, fmt.Errorf("%w: DTEND before DTSTART", ErrUnsupportedComponent)
	}

	if rules := comp.Props[goical.PropRecurrenceRule]; len(rules) > 0 {
		if len(rules) > 1 {
			return ev, fmt.Errorf("%w: multiple RRULE properties", ErrUnsupportedComponent)
		}
		ev.RecurrenceRule = rules[0].Value
	}
	for i := range comp.Props[goical.PropExceptionDates] {
		prop := &comp.Props[goical.PropExceptionDates][i]
		for _, value := range strings.Split(prop.Value, ",") {
			one := *prop
			one.Value = strings.TrimSpace(value)
			ex, err := c.readDateTime(&one)
			if err != nil {
				return ev, err
			}
			instant, err := c.instant(ex, start.zone)
			if err != nil {
				return ev, err
			}
			ev.ExceptionDates = append(ev.ExceptionDates, instant)
		}
	}
	return ev, nil
}

type dateTime struct {
	wall   temporal.WallClock
	zone   string
	utc    bool
	allDay bool
}

func (c *Codec) readDateTime(prop *goical.Prop) (dateTime, error) {
	value := strings.TrimSpace(prop.Value)
	if strings.EqualFold(prop.Params.Get(goical.ParamValue), string(goical.ValueDate)) || len(value) == len(dateLayout) {
		t, err := time.Parse(dateLayout, value)
		if err != nil {
			return dateTime{}, fmt.Errorf("%w: %s %q: %v", ErrUnsupportedComponent, prop.Name, value, err)
		}
		return dateTime{wall: temporal.FromTime(t), allDay: true}, nil
	}
	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(utcDateTimeLayout, value)
		if err != nil {
			return dateTime{}, fmt.Errorf("%w: %s %q: %v", ErrUnsupportedComponent, prop.Name, value, err)
		}
		return dateTime{wall: temporal.FromTime(t), zone: "UTC", utc: true}, nil
	}
	t, err := time.Parse(localDateTimeLayout, value)
	if err != nil {
		return dateTime{}, fmt.Errorf("%w: %s %q: %v", ErrUnsupportedComponent, prop.Name, value, err)
	}
	zone := prop.Params.Get(goical.ParamTimezoneID)
	if zone != "" {
		if _, err := c.zones.ResolveTimeZone(zone); err != nil {
			return dateTime{}, err
		}
	}
	return dateTime{wall: temporal.FromTime(t), zone: zone}, nil
}

// instant places d on the time line, using fallback for floating values.
func (c *Codec) instant(d dateTime, fallback string) (time.Time, error) {
	name := d.zone
	if name == "" {
		name = fallback
	}
	if name == "" {
		name = "UTC"
	}
	zone, err := c.zones.ResolveTimeZone(name)
	if err != nil {
		return time.Time{}, err
	}
	return temporal.ToInstant(d.wall, zone)
}

func (c *Codec) span(start, end dateTime) (time.Duration, error) {
	if start.zone == end.zone || start.allDay || end.allDay {
		return end.wall.Sub(start.wall), nil
	}
	from, err := c.instant(start, "")
	if err != nil {
		return 0, err
	}
	to, err := c.instant(end, start.zone)
	if err != nil {
		return 0, err
	}
	return to.Sub(from), nil
}

// EncodeEvents writes events as one VCALENDAR stamped with stamp.
func (c *Codec) EncodeEvents(w io.Writer, events []Event, stamp time.Time) error {
	if len(events) == 0 {
		// The encoder rejects calendars without components.
		_, err := io.WriteString(w, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:"+c.productID+"\r\nEND:VCALENDAR\r\n")
		return err
	}
	cal := c.newCalendar()
	for _, ev := range events {
		cal.Children = append(cal.Children, encodeEvent(ev, stamp))
	}
	return goical.NewEncoder(w).Encode(cal)
}

func encodeEvent(ev Event, stamp time.Time) *goical.Component {
	comp := goical.NewEvent()
	comp.Props.SetText(goical.PropUID, ev.UID)
	comp.Props.SetDateTime(goical.PropDateTimeStamp, stamp.UTC())
	if ev.Summary != "" {
		comp.Props.SetText(goical.PropSummary, ev.Summary)
	}
	if ev.Description != "" {
		comp.Props.SetText(goical.PropDescription, ev.Description)
	}

	start := goical.NewProp(goical.PropDateTimeStart)
	switch {
	case ev.AllDay:
		start.Params.Set(goical.ParamValue, string(goical.ValueDate))
		start.Value = ev.Start.In(time.UTC).Format(dateLayout)
	case ev.TimeZone == "" || ev.TimeZone == "UTC":
		start.Value = ev.Start.In(time.UTC).Format(utcDateTimeLayout)
	default:
		start.Params.Set(goical.ParamTimezoneID, ev.TimeZone)
		start.Value = ev.Start.In(time.UTC).Format(localDateTimeLayout)
	}
	comp.Props.Set(start)

	duration := goical.NewProp(goical.PropDuration)
	duration.SetDuration(ev.Duration)
	comp.Props.Set(duration)

	if ev.RecurrenceRule != "" {
		rule := goical.NewProp(goical.PropRecurrenceRule)
		rule.Value = ev.RecurrenceRule
		comp.Props.Set(rule)
	}
	if len(ev.ExceptionDates) > 0 {
		values := make([]string, 0, len(ev.ExceptionDates))
		for _, ex := range ev.ExceptionDates {
			values = append(values, ex.UTC().Format(utcDateTimeLayout))
		}
		exdate := goical.NewProp(goical.PropExceptionDates)
		exdate.Value = strings.Join(values, ",")
		comp.Props.Set(exdate)
	}
	if ev.Transparent {
		comp.Props.SetText(goical.PropTransparency, transparent)
	}
	return comp.Component
}

// EncodeFreeBusy writes a VCALENDAR holding one VFREEBUSY component.
func (c *Codec) EncodeFreeBusy(w io.Writer, fb FreeBusy) error {
	cal := c.newCalendar()

	comp := goical.NewComponent(goical.CompFreeBusy)
	comp.Props.SetText(goical.PropUID, fb.UID)
	comp.Props.SetDateTime(goical.PropDateTimeStamp, fb.Stamp.UTC())
	comp.Props.SetDateTime(goical.PropDateTimeStart, fb.Window.Start.UTC())
	comp.Props.SetDateTime(goical.PropDateTimeEnd, fb.Window.End.UTC())
	for _, busy := range fb.Busy {
		comp.Props.Add(periodProp("BUSY", busy))
	}
	for _, free := range fb.Free {
		comp.Props.Add(periodProp("FREE", free))
	}
	cal.Children = append(cal.Children, comp)
	return goical.NewEncoder(w).Encode(cal)
}

func periodProp(kind string, iv interval.Interval) *goical.Prop {
	prop := goical.NewProp(goical.PropFreeBusy)
	prop.Params.Set(goical.ParamFreeBusyType, kind)
	prop.Value = iv.Start.UTC().Format(utcDateTimeLayout) + "/" + iv.End.UTC().Format(utcDateTimeLayout)
	return prop
}

func (c *Codec) newCalendar() *goical.Calendar {
	cal := goical.NewCalendar()
	cal.Props.SetText(goical.PropVersion, "2.0")
	cal.Props.SetText(goical.PropProductID, c.productID)
	return cal
}

func textValue(props goical.Props, name string) string {
	prop := props.Get(name)
	if prop == nil {
		return ""
	}
	text, err := prop.Text()
	if err != nil {
		return prop.Value
	}
	return text
}
