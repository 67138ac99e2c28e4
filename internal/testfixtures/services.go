package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/occurrence"
	"github.com/example/calendar-scheduler/internal/recurrence"
	"github.com/example/calendar-scheduler/internal/temporal"
)

// ServiceFactory builds application services with deterministic ids and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Zones       temporal.Resolver
	Limits      recurrence.Limits
	Options     application.Options
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults. Free/busy
// caching is off so tests observe every write.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	options := application.DefaultOptions()
	options.FreeBusyCacheTTL = 0
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Zones:       temporal.SystemResolver{},
		Options:     options,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Zones == nil {
		factory.Zones = temporal.SystemResolver{}
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithOptions overrides the service options.
func WithOptions(options application.Options) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Options = options
	}
}

// WithLimits overrides the expansion limits.
func WithLimits(limits recurrence.Limits) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Limits = limits
	}
}

// Services bundles the services built over one pair of stores.
type Services struct {
	Calendars    *application.CalendarService
	Events       *application.EventService
	Availability *application.AvailabilityService
}

// NewCalendarService builds a calendar service.
func (f *ServiceFactory) NewCalendarService(calendars application.CalendarStore) *application.CalendarService {
	return application.NewCalendarServiceWithLogger(calendars, f.Zones, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewEventService builds an event service.
func (f *ServiceFactory) NewEventService(calendars application.CalendarStore, events application.EventStore) *application.EventService {
	materializer := occurrence.NewMaterializer(f.Zones, f.Limits)
	return application.NewEventServiceWithLogger(calendars, events, materializer, f.Options, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewAvailabilityService builds an availability service.
func (f *ServiceFactory) NewAvailabilityService(calendars application.CalendarStore, events application.EventStore) *application.AvailabilityService {
	return application.NewAvailabilityServiceWithLogger(calendars, events, f.Zones, f.Limits, f.Options, f.Clock.NowFunc(), f.Logger)
}

// NewServices builds every service over the given stores.
func (f *ServiceFactory) NewServices(calendars application.CalendarStore, events application.EventStore) Services {
	return Services{
		Calendars:    f.NewCalendarService(calendars),
		Events:       f.NewEventService(calendars, events),
		Availability: f.NewAvailabilityService(calendars, events),
	}
}

// NewSQLiteServices builds every service over the harness repositories.
func (f *ServiceFactory) NewSQLiteServices(h *SQLiteHarness) Services {
	return f.NewServices(h.Calendars, h.Events)
}
