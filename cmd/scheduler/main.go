package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/config"
	httptransport "github.com/example/calendar-scheduler/internal/http"
	"github.com/example/calendar-scheduler/internal/ical"
	"github.com/example/calendar-scheduler/internal/logging"
	"github.com/example/calendar-scheduler/internal/maintenance"
	"github.com/example/calendar-scheduler/internal/occurrence"
	"github.com/example/calendar-scheduler/internal/persistence/sqlite"
	"github.com/example/calendar-scheduler/internal/recurrence"
	"github.com/example/calendar-scheduler/internal/temporal"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run dispatches the subcommand named by args[0]. Without one it serves the
// API until ctx is done.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "hash-key":
			return hashKey(args[1:], stdout)
		case "serve":
		default:
			return fmt.Errorf("unknown command %q (want serve or hash-key)", args[0])
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level, stdout)

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return err
	}
	defer app.Close()

	if err := app.maintenance.Start(ctx, cfg.MaintenanceSchedule); err != nil {
		return err
	}
	return serve(ctx, app.handler, cfg.HTTPPort, logger)
}

// hashKey prints the argon2id hash of the key in args, generating a key
// first when none is given.
func hashKey(args []string, stdout io.Writer) error {
	var key string
	if len(args) > 0 {
		key = strings.TrimSpace(args[0])
	}
	if key == "" {
		generated, err := application.GenerateAPIKey()
		if err != nil {
			return err
		}
		key = generated
		fmt.Fprintf(stdout, "key:  %s\n", key)
	}

	hash, err := application.HashAPIKey(key, application.DefaultArgon2idParams)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "hash: %s\n", hash)
	return nil
}

type app struct {
	store       *sqlite.Store
	handler     http.Handler
	maintenance *maintenance.Runner
	logger      *slog.Logger
}

// newApp opens the store and wires services, handlers and maintenance.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	zones, err := temporal.NewCachingResolver(temporal.SystemResolver{}, cfg.TZCacheSize)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.DSN()), logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var middleware []func(http.Handler) http.Handler
	middleware = append(middleware, httptransport.RequestLogger(logger))
	if cfg.APIKeyHash != "" {
		verifier, err := application.NewAPIKeyVerifier(cfg.APIKeyHash)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("api key hash: %w", err)
		}
		middleware = append(middleware, httptransport.RequireAPIKey(verifier, logger))
	} else {
		logger.Warn("api key guard disabled; SCHEDULER_API_KEY_HASH is empty")
	}

	limits := recurrence.Limits{MaxCandidates: cfg.MaxCandidates}
	options := application.DefaultOptions()
	options.ConflictHorizon = cfg.ConflictHorizon
	options.FreeBusyCacheTTL = cfg.FreeBusyCacheTTL
	newID := uuid.NewString
	now := time.Now

	calendars := application.NewCalendarServiceWithLogger(store.Calendars, zones, newID, now, logger)
	events := application.NewEventServiceWithLogger(store.Calendars, store.Events, occurrence.NewMaterializer(zones, limits), options, newID, now, logger).
		WithCodec(ical.NewCodec(zones, ical.DefaultProductID))
	availability := application.NewAvailabilityServiceWithLogger(store.Calendars, store.Events, zones, limits, options, now, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Calendars:    httptransport.NewCalendarHandler(calendars, logger),
		Events:       httptransport.NewEventHandler(events, logger),
		Availability: httptransport.NewAvailabilityHandler(availability, logger),
		Health:       store,
		Logger:       logger,
		Middleware:   middleware,
	})

	return &app{
		store:       store,
		handler:     router,
		maintenance: maintenance.NewRunner(store.Events, store, cfg.EventRetention, now, logger),
		logger:      logger,
	}, nil
}

func (a *app) Close() {
	a.maintenance.Stop()
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}

func serve(ctx context.Context, handler http.Handler, port int, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		return err
	}
	return nil
}
