package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"departureboard.app/internal/app"
	"departureboard.app/internal/appconf"
	"departureboard.app/internal/clock"
	"departureboard.app/internal/datasource"
	"departureboard.app/internal/logging"
	"departureboard.app/internal/metrics"
	"departureboard.app/internal/realtime"
	"departureboard.app/internal/restapi"
	"departureboard.app/internal/webui"
)

const shutdownTimeout = 30 * time.Second

// ParseAPIKeys splits a comma separated key list, dropping blanks.
func ParseAPIKeys(apiKeysFlag string) []string {
	return appconf.SplitList(apiKeysFlag)
}

// BuildApplication wires the datasource manager, realtime store and
// refresher for cfg. Datasources are not opened here; see startDatasources.
func BuildApplication(cfg appconf.Config) (*app.Application, error) {
	logger := slog.Default().With(slog.String("component", "app"))

	loc, unset, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if unset {
		logging.LogWarning(logger, "timezone_unset_defaulting_to_utc")
	}

	m := metrics.NewWithLogger(logger)
	mgr, err := datasource.NewManager(datasource.Config{
		Dir:     cfg.DataDir,
		Env:     cfg.Env,
		Verbose: cfg.Verbose,
		Sources: cfg.Datasources,
		Metrics: m,
	})
	if err != nil {
		m.Shutdown()
		return nil, fmt.Errorf("failed to initialize datasource manager: %w", err)
	}

	names := make([]string, 0, len(cfg.Realtime))
	for _, target := range cfg.Realtime {
		names = append(names, target.Name)
	}
	store := realtime.NewStore(names)
	c := clock.RealClock{}

	return &app.Application{
		Config:      cfg,
		Logger:      logger,
		Clock:       c,
		Location:    loc,
		Metrics:     m,
		Datasources: mgr,
		Realtime:    store,
		Refresher: realtime.NewRefresher(realtime.RefresherConfig{
			Targets:   cfg.Realtime,
			Store:     store,
			Clock:     c,
			Location:  loc,
			OutputDir: cfg.OutputDir,
			Metrics:   m,
		}),
	}, nil
}

// CreateServer builds the HTTP server with the API and web UI routes.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	ui := &webui.WebUI{Application: coreApp}
	ui.SetWebUIRoutes(mux)

	// The metrics middleware sits right outside the mux so it sees r.Pattern.
	var handler http.Handler = mux
	handler = restapi.MetricsHandler(coreApp.Metrics)(handler)
	handler = restapi.NewRequestLoggingMiddleware(coreApp.Logger)(handler)
	handler = restapi.RequestIDMiddleware(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv, api
}

// startDatasources attaches the databases already on disk and starts
// ingestion for configured datasources that have none. Ingestion runs in
// the background; the health endpoint reports 503 until one is ready.
func startDatasources(ctx context.Context, coreApp *app.Application) {
	logger := coreApp.Logger
	opened := coreApp.Datasources.OpenAll(ctx)
	logging.LogOperation(logger, "datasources_opened", slog.Any("names", opened))

	for _, src := range coreApp.Config.Datasources {
		if slices.Contains(opened, src.Name) {
			continue
		}
		done, err := coreApp.Datasources.Refresh(ctx, src)
		if err != nil {
			logging.LogError(logger, "Failed to start datasource ingestion", err, slog.String("datasource", src.Name))
			continue
		}
		go func(name string) {
			if res := <-done; res.Err != nil {
				logging.LogError(logger, "Datasource ingestion failed", res.Err, slog.String("datasource", name))
			}
		}(src.Name)
	}
}

// Run serves until ctx is done, then shuts everything down in reverse order.
func Run(ctx context.Context, srv *http.Server, coreApp *app.Application, api *restapi.RestAPI) error {
	logger := coreApp.Logger

	startDatasources(ctx, coreApp)
	coreApp.Refresher.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "server_starting",
			slog.String("addr", srv.Addr),
			slog.String("env", coreApp.Config.Env.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logging.LogOperation(logger, "shutdown_signal_received")
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "Server shutdown failed", err)
		if runErr == nil {
			runErr = err
		}
	}

	shutdownApplication(coreApp, api)
	logging.LogOperation(logger, "server_stopped")
	return runErr
}

// shutdownApplication stops background work and closes the databases.
func shutdownApplication(coreApp *app.Application, api *restapi.RestAPI) {
	if coreApp.Refresher != nil {
		coreApp.Refresher.Stop()
	}
	if api != nil {
		api.Shutdown()
	}
	if coreApp.Datasources != nil {
		logging.SafeCloseWithLogging(coreApp.Datasources, coreApp.Logger, "datasource manager")
	}
	if coreApp.Metrics != nil {
		coreApp.Metrics.Shutdown()
	}
}
