package app

import (
	"log/slog"
	"time"

	"departureboard.app/internal/appconf"
	"departureboard.app/internal/clock"
	"departureboard.app/internal/datasource"
	"departureboard.app/internal/metrics"
	"departureboard.app/internal/realtime"
	"departureboard.app/internal/schedule"
)

// Application holds the dependencies for our HTTP handlers, helpers,
// and middleware.
type Application struct {
	Config      appconf.Config
	Logger      *slog.Logger
	Clock       clock.Clock
	Location    *time.Location
	Metrics     *metrics.Metrics
	Datasources *datasource.Manager
	Realtime    *realtime.Store
	Refresher   *realtime.Refresher
}

// Target returns the configured realtime target called name.
func (app *Application) Target(name string) (appconf.RealtimeTarget, bool) {
	for _, t := range app.Config.Realtime {
		if t.Name == name {
			return t, true
		}
	}
	return appconf.RealtimeTarget{}, false
}

// Resolver returns a next-departure resolver bound to one datasource.
func (app *Application) Resolver(h *datasource.Handle) *schedule.Resolver {
	return schedule.NewResolver(h.Queries, app.Location, h.Extracting)
}

// Finder returns a proximity finder bound to one datasource.
func (app *Application) Finder(h *datasource.Handle) *schedule.Finder {
	return schedule.NewFinder(h.Queries, h.Stops, app.Location, h.Extracting)
}

// Now is the current instant in the configured location.
func (app *Application) Now() time.Time {
	return app.Clock.Now().In(app.Location)
}
