package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"departureboard.app/internal/appconf"
	"departureboard.app/internal/clock"
	"departureboard.app/internal/logging"
	"departureboard.app/internal/metrics"
	"departureboard.app/internal/overlay"
)

// Feed kinds used as metric labels.
const (
	FeedTripUpdates      = "trip_updates"
	FeedVehiclePositions = "vehicle_positions"
	FeedAlerts           = "alerts"
)

type RefresherConfig struct {
	Targets   []appconf.RealtimeTarget
	Store     *Store
	Clock     clock.Clock
	Location  *time.Location
	OutputDir string
	Metrics   *metrics.Metrics
}

// Refresher periodically rebuilds the snapshot of every target. Each target
// builds its own indexes, so targets refresh in parallel without sharing
// state.
type Refresher struct {
	cfg      RefresherConfig
	fetchers map[string]*Fetcher
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     conc.WaitGroup
}

func NewRefresher(cfg RefresherConfig) *Refresher {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	fetchers := make(map[string]*Fetcher, len(cfg.Targets))
	for _, t := range cfg.Targets {
		timeout := t.FetchTimeout
		if timeout <= 0 {
			timeout = appconf.DefaultFetchTimeout
		}
		fetchers[t.Name] = NewFetcher(timeout)
	}
	return &Refresher{
		cfg:      cfg,
		fetchers: fetchers,
		logger:   slog.Default().With(slog.String("component", "realtime_refresher")),
	}
}

// RefreshAll refreshes every target once, in parallel.
func (r *Refresher) RefreshAll(ctx context.Context) {
	if len(r.cfg.Targets) == 0 {
		return
	}
	p := pool.New().WithMaxGoroutines(len(r.cfg.Targets))
	for _, target := range r.cfg.Targets {
		p.Go(func() {
			r.RefreshTarget(ctx, target)
		})
	}
	p.Wait()
}

// RefreshTarget fetches the feeds of one target and publishes a new
// snapshot. Feed failures degrade the snapshot, they never abort it.
func (r *Refresher) RefreshTarget(ctx context.Context, target appconf.RealtimeTarget) *Snapshot {
	logger := r.logger.With(slog.String("target", target.Name))
	ctx = logging.WithLogger(ctx, logger)
	now := r.cfg.Clock.Now()
	headers := target.RequestHeaders()

	snap := &Snapshot{Target: target.Name, FetchedAt: now, Positions: map[string]Position{}}
	fail := func(feed string, err error) {
		logging.LogError(logger, "realtime feed unavailable", err, slog.String("feed", feed))
		snap.Errors = append(snap.Errors, feed+": "+err.Error())
	}

	if target.VehiclePositionURL != "" {
		vehicles, err := r.fetch(ctx, target, FeedVehiclePositions, target.VehiclePositionURL, headers)
		if err != nil {
			fail(FeedVehiclePositions, err)
		} else {
			snap.Positions = BuildPositions(vehicles)
			snap.Vehicles = FeatureFor(vehicles, target.RouteID, target.Direction)
			r.writeVehicleOverlay(logger, target, snap)
		}
	}

	updates, err := r.fetch(ctx, target, FeedTripUpdates, target.TripUpdateURL, headers)
	if err != nil {
		fail(FeedTripUpdates, err)
		snap.Status = UnknownStatus(target)
	} else {
		opts := IndexOptions{RouteDelimiter: target.RouteDelimiter, Now: now, Positions: snap.Positions}
		snap.Routes = BuildIndex(updates, opts)
		snap.Trips = BuildTripIndex(updates, opts)
		snap.Status = BuildStatus(target, snap.Routes, snap.Trips, now, r.cfg.Location)
	}

	if target.AlertsURL != "" {
		alerts, err := r.fetch(ctx, target, FeedAlerts, target.AlertsURL, headers)
		if err != nil {
			fail(FeedAlerts, err)
		} else {
			snap.Alerts = MatchAlerts(alerts, target.StopID, target.DestinationStopID, target.RouteID)
		}
	}

	if r.cfg.Store != nil {
		r.cfg.Store.Publish(snap)
	}
	if m := r.cfg.Metrics; m != nil {
		m.RealtimeArrivals.WithLabelValues(target.Name).Set(float64(len(snap.Status.Arrivals)))
		m.RealtimeLastRefreshS.WithLabelValues(target.Name).Set(float64(now.Unix()))
	}

	logging.LogOperation(logger, "realtime_snapshot_published",
		slog.String("due_in", snap.Status.DueIn),
		slog.Int("arrivals", len(snap.Status.Arrivals)),
		slog.Int("errors", len(snap.Errors)))
	return snap
}

func (r *Refresher) fetch(ctx context.Context, target appconf.RealtimeTarget, feed, url string, headers map[string]string) ([]Entity, error) {
	start := time.Now()
	entities, err := r.fetchers[target.Name].FetchEntities(ctx, url, headers)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ObserveFeedFetch(target.Name, feed, err, time.Since(start))
	}
	return entities, err
}

func (r *Refresher) writeVehicleOverlay(logger *slog.Logger, target appconf.RealtimeTarget, snap *Snapshot) {
	if r.cfg.OutputDir == "" || snap.Vehicles == nil {
		return
	}
	name := overlay.FileName(target.RouteID, target.Direction)
	if err := overlay.WriteFeatureCollection(r.cfg.OutputDir, name, snap.Vehicles); err != nil {
		logging.LogError(logger, "failed to write vehicle overlay", err, slog.String("file", name))
	}
}

// Start refreshes every target immediately and then on its own interval
// until ctx is done or Stop is called.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)

	for _, target := range r.cfg.Targets {
		r.wg.Go(func() {
			r.loop(ctx, target)
		})
	}
}

func (r *Refresher) loop(ctx context.Context, target appconf.RealtimeTarget) {
	interval := target.RefreshInterval
	if interval <= 0 {
		interval = appconf.DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.RefreshTarget(ctx, target)
	for {
		select {
		case <-ticker.C:
			r.RefreshTarget(ctx, target)
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the refresh loops and waits for them to exit.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
