package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"departureboard.app/gtfsdb"
	"departureboard.app/internal/logging"
	"departureboard.app/internal/utils"
)

const (
	DefaultNearbyRadius    = 0.003
	DefaultNearbyLookahead = 30 * time.Minute
)

type NearbyQuery struct {
	Lat             float64
	Lon             float64
	Radius          float64
	Lookahead       time.Duration
	Now             time.Time
	IncludeTomorrow bool
}

type NearbyDeparture struct {
	TripID         string    `json:"trip_id"`
	RouteID        string    `json:"route_id"`
	RouteShortName string    `json:"route_short_name"`
	RouteLongName  string    `json:"route_long_name"`
	TripHeadsign   string    `json:"trip_headsign"`
	Day            DayTag    `json:"day"`
	DepartureTime  time.Time `json:"departure_time"`
}

// StopDepartures is one nearby stop with the departures leaving it inside
// the lookahead window.
type StopDepartures struct {
	StopID         string            `json:"stop_id"`
	StopName       string            `json:"stop_name"`
	Lat            float64           `json:"lat"`
	Lon            float64           `json:"lon"`
	DistanceMeters float64           `json:"distance_meters"`
	Departures     []NearbyDeparture `json:"departures"`
}

// Finder answers proximity queries against a prebuilt StopIndex.
type Finder struct {
	store      Store
	index      *StopIndex
	loc        *time.Location
	extracting func() bool
	logger     *slog.Logger
}

func NewFinder(store Store, index *StopIndex, loc *time.Location, extracting func() bool) *Finder {
	if loc == nil {
		loc = time.UTC
	}
	return &Finder{
		store:      store,
		index:      index,
		loc:        loc,
		extracting: extracting,
		logger:     slog.Default().With(slog.String("component", "proximity_finder")),
	}
}

// Nearby returns the stops around q's location that have at least one
// departure in [now, now+lookahead], ordered by stop id.
func (f *Finder) Nearby(ctx context.Context, q NearbyQuery) ([]StopDepartures, error) {
	if f.extracting != nil && f.extracting() {
		return nil, ErrDatasourceExtracting
	}
	if q.Radius <= 0 {
		q.Radius = DefaultNearbyRadius
	}
	if q.Lookahead <= 0 {
		q.Lookahead = DefaultNearbyLookahead
	}

	stops := f.index.Within(q.Lat, q.Lon, q.Radius)
	if len(stops) == 0 {
		return nil, nil
	}
	ids := make([]string, len(stops))
	for i, s := range stops {
		ids[i] = s.ID
	}

	now := q.Now.In(f.loc)
	end := now.Add(q.Lookahead)
	days := newServiceDays(now, f.loc)
	start := int64(now.Sub(days.today) / time.Second)

	rows, err := f.store.ListDeparturesForStops(ctx, gtfsdb.ListDeparturesForStopsParams{
		StopIDs:         ids,
		ServiceDate:     days.today,
		IncludeTomorrow: q.IncludeTomorrow,
		WindowStart:     start,
		WindowEnd:       start + int64(q.Lookahead/time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list departures for nearby stops: %w", err)
	}

	var out []StopDepartures
	var current *StopDepartures
	for _, row := range rows {
		if current == nil || current.StopID != row.StopID {
			if current != nil && len(current.Departures) > 0 {
				out = append(out, *current)
			}
			current = &StopDepartures{
				StopID:         row.StopID,
				StopName:       row.StopName.String,
				Lat:            row.Lat,
				Lon:            row.Lon,
				DistanceMeters: utils.Distance(q.Lat, q.Lon, row.Lat, row.Lon),
			}
		}
		for _, p := range days.place(row.DepartureTime, row.Yesterday, row.Today, row.Tomorrow, row.CalendarDate, row.TodayCD) {
			at := wallClock(p.date, row.DepartureTime)
			if at.Before(now) || at.After(end) {
				continue
			}
			current.Departures = append(current.Departures, NearbyDeparture{
				TripID:         row.TripID,
				RouteID:        row.RouteID,
				RouteShortName: row.RouteShortName.String,
				RouteLongName:  row.RouteLongName.String,
				TripHeadsign:   row.TripHeadsign.String,
				Day:            p.day,
				DepartureTime:  at.UTC(),
			})
		}
	}
	if current != nil && len(current.Departures) > 0 {
		out = append(out, *current)
	}

	for i := range out {
		deps := out[i].Departures
		sort.SliceStable(deps, func(a, b int) bool { return deps[a].DepartureTime.Before(deps[b].DepartureTime) })
	}

	logging.LogOperation(f.logger, "nearby_stops_resolved",
		slog.Int("candidates", len(stops)),
		slog.Int("stops", len(out)))
	return out, nil
}
