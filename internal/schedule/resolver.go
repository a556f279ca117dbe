package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"departureboard.app/gtfsdb"
	"departureboard.app/internal/logging"
)

// Store is the read-only query surface the resolver and finder need.
// *gtfsdb.Queries satisfies it.
type Store interface {
	ListCandidateDepartures(ctx context.Context, arg gtfsdb.ListCandidateDeparturesParams) ([]gtfsdb.CandidateDepartureRow, error)
	CountMatchingStops(ctx context.Context, value string, byName bool) (int64, error)
	ListDeparturesForStops(ctx context.Context, arg gtfsdb.ListDeparturesForStopsParams) ([]gtfsdb.StopDepartureRow, error)
}

// StopTimeDetail is a resolved stop visit with absolute UTC times.
type StopTimeDetail struct {
	StopID            string    `json:"stop_id"`
	StopName          string    `json:"stop_name"`
	StopSequence      int64     `json:"stop_sequence"`
	ArrivalTime       time.Time `json:"arrival_time"`
	DepartureTime     time.Time `json:"departure_time"`
	DropOffType       *int64    `json:"drop_off_type"`
	PickupType        *int64    `json:"pickup_type"`
	ShapeDistTraveled *float64  `json:"shape_dist_traveled"`
	StopHeadsign      *string   `json:"stop_headsign"`
	Timepoint         *int64    `json:"timepoint"`
}

// NextDeparture is the first departure after now, plus the remaining
// timetable rendered as three parallel lists.
type NextDeparture struct {
	TripID              string         `json:"trip_id"`
	RouteID             string         `json:"route_id"`
	RouteShortName      string         `json:"route_short_name"`
	RouteLongName       string         `json:"route_long_name"`
	TripHeadsign        string         `json:"trip_headsign"`
	Day                 DayTag         `json:"day"`
	First               bool           `json:"first"`
	Last                bool           `json:"last"`
	OriginStopID        string         `json:"origin_stop_id"`
	OriginStopName      string         `json:"origin_stop_name"`
	DestinationStopID   string         `json:"destination_stop_id"`
	DestinationStopName string         `json:"destination_stop_name"`
	DepartureTime       time.Time      `json:"departure_time"`
	ArrivalTime         time.Time      `json:"arrival_time"`
	OriginStopTime      StopTimeDetail `json:"origin_stop_time"`
	DestinationStopTime StopTimeDetail `json:"destination_stop_time"`

	NextDepartures         []string `json:"next_departures"`
	NextDeparturesLines    []string `json:"next_departures_lines"`
	NextDeparturesHeadsign []string `json:"next_departures_headsign"`
}

type Resolver struct {
	store      Store
	loc        *time.Location
	extracting func() bool
	logger     *slog.Logger
}

// NewResolver builds a resolver interpreting schedule times in loc (UTC when
// nil). extracting may be nil; when it reports true Resolve refuses to query.
func NewResolver(store Store, loc *time.Location, extracting func() bool) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{
		store:      store,
		loc:        loc,
		extracting: extracting,
		logger:     slog.Default().With(slog.String("component", "schedule_resolver")),
	}
}

// Resolve returns the next departure strictly after q.Now plus the offset.
// A nil result with a nil error means no departure was found.
func (r *Resolver) Resolve(ctx context.Context, q ScheduleQuery) (*NextDeparture, error) {
	if r.extracting != nil && r.extracting() {
		return nil, ErrDatasourceExtracting
	}

	byName := q.byName()
	origin, destination := stopKey(q.Origin, byName), stopKey(q.Destination, byName)
	now := q.Now.In(r.loc).Add(time.Duration(q.OffsetMinutes) * time.Minute)
	days := newServiceDays(now, r.loc)

	rows, err := r.store.ListCandidateDepartures(ctx, gtfsdb.ListCandidateDeparturesParams{
		Origin:          origin,
		Destination:     destination,
		MatchByName:     byName,
		RouteType:       2,
		ServiceDate:     days.today,
		IncludeTomorrow: q.IncludeTomorrow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate departures: %w", err)
	}

	if len(rows) == 0 {
		if err := r.checkStops(ctx, origin, destination, byName); err != nil {
			return nil, err
		}
		logging.LogOperation(r.logger, "no_departures_found",
			slog.String("origin", origin),
			slog.String("destination", destination))
		return nil, nil
	}

	tt := buildTimetable(rows, days)
	upcoming := tt.After(now)
	if len(upcoming) == 0 {
		logging.LogOperation(r.logger, "no_departures_found",
			slog.String("origin", origin),
			slog.String("destination", destination),
			slog.Int("candidates", tt.Len()))
		return nil, nil
	}

	next := r.resolveTimes(upcoming[0])
	for _, c := range upcoming {
		stamp := isoStamp(c.At)
		next.NextDepartures = append(next.NextDepartures, stamp)
		next.NextDeparturesLines = append(next.NextDeparturesLines, stamp+lineLabel(c))
		next.NextDeparturesHeadsign = append(next.NextDeparturesHeadsign, stamp+" ("+c.TripHeadsign+")")
	}
	return next, nil
}

func (r *Resolver) checkStops(ctx context.Context, origin, destination string, byName bool) error {
	for _, stop := range []string{origin, destination} {
		n, err := r.store.CountMatchingStops(ctx, stop, byName)
		if err != nil {
			return fmt.Errorf("failed to count stops matching %q: %w", stop, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %q", ErrNoMatchingStop, stop)
		}
	}
	return nil
}

// resolveTimes places the wall-clock stop times of c on absolute dates.
// The origin departure anchors everything: an origin arrival later in the
// day than the departure happened the day before, a destination arrival
// earlier than the origin departure happens the day after, and a
// destination departure earlier than its arrival happens a day later still.
func (r *Resolver) resolveTimes(c *CandidateDeparture) *NextDeparture {
	depDate := midnight(c.At, r.loc)
	oDep := c.Origin.DepartureSecs % secondsPerDay
	oArr := c.Origin.ArrivalSecs % secondsPerDay
	dArr := c.Destination.ArrivalSecs % secondsPerDay
	dDep := c.Destination.DepartureSecs % secondsPerDay

	originArrDate := depDate
	if oArr > oDep {
		originArrDate = depDate.AddDate(0, 0, -1)
	}
	destArrDate := depDate
	if dArr < oDep {
		destArrDate = depDate.AddDate(0, 0, 1)
	}
	destDepDate := destArrDate
	if dDep < dArr {
		destDepDate = destArrDate.AddDate(0, 0, 1)
	}

	origin := stopTimeDetail(c.Origin, wallClock(originArrDate, oArr), c.At)
	destination := stopTimeDetail(c.Destination, wallClock(destArrDate, dArr), wallClock(destDepDate, dDep))

	return &NextDeparture{
		TripID:              c.TripID,
		RouteID:             c.RouteID,
		RouteShortName:      c.RouteShortName,
		RouteLongName:       c.RouteLongName,
		TripHeadsign:        c.TripHeadsign,
		Day:                 c.Day,
		First:               c.First,
		Last:                c.Last,
		OriginStopID:        c.Origin.StopID,
		OriginStopName:      c.Origin.StopName,
		DestinationStopID:   c.Destination.StopID,
		DestinationStopName: c.Destination.StopName,
		DepartureTime:       origin.DepartureTime,
		ArrivalTime:         destination.ArrivalTime,
		OriginStopTime:      origin,
		DestinationStopTime: destination,
	}
}

func stopTimeDetail(v StopVisit, arrival, departure time.Time) StopTimeDetail {
	d := StopTimeDetail{
		StopID:        v.StopID,
		StopName:      v.StopName,
		StopSequence:  v.Sequence,
		ArrivalTime:   arrival.UTC(),
		DepartureTime: departure.UTC(),
	}
	if v.DropOffType.Valid {
		d.DropOffType = &v.DropOffType.Int64
	}
	if v.PickupType.Valid {
		d.PickupType = &v.PickupType.Int64
	}
	if v.ShapeDistTraveled.Valid {
		d.ShapeDistTraveled = &v.ShapeDistTraveled.Float64
	}
	if v.Headsign.Valid {
		d.StopHeadsign = &v.Headsign.String
	}
	if v.Timepoint.Valid {
		d.Timepoint = &v.Timepoint.Int64
	}
	return d
}

func isoStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05-07:00")
}

func lineLabel(c *CandidateDeparture) string {
	if c.RouteLongName == "" {
		return " (" + c.RouteShortName + ")"
	}
	return " (" + c.RouteShortName + "/" + c.RouteLongName + ")"
}
