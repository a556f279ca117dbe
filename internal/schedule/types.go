// Package schedule resolves the next scheduled departure between two stops
// and the departures leaving near a location, from the static timetable.
package schedule

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"departureboard.app/gtfsdb"
)

var (
	// ErrDatasourceExtracting is returned before any query while the
	// datasource is still being ingested.
	ErrDatasourceExtracting = errors.New("extracting")
	// ErrNoMatchingStop means the origin or destination selects no stop at all.
	ErrNoMatchingStop = errors.New("no matching stop")
)

// RailRouteType selects stops by name prefix instead of stop id.
const RailRouteType = "2"

const secondsPerDay = 24 * 60 * 60

type DayTag int

const (
	Yesterday DayTag = iota
	Today
	Tomorrow
)

func (d DayTag) String() string {
	switch d {
	case Yesterday:
		return "yesterday"
	case Tomorrow:
		return "tomorrow"
	default:
		return "today"
	}
}

func (d DayTag) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ScheduleQuery is one rider request.
type ScheduleQuery struct {
	Origin          string
	Destination     string
	RouteType       string
	Now             time.Time
	OffsetMinutes   int
	IncludeTomorrow bool
}

func (q ScheduleQuery) byName() bool {
	return q.RouteType == RailRouteType
}

// stopKey strips the ": name" label suffix from non rail selections.
func stopKey(s string, byName bool) string {
	if byName {
		return s
	}
	id, _, _ := strings.Cut(s, ": ")
	return id
}

// StopVisit is one end of a candidate trip. Times are seconds since the
// service day's midnight.
type StopVisit struct {
	StopID            string
	StopName          string
	ArrivalSecs       int64
	DepartureSecs     int64
	DropOffType       sql.NullInt64
	PickupType        sql.NullInt64
	ShapeDistTraveled sql.NullFloat64
	Headsign          sql.NullString
	Sequence          int64
	Timepoint         sql.NullInt64
}

// CandidateDeparture is one origin/destination pairing of a trip, placed
// on a service day.
type CandidateDeparture struct {
	TripID         string
	RouteID        string
	TripHeadsign   string
	RouteShortName string
	RouteLongName  string
	Origin         StopVisit
	Destination    StopVisit
	StartDate      string
	EndDate        string
	CalendarDate   string
	TodayCD        int64

	Day   DayTag
	First bool
	Last  bool
	// At is the local origin departure instant the timetable is keyed on.
	At time.Time
}

func visitFromRow(v gtfsdb.DepartureStopTime) StopVisit {
	return StopVisit{
		StopID:            v.StopID,
		StopName:          v.StopName.String,
		ArrivalSecs:       v.ArrivalTime,
		DepartureSecs:     v.DepartureTime,
		DropOffType:       v.DropOffType,
		PickupType:        v.PickupType,
		ShapeDistTraveled: v.ShapeDistTraveled,
		Headsign:          v.StopHeadsign,
		Sequence:          v.StopSequence,
		Timepoint:         v.Timepoint,
	}
}

func candidateFromRow(row gtfsdb.CandidateDepartureRow) CandidateDeparture {
	return CandidateDeparture{
		TripID:         row.TripID,
		RouteID:        row.RouteID,
		TripHeadsign:   row.TripHeadsign.String,
		RouteShortName: row.RouteShortName.String,
		RouteLongName:  row.RouteLongName.String,
		Origin:         visitFromRow(row.Origin),
		Destination:    visitFromRow(row.Destination),
		StartDate:      row.StartDate,
		EndDate:        row.EndDate,
		CalendarDate:   row.CalendarDate,
		TodayCD:        row.TodayCD,
	}
}

// midnight returns the start of t's calendar day in loc.
func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// wallClock places a time of day (seconds, wrapped to one day) on date.
func wallClock(date time.Time, secs int64) time.Time {
	secs %= secondsPerDay
	return time.Date(date.Year(), date.Month(), date.Day(),
		int(secs/3600), int(secs%3600/60), int(secs%60), 0, date.Location())
}
