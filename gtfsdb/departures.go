package gtfsdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Weekday flag of the calendar row for the day bound to a *_dow parameter.
const weekdayFlag = `(CASE @%[1]s_dow
    WHEN 0 THEN c.sunday WHEN 1 THEN c.monday WHEN 2 THEN c.tuesday
    WHEN 3 THEN c.wednesday WHEN 4 THEN c.thursday WHEN 5 THEN c.friday
    ELSE c.saturday END)`

const removedOn = `EXISTS (SELECT 1 FROM calendar_dates x
    WHERE x.service_id = t.service_id AND x.date = @%[1]s AND x.exception_type = 2)`

// Day activity flags of the calendar branch. The branch itself only holds
// services valid today and not removed today; yesterday and tomorrow must
// additionally be inside the validity window and not removed on their own date.
var (
	yesterdayFlag = fmt.Sprintf(weekdayFlag, "yesterday") +
		` = 1 AND c.start_date <= @yesterday AND NOT ` + fmt.Sprintf(removedOn, "yesterday")
	todayFlag    = fmt.Sprintf(weekdayFlag, "today") + ` = 1`
	tomorrowFlag = `@include_tomorrow = 1 AND ` + fmt.Sprintf(weekdayFlag, "tomorrow") +
		` = 1 AND c.end_date >= @tomorrow AND NOT ` + fmt.Sprintf(removedOn, "tomorrow")
)

var calendarWindow = `c.start_date <= @today AND c.end_date >= @today
  AND t.service_id NOT IN (SELECT service_id FROM calendar_dates WHERE date = @today AND exception_type = 2)
  AND ((` + yesterdayFlag + `) OR (` + todayFlag + `) OR (` + tomorrowFlag + `))`

const addedWindow = `cd.exception_type = 1
  AND (cd.date = @today OR (@include_tomorrow = 1 AND cd.date = @tomorrow))`

const candidateColumns = `
    t.trip_id AS trip_id,
    t.route_id,
    t.trip_headsign,
    r.route_short_name,
    r.route_long_name,
    r.route_type,
    os.stop_id,
    os.stop_name,
    ost.arrival_time,
    ost.departure_time AS origin_departure_time,
    ost.drop_off_type,
    ost.pickup_type,
    ost.shape_dist_traveled,
    ost.stop_headsign,
    ost.stop_sequence,
    ost.timepoint,
    ds.stop_id,
    ds.stop_name,
    dst.arrival_time,
    dst.departure_time,
    dst.drop_off_type,
    dst.pickup_type,
    dst.shape_dist_traveled,
    dst.stop_headsign,
    dst.stop_sequence,
    dst.timepoint,`

const candidateJoins = `
INNER JOIN stop_times ost ON ost.trip_id = t.trip_id
INNER JOIN stops os ON os.stop_id = ost.stop_id
INNER JOIN stop_times dst ON dst.trip_id = t.trip_id
INNER JOIN stops ds ON ds.stop_id = dst.stop_id
INNER JOIN routes r ON r.route_id = t.route_id`

const candidateFilters = `{route_type}
  AND {origin}
  AND {destination}
  AND ost.stop_sequence < dst.stop_sequence`

var listCandidateDeparturesTemplate = `
SELECT` + candidateColumns + `
    ` + yesterdayFlag + ` AS yesterday,
    ` + todayFlag + ` AS today,
    ` + tomorrowFlag + ` AS tomorrow,
    c.start_date,
    c.end_date,
    '' AS calendar_date,
    0 AS today_cd
FROM trips t
INNER JOIN calendar c ON c.service_id = t.service_id` + candidateJoins + `
WHERE ` + candidateFilters + `
  AND ` + calendarWindow + `
UNION ALL
SELECT` + candidateColumns + `
    0 AS yesterday,
    0 AS today,
    0 AS tomorrow,
    @today AS start_date,
    @today AS end_date,
    cd.date AS calendar_date,
    cd.exception_type AS today_cd
FROM trips t
INNER JOIN calendar_dates cd ON cd.service_id = t.service_id` + candidateJoins + `
WHERE ` + candidateFilters + `
  AND ` + addedWindow + `
ORDER BY calendar_date, origin_departure_time, today_cd, trip_id
`

// Only these constant fragments are spliced into the template; every
// user supplied value is bound as a parameter.
var (
	listCandidateDeparturesByID = strings.NewReplacer(
		"{route_type}", "1 = 1",
		"{origin}", "os.stop_id = @origin",
		"{destination}", "ds.stop_id = @destination",
	).Replace(listCandidateDeparturesTemplate)

	listCandidateDeparturesByName = strings.NewReplacer(
		"{route_type}", "r.route_type = @route_type",
		"{origin}", `os.stop_name LIKE @origin ESCAPE '\'`,
		"{destination}", `ds.stop_name LIKE @destination ESCAPE '\'`,
	).Replace(listCandidateDeparturesTemplate)
)

// ListCandidateDeparturesParams selects origin/destination pairs around
// ServiceDate. With MatchByName the stops are matched by stop_name prefix
// and restricted to RouteType; otherwise by exact stop_id.
type ListCandidateDeparturesParams struct {
	Origin          string
	Destination     string
	MatchByName     bool
	RouteType       int64
	ServiceDate     time.Time
	IncludeTomorrow bool
}

// DepartureStopTime is one end of a candidate trip. Times are seconds since
// the service day's midnight.
type DepartureStopTime struct {
	StopID            string
	StopName          sql.NullString
	ArrivalTime       int64
	DepartureTime     int64
	DropOffType       sql.NullInt64
	PickupType        sql.NullInt64
	ShapeDistTraveled sql.NullFloat64
	StopHeadsign      sql.NullString
	StopSequence      int64
	Timepoint         sql.NullInt64
}

type CandidateDepartureRow struct {
	TripID         string
	RouteID        string
	TripHeadsign   sql.NullString
	RouteShortName sql.NullString
	RouteLongName  sql.NullString
	RouteType      int64
	Origin         DepartureStopTime
	Destination    DepartureStopTime
	Yesterday      bool
	Today          bool
	Tomorrow       bool
	StartDate      string
	EndDate        string
	CalendarDate   string
	TodayCD        int64
}

// dayParams binds the yesterday/today/tomorrow dates and weekdays around serviceDate.
func dayParams(serviceDate time.Time, includeTomorrow bool) []interface{} {
	yesterday := serviceDate.AddDate(0, 0, -1)
	tomorrow := serviceDate.AddDate(0, 0, 1)
	return []interface{}{
		sql.Named("yesterday", yesterday.Format(DateLayout)),
		sql.Named("today", serviceDate.Format(DateLayout)),
		sql.Named("tomorrow", tomorrow.Format(DateLayout)),
		sql.Named("yesterday_dow", int64(yesterday.Weekday())),
		sql.Named("today_dow", int64(serviceDate.Weekday())),
		sql.Named("tomorrow_dow", int64(tomorrow.Weekday())),
		sql.Named("include_tomorrow", boolToInt(includeTomorrow)),
	}
}

func (q *Queries) ListCandidateDepartures(ctx context.Context, arg ListCandidateDeparturesParams) ([]CandidateDepartureRow, error) {
	query := listCandidateDeparturesByID
	origin, destination := arg.Origin, arg.Destination
	args := dayParams(arg.ServiceDate, arg.IncludeTomorrow)
	if arg.MatchByName {
		query = listCandidateDeparturesByName
		origin, destination = LikePrefix(origin), LikePrefix(destination)
		args = append(args, sql.Named("route_type", arg.RouteType))
	}
	args = append(args, sql.Named("origin", origin), sql.Named("destination", destination))

	rows, err := q.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below
	var items []CandidateDepartureRow
	for rows.Next() {
		var i CandidateDepartureRow
		var yesterday, today, tomorrow int64
		if err := rows.Scan(
			&i.TripID,
			&i.RouteID,
			&i.TripHeadsign,
			&i.RouteShortName,
			&i.RouteLongName,
			&i.RouteType,
			&i.Origin.StopID,
			&i.Origin.StopName,
			&i.Origin.ArrivalTime,
			&i.Origin.DepartureTime,
			&i.Origin.DropOffType,
			&i.Origin.PickupType,
			&i.Origin.ShapeDistTraveled,
			&i.Origin.StopHeadsign,
			&i.Origin.StopSequence,
			&i.Origin.Timepoint,
			&i.Destination.StopID,
			&i.Destination.StopName,
			&i.Destination.ArrivalTime,
			&i.Destination.DepartureTime,
			&i.Destination.DropOffType,
			&i.Destination.PickupType,
			&i.Destination.ShapeDistTraveled,
			&i.Destination.StopHeadsign,
			&i.Destination.StopSequence,
			&i.Destination.Timepoint,
			&yesterday,
			&today,
			&tomorrow,
			&i.StartDate,
			&i.EndDate,
			&i.CalendarDate,
			&i.TodayCD,
		); err != nil {
			return nil, err
		}
		i.Yesterday, i.Today, i.Tomorrow = yesterday == 1, today == 1, tomorrow == 1
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
