package gtfsdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const nearbyColumns = `
    s.stop_id AS stop_id,
    s.stop_name,
    s.stop_lat,
    s.stop_lon,
    t.trip_id,
    t.route_id,
    t.trip_headsign,
    r.route_short_name,
    r.route_long_name,
    st.departure_time AS departure_time,`

const nearbyJoins = `
INNER JOIN stop_times st ON st.trip_id = t.trip_id
INNER JOIN stops s ON s.stop_id = st.stop_id
INNER JOIN routes r ON r.route_id = t.route_id`

// A departure is relevant when its time, shifted by -1, 0 or +1 service
// days, lands inside [@window_start, @window_end] seconds of today.
const nearbyWindow = `st.stop_id IN ({stops})
  AND (st.departure_time BETWEEN @window_start AND @window_end
    OR st.departure_time BETWEEN @window_start + 86400 AND @window_end + 86400
    OR st.departure_time BETWEEN @window_start - 86400 AND @window_end - 86400)`

var listDeparturesForStopsTemplate = `
SELECT` + nearbyColumns + `
    ` + yesterdayFlag + ` AS yesterday,
    ` + todayFlag + ` AS today,
    ` + tomorrowFlag + ` AS tomorrow,
    '' AS calendar_date,
    0 AS today_cd
FROM trips t
INNER JOIN calendar c ON c.service_id = t.service_id` + nearbyJoins + `
WHERE ` + nearbyWindow + `
  AND ` + calendarWindow + `
UNION ALL
SELECT` + nearbyColumns + `
    0 AS yesterday,
    0 AS today,
    0 AS tomorrow,
    cd.date AS calendar_date,
    cd.exception_type AS today_cd
FROM trips t
INNER JOIN calendar_dates cd ON cd.service_id = t.service_id` + nearbyJoins + `
WHERE ` + nearbyWindow + `
  AND ` + addedWindow + `
ORDER BY stop_id, departure_time
`

type ListDeparturesForStopsParams struct {
	StopIDs         []string
	ServiceDate     time.Time
	IncludeTomorrow bool
	// WindowStart and WindowEnd are seconds since midnight of ServiceDate.
	WindowStart int64
	WindowEnd   int64
}

type StopDepartureRow struct {
	StopID         string
	StopName       sql.NullString
	Lat            float64
	Lon            float64
	TripID         string
	RouteID        string
	TripHeadsign   sql.NullString
	RouteShortName sql.NullString
	RouteLongName  sql.NullString
	DepartureTime  int64
	Yesterday      bool
	Today          bool
	Tomorrow       bool
	CalendarDate   string
	TodayCD        int64
}

// ListDeparturesForStops returns rows ordered by stop id then departure time.
func (q *Queries) ListDeparturesForStops(ctx context.Context, arg ListDeparturesForStopsParams) ([]StopDepartureRow, error) {
	if len(arg.StopIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(arg.StopIDs))
	args := dayParams(arg.ServiceDate, arg.IncludeTomorrow)
	for i, id := range arg.StopIDs {
		name := fmt.Sprintf("stop%d", i)
		placeholders[i] = "@" + name
		args = append(args, sql.Named(name, id))
	}
	args = append(args,
		sql.Named("window_start", arg.WindowStart),
		sql.Named("window_end", arg.WindowEnd),
	)
	query := strings.ReplaceAll(listDeparturesForStopsTemplate, "{stops}", strings.Join(placeholders, ", "))

	rows, err := q.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below
	var items []StopDepartureRow
	for rows.Next() {
		var i StopDepartureRow
		var yesterday, today, tomorrow int64
		if err := rows.Scan(
			&i.StopID,
			&i.StopName,
			&i.Lat,
			&i.Lon,
			&i.TripID,
			&i.RouteID,
			&i.TripHeadsign,
			&i.RouteShortName,
			&i.RouteLongName,
			&i.DepartureTime,
			&yesterday,
			&today,
			&tomorrow,
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
