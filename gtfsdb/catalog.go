package gtfsdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// AnyRouteType disables the route type filter of ListRoutes.
const AnyRouteType int64 = 99

const listAgencies = `
SELECT agency_id, agency_name FROM agency ORDER BY agency_name
`

type ListAgenciesRow struct {
	ID   string `json:"agency_id"`
	Name string `json:"agency_name"`
}

func (r ListAgenciesRow) Label() string {
	return r.ID + ": " + r.Name
}

func (q *Queries) ListAgencies(ctx context.Context) ([]ListAgenciesRow, error) {
	rows, err := q.query(ctx, nil, listAgencies)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below
	var items []ListAgenciesRow
	for rows.Next() {
		var i ListAgenciesRow
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
			return nil, err
		}
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

const listRoutes = `
SELECT
    r.route_id,
    r.agency_id,
    r.route_short_name,
    r.route_long_name,
    r.route_type,
    a.agency_name
FROM routes r
LEFT JOIN agency a ON a.agency_id = r.agency_id
WHERE (@agency_id = '' OR r.agency_id = @agency_id)
  AND (@route_type = 99 OR r.route_type = @route_type)
ORDER BY a.agency_name, CAST(r.route_id AS INTEGER), r.route_id
`

// ListRoutesParams filters the route list. An AgencyID of "" or "0" and a
// RouteType of AnyRouteType match everything. The AgencyID may carry a
// ": name" suffix as produced by ListAgenciesRow.Label.
type ListRoutesParams struct {
	AgencyID  string
	RouteType int64
}

type ListRoutesRow struct {
	ID         string         `json:"route_id"`
	AgencyID   string         `json:"agency_id"`
	ShortName  sql.NullString `json:"-"`
	LongName   sql.NullString `json:"-"`
	Type       int64          `json:"route_type"`
	AgencyName sql.NullString `json:"-"`
}

func (r ListRoutesRow) Label() string {
	return fmt.Sprintf("%s: %s (%s) - %s", r.ID, r.ShortName.String, r.LongName.String, r.AgencyName.String)
}

func (q *Queries) ListRoutes(ctx context.Context, arg ListRoutesParams) ([]ListRoutesRow, error) {
	agency, _, _ := strings.Cut(arg.AgencyID, ": ")
	if agency == "0" {
		agency = ""
	}
	rows, err := q.query(ctx, nil, listRoutes,
		sql.Named("agency_id", agency),
		sql.Named("route_type", arg.RouteType),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below
	var items []ListRoutesRow
	for rows.Next() {
		var i ListRoutesRow
		if err := rows.Scan(&i.ID, &i.AgencyID, &i.ShortName, &i.LongName, &i.Type, &i.AgencyName); err != nil {
			return nil, err
		}
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

const listStopsForRoute = `
SELECT s.stop_id, s.stop_name, MIN(st.stop_sequence) AS first_sequence
FROM trips t
INNER JOIN stop_times st ON st.trip_id = t.trip_id
INNER JOIN stops s ON s.stop_id = st.stop_id
WHERE t.route_id = @route_id
  AND (t.direction_id = @direction OR t.direction_id IS NULL)
GROUP BY s.stop_id, s.stop_name
ORDER BY first_sequence, s.stop_id
`

type ListStopsForRouteParams struct {
	RouteID   string
	Direction int64
}

type ListStopsForRouteRow struct {
	ID            string         `json:"stop_id"`
	Name          sql.NullString `json:"-"`
	FirstSequence int64          `json:"first_sequence"`
}

// Label is the "id: name" form accepted as an origin or destination.
func (r ListStopsForRouteRow) Label() string {
	return r.ID + ": " + r.Name.String
}

func (q *Queries) ListStopsForRoute(ctx context.Context, arg ListStopsForRouteParams) ([]ListStopsForRouteRow, error) {
	rows, err := q.query(ctx, nil, listStopsForRoute,
		sql.Named("route_id", arg.RouteID),
		sql.Named("direction", arg.Direction),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below
	var items []ListStopsForRouteRow
	for rows.Next() {
		var i ListStopsForRouteRow
		if err := rows.Scan(&i.ID, &i.Name, &i.FirstSequence); err != nil {
			return nil, err
		}
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

const listAllStops = `
SELECT stop_id, stop_name, stop_lat, stop_lon FROM stops ORDER BY stop_id
`

type ListAllStopsRow struct {
	ID   string
	Name sql.NullString
	Lat  float64
	Lon  float64
}

func (q *Queries) ListAllStops(ctx context.Context) ([]ListAllStopsRow, error) {
	rows, err := q.query(ctx, nil, listAllStops)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below
	var items []ListAllStopsRow
	for rows.Next() {
		var i ListAllStopsRow
		if err := rows.Scan(&i.ID, &i.Name, &i.Lat, &i.Lon); err != nil {
			return nil, err
		}
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

const getShapePointsForTrip = `
SELECT s.shape_pt_lat, s.shape_pt_lon, s.shape_pt_sequence, s.shape_dist_traveled
FROM trips t
INNER JOIN shapes s ON s.shape_id = t.shape_id
WHERE t.trip_id = ?
ORDER BY s.shape_pt_sequence
`

func (q *Queries) GetShapePointsForTrip(ctx context.Context, tripID string) ([]Shape, error) {
	rows, err := q.query(ctx, nil, getShapePointsForTrip, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below
	var items []Shape
	for rows.Next() {
		i := Shape{}
		if err := rows.Scan(&i.Lat, &i.Lon, &i.ShapePtSequence, &i.ShapeDistTraveled); err != nil {
			return nil, err
		}
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

const getTrip = `
SELECT trip_id, route_id, service_id, trip_headsign, trip_short_name, direction_id,
       block_id, shape_id, wheelchair_accessible, bikes_allowed
FROM trips WHERE trip_id = ?
`

func (q *Queries) GetTrip(ctx context.Context, tripID string) (Trip, error) {
	row := q.queryRow(ctx, nil, getTrip, tripID)
	var i Trip
	err := row.Scan(&i.ID, &i.RouteID, &i.ServiceID, &i.TripHeadsign, &i.TripShortName,
		&i.DirectionID, &i.BlockID, &i.ShapeID, &i.WheelchairAccessible, &i.BikesAllowed)
	return i, err
}

const countStopsByID = `SELECT COUNT(*) FROM stops WHERE stop_id = ?`

const countStopsByNamePrefix = `SELECT COUNT(*) FROM stops WHERE stop_name LIKE ? ESCAPE '\'`

// CountMatchingStops counts the stops an origin or destination selects:
// a stop_name prefix when byName is set, otherwise an exact stop_id.
func (q *Queries) CountMatchingStops(ctx context.Context, value string, byName bool) (int64, error) {
	var row *sql.Row
	if byName {
		row = q.queryRow(ctx, nil, countStopsByNamePrefix, LikePrefix(value))
	} else {
		row = q.queryRow(ctx, nil, countStopsByID, value)
	}
	var n int64
	err := row.Scan(&n)
	return n, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePrefix turns free text into a LIKE prefix pattern with wildcards escaped.
func LikePrefix(s string) string {
	return likeEscaper.Replace(s) + "%"
}
