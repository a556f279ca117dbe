package gtfsdb

import (
	"context"
	"database/sql"
)

const createAgency = `
INSERT OR REPLACE INTO agency (
    agency_id, agency_name, agency_url, agency_timezone,
    agency_lang, agency_phone, agency_fare_url, agency_email
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateAgencyParams struct {
	ID       string
	Name     string
	Url      string
	Timezone string
	Lang     sql.NullString
	Phone    sql.NullString
	FareUrl  sql.NullString
	Email    sql.NullString
}

func (q *Queries) CreateAgency(ctx context.Context, arg CreateAgencyParams) error {
	_, err := q.exec(ctx, nil, createAgency,
		arg.ID, arg.Name, arg.Url, arg.Timezone,
		arg.Lang, arg.Phone, arg.FareUrl, arg.Email,
	)
	return err
}

const createRoute = `
INSERT OR REPLACE INTO routes (
    route_id, agency_id, route_short_name, route_long_name, route_desc, route_type,
    route_url, route_color, route_text_color, continuous_pickup, continuous_drop_off
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateRouteParams struct {
	ID                string
	AgencyID          string
	ShortName         sql.NullString
	LongName          sql.NullString
	Desc              sql.NullString
	Type              int64
	Url               sql.NullString
	Color             sql.NullString
	TextColor         sql.NullString
	ContinuousPickup  sql.NullInt64
	ContinuousDropOff sql.NullInt64
}

func (q *Queries) CreateRoute(ctx context.Context, arg CreateRouteParams) error {
	_, err := q.exec(ctx, nil, createRoute,
		arg.ID, arg.AgencyID, arg.ShortName, arg.LongName, arg.Desc, arg.Type,
		arg.Url, arg.Color, arg.TextColor, arg.ContinuousPickup, arg.ContinuousDropOff,
	)
	return err
}

const createStop = `
INSERT OR REPLACE INTO stops (
    stop_id, stop_code, stop_name, stop_desc, stop_lat, stop_lon, zone_id,
    stop_url, location_type, stop_timezone, wheelchair_boarding, platform_code
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateStopParams struct {
	ID                 string
	Code               sql.NullString
	Name               sql.NullString
	Desc               sql.NullString
	Lat                float64
	Lon                float64
	ZoneID             sql.NullString
	Url                sql.NullString
	LocationType       sql.NullInt64
	Timezone           sql.NullString
	WheelchairBoarding sql.NullInt64
	PlatformCode       sql.NullString
}

func (q *Queries) CreateStop(ctx context.Context, arg CreateStopParams) error {
	_, err := q.exec(ctx, nil, createStop,
		arg.ID, arg.Code, arg.Name, arg.Desc, arg.Lat, arg.Lon, arg.ZoneID,
		arg.Url, arg.LocationType, arg.Timezone, arg.WheelchairBoarding, arg.PlatformCode,
	)
	return err
}

const createCalendar = `
INSERT OR REPLACE INTO calendar (
    service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday,
    start_date, end_date
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateCalendarParams struct {
	ID        string
	Monday    int64
	Tuesday   int64
	Wednesday int64
	Thursday  int64
	Friday    int64
	Saturday  int64
	Sunday    int64
	StartDate string
	EndDate   string
}

func (q *Queries) CreateCalendar(ctx context.Context, arg CreateCalendarParams) error {
	_, err := q.exec(ctx, nil, createCalendar,
		arg.ID, arg.Monday, arg.Tuesday, arg.Wednesday, arg.Thursday,
		arg.Friday, arg.Saturday, arg.Sunday, arg.StartDate, arg.EndDate,
	)
	return err
}

const createCalendarDate = `
INSERT OR REPLACE INTO calendar_dates (service_id, date, exception_type) VALUES (?, ?, ?)
`

type CreateCalendarDateParams struct {
	ServiceID     string
	Date          string
	ExceptionType int64
}

func (q *Queries) CreateCalendarDate(ctx context.Context, arg CreateCalendarDateParams) error {
	_, err := q.exec(ctx, nil, createCalendarDate, arg.ServiceID, arg.Date, arg.ExceptionType)
	return err
}

const createTrip = `
INSERT OR REPLACE INTO trips (
    trip_id, route_id, service_id, trip_headsign, trip_short_name, direction_id,
    block_id, shape_id, wheelchair_accessible, bikes_allowed
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateTripParams struct {
	ID                   string
	RouteID              string
	ServiceID            string
	TripHeadsign         sql.NullString
	TripShortName        sql.NullString
	DirectionID          sql.NullInt64
	BlockID              sql.NullString
	ShapeID              sql.NullString
	WheelchairAccessible sql.NullInt64
	BikesAllowed         sql.NullInt64
}

func (q *Queries) CreateTrip(ctx context.Context, arg CreateTripParams) error {
	_, err := q.exec(ctx, nil, createTrip,
		arg.ID, arg.RouteID, arg.ServiceID, arg.TripHeadsign, arg.TripShortName,
		arg.DirectionID, arg.BlockID, arg.ShapeID, arg.WheelchairAccessible, arg.BikesAllowed,
	)
	return err
}

// CreateStopTimeParams and CreateShapeParams are only inserted through the
// multi-row batches in helpers.go.
type CreateStopTimeParams struct {
	TripID            string
	ArrivalTime       int64
	DepartureTime     int64
	StopID            string
	StopSequence      int64
	StopHeadsign      sql.NullString
	PickupType        sql.NullInt64
	DropOffType       sql.NullInt64
	ShapeDistTraveled sql.NullFloat64
	Timepoint         sql.NullInt64
}

type CreateShapeParams struct {
	ShapeID           string
	Lat               float64
	Lon               float64
	ShapePtSequence   int64
	ShapeDistTraveled sql.NullFloat64
}

const getImportMetadata = `
SELECT id, file_hash, import_time, file_source FROM import_metadata WHERE id = 1
`

func (q *Queries) GetImportMetadata(ctx context.Context) (ImportMetadatum, error) {
	row := q.queryRow(ctx, nil, getImportMetadata)
	var i ImportMetadatum
	err := row.Scan(&i.ID, &i.FileHash, &i.ImportTime, &i.FileSource)
	return i, err
}

const upsertImportMetadata = `
INSERT INTO import_metadata (id, file_hash, import_time, file_source)
VALUES (1, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    file_hash = excluded.file_hash,
    import_time = excluded.import_time,
    file_source = excluded.file_source
`

type UpsertImportMetadataParams struct {
	FileHash   string
	ImportTime int64
	FileSource string
}

func (q *Queries) UpsertImportMetadata(ctx context.Context, arg UpsertImportMetadataParams) error {
	_, err := q.exec(ctx, nil, upsertImportMetadata, arg.FileHash, arg.ImportTime, arg.FileSource)
	return err
}

const clearStopTimes = `DELETE FROM stop_times`

func (q *Queries) ClearStopTimes(ctx context.Context) error {
	_, err := q.exec(ctx, nil, clearStopTimes)
	return err
}

const clearShapes = `DELETE FROM shapes`

func (q *Queries) ClearShapes(ctx context.Context) error {
	_, err := q.exec(ctx, nil, clearShapes)
	return err
}

const clearTrips = `DELETE FROM trips`

func (q *Queries) ClearTrips(ctx context.Context) error {
	_, err := q.exec(ctx, nil, clearTrips)
	return err
}

const clearCalendarDates = `DELETE FROM calendar_dates`

func (q *Queries) ClearCalendarDates(ctx context.Context) error {
	_, err := q.exec(ctx, nil, clearCalendarDates)
	return err
}

const clearCalendar = `DELETE FROM calendar`

func (q *Queries) ClearCalendar(ctx context.Context) error {
	_, err := q.exec(ctx, nil, clearCalendar)
	return err
}

const clearStops = `DELETE FROM stops`

func (q *Queries) ClearStops(ctx context.Context) error {
	_, err := q.exec(ctx, nil, clearStops)
	return err
}

const clearRoutes = `DELETE FROM routes`

func (q *Queries) ClearRoutes(ctx context.Context) error {
	_, err := q.exec(ctx, nil, clearRoutes)
	return err
}

const clearAgencies = `DELETE FROM agency`

func (q *Queries) ClearAgencies(ctx context.Context) error {
	_, err := q.exec(ctx, nil, clearAgencies)
	return err
}
