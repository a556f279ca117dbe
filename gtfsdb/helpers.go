package gtfsdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/OneBusAway/go-gtfs"
	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"departureboard.app/internal/appconf"
	"departureboard.app/internal/logging"
)

//go:embed schema.sql
var ddl string

// createDB opens the sqlite database and migrates it to the embedded schema.
func createDB(config Config) (*sql.DB, error) {
	if config.Env == appconf.Test && config.DBPath != ":memory:" {
		return nil, fmt.Errorf("test database must use in-memory storage, got path: %s", config.DBPath)
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, err
	}

	configureConnectionPool(db, config)

	ctx := context.Background()
	if err := configureSQLitePerformance(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error configuring SQLite performance: %w", err)
	}
	if err := performDatabaseMigration(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}
	return db, nil
}

func performDatabaseMigration(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(ddl, "-- migrate") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", stmt, err)
		}
	}
	return nil
}

func (c *Client) processAndStoreGTFSDataWithSource(ctx context.Context, b []byte, source string) error {
	logger := slog.Default().With(slog.String("component", "gtfs_importer"))

	startTime := time.Now()
	defer func() {
		c.importRuntime = time.Since(startTime)
		logging.LogOperation(logger, "gtfs_data_import_completed",
			slog.Duration("duration", c.importRuntime),
			slog.String("source", source))
	}()

	hash := sha256.Sum256(b)
	hashStr := hex.EncodeToString(hash[:])

	existing, err := c.Queries.GetImportMetadata(ctx)
	switch {
	case err == nil:
		if existing.FileHash == hashStr && existing.FileSource == source {
			logging.LogOperation(logger, "gtfs_data_unchanged_skipping_import",
				slog.String("hash", hashStr[:8]))
			return nil
		}
		logging.LogOperation(logger, "gtfs_data_changed_reimporting",
			slog.String("old_hash", shortHash(existing.FileHash)),
			slog.String("new_hash", hashStr[:8]))
		if err := c.clearAllGTFSData(ctx); err != nil {
			return fmt.Errorf("error clearing existing GTFS data: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		// first import
	default:
		return fmt.Errorf("error checking import metadata: %w", err)
	}

	staticData, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return fmt.Errorf("unable to parse GTFS static data: %w", err)
	}

	logging.LogOperation(logger, "static_data_parsed",
		slog.Int("warnings", len(staticData.Warnings)),
		slog.Int("agencies", len(staticData.Agencies)),
		slog.Int("routes", len(staticData.Routes)),
		slog.Int("stops", len(staticData.Stops)),
		slog.Int("trips", len(staticData.Trips)),
		slog.Int("services", len(staticData.Services)),
		slog.Int("shapes", len(staticData.Shapes)))

	if err := c.insertAgenciesAndRoutes(ctx, staticData); err != nil {
		return err
	}
	if err := c.insertStops(ctx, staticData); err != nil {
		return fmt.Errorf("unable to create stops: %w", err)
	}
	if err := c.insertServices(ctx, staticData); err != nil {
		return err
	}
	if err := c.insertTrips(ctx, staticData); err != nil {
		return fmt.Errorf("unable to create trips: %w", err)
	}
	if err := c.bulkInsertStopTimes(ctx, stopTimeParams(staticData)); err != nil {
		return fmt.Errorf("unable to create stop times: %w", err)
	}
	if err := c.bulkInsertShapes(ctx, shapeParams(staticData)); err != nil {
		return fmt.Errorf("unable to create shapes: %w", err)
	}

	counts, err := c.TableCounts()
	if err != nil {
		logging.LogError(logger, "Error getting table counts", err)
		return fmt.Errorf("failed to get table counts: %w", err)
	}
	attrs := make([]slog.Attr, 0, len(counts))
	for _, table := range sortedKeys(counts) {
		attrs = append(attrs, slog.Int(table, counts[table]))
	}
	logging.LogOperation(logger, "table_counts", attrs...)

	err = c.Queries.UpsertImportMetadata(ctx, UpsertImportMetadataParams{
		FileHash:   hashStr,
		ImportTime: time.Now().Unix(),
		FileSource: source,
	})
	if err != nil {
		logging.LogError(logger, "Error updating import metadata", err)
		return fmt.Errorf("error updating import metadata: %w", err)
	}
	logging.LogOperation(logger, "import_metadata_updated",
		slog.String("hash", hashStr[:8]),
		slog.String("source", source))

	return nil
}

func (c *Client) insertAgenciesAndRoutes(ctx context.Context, staticData *gtfs.Static) error {
	logger := slog.Default().With(slog.String("component", "gtfs_importer"))

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "insert_agencies_and_routes")
	qtx := c.Queries.WithTx(tx)

	for _, a := range staticData.Agencies {
		err := qtx.CreateAgency(ctx, CreateAgencyParams{
			ID:       a.Id,
			Name:     a.Name,
			Url:      a.Url,
			Timezone: a.Timezone,
			Lang:     toNullString(a.Language),
			Phone:    toNullString(a.Phone),
			FareUrl:  toNullString(a.FareUrl),
			Email:    toNullString(a.Email),
		})
		if err != nil {
			return fmt.Errorf("unable to create agency: %w", err)
		}
	}

	// routes.txt may omit agency_id when the feed has a single agency
	singleAgencyID := ""
	if len(staticData.Agencies) == 1 {
		singleAgencyID = staticData.Agencies[0].Id
	}

	for _, r := range staticData.Routes {
		err := qtx.CreateRoute(ctx, CreateRouteParams{
			ID:                r.Id,
			AgencyID:          pickFirstAvailable(r.Agency.Id, singleAgencyID),
			ShortName:         toNullString(r.ShortName),
			LongName:          toNullString(r.LongName),
			Desc:              toNullString(r.Description),
			Type:              int64(r.Type),
			Url:               toNullString(r.Url),
			Color:             toNullString(r.Color),
			TextColor:         toNullString(r.TextColor),
			ContinuousPickup:  toNullInt64(int64(r.ContinuousPickup)),
			ContinuousDropOff: toNullInt64(int64(r.ContinuousDropOff)),
		})
		if err != nil {
			return fmt.Errorf("unable to create route: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.LogOperation(logger, "agencies_and_routes_inserted",
		slog.Int("agencies", len(staticData.Agencies)),
		slog.Int("routes", len(staticData.Routes)))
	return nil
}

func (c *Client) insertStops(ctx context.Context, staticData *gtfs.Static) error {
	logger := slog.Default().With(slog.String("component", "bulk_insert"))

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "bulk_insert_stops")
	qtx := c.Queries.WithTx(tx)

	inserted := 0
	for _, s := range staticData.Stops {
		// Generic nodes and boarding areas may have no coordinates. They can
		// not be placed on the map or found by proximity, so they are skipped.
		if s.Latitude == nil || s.Longitude == nil {
			continue
		}
		err := qtx.CreateStop(ctx, CreateStopParams{
			ID:                 s.Id,
			Code:               toNullString(s.Code),
			Name:               toNullString(s.Name),
			Desc:               toNullString(s.Description),
			Lat:                *s.Latitude,
			Lon:                *s.Longitude,
			ZoneID:             toNullString(s.ZoneId),
			Url:                toNullString(s.Url),
			LocationType:       toNullInt64(int64(s.Type)),
			Timezone:           toNullString(s.Timezone),
			WheelchairBoarding: toNullInt64(int64(s.WheelchairBoarding)),
			PlatformCode:       toNullString(s.PlatformCode),
		})
		if err != nil {
			return err
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.LogOperation(logger, "stops_inserted",
		slog.Int("count", inserted),
		slog.Int("skipped_without_coordinates", len(staticData.Stops)-inserted))
	return nil
}

// insertServices writes calendar.txt and calendar_dates.txt. Services that
// only exist through calendar_dates have a zero StartDate and get no
// calendar row.
func (c *Client) insertServices(ctx context.Context, staticData *gtfs.Static) error {
	logger := slog.Default().With(slog.String("component", "bulk_insert"))

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "bulk_insert_services")
	qtx := c.Queries.WithTx(tx)

	calendars, exceptions := 0, 0
	for _, s := range staticData.Services {
		if !s.StartDate.IsZero() {
			err := qtx.CreateCalendar(ctx, CreateCalendarParams{
				ID:        s.Id,
				Monday:    boolToInt(s.Monday),
				Tuesday:   boolToInt(s.Tuesday),
				Wednesday: boolToInt(s.Wednesday),
				Thursday:  boolToInt(s.Thursday),
				Friday:    boolToInt(s.Friday),
				Saturday:  boolToInt(s.Saturday),
				Sunday:    boolToInt(s.Sunday),
				StartDate: s.StartDate.Format(DateLayout),
				EndDate:   s.EndDate.Format(DateLayout),
			})
			if err != nil {
				return fmt.Errorf("unable to create calendar: %w", err)
			}
			calendars++
		}

		for _, date := range s.AddedDates {
			if err := qtx.CreateCalendarDate(ctx, CreateCalendarDateParams{
				ServiceID:     s.Id,
				Date:          date.Format(DateLayout),
				ExceptionType: ExceptionAdded,
			}); err != nil {
				return fmt.Errorf("unable to create calendar date: %w", err)
			}
			exceptions++
		}
		for _, date := range s.RemovedDates {
			if err := qtx.CreateCalendarDate(ctx, CreateCalendarDateParams{
				ServiceID:     s.Id,
				Date:          date.Format(DateLayout),
				ExceptionType: ExceptionRemoved,
			}); err != nil {
				return fmt.Errorf("unable to create calendar date: %w", err)
			}
			exceptions++
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.LogOperation(logger, "services_inserted",
		slog.Int("calendar", calendars),
		slog.Int("calendar_dates", exceptions))
	return nil
}

func (c *Client) insertTrips(ctx context.Context, staticData *gtfs.Static) error {
	logger := slog.Default().With(slog.String("component", "bulk_insert"))

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "bulk_insert_trips")
	qtx := c.Queries.WithTx(tx)

	for _, t := range staticData.Trips {
		var shapeID string
		if t.Shape != nil {
			shapeID = t.Shape.ID
		}
		err := qtx.CreateTrip(ctx, CreateTripParams{
			ID:                   t.ID,
			RouteID:              t.Route.Id,
			ServiceID:            t.Service.Id,
			TripHeadsign:         toNullString(t.Headsign),
			TripShortName:        toNullString(t.ShortName),
			DirectionID:          directionToNullInt64(uint8(t.DirectionId)),
			BlockID:              toNullString(t.BlockID),
			ShapeID:              toNullString(shapeID),
			WheelchairAccessible: toNullInt64(int64(t.WheelchairAccessible)),
			BikesAllowed:         toNullInt64(int64(t.BikesAllowed)),
		})
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.LogOperation(logger, "trips_inserted", slog.Int("count", len(staticData.Trips)))
	return nil
}

func stopTimeParams(staticData *gtfs.Static) []CreateStopTimeParams {
	var params []CreateStopTimeParams
	for _, t := range staticData.Trips {
		for _, st := range t.StopTimes {
			var shapeDist float64
			if st.ShapeDistanceTraveled != nil {
				shapeDist = *st.ShapeDistanceTraveled
			}
			params = append(params, CreateStopTimeParams{
				TripID:            t.ID,
				ArrivalTime:       int64(st.ArrivalTime / time.Second),
				DepartureTime:     int64(st.DepartureTime / time.Second),
				StopID:            st.Stop.Id,
				StopSequence:      int64(st.StopSequence),
				StopHeadsign:      toNullString(st.Headsign),
				PickupType:        toNullInt64(int64(st.PickupType)),
				DropOffType:       toNullInt64(int64(st.DropOffType)),
				ShapeDistTraveled: toNullFloat64(shapeDist),
				Timepoint:         sql.NullInt64{Int64: boolToInt(st.ExactTimes), Valid: true},
			})
		}
	}
	return params
}

func shapeParams(staticData *gtfs.Static) []CreateShapeParams {
	var params []CreateShapeParams
	for _, s := range staticData.Shapes {
		for idx, pt := range s.Points {
			var distance float64
			if pt.Distance != nil {
				distance = *pt.Distance
			}
			params = append(params, CreateShapeParams{
				ShapeID:           s.ID,
				Lat:               pt.Latitude,
				Lon:               pt.Longitude,
				ShapePtSequence:   int64(idx),
				ShapeDistTraveled: toNullFloat64(distance),
			})
		}
	}
	return params
}

// clearAllGTFSData deletes children before parents.
func (c *Client) clearAllGTFSData(ctx context.Context) error {
	steps := []struct {
		table string
		clear func(context.Context) error
	}{
		{"stop_times", c.Queries.ClearStopTimes},
		{"shapes", c.Queries.ClearShapes},
		{"trips", c.Queries.ClearTrips},
		{"calendar_dates", c.Queries.ClearCalendarDates},
		{"calendar", c.Queries.ClearCalendar},
		{"stops", c.Queries.ClearStops},
		{"routes", c.Queries.ClearRoutes},
		{"agency", c.Queries.ClearAgencies},
	}
	for _, step := range steps {
		if err := step.clear(ctx); err != nil {
			return fmt.Errorf("error clearing %s: %w", step.table, err)
		}
	}
	return nil
}

const (
	// DateLayout is the GTFS YYYYMMDD date format used by calendar and calendar_dates.
	DateLayout = "20060102"

	ExceptionAdded   int64 = 1
	ExceptionRemoved int64 = 2
)

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func toNullInt64(i int64) sql.NullInt64 {
	if i != 0 {
		return sql.NullInt64{Int64: i, Valid: true}
	}
	return sql.NullInt64{}
}

// directionToNullInt64 maps the parser's direction enum (0 unspecified,
// 1 true, 2 false) back onto the GTFS direction_id column.
func directionToNullInt64(d uint8) sql.NullInt64 {
	switch d {
	case 1:
		return sql.NullInt64{Int64: 1, Valid: true}
	case 2:
		return sql.NullInt64{Int64: 0, Valid: true}
	default:
		return sql.NullInt64{}
	}
}

func toNullFloat64(f float64) sql.NullFloat64 {
	if f != 0 {
		return sql.NullFloat64{Float64: f, Valid: true}
	}
	return sql.NullFloat64{}
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func pickFirstAvailable(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// preparedBatch is one multi-row INSERT built off the transaction goroutine.
type preparedBatch struct {
	query string
	args  []interface{}
	index int
	end   int
}

// bulkInsert prepares multi-row INSERT statements on a worker pool and
// executes them in order inside one transaction. rowArgs returns the
// placeholder values for row i, len(columns) of them.
func (c *Client) bulkInsert(ctx context.Context, table string, columns []string, n int, rowArgs func(i int) []interface{}) error {
	logger := slog.Default().With(slog.String("component", "bulk_insert"))
	if n == 0 {
		return nil
	}

	logging.LogOperation(logger, "inserting_"+table, slog.Int("count", n))

	batchSize := c.config.GetBulkInsertBatchSize()
	numBatches := (n + batchSize - 1) / batchSize
	baseQuery := "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES "
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	numWorkers := runtime.NumCPU()
	batchChan := make(chan int, numWorkers)
	resultsChan := make(chan preparedBatch, numWorkers*4)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIndex := range batchChan {
				if ctx.Err() != nil {
					return
				}
				start := batchIndex * batchSize
				end := min(start+batchSize, n)

				// values only ever travel as placeholders
				var query strings.Builder
				query.WriteString(baseQuery)
				args := make([]interface{}, 0, (end-start)*len(columns))
				for i := start; i < end; i++ {
					if i > start {
						query.WriteString(", ")
					}
					query.WriteString(rowPlaceholder)
					args = append(args, rowArgs(i)...)
				}
				resultsChan <- preparedBatch{query: query.String(), args: args, index: batchIndex, end: end}
			}
		}()
	}

	go func() {
		defer close(batchChan)
		for i := 0; i < numBatches; i++ {
			select {
			case <-ctx.Done():
				return
			case batchChan <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	batches := make([]preparedBatch, 0, numBatches)
	for batch := range resultsChan {
		batches = append(batches, batch)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].index < batches[j].index })

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "bulk_insert_"+table)

	for _, batch := range batches {
		if _, err := tx.ExecContext(ctx, batch.query, batch.args...); err != nil {
			return fmt.Errorf("failed to insert %s batch: %w", table, err)
		}
		if batch.end%100000 == 0 || batch.end == n {
			logging.LogOperation(logger, table+"_progress",
				slog.Int("inserted", batch.end),
				slog.Int("total", n))
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.LogOperation(logger, table+"_inserted", slog.Int("count", n))
	return nil
}

func (c *Client) bulkInsertStopTimes(ctx context.Context, stopTimes []CreateStopTimeParams) error {
	columns := []string{
		"trip_id", "arrival_time", "departure_time", "stop_id", "stop_sequence",
		"stop_headsign", "pickup_type", "drop_off_type", "shape_dist_traveled", "timepoint",
	}
	return c.bulkInsert(ctx, "stop_times", columns, len(stopTimes), func(i int) []interface{} {
		p := stopTimes[i]
		return []interface{}{
			p.TripID, p.ArrivalTime, p.DepartureTime, p.StopID, p.StopSequence,
			p.StopHeadsign, p.PickupType, p.DropOffType, p.ShapeDistTraveled, p.Timepoint,
		}
	})
}

func (c *Client) bulkInsertShapes(ctx context.Context, shapes []CreateShapeParams) error {
	columns := []string{"shape_id", "shape_pt_lat", "shape_pt_lon", "shape_pt_sequence", "shape_dist_traveled"}
	return c.bulkInsert(ctx, "shapes", columns, len(shapes), func(i int) []interface{} {
		p := shapes[i]
		return []interface{}{p.ShapeID, p.Lat, p.Lon, p.ShapePtSequence, p.ShapeDistTraveled}
	})
}

// configureSQLitePerformance applies the PRAGMAs used for bulk imports and reads.
func configureSQLitePerformance(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
	}
	logger := slog.Default().With(slog.String("component", "sqlite_performance"))

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			logging.LogError(logger, "Failed to apply pragma", err, slog.String("pragma", pragma))
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	logging.LogOperation(logger, "sqlite_performance_settings_applied",
		slog.Int("pragma_count", len(pragmas)))
	return nil
}

// configureConnectionPool limits :memory: databases to a single connection,
// since every connection to :memory: opens a separate empty database.
// File databases allow concurrent readers.
func configureConnectionPool(db *sql.DB, config Config) {
	if config.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}
