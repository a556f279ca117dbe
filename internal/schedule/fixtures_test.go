package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"departureboard.app/gtfsdb"
	"departureboard.app/internal/appconf"
)

func newTestClient(t *testing.T) *gtfsdb.Client {
	t.Helper()
	client, err := gtfsdb.NewClient(gtfsdb.NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func utc(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

// seedNetwork loads a small network. 2024-03-01 is a Friday.
//
//	T_A      R1 WEEK  S1 08:00 -> S2 08:10 -> S3 08:20
//	T_LATE   R1 WEEK  S1 23:50 -> S2 24:10 -> S3 24:30
//	T_ADDED  R1 NONE  S1 09:00 -> S2 09:15   (added on 20240301)
//	T_RAIL   R2 WEEK  T1 10:00 -> T2 10:30
//
// WEEK is removed on 20240305.
func seedNetwork(t *testing.T, c *gtfsdb.Client) {
	t.Helper()
	_, err := c.DB.Exec(`
		INSERT INTO agency (agency_id, agency_name, agency_url, agency_timezone) VALUES
			('A1', 'Metro', 'https://metro.example', 'Europe/Amsterdam'),
			('A2', 'Rail', 'https://rail.example', 'Europe/Amsterdam');

		INSERT INTO routes (route_id, agency_id, route_short_name, route_long_name, route_type) VALUES
			('R1', 'A1', '5', 'Centraal - Zuid', 3),
			('R2', 'A2', 'IC', NULL, 2);

		INSERT INTO stops (stop_id, stop_name, stop_lat, stop_lon) VALUES
			('S1', 'Central Station', 52.3780, 4.9000),
			('S2', 'Museum', 52.3600, 4.8850),
			('S3', 'Zuid', 52.3390, 4.8730),
			('T1', 'Amsterdam Centraal', 52.3791, 4.9003),
			('T2', 'Utrecht Centraal', 52.0894, 5.1100);

		INSERT INTO calendar VALUES
			('WEEK', 1, 1, 1, 1, 1, 1, 1, '20240101', '20241231'),
			('NONE', 0, 0, 0, 0, 0, 0, 0, '20240101', '20241231');

		INSERT INTO calendar_dates VALUES
			('NONE', '20240301', 1),
			('WEEK', '20240305', 2);

		INSERT INTO trips (trip_id, route_id, service_id, trip_headsign, direction_id) VALUES
			('T_A', 'R1', 'WEEK', 'Zuid', 0),
			('T_LATE', 'R1', 'WEEK', 'Zuid', 0),
			('T_ADDED', 'R1', 'NONE', 'Museum', 1),
			('T_RAIL', 'R2', 'WEEK', 'Utrecht', NULL);

		INSERT INTO stop_times (trip_id, arrival_time, departure_time, stop_id, stop_sequence) VALUES
			('T_A', 28800, 28800, 'S1', 1),
			('T_A', 29400, 29400, 'S2', 2),
			('T_A', 30000, 30000, 'S3', 3),
			('T_LATE', 85800, 85800, 'S1', 1),
			('T_LATE', 87000, 87000, 'S2', 2),
			('T_LATE', 88200, 88200, 'S3', 3),
			('T_ADDED', 32400, 32400, 'S1', 1),
			('T_ADDED', 33300, 33300, 'S2', 2),
			('T_RAIL', 36000, 36000, 'T1', 1),
			('T_RAIL', 37800, 37800, 'T2', 2);
	`)
	require.NoError(t, err)
}

// seedSingleTrip loads one everyday trip: A 08:00 -> B 08:15.
func seedSingleTrip(t *testing.T, c *gtfsdb.Client) {
	t.Helper()
	_, err := c.DB.Exec(`
		INSERT INTO agency (agency_id, agency_name, agency_url, agency_timezone) VALUES
			('A1', 'Metro', 'https://metro.example', 'UTC');
		INSERT INTO routes (route_id, agency_id, route_short_name, route_long_name, route_type) VALUES
			('R1', 'A1', '1', 'Line one', 3);
		INSERT INTO stops (stop_id, stop_name, stop_lat, stop_lon) VALUES
			('A', 'Alpha', 10.0, 10.0),
			('B', 'Bravo', 10.1, 10.1);
		INSERT INTO calendar VALUES
			('DAILY', 1, 1, 1, 1, 1, 1, 1, '20240101', '20241231');
		INSERT INTO trips (trip_id, route_id, service_id, trip_headsign) VALUES
			('ONE', 'R1', 'DAILY', 'Bravo');
		INSERT INTO stop_times (trip_id, arrival_time, departure_time, stop_id, stop_sequence) VALUES
			('ONE', 28800, 28800, 'A', 1),
			('ONE', 29700, 29700, 'B', 2);
	`)
	require.NoError(t, err)
}
