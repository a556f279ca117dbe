package gtfsdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"departureboard.app/internal/appconf"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// seedSchedule loads a small network. 2024-03-01 is a Friday.
//
//	T_A      R1 WEEK  S1 08:00 -> S2 08:10 -> S3 08:20
//	T_LATE   R1 WEEK  S1 23:50 -> S2 24:10
//	T_ADDED  R1 NONE  S1 09:00 -> S2 09:15   (added on 20240301)
//	T_RAIL   R2 WEEK  T1 10:00 -> T2 10:30
//
// WEEK is removed on 20240305.
func seedSchedule(t *testing.T, c *Client) {
	t.Helper()
	_, err := c.DB.Exec(`
		INSERT INTO agency (agency_id, agency_name, agency_url, agency_timezone) VALUES
			('A1', 'Metro', 'https://metro.example', 'Europe/Amsterdam'),
			('A2', 'Rail', 'https://rail.example', 'Europe/Amsterdam');

		INSERT INTO routes (route_id, agency_id, route_short_name, route_long_name, route_type) VALUES
			('R1', 'A1', '5', 'Centraal - Zuid', 3),
			('10', 'A1', '10', 'Ring', 3),
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

		INSERT INTO trips (trip_id, route_id, service_id, trip_headsign, direction_id, shape_id) VALUES
			('T_A', 'R1', 'WEEK', 'Zuid', 0, 'SH1'),
			('T_LATE', 'R1', 'WEEK', 'Museum', 0, NULL),
			('T_ADDED', 'R1', 'NONE', 'Museum', 1, NULL),
			('T_RAIL', 'R2', 'WEEK', 'Utrecht', NULL, NULL);

		INSERT INTO stop_times (trip_id, arrival_time, departure_time, stop_id, stop_sequence) VALUES
			('T_A', 28800, 28800, 'S1', 1),
			('T_A', 29400, 29400, 'S2', 2),
			('T_A', 30000, 30000, 'S3', 3),
			('T_LATE', 85800, 85800, 'S1', 1),
			('T_LATE', 87000, 87000, 'S2', 2),
			('T_ADDED', 32400, 32400, 'S1', 1),
			('T_ADDED', 33300, 33300, 'S2', 2),
			('T_RAIL', 36000, 36000, 'T1', 1),
			('T_RAIL', 37800, 37800, 'T2', 2);

		INSERT INTO shapes VALUES
			('SH1', 52.3780, 4.9000, 0, NULL),
			('SH1', 52.3600, 4.8850, 1, NULL),
			('SH1', 52.3390, 4.8730, 2, NULL);
	`)
	require.NoError(t, err)
}
