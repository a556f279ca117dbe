package datasource

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"departureboard.app/internal/appconf"
	"departureboard.app/internal/metrics"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zipNames(t *testing.T, b []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func sampleFeed() map[string]string {
	return map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"A1,Metro,https://metro.example,Europe/Amsterdam\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"R1,A1,5,Centraal - Zuid,3\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"S1,Central Station,52.378,4.9\n" +
			"S2,Museum,52.36,4.885\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"WEEK,1,1,1,1,1,0,0,20240101,20241231\n",
		"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id,shape_id\n" +
			"R1,WEEK,T1,Museum,0,SH1\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"T1,08:00:00,08:00:00,S1,1\n" +
			"T1,08:10:00,08:10:00,S2,2\n",
		"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
			"SH1,52.378,4.9,1\n" +
			"SH1,52.36,4.885,2\n",
	}
}

// newTestManager uses file databases, which the test environment forbids,
// so it runs as development.
func newTestManager(t *testing.T, dir string, sources ...appconf.DatasourceConfig) (*Manager, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	t.Cleanup(m.Shutdown)
	mgr, err := NewManager(Config{
		Dir:     dir,
		Env:     appconf.Development,
		Sources: sources,
		Metrics: m,
		Retry:   RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, m
}

func writeZip(t *testing.T, dir, name string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".zip"), buildZip(t, files), 0o644))
}
