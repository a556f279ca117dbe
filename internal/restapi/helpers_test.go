package restapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"departureboard.app/internal/app"
	"departureboard.app/internal/appconf"
	"departureboard.app/internal/clock"
	"departureboard.app/internal/datasource"
	"departureboard.app/internal/metrics"
	"departureboard.app/internal/models"
	"departureboard.app/internal/realtime"
)

const testDatasource = "ov"

// testNow is a Friday inside the service window of testFeed.
var testNow = time.Date(2024, 3, 1, 7, 30, 0, 0, time.UTC)

func testFeed() map[string]string {
	return map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"A1,Metro,https://metro.example,UTC\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"R1,A1,5,Centraal - Zuid,3\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"S1,Central Station,52.378,4.9\n" +
			"S2,Museum,52.36,4.885\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"WEEK,1,1,1,1,1,0,0,20240101,20241231\n",
		"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id,shape_id\n" +
			"R1,WEEK,T1,Museum,0,SH1\n" +
			"R1,WEEK,T2,Museum,0,\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"T1,08:00:00,08:00:00,S1,1\n" +
			"T1,08:10:00,08:10:00,S2,2\n" +
			"T2,09:00:00,09:00:00,S1,1\n" +
			"T2,09:10:00,09:10:00,S2,2\n",
		"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
			"SH1,52.378,4.9,1\n" +
			"SH1,52.36,4.885,2\n",
	}
}

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

// createTestApi serves testFeed as the "ov" datasource with the key TEST.
// Datasources live in file databases, which the test environment forbids,
// so the application runs as development.
func createTestApi(t *testing.T, mutate ...func(*appconf.Config)) *RestAPI {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, testDatasource+".zip"), buildZip(t, testFeed()), 0o644))

	cfg := appconf.Default()
	cfg.Env = appconf.Development
	cfg.ApiKeys = []string{"TEST"}
	cfg.DataDir = dir
	cfg.OutputDir = t.TempDir()
	cfg.Datasources = []appconf.DatasourceConfig{{Name: testDatasource, ExtractFrom: "zip"}}
	cfg.Realtime = []appconf.RealtimeTarget{{
		Name:       "bus_5",
		Datasource: testDatasource,
		RouteID:    "R1",
		StopID:     "S1",
		Direction:  "0",
	}}
	for _, m := range mutate {
		m(&cfg)
	}

	m := metrics.New()
	t.Cleanup(m.Shutdown)

	mgr, err := datasource.NewManager(datasource.Config{
		Dir:     dir,
		Env:     cfg.Env,
		Sources: cfg.Datasources,
		Metrics: m,
		Retry:   datasource.RetryPolicy{MaxRetries: 1, InitialInterval: time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, mgr.Import(context.Background(), cfg.Datasources[0]))

	names := make([]string, 0, len(cfg.Realtime))
	for _, target := range cfg.Realtime {
		names = append(names, target.Name)
	}

	api := NewRestAPI(&app.Application{
		Config:      cfg,
		Clock:       clock.NewMockClock(testNow),
		Location:    time.UTC,
		Metrics:     m,
		Datasources: mgr,
		Realtime:    realtime.NewStore(names),
	})
	t.Cleanup(api.Shutdown)
	return api
}

// serveApi runs one request through the full route table.
func serveApi(t *testing.T, api *RestAPI, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	api.SetRoutes(mux)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

// decodeResponse decodes the envelope with its data left as raw JSON.
func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) (models.ResponseModel, json.RawMessage) {
	t.Helper()
	var envelope struct {
		models.ResponseModel
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope), rr.Body.String())
	return envelope.ResponseModel, envelope.Data
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, v any) models.ResponseModel {
	t.Helper()
	resp, data := decodeResponse(t, rr)
	require.NoError(t, json.Unmarshal(data, v), string(data))
	return resp
}

func serveHandler(h http.Handler) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	return rr
}
