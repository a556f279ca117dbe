package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"departureboard.app/internal/appconf"
)

func waitResult(t *testing.T, done <-chan Result) Result {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(30 * time.Second):
		t.Fatal("ingestion did not finish")
		return Result{}
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "extracting", Extracting.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "failed", Failed.String())
}

func TestRefreshFromZip(t *testing.T) {
	dir := t.TempDir()
	src := appconf.DatasourceConfig{Name: "ov", ExtractFrom: "zip"}
	writeZip(t, dir, "ov", sampleFeed())
	mgr, m := newTestManager(t, dir, src)

	done, err := mgr.Refresh(context.Background(), src)
	require.NoError(t, err)
	res := waitResult(t, done)
	require.NoError(t, res.Err)
	assert.Equal(t, Ready, res.Status)
	assert.Equal(t, "ov", res.Name)

	_, ok := <-done
	assert.False(t, ok, "exactly one result is delivered")

	assert.False(t, mgr.Extracting("ov"))
	assert.NoFileExists(t, filepath.Join(dir, "ov.extracting"))
	assert.FileExists(t, filepath.Join(dir, "ov.sqlite"))
	assert.NoFileExists(t, filepath.Join(dir, "ov.sqlite.tmp"))
	assert.True(t, mgr.AnyReady())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DatasourceStatus.WithLabelValues("ov")))

	names, err := mgr.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"ov"}, names)

	h, err := mgr.Handle("ov")
	require.NoError(t, err)
	assert.Equal(t, 2, h.Stops.Len())
	agencies, err := h.Queries.ListAgencies(context.Background())
	require.NoError(t, err)
	require.Len(t, agencies, 1)
	assert.Equal(t, "Metro", agencies[0].Name)
	assert.False(t, h.Extracting())
}

func TestRefreshByName(t *testing.T) {
	mgr, _ := newTestManager(t, t.TempDir())
	_, err := mgr.RefreshByName(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownDatasource)
}

func TestRefreshMissingZip(t *testing.T) {
	mgr, _ := newTestManager(t, t.TempDir())
	_, err := mgr.Refresh(context.Background(), appconf.DatasourceConfig{Name: "ov", ExtractFrom: "zip"})
	assert.ErrorIs(t, err, ErrNoZipFile)
	assert.False(t, mgr.Extracting("ov"))
}

func TestRefreshRejectsPathNames(t *testing.T) {
	mgr, _ := newTestManager(t, t.TempDir())
	_, err := mgr.Refresh(context.Background(), appconf.DatasourceConfig{Name: "../ov", ExtractFrom: "zip"})
	assert.ErrorIs(t, err, ErrUnknownDatasource)
}

func TestRefreshWhileExtracting(t *testing.T) {
	feed := buildZip(t, sampleFeed())
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write(feed)
	}))
	defer server.Close()

	dir := t.TempDir()
	src := appconf.DatasourceConfig{Name: "ov", ExtractFrom: "url", URL: server.URL}
	mgr, _ := newTestManager(t, dir, src)

	done, err := mgr.Refresh(context.Background(), src)
	require.NoError(t, err)

	assert.True(t, mgr.Extracting("ov"))
	assert.Equal(t, Extracting, mgr.Status("ov"))
	assert.FileExists(t, filepath.Join(dir, "ov.extracting"))

	_, err = mgr.Refresh(context.Background(), src)
	assert.ErrorIs(t, err, ErrExtracting)

	_, err = mgr.Handle("ov")
	assert.ErrorIs(t, err, ErrExtracting)
	assert.ErrorIs(t, mgr.Remove("ov"), ErrExtracting)

	close(release)
	res := waitResult(t, done)
	require.NoError(t, res.Err)
	assert.Equal(t, Ready, mgr.Status("ov"))
	assert.FileExists(t, filepath.Join(dir, "ov.zip"))
}

func TestRefreshFromURLFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	src := appconf.DatasourceConfig{Name: "ov", ExtractFrom: "url", URL: server.URL}
	mgr, _ := newTestManager(t, t.TempDir(), src)

	done, err := mgr.Refresh(context.Background(), src)
	require.NoError(t, err)
	res := waitResult(t, done)
	assert.ErrorIs(t, res.Err, ErrNoDataFile)
	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, Failed, mgr.Status("ov"))
	assert.False(t, mgr.AnyReady())

	_, err = mgr.Handle("ov")
	assert.ErrorIs(t, err, ErrNoDataFile)

	summaries, err := mgr.Summaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, Failed, summaries[0].Status)
	assert.NotEmpty(t, summaries[0].Error)
}

func TestFailedRefreshKeepsServingPreviousDatabase(t *testing.T) {
	var fail atomic.Bool
	feed := buildZip(t, sampleFeed())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = w.Write(feed)
	}))
	defer server.Close()

	src := appconf.DatasourceConfig{Name: "ov", ExtractFrom: "url", URL: server.URL}
	mgr, _ := newTestManager(t, t.TempDir(), src)
	require.NoError(t, mgr.Import(context.Background(), src))

	fail.Store(true)
	err := mgr.Import(context.Background(), src)
	assert.ErrorIs(t, err, ErrNoDataFile)

	assert.Equal(t, Ready, mgr.Status("ov"))
	_, err = mgr.Handle("ov")
	assert.NoError(t, err)
}

func renamedAgencyFeed() map[string]string {
	feed := sampleFeed()
	feed["agency.txt"] = "agency_id,agency_name,agency_url,agency_timezone\n" +
		"A1,Metro Two,https://metro.example,Europe/Amsterdam\n"
	return feed
}

func TestRefreshKeepsEarlierHandlesQueryable(t *testing.T) {
	dir := t.TempDir()
	src := appconf.DatasourceConfig{Name: "ov", ExtractFrom: "zip"}
	writeZip(t, dir, "ov", sampleFeed())
	mgr, _ := newTestManager(t, dir, src)
	require.NoError(t, mgr.Import(context.Background(), src))

	before, err := mgr.Handle("ov")
	require.NoError(t, err)

	writeZip(t, dir, "ov", renamedAgencyFeed())
	done, err := mgr.Refresh(context.Background(), src)
	require.NoError(t, err)
	require.NoError(t, waitResult(t, done).Err)

	agencies, err := before.Queries.ListAgencies(context.Background())
	require.NoError(t, err, "a handle taken before the refresh still answers")
	assert.Len(t, agencies, 1)

	after, err := mgr.Handle("ov")
	require.NoError(t, err)
	agencies, err = after.Queries.ListAgencies(context.Background())
	require.NoError(t, err)
	require.Len(t, agencies, 1)
	assert.Equal(t, "Metro Two", agencies[0].Name)
	assert.FileExists(t, filepath.Join(dir, "ov.sqlite"))
}

func TestReplacedDatabaseClosesAfterRetireInterval(t *testing.T) {
	dir := t.TempDir()
	src := appconf.DatasourceConfig{Name: "ov", ExtractFrom: "zip"}
	writeZip(t, dir, "ov", sampleFeed())
	mgr, err := NewManager(Config{
		Dir:         dir,
		Env:         appconf.Development,
		Sources:     []appconf.DatasourceConfig{src},
		RetireAfter: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, mgr.Import(context.Background(), src))

	before, err := mgr.Handle("ov")
	require.NoError(t, err)
	require.NoError(t, mgr.Import(context.Background(), src))

	assert.Eventually(t, func() bool {
		_, err := before.Queries.ListAgencies(context.Background())
		return err != nil
	}, 5*time.Second, 10*time.Millisecond)

	current, err := mgr.Handle("ov")
	require.NoError(t, err)
	_, err = current.Queries.ListAgencies(context.Background())
	assert.NoError(t, err)
}

func TestCloseClosesRetiredDatabases(t *testing.T) {
	dir := t.TempDir()
	src := appconf.DatasourceConfig{Name: "ov", ExtractFrom: "zip"}
	writeZip(t, dir, "ov", sampleFeed())
	mgr, _ := newTestManager(t, dir, src)
	require.NoError(t, mgr.Import(context.Background(), src))

	before, err := mgr.Handle("ov")
	require.NoError(t, err)
	require.NoError(t, mgr.Import(context.Background(), src))
	require.NoError(t, mgr.Close())

	_, err = before.Queries.ListAgencies(context.Background())
	assert.Error(t, err)
	assert.Empty(t, mgr.retired)
}

func TestRefreshRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	feed := buildZip(t, sampleFeed())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "token", r.Header.Get("Authorization"))
		_, _ = w.Write(feed)
	}))
	defer server.Close()

	src := appconf.DatasourceConfig{
		Name:        "ov",
		ExtractFrom: "url",
		URL:         server.URL,
		Headers:     map[string]string{"Authorization": "token"},
	}
	mgr, _ := newTestManager(t, t.TempDir(), src)

	require.NoError(t, mgr.Import(context.Background(), src))
	assert.Equal(t, int32(2), hits.Load())
}

func TestRefreshStripsShapes(t *testing.T) {
	dir := t.TempDir()
	src := appconf.DatasourceConfig{Name: "ov", ExtractFrom: "zip", StripShapes: true}
	writeZip(t, dir, "ov", sampleFeed())
	mgr, _ := newTestManager(t, dir, src)

	require.NoError(t, mgr.Import(context.Background(), src))

	b, err := os.ReadFile(filepath.Join(dir, "ov.zip"))
	require.NoError(t, err)
	assert.NotContains(t, zipNames(t, b), "shapes.txt")
	assert.Contains(t, zipNames(t, b), "stops.txt")

	h, err := mgr.Handle("ov")
	require.NoError(t, err)
	points, err := h.Queries.GetShapePointsForTrip(context.Background(), "T1")
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestOpenExisting(t *testing.T) {
	dir := t.TempDir()
	src := appconf.DatasourceConfig{Name: "ov", ExtractFrom: "zip"}
	writeZip(t, dir, "ov", sampleFeed())

	first, _ := newTestManager(t, dir, src)
	require.NoError(t, first.Import(context.Background(), src))
	require.NoError(t, first.Close())

	second, _ := newTestManager(t, dir)
	assert.False(t, second.AnyReady())
	assert.Equal(t, []string{"ov"}, second.OpenAll(context.Background()))
	assert.True(t, second.AnyReady())

	h, err := second.Handle("ov")
	require.NoError(t, err)
	assert.Equal(t, 2, h.Stops.Len())
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	mgr, _ := newTestManager(t, dir)

	assert.ErrorIs(t, mgr.Open(context.Background(), "ov"), ErrNoDataFile)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ov.extracting"), nil, 0o644))
	assert.ErrorIs(t, mgr.Open(context.Background(), "ov"), ErrExtracting)
	assert.True(t, mgr.Extracting("ov"))
}

func TestHandleUnknown(t *testing.T) {
	mgr, _ := newTestManager(t, t.TempDir())
	_, err := mgr.Handle("nope")
	assert.ErrorIs(t, err, ErrUnknownDatasource)
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	src := appconf.DatasourceConfig{Name: "ov", ExtractFrom: "zip"}
	writeZip(t, dir, "ov", sampleFeed())
	mgr, _ := newTestManager(t, dir)
	require.NoError(t, mgr.Import(context.Background(), src))

	require.NoError(t, mgr.Remove("ov"))
	assert.NoFileExists(t, filepath.Join(dir, "ov.zip"))
	assert.NoFileExists(t, filepath.Join(dir, "ov.sqlite"))
	assert.False(t, mgr.AnyReady())

	names, err := mgr.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = mgr.Handle("ov")
	assert.ErrorIs(t, err, ErrUnknownDatasource)
	assert.ErrorIs(t, mgr.Remove("ov"), ErrUnknownDatasource)
}

func TestSummariesIncludeConfiguredSources(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, dir, "ov", sampleFeed())
	ov := appconf.DatasourceConfig{Name: "ov", ExtractFrom: "zip"}
	rail := appconf.DatasourceConfig{Name: "rail", ExtractFrom: "url", URL: "https://example.com/rail.zip"}
	mgr, _ := newTestManager(t, dir, ov, rail)
	require.NoError(t, mgr.Import(context.Background(), ov))

	summaries, err := mgr.Summaries()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "ov", summaries[0].Name)
	assert.Equal(t, Ready, summaries[0].Status)
	assert.NotNil(t, summaries[0].UpdatedAt)
	assert.Equal(t, "rail", summaries[1].Name)
	assert.Equal(t, Idle, summaries[1].Status)
	assert.Equal(t, "url", summaries[1].ExtractFrom)
}

func TestDownloadRealtimeSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("raw feed"))
	}))
	defer server.Close()

	dir := t.TempDir()
	mgr, _ := newTestManager(t, dir)

	path, err := mgr.DownloadRealtimeSnapshot(context.Background(), server.URL+"/feed", "bus_5", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bus_5_rt.trip"), path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "raw feed", string(b))

	_, err = mgr.DownloadRealtimeSnapshot(context.Background(), server.URL+"/missing", "bus_5", nil)
	assert.ErrorIs(t, err, ErrNoDataFile)
}
