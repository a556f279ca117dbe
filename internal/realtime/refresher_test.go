package realtime

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
	"google.golang.org/protobuf/proto"

	"departureboard.app/internal/appconf"
	"departureboard.app/internal/clock"
	"departureboard.app/internal/metrics"
)

func feedServer(t *testing.T, routes map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRefreshTarget(t *testing.T) {
	srv := feedServer(t, map[string][]byte{
		"/trips": marshalFeed(t,
			tripUpdateEntity("1", "T1", "5", proto.Uint32(0), stopEvent{stop: "100", arrival: epoch(60 * time.Second)}),
			tripUpdateEntity("2", "T2", "5", proto.Uint32(0), stopEvent{stop: "100", arrival: epoch(9 * time.Minute)}),
		),
		"/vehicles": marshalFeed(t, vehicleEntity("1", "T1", "5", 0, 52.1, 4.3)),
		"/alerts":   marshalFeed(t, alertEntity("1", "Diversion", InformedEntity{RouteID: "5"})),
	})

	target := appconf.RealtimeTarget{
		Name:               "bus_5",
		TripUpdateURL:      srv.URL + "/trips",
		VehiclePositionURL: srv.URL + "/vehicles",
		AlertsURL:          srv.URL + "/alerts",
		XAPIKey:            "secret",
		RouteID:            "5",
		Direction:          "0",
		StopID:             "100",
		DestinationStopID:  "200",
		Relative:           true,
	}
	outDir := t.TempDir()
	store := NewStore([]string{"bus_5"})
	m := metrics.New()
	r := NewRefresher(RefresherConfig{
		Targets:   []appconf.RealtimeTarget{target},
		Store:     store,
		Clock:     clock.NewMockClock(testNow),
		OutputDir: outDir,
		Metrics:   m,
	})

	r.RefreshAll(context.Background())

	snap := store.Get("bus_5")
	require.NotNil(t, snap)
	assert.Empty(t, snap.Errors)
	assert.Equal(t, "1", snap.Status.DueIn)
	assert.Equal(t, "08:09", snap.Status.NextUp)
	require.NotNil(t, snap.Status.Latitude)
	assert.InDelta(t, 52.1, *snap.Status.Latitude, 1e-5)
	assert.Equal(t, AlertMatch{Origin: "Diversion", Destination: "Diversion"}, snap.Alerts)
	assert.Len(t, snap.Vehicles.Features, 1)

	_, err := os.Stat(filepath.Join(outDir, "5_0.json"))
	assert.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RealtimeArrivals.WithLabelValues("bus_5")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedFetchesTotal.WithLabelValues("bus_5", FeedTripUpdates, "ok")))
}

func TestRefreshTargetDegradesOnBadFeed(t *testing.T) {
	srv := feedServer(t, map[string][]byte{"/trips": []byte("not a feed")})
	target := appconf.RealtimeTarget{
		Name:          "bus_5",
		TripUpdateURL: srv.URL + "/trips",
		RouteID:       "5",
		Direction:     "0",
		StopID:        "100",
	}
	store := NewStore([]string{"bus_5"})
	r := NewRefresher(RefresherConfig{Targets: []appconf.RealtimeTarget{target}, Store: store, Clock: clock.NewMockClock(testNow)})

	snap := r.RefreshTarget(context.Background(), target)

	require.Len(t, snap.Errors, 1)
	assert.Equal(t, NoValue, snap.Status.DueIn)
	assert.Same(t, snap, store.Get("bus_5"))
}

func TestFetchTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewFetcher(50 * time.Millisecond)
	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL, nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRefresherStartStop(t *testing.T) {
	var hits atomic.Int32
	empty := marshalFeed(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(empty)
	}))
	defer srv.Close()

	target := appconf.RealtimeTarget{
		Name:            "bus_5",
		TripUpdateURL:   srv.URL,
		RouteID:         "5",
		Direction:       "0",
		StopID:          "100",
		RefreshInterval: 20 * time.Millisecond,
	}
	store := NewStore([]string{"bus_5"})
	r := NewRefresher(RefresherConfig{Targets: []appconf.RealtimeTarget{target}, Store: store})

	r.Start(context.Background())
	assert.Eventually(t, func() bool { return hits.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	r.Stop()

	assert.NotNil(t, store.Get("bus_5"))
}

func TestStore(t *testing.T) {
	s := NewStore([]string{"a"})
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("b"))
	assert.Nil(t, s.Get("a"))

	assert.True(t, s.Publish(&Snapshot{Target: "a"}))
	assert.False(t, s.Publish(&Snapshot{Target: "b"}))
	assert.Equal(t, "a", s.Get("a").Target)
}
