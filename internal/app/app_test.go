package app

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"departureboard.app/internal/appconf"
	"departureboard.app/internal/clock"
)

func TestIsInvalidAPIKey(t *testing.T) {
	app := &Application{Config: appconf.Config{ApiKeys: []string{"k1", "k2"}}}

	assert.True(t, app.IsInvalidAPIKey(""))
	assert.True(t, app.IsInvalidAPIKey("nope"))
	assert.False(t, app.IsInvalidAPIKey("k2"))

	r := httptest.NewRequest("GET", "/api/datasources?key=k1", nil)
	assert.False(t, app.RequestHasInvalidAPIKey(r))
	r = httptest.NewRequest("GET", "/api/datasources", nil)
	assert.True(t, app.RequestHasInvalidAPIKey(r))
	r.Header.Set(APIKeyHeader, "k2")
	assert.False(t, app.RequestHasInvalidAPIKey(r))
	assert.Equal(t, "k2", RequestAPIKey(r))
}

func TestTarget(t *testing.T) {
	app := &Application{Config: appconf.Config{Realtime: []appconf.RealtimeTarget{{Name: "bus_5", RouteID: "5"}}}}

	target, ok := app.Target("bus_5")
	assert.True(t, ok)
	assert.Equal(t, "5", target.RouteID)

	_, ok = app.Target("tram_1")
	assert.False(t, ok)
}

func TestNow(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Skip("tzdata not available")
	}
	instant := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	app := &Application{Clock: clock.NewMockClock(instant), Location: ams}

	assert.Equal(t, 8, app.Now().Hour())
	assert.True(t, app.Now().Equal(instant))
}
