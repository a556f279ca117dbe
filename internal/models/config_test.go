package models

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"departureboard.app/gtfsdb"
	"departureboard.app/internal/clock"
)

func TestReadBuildProperties(t *testing.T) {
	props := ReadBuildProperties()
	assert.NotEmpty(t, props.Version)
}

func TestConfigModelJSONTags(t *testing.T) {
	data, err := json.Marshal(ConfigModel{Name: "departureboard", Timezone: "UTC", Datasources: []string{"ov"}})
	require.NoError(t, err)
	s := string(data)

	assert.Contains(t, s, `"timezone":"UTC"`)
	assert.Contains(t, s, `"datasources":["ov"]`)
	assert.Contains(t, s, `"realtime_targets":null`)
	assert.NotContains(t, s, "Timezone")
}

func TestNewListResponseNeverNull(t *testing.T) {
	c := clock.NewMockClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))

	data, err := json.Marshal(NewListResponse[Agency](nil, c))
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":200,"currentTime":1709280000000,"text":"OK","version":1,"data":{"list":[]}}`, string(data))
}

func TestNewOKResponseNullData(t *testing.T) {
	c := clock.NewMockClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))

	data, err := json.Marshal(NewOKResponse(nil, c))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"data":null`)
}

func TestCatalogLabels(t *testing.T) {
	routes := NewRoutes([]gtfsdb.ListRoutesRow{{
		ID:         "R1",
		AgencyID:   "A1",
		ShortName:  sql.NullString{String: "5", Valid: true},
		LongName:   sql.NullString{String: "Centraal - Zuid", Valid: true},
		Type:       3,
		AgencyName: sql.NullString{String: "Metro", Valid: true},
	}})
	require.Len(t, routes, 1)
	assert.Equal(t, "R1: 5 (Centraal - Zuid) - Metro", routes[0].Label)

	stops := NewStops([]gtfsdb.ListStopsForRouteRow{{ID: "S1", Name: sql.NullString{String: "Museum", Valid: true}}})
	assert.Equal(t, "S1: Museum", stops[0].Label)

	agencies := NewAgencies([]gtfsdb.ListAgenciesRow{{ID: "A1", Name: "Metro"}})
	assert.Equal(t, "A1: Metro", agencies[0].Label)
}
