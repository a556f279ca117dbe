package models

import "departureboard.app/gtfsdb"

// Catalog options carry the label a client shows and later sends back as
// an origin, destination or filter.

type Agency struct {
	ID    string `json:"agency_id"`
	Name  string `json:"agency_name"`
	Label string `json:"label"`
}

func NewAgencies(rows []gtfsdb.ListAgenciesRow) []Agency {
	out := make([]Agency, 0, len(rows))
	for _, r := range rows {
		out = append(out, Agency{ID: r.ID, Name: r.Name, Label: r.Label()})
	}
	return out
}

type Route struct {
	ID         string `json:"route_id"`
	AgencyID   string `json:"agency_id"`
	AgencyName string `json:"agency_name,omitempty"`
	ShortName  string `json:"route_short_name,omitempty"`
	LongName   string `json:"route_long_name,omitempty"`
	Type       int64  `json:"route_type"`
	Label      string `json:"label"`
}

func NewRoutes(rows []gtfsdb.ListRoutesRow) []Route {
	out := make([]Route, 0, len(rows))
	for _, r := range rows {
		out = append(out, Route{
			ID:         r.ID,
			AgencyID:   r.AgencyID,
			AgencyName: r.AgencyName.String,
			ShortName:  r.ShortName.String,
			LongName:   r.LongName.String,
			Type:       r.Type,
			Label:      r.Label(),
		})
	}
	return out
}

type Stop struct {
	ID            string `json:"stop_id"`
	Name          string `json:"stop_name"`
	FirstSequence int64  `json:"first_sequence"`
	Label         string `json:"label"`
}

func NewStops(rows []gtfsdb.ListStopsForRouteRow) []Stop {
	out := make([]Stop, 0, len(rows))
	for _, r := range rows {
		out = append(out, Stop{ID: r.ID, Name: r.Name.String, FirstSequence: r.FirstSequence, Label: r.Label()})
	}
	return out
}
