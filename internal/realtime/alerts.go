package realtime

import "strings"

// AlertMatch holds the alert headers that apply to the watched stops.
type AlertMatch struct {
	Origin      string `json:"origin_stop_alert,omitempty"`
	Destination string `json:"destination_stop_alert,omitempty"`
}

// MatchAlerts scans alerts for ones that concern origin or destination on
// routeID. Only the last informed entity of an alert decides whether it
// matches.
// TODO: confirm with feed owners whether every informed entity should be
// considered instead of the last one.
func MatchAlerts(entities []Entity, origin, destination, routeID string) AlertMatch {
	var m AlertMatch
	for _, e := range entities {
		a := e.Alert
		if a == nil || len(a.Informed) == 0 {
			continue
		}
		ie := a.Informed[len(a.Informed)-1]
		routeMatches := ie.RouteID == "" || ie.RouteID == routeID
		msg := headerText(a.Header)

		if ie.StopID != "" && ie.StopID == origin && routeMatches {
			m.Origin = msg
		}
		if ie.StopID != "" && ie.StopID == destination && routeMatches {
			m.Destination = msg
		}
		if ie.StopID == "" && ie.RouteID != "" && ie.RouteID == routeID {
			m.Origin = msg
			m.Destination = msg
		}
	}
	return m
}

var headerCleaner = strings.NewReplacer(":", "", "\n", "")

// headerText keeps the text up to the first double quote, without colons
// or newlines.
func headerText(s string) string {
	s, _, _ = strings.Cut(s, `"`)
	return headerCleaner.Replace(s)
}
