package realtime

import (
	"sort"
	"strings"
	"time"
)

// Position is a vehicle location.
type Position struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Arrival is one predicted arrival at a stop, with the live position of
// the vehicle serving it when known.
type Arrival struct {
	TripID   string    `json:"trip_id"`
	At       time.Time `json:"at"`
	Position *Position `json:"position,omitempty"`
}

// DepartureIndex maps route (or trip) id -> direction id -> stop id ->
// arrivals in ascending order.
type DepartureIndex map[string]map[string]map[string][]Arrival

// IndexOptions controls how trip updates are keyed.
type IndexOptions struct {
	// RouteDelimiter, when set, keeps only the part of the feed route id
	// before it.
	RouteDelimiter string
	Now            time.Time
	Positions      map[string]Position
}

// EffectiveRouteID keeps the part of raw before the first delimiter. An id
// that starts with the delimiter, or is the delimiter, is kept as is.
func EffectiveRouteID(raw, delimiter string) string {
	if delimiter == "" {
		return raw
	}
	first, _, _ := strings.Cut(raw, delimiter)
	if first == "" {
		return raw
	}
	return first
}

// BuildIndex keys every trip update by its effective route id.
func BuildIndex(entities []Entity, opts IndexOptions) DepartureIndex {
	return buildIndex(entities, opts, func(tu *TripUpdate) string {
		return EffectiveRouteID(tu.RouteID, opts.RouteDelimiter)
	})
}

// BuildTripIndex keys every trip update by trip id, for feeds that omit
// route ids.
func BuildTripIndex(entities []Entity, opts IndexOptions) DepartureIndex {
	return buildIndex(entities, opts, func(tu *TripUpdate) string { return tu.TripID })
}

func buildIndex(entities []Entity, opts IndexOptions, key func(*TripUpdate) string) DepartureIndex {
	idx := DepartureIndex{}
	for _, e := range entities {
		tu := e.TripUpdate
		if tu == nil {
			continue
		}
		k := key(tu)
		dir := tu.DirectionID
		if dir == "" {
			dir = DefaultDirection
		}

		for _, st := range tu.StopTimes {
			epoch := st.Arrival
			if epoch == 0 {
				epoch = st.Departure
			}
			at := time.Unix(epoch, 0).UTC()
			if at.Before(opts.Now) {
				continue
			}

			arrival := Arrival{TripID: tu.TripID, At: at}
			if pos, ok := opts.Positions[tu.TripID]; ok {
				p := pos
				arrival.Position = &p
			}

			if idx[k] == nil {
				idx[k] = map[string]map[string][]Arrival{}
			}
			if idx[k][dir] == nil {
				idx[k][dir] = map[string][]Arrival{}
			}
			idx[k][dir][st.StopID] = append(idx[k][dir][st.StopID], arrival)
		}
	}

	for _, dirs := range idx {
		for _, stops := range dirs {
			for _, arrivals := range stops {
				sort.SliceStable(arrivals, func(i, j int) bool { return arrivals[i].At.Before(arrivals[j].At) })
			}
		}
	}
	return idx
}

// Query returns the arrivals for key/direction/stop, nil when none.
func (idx DepartureIndex) Query(key, direction, stop string) []Arrival {
	return idx[key][direction][stop]
}

// Count returns the number of indexed arrivals.
func (idx DepartureIndex) Count() int {
	n := 0
	for _, dirs := range idx {
		for _, stops := range dirs {
			for _, arrivals := range stops {
				n += len(arrivals)
			}
		}
	}
	return n
}

// DueInMinutes is the whole minutes from now until at, never negative.
func DueInMinutes(at, now time.Time) int {
	minutes := int(at.Sub(now) / time.Minute)
	if minutes < 0 {
		return 0
	}
	return minutes
}
