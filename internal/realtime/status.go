package realtime

import (
	"strconv"
	"time"

	"departureboard.app/internal/appconf"
)

// NoValue marks an attribute with no realtime answer.
const NoValue = "-"

const clockLayout = "15:04"

// Status is the attribute set reported for one watched target.
type Status struct {
	DueIn             string    `json:"due_in"`
	DueAt             string    `json:"due_at"`
	NextUp            string    `json:"next_up"`
	StopID            string    `json:"stop_id"`
	Route             string    `json:"route"`
	Trip              string    `json:"trip"`
	Direction         string    `json:"direction"`
	Latitude          *float64  `json:"latitude,omitempty"`
	Longitude         *float64  `json:"longitude,omitempty"`
	UnitOfMeasurement string    `json:"unit_of_measurement,omitempty"`
	DeviceClass       string    `json:"device_class,omitempty"`
	Arrivals          []Arrival `json:"arrivals"`
}

// UnknownStatus is reported when no feed could be read for target.
func UnknownStatus(target appconf.RealtimeTarget) Status {
	s := Status{
		DueIn:     NoValue,
		DueAt:     NoValue,
		NextUp:    NoValue,
		StopID:    target.StopID,
		Route:     target.RouteID,
		Trip:      target.TripID,
		Direction: target.Direction,
	}
	if target.Relative {
		s.UnitOfMeasurement = "min"
	}
	return s
}

// BuildStatus looks the target up by route first and falls back to the
// trip index with the default direction.
func BuildStatus(target appconf.RealtimeTarget, routes, trips DepartureIndex, now time.Time, loc *time.Location) Status {
	direction := target.Direction
	arrivals := routes.Query(target.RouteID, direction, target.StopID)
	if len(arrivals) == 0 {
		direction = DefaultDirection
		arrivals = trips.Query(target.TripID, DefaultDirection, target.StopID)
	}
	return statusFor(target, direction, arrivals, now, loc)
}

// AsOf drops the arrivals already passed at now and derives the attributes
// again, so a snapshot read between refreshes reports current due times.
func (s Status) AsOf(target appconf.RealtimeTarget, now time.Time, loc *time.Location) Status {
	var upcoming []Arrival
	for _, a := range s.Arrivals {
		if !a.At.Before(now) {
			upcoming = append(upcoming, a)
		}
	}
	return statusFor(target, s.Direction, upcoming, now, loc)
}

func statusFor(target appconf.RealtimeTarget, direction string, arrivals []Arrival, now time.Time, loc *time.Location) Status {
	if loc == nil {
		loc = time.UTC
	}
	s := UnknownStatus(target)
	s.Direction = direction
	if len(arrivals) == 0 {
		return s
	}
	s.Arrivals = arrivals

	first := arrivals[0]
	if target.Relative {
		s.DueIn = strconv.Itoa(DueInMinutes(first.At, now))
	} else {
		s.DueIn = first.At.UTC().Format(time.RFC3339)
		s.DeviceClass = "timestamp"
	}
	s.DueAt = first.At.In(loc).Format(clockLayout)
	if first.Position != nil {
		lat, lon := first.Position.Lat, first.Position.Lon
		s.Latitude, s.Longitude = &lat, &lon
	}
	if len(arrivals) > 1 {
		s.NextUp = arrivals[1].At.In(loc).Format(clockLayout)
	}
	return s
}
