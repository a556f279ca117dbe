// Package realtime decodes GTFS-realtime feeds and reconciles their trip
// updates, vehicle positions and alerts against a watched route and stop.
package realtime

import (
	"errors"
	"fmt"
	"strconv"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"google.golang.org/protobuf/proto"
)

// ErrFeedDecode is returned for payloads that are not a feed message.
var ErrFeedDecode = errors.New("invalid realtime feed")

// DefaultDirection is used when a feed leaves the direction unset.
const DefaultDirection = "0"

// Entity is one decoded feed entity. Exactly one of TripUpdate, Vehicle
// and Alert is set.
type Entity struct {
	ID         string
	TripUpdate *TripUpdate
	Vehicle    *VehiclePosition
	Alert      *Alert
}

// StopTimeEvent holds epoch seconds; zero means unset.
type StopTimeEvent struct {
	StopID    string
	Arrival   int64
	Departure int64
}

type TripUpdate struct {
	TripID      string
	RouteID     string
	DirectionID string
	StopTimes   []StopTimeEvent
}

type VehiclePosition struct {
	TripID       string
	RouteID      string
	DirectionID  string
	VehicleID    string
	VehicleLabel string
	Lat          float64
	Lon          float64
}

// InformedEntity is a stop/route pair an alert applies to. Empty means unset.
type InformedEntity struct {
	StopID  string
	RouteID string
}

type Alert struct {
	Informed []InformedEntity
	Header   string
}

// Decode parses a serialized FeedMessage.
func Decode(b []byte) ([]Entity, error) {
	msg := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedDecode, err)
	}

	entities := make([]Entity, 0, len(msg.GetEntity()))
	for _, e := range msg.GetEntity() {
		out := Entity{ID: e.GetId()}
		switch {
		case e.GetTripUpdate() != nil:
			out.TripUpdate = decodeTripUpdate(e.GetTripUpdate())
		case e.GetVehicle() != nil:
			out.Vehicle = decodeVehicle(e.GetVehicle())
		case e.GetAlert() != nil:
			out.Alert = decodeAlert(e.GetAlert())
		default:
			continue
		}
		entities = append(entities, out)
	}
	return entities, nil
}

func direction(trip *gtfsrt.TripDescriptor) string {
	if trip == nil || trip.DirectionId == nil {
		return DefaultDirection
	}
	return strconv.FormatUint(uint64(trip.GetDirectionId()), 10)
}

func decodeTripUpdate(tu *gtfsrt.TripUpdate) *TripUpdate {
	trip := tu.GetTrip()
	out := &TripUpdate{
		TripID:      trip.GetTripId(),
		RouteID:     trip.GetRouteId(),
		DirectionID: direction(trip),
	}
	for _, stu := range tu.GetStopTimeUpdate() {
		out.StopTimes = append(out.StopTimes, StopTimeEvent{
			StopID:    stu.GetStopId(),
			Arrival:   stu.GetArrival().GetTime(),
			Departure: stu.GetDeparture().GetTime(),
		})
	}
	return out
}

func decodeVehicle(v *gtfsrt.VehiclePosition) *VehiclePosition {
	trip := v.GetTrip()
	return &VehiclePosition{
		TripID:       trip.GetTripId(),
		RouteID:      trip.GetRouteId(),
		DirectionID:  direction(trip),
		VehicleID:    v.GetVehicle().GetId(),
		VehicleLabel: v.GetVehicle().GetLabel(),
		Lat:          float64(v.GetPosition().GetLatitude()),
		Lon:          float64(v.GetPosition().GetLongitude()),
	}
}

func decodeAlert(a *gtfsrt.Alert) *Alert {
	out := &Alert{}
	for _, ie := range a.GetInformedEntity() {
		out.Informed = append(out.Informed, InformedEntity{
			StopID:  ie.GetStopId(),
			RouteID: ie.GetRouteId(),
		})
	}
	if translations := a.GetHeaderText().GetTranslation(); len(translations) > 0 {
		out.Header = translations[0].GetText()
	}
	return out
}
