package realtime

import (
	"testing"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

var testNow = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func feedMessage(entities ...*gtfsrt.FeedEntity) *gtfsrt.FeedMessage {
	return &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsrt.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(testNow.Unix())),
		},
		Entity: entities,
	}
}

func marshalFeed(t *testing.T, entities ...*gtfsrt.FeedEntity) []byte {
	t.Helper()
	b, err := proto.Marshal(feedMessage(entities...))
	require.NoError(t, err)
	return b
}

type stopEvent struct {
	stop      string
	arrival   int64
	departure int64
}

func tripUpdateEntity(id, tripID, routeID string, direction *uint32, stops ...stopEvent) *gtfsrt.FeedEntity {
	tu := &gtfsrt.TripUpdate{
		Trip: &gtfsrt.TripDescriptor{
			TripId:      proto.String(tripID),
			RouteId:     proto.String(routeID),
			DirectionId: direction,
		},
	}
	for _, s := range stops {
		stu := &gtfsrt.TripUpdate_StopTimeUpdate{StopId: proto.String(s.stop)}
		if s.arrival != 0 {
			stu.Arrival = &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(s.arrival)}
		}
		if s.departure != 0 {
			stu.Departure = &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(s.departure)}
		}
		tu.StopTimeUpdate = append(tu.StopTimeUpdate, stu)
	}
	return &gtfsrt.FeedEntity{Id: proto.String(id), TripUpdate: tu}
}

func vehicleEntity(id, tripID, routeID string, direction uint32, lat, lon float32) *gtfsrt.FeedEntity {
	return &gtfsrt.FeedEntity{
		Id: proto.String(id),
		Vehicle: &gtfsrt.VehiclePosition{
			Trip: &gtfsrt.TripDescriptor{
				TripId:      proto.String(tripID),
				RouteId:     proto.String(routeID),
				DirectionId: proto.Uint32(direction),
			},
			Vehicle:  &gtfsrt.VehicleDescriptor{Id: proto.String("v-" + id), Label: proto.String("Bus " + id)},
			Position: &gtfsrt.Position{Latitude: proto.Float32(lat), Longitude: proto.Float32(lon)},
		},
	}
}

func alertEntity(id, header string, informed ...InformedEntity) *gtfsrt.FeedEntity {
	alert := &gtfsrt.Alert{
		HeaderText: &gtfsrt.TranslatedString{
			Translation: []*gtfsrt.TranslatedString_Translation{{Text: proto.String(header), Language: proto.String("en")}},
		},
	}
	for _, ie := range informed {
		sel := &gtfsrt.EntitySelector{}
		if ie.StopID != "" {
			sel.StopId = proto.String(ie.StopID)
		}
		if ie.RouteID != "" {
			sel.RouteId = proto.String(ie.RouteID)
		}
		alert.InformedEntity = append(alert.InformedEntity, sel)
	}
	return &gtfsrt.FeedEntity{Id: proto.String(id), Alert: alert}
}

func epoch(d time.Duration) int64 {
	return testNow.Add(d).Unix()
}
