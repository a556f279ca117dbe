package schedule

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidwall/rtree"

	"departureboard.app/gtfsdb"
	"departureboard.app/internal/utils"
)

// StopLister loads every stop with its coordinates.
type StopLister interface {
	ListAllStops(ctx context.Context) ([]gtfsdb.ListAllStopsRow, error)
}

// IndexedStop is a stop position held by a StopIndex.
type IndexedStop struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

// StopIndex is an in-memory spatial index of stop coordinates, stored as
// lon/lat points.
type StopIndex struct {
	tree  rtree.RTreeG[IndexedStop]
	count int
}

func BuildStopIndex(ctx context.Context, lister StopLister) (*StopIndex, error) {
	stops, err := lister.ListAllStops(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stops: %w", err)
	}

	idx := &StopIndex{}
	for _, s := range stops {
		pt := [2]float64{s.Lon, s.Lat}
		idx.tree.Insert(pt, pt, IndexedStop{ID: s.ID, Name: s.Name.String, Lat: s.Lat, Lon: s.Lon})
		idx.count++
	}
	return idx, nil
}

func (idx *StopIndex) Len() int {
	return idx.count
}

// Within returns the stops strictly inside the box of radius degrees
// around lat/lon, ordered by stop id.
func (idx *StopIndex) Within(lat, lon, radius float64) []IndexedStop {
	bounds := utils.BoundsFromSpan(lat, lon, radius)

	var out []IndexedStop
	idx.tree.Search(bounds.Min(), bounds.Max(), func(_, _ [2]float64, s IndexedStop) bool {
		if bounds.StrictlyContains(s.Lat, s.Lon) {
			out = append(out, s)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
