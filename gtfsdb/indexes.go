package gtfsdb

import (
	"context"
	"fmt"
	"log/slog"

	"departureboard.app/internal/logging"
)

type performanceIndex struct {
	name   string
	table  string
	column string
}

var performanceIndexes = []performanceIndex{
	{name: "gtfs2_stop_times_trip_id", table: "stop_times", column: "trip_id"},
	{name: "gtfs2_stop_times_stop_id", table: "stop_times", column: "stop_id"},
	{name: "gtfs2_shapes_shape_id", table: "shapes", column: "shape_id"},
	{name: "gtfs2_stops_stop_name", table: "stops", column: "stop_name"},
}

const countIndexesLike = `
SELECT COUNT(*) FROM sqlite_master
WHERE type = 'index' AND tbl_name = ? AND name LIKE ?
`

// EnsurePerformanceIndexes creates the lookup indexes a datasource is
// missing. Any existing index whose name mentions the column counts, so
// calling it again is a no-op. It returns the names of created indexes.
func (c *Client) EnsurePerformanceIndexes(ctx context.Context) ([]string, error) {
	logger := slog.Default().With(slog.String("component", "gtfsdb_indexes"))

	var created []string
	for _, idx := range performanceIndexes {
		var n int64
		if err := c.DB.QueryRowContext(ctx, countIndexesLike, idx.table, "%"+idx.column+"%").Scan(&n); err != nil {
			return created, fmt.Errorf("checking index %s: %w", idx.name, err)
		}
		if n > 0 {
			continue
		}

		logging.LogWarning(logger, "adding_performance_index",
			slog.String("index", idx.name),
			slog.String("table", idx.table))
		// identifiers come from the fixed list above
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idx.name, idx.table, idx.column)
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return created, fmt.Errorf("creating index %s: %w", idx.name, err)
		}
		created = append(created, idx.name)
	}
	return created, nil
}
