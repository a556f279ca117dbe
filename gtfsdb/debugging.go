package gtfsdb

import (
	"fmt"
	"slices"
)

// countedTables are the tables TableCounts reports. Names come from this
// list only, never from the database, so they are safe to format into SQL.
var countedTables = []string{
	"agency", "routes", "stops", "trips", "stop_times",
	"calendar", "calendar_dates", "shapes", "import_metadata",
}

// TableCounts returns the row count of every counted table the database has.
func (c *Client) TableCounts() (map[string]int, error) {
	present, err := c.tableNames()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(countedTables))
	for _, table := range countedTables {
		if !slices.Contains(present, table) {
			continue
		}
		var n int
		if err := c.DB.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// tableNames drains its cursor before returning; :memory: pools hold one
// connection.
func (c *Client) tableNames() ([]string, error) {
	rows, err := c.DB.Query("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("failed to query table names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
