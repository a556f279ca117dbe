package gtfsdb

import "departureboard.app/internal/appconf"

const defaultBulkInsertBatchSize = 3000

type Config struct {
	// Database configuration
	DBPath string
	Env    appconf.Environment

	// Rows per multi-row INSERT during import. Zero means the default.
	BulkInsertBatchSize int

	verbose bool
}

func NewConfig(dbPath string, env appconf.Environment, verbose bool) Config {
	return Config{
		DBPath:  dbPath,
		Env:     env,
		verbose: verbose,
	}
}

func (c Config) GetBulkInsertBatchSize() int {
	if c.BulkInsertBatchSize <= 0 {
		return defaultBulkInsertBatchSize
	}
	return c.BulkInsertBatchSize
}
