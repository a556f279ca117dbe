package gtfsdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"departureboard.app/internal/logging"
)

// Client is the read/write handle on one datasource's sqlite store.
type Client struct {
	config        Config
	DB            *sql.DB
	Queries       *Queries
	importRuntime time.Duration
}

func NewClient(config Config) (*Client, error) {
	db, err := createDB(config)
	if err != nil {
		return nil, fmt.Errorf("unable to create DB: %w", err)
	}
	if config.verbose {
		logging.LogOperation(slog.Default().With(slog.String("component", "gtfsdb")),
			"database_opened", slog.String("path", config.DBPath))
	}

	return &Client{
		config:  config,
		DB:      db,
		Queries: New(db),
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) GetDBPath() string {
	return c.config.DBPath
}

// ImportRuntime reports how long the last import took.
func (c *Client) ImportRuntime() time.Duration {
	return c.importRuntime
}

// ImportFromBytes loads a GTFS zip held in memory. source identifies where
// the bytes came from; an identical hash from the same source is skipped.
func (c *Client) ImportFromBytes(ctx context.Context, b []byte, source string) error {
	return c.processAndStoreGTFSDataWithSource(ctx, b, source)
}

// ImportFromFile imports a GTFS zip file from disk.
func (c *Client) ImportFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.processAndStoreGTFSDataWithSource(ctx, data, path)
}
