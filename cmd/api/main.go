package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"departureboard.app/internal/appconf"
	"departureboard.app/internal/clock"
	"departureboard.app/internal/datasource"
	"departureboard.app/internal/logging"
	"departureboard.app/internal/schedule"

	_ "time/tzdata"
)

func main() {
	if err := newCLIApp().Run(os.Args); err != nil {
		slog.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newCLIApp() *cli.App {
	return &cli.App{
		Name:  "departureboard",
		Usage: "GTFS next departure and realtime arrival service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"f"}, Usage: "YAML or JSON configuration file"},
			&cli.IntFlag{Name: "port", Usage: "API server port"},
			&cli.StringFlag{Name: "env", Usage: "development, test or production"},
			&cli.StringFlag{Name: "api-keys", Usage: "comma separated API keys"},
			&cli.StringFlag{Name: "data-dir", Usage: "directory holding the GTFS zips and databases"},
			&cli.StringFlag{Name: "output-dir", Usage: "directory for GeoJSON overlays"},
			&cli.StringFlag{Name: "timezone", Usage: "IANA timezone the schedules run in"},
			&cli.IntFlag{Name: "rate-limit", Usage: "requests per second per API key, 0 for unlimited"},
			&cli.BoolFlag{Name: "verbose", Usage: "verbose logging"},
		},
		Action: serveCommand,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the realtime refresher",
				Action: serveCommand,
			},
			{
				Name:  "import",
				Usage: "ingest a GTFS zip into a datasource and wait for it",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "datasource name"},
					&cli.StringFlag{Name: "zip", Usage: "local GTFS zip"},
					&cli.StringFlag{Name: "url", Usage: "GTFS zip URL"},
					&cli.BoolFlag{Name: "strip-shapes", Usage: "drop shapes.txt before importing"},
				},
				Action: importCommand,
			},
			{
				Name:  "next-departure",
				Usage: "print the next departure between two stops as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "datasource", Required: true},
					&cli.StringFlag{Name: "origin", Required: true, Usage: "stop id, \"id: name\" label or rail stop name"},
					&cli.StringFlag{Name: "destination", Required: true},
					&cli.StringFlag{Name: "route-type", Usage: "2 matches rail stops by name"},
					&cli.IntFlag{Name: "offset", Usage: "minutes to skip ahead"},
					&cli.BoolFlag{Name: "include-tomorrow"},
					&cli.StringFlag{Name: "at", Usage: "RFC 3339 instant or local \"2006-01-02 15:04\" to resolve at"},
				},
				Action: nextDepartureCommand,
			},
			{
				Name:   "datasources",
				Usage:  "list datasources and their status",
				Action: datasourcesCommand,
			},
		},
	}
}

// loadConfig layers the config file, the environment and the global flags.
func loadConfig(c *cli.Context) (appconf.Config, error) {
	cfg := appconf.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = appconf.LoadFromFile(path); err != nil {
			return cfg, err
		}
	}
	if err := appconf.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}

	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("env") {
		cfg.Env = appconf.ParseEnvironment(c.String("env"))
	}
	if c.IsSet("api-keys") {
		cfg.ApiKeys = ParseAPIKeys(c.String("api-keys"))
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("output-dir") {
		cfg.OutputDir = c.String("output-dir")
	}
	if c.IsSet("timezone") {
		cfg.Timezone = c.String("timezone")
	}
	if c.IsSet("rate-limit") {
		cfg.RateLimit = c.Int("rate-limit")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	setupLogger(cfg, os.Stderr)
	return cfg, nil
}

// setupLogger installs the default logger: JSON in production, text otherwise.
func setupLogger(cfg appconf.Config, w io.Writer) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	if cfg.Env == appconf.Production {
		slog.SetDefault(logging.NewStructuredLogger(w, level))
		return
	}
	slog.SetDefault(logging.NewTextLogger(w, level))
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if len(cfg.ApiKeys) == 0 {
		return fmt.Errorf("at least one API key is required")
	}

	coreApp, err := BuildApplication(cfg)
	if err != nil {
		return err
	}
	srv, api := CreateServer(coreApp, cfg)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Run(ctx, srv, coreApp, api)
}

func importCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	name := c.String("name")
	src := appconf.DatasourceConfig{Name: name, ExtractFrom: "zip", StripShapes: c.Bool("strip-shapes")}
	if configured, ok := findSource(cfg, name); ok {
		src.URL, src.Headers = configured.URL, configured.Headers
		src.StripShapes = src.StripShapes || configured.StripShapes
	}
	switch {
	case c.String("url") != "":
		src.ExtractFrom, src.URL = "url", c.String("url")
	case c.String("zip") != "":
		if err := copyZip(c.String("zip"), filepath.Join(cfg.DataDir, name+".zip")); err != nil {
			return err
		}
	case src.URL != "":
		src.ExtractFrom = "url"
	}

	coreApp, err := BuildApplication(cfg)
	if err != nil {
		return err
	}
	defer shutdownApplication(coreApp, nil)

	if err := coreApp.Datasources.Import(c.Context, src); err != nil {
		return fmt.Errorf("import of %s failed: %w", name, err)
	}
	logging.LogOperation(coreApp.Logger, "datasource_imported", slog.String("datasource", name))
	return nil
}

func nextDepartureCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	coreApp, err := BuildApplication(cfg)
	if err != nil {
		return err
	}
	defer shutdownApplication(coreApp, nil)

	now := coreApp.Now()
	if at := c.String("at"); at != "" {
		if now, err = clock.ParseInstant(at, coreApp.Location); err != nil {
			return err
		}
	}

	name := c.String("datasource")
	if err := coreApp.Datasources.Open(c.Context, name); err != nil {
		return err
	}
	h, err := coreApp.Datasources.Handle(name)
	if err != nil {
		return err
	}

	next, err := coreApp.Resolver(h).Resolve(c.Context, schedule.ScheduleQuery{
		Origin:          c.String("origin"),
		Destination:     c.String("destination"),
		RouteType:       c.String("route-type"),
		Now:             now,
		OffsetMinutes:   c.Int("offset"),
		IncludeTomorrow: c.Bool("include-tomorrow"),
	})
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, next)
}

func datasourcesCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	mgr, err := datasource.NewManager(datasource.Config{Dir: cfg.DataDir, Env: cfg.Env, Sources: cfg.Datasources})
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(mgr, slog.Default(), "datasource manager")

	mgr.OpenAll(c.Context)
	summaries, err := mgr.Summaries()
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, summaries)
}

func findSource(cfg appconf.Config, name string) (appconf.DatasourceConfig, bool) {
	for _, ds := range cfg.Datasources {
		if ds.Name == name {
			return ds, true
		}
	}
	return appconf.DatasourceConfig{}, false
}

// copyZip places a local zip where the datasource manager expects it.
func copyZip(from, to string) error {
	if abs, err := filepath.Abs(from); err == nil {
		if target, err := filepath.Abs(to); err == nil && abs == target {
			return nil
		}
	}
	b, err := os.ReadFile(from)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", from, err)
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(to, b, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", to, err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
