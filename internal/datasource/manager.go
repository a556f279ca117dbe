// Package datasource manages the on-disk static schedules: downloading,
// ingesting into sqlite, and attaching the resulting databases.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"departureboard.app/gtfsdb"
	"departureboard.app/internal/appconf"
	"departureboard.app/internal/logging"
	"departureboard.app/internal/metrics"
	"departureboard.app/internal/schedule"
)

var (
	// ErrExtracting is returned while a datasource is being ingested.
	ErrExtracting = schedule.ErrDatasourceExtracting
	// ErrNoZipFile means a zip datasource has no <name>.zip on disk.
	ErrNoZipFile = errors.New("no_zip_file")
	// ErrNoDataFile means a download failed or the datasource has no database yet.
	ErrNoDataFile        = errors.New("no_data_file")
	ErrUnknownDatasource = errors.New("unknown datasource")
)

const (
	zipExt    = ".zip"
	dbExt     = ".sqlite"
	markerExt = ".extracting"

	dbStatsInterval = 30 * time.Second

	// DefaultRetireAfter covers the write timeout of any request still
	// holding a Handle to a replaced database.
	DefaultRetireAfter = 30 * time.Second
)

type Config struct {
	Dir     string
	Env     appconf.Environment
	Verbose bool
	Sources []appconf.DatasourceConfig
	Metrics *metrics.Metrics
	Retry   RetryPolicy
	// HTTPClient overrides the download client.
	HTTPClient *http.Client
	// RetireAfter delays closing a replaced or removed database.
	RetireAfter time.Duration
}

type entry struct {
	status    Status
	client    *gtfsdb.Client
	stops     *schedule.StopIndex
	err       error
	updatedAt time.Time
}

// Manager owns every datasource under one data directory.
type Manager struct {
	dir     string
	env     appconf.Environment
	verbose bool
	sources map[string]appconf.DatasourceConfig
	metrics *metrics.Metrics
	retry   RetryPolicy
	client  *http.Client
	logger  *slog.Logger

	retireAfter time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
	retired map[*gtfsdb.Client]*time.Timer
	wg      sync.WaitGroup
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("datasource directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create datasource directory: %w", err)
	}

	m := &Manager{
		dir:     cfg.Dir,
		env:     cfg.Env,
		verbose: cfg.Verbose,
		sources: make(map[string]appconf.DatasourceConfig, len(cfg.Sources)),
		metrics: cfg.Metrics,
		retry:   cfg.Retry,
		client:  cfg.HTTPClient,
		logger:  slog.Default().With(slog.String("component", "datasource_manager")),
		entries: make(map[string]*entry),
		retired: make(map[*gtfsdb.Client]*time.Timer),

		retireAfter: cfg.RetireAfter,
	}
	if m.retireAfter <= 0 {
		m.retireAfter = DefaultRetireAfter
	}
	if m.retry == (RetryPolicy{}) {
		m.retry = DefaultRetryPolicy
	}
	if m.client == nil {
		m.client = newDownloadClient()
	}
	for _, src := range cfg.Sources {
		m.sources[src.Name] = src
	}
	return m, nil
}

func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) path(name, ext string) string {
	return filepath.Join(m.dir, name+ext)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: invalid name %q", ErrUnknownDatasource, name)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Source returns the configured source of name.
func (m *Manager) Source(name string) (appconf.DatasourceConfig, bool) {
	src, ok := m.sources[name]
	return src, ok
}

// Extracting reports whether name is being ingested, by this process or
// by another one holding the marker file.
func (m *Manager) Extracting(name string) bool {
	m.mu.RLock()
	e := m.entries[name]
	running := e != nil && e.status == Extracting
	m.mu.RUnlock()
	return running || exists(m.path(name, markerExt))
}

// Status returns the current status of name.
func (m *Manager) Status(name string) Status {
	if m.Extracting(name) {
		return Extracting
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e := m.entries[name]; e != nil {
		return e.status
	}
	return Idle
}

// List returns the names of the sqlite databases in the data directory.
func (m *Manager) List() ([]string, error) {
	files, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read datasource directory: %w", err)
	}
	var names []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), dbExt) || strings.HasPrefix(f.Name(), ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(f.Name(), dbExt))
	}
	sort.Strings(names)
	return names, nil
}

// Summary describes one datasource for listings.
type Summary struct {
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	ExtractFrom string     `json:"extract_from,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Summaries covers configured datasources and every database on disk.
func (m *Manager) Summaries() ([]Summary, error) {
	names, err := m.List()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for n := range m.sources {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)

	out := make([]Summary, 0, len(names))
	for _, n := range names {
		s := Summary{Name: n, Status: m.Status(n), ExtractFrom: m.sources[n].ExtractFrom}
		m.mu.RLock()
		if e := m.entries[n]; e != nil {
			if !e.updatedAt.IsZero() {
				at := e.updatedAt
				s.UpdatedAt = &at
			}
			if e.err != nil {
				s.Error = e.err.Error()
			}
		}
		m.mu.RUnlock()
		out = append(out, s)
	}
	return out, nil
}

// AnyReady reports whether at least one datasource can answer queries.
func (m *Manager) AnyReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.status == Ready && e.client != nil {
			return true
		}
	}
	return false
}

// Handle is a read handle on a Ready datasource.
type Handle struct {
	Name    string
	Queries *gtfsdb.Queries
	Stops   *schedule.StopIndex
	// Extracting reports whether a refresh started after the handle was taken.
	Extracting func() bool
}

// Handle returns the read handle of name.
func (m *Manager) Handle(name string) (*Handle, error) {
	if m.Extracting(name) {
		return nil, ErrExtracting
	}
	m.mu.RLock()
	e := m.entries[name]
	m.mu.RUnlock()
	if e == nil || e.client == nil {
		if _, ok := m.sources[name]; ok || exists(m.path(name, dbExt)) {
			return nil, fmt.Errorf("%w: %s has not been ingested", ErrNoDataFile, name)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatasource, name)
	}
	return &Handle{
		Name:       name,
		Queries:    e.client.Queries,
		Stops:      e.stops,
		Extracting: func() bool { return m.Extracting(name) },
	}, nil
}

// Open attaches the existing database of name.
func (m *Manager) Open(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if m.Extracting(name) {
		return ErrExtracting
	}
	dbPath := m.path(name, dbExt)
	if !exists(dbPath) {
		return fmt.Errorf("%w: %s", ErrNoDataFile, dbPath)
	}
	return m.attach(ctx, name, dbPath)
}

// OpenAll attaches every database in the data directory and returns the
// names that opened. Failures are logged and skipped.
func (m *Manager) OpenAll(ctx context.Context) []string {
	names, err := m.List()
	if err != nil {
		logging.LogError(m.logger, "Failed to list datasources", err)
		return nil
	}
	var opened []string
	for _, name := range names {
		if err := m.Open(ctx, name); err != nil {
			logging.LogError(m.logger, "Failed to open datasource", err, slog.String("datasource", name))
			continue
		}
		opened = append(opened, name)
	}
	return opened
}

func (m *Manager) attach(ctx context.Context, name, dbPath string) error {
	logger := m.logger.With(slog.String("datasource", name))

	client, err := gtfsdb.NewClient(gtfsdb.NewConfig(dbPath, m.env, m.verbose))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dbPath, err)
	}

	// Index creation runs only once no marker is left behind.
	if !exists(m.path(name, markerExt)) {
		created, err := client.EnsurePerformanceIndexes(ctx)
		if err != nil {
			logging.LogError(logger, "Failed to create performance indexes", err)
		} else if len(created) > 0 {
			logging.LogOperation(logger, "performance_indexes_created", slog.Any("indexes", created))
		}
	}

	stops, err := schedule.BuildStopIndex(ctx, client.Queries)
	if err != nil {
		logging.SafeCloseWithLogging(client, logger, "gtfs_database")
		return fmt.Errorf("failed to index stops of %s: %w", name, err)
	}

	m.mu.Lock()
	e := m.entryLocked(name)
	old := e.client
	e.client, e.stops, e.err = client, stops, nil
	e.status = Ready
	e.updatedAt = time.Now()
	m.mu.Unlock()

	if old != nil {
		m.retire(old, logger, "previous_gtfs_database")
	}
	if m.metrics != nil {
		m.metrics.StopDBStatsCollector(name)
		m.metrics.StartDBStatsCollector(name, client.DB, dbStatsInterval)
		m.metrics.DatasourceStatus.WithLabelValues(name).Set(float64(Ready))
	}
	logging.LogOperation(logger, "datasource_opened",
		slog.String("path", dbPath),
		slog.Int("stops", stops.Len()))
	return nil
}

func (m *Manager) entryLocked(name string) *entry {
	e := m.entries[name]
	if e == nil {
		e = &entry{}
		m.entries[name] = e
	}
	return e
}

// fail records a failed ingestion. A database that is still attached
// keeps serving.
func (m *Manager) fail(name string, err error) {
	m.mu.Lock()
	e := m.entryLocked(name)
	e.err = err
	e.status = Failed
	if e.client != nil {
		e.status = Ready
	}
	status := e.status
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.DatasourceStatus.WithLabelValues(name).Set(float64(status))
	}
}

// RefreshByName refreshes a configured datasource.
func (m *Manager) RefreshByName(ctx context.Context, name string) (<-chan Result, error) {
	src, ok := m.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatasource, name)
	}
	return m.Refresh(ctx, src)
}

// Refresh starts ingesting src in the background. The returned channel
// receives exactly one Result. The worker runs until ctx is done, so
// callers serving a request should pass a context that outlives it.
func (m *Manager) Refresh(ctx context.Context, src appconf.DatasourceConfig) (<-chan Result, error) {
	if err := validName(src.Name); err != nil {
		return nil, err
	}
	if src.ExtractFrom == "zip" && !exists(m.path(src.Name, zipExt)) {
		return nil, fmt.Errorf("%w: %s", ErrNoZipFile, m.path(src.Name, zipExt))
	}

	m.mu.Lock()
	e := m.entryLocked(src.Name)
	if e.status == Extracting {
		m.mu.Unlock()
		return nil, ErrExtracting
	}
	if err := os.WriteFile(m.path(src.Name, markerExt), nil, 0o644); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to write extracting marker: %w", err)
	}
	e.status = Extracting
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.DatasourceStatus.WithLabelValues(src.Name).Set(float64(Extracting))
	}

	done := make(chan Result, 1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(done)
		done <- m.ingest(ctx, src)
	}()
	return done, nil
}

// Import runs Refresh and waits for it.
func (m *Manager) Import(ctx context.Context, src appconf.DatasourceConfig) error {
	done, err := m.Refresh(ctx, src)
	if err != nil {
		return err
	}
	return (<-done).Err
}

func (m *Manager) ingest(ctx context.Context, src appconf.DatasourceConfig) Result {
	logger := m.logger.With(slog.String("datasource", src.Name))
	start := time.Now()
	logging.LogOperation(logger, "datasource_ingest_started", slog.String("extract_from", src.ExtractFrom))

	err := m.buildDatabase(ctx, src, logger)
	if rmErr := os.Remove(m.path(src.Name, markerExt)); rmErr != nil && !os.IsNotExist(rmErr) {
		logging.LogError(logger, "Failed to remove extracting marker", rmErr)
	}
	if err == nil {
		err = m.attach(ctx, src.Name, m.path(src.Name, dbExt))
	}

	elapsed := time.Since(start)
	if m.metrics != nil {
		m.metrics.DatasourceIngestDuration.WithLabelValues(src.Name).Observe(elapsed.Seconds())
	}
	if err != nil {
		m.fail(src.Name, err)
		logging.LogError(logger, "Datasource ingestion failed", err, slog.Duration("duration", elapsed))
		return Result{Name: src.Name, Status: Failed, Err: err}
	}
	logging.LogOperation(logger, "datasource_ingest_completed", slog.Duration("duration", elapsed))
	return Result{Name: src.Name, Status: Ready}
}

// buildDatabase imports the zip into a temporary database and swaps it
// over <name>.sqlite.
func (m *Manager) buildDatabase(ctx context.Context, src appconf.DatasourceConfig, logger *slog.Logger) error {
	zipPath := m.path(src.Name, zipExt)

	if src.ExtractFrom == "url" {
		b, err := m.download(ctx, src.URL, src.Headers, maxStaticSize)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoDataFile, err)
		}
		if err := writeFileAtomic(zipPath, b); err != nil {
			return err
		}
		logging.LogOperation(logger, "datasource_downloaded", slog.Int("bytes", len(b)))
	}

	b, err := os.ReadFile(zipPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNoZipFile, zipPath)
		}
		return fmt.Errorf("error reading %s: %w", zipPath, err)
	}

	if src.StripShapes {
		stripped, removed, err := StripShapes(b)
		if err != nil {
			return err
		}
		if removed {
			if err := writeFileAtomic(zipPath, stripped); err != nil {
				return err
			}
			logging.LogOperation(logger, "shapes_stripped",
				slog.Int("bytes_before", len(b)),
				slog.Int("bytes_after", len(stripped)))
			b = stripped
		}
	}

	dbPath := m.path(src.Name, dbExt)
	tempPath := dbPath + ".tmp"
	removeDBFiles(tempPath)

	client, err := gtfsdb.NewClient(gtfsdb.NewConfig(tempPath, m.env, m.verbose))
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	if err := client.ImportFromBytes(ctx, b, zipPath); err != nil {
		logging.SafeCloseWithLogging(client, logger, "temp_gtfs_database")
		removeDBFiles(tempPath)
		return fmt.Errorf("failed to import %s: %w", zipPath, err)
	}
	if err := client.Close(); err != nil {
		removeDBFiles(tempPath)
		return fmt.Errorf("failed to close temp database: %w", err)
	}

	// The open client keeps reading the replaced file until attach swaps it.
	removeSidecarFiles(dbPath)
	if err := os.Rename(tempPath, dbPath); err != nil {
		removeDBFiles(tempPath)
		return fmt.Errorf("failed to move database into place: %w", err)
	}
	return nil
}

// detach retires the open database of name, leaving its status alone.
func (m *Manager) detach(name string, logger *slog.Logger) {
	m.mu.Lock()
	var old *gtfsdb.Client
	if e := m.entries[name]; e != nil {
		old = e.client
		e.client, e.stops = nil, nil
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.StopDBStatsCollector(name)
	}
	if old != nil {
		m.retire(old, logger, "gtfs_database")
	}
}

// retire closes client once in-flight handles have had retireAfter to finish.
func (m *Manager) retire(client *gtfsdb.Client, logger *slog.Logger, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retired[client] = time.AfterFunc(m.retireAfter, func() {
		m.mu.Lock()
		_, pending := m.retired[client]
		delete(m.retired, client)
		m.mu.Unlock()
		if pending {
			logging.SafeCloseWithLogging(client, logger, label)
		}
	})
}

func removeDBFiles(path string) {
	_ = os.Remove(path)
	removeSidecarFiles(path)
}

func removeSidecarFiles(path string) {
	for _, p := range []string{path + "-wal", path + "-shm", path + "-journal"} {
		_ = os.Remove(p)
	}
}

// Remove closes name and deletes its zip and database.
func (m *Manager) Remove(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if m.Extracting(name) {
		return ErrExtracting
	}

	m.mu.RLock()
	_, known := m.entries[name]
	m.mu.RUnlock()
	zipPath, dbPath := m.path(name, zipExt), m.path(name, dbExt)
	if !known && !exists(zipPath) && !exists(dbPath) {
		return fmt.Errorf("%w: %s", ErrUnknownDatasource, name)
	}

	logger := m.logger.With(slog.String("datasource", name))
	m.detach(name, logger)
	m.mu.Lock()
	delete(m.entries, name)
	m.mu.Unlock()

	if err := os.Remove(zipPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", zipPath, err)
	}
	removeDBFiles(dbPath)
	if exists(dbPath) {
		return fmt.Errorf("failed to remove %s", dbPath)
	}
	if m.metrics != nil {
		m.metrics.DatasourceStatus.DeleteLabelValues(name)
	}
	logging.LogOperation(logger, "datasource_removed")
	return nil
}

// Close waits for running ingestions and closes every database.
func (m *Manager) Close() error {
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, e := range m.entries {
		if e.client == nil {
			continue
		}
		if m.metrics != nil {
			m.metrics.StopDBStatsCollector(name)
		}
		if err := e.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
		e.client, e.stops = nil, nil
	}
	for client, timer := range m.retired {
		timer.Stop()
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing retired database: %w", err))
		}
		delete(m.retired, client)
	}
	return errors.Join(errs...)
}
