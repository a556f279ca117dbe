package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"departureboard.app/internal/logging"
)

const (
	maxStaticSize   = 200 * 1024 * 1024
	maxSnapshotSize = 25 * 1024 * 1024
)

// RetryPolicy bounds the exponential backoff of static downloads.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
}

// DefaultRetryPolicy retries a failed download three times starting at one second.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, InitialInterval: time.Second}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

func newDownloadClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// download fetches url with retries. Client errors (4xx) are not retried.
func (m *Manager) download(ctx context.Context, url string, headers map[string]string, limit int64) ([]byte, error) {
	logger := m.logger.With(slog.String("url", url))

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := m.get(ctx, url, headers, limit)
		if err != nil {
			return err
		}
		body = b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logging.LogWarning(logger, "download_retry_scheduled",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}

	if err := backoff.RetryNotify(op, m.retry.backOff(ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (m *Manager) get(ctx context.Context, url string, headers map[string]string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("error creating request: %w", err))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading %s: %w", url, err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, m.logger, "http_response_body")

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("received HTTP status %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, backoff.Permanent(fmt.Errorf("response exceeds size limit of %d bytes", limit))
	}
	return b, nil
}

// DownloadRealtimeSnapshot stores the raw bytes of a realtime feed as
// <dir>/<name>_rt.trip and returns the written path.
func (m *Manager) DownloadRealtimeSnapshot(ctx context.Context, url, name string, headers map[string]string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	b, err := m.download(ctx, url, headers, maxSnapshotSize)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoDataFile, err)
	}

	path := filepath.Join(m.dir, name+"_rt.trip")
	if err := writeFileAtomic(path, b); err != nil {
		return "", err
	}
	logging.LogOperation(m.logger, "realtime_snapshot_written",
		slog.String("path", path),
		slog.Int("bytes", len(b)))
	return path, nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it into place.
func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	_, werr := tmp.Write(b)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("error moving %s into place: %w", path, err)
	}
	return nil
}
