package realtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"departureboard.app/internal/logging"
)

const maxFeedSize = 25 * 1024 * 1024

// Fetcher downloads feed payloads. Every request is bounded by Timeout even
// when the caller's context has no deadline.
type Fetcher struct {
	Client  *http.Client
	Timeout time.Duration
	logger  *slog.Logger
}

func NewFetcher(timeout time.Duration) *Fetcher {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second

	return &Fetcher{
		Client:  &http.Client{Timeout: timeout, Transport: transport},
		Timeout: timeout,
		logger:  slog.Default().With(slog.String("component", "realtime_fetcher")),
	}
}

// Fetch downloads url. A non-200 status is logged and the body is still
// returned so the caller can attempt a decode.
func (f *Fetcher) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Add(key, value)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute GTFS-RT request: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, f.logger, "http_response_body")

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("gtfs-rt fetch returned non-OK status",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > maxFeedSize {
		return nil, fmt.Errorf("GTFS-RT response exceeds size limit of %d bytes", maxFeedSize)
	}
	return body, nil
}

// FetchEntities downloads and decodes one feed.
func (f *Fetcher) FetchEntities(ctx context.Context, url string, headers map[string]string) ([]Entity, error) {
	body, err := f.Fetch(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	return Decode(body)
}
