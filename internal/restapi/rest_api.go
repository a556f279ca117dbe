// Package restapi serves the departure board JSON API.
package restapi

import (
	"context"

	"departureboard.app/internal/app"
)

// RestAPI is the HTTP API over one Application.
type RestAPI struct {
	*app.Application
	rateLimiter   *RateLimitMiddleware
	staleDetector *StaleDetector

	// workerCtx outlives requests so ingestion started over HTTP keeps running.
	workerCtx    context.Context
	cancelWorker context.CancelFunc
}

func NewRestAPI(application *app.Application) *RestAPI {
	ctx, cancel := context.WithCancel(context.Background())
	return &RestAPI{
		Application:   application,
		rateLimiter:   NewRateLimitMiddleware(application.Config.RateLimit, application.Clock),
		staleDetector: NewStaleDetector(),
		workerCtx:     ctx,
		cancelWorker:  cancel,
	}
}

// Shutdown stops background work owned by the API. It is safe to call
// more than once.
func (api *RestAPI) Shutdown() {
	api.rateLimiter.Stop()
	api.cancelWorker()
}
