package config

import (
	"net/http"
	"time"
)

const (
	pollTimeout   = 10 * time.Second
	uploadTimeout = 600 * time.Second
	healthTimeout = 30 * time.Second
)

// HTTPClients bundles the per-concern HTTP clients used throughout the
// agent. Each concern gets its own *http.Client so a slow upload cannot
// stall poll or health traffic and vice versa.
type HTTPClients struct {
	// Poll is used by Dispatcher.acquire against work servers and scheduler
	// nodes. 10s per spec.
	Poll *http.Client
	// Upload is used by ResultAssembler for the workdone multipart POST and
	// by the bodyfetcher for response-body downloads. 600s per spec: zip
	// artifacts can run large.
	Upload *http.Client
	// Health is used by HealthReporter for diagnostics and ping heartbeats.
	// 30s per spec's 5-30s range; callers may shorten with context.
	Health *http.Client
}

// NewHTTPClients constructs the three per-concern clients with the
// timeouts named in the concurrency model.
func NewHTTPClients() *HTTPClients {
	return &HTTPClients{
		Poll:   &http.Client{Timeout: pollTimeout},
		Upload: &http.Client{Timeout: uploadTimeout},
		Health: &http.Client{Timeout: healthTimeout},
	}
}
