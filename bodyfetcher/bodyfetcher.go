// Package bodyfetcher backfills response bodies for requests in a
// CanonicalResult: a bounded worker pool re-downloads the bodies
// ArtifactProcessor's merge didn't capture (HTML, JS, JSON, or just the
// base page, depending on job flags), strips hop-by-hop/pseudo headers,
// decodes any content-encoding, rejects non-UTF-8 bodies, and appends
// successful fetches to the job's bodies archive.
//
// Grounded on policy/buffered.go's bounded-buffer-with-explicit-limits
// idiom and runtime/fanout.go's Operator.Run semaphore-bounded worker
// pool, simplified here to a fixed-size pool with no recursive enqueue.
package bodyfetcher

import (
	"context"
	"mime"
	"net/http"
	"strings"

	"github.com/wptagent/agent/types"
)

// MaxWorkers is the bound on concurrent body fetches, per spec.
const MaxWorkers = 10

// eligibleMimeTypes are the content types BodyFetcher backfills when a
// job requests all_bodies.
var eligibleMimeTypes = map[string]bool{
	"text/html":               true,
	"application/xhtml+xml":   true,
	"application/javascript":  true,
	"application/x-javascript": true,
	"text/javascript":         true,
	"application/json":        true,
	"text/json":               true,
}

// Request is one body-fetch job: the URL to re-download, the headers the
// original request carried (minus Accept-Encoding/pseudo-headers, applied
// by the worker), and the request this body belongs to.
type Request struct {
	RequestID string
	URL       string
	Headers   map[string]string
}

// Result is one fetch outcome. Err is nil on success; on success, Data
// holds the decoded, UTF-8-validated body.
type Result struct {
	RequestID string
	Data      []byte
	Err       error
}

// SelectRequests returns the subset of result's requests BodyFetcher
// should re-download, per the job's all_bodies/html_body flags: all_bodies
// selects HTML/JS/JSON responses, html_body narrows that to the single
// base-page request.
func SelectRequests(job *types.Job, result *types.CanonicalResult) []types.Request {
	if !job.AllBodies && !job.HTMLBody {
		return nil
	}

	var selected []types.Request
	for _, req := range result.Requests {
		if job.HTMLBody && !job.AllBodies {
			if req.IsBasePage {
				selected = append(selected, req)
			}
			continue
		}
		if isEligibleMime(req.MimeType) {
			selected = append(selected, req)
		}
	}
	return selected
}

func isEligibleMime(mimeType string) bool {
	if mimeType == "" {
		return false
	}
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	return eligibleMimeTypes[strings.ToLower(base)]
}

// ToFetchRequests converts CanonicalResult requests (as selected by
// SelectRequests) into the Request shape Fetcher.Run consumes, parsing
// each captured "Name: Value" header line back into a map.
func ToFetchRequests(selected []types.Request) []Request {
	out := make([]Request, 0, len(selected))
	for _, req := range selected {
		out = append(out, Request{
			RequestID: req.ID,
			URL:       req.FullURL,
			Headers:   headerMap(req.RequestHeaders),
		})
	}
	return out
}

// headerMap parses "Name: Value" lines as captured by the driver into a
// map, skipping malformed lines.
func headerMap(lines []string) map[string]string {
	if len(lines) == 0 {
		return nil
	}
	headers := make(map[string]string, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers
}

// Fetcher backfills bodies for a set of requests using a bounded worker
// pool. Run blocks until every request has been fetched or ctx is
// canceled.
type Fetcher struct {
	client  *http.Client
	workers int
}

// NewFetcher creates a Fetcher with up to MaxWorkers concurrent fetches.
// client is typically config.HTTPClients.Upload, whose long timeout
// budget suits re-downloading arbitrary response bodies.
func NewFetcher(client *http.Client) *Fetcher {
	return &Fetcher{client: client, workers: MaxWorkers}
}

// Run fetches every request concurrently (bounded to f.workers in flight)
// and returns one Result per input request, in no particular order.
func (f *Fetcher) Run(ctx context.Context, requests []Request) []Result {
	if len(requests) == 0 {
		return nil
	}

	sem := make(chan struct{}, f.workers)
	results := make(chan Result, len(requests))

	for _, req := range requests {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results <- Result{RequestID: req.RequestID, Err: ctx.Err()}
			continue
		}
		go func(r Request) {
			defer func() { <-sem }()
			results <- f.fetchOne(ctx, r)
		}(req)
	}

	out := make([]Result, 0, len(requests))
	for range requests {
		out = append(out, <-results)
	}
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, req Request) Result {
	data, err := fetchBody(ctx, f.client, req)
	if err != nil {
		return Result{RequestID: req.RequestID, Err: err}
	}
	return Result{RequestID: req.RequestID, Data: data}
}
