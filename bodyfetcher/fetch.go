package bodyfetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// maxBodyBytes bounds a single re-downloaded body; larger responses are
// rejected rather than buffered whole, mirroring ArtifactChunk's
// MaxArtifactSize discipline in runtime/artifacts.go.
const maxBodyBytes = 64 * 1024 * 1024

// pseudoHeaderPrefix marks HTTP/2 pseudo-headers (":authority", ":path",
// ...) that must not be replayed as ordinary header fields.
const pseudoHeaderPrefix = ":"

// hopByHopHeaders are stripped before replaying a request's captured
// headers, matching spec.md's "strips Accept-Encoding and pseudo-headers"
// rule plus the standard hop-by-hop set a proxy would also drop.
var hopByHopHeaders = map[string]bool{
	"accept-encoding":   true,
	"connection":        true,
	"keep-alive":        true,
	"proxy-connection":  true,
	"transfer-encoding": true,
	"upgrade":           true,
	"content-length":    true,
}

// fetchBody re-downloads req.URL with req.Headers (minus hop-by-hop and
// pseudo-headers), decodes any Content-Encoding the server still applies,
// and validates the result is UTF-8 text.
func fetchBody(ctx context.Context, client *http.Client, req Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("bodyfetcher: build request for %s: %w", req.URL, err)
	}
	for k, v := range req.Headers {
		if strings.HasPrefix(k, pseudoHeaderPrefix) || hopByHopHeaders[strings.ToLower(k)] {
			continue
		}
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bodyfetcher: fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("bodyfetcher: %s: %w", req.URL, err)
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("bodyfetcher: read body for %s: %w", req.URL, err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("bodyfetcher: body for %s exceeds %d bytes", req.URL, maxBodyBytes)
	}

	if !utf8.Valid(data) {
		return nil, fmt.Errorf("bodyfetcher: body for %s is not valid UTF-8", req.URL)
	}

	return data, nil
}

// decodeBody wraps resp.Body in a decompressing reader per its
// Content-Encoding header, or returns it unwrapped for identity/unknown
// encodings.
func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		return gz, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}
