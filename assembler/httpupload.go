package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/wptagent/agent/iox"
)

// WorkDoneParams are the query parameters the workdone endpoint expects
// alongside the multipart result archive.
type WorkDoneParams struct {
	Location string
	PC       string
	TestID   string
	Key      string

	// Run/Cached/Done distinguish per-step (sharded) uploads: the run
	// number, whether this is a repeat view, and whether this is the
	// final run of the task.
	Run    int
	Cached bool
	Done   bool

	// CPU and Error are optional diagnostic fields; Error is set when the
	// task finished with a soft or terminal failure.
	CPU   string
	Error string
}

func (p WorkDoneParams) query() url.Values {
	q := url.Values{}
	q.Set("location", p.Location)
	q.Set("pc", p.PC)
	q.Set("testinfo", "1")
	q.Set("id", p.TestID)
	if p.Key != "" {
		q.Set("key", p.Key)
	}
	q.Set("run", strconv.Itoa(p.Run))
	if p.Cached {
		q.Set("cached", "1")
	}
	if p.Done {
		q.Set("done", "1")
	}
	if p.CPU != "" {
		q.Set("cpu", p.CPU)
	}
	if p.Error != "" {
		q.Set("error", p.Error)
	}
	return q
}

// uploadRetries is the number of additional attempts after the first, per
// origin, before falling through to the fallback origin.
const uploadRetries = 2

// StatusError is returned for non-2xx workdone responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("workdone: unexpected status %d", e.Code)
}

// PostWorkDone uploads archivePath to origin's /workdone endpoint as a
// multipart form, retrying failed attempts with backoff. A 4xx response is
// not retried against the same origin, matching the webhook adapter's
// retriable/non-retriable split. If the upload to origin fails for any
// reason, the whole upload (with the same retries) is repeated once against
// fallbackOrigin, if one is configured and differs from origin.
func PostWorkDone(ctx context.Context, client *http.Client, origin, fallbackOrigin string, params WorkDoneParams, archivePath string) error {
	err := postWorkDoneOnce(ctx, client, origin, params, archivePath)
	if err == nil {
		return nil
	}
	if fallbackOrigin == "" || fallbackOrigin == origin {
		return fmt.Errorf("assembler: workdone upload to %s: %w", origin, err)
	}
	if fbErr := postWorkDoneOnce(ctx, client, fallbackOrigin, params, archivePath); fbErr != nil {
		return fmt.Errorf("assembler: workdone upload failed on %s (%v) and fallback %s: %w", origin, err, fallbackOrigin, fbErr)
	}
	return nil
}

func postWorkDoneOnce(ctx context.Context, client *http.Client, origin string, params WorkDoneParams, archivePath string) error {
	var lastErr error
	attempts := 1 + uploadRetries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = doUpload(ctx, client, origin, params, archivePath)
		if lastErr == nil {
			return nil
		}

		var statusErr *StatusError
		if errors.As(lastErr, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 {
			return fmt.Errorf("non-retriable: %w", lastErr)
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func doUpload(ctx context.Context, client *http.Client, origin string, params WorkDoneParams, archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer iox.DiscardClose(f)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "result.zip")
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy archive into form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	reqURL := origin + "/workdone?" + params.query().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}
