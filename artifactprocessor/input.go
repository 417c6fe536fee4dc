// Package artifactprocessor merges a task step's sidecar JSON inputs into
// the canonical result document. Each merge stage is a pure function: given
// the accumulated PageData/Request set and one decoded input, it returns
// the updated values, skipping silently when its input is absent. None of
// the stages mutate shared state across calls, mirroring the accumulator
// discipline runtime.ArtifactManager already uses for binary chunks.
package artifactprocessor

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/wptagent/agent/types"
)

// json is jsoniter's stdlib-compatible configuration: ArtifactProcessor
// decodes one sidecar file per stage per step, on the hot per-task path,
// where jsoniter's faster reflection-based codec pays for itself over
// encoding/json without changing any decode semantics.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StepInputs names the sidecar files ArtifactProcessor reads for one step,
// all optional.
type StepInputs struct {
	DevtoolsRequestsPath string // _devtools_requests.json
	TimedEventsPath      string // _timed_events.json
	MetricsPath          string // _metrics.json
	InteractivePath      string // _interactive.json
	LongTasksPath        string // _long_tasks.json
	VisualProgressPath   string // _visual_progress.json
	UserTimingPath       string // _user_timing.json (trace events)
}

// devtoolsRequestsDoc is the shape of _devtools_requests.json: the driver's
// raw request list plus the page-level timestamps ArtifactProcessor seeds
// PageData from.
type devtoolsRequestsDoc struct {
	Requests  []types.Request `json:"requests"`
	PageData  types.PageData  `json:"pageData"`
}

// timedEventsDoc is the shape of _timed_events.json: W3C user-timing marks
// and measures as captured via performance.getEntries().
type timedEventsDoc struct {
	Marks    []timingMark    `json:"marks"`
	Measures []timingMeasure `json:"measures"`
}

type timingMark struct {
	Name      string  `json:"name"`
	StartTime float64 `json:"startTime"`
}

type timingMeasure struct {
	Name      string  `json:"name"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
}

// visualProgressSample is one entry of _visual_progress.json.
type visualProgressSample struct {
	Time     float64 `json:"time"`
	Progress float64 `json:"progress"`
}

// traceEvent is one Chrome trace event from _user_timing.json, covering the
// subset of fields chrometimings.go and layoutshift.go need.
type traceEvent struct {
	Name      string         `json:"name"`
	Timestamp float64        `json:"ts"`
	Args      map[string]any `json:"args"`
}

// loadJSON decodes path into v, returning (false, nil) when the file does
// not exist so callers can skip the stage cleanly.
func loadJSON(path string, v any) (bool, error) {
	if path == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// loadCustomMetrics decodes _metrics.json, a flat name->raw-string map; raw
// because the coercion rule in custommetrics.go depends on the original
// string form (an int-looking string is not the same as a JSON number that
// happens to be integral).
func loadCustomMetrics(path string) (map[string]string, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		// Numeric JSON values are stored via their literal text so the
		// coercion rule still applies uniformly.
		out[k] = string(v)
	}
	return out, true, nil
}
