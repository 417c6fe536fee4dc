package artifactprocessor

import (
	"fmt"

	"github.com/wptagent/agent/types"
)

// Merge composes the canonical result for one step from its sidecar
// inputs, applying each stage in a fixed order. Every stage is idempotent
// and skips cleanly when its input file is absent.
func Merge(inputs StepInputs) (*types.CanonicalResult, error) {
	result := &types.CanonicalResult{PageData: types.PageData{Fields: map[string]any{}}}

	var devtools devtoolsRequestsDoc
	if ok, err := loadJSON(inputs.DevtoolsRequestsPath, &devtools); err != nil {
		return nil, fmt.Errorf("devtools requests: %w", err)
	} else if ok {
		result.Requests = devtools.Requests
		result.PageData = devtools.PageData
		if result.PageData.Fields == nil {
			result.PageData.Fields = map[string]any{}
		}
	}

	var timed timedEventsDoc
	if ok, err := loadJSON(inputs.TimedEventsPath, &timed); err != nil {
		return nil, fmt.Errorf("timed events: %w", err)
	} else if ok {
		result.PageData = mergeUserTiming(result.PageData, timed)
	}

	if metrics, ok, err := loadCustomMetrics(inputs.MetricsPath); err != nil {
		return nil, fmt.Errorf("custom metrics: %w", err)
	} else if ok {
		result.PageData = mergeCustomMetrics(result.PageData, metrics)
	}

	var samples []visualProgressSample
	if ok, err := loadJSON(inputs.VisualProgressPath, &samples); err != nil {
		return nil, fmt.Errorf("visual progress: %w", err)
	} else if ok {
		result.PageData = mergeVisualProgress(result.PageData, samples)
	}

	var traceEvents []traceEvent
	if ok, err := loadJSON(inputs.UserTimingPath, &traceEvents); err != nil {
		return nil, fmt.Errorf("user timing trace: %w", err)
	} else if ok {
		result.PageData = mergeChromeTimings(result.PageData, traceEvents)
		result.PageData = mergeLayoutShift(result.PageData, traceEvents)
	}

	return result, nil
}
