package artifactprocessor

import (
	"strings"

	"github.com/wptagent/agent/types"
)

// mergeChromeTimings applies the Chrome-timing merge rule: it identifies
// the main-frame id from isLoadingMainFrame/isMainFrame/markAsMainFrame
// tags (falling back to the frame of the first navigation-timing event),
// establishes start_time from the first explicit startTime field (else the
// first event's raw timestamp), keeps the largest Largest*Paint event per
// frame, records per-element timings, and promotes chromeUserTiming.<name>
// entries preferring the earliest time for names containing "first", else
// the latest.
func mergeChromeTimings(pd types.PageData, events []traceEvent) types.PageData {
	if len(events) == 0 {
		return pd
	}
	if pd.Fields == nil {
		pd.Fields = map[string]any{}
	}

	mainFrame := mainFrameID(events)
	startTime := startTimeOf(events)

	var userTiming []map[string]any
	var bestLargest *traceEvent
	var bestSize float64

	for i := range events {
		ev := &events[i]
		if !isOnFrame(ev, mainFrame) {
			continue
		}

		if strings.HasPrefix(ev.Name, "Largest") {
			size, ok := numArg(ev, "size")
			if !ok {
				continue
			}
			if bestLargest == nil || size > bestSize {
				bestLargest = ev
				bestSize = size
			}
			continue
		}

		if ev.Name == "chromeUserTiming" {
			name, _ := ev.Args["name"].(string)
			if name == "" {
				continue
			}
			t := roundMs(ev.Timestamp - startTime)
			key := "chromeUserTiming." + name
			existing, has := pd.Fields[key].(int64)
			preferEarliest := strings.Contains(strings.ToLower(name), "first")
			if !has || (preferEarliest && t < existing) || (!preferEarliest && t > existing) {
				pd.Fields[key] = t
			}
		}
	}

	if bestLargest != nil {
		t := roundMs(bestLargest.Timestamp - startTime)
		timing := types.ElementTiming{Name: bestLargest.Name, StartTime: t, Size: int64(bestSize)}
		pd.LargestPaints = append(pd.LargestPaints, timing)
		pd.ElementTiming = append(pd.ElementTiming, timing)
		userTiming = append(userTiming, map[string]any{
			"name": bestLargest.Name, "startTime": t, "size": int64(bestSize),
		})
	}

	if len(userTiming) > 0 {
		if existing, ok := pd.Fields["user_timing"].([]map[string]any); ok {
			pd.Fields["user_timing"] = append(existing, userTiming...)
		} else {
			pd.Fields["user_timing"] = userTiming
		}
	}

	return pd
}

// mainFrameID returns the frame id tagged isLoadingMainFrame, isMainFrame,
// or markAsMainFrame, or, failing that, the frame of the first
// navigationStart/unloadEventStart/redirectStart/domLoading event.
func mainFrameID(events []traceEvent) string {
	for _, ev := range events {
		if b, ok := ev.Args["isLoadingMainFrame"].(bool); ok && b {
			return frameOf(ev)
		}
		if b, ok := ev.Args["isMainFrame"].(bool); ok && b {
			return frameOf(ev)
		}
		if b, ok := ev.Args["markAsMainFrame"].(bool); ok && b {
			return frameOf(ev)
		}
	}
	for _, ev := range events {
		switch ev.Name {
		case "navigationStart", "unloadEventStart", "redirectStart", "domLoading":
			return frameOf(ev)
		}
	}
	return ""
}

func frameOf(ev traceEvent) string {
	id, _ := ev.Args["frame"].(string)
	return id
}

func isOnFrame(ev *traceEvent, frame string) bool {
	if frame == "" {
		return true
	}
	return frameOf(*ev) == frame
}

// startTimeOf returns the first explicit startTime field across events, or
// the first event's raw timestamp if none carry one.
func startTimeOf(events []traceEvent) float64 {
	for _, ev := range events {
		if t, ok := numArg(&ev, "startTime"); ok {
			return t
		}
	}
	return events[0].Timestamp
}

func numArg(ev *traceEvent, key string) (float64, bool) {
	v, ok := ev.Args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
