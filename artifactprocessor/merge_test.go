package artifactprocessor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeJSON(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestMerge_MissingInputsProduceEmptyResult(t *testing.T) {
	result, err := Merge(StepInputs{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(result.Requests) != 0 {
		t.Errorf("expected no requests, got %d", len(result.Requests))
	}
}

func TestMerge_UserTimingMarksAndMeasures(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "_timed_events.json", timedEventsDoc{
		Marks: []timingMark{
			{Name: "mark-a", StartTime: 100.4},
			{Name: "mark-b", StartTime: 250.6},
			{Name: "too-late", StartTime: 4_000_000},
			{Name: "zero", StartTime: 0},
		},
		Measures: []timingMeasure{
			{Name: "measure-a", StartTime: 100, Duration: 50.2},
		},
	})

	result, err := Merge(StepInputs{TimedEventsPath: path})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	pd := result.PageData

	if pd.Fields["userTime.mark-a"] != int64(100) {
		t.Errorf("userTime.mark-a = %v", pd.Fields["userTime.mark-a"])
	}
	if pd.UserTimes["mark-b"] != int64(251) {
		t.Errorf("userTimes[mark-b] = %v", pd.UserTimes["mark-b"])
	}
	if pd.UserTime != 251 {
		t.Errorf("UserTime = %d, want 251 (max start time)", pd.UserTime)
	}
	if _, ok := pd.Fields["userTime.too-late"]; ok {
		t.Error("mark past 3_600_000ms should be excluded")
	}
	if _, ok := pd.Fields["userTime.zero"]; ok {
		t.Error("mark at startTime=0 should be excluded")
	}
	if len(pd.UserTimingMeasures) != 1 || pd.UserTimingMeasures[0].Duration != 50 {
		t.Errorf("UserTimingMeasures = %+v", pd.UserTimingMeasures)
	}
}

func TestMerge_CustomMetricsCoercion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "_metrics.json")
	if err := os.WriteFile(path, []byte(`{"count":"42","ratio":"3.5","label":"ok"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	result, err := Merge(StepInputs{MetricsPath: path})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	pd := result.PageData

	if pd.Fields["count"] != int64(42) {
		t.Errorf("count = %v (%T)", pd.Fields["count"], pd.Fields["count"])
	}
	if pd.Fields["ratio"] != 3.5 {
		t.Errorf("ratio = %v", pd.Fields["ratio"])
	}
	if pd.Fields["label"] != "ok" {
		t.Errorf("label = %v", pd.Fields["label"])
	}
	if len(pd.Custom) != 3 {
		t.Errorf("Custom = %v", pd.Custom)
	}
}

func TestMerge_VisualProgressThresholds(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "_visual_progress.json", []visualProgressSample{
		{Time: 0, Progress: 0},
		{Time: 500, Progress: 40},
		{Time: 1000, Progress: 90},
		{Time: 1500, Progress: 100},
	})

	result, err := Merge(StepInputs{VisualProgressPath: path})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	pd := result.PageData

	if pd.Render != 500 {
		t.Errorf("Render = %d, want 500 (second sample)", pd.Render)
	}
	if pd.LastVisualChange != 1500 {
		t.Errorf("LastVisualChange = %d", pd.LastVisualChange)
	}
	if pd.VisualComplete90 != 1000 {
		t.Errorf("VisualComplete90 = %d", pd.VisualComplete90)
	}
	if pd.VisualComplete != 1500 {
		t.Errorf("VisualComplete = %d", pd.VisualComplete)
	}
	if pd.SpeedIndex == 0 {
		t.Error("expected nonzero SpeedIndex")
	}
}

func TestMerge_LayoutShiftWindowing(t *testing.T) {
	dir := t.TempDir()
	events := []traceEvent{
		{Name: "LayoutShift", Timestamp: 100, Args: map[string]any{"is_main_frame": true, "score": 0.05}},
		{Name: "LayoutShift", Timestamp: 300, Args: map[string]any{"is_main_frame": true, "score": 0.02}},
		{Name: "LayoutShift", Timestamp: 6000, Args: map[string]any{"is_main_frame": true, "score": 0.2}},
		{Name: "LayoutShift", Timestamp: 6050, Args: map[string]any{"is_main_frame": false, "score": 0.9}},
	}
	path := writeJSON(t, dir, "_user_timing.json", events)

	result, err := Merge(StepInputs{UserTimingPath: path})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	pd := result.PageData

	if len(pd.LayoutShifts) != 3 {
		t.Fatalf("expected 3 main-frame samples, got %d", len(pd.LayoutShifts))
	}
	if pd.Fields["TotalLayoutShift"] != 0.27 && pd.Fields["TotalLayoutShift"] != 0.27000000000000002 {
		t.Errorf("TotalLayoutShift = %v", pd.Fields["TotalLayoutShift"])
	}
	if pd.CumulativeLayoutShift <= 0 {
		t.Error("expected nonzero CumulativeLayoutShift")
	}
	if pd.LayoutShifts[2].ShiftWindowNum != 1 {
		t.Errorf("third sample should start a new window (gap > 5000ms), got window %d", pd.LayoutShifts[2].ShiftWindowNum)
	}
}

func TestMerge_ChromeUserTimingPrefersEarliestForFirst(t *testing.T) {
	dir := t.TempDir()
	events := []traceEvent{
		{Name: "chromeUserTiming", Timestamp: 200, Args: map[string]any{"name": "firstPaint"}},
		{Name: "chromeUserTiming", Timestamp: 100, Args: map[string]any{"name": "firstPaint"}},
		{Name: "chromeUserTiming", Timestamp: 100, Args: map[string]any{"name": "domComplete"}},
		{Name: "chromeUserTiming", Timestamp: 300, Args: map[string]any{"name": "domComplete"}},
	}
	path := writeJSON(t, dir, "_user_timing.json", events)

	result, err := Merge(StepInputs{UserTimingPath: path})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	pd := result.PageData

	// Relative to the first event's timestamp (no explicit startTime arg is
	// present): firstPaint occurs at offsets 0 and -100, domComplete at -100
	// and 100.
	if pd.Fields["chromeUserTiming.firstPaint"] != int64(-100) {
		t.Errorf("firstPaint = %v, want earliest (-100)", pd.Fields["chromeUserTiming.firstPaint"])
	}
	if pd.Fields["chromeUserTiming.domComplete"] != int64(100) {
		t.Errorf("domComplete = %v, want latest (100)", pd.Fields["chromeUserTiming.domComplete"])
	}
}

func TestMerge_LargestPaintKeepsMaxSize(t *testing.T) {
	dir := t.TempDir()
	events := []traceEvent{
		{Name: "LargestImagePaint::Candidate", Timestamp: 100, Args: map[string]any{"size": float64(500), "isMainFrame": true}},
		{Name: "LargestImagePaint::Candidate", Timestamp: 200, Args: map[string]any{"size": float64(1500), "isMainFrame": true}},
		{Name: "LargestImagePaint::Candidate", Timestamp: 300, Args: map[string]any{"size": float64(900), "isMainFrame": true}},
	}
	path := writeJSON(t, dir, "_user_timing.json", events)

	result, err := Merge(StepInputs{UserTimingPath: path})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	pd := result.PageData

	if len(pd.LargestPaints) != 1 {
		t.Fatalf("expected exactly one kept largest-paint event, got %d", len(pd.LargestPaints))
	}
	if pd.LargestPaints[0].Size != 1500 {
		t.Errorf("kept size = %d, want 1500 (the max)", pd.LargestPaints[0].Size)
	}
}
