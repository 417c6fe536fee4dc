package runtime

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/wptagent/agent/types"
)

func TestBuildTaskReport_IncludesArtifactStats(t *testing.T) {
	artifacts := NewArtifactManager()
	if err := artifacts.CommitArtifact("a1", "screenshot.png", "image/png", 3); err != nil {
		t.Fatal(err)
	}
	if err := artifacts.AddChunk(&types.ArtifactChunk{ArtifactID: "a1", Seq: 1, Data: []byte("abc"), IsLast: true}); err != nil {
		t.Fatal(err)
	}

	result := &TaskResult{
		Task:      &types.Task{ID: "task-1"},
		Outcome:   types.TaskOutcome{Status: types.TaskOutcomeCompleted},
		Artifacts: artifacts,
	}
	lineage := &types.JobLineage{RunID: "run-1", JobID: "job-1", Attempt: 1}

	report := BuildTaskReport(result, lineage, 0)

	if report.TaskID != "task-1" || report.JobID != "job-1" || report.Outcome != types.TaskOutcomeCompleted {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Artifacts == nil || report.Artifacts.CommittedArtifacts != 1 {
		t.Fatalf("expected one committed artifact, got %+v", report.Artifacts)
	}
}

func TestWriteTaskReport_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	report := &TaskReport{RunID: "run-1", TaskID: "task-1", Outcome: types.TaskOutcomeCompleted}

	if err := WriteTaskReport(report, path); err != nil {
		t.Fatalf("WriteTaskReport: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var got TaskReport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if got.TaskID != "task-1" {
		t.Errorf("TaskID = %q, want task-1", got.TaskID)
	}
}

func TestWriteTaskReport_EmptyPathErrors(t *testing.T) {
	if err := WriteTaskReport(&TaskReport{}, ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
