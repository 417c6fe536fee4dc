package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/wptagent/agent/types"
)

// TaskReport is the structured JSON report optionally written per task,
// for local debugging of a single run without a work server round trip.
type TaskReport struct {
	RunID      string             `json:"run_id"`
	JobID      string             `json:"job_id,omitempty"`
	Attempt    int                `json:"attempt"`
	TaskID     string             `json:"task_id"`
	Outcome    types.TaskOutcomeStatus `json:"outcome"`
	Message    string             `json:"message"`
	ExitCode   int                `json:"exit_code"`

	Artifacts *ArtifactStats `json:"artifacts"`
}

// BuildTaskReport composes a TaskReport from a completed TaskResult.
func BuildTaskReport(result *TaskResult, lineage *types.JobLineage, exitCode int) *TaskReport {
	report := &TaskReport{
		RunID:    lineage.RunID,
		Attempt:  lineage.Attempt,
		TaskID:   result.Task.ID,
		Outcome:  result.Outcome.Status,
		Message:  result.Outcome.Message,
		ExitCode: exitCode,
	}
	if lineage.JobID != "" {
		report.JobID = lineage.JobID
	}
	if result.Artifacts != nil {
		stats := result.Artifacts.Stats()
		report.Artifacts = &stats
	}
	return report
}

// WriteTaskReport writes the report as JSON to path. Path "-" writes to
// stderr instead, for interactive debugging without a file argument.
func WriteTaskReport(report *TaskReport, path string) error {
	if path == "" {
		return errors.New("runtime: report path must not be empty")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("runtime: marshal report: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		if _, err := os.Stderr.Write(data); err != nil {
			return fmt.Errorf("runtime: write report to stderr: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("runtime: write report to %s: %w", path, err)
	}
	return nil
}
