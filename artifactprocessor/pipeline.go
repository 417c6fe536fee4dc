package artifactprocessor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wptagent/agent/types"
)

// sidecarInputs returns the StepInputs for one step of task, named after
// RunController's StepPrefix convention.
func sidecarInputs(workDir, prefix string) StepInputs {
	return StepInputs{
		DevtoolsRequestsPath: filepath.Join(workDir, prefix+"_devtools_requests.json"),
		TimedEventsPath:      filepath.Join(workDir, prefix+"_timed_events.json"),
		MetricsPath:          filepath.Join(workDir, prefix+"_metrics.json"),
		VisualProgressPath:   filepath.Join(workDir, prefix+"_visual_progress.json"),
		UserTimingPath:       filepath.Join(workDir, prefix+"_user_timing.json"),
	}
}

// ProcessTask merges every recorded step of task (1..ScriptStepCount, or
// just step 1 for a single-step task) and writes each step's canonical
// result as "{prefix}.json" into task.WorkDir, ready for ResultAssembler
// to zip. It returns the last step's result marshaled as JSON, the
// summary ResultAssembler publishes to the completion queue on success.
func ProcessTask(task *types.Task) ([]byte, error) {
	steps := task.ScriptStepCount
	if steps < 1 {
		steps = 1
	}

	var last *types.CanonicalResult
	for step := 1; step <= steps; step++ {
		prefix, _ := task.StepPrefix(step)

		result, err := Merge(sidecarInputs(task.WorkDir, prefix))
		if err != nil {
			return nil, fmt.Errorf("artifactprocessor: merge step %d: %w", step, err)
		}

		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("artifactprocessor: marshal step %d: %w", step, err)
		}
		if err := os.WriteFile(filepath.Join(task.WorkDir, prefix+".json"), data, 0o644); err != nil {
			return nil, fmt.Errorf("artifactprocessor: write step %d result: %w", step, err)
		}

		last = result
	}

	if last == nil {
		return []byte("{}"), nil
	}
	summary, err := json.Marshal(last)
	if err != nil {
		return nil, fmt.Errorf("artifactprocessor: marshal summary: %w", err)
	}
	return summary, nil
}
