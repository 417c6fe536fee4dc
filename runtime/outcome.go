package runtime

import (
	"fmt"

	"github.com/wptagent/agent/types"
)

// Exit codes per the browser-driver subprocess contract.
const (
	ExitCodeCompleted    = 0 // task_complete emitted
	ExitCodeError        = 1 // task_error emitted
	ExitCodeCrash        = 2 // driver crash (no terminal event)
	ExitCodeInvalidInput = 3 // invalid task input
)

// DetermineOutcome classifies a task's outcome from the driver's exit code
// and whichever terminal StepEvent (if any) was observed during ingestion.
//
// Exit code mapping:
//   - 0: completed (should have carried task_complete)
//   - 1: error (should have carried task_error)
//   - 2: crash
//   - 3: invalid input (treated as crash)
func DetermineOutcome(exitCode int, hasTerminal bool, terminalEvent *types.StepEvent) types.TaskOutcome {
	switch exitCode {
	case ExitCodeCompleted:
		if hasTerminal && terminalEvent.Type == types.StepEventTaskComplete {
			return types.TaskOutcome{
				Status:  types.TaskOutcomeCompleted,
				Message: "task completed successfully",
			}
		}
		return types.TaskOutcome{
			Status:  types.TaskOutcomeCrash,
			Message: "driver exited cleanly without a terminal event",
		}

	case ExitCodeError:
		if hasTerminal && terminalEvent.Type == types.StepEventTaskError {
			return extractTaskErrorOutcome(terminalEvent)
		}
		return types.TaskOutcome{
			Status:  types.TaskOutcomeCrash,
			Message: "driver exited with error without a terminal event",
		}

	case ExitCodeCrash:
		return types.TaskOutcome{
			Status:  types.TaskOutcomeCrash,
			Message: "browser driver crashed",
		}

	case ExitCodeInvalidInput:
		return types.TaskOutcome{
			Status:  types.TaskOutcomeCrash,
			Message: "browser driver rejected invalid task input",
		}

	default:
		return types.TaskOutcome{
			Status:  types.TaskOutcomeCrash,
			Message: fmt.Sprintf("browser driver exited with unexpected code %d", exitCode),
		}
	}
}

// extractTaskErrorOutcome extracts outcome details from a task_error event's payload.
func extractTaskErrorOutcome(event *types.StepEvent) types.TaskOutcome {
	outcome := types.TaskOutcome{
		Status:  types.TaskOutcomeError,
		Message: "task error",
	}

	if event.Payload == nil {
		return outcome
	}
	if msg, ok := event.Payload["message"].(string); ok && msg != "" {
		outcome.Message = msg
	}
	if errType, ok := event.Payload["error_type"].(string); ok {
		outcome.ErrorType = errType
	}
	if stack, ok := event.Payload["stack"].(string); ok {
		outcome.Stack = stack
	}
	return outcome
}
