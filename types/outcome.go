package types

// Result codes surfaced on PageData.Result.
const (
	ResultSuccess            = 0
	ResultDriverLaunchFailed = 12999 // navigation error with no prior load
	ResultPageLoadTimeout    = 99998 // time budget exhausted, no load
	ResultRequestOverflow    = 99997 // max_requests exceeded without load
)

// TaskOutcomeStatus classifies how a task ended, mirroring the task-result
// control frame exchanged with the BrowserDriver subprocess.
type TaskOutcomeStatus string

const (
	TaskOutcomeCompleted TaskOutcomeStatus = "completed"
	TaskOutcomeError     TaskOutcomeStatus = "error"
	TaskOutcomeCrash     TaskOutcomeStatus = "crash"
)

// TaskOutcome is the final outcome of a task as reported by the driver or
// inferred from its exit code.
type TaskOutcome struct {
	Status    TaskOutcomeStatus `msgpack:"status" json:"status"`
	Message   string            `msgpack:"message,omitempty" json:"message,omitempty"`
	ErrorType string            `msgpack:"error_type,omitempty" json:"error_type,omitempty"`
	Stack     string            `msgpack:"stack,omitempty" json:"stack,omitempty"`
}
