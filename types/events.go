package types

// ContractVersion is the wire-contract version shared between the agent
// core and the BrowserDriver subprocess.
const ContractVersion = "0.1.0"

// StepEventType discriminates the events a BrowserDriver subprocess streams
// back to RunController over the devtools IPC channel.
type StepEventType string

const (
	// StepEventRequest reports one completed network request.
	StepEventRequest StepEventType = "request"
	// StepEventArtifact commits a per-step artifact (video/pcap/devtools log).
	StepEventArtifact StepEventType = "artifact"
	// StepEventCheckpoint marks a load-idle or step boundary.
	StepEventCheckpoint StepEventType = "checkpoint"
	// StepEventProgress carries an advisory visual-progress sample.
	StepEventProgress StepEventType = "progress"
	// StepEventLog carries a driver log line.
	StepEventLog StepEventType = "log"
	// StepEventTaskError is terminal: the driver hit an unrecoverable error.
	StepEventTaskError StepEventType = "task_error"
	// StepEventTaskComplete is terminal: the driver finished the task normally.
	StepEventTaskComplete StepEventType = "task_complete"
)

// IsTerminal reports whether this event type ends the event stream.
func (t StepEventType) IsTerminal() bool {
	return t == StepEventTaskError || t == StepEventTaskComplete
}

// LogLevel mirrors the driver's log severities.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// StepEvent is the envelope for every event a BrowserDriver subprocess
// emits. All fields use msgpack tags to match the driver-side wire format.
type StepEvent struct {
	ContractVersion string         `msgpack:"contract_version"`
	EventID         string         `msgpack:"event_id"`
	RunID           string         `msgpack:"run_id"`
	Seq             int64          `msgpack:"seq"`
	Type            StepEventType  `msgpack:"type"`
	Ts              string         `msgpack:"ts"`
	Payload         map[string]any `msgpack:"payload"`
	JobID           *string        `msgpack:"job_id,omitempty"`
	ParentRunID     *string        `msgpack:"parent_run_id,omitempty"`
	Attempt         int            `msgpack:"attempt"`
}

// RequestPayload is the per-request StepEvent payload.
type RequestPayload struct {
	RequestID string         `msgpack:"request_id"`
	Data      map[string]any `msgpack:"data"`
}

// ArtifactPayload commits an artifact whose bytes are transmitted as
// separate ArtifactChunkFrame messages.
type ArtifactPayload struct {
	ArtifactID  string `msgpack:"artifact_id"`
	Name        string `msgpack:"name"`
	ContentType string `msgpack:"content_type"`
	SizeBytes   int64  `msgpack:"size_bytes"`
}

// CheckpointPayload marks a named boundary within the task.
type CheckpointPayload struct {
	CheckpointID string  `msgpack:"checkpoint_id"`
	Note         *string `msgpack:"note,omitempty"`
}

// ProgressPayload is an advisory visual-progress sample; not guaranteed.
type ProgressPayload struct {
	TimeMs   int64   `msgpack:"time_ms"`
	Progress float64 `msgpack:"progress"`
}

// LogPayload carries a single driver log line.
type LogPayload struct {
	Level   LogLevel       `msgpack:"level"`
	Message string         `msgpack:"message"`
	Fields  map[string]any `msgpack:"fields,omitempty"`
}

// TaskErrorPayload is the terminal error payload.
type TaskErrorPayload struct {
	ErrorType string  `msgpack:"error_type"`
	Message   string  `msgpack:"message"`
	Stack     *string `msgpack:"stack,omitempty"`
}

// TaskCompletePayload is the terminal success payload.
type TaskCompletePayload struct {
	Summary map[string]any `msgpack:"summary,omitempty"`
}
