// Package types defines the core domain records shared across the agent:
// jobs acquired from a coordinator, the run×view tasks derived from them,
// the scripted commands that drive a task, and the canonical result a task
// produces.
package types

import "fmt"

// OutputRouting describes where a completed job's result archive goes.
type OutputRouting struct {
	// BlobBucket/BlobPath select the object-storage upload target, when set.
	BlobBucket string
	BlobPath   string
	// PubsubRetryQueue, when set, receives the raw job payload on upload failure.
	PubsubRetryQueue string
	// PubsubCompleteQueue, when set, receives the augmented result record on success.
	PubsubCompleteQueue string
}

// HasBlobTarget reports whether a blob-storage destination is configured.
func (o OutputRouting) HasBlobTarget() bool {
	return o.BlobBucket != "" && o.BlobPath != ""
}

// JobState is the run×view progress cursor owned by RunController.
type JobState struct {
	Run        int
	RepeatView bool
	Done       bool
}

// Job is a unit of work acquired from a coordinator or scheduler.
//
// State and WarmupCountdown are mutated only by RunController.AdvanceState;
// ScriptCompiler pre-applies state-mutation verbs onto its test parameters.
// Destroyed after ResultAssembler.Finalize. See DATA MODEL invariants.
type Job struct {
	// Identity, immutable once acquired.
	TestID        string
	Signature     string
	OriginURL     string
	SchedulerJob  *string
	ParentRunID   *string

	// Test parameters.
	Runs               int
	FirstViewOnly      bool
	WarmupRuns         int
	ViewportWidth      int
	ViewportHeight     int
	DPR                float64
	TimeoutSeconds     int
	ActivityTimeoutMs  int
	MaxRequests        int // 0 means unbounded
	StopAtOnload       bool
	VideoEnabled       bool
	TCPDumpEnabled     bool
	KeepVideo          bool

	// AllBodies requests HTML/JS/JSON response bodies be backfilled by
	// BodyFetcher; HTMLBody narrows that to just the base page.
	AllBodies bool
	HTMLBody  bool

	// Network shaping parameters, passed through to TrafficShaper.
	InKbps           int
	OutKbps          int
	RTTMs            int
	LossPct          float64
	ShaperQueueLimit int

	// CPUThrottle is the post-normalization throttle factor (1.0 = no throttle).
	CPUThrottle float64

	// URL or ScriptText is provided; ScriptCompiler synthesizes a navigate
	// command when ScriptText is empty.
	URL        string
	ScriptText string

	Headers    map[string]string
	Cookies    []string
	HostRules  []string
	CustomMetricScripts map[string]string
	ExtensionIDs        []string

	Routing OutputRouting

	// WarmupCountdown is decremented by RunController as warmup tasks are produced.
	WarmupCountdown int

	// State is the current run×view cursor.
	State JobState
}

// Validate checks the structural invariants ScriptCompiler and RunController
// depend on before a job is handed off.
func (j *Job) Validate() error {
	if j.TestID == "" {
		return fmt.Errorf("job: test_id is required")
	}
	if j.Runs < 1 {
		return fmt.Errorf("job: runs must be >= 1, got %d", j.Runs)
	}
	if j.WarmupRuns < 0 {
		return fmt.Errorf("job: warmup_runs must be >= 0, got %d", j.WarmupRuns)
	}
	if j.URL == "" && j.ScriptText == "" {
		return fmt.Errorf("job: one of url or script is required")
	}
	return nil
}

// IsDone reports whether the job's state machine has terminated. A done job
// must not be advanced further; the next acquire starts a new job.
func (j *Job) IsDone() bool {
	return j.State.Done
}
