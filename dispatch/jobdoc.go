package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/wptagent/agent/types"
)

// jobDocument is the wire shape of a coordinator/scheduler job response.
// Field names follow the getwork.php/wpt-dequeue job document; unknown
// fields are ignored.
type jobDocument struct {
	TestID       string  `json:"test_id"`
	Signature    string  `json:"signature"`
	SchedulerJob *string `json:"scheduler_job_id,omitempty"`
	ParentRunID  *string `json:"parent_run_id,omitempty"`

	Runs           int  `json:"runs"`
	FirstViewOnly  bool `json:"first_view_only"`
	WarmupRuns     int  `json:"warmup_runs"`
	ViewportWidth  int  `json:"viewport_width"`
	ViewportHeight int  `json:"viewport_height"`
	DPR            float64 `json:"dpr"`
	TimeoutSeconds int  `json:"timeout_seconds"`
	ActivityTimeoutMs int `json:"activity_timeout_ms"`
	MaxRequests    int  `json:"max_requests"`
	StopAtOnload   bool `json:"stop_at_onload"`
	VideoEnabled   bool `json:"video_enabled"`
	TCPDumpEnabled bool `json:"tcpdump_enabled"`
	KeepVideo      bool `json:"keep_video"`
	AllBodies      bool `json:"all_bodies"`
	HTMLBody       bool `json:"html_body"`

	InKbps           int     `json:"in_kbps"`
	OutKbps          int     `json:"out_kbps"`
	RTTMs            int     `json:"rtt_ms"`
	LossPct          float64 `json:"loss_pct"`
	ShaperQueueLimit int     `json:"shaper_queue_limit"`

	CPUThrottle float64 `json:"cpu_throttle"`

	URL        string `json:"url"`
	ScriptText string `json:"script"`

	Headers             map[string]string `json:"headers,omitempty"`
	Cookies             []string          `json:"cookies,omitempty"`
	HostRules           []string          `json:"host_rules,omitempty"`
	CustomMetricScripts map[string]string `json:"custom_metric_scripts,omitempty"`
	ExtensionIDs        []string          `json:"extension_ids,omitempty"`

	Routing jobDocumentRouting `json:"routing"`
}

type jobDocumentRouting struct {
	BlobBucket          string `json:"blob_bucket,omitempty"`
	BlobPath            string `json:"blob_path,omitempty"`
	PubsubRetryQueue    string `json:"pubsub_retry_queue,omitempty"`
	PubsubCompleteQueue string `json:"pubsub_complete_queue,omitempty"`
}

// parseJobDocument decodes a coordinator job document and translates it
// into the domain Job, tagging it with the origin it was acquired from.
func parseJobDocument(body []byte, originURL string) (*types.Job, error) {
	var doc jobDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("dispatch: decode job document: %w", err)
	}

	job := &types.Job{
		TestID:       doc.TestID,
		Signature:    doc.Signature,
		OriginURL:    originURL,
		SchedulerJob: doc.SchedulerJob,
		ParentRunID:  doc.ParentRunID,

		Runs:              doc.Runs,
		FirstViewOnly:     doc.FirstViewOnly,
		WarmupRuns:        doc.WarmupRuns,
		ViewportWidth:     doc.ViewportWidth,
		ViewportHeight:    doc.ViewportHeight,
		DPR:               doc.DPR,
		TimeoutSeconds:    doc.TimeoutSeconds,
		ActivityTimeoutMs: doc.ActivityTimeoutMs,
		MaxRequests:       doc.MaxRequests,
		StopAtOnload:      doc.StopAtOnload,
		VideoEnabled:      doc.VideoEnabled,
		TCPDumpEnabled:    doc.TCPDumpEnabled,
		KeepVideo:         doc.KeepVideo,
		AllBodies:         doc.AllBodies,
		HTMLBody:          doc.HTMLBody,

		InKbps:           doc.InKbps,
		OutKbps:          doc.OutKbps,
		RTTMs:            doc.RTTMs,
		LossPct:          doc.LossPct,
		ShaperQueueLimit: doc.ShaperQueueLimit,

		CPUThrottle: doc.CPUThrottle,

		URL:        doc.URL,
		ScriptText: doc.ScriptText,

		Headers:             doc.Headers,
		Cookies:             doc.Cookies,
		HostRules:           doc.HostRules,
		CustomMetricScripts: doc.CustomMetricScripts,
		ExtensionIDs:        doc.ExtensionIDs,

		Routing: types.OutputRouting{
			BlobBucket:          doc.Routing.BlobBucket,
			BlobPath:            doc.Routing.BlobPath,
			PubsubRetryQueue:    doc.Routing.PubsubRetryQueue,
			PubsubCompleteQueue: doc.Routing.PubsubCompleteQueue,
		},
	}

	if job.Runs < 1 {
		job.Runs = 1
	}
	if job.CPUThrottle == 0 {
		job.CPUThrottle = 1.0
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("dispatch: job document failed validation: %w", err)
	}

	return job, nil
}
