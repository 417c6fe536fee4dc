// Package health implements HealthReporter: periodic diagnostics delivery
// to scheduler nodes and work servers, plus an optional liveness surface.
package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wptagent/agent/dispatch"
	"github.com/wptagent/agent/hostos"
	"github.com/wptagent/agent/log"
	"github.com/wptagent/agent/types"
)

// minReportInterval is the floor between diagnostics beats, per spec's
// "at most once per minute."
const minReportInterval = time.Minute

// tickInterval is how often Run wakes to check whether minReportInterval
// has elapsed, short enough that a beat goes out promptly after the
// interval passes without busy-waiting on a bare per-second ticker.
const tickInterval = 15 * time.Second

// Snapshot is the diagnostics payload delivered to scheduler nodes.
type Snapshot struct {
	Machine        string  `json:"machine"`
	AgentVersion   string  `json:"agent_version"`
	InstanceID     string  `json:"instance_id,omitempty"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryCapacity uint64  `json:"memory_capacity"`
	MemoryUsed     uint64  `json:"memory_used"`
	DiskCapacity   uint64  `json:"disk_capacity"`
	DiskUsed       uint64  `json:"disk_used"`
	OS             string  `json:"os"`
}

// Reporter periodically sends a diagnostics snapshot to every configured
// scheduler node, and pings every (server, location) pair when more than
// one work server is configured.
type Reporter struct {
	mu sync.Mutex

	client       *http.Client
	version      string
	instanceID   string
	workDir      string
	snapshotFn   func(workDir string) hostos.Snapshot
	tokens       dispatch.TokenCache
	logger       *log.Logger
	livenessPath string

	routing  func() types.RoutingTable
	lastSent time.Time
	lastSnap Snapshot
}

// Config configures a Reporter.
type Config struct {
	Client       *http.Client
	Version      string
	InstanceID   string
	WorkDir      string
	Routing      func() types.RoutingTable
	LivenessPath string
	Logger       *log.Logger
}

// New creates a Reporter from cfg, defaulting the host-snapshot function
// to hostos.CollectSnapshot.
func New(cfg Config) *Reporter {
	return &Reporter{
		client:       cfg.Client,
		version:      cfg.Version,
		instanceID:   cfg.InstanceID,
		workDir:      cfg.WorkDir,
		snapshotFn:   hostos.CollectSnapshot,
		logger:       cfg.Logger,
		livenessPath: cfg.LivenessPath,
		routing:      cfg.Routing,
	}
}

// Run blocks until ctx is canceled, sending a diagnostics beat at most
// once per minute. Each tick checks the last-sent timestamp rather than
// relying on a bare ticker, so a slow send cannot pile up duplicate beats
// once it finally returns.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.maybeReport(ctx)
		}
	}
}

func (r *Reporter) maybeReport(ctx context.Context) {
	r.mu.Lock()
	due := time.Since(r.lastSent) >= minReportInterval
	r.mu.Unlock()
	if !due {
		return
	}
	r.Report(ctx)
}

// Report sends one diagnostics beat immediately, regardless of the
// last-sent gate, and updates the liveness file. Callers that want the
// once-per-minute cadence should use Run instead.
func (r *Reporter) Report(ctx context.Context) {
	snap := r.buildSnapshot()

	table := r.routing()
	if table.HasScheduler() {
		if err := r.sendToScheduler(ctx, table.Scheduler, snap); err != nil {
			r.logError("scheduler diagnostics", err)
		}
	}
	if len(table.Servers) > 1 {
		for _, srv := range table.Servers {
			if err := r.pingWorkServer(ctx, srv, snap); err != nil {
				r.logError("ping work server "+srv.OriginURL, err)
			}
		}
	}

	r.touchLiveness(snap)

	r.mu.Lock()
	r.lastSent = time.Now()
	r.lastSnap = snap
	r.mu.Unlock()
}

// LastSnapshot returns the most recently delivered diagnostics snapshot,
// for the liveness HTTP surface.
func (r *Reporter) LastSnapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSnap
}

func (r *Reporter) buildSnapshot() Snapshot {
	hs := r.snapshotFn(r.workDir)
	return Snapshot{
		Machine:        hs.Hostname,
		AgentVersion:   r.version,
		InstanceID:     r.instanceID,
		CPUPercent:     hs.CPUPercent,
		MemoryCapacity: hs.MemoryCapacity,
		MemoryUsed:     hs.MemoryUsed,
		DiskCapacity:   hs.DiskCapacity,
		DiskUsed:       hs.DiskUsed,
		OS:             runtime.GOOS,
	}
}

func (r *Reporter) sendToScheduler(ctx context.Context, node *types.SchedulerNode, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}

	reqURL := strings.TrimSuffix(node.URL, "/") + "/hawkscheduleserver/wpt-diagnostics.ashx"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	token := r.tokens.Token(node.Node, node.Salt)
	req.Header.Set("CPID", fmt.Sprintf("m;%s;%s", node.Node, token))

	return r.doDiscard(req)
}

func (r *Reporter) pingWorkServer(ctx context.Context, srv types.WorkServer, snap Snapshot) error {
	origin := strings.TrimSuffix(srv.OriginURL, "/")
	q := url.Values{}
	q.Set("location", srv.Location)
	q.Set("pc", snap.Machine)
	q.Set("cpu", strconv.FormatFloat(snap.CPUPercent, 'f', 1, 64))

	reqURL := origin + "/ping.php?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return r.doDiscard(req)
}

func (r *Reporter) doDiscard(req *http.Request) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (r *Reporter) logError(msg string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Error(msg, map[string]any{"error": err.Error()})
}
