// Package dispatch implements the Dispatcher: the long-running main-loop
// component that polls work servers or scheduler nodes for jobs, rotates
// fairly across candidates, escalates a reboot after sustained failure, and
// requeues an in-flight job on graceful shutdown.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wptagent/agent/config"
	"github.com/wptagent/agent/hostos"
	"github.com/wptagent/agent/log"
	"github.com/wptagent/agent/types"
)

// MinPollInterval is the floor the Dispatcher sleeps between acquire
// attempts after a failure or empty response, per "sleeps at least 5
// seconds before the next attempt."
const MinPollInterval = 5 * time.Second

// maxControlBlockRetries bounds the "retry within the same acquire" loop
// so a misbehaving coordinator that only ever replies with control blocks
// cannot spin the Dispatcher forever.
const maxControlBlockRetries = 4

// AcquireResult is what one Acquire call produced.
type AcquireResult struct {
	// Job is non-nil when a job was acquired.
	Job *types.Job
	// Rebooted reports whether this call triggered (or observed a request
	// for) a host reboot; the caller should stop polling.
	Rebooted bool
}

// Dispatcher polls coordination servers and scheduler nodes for work.
type Dispatcher struct {
	mu sync.Mutex

	routing  types.RoutingTable
	location string
	key      string
	version  string

	client *http.Client
	logger *log.Logger

	selector RotationSelector
	tokens   tokenCache
	failures failureWindow

	lastTestID   string
	lastJob      *types.Job
	lastRawBody  []byte
	hostSnapshot func() hostos.Snapshot
	rebootHost   func() error

	// defaultRetryQueue/defaultCompleteQueue backfill a job document's
	// routing when it names no pubsub queue of its own.
	defaultRetryQueue    string
	defaultCompleteQueue string
}

// New creates a Dispatcher seeded with the given config's initial routing
// table (work-server list or scheduler node), using clients.Poll for
// requests.
func New(cfg *config.Config, clients *config.HTTPClients, version string, logger *log.Logger) *Dispatcher {
	d := &Dispatcher{
		routing:              initialRoutingTable(cfg),
		location:             cfg.Location,
		key:                  cfg.Key,
		version:              version,
		client:               clients.Poll,
		logger:               logger,
		hostSnapshot:         func() hostos.Snapshot { return hostos.CollectSnapshot(".") },
		rebootHost:           hostos.RebootHost,
		defaultRetryQueue:    cfg.Adapter.RetryQueue,
		defaultCompleteQueue: cfg.Adapter.CompleteQueue,
	}
	return d
}

func initialRoutingTable(cfg *config.Config) types.RoutingTable {
	if cfg.Scheduler.URL != "" {
		return types.RoutingTable{
			Scheduler: &types.SchedulerNode{
				URL:  cfg.Scheduler.URL,
				Salt: cfg.Scheduler.Salt,
				Node: cfg.Scheduler.Node,
			},
		}
	}

	servers := cfg.Servers
	if len(servers) == 0 && cfg.Server != "" {
		servers = []string{cfg.Server}
	}
	table := types.RoutingTable{Servers: make([]types.WorkServer, 0, len(servers))}
	for _, origin := range servers {
		table.Servers = append(table.Servers, types.WorkServer{OriginURL: origin, Location: cfg.Location})
	}
	return table
}

// Routing returns a copy of the current routing table, updated live by
// control-block responses.
func (d *Dispatcher) Routing() types.RoutingTable {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.routing
}

// LastTestID returns the test_id of the most recently acquired job.
func (d *Dispatcher) LastTestID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTestID
}

// Acquire polls one candidate per attempt, moving on to the next candidate
// after a control-block redirect or a malformed job document, for at most
// maxControlBlockRetries attempts within the same call.
func (d *Dispatcher) Acquire(ctx context.Context) (AcquireResult, error) {
	for attempt := 0; attempt < maxControlBlockRetries; attempt++ {
		candidate, err := d.nextCandidate()
		if err != nil {
			return AcquireResult{}, err
		}

		body, originURL, err := d.poll(ctx, candidate)
		if err != nil {
			d.recordFailure()
			return AcquireResult{}, err
		}

		trimmed := strings.TrimSpace(string(body))

		switch {
		case trimmed == "":
			d.failures.RecordSuccess()
			return AcquireResult{}, nil

		case trimmed == rebootDirective:
			d.logger.Warn("coordinator requested reboot", map[string]any{"origin": originURL})
			_ = d.rebootHost()
			return AcquireResult{Rebooted: true}, nil

		case isControlBlock(trimmed):
			cb := parseControlBlock(trimmed)
			d.applyRouting(cb)
			d.logger.Info("applied routing control block", map[string]any{
				"servers":   cb.Servers,
				"scheduler": cb.Scheduler != nil,
			})
			continue

		default:
			job, err := parseJobDocument(body, originURL)
			if err != nil {
				d.logger.Warn("discarding malformed job document", map[string]any{"error": err.Error()})
				continue
			}
			if job.Routing.PubsubRetryQueue == "" {
				job.Routing.PubsubRetryQueue = d.defaultRetryQueue
			}
			if job.Routing.PubsubCompleteQueue == "" {
				job.Routing.PubsubCompleteQueue = d.defaultCompleteQueue
			}
			d.failures.RecordSuccess()
			d.mu.Lock()
			d.lastTestID = job.TestID
			d.lastJob = job
			d.lastRawBody = body
			d.mu.Unlock()
			return AcquireResult{Job: job}, nil
		}
	}

	return AcquireResult{}, fmt.Errorf("dispatch: exceeded %d control-block retries in one acquire", maxControlBlockRetries)
}

// candidate is either a work-server/location pair or the scheduler.
type candidate struct {
	workServer *types.WorkServer
	scheduler  *types.SchedulerNode
}

func (d *Dispatcher) nextCandidate() (candidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.routing.HasScheduler() {
		return candidate{scheduler: d.routing.Scheduler}, nil
	}

	if len(d.routing.Servers) == 0 {
		return candidate{}, fmt.Errorf("dispatch: no work servers or scheduler configured")
	}

	idx, err := d.selector.Next(len(d.routing.Servers))
	if err != nil {
		return candidate{}, err
	}
	ws := d.routing.Servers[idx]
	return candidate{workServer: &ws}, nil
}

func (d *Dispatcher) applyRouting(cb ControlBlock) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routing = applyControlBlock(d.routing, cb, d.location)
}

func (d *Dispatcher) recordFailure() {
	if d.failures.RecordFailure(time.Now()) {
		d.logger.Warn("sustained acquire failure, escalating reboot", nil)
		_ = d.rebootHost()
	}
}

// poll issues one HTTP GET against candidate and returns the raw response
// body along with the origin URL the job (if any) should be attributed to.
func (d *Dispatcher) poll(ctx context.Context, c candidate) ([]byte, string, error) {
	snap := d.hostSnapshot()

	if c.scheduler != nil {
		reqURL := strings.TrimSuffix(c.scheduler.URL, "/") + "/hawkscheduleserver/wpt-dequeue.ashx"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, "", err
		}
		q := req.URL.Query()
		q.Set("machine", snap.Hostname)
		req.URL.RawQuery = q.Encode()
		token := d.tokens.Token(c.scheduler.Node, c.scheduler.Salt)
		req.Header.Set("CPID", fmt.Sprintf("m;%s;%s", c.scheduler.Node, token))
		body, err := d.do2(req)
		if err != nil {
			return nil, "", err
		}
		return body, stripQuery(c.scheduler.URL), nil
	}

	origin := strings.TrimSuffix(c.workServer.OriginURL, "/")
	reqURL := origin + "/getwork.php?" + d.getworkQuery(c.workServer.Location, snap).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", err
	}
	body, err := d.do2(req)
	if err != nil {
		return nil, "", err
	}
	return body, origin, nil
}

func (d *Dispatcher) getworkQuery(location string, snap hostos.Snapshot) url.Values {
	q := url.Values{}
	q.Set("f", "json")
	q.Set("shards", "1")
	q.Set("reboot", "1")
	q.Set("servers", "1")
	q.Set("testinfo", "1")
	q.Set("location", location)
	q.Set("pc", snap.Hostname)
	q.Set("key", d.key)
	q.Set("version", d.version)
	q.Set("dns", "1")
	q.Set("freedisk", strconv.FormatUint(freeMB(snap), 10))
	q.Set("upminutes", strconv.Itoa(snap.UptimeMinutes))
	return q
}

func freeMB(snap hostos.Snapshot) uint64 {
	if snap.DiskCapacity == 0 {
		return 0
	}
	free := snap.DiskCapacity - snap.DiskUsed
	return free / (1024 * 1024)
}

// do2 executes req and returns the response body, closing it.
func (d *Dispatcher) do2(req *http.Request) ([]byte, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dispatch: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("dispatch: coordinator returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func stripQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Requeue best-effort POSTs the job's original raw payload back to its
// origin, releasing it for another agent to pick up. Errors are logged,
// never surfaced, per "requeue is best-effort."
func (d *Dispatcher) Requeue(ctx context.Context, job *types.Job) {
	if job == nil {
		return
	}

	d.mu.Lock()
	raw := d.lastRawBody
	d.mu.Unlock()
	if raw == nil {
		return
	}

	origin := strings.TrimSuffix(job.OriginURL, "/")
	q := url.Values{}
	q.Set("id", job.TestID)
	q.Set("sig", job.Signature)
	q.Set("location", d.location)
	if sched := d.Routing().Scheduler; sched != nil {
		q.Set("node", sched.Node)
	}
	if job.SchedulerJob != nil {
		q.Set("jobID", *job.SchedulerJob)
	}

	reqURL := origin + "/requeue?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(string(raw)))
	if err != nil {
		d.logger.Warn("requeue request build failed", map[string]any{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("requeue failed (best effort)", map[string]any{"error": err.Error()})
		return
	}
	defer resp.Body.Close()
}
