package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/wptagent/agent/hostos"
	"github.com/wptagent/agent/types"
)

func fixedSnapshot(hostos.Snapshot) hostos.Snapshot {
	return hostos.Snapshot{Hostname: "agent-1", CPUPercent: 12.5, MemoryCapacity: 100, MemoryUsed: 40}
}

func TestReporter_SendsDiagnosticsToScheduler(t *testing.T) {
	var gotCPID string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCPID = r.Header.Get("CPID")
		body, _ = jsonBody(r)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(Config{
		Client:  srv.Client(),
		Version: "1.0.0",
		Routing: func() types.RoutingTable {
			return types.RoutingTable{Scheduler: &types.SchedulerNode{URL: srv.URL, Salt: "s3cret", Node: "AGENT-42"}}
		},
	})
	r.snapshotFn = fixedSnapshot

	r.Report(context.Background())

	if gotCPID == "" {
		t.Fatal("expected CPID header to be set")
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("unmarshal diagnostics body: %v", err)
	}
	if snap.Machine != "agent-1" {
		t.Errorf("Machine = %q, want agent-1", snap.Machine)
	}
	if snap.AgentVersion != "1.0.0" {
		t.Errorf("AgentVersion = %q, want 1.0.0", snap.AgentVersion)
	}
}

func TestReporter_PingsEachWorkServerWhenMultipleConfigured(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(Config{
		Client: srv.Client(),
		Routing: func() types.RoutingTable {
			return types.RoutingTable{Servers: []types.WorkServer{
				{OriginURL: srv.URL, Location: "loc1"},
				{OriginURL: srv.URL, Location: "loc2"},
			}}
		},
	})
	r.snapshotFn = fixedSnapshot

	r.Report(context.Background())

	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("expected 2 ping requests, got %d", hits)
	}
}

func TestReporter_SkipsPingWhenOnlyOneWorkServerConfigured(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(Config{
		Client: srv.Client(),
		Routing: func() types.RoutingTable {
			return types.RoutingTable{Servers: []types.WorkServer{{OriginURL: srv.URL, Location: "loc1"}}}
		},
	})
	r.snapshotFn = fixedSnapshot

	r.Report(context.Background())

	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("expected no ping requests with a single work server, got %d", hits)
	}
}

func TestReporter_TouchesLivenessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "liveness.json")
	r := New(Config{
		Client:       http.DefaultClient,
		LivenessPath: path,
		Routing:      func() types.RoutingTable { return types.RoutingTable{} },
	})
	r.snapshotFn = fixedSnapshot

	r.Report(context.Background())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read liveness file: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal liveness file: %v", err)
	}
	if snap.Machine != "agent-1" {
		t.Errorf("Machine = %q, want agent-1", snap.Machine)
	}
}

func TestReporter_LastSnapshotReflectsMostRecentReport(t *testing.T) {
	r := New(Config{
		Client:  http.DefaultClient,
		Routing: func() types.RoutingTable { return types.RoutingTable{} },
	})
	r.snapshotFn = fixedSnapshot

	if r.LastSnapshot().Machine != "" {
		t.Fatal("expected zero-value snapshot before first report")
	}
	r.Report(context.Background())
	if r.LastSnapshot().Machine != "agent-1" {
		t.Errorf("expected LastSnapshot to reflect the report just sent")
	}
}

func jsonBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}
