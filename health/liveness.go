package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/wptagent/agent/iox"
)

// touchLiveness updates the configured liveness file's mtime and contents
// to the latest snapshot, if a liveness path was configured. Orchestration
// probes (load balancer health checks, systemd watchdog) watch this file's
// freshness rather than polling the agent directly.
func (r *Reporter) touchLiveness(snap Snapshot) {
	if r.livenessPath == "" {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		r.logError("marshal liveness snapshot", err)
		return
	}
	if err := os.WriteFile(r.livenessPath, data, 0o644); err != nil {
		r.logError("write liveness file", err)
	}
}

// LivenessServer answers an optional HTTP liveness surface, disabled by
// default: "/" and "/alive" both return 200 with the reporter's last
// diagnostics snapshot as JSON, mirroring the lightweight probe endpoint
// original_source/internal/webpagetest.py exposes alongside the liveness
// file touch.
type LivenessServer struct {
	reporter *Reporter
	server   *http.Server
}

// NewLivenessServer binds a liveness HTTP server to addr. The server is
// not started until Serve is called.
func NewLivenessServer(addr string, reporter *Reporter) *LivenessServer {
	ls := &LivenessServer{reporter: reporter}
	mux := http.NewServeMux()
	mux.HandleFunc("/", ls.handle)
	mux.HandleFunc("/alive", ls.handle)
	ls.server = &http.Server{Addr: addr, Handler: mux}
	return ls
}

func (ls *LivenessServer) handle(w http.ResponseWriter, req *http.Request) {
	snap := ls.reporter.LastSnapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(snap)
}

// Serve blocks, serving the liveness surface until ctx is canceled or the
// listener fails. Shutdown is given a short grace period on cancellation.
func (ls *LivenessServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- ls.server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health: liveness server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		iox.DiscardErr(func() error { return ls.server.Shutdown(shutdownCtx) })
		return nil
	}
}
