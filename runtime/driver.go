package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"github.com/wptagent/agent/types"
)

// DriverConfig configures one BrowserDriver subprocess invocation.
type DriverConfig struct {
	// DriverPath is the path to the browser-driver executable, extracted by
	// executor.EnsureBundle.
	DriverPath string
	// Task is the task this driver invocation executes.
	Task *types.Task
	// Lineage identifies this task for envelope validation on the IPC channel.
	Lineage *types.JobLineage
	// Shaper is the network-shaping profile to install before recording, or
	// nil to run unshaped.
	Shaper *types.ShaperProfile
	// BrowserWSEndpoint is the WebSocket URL of a shared, externally managed
	// browser instance. When set, the driver connects instead of launching
	// its own Chromium process (see browser.go / ManagedBrowser).
	BrowserWSEndpoint string
	// UserAgent is the effective UA string to send, already composed with
	// the agent identity suffix unless the job suppressed it.
	UserAgent string
}

// DriverResult is the outcome of a completed BrowserDriver subprocess run.
type DriverResult struct {
	ExitCode    int
	StderrBytes []byte
}

// driverHandle is the subset of DriverProcess's lifecycle DriveTask drives:
// launch, the IPC pipes, and the exit result. RunController substitutes a
// fake implementation in tests so DriveTask/DriveJob can be exercised
// without spawning a real browser-driver subprocess.
type driverHandle interface {
	Start(ctx context.Context) error
	Stdout() io.Reader
	Stdin() io.WriteCloser
	Wait() (*DriverResult, error)
	Kill() error
}

var _ driverHandle = (*DriverProcess)(nil)

// DriverProcess manages the lifecycle of one BrowserDriver subprocess: one
// per Task. Stdout/stdin carry the devtools IPC frame stream; stderr is
// captured for diagnostics.
type DriverProcess struct {
	config *DriverConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// NewDriverProcess creates a new driver process manager for one task.
func NewDriverProcess(config *DriverConfig) *DriverProcess {
	return &DriverProcess{config: config}
}

// driverInput is the JSON structure written to the driver's stdin at launch.
type driverInput struct {
	RunID             string               `json:"run_id"`
	Attempt           int                  `json:"attempt"`
	JobID             *string              `json:"job_id,omitempty"`
	ParentRunID       *string              `json:"parent_run_id,omitempty"`
	Task              *types.Task          `json:"task"`
	Shaper            *types.ShaperProfile `json:"shaper,omitempty"`
	BrowserWSEndpoint string               `json:"browser_ws_endpoint,omitempty"`
	UserAgent         string               `json:"user_agent,omitempty"`
	DevtoolsPort      int                  `json:"devtools_port"`
}

// Start launches the driver subprocess, wires its pipes, and writes the
// task input to stdin. Stdin remains open afterward so the ingestion engine
// can write file_write_ack frames back; the caller closes it once ingestion
// completes.
func (p *DriverProcess) Start(ctx context.Context) error {
	p.cmd = exec.CommandContext(ctx, p.config.DriverPath)

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	p.stdin = stdin

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	p.stdout = stdout

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	p.stderr = stderr

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start browser driver: %w", err)
	}

	input := driverInput{
		RunID:             p.config.Lineage.RunID,
		Attempt:           p.config.Lineage.Attempt,
		JobID:             strPtr(p.config.Lineage.JobID),
		ParentRunID:       p.config.Lineage.ParentRunID,
		Task:              p.config.Task,
		Shaper:            p.config.Shaper,
		BrowserWSEndpoint: p.config.BrowserWSEndpoint,
		UserAgent:         p.config.UserAgent,
		DevtoolsPort:      p.config.Task.DevtoolsPort,
	}

	if err := json.NewEncoder(stdin).Encode(input); err != nil {
		_ = p.Kill()
		return fmt.Errorf("failed to write driver input: %w", err)
	}

	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Stdout returns the stdout reader for devtools IPC frame reading.
func (p *DriverProcess) Stdout() io.Reader { return p.stdout }

// Stderr returns the stderr reader for diagnostic capture.
func (p *DriverProcess) Stderr() io.Reader { return p.stderr }

// Stdin returns the stdin writer for sending file_write_ack frames. The
// caller must close it after ingestion completes to signal EOF.
func (p *DriverProcess) Stdin() io.WriteCloser { return p.stdin }

// Wait waits for the driver to exit and returns its result. Must be called
// only after ingestion has finished draining stdout, to avoid a race where
// the process blocks writing to a full stdout pipe nobody is reading.
func (p *DriverProcess) Wait() (*DriverResult, error) {
	if p.cmd == nil {
		return nil, errors.New("driver not started")
	}

	stderrBytes, _ := io.ReadAll(p.stderr)

	err := p.cmd.Wait()
	result := &DriverResult{StderrBytes: stderrBytes}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				result.ExitCode = status.ExitStatus()
			} else {
				result.ExitCode = -1
			}
		} else {
			return nil, fmt.Errorf("driver wait failed: %w", err)
		}
	} else {
		result.ExitCode = 0
	}

	return result, nil
}

// Kill terminates the driver process immediately.
func (p *DriverProcess) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
