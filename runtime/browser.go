package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// ManagedBrowser is a shared Chromium instance launched once per run and
// reused across that run's first and repeat view tasks, so the repeat
// view attaches to the same browser (and its warm cache) instead of
// spawning a fresh process.
type ManagedBrowser struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	WSEndpoint string
}

// LaunchManagedBrowser starts a shared browser via the driver bundle's
// --launch-browser mode. The WS endpoint is read from the subprocess's
// stdout (first line); the browser stays alive until Close is called.
func LaunchManagedBrowser(ctx context.Context, driverPath string) (*ManagedBrowser, error) {
	cmd := exec.CommandContext(ctx, driverPath, "--launch-browser")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	// stdin pipe kept open; closing it signals the browser server to shut down.
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start browser server: %w", err)
	}

	scanner := bufio.NewScanner(stdout)

	wsURLCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		if scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if strings.HasPrefix(line, "ws://") || strings.HasPrefix(line, "wss://") {
				wsURLCh <- line
				return
			}
			errCh <- fmt.Errorf("unexpected browser server output: %q", line)
			return
		}
		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("reading browser server stdout: %w", err)
			return
		}
		errCh <- errors.New("browser server exited without printing WS endpoint")
	}()

	select {
	case wsURL := <-wsURLCh:
		return &ManagedBrowser{cmd: cmd, stdin: stdin, WSEndpoint: wsURL}, nil
	case err := <-errCh:
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	case <-time.After(30 * time.Second):
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, errors.New("timed out waiting for browser server WS endpoint")
	case <-ctx.Done():
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, ctx.Err()
	}
}

// Close shuts down the managed browser by closing stdin (signaling the
// browser server to exit) and then waiting for the process, force-killing
// after a grace period.
func (mb *ManagedBrowser) Close() error {
	if mb.cmd == nil || mb.cmd.Process == nil {
		return nil
	}

	_ = mb.stdin.Close()

	done := make(chan error, 1)
	go func() {
		done <- mb.cmd.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		_ = mb.cmd.Process.Kill()
		<-done
		return nil
	}
}
