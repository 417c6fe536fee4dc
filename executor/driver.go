// Package executor resolves the BrowserDriver bundle RunController launches
// as a subprocess, and declares the BrowserDriver capability interface that
// subprocess realizes.
package executor

import "context"

// BrowserDriver is the capability set RunController drives to execute one
// task end to end. Every concrete browser family — Chromium over devtools,
// an Android bridge, Safari's remote inspector, WebKitGTK, whatever comes
// next — implements this one interface out of process; the core never
// branches on which driver it's talking to, only calls through it.
//
// In this agent the interface has a single realization: a subprocess
// launched from the path EnsureBundle resolves, speaking the framed
// devtools-event protocol implemented by package ipc and driven by
// runtime.DriverProcess. BrowserDriver documents that contract; it is not
// itself called directly by Go code.
type BrowserDriver interface {
	// Prepare readies the driver for a task: persistent cache directories,
	// extensions, capture tool staging. No browser process exists yet.
	Prepare(ctx context.Context) error
	// Launch starts (or attaches to, for a ManagedBrowser) the browser
	// process and opens the devtools channel.
	Launch(ctx context.Context) error
	// RunTask executes the compiled script against the launched browser.
	RunTask(ctx context.Context) error
	// OnStartRecording begins capture for the current step: network log,
	// video, trace.
	OnStartRecording(ctx context.Context) error
	// OnStopCapture ends active capture without tearing down the page,
	// allowing a settle period before artifacts are finalized.
	OnStopCapture(ctx context.Context) error
	// OnStopRecording finalizes the current step's capture and emits its
	// artifacts over the devtools channel.
	OnStopRecording(ctx context.Context) error
	// OnStartProcessing begins any post-capture processing the driver does
	// itself (video frame extraction, trace compaction) before handing
	// artifacts back.
	OnStartProcessing(ctx context.Context) error
	// WaitForProcessing blocks until that processing has completed.
	WaitForProcessing(ctx context.Context) error
	// StepComplete signals the driver that RunController has consumed the
	// step's artifacts and it may advance to the next script step.
	StepComplete(ctx context.Context, stepIndex int) error
	// ExecuteJS evaluates script in the page context and returns its
	// JSON-encoded result.
	ExecuteJS(ctx context.Context, script string) (string, error)
	// Stop ends the current task without shutting down the driver process,
	// used when a ManagedBrowser is reused across views.
	Stop(ctx context.Context) error
	// Shutdown terminates the driver process entirely.
	Shutdown(ctx context.Context) error
}
