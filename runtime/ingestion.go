package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wptagent/agent/ipc"
	"github.com/wptagent/agent/log"
	"github.com/wptagent/agent/types"
)

// IngestionError classifies ingestion errors for outcome determination.
type IngestionError struct {
	Kind IngestionErrorKind
	Err  error
}

// IngestionErrorKind classifies ingestion errors.
type IngestionErrorKind int

const (
	// IngestionErrorStream indicates a frame/stream error (crash outcome).
	IngestionErrorStream IngestionErrorKind = iota
	// IngestionErrorSink indicates an event-sink failure (e.g. load-idle
	// bookkeeping error; terminates the task).
	IngestionErrorSink
	// IngestionErrorCanceled indicates context cancellation.
	IngestionErrorCanceled
	// IngestionErrorVersionMismatch indicates a contract version mismatch.
	IngestionErrorVersionMismatch
)

func (e *IngestionError) Error() string { return e.Err.Error() }
func (e *IngestionError) Unwrap() error { return e.Err }

// IsSinkError returns true if the error is an event-sink failure.
func IsSinkError(err error) bool {
	var ingErr *IngestionError
	return errors.As(err, &ingErr) && ingErr.Kind == IngestionErrorSink
}

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool {
	var ingErr *IngestionError
	return errors.As(err, &ingErr) && ingErr.Kind == IngestionErrorCanceled
}

// IsVersionMismatchError returns true if the error is a contract version mismatch.
func IsVersionMismatchError(err error) bool {
	var ingErr *IngestionError
	return errors.As(err, &ingErr) && ingErr.Kind == IngestionErrorVersionMismatch
}

// IsStreamError returns true if the error is a stream/frame error.
func IsStreamError(err error) bool {
	var ingErr *IngestionError
	return errors.As(err, &ingErr) && ingErr.Kind == IngestionErrorStream
}

var errContractVersionMismatch = errors.New("contract version mismatch")

// EventSink receives decoded StepEvents and artifact chunks as they arrive.
// The load-idle wait (loadidle.go) implements this to track navigation,
// activity, and request-count state; it must not block on I/O.
type EventSink interface {
	IngestEvent(ctx context.Context, event *types.StepEvent) error
	IngestArtifactChunk(ctx context.Context, chunk *types.ArtifactChunk) error
}

// IngestionEngine reads devtools IPC frames from a BrowserDriver subprocess
// and enforces the wire contract:
//   - frames are read in order
//   - StepEvent.Seq must be strictly monotonic (1, 2, 3...)
//   - first terminal event wins; subsequent terminals are ignored
//   - invalid framing is fatal (no resync)
//   - sink failure on a non-droppable event terminates the task
//   - task_result control frames do not affect seq ordering
type IngestionEngine struct {
	decoder    *ipc.FrameDecoder
	sink       EventSink
	artifacts  *ArtifactManager
	fileWriter FileWriter // sidecar file writes, may be nil
	logger     *log.Logger
	lineage    *types.JobLineage
	ackWriter  io.Writer // driver's stdin, may be nil

	currentSeq    int64
	terminalSeen  bool
	terminalEvent *types.StepEvent
	taskResult    *types.TaskResultFrame
}

// NewIngestionEngine creates a new ingestion engine. fileWriter and
// ackWriter may be nil if sidecar file writes are not supported for this task.
func NewIngestionEngine(
	reader io.Reader,
	sink EventSink,
	artifacts *ArtifactManager,
	fileWriter FileWriter,
	logger *log.Logger,
	lineage *types.JobLineage,
	ackWriter io.Writer,
) *IngestionEngine {
	return &IngestionEngine{
		decoder:    ipc.NewFrameDecoder(reader),
		sink:       sink,
		artifacts:  artifacts,
		fileWriter: fileWriter,
		logger:     logger,
		lineage:    lineage,
		ackWriter:  ackWriter,
	}
}

// Run runs the ingestion loop until EOF or fatal error.
func (e *IngestionEngine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return &IngestionError{Kind: IngestionErrorCanceled, Err: ctx.Err()}
		default:
		}

		payload, err := e.decoder.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			// A pipe closure after the terminal event is normal subprocess
			// exit behavior: outcome is already determined by the terminal.
			if e.terminalSeen {
				e.logger.Debug("pipe closed after terminal event", map[string]any{"error": err.Error()})
				return nil
			}

			e.logger.Error("frame error", map[string]any{"error": err.Error()})
			return &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("frame error: %w", err)}
		}

		if err := e.processFrame(ctx, payload); err != nil {
			return err
		}
	}
}

func (e *IngestionEngine) processFrame(ctx context.Context, payload []byte) error {
	decoded, err := ipc.DecodeFrame(payload)
	if err != nil {
		e.logger.Error("frame decode error", map[string]any{"error": err.Error()})
		return &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("frame decode error: %w", err)}
	}

	switch frame := decoded.(type) {
	case *types.ArtifactChunkFrame:
		return e.processArtifactChunk(ctx, frame)
	case *types.StepEvent:
		return e.processEvent(ctx, frame)
	case *types.TaskResultFrame:
		return e.processTaskResult(frame)
	case *types.FileWriteFrame:
		return e.processFileWrite(ctx, frame)
	default:
		return &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("unexpected frame type: %T", decoded)}
	}
}

func (e *IngestionEngine) processEvent(ctx context.Context, event *types.StepEvent) error {
	if err := e.validateEnvelope(event); err != nil {
		e.logger.Error("envelope validation failed", map[string]any{
			"error": err.Error(), "type": event.Type, "seq": event.Seq,
		})
		if errors.Is(err, errContractVersionMismatch) {
			return &IngestionError{Kind: IngestionErrorVersionMismatch, Err: fmt.Errorf("envelope validation failed: %w", err)}
		}
		return &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("envelope validation failed: %w", err)}
	}

	expectedSeq := e.currentSeq + 1
	if event.Seq != expectedSeq {
		e.logger.Error("sequence violation", map[string]any{
			"expected": expectedSeq, "got": event.Seq, "type": event.Type,
		})
		return &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("sequence violation: expected %d, got %d", expectedSeq, event.Seq)}
	}
	e.currentSeq = event.Seq

	if event.Type.IsTerminal() {
		if e.terminalSeen {
			e.logger.Warn("ignoring duplicate terminal event", map[string]any{"type": event.Type, "seq": event.Seq})
			return nil
		}
		e.terminalSeen = true
		e.terminalEvent = event
		e.logger.Info("terminal event received", map[string]any{"type": event.Type, "seq": event.Seq})
	}

	if event.Type == types.StepEventArtifact {
		if err := e.handleArtifactCommit(event); err != nil {
			return &IngestionError{Kind: IngestionErrorStream, Err: err}
		}
	}

	if err := e.sink.IngestEvent(ctx, event); err != nil {
		e.logger.Error("event sink failed", map[string]any{
			"event_type": event.Type, "seq": event.Seq, "error": err.Error(),
		})
		return &IngestionError{Kind: IngestionErrorSink, Err: fmt.Errorf("sink failure: %w", err)}
	}

	return nil
}

func (e *IngestionEngine) validateEnvelope(event *types.StepEvent) error {
	if event.ContractVersion != types.ContractVersion {
		return fmt.Errorf("%w: expected %s, got %s", errContractVersionMismatch, types.ContractVersion, event.ContractVersion)
	}
	if event.RunID != e.lineage.RunID {
		return fmt.Errorf("run_id mismatch: expected %s, got %s", e.lineage.RunID, event.RunID)
	}
	if event.Attempt != e.lineage.Attempt {
		return fmt.Errorf("attempt mismatch: expected %d, got %d", e.lineage.Attempt, event.Attempt)
	}
	return nil
}

func (e *IngestionEngine) handleArtifactCommit(event *types.StepEvent) error {
	artifactID, _ := event.Payload["artifact_id"].(string)
	if artifactID == "" {
		return errors.New("artifact event missing artifact_id")
	}

	var sizeBytes int64
	switch v := event.Payload["size_bytes"].(type) {
	case int64:
		sizeBytes = v
	case int:
		sizeBytes = int64(v)
	case int8:
		sizeBytes = int64(v)
	case int16:
		sizeBytes = int64(v)
	case int32:
		sizeBytes = int64(v)
	case uint:
		sizeBytes = int64(v)
	case uint8:
		sizeBytes = int64(v)
	case uint16:
		sizeBytes = int64(v)
	case uint32:
		sizeBytes = int64(v)
	case uint64:
		sizeBytes = int64(v)
	case float64:
		sizeBytes = int64(v)
	default:
		return fmt.Errorf("artifact event has invalid size_bytes type: %T", event.Payload["size_bytes"])
	}

	name, _ := event.Payload["name"].(string)
	contentType, _ := event.Payload["content_type"].(string)

	if err := e.artifacts.CommitArtifact(artifactID, name, contentType, sizeBytes); err != nil {
		e.logger.Error("artifact commit failed", map[string]any{
			"artifact_id": artifactID, "size_bytes": sizeBytes, "error": err.Error(),
		})
		return fmt.Errorf("artifact commit failed: %w", err)
	}

	e.logger.Debug("artifact committed", map[string]any{"artifact_id": artifactID, "size_bytes": sizeBytes})
	return nil
}

func (e *IngestionEngine) processArtifactChunk(ctx context.Context, frame *types.ArtifactChunkFrame) error {
	if frame.Seq < 1 {
		return &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("invalid chunk seq: %d", frame.Seq)}
	}
	if len(frame.Data) > ipc.MaxChunkSize {
		return &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("chunk data exceeds max size: %d > %d", len(frame.Data), ipc.MaxChunkSize)}
	}

	chunk := &types.ArtifactChunk{
		ArtifactID: frame.ArtifactID,
		Seq:        frame.Seq,
		IsLast:     frame.IsLast,
		Data:       frame.Data,
	}

	if err := e.artifacts.AddChunk(chunk); err != nil {
		e.logger.Error("artifact chunk rejected", map[string]any{
			"artifact_id": chunk.ArtifactID, "seq": chunk.Seq, "is_last": chunk.IsLast, "error": err.Error(),
		})
		return &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("artifact chunk failed: %w", err)}
	}

	if err := e.sink.IngestArtifactChunk(ctx, chunk); err != nil {
		e.logger.Error("sink chunk ingestion failed", map[string]any{
			"artifact_id": chunk.ArtifactID, "seq": chunk.Seq, "error": err.Error(),
		})
		return &IngestionError{Kind: IngestionErrorSink, Err: fmt.Errorf("sink chunk failure: %w", err)}
	}

	return nil
}

// GetTerminalEvent returns the terminal event if seen.
func (e *IngestionEngine) GetTerminalEvent() (*types.StepEvent, bool) {
	return e.terminalEvent, e.terminalSeen
}

// HasTerminal returns true if a terminal event has been seen.
func (e *IngestionEngine) HasTerminal() bool { return e.terminalSeen }

// CurrentSeq returns the current sequence number.
func (e *IngestionEngine) CurrentSeq() int64 { return e.currentSeq }

// processTaskResult processes the task-result control frame. It is a
// control frame, not a StepEvent: it does not participate in seq ordering
// and is expected once, after the terminal event.
func (e *IngestionEngine) processTaskResult(frame *types.TaskResultFrame) error {
	if e.taskResult != nil {
		e.logger.Warn("ignoring duplicate task_result frame", nil)
		return nil
	}
	e.taskResult = frame
	e.logger.Debug("task_result frame received", map[string]any{"status": frame.Outcome.Status})
	return nil
}

// processFileWrite processes a sidecar file write. File writes bypass seq
// numbering. PutFile failures send an error ack but do not terminate
// ingestion; validation errors (empty/unsafe filename) remain fatal.
func (e *IngestionEngine) processFileWrite(ctx context.Context, frame *types.FileWriteFrame) error {
	if e.terminalSeen {
		e.logger.Warn("rejecting file_write after terminal event", map[string]any{
			"filename": frame.Filename, "write_id": frame.WriteID,
		})
		e.sendFileWriteAck(frame.WriteID, false, "task already terminated")
		return nil
	}

	if frame.Filename == "" {
		return &IngestionError{Kind: IngestionErrorStream, Err: errors.New("file_write: empty filename")}
	}
	if strings.Contains(frame.Filename, "/") || strings.Contains(frame.Filename, "\\") {
		return &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("file_write: filename contains path separator: %s", frame.Filename)}
	}
	if strings.Contains(frame.Filename, "..") {
		return &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("file_write: filename contains '..': %s", frame.Filename)}
	}
	if len(frame.Data) > ipc.MaxChunkSize {
		return &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("file_write: data size %d exceeds max %d", len(frame.Data), ipc.MaxChunkSize)}
	}

	if e.fileWriter == nil {
		return &IngestionError{Kind: IngestionErrorStream, Err: errors.New("file_write received but no FileWriter configured")}
	}

	if err := e.fileWriter.PutFile(ctx, frame.Filename, frame.ContentType, frame.Data); err != nil {
		e.logger.Error("file_write failed", map[string]any{"filename": frame.Filename, "error": err.Error(), "write_id": frame.WriteID})
		e.sendFileWriteAck(frame.WriteID, false, err.Error())
		return nil
	}

	e.logger.Debug("file written", map[string]any{
		"filename": frame.Filename, "content_type": frame.ContentType, "size_bytes": len(frame.Data), "write_id": frame.WriteID,
	})
	e.sendFileWriteAck(frame.WriteID, true, "")
	return nil
}

// sendFileWriteAck writes a file_write_ack frame to the driver's stdin.
// No-op if ackWriter is nil or writeID is 0.
func (e *IngestionEngine) sendFileWriteAck(writeID uint32, ok bool, errMsg string) {
	if e.ackWriter == nil || writeID == 0 {
		return
	}

	ack := &types.FileWriteAckFrame{
		Type:    ipc.FileWriteAckType,
		WriteID: writeID,
		OK:      ok,
		Error:   errMsg,
	}

	frame, err := ipc.EncodeFileWriteAck(ack)
	if err != nil {
		e.logger.Warn("failed to encode file_write_ack", map[string]any{"write_id": writeID, "error": err.Error()})
		return
	}

	if _, err := e.ackWriter.Write(frame); err != nil {
		e.logger.Warn("failed to write file_write_ack (driver may have exited)", map[string]any{"write_id": writeID, "error": err.Error()})
	}
}

// GetTaskResult returns the task-result control frame if received.
func (e *IngestionEngine) GetTaskResult() *types.TaskResultFrame {
	return e.taskResult
}
