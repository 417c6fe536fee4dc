// Package ipc implements the length-prefixed msgpack framing used on the
// devtools channel between RunController and a BrowserDriver subprocess.
package ipc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wptagent/agent/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// MaxChunkSize is the maximum artifact chunk size (8 MiB raw bytes).
	MaxChunkSize = 8 * 1024 * 1024
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Type discriminants for the control frames layered over StepEvent.
const (
	ArtifactChunkType = "artifact_chunk"
	TaskResultType    = "task_result"
	FileWriteType     = "file_write"
	FileWriteAckType  = "file_write_ack"
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if this error should terminate the task: partial and
// oversized frames cannot be recovered from mid-stream.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder. Wraps the reader with
// bufio.Reader to reduce syscall overhead on unbuffered sources (e.g. OS
// pipes from the driver subprocess).
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &FrameDecoder{reader: br}
}

// ReadFrame reads a single frame from the stream and returns the raw
// payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])

	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// probeFrameType extracts the "type" field from a msgpack map without fully
// unmarshaling the payload.
func probeFrameType(payload []byte) (string, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	n, err := dec.DecodeMapLen()
	if err != nil {
		return "", err
	}
	for range n {
		key, err := dec.DecodeString()
		if err != nil {
			return "", err
		}
		if key == "type" {
			return dec.DecodeString()
		}
		if err := dec.Skip(); err != nil {
			return "", err
		}
	}
	return "", errors.New("missing type field")
}

// DecodeFrame decodes a payload and returns a typed frame. Discriminates
// based on the type field: "artifact_chunk", "task_result", "file_write",
// "file_write_ack", or a bare StepEvent.
func DecodeFrame(payload []byte) (any, error) {
	frameType, err := probeFrameType(payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame type",
			Err:  err,
		}
	}

	switch frameType {
	case ArtifactChunkType:
		return DecodeArtifactChunk(payload)
	case TaskResultType:
		return DecodeTaskResult(payload)
	case FileWriteType:
		return DecodeFileWrite(payload)
	case FileWriteAckType:
		return DecodeFileWriteAck(payload)
	default:
		return DecodeStepEvent(payload)
	}
}

// DecodeStepEvent decodes a payload as a StepEvent.
func DecodeStepEvent(payload []byte) (*types.StepEvent, error) {
	var event types.StepEvent
	if err := msgpack.Unmarshal(payload, &event); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode step event", Err: err}
	}
	return &event, nil
}

// DecodeArtifactChunk decodes a payload as an ArtifactChunkFrame.
func DecodeArtifactChunk(payload []byte) (*types.ArtifactChunkFrame, error) {
	var chunk types.ArtifactChunkFrame
	if err := msgpack.Unmarshal(payload, &chunk); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode artifact chunk", Err: err}
	}
	return &chunk, nil
}

// DecodeTaskResult decodes a payload as a TaskResultFrame.
func DecodeTaskResult(payload []byte) (*types.TaskResultFrame, error) {
	var result types.TaskResultFrame
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode task result", Err: err}
	}
	return &result, nil
}

// DecodeFileWrite decodes a payload as a FileWriteFrame.
func DecodeFileWrite(payload []byte) (*types.FileWriteFrame, error) {
	var frame types.FileWriteFrame
	if err := msgpack.Unmarshal(payload, &frame); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode file write", Err: err}
	}
	return &frame, nil
}

// DecodeFileWriteAck decodes a payload as a FileWriteAckFrame.
func DecodeFileWriteAck(payload []byte) (*types.FileWriteAckFrame, error) {
	var frame types.FileWriteAckFrame
	if err := msgpack.Unmarshal(payload, &frame); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode file write ack", Err: err}
	}
	return &frame, nil
}

// EncodeFrame encodes a payload with a 4-byte big-endian length prefix.
func EncodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

// EncodeFileWriteAck encodes a FileWriteAckFrame as a length-prefixed
// msgpack frame.
func EncodeFileWriteAck(ack *types.FileWriteAckFrame) ([]byte, error) {
	payload, err := msgpack.Marshal(ack)
	if err != nil {
		return nil, fmt.Errorf("failed to encode file write ack: %w", err)
	}
	return EncodeFrame(payload), nil
}
