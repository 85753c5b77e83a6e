package ports

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrSeekOutOfRange is returned by Demuxer.SeekKeyframe when the target lies beyond the end of the stream.
	ErrSeekOutOfRange = errors.New("ports: seek target out of range")

	// ErrUnsupportedCodec is returned by a SourceOpener when no decoder handles the stream's codec.
	ErrUnsupportedCodec = errors.New("ports: unsupported codec")

	// ErrCorruptFrame is returned when a decoded frame does not match the expected dimensions.
	ErrCorruptFrame = errors.New("ports: corrupt frame")

	// ErrDecodeTimeout is returned when the decoder produced nothing within its deadline.
	ErrDecodeTimeout = errors.New("ports: decode timeout")
)

// VideoFrame represents a decoded video frame with timing information.
type VideoFrame struct {
	Image       image.Image
	TimestampMs int
	Duration    int // Duration in milliseconds
}

// StreamInfo describes the video track of an opened media file.
type StreamInfo struct {
	Codec           string
	Width           int // Coded width of the source
	Height          int // Coded height of the source
	DurationMs      int
	FrameDurationMs int // Nominal frame duration
	KeyframeCount   int
}

// Packet is one compressed access unit in decode order.
type Packet struct {
	Data        []byte
	TimestampMs int // Presentation time
	DecodeMs    int // Decode time
	DurationMs  int
	IsKeyframe  bool
}

// Demuxer reads compressed packets from a container.
type Demuxer interface {
	// Info returns the video stream description.
	Info() StreamInfo

	// ReadPacket returns the next packet in decode order, or io.EOF at the end of the stream.
	ReadPacket() (Packet, error)

	// SeekKeyframe positions the demuxer on the last keyframe whose presentation
	// time is at or before targetMs and returns that keyframe's time.
	// Returns ErrSeekOutOfRange when targetMs is beyond the end of the stream.
	SeekKeyframe(targetMs int) (int, error)

	// Close releases the underlying file.
	Close() error
}

// FrameDecoder turns packets into frames scaled to a fixed output size.
type FrameDecoder interface {
	// Init prepares the decoder for the stream and the output size.
	Init(info StreamInfo, width, height int) error

	// Decode submits one packet and returns the frames that became available,
	// in presentation order. A decoder with delay may return none.
	Decode(ctx context.Context, pkt Packet) ([]VideoFrame, error)

	// Drain signals the end of input and returns every buffered frame.
	Drain(ctx context.Context) ([]VideoFrame, error)

	// Reset discards buffered state after a seek.
	Reset() error

	// Close releases decoder resources.
	Close()
}

// SourceOpener opens a media file as a demuxer/decoder pair configured for an output size.
// Callers own both values and must close them.
type SourceOpener interface {
	Open(path string, width, height int) (Demuxer, FrameDecoder, error)
}

// Scaler resizes decoded images.
type Scaler interface {
	// Scale resizes img to exactly width x height.
	Scale(img image.Image, width, height int) image.Image

	// Thumbnail fills width x height, cropping to preserve the aspect ratio.
	Thumbnail(img image.Image, width, height int) image.Image
}
