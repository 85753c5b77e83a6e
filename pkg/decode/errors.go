package decode

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/user/previewkit/pkg/ports"
)

var (
	// ErrEndOfStream is returned when no frame exists at or after the target.
	ErrEndOfStream = errors.New("decode: end of stream")

	// ErrClosed is returned when a closed session is used.
	ErrClosed = errors.New("decode: session closed")

	// ErrNeedsReopen is returned by a session in the Error state until Reopen succeeds.
	ErrNeedsReopen = errors.New("decode: session failed, reopen required")
)

// OpenErrorKind classifies why a media file could not be opened.
type OpenErrorKind int

const (
	FileNotFound OpenErrorKind = iota
	UnsupportedCodec
	IoFailure
)

func (k OpenErrorKind) String() string {
	switch k {
	case FileNotFound:
		return "file not found"
	case UnsupportedCodec:
		return "unsupported codec"
	default:
		return "io failure"
	}
}

// OpenError is returned when a media file cannot be opened.
type OpenError struct {
	Kind OpenErrorKind
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("decode: open %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

func newOpenError(path string, err error) *OpenError {
	kind := IoFailure
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = FileNotFound
	case errors.Is(err, ports.ErrUnsupportedCodec):
		kind = UnsupportedCodec
	}
	return &OpenError{Kind: kind, Path: path, Err: err}
}

// DecodeErrorKind classifies decode faults.
type DecodeErrorKind int

const (
	// CorruptFrame means a frame did not match the expected output size.
	CorruptFrame DecodeErrorKind = iota
	// Timeout means the decoder produced nothing within its deadline.
	Timeout
	// Fatal means the fault persisted after the session was reopened.
	Fatal
)

func (k DecodeErrorKind) String() string {
	switch k {
	case CorruptFrame:
		return "corrupt_frame"
	case Timeout:
		return "timeout"
	default:
		return "fatal"
	}
}

// DecodeError reports a decode fault for a requested timestamp.
type DecodeError struct {
	Kind        DecodeErrorKind
	TimestampMs int
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s at %d ms: %v", e.Kind, e.TimestampMs, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsFatal reports whether err is a fatal DecodeError.
func IsFatal(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == Fatal
}

// faultKind names a first-attempt fault for logs and metrics.
func faultKind(err error) string {
	var de *DecodeError
	switch {
	case errors.As(err, &de):
		return de.Kind.String()
	case errors.Is(err, ports.ErrCorruptFrame):
		return CorruptFrame.String()
	case errors.Is(err, ports.ErrDecodeTimeout):
		return Timeout.String()
	default:
		return "io"
	}
}
