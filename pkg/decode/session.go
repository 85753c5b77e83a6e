// Package decode drives a demuxer/decoder pair to produce the frame nearest a
// requested timestamp, choosing between a keyframe seek and decoding forward
// from the last frame produced.
package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sort"
	"time"

	"github.com/user/previewkit/pkg/adapters/logger"
	"github.com/user/previewkit/pkg/metrics"
	"github.com/user/previewkit/pkg/ports"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateReady State = iota
	StateEndOfStream
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateEndOfStream:
		return "end_of_stream"
	case StateError:
		return "error"
	default:
		return "closed"
	}
}

// Options configures a Session.
type Options struct {
	Path   string
	Width  int
	Height int

	Thresholds Thresholds

	// ToleranceMs is how far a frame may sit from the target and still match.
	// Zero means half a frame duration.
	ToleranceMs int

	Logger  ports.Logger
	Metrics *metrics.Collector
}

// Stats counts what a Session has done since it was opened.
type Stats struct {
	Seeks          int
	ForwardDecodes int
	FramesDecoded  int
	Recreations    int
	FatalErrors    int
}

// Session owns one demuxer and one decoder for a media file.
// It is not safe for concurrent use; callers serialize access.
type Session struct {
	opener  ports.SourceOpener
	opts    Options
	logger  ports.Logger
	metrics *metrics.Collector

	demux ports.Demuxer
	dec   ports.FrameDecoder
	info  ports.StreamInfo

	state     State
	hasLast   bool
	lastMs    int
	lastFrame ports.VideoFrame

	// pending holds frames decoded past the last target, ascending.
	pending []ports.VideoFrame
	// drained is set once the decoder was flushed at the end of the packets.
	drained bool

	stats Stats
}

// Open opens opts.Path through opener.
func Open(opener ports.SourceOpener, opts Options) (*Session, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("decode: invalid output size %dx%d", opts.Width, opts.Height)
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoop()
	}

	s := &Session{
		opener:  opener,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if err := s.openMedia(); err != nil {
		return nil, err
	}
	s.state = StateReady
	s.logger.Debug("Opened %s: %s %dx%d, %d ms, %d keyframes",
		opts.Path, s.info.Codec, s.info.Width, s.info.Height, s.info.DurationMs, s.info.KeyframeCount)
	return s, nil
}

// Info returns the stream description.
func (s *Session) Info() ports.StreamInfo { return s.info }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Stats returns the session counters.
func (s *Session) Stats() Stats { return s.stats }

// Path returns the media path.
func (s *Session) Path() string { return s.opts.Path }

// DecodeFrame returns the frame nearest targetMs.
//
// A fault closes and reopens the media, then retries once. A second fault
// returns a Fatal DecodeError and leaves the session in StateError until
// Reopen. Running out of frames returns ErrEndOfStream. Context errors are
// returned as is.
func (s *Session) DecodeFrame(ctx context.Context, targetMs int, mode Mode) (ports.VideoFrame, error) {
	switch s.state {
	case StateClosed:
		return ports.VideoFrame{}, ErrClosed
	case StateError:
		return ports.VideoFrame{}, ErrNeedsReopen
	}
	if targetMs < 0 {
		targetMs = 0
	}

	start := time.Now()
	defer func() { s.metrics.ObserveDecode(time.Since(start)) }()

	frame, err := s.attempt(ctx, targetMs, mode)
	if err == nil || !s.isFault(ctx, err) {
		return frame, err
	}

	kind := faultKind(err)
	s.metrics.DecodeError(kind)
	s.logger.Warn("Decode fault at %d ms (%s), reopening %s: %v", targetMs, kind, s.opts.Path, err)

	if rerr := s.recreate(); rerr != nil {
		return ports.VideoFrame{}, s.fail(targetMs, rerr)
	}

	frame, err = s.attempt(ctx, targetMs, mode)
	if err == nil || !s.isFault(ctx, err) {
		return frame, err
	}
	return ports.VideoFrame{}, s.fail(targetMs, err)
}

// Reopen closes and reopens the media, leaving the session Ready.
func (s *Session) Reopen() error {
	if s.state == StateClosed {
		return ErrClosed
	}
	if err := s.recreate(); err != nil {
		s.state = StateError
		return err
	}
	s.state = StateReady
	return nil
}

// Close releases the demuxer and decoder. It is safe to call more than once.
func (s *Session) Close() {
	s.closeMedia()
	s.pending = nil
	s.state = StateClosed
}

// isFault reports whether err should trigger a reopen. End of stream and
// cancellation are not faults; they update state and pass through.
func (s *Session) isFault(ctx context.Context, err error) bool {
	switch {
	case errors.Is(err, ErrEndOfStream):
		s.state = StateEndOfStream
		return false
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		s.hasLast = false
		return false
	}
	return true
}

func (s *Session) fail(targetMs int, err error) error {
	s.state = StateError
	s.stats.FatalErrors++
	s.metrics.DecodeError(Fatal.String())
	s.logger.Error("Decoding %s failed at %d ms: %v", s.opts.Path, targetMs, err)
	return &DecodeError{Kind: Fatal, TimestampMs: targetMs, Err: err}
}

func (s *Session) attempt(ctx context.Context, targetMs int, mode Mode) (ports.VideoFrame, error) {
	threshold := s.opts.Thresholds.Forward(mode, s.frameDur())
	forward := s.hasLast && targetMs >= s.lastMs && targetMs <= s.lastMs+threshold

	var best *ports.VideoFrame
	if forward {
		s.stats.ForwardDecodes++
		s.metrics.ForwardDecode()
		if s.lastFrame.TimestampMs <= targetMs {
			last := s.lastFrame
			best = &last
		}
	} else if err := s.seek(targetMs); err != nil {
		return ports.VideoFrame{}, err
	}

	return s.decodeUntil(ctx, targetMs, best)
}

func (s *Session) seek(targetMs int) error {
	keyMs, err := s.demux.SeekKeyframe(targetMs)
	if errors.Is(err, ports.ErrSeekOutOfRange) {
		return fmt.Errorf("%w: %d ms is past %d ms", ErrEndOfStream, targetMs, s.info.DurationMs)
	}
	if err != nil {
		return fmt.Errorf("seek to %d ms: %w", targetMs, err)
	}
	if err := s.dec.Reset(); err != nil {
		return fmt.Errorf("reset decoder: %w", err)
	}

	s.resetPosition()
	s.stats.Seeks++
	s.metrics.Seek()
	s.logger.Debug("Seek to keyframe %d ms for target %d ms", keyMs, targetMs)
	return nil
}

// decodeUntil consumes pending frames and decodes packets until a frame
// matches targetMs. best is the latest frame seen at or before the target.
// When the next frame overshoots, the nearer of the two wins, ties going to
// the earlier one; when the stream ends, best is returned.
func (s *Session) decodeUntil(ctx context.Context, targetMs int, best *ports.VideoFrame) (ports.VideoFrame, error) {
	tol := s.tolerance()

	for {
		for len(s.pending) > 0 {
			f := s.pending[0]
			if err := s.checkFrame(f); err != nil {
				s.pending = s.pending[1:]
				return ports.VideoFrame{}, err
			}

			switch {
			case f.TimestampMs+tol < targetMs:
				s.pending = s.pending[1:]
				best = &f
			case f.TimestampMs <= targetMs+tol:
				s.pending = s.pending[1:]
				return s.accept(f), nil
			case best != nil && targetMs-best.TimestampMs <= f.TimestampMs-targetMs:
				// Overshoot; keep f for the next forward request.
				return s.accept(*best), nil
			default:
				s.pending = s.pending[1:]
				return s.accept(f), nil
			}
		}

		if s.drained {
			if best != nil {
				return s.accept(*best), nil
			}
			return ports.VideoFrame{}, ErrEndOfStream
		}

		if err := ctx.Err(); err != nil {
			return ports.VideoFrame{}, err
		}

		pkt, err := s.demux.ReadPacket()
		if err == io.EOF {
			frames, err := s.dec.Drain(ctx)
			if err != nil {
				return ports.VideoFrame{}, fmt.Errorf("drain decoder: %w", err)
			}
			s.enqueue(frames)
			s.drained = true
			continue
		}
		if err != nil {
			return ports.VideoFrame{}, fmt.Errorf("read packet: %w", err)
		}

		frames, err := s.dec.Decode(ctx, pkt)
		if err != nil {
			return ports.VideoFrame{}, fmt.Errorf("decode packet at %d ms: %w", pkt.TimestampMs, err)
		}
		s.enqueue(frames)
	}
}

func (s *Session) enqueue(frames []ports.VideoFrame) {
	s.stats.FramesDecoded += len(frames)
	for _, f := range frames {
		i := sort.Search(len(s.pending), func(i int) bool {
			return s.pending[i].TimestampMs > f.TimestampMs
		})
		s.pending = append(s.pending, ports.VideoFrame{})
		copy(s.pending[i+1:], s.pending[i:])
		s.pending[i] = f
	}
}

func (s *Session) accept(f ports.VideoFrame) ports.VideoFrame {
	s.lastMs = f.TimestampMs
	s.lastFrame = f
	s.hasLast = true
	s.state = StateReady
	return f
}

// checkFrame rejects frames whose size or pixel buffer does not match the output size.
func (s *Session) checkFrame(f ports.VideoFrame) error {
	corrupt := func(format string, args ...interface{}) error {
		return &DecodeError{
			Kind:        CorruptFrame,
			TimestampMs: f.TimestampMs,
			Err:         fmt.Errorf("%w: "+format, append([]interface{}{ports.ErrCorruptFrame}, args...)...),
		}
	}

	if f.Image == nil {
		return corrupt("no image")
	}
	b := f.Image.Bounds()
	if b.Dx() != s.opts.Width || b.Dy() != s.opts.Height {
		return corrupt("size %dx%d, want %dx%d", b.Dx(), b.Dy(), s.opts.Width, s.opts.Height)
	}
	if rgba, ok := f.Image.(*image.RGBA); ok {
		if rgba.Stride < b.Dx()*4 || len(rgba.Pix) < rgba.Stride*(b.Dy()-1)+b.Dx()*4 {
			return corrupt("stride %d with %d bytes", rgba.Stride, len(rgba.Pix))
		}
	}
	return nil
}

func (s *Session) tolerance() int {
	if s.opts.ToleranceMs > 0 {
		return s.opts.ToleranceMs
	}
	return s.frameDur() / 2
}

func (s *Session) frameDur() int {
	if s.info.FrameDurationMs > 0 {
		return s.info.FrameDurationMs
	}
	return 33
}

func (s *Session) resetPosition() {
	s.hasLast = false
	s.lastFrame = ports.VideoFrame{}
	s.pending = nil
	s.drained = false
}

func (s *Session) openMedia() error {
	demux, dec, err := s.opener.Open(s.opts.Path, s.opts.Width, s.opts.Height)
	if err != nil {
		return newOpenError(s.opts.Path, err)
	}
	s.demux = demux
	s.dec = dec
	s.info = demux.Info()
	s.resetPosition()
	return nil
}

func (s *Session) closeMedia() {
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	if s.demux != nil {
		if err := s.demux.Close(); err != nil {
			s.logger.Debug("Closing demuxer of %s: %v", s.opts.Path, err)
		}
		s.demux = nil
	}
}

func (s *Session) recreate() error {
	s.closeMedia()
	if err := s.openMedia(); err != nil {
		return err
	}
	s.stats.Recreations++
	s.metrics.SessionRecreated()
	s.logger.Info("Reopened decoder for %s", s.opts.Path)
	return nil
}
