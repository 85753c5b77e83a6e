package preview

import (
	"context"
	"errors"

	"github.com/user/previewkit/pkg/decode"
	"github.com/user/previewkit/pkg/guard"
	"github.com/user/previewkit/pkg/ports"
)

// Result is a frame delivered to a playback or scrub consumer.
//
// When the decoder failed fatally, Frame holds the handle's last good frame
// (or a blank frame of the output size), Fallback is set and Err carries the
// failure.
type Result struct {
	TimestampMs int // requested time
	Frame       ports.VideoFrame
	Err         error
	Fallback    bool
}

// PlaybackTick requests the frame at timestampMs on a background goroutine and
// passes the result to deliver. While a previous tick of h is still rendering
// the tick is dropped and PlaybackTick returns false.
func (s *Service) PlaybackTick(h *Handle, timestampMs int, deliver func(Result)) bool {
	if !s.track() {
		return false
	}
	ok := h.gate.Go(func() {
		defer s.wg.Done()
		frame, err := s.RequestFrame(s.ctx, h, timestampMs, decode.ModePlayback)
		if errors.Is(err, context.Canceled) {
			return
		}
		deliver(s.result(h, timestampMs, frame, err))
	})
	if !ok {
		s.wg.Done()
	}
	return ok
}

// Scrubber renders the latest scrub position of one handle.
type Scrubber struct {
	loop   *guard.ScrubLoop
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScrubber starts a scrub loop for h. Stop it when scrubbing ends;
// Shutdown stops it as well. After Shutdown the scrubber renders nothing.
func (s *Service) NewScrubber(h *Handle, deliver func(Result)) *Scrubber {
	ctx, cancel := context.WithCancel(s.ctx)
	sc := &Scrubber{cancel: cancel, done: make(chan struct{})}
	sc.loop = guard.NewScrubLoop(func(ctx context.Context, ts int) {
		frame, err := s.RequestFrame(ctx, h, ts, decode.ModeScrub)
		if ctx.Err() != nil {
			return
		}
		deliver(s.result(h, ts, frame, err))
	}, s.metrics)

	if !s.track() {
		cancel()
		close(sc.done)
		return sc
	}
	go func() {
		defer s.wg.Done()
		defer close(sc.done)
		sc.loop.Run(ctx)
	}()
	return sc
}

// Set replaces the pending scrub position.
func (sc *Scrubber) Set(timestampMs int) {
	sc.loop.Set(timestampMs)
}

// Stop ends the loop and waits for an in-flight render to finish.
func (sc *Scrubber) Stop() {
	sc.cancel()
	<-sc.done
}

// Stats returns the loop counters.
func (sc *Scrubber) Stats() guard.ScrubStats {
	return sc.loop.Stats()
}

func (s *Service) result(h *Handle, timestampMs int, frame ports.VideoFrame, err error) Result {
	r := Result{TimestampMs: timestampMs, Frame: frame, Err: err}
	if decode.IsFatal(err) || errors.Is(err, decode.ErrNeedsReopen) {
		r.Frame = h.fallback()
		r.Fallback = true
		s.logger.Warn("Showing fallback frame for %s at %d ms: %v", h.path, timestampMs, err)
	}
	return r
}
