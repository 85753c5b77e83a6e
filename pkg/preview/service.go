// Package preview is the entry point for timeline previews: it opens media
// files as handles and serves decoded frames and thumbnail strips for them
// through shared, budgeted caches.
package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/user/previewkit/pkg/adapters/logger"
	"github.com/user/previewkit/pkg/adapters/nullsink"
	"github.com/user/previewkit/pkg/decode"
	"github.com/user/previewkit/pkg/framecache"
	"github.com/user/previewkit/pkg/guard"
	"github.com/user/previewkit/pkg/metrics"
	"github.com/user/previewkit/pkg/ports"
	"github.com/user/previewkit/pkg/thumbnail"
	"github.com/user/previewkit/pkg/timeline"
)

var (
	// ErrHandleClosed is returned for requests on a closed handle.
	ErrHandleClosed = errors.New("preview: handle closed")
	// ErrShutdown is returned by Open and RequestFrame after Shutdown.
	ErrShutdown = errors.New("preview: service shut down")
	// ErrInvalidBudget is returned by SetCacheBudgets for negative limits.
	ErrInvalidBudget = errors.New("preview: invalid cache budget")
)

// Handle is an open media file at one output size.
type Handle struct {
	fileID  string
	path    string
	cacheID string
	width   int
	height  int
	info    ports.StreamInfo
	gate    *guard.PlaybackGate

	mu       sync.Mutex
	session  *decode.Session
	lastGood ports.VideoFrame
	hasGood  bool

	closed atomic.Bool
}

// FileID identifies the media file: its cleaned path. Timeline clips refer to files by it.
func (h *Handle) FileID() string { return h.fileID }

// Info returns the stream description.
func (h *Handle) Info() ports.StreamInfo { return h.info }

// Size returns the output frame size.
func (h *Handle) Size() (int, int) { return h.width, h.height }

// SessionStats returns the decoder session counters.
func (h *Handle) SessionStats() decode.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session.Stats()
}

// Stats describes the service's caches.
type Stats struct {
	Handles    int
	Frames     framecache.Stats
	Thumbnails thumbnail.Stats
}

// Service serves frames and thumbnails for open handles. It is safe for concurrent use.
type Service struct {
	opener  ports.SourceOpener
	opts    Options
	logger  ports.Logger
	metrics *metrics.Collector
	sink    ports.DebugSink

	frames   *framecache.Cache
	thumbs   *thumbnail.Service
	timeline *timeline.Timeline
	decodes  singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	handles  map[*Handle]struct{}
	shutdown bool
}

// New creates a Service and starts its thumbnail workers.
func New(opener ports.SourceOpener, scaler ports.Scaler, opts Options) *Service {
	if opts.Budgets == (Budgets{}) {
		opts.Budgets = DefaultBudgets()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoop()
	}
	if opts.Sink == nil {
		opts.Sink = nullsink.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	log := opts.Logger.WithComponent("preview")

	return &Service{
		opener:  opener,
		opts:    opts,
		logger:  log,
		metrics: opts.Metrics,
		sink:    opts.Sink,
		frames: framecache.New(framecache.Budget{
			Bytes: opts.Budgets.FrameBytes,
			Count: opts.Budgets.FrameCount,
		}, opts.Logger.WithComponent("framecache"), opts.Metrics),
		thumbs: thumbnail.New(opener, scaler, thumbnail.Options{
			Workers:     opts.ThumbnailWorkers,
			Budget:      thumbnail.Budget{Bytes: opts.Budgets.ThumbnailBytes, Count: opts.Budgets.ThumbnailCount},
			Tiers:       opts.Tiers,
			Thresholds:  opts.Thresholds,
			ToleranceMs: opts.ToleranceMs,
			Logger:      opts.Logger.WithComponent("thumbnail"),
			Metrics:     opts.Metrics,
			Sink:        opts.Sink,
		}),
		timeline: timeline.New(),
		ctx:      ctx,
		cancel:   cancel,
		handles:  make(map[*Handle]struct{}),
	}
}

// Open opens path for frames of width x height.
// Failures are *decode.OpenError.
func (s *Service) Open(path string, width, height int) (*Handle, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("preview: invalid output size %dx%d", width, height)
	}
	s.mu.Lock()
	down := s.shutdown
	s.mu.Unlock()
	if down {
		return nil, ErrShutdown
	}

	sess, err := decode.Open(s.opener, decode.Options{
		Path:        path,
		Width:       width,
		Height:      height,
		Thresholds:  s.opts.Thresholds,
		ToleranceMs: s.opts.ToleranceMs,
		Logger:      s.opts.Logger.WithComponent("decode"),
		Metrics:     s.metrics,
	})
	if err != nil {
		s.logger.Error("Cannot open %s: %v", path, err)
		return nil, err
	}

	fileID := filepath.Clean(path)
	h := &Handle{
		fileID:  fileID,
		path:    path,
		cacheID: fmt.Sprintf("%s@%dx%d", fileID, width, height),
		width:   width,
		height:  height,
		info:    sess.Info(),
		gate:    guard.NewPlaybackGate(s.metrics),
		session: sess,
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		sess.Close()
		return nil, ErrShutdown
	}
	s.handles[h] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("Opened %s at %dx%d", path, width, height)
	return h, nil
}

// RequestFrame returns the frame nearest timestampMs, from the cache when possible.
//
// Concurrent misses for the same file, size and time share one decode. After
// a fatal error the next request reopens the handle's session.
func (s *Service) RequestFrame(ctx context.Context, h *Handle, timestampMs int, mode decode.Mode) (ports.VideoFrame, error) {
	if timestampMs < 0 {
		timestampMs = 0
	}
	if h.closed.Load() {
		return ports.VideoFrame{}, ErrHandleClosed
	}

	if f, ok := s.frames.Get(h.cacheID, timestampMs); ok {
		return ports.VideoFrame{Image: f.Image, TimestampMs: f.TimestampMs}, nil
	}

	// The shared decode is bound to the service, not to the first caller, so
	// one caller giving up does not fail the others.
	key := fmt.Sprintf("%s#%d", h.cacheID, timestampMs)
	ch := s.decodes.DoChan(key, func() (interface{}, error) {
		if !s.track() {
			return ports.VideoFrame{}, ErrShutdown
		}
		defer s.wg.Done()
		return s.decode(s.ctx, h, timestampMs, mode)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return ports.VideoFrame{}, res.Err
		}
		return res.Val.(ports.VideoFrame), nil
	case <-ctx.Done():
		return ports.VideoFrame{}, ctx.Err()
	}
}

// track registers background work with Shutdown. It reports false once
// Shutdown has begun; otherwise the caller must call s.wg.Done.
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Service) decode(ctx context.Context, h *Handle, timestampMs int, mode decode.Mode) (ports.VideoFrame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed.Load() {
		return ports.VideoFrame{}, ErrHandleClosed
	}
	if h.session.State() == decode.StateError {
		if err := h.session.Reopen(); err != nil {
			return ports.VideoFrame{}, &decode.DecodeError{Kind: decode.Fatal, TimestampMs: timestampMs, Err: err}
		}
	}

	frame, err := h.session.DecodeFrame(ctx, timestampMs, mode)
	if err != nil {
		return ports.VideoFrame{}, err
	}

	h.lastGood = frame
	h.hasGood = true
	s.frames.Put(h.cacheID, timestampMs, framecache.Frame{
		Image:       frame.Image,
		TimestampMs: frame.TimestampMs,
		Width:       h.width,
		Height:      h.height,
	})
	if s.sink.Enabled() {
		if err := s.sink.SaveFrame(h.fileID, frame.TimestampMs, frame.Image); err != nil {
			s.logger.Warn("Failed to save debug frame: %v", err)
		}
	}
	return frame, nil
}

// GetOrRequestStrip returns the thumbnail strip of the handle's file at tier,
// scheduling generation if needed. It returns nil for a closed handle.
func (s *Service) GetOrRequestStrip(h *Handle, tier thumbnail.Tier) *thumbnail.Strip {
	if h.closed.Load() {
		return nil
	}
	return s.thumbs.GetOrRequest(thumbnail.Source{
		FileID:     h.fileID,
		Path:       h.path,
		DurationMs: h.info.DurationMs,
		Width:      h.info.Width,
		Height:     h.info.Height,
	}, tier)
}

// ThumbnailReady delivers thumbnail notifications for every file.
func (s *Service) ThumbnailReady() <-chan thumbnail.Ready {
	return s.thumbs.Ready()
}

// InvalidateRange drops cached frames and thumbnails of the handle's file in
// [startMs, endMs] and returns how many frames and thumbnails were dropped.
func (s *Service) InvalidateRange(h *Handle, startMs, endMs int) (int, int) {
	return s.invalidateFile(h.fileID, startMs, endMs)
}

func (s *Service) invalidateFile(fileID string, startMs, endMs int) (int, int) {
	s.mu.Lock()
	ids := make(map[string]struct{})
	for h := range s.handles {
		if h.fileID == fileID {
			ids[h.cacheID] = struct{}{}
		}
	}
	s.mu.Unlock()

	frames := 0
	for id := range ids {
		frames += s.frames.InvalidateRange(id, startMs, endMs)
	}
	thumbs := s.thumbs.InvalidateRange(fileID, startMs, endMs)
	s.logger.Debug("Invalidated %s in [%d, %d] ms: %d frames, %d thumbnails", fileID, startMs, endMs, frames, thumbs)
	return frames, thumbs
}

// SetClips registers the timeline's clips for ApplyEdit.
func (s *Service) SetClips(clips []timeline.Clip) {
	s.timeline.SetClips(clips)
}

// ApplyEdit records a clip edit and invalidates the source ranges it affects.
func (s *Service) ApplyEdit(e timeline.Edit) ([]timeline.Invalidation, error) {
	invs, err := s.timeline.Apply(e)
	if err != nil {
		return nil, err
	}
	for _, inv := range invs {
		s.invalidateFile(inv.FileID, inv.Range.StartMs, inv.Range.EndMs)
	}
	s.logger.Debug("Applied %s of clip %s: %d ranges invalidated", e.Kind, e.ClipID, len(invs))
	return invs, nil
}

// SetCacheBudgets replaces both cache budgets, evicting immediately.
// Negative limits are rejected and leave the budgets unchanged.
func (s *Service) SetCacheBudgets(b Budgets) error {
	if b.FrameBytes < 0 || b.FrameCount < 0 || b.ThumbnailBytes < 0 || b.ThumbnailCount < 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidBudget, b)
	}
	s.frames.SetBudgets(framecache.Budget{Bytes: b.FrameBytes, Count: b.FrameCount})
	s.thumbs.SetBudget(thumbnail.Budget{Bytes: b.ThumbnailBytes, Count: b.ThumbnailCount})
	return nil
}

// Close releases the handle's session and its cached frames. Thumbnails of
// the file are kept while another open handle uses the same file.
func (s *Service) Close(h *Handle) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.mu.Lock()
	h.session.Close()
	h.mu.Unlock()

	s.mu.Lock()
	delete(s.handles, h)
	sameSize, sameFile := false, false
	for other := range s.handles {
		if other.fileID == h.fileID {
			sameFile = true
			sameSize = sameSize || other.cacheID == h.cacheID
		}
	}
	s.mu.Unlock()

	frames, strips := 0, 0
	if !sameSize {
		frames = s.frames.RemoveFile(h.cacheID)
	}
	if !sameFile {
		strips = s.thumbs.RemoveFile(h.fileID)
	}
	s.logger.Info("Closed %s (%d frames, %d strips released)", h.path, frames, strips)
	return nil
}

// Stats returns a snapshot of the caches.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	n := len(s.handles)
	s.mu.Unlock()
	return Stats{
		Handles:    n,
		Frames:     s.frames.Stats(),
		Thumbnails: s.thumbs.Stats(),
	}
}

// Shutdown stops background work, closes every handle and releases the caches.
func (s *Service) Shutdown() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	handles := make([]*Handle, 0, len(s.handles))
	for h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	for _, h := range handles {
		_ = s.Close(h)
	}
	err := s.thumbs.Close()
	s.frames.Clear()
	s.logger.Info("Preview service shut down")
	return err
}

// fallback returns the last good frame of h, or a blank frame of its size.
func (h *Handle) fallback() ports.VideoFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasGood {
		return h.lastGood
	}
	return ports.VideoFrame{Image: image.NewRGBA(image.Rect(0, 0, h.width, h.height))}
}
