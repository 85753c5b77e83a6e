// Package thumbnail generates tiered thumbnail strips of media files in the
// background and keeps them in a budgeted cache.
//
// A strip is created on first request and filled progressively, in ascending
// time order, by a fixed pool of workers. Every new thumbnail is announced on
// the Ready channel; consumers re-read the strip to pick it up.
package thumbnail

import (
	"container/list"
	"context"
	"errors"
	"image"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/user/previewkit/pkg/adapters/logger"
	"github.com/user/previewkit/pkg/adapters/nullsink"
	"github.com/user/previewkit/pkg/decode"
	"github.com/user/previewkit/pkg/metrics"
	"github.com/user/previewkit/pkg/ports"
	"github.com/user/previewkit/pkg/workers"
)

// ErrClosed is set on strips requested after Close.
var ErrClosed = errors.New("thumbnail: service closed")

const (
	defaultWorkers  = 2
	readyBufferSize = 16
)

// Budget caps the thumbnails held across all strips. Negative limits count as 0.
type Budget struct {
	Bytes int64
	Count int
}

func (b Budget) clamp() Budget {
	return Budget{Bytes: max(b.Bytes, 0), Count: max(b.Count, 0)}
}

// DefaultBudget is used when Options.Budget is zero.
func DefaultBudget() Budget {
	return Budget{Bytes: 128 << 20, Count: 8192}
}

// Ready announces a new thumbnail, or with Complete set, the end of a strip's generation.
// TimeMs is the latest thumbnail's time, -1 when none was added.
type Ready struct {
	FileID   string
	Tier     Tier
	TimeMs   int
	Complete bool
}

// Options configures a Service.
type Options struct {
	// Workers is the pool size. Zero picks one per CPU, at most 2.
	Workers int

	Budget Budget
	Tiers  map[Tier]TierSpec

	Thresholds  decode.Thresholds
	ToleranceMs int

	Logger  ports.Logger
	Metrics *metrics.Collector
	Sink    ports.DebugSink
}

// Stats describes the service's current load.
type Stats struct {
	Strips     int
	Thumbnails int
	Bytes      int64
	Evictions  int
	QueuedJobs int
}

type stripKey struct {
	fileID string
	tier   Tier
}

type job struct {
	strip  *Strip
	times  []int
	pos    atomic.Int64 // index of the next time to generate
	ctx    context.Context
	cancel context.CancelFunc
}

func (j *job) remaining() []int {
	pos := int(j.pos.Load())
	if pos >= len(j.times) {
		return nil
	}
	return j.times[pos:]
}

// Service owns every strip and the worker pool filling them.
type Service struct {
	opener  ports.SourceOpener
	scaler  ports.Scaler
	opts    Options
	logger  ports.Logger
	metrics *metrics.Collector
	sink    ports.DebugSink

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	once   sync.Once

	mu        sync.Mutex
	strips    map[stripKey]*Strip
	lru       *list.List // front is most recently requested
	queue     []*job
	budget    Budget
	bytes     int64
	count     int
	evictions int
	closed    bool

	wake  chan struct{}
	ready chan Ready

	// pending coalesces notifications per strip until the dispatcher hands them out.
	pendMu    sync.Mutex
	pending   map[stripKey]Ready
	pendOrder []stripKey
	signal    chan struct{}
}

// New creates a Service and starts its workers. Close stops them.
func New(opener ports.SourceOpener, scaler ports.Scaler, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = workers.ForThumbnails(defaultWorkers)
	}
	if opts.Budget == (Budget{}) {
		opts.Budget = DefaultBudget()
	}
	if opts.Tiers == nil {
		opts.Tiers = DefaultTierSpecs()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoop()
	}
	if opts.Sink == nil {
		opts.Sink = nullsink.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	s := &Service{
		opener:  opener,
		scaler:  scaler,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		sink:    opts.Sink,
		ctx:     ctx,
		cancel:  cancel,
		group:   g,
		strips:  make(map[stripKey]*Strip),
		lru:     list.New(),
		budget:  opts.Budget.clamp(),
		wake:    make(chan struct{}, opts.Workers),
		ready:   make(chan Ready, readyBufferSize),
		pending: make(map[stripKey]Ready),
		signal:  make(chan struct{}, 1),
	}

	for i := 0; i < opts.Workers; i++ {
		g.Go(func() error {
			s.worker(gctx)
			return nil
		})
	}
	g.Go(func() error {
		s.dispatch(gctx)
		return nil
	})
	s.logger.Debug("Started %d thumbnail workers", opts.Workers)
	return s
}

// Ready delivers thumbnail notifications. Notifications not yet received are
// coalesced per strip, so a slow consumer may miss intermediate thumbnails
// but always gets each strip's latest state, completion included. The
// channel is closed by Close.
func (s *Service) Ready() <-chan Ready {
	return s.ready
}

// GetOrRequest returns the strip of src at tier, creating it and scheduling
// its generation on first request. The strip may be partial.
func (s *Service) GetOrRequest(src Source, tier Tier) *Strip {
	spec, ok := s.opts.Tiers[tier]
	if !ok {
		spec = DefaultTierSpecs()[tier]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		st := newStrip(src, tier, spec)
		st.setErr(ErrClosed)
		st.setComplete(true)
		return st
	}

	key := stripKey{src.FileID, tier}
	if st, ok := s.strips[key]; ok {
		s.lru.MoveToFront(st.elem)
		s.metrics.CacheHit(metrics.CacheThumbnail)
		return st
	}
	s.metrics.CacheMiss(metrics.CacheThumbnail)

	st := newStrip(src, tier, spec)
	st.elem = s.lru.PushFront(st)
	s.strips[key] = st

	times := st.Schedule()
	if len(times) == 0 {
		st.setComplete(true)
		return st
	}
	s.enqueue(st, times)
	s.logger.Debug("Scheduled %d %s thumbnails for %s every %d ms", len(times), tier, src.FileID, st.intervalMs)
	return st
}

// Lookup returns an existing strip without scheduling anything.
func (s *Service) Lookup(fileID string, tier Tier) (*Strip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strips[stripKey{fileID, tier}]
	return st, ok
}

// InvalidateRange drops the thumbnails of fileID with startMs <= time <= endMs
// from every tier and schedules their regeneration. It returns how many were dropped.
func (s *Service) InvalidateRange(fileID string, startMs, endMs int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, tier := range Tiers {
		st, ok := s.strips[stripKey{fileID, tier}]
		if !ok {
			continue
		}

		slots := st.removeRange(startMs, endMs)
		n := len(slots)
		s.bytes -= int64(n) * st.spec.Bytes()
		s.count -= n
		total += n

		// In-flight jobs may be holding frames decoded before the edit;
		// restart whatever they had left together with the dropped range.
		var times []int
		for _, j := range st.jobs {
			times = append(times, j.remaining()...)
			j.cancel()
		}
		st.jobs = nil
		// Frames land on or after their slot, so a dropped thumbnail's slot
		// may lie before startMs.
		times = append(times, slots...)
		for _, t := range st.Schedule() {
			if t >= startMs && t <= endMs {
				times = append(times, t)
			}
		}
		if times = uniqueSorted(times); len(times) > 0 {
			s.enqueue(st, times)
		} else if !st.Complete() {
			st.setComplete(true)
			s.notify(Ready{FileID: fileID, Tier: tier, TimeMs: -1, Complete: true})
		}
	}

	if total > 0 {
		s.logger.Debug("Invalidated %d thumbnails of %s in [%d, %d] ms", total, fileID, startMs, endMs)
	}
	s.report()
	return total
}

// RemoveFile drops every strip of fileID and stops their generation.
func (s *Service) RemoveFile(fileID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, tier := range Tiers {
		if st, ok := s.strips[stripKey{fileID, tier}]; ok {
			s.removeStrip(st)
			n++
		}
	}
	s.report()
	return n
}

// SetBudget replaces the budget, evicting least recently requested strips until it holds.
func (s *Service) SetBudget(b Budget) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.budget = b.clamp()
	n := s.evictUntil(nil, 0)
	s.noteEvictions(n)
}

// Stats returns a snapshot of the service's load.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Strips:     len(s.strips),
		Thumbnails: s.count,
		Bytes:      s.bytes,
		Evictions:  s.evictions,
		QueuedJobs: len(s.queue),
	}
}

// Close stops the workers, waits for them and closes the Ready channel.
func (s *Service) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		_ = s.group.Wait()
		close(s.ready)
	})
	return nil
}

func (s *Service) worker(ctx context.Context) {
	for ctx.Err() == nil {
		j := s.next()
		if j == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			continue
		}
		s.run(j)
	}
}

func (s *Service) next() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	j := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return j
}

// enqueue must be called with s.mu held.
func (s *Service) enqueue(st *Strip, times []int) {
	ctx, cancel := context.WithCancel(s.ctx)
	j := &job{strip: st, times: times, ctx: ctx, cancel: cancel}
	st.jobs = append(st.jobs, j)
	st.setComplete(false)
	s.queue = append(s.queue, j)
	s.metrics.ThumbnailJobs(1)

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) run(j *job) {
	defer s.finish(j)
	if j.ctx.Err() != nil {
		return
	}

	st := j.strip
	w, h := coverSize(st.source.Width, st.source.Height, st.spec.Width, st.spec.Height)
	sess, err := decode.Open(s.opener, decode.Options{
		Path:        st.source.Path,
		Width:       w,
		Height:      h,
		Thresholds:  s.opts.Thresholds,
		ToleranceMs: s.opts.ToleranceMs,
		Logger:      s.logger.WithComponent("decode"),
		Metrics:     s.metrics,
	})
	if err != nil {
		s.logger.Error("Cannot open %s for %s thumbnails: %v", st.source.Path, st.tier, err)
		st.setErr(err)
		return
	}
	defer sess.Close()

	for i, t := range j.times {
		j.pos.Store(int64(i))
		if j.ctx.Err() != nil {
			return
		}

		frame, err := sess.DecodeFrame(j.ctx, t, decode.ModeThumbnail)
		if errors.Is(err, decode.ErrEndOfStream) {
			break
		}
		if err != nil {
			if j.ctx.Err() != nil {
				return
			}
			s.logger.Error("Thumbnail generation for %s stopped at %d ms: %v", st.source.FileID, t, err)
			st.setErr(err)
			return
		}

		var img image.Image
		if w == st.spec.Width && h == st.spec.Height {
			// Same aspect as the tier: nothing to crop.
			img = s.scaler.Scale(frame.Image, w, h)
		} else {
			img = s.scaler.Thumbnail(frame.Image, st.spec.Width, st.spec.Height)
		}
		s.add(j, Thumbnail{
			TimeMs: frame.TimestampMs,
			SlotMs: t,
			Image:  img,
			Width:  st.spec.Width,
			Height: st.spec.Height,
		})
	}
	j.pos.Store(int64(len(j.times)))
}

func (s *Service) add(j *job, th Thumbnail) {
	st := j.strip
	size := st.spec.Bytes()

	s.mu.Lock()
	if j.ctx.Err() != nil || s.strips[stripKey{st.source.FileID, st.tier}] != st {
		s.mu.Unlock()
		return
	}

	evicted := s.evictUntil(st, size)
	s.noteEvictions(evicted)
	if s.bytes+size > s.budget.Bytes || s.count+1 > s.budget.Count {
		s.logger.Warn("Thumbnail budget exhausted; %s strip of %s stops at %d thumbnails",
			st.tier, st.source.FileID, st.Len())
		j.cancel()
		s.mu.Unlock()
		return
	}

	if !st.insert(th) {
		s.mu.Unlock()
		return
	}
	s.bytes += size
	s.count++
	s.report()
	s.mu.Unlock()

	s.metrics.ThumbnailGenerated(st.tier.String())
	if s.sink.Enabled() {
		if err := s.sink.SaveThumbnail(st.source.FileID, st.tier.String(), th.TimeMs, th.Image); err != nil {
			s.logger.Warn("Failed to save debug thumbnail: %v", err)
		}
	}
	s.notify(Ready{FileID: st.source.FileID, Tier: st.tier, TimeMs: th.TimeMs})
}

func (s *Service) finish(j *job) {
	j.cancel()
	st := j.strip

	s.mu.Lock()
	for i, other := range st.jobs {
		if other == j {
			st.jobs = append(st.jobs[:i], st.jobs[i+1:]...)
			break
		}
	}
	s.metrics.ThumbnailJobs(-1)
	done := len(st.jobs) == 0 && s.strips[stripKey{st.source.FileID, st.tier}] == st
	if done {
		st.setComplete(true)
	}
	s.mu.Unlock()

	if done {
		s.logger.Debug("%s strip of %s complete: %d thumbnails", st.tier, st.source.FileID, st.Len())
		s.notify(Ready{FileID: st.source.FileID, Tier: st.tier, TimeMs: -1, Complete: true})
	}
}

// evictUntil removes least recently requested strips other than keep until
// extra more bytes and one more entry fit the budget (extra 0 means just fit).
// It must be called with s.mu held and returns the number of thumbnails evicted.
func (s *Service) evictUntil(keep *Strip, extra int64) int {
	need := 0
	if extra > 0 {
		need = 1
	}

	evicted := 0
	for el := s.lru.Back(); el != nil && (s.bytes+extra > s.budget.Bytes || s.count+need > s.budget.Count); {
		prev := el.Prev()
		if st := el.Value.(*Strip); st != keep {
			evicted += st.Len()
			s.removeStrip(st)
			s.logger.Debug("Evicted %s strip of %s", st.tier, st.source.FileID)
		}
		el = prev
	}
	return evicted
}

// removeStrip must be called with s.mu held.
func (s *Service) removeStrip(st *Strip) {
	delete(s.strips, stripKey{st.source.FileID, st.tier})
	s.lru.Remove(st.elem)
	for _, j := range st.jobs {
		j.cancel()
	}
	n := st.Len()
	s.bytes -= int64(n) * st.spec.Bytes()
	s.count -= n
}

func (s *Service) noteEvictions(n int) {
	if n > 0 {
		s.evictions += n
		s.metrics.CacheEvicted(metrics.CacheThumbnail, n)
	}
	s.report()
}

func (s *Service) report() {
	s.metrics.CacheSize(metrics.CacheThumbnail, s.bytes, s.count)
}

// notify records r as the latest state of its strip and wakes the dispatcher.
func (s *Service) notify(r Ready) {
	key := stripKey{r.FileID, r.Tier}

	s.pendMu.Lock()
	prev, ok := s.pending[key]
	if !ok {
		s.pendOrder = append(s.pendOrder, key)
	} else if r.TimeMs < 0 {
		r.TimeMs = prev.TimeMs
	}
	s.pending[key] = r
	s.pendMu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// dispatch forwards pending notifications to the Ready channel until ctx is done.
func (s *Service) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
		}

		for _, r := range s.takePending() {
			select {
			case s.ready <- r:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Service) takePending() []Ready {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()

	out := make([]Ready, 0, len(s.pendOrder))
	for _, key := range s.pendOrder {
		out = append(out, s.pending[key])
		delete(s.pending, key)
	}
	s.pendOrder = s.pendOrder[:0]
	return out
}

// coverSize scales srcW x srcH to the smallest size covering w x h with the
// same aspect ratio, so the thumbnail can be center-cropped without stretching.
func coverSize(srcW, srcH, w, h int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return w, h
	}
	if srcW*h >= srcH*w {
		return max(srcW*h/srcH, w), h
	}
	return w, max(srcH*w/srcW, h)
}

func uniqueSorted(times []int) []int {
	sort.Ints(times)
	out := times[:0]
	for i, t := range times {
		if i == 0 || t != times[i-1] {
			out = append(out, t)
		}
	}
	return out
}
