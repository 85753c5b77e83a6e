package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/user/previewkit/pkg/metrics"
	"github.com/user/previewkit/pkg/mocks"
	"github.com/user/previewkit/pkg/ports"
)

const (
	testWidth  = 64
	testHeight = 36
)

// fixedOpener always hands out the same pair so tests can inspect it.
func fixedOpener(demux *mocks.Demuxer, dec *mocks.FrameDecoder) *mocks.SourceOpener {
	return &mocks.SourceOpener{
		OpenFunc: func(path string, w, h int) (ports.Demuxer, ports.FrameDecoder, error) {
			if err := dec.Init(demux.Info(), w, h); err != nil {
				return nil, nil, err
			}
			return demux, dec, nil
		},
	}
}

func openSession(t *testing.T, opener ports.SourceOpener, opts Options) *Session {
	t.Helper()
	opts.Path = "clip.mp4"
	opts.Width = testWidth
	opts.Height = testHeight
	if opts.Logger == nil {
		opts.Logger = mocks.NewLogger()
	}
	s, err := Open(opener, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func mustDecode(t *testing.T, s *Session, ts int, mode Mode) ports.VideoFrame {
	t.Helper()
	f, err := s.DecodeFrame(context.Background(), ts, mode)
	if err != nil {
		t.Fatalf("DecodeFrame(%d, %s): %v", ts, mode, err)
	}
	return f
}

func TestDecodeFrame_ForwardWithinThresholdDoesNotSeek(t *testing.T) {
	demux := mocks.NewDemuxer(10000, 40, 25)
	dec := &mocks.FrameDecoder{}
	s := openSession(t, fixedOpener(demux, dec), Options{})

	if f := mustDecode(t, s, 1000, ModeScrub); f.TimestampMs != 1000 {
		t.Errorf("expected frame 1000, got %d", f.TimestampMs)
	}
	if demux.Seeks() != 1 {
		t.Fatalf("expected 1 seek for the first request, got %d", demux.Seeks())
	}

	// Playback threshold is 2 frames (80 ms), scrub is 100 ms.
	mustDecode(t, s, 1040, ModePlayback)
	mustDecode(t, s, 1080, ModePlayback)
	mustDecode(t, s, 1160, ModeScrub)
	if demux.Seeks() != 1 {
		t.Errorf("expected no further seeks within threshold, got %d total", demux.Seeks())
	}
	if got := s.Stats().ForwardDecodes; got != 3 {
		t.Errorf("expected 3 forward decodes, got %d", got)
	}

	mustDecode(t, s, 5000, ModeScrub)
	if demux.Seeks() != 2 {
		t.Errorf("expected exactly 1 seek outside threshold, got %d total", demux.Seeks())
	}
}

func TestDecodeFrame_BackwardSeeks(t *testing.T) {
	demux := mocks.NewDemuxer(10000, 40, 25)
	s := openSession(t, fixedOpener(demux, &mocks.FrameDecoder{}), Options{})

	mustDecode(t, s, 3000, ModePlayback)
	f := mustDecode(t, s, 2960, ModePlayback)
	if f.TimestampMs != 2960 {
		t.Errorf("expected 2960, got %d", f.TimestampMs)
	}
	if demux.Seeks() != 2 {
		t.Errorf("expected backward request to seek, got %d seeks", demux.Seeks())
	}
}

func TestDecodeFrame_PlaybackBeyondThresholdSeeks(t *testing.T) {
	demux := mocks.NewDemuxer(10000, 40, 25)
	s := openSession(t, fixedOpener(demux, &mocks.FrameDecoder{}), Options{})

	mustDecode(t, s, 1000, ModePlayback)
	mustDecode(t, s, 1120, ModePlayback) // 3 frames ahead
	if demux.Seeks() != 2 {
		t.Errorf("expected 2 seeks, got %d", demux.Seeks())
	}
}

func TestDecodeFrame_ThumbnailModeDecodesForward(t *testing.T) {
	demux := mocks.NewDemuxer(20000, 40, 25)
	dec := &mocks.FrameDecoder{}
	s := openSession(t, fixedOpener(demux, dec), Options{})

	mustDecode(t, s, 0, ModeThumbnail)
	mustDecode(t, s, 5000, ModeThumbnail)
	mustDecode(t, s, 10000, ModeThumbnail)
	if demux.Seeks() != 1 {
		t.Errorf("expected 1 seek, got %d", demux.Seeks())
	}
	if got := dec.Decodes(); got != 251 {
		t.Errorf("expected 251 decoded packets, got %d", got)
	}
}

func TestDecodeFrame_DecoderDelay(t *testing.T) {
	demux := mocks.NewDemuxer(10000, 40, 25)
	dec := &mocks.FrameDecoder{Delay: 3}
	s := openSession(t, fixedOpener(demux, dec), Options{})

	if f := mustDecode(t, s, 1000, ModeScrub); f.TimestampMs != 1000 {
		t.Errorf("expected 1000, got %d", f.TimestampMs)
	}
	if dec.Decodes() != 4 {
		t.Errorf("expected 4 packets fed before the first frame, got %d", dec.Decodes())
	}

	if f := mustDecode(t, s, 1040, ModePlayback); f.TimestampMs != 1040 {
		t.Errorf("expected 1040, got %d", f.TimestampMs)
	}
	if dec.Decodes() != 5 {
		t.Errorf("expected one more packet, got %d total", dec.Decodes())
	}
}

func TestDecodeFrame_Tolerance(t *testing.T) {
	tests := []struct {
		name      string
		tolerance int
		target    int
		want      int
	}{
		{"exact", 0, 1040, 1040},
		{"within half frame below", 0, 1015, 1000},
		{"nearer to next frame", 0, 1025, 1040},
		{"tie goes to earlier", 0, 1020, 1000},
		{"custom tolerance", 5, 1030, 1040},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			demux := mocks.NewDemuxer(10000, 40, 25)
			s := openSession(t, fixedOpener(demux, &mocks.FrameDecoder{}), Options{ToleranceMs: tt.tolerance})
			if f := mustDecode(t, s, tt.target, ModeScrub); f.TimestampMs != tt.want {
				t.Errorf("target %d: got %d, want %d", tt.target, f.TimestampMs, tt.want)
			}
		})
	}
}

func TestDecodeFrame_OvershootKeepsPendingFrames(t *testing.T) {
	demux := mocks.NewDemuxer(10000, 40, 25)
	dec := &mocks.FrameDecoder{}
	calls := 0
	dec.DecodeFunc = func(ctx context.Context, pkt ports.Packet) ([]ports.VideoFrame, error) {
		calls++
		img := image.NewRGBA(image.Rect(0, 0, testWidth, testHeight))
		if calls == 1 {
			return []ports.VideoFrame{
				{Image: img, TimestampMs: pkt.TimestampMs},
				{Image: img, TimestampMs: pkt.TimestampMs + 40},
				{Image: img, TimestampMs: pkt.TimestampMs + 80},
			}, nil
		}
		return []ports.VideoFrame{{Image: img, TimestampMs: pkt.TimestampMs}}, nil
	}
	s := openSession(t, fixedOpener(demux, dec), Options{})

	mustDecode(t, s, 2000, ModeScrub)
	reads := demux.ReadCount

	mustDecode(t, s, 2040, ModePlayback)
	if f := mustDecode(t, s, 2080, ModePlayback); f.TimestampMs != 2080 {
		t.Errorf("expected 2080, got %d", f.TimestampMs)
	}
	if demux.ReadCount != reads {
		t.Errorf("expected pending frames to be used without reading, read %d more", demux.ReadCount-reads)
	}
}

func TestDecodeFrame_RepeatLastFrame(t *testing.T) {
	demux := mocks.NewDemuxer(10000, 40, 25)
	s := openSession(t, fixedOpener(demux, &mocks.FrameDecoder{}), Options{})

	mustDecode(t, s, 1000, ModePlayback)
	if f := mustDecode(t, s, 1000, ModePlayback); f.TimestampMs != 1000 {
		t.Errorf("expected 1000 again, got %d", f.TimestampMs)
	}
	if demux.Seeks() != 1 {
		t.Errorf("expected repeat to be served forward, got %d seeks", demux.Seeks())
	}
}

func TestDecodeFrame_PastLastFrameReturnsNearest(t *testing.T) {
	demux := mocks.NewDemuxer(10000, 40, 25)
	s := openSession(t, fixedOpener(demux, &mocks.FrameDecoder{}), Options{})

	f := mustDecode(t, s, 9995, ModeScrub)
	if f.TimestampMs != 9960 {
		t.Errorf("expected last frame 9960, got %d", f.TimestampMs)
	}
	if s.State() != StateReady {
		t.Errorf("expected Ready, got %s", s.State())
	}
}

func TestDecodeFrame_SeekOutOfRangeIsEndOfStream(t *testing.T) {
	demux := mocks.NewDemuxer(10000, 40, 25)
	opener := fixedOpener(demux, &mocks.FrameDecoder{})
	s := openSession(t, opener, Options{})

	_, err := s.DecodeFrame(context.Background(), 20000, ModeScrub)
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
	if s.State() != StateEndOfStream {
		t.Errorf("expected EndOfStream, got %s", s.State())
	}
	if opener.Opens() != 1 {
		t.Errorf("end of stream must not reopen, got %d opens", opener.Opens())
	}

	mustDecode(t, s, 500, ModeScrub)
	if s.State() != StateReady {
		t.Errorf("expected seek back to return to Ready, got %s", s.State())
	}
}

func TestDecodeFrame_NoFramesIsEndOfStream(t *testing.T) {
	demux := mocks.NewDemuxer(1000, 40, 25)
	dec := &mocks.FrameDecoder{
		DecodeFunc: func(ctx context.Context, pkt ports.Packet) ([]ports.VideoFrame, error) { return nil, nil },
		DrainFunc:  func(ctx context.Context) ([]ports.VideoFrame, error) { return nil, nil },
	}
	s := openSession(t, fixedOpener(demux, dec), Options{})

	_, err := s.DecodeFrame(context.Background(), 500, ModeScrub)
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
	if s.State() != StateEndOfStream {
		t.Errorf("expected EndOfStream, got %s", s.State())
	}
}

// flakyOpener hands out a fresh pair per Open; the first failures pairs fail every decode.
func flakyOpener(failures int, fault error) *mocks.SourceOpener {
	opener := &mocks.SourceOpener{}
	opened := 0
	opener.OpenFunc = func(path string, w, h int) (ports.Demuxer, ports.FrameDecoder, error) {
		opened++
		demux := mocks.NewDemuxer(10000, 40, 25)
		dec := &mocks.FrameDecoder{}
		if opened <= failures {
			dec.DecodeFunc = func(ctx context.Context, pkt ports.Packet) ([]ports.VideoFrame, error) {
				return nil, fault
			}
		}
		if err := dec.Init(demux.Info(), w, h); err != nil {
			return nil, nil, err
		}
		return demux, dec, nil
	}
	return opener
}

func TestDecodeFrame_SingleFaultHeals(t *testing.T) {
	opener := flakyOpener(1, fmt.Errorf("%w: stalled", ports.ErrDecodeTimeout))
	s := openSession(t, opener, Options{})

	f, err := s.DecodeFrame(context.Background(), 2000, ModeScrub)
	if err != nil {
		t.Fatalf("expected reopen to heal the fault, got %v", err)
	}
	if f.TimestampMs != 2000 {
		t.Errorf("expected 2000, got %d", f.TimestampMs)
	}
	if opener.Opens() != 2 {
		t.Errorf("expected 2 opens, got %d", opener.Opens())
	}
	if s.Stats().Recreations != 1 || s.Stats().FatalErrors != 0 {
		t.Errorf("unexpected stats %+v", s.Stats())
	}
	if s.State() != StateReady {
		t.Errorf("expected Ready, got %s", s.State())
	}
}

func TestDecodeFrame_TwoFaultsAreFatal(t *testing.T) {
	reg := prometheus.NewRegistry()
	log := mocks.NewLogger()
	opener := flakyOpener(10, fmt.Errorf("%w: stalled", ports.ErrDecodeTimeout))
	s := openSession(t, opener, Options{Logger: log, Metrics: metrics.New(reg)})

	_, err := s.DecodeFrame(context.Background(), 2000, ModeScrub)
	var de *DecodeError
	if !errors.As(err, &de) || de.Kind != Fatal {
		t.Fatalf("expected fatal DecodeError, got %v", err)
	}
	if de.TimestampMs != 2000 {
		t.Errorf("expected timestamp 2000, got %d", de.TimestampMs)
	}
	if !errors.Is(err, ports.ErrDecodeTimeout) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
	if s.State() != StateError {
		t.Errorf("expected Error state, got %s", s.State())
	}
	if s.Stats().FatalErrors != 1 {
		t.Errorf("expected exactly one fatal error, got %d", s.Stats().FatalErrors)
	}
	if log.Count(ports.LevelError) != 1 {
		t.Errorf("expected one error log, got %d", log.Count(ports.LevelError))
	}

	expected := `
# HELP previewkit_decode_errors_total Decode faults by kind
# TYPE previewkit_decode_errors_total counter
previewkit_decode_errors_total{kind="fatal"} 1
previewkit_decode_errors_total{kind="timeout"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "previewkit_decode_errors_total"); err != nil {
		t.Error(err)
	}

	if _, err := s.DecodeFrame(context.Background(), 2000, ModeScrub); !errors.Is(err, ErrNeedsReopen) {
		t.Errorf("expected ErrNeedsReopen before Reopen, got %v", err)
	}
}

func TestReopen_RecoversFromError(t *testing.T) {
	opener := flakyOpener(2, errors.New("pipe broke"))
	s := openSession(t, opener, Options{})

	if _, err := s.DecodeFrame(context.Background(), 1000, ModeScrub); !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if err := s.Reopen(); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("expected Ready after Reopen, got %s", s.State())
	}
	mustDecode(t, s, 1000, ModeScrub)
}

func TestDecodeFrame_CorruptFrame(t *testing.T) {
	demux := mocks.NewDemuxer(10000, 40, 25)
	dec := &mocks.FrameDecoder{
		DecodeFunc: func(ctx context.Context, pkt ports.Packet) ([]ports.VideoFrame, error) {
			return []ports.VideoFrame{{
				Image:       image.NewRGBA(image.Rect(0, 0, testWidth/2, testHeight)),
				TimestampMs: pkt.TimestampMs,
			}}, nil
		},
	}
	opener := fixedOpener(demux, dec)
	s := openSession(t, opener, Options{})

	_, err := s.DecodeFrame(context.Background(), 1000, ModeScrub)
	if !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if !errors.Is(err, ports.ErrCorruptFrame) {
		t.Errorf("expected corrupt frame cause, got %v", err)
	}
	if opener.Opens() != 2 {
		t.Errorf("expected one reopen, got %d opens", opener.Opens())
	}
}

func TestCheckFrame(t *testing.T) {
	s := &Session{opts: Options{Width: 4, Height: 2}}

	good := image.NewRGBA(image.Rect(0, 0, 4, 2))
	short := image.NewRGBA(image.Rect(0, 0, 4, 2))
	short.Pix = short.Pix[:8]
	narrow := image.NewRGBA(image.Rect(0, 0, 4, 2))
	narrow.Stride = 8

	tests := []struct {
		name    string
		img     image.Image
		corrupt bool
	}{
		{"matching", good, false},
		{"nil image", nil, true},
		{"wrong size", image.NewRGBA(image.Rect(0, 0, 3, 2)), true},
		{"short buffer", short, true},
		{"narrow stride", narrow, true},
		{"non-RGBA of right size", image.NewGray(image.Rect(0, 0, 4, 2)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.checkFrame(ports.VideoFrame{Image: tt.img, TimestampMs: 7})
			if (err != nil) != tt.corrupt {
				t.Fatalf("checkFrame() error = %v, corrupt = %v", err, tt.corrupt)
			}
			var de *DecodeError
			if tt.corrupt && (!errors.As(err, &de) || de.Kind != CorruptFrame || de.TimestampMs != 7) {
				t.Errorf("expected CorruptFrame DecodeError, got %v", err)
			}
		})
	}
}

func TestDecodeFrame_ContextCanceled(t *testing.T) {
	demux := mocks.NewDemuxer(10000, 40, 25)
	opener := fixedOpener(demux, &mocks.FrameDecoder{})
	s := openSession(t, opener, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.DecodeFrame(ctx, 1000, ModeScrub)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if opener.Opens() != 1 {
		t.Errorf("cancellation must not reopen, got %d opens", opener.Opens())
	}
	if s.State() != StateReady {
		t.Errorf("expected Ready, got %s", s.State())
	}
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OpenErrorKind
	}{
		{"missing file", fmt.Errorf("open file: %w", fs.ErrNotExist), FileNotFound},
		{"unsupported codec", fmt.Errorf("%w: av01", ports.ErrUnsupportedCodec), UnsupportedCodec},
		{"other", errors.New("permission denied"), IoFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := &mocks.SourceOpener{
				OpenFunc: func(string, int, int) (ports.Demuxer, ports.FrameDecoder, error) {
					return nil, nil, tt.err
				},
			}
			_, err := Open(opener, Options{Path: "x.mp4", Width: 4, Height: 4})
			var oe *OpenError
			if !errors.As(err, &oe) {
				t.Fatalf("expected OpenError, got %v", err)
			}
			if oe.Kind != tt.want {
				t.Errorf("kind = %s, want %s", oe.Kind, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("expected cause to unwrap")
			}
		})
	}
}

func TestOpen_InvalidSize(t *testing.T) {
	if _, err := Open(&mocks.SourceOpener{}, Options{Path: "x.mp4"}); err == nil {
		t.Error("expected error for zero output size")
	}
}

func TestClose(t *testing.T) {
	demux := mocks.NewDemuxer(10000, 40, 25)
	dec := &mocks.FrameDecoder{}
	s := openSession(t, fixedOpener(demux, dec), Options{})

	s.Close()
	s.Close()

	if !demux.Closed || !dec.Closed {
		t.Error("expected demuxer and decoder to be closed")
	}
	if _, err := s.DecodeFrame(context.Background(), 0, ModeScrub); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := s.Reopen(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Reopen, got %v", err)
	}
}

func TestThresholds_Forward(t *testing.T) {
	th := DefaultThresholds()
	if got := th.Forward(ModePlayback, 40); got != 80 {
		t.Errorf("playback = %d, want 80", got)
	}
	if got := th.Forward(ModeScrub, 40); got != 100 {
		t.Errorf("scrub = %d, want 100", got)
	}
	if got := th.Forward(ModeThumbnail, 40); got != 10000 {
		t.Errorf("thumbnail = %d, want 10000", got)
	}
}
