// Package ffmpegdecoder decodes H.264 elementary streams (Annex B) with a
// long-running ffmpeg process. ffmpeg scales every frame to the output size
// and writes raw RGBA to its stdout, one fixed-size record per frame.
package ffmpegdecoder

import (
	"bytes"
	"container/heap"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/user/previewkit/pkg/adapters/codecdetect"
	"github.com/user/previewkit/pkg/ports"
)

var (
	// ErrFFmpegNotFound is returned when ffmpeg is not found in PATH.
	ErrFFmpegNotFound = errors.New("ffmpegdecoder: ffmpeg not found in PATH")

	// ErrNotInitialized is returned when decoder methods are called before Init.
	ErrNotInitialized = errors.New("ffmpegdecoder: decoder not initialized")
)

const (
	defaultTimeout  = 5 * time.Second
	defaultMaxDelay = 4
)

// Options configures the decoder.
type Options struct {
	// FFmpegPath overrides the ffmpeg lookup.
	FFmpegPath string

	// Timeout bounds every wait for ffmpeg: writing a packet and waiting for output.
	Timeout time.Duration

	// MaxDelay is the number of packets allowed in flight before Decode
	// blocks until ffmpeg emits a frame.
	MaxDelay int
}

// Decoder implements ports.FrameDecoder on top of an ffmpeg process.
// The process is started lazily on the first packet and restarted after Reset.
type Decoder struct {
	opts       Options
	ffmpegPath string
	format     string
	width      int
	height     int
	frameDur   int

	mu      sync.Mutex
	proc    *process
	pending ptsQueue
	lastPTS int
}

// New creates a decoder. Init must be called before Decode.
func New(opts Options) *Decoder {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	return &Decoder{opts: opts}
}

// Init implements ports.FrameDecoder.
func (d *Decoder) Init(info ports.StreamInfo, width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if width <= 0 || height <= 0 {
		return fmt.Errorf("ffmpegdecoder: invalid output size %dx%d", width, height)
	}

	format := codecdetect.FromSampleEntry(info.Codec).FFmpegFormat()
	if format == "" {
		return fmt.Errorf("%w: %s", ports.ErrUnsupportedCodec, info.Codec)
	}

	path, err := FindFFmpeg(d.opts.FFmpegPath)
	if err != nil {
		return err
	}

	d.ffmpegPath = path
	d.format = format
	d.width = width
	d.height = height
	d.frameDur = info.FrameDurationMs
	return nil
}

// Decode implements ports.FrameDecoder.
func (d *Decoder) Decode(ctx context.Context, pkt ports.Packet) ([]ports.VideoFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.format == "" {
		return nil, ErrNotInitialized
	}
	if d.proc == nil {
		if err := d.start(); err != nil {
			return nil, err
		}
	}

	if err := d.proc.write(pkt.Data, d.opts.Timeout); err != nil {
		return nil, err
	}
	heap.Push(&d.pending, pkt.TimestampMs)

	if d.pending.Len() > d.opts.MaxDelay && !d.proc.hasOutput() {
		if err := d.proc.wait(ctx, d.opts.Timeout); err != nil {
			return nil, err
		}
	}

	return d.collect()
}

// Drain implements ports.FrameDecoder.
// It closes ffmpeg's input and returns every frame still buffered in the process.
func (d *Decoder) Drain(ctx context.Context) ([]ports.VideoFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.proc == nil {
		return nil, nil
	}

	p := d.proc
	p.stdin.Close()

	timer := time.NewTimer(d.opts.Timeout)
	defer timer.Stop()
	select {
	case <-p.exited:
	case <-ctx.Done():
		d.stop()
		return nil, ctx.Err()
	case <-timer.C:
		d.stop()
		return nil, fmt.Errorf("%w: drain exceeded %s", ports.ErrDecodeTimeout, d.opts.Timeout)
	}

	waitErr := p.cmd.Wait()
	frames, err := d.collect()
	d.proc = nil
	d.pending = d.pending[:0]

	if err != nil {
		return frames, err
	}
	if waitErr != nil && len(frames) == 0 {
		return nil, fmt.Errorf("ffmpeg exited: %w\nstderr: %s", waitErr, p.stderr.String())
	}
	return frames, nil
}

// Reset implements ports.FrameDecoder.
func (d *Decoder) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stop()
	return nil
}

// Close implements ports.FrameDecoder.
func (d *Decoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stop()
	d.format = ""
}

func (d *Decoder) start() error {
	cmd := exec.Command(d.ffmpegPath, buildArgs(d.format, d.width, d.height)...)
	p := &process{
		cmd:       cmd,
		frameSize: d.width * d.height * 4,
		notify:    make(chan struct{}, 1),
		exited:    make(chan struct{}),
	}
	cmd.Stderr = &p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	p.stdin = stdin

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go p.readLoop(stdout)
	d.proc = p
	d.pending = d.pending[:0]
	return nil
}

// stop kills the running process and forgets every in-flight packet.
func (d *Decoder) stop() {
	if d.proc != nil {
		d.proc.kill()
		d.proc = nil
	}
	d.pending = d.pending[:0]
}

// collect converts the raw records read so far into frames, assigning each
// the smallest in-flight presentation time.
func (d *Decoder) collect() ([]ports.VideoFrame, error) {
	raw, readErr := d.proc.take()

	frames := make([]ports.VideoFrame, 0, len(raw))
	for _, buf := range raw {
		pts := d.lastPTS + d.frameDur
		if d.pending.Len() > 0 {
			pts = heap.Pop(&d.pending).(int)
		}
		d.lastPTS = pts

		frames = append(frames, ports.VideoFrame{
			Image: &image.RGBA{
				Pix:    buf,
				Stride: d.width * 4,
				Rect:   image.Rect(0, 0, d.width, d.height),
			},
			TimestampMs: pts,
			Duration:    d.frameDur,
		})
	}

	return frames, readErr
}

func buildArgs(format string, width, height int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-probesize", "32",
		"-analyzeduration", "0",
		"-threads", "1",
		"-f", format,
		"-i", "pipe:0",
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d:flags=bilinear", width, height),
		"-vsync", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
}

// process is one running ffmpeg instance plus the goroutine reading its output.
type process struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    bytes.Buffer
	frameSize int

	mu     sync.Mutex
	frames [][]byte
	err    error

	notify chan struct{}
	exited chan struct{}
}

func (p *process) readLoop(stdout io.Reader) {
	defer close(p.exited)
	for {
		buf := make([]byte, p.frameSize)
		_, err := io.ReadFull(stdout, buf)

		p.mu.Lock()
		switch {
		case err == nil:
			p.frames = append(p.frames, buf)
		case errors.Is(err, io.ErrUnexpectedEOF):
			p.err = fmt.Errorf("%w: short frame record", ports.ErrCorruptFrame)
		case errors.Is(err, io.EOF), errors.Is(err, os.ErrClosed):
		default:
			p.err = fmt.Errorf("read frame: %w", err)
		}
		p.mu.Unlock()

		select {
		case p.notify <- struct{}{}:
		default:
		}

		if err != nil {
			return
		}
	}
}

func (p *process) write(data []byte, timeout time.Duration) error {
	if dl, ok := p.stdin.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = dl.SetWriteDeadline(time.Now().Add(timeout))
	}
	if _, err := p.stdin.Write(data); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: write exceeded %s", ports.ErrDecodeTimeout, timeout)
		}
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}

func (p *process) hasOutput() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames) > 0 || p.err != nil
}

func (p *process) wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for !p.hasOutput() {
		select {
		case <-p.notify:
		case <-p.exited:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: no frame within %s", ports.ErrDecodeTimeout, timeout)
		}
	}
	return nil
}

func (p *process) take() ([][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	frames := p.frames
	p.frames = nil
	return frames, p.err
}

func (p *process) kill() {
	p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.exited
	_ = p.cmd.Wait()
}

var _ ports.FrameDecoder = (*Decoder)(nil)
