package mediasource

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/user/previewkit/pkg/adapters/ffmpegdecoder"
)

func TestOpen_FileNotFound(t *testing.T) {
	o := New(Options{})
	_, _, err := o.Open(filepath.Join(t.TempDir(), "missing.mp4"), 64, 36)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestOpen_NotMP4(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.mp4")
	if err := os.WriteFile(path, []byte("definitely not a movie"), 0644); err != nil {
		t.Fatal(err)
	}

	o := New(Options{})
	if _, _, err := o.Open(path, 64, 36); err == nil {
		t.Error("expected error for garbage input")
	}
}

// makeTestMovie renders a short H.264 clip with ffmpeg's test source.
func makeTestMovie(t *testing.T) string {
	t.Helper()

	ffmpegPath, err := ffmpegdecoder.FindFFmpeg("")
	if err != nil {
		t.Skip("ffmpeg not available")
	}

	path := filepath.Join(t.TempDir(), "testsrc.mp4")
	cmd := exec.Command(ffmpegPath,
		"-y", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=160x120:rate=25",
		"-frames:v", "50",
		"-c:v", "libx264", "-g", "25", "-bf", "2",
		"-pix_fmt", "yuv420p",
		path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("libx264 encode unavailable: %v: %s", err, out)
	}
	return path
}

func TestOpen_DecodesWholeStream(t *testing.T) {
	path := makeTestMovie(t)

	demux, dec, err := New(Options{}).Open(path, 80, 60)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer demux.Close()
	defer dec.Close()

	info := demux.Info()
	if info.Width != 160 || info.Height != 120 {
		t.Errorf("unexpected coded size %dx%d", info.Width, info.Height)
	}
	if info.KeyframeCount < 2 {
		t.Errorf("expected at least 2 keyframes, got %d", info.KeyframeCount)
	}

	ctx := context.Background()
	count := 0
	last := -1
	for {
		pkt, err := demux.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadPacket: %v", err)
		}
		frames, err := dec.Decode(ctx, pkt)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		for _, f := range frames {
			if f.TimestampMs <= last {
				t.Errorf("timestamps not ascending: %d after %d", f.TimestampMs, last)
			}
			last = f.TimestampMs
			count++
		}
	}

	frames, err := dec.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	for _, f := range frames {
		if b := f.Image.Bounds(); b.Dx() != 80 || b.Dy() != 60 {
			t.Errorf("unexpected frame size %v", b)
		}
		count++
	}

	if count != 50 {
		t.Errorf("expected 50 frames, got %d", count)
	}
}

func TestOpen_SeekThenDecode(t *testing.T) {
	path := makeTestMovie(t)

	demux, dec, err := New(Options{}).Open(path, 80, 60)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer demux.Close()
	defer dec.Close()

	kf, err := demux.SeekKeyframe(1500)
	if err != nil {
		t.Fatalf("SeekKeyframe: %v", err)
	}
	if kf != 1000 {
		t.Errorf("expected keyframe at 1000, got %d", kf)
	}

	ctx := context.Background()
	for {
		pkt, err := demux.ReadPacket()
		if err == io.EOF {
			break
		}
		if _, err := dec.Decode(ctx, pkt); err != nil {
			t.Fatalf("Decode: %v", err)
		}
	}
	if _, err := dec.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}
