package mp4demux

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/user/previewkit/pkg/ports"
)

// newIndexed builds a demuxer over an in-memory sample list: frames every
// frameMs, a keyframe every gop samples.
func newIndexed(count, frameMs, gop int) *Demuxer {
	d := &Demuxer{spsPPS: []byte{0, 0, 0, 1, 0x67}}
	for i := 0; i < count; i++ {
		d.samples = append(d.samples, sample{
			decodeMs:  i * frameMs,
			presentMs: i * frameMs,
			durMs:     frameMs,
			keyframe:  i%gop == 0,
			data:      []byte{0, 0, 0, 1, byte(i)},
		})
	}
	d.finishIndex()
	return d
}

func TestAvccToAnnexB(t *testing.T) {
	in := []byte{
		0, 0, 0, 2, 0x65, 0x01,
		0, 0, 0, 1, 0x41,
	}
	want := []byte{
		0, 0, 0, 1, 0x65, 0x01,
		0, 0, 0, 1, 0x41,
	}

	got := avccToAnnexB(in)
	if !bytes.Equal(got, want) {
		t.Errorf("avccToAnnexB() = %v, want %v", got, want)
	}
}

func TestAvccToAnnexB_TruncatedNALU(t *testing.T) {
	in := []byte{0, 0, 0, 9, 0x65}
	if got := avccToAnnexB(in); len(got) != 0 {
		t.Errorf("expected truncated NALU to be dropped, got %v", got)
	}
}

func TestFinishIndex(t *testing.T) {
	d := newIndexed(90, 40, 30)

	info := d.Info()
	if info.DurationMs != 3600 {
		t.Errorf("DurationMs = %d, want 3600", info.DurationMs)
	}
	if info.KeyframeCount != 3 {
		t.Errorf("KeyframeCount = %d, want 3", info.KeyframeCount)
	}
	if info.FrameDurationMs != 40 {
		t.Errorf("FrameDurationMs = %d, want 40", info.FrameDurationMs)
	}
}

func TestSeekKeyframe(t *testing.T) {
	d := newIndexed(90, 40, 30) // keyframes at 0, 1200, 2400

	tests := []struct {
		target int
		want   int
	}{
		{0, 0},
		{1199, 0},
		{1200, 1200},
		{2000, 1200},
		{3599, 2400},
		{-50, 0},
	}

	for _, tt := range tests {
		got, err := d.SeekKeyframe(tt.target)
		if err != nil {
			t.Fatalf("SeekKeyframe(%d) failed: %v", tt.target, err)
		}
		if got != tt.want {
			t.Errorf("SeekKeyframe(%d) = %d, want %d", tt.target, got, tt.want)
		}

		pkt, err := d.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket after seek failed: %v", err)
		}
		if !pkt.IsKeyframe || pkt.TimestampMs != tt.want {
			t.Errorf("packet after seek(%d) = ts %d key %v", tt.target, pkt.TimestampMs, pkt.IsKeyframe)
		}
	}
}

func TestSeekKeyframe_OutOfRange(t *testing.T) {
	d := newIndexed(10, 40, 5)

	_, err := d.SeekKeyframe(5000)
	if !errors.Is(err, ports.ErrSeekOutOfRange) {
		t.Errorf("expected ErrSeekOutOfRange, got %v", err)
	}
}

func TestReadPacket_PrependsParameterSetsOnKeyframes(t *testing.T) {
	d := newIndexed(3, 40, 2)

	key, err := d.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if !bytes.HasPrefix(key.Data, d.spsPPS) {
		t.Error("expected keyframe to start with SPS/PPS")
	}

	delta, err := d.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if bytes.HasPrefix(delta.Data, d.spsPPS) {
		t.Error("expected delta frame without SPS/PPS")
	}
}

func TestReadPacket_EOF(t *testing.T) {
	d := newIndexed(2, 40, 1)

	for i := 0; i < 2; i++ {
		if _, err := d.ReadPacket(); err != nil {
			t.Fatalf("ReadPacket %d failed: %v", i, err)
		}
	}
	if _, err := d.ReadPacket(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestClose(t *testing.T) {
	d := newIndexed(2, 40, 1)

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := d.ReadPacket(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestNewFromReader_Garbage(t *testing.T) {
	_, err := NewFromReader(bytes.NewReader([]byte("definitely not an mp4 file")))
	if err == nil {
		t.Error("expected error for non-MP4 input")
	}
}
