package mocks

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/user/previewkit/pkg/ports"
)

// Demuxer is a mock implementation of ports.Demuxer.
// Without overrides it serves Packets in order and seeks to the last
// keyframe at or before the target.
type Demuxer struct {
	mu sync.Mutex

	StreamInfo ports.StreamInfo
	Packets    []ports.Packet
	pos        int

	SeekCalls []int
	ReadCount int
	Closed    bool

	ReadPacketFunc   func() (ports.Packet, error)
	SeekKeyframeFunc func(targetMs int) (int, error)
	CloseFunc        func() error
}

// NewDemuxer creates a constant frame rate stream of durationMs with a
// keyframe every gop frames.
func NewDemuxer(durationMs, frameDurMs, gop int) *Demuxer {
	var packets []ports.Packet
	keyframes := 0
	for i, ts := 0, 0; ts < durationMs; i, ts = i+1, ts+frameDurMs {
		key := i%gop == 0
		if key {
			keyframes++
		}
		packets = append(packets, ports.Packet{
			Data:        []byte{0, 0, 0, 1, byte(i)},
			TimestampMs: ts,
			DecodeMs:    ts,
			DurationMs:  frameDurMs,
			IsKeyframe:  key,
		})
	}

	return &Demuxer{
		StreamInfo: ports.StreamInfo{
			Codec:           "avc1",
			Width:           1920,
			Height:          1080,
			DurationMs:      durationMs,
			FrameDurationMs: frameDurMs,
			KeyframeCount:   keyframes,
		},
		Packets: packets,
	}
}

func (m *Demuxer) Info() ports.StreamInfo {
	return m.StreamInfo
}

func (m *Demuxer) ReadPacket() (ports.Packet, error) {
	m.mu.Lock()
	m.ReadCount++
	m.mu.Unlock()

	if m.ReadPacketFunc != nil {
		return m.ReadPacketFunc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos >= len(m.Packets) {
		return ports.Packet{}, io.EOF
	}
	pkt := m.Packets[m.pos]
	m.pos++
	return pkt, nil
}

func (m *Demuxer) SeekKeyframe(targetMs int) (int, error) {
	m.mu.Lock()
	m.SeekCalls = append(m.SeekCalls, targetMs)
	m.mu.Unlock()

	if m.SeekKeyframeFunc != nil {
		return m.SeekKeyframeFunc(targetMs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if targetMs > m.StreamInfo.DurationMs {
		return 0, fmt.Errorf("%w: %d", ports.ErrSeekOutOfRange, targetMs)
	}
	found := 0
	for i, p := range m.Packets {
		if p.TimestampMs > targetMs {
			break
		}
		if p.IsKeyframe {
			found = i
		}
	}
	m.pos = found
	if len(m.Packets) == 0 {
		return 0, nil
	}
	return m.Packets[found].TimestampMs, nil
}

func (m *Demuxer) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Seeks returns the number of SeekKeyframe calls.
func (m *Demuxer) Seeks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SeekCalls)
}

var _ ports.Demuxer = (*Demuxer)(nil)

// FrameDecoder is a mock implementation of ports.FrameDecoder.
// Without overrides it turns each packet into a blank frame of the
// initialized size, holding back Delay frames like a reordering decoder.
type FrameDecoder struct {
	mu sync.Mutex

	Width  int
	Height int
	Delay  int

	buffered []ports.VideoFrame

	DecodeCount int
	ResetCount  int
	DrainCount  int
	Closed      bool

	InitFunc   func(info ports.StreamInfo, width, height int) error
	DecodeFunc func(ctx context.Context, pkt ports.Packet) ([]ports.VideoFrame, error)
	DrainFunc  func(ctx context.Context) ([]ports.VideoFrame, error)
	ResetFunc  func() error
}

func (m *FrameDecoder) Init(info ports.StreamInfo, width, height int) error {
	if m.InitFunc != nil {
		return m.InitFunc(info, width, height)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Width = width
	m.Height = height
	return nil
}

func (m *FrameDecoder) Decode(ctx context.Context, pkt ports.Packet) ([]ports.VideoFrame, error) {
	m.mu.Lock()
	m.DecodeCount++
	m.mu.Unlock()

	if m.DecodeFunc != nil {
		return m.DecodeFunc(ctx, pkt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffered = append(m.buffered, ports.VideoFrame{
		Image:       image.NewRGBA(image.Rect(0, 0, m.Width, m.Height)),
		TimestampMs: pkt.TimestampMs,
		Duration:    pkt.DurationMs,
	})
	if len(m.buffered) <= m.Delay {
		return nil, nil
	}
	out := m.buffered[0]
	m.buffered = m.buffered[1:]
	return []ports.VideoFrame{out}, nil
}

func (m *FrameDecoder) Drain(ctx context.Context) ([]ports.VideoFrame, error) {
	m.mu.Lock()
	m.DrainCount++
	m.mu.Unlock()

	if m.DrainFunc != nil {
		return m.DrainFunc(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.buffered
	m.buffered = nil
	return out, nil
}

func (m *FrameDecoder) Reset() error {
	m.mu.Lock()
	m.ResetCount++
	m.buffered = nil
	m.mu.Unlock()

	if m.ResetFunc != nil {
		return m.ResetFunc()
	}
	return nil
}

func (m *FrameDecoder) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
}

// Decodes returns the number of Decode calls.
func (m *FrameDecoder) Decodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DecodeCount
}

var _ ports.FrameDecoder = (*FrameDecoder)(nil)

// SourceOpener is a mock implementation of ports.SourceOpener.
// Without OpenFunc it opens a fresh 10 s, 25 fps stream with a keyframe every second.
type SourceOpener struct {
	mu sync.Mutex

	OpenFunc func(path string, width, height int) (ports.Demuxer, ports.FrameDecoder, error)

	OpenCount int
	Paths     []string
}

func (m *SourceOpener) Open(path string, width, height int) (ports.Demuxer, ports.FrameDecoder, error) {
	m.mu.Lock()
	m.OpenCount++
	m.Paths = append(m.Paths, path)
	m.mu.Unlock()

	if m.OpenFunc != nil {
		return m.OpenFunc(path, width, height)
	}

	demux := NewDemuxer(10000, 40, 25)
	dec := &FrameDecoder{}
	if err := dec.Init(demux.Info(), width, height); err != nil {
		return nil, nil, err
	}
	return demux, dec, nil
}

// Opens returns the number of Open calls.
func (m *SourceOpener) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.OpenCount
}

var _ ports.SourceOpener = (*SourceOpener)(nil)

// Scaler is a mock implementation of ports.Scaler returning blank images of the requested size.
type Scaler struct {
	ScaleFunc     func(img image.Image, width, height int) image.Image
	ThumbnailFunc func(img image.Image, width, height int) image.Image
}

func (m *Scaler) Scale(img image.Image, width, height int) image.Image {
	if m.ScaleFunc != nil {
		return m.ScaleFunc(img, width, height)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

func (m *Scaler) Thumbnail(img image.Image, width, height int) image.Image {
	if m.ThumbnailFunc != nil {
		return m.ThumbnailFunc(img, width, height)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

var _ ports.Scaler = (*Scaler)(nil)
