// Package mediasource opens media files as demuxer/decoder pairs,
// detecting the codec and selecting a decoder that handles it.
package mediasource

import (
	"errors"
	"fmt"
	"time"

	"github.com/user/previewkit/pkg/adapters/codecdetect"
	"github.com/user/previewkit/pkg/adapters/ffmpegdecoder"
	"github.com/user/previewkit/pkg/adapters/mp4demux"
	"github.com/user/previewkit/pkg/ports"
)

// Options configures the opener.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string

	// DecodeTimeout bounds each wait on the decoder process.
	DecodeTimeout time.Duration
}

// Opener implements ports.SourceOpener.
//
// The selection flow:
//   - H.264: mp4 demuxer emitting Annex B + ffmpeg decoder
//   - anything else: ports.ErrUnsupportedCodec
type Opener struct {
	opts Options
}

// New creates an opener.
func New(opts Options) *Opener {
	return &Opener{opts: opts}
}

// Open implements ports.SourceOpener.
func (o *Opener) Open(path string, width, height int) (ports.Demuxer, ports.FrameDecoder, error) {
	demux, err := mp4demux.Open(path)
	if err != nil {
		if errors.Is(err, mp4demux.ErrNoVideoTrack) {
			return nil, nil, fmt.Errorf("%w: %v", ports.ErrUnsupportedCodec, err)
		}
		return nil, nil, err
	}

	info := demux.Info()
	codec := codecdetect.FromSampleEntry(info.Codec)
	if !codec.AnnexB() {
		demux.Close()
		return nil, nil, fmt.Errorf("%w: %s (%s)", ports.ErrUnsupportedCodec, codec, info.Codec)
	}

	dec := ffmpegdecoder.New(ffmpegdecoder.Options{
		FFmpegPath: o.opts.FFmpegPath,
		Timeout:    o.opts.DecodeTimeout,
	})
	if err := dec.Init(info, width, height); err != nil {
		demux.Close()
		return nil, nil, fmt.Errorf("init decoder: %w", err)
	}

	return demux, dec, nil
}

var _ ports.SourceOpener = (*Opener)(nil)
