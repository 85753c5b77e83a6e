// Package mp4demux reads H.264 packets from MP4 files with random access to keyframes.
package mp4demux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/previewkit/pkg/ports"
)

var (
	// ErrNoVideoTrack is returned when the file has no video track.
	ErrNoVideoTrack = errors.New("mp4demux: no video track found")

	// ErrNoSampleTable is returned when a progressive file lacks the boxes needed to locate samples.
	ErrNoSampleTable = errors.New("mp4demux: no sample table found")

	// ErrClosed is returned when the demuxer is used after Close.
	ErrClosed = errors.New("mp4demux: demuxer closed")
)

const defaultFrameDurationMs = 33

// sample is one entry of the decode-order sample index.
type sample struct {
	decodeMs  int
	presentMs int
	durMs     int
	keyframe  bool

	// Progressive files are read lazily from offset/size.
	offset uint64
	size   uint32

	// Fragmented files carry their payload from the fragment.
	data []byte
}

// Demuxer implements ports.Demuxer for progressive and fragmented MP4.
type Demuxer struct {
	reader    io.ReadSeeker
	closer    io.Closer
	info      ports.StreamInfo
	spsPPS    []byte
	samples   []sample
	keyframes []int // indexes into samples, ascending presentation time
	pos       int
	closed    bool
}

// Open opens path and indexes its video track.
func Open(path string) (*Demuxer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	d, err := NewFromReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.closer = f
	return d, nil
}

// NewFromReader indexes the video track of an MP4 read from reader.
// The reader must stay valid until Close.
func NewFromReader(reader io.ReadSeeker) (*Demuxer, error) {
	// Progressive samples are read by offset, so the mdat is left on disk.
	mp4File, err := mp4.DecodeFile(reader, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}
	if mp4File.IsFragmented() {
		// Fragment samples carry their payload; decode again with the data loaded.
		if _, err := reader.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind mp4: %w", err)
		}
		if mp4File, err = mp4.DecodeFile(reader); err != nil {
			return nil, fmt.Errorf("decode mp4: %w", err)
		}
	}

	d := &Demuxer{reader: reader}
	if mp4File.IsFragmented() {
		err = d.indexFragmented(mp4File)
	} else {
		err = d.indexProgressive(mp4File)
	}
	if err != nil {
		return nil, err
	}
	d.finishIndex()
	return d, nil
}

// Info returns the video stream description.
func (d *Demuxer) Info() ports.StreamInfo {
	return d.info
}

// ReadPacket returns the next packet in decode order.
func (d *Demuxer) ReadPacket() (ports.Packet, error) {
	if d.closed {
		return ports.Packet{}, ErrClosed
	}
	if d.pos >= len(d.samples) {
		return ports.Packet{}, io.EOF
	}

	s := d.samples[d.pos]
	data := s.data
	if data == nil {
		var err error
		data, err = d.readSample(s)
		if err != nil {
			return ports.Packet{}, fmt.Errorf("read sample %d: %w", d.pos+1, err)
		}
	}
	d.pos++

	annexB := avccToAnnexB(data)

	// Prepend SPS/PPS for keyframes so the decoder can start at any of them
	var frameData []byte
	if s.keyframe {
		frameData = make([]byte, len(d.spsPPS)+len(annexB))
		copy(frameData, d.spsPPS)
		copy(frameData[len(d.spsPPS):], annexB)
	} else {
		frameData = annexB
	}

	return ports.Packet{
		Data:        frameData,
		TimestampMs: s.presentMs,
		DecodeMs:    s.decodeMs,
		DurationMs:  s.durMs,
		IsKeyframe:  s.keyframe,
	}, nil
}

// SeekKeyframe positions the demuxer on the last keyframe at or before targetMs.
func (d *Demuxer) SeekKeyframe(targetMs int) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if len(d.keyframes) == 0 {
		return 0, ErrNoVideoTrack
	}
	if targetMs > d.info.DurationMs {
		return 0, fmt.Errorf("%w: %d ms > %d ms", ports.ErrSeekOutOfRange, targetMs, d.info.DurationMs)
	}
	if targetMs < 0 {
		targetMs = 0
	}

	// First keyframe presented after the target; the one before it is ours
	k := sort.Search(len(d.keyframes), func(i int) bool {
		return d.samples[d.keyframes[i]].presentMs > targetMs
	})
	if k > 0 {
		k--
	}

	d.pos = d.keyframes[k]
	return d.samples[d.pos].presentMs, nil
}

// Close releases the underlying file.
func (d *Demuxer) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.samples = nil
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

func (d *Demuxer) readSample(s sample) ([]byte, error) {
	if _, err := d.reader.Seek(int64(s.offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to sample: %w", err)
	}
	data := make([]byte, s.size)
	if _, err := io.ReadFull(d.reader, data); err != nil {
		return nil, err
	}
	return data, nil
}

// finishIndex derives keyframe positions and stream timing from the sample list.
func (d *Demuxer) finishIndex() {
	d.keyframes = d.keyframes[:0]
	end := 0
	for i, s := range d.samples {
		if s.keyframe {
			d.keyframes = append(d.keyframes, i)
		}
		if s.presentMs+s.durMs > end {
			end = s.presentMs + s.durMs
		}
	}
	sort.SliceStable(d.keyframes, func(i, j int) bool {
		return d.samples[d.keyframes[i]].presentMs < d.samples[d.keyframes[j]].presentMs
	})

	d.info.DurationMs = end
	d.info.KeyframeCount = len(d.keyframes)
	d.info.FrameDurationMs = defaultFrameDurationMs
	if len(d.samples) > 0 && d.samples[0].durMs > 0 {
		d.info.FrameDurationMs = d.samples[0].durMs
	}
}

// setTrackInfo records codec, dimensions and SPS/PPS from a video sample description.
func (d *Demuxer) setTrackInfo(trak *mp4.TrakBox) {
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return
	}
	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		vse, ok := child.(*mp4.VisualSampleEntryBox)
		if !ok {
			continue
		}
		d.info.Codec = vse.Type()
		d.info.Width = int(vse.Width)
		d.info.Height = int(vse.Height)
		if vse.AvcC != nil {
			d.spsPPS = spsPPSAnnexB(vse.AvcC)
		}
		return
	}
}

func (d *Demuxer) indexProgressive(mp4File *mp4.File) error {
	if mp4File.Moov == nil {
		return fmt.Errorf("no moov box found")
	}

	videoTrack := findVideoTrack(mp4File.Moov.Traks)
	if videoTrack == nil {
		return ErrNoVideoTrack
	}
	d.setTrackInfo(videoTrack)

	var timescale uint32 = 1000
	if videoTrack.Mdia.Mdhd != nil && videoTrack.Mdia.Mdhd.Timescale != 0 {
		timescale = videoTrack.Mdia.Mdhd.Timescale
	}

	if videoTrack.Mdia.Minf == nil || videoTrack.Mdia.Minf.Stbl == nil {
		return ErrNoSampleTable
	}
	stbl := videoTrack.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stsc == nil || (stbl.Stco == nil && stbl.Co64 == nil) {
		return ErrNoSampleTable
	}

	syncSamples := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, sampleNr := range stbl.Stss.SampleNumber {
			syncSamples[sampleNr] = true
		}
	}

	sampleCount := stbl.Stsz.SampleNumber
	d.samples = make([]sample, 0, sampleCount)

	currentChunk := -1
	var offset uint64
	for sampleNr := uint32(1); sampleNr <= sampleCount; sampleNr++ {
		chunkNr, _, err := stbl.Stsc.ChunkNrFromSampleNr(int(sampleNr))
		if err != nil {
			return fmt.Errorf("get chunk nr: %w", err)
		}
		if chunkNr != currentChunk {
			offset, err = chunkOffset(stbl, chunkNr)
			if err != nil {
				return err
			}
			currentChunk = chunkNr
		}
		size := stbl.Stsz.GetSampleSize(int(sampleNr))

		var decodeTime uint64
		var dur uint32
		if stbl.Stts != nil {
			decodeTime, dur = stbl.Stts.GetDecodeTime(sampleNr)
		}
		presentTime := int64(decodeTime)
		if stbl.Ctts != nil {
			presentTime += int64(stbl.Ctts.GetCompositionTimeOffset(sampleNr))
		}

		d.samples = append(d.samples, sample{
			decodeMs:  toMs(int64(decodeTime), timescale),
			presentMs: toMs(presentTime, timescale),
			durMs:     toMs(int64(dur), timescale),
			keyframe:  syncSamples[sampleNr] || len(syncSamples) == 0,
			offset:    offset,
			size:      size,
		})
		offset += uint64(size)
	}

	return nil
}

func (d *Demuxer) indexFragmented(mp4File *mp4.File) error {
	var videoTrack *mp4.TrakBox
	var trex *mp4.TrexBox

	if mp4File.Init != nil && mp4File.Init.Moov != nil {
		videoTrack = findVideoTrack(mp4File.Init.Moov.Traks)
		if videoTrack != nil && mp4File.Init.Moov.Mvex != nil {
			for _, t := range mp4File.Init.Moov.Mvex.Trexs {
				if t.TrackID == videoTrack.Tkhd.TrackID {
					trex = t
					break
				}
			}
		}
	}
	if videoTrack == nil {
		return ErrNoVideoTrack
	}
	d.setTrackInfo(videoTrack)
	videoTrackID := videoTrack.Tkhd.TrackID

	var timescale uint32 = 1000
	if videoTrack.Mdia.Mdhd != nil && videoTrack.Mdia.Mdhd.Timescale != 0 {
		timescale = videoTrack.Mdia.Mdhd.Timescale
	}

	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}

			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != videoTrackID {
					continue
				}

				var baseDecodeTime uint64
				if traf.Tfdt != nil {
					baseDecodeTime = traf.Tfdt.BaseMediaDecodeTime()
				}

				samples, err := frag.GetFullSamples(trex)
				if err != nil {
					return fmt.Errorf("get samples: %w", err)
				}

				currentTime := baseDecodeTime
				for _, fs := range samples {
					presentTime := int64(currentTime) + int64(fs.CompositionTimeOffset)
					d.samples = append(d.samples, sample{
						decodeMs:  toMs(int64(currentTime), timescale),
						presentMs: toMs(presentTime, timescale),
						durMs:     toMs(int64(fs.Dur), timescale),
						keyframe:  fs.Flags == mp4.SyncSampleFlags || len(d.samples) == 0,
						data:      fs.Data,
					})
					currentTime += uint64(fs.Dur)
				}
			}
		}
	}

	return nil
}

func findVideoTrack(traks []*mp4.TrakBox) *mp4.TrakBox {
	for _, trak := range traks {
		if trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "vide" {
			return trak
		}
	}
	return nil
}

func chunkOffset(stbl *mp4.StblBox, chunkNr int) (uint64, error) {
	if stbl.Stco != nil {
		off, err := stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return 0, fmt.Errorf("get chunk offset: %w", err)
		}
		return off, nil
	}
	if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
		return 0, fmt.Errorf("chunk nr %d out of range", chunkNr)
	}
	return stbl.Co64.ChunkOffset[chunkNr-1], nil
}

func toMs(t int64, timescale uint32) int {
	return int(t * 1000 / int64(timescale))
}

// spsPPSAnnexB returns the parameter sets of an avcC box in Annex B format.
func spsPPSAnnexB(avcC *mp4.AvcCBox) []byte {
	var out []byte
	for _, sps := range avcC.SPSnalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, sps...)
	}
	for _, pps := range avcC.PPSnalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, pps...)
	}
	return out
}

// avccToAnnexB converts AVCC format (length-prefixed NALUs) to Annex B format (start code prefixed)
func avccToAnnexB(data []byte) []byte {
	var result []byte
	offset := 0

	for offset+4 <= len(data) {
		naluLen := int(data[offset])<<24 | int(data[offset+1])<<16 |
			int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4

		if offset+naluLen > len(data) {
			break
		}

		result = append(result, 0, 0, 0, 1)
		result = append(result, data[offset:offset+naluLen]...)
		offset += naluLen
	}

	return result
}

// Ensure Demuxer implements ports.Demuxer
var _ ports.Demuxer = (*Demuxer)(nil)
