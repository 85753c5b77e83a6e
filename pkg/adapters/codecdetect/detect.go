// Package codecdetect maps MP4 sample entry types to video codecs.
package codecdetect

// Codec represents a video codec type.
type Codec string

const (
	CodecH264    Codec = "h264"
	CodecHEVC    Codec = "hevc"
	CodecAV1     Codec = "av1"
	CodecUnknown Codec = "unknown"
)

// FromSampleEntry returns the codec for an stsd child box type such as "avc1".
func FromSampleEntry(entryType string) Codec {
	switch entryType {
	case "avc1", "avc3":
		return CodecH264
	case "hvc1", "hev1":
		return CodecHEVC
	case "av01":
		return CodecAV1
	default:
		return CodecUnknown
	}
}

// AnnexB reports whether packets of the codec are delivered as an Annex B
// byte stream that a raw elementary-stream decoder can consume.
func (c Codec) AnnexB() bool {
	return c == CodecH264
}

// FFmpegFormat returns the ffmpeg demuxer name for the raw elementary stream.
func (c Codec) FFmpegFormat() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecHEVC:
		return "hevc"
	default:
		return ""
	}
}
