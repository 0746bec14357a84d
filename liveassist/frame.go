package liveassist

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// FrameMimeType tags the wire encoding of a frame: 16-bit signed PCM,
// mono, 16 kHz.
const FrameMimeType = "audio/pcm;rate=16000"

// Frame is one quantized, encoded block of mixed audio ready for transport.
type Frame struct {
	Data     string // standard base64 of little-endian PCM16 samples
	MimeType string
}

// EncodeFrame quantizes float32 samples into a transport-ready frame. Each
// sample is scaled by 32768 and clamped to the int16 range; callers are
// expected to deliver pre-normalized [-1, 1] audio, and the clamp keeps a
// hot input from wrapping around into noise. Pure and deterministic.
func EncodeFrame(samples []float32) Frame {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return Frame{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MimeType: FrameMimeType,
	}
}

// DecodeFrame recovers the quantized samples from a frame. The round trip
// is exact at the 16-bit level, not bit-exact to the original floats.
func DecodeFrame(f Frame) ([]int16, error) {
	pcm, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return nil, fmt.Errorf("decode frame payload: %w", err)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("frame payload has odd length %d", len(pcm))
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples, nil
}
