package audio

import "encoding/binary"

// SampleBlock is one device read. Samples is the read buffer and N how many
// of its leading samples were filled; N never exceeds len(Samples).
type SampleBlock struct {
	Samples []int16
	N       int
}

func (b SampleBlock) Valid() []int16 {
	n := b.N
	if n < 0 {
		n = 0
	}
	if n > len(b.Samples) {
		n = len(b.Samples)
	}
	return b.Samples[:n]
}

// EncodedFrame is LINEAR16 audio: little-endian signed 16-bit samples.
type EncodedFrame []byte

// Encode writes the valid samples of block low byte first, independent of
// host byte order. The returned frame does not alias the block.
func Encode(block SampleBlock) EncodedFrame {
	samples := block.Valid()
	frame := make(EncodedFrame, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(s))
	}
	return frame
}

// Decode reads a frame back into samples. A trailing odd byte is ignored.
func Decode(frame EncodedFrame) []int16 {
	samples := make([]int16, len(frame)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(frame[i*2:]))
	}
	return samples
}

// NativeToInt16 converts machine-endian PCM bytes, as delivered by capture
// drivers, into samples.
func NativeToInt16(dst []int16, pcm []byte) int {
	n := min(len(dst), len(pcm)/2)
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.NativeEndian.Uint16(pcm[i*2:]))
	}
	return n
}
