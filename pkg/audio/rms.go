package audio

import (
	"encoding/binary"
	"math"
)

// RMS computes the root-mean-square energy of a signed 16-bit little-endian
// PCM frame. The result is in raw sample units, range [0, 32767].
// An empty or odd-length frame yields 0.
func RMS(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		// Squares of int16 overflow int32; accumulate in float64.
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}

// IsSilent reports whether the frame's RMS energy is below threshold.
func IsSilent(frame []byte, threshold float64) bool {
	return RMS(frame) < threshold
}
