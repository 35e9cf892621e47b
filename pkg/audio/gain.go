package audio

import "encoding/binary"

// ApplyGain multiplies every 16-bit sample in pcm by gain, clipping to the
// int16 range. Gain 1.0 returns pcm untouched.
func ApplyGain(pcm []byte, gain float64) []byte {
	if gain == 1.0 {
		return pcm
	}

	out := make([]byte, len(pcm))
	copy(out, pcm)
	for i := 0; i+1 < len(out); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(out[i : i+2])))
		s *= gain
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		binary.LittleEndian.PutUint16(out[i:i+2], uint16(int16(s)))
	}
	return out
}
