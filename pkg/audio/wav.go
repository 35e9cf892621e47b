package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

// Format describes the PCM layout declared by a WAV header.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

var (
	ErrNotWav            = errors.New("not a valid WAV file")
	ErrNoDataChunk       = errors.New("data chunk not found in WAV")
	ErrWavTooShort       = errors.New("wav data too short")
	ErrUnsupportedFormat = errors.New("unsupported WAV sample format")
)

// NewWavBuffer wraps raw 16-bit mono PCM in a canonical RIFF/WAVE container.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	return NewWavBufferChannels(pcm, sampleRate, 1)
}

// NewWavBufferChannels wraps raw 16-bit PCM in a RIFF/WAVE container with the
// given channel count.
func NewWavBufferChannels(pcm []byte, sampleRate, channels int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWav parses a WAV buffer and returns its raw PCM payload and declared
// format. Only uncompressed PCM (format tag 1) is accepted.
func DecodeWav(wav []byte) ([]byte, Format, error) {
	var f Format

	if len(wav) < 44 {
		return nil, f, ErrWavTooShort
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, f, ErrNotWav
	}

	var pcm []byte
	haveFmt := false
	haveData := false

	// Walk chunks; "fmt " and "data" may appear in any order.
	pos := 12
	for pos+8 <= len(wav) {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(wav) {
				return nil, f, ErrNotWav
			}
			tag := binary.LittleEndian.Uint16(wav[body : body+2])
			if tag != 1 {
				return nil, f, ErrUnsupportedFormat
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			f.BitDepth = int(binary.LittleEndian.Uint16(wav[body+14 : body+16]))
			haveFmt = true
		case "data":
			end := body + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			pcm = wav[body:end]
			haveData = true
		}

		pos = body + chunkSize
		// Chunks are word-aligned.
		if chunkSize%2 != 0 {
			pos++
		}
	}

	if !haveFmt || !haveData {
		return nil, f, ErrNoDataChunk
	}
	return pcm, f, nil
}

// Tone synthesizes a sine beep as a canonical 44.1 kHz mono WAV, so cue sounds
// need no TTS backend.
func Tone(freq float64, durationMs int, volume float64) []byte {
	const rate = 44100
	n := rate * durationMs / 1000
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(volume * 32767 * math.Sin(2*math.Pi*freq*float64(i)/rate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return NewWavBuffer(pcm, rate)
}

// BytesToPCM reinterprets little-endian 16-bit PCM bytes as samples.
func BytesToPCM(frame []byte) []int16 {
	n := len(frame) / 2
	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(frame[i*2 : i*2+2]))
	}
	return pcm
}

// RMS returns the root mean square level of a 16-bit PCM frame, in [0, 1].
func RMS(frame []byte) float64 {
	if len(frame) < 2 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(frame); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(frame[i:i+2]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)/2))
}
