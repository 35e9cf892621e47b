// Package vad wraps the WebRTC voice activity detector behind the one
// capability the capture loop needs: is this 30 ms frame speech?
package vad

import (
	"fmt"

	webrtcvad "github.com/baabaaox/go-webrtcvad"
)

// Detector classifies 30 ms 16 kHz mono frames as speech or non-speech.
// Aggressiveness is fixed at construction. Not safe for concurrent use; the
// capture goroutine is the only caller.
type Detector struct {
	inst       webrtcvad.VadInst
	sampleRate int
	frameSize  int
}

// New creates a detector with the given aggressiveness (0-3, higher filters
// more non-speech).
func New(aggressiveness, sampleRate, frameSamples int) (*Detector, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("invalid VAD aggressiveness %d: must be 0-3", aggressiveness)
	}

	inst := webrtcvad.Create()
	if err := webrtcvad.Init(inst); err != nil {
		webrtcvad.Free(inst)
		return nil, fmt.Errorf("failed to initialize WebRTC VAD: %w", err)
	}
	if err := webrtcvad.SetMode(inst, aggressiveness); err != nil {
		webrtcvad.Free(inst)
		return nil, fmt.Errorf("failed to set WebRTC VAD mode: %w", err)
	}

	return &Detector{
		inst:       inst,
		sampleRate: sampleRate,
		frameSize:  frameSamples,
	}, nil
}

// IsSpeech classifies one frame of little-endian 16-bit PCM. The frame must
// hold exactly the sample count given at construction.
func (d *Detector) IsSpeech(frame []byte) (bool, error) {
	if len(frame) != d.frameSize*2 {
		return false, fmt.Errorf("VAD frame must be %d bytes, got %d", d.frameSize*2, len(frame))
	}
	return webrtcvad.Process(d.inst, d.sampleRate, frame, d.frameSize)
}

// Close frees the underlying C instance.
func (d *Detector) Close() {
	if d.inst != nil {
		webrtcvad.Free(d.inst)
		d.inst = nil
	}
}
