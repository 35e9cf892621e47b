// Package wakeword provides wake-phrase detection behind one capability with
// two interchangeable engines: Porcupine (licensed, fixed frame size) and
// openWakeWord (open ONNX models, variable frame size).
package wakeword

// Detector is the wake-word capability consumed by the capture loop.
type Detector interface {
	// Detect feeds one frame of 16 kHz mono PCM and reports whether the
	// wake phrase was recognized.
	Detect(frame []int16) (bool, error)

	// Reset clears detection state after a mute/unmute cycle so stale
	// audio context cannot trigger or suppress a detection.
	Reset() error
}

// WarmFeeder is implemented by engines whose internal temporal window must
// stay aligned with the live audio stream even while the microphone is
// muted. The capture loop keeps feeding such engines during mute, with
// detections ignored.
type WarmFeeder interface {
	FeedMuted(frame []int16)
}
