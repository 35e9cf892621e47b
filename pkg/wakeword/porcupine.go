package wakeword

import (
	"errors"
	"fmt"
	"strings"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"
	"github.com/sirupsen/logrus"
)

// ErrMissingAccessKey is a startup failure: the Porcupine engine cannot run
// without a Picovoice access key.
var ErrMissingAccessKey = errors.New("porcupine access key is required (get one at https://console.picovoice.ai/)")

// PorcupineConfig selects the keyword and tunes the licensed engine.
type PorcupineConfig struct {
	AccessKey   string
	Keyword     string // built-in keyword name, e.g. "jarvis"
	KeywordPath string // custom .ppn file; overrides Keyword
	Sensitivity float32
}

// PorcupineEngine is the fixed-frame variant. The engine consumes exactly
// FrameLength samples (typically 512) per call while the microphone delivers
// 480-sample frames, so incoming audio is re-chunked through an internal
// buffer and consumed in FrameLength strides.
//
// The engine's sliding window models continuous time: it must be fed live
// audio even while the microphone is muted (WarmFeeder), otherwise its
// temporal context desynchronizes from the stream. Reset only clears the
// re-chunk buffer.
type PorcupineEngine struct {
	log logrus.FieldLogger

	engine   *porcupine.Porcupine
	frameLen int
	process  func([]int16) (int, error)

	buf       []int16
	processed int
}

// NewPorcupineEngine initializes the licensed engine.
func NewPorcupineEngine(cfg PorcupineConfig, log logrus.FieldLogger) (*PorcupineEngine, error) {
	if cfg.AccessKey == "" {
		return nil, ErrMissingAccessKey
	}
	if cfg.Sensitivity <= 0 {
		cfg.Sensitivity = 0.5
	}

	p := porcupine.Porcupine{
		AccessKey:     cfg.AccessKey,
		Sensitivities: []float32{cfg.Sensitivity},
	}
	label := cfg.Keyword
	if cfg.KeywordPath != "" {
		p.KeywordPaths = []string{cfg.KeywordPath}
		label = cfg.KeywordPath
	} else {
		if cfg.Keyword == "" {
			cfg.Keyword = "jarvis"
			label = cfg.Keyword
		}
		p.BuiltInKeywords = []porcupine.BuiltInKeyword{
			porcupine.BuiltInKeyword(strings.ToLower(cfg.Keyword)),
		}
	}

	if err := p.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize porcupine: %w", err)
	}

	e := &PorcupineEngine{
		log:      log,
		engine:   &p,
		frameLen: porcupine.FrameLength,
		process:  p.Process,
		buf:      make([]int16, 0, porcupine.FrameLength*2),
	}
	log.Infof("porcupine engine loaded: %q (sensitivity=%.2f, frame_length=%d)",
		label, cfg.Sensitivity, porcupine.FrameLength)
	return e, nil
}

func (e *PorcupineEngine) Detect(frame []int16) (bool, error) {
	return e.feed(frame)
}

// FeedMuted keeps the engine's sliding window in sync with the live stream
// while the microphone is muted. Detections are discarded.
func (e *PorcupineEngine) FeedMuted(frame []int16) {
	if _, err := e.feed(frame); err != nil {
		e.log.Debugf("porcupine keep-warm feed failed: %v", err)
	}
}

func (e *PorcupineEngine) feed(frame []int16) (bool, error) {
	e.buf = append(e.buf, frame...)

	detected := false
	for len(e.buf) >= e.frameLen {
		stride := e.buf[:e.frameLen]
		idx, err := e.process(stride)
		n := copy(e.buf, e.buf[e.frameLen:])
		e.buf = e.buf[:n]
		if err != nil {
			return false, fmt.Errorf("porcupine process failed: %w", err)
		}
		e.processed++
		if idx >= 0 {
			e.log.Infof("wake word detected (porcupine keyword_index=%d, after %d frames)", idx, e.processed)
			detected = true
		}
	}
	return detected, nil
}

// Reset clears the re-chunk buffer only. The engine itself stays warm; it is
// kept in sync by continuous feeding during mute.
func (e *PorcupineEngine) Reset() error {
	e.buf = e.buf[:0]
	e.log.Debug("porcupine re-chunk buffer cleared")
	return nil
}

// Close releases the native engine.
func (e *PorcupineEngine) Close() {
	if e.engine != nil {
		_ = e.engine.Delete()
		e.engine = nil
	}
}
