package wakeword

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// stubEngine records the strides the re-chunker hands to the native engine.
type stubEngine struct {
	strides  [][]int16
	detectAt int // stride index that reports the keyword, -1 for never
}

func (s *stubEngine) process(frame []int16) (int, error) {
	idx := len(s.strides)
	stride := make([]int16, len(frame))
	copy(stride, frame)
	s.strides = append(s.strides, stride)
	if idx == s.detectAt {
		return 0, nil
	}
	return -1, nil
}

func newTestEngine(stub *stubEngine) *PorcupineEngine {
	return &PorcupineEngine{
		log:      testLogger(),
		frameLen: 512,
		process:  stub.process,
		buf:      make([]int16, 0, 1024),
	}
}

func micFrame(fill int16) []int16 {
	f := make([]int16, 480)
	for i := range f {
		f[i] = fill
	}
	return f
}

func TestRechunkerStrides(t *testing.T) {
	stub := &stubEngine{detectAt: -1}
	e := newTestEngine(stub)

	// 16 mic frames of 480 samples = 7680 samples = 15 strides of 512.
	for i := 0; i < 16; i++ {
		if _, err := e.Detect(micFrame(int16(i))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(stub.strides) != 15 {
		t.Fatalf("expected 15 strides, got %d", len(stub.strides))
	}
	for i, s := range stub.strides {
		if len(s) != 512 {
			t.Errorf("stride %d has %d samples", i, len(s))
		}
	}

	// The strides must reproduce the input sequence without gaps: sample k
	// of the concatenated strides equals frame k/480's fill value.
	if stub.strides[0][0] != 0 || stub.strides[0][479] != 0 || stub.strides[0][480] != 1 {
		t.Error("stride content does not follow the input stream")
	}
}

func TestRechunkerDetects(t *testing.T) {
	stub := &stubEngine{detectAt: 2}
	e := newTestEngine(stub)

	var hit bool
	for i := 0; i < 4; i++ {
		detected, err := e.Detect(micFrame(0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if detected {
			hit = true
		}
	}
	if !hit {
		t.Error("a keyword reported by any stride must surface as a detection")
	}
}

func TestResetClearsBufferOnly(t *testing.T) {
	stub := &stubEngine{detectAt: -1}
	e := newTestEngine(stub)

	e.Detect(micFrame(1)) // leaves 480 samples buffered, no stride yet
	if len(stub.strides) != 0 {
		t.Fatalf("expected no strides after a single 480-sample frame, got %d", len(stub.strides))
	}

	if err := e.Reset(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// After a reset the next frame starts a fresh buffer: still one frame
	// short of a stride.
	e.Detect(micFrame(2))
	if len(stub.strides) != 0 {
		t.Error("reset must discard buffered samples")
	}
	e.Detect(micFrame(3))
	if len(stub.strides) != 1 {
		t.Errorf("expected 1 stride after 960 buffered samples, got %d", len(stub.strides))
	}
}

func TestFeedMutedKeepsEngineWarm(t *testing.T) {
	stub := &stubEngine{detectAt: 0}
	e := newTestEngine(stub)

	// Detections during the muted feed are discarded but the engine still
	// consumes the audio.
	for i := 0; i < 3; i++ {
		e.FeedMuted(micFrame(0))
	}
	if len(stub.strides) != 2 {
		t.Errorf("muted feeding must keep processing strides, got %d", len(stub.strides))
	}
}
