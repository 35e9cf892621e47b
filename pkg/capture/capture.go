// Package capture implements the real-time capture state machine: a single
// goroutine that reads microphone frames, drives wake-word detection in IDLE
// and voice-activity segmentation in LISTENING, and emits completed
// utterances as WAV blobs on a typed event channel.
package capture

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/auris-ai/auris-agent/pkg/audio"
	"github.com/auris-ai/auris-agent/pkg/wakeword"
)

// EventKind tags events flowing from the capture loop to the orchestrator.
type EventKind string

const (
	EventWakeWord      EventKind = "WAKE_WORD"
	EventUtterance     EventKind = "UTTERANCE"
	EventListenTimeout EventKind = "LISTEN_TIMEOUT"
)

// Event is one capture occurrence. WAV is set for EventUtterance only.
type Event struct {
	Kind EventKind
	WAV  []byte
}

// SpeechDetector is the voice-activity capability: is this 30 ms frame speech?
type SpeechDetector interface {
	IsSpeech(frame []byte) (bool, error)
}

// Params tunes the state machine. All values are milliseconds; they are
// converted to 30 ms frame counts when the loop starts.
type Params struct {
	SilenceMs             int // contiguous silence that closes an utterance
	MinSpeechMs           int // utterances shorter than this are not emitted
	WakeListenTimeoutMs   int // max LISTENING time after a wake word
	ConversationTimeoutMs int // max LISTENING time in conversation mode
}

// DefaultParams mirrors the production tuning.
func DefaultParams() Params {
	return Params{
		SilenceMs:             1200,
		MinSpeechMs:           2000,
		WakeListenTimeoutMs:   10000,
		ConversationTimeoutMs: 300000,
	}
}

// preSpeechFrames is the ring-buffer depth: 10 × 30 ms ≈ 300 ms of audio
// preceding wake-word detection is retained so the first syllables of the
// command are not lost.
const preSpeechFrames = 10

type state int

const (
	stateIdle state = iota
	stateListening
)

// control is the compact flag record the orchestrator writes and the capture
// loop read-and-clears once per frame, all under one mutex.
type control struct {
	muted              bool
	resumeListening    bool
	resumeConversation bool
	resetPending       bool
}

// Machine is the capture state machine. Run consumes the frame source until
// it closes; the control methods are safe to call from any goroutine.
type Machine struct {
	frames   <-chan []byte
	detector wakeword.Detector
	vad      SpeechDetector
	params   Params
	log      logrus.FieldLogger

	events chan Event

	ctlMu sync.Mutex
	ctl   control

	current atomic.Int32 // last committed state, for logs and tests
}

// State reports the machine's last committed state ("IDLE" or "LISTENING").
func (m *Machine) State() string {
	if state(m.current.Load()) == stateListening {
		return "LISTENING"
	}
	return "IDLE"
}

// New wires a machine to its frame source and detectors.
func New(frames <-chan []byte, detector wakeword.Detector, vad SpeechDetector, params Params, log logrus.FieldLogger) *Machine {
	return &Machine{
		frames:   frames,
		detector: detector,
		vad:      vad,
		params:   params,
		log:      log,
		events:   make(chan Event, 1024),
	}
}

// Events is the capture → orchestrator channel. Closed when Run returns.
func (m *Machine) Events() <-chan Event {
	return m.events
}

// Mute discards audio and forces IDLE semantics until one of the resume
// calls. Fixed-frame wake engines keep receiving live audio while muted.
func (m *Machine) Mute() {
	m.ctlMu.Lock()
	m.ctl.muted = true
	m.ctlMu.Unlock()
	m.log.Debug("microphone muted")
}

// Unmute returns to IDLE and schedules a wake-engine reset. Used after main
// pipeline playback.
func (m *Machine) Unmute() {
	m.ctlMu.Lock()
	m.ctl.muted = false
	m.ctl.resumeListening = false
	m.ctl.resetPending = true
	m.ctlMu.Unlock()
	m.log.Info("microphone unmuted, state → IDLE")
}

// ResumeListening unmutes straight into LISTENING with the wake timeout.
// Used after the wake-word acknowledgement so the command is captured.
func (m *Machine) ResumeListening() {
	m.ctlMu.Lock()
	m.ctl.muted = false
	m.ctl.resumeListening = true
	m.ctlMu.Unlock()
	m.log.Info("microphone unmuted, state → LISTENING")
}

// ResumeConversation unmutes into LISTENING with the conversation timeout.
// Used after a TTS reply when follow-up turns need no new wake word.
func (m *Machine) ResumeConversation() {
	m.ctlMu.Lock()
	m.ctl.muted = false
	m.ctl.resumeConversation = true
	m.ctlMu.Unlock()
	m.log.Info("microphone unmuted, state → LISTENING (conversation mode)")
}

// loopState is the per-run mutable state, owned by the capture goroutine.
type loopState struct {
	state          state
	ring           [][]byte
	utterance      [][]byte
	silenceCount   int
	timeoutLeft    int
	hadSpeech      bool // a voiced frame was seen in the current utterance
	inConversation bool
	wasMuted       bool
	idleFrames     int
}

// Run executes the capture loop until the frame source closes, then closes
// the event channel. Exactly one state transition happens per frame.
func (m *Machine) Run() {
	silenceLimit := m.params.SilenceMs / audio.FrameMs
	minSpeech := m.params.MinSpeechMs / audio.FrameMs
	timeoutWake := m.params.WakeListenTimeoutMs / audio.FrameMs
	timeoutConvo := m.params.ConversationTimeoutMs / audio.FrameMs

	st := &loopState{ring: make([][]byte, 0, preSpeechFrames)}

	for frame := range m.frames {
		m.step(frame, st, silenceLimit, minSpeech, timeoutWake, timeoutConvo)
	}
	close(m.events)
}

func (m *Machine) step(frame []byte, st *loopState, silenceLimit, minSpeech, timeoutWake, timeoutConvo int) {
	m.ctlMu.Lock()
	muted := m.ctl.muted
	resume := m.ctl.resumeListening
	resumeConv := m.ctl.resumeConversation
	m.ctl.resumeListening = false
	m.ctl.resumeConversation = false
	m.ctlMu.Unlock()

	if muted {
		st.state = stateIdle
		m.current.Store(int32(stateIdle))
		st.ring = st.ring[:0]
		st.utterance = st.utterance[:0]
		st.silenceCount = 0
		st.hadSpeech = false
		st.wasMuted = true
		// Fixed-frame engines need live audio even while muted so their
		// sliding window stays aligned with the stream.
		if wf, ok := m.detector.(wakeword.WarmFeeder); ok {
			wf.FeedMuted(audio.BytesToPCM(frame))
		}
		return
	}

	if st.wasMuted {
		st.wasMuted = false
		switch {
		case resumeConv:
			m.log.Info("capture loop resumed, state → LISTENING (conversation mode)")
		case resume:
			m.log.Info("capture loop resumed, state → LISTENING")
		default:
			m.log.Info("capture loop resumed, state → IDLE")
		}
	}

	if resume || resumeConv {
		st.state = stateListening
		st.inConversation = resumeConv || st.inConversation
		if st.inConversation {
			st.timeoutLeft = timeoutConvo
		} else {
			st.timeoutLeft = timeoutWake
		}
		st.utterance = st.utterance[:0]
		st.silenceCount = 0
		st.hadSpeech = false
	}

	switch st.state {
	case stateIdle:
		m.stepIdle(frame, st, timeoutWake)
	case stateListening:
		m.stepListening(frame, st, silenceLimit, minSpeech, timeoutWake, timeoutConvo)
	}
	m.current.Store(int32(st.state))
}

func (m *Machine) stepIdle(frame []byte, st *loopState, timeoutWake int) {
	st.idleFrames++

	if len(st.ring) == preSpeechFrames {
		copy(st.ring, st.ring[1:])
		st.ring = st.ring[:preSpeechFrames-1]
	}
	st.ring = append(st.ring, frame)

	m.ctlMu.Lock()
	doReset := m.ctl.resetPending
	m.ctl.resetPending = false
	m.ctlMu.Unlock()
	if doReset {
		if err := m.detector.Reset(); err != nil {
			m.log.Errorf("wake engine reset failed: %v", err)
		}
	}

	// Heartbeat roughly every 30 s with the ambient level.
	if st.idleFrames%1000 == 0 {
		m.log.Infof("idle: listening for wake word … (%ds, rms=%.4f)",
			st.idleFrames*audio.FrameMs/1000, audio.RMS(frame))
	}

	detected, err := m.detector.Detect(audio.BytesToPCM(frame))
	if err != nil {
		m.log.Errorf("wake word detection failed: %v", err)
		return
	}
	if !detected {
		return
	}

	st.idleFrames = 0
	st.inConversation = false

	// Emit before the ring flush: the wake event happens-before the first
	// frame of the utterance enters the buffer.
	m.emit(Event{Kind: EventWakeWord})

	st.utterance = append(st.utterance[:0], st.ring...)
	st.ring = st.ring[:0]
	st.silenceCount = 0
	st.hadSpeech = false
	st.timeoutLeft = timeoutWake
	st.state = stateListening
}

func (m *Machine) stepListening(frame []byte, st *loopState, silenceLimit, minSpeech, timeoutWake, timeoutConvo int) {
	refresh := timeoutWake
	if st.inConversation {
		refresh = timeoutConvo
	}

	st.timeoutLeft--
	if st.timeoutLeft <= 0 {
		if st.inConversation {
			m.log.Infof("conversation timeout (%ds) — returning to IDLE", m.params.ConversationTimeoutMs/1000)
		} else {
			m.log.Info("listen timeout — returning to IDLE")
		}
		st.utterance = st.utterance[:0]
		st.ring = st.ring[:0]
		st.silenceCount = 0
		st.state = stateIdle
		st.inConversation = false
		m.emit(Event{Kind: EventListenTimeout})
		return
	}

	st.utterance = append(st.utterance, frame)

	isSpeech, err := m.vad.IsSpeech(frame)
	if err != nil {
		// Per-frame failures never kill the loop; drop the utterance and
		// fall back to wake-word watching.
		m.log.Errorf("VAD failed: %v", err)
		st.utterance = st.utterance[:0]
		st.silenceCount = 0
		st.state = stateIdle
		st.inConversation = false
		return
	}

	if isSpeech {
		if st.silenceCount > 0 || len(st.utterance) == 1 {
			m.log.Infof("VAD: speech detected (voiced frames: %d)", len(st.utterance))
		}
		st.silenceCount = 0
		st.hadSpeech = true
		st.timeoutLeft = refresh
		return
	}

	st.silenceCount++
	// The utterance only closes on silence once speech has been heard;
	// before that the listen timeout is the sole way out.
	if !st.hadSpeech || st.silenceCount < silenceLimit {
		return
	}

	durationMs := len(st.utterance) * audio.FrameMs
	if len(st.utterance) >= minSpeech {
		m.log.Infof("VAD: utterance complete (%d ms), sending to ASR …", durationMs)
		wav := m.encodeUtterance(st.utterance)
		m.emit(Event{Kind: EventUtterance, WAV: wav})
		st.utterance = st.utterance[:0]
		st.ring = st.ring[:0]
		st.silenceCount = 0
		st.hadSpeech = false
		// In conversation mode, stay LISTENING for the next question.
		// Otherwise return to IDLE (wake word required).
		if !st.inConversation {
			st.state = stateIdle
		}
		return
	}

	// Too short — stay in LISTENING so the user can keep talking.
	m.log.Infof("VAD: utterance too short (%d ms < %d ms), still listening …", durationMs, m.params.MinSpeechMs)
	st.utterance = st.utterance[:0]
	st.silenceCount = 0
	st.hadSpeech = false
	st.timeoutLeft = refresh
}

func (m *Machine) encodeUtterance(frames [][]byte) []byte {
	var pcm bytes.Buffer
	for _, f := range frames {
		pcm.Write(f)
	}
	return audio.NewWavBuffer(pcm.Bytes(), audio.MicSampleRate)
}

// emit never blocks the capture goroutine; events beyond the channel's
// capacity are dropped with a warning.
func (m *Machine) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Warnf("capture event channel full, dropping %s", ev.Kind)
	}
}
