package dialog

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/auris-ai/auris-agent/pkg/capture"
)

// opLog records mic and player operations in order across goroutines.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.ops))
	copy(out, l.ops)
	return out
}

type fakeMic struct{ log *opLog }

func (m *fakeMic) Mute()               { m.log.add("mute") }
func (m *fakeMic) Unmute()             { m.log.add("unmute") }
func (m *fakeMic) ResumeListening()    { m.log.add("resume_listening") }
func (m *fakeMic) ResumeConversation() { m.log.add("resume_conversation") }

type fakePlayer struct {
	log      *opLog
	mu       sync.Mutex
	played   [][]byte
	streamed []byte
}

func (p *fakePlayer) Play(wav []byte) error {
	p.log.add("play")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, wav)
	return nil
}

func (p *fakePlayer) PlayStream(ctx context.Context, chunks <-chan []byte) error {
	p.log.add("stream")
	for chunk := range chunks {
		p.mu.Lock()
		p.streamed = append(p.streamed, chunk...)
		p.mu.Unlock()
	}
	return nil
}

type mockSTT struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	gate  chan struct{} // when set, Transcribe blocks until closed
}

func (m *mockSTT) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.text, m.err
}

func (m *mockSTT) Name() string { return "mock-stt" }

func (m *mockSTT) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	lastMsgs []Message
}

func (m *mockLLM) Complete(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	m.calls++
	m.lastMsgs = append([]Message(nil), messages...)
	m.mu.Unlock()
	return m.reply, m.err
}

func (m *mockLLM) Name() string { return "mock-llm" }

type mockTTS struct {
	mu           sync.Mutex
	synthWav     []byte
	synthErr     error
	streamChunks [][]byte
	streamErr    error
	lastStream   string
}

func (m *mockTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return m.synthWav, m.synthErr
}

func (m *mockTTS) StreamSynthesize(ctx context.Context, text string, onChunk func([]byte) error) error {
	m.mu.Lock()
	m.lastStream = text
	m.mu.Unlock()
	if m.streamErr != nil {
		return m.streamErr
	}
	for _, chunk := range m.streamChunks {
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockTTS) Name() string { return "mock-tts" }

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SystemPrompt = "You are a test assistant."
	return cfg
}

// runDialog pushes the events through a fresh Dialog and waits for all
// workers to finish.
func runDialog(t *testing.T, d *Dialog, events ...capture.Event) {
	t.Helper()
	ch := make(chan capture.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	d.Run(context.Background(), ch)
}

func TestWakeWordAckSequence(t *testing.T) {
	ops := &opLog{}
	mic := &fakeMic{log: ops}
	player := &fakePlayer{log: ops}
	tts := &mockTTS{synthWav: []byte("ack-wav")}

	d := New(&mockSTT{}, &mockLLM{}, tts, mic, player, testConfig(), testLogger())
	runDialog(t, d, capture.Event{Kind: capture.EventWakeWord})

	want := []string{"mute", "play", "play", "resume_listening"}
	if got := ops.all(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected ops %v, got %v", want, got)
	}

	if string(player.played[0]) != "ack-wav" {
		t.Error("first playback must be the synthesized acknowledgement")
	}
	if len(player.played[1]) < 44 {
		t.Error("second playback must be the speak-now beep")
	}
}

func TestWakeWordAckFallsBackToBeep(t *testing.T) {
	ops := &opLog{}
	mic := &fakeMic{log: ops}
	player := &fakePlayer{log: ops}
	tts := &mockTTS{synthErr: errors.New("tts down")}

	d := New(&mockSTT{}, &mockLLM{}, tts, mic, player, testConfig(), testLogger())
	runDialog(t, d, capture.Event{Kind: capture.EventWakeWord})

	got := ops.all()
	if got[len(got)-1] != "resume_listening" {
		t.Error("mic must resume to LISTENING even when the ack fails")
	}
	if len(player.played) != 2 || len(player.played[0]) < 44 {
		t.Error("a beep must replace the unavailable acknowledgement")
	}
}

func TestWakeWordAckDisabled(t *testing.T) {
	ops := &opLog{}
	cfg := testConfig()
	cfg.AckPhrase = ""

	d := New(&mockSTT{}, &mockLLM{}, &mockTTS{}, &fakeMic{log: ops}, &fakePlayer{log: ops}, cfg, testLogger())
	runDialog(t, d, capture.Event{Kind: capture.EventWakeWord})

	if len(ops.all()) != 0 {
		t.Errorf("no ack configured: nothing should play, got %v", ops.all())
	}
}

func TestPipelineSuccess(t *testing.T) {
	ops := &opLog{}
	mic := &fakeMic{log: ops}
	player := &fakePlayer{log: ops}
	stt := &mockSTT{text: "what time is it"}
	llm := &mockLLM{reply: "It is **noon**."}
	tts := &mockTTS{streamChunks: [][]byte{{1, 2}, {3, 4}}}

	d := New(stt, llm, tts, mic, player, testConfig(), testLogger())
	runDialog(t, d, capture.Event{Kind: capture.EventUtterance, WAV: []byte("wav")})

	want := []string{"mute", "stream", "play", "unmute"}
	if got := ops.all(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected ops %v, got %v", want, got)
	}

	if d.History().Len() != 2 {
		t.Errorf("expected 2 history messages after a successful turn, got %d", d.History().Len())
	}
	if tts.lastStream != "It is noon." {
		t.Errorf("reply must be cleaned before synthesis, got %q", tts.lastStream)
	}
	if string(player.streamed) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("unexpected streamed audio: %v", player.streamed)
	}

	msgs := llm.lastMsgs
	if msgs[0].Role != "system" {
		t.Error("request must start with the system prompt")
	}
	if last := msgs[len(msgs)-1]; last.Role != "user" || last.Content != "what time is it" {
		t.Errorf("request must end with the user turn, got %+v", last)
	}
}

func TestPipelineConversationMode(t *testing.T) {
	ops := &opLog{}
	cfg := testConfig()
	cfg.ConversationMode = true

	d := New(&mockSTT{text: "hi"}, &mockLLM{reply: "hello"}, &mockTTS{streamChunks: [][]byte{{1}}},
		&fakeMic{log: ops}, &fakePlayer{log: ops}, cfg, testLogger())
	runDialog(t, d, capture.Event{Kind: capture.EventUtterance, WAV: []byte("wav")})

	got := ops.all()
	if got[len(got)-1] != "resume_conversation" {
		t.Errorf("conversation mode must resume LISTENING after the reply, got %v", got)
	}
}

func TestPipelineEmptyTranscriptionApologizes(t *testing.T) {
	ops := &opLog{}
	llm := &mockLLM{reply: "unused"}
	tts := &mockTTS{synthWav: []byte("apology-wav")}

	d := New(&mockSTT{text: "  "}, llm, tts, &fakeMic{log: ops}, &fakePlayer{log: ops}, testConfig(), testLogger())
	runDialog(t, d, capture.Event{Kind: capture.EventUtterance, WAV: []byte("wav")})

	want := []string{"mute", "play", "unmute"}
	if got := ops.all(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected apology ops %v, got %v", want, got)
	}
	if llm.calls != 0 {
		t.Error("the chat model must not be called for an empty transcription")
	}
	if d.History().Len() != 0 {
		t.Error("a failed turn must not mutate history")
	}
}

func TestPipelineLLMFailureLeavesHistoryUntouched(t *testing.T) {
	ops := &opLog{}
	tts := &mockTTS{synthWav: []byte("apology-wav")}

	d := New(&mockSTT{text: "hello"}, &mockLLM{err: errors.New("llm down")}, tts,
		&fakeMic{log: ops}, &fakePlayer{log: ops}, testConfig(), testLogger())

	before := d.History().Len()
	runDialog(t, d, capture.Event{Kind: capture.EventUtterance, WAV: []byte("wav")})

	if d.History().Len() != before {
		t.Error("history must be identical before and after a failed turn")
	}

	got := ops.all()
	if len(got) == 0 || got[len(got)-1] != "unmute" {
		t.Fatalf("apology must end with unmute, got %v", got)
	}
}

func TestPipelineTTSFailureApologizes(t *testing.T) {
	ops := &opLog{}
	tts := &mockTTS{streamErr: errors.New("stream down"), synthErr: errors.New("tts down")}

	d := New(&mockSTT{text: "hello"}, &mockLLM{reply: "world"}, tts,
		&fakeMic{log: ops}, &fakePlayer{log: ops}, testConfig(), testLogger())
	runDialog(t, d, capture.Event{Kind: capture.EventUtterance, WAV: []byte("wav")})

	// Speak bracket fails, then the apology bracket plays the fallback beep.
	want := []string{"mute", "stream", "unmute", "mute", "play", "unmute"}
	if got := ops.all(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected ops %v, got %v", want, got)
	}

	// The successful exchange is still recorded; only speech output failed.
	if d.History().Len() != 2 {
		t.Errorf("expected chat turn recorded despite TTS failure, got %d", d.History().Len())
	}
}

func TestBusyPipelineDropsUtterance(t *testing.T) {
	ops := &opLog{}
	gate := make(chan struct{})
	stt := &mockSTT{text: "hello", gate: gate}
	tts := &mockTTS{streamChunks: [][]byte{{1}}}

	d := New(stt, &mockLLM{reply: "hi"}, tts, &fakeMic{log: ops}, &fakePlayer{log: ops}, testConfig(), testLogger())

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(gate)
	}()

	runDialog(t, d,
		capture.Event{Kind: capture.EventUtterance, WAV: []byte("first")},
		capture.Event{Kind: capture.EventUtterance, WAV: []byte("second")},
	)

	if got := stt.callCount(); got != 1 {
		t.Errorf("expected the second utterance to be dropped, got %d transcriptions", got)
	}
}

func TestMuteDisabledSkipsMicControl(t *testing.T) {
	ops := &opLog{}
	cfg := testConfig()
	cfg.MuteDuringPlayback = false

	d := New(&mockSTT{text: "hi"}, &mockLLM{reply: "hello"}, &mockTTS{streamChunks: [][]byte{{1}}},
		&fakeMic{log: ops}, &fakePlayer{log: ops}, cfg, testLogger())
	runDialog(t, d, capture.Event{Kind: capture.EventUtterance, WAV: []byte("wav")})

	for _, op := range ops.all() {
		if op == "mute" || op == "unmute" || op == "resume_listening" || op == "resume_conversation" {
			t.Fatalf("mic control must not be touched when muting is disabled, got %v", ops.all())
		}
	}
}
