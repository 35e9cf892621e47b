// Package dialog is the orchestrator: it consumes capture events, drives the
// STT → chat → TTS pipeline on worker goroutines, and wraps every playback
// in the mute/resume protocol.
package dialog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/auris-ai/auris-agent/pkg/audio"
	"github.com/auris-ai/auris-agent/pkg/capture"
)

// apologyPhrase is spoken whenever a pipeline step cannot complete.
const apologyPhrase = "I'm sorry, my system is having a problem. Can you ask again?"

// Cue tones. The fallback ack replaces TTS when synthesis fails; the prompt
// beep signals "speak now"; the done beep closes a reply; the apology beep
// replaces the apology phrase when TTS itself is down.
var (
	ackFallbackTone = func() []byte { return audio.Tone(880, 200, 0.5) }
	promptTone      = func() []byte { return audio.Tone(1200, 100, 0.5) }
	doneTone        = func() []byte { return audio.Tone(660, 150, 0.5) }
	apologyTone     = func() []byte { return audio.Tone(440, 500, 0.5) }
)

// Config tunes the orchestrator.
type Config struct {
	SystemPrompt       string
	AckPhrase          string // empty disables the wake acknowledgement
	AckTimeout         time.Duration
	MuteDuringPlayback bool
	ConversationMode   bool // resume into conversation LISTENING after replies
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		AckPhrase:          "Yes sir",
		AckTimeout:         3 * time.Second,
		MuteDuringPlayback: true,
	}
}

// Dialog wires capture events to the three remote services and the speaker.
type Dialog struct {
	stt    STTProvider
	llm    LLMProvider
	tts    TTSProvider
	mic    MicControl
	player SpeechPlayer
	cfg    Config
	log    logrus.FieldLogger

	history *History
	busy    atomic.Bool
	wg      sync.WaitGroup
}

// New creates the orchestrator.
func New(stt STTProvider, llm LLMProvider, tts TTSProvider, mic MicControl, player SpeechPlayer, cfg Config, log logrus.FieldLogger) *Dialog {
	return &Dialog{
		stt:     stt,
		llm:     llm,
		tts:     tts,
		mic:     mic,
		player:  player,
		cfg:     cfg,
		log:     log,
		history: NewHistory(),
	}
}

// History exposes the transcript, mainly so callers can Reset it.
func (d *Dialog) History() *History {
	return d.history
}

// Run consumes capture events until the channel closes. Heavy work is
// dispatched to worker goroutines so the capture loop is never blocked.
func (d *Dialog) Run(ctx context.Context, events <-chan capture.Event) {
	for ev := range events {
		switch ev.Kind {
		case capture.EventWakeWord:
			d.wg.Add(1)
			go d.handleWakeWord(ctx)

		case capture.EventUtterance:
			// At most one pipeline runs at a time; an utterance arriving
			// while one is in flight is dropped.
			if !d.busy.CompareAndSwap(false, true) {
				d.log.Debug("pipeline busy; utterance dropped")
				continue
			}
			wav := ev.WAV
			d.wg.Add(1)
			go d.pipeline(ctx, wav)

		case capture.EventListenTimeout:
			d.log.Debug("listen window expired without an utterance")
		}
	}
	d.wg.Wait()
}

// handleWakeWord plays the acknowledgement and the "speak now" cue, then
// resumes the mic into LISTENING so the command is captured. When no ack
// phrase is configured the capture loop is already LISTENING and nothing
// needs to happen here.
func (d *Dialog) handleWakeWord(ctx context.Context) {
	defer d.wg.Done()

	if d.cfg.AckPhrase == "" {
		return
	}

	if d.cfg.MuteDuringPlayback {
		d.mic.Mute()
		defer d.mic.ResumeListening()
	}

	d.log.Info("playing wake word acknowledgement …")
	ackCtx, cancel := context.WithTimeout(ctx, d.cfg.AckTimeout)
	defer cancel()

	wav, err := d.tts.Synthesize(ackCtx, d.cfg.AckPhrase)
	if err != nil || len(wav) == 0 {
		d.log.Debugf("ack TTS unavailable (%v) — playing beep", err)
		wav = ackFallbackTone()
	}
	if err := d.player.Play(wav); err != nil {
		d.log.Warnf("ack playback failed: %v", err)
	}
	if err := d.player.Play(promptTone()); err != nil {
		d.log.Warnf("prompt beep failed: %v", err)
	}
}

// pipeline runs one utterance through STT → chat → TTS → speaker.
func (d *Dialog) pipeline(ctx context.Context, wav []byte) {
	defer d.wg.Done()
	defer d.busy.Store(false)

	d.log.Info("ASR: transcribing …")
	text, err := d.stt.Transcribe(ctx, wav)
	if err != nil {
		d.log.Warnf("ASR failed: %v", err)
		d.apologize(ctx)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		d.log.Info("ASR: empty result")
		d.apologize(ctx)
		return
	}
	d.log.Infof("user said: %s", text)

	reply, err := d.chat(ctx, text)
	if err != nil {
		d.log.Warnf("LLM failed: %v", err)
		d.apologize(ctx)
		return
	}
	d.log.Infof("assistant: %s", reply)

	spoken := CleanForSpeech(reply)
	if spoken == "" {
		d.log.Debug("reply empty after cleaning; nothing to speak")
		return
	}

	if err := d.speak(ctx, spoken); err != nil {
		d.log.Warnf("TTS failed: %v", err)
		d.apologize(ctx)
	}
}

// chat sends the system prompt, the transcript so far and the new user text.
// The user/assistant pair is committed to history only on success, so a
// failed exchange never mutates the transcript.
func (d *Dialog) chat(ctx context.Context, userText string) (string, error) {
	messages := make([]Message, 0, d.history.Len()+2)
	if d.cfg.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: d.cfg.SystemPrompt})
	}
	messages = append(messages, d.history.Snapshot()...)
	messages = append(messages, Message{Role: "user", Content: userText})

	reply, err := d.llm.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyReply
	}

	d.history.AddTurn(userText, reply)
	return reply, nil
}

// speak streams synthesized audio to the player inside the mute bracket and
// closes with the done beep. The mic is always resumed, even on failure.
func (d *Dialog) speak(ctx context.Context, text string) error {
	if d.cfg.MuteDuringPlayback {
		d.mic.Mute()
		defer func() {
			if d.cfg.ConversationMode {
				d.mic.ResumeConversation()
			} else {
				d.mic.Unmute()
			}
		}()
	}

	chunks := make(chan []byte, 16)
	playDone := make(chan struct{})
	synthErr := make(chan error, 1)

	go func() {
		defer close(chunks)
		synthErr <- d.tts.StreamSynthesize(ctx, text, func(chunk []byte) error {
			select {
			case chunks <- chunk:
				return nil
			case <-playDone:
				return errors.New("playback aborted")
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	playErr := d.player.PlayStream(ctx, chunks)
	close(playDone)

	serr := <-synthErr
	if playErr != nil {
		return playErr
	}
	if serr != nil {
		return serr
	}

	if err := d.player.Play(doneTone()); err != nil {
		d.log.Warnf("done beep failed: %v", err)
	}
	return nil
}

// apologize speaks the error phrase, falling back to a beep when TTS itself
// is down. Muted around playback like every other output.
func (d *Dialog) apologize(ctx context.Context) {
	if d.cfg.MuteDuringPlayback {
		d.mic.Mute()
		defer d.mic.Unmute()
	}

	actx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	wav, err := d.tts.Synthesize(actx, apologyPhrase)
	if err != nil || len(wav) == 0 {
		wav = apologyTone()
	}
	if err := d.player.Play(wav); err != nil {
		d.log.Warnf("apology playback failed: %v", err)
	}
}
