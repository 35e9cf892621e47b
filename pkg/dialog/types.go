package dialog

import (
	"context"
	"errors"
)

// Message is one chat turn in the OpenAI-compatible wire shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// STTProvider transcribes a WAV utterance.
type STTProvider interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
	Name() string
}

// LLMProvider completes a chat exchange.
type LLMProvider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// TTSProvider synthesizes speech, either as a complete WAV clip or as a
// stream of raw 44.1 kHz mono s16 PCM chunks.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	StreamSynthesize(ctx context.Context, text string, onChunk func([]byte) error) error
	Name() string
}

// MicControl is the mute/resume protocol the orchestrator applies around
// every playback so the assistant never hears itself.
type MicControl interface {
	Mute()
	Unmute()
	ResumeListening()
	ResumeConversation()
}

// SpeechPlayer is the playback engine surface the orchestrator drives.
type SpeechPlayer interface {
	Play(wav []byte) error
	PlayStream(ctx context.Context, chunks <-chan []byte) error
}

var (
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	ErrEmptyReply = errors.New("language model returned empty content")

	ErrTTSFailed = errors.New("text-to-speech synthesis failed")
)
