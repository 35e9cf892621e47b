package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/auris-ai/auris-agent/pkg/audio"
	"github.com/auris-ai/auris-agent/pkg/capture"
	"github.com/auris-ai/auris-agent/pkg/config"
	"github.com/auris-ai/auris-agent/pkg/dialog"
	llmProvider "github.com/auris-ai/auris-agent/pkg/providers/llm"
	sttProvider "github.com/auris-ai/auris-agent/pkg/providers/stt"
	ttsProvider "github.com/auris-ai/auris-agent/pkg/providers/tts"
	"github.com/auris-ai/auris-agent/pkg/vad"
	"github.com/auris-ai/auris-agent/pkg/wakeword"
)

// captureJoinBudget bounds how long shutdown waits for the capture loop.
const captureJoinBudget = 3 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, using system environment variables")
	}

	cfg := config.Load()
	log := newLogger(cfg)

	log.Info("voice assistant starting …")
	dialog.DetectAEC(log)

	// Voice activity detection.
	speech, err := vad.New(cfg.VADAggressiveness, audio.MicSampleRate, audio.FrameSamples)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer speech.Close()

	// Wake word engine.
	var detector wakeword.Detector
	switch cfg.WakeWordEngine {
	case "porcupine":
		engine, err := wakeword.NewPorcupineEngine(wakeword.PorcupineConfig{
			AccessKey:   cfg.PorcupineAccessKey,
			Keyword:     cfg.PorcupineKeyword,
			KeywordPath: cfg.PorcupineKeywordPath,
			Sensitivity: float32(cfg.PorcupineSensitivity),
		}, log)
		if err != nil {
			log.Fatalf("startup: %v", err)
		}
		defer engine.Close()
		detector = engine

	case "openwakeword":
		fallthrough
	default:
		if cfg.WakeWordModelPath == "" {
			log.Fatal("startup: WAKE_WORD_MODEL_PATH is required for the openwakeword engine")
		}
		engine, err := wakeword.NewOpenWakeWordEngine(wakeword.OpenWakeWordConfig{
			WakewordModel:  cfg.WakeWordModelPath,
			MelspecModel:   cfg.OWWMelspecModel,
			EmbeddingModel: cfg.OWWEmbeddingModel,
			OnnxLib:        cfg.OWWOnnxLib,
			Threshold:      cfg.WakeWordThreshold,
		}, log)
		if err != nil {
			log.Fatalf("startup: %v", err)
		}
		defer engine.Close()
		detector = engine
	}

	// Audio I/O.
	mic, err := audio.NewMicrophone(cfg.MicDeviceIndex, log)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	player := audio.NewPlayer(cfg.SpkDeviceIndex, cfg.TTSVolumeGain, log)

	// Remote services.
	stt := sttProvider.NewClient(cfg.ASRBaseURL, cfg.ASRTimeout)
	llm := llmProvider.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMMaxTokens, cfg.LLMTimeout)

	var tts dialog.TTSProvider
	switch cfg.TTSTransport {
	case "ws":
		if cfg.TTSWSHost == "" {
			log.Fatal("startup: TTS_WS_HOST is required when TTS_TRANSPORT=ws")
		}
		ws := ttsProvider.NewWSClient(cfg.TTSWSHost, cfg.TTSAPIKey, cfg.TTSVoice)
		defer ws.Close()
		tts = ws
	default:
		tts = ttsProvider.NewHTTPClient(cfg.TTSBaseURL, cfg.TTSVoice, cfg.TTSTimeout)
	}

	log.Infof("configured: STT=%s | LLM=%s | TTS=%s | wake=%s", stt.Name(), llm.Name(), tts.Name(), cfg.WakeWordEngine)

	// Capture state machine and orchestrator.
	machine := capture.New(mic.Frames(), detector, speech, capture.Params{
		SilenceMs:             cfg.VADSilenceMs,
		MinSpeechMs:           cfg.VADMinSpeechMs,
		WakeListenTimeoutMs:   cfg.WakeListenTimeoutMs,
		ConversationTimeoutMs: cfg.ConversationTimeoutMs,
	}, log)

	dlg := dialog.New(stt, llm, tts, machine, player, dialog.Config{
		SystemPrompt:       cfg.LLMSystemPrompt,
		AckPhrase:          cfg.WakeWordAckPhrase,
		AckTimeout:         3 * time.Second,
		MuteDuringPlayback: cfg.MicMuteDuringPlayback,
		ConversationMode:   cfg.ConversationMode,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mic.Start(); err != nil {
		log.Fatalf("startup: %v", err)
	}

	captureDone := make(chan struct{})
	go func() {
		machine.Run()
		close(captureDone)
	}()

	dialogDone := make(chan struct{})
	go func() {
		dlg.Run(ctx, machine.Events())
		close(dialogDone)
	}()

	log.Infof("listening for wake word (VAD aggressiveness=%d) — press Ctrl-C to stop", cfg.VADAggressiveness)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Infof("received signal %s, shutting down …", s)

	// Stopping the mic closes the frame channel, which winds down the
	// capture loop and, through the event channel, the orchestrator.
	mic.Stop()
	select {
	case <-captureDone:
	case <-time.After(captureJoinBudget):
		log.Warn("capture loop did not stop in time")
	}

	cancel()
	select {
	case <-dialogDone:
	case <-time.After(5 * time.Second):
		log.Warn("pipeline workers did not finish in time")
	}

	log.Info("voice assistant stopped")
}

// newLogger builds the process logger: leveled stderr output, optionally
// mirrored to LOG_FILE. An unwritable log file downgrades to stderr only.
func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Warnf("cannot open log file %s: %v", cfg.LogFile, err)
		} else {
			log.SetOutput(io.MultiWriter(os.Stderr, f))
		}
	}
	return log
}
