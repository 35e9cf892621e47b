// Package config loads every runtime setting from the environment. All keys
// are optional; defaults match the production deployment. Secrets (API keys,
// the Porcupine access key) are validated where they are consumed.
package config

import "time"

const (
	defaultSystemPrompt = "You are a helpful voice assistant. Your responses will be spoken aloud via text-to-speech. " +
		"Keep answers to 1-3 short sentences. No bullet points, no lists, no markdown, no emojis."
)

// Config is the full runtime configuration.
type Config struct {
	// Service roots.
	ASRBaseURL string
	TTSBaseURL string
	LLMBaseURL string

	// Chat parameters.
	LLMAPIKey       string
	LLMModel        string
	LLMMaxTokens    int
	LLMSystemPrompt string

	// TTS parameters.
	TTSVoice     string
	TTSTransport string // "http" or "ws"
	TTSWSHost    string // host for the ws transport
	TTSAPIKey    string // api key for the ws transport

	// Audio devices; -1 selects the system default.
	MicDeviceIndex int
	SpkDeviceIndex int

	// VAD tuning.
	VADAggressiveness int
	VADSilenceMs      int
	VADMinSpeechMs    int

	// Wake word. Engine is "openwakeword" or "porcupine".
	WakeWordEngine string

	WakeWordModelPath  string // openwakeword keyword model (.onnx)
	OWWMelspecModel    string
	OWWEmbeddingModel  string
	OWWOnnxLib         string
	WakeWordThreshold  float64

	PorcupineAccessKey   string
	PorcupineKeyword     string
	PorcupineKeywordPath string
	PorcupineSensitivity float64

	// Dialog timing and behavior.
	WakeListenTimeoutMs   int
	ConversationTimeoutMs int
	WakeWordAckPhrase     string
	MicMuteDuringPlayback bool
	ConversationMode      bool

	// Playback.
	TTSVolumeGain float64

	// HTTP timeouts.
	ASRTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration

	// Logging.
	LogFile  string
	LogLevel string
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		ASRBaseURL: getEnv("ASR_BASE_URL", "http://localhost:8005"),
		TTSBaseURL: getEnv("TTS_BASE_URL", "http://localhost:8006"),
		LLMBaseURL: getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),

		LLMAPIKey:       getEnv("LLM_API_KEY", "nokey"),
		LLMModel:        getEnv("LLM_MODEL", "llama3"),
		LLMMaxTokens:    getEnvInt("LLM_MAX_TOKENS", 150),
		LLMSystemPrompt: getEnv("LLM_SYSTEM_PROMPT", defaultSystemPrompt),

		TTSVoice:     getEnv("TTS_VOICE", "default"),
		TTSTransport: getEnv("TTS_TRANSPORT", "http"),
		TTSWSHost:    getEnv("TTS_WS_HOST", ""),
		TTSAPIKey:    getEnv("TTS_API_KEY", ""),

		MicDeviceIndex: getEnvInt("MIC_DEVICE_INDEX", -1),
		SpkDeviceIndex: getEnvInt("SPK_DEVICE_INDEX", -1),

		VADAggressiveness: getEnvInt("VAD_AGGRESSIVENESS", 3),
		VADSilenceMs:      getEnvInt("VAD_SILENCE_MS", 1200),
		VADMinSpeechMs:    getEnvInt("VAD_MIN_SPEECH_MS", 2000),

		WakeWordEngine: getEnv("WAKE_WORD_ENGINE", "openwakeword"),

		WakeWordModelPath: getEnv("WAKE_WORD_MODEL_PATH", ""),
		OWWMelspecModel:   getEnv("OWW_MELSPEC_MODEL_PATH", "models/melspectrogram.onnx"),
		OWWEmbeddingModel: getEnv("OWW_EMBEDDING_MODEL_PATH", "models/embedding_model.onnx"),
		OWWOnnxLib:        getEnv("ONNX_LIB_PATH", ""),
		WakeWordThreshold: getEnvFloat("WAKE_WORD_THRESHOLD", 0.5),

		PorcupineAccessKey:   getEnv("PORCUPINE_ACCESS_KEY", ""),
		PorcupineKeyword:     getEnv("PORCUPINE_KEYWORD", "jarvis"),
		PorcupineKeywordPath: getEnv("PORCUPINE_KEYWORD_PATH", ""),
		PorcupineSensitivity: getEnvFloat("PORCUPINE_SENSITIVITY", 0.5),

		WakeListenTimeoutMs:   getEnvInt("WAKE_LISTEN_TIMEOUT_MS", 10000),
		ConversationTimeoutMs: getEnvInt("CONVERSATION_TIMEOUT_MS", 300000),
		WakeWordAckPhrase:     getEnv("WAKE_WORD_ACK_PHRASE", "Yes sir"),
		MicMuteDuringPlayback: getEnvBool("MIC_MUTE_DURING_PLAYBACK", true),
		ConversationMode:      getEnvBool("CONVERSATION_MODE", false),

		TTSVolumeGain: getEnvFloat("TTS_VOLUME_GAIN", 1.0),

		ASRTimeout: time.Duration(getEnvInt("ASR_TIMEOUT", 30)) * time.Second,
		LLMTimeout: time.Duration(getEnvInt("LLM_TIMEOUT", 60)) * time.Second,
		TTSTimeout: time.Duration(getEnvInt("TTS_TIMEOUT", 60)) * time.Second,

		LogFile:  getEnv("LOG_FILE", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}
