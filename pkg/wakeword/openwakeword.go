package wakeword

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// Constants of the openWakeWord ONNX pipeline:
// melspectrogram → embedding → wakeword.
const (
	owwChunkSamples = 1280 // 80 ms @ 16 kHz per pipeline step
	owwMelWindow    = 76   // mel frames per embedding window
	owwMelStep      = 8    // mel frames between embedding windows
	owwEmbeddingDim = 96
	owwEmbedFrames  = 16 // embedding frames per wakeword score
	owwMelBins      = 32
	owwMelPerChunk  = 5 // 1280 samples → 5 mel frames

	// owwScoreWindow is the trailing score window; detection triggers on the
	// max within it, which absorbs frame-alignment variance around the peak.
	owwScoreWindow = 5
)

// OpenWakeWordConfig holds model paths and tuning for the open engine.
type OpenWakeWordConfig struct {
	WakewordModel  string // e.g. "models/hey_jarvis.onnx"
	MelspecModel   string // e.g. "models/melspectrogram.onnx"
	EmbeddingModel string // e.g. "models/embedding_model.onnx"
	OnnxLib        string // e.g. "lib/libonnxruntime.so"

	Threshold float64       // windowed max score ≥ threshold → detected
	Cooldown  time.Duration // min time between detections
}

func (c *OpenWakeWordConfig) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 1500 * time.Millisecond
	}
}

// OpenWakeWordEngine is the variable-frame variant: it accepts the native
// 480-sample mic frame (or any size), buffering internally until a full
// 80 ms pipeline chunk is available.
//
// After a mute the feature buffers hold stale context; Reset flushes every
// pipeline buffer, which is equivalent to constructing the engine fresh.
type OpenWakeWordEngine struct {
	cfg OpenWakeWordConfig
	log logrus.FieldLogger

	melspecIn, melspecOut *ort.Tensor[float32]
	embedIn, embedOut     *ort.Tensor[float32]
	wwIn, wwOut           *ort.Tensor[float32]

	melspecSess, embedSess, wwSess *ort.AdvancedSession

	audioRem    []int16
	melBuffer   []float32
	embedBuffer []float32
	scores      []float32
	scoreIdx    int
	lastDetect  time.Time

	closed bool
}

// NewOpenWakeWordEngine loads the three ONNX models and prepares the
// inference pipeline.
func NewOpenWakeWordEngine(cfg OpenWakeWordConfig, log logrus.FieldLogger) (*OpenWakeWordEngine, error) {
	cfg.defaults()
	if cfg.WakewordModel == "" || cfg.MelspecModel == "" || cfg.EmbeddingModel == "" {
		return nil, errors.New("openwakeword requires wakeword, melspectrogram and embedding model paths")
	}

	if cfg.OnnxLib != "" {
		ort.SetSharedLibraryPath(cfg.OnnxLib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	e := &OpenWakeWordEngine{
		cfg:         cfg,
		log:         log,
		audioRem:    make([]int16, 0, owwChunkSamples*2),
		melBuffer:   make([]float32, 0, 300*owwMelBins),
		embedBuffer: make([]float32, owwEmbedFrames*owwEmbeddingDim),
		scores:      make([]float32, owwScoreWindow),
	}

	var err error
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if e.melspecIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, owwChunkSamples)); err != nil {
		return nil, err
	}
	if e.melspecOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, owwMelPerChunk, owwMelBins)); err != nil {
		return nil, err
	}
	if e.melspecSess, err = newSession(cfg.MelspecModel, e.melspecIn, e.melspecOut); err != nil {
		return nil, err
	}

	if e.embedIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, owwMelWindow, owwMelBins, 1)); err != nil {
		return nil, err
	}
	if e.embedOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, 1, owwEmbeddingDim)); err != nil {
		return nil, err
	}
	if e.embedSess, err = newSession(cfg.EmbeddingModel, e.embedIn, e.embedOut); err != nil {
		return nil, err
	}

	if e.wwIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, owwEmbedFrames, owwEmbeddingDim)); err != nil {
		return nil, err
	}
	if e.wwOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		return nil, err
	}
	if e.wwSess, err = newSession(cfg.WakewordModel, e.wwIn, e.wwOut); err != nil {
		return nil, err
	}

	log.Infof("openwakeword engine loaded: %s (threshold=%.2f)", cfg.WakewordModel, cfg.Threshold)
	return e, nil
}

func newSession(modelPath string, in, out *ort.Tensor[float32]) (*ort.AdvancedSession, error) {
	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", modelPath, err)
	}
	sess, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{in}, []ort.Value{out},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", modelPath, err)
	}
	return sess, nil
}

// Detect feeds a frame of any size and reports whether the wake phrase
// scored at or above threshold.
func (e *OpenWakeWordEngine) Detect(frame []int16) (bool, error) {
	e.audioRem = append(e.audioRem, frame...)

	detected := false
	for len(e.audioRem) >= owwChunkSamples {
		chunk := make([]int16, owwChunkSamples)
		copy(chunk, e.audioRem[:owwChunkSamples])
		n := copy(e.audioRem, e.audioRem[owwChunkSamples:])
		e.audioRem = e.audioRem[:n]

		hit, err := e.processChunk(chunk)
		if err != nil {
			return false, err
		}
		if hit {
			detected = true
		}
	}
	return detected, nil
}

func (e *OpenWakeWordEngine) processChunk(chunk []int16) (bool, error) {
	// Step 1: melspectrogram.
	inData := e.melspecIn.GetData()
	for i, v := range chunk {
		inData[i] = float32(v)
	}
	if err := e.melspecSess.Run(); err != nil {
		return false, fmt.Errorf("melspectrogram inference failed: %w", err)
	}
	melData := e.melspecOut.GetData()
	for f := 0; f < owwMelPerChunk; f++ {
		for b := 0; b < owwMelBins; b++ {
			idx := f*owwMelBins + b
			if idx < len(melData) {
				e.melBuffer = append(e.melBuffer, melData[idx]/10.0+2.0)
			}
		}
	}

	// Step 2: embedding over a sliding mel window.
	totalMel := len(e.melBuffer) / owwMelBins
	newEmbed := false
	for totalMel >= owwMelWindow {
		eData := e.embedIn.GetData()
		copy(eData, e.melBuffer[:owwMelWindow*owwMelBins])
		if err := e.embedSess.Run(); err != nil {
			return false, fmt.Errorf("embedding inference failed: %w", err)
		}
		eOut := e.embedOut.GetData()

		// Slide the embedding window: shift left, insert at end.
		copy(e.embedBuffer, e.embedBuffer[owwEmbeddingDim:])
		copy(e.embedBuffer[(owwEmbedFrames-1)*owwEmbeddingDim:], eOut[:owwEmbeddingDim])
		newEmbed = true

		// Compact melBuffer to keep the backing array bounded.
		n := copy(e.melBuffer, e.melBuffer[owwMelStep*owwMelBins:])
		e.melBuffer = e.melBuffer[:n]
		totalMel = len(e.melBuffer) / owwMelBins
	}
	if totalMel > owwMelWindow {
		excess := (totalMel - owwMelWindow) * owwMelBins
		n := copy(e.melBuffer, e.melBuffer[excess:])
		e.melBuffer = e.melBuffer[:n]
	}

	if !newEmbed {
		return false, nil
	}

	// Step 3: wakeword scoring.
	copy(e.wwIn.GetData(), e.embedBuffer)
	if err := e.wwSess.Run(); err != nil {
		return false, fmt.Errorf("wakeword inference failed: %w", err)
	}
	score := e.wwOut.GetData()[0]

	e.scores[e.scoreIdx%owwScoreWindow] = score
	e.scoreIdx++

	var maxScore float32
	for _, s := range e.scores {
		if s > maxScore {
			maxScore = s
		}
	}
	if float64(maxScore) >= e.cfg.Threshold*0.1 {
		e.log.Debugf("wake word score=%.4f windowMax=%.4f (threshold=%.2f)", score, maxScore, e.cfg.Threshold)
	}

	now := time.Now()
	if float64(maxScore) >= e.cfg.Threshold && now.Sub(e.lastDetect) > e.cfg.Cooldown {
		e.log.Infof("wake word detected (score=%.4f, windowMax=%.4f)", score, maxScore)
		e.lastDetect = now
		// Clear the window so the same peak cannot re-trigger.
		for i := range e.scores {
			e.scores[i] = 0
		}
		return true, nil
	}
	return false, nil
}

// Reset flushes every pipeline buffer so stale mel frames and embeddings
// from before a mute cannot pollute scoring. Equivalent to a fresh engine.
func (e *OpenWakeWordEngine) Reset() error {
	e.audioRem = e.audioRem[:0]
	e.melBuffer = e.melBuffer[:0]
	for i := range e.embedBuffer {
		e.embedBuffer[i] = 0
	}
	for i := range e.scores {
		e.scores[i] = 0
	}
	e.scoreIdx = 0
	e.lastDetect = time.Time{}
	e.log.Debug("openwakeword pipeline buffers reset")
	return nil
}

// Close destroys the ONNX sessions and tensors.
func (e *OpenWakeWordEngine) Close() {
	if e.closed {
		return
	}
	e.closed = true

	for _, s := range []*ort.AdvancedSession{e.melspecSess, e.embedSess, e.wwSess} {
		if s != nil {
			s.Destroy()
		}
	}
	for _, t := range []*ort.Tensor[float32]{e.melspecIn, e.melspecOut, e.embedIn, e.embedOut, e.wwIn, e.wwOut} {
		if t != nil {
			t.Destroy()
		}
	}
	_ = ort.DestroyEnvironment()
}
