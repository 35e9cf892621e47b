package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// StreamSampleRate is the fixed format of streamed TTS audio: raw 16-bit LE
// mono PCM at 44.1 kHz, no container.
const StreamSampleRate = 44100

// joinGrace is how long past a clip's nominal duration Play waits before
// abandoning the writer.
const joinGrace = 10 * time.Second

// stallLimit aborts a stream when the device makes no write progress for
// this long.
const stallLimit = 10 * time.Second

// ErrPlaybackStall is returned when streamed playback makes no device
// progress for stallLimit.
var ErrPlaybackStall = errors.New("playback stalled: no device write progress")

// Player drives the speaker. A single mutex serializes all playback so the
// device has exactly one writer at a time. Gain is applied to every sample;
// gain 1.0 is a bypass.
type Player struct {
	log         logrus.FieldLogger
	deviceIndex int
	gain        float64

	mu sync.Mutex // playback mutex: one writer at a time
}

// NewPlayer creates a speaker player. deviceIndex -1 selects the system
// default output.
func NewPlayer(deviceIndex int, gain float64, log logrus.FieldLogger) *Player {
	if gain <= 0 {
		gain = 1.0
	}
	return &Player{
		log:         log,
		deviceIndex: deviceIndex,
		gain:        gain,
	}
}

// Play decodes a WAV buffer and plays it at its declared rate and channel
// count, blocking until the clip finishes. If the device writer makes no
// progress past the clip duration plus a grace period, the writer is
// abandoned and Play returns.
func (p *Player) Play(wav []byte) error {
	pcm, format, err := DecodeWav(wav)
	if err != nil {
		return err
	}
	if format.BitDepth != 16 {
		return ErrUnsupportedFormat
	}
	pcm = ApplyGain(pcm, p.gain)

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize playback context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Alsa.NoMMap = 1

	id, err := selectDevice(ctx, malgo.Playback, p.deviceIndex)
	if err != nil {
		return err
	}
	if id != nil {
		cfg.Playback.DeviceID = id
	}

	var posMu sync.Mutex
	pos := 0
	done := make(chan struct{})
	var doneOnce sync.Once

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			posMu.Lock()
			n := copy(output, pcm[pos:])
			pos += n
			finished := pos >= len(pcm)
			posMu.Unlock()

			for i := n; i < len(output); i++ {
				output[i] = 0
			}
			if finished {
				doneOnce.Do(func() { close(done) })
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("failed to open playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	duration := time.Duration(len(pcm)) * time.Second /
		time.Duration(format.SampleRate*format.Channels*2)

	select {
	case <-done:
		// Let the device drain its last period before teardown.
		time.Sleep(50 * time.Millisecond)
	case <-time.After(duration + joinGrace):
		p.log.Warnf("playback did not finish within %s, abandoning writer", duration+joinGrace)
	}
	return nil
}

// PlayStream consumes raw 44.1 kHz mono s16 PCM chunks as they arrive and
// writes them to the device. The chunk source must close the channel when the
// stream ends. A watchdog aborts the stream when the device makes no write
// progress for stallLimit, returning ErrPlaybackStall.
func (p *Player) PlayStream(ctx context.Context, chunks <-chan []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize playback context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = StreamSampleRate
	cfg.Alsa.NoMMap = 1

	id, err := selectDevice(mctx, malgo.Playback, p.deviceIndex)
	if err != nil {
		return err
	}
	if id != nil {
		cfg.Playback.DeviceID = id
	}

	var bufMu sync.Mutex
	var buf []byte
	sourceDone := false
	lastProgress := time.Now()

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			bufMu.Lock()
			n := copy(output, buf)
			buf = buf[n:]
			if n > 0 {
				lastProgress = time.Now()
			}
			bufMu.Unlock()

			for i := n; i < len(output); i++ {
				output[i] = 0
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("failed to open playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				bufMu.Lock()
				sourceDone = true
				bufMu.Unlock()
				continue
			}
			chunk = ApplyGain(chunk, p.gain)
			bufMu.Lock()
			buf = append(buf, chunk...)
			bufMu.Unlock()

		case <-ticker.C:
			bufMu.Lock()
			drained := sourceDone && len(buf) == 0
			stalled := time.Since(lastProgress) > stallLimit
			bufMu.Unlock()

			if drained {
				// Let the device drain its last period before teardown.
				time.Sleep(50 * time.Millisecond)
				return nil
			}
			if stalled {
				p.log.Warnf("stream playback stalled for %s, aborting", stallLimit)
				return ErrPlaybackStall
			}
		}
	}
}
