// Package audio wraps the host sound system via malgo: a microphone reader
// delivering fixed-size 16 kHz mono frames, a speaker player for WAV and
// streamed PCM, and the WAV/beep/gain helpers shared by both.
package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

const (
	// MicSampleRate is fixed: the VAD and the wake-word engines are only
	// defined at 16 kHz.
	MicSampleRate = 16000
	MicChannels   = 1

	// FrameMs is the capture granularity; 30 ms is the largest frame the
	// VAD accepts.
	FrameMs      = 30
	FrameSamples = MicSampleRate * FrameMs / 1000 // 480
	FrameBytes   = FrameSamples * 2               // 960
)

// Microphone owns the capture device and re-chunks whatever the driver
// delivers into exact 480-sample frames on the Frames channel.
type Microphone struct {
	log         logrus.FieldLogger
	deviceIndex int

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	frames chan []byte
	rem    []byte // partial frame carried between device callbacks

	drops    atomic.Int64
	stopOnce sync.Once
}

// NewMicrophone prepares a capture context. deviceIndex -1 selects the
// system default input.
func NewMicrophone(deviceIndex int, log logrus.FieldLogger) (*Microphone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	return &Microphone{
		log:         log,
		deviceIndex: deviceIndex,
		ctx:         ctx,
		frames:      make(chan []byte, 64),
		rem:         make([]byte, 0, FrameBytes*2),
	}, nil
}

// Start opens the capture device and begins delivering frames.
func (m *Microphone) Start() error {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = MicChannels
	cfg.SampleRate = MicSampleRate
	cfg.PeriodSizeInFrames = FrameSamples
	cfg.Alsa.NoMMap = 1

	id, err := selectDevice(m.ctx, malgo.Capture, m.deviceIndex)
	if err != nil {
		return err
	}
	if id != nil {
		cfg.Capture.DeviceID = id
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) == 0 {
				return
			}
			m.push(input)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("failed to open capture device: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		m.device = nil
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	m.log.Infof("microphone capture started (rate=%d, frame=%d samples)", MicSampleRate, FrameSamples)
	return nil
}

// push runs on the audio thread: accumulate bytes, hand off whole frames.
// The channel send never blocks; overflow frames are counted and dropped.
func (m *Microphone) push(input []byte) {
	m.rem = append(m.rem, input...)
	for len(m.rem) >= FrameBytes {
		frame := make([]byte, FrameBytes)
		copy(frame, m.rem[:FrameBytes])
		n := copy(m.rem, m.rem[FrameBytes:])
		m.rem = m.rem[:n]

		select {
		case m.frames <- frame:
		default:
			if count := m.drops.Add(1); count%100 == 1 {
				m.log.Warnf("microphone frame buffer full, dropped %d frames", count)
			}
		}
	}
}

// Frames is the stream of 960-byte capture frames. It is closed by Stop.
func (m *Microphone) Frames() <-chan []byte {
	return m.frames
}

// Stop tears down the device and closes the frame channel.
func (m *Microphone) Stop() {
	m.stopOnce.Do(func() {
		if m.device != nil {
			m.device.Stop()
			m.device.Uninit()
			m.device = nil
		}
		if m.ctx != nil {
			_ = m.ctx.Uninit()
			m.ctx.Free()
			m.ctx = nil
		}
		close(m.frames)
		m.log.Info("microphone capture stopped")
	})
}
