package engine

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// Device plays a mixer through the default system output
type Device struct {
	mixer  *Mixer
	logger *slog.Logger

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	scratch [][]float32
	mu      sync.Mutex
}

// NewDevice prepares a playback device for m. Nothing is opened until Start.
func NewDevice(m *Mixer, logger *slog.Logger) *Device {
	return &Device{
		mixer:   m,
		logger:  logger,
		scratch: make([][]float32, m.Channels()),
	}
}

// Start opens the output device and begins pulling frames
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(d.mixer.Channels())
	deviceConfig.SampleRate = uint32(d.mixer.SampleRate())
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onSendFrames,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to open playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	d.ctx = ctx
	d.device = device

	d.logger.Info("Playback device started",
		"sample_rate", d.mixer.SampleRate(),
		"channels", d.mixer.Channels())
	return nil
}

// onSendFrames runs on the audio thread and fills pOutputSample with
// interleaved float32 frames.
func (d *Device) onSendFrames(pOutputSample, _ []byte, framecount uint32) {
	frames := int(framecount)
	channels := len(d.scratch)
	if len(pOutputSample) < frames*channels*4 {
		return
	}

	for ch := range d.scratch {
		if cap(d.scratch[ch]) < frames {
			d.scratch[ch] = make([]float32, frames)
		}
		d.scratch[ch] = d.scratch[ch][:frames]
	}

	d.mixer.Process(d.scratch)

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			pos := (i*channels + ch) * 4
			binary.LittleEndian.PutUint32(pOutputSample[pos:], math.Float32bits(d.scratch[ch][i]))
		}
	}
}

// Close stops the device and frees the audio context
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return nil
	}

	var err error
	if stopErr := d.device.Stop(); stopErr != nil {
		err = fmt.Errorf("failed to stop playback device: %w", stopErr)
	}
	d.device.Uninit()
	d.device = nil

	if uninitErr := d.ctx.Uninit(); uninitErr != nil && err == nil {
		err = fmt.Errorf("failed to release audio context: %w", uninitErr)
	}
	d.ctx.Free()
	d.ctx = nil

	d.logger.Info("Playback device closed")
	return err
}
