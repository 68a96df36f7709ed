package document

import (
	"log/slog"
	"time"

	"github.com/skypro1111/narration-engine/internal/engine"
)

// OutputFactory opens the live output a document plays through
type OutputFactory func(sampleRate, channels int) (*engine.Output, error)

// DeviceOutputs plays every document through the default system device
func DeviceOutputs(logger *slog.Logger) OutputFactory {
	return func(sampleRate, channels int) (*engine.Output, error) {
		m, err := engine.NewMixer(sampleRate, channels)
		if err != nil {
			return nil, err
		}
		return engine.NewOutput(m, engine.NewDevice(m, logger))
	}
}

// NullOutputs advances every document's clock in real time without sound
func NullOutputs(tick time.Duration) OutputFactory {
	return func(sampleRate, channels int) (*engine.Output, error) {
		m, err := engine.NewMixer(sampleRate, channels)
		if err != nil {
			return nil, err
		}
		return engine.NewOutput(m, engine.NewNullSink(m, tick))
	}
}

// ManualOutputs returns outputs whose clock only moves when the mixer is
// processed by the caller.
func ManualOutputs() OutputFactory {
	return func(sampleRate, channels int) (*engine.Output, error) {
		m, err := engine.NewMixer(sampleRate, channels)
		if err != nil {
			return nil, err
		}
		return engine.NewOutput(m, nil)
	}
}
