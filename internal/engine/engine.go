package engine

import (
	"errors"

	"github.com/skypro1111/narration-engine/internal/audio"
)

// ErrInvalidVoice is returned by Schedule for voices that cannot play
var ErrInvalidVoice = errors.New("invalid voice")

// Voice is a single scheduled playback of a source range
type Voice struct {
	Source   *audio.Buffer
	When     float64 // engine seconds; past times start immediately
	Offset   float64 // seconds into Source
	Duration float64 // seconds of Source to play
	Fade     float64 // linear ramp length at each end, seconds
}

// Handle cancels a scheduled voice. Stop may be called any number of times.
type Handle interface {
	Stop()
}

// Engine is the clock and scheduler used by the player
type Engine interface {
	// Now returns the monotonic engine clock in seconds
	Now() float64
	SampleRate() int
	// Schedule queues v and returns without blocking
	Schedule(v Voice) (Handle, error)
}

// Sink pulls audio from a mixer in real time
type Sink interface {
	Start() error
	Close() error
}

// Output couples a mixer with the sink draining it
type Output struct {
	*Mixer
	sink Sink
}

// NewOutput starts s and returns the pair. A nil sink yields a mixer that
// only advances when Process is called.
func NewOutput(m *Mixer, s Sink) (*Output, error) {
	if s != nil {
		if err := s.Start(); err != nil {
			return nil, err
		}
	}
	return &Output{Mixer: m, sink: s}, nil
}

// Close stops every voice and releases the sink
func (o *Output) Close() error {
	o.Mixer.StopAll()
	if o.sink == nil {
		return nil
	}
	return o.sink.Close()
}
