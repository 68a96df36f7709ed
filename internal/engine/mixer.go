package engine

import (
	"fmt"
	"math"
	"sync"

	"github.com/skypro1111/narration-engine/internal/audio"
)

// Mixer is a software Engine. Its clock advances only as Process renders
// frames, so a Mixer driven by a sink runs in real time and a Mixer driven
// by a loop runs as fast as the loop.
type Mixer struct {
	sampleRate int
	channels   int

	frame  int64
	nextID uint64
	voices map[uint64]*voice

	mu sync.Mutex
}

type voice struct {
	source *audio.Buffer
	start  int64 // engine frame
	offset int64 // source frame
	length int64
	fade   int64
}

// NewMixer creates a mixer producing the given number of output channels
func NewMixer(sampleRate, channels int) (*Mixer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	return &Mixer{
		sampleRate: sampleRate,
		channels:   channels,
		voices:     make(map[uint64]*voice),
	}, nil
}

// SampleRate returns the output sample rate
func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

// Channels returns the number of output channels
func (m *Mixer) Channels() int {
	return m.channels
}

// Now returns the engine clock in seconds
func (m *Mixer) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.frame) / float64(m.sampleRate)
}

// Frame returns the number of frames rendered so far
func (m *Mixer) Frame() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// Active returns the number of voices that have not finished or been stopped
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

func (m *Mixer) toFrames(seconds float64) int64 {
	return int64(math.Round(seconds * float64(m.sampleRate)))
}

// Schedule queues a voice. The source must share the mixer sample rate.
func (m *Mixer) Schedule(v Voice) (Handle, error) {
	switch {
	case v.Source == nil:
		return nil, fmt.Errorf("%w: no source", ErrInvalidVoice)
	case v.Source.SampleRate() != m.sampleRate:
		return nil, fmt.Errorf("%w: source rate %d does not match engine rate %d",
			ErrInvalidVoice, v.Source.SampleRate(), m.sampleRate)
	case !(v.Duration > 0):
		return nil, fmt.Errorf("%w: duration %f", ErrInvalidVoice, v.Duration)
	case v.Offset < 0 || math.IsNaN(v.Offset):
		return nil, fmt.Errorf("%w: offset %f", ErrInvalidVoice, v.Offset)
	case math.IsNaN(v.When) || math.IsInf(v.When, 0):
		return nil, fmt.Errorf("%w: start time %f", ErrInvalidVoice, v.When)
	}

	length := m.toFrames(v.Duration)
	if length <= 0 {
		return nil, fmt.Errorf("%w: duration %f is shorter than one frame", ErrInvalidVoice, v.Duration)
	}

	vc := &voice{
		source: v.Source,
		start:  m.toFrames(v.When),
		offset: m.toFrames(v.Offset),
		length: length,
		fade:   max(0, m.toFrames(v.Fade)),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if vc.start < m.frame {
		vc.start = m.frame
	}
	m.nextID++
	id := m.nextID
	m.voices[id] = vc

	return &handle{mixer: m, id: id}, nil
}

// StopAll cancels every scheduled voice
func (m *Mixer) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.voices)
}

func (m *Mixer) remove(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.voices, id)
}

// Process renders the next len(out[0]) frames into out, one slice per output
// channel, and advances the clock. Finished voices are dropped.
func (m *Mixer) Process(out [][]float32) {
	if len(out) == 0 {
		return
	}
	n := int64(len(out[0]))
	for _, ch := range out {
		clear(ch)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	blockStart := m.frame
	blockEnd := blockStart + n

	for id, v := range m.voices {
		end := v.start + v.length
		if end <= blockStart {
			delete(m.voices, id)
			continue
		}
		if v.start >= blockEnd {
			continue
		}

		from := max(v.start, blockStart)
		to := min(end, blockEnd)
		for f := from; f < to; f++ {
			local := f - v.start
			src := v.offset + local
			if src >= int64(v.source.Len()) {
				break
			}
			g := v.gain(local)
			if g == 0 {
				continue
			}
			v.mix(out, int(f-blockStart), int(src), g)
		}

		if end <= blockEnd {
			delete(m.voices, id)
		}
	}

	m.frame = blockEnd
}

// gain is the fade envelope at a local frame: a linear ramp up from 0 over
// the first fade frames and down to 0 over the last, taking the lower of the
// two where they overlap.
func (v *voice) gain(local int64) float32 {
	if v.fade <= 0 {
		return 1
	}
	in := float64(local) / float64(v.fade)
	out := float64(v.length-local) / float64(v.fade)
	return float32(min(1, in, out))
}

func (v *voice) mix(out [][]float32, at, src int, g float32) {
	nch := v.source.NumChannels()
	for ch := range out {
		switch {
		case nch == 1:
			out[ch][at] += v.source.Channel(0)[src] * g
		case ch < nch:
			out[ch][at] += v.source.Channel(ch)[src] * g
		}
	}
}

type handle struct {
	mixer *Mixer
	id    uint64
	once  sync.Once
}

func (h *handle) Stop() {
	h.once.Do(func() {
		h.mixer.remove(h.id)
	})
}
