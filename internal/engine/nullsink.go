package engine

import (
	"context"
	"sync"
	"time"
)

// DefaultTick is the NullSink render period
const DefaultTick = 10 * time.Millisecond

// NullSink advances a mixer in real time and discards the audio. It keeps
// the engine clock moving on hosts without an output device.
type NullSink struct {
	mixer *Mixer
	tick  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewNullSink creates a sink rendering every tick
func NewNullSink(m *Mixer, tick time.Duration) *NullSink {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &NullSink{mixer: m, tick: tick}
}

// Start launches the render loop
func (s *NullSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *NullSink) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	rate := float64(s.mixer.SampleRate())
	began := time.Now()
	base := s.mixer.Frame()
	scratch := make([][]float32, s.mixer.Channels())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Render whatever wall time has elapsed so drift never accumulates
			due := base + int64(time.Since(began).Seconds()*rate)
			pending := due - s.mixer.Frame()
			if pending <= 0 {
				continue
			}
			for ch := range scratch {
				if int64(cap(scratch[ch])) < pending {
					scratch[ch] = make([]float32, pending)
				}
				scratch[ch] = scratch[ch][:pending]
			}
			s.mixer.Process(scratch)
		}
	}
}

// Close stops the render loop and waits for it to exit
func (s *NullSink) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	return nil
}
