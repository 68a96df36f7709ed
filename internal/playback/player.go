package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/skypro1111/narration-engine/internal/engine"
	"github.com/skypro1111/narration-engine/internal/metrics"
	"github.com/skypro1111/narration-engine/internal/token"
)

// DefaultFade is the linear gain ramp applied at both ends of every segment
const DefaultFade = 0.05

// ErrInvalidOffset is returned by Play for negative or non-finite start times
var ErrInvalidOffset = errors.New("invalid playback offset")

// Config holds player settings
type Config struct {
	Fade float64 // seconds
}

// Player schedules a token timeline on an engine and tracks playback state.
// All transitions are serialized; the player never blocks on audio.
type Player struct {
	engine  engine.Engine
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	state   State
	total   float64
	handles map[int]engine.Handle

	subscribers map[int]chan State
	nextSubID   int

	mu sync.Mutex
}

// NewPlayer creates a stopped player bound to e
func NewPlayer(e engine.Engine, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Player {
	if cfg.Fade < 0 {
		cfg.Fade = 0
	}
	return &Player{
		engine:      e,
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		handles:     make(map[int]engine.Handle),
		subscribers: make(map[int]chan State),
	}
}

// Play stops whatever is scheduled and starts the timeline at startTime
// seconds. Starting at or past the end leaves the player STOPPED.
func (p *Player) Play(tokens token.Sequence, startTime float64) error {
	if math.IsNaN(startTime) || math.IsInf(startTime, 0) || startTime < 0 {
		return fmt.Errorf("%w: %f", ErrInvalidOffset, startTime)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopSources()

	total := tokens.Total()
	if startTime >= total {
		p.logger.Debug("Play requested at or past end of timeline",
			"start_s", startTime,
			"total_s", total)
		p.setState(State{Status: StatusStopped})
		return nil
	}

	now := p.engine.Now()
	segments, skipped := Schedule(tokens, startTime)

	for _, seg := range segments {
		h, err := p.engine.Schedule(engine.Voice{
			Source:   seg.Source,
			When:     now + seg.Delay,
			Offset:   seg.Offset,
			Duration: seg.Duration,
			Fade:     p.cfg.Fade,
		})
		if err != nil {
			// Segments too short for the engine are treated like degenerate ones
			p.logger.Warn("Skipping unplayable segment",
				"token_idx", seg.Idx,
				"duration_s", seg.Duration,
				"error", err)
			skipped++
			continue
		}
		p.handles[seg.Idx] = h
	}

	if skipped > 0 {
		p.logger.Warn("Skipped degenerate audio segments", "count", skipped)
	}
	p.metrics.RecordSegmentsScheduled(len(p.handles), skipped)

	p.total = total
	p.setState(State{
		Status:          StatusPlaying,
		Offset:          startTime,
		EngineStartTime: now,
	})

	p.logger.Debug("Playback started",
		"start_s", startTime,
		"engine_time", now,
		"segments", len(p.handles))
	return nil
}

// Pause halts playback and remembers the position. Pausing at or past the
// end of the timeline stops instead. Pause is a no-op unless PLAYING.
func (p *Player) Pause(tokens token.Sequence) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Status != StatusPlaying {
		return
	}

	position := p.position()
	p.stopSources()

	if position >= tokens.Total() {
		p.setState(State{Status: StatusStopped})
		return
	}
	p.setState(State{Status: StatusPaused, Offset: position})
}

// Stop halts playback and resets the position
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopSources()
	if p.state.Status != StatusStopped || p.state.Offset != 0 {
		p.setState(State{Status: StatusStopped})
	}
}

// TogglePause pauses while PLAYING and otherwise plays from the stored offset
func (p *Player) TogglePause(tokens token.Sequence) error {
	p.mu.Lock()
	current := p.state
	p.mu.Unlock()

	if current.Status == StatusPlaying {
		p.Pause(tokens)
		return nil
	}
	return p.Play(tokens, current.Offset)
}

// CurrentTime returns the timeline position while PLAYING. ok is false in
// any other state.
func (p *Player) CurrentTime() (seconds float64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Status != StatusPlaying {
		return 0, false
	}
	return min(p.position(), p.total), true
}

// Refresh moves a PLAYING player whose clock has passed the end of the
// timeline to STOPPED and returns the resulting state.
func (p *Player) Refresh() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Status == StatusPlaying && p.position() >= p.total {
		p.stopSources()
		p.setState(State{Status: StatusStopped})
	}
	return p.state
}

// State returns the current state
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Subscribe returns a channel receiving every new state. Slow readers only
// see the latest state. The returned function unsubscribes and closes the
// channel.
func (p *Player) Subscribe() (<-chan State, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan State, 1)
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = ch
	ch <- p.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subscribers, id)
			close(ch)
		})
	}
}

// position must be called with the lock held and only while PLAYING
func (p *Player) position() float64 {
	return p.engine.Now() - p.state.EngineStartTime + p.state.Offset
}

// stopSources must be called with the lock held
func (p *Player) stopSources() {
	for idx, h := range p.handles {
		h.Stop()
		delete(p.handles, idx)
	}
}

// setState must be called with the lock held
func (p *Player) setState(s State) {
	p.state = s
	p.metrics.RecordPlaybackTransition(s.Status.String())

	for _, ch := range p.subscribers {
		// Replace a stale undelivered state
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
