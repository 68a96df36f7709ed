package vad

import (
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// RefinerConfig holds the boundary search parameters, all in seconds except
// the two ratios which are fractions of the peak envelope value.
type RefinerConfig struct {
	SearchPadding float64 // widening applied to both approximate edges
	SilenceRun    float64 // sustained quiet that counts as silence
	SpeechRatio   float64 // speech threshold relative to the window peak
	SilenceRatio  float64 // silence threshold relative to the window peak
	FallbackLead  float64 // subtracted from the approximate start when no speech is found
	FallbackTail  float64 // subtracted from the approximate end when no speech is found
}

// DefaultRefinerConfig returns the tuned defaults
func DefaultRefinerConfig() RefinerConfig {
	return RefinerConfig{
		SearchPadding: 0.5,
		SilenceRun:    0.1,
		SpeechRatio:   0.2,
		SilenceRatio:  0.03,
		FallbackLead:  0.5,
		FallbackTail:  0.25,
	}
}

// Validate checks the refiner parameters
func (c RefinerConfig) Validate() error {
	if c.SearchPadding < 0 {
		return fmt.Errorf("search padding cannot be negative, got %f", c.SearchPadding)
	}
	if c.SilenceRun <= 0 {
		return fmt.Errorf("silence run must be positive, got %f", c.SilenceRun)
	}
	if c.SpeechRatio <= 0 || c.SpeechRatio > 1 {
		return fmt.Errorf("speech ratio must be in (0, 1], got %f", c.SpeechRatio)
	}
	if c.SilenceRatio <= 0 || c.SilenceRatio >= c.SpeechRatio {
		return fmt.Errorf("silence ratio must be in (0, speech ratio), got %f", c.SilenceRatio)
	}
	return nil
}

// Boundary is a refined segment inside the source recording
type Boundary struct {
	Start    float64 `json:"start"`    // seconds into the source
	Duration float64 `json:"duration"` // may be zero or negative for degenerate input
	Fallback bool    `json:"fallback"` // no speech was found; heuristic offsets were used
}

// End returns the end of the segment in seconds
func (b Boundary) End() float64 {
	return b.Start + b.Duration
}

// Degenerate reports whether the segment has no playable extent
func (b Boundary) Degenerate() bool {
	return b.Duration <= 0
}

// RefinerStats represents refiner statistics
type RefinerStats struct {
	TotalSegments      uint64    `json:"total_segments"`
	FallbackSegments   uint64    `json:"fallback_segments"`
	DegenerateSegments uint64    `json:"degenerate_segments"`
	FallbackPercentage float64   `json:"fallback_percentage"`
	LastRefined        time.Time `json:"last_refined"`
}

// Refiner snaps approximate recognizer timestamps onto speech boundaries.
// Segments are independent, so Refine may be called concurrently.
type Refiner struct {
	cfg RefinerConfig

	totalSegments      uint64
	fallbackSegments   uint64
	degenerateSegments uint64
	lastRefined        time.Time

	mu sync.RWMutex
}

// NewRefiner creates a refiner after validating its configuration
func NewRefiner(cfg RefinerConfig) (*Refiner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Refiner{cfg: cfg}, nil
}

// Config returns the refiner parameters
func (r *Refiner) Config() RefinerConfig {
	return r.cfg
}

// Refine computes the speech boundary for one segment given its approximate
// start and end in milliseconds. The result errs towards including silence
// rather than cutting speech.
func (r *Refiner) Refine(startMs, endMs float64, env *Envelope) Boundary {
	b := r.refine(startMs/1000, endMs/1000, env)

	r.mu.Lock()
	r.totalSegments++
	if b.Fallback {
		r.fallbackSegments++
	}
	if b.Degenerate() {
		r.degenerateSegments++
	}
	r.lastRefined = time.Now()
	r.mu.Unlock()

	return b
}

func (r *Refiner) refine(approxStart, approxEnd float64, env *Envelope) Boundary {
	if env == nil || env.SampleRate <= 0 {
		return r.fallback(approxStart, approxEnd)
	}

	rate := float64(env.SampleRate)
	values := env.Values

	searchStart := max(0, int(math.Round((approxStart-r.cfg.SearchPadding)*rate)))
	searchEnd := min(len(values), int(math.Round((approxEnd+r.cfg.SearchPadding)*rate)))
	if searchStart >= searchEnd {
		return r.fallback(approxStart, approxEnd)
	}

	maxVolume := floats.Max(values[searchStart:searchEnd])
	if maxVolume <= 0 {
		return r.fallback(approxStart, approxEnd)
	}

	speech := r.cfg.SpeechRatio * maxVolume
	silence := r.cfg.SilenceRatio * maxVolume
	run := max(1, int(math.Round(r.cfg.SilenceRun*rate)))

	// Widen until true silence on each side; the recognizer may have cut speech short.
	lo := silenceLeft(values, searchStart-1, 0, silence, run)
	hi := silenceRight(values, searchEnd, len(values), silence, run)

	// Contract to the first loud sample from each edge.
	first := -1
	for i := lo; i < hi; i++ {
		if values[i] >= speech {
			first = i
			break
		}
	}
	if first < 0 {
		return r.fallback(approxStart, approxEnd)
	}

	last := first
	for i := hi - 1; i > first; i-- {
		if values[i] >= speech {
			last = i
			break
		}
	}

	// Relax outwards over slow ramps until the silence edge.
	start := silenceLeft(values, first-1, lo, silence, run)
	end := silenceRight(values, last+1, hi, silence, run)

	return Boundary{
		Start:    float64(start) / rate,
		Duration: float64(end-start) / rate,
	}
}

func (r *Refiner) fallback(approxStart, approxEnd float64) Boundary {
	start := max(0, approxStart-r.cfg.FallbackLead)
	end := approxEnd - r.cfg.FallbackTail
	return Boundary{
		Start:    start,
		Duration: end - start,
		Fallback: true,
	}
}

// silenceLeft walks down from 'from' to 'limit' and returns the index where
// 'run' consecutive samples at or below threshold complete, or limit.
func silenceLeft(values []float64, from, limit int, threshold float64, run int) int {
	count := 0
	for i := from; i >= limit; i-- {
		if values[i] > threshold {
			count = 0
			continue
		}
		count++
		if count >= run {
			return i
		}
	}
	return limit
}

// silenceRight walks up from 'from' to 'limit' (exclusive) and returns the
// exclusive end of the first quiet run of length 'run', or limit.
func silenceRight(values []float64, from, limit int, threshold float64, run int) int {
	count := 0
	for i := from; i < limit; i++ {
		if values[i] > threshold {
			count = 0
			continue
		}
		count++
		if count >= run {
			return i + 1
		}
	}
	return limit
}

// GetStats returns current refiner statistics
func (r *Refiner) GetStats() RefinerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fallbackPercentage := float64(0)
	if r.totalSegments > 0 {
		fallbackPercentage = float64(r.fallbackSegments) / float64(r.totalSegments) * 100
	}

	return RefinerStats{
		TotalSegments:      r.totalSegments,
		FallbackSegments:   r.fallbackSegments,
		DegenerateSegments: r.degenerateSegments,
		FallbackPercentage: fallbackPercentage,
		LastRefined:        r.lastRefined,
	}
}

// Reset clears the statistics
func (r *Refiner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalSegments = 0
	r.fallbackSegments = 0
	r.degenerateSegments = 0
	r.lastRefined = time.Time{}
}
