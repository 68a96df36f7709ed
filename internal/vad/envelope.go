package vad

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/skypro1111/narration-engine/internal/audio"
)

// Speech band-pass parameters. Downstream thresholds are tuned to this exact
// pipeline, so changing them shifts every refined boundary.
const (
	DefaultCenterFrequency = 1650.0 // Hz, middle of the 300-3000 Hz band
	DefaultQ               = 0.351
	DefaultSmoothingWindow = 128 // samples
)

// EnvelopeConfig parameterizes envelope extraction
type EnvelopeConfig struct {
	CenterFrequency float64
	Q               float64
	SmoothingWindow int
}

// DefaultEnvelopeConfig returns the speech-band settings
func DefaultEnvelopeConfig() EnvelopeConfig {
	return EnvelopeConfig{
		CenterFrequency: DefaultCenterFrequency,
		Q:               DefaultQ,
		SmoothingWindow: DefaultSmoothingWindow,
	}
}

// Envelope is the instantaneous loudness of a recording: one non-negative
// value per input frame at the input sample rate.
type Envelope struct {
	Values     []float64
	SampleRate int
}

// Len returns the number of envelope samples
func (e *Envelope) Len() int {
	return len(e.Values)
}

// ExtractEnvelope mono-izes buf by summing its channels and runs Extract.
func ExtractEnvelope(buf *audio.Buffer, cfg EnvelopeConfig) *Envelope {
	return &Envelope{
		Values:     Extract(buf.Mixdown(), buf.SampleRate(), cfg),
		SampleRate: buf.SampleRate(),
	}
}

// Extract band-passes samples to the speech band, rectifies them and smooths
// the result with a block mean. It is a pure function of its inputs.
func Extract(samples []float32, sampleRate int, cfg EnvelopeConfig) []float64 {
	out := make([]float64, len(samples))
	if len(samples) == 0 {
		return out
	}

	f := newBandPass(float64(sampleRate), cfg.CenterFrequency, cfg.Q)
	for i, s := range samples {
		out[i] = math.Abs(f.process(float64(s)))
	}

	smooth(out, cfg.SmoothingWindow)
	return out
}

// smooth replaces every block of window samples with the block mean
func smooth(values []float64, window int) {
	if window <= 1 {
		return
	}

	for start := 0; start < len(values); start += window {
		end := min(start+window, len(values))
		block := values[start:end]
		mean := floats.Sum(block) / float64(len(block))
		for i := range block {
			block[i] = mean
		}
	}
}

// biquad is a second-order IIR section in direct form I
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

// newBandPass builds a constant 0 dB peak gain band-pass filter
func newBandPass(sampleRate, centerFrequency, q float64) *biquad {
	w0 := 2 * math.Pi * centerFrequency / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	a0 := 1 + alpha

	return &biquad{
		b0: alpha / a0,
		b1: 0,
		b2: -alpha / a0,
		a1: -2 * math.Cos(w0) / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}
