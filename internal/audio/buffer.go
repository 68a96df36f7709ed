package audio

import (
	"fmt"
	"math"
)

// Buffer is a decoded, read-only PCM recording. Samples are stored per channel
// as float32 in the range [-1, 1].
//
// A Buffer is shared by every AUDIO token of a document as well as by the
// player and the renderer; nothing may write to the slices returned by Channel.
type Buffer struct {
	sampleRate int
	channels   [][]float32
	frames     int
}

// NewBuffer wraps per-channel sample data. All channels must have the same length.
func NewBuffer(sampleRate int, channels [][]float32) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if len(channels) == 0 {
		return nil, fmt.Errorf("buffer needs at least one channel")
	}

	frames := len(channels[0])
	for i, ch := range channels {
		if len(ch) != frames {
			return nil, fmt.Errorf("channel %d has %d frames, expected %d", i, len(ch), frames)
		}
	}

	return &Buffer{
		sampleRate: sampleRate,
		channels:   channels,
		frames:     frames,
	}, nil
}

// NewSilentBuffer allocates a zeroed buffer of the given shape.
func NewSilentBuffer(sampleRate, numChannels, frames int) (*Buffer, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", numChannels)
	}
	if frames < 0 {
		return nil, fmt.Errorf("frame count cannot be negative, got %d", frames)
	}

	channels := make([][]float32, numChannels)
	for i := range channels {
		channels[i] = make([]float32, frames)
	}
	return NewBuffer(sampleRate, channels)
}

// SampleRate returns the sample rate in Hz
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// NumChannels returns the number of channels
func (b *Buffer) NumChannels() int {
	return len(b.channels)
}

// Len returns the number of frames (samples per channel)
func (b *Buffer) Len() int {
	return b.frames
}

// Duration returns the length of the recording in seconds
func (b *Buffer) Duration() float64 {
	return float64(b.frames) / float64(b.sampleRate)
}

// Channel returns the samples of channel i. The slice must not be modified.
func (b *Buffer) Channel(i int) []float32 {
	return b.channels[i]
}

// Frame converts a time in seconds to the nearest frame index.
func (b *Buffer) Frame(seconds float64) int {
	return int(math.Round(seconds * float64(b.sampleRate)))
}

// Mixdown folds all channels into one by summing them sample by sample.
// The result is not rescaled, so a stereo recording can exceed [-1, 1].
func (b *Buffer) Mixdown() []float32 {
	mono := make([]float32, b.frames)
	for _, ch := range b.channels {
		for i, s := range ch {
			mono[i] += s
		}
	}
	return mono
}
