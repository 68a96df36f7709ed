package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuffer(t *testing.T) {
	buf, err := NewBuffer(44100, [][]float32{make([]float32, 44100), make([]float32, 44100)})
	require.NoError(t, err)

	assert.Equal(t, 44100, buf.SampleRate())
	assert.Equal(t, 2, buf.NumChannels())
	assert.Equal(t, 44100, buf.Len())
	assert.InDelta(t, 1.0, buf.Duration(), 1e-9)
	assert.Equal(t, 22050, buf.Frame(0.5))
}

func TestNewBufferValidation(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		channels   [][]float32
	}{
		{name: "zero sample rate", sampleRate: 0, channels: [][]float32{{0}}},
		{name: "negative sample rate", sampleRate: -8000, channels: [][]float32{{0}}},
		{name: "no channels", sampleRate: 8000, channels: nil},
		{name: "ragged channels", sampleRate: 8000, channels: [][]float32{{0, 0}, {0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuffer(tt.sampleRate, tt.channels)
			assert.Error(t, err)
		})
	}
}

func TestNewSilentBuffer(t *testing.T) {
	buf, err := NewSilentBuffer(8000, 2, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, buf.Len())
	assert.Equal(t, 2, buf.NumChannels())

	_, err = NewSilentBuffer(8000, 0, 100)
	assert.Error(t, err)
}

func TestMixdownSumsChannels(t *testing.T) {
	buf, err := NewBuffer(8000, [][]float32{
		{0.5, 0.25, -0.5},
		{0.5, 0.25, 0.25},
	})
	require.NoError(t, err)

	// summed, not averaged
	assert.Equal(t, []float32{1.0, 0.5, -0.25}, buf.Mixdown())
}
