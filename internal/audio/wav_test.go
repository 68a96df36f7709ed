package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sineBuffer generates a mono sine wave
func sineBuffer(t *testing.T, sampleRate int, seconds, frequency, amplitude float64) *Buffer {
	t.Helper()

	numSamples := int(float64(sampleRate) * seconds)
	samples := make([]float32, numSamples)
	for i := range samples {
		ts := float64(i) / float64(sampleRate)
		samples[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*ts))
	}

	buf, err := NewBuffer(sampleRate, [][]float32{samples})
	require.NoError(t, err)
	return buf
}

func TestEncodeWAV(t *testing.T) {
	// 440Hz for 0.1 seconds at 8kHz
	buf := sineBuffer(t, 8000, 0.1, 440, 0.5)

	wavData, err := EncodeWAV(buf, 16)
	require.NoError(t, err)
	require.NotEmpty(t, wavData)

	// 44 byte header + 2 bytes per sample
	assert.Equal(t, 44+buf.Len()*2, len(wavData))
	assert.NoError(t, ValidateWAV(wavData))

	info, err := GetWAVInfo(wavData)
	require.NoError(t, err)
	assert.Equal(t, 8000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitsPerSample)
	assert.Equal(t, buf.Len(), info.NumFrames)
	assert.InDelta(t, 0.1, info.Duration, 0.001)
}

func TestDecodeWAV(t *testing.T) {
	left := []float32{0.1, -0.2, 0.3, -0.4, 0.5}
	right := []float32{-0.5, 0.4, -0.3, 0.2, -0.1}
	buf, err := NewBuffer(22050, [][]float32{left, right})
	require.NoError(t, err)

	wavData, err := EncodeWAV(buf, 16)
	require.NoError(t, err)

	decoded, err := DecodeWAV(wavData)
	require.NoError(t, err)

	assert.Equal(t, 22050, decoded.SampleRate())
	require.Equal(t, 2, decoded.NumChannels())
	require.Equal(t, len(left), decoded.Len())

	// 16-bit quantization
	for i := range left {
		assert.InDelta(t, left[i], decoded.Channel(0)[i], 1.0/16384)
		assert.InDelta(t, right[i], decoded.Channel(1)[i], 1.0/16384)
	}
}

func TestEncodeWAVClipsOutOfRange(t *testing.T) {
	buf, err := NewBuffer(8000, [][]float32{{2, -2, 0}})
	require.NoError(t, err)

	wavData, err := EncodeWAV(buf, 0)
	require.NoError(t, err)

	decoded, err := DecodeWAV(wavData)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, decoded.Channel(0)[0], 0.001)
	assert.InDelta(t, -1.0, decoded.Channel(0)[1], 0.001)
	assert.Zero(t, decoded.Channel(0)[2])
}

func TestEncodeWAVEmpty(t *testing.T) {
	buf, err := NewBuffer(8000, [][]float32{{}})
	require.NoError(t, err)

	_, err = EncodeWAV(buf, 16)
	assert.Error(t, err)

	_, err = EncodeWAV(nil, 16)
	assert.Error(t, err)
}

func TestEncodeWAVInvalidBitDepth(t *testing.T) {
	buf := sineBuffer(t, 8000, 0.01, 440, 0.5)

	_, err := EncodeWAV(buf, 12)
	assert.Error(t, err)
}

func TestValidateWAV(t *testing.T) {
	assert.Error(t, ValidateWAV([]byte{1, 2, 3}), "too short")

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], []byte("FAKE"))
	assert.Error(t, ValidateWAV(invalidWAV), "invalid RIFF header")
}

func TestGetWAVDuration(t *testing.T) {
	// 1 second at 8kHz
	buf := sineBuffer(t, 8000, 1.0, 200, 0.3)

	wavData, err := EncodeWAV(buf, 16)
	require.NoError(t, err)

	duration, err := GetWAVDuration(wavData)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, duration, 0.001)
}
