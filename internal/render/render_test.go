package render

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/narration-engine/internal/audio"
	"github.com/skypro1111/narration-engine/internal/engine"
	"github.com/skypro1111/narration-engine/internal/playback"
	"github.com/skypro1111/narration-engine/internal/token"
)

const testRate = 1000

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func constantSource(t *testing.T, seconds float64, value float32) *audio.Buffer {
	t.Helper()
	samples := make([]float32, int(seconds*testRate))
	for i := range samples {
		samples[i] = value
	}
	buf, err := audio.NewBuffer(testRate, [][]float32{samples})
	require.NoError(t, err)
	return buf
}

func scenarioTokens(src *audio.Buffer) token.Sequence {
	return token.Sequence{
		token.Audio{Idx: 0, Start: 0, Duration: 1.0, Source: src},
		token.Pause{Idx: 1, Duration: 0.5},
		token.Audio{Idx: 2, Start: 2.0, Duration: 1.0, Source: src},
	}
}

func newTestRenderer() *Renderer {
	return NewRenderer(Config{Fade: playback.DefaultFade, BitDepth: 16}, testLogger(), nil)
}

func TestRenderTimeline(t *testing.T) {
	src := constantSource(t, 3.5, 0.5)

	out, err := newTestRenderer().Render(context.Background(), scenarioTokens(src))
	require.NoError(t, err)

	require.Equal(t, 2500, out.Len())
	assert.InDelta(t, 2.5, out.Duration(), 1e-9)
	samples := out.Channel(0)

	// First segment with 50ms ramps
	assert.Zero(t, samples[0])
	assert.InDelta(t, 0.25, samples[25], 1e-6)
	assert.InDelta(t, 0.5, samples[500], 1e-6)
	assert.InDelta(t, 0.25, samples[975], 1e-6)

	// Pause is silent
	for i := 1000; i < 1500; i++ {
		require.Zero(t, samples[i], "frame %d should be silent", i)
	}

	// Second segment
	assert.Zero(t, samples[1500])
	assert.InDelta(t, 0.25, samples[1525], 1e-6)
	assert.InDelta(t, 0.5, samples[2000], 1e-6)
	assert.InDelta(t, 0.01, samples[2499], 1e-6)
}

func TestRenderMatchesPlayback(t *testing.T) {
	samples := make([]float32, 4*testRate)
	for i := range samples {
		samples[i] = float32(i%200)/200 - 0.5
	}
	src, err := audio.NewBuffer(testRate, [][]float32{samples})
	require.NoError(t, err)

	tokens := token.Sequence{
		token.Paragraph{Idx: 0, Duration: 0.1},
		token.Audio{Idx: 1, Start: 0.33, Duration: 1.1, Source: src},
		token.Pause{Idx: 2, Duration: 0.3},
		token.Audio{Idx: 3, Start: 0, Duration: -0.2, Source: src},
		token.Audio{Idx: 4, Start: 2.71, Duration: 0.9, Source: src},
	}

	rendered, err := newTestRenderer().Render(context.Background(), tokens)
	require.NoError(t, err)

	// Live playback through a mixer pulled in device-sized blocks
	mixer, err := engine.NewMixer(testRate, 1)
	require.NoError(t, err)
	player := playback.NewPlayer(mixer, playback.Config{Fade: playback.DefaultFade}, testLogger(), nil)
	require.NoError(t, player.Play(tokens, 0))

	live := make([]float32, 0, rendered.Len())
	for len(live) < rendered.Len() {
		block := [][]float32{make([]float32, min(441, rendered.Len()-len(live)))}
		mixer.Process(block)
		live = append(live, block[0]...)
	}

	assert.Equal(t, rendered.Channel(0), live)
}

func TestRenderEmptyTimeline(t *testing.T) {
	r := newTestRenderer()

	_, err := r.Render(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyTimeline)

	_, err = r.Render(context.Background(), token.Sequence{token.Pause{Idx: 0, Duration: 0.5}})
	assert.ErrorIs(t, err, ErrEmptyTimeline)
}

func TestRenderCancelled(t *testing.T) {
	src := constantSource(t, 3.5, 0.5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRenderer().Export(ctx, scenarioTokens(src))
	assert.ErrorIs(t, err, ErrRenderFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExport(t *testing.T) {
	src := constantSource(t, 3.5, 0.5)

	data, err := newTestRenderer().Export(context.Background(), scenarioTokens(src))
	require.NoError(t, err)

	info, err := audio.GetWAVInfo(data)
	require.NoError(t, err)
	assert.Equal(t, testRate, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitsPerSample)
	assert.InDelta(t, 2.5, info.Duration, 1e-9)

	decoded, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, decoded.Channel(0)[500], 1e-3)
	assert.Zero(t, decoded.Channel(0)[1200])
}
