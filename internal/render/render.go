package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/skypro1111/narration-engine/internal/audio"
	"github.com/skypro1111/narration-engine/internal/engine"
	"github.com/skypro1111/narration-engine/internal/metrics"
	"github.com/skypro1111/narration-engine/internal/playback"
	"github.com/skypro1111/narration-engine/internal/token"
)

// ExportFileName is the fixed name of the exported file
const ExportFileName = "audio.wav"

// blockFrames is the render quantum between cancellation checks
const blockFrames = 128

var (
	// ErrEmptyTimeline is returned when the timeline has no duration
	ErrEmptyTimeline = errors.New("timeline is empty")
	// ErrRenderFailed wraps any failure while rendering or encoding
	ErrRenderFailed = errors.New("render failed")
)

// Config holds renderer settings
type Config struct {
	Fade     float64 // seconds, must match the player
	BitDepth int     // WAV sample size; 0 means 16
}

// Renderer renders token timelines offline
type Renderer struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRenderer creates a renderer
func NewRenderer(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Renderer {
	return &Renderer{cfg: cfg, logger: logger, metrics: m}
}

// Render mixes the whole timeline into a buffer shaped like the source
// recording. The output equals uninterrupted playback from time zero.
func (r *Renderer) Render(ctx context.Context, tokens token.Sequence) (*audio.Buffer, error) {
	total := tokens.Total()
	if total <= 0 {
		return nil, ErrEmptyTimeline
	}

	src := tokens.Source()
	if src == nil {
		return nil, fmt.Errorf("%w: timeline has no audio", ErrEmptyTimeline)
	}

	mixer, err := engine.NewMixer(src.SampleRate(), src.NumChannels())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	// Same plan and voices the player issues for play(tokens, 0) with
	// engineStartTime 0
	player := playback.NewPlayer(mixer, playback.Config{Fade: r.cfg.Fade}, r.logger, nil)
	if err := player.Play(tokens, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	defer player.Stop()

	frames := int(math.Round(total * float64(src.SampleRate())))
	channels := make([][]float32, src.NumChannels())
	for ch := range channels {
		channels[ch] = make([]float32, frames)
	}

	block := make([][]float32, len(channels))
	for pos := 0; pos < frames; pos += blockFrames {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
		}

		end := min(pos+blockFrames, frames)
		for ch := range block {
			block[ch] = channels[ch][pos:end]
		}
		mixer.Process(block)
	}

	out, err := audio.NewBuffer(src.SampleRate(), channels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	return out, nil
}

// Export renders the timeline and encodes it as WAV. No bytes are returned
// unless the whole render succeeds.
func (r *Renderer) Export(ctx context.Context, tokens token.Sequence) ([]byte, error) {
	started := time.Now()

	buf, err := r.Render(ctx, tokens)
	if err != nil {
		r.metrics.RecordRenderFailure()
		return nil, err
	}

	data, err := audio.EncodeWAV(buf, r.cfg.BitDepth)
	if err != nil {
		r.metrics.RecordRenderFailure()
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	elapsed := time.Since(started)
	r.metrics.RecordRender(elapsed.Seconds(), len(data))
	r.logger.Info("Export rendered",
		"duration_s", buf.Duration(),
		"size_bytes", len(data),
		"render_time", elapsed)

	return data, nil
}
