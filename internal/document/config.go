package document

import (
	"log/slog"

	"github.com/skypro1111/narration-engine/internal/config"
	"github.com/skypro1111/narration-engine/internal/playback"
	"github.com/skypro1111/narration-engine/internal/render"
	"github.com/skypro1111/narration-engine/internal/vad"
)

// NewManagerConfig maps the service configuration onto the manager
func NewManagerConfig(cfg *config.Config, logger *slog.Logger) ManagerConfig {
	outputs := NullOutputs(cfg.Playback.GetNullTickDuration())
	if cfg.Playback.Output == config.OutputDevice {
		outputs = DeviceOutputs(logger)
	}

	return ManagerConfig{
		Envelope: vad.EnvelopeConfig{
			CenterFrequency: cfg.Refiner.CenterFrequency,
			Q:               cfg.Refiner.Q,
			SmoothingWindow: cfg.Refiner.SmoothingWindow,
		},
		Refiner:  RefinerConfig(cfg.Refiner),
		Workers:  cfg.Refiner.Workers,
		Playback: playback.Config{Fade: cfg.Playback.Fade},
		Render:   render.Config{Fade: cfg.Playback.Fade, BitDepth: cfg.Export.BitDepth},
		Outputs:  outputs,

		MaxOpen:         cfg.Documents.MaxOpen,
		IdleTimeout:     cfg.Documents.GetIdleTimeoutDuration(),
		CleanupInterval: cfg.Documents.GetCleanupIntervalDuration(),
	}
}

// RefinerConfig extracts the boundary search parameters
func RefinerConfig(rc config.RefinerConfig) vad.RefinerConfig {
	return vad.RefinerConfig{
		SearchPadding: rc.SearchPadding,
		SilenceRun:    rc.SilenceRun,
		SpeechRatio:   rc.SpeechRatio,
		SilenceRatio:  rc.SilenceRatio,
		FallbackLead:  rc.FallbackLead,
		FallbackTail:  rc.FallbackTail,
	}
}
