// Command narrate refines a recording against its tokenizer output, prints
// the resulting timeline as JSON and writes the rendered WAV.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/skypro1111/narration-engine/internal/config"
	"github.com/skypro1111/narration-engine/internal/document"
	"github.com/skypro1111/narration-engine/internal/logging"
	"github.com/skypro1111/narration-engine/internal/recognizer"
	"github.com/skypro1111/narration-engine/internal/render"
	"github.com/skypro1111/narration-engine/internal/store"
	"github.com/skypro1111/narration-engine/internal/token"
)

func main() {
	audioPath := flag.String("audio", "", "Recording to refine (WAV or MP3)")
	tokensPath := flag.String("tokens", "", "Tokenizer/recognizer output as a JSON array")
	outPath := flag.String("out", render.ExportFileName, "Where to write the rendered WAV")
	configPath := flag.String("config", "", "Optional configuration file")
	dataDir := flag.String("data", "", "Keep the document in this data directory instead of a temporary one")
	flag.Parse()

	if *audioPath == "" || *tokensPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*audioPath, *tokensPath, *outPath, *configPath, *dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "narrate: %v\n", err)
		os.Exit(1)
	}
}

func run(audioPath, tokensPath, outPath, configPath, dataDir string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// stdout carries the token JSON
	cfg.Logging.Output = "stderr"
	logger := logging.New(cfg.Logging)

	raw, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("reading recording: %w", err)
	}

	var inputs []token.Input
	data, err := os.ReadFile(tokensPath)
	if err != nil {
		return fmt.Errorf("reading tokens: %w", err)
	}
	if err := json.Unmarshal(data, &inputs); err != nil {
		return fmt.Errorf("parsing tokens: %w", err)
	}

	if dataDir == "" {
		dataDir, err = os.MkdirTemp("", "narrate-")
		if err != nil {
			return fmt.Errorf("creating temporary data directory: %w", err)
		}
		defer os.RemoveAll(dataDir)
	}

	st, err := store.New(dataDir)
	if err != nil {
		return err
	}

	var rec *recognizer.Client
	if cfg.Recognizer.Enabled {
		rec, err = recognizer.NewClient(recognizer.Config{
			Endpoint:      cfg.Recognizer.Endpoint,
			APIKey:        cfg.Recognizer.APIKey,
			Timeout:       cfg.Recognizer.GetTimeoutDuration(),
			MaxRetries:    cfg.Recognizer.MaxRetries,
			MaxConcurrent: cfg.Recognizer.MaxConcurrent,
			Language:      cfg.Recognizer.Language,
		}, logger, nil)
		if err != nil {
			return err
		}
	}

	mcfg := document.NewManagerConfig(cfg, logger)
	mcfg.Outputs = document.ManualOutputs()
	docs, err := document.NewManager(logger, st, rec, nil, mcfg)
	if err != nil {
		return err
	}
	defer docs.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	doc, err := docs.Create(ctx, document.CreateRequest{
		Name:   filepath.Base(audioPath),
		Audio:  raw,
		Inputs: inputs,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc.Snapshot()); err != nil {
		return fmt.Errorf("writing tokens: %w", err)
	}

	wav, err := docs.Export(ctx, doc.ID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, wav, 0o644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}

	info := doc.Info()
	logger.Info("Export written",
		slog.String("path", outPath),
		slog.String("document_id", doc.ID),
		slog.Int("bytes", len(wav)),
		slog.Float64("total", info.Total),
		slog.Int("fallback_segments", info.Fallbacks),
	)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}
