package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/narration-engine/internal/audio"
	"github.com/skypro1111/narration-engine/internal/metrics"
	"github.com/skypro1111/narration-engine/internal/playback"
	"github.com/skypro1111/narration-engine/internal/recognizer"
	"github.com/skypro1111/narration-engine/internal/render"
	"github.com/skypro1111/narration-engine/internal/store"
	"github.com/skypro1111/narration-engine/internal/token"
	"github.com/skypro1111/narration-engine/internal/vad"
)

var (
	// ErrNotFound is returned for documents that are neither open nor stored
	ErrNotFound = errors.New("document not found")
	// ErrNotOpen is returned for playback operations on a closed document
	ErrNotOpen = errors.New("document is not open")
	// ErrTooManyOpen is returned when MaxOpen documents are already open
	ErrTooManyOpen = errors.New("too many open documents")
	// ErrNoRecognizer is returned when TEXT inputs arrive without a recognizer
	ErrNoRecognizer = errors.New("recognizer is not configured")
	// ErrEmptyAudio is returned when no recording was supplied
	ErrEmptyAudio = errors.New("recording is empty")
)

// ManagerConfig contains configuration for the document manager
type ManagerConfig struct {
	Envelope vad.EnvelopeConfig
	Refiner  vad.RefinerConfig
	Workers  int // concurrent segment refinements per document
	Playback playback.Config
	Render   render.Config
	Outputs  OutputFactory

	MaxOpen         int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

// CreateRequest carries a new recording and its tokenizer output
type CreateRequest struct {
	Name   string
	Audio  []byte
	Inputs []token.Input
}

// Stats is a snapshot of manager activity
type Stats struct {
	ActiveDocuments int                     `json:"active_documents"`
	MaxOpen         int                     `json:"max_open"`
	Refiner         vad.RefinerStats        `json:"refiner"`
	Recognizer      *recognizer.ClientStats `json:"recognizer,omitempty"`
}

// Manager manages all open documents
type Manager struct {
	docs   map[string]*Document
	mu     sync.RWMutex
	logger *slog.Logger
	config ManagerConfig

	store      *store.Store
	refiner    *vad.Refiner
	renderer   *render.Renderer
	recognizer *recognizer.Client // nil when alignment is disabled
	metrics    *metrics.Metrics

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a document manager. rec may be nil.
func NewManager(logger *slog.Logger, st *store.Store, rec *recognizer.Client, m *metrics.Metrics, config ManagerConfig) (*Manager, error) {
	refiner, err := vad.NewRefiner(config.Refiner)
	if err != nil {
		return nil, fmt.Errorf("failed to create boundary refiner: %w", err)
	}

	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Outputs == nil {
		config.Outputs = NullOutputs(0)
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		docs:       make(map[string]*Document),
		logger:     logger,
		config:     config,
		store:      st,
		refiner:    refiner,
		renderer:   render.NewRenderer(config.Render, logger, m),
		recognizer: rec,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		cleanup:    make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr, nil
}

// Create decodes a recording, refines the timing of every line, builds the
// token timeline and opens the document. Nothing is persisted unless every
// step succeeds.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Document, error) {
	if len(req.Audio) == 0 {
		return nil, ErrEmptyAudio
	}
	if m.full() {
		return nil, ErrTooManyOpen
	}

	startTime := time.Now()
	id := uuid.NewString()

	source, err := audio.Decode(req.Audio)
	if err != nil {
		m.logger.Error("Failed to decode recording",
			slog.String("document_id", id),
			slog.Int("size", len(req.Audio)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	format := audio.DetectFormat(req.Audio)

	inputs, err := token.SortInputs(req.Inputs)
	if err != nil {
		return nil, err
	}
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", token.ErrInvalidSequence, err)
		}
	}

	if lines := recognizer.Lines(inputs); len(lines) > 0 {
		inputs, err = m.align(ctx, id, format, req.Audio, inputs, lines)
		if err != nil {
			return nil, err
		}
	}

	env := vad.ExtractEnvelope(source, m.config.Envelope)

	refined, err := m.refineAll(ctx, inputs, env)
	if err != nil {
		return nil, err
	}

	for _, idx := range refined.fallbacks {
		m.logger.Warn("No speech found near segment, using fallback boundary",
			slog.String("document_id", id),
			slog.Int("input_idx", idx),
		)
	}
	for _, idx := range refined.degenerate {
		m.logger.Warn("Refined segment has no duration and will be skipped during playback",
			slog.String("document_id", id),
			slog.Int("input_idx", idx),
		)
	}

	tokens, err := token.Build(inputs, source, refined.spans)
	if err != nil {
		return nil, err
	}

	m.metrics.RecordRefinement(len(refined.spans), len(refined.fallbacks), len(refined.degenerate),
		time.Since(startTime).Seconds())

	now := time.Now()
	meta := store.Meta{
		ID:         id,
		Name:       req.Name,
		Format:     string(format),
		SampleRate: source.SampleRate(),
		Channels:   source.NumChannels(),
		Duration:   source.Duration(),
		Tokens:     len(tokens),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.persist(meta, req.Audio, tokens); err != nil {
		return nil, err
	}

	doc, err := m.attach(meta, source, tokens)
	if err != nil {
		return nil, err
	}
	doc.fallbacks = len(refined.fallbacks)
	doc.degenerate = len(refined.degenerate)

	m.metrics.RecordDocumentCreated()

	m.logger.Info("Created document",
		slog.String("document_id", id),
		slog.String("name", req.Name),
		slog.String("format", string(format)),
		slog.Int("sample_rate", source.SampleRate()),
		slog.Int("channels", source.NumChannels()),
		slog.Float64("duration", source.Duration()),
		slog.Int("tokens", len(tokens)),
		slog.Int("segments", len(refined.spans)),
		slog.Int("fallback_segments", len(refined.fallbacks)),
		slog.Duration("elapsed", time.Since(startTime)),
	)

	return doc, nil
}

// Open reopens a stored document. An already open document is returned
// as is.
func (m *Manager) Open(ctx context.Context, id string) (*Document, error) {
	if doc, ok := m.Get(id); ok {
		return doc, nil
	}
	if !m.store.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.full() {
		return nil, ErrTooManyOpen
	}

	raw, err := m.store.LoadAudio(id)
	if err != nil {
		return nil, fmt.Errorf("loading recording: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source, err := audio.Decode(raw)
	if err != nil {
		return nil, err
	}

	stored, err := m.store.LoadTokens(id)
	if err != nil {
		return nil, fmt.Errorf("loading tokens: %w", err)
	}

	tokens, err := token.FromStorageForm(stored, source)
	if err != nil {
		return nil, err
	}

	meta, err := m.store.LoadMeta(id)
	if err != nil {
		m.logger.Warn("Document has no readable metadata",
			slog.String("document_id", id),
			slog.String("error", err.Error()),
		)
		meta = &store.Meta{ID: id, Format: string(audio.DetectFormat(raw))}
	}

	doc, err := m.attach(*meta, source, tokens)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Reopened document",
		slog.String("document_id", id),
		slog.Int("tokens", len(tokens)),
		slog.Float64("total", tokens.Total()),
	)

	return doc, nil
}

// Get retrieves an open document
func (m *Manager) Get(id string) (*Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[id]
	return doc, exists
}

// List returns every stored document, newest first, with live details for
// open ones.
func (m *Manager) List() ([]Info, error) {
	metas, err := m.store.List()
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(metas))
	for _, meta := range metas {
		if doc, ok := m.Get(meta.ID); ok {
			infos = append(infos, doc.Info())
			continue
		}
		infos = append(infos, storedInfo(meta))
	}
	return infos, nil
}

// Info describes one document, open or stored
func (m *Manager) Info(id string) (Info, error) {
	if doc, ok := m.Get(id); ok {
		return doc.Info(), nil
	}
	meta, err := m.store.LoadMeta(id)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return storedInfo(*meta), nil
}

// Tokens returns the timeline layout of an open document
func (m *Manager) Tokens(id string) ([]token.Placement, error) {
	doc, err := m.open(id)
	if err != nil {
		return nil, err
	}
	return doc.Snapshot(), nil
}

func storedInfo(meta store.Meta) Info {
	return Info{
		ID:         meta.ID,
		Name:       meta.Name,
		Format:     meta.Format,
		SampleRate: meta.SampleRate,
		Channels:   meta.Channels,
		Duration:   meta.Duration,
		Tokens:     meta.Tokens,
		CreatedAt:  meta.CreatedAt,
	}
}

// GetActiveDocumentCount returns the number of open documents
func (m *Manager) GetActiveDocumentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Trim moves audio token idx to a new source range and persists it. The
// change is heard from the next Play.
func (m *Manager) Trim(id string, idx int, start, duration float64) (token.Stored, error) {
	doc, err := m.open(id)
	if err != nil {
		return token.Stored{}, err
	}

	doc.mu.Lock()
	defer doc.mu.Unlock()

	next, err := doc.tokens.WithTrim(idx, start, duration)
	if err != nil {
		return token.Stored{}, err
	}

	trimmed, err := next.Find(idx)
	if err != nil {
		return token.Stored{}, err
	}
	st := token.ToStored(trimmed)

	if err := m.store.PatchToken(id, st); err != nil {
		return token.Stored{}, fmt.Errorf("persisting trim: %w", err)
	}
	doc.tokens = next
	doc.LastActivity = time.Now()

	if meta, err := m.store.LoadMeta(id); err == nil {
		meta.UpdatedAt = time.Now()
		if err := m.store.SaveMeta(*meta); err != nil {
			m.logger.Warn("Failed to update document metadata",
				slog.String("document_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	m.logger.Debug("Trimmed audio token",
		slog.String("document_id", id),
		slog.Int("idx", idx),
		slog.Float64("start", start),
		slog.Float64("duration", duration),
	)

	return st, nil
}

// Play starts playback of an open document at start seconds
func (m *Manager) Play(id string, start float64) (playback.State, error) {
	doc, err := m.open(id)
	if err != nil {
		return playback.State{}, err
	}
	doc.touch()

	if err := doc.player.Play(doc.Tokens(), start); err != nil {
		return playback.State{}, err
	}
	return doc.player.State(), nil
}

// Pause pauses playback of an open document
func (m *Manager) Pause(id string) (playback.State, error) {
	doc, err := m.open(id)
	if err != nil {
		return playback.State{}, err
	}
	doc.touch()

	doc.player.Pause(doc.Tokens())
	return doc.player.State(), nil
}

// StopPlayback stops playback of an open document and rewinds it
func (m *Manager) StopPlayback(id string) (playback.State, error) {
	doc, err := m.open(id)
	if err != nil {
		return playback.State{}, err
	}
	doc.touch()

	doc.player.Stop()
	return doc.player.State(), nil
}

// Toggle pauses a playing document or resumes it from its stored offset
func (m *Manager) Toggle(id string) (playback.State, error) {
	doc, err := m.open(id)
	if err != nil {
		return playback.State{}, err
	}
	doc.touch()

	if err := doc.player.TogglePause(doc.Tokens()); err != nil {
		return playback.State{}, err
	}
	return doc.player.State(), nil
}

// State returns the playback state and current position of an open document
func (m *Manager) State(id string) (playback.State, float64, error) {
	doc, err := m.open(id)
	if err != nil {
		return playback.State{}, 0, err
	}

	state := doc.player.Refresh()
	position := state.Offset
	if t, ok := doc.player.CurrentTime(); ok {
		position = t
	}
	return state, position, nil
}

// Export renders the timeline of an open document to WAV bytes
func (m *Manager) Export(ctx context.Context, id string) ([]byte, error) {
	doc, err := m.open(id)
	if err != nil {
		return nil, err
	}
	doc.touch()

	data, err := m.renderer.Export(ctx, doc.Tokens())
	if err != nil {
		m.logger.Error("Export failed",
			slog.String("document_id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return data, nil
}

// Remove closes an open document. Stored data is kept.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	doc, exists := m.docs[id]
	if exists {
		delete(m.docs, id)
	}
	active := len(m.docs)
	m.mu.Unlock()

	if !exists {
		return false
	}

	if err := doc.close(); err != nil {
		m.logger.Warn("Error closing document output",
			slog.String("document_id", id),
			slog.String("error", err.Error()),
		)
	}

	lifetime := time.Since(doc.OpenedAt)
	m.metrics.RecordDocumentRemoved(lifetime.Seconds())
	m.metrics.SetActiveDocuments(active)

	m.logger.Info("Document closed",
		slog.String("document_id", id),
		slog.Duration("open_duration", lifetime),
	)

	return true
}

// Delete closes a document and removes it from storage
func (m *Manager) Delete(id string) error {
	removed := m.Remove(id)
	if !m.store.Exists(id) {
		if removed {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.store.Delete(id)
}

// GetStats returns manager statistics
func (m *Manager) GetStats() Stats {
	stats := Stats{
		ActiveDocuments: m.GetActiveDocumentCount(),
		MaxOpen:         m.config.MaxOpen,
		Refiner:         m.refiner.GetStats(),
	}
	if m.recognizer != nil {
		rs := m.recognizer.GetStats()
		stats.Recognizer = &rs
	}
	return stats
}

// Stop closes every document and stops the cleanup routine
func (m *Manager) Stop() {
	m.logger.Info("Stopping document manager...")

	m.cancel()
	<-m.cleanup

	m.mu.RLock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Remove(id)
	}

	if m.recognizer != nil {
		if err := m.recognizer.Close(); err != nil {
			m.logger.Warn("Error closing recognizer client", slog.String("error", err.Error()))
		}
	}

	refinerStats := m.refiner.GetStats()
	m.logger.Info("Document manager stopped",
		slog.Int("closed_documents", len(ids)),
		slog.Uint64("refined_segments", refinerStats.TotalSegments),
		slog.Float64("fallback_percentage", refinerStats.FallbackPercentage),
	)
}

// open returns an open document or a not-open/not-found error
func (m *Manager) open(id string) (*Document, error) {
	if doc, ok := m.Get(id); ok {
		return doc, nil
	}
	if m.store.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, id)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (m *Manager) full() bool {
	return m.config.MaxOpen > 0 && m.GetActiveDocumentCount() >= m.config.MaxOpen
}

// attach creates the output and player for a document and registers it
func (m *Manager) attach(meta store.Meta, source *audio.Buffer, tokens token.Sequence) (*Document, error) {
	output, err := m.config.Outputs(source.SampleRate(), source.NumChannels())
	if err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}

	now := time.Now()
	doc := &Document{
		ID:           meta.ID,
		Name:         meta.Name,
		Format:       audio.Format(meta.Format),
		CreatedAt:    meta.CreatedAt,
		OpenedAt:     now,
		LastActivity: now,
		source:       source,
		tokens:       tokens,
		output:       output,
		player:       playback.NewPlayer(output, m.config.Playback, m.logger, m.metrics),
	}

	m.mu.Lock()
	if m.config.MaxOpen > 0 && len(m.docs) >= m.config.MaxOpen {
		m.mu.Unlock()
		output.Close()
		return nil, ErrTooManyOpen
	}
	m.docs[meta.ID] = doc
	active := len(m.docs)
	m.mu.Unlock()

	m.metrics.SetActiveDocuments(active)
	return doc, nil
}

func (m *Manager) persist(meta store.Meta, raw []byte, tokens token.Sequence) error {
	if err := m.store.SaveAudio(meta.ID, raw); err != nil {
		return fmt.Errorf("persisting recording: %w", err)
	}
	if err := m.store.SaveTokens(meta.ID, token.ToStorageForm(tokens)); err != nil {
		return fmt.Errorf("persisting tokens: %w", err)
	}
	if err := m.store.SaveMeta(meta); err != nil {
		return fmt.Errorf("persisting metadata: %w", err)
	}
	return nil
}

// align converts TEXT inputs to TIMING inputs through the recognizer
func (m *Manager) align(ctx context.Context, id string, format audio.Format, raw []byte, inputs []token.Input, lines []recognizer.Line) ([]token.Input, error) {
	if m.recognizer == nil {
		return nil, fmt.Errorf("%w: %d lines need timing", ErrNoRecognizer, len(lines))
	}

	m.logger.Info("Requesting line alignment",
		slog.String("document_id", id),
		slog.Int("lines", len(lines)),
		slog.Int("audio_size", len(raw)),
	)

	resp, err := m.recognizer.Align(ctx, &recognizer.Request{
		DocumentID: id,
		Audio:      raw,
		Format:     string(format),
		Lines:      lines,
	})
	if err != nil {
		return nil, fmt.Errorf("aligning lines: %w", err)
	}

	return recognizer.Apply(inputs, resp)
}

type refinement struct {
	spans      map[int]token.Span
	fallbacks  []int
	degenerate []int
}

// refineAll refines every TIMING input on a bounded worker pool
func (m *Manager) refineAll(ctx context.Context, inputs []token.Input, env *vad.Envelope) (*refinement, error) {
	res := &refinement{spans: make(map[int]token.Span)}
	jobs := make(chan token.Input)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < m.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range jobs {
				b := m.refiner.Refine(in.StartMs, in.EndMs, env)

				mu.Lock()
				res.spans[in.Idx] = token.Span{Start: b.Start, Duration: b.Duration}
				if b.Fallback {
					res.fallbacks = append(res.fallbacks, in.Idx)
				}
				if b.Degenerate() {
					res.degenerate = append(res.degenerate, in.Idx)
				}
				mu.Unlock()
			}
		}()
	}

	var err error
feed:
	for _, in := range inputs {
		if in.Type != token.InputTiming {
			continue
		}
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case jobs <- in:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}

	sort.Ints(res.fallbacks)
	sort.Ints(res.degenerate)
	return res, nil
}

// startCleanupRoutine runs in a separate goroutine to close idle documents
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Document cleanup routine started",
		slog.Duration("idle_timeout", m.config.IdleTimeout),
		slog.Duration("check_interval", m.config.CleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Document cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupIdleDocuments()
		}
	}
}

// cleanupIdleDocuments closes documents that have not been used for too
// long. Playing documents are never idle.
func (m *Manager) cleanupIdleDocuments() {
	if m.config.IdleTimeout <= 0 {
		return
	}

	now := time.Now()
	idle := make([]string, 0)

	m.mu.RLock()
	for id, doc := range m.docs {
		if doc.player.Refresh().Status == playback.StatusPlaying {
			continue
		}
		if now.Sub(doc.lastActivity()) > m.config.IdleTimeout {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	if len(idle) > 0 {
		m.logger.Info("Closing idle documents",
			slog.Int("idle_count", len(idle)),
		)

		for _, id := range idle {
			m.Remove(id)
		}
	}
}
