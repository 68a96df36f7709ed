package document

import (
	"sync"
	"time"

	"github.com/skypro1111/narration-engine/internal/audio"
	"github.com/skypro1111/narration-engine/internal/engine"
	"github.com/skypro1111/narration-engine/internal/playback"
	"github.com/skypro1111/narration-engine/internal/token"
)

// Document is an open recording with its token timeline and player
type Document struct {
	ID           string
	Name         string
	Format       audio.Format
	CreatedAt    time.Time
	OpenedAt     time.Time
	LastActivity time.Time

	source *audio.Buffer
	tokens token.Sequence
	output *engine.Output
	player *playback.Player

	// Refinement results of the creating run; zero for reopened documents
	fallbacks  int
	degenerate int

	mu sync.RWMutex
}

// Info is the API view of a document
type Info struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Format       string         `json:"format"`
	Open         bool           `json:"open"`
	SampleRate   int            `json:"sample_rate"`
	Channels     int            `json:"channels"`
	Duration     float64        `json:"duration_seconds"`
	Tokens       int            `json:"tokens"`
	AudioTokens  int            `json:"audio_tokens"`
	Total        float64        `json:"total_seconds"`
	Fallbacks    int            `json:"fallback_segments"`
	Degenerate   int            `json:"degenerate_segments"`
	State        playback.State `json:"state"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity,omitempty"`
}

// Tokens returns the current timeline. The sequence is never mutated in
// place, so callers may keep it.
func (d *Document) Tokens() token.Sequence {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tokens
}

// Snapshot lays out the current timeline for visualization
func (d *Document) Snapshot() []token.Placement {
	return token.Snapshot(d.Tokens())
}

// Source returns the decoded recording
func (d *Document) Source() *audio.Buffer {
	return d.source
}

// Player returns the document's player
func (d *Document) Player() *playback.Player {
	return d.player
}

// Info returns the document summary
func (d *Document) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Info{
		ID:           d.ID,
		Name:         d.Name,
		Format:       string(d.Format),
		Open:         true,
		SampleRate:   d.source.SampleRate(),
		Channels:     d.source.NumChannels(),
		Duration:     d.source.Duration(),
		Tokens:       len(d.tokens),
		AudioTokens:  d.tokens.AudioCount(),
		Total:        d.tokens.Total(),
		Fallbacks:    d.fallbacks,
		Degenerate:   d.degenerate,
		State:        d.player.Refresh(),
		CreatedAt:    d.CreatedAt,
		LastActivity: d.LastActivity,
	}
}

func (d *Document) touch() {
	d.mu.Lock()
	d.LastActivity = time.Now()
	d.mu.Unlock()
}

func (d *Document) lastActivity() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.LastActivity
}

func (d *Document) close() error {
	d.player.Stop()
	return d.output.Close()
}
