package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/narration-engine/internal/token"
)

const (
	audioFileName  = "audio.bin"
	tokensFileName = "tokens.json"
	metaFileName   = "meta.json"
)

var (
	// ErrNotFound is returned when a document or token is not stored
	ErrNotFound = errors.New("not found in store")
	// ErrInvalidID is returned for identifiers that are not UUIDs
	ErrInvalidID = errors.New("invalid document id")
)

// Meta describes a stored document
type Meta struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Format     string    `json:"format"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	Duration   float64   `json:"duration_seconds"`
	Tokens     int       `json:"tokens"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store is a file-backed document store rooted at a data directory
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates the data directory if needed
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the data directory
func (s *Store) Root() string {
	return s.root
}

func (s *Store) dir(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.root, id), nil
}

// SaveAudio stores the original encoded recording
func (s *Store) SaveAudio(id string, data []byte) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	return writeAtomic(dir, audioFileName, data)
}

// LoadAudio returns the original encoded recording
func (s *Store) LoadAudio(id string) ([]byte, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	return readFile(dir, audioFileName)
}

// SaveTokens replaces the stored token list
func (s *Store) SaveTokens(id string, tokens []token.Stored) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return saveJSON(dir, tokensFileName, tokens)
}

// LoadTokens returns the stored token list
func (s *Store) LoadTokens(id string) ([]token.Stored, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []token.Stored
	if err := loadJSON(dir, tokensFileName, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// PatchToken replaces the stored token sharing st's idx
func (s *Store) PatchToken(id string, st token.Stored) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []token.Stored
	if err := loadJSON(dir, tokensFileName, &tokens); err != nil {
		return err
	}

	found := false
	for i := range tokens {
		if tokens[i].Idx == st.Idx {
			tokens[i] = st
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: token %d of document %s", ErrNotFound, st.Idx, id)
	}

	return saveJSON(dir, tokensFileName, tokens)
}

// SaveMeta stores document metadata
func (s *Store) SaveMeta(meta Meta) error {
	dir, err := s.dir(meta.ID)
	if err != nil {
		return err
	}
	return saveJSON(dir, metaFileName, meta)
}

// LoadMeta returns document metadata
func (s *Store) LoadMeta(id string) (*Meta, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}

	var meta Meta
	if err := loadJSON(dir, metaFileName, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Exists reports whether a complete document is stored under id
func (s *Store) Exists(id string) bool {
	dir, err := s.dir(id)
	if err != nil {
		return false
	}
	for _, name := range []string{audioFileName, tokensFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// List returns the metadata of every stored document, newest first.
// Directories without readable metadata are skipped.
func (s *Store) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data directory: %w", err)
	}

	metas := make([]Meta, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.LoadMeta(entry.Name())
		if err != nil {
			continue
		}
		metas = append(metas, *meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})

	return metas, nil
}

// Delete removes a stored document
func (s *Store) Delete(id string) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing document directory: %w", err)
	}
	return nil
}

func saveJSON(dir, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", name, err)
	}
	return writeAtomic(dir, name, data)
}

func loadJSON(dir, name string, v any) error {
	data, err := readFile(dir, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshalling %s: %w", name, err)
	}
	return nil
}

// writeAtomic writes through a temp file and rename so readers never see a
// partial file.
func writeAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating document directory: %w", err)
	}

	tmp := filepath.Join(dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s temp file: %w", name, err)
	}

	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("persisting %s: %w", name, err)
	}

	return nil
}

func readFile(dir, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Join(filepath.Base(dir), name))
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}
