package document

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/narration-engine/internal/audio"
	"github.com/skypro1111/narration-engine/internal/playback"
	"github.com/skypro1111/narration-engine/internal/recognizer"
	"github.com/skypro1111/narration-engine/internal/render"
	"github.com/skypro1111/narration-engine/internal/store"
	"github.com/skypro1111/narration-engine/internal/token"
	"github.com/skypro1111/narration-engine/internal/vad"
)

const testSampleRate = 8000

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() ManagerConfig {
	return ManagerConfig{
		Envelope:        vad.DefaultEnvelopeConfig(),
		Refiner:         vad.DefaultRefinerConfig(),
		Workers:         2,
		Playback:        playback.Config{Fade: playback.DefaultFade},
		Render:          render.Config{Fade: playback.DefaultFade},
		Outputs:         ManualOutputs(),
		MaxOpen:         4,
		IdleTimeout:     time.Hour,
		CleanupInterval: time.Hour,
	}
}

func newTestManager(t *testing.T, cfg ManagerConfig, rec *recognizer.Client) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	mgr, err := NewManager(testLogger(), st, rec, nil, cfg)
	require.NoError(t, err)
	t.Cleanup(mgr.Stop)
	return mgr, st
}

// testRecording is 5s of silence with 1650Hz tones at 1-2s and 3-4s
func testRecording(t *testing.T) []byte {
	t.Helper()
	samples := make([]float32, 5*testSampleRate)
	for i := range samples {
		sec := float64(i) / testSampleRate
		if (sec >= 1 && sec < 2) || (sec >= 3 && sec < 4) {
			samples[i] = float32(0.5 * math.Sin(2*math.Pi*1650*sec))
		}
	}
	buf, err := audio.NewBuffer(testSampleRate, [][]float32{samples})
	require.NoError(t, err)

	data, err := audio.EncodeWAV(buf, 16)
	require.NoError(t, err)
	return data
}

func timedInputs() []token.Input {
	return []token.Input{
		{Type: token.InputParagraph, Idx: 0},
		{Type: token.InputTiming, Idx: 1, StartMs: 1200, EndMs: 1800},
		{Type: token.InputPause, Idx: 2},
		{Type: token.InputTiming, Idx: 3, StartMs: 3200, EndMs: 3800},
	}
}

func createTestDocument(t *testing.T, mgr *Manager) *Document {
	t.Helper()
	doc, err := mgr.Create(context.Background(), CreateRequest{
		Name:   "chapter-1",
		Audio:  testRecording(t),
		Inputs: timedInputs(),
	})
	require.NoError(t, err)
	return doc
}

func TestCreateDocument(t *testing.T) {
	mgr, st := newTestManager(t, testConfig(), nil)
	doc := createTestDocument(t, mgr)

	tokens := doc.Tokens()
	require.Len(t, tokens, 4)
	assert.Equal(t, token.KindParagraph, tokens[0].Kind())
	assert.Equal(t, token.LeadingGap, tokens[0].Seconds())
	assert.Equal(t, token.KindPause, tokens[2].Kind())
	assert.Equal(t, token.DefaultPauseDuration, tokens[2].Seconds())

	first := tokens[1].(token.Audio)
	assert.GreaterOrEqual(t, first.Start, 0.85)
	assert.LessOrEqual(t, first.Start, 1.0)
	assert.GreaterOrEqual(t, first.End(), 2.0)
	assert.LessOrEqual(t, first.End(), 2.15)

	second := tokens[3].(token.Audio)
	assert.GreaterOrEqual(t, second.Start, 2.85)
	assert.LessOrEqual(t, second.End(), 4.15)

	assert.Equal(t, 1, mgr.GetActiveDocumentCount())
	assert.True(t, st.Exists(doc.ID))

	stored, err := st.LoadTokens(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, token.ToStorageForm(tokens), stored)

	info := doc.Info()
	assert.Equal(t, "chapter-1", info.Name)
	assert.Equal(t, "wav", info.Format)
	assert.Equal(t, 2, info.AudioTokens)
	assert.Zero(t, info.Fallbacks)
	assert.InDelta(t, 5.0, info.Duration, 1e-9)

	stats := mgr.GetStats()
	assert.Equal(t, uint64(2), stats.Refiner.TotalSegments)
	assert.Nil(t, stats.Recognizer)
}

func TestCreateReportsFallbacks(t *testing.T) {
	mgr, _ := newTestManager(t, testConfig(), nil)

	doc, err := mgr.Create(context.Background(), CreateRequest{
		Audio: testRecording(t),
		Inputs: []token.Input{
			// Past the end of the recording
			{Type: token.InputTiming, Idx: 0, StartMs: 9000, EndMs: 9500},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Info().Fallbacks)
}

func TestCreateRejectsUndecodableAudio(t *testing.T) {
	mgr, st := newTestManager(t, testConfig(), nil)

	_, err := mgr.Create(context.Background(), CreateRequest{
		Audio:  []byte("definitely not audio"),
		Inputs: timedInputs(),
	})
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)

	_, err = mgr.Create(context.Background(), CreateRequest{})
	assert.ErrorIs(t, err, ErrEmptyAudio)

	metas, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, metas)
	assert.Zero(t, mgr.GetActiveDocumentCount())
}

func TestCreateRejectsInvalidInputs(t *testing.T) {
	mgr, _ := newTestManager(t, testConfig(), nil)

	_, err := mgr.Create(context.Background(), CreateRequest{
		Audio: testRecording(t),
		Inputs: []token.Input{
			{Type: token.InputPause, Idx: 0},
			{Type: token.InputPause, Idx: 0},
		},
	})
	assert.ErrorIs(t, err, token.ErrInvalidSequence)

	_, err = mgr.Create(context.Background(), CreateRequest{
		Audio:  testRecording(t),
		Inputs: []token.Input{{Type: "BOGUS", Idx: 0}},
	})
	assert.ErrorIs(t, err, token.ErrInvalidSequence)
}

func TestCreateTextWithoutRecognizer(t *testing.T) {
	mgr, _ := newTestManager(t, testConfig(), nil)

	_, err := mgr.Create(context.Background(), CreateRequest{
		Audio:  testRecording(t),
		Inputs: []token.Input{{Type: token.InputText, Idx: 0, Text: "Once upon a time."}},
	})
	assert.ErrorIs(t, err, ErrNoRecognizer)
}

func TestCreateAlignsText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(recognizer.Response{Segments: []recognizer.Segment{
			{Idx: 0, StartMs: 1200, EndMs: 1800},
			{Idx: 2, StartMs: 3200, EndMs: 3800},
		}})
	}))
	defer server.Close()

	rec, err := recognizer.NewClient(recognizer.Config{Endpoint: server.URL}, testLogger(), nil)
	require.NoError(t, err)

	mgr, _ := newTestManager(t, testConfig(), rec)
	doc, err := mgr.Create(context.Background(), CreateRequest{
		Audio: testRecording(t),
		Inputs: []token.Input{
			{Type: token.InputText, Idx: 0, Text: "Once upon a time."},
			{Type: token.InputPause, Idx: 1, Duration: 0.5},
			{Type: token.InputText, Idx: 2, Text: "The end."},
		},
	})
	require.NoError(t, err)

	tokens := doc.Tokens()
	require.Len(t, tokens, 3)
	assert.Equal(t, token.KindAudio, tokens[0].Kind())
	assert.Equal(t, 0.5, tokens[1].Seconds())
	assert.Equal(t, token.KindAudio, tokens[2].Kind())

	stats := mgr.GetStats()
	require.NotNil(t, stats.Recognizer)
	assert.Equal(t, uint64(1), stats.Recognizer.SuccessRequests)
}

func TestCreateRespectsMaxOpen(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOpen = 1
	mgr, _ := newTestManager(t, cfg, nil)

	createTestDocument(t, mgr)

	_, err := mgr.Create(context.Background(), CreateRequest{
		Audio:  testRecording(t),
		Inputs: timedInputs(),
	})
	assert.ErrorIs(t, err, ErrTooManyOpen)
}

func TestTrimPersistsAndSurvivesReopen(t *testing.T) {
	mgr, st := newTestManager(t, testConfig(), nil)
	doc := createTestDocument(t, mgr)
	before := doc.Tokens()

	st1, err := mgr.Trim(doc.ID, 1, 1.1, 0.5)
	require.NoError(t, err)
	assert.Equal(t, token.Stored{Idx: 1, Type: token.KindAudio, Start: 1.1, Duration: 0.5}, st1)

	// The previous sequence is untouched
	assert.NotEqual(t, 1.1, before[1].(token.Audio).Start)

	stored, err := st.LoadTokens(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.1, stored[1].Start)
	assert.Equal(t, 0.5, stored[1].Duration)

	_, err = mgr.Trim(doc.ID, 2, 0, 1)
	assert.ErrorIs(t, err, token.ErrNotAudio)
	_, err = mgr.Trim(doc.ID, 9, 0, 1)
	assert.ErrorIs(t, err, token.ErrNotFound)
	_, err = mgr.Trim(doc.ID, 1, -1, 1)
	assert.ErrorIs(t, err, token.ErrInvalidSequence)

	require.True(t, mgr.Remove(doc.ID))
	_, err = mgr.Trim(doc.ID, 1, 1, 1)
	assert.ErrorIs(t, err, ErrNotOpen)

	reopened, err := mgr.Open(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "chapter-1", reopened.Name)

	trimmed := reopened.Tokens()[1].(token.Audio)
	assert.Equal(t, 1.1, trimmed.Start)
	assert.Equal(t, 0.5, trimmed.Duration)
	assert.Same(t, reopened.Source(), trimmed.Source)
}

func TestOpenUnknownDocument(t *testing.T) {
	mgr, _ := newTestManager(t, testConfig(), nil)

	_, err := mgr.Open(context.Background(), "8a1c5b8e-5b1e-4c36-9d0c-2f5e2b3c4d5e")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = mgr.Play("not-a-uuid", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenReturnsOpenDocument(t *testing.T) {
	mgr, _ := newTestManager(t, testConfig(), nil)
	doc := createTestDocument(t, mgr)

	again, err := mgr.Open(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Same(t, doc, again)
}

func TestPlaybackOperations(t *testing.T) {
	mgr, _ := newTestManager(t, testConfig(), nil)
	doc := createTestDocument(t, mgr)

	state, err := mgr.Play(doc.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, playback.StatusPlaying, state.Status)

	// The manual output clock does not move
	state, err = mgr.Pause(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, playback.StatusPaused, state.Status)
	assert.Equal(t, 0.0, state.Offset)

	state, err = mgr.Toggle(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, playback.StatusPlaying, state.Status)

	_, position, err := mgr.State(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, position)

	state, err = mgr.StopPlayback(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, playback.StatusStopped, state.Status)

	state, err = mgr.Play(doc.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, playback.StatusStopped, state.Status)

	_, err = mgr.Play(doc.ID, -1)
	assert.ErrorIs(t, err, playback.ErrInvalidOffset)
}

func TestExport(t *testing.T) {
	mgr, _ := newTestManager(t, testConfig(), nil)
	doc := createTestDocument(t, mgr)

	data, err := mgr.Export(context.Background(), doc.ID)
	require.NoError(t, err)

	info, err := audio.GetWAVInfo(data)
	require.NoError(t, err)
	assert.Equal(t, testSampleRate, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.InDelta(t, doc.Tokens().Total(), info.Duration, 0.01)
}

func TestListAndDelete(t *testing.T) {
	mgr, st := newTestManager(t, testConfig(), nil)
	first := createTestDocument(t, mgr)
	second := createTestDocument(t, mgr)
	require.True(t, mgr.Remove(first.ID))

	infos, err := mgr.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	open := map[string]bool{}
	for _, info := range infos {
		open[info.ID] = info.Open
	}
	assert.False(t, open[first.ID])
	assert.True(t, open[second.ID])

	require.NoError(t, mgr.Delete(second.ID))
	assert.False(t, st.Exists(second.ID))
	assert.Equal(t, 0, mgr.GetActiveDocumentCount())

	assert.ErrorIs(t, mgr.Delete(second.ID), ErrNotFound)
}

func TestCleanupClosesIdleDocuments(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 20 * time.Millisecond
	cfg.CleanupInterval = 10 * time.Millisecond
	mgr, st := newTestManager(t, cfg, nil)

	doc := createTestDocument(t, mgr)

	assert.Eventually(t, func() bool {
		return mgr.GetActiveDocumentCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, st.Exists(doc.ID))
}

func TestCreateCancelled(t *testing.T) {
	mgr, st := newTestManager(t, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.Create(ctx, CreateRequest{Audio: testRecording(t), Inputs: timedInputs()})
	assert.ErrorIs(t, err, context.Canceled)

	metas, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestInfoAndTokens(t *testing.T) {
	mgr, _ := newTestManager(t, testConfig(), nil)
	doc := createTestDocument(t, mgr)

	placements, err := mgr.Tokens(doc.ID)
	require.NoError(t, err)
	require.Len(t, placements, 4)
	assert.Equal(t, 0.0, placements[0].Position)
	assert.Equal(t, token.LeadingGap, placements[1].Position)

	info, err := mgr.Info(doc.ID)
	require.NoError(t, err)
	assert.True(t, info.Open)

	mgr.Remove(doc.ID)
	info, err = mgr.Info(doc.ID)
	require.NoError(t, err)
	assert.False(t, info.Open)
	assert.Equal(t, 4, info.Tokens)

	_, err = mgr.Tokens(doc.ID)
	assert.ErrorIs(t, err, ErrNotOpen)

	_, err = mgr.Info("4b0e3a52-7d0f-4f7e-8a55-1b9a3c2d1e0f")
	assert.ErrorIs(t, err, ErrNotFound)
}
