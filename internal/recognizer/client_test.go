package recognizer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/narration-engine/internal/token"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, endpoint string, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Endpoint:      endpoint,
		APIKey:        "secret",
		Timeout:       5 * time.Second,
		MaxRetries:    retries,
		MaxConcurrent: 2,
		Language:      "en",
		BaseBackoff:   time.Millisecond,
	}, testLogger(), nil)
	require.NoError(t, err)
	return c
}

func testRequest() *Request {
	return &Request{
		DocumentID: "doc-1",
		Audio:      []byte("RIFF-fake-audio"),
		Format:     "wav",
		Lines: []Line{
			{Idx: 1, Text: "Hello there."},
			{Idx: 3, Text: "General Kenobi."},
		},
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{}, testLogger(), nil)
	assert.Error(t, err)
}

func TestAlign(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "doc-1", r.FormValue("document_id"))
		assert.Equal(t, "en", r.FormValue("language"))
		assert.NotEmpty(t, r.FormValue("request_id"))

		var lines []Line
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("lines")), &lines))
		assert.Len(t, lines, 2)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "doc-1.wav", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "RIFF-fake-audio", string(data))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Response{Segments: []Segment{
			{Idx: 1, StartMs: 120, EndMs: 980},
			{Idx: 3, StartMs: 1400, EndMs: 2300},
		}})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 0)
	resp, err := c.Align(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, resp.Segments, 2)
	assert.Equal(t, 1400.0, resp.Segments[1].StartMs)
	assert.NotEmpty(t, resp.RequestID)
	assert.False(t, resp.ProcessedAt.IsZero())

	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.SuccessRequests)
	assert.Equal(t, 100.0, stats.SuccessRate)
}

func TestAlignRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Response{Segments: []Segment{{Idx: 1, StartMs: 0, EndMs: 500}}})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 3)
	resp, err := c.Align(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Len(t, resp.Segments, 1)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, uint64(2), c.GetStats().TotalRetries)
}

func TestAlignDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad lines", http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 3)
	_, err := c.Align(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP error 400")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), c.GetStats().FailedRequests)
}

func TestAlignGivesUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2)
	_, err := c.Align(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestAlignCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 5)
	c.config.BaseBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Align(ctx, testRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAlignRejectsEmptyAudio(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", 0)
	_, err := c.Align(context.Background(), &Request{DocumentID: "x"})
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	inputs := []token.Input{
		{Type: token.InputParagraph, Idx: 0},
		{Type: token.InputText, Idx: 1, Text: "Hello there."},
		{Type: token.InputPause, Idx: 2},
		{Type: token.InputText, Idx: 3, Text: "General Kenobi."},
	}

	lines := Lines(inputs)
	require.Len(t, lines, 2)
	assert.Equal(t, 3, lines[1].Idx)

	aligned, err := Apply(inputs, &Response{Segments: []Segment{
		{Idx: 3, StartMs: 1400, EndMs: 2300},
		{Idx: 1, StartMs: 120, EndMs: 980},
	}})
	require.NoError(t, err)

	assert.Equal(t, token.InputParagraph, aligned[0].Type)
	assert.Equal(t, token.InputTiming, aligned[1].Type)
	assert.Equal(t, 120.0, aligned[1].StartMs)
	assert.Equal(t, 2300.0, aligned[3].EndMs)

	// Inputs are not modified
	assert.Equal(t, token.InputText, inputs[1].Type)

	_, err = Apply(inputs, &Response{Segments: []Segment{{Idx: 1}}})
	assert.Error(t, err)
}
