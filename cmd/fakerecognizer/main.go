// Command fakerecognizer is a stand-in alignment service for local runs. It
// spreads the submitted lines over the recording in proportion to their
// text length.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/skypro1111/narration-engine/internal/audio"
	"github.com/skypro1111/narration-engine/internal/recognizer"
)

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	mux := http.NewServeMux()
	mux.Handle("POST /align", alignHandler(logger, *delay))

	logger.Info("Fake recognizer starting",
		slog.String("address", *addr),
		slog.String("endpoint", "http://localhost"+*addr+"/align"),
	)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func alignHandler(logger *slog.Logger, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "Error parsing form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Error getting audio file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Error reading audio file", http.StatusInternalServerError)
			return
		}

		var lines []recognizer.Line
		if err := json.Unmarshal([]byte(r.FormValue("lines")), &lines); err != nil {
			http.Error(w, "Error parsing lines", http.StatusBadRequest)
			return
		}

		buf, err := audio.Decode(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		logger.Info("Alignment request received",
			slog.String("request_id", r.FormValue("request_id")),
			slog.String("document_id", r.FormValue("document_id")),
			slog.String("filename", header.Filename),
			slog.Int("audio_size", len(data)),
			slog.Float64("duration", buf.Duration()),
			slog.Int("lines", len(lines)),
		)

		time.Sleep(delay)

		resp := recognizer.Response{
			RequestID:   r.FormValue("request_id"),
			Segments:    spread(lines, buf.Duration()*1000),
			ProcessedAt: time.Now(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// spread assigns each line a share of totalMs proportional to its length
func spread(lines []recognizer.Line, totalMs float64) []recognizer.Segment {
	chars := 0
	for _, l := range lines {
		chars += len(l.Text) + 1
	}
	if chars == 0 {
		return nil
	}

	segments := make([]recognizer.Segment, 0, len(lines))
	cursor := 0.0
	for _, l := range lines {
		span := totalMs * float64(len(l.Text)+1) / float64(chars)
		segments = append(segments, recognizer.Segment{
			Idx:        l.Idx,
			StartMs:    cursor,
			EndMs:      cursor + span,
			Confidence: 0.5,
		})
		cursor += span
	}
	return segments
}
