package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/skypro1111/narration-engine/internal/document"
	"github.com/skypro1111/narration-engine/internal/playback"
	"github.com/skypro1111/narration-engine/internal/render"
	"github.com/skypro1111/narration-engine/internal/token"
)

// multipartMemory is the part of an upload kept in memory before spilling
// to temporary files
const multipartMemory = 32 << 20

var errBadRequest = errors.New("bad request")

// documentResponse is returned on create and open
type documentResponse struct {
	Document document.Info      `json:"document"`
	Tokens   []token.Placement `json:"tokens"`
}

// stateResponse is returned by every transport endpoint
type stateResponse struct {
	State    playback.State `json:"state"`
	Position float64        `json:"position"`
}

// trimRequest is the body of PATCH /documents/{id}/tokens/{idx}
type trimRequest struct {
	Start    *float64 `json:"start"`
	Duration *float64 `json:"duration"`
}

// handleCreateDocument implements POST /documents
func (h *HTTPServer) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	if h.config.HTTP.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.HTTP.MaxUploadSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: parsing upload: %w", errBadRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: missing audio part: %w", errBadRequest, err))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: reading audio part: %w", errBadRequest, err))
		return
	}

	var inputs []token.Input
	if err := json.Unmarshal([]byte(r.FormValue("tokens")), &inputs); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: tokens must be a JSON array: %w", errBadRequest, err))
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	doc, err := h.docs.Create(r.Context(), document.CreateRequest{
		Name:   name,
		Audio:  raw,
		Inputs: inputs,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, documentResponse{Document: doc.Info(), Tokens: doc.Snapshot()})
}

// handleListDocuments implements GET /documents
func (h *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	infos, err := h.docs.List()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_documents": len(infos),
		"timestamp":       time.Now().UTC(),
		"documents":       infos,
	})
}

// handleGetDocument implements GET /documents/{id}
func (h *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	info, err := h.docs.Info(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleDeleteDocument implements DELETE /documents/{id}
func (h *HTTPServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Delete(r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOpenDocument implements POST /documents/{id}/open
func (h *HTTPServer) handleOpenDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{Document: doc.Info(), Tokens: doc.Snapshot()})
}

// handleTokens implements GET /documents/{id}/tokens
func (h *HTTPServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	placements, err := h.docs.Tokens(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, placements)
}

// handleTrim implements PATCH /documents/{id}/tokens/{idx}
func (h *HTTPServer) handleTrim(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid token index %q", errBadRequest, r.PathValue("idx")))
		return
	}

	var req trimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid JSON body: %w", errBadRequest, err))
		return
	}
	if req.Start == nil || req.Duration == nil {
		h.writeError(w, r, fmt.Errorf("%w: start and duration are required", errBadRequest))
		return
	}

	st, err := h.docs.Trim(r.PathValue("id"), idx, *req.Start, *req.Duration)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleExport implements GET /documents/{id}/export
func (h *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := h.docs.Export(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	name := h.config.Export.FileName
	if name == "" {
		name = render.ExportFileName
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("Failed to write export",
			slog.String("document_id", r.PathValue("id")),
			slog.String("error", err.Error()),
		)
	}
}

// handlePlay implements POST /documents/{id}/play?start=
func (h *HTTPServer) handlePlay(w http.ResponseWriter, r *http.Request) {
	start := 0.0
	if raw := r.URL.Query().Get("start"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) {
			h.writeError(w, r, fmt.Errorf("%w: invalid start %q", errBadRequest, raw))
			return
		}
		start = v
	}

	id := r.PathValue("id")
	if _, err := h.docs.Play(id, start); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeState(w, r, id)
}

// handlePause implements POST /documents/{id}/pause
func (h *HTTPServer) handlePause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.docs.Pause(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeState(w, r, id)
}

// handleStop implements POST /documents/{id}/stop
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.docs.StopPlayback(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeState(w, r, id)
}

// handleToggle implements POST /documents/{id}/toggle
func (h *HTTPServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.docs.Toggle(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeState(w, r, id)
}

// handleState implements GET /documents/{id}/state
func (h *HTTPServer) handleState(w http.ResponseWriter, r *http.Request) {
	h.writeState(w, r, r.PathValue("id"))
}

func (h *HTTPServer) writeState(w http.ResponseWriter, r *http.Request, id string) {
	state, position, err := h.docs.State(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{State: state, Position: position})
}
