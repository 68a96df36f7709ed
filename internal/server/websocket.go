package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/narration-engine/internal/document"
	"github.com/skypro1111/narration-engine/internal/playback"
)

// positionInterval is how often a playing document reports its position
const positionInterval = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is sent to websocket clients. Type is "state" on every
// transition, "position" while playing and "error" for rejected controls.
type wsMessage struct {
	Type     string          `json:"type"`
	State    *playback.State `json:"state,omitempty"`
	Position float64         `json:"position"`
	Error    string          `json:"error,omitempty"`
}

// wsControl is a transport command from a websocket client
type wsControl struct {
	Action string  `json:"action"` // play, pause, stop or toggle
	Start  float64 `json:"start"`  // play only, seconds
}

// handleWebSocket implements GET /documents/{id}/ws
func (h *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, _, err := h.docs.State(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, ok := h.docs.Get(id)
	if !ok {
		h.writeError(w, r, fmt.Errorf("%w: %s", document.ErrNotOpen, id))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			slog.String("document_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	h.logger.Debug("WebSocket client connected",
		slog.String("document_id", id),
		slog.String("remote_addr", r.RemoteAddr),
	)

	states, unsubscribe := doc.Player().Subscribe()
	defer unsubscribe()

	// The writer loop below is the only goroutine writing to conn
	outbox := make(chan wsMessage, 8)
	quit := make(chan struct{})
	defer close(quit)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readControls(conn, id, outbox, quit)
	}()

	ticker := time.NewTicker(positionInterval)
	defer ticker.Stop()

	for {
		var msg wsMessage
		select {
		case <-done:
			return

		case state, ok := <-states:
			if !ok {
				return
			}
			_, position, err := h.docs.State(id)
			if err != nil {
				return
			}
			msg = wsMessage{Type: "state", State: &state, Position: position}

		case msg = <-outbox:

		case <-ticker.C:
			// State also moves a finished document to STOPPED, which
			// arrives through states
			state, position, err := h.docs.State(id)
			if err != nil {
				conn.WriteJSON(wsMessage{Type: "error", Error: err.Error()})
				return
			}
			if state.Status != playback.StatusPlaying {
				continue
			}
			msg = wsMessage{Type: "position", Position: position}
		}

		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("WebSocket write failed",
				slog.String("document_id", id),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// readControls applies client commands until the connection fails
func (h *HTTPServer) readControls(conn *websocket.Conn, id string, outbox chan<- wsMessage, quit <-chan struct{}) {
	for {
		var ctl wsControl
		if err := conn.ReadJSON(&ctl); err != nil {
			return
		}

		var err error
		switch ctl.Action {
		case "play":
			_, err = h.docs.Play(id, ctl.Start)
		case "pause":
			_, err = h.docs.Pause(id)
		case "stop":
			_, err = h.docs.StopPlayback(id)
		case "toggle":
			_, err = h.docs.Toggle(id)
		default:
			err = fmt.Errorf("unknown action %q", ctl.Action)
		}

		if err != nil {
			select {
			case outbox <- wsMessage{Type: "error", Error: err.Error()}:
			case <-quit:
				return
			}
		}
	}
}
