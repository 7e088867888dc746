// Package liveapi streams gesture previews and settled board documents over websockets.
package liveapi

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hylla/kollage/internal/app"
)

// Frame types sent to clients.
const (
	FrameHello   = "hello"
	FramePreview = "preview"
	FrameCommit  = "commit"
	FrameSaved   = "saved"
	FrameError   = "error"
)

// Frame is one outbound websocket message.
type Frame struct {
	Type     string          `json:"type"`
	BoardID  string          `json:"board_id"`
	Preview  *app.Preview    `json:"preview,omitempty"`
	Tile     *TileFrame      `json:"tile,omitempty"`
	Document json.RawMessage `json:"document,omitempty"`
	Tiles    int             `json:"tiles,omitempty"`
	Code     string          `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
	At       time.Time       `json:"at"`
}

// TileFrame is a committed tile's stored geometry.
type TileFrame struct {
	ID          string `json:"id"`
	ColumnStart *int   `json:"col_start"`
	RowStart    *int   `json:"row_start"`
	ColumnSpan  int    `json:"col_span"`
	RowSpan     int    `json:"row_span"`
}

// Hub fans settled board documents out to every client watching that board.
// It implements app.ChangeSink.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{clients: map[string]map[*client]struct{}{}}
}

// Publish broadcasts a saved frame. Clients with full send buffers miss the frame.
func (h *Hub) Publish(_ context.Context, note app.ChangeNotification) error {
	frame := Frame{
		Type:     FrameSaved,
		BoardID:  note.BoardID,
		Document: json.RawMessage(note.Document),
		Tiles:    note.Tiles,
		At:       note.At,
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[note.BoardID] {
		c.offer(frame)
	}
	return nil
}

// Watchers reports how many clients follow one board.
func (h *Hub) Watchers(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[boardID])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.boardID]
	if !ok {
		set = map[*client]struct{}{}
		h.clients[c.boardID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.boardID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.boardID)
	}
}
