package liveapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hylla/kollage/internal/adapters/server/common"
	"github.com/hylla/kollage/internal/app"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Handler upgrades `/{boardID}` requests into live gesture sessions.
type Handler struct {
	svc      *app.Service
	hub      *Hub
	upgrader websocket.Upgrader
	router   chi.Router
	now      func() time.Time
}

// Config configures the live handler.
type Config struct {
	// AllowedOrigins restricts browser origins. Empty allows same-host requests only.
	AllowedOrigins []string
}

// NewHandler constructs a live handler. Saved documents reach clients only
// when hub is subscribed to svc.
func NewHandler(svc *app.Service, hub *Hub, cfg Config) *Handler {
	if hub == nil {
		hub = NewHub()
	}
	h := &Handler{svc: svc, hub: hub, now: time.Now}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	r := chi.NewRouter()
	r.Get("/{boardID}", h.handleConnect)
	h.router = r
	return h
}

// Hub returns the hub used for saved-document fan-out.
func (h *Handler) Hub() *Hub {
	return h.hub
}

// ServeHTTP routes one live request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		if !ok {
			_, ok = set["*"]
		}
		return ok
	}
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")
	if h.svc == nil {
		http.Error(w, "board service is not configured", http.StatusServiceUnavailable)
		return
	}
	if _, err := h.svc.GetBoard(r.Context(), boardID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, app.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("live upgrade failed", "board_id", boardID, "err", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	c := &client{
		boardID: boardID,
		conn:    conn,
		send:    make(chan Frame, sendBuffer),
		gesture: h.svc.NewGestureController(boardID),
	}
	h.hub.register(c)
	log.Debug("live client connected", "board_id", boardID, "remote", r.RemoteAddr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	c.offer(Frame{Type: FrameHello, BoardID: boardID, At: h.now().UTC()})
	c.readPump(ctx, h.now)

	h.hub.unregister(c)
	c.gesture.Close()
	c.close()
	wg.Wait()
	log.Debug("live client disconnected", "board_id", boardID)
}

// client is one websocket connection bound to a board.
type client struct {
	boardID string
	conn    *websocket.Conn
	gesture *app.GestureController

	mu     sync.Mutex
	closed bool
	send   chan Frame
}

// offer queues a frame without blocking. It reports false when the frame was dropped.
func (c *client) offer(f Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump feeds pointer events into the gesture controller until the peer goes away.
func (c *client) readPump(ctx context.Context, now func() time.Time) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("live connection closed unexpectedly", "board_id", c.boardID, "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var ev app.InputEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.offer(Frame{Type: FrameError, BoardID: c.boardID, Code: common.CodeInvalidRequest, Message: err.Error(), At: now().UTC()})
			continue
		}
		preview, err := c.gesture.Handle(ctx, ev)
		if err != nil {
			c.offer(Frame{Type: FrameError, BoardID: c.boardID, Code: common.ErrorCode(err), Message: err.Error(), At: now().UTC()})
			continue
		}
		frame := Frame{Type: FramePreview, BoardID: c.boardID, Preview: &preview, At: now().UTC()}
		if t := preview.Committed; t != nil {
			frame.Type = FrameCommit
			frame.Tile = &TileFrame{ID: t.ID, ColumnSpan: t.ColumnSpan, RowSpan: t.RowSpan}
			if col, row, ok := t.Position.Cell(); ok {
				frame.Tile.ColumnStart, frame.Tile.RowStart = &col, &row
			}
		}
		c.offer(frame)
	}
}

// writePump serializes all writes to the connection and keeps it alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				log.Warn("live write failed", "board_id", c.boardID, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
