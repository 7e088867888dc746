package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hylla/kollage/internal/domain"
)

// GesturePhase is the lifecycle step of one pointer event.
type GesturePhase string

// GesturePhase values.
const (
	PhaseStart  GesturePhase = "start"
	PhaseMove   GesturePhase = "move"
	PhaseEnd    GesturePhase = "end"
	PhaseCancel GesturePhase = "cancel"
)

// GestureHandle selects what a gesture manipulates.
type GestureHandle string

// GestureHandle values.
const (
	HandleMove   GestureHandle = "move"
	HandleResize GestureHandle = "resize"
)

// GestureState is the controller's state.
type GestureState string

// GestureState values.
const (
	GestureIdle     GestureState = "idle"
	GestureMoving   GestureState = "moving"
	GestureResizing GestureState = "resizing"
)

// Autoscroll edge margin and step, in pixels.
const (
	AutoscrollMargin = 24.0
	AutoscrollStep   = 20.0
)

// InputEvent is one pointer sample in grid content coordinates.
// Rect optionally carries the tile's on-screen rectangle at start.
// ViewportY is the pointer's offset from the top of the visible viewport,
// used for edge autoscroll on scrolling boards.
type InputEvent struct {
	Phase     GesturePhase  `json:"phase"`
	Handle    GestureHandle `json:"handle,omitempty"`
	TileID    string        `json:"tile_id,omitempty"`
	X         float64       `json:"x"`
	Y         float64       `json:"y"`
	Shift     bool          `json:"shift,omitempty"`
	Rect      *domain.Rect  `json:"rect,omitempty"`
	ViewportY *float64      `json:"viewport_y,omitempty"`
}

// Preview describes what a renderer should show for the current gesture.
type Preview struct {
	State      GestureState `json:"state"`
	TileID     string       `json:"tile_id,omitempty"`
	Hidden     bool         `json:"hidden"`
	Ghost      *domain.Rect `json:"ghost,omitempty"`
	Span       domain.Span  `json:"span"`
	Autoscroll float64      `json:"autoscroll,omitempty"`
	Committed  *domain.Tile `json:"-"`
}

// GestureController turns a stream of pointer events into tile moves and
// resizes on one board. It handles one gesture at a time. Between events it
// keeps the tile id and the pixel ghost; grid geometry is reloaded from the
// board on every event so a viewport change mid-gesture is honored.
type GestureController struct {
	svc     *Service
	boardID string

	mu     sync.Mutex
	state  GestureState
	tileID string
	ghost  domain.Rect
	lastX  float64
	lastY  float64
	span   domain.Span

	// resize-only
	originX       float64
	startSpan     domain.Span
	rowsPerColumn float64
	rowsLocked    bool
	resized       bool
	aspect        float64
}

// NewGestureController binds a controller to one board.
func (s *Service) NewGestureController(boardID string) *GestureController {
	return &GestureController{svc: s, boardID: boardID, state: GestureIdle}
}

// BoardID returns the controlled board.
func (g *GestureController) BoardID() string {
	return g.boardID
}

// State returns the current controller state.
func (g *GestureController) State() GestureState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Close abandons an active gesture without committing it.
func (g *GestureController) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

// Handle advances the state machine with one event.
func (g *GestureController) Handle(ctx context.Context, ev InputEvent) (Preview, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch ev.Phase {
	case PhaseStart:
		if g.state != GestureIdle {
			return g.preview(), ErrGestureActive
		}
		switch ev.Handle {
		case HandleMove, "":
			return g.startMove(ctx, ev)
		case HandleResize:
			return g.startResize(ctx, ev)
		default:
			return g.preview(), fmt.Errorf("%w: unknown handle %q", ErrInvalidGesture, ev.Handle)
		}
	case PhaseMove:
		if g.state == GestureIdle {
			return g.preview(), ErrNoGesture
		}
		layout, err := g.current(ctx)
		if err != nil {
			return g.preview(), err
		}
		if g.state == GestureResizing {
			return g.resizeTo(layout, ev), nil
		}
		return g.moveGhost(layout, ev), nil
	case PhaseEnd, PhaseCancel:
		if g.state == GestureIdle {
			return g.preview(), ErrNoGesture
		}
		layout, err := g.current(ctx)
		if err != nil {
			g.reset()
			return g.preview(), err
		}
		if g.state == GestureResizing {
			return g.endResize(ctx, layout, ev)
		}
		return g.endMove(ctx, layout, ev)
	default:
		return g.preview(), fmt.Errorf("%w: unknown phase %q", ErrInvalidGesture, ev.Phase)
	}
}

// begin captures the tile's current layout.
func (g *GestureController) begin(ctx context.Context, ev InputEvent) (domain.Tile, domain.Rect, BoardLayout, error) {
	layout, err := g.svc.Layout(ctx, g.boardID)
	if err != nil {
		return domain.Tile{}, domain.Rect{}, BoardLayout{}, err
	}
	if !layout.Metrics.Usable() {
		return domain.Tile{}, domain.Rect{}, BoardLayout{}, domain.ErrDegenerateGrid
	}
	tile, ok := layout.Board.Tile(ev.TileID)
	if !ok {
		return domain.Tile{}, domain.Rect{}, BoardLayout{}, fmt.Errorf("tile %q: %w", ev.TileID, ErrNotFound)
	}
	placement, _ := layout.Placement(tile.ID)
	rect := layout.Metrics.CellRect(placement.Column, placement.Row, placement.ColumnSpan, placement.RowSpan)
	if ev.Rect != nil && ev.Rect.Width > 0 && ev.Rect.Height > 0 {
		rect = *ev.Rect
	}
	return tile, rect, layout, nil
}

// current reloads the board for an active gesture.
func (g *GestureController) current(ctx context.Context) (BoardLayout, error) {
	layout, err := g.svc.Layout(ctx, g.boardID)
	if err != nil {
		return BoardLayout{}, err
	}
	if !layout.Metrics.Usable() {
		return BoardLayout{}, domain.ErrDegenerateGrid
	}
	if _, ok := layout.Board.Tile(g.tileID); !ok {
		return BoardLayout{}, fmt.Errorf("tile %q: %w", g.tileID, ErrNotFound)
	}
	return layout, nil
}

func (g *GestureController) startMove(ctx context.Context, ev InputEvent) (Preview, error) {
	tile, rect, layout, err := g.begin(ctx, ev)
	if err != nil {
		return g.preview(), err
	}
	g.state = GestureMoving
	g.tileID = tile.ID
	g.ghost = rect
	g.lastX, g.lastY = ev.X, ev.Y
	g.span = domain.Span{ColumnSpan: tile.ColumnSpan, RowSpan: tile.RowSpan}
	g.snapGhost(layout.Metrics)
	return g.preview(), nil
}

// moveGhost translates the ghost by the pointer delta since the last event.
func (g *GestureController) moveGhost(layout BoardLayout, ev InputEvent) Preview {
	m := layout.Metrics
	g.ghost.X += ev.X - g.lastX
	g.ghost.Y += ev.Y - g.lastY
	g.lastX, g.lastY = ev.X, ev.Y
	size := m.CellRect(1, 1, g.span.ColumnSpan, g.span.RowSpan)
	g.ghost.Width, g.ghost.Height = size.Width, size.Height

	g.ghost.X = clampFloat(g.ghost.X, 0, math.Max(0, m.InnerWidth-g.ghost.Width))
	if m.Bounded() {
		g.ghost.Y = clampFloat(g.ghost.Y, 0, math.Max(0, m.InnerHeight-g.ghost.Height))
	} else {
		g.ghost.Y = math.Max(0, g.ghost.Y)
	}
	g.snapGhost(m)

	p := g.preview()
	if !m.Bounded() && ev.ViewportY != nil {
		switch {
		case *ev.ViewportY < AutoscrollMargin:
			p.Autoscroll = -AutoscrollStep
		case *ev.ViewportY > layout.Board.Viewport.Height-AutoscrollMargin:
			p.Autoscroll = AutoscrollStep
		}
	}
	return p
}

// snapGhost records the cell the ghost's top-left currently maps to.
func (g *GestureController) snapGhost(m domain.Metrics) {
	g.span.Column = m.PixelToColumn(g.ghost.X)
	g.span.Row = m.PixelToRow(g.ghost.Y)
}

// endMove snaps the ghost to a cell and commits. End and cancel both commit.
func (g *GestureController) endMove(ctx context.Context, layout BoardLayout, ev InputEvent) (Preview, error) {
	if ev.Phase != PhaseEnd {
		ev.X, ev.Y = g.lastX, g.lastY
	}
	g.moveGhost(layout, ev)
	tileID, span := g.tileID, g.span
	g.reset()
	tile, err := g.svc.MoveTile(ctx, g.boardID, tileID, span.Column, span.Row)
	if err != nil {
		return g.preview(), err
	}
	p := g.preview()
	p.TileID = tile.ID
	p.Span = spanOf(tile, span)
	p.Committed = &tile
	return p, nil
}

func (g *GestureController) startResize(ctx context.Context, ev InputEvent) (Preview, error) {
	tile, rect, layout, err := g.begin(ctx, ev)
	if err != nil {
		return g.preview(), err
	}
	m := layout.Metrics
	col, row, ok := tile.Position.Cell()
	if !ok {
		// Auto tiles resize from where they are drawn, not from column 1.
		col = m.PixelToColumn(rect.X)
		row = m.PixelToRow(rect.Y)
	}
	g.state = GestureResizing
	g.tileID = tile.ID
	g.ghost = rect
	g.originX = ev.X
	g.lastX, g.lastY = ev.X, ev.Y
	g.aspect = tile.AspectRatio
	g.rowsPerColumn = 0
	if rect.Width > 0 && m.UnitY > 0 {
		g.rowsPerColumn = (rect.Height / rect.Width) * m.UnitX / m.UnitY
	}
	g.startSpan = domain.Span{Column: col, Row: row, ColumnSpan: tile.ColumnSpan, RowSpan: tile.RowSpan}
	g.span = g.startSpan
	return g.preview(), nil
}

// resizeTo recomputes the preview spans for the pointer position.
func (g *GestureController) resizeTo(layout BoardLayout, ev InputEvent) Preview {
	m := layout.Metrics
	tile, _ := layout.Board.Tile(g.tileID)
	otherCells := layout.UsedCells - tile.Area()
	g.lastX, g.lastY = ev.X, ev.Y
	rowsFor := aspectRows(m, g.aspect)
	if ev.Shift && g.rowsPerColumn > 0 {
		rowsFor = lockedRows(g.rowsPerColumn)
	}
	start := g.startSpan
	colSpan := start.ColumnSpan + m.ColumnDelta(ev.X-g.originX)
	colSpan = min(max(1, colSpan), m.Columns-start.Column+1)
	fit := domain.FitWithinRows(m, domain.Span{
		Column:     start.Column,
		Row:        start.Row,
		ColumnSpan: colSpan,
		RowSpan:    rowsFor(colSpan),
	}, rowsFor)
	if clamped, err := domain.ClampToCapacity(m, fit, otherCells, rowsFor); err == nil {
		g.span = clamped
	}
	g.rowsLocked = ev.Shift
	g.resized = true
	rect := m.CellRect(g.span.Column, g.span.Row, g.span.ColumnSpan, g.span.RowSpan)
	g.ghost = rect
	return g.preview()
}

// endResize commits the last previewed spans. End and cancel both commit.
func (g *GestureController) endResize(ctx context.Context, layout BoardLayout, ev InputEvent) (Preview, error) {
	if ev.Phase != PhaseEnd {
		ev.X, ev.Y = g.lastX, g.lastY
	}
	if g.resized || ev.X != g.lastX {
		ev.Shift = ev.Shift || g.rowsLocked
		g.resizeTo(layout, ev)
	}
	tileID, span := g.tileID, g.span
	in := ResizeTileInput{
		ColumnSpan:  span.ColumnSpan,
		RowSpan:     span.RowSpan,
		ColumnStart: &span.Column,
		RowStart:    &span.Row,
	}
	if g.rowsLocked {
		in.RowsPerColumn = g.rowsPerColumn
	}
	g.reset()
	tile, err := g.svc.ResizeTile(ctx, g.boardID, tileID, in)
	if err != nil {
		return g.preview(), err
	}
	p := g.preview()
	p.TileID = tile.ID
	p.Span = spanOf(tile, span)
	p.Committed = &tile
	return p, nil
}

// preview reports the current state.
func (g *GestureController) preview() Preview {
	p := Preview{State: g.state}
	if g.state == GestureIdle {
		return p
	}
	ghost := g.ghost
	p.TileID = g.tileID
	p.Hidden = g.state == GestureMoving
	p.Ghost = &ghost
	p.Span = g.span
	return p
}

// reset returns the controller to idle.
func (g *GestureController) reset() {
	g.state = GestureIdle
	g.tileID = ""
	g.ghost = domain.Rect{}
	g.span = domain.Span{}
	g.startSpan = domain.Span{}
	g.rowsPerColumn = 0
	g.rowsLocked = false
	g.resized = false
}

// spanOf reports a committed tile's cells, falling back to the gesture span for Auto tiles.
func spanOf(t domain.Tile, fallback domain.Span) domain.Span {
	col, row, ok := t.Position.Cell()
	if !ok {
		col, row = fallback.Column, fallback.Row
	}
	return domain.Span{Column: col, Row: row, ColumnSpan: t.ColumnSpan, RowSpan: t.RowSpan}
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// IsGestureError reports whether err came from the gesture state machine itself.
func IsGestureError(err error) bool {
	return errors.Is(err, ErrGestureActive) || errors.Is(err, ErrNoGesture) || errors.Is(err, ErrInvalidGesture)
}
