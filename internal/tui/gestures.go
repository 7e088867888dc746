package tui

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"

	"github.com/hylla/kollage/internal/app"
)

// Board origin on screen: one title line, then the rounded border.
const (
	boardLeft = 1
	boardTop  = 2
	// chromeLines counts title, both borders, status, and the help footer.
	chromeLines = 6
)

// cellWidth is the number of terminal columns drawn per grid column.
func (m Model) cellWidth() int {
	cols := max(1, m.layout.Metrics.Columns)
	if m.width <= 2 {
		return 3
	}
	return max(1, (m.width-2)/cols)
}

// contentRows is the number of grid rows the board needs on screen.
func (m Model) contentRows() int {
	met := m.layout.Metrics
	if met.Bounded() {
		return max(1, met.MaxRows)
	}
	bottom := 0
	for _, p := range m.layout.Placements {
		bottom = max(bottom, p.Row+p.RowSpan-1)
	}
	if m.preview.State != app.GestureIdle {
		bottom = max(bottom, m.preview.Span.Row+m.preview.Span.RowSpan-1)
	}
	// One spare row so tiles can be dropped below the last one.
	return bottom + 1
}

// visibleRows is contentRows limited to the terminal height.
func (m Model) visibleRows() int {
	rows := m.contentRows()
	if m.height > 0 {
		rows = min(rows, max(1, m.height-chromeLines))
	}
	return rows
}

// cellAt maps a terminal position to a 1-based grid cell.
func (m Model) cellAt(x, y int) (int, int, bool) {
	dx, dy := x-boardLeft, y-boardTop
	if dx < 0 || dy < 0 || dy >= m.visibleRows() {
		return 0, 0, false
	}
	col := dx/m.cellWidth() + 1
	if col > m.layout.Metrics.Columns {
		return 0, 0, false
	}
	return col, dy + 1 + m.scrollRow, true
}

// pointAt maps a terminal position to grid content pixels.
func (m Model) pointAt(x, y int) (float64, float64) {
	met := m.layout.Metrics
	px := float64(x-boardLeft) / float64(m.cellWidth()) * met.UnitX
	py := float64(y-boardTop+m.scrollRow) * met.UnitY
	return max(0, px), max(0, py)
}

func (m Model) handleMouseClick(msg tea.MouseClickMsg) (tea.Model, tea.Cmd) {
	if msg.Button != tea.MouseLeft || !m.loaded || m.showInfo || m.help.ShowAll {
		return m, nil
	}
	if m.gesture.State() != app.GestureIdle {
		return m, nil
	}
	col, row, ok := m.cellAt(msg.X, msg.Y)
	if !ok {
		return m, nil
	}
	tileID, ok := m.layout.TileAt(col, row)
	if !ok {
		return m, nil
	}
	m.selectedID = tileID

	handle := app.HandleMove
	if p, ok := m.layout.Placement(tileID); ok && p.ColumnSpan*p.RowSpan > 1 &&
		col == p.Column+p.ColumnSpan-1 && row == p.Row+p.RowSpan-1 {
		handle = app.HandleResize
	}
	x, y := m.pointAt(msg.X, msg.Y)
	preview, err := m.gesture.Handle(context.Background(), app.InputEvent{
		Phase:  app.PhaseStart,
		Handle: handle,
		TileID: tileID,
		X:      x,
		Y:      y,
		Shift:  msg.Mod.Contains(tea.ModShift),
	})
	if err != nil {
		m.status = "error: " + err.Error()
		return m, nil
	}
	m.preview = preview
	return m, nil
}

func (m Model) handleMouseMotion(msg tea.MouseMotionMsg) (tea.Model, tea.Cmd) {
	if m.gesture.State() == app.GestureIdle {
		return m, nil
	}
	x, y := m.pointAt(msg.X, msg.Y)
	preview, err := m.gesture.Handle(context.Background(), app.InputEvent{
		Phase: app.PhaseMove,
		X:     x,
		Y:     y,
		Shift: msg.Mod.Contains(tea.ModShift),
	})
	if err != nil {
		m.status = "error: " + err.Error()
		return m, nil
	}
	m.preview = preview
	return m, nil
}

func (m Model) handleMouseRelease(msg tea.MouseReleaseMsg) (tea.Model, tea.Cmd) {
	if m.gesture.State() == app.GestureIdle {
		return m, nil
	}
	x, y := m.pointAt(msg.X, msg.Y)
	return m.finishGesture(app.InputEvent{
		Phase: app.PhaseEnd,
		X:     x,
		Y:     y,
		Shift: msg.Mod.Contains(tea.ModShift),
	})
}

// finishGesture commits the active gesture and reloads the board.
func (m Model) finishGesture(ev app.InputEvent) (tea.Model, tea.Cmd) {
	preview, err := m.gesture.Handle(context.Background(), ev)
	m.preview = app.Preview{State: app.GestureIdle}
	if err != nil {
		m.status = "error: " + err.Error()
		return m, m.loadLayout
	}
	if preview.Committed != nil {
		s := preview.Span
		m.status = fmt.Sprintf("placed at %d,%d span %dx%d", s.Column, s.Row, s.ColumnSpan, s.RowSpan)
	}
	return m, m.loadLayout
}

func (m Model) handleMouseWheel(msg tea.MouseWheelMsg) (tea.Model, tea.Cmd) {
	if m.layout.Metrics.Bounded() || m.gesture.State() != app.GestureIdle {
		return m, nil
	}
	limit := max(0, m.contentRows()-m.visibleRows())
	switch msg.Button {
	case tea.MouseWheelUp:
		m.scrollRow = max(0, m.scrollRow-1)
	case tea.MouseWheelDown:
		m.scrollRow = min(limit, m.scrollRow+1)
	}
	return m, nil
}
