package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"github.com/atotto/clipboard"

	"github.com/hylla/kollage/internal/app"
	"github.com/hylla/kollage/internal/domain"
)

// Service is the board surface the preview drives.
type Service interface {
	Layout(context.Context, string) (app.BoardLayout, error)
	NudgeTile(context.Context, string, string, int, int) (domain.Tile, error)
	ResizeTile(context.Context, string, string, app.ResizeTileInput) (domain.Tile, error)
	RemoveTile(context.Context, string, string) error
	DuplicateTile(context.Context, string, string) (domain.Tile, error)
	Pack(context.Context, string) (domain.Board, error)
	ExportDocument(context.Context, string) (app.Document, error)
	ListChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)
	NewGestureController(string) *app.GestureController
}

// infoEventLimit bounds the activity list in the info panel.
const infoEventLimit = 8

// loadedMsg carries a fresh board layout.
type loadedMsg struct {
	layout app.BoardLayout
	err    error
}

// actionMsg reports the outcome of one board mutation.
type actionMsg struct {
	status   string
	selectID string
	err      error
}

// savedMsg reports one settled change from the save feed.
type savedMsg struct {
	note app.ChangeNotification
}

// infoMsg carries recent activity for the info panel.
type infoMsg struct {
	events []domain.ChangeEvent
	err    error
}

// Model is the terminal board preview.
type Model struct {
	svc     Service
	boardID string
	gesture *app.GestureController

	layout     app.BoardLayout
	loaded     bool
	err        error
	selectedID string
	preview    app.Preview
	scrollRow  int

	ready  bool
	width  int
	height int
	status string

	help     help.Model
	keys     keyMap
	markdown markdownRenderer
	showInfo bool
	events   []domain.ChangeEvent

	copyText func(string) error
	saves    *SaveFeed
	now      func() time.Time
}

// NewModel constructs a preview of one board.
func NewModel(svc Service, boardID string, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:      svc,
		boardID:  boardID,
		gesture:  svc.NewGestureController(boardID),
		preview:  app.Preview{State: app.GestureIdle},
		status:   "loading...",
		help:     h,
		keys:     newKeyMap(),
		copyText: clipboard.WriteAll,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init loads the board and starts listening for saves.
func (m Model) Init() tea.Cmd {
	if m.saves == nil {
		return m.loadLayout
	}
	return tea.Batch(m.loadLayout, m.waitForSave())
}

// Update advances the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.loaded = true
		m.layout = msg.layout
		m.ensureSelection()
		if m.status == "loading..." {
			m.status = "ready"
		}
		return m, nil

	case actionMsg:
		switch {
		case msg.err != nil:
			m.status = "error: " + msg.err.Error()
		default:
			m.status = msg.status
		}
		if msg.selectID != "" {
			m.selectedID = msg.selectID
		}
		return m, m.loadLayout

	case savedMsg:
		var cmds []tea.Cmd
		if msg.note.BoardID == m.boardID {
			at := msg.note.At
			if at.IsZero() {
				at = m.now()
			}
			m.status = "saved ✓ " + at.Local().Format("15:04:05")
			if m.gesture.State() == app.GestureIdle {
				cmds = append(cmds, m.loadLayout)
			}
		}
		cmds = append(cmds, m.waitForSave())
		return m, tea.Batch(cmds...)

	case infoMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
			return m, nil
		}
		m.events = msg.events
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.MouseClickMsg:
		return m.handleMouseClick(msg)

	case tea.MouseMotionMsg:
		return m.handleMouseMotion(msg)

	case tea.MouseReleaseMsg:
		return m.handleMouseRelease(msg)

	case tea.MouseWheelMsg:
		return m.handleMouseWheel(msg)

	default:
		return m, nil
	}
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.gesture.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.cancel):
		if m.gesture.State() != app.GestureIdle {
			return m.finishGesture(app.InputEvent{Phase: app.PhaseCancel})
		}
		m.showInfo = false
		m.help.ShowAll = false
		return m, nil
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloaded"
		return m, m.loadLayout
	case key.Matches(msg, m.keys.info):
		m.showInfo = !m.showInfo
		if m.showInfo {
			return m, m.loadInfo
		}
		return m, nil
	case key.Matches(msg, m.keys.pack):
		return m, m.packCmd()
	case key.Matches(msg, m.keys.copyDoc):
		return m, m.copyCmd()
	}

	if m.gesture.State() != app.GestureIdle {
		return m, nil
	}
	tileID := m.selectedID
	switch {
	case key.Matches(msg, m.keys.nextTile):
		m.cycleSelection(1)
		return m, nil
	case key.Matches(msg, m.keys.prevTile):
		m.cycleSelection(-1)
		return m, nil
	}
	if tileID == "" {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.nudgeLeft):
		return m, m.nudgeCmd(tileID, -1, 0)
	case key.Matches(msg, m.keys.nudgeRight):
		return m, m.nudgeCmd(tileID, 1, 0)
	case key.Matches(msg, m.keys.nudgeUp):
		return m, m.nudgeCmd(tileID, 0, -1)
	case key.Matches(msg, m.keys.nudgeDown):
		return m, m.nudgeCmd(tileID, 0, 1)
	case key.Matches(msg, m.keys.growCols):
		return m, m.resizeCmd(tileID, 1, 0)
	case key.Matches(msg, m.keys.shrinkCols):
		return m, m.resizeCmd(tileID, -1, 0)
	case key.Matches(msg, m.keys.growRows):
		return m, m.resizeCmd(tileID, 0, 1)
	case key.Matches(msg, m.keys.shrinkRows):
		return m, m.resizeCmd(tileID, 0, -1)
	case key.Matches(msg, m.keys.remove):
		return m, m.removeCmd(tileID)
	case key.Matches(msg, m.keys.duplicate):
		return m, m.duplicateCmd(tileID)
	}
	return m, nil
}

// ensureSelection keeps the selection on an existing tile.
func (m *Model) ensureSelection() {
	tiles := m.layout.Board.Tiles
	if len(tiles) == 0 {
		m.selectedID = ""
		return
	}
	if _, ok := m.layout.Board.Tile(m.selectedID); !ok {
		m.selectedID = tiles[0].ID
	}
}

// cycleSelection moves the selection through tiles in board order.
func (m *Model) cycleSelection(delta int) {
	tiles := m.layout.Board.Tiles
	if len(tiles) == 0 {
		return
	}
	idx := m.layout.Board.TileIndex(m.selectedID)
	if idx < 0 {
		idx = 0
	} else {
		idx = (idx + delta + len(tiles)) % len(tiles)
	}
	m.selectedID = tiles[idx].ID
}

func (m Model) loadLayout() tea.Msg {
	layout, err := m.svc.Layout(context.Background(), m.boardID)
	return loadedMsg{layout: layout, err: err}
}

func (m Model) loadInfo() tea.Msg {
	events, err := m.svc.ListChangeEvents(context.Background(), m.boardID, infoEventLimit)
	return infoMsg{events: events, err: err}
}

func (m Model) waitForSave() tea.Cmd {
	feed := m.saves
	if feed == nil {
		return nil
	}
	return func() tea.Msg {
		return savedMsg{note: <-feed.ch}
	}
}

func (m Model) nudgeCmd(tileID string, dCol, dRow int) tea.Cmd {
	return func() tea.Msg {
		tile, err := m.svc.NudgeTile(context.Background(), m.boardID, tileID, dCol, dRow)
		if err != nil {
			return actionMsg{err: err}
		}
		col, row, _ := tile.Position.Cell()
		return actionMsg{status: fmt.Sprintf("moved to %d,%d", col, row)}
	}
}

func (m Model) resizeCmd(tileID string, dCols, dRows int) tea.Cmd {
	tile, ok := m.layout.Board.Tile(tileID)
	if !ok {
		return nil
	}
	in := app.ResizeTileInput{ColumnSpan: max(1, tile.ColumnSpan+dCols)}
	if dRows != 0 {
		in.RowSpan = max(1, tile.RowSpan+dRows)
	}
	return func() tea.Msg {
		resized, err := m.svc.ResizeTile(context.Background(), m.boardID, tileID, in)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: fmt.Sprintf("span %dx%d", resized.ColumnSpan, resized.RowSpan)}
	}
}

func (m Model) removeCmd(tileID string) tea.Cmd {
	return func() tea.Msg {
		if err := m.svc.RemoveTile(context.Background(), m.boardID, tileID); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "tile removed"}
	}
}

func (m Model) duplicateCmd(tileID string) tea.Cmd {
	return func() tea.Msg {
		tile, err := m.svc.DuplicateTile(context.Background(), m.boardID, tileID)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "tile duplicated", selectID: tile.ID}
	}
}

func (m Model) packCmd() tea.Cmd {
	return func() tea.Msg {
		board, err := m.svc.Pack(context.Background(), m.boardID)
		if errors.Is(err, domain.ErrUnpackable) {
			return actionMsg{status: fmt.Sprintf("packed %d tiles; some could not fit", len(board.Tiles))}
		}
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: fmt.Sprintf("packed %d tiles", len(board.Tiles))}
	}
}

func (m Model) copyCmd() tea.Cmd {
	return func() tea.Msg {
		doc, err := m.svc.ExportDocument(context.Background(), m.boardID)
		if err != nil {
			return actionMsg{err: err}
		}
		encoded, err := app.EncodeDocument(doc)
		if err != nil {
			return actionMsg{err: err}
		}
		if err := m.copyText(strings.TrimSpace(string(encoded))); err != nil {
			return actionMsg{err: fmt.Errorf("copy document: %w", err)}
		}
		return actionMsg{status: "document copied"}
	}
}
