package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hylla/kollage/internal/domain"
)

// DefaultLoadTimeout bounds a single image preload.
const DefaultLoadTimeout = 15 * time.Second

// TileIDPrefix prefixes generated tile ids.
const TileIDPrefix = "t_"

// BoardDefaults holds settings applied to boards created without explicit values.
type BoardDefaults struct {
	Grid              domain.GridSettings
	DefaultColumnSpan int
	Overflow          domain.OverflowMode
	Viewport          domain.Size
}

// DefaultBoardDefaults returns the stock 24-column board.
func DefaultBoardDefaults() BoardDefaults {
	return BoardDefaults{
		Grid:              domain.GridSettings{Columns: 24, RowHeight: 24, Gap: 6},
		DefaultColumnSpan: 6,
		Overflow:          domain.OverflowFixed,
		Viewport:          domain.Size{Width: 1200, Height: 800},
	}
}

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	Board             BoardDefaults
	LoadTimeout       time.Duration
	ImportConcurrency int
	Debounce          time.Duration
	Sinks             []ChangeSink
	OnPublishError    func(boardID string, err error)
	Registry          *Registry
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service owns board state transitions. Mutations of one board are
// serialized; image preloads run before the board lock is taken.
type Service struct {
	repo              Repository
	images            ImageProvider
	idGen             IDGenerator
	clock             Clock
	registry          *Registry
	defaults          BoardDefaults
	loadTimeout       time.Duration
	importConcurrency int
	onPublishError    func(string, error)

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	sinksMu sync.RWMutex
	sinks   []ChangeSink

	changes *Debouncer
}

// NewService constructs a new value for this package.
func NewService(repo Repository, images ImageProvider, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		var seq atomic.Int64
		idGen = func() string { return strconv.FormatInt(seq.Add(1), 36) }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.Board.Grid == (domain.GridSettings{}) {
		cfg.Board = DefaultBoardDefaults()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	if cfg.ImportConcurrency <= 0 {
		cfg.ImportConcurrency = 4
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}

	s := &Service{
		repo:              repo,
		images:            images,
		idGen:             idGen,
		clock:             clock,
		registry:          cfg.Registry,
		defaults:          cfg.Board,
		loadTimeout:       cfg.LoadTimeout,
		importConcurrency: cfg.ImportConcurrency,
		onPublishError:    cfg.OnPublishError,
		locks:             map[string]*sync.Mutex{},
		sinks:             append([]ChangeSink(nil), cfg.Sinks...),
	}
	s.changes = NewDebouncer(cfg.Debounce, s.settle)
	return s
}

// Subscribe adds a sink for settled board documents.
func (s *Service) Subscribe(sink ChangeSink) {
	if sink == nil {
		return
	}
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Close publishes pending changes and stops the change notifier.
func (s *Service) Close() {
	s.changes.Close()
}

// FlushChanges publishes a pending change for one board immediately.
func (s *Service) FlushChanges(boardID string) {
	s.changes.Flush(boardID)
}

// settle serializes the latest board state and fans it out to sinks.
func (s *Service) settle(boardID string) {
	ctx := context.Background()
	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		s.reportPublishError(boardID, fmt.Errorf("load board for publish: %w", err))
		return
	}
	encoded, err := EncodeDocument(DocumentFromBoard(board))
	if err != nil {
		s.reportPublishError(boardID, err)
		return
	}
	note := ChangeNotification{
		BoardID:  boardID,
		Document: encoded,
		Tiles:    len(board.Tiles),
		At:       s.clock().UTC(),
	}
	s.sinksMu.RLock()
	sinks := append([]ChangeSink(nil), s.sinks...)
	s.sinksMu.RUnlock()
	for _, sink := range sinks {
		if err := sink.Publish(ctx, note); err != nil {
			s.reportPublishError(boardID, err)
		}
	}
}

// reportPublishError forwards sink failures to the configured handler.
func (s *Service) reportPublishError(boardID string, err error) {
	if s.onPublishError != nil {
		s.onPublishError(boardID, err)
	}
}

// lockBoard acquires the per-board mutation lock.
func (s *Service) lockBoard(boardID string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[boardID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[boardID] = mu
	}
	s.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// errNoChange tells mutate to skip persistence.
var errNoChange = errors.New("no change")

// mutate applies fn to a copy of the board under its lock and persists the
// result. An ErrUnpackable from fn is non-fatal: the best-effort state is
// stored and the error returned alongside it.
func (s *Service) mutate(ctx context.Context, boardID string, fn func(*domain.Board, time.Time) error) (domain.Board, error) {
	unlock := s.lockBoard(boardID)
	defer unlock()

	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return domain.Board{}, err
	}
	next := board.Clone()
	now := s.clock()
	var warn error
	if err := fn(&next, now); err != nil {
		switch {
		case errors.Is(err, errNoChange):
			return board, nil
		case errors.Is(err, domain.ErrUnpackable):
			warn = err
		default:
			return domain.Board{}, err
		}
	}
	if err := s.repo.UpdateBoard(ctx, next); err != nil {
		return domain.Board{}, err
	}
	s.changes.Trigger(boardID)
	return next, warn
}

// preload fetches image metadata within the load timeout.
func (s *Service) preload(ctx context.Context, src string) (ImageInfo, error) {
	if s.images == nil {
		return ImageInfo{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()
	info, err := s.images.Probe(ctx, src)
	if err != nil {
		if errors.Is(err, domain.ErrLoad) {
			return ImageInfo{}, err
		}
		return ImageInfo{}, fmt.Errorf("%w: %v", domain.ErrLoad, err)
	}
	return info, nil
}

// newTileID allocates a tile id unused on the board.
func (s *Service) newTileID(b domain.Board) (string, error) {
	for range 8 {
		raw := s.idGen()
		if raw == "" {
			continue
		}
		id := TileIDPrefix + raw
		if b.TileIndex(id) < 0 {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

// CreateBoardInput holds input values for create board operations.
// Zero values fall back to the service defaults.
type CreateBoardInput struct {
	ID                string
	Grid              domain.GridSettings
	DefaultColumnSpan int
	Overflow          domain.OverflowMode
	Viewport          domain.Size
}

// CreateBoard creates an empty board.
func (s *Service) CreateBoard(ctx context.Context, in CreateBoardInput) (domain.Board, error) {
	if in.Grid == (domain.GridSettings{}) {
		in.Grid = s.defaults.Grid
	}
	if in.DefaultColumnSpan < 1 {
		in.DefaultColumnSpan = s.defaults.DefaultColumnSpan
	}
	if in.Overflow == "" {
		in.Overflow = s.defaults.Overflow
	}
	if in.Viewport == (domain.Size{}) {
		in.Viewport = s.defaults.Viewport
	}

	id := in.ID
	if id == "" {
		allocated, err := s.registry.Allocate(BoardIDPrefix, s.idGen)
		if err != nil {
			return domain.Board{}, err
		}
		id = allocated
	} else if err := s.registry.Claim(id); err != nil {
		return domain.Board{}, err
	}

	board, err := domain.NewBoard(domain.BoardInput{
		ID:                id,
		Grid:              in.Grid,
		DefaultColumnSpan: in.DefaultColumnSpan,
		Overflow:          in.Overflow,
		Viewport:          in.Viewport,
	}, s.clock())
	if err != nil {
		s.registry.Release(id)
		return domain.Board{}, err
	}
	if _, err := s.repo.GetBoard(ctx, id); err == nil {
		return domain.Board{}, fmt.Errorf("board %q: %w", id, domain.ErrDuplicateID)
	} else if !errors.Is(err, ErrNotFound) {
		s.registry.Release(id)
		return domain.Board{}, err
	}
	if err := s.repo.CreateBoard(ctx, board); err != nil {
		s.registry.Release(id)
		return domain.Board{}, err
	}
	return board, nil
}

// EnsureDefaultBoard returns the first board, creating and seeding one when none exist.
func (s *Service) EnsureDefaultBoard(ctx context.Context) (domain.Board, error) {
	boards, err := s.ListBoards(ctx)
	if err != nil {
		return domain.Board{}, err
	}
	if len(boards) > 0 {
		return boards[0], nil
	}
	board, err := s.CreateBoard(ctx, CreateBoardInput{})
	if err != nil {
		return domain.Board{}, err
	}
	return s.ImportDocument(ctx, board.ID, SeedDocument(board.ID), ImportOptions{Repack: true})
}

// GetBoard returns one board.
func (s *Service) GetBoard(ctx context.Context, boardID string) (domain.Board, error) {
	return s.repo.GetBoard(ctx, boardID)
}

// ListBoards lists boards and claims their ids in the session registry.
func (s *Service) ListBoards(ctx context.Context) ([]domain.Board, error) {
	boards, err := s.repo.ListBoards(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range boards {
		_ = s.registry.Claim(b.ID)
	}
	return boards, nil
}

// DeleteBoard removes a board and all of its tiles.
func (s *Service) DeleteBoard(ctx context.Context, boardID string) error {
	unlock := s.lockBoard(boardID)
	defer unlock()
	if err := s.repo.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	s.registry.Release(boardID)
	return nil
}

// ListChangeEvents returns recent tile activity for a board.
func (s *Service) ListChangeEvents(ctx context.Context, boardID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListBoardChangeEvents(ctx, boardID, limit)
}

// BoardLayout is a board with its resolved geometry.
type BoardLayout struct {
	Board      domain.Board
	Metrics    domain.Metrics
	Placements []domain.Placement
	UsedCells  int
	Capacity   int
}

// Placement returns the resolved cell rectangle of one tile.
func (l BoardLayout) Placement(tileID string) (domain.Placement, bool) {
	for _, p := range l.Placements {
		if p.TileID == tileID {
			return p, true
		}
	}
	return domain.Placement{}, false
}

// TileAt returns the topmost tile covering a cell.
func (l BoardLayout) TileAt(column, row int) (string, bool) {
	for i := len(l.Placements) - 1; i >= 0; i-- {
		if l.Placements[i].Contains(column, row) {
			return l.Placements[i].TileID, true
		}
	}
	return "", false
}

// Bounded reports whether the board enforces capacity.
func (l BoardLayout) Bounded() bool {
	return l.Metrics.Bounded()
}

// LayoutFor resolves geometry for an in-memory board.
func LayoutFor(board domain.Board) BoardLayout {
	m := board.Metrics()
	capacity := -1
	if m.Bounded() {
		capacity = m.Capacity()
	}
	return BoardLayout{
		Board:      board,
		Metrics:    m,
		Placements: domain.Arrange(m.Columns, board.Tiles),
		UsedCells:  board.UsedCells(),
		Capacity:   capacity,
	}
}

// Layout returns a board with its resolved geometry.
func (s *Service) Layout(ctx context.Context, boardID string) (BoardLayout, error) {
	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return BoardLayout{}, err
	}
	return LayoutFor(board), nil
}

// AddTileInput holds input values for add tile operations.
type AddTileInput struct {
	Source      string
	ColumnSpan  int
	RowSpan     int
	ColumnStart *int
	RowStart    *int
}

// AddTile validates and preloads an image, then places it on the board.
func (s *Service) AddTile(ctx context.Context, boardID string, in AddTileInput) (domain.Tile, error) {
	src, err := domain.ValidateSource(in.Source)
	if err != nil {
		return domain.Tile{}, err
	}
	if _, err := s.repo.GetBoard(ctx, boardID); err != nil {
		return domain.Tile{}, err
	}
	info, err := s.preload(ctx, src)
	if err != nil {
		return domain.Tile{}, err
	}

	var added domain.Tile
	_, err = s.mutate(ctx, boardID, func(b *domain.Board, now time.Time) error {
		tile, err := s.buildTile(b, now, tileSpec{
			Source:      src,
			Aspect:      info.AspectRatio(),
			ColumnSpan:  in.ColumnSpan,
			RowSpan:     in.RowSpan,
			ColumnStart: in.ColumnStart,
			RowStart:    in.RowStart,
		}, true)
		if err != nil {
			return err
		}
		added = tile
		return b.AddTile(tile, now)
	})
	if err != nil {
		return domain.Tile{}, err
	}
	return added, nil
}

// tileSpec is a requested tile before spans are resolved.
type tileSpec struct {
	ID          string
	Source      string
	Aspect      float64
	ColumnSpan  int
	RowSpan     int
	ColumnStart *int
	RowStart    *int
}

// buildTile resolves spans and position for a new tile on b.
func (s *Service) buildTile(b *domain.Board, now time.Time, spec tileSpec, enforceCapacity bool) (domain.Tile, error) {
	m := b.Metrics()
	if !m.Usable() {
		return domain.Tile{}, domain.ErrDegenerateGrid
	}
	aspect := domain.NormalizeAspect(spec.Aspect)
	colSpan := spec.ColumnSpan
	if colSpan < 1 {
		colSpan = b.DefaultColumnSpan
	}
	colSpan = m.ClampColumnSpan(colSpan)
	rowSpan := spec.RowSpan
	if rowSpan < 1 {
		rowSpan = m.RowSpanFor(colSpan, aspect)
	}

	pos := domain.PositionFromStarts(spec.ColumnStart, spec.RowStart)
	if col, row, ok := pos.Cell(); ok {
		fit := domain.FitWithinRows(m, domain.Span{Column: col, Row: row, ColumnSpan: colSpan, RowSpan: rowSpan}, aspectRows(m, aspect))
		colSpan, rowSpan = fit.ColumnSpan, fit.RowSpan
		pos = domain.ExplicitPosition(fit.Column, fit.Row)
	}
	if enforceCapacity {
		if err := domain.CheckCapacity(m, b.UsedCells(), colSpan*rowSpan); err != nil {
			return domain.Tile{}, err
		}
	}

	id := spec.ID
	if id == "" || b.TileIndex(id) >= 0 {
		generated, err := s.newTileID(*b)
		if err != nil {
			return domain.Tile{}, err
		}
		id = generated
	}
	return domain.NewTile(domain.TileInput{
		ID:          id,
		Source:      spec.Source,
		AspectRatio: aspect,
		Position:    pos,
		ColumnSpan:  colSpan,
		RowSpan:     rowSpan,
	}, now)
}

// aspectRows derives rows from an aspect ratio.
func aspectRows(m domain.Metrics, aspect float64) domain.RowsFor {
	return func(colSpan int) int { return m.RowSpanFor(colSpan, aspect) }
}

// RemoveTile deletes a tile. Removing an absent tile is a no-op.
func (s *Service) RemoveTile(ctx context.Context, boardID, tileID string) error {
	_, err := s.mutate(ctx, boardID, func(b *domain.Board, now time.Time) error {
		if !b.RemoveTile(tileID, now) {
			return errNoChange
		}
		return nil
	})
	return err
}

// DuplicateTile clones a tile one column to the right of the original.
func (s *Service) DuplicateTile(ctx context.Context, boardID, tileID string) (domain.Tile, error) {
	var dup domain.Tile
	_, err := s.mutate(ctx, boardID, func(b *domain.Board, now time.Time) error {
		src, ok := b.Tile(tileID)
		if !ok {
			return fmt.Errorf("tile %q: %w", tileID, ErrNotFound)
		}
		col, row := resolvedCell(*b, src)
		col++
		tile, err := s.buildTile(b, now, tileSpec{
			Source:      src.Source,
			Aspect:      src.AspectRatio,
			ColumnSpan:  src.ColumnSpan,
			RowSpan:     src.RowSpan,
			ColumnStart: &col,
			RowStart:    &row,
		}, true)
		if err != nil {
			return err
		}
		dup = tile
		return b.AddTile(tile, now)
	})
	if err != nil {
		return domain.Tile{}, err
	}
	return dup, nil
}

// resolvedCell returns a tile's explicit cell or its arranged cell.
func resolvedCell(b domain.Board, t domain.Tile) (int, int) {
	if col, row, ok := t.Position.Cell(); ok {
		return col, row
	}
	for _, p := range domain.Arrange(b.Grid.Columns, b.Tiles) {
		if p.TileID == t.ID {
			return p.Column, p.Row
		}
	}
	return 1, 1
}

// ReplaceTile swaps a tile's image, keeping its spans and position.
func (s *Service) ReplaceTile(ctx context.Context, boardID, tileID, source string) (domain.Tile, error) {
	src, err := domain.ValidateSource(source)
	if err != nil {
		return domain.Tile{}, err
	}
	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return domain.Tile{}, err
	}
	if _, ok := board.Tile(tileID); !ok {
		return domain.Tile{}, fmt.Errorf("tile %q: %w", tileID, ErrNotFound)
	}
	info, err := s.preload(ctx, src)
	if err != nil {
		return domain.Tile{}, err
	}

	var replaced domain.Tile
	_, err = s.mutate(ctx, boardID, func(b *domain.Board, now time.Time) error {
		tile, ok := b.Tile(tileID)
		if !ok {
			// Removed while the new image was loading.
			return fmt.Errorf("tile %q: %w", tileID, ErrNotFound)
		}
		if err := tile.Replace(src, info.AspectRatio(), now); err != nil {
			return err
		}
		replaced = tile
		b.PutTile(tile, now)
		return nil
	})
	if err != nil {
		return domain.Tile{}, err
	}
	return replaced, nil
}

// MoveTile pins a tile at a cell, shrinking it when needed to stay inside the rows.
func (s *Service) MoveTile(ctx context.Context, boardID, tileID string, column, row int) (domain.Tile, error) {
	return s.placeTile(ctx, boardID, tileID, func(domain.Board, domain.Tile) (int, int) {
		return column, row
	})
}

// NudgeTile moves a tile by whole cells from its current cell.
func (s *Service) NudgeTile(ctx context.Context, boardID, tileID string, dColumn, dRow int) (domain.Tile, error) {
	return s.placeTile(ctx, boardID, tileID, func(b domain.Board, t domain.Tile) (int, int) {
		col, row := resolvedCell(b, t)
		return max(1, col+dColumn), max(1, row+dRow)
	})
}

// placeTile commits an explicit position chosen by target.
func (s *Service) placeTile(ctx context.Context, boardID, tileID string, target func(domain.Board, domain.Tile) (int, int)) (domain.Tile, error) {
	var placed domain.Tile
	_, err := s.mutate(ctx, boardID, func(b *domain.Board, now time.Time) error {
		tile, ok := b.Tile(tileID)
		if !ok {
			return fmt.Errorf("tile %q: %w", tileID, ErrNotFound)
		}
		m := b.Metrics()
		if !m.Usable() {
			return domain.ErrDegenerateGrid
		}
		col, row := target(*b, tile)
		fit := domain.FitWithinRows(m, domain.Span{
			Column:     col,
			Row:        row,
			ColumnSpan: tile.ColumnSpan,
			RowSpan:    tile.RowSpan,
		}, aspectRows(m, tile.AspectRatio))
		if err := tile.Resize(fit.ColumnSpan, fit.RowSpan, now); err != nil {
			return err
		}
		tile.MoveTo(domain.ExplicitPosition(fit.Column, fit.Row), now)
		placed = tile
		b.PutTile(tile, now)
		return nil
	})
	if err != nil {
		return domain.Tile{}, err
	}
	return placed, nil
}

// ResizeTileInput holds input values for resize operations. A zero RowSpan
// derives rows from RowsPerColumn when set, else from the tile's aspect
// ratio. Starts pin the tile explicitly; without them an Auto tile stays Auto.
type ResizeTileInput struct {
	ColumnSpan    int
	RowSpan       int
	RowsPerColumn float64
	ColumnStart   *int
	RowStart      *int
}

// ResizeTile changes a tile's spans within the grid's rows and capacity.
func (s *Service) ResizeTile(ctx context.Context, boardID, tileID string, in ResizeTileInput) (domain.Tile, error) {
	var resized domain.Tile
	_, err := s.mutate(ctx, boardID, func(b *domain.Board, now time.Time) error {
		tile, ok := b.Tile(tileID)
		if !ok {
			return fmt.Errorf("tile %q: %w", tileID, ErrNotFound)
		}
		m := b.Metrics()
		if !m.Usable() {
			return domain.ErrDegenerateGrid
		}
		col, row := resolvedCell(*b, tile)
		explicit := !tile.Position.IsAuto()
		if in.ColumnStart != nil && in.RowStart != nil {
			col, row = *in.ColumnStart, *in.RowStart
			explicit = true
		}
		col = m.ClampColumnStart(col, 1)

		rowsFor := aspectRows(m, tile.AspectRatio)
		if in.RowsPerColumn > 0 {
			rowsFor = lockedRows(in.RowsPerColumn)
		}
		colSpan := min(max(1, in.ColumnSpan), m.Columns-col+1)
		rowSpan := in.RowSpan
		if rowSpan < 1 {
			rowSpan = rowsFor(colSpan)
		}
		fit := domain.FitWithinRows(m, domain.Span{Column: col, Row: row, ColumnSpan: colSpan, RowSpan: rowSpan}, rowsFor)
		fit, err := domain.ClampToCapacity(m, fit, b.UsedCells()-tile.Area(), rowsFor)
		if err != nil {
			return err
		}
		if err := tile.Resize(fit.ColumnSpan, fit.RowSpan, now); err != nil {
			return err
		}
		if explicit {
			tile.MoveTo(domain.ExplicitPosition(fit.Column, fit.Row), now)
		}
		resized = tile
		b.PutTile(tile, now)
		return nil
	})
	if err != nil {
		return domain.Tile{}, err
	}
	return resized, nil
}

// lockedRows keeps a fixed rows-per-column ratio.
func lockedRows(rowsPerColumn float64) domain.RowsFor {
	return func(colSpan int) int {
		return max(1, int(math.Round(rowsPerColumn*float64(colSpan))))
	}
}

// Pack shrinks tiles to fit capacity and reflows them densely.
// ErrUnpackable is returned with the best-effort board already stored.
func (s *Service) Pack(ctx context.Context, boardID string) (domain.Board, error) {
	return s.mutate(ctx, boardID, func(b *domain.Board, now time.Time) error {
		packed, err := domain.Pack(b.Metrics(), b.Tiles, now)
		if err != nil && !errors.Is(err, domain.ErrUnpackable) {
			return err
		}
		b.Tiles = packed
		b.UpdatedAt = now.UTC()
		return err
	})
}

// SetViewport records the host container size. A fixed board that no
// longer fits is packed; otherwise explicit tiles hanging past the last row
// are pulled back inside.
func (s *Service) SetViewport(ctx context.Context, boardID string, size domain.Size) (domain.Board, error) {
	return s.mutate(ctx, boardID, func(b *domain.Board, now time.Time) error {
		if b.Viewport == size {
			return errNoChange
		}
		if err := b.SetViewport(size, now); err != nil {
			return err
		}
		m := b.Metrics()
		if !m.Bounded() || !m.Usable() {
			return nil
		}
		if b.UsedCells() <= m.Capacity() {
			return fitExplicitTiles(m, b.Tiles, now)
		}
		packed, err := domain.Pack(m, b.Tiles, now)
		if err != nil && !errors.Is(err, domain.ErrUnpackable) {
			return err
		}
		b.Tiles = packed
		return err
	})
}

// fitExplicitTiles applies the bottom-edge rule to explicit tiles after the
// row count shrinks.
func fitExplicitTiles(m domain.Metrics, tiles []domain.Tile, now time.Time) error {
	for i := range tiles {
		t := &tiles[i]
		col, row, ok := t.Position.Cell()
		if !ok || row+t.RowSpan-1 <= m.MaxRows {
			continue
		}
		fit := domain.FitWithinRows(m, domain.Span{Column: col, Row: row, ColumnSpan: t.ColumnSpan, RowSpan: t.RowSpan}, aspectRows(m, t.AspectRatio))
		if err := t.Resize(fit.ColumnSpan, fit.RowSpan, now); err != nil {
			return err
		}
		t.MoveTo(domain.ExplicitPosition(fit.Column, fit.Row), now)
	}
	return nil
}
