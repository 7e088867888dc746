package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/kollage/internal/adapters/imageprobe"
	"github.com/hylla/kollage/internal/app"
	"github.com/hylla/kollage/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service board APIs.
type AppServiceAdapter struct {
	service *app.Service
	blobs   *imageprobe.BlobStore
}

var _ BoardService = (*AppServiceAdapter)(nil)

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
// blobs may be nil, which disables uploads.
func NewAppServiceAdapter(service *app.Service, blobs *imageprobe.BlobStore) *AppServiceAdapter {
	return &AppServiceAdapter{service: service, blobs: blobs}
}

// Service returns the wrapped app service.
func (a *AppServiceAdapter) Service() *app.Service {
	if a == nil {
		return nil
	}
	return a.service
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrServiceUnavailable)
	}
	return nil
}

// ListBoards lists all boards ordered by id.
func (a *AppServiceAdapter) ListBoards(ctx context.Context) ([]BoardSummary, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	boards, err := a.service.ListBoards(ctx)
	if err != nil {
		return nil, mapAppError("list boards", err)
	}
	out := make([]BoardSummary, 0, len(boards))
	for _, b := range boards {
		l := app.LayoutFor(b)
		out = append(out, BoardSummary{
			ID:        b.ID,
			Tiles:     len(b.Tiles),
			UsedCells: l.UsedCells,
			Capacity:  l.Capacity,
			UpdatedAt: b.UpdatedAt,
		})
	}
	return out, nil
}

// CreateBoard creates an empty board.
func (a *AppServiceAdapter) CreateBoard(ctx context.Context, in CreateBoardRequest) (BoardView, error) {
	if err := a.ready(); err != nil {
		return BoardView{}, err
	}
	overflow, err := domain.ParseOverflowMode(strings.TrimSpace(in.Overflow))
	if err != nil {
		return BoardView{}, mapAppError("create board", err)
	}
	input := app.CreateBoardInput{
		ID:                strings.TrimSpace(in.ID),
		DefaultColumnSpan: in.DefaultColumnSpan,
		Overflow:          overflow,
		Viewport:          domain.Size{Width: in.ViewportWidth, Height: in.ViewportHeight},
	}
	if in.Columns > 0 {
		defaults := app.DefaultBoardDefaults().Grid
		input.Grid = domain.GridSettings{Columns: in.Columns, RowHeight: in.RowHeight, Gap: in.Gap}
		if input.Grid.RowHeight == 0 {
			input.Grid.RowHeight = defaults.RowHeight
		}
	}
	board, err := a.service.CreateBoard(ctx, input)
	if err != nil {
		return BoardView{}, mapAppError("create board", err)
	}
	return NewBoardView(app.LayoutFor(board)), nil
}

// GetBoard returns one board with its layout.
func (a *AppServiceAdapter) GetBoard(ctx context.Context, boardID string) (BoardView, error) {
	if err := a.ready(); err != nil {
		return BoardView{}, err
	}
	layout, err := a.service.Layout(ctx, boardID)
	if err != nil {
		return BoardView{}, mapAppError("get board", err)
	}
	return NewBoardView(layout), nil
}

// DeleteBoard removes one board.
func (a *AppServiceAdapter) DeleteBoard(ctx context.Context, boardID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	return mapAppError("delete board", a.service.DeleteBoard(ctx, boardID))
}

// SetViewport stores a new container size, repacking when content no longer fits.
func (a *AppServiceAdapter) SetViewport(ctx context.Context, in ViewportRequest) (BoardView, error) {
	if err := a.ready(); err != nil {
		return BoardView{}, err
	}
	board, err := a.service.SetViewport(ctx, in.BoardID, domain.Size{Width: in.Width, Height: in.Height})
	return boardResult("set viewport", board, err)
}

// ExportDocument returns the encoded board document.
func (a *AppServiceAdapter) ExportDocument(ctx context.Context, boardID string) ([]byte, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	doc, err := a.service.ExportDocument(ctx, boardID)
	if err != nil {
		return nil, mapAppError("export document", err)
	}
	raw, err := app.EncodeDocument(doc)
	if err != nil {
		return nil, mapAppError("export document", err)
	}
	return raw, nil
}

// ImportDocument replaces a board's tiles with a document's items.
func (a *AppServiceAdapter) ImportDocument(ctx context.Context, in ImportRequest) (BoardView, error) {
	if err := a.ready(); err != nil {
		return BoardView{}, err
	}
	board, err := a.service.ImportDocument(ctx, in.BoardID, in.Document, app.ImportOptions{Repack: in.Repack, TrustAspect: true})
	return boardResult("import document", board, err)
}

// ListEvents lists recent activity for one board.
func (a *AppServiceAdapter) ListEvents(ctx context.Context, boardID string, limit int) ([]ChangeEventView, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	events, err := a.service.ListChangeEvents(ctx, boardID, limit)
	if err != nil {
		return nil, mapAppError("list events", err)
	}
	out := make([]ChangeEventView, 0, len(events))
	for _, ev := range events {
		out = append(out, ChangeEventView{
			ID:         ev.ID,
			TileID:     ev.TileID,
			Operation:  string(ev.Operation),
			Metadata:   ev.Metadata,
			OccurredAt: ev.OccurredAt,
		})
	}
	return out, nil
}

// AddTile loads an image and places it on a board.
func (a *AppServiceAdapter) AddTile(ctx context.Context, in AddTileRequest) (TileView, error) {
	if err := a.ready(); err != nil {
		return TileView{}, err
	}
	tile, err := a.service.AddTile(ctx, in.BoardID, app.AddTileInput{
		Source:      in.Source,
		ColumnSpan:  in.ColumnSpan,
		RowSpan:     in.RowSpan,
		ColumnStart: in.ColumnStart,
		RowStart:    in.RowStart,
	})
	if err != nil {
		return TileView{}, mapAppError("add tile", err)
	}
	return a.tileView(ctx, in.BoardID, tile)
}

// RemoveTile deletes a tile. Removing a missing tile succeeds.
func (a *AppServiceAdapter) RemoveTile(ctx context.Context, boardID, tileID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	return mapAppError("remove tile", a.service.RemoveTile(ctx, boardID, tileID))
}

// DuplicateTile copies a tile next to the original.
func (a *AppServiceAdapter) DuplicateTile(ctx context.Context, boardID, tileID string) (TileView, error) {
	if err := a.ready(); err != nil {
		return TileView{}, err
	}
	tile, err := a.service.DuplicateTile(ctx, boardID, tileID)
	if err != nil {
		return TileView{}, mapAppError("duplicate tile", err)
	}
	return a.tileView(ctx, boardID, tile)
}

// ReplaceTile swaps a tile's image.
func (a *AppServiceAdapter) ReplaceTile(ctx context.Context, in ReplaceTileRequest) (TileView, error) {
	if err := a.ready(); err != nil {
		return TileView{}, err
	}
	tile, err := a.service.ReplaceTile(ctx, in.BoardID, in.TileID, in.Source)
	if err != nil {
		return TileView{}, mapAppError("replace tile", err)
	}
	return a.tileView(ctx, in.BoardID, tile)
}

// MoveTile pins a tile at a cell.
func (a *AppServiceAdapter) MoveTile(ctx context.Context, in MoveTileRequest) (TileView, error) {
	if err := a.ready(); err != nil {
		return TileView{}, err
	}
	tile, err := a.service.MoveTile(ctx, in.BoardID, in.TileID, in.Column, in.Row)
	if err != nil {
		return TileView{}, mapAppError("move tile", err)
	}
	return a.tileView(ctx, in.BoardID, tile)
}

// ResizeTile changes a tile's spans.
func (a *AppServiceAdapter) ResizeTile(ctx context.Context, in ResizeTileRequest) (TileView, error) {
	if err := a.ready(); err != nil {
		return TileView{}, err
	}
	tile, err := a.service.ResizeTile(ctx, in.BoardID, in.TileID, app.ResizeTileInput{
		ColumnSpan:    in.ColumnSpan,
		RowSpan:       in.RowSpan,
		RowsPerColumn: in.RowsPerColumn,
		ColumnStart:   in.ColumnStart,
		RowStart:      in.RowStart,
	})
	if err != nil {
		return TileView{}, mapAppError("resize tile", err)
	}
	return a.tileView(ctx, in.BoardID, tile)
}

// Pack repacks every tile into the fewest rows.
func (a *AppServiceAdapter) Pack(ctx context.Context, boardID string) (BoardView, error) {
	if err := a.ready(); err != nil {
		return BoardView{}, err
	}
	board, err := a.service.Pack(ctx, boardID)
	return boardResult("pack", board, err)
}

// UploadBlob stores raw image bytes and returns a blob source for them.
func (a *AppServiceAdapter) UploadBlob(_ context.Context, data []byte, contentType string) (BlobView, error) {
	if a == nil || a.blobs == nil {
		return BlobView{}, fmt.Errorf("blob uploads are not configured: %w", ErrServiceUnavailable)
	}
	blob, err := a.blobs.Put(data, contentType)
	if err != nil {
		return BlobView{}, mapAppError("upload blob", err)
	}
	return BlobView{
		Source: blob.Source,
		Width:  blob.Info.Width,
		Height: blob.Info.Height,
		Format: blob.Info.Format,
	}, nil
}

// Blob returns uploaded bytes by source.
func (a *AppServiceAdapter) Blob(src string) (imageprobe.Blob, bool) {
	if a == nil || a.blobs == nil {
		return imageprobe.Blob{}, false
	}
	return a.blobs.Get(src)
}

func (a *AppServiceAdapter) tileView(ctx context.Context, boardID string, tile domain.Tile) (TileView, error) {
	layout, err := a.service.Layout(ctx, boardID)
	if err != nil {
		return TileView{}, mapAppError("resolve tile", err)
	}
	return NewTileView(layout, tile), nil
}

// boardResult maps a board mutation result, keeping ErrUnpackable as a warning.
func boardResult(operation string, board domain.Board, err error) (BoardView, error) {
	warning, err := splitWarning(err)
	if err != nil {
		return BoardView{}, mapAppError(operation, err)
	}
	view := NewBoardView(app.LayoutFor(board))
	view.Warning = warning
	return view, nil
}

// NewBoardView converts a resolved layout into its transport view.
func NewBoardView(l app.BoardLayout) BoardView {
	b := l.Board
	tiles := make([]TileView, 0, len(b.Tiles))
	for _, t := range b.Tiles {
		tiles = append(tiles, NewTileView(l, t))
	}
	return BoardView{
		ID:                b.ID,
		Version:           b.Version,
		Columns:           b.Grid.Columns,
		RowHeight:         b.Grid.RowHeight,
		Gap:               b.Grid.Gap,
		DefaultColumnSpan: b.DefaultColumnSpan,
		Overflow:          string(b.Overflow),
		Viewport:          b.Viewport,
		ColumnWidth:       l.Metrics.ColumnWidth,
		MaxRows:           l.Metrics.MaxRows,
		Capacity:          l.Capacity,
		UsedCells:         l.UsedCells,
		Tiles:             tiles,
		UpdatedAt:         b.UpdatedAt,
	}
}

// NewTileView converts one tile and its resolved placement.
func NewTileView(l app.BoardLayout, t domain.Tile) TileView {
	view := TileView{
		ID:          t.ID,
		Source:      t.Source,
		AspectRatio: t.AspectRatio,
		Auto:        t.Position.IsAuto(),
		ColumnSpan:  t.ColumnSpan,
		RowSpan:     t.RowSpan,
	}
	if col, row, ok := t.Position.Cell(); ok {
		view.ColumnStart, view.RowStart = &col, &row
	}
	if p, ok := l.Placement(t.ID); ok {
		view.Placement = p
		view.Rect = l.Metrics.CellRect(p.Column, p.Row, p.ColumnSpan, p.RowSpan)
	}
	return view
}

// mapAppError wraps an app error with its operation name.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}
