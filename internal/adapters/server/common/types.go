// Package common provides transport-agnostic server contracts used by HTTP, MCP, and live adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/hylla/kollage/internal/domain"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrServiceUnavailable reports a missing backing service.
var ErrServiceUnavailable = errors.New("board service unavailable")

// BoardService is the transport-facing board API.
type BoardService interface {
	ListBoards(context.Context) ([]BoardSummary, error)
	CreateBoard(context.Context, CreateBoardRequest) (BoardView, error)
	GetBoard(context.Context, string) (BoardView, error)
	DeleteBoard(context.Context, string) error
	SetViewport(context.Context, ViewportRequest) (BoardView, error)
	ExportDocument(context.Context, string) ([]byte, error)
	ImportDocument(context.Context, ImportRequest) (BoardView, error)
	ListEvents(context.Context, string, int) ([]ChangeEventView, error)
	AddTile(context.Context, AddTileRequest) (TileView, error)
	RemoveTile(context.Context, string, string) error
	DuplicateTile(context.Context, string, string) (TileView, error)
	ReplaceTile(context.Context, ReplaceTileRequest) (TileView, error)
	MoveTile(context.Context, MoveTileRequest) (TileView, error)
	ResizeTile(context.Context, ResizeTileRequest) (TileView, error)
	Pack(context.Context, string) (BoardView, error)
	UploadBlob(context.Context, []byte, string) (BlobView, error)
}

// BoardSummary is one row of a board listing.
type BoardSummary struct {
	ID        string    `json:"id"`
	Tiles     int       `json:"tiles"`
	UsedCells int       `json:"used_cells"`
	Capacity  int       `json:"capacity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BoardView is a board with resolved geometry. Capacity is -1 on scrolling boards.
type BoardView struct {
	ID                string      `json:"id"`
	Version           int         `json:"version"`
	Columns           int         `json:"columns"`
	RowHeight         float64     `json:"row_height"`
	Gap               float64     `json:"gap"`
	DefaultColumnSpan int         `json:"default_column_span"`
	Overflow          string      `json:"overflow"`
	Viewport          domain.Size `json:"viewport"`
	ColumnWidth       float64     `json:"column_width"`
	MaxRows           int         `json:"max_rows"`
	Capacity          int         `json:"capacity"`
	UsedCells         int         `json:"used_cells"`
	Tiles             []TileView  `json:"tiles"`
	UpdatedAt         time.Time   `json:"updated_at"`
	Warning           string      `json:"warning,omitempty"`
}

// TileView is a tile with its resolved cell and pixel rectangles.
type TileView struct {
	ID          string           `json:"id"`
	Source      string           `json:"src"`
	AspectRatio float64          `json:"aspect_ratio"`
	Auto        bool             `json:"auto"`
	ColumnStart *int             `json:"col_start"`
	RowStart    *int             `json:"row_start"`
	ColumnSpan  int              `json:"col_span"`
	RowSpan     int              `json:"row_span"`
	Placement   domain.Placement `json:"placement"`
	Rect        domain.Rect      `json:"rect"`
}

// ChangeEventView is one activity ledger entry.
type ChangeEventView struct {
	ID         int64             `json:"id"`
	TileID     string            `json:"tile_id"`
	Operation  string            `json:"operation"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// BlobView describes an uploaded image.
type BlobView struct {
	Source string `json:"src"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// CreateBoardRequest stores transport input for board creation. Zero values use defaults.
type CreateBoardRequest struct {
	ID                string  `json:"id"`
	Columns           int     `json:"columns"`
	RowHeight         float64 `json:"row_height"`
	Gap               float64 `json:"gap"`
	DefaultColumnSpan int     `json:"default_column_span"`
	Overflow          string  `json:"overflow"`
	ViewportWidth     float64 `json:"viewport_width"`
	ViewportHeight    float64 `json:"viewport_height"`
}

// ViewportRequest stores a new host container size.
type ViewportRequest struct {
	BoardID string  `json:"-"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// ImportRequest carries a raw board document.
type ImportRequest struct {
	BoardID  string
	Document []byte
	Repack   bool
}

// AddTileRequest stores transport input for adding a tile.
type AddTileRequest struct {
	BoardID     string `json:"-"`
	Source      string `json:"src"`
	ColumnSpan  int    `json:"col_span"`
	RowSpan     int    `json:"row_span"`
	ColumnStart *int   `json:"col_start"`
	RowStart    *int   `json:"row_start"`
}

// ReplaceTileRequest swaps a tile's image.
type ReplaceTileRequest struct {
	BoardID string `json:"-"`
	TileID  string `json:"-"`
	Source  string `json:"src"`
}

// MoveTileRequest pins a tile at a cell.
type MoveTileRequest struct {
	BoardID string `json:"-"`
	TileID  string `json:"-"`
	Column  int    `json:"column"`
	Row     int    `json:"row"`
}

// ResizeTileRequest changes a tile's spans.
type ResizeTileRequest struct {
	BoardID       string  `json:"-"`
	TileID        string  `json:"-"`
	ColumnSpan    int     `json:"col_span"`
	RowSpan       int     `json:"row_span"`
	RowsPerColumn float64 `json:"rows_per_column"`
	ColumnStart   *int    `json:"col_start"`
	RowStart      *int    `json:"row_start"`
}
