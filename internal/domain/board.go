package domain

import (
	"slices"
	"strings"
	"time"
)

// DocumentVersion is the document format version written for new boards.
const DocumentVersion = 1

// Board is a collage surface: grid settings plus an ordered tile list.
// Tile order is z-order and the auto-placement order.
type Board struct {
	ID                string
	Version           int
	Grid              GridSettings
	DefaultColumnSpan int
	Overflow          OverflowMode
	Viewport          Size
	Tiles             []Tile
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BoardInput holds values for constructing a board.
type BoardInput struct {
	ID                string
	Version           int
	Grid              GridSettings
	DefaultColumnSpan int
	Overflow          OverflowMode
	Viewport          Size
}

// NewBoard validates input and constructs an empty board.
func NewBoard(in BoardInput, now time.Time) (Board, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return Board{}, ErrInvalidID
	}
	if err := in.Grid.Validate(); err != nil {
		return Board{}, err
	}
	overflow, err := ParseOverflowMode(string(in.Overflow))
	if err != nil {
		return Board{}, err
	}
	if in.Version < 1 {
		in.Version = DocumentVersion
	}
	if in.DefaultColumnSpan < 1 {
		in.DefaultColumnSpan = min(6, in.Grid.Columns)
	}
	if in.Viewport.Width < 0 || in.Viewport.Height < 0 {
		return Board{}, ErrInvalidSettings
	}
	return Board{
		ID:                in.ID,
		Version:           in.Version,
		Grid:              in.Grid,
		DefaultColumnSpan: min(in.DefaultColumnSpan, in.Grid.Columns),
		Overflow:          overflow,
		Viewport:          in.Viewport,
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}, nil
}

// Metrics computes the grid geometry at the board's current viewport.
func (b Board) Metrics() Metrics {
	return ComputeMetrics(b.Viewport, b.Grid, b.Overflow)
}

// TileIndex returns the index of a tile or -1.
func (b Board) TileIndex(id string) int {
	return slices.IndexFunc(b.Tiles, func(t Tile) bool { return t.ID == id })
}

// Tile returns a tile by id.
func (b Board) Tile(id string) (Tile, bool) {
	idx := b.TileIndex(id)
	if idx < 0 {
		return Tile{}, false
	}
	return b.Tiles[idx], true
}

// UsedCells returns the summed area of all tiles.
func (b Board) UsedCells() int {
	return UsedCells(b.Tiles)
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	out := b
	out.Tiles = slices.Clone(b.Tiles)
	return out
}

// AddTile appends a tile on top of the stack.
func (b *Board) AddTile(t Tile, now time.Time) error {
	if b.TileIndex(t.ID) >= 0 {
		return ErrDuplicateID
	}
	b.Tiles = append(b.Tiles, t)
	b.UpdatedAt = now.UTC()
	return nil
}

// PutTile replaces an existing tile in place.
func (b *Board) PutTile(t Tile, now time.Time) bool {
	idx := b.TileIndex(t.ID)
	if idx < 0 {
		return false
	}
	b.Tiles[idx] = t
	b.UpdatedAt = now.UTC()
	return true
}

// RemoveTile deletes a tile. It reports whether anything was removed.
func (b *Board) RemoveTile(id string, now time.Time) bool {
	idx := b.TileIndex(id)
	if idx < 0 {
		return false
	}
	b.Tiles = slices.Delete(b.Tiles, idx, idx+1)
	b.UpdatedAt = now.UTC()
	return true
}

// SetViewport records a new container size.
func (b *Board) SetViewport(size Size, now time.Time) error {
	if size.Width < 0 || size.Height < 0 {
		return ErrInvalidSettings
	}
	b.Viewport = size
	b.UpdatedAt = now.UTC()
	return nil
}

// UpdateGrid replaces the grid settings.
func (b *Board) UpdateGrid(grid GridSettings, now time.Time) error {
	if err := grid.Validate(); err != nil {
		return err
	}
	b.Grid = grid
	b.DefaultColumnSpan = min(max(1, b.DefaultColumnSpan), grid.Columns)
	b.UpdatedAt = now.UTC()
	return nil
}

// UsedCells returns the summed area of tiles.
func UsedCells(tiles []Tile) int {
	total := 0
	for _, t := range tiles {
		total += t.Area()
	}
	return total
}
