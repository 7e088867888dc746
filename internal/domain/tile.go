package domain

import (
	"math"
	"strings"
	"time"
)

// Position is where a tile sits on the grid: either an explicit 1-based
// cell or Auto, which lets the dense arranger choose.
type Position struct {
	explicit bool
	column   int
	row      int
}

// AutoPosition returns a position resolved by the arranger.
func AutoPosition() Position {
	return Position{}
}

// ExplicitPosition returns a fixed cell position. Starts below 1 clamp to 1.
func ExplicitPosition(column, row int) Position {
	return Position{explicit: true, column: max(1, column), row: max(1, row)}
}

// PositionFromStarts builds a position from optional starts. A position is
// explicit only when both starts are present; a lone start is treated as Auto.
func PositionFromStarts(column, row *int) Position {
	if column == nil || row == nil {
		return AutoPosition()
	}
	return ExplicitPosition(*column, *row)
}

// IsAuto reports whether the arranger decides the tile's cell.
func (p Position) IsAuto() bool {
	return !p.explicit
}

// Cell returns the explicit start cell. ok is false for Auto positions.
func (p Position) Cell() (column, row int, ok bool) {
	if !p.explicit {
		return 0, 0, false
	}
	return p.column, p.row, true
}

// Tile is one placed image on a board.
type Tile struct {
	ID          string
	Source      string
	AspectRatio float64
	Position    Position
	ColumnSpan  int
	RowSpan     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TileInput holds values for constructing a tile.
type TileInput struct {
	ID          string
	Source      string
	AspectRatio float64
	Position    Position
	ColumnSpan  int
	RowSpan     int
}

// NewTile validates input and constructs a tile.
func NewTile(in TileInput, now time.Time) (Tile, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return Tile{}, ErrInvalidID
	}
	src, err := ValidateSource(in.Source)
	if err != nil {
		return Tile{}, err
	}
	if in.ColumnSpan < 1 || in.RowSpan < 1 {
		return Tile{}, ErrInvalidSpan
	}
	return Tile{
		ID:          in.ID,
		Source:      src,
		AspectRatio: NormalizeAspect(in.AspectRatio),
		Position:    in.Position,
		ColumnSpan:  in.ColumnSpan,
		RowSpan:     in.RowSpan,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// NormalizeAspect replaces unusable aspect ratios with 1.
func NormalizeAspect(aspect float64) float64 {
	if aspect <= 0 || math.IsNaN(aspect) || math.IsInf(aspect, 0) {
		return 1
	}
	return aspect
}

// Area returns the number of cells the tile covers.
func (t Tile) Area() int {
	return t.ColumnSpan * t.RowSpan
}

// MoveTo updates the tile position.
func (t *Tile) MoveTo(pos Position, now time.Time) {
	t.Position = pos
	t.UpdatedAt = now.UTC()
}

// Resize updates the tile spans.
func (t *Tile) Resize(colSpan, rowSpan int, now time.Time) error {
	if colSpan < 1 || rowSpan < 1 {
		return ErrInvalidSpan
	}
	t.ColumnSpan = colSpan
	t.RowSpan = rowSpan
	t.UpdatedAt = now.UTC()
	return nil
}

// Replace swaps the image source, keeping spans and position.
func (t *Tile) Replace(source string, aspect float64, now time.Time) error {
	src, err := ValidateSource(source)
	if err != nil {
		return err
	}
	t.Source = src
	t.AspectRatio = NormalizeAspect(aspect)
	t.UpdatedAt = now.UTC()
	return nil
}
