package domain

import (
	"fmt"
	"time"
)

// Placement is a tile's resolved cell rectangle.
type Placement struct {
	TileID     string `json:"tile_id"`
	Column     int    `json:"column"`
	Row        int    `json:"row"`
	ColumnSpan int    `json:"column_span"`
	RowSpan    int    `json:"row_span"`
}

// Contains reports whether the 1-based cell lies inside the placement.
func (p Placement) Contains(column, row int) bool {
	return column >= p.Column && column < p.Column+p.ColumnSpan &&
		row >= p.Row && row < p.Row+p.RowSpan
}

// Span is a candidate start and extent used while fitting a tile.
type Span struct {
	Column     int
	Row        int
	ColumnSpan int
	RowSpan    int
}

// RowsFor yields the row span for a column span, usually from an aspect ratio.
type RowsFor func(colSpan int) int

// Arrange resolves every tile to a cell rectangle. Explicit tiles keep their
// (column-clamped) cells; Auto tiles are placed in order at the first free
// position scanning rows top to bottom and columns left to right.
func Arrange(columns int, tiles []Tile) []Placement {
	if columns < 1 {
		return nil
	}
	occ := &occupancy{columns: columns}
	out := make([]Placement, len(tiles))
	for i, t := range tiles {
		col, row, ok := t.Position.Cell()
		if !ok {
			continue
		}
		span := clampInt(t.ColumnSpan, 1, columns)
		col = clampInt(col, 1, columns-span+1)
		out[i] = Placement{TileID: t.ID, Column: col, Row: row, ColumnSpan: span, RowSpan: max(1, t.RowSpan)}
		occ.mark(out[i])
	}
	for i, t := range tiles {
		if !t.Position.IsAuto() {
			continue
		}
		span := clampInt(t.ColumnSpan, 1, columns)
		rows := max(1, t.RowSpan)
		col, row := occ.firstFree(span, rows)
		out[i] = Placement{TileID: t.ID, Column: col, Row: row, ColumnSpan: span, RowSpan: rows}
		occ.mark(out[i])
	}
	return out
}

// occupancy tracks filled cells row by row; rows grow on demand.
type occupancy struct {
	columns int
	rows    [][]bool
}

func (o *occupancy) ensure(rows int) {
	for len(o.rows) < rows {
		o.rows = append(o.rows, make([]bool, o.columns))
	}
}

func (o *occupancy) mark(p Placement) {
	o.ensure(p.Row + p.RowSpan - 1)
	for r := p.Row; r < p.Row+p.RowSpan; r++ {
		for c := p.Column; c < p.Column+p.ColumnSpan && c <= o.columns; c++ {
			o.rows[r-1][c-1] = true
		}
	}
}

func (o *occupancy) free(col, row, colSpan, rowSpan int) bool {
	for r := row; r < row+rowSpan; r++ {
		if r > len(o.rows) {
			return true
		}
		for c := col; c < col+colSpan; c++ {
			if o.rows[r-1][c-1] {
				return false
			}
		}
	}
	return true
}

func (o *occupancy) firstFree(colSpan, rowSpan int) (int, int) {
	for row := 1; ; row++ {
		if row > len(o.rows) {
			return 1, row
		}
		for col := 1; col+colSpan-1 <= o.columns; col++ {
			if o.free(col, row, colSpan, rowSpan) {
				return col, row
			}
		}
	}
}

// CheckCapacity rejects adding `extra` cells to a bounded grid already using `used`.
func CheckCapacity(m Metrics, used, extra int) error {
	if !m.Bounded() {
		return nil
	}
	if used+extra > m.Capacity() {
		return fmt.Errorf("%w: %d of %d cells in use, %d requested", ErrCapacity, used, m.Capacity(), extra)
	}
	return nil
}

// Pack shrinks tiles until their summed area fits the capacity, then clears
// every position to Auto so the arranger flows them densely. Each step takes
// the largest-area tile that can still shrink (ties: larger column span, then
// earlier order), narrows it by one column and rederives its rows from its
// aspect ratio. When nothing can shrink further ErrUnpackable is returned
// along with the best-effort result.
func Pack(m Metrics, tiles []Tile, now time.Time) ([]Tile, error) {
	out := make([]Tile, len(tiles))
	copy(out, tiles)
	if len(out) == 0 {
		return out, nil
	}
	if !m.Usable() {
		return out, ErrDegenerateGrid
	}
	changed := make([]bool, len(out))
	for i := range out {
		if span := m.ClampColumnSpan(out[i].ColumnSpan); span != out[i].ColumnSpan {
			out[i].ColumnSpan = span
			out[i].RowSpan = m.RowSpanFor(span, out[i].AspectRatio)
			changed[i] = true
		}
	}

	var packErr error
	if m.Bounded() {
		capacity := m.Capacity()
		guard := 0
		for _, t := range out {
			guard += t.ColumnSpan
		}
		for used := UsedCells(out); used > capacity; used = UsedCells(out) {
			idx := packCandidate(out)
			if idx < 0 || guard <= 0 {
				packErr = fmt.Errorf("%w: %d cells needed, %d available", ErrUnpackable, used, capacity)
				break
			}
			guard--
			out[idx].ColumnSpan--
			out[idx].RowSpan = m.RowSpanFor(out[idx].ColumnSpan, out[idx].AspectRatio)
			changed[idx] = true
		}
	}

	for i := range out {
		if !out[i].Position.IsAuto() {
			out[i].Position = AutoPosition()
			changed[i] = true
		}
		if changed[i] {
			out[i].UpdatedAt = now.UTC()
		}
	}
	return out, packErr
}

// packCandidate picks the next tile to shrink or -1.
func packCandidate(tiles []Tile) int {
	best := -1
	for i, t := range tiles {
		if t.ColumnSpan <= 1 {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := tiles[best]
		switch {
		case t.Area() > b.Area():
			best = i
		case t.Area() == b.Area() && t.ColumnSpan > b.ColumnSpan:
			best = i
		}
	}
	return best
}

// FitWithinRows keeps a tile inside a bounded grid's rows. A span that already
// fits is returned unchanged. Otherwise the column span shrinks (rederiving
// rows) until the tile fits; if even one column is too tall the start moves
// up and the row span is finally clamped to the grid height. Column start and
// span are always clamped to the grid's columns.
func FitWithinRows(m Metrics, s Span, rowsFor RowsFor) Span {
	if rowsFor == nil {
		rowsFor = func(int) int { return s.RowSpan }
	}
	if s.ColumnSpan != m.ClampColumnSpan(s.ColumnSpan) {
		s.ColumnSpan = m.ClampColumnSpan(s.ColumnSpan)
		s.RowSpan = rowsFor(s.ColumnSpan)
	}
	s.RowSpan = max(1, s.RowSpan)
	s.Column = m.ClampColumnStart(s.Column, s.ColumnSpan)
	s.Row = max(1, s.Row)
	if !m.Bounded() {
		return s
	}
	if m.MaxRows < 1 {
		s.Row, s.RowSpan = 1, 1
		return s
	}
	fits := func() bool { return s.Row+s.RowSpan-1 <= m.MaxRows }
	for !fits() && s.ColumnSpan > 1 {
		s.ColumnSpan--
		s.RowSpan = max(1, rowsFor(s.ColumnSpan))
	}
	if !fits() {
		s.Row = max(1, m.MaxRows-s.RowSpan+1)
		s.RowSpan = min(s.RowSpan, m.MaxRows)
	}
	return s
}

// ClampToCapacity shrinks a span until it fits next to `others` used cells.
// Columns shrink first (rederiving rows), then rows. ErrCapacity is returned
// when even a single cell does not fit.
func ClampToCapacity(m Metrics, s Span, others int, rowsFor RowsFor) (Span, error) {
	if !m.Bounded() {
		return s, nil
	}
	if rowsFor == nil {
		rowsFor = func(int) int { return s.RowSpan }
	}
	capacity := m.Capacity()
	for others+s.ColumnSpan*s.RowSpan > capacity && s.ColumnSpan > 1 {
		s.ColumnSpan--
		s.RowSpan = max(1, rowsFor(s.ColumnSpan))
	}
	for others+s.ColumnSpan*s.RowSpan > capacity && s.RowSpan > 1 {
		s.RowSpan--
	}
	if err := CheckCapacity(m, others, s.ColumnSpan*s.RowSpan); err != nil {
		return s, err
	}
	return s, nil
}
