package domain

import "math"

// OverflowMode selects how a board treats content taller than its viewport.
type OverflowMode string

// OverflowMode values.
const (
	// OverflowFixed bounds the board to the viewport height and enforces cell capacity.
	OverflowFixed OverflowMode = "fixed"
	// OverflowScroll lets the board grow downward without a capacity ceiling.
	OverflowScroll OverflowMode = "scroll"
)

// ParseOverflowMode normalizes a configured overflow mode. Empty input selects OverflowFixed.
func ParseOverflowMode(raw string) (OverflowMode, error) {
	switch OverflowMode(raw) {
	case "", OverflowFixed:
		return OverflowFixed, nil
	case OverflowScroll:
		return OverflowScroll, nil
	default:
		return "", ErrInvalidOverflow
	}
}

// snapEpsilon is the relative float error treated as sitting exactly on a cell boundary.
const snapEpsilon = 1e-12

// Size is a pixel extent.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is a pixel rectangle relative to the grid's inner content origin.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// GridSettings holds the user-facing grid dimensions of a board.
type GridSettings struct {
	Columns   int
	RowHeight float64
	Gap       float64
}

// Validate checks grid settings for usable values.
func (s GridSettings) Validate() error {
	if s.Columns < 1 || s.RowHeight <= 0 || s.Gap < 0 {
		return ErrInvalidSettings
	}
	if math.IsNaN(s.RowHeight) || math.IsNaN(s.Gap) || math.IsInf(s.RowHeight, 0) || math.IsInf(s.Gap, 0) {
		return ErrInvalidSettings
	}
	return nil
}

// Metrics is the derived pixel geometry of one grid at one container size.
// It is cheap to compute and is rebuilt on every frame rather than cached.
type Metrics struct {
	Columns     int
	RowHeight   float64
	Gap         float64
	Padding     float64
	ColumnWidth float64
	UnitX       float64
	UnitY       float64
	InnerWidth  float64
	InnerHeight float64
	MaxRows     int
	Overflow    OverflowMode
}

// ComputeMetrics derives grid geometry for a container. The grid surface pads
// its content by the gap on every side.
func ComputeMetrics(container Size, settings GridSettings, overflow OverflowMode) Metrics {
	if overflow == "" {
		overflow = OverflowFixed
	}
	gap := math.Max(0, settings.Gap)
	m := Metrics{
		Columns:     settings.Columns,
		RowHeight:   math.Max(0, settings.RowHeight),
		Gap:         gap,
		Padding:     gap,
		InnerWidth:  math.Max(0, container.Width-2*gap),
		InnerHeight: math.Max(0, container.Height-2*gap),
		Overflow:    overflow,
	}
	if m.Columns > 0 {
		m.ColumnWidth = math.Max(0, (m.InnerWidth-gap*float64(m.Columns-1))/float64(m.Columns))
	} else {
		m.Columns = 0
	}
	m.UnitX = m.ColumnWidth + gap
	m.UnitY = m.RowHeight + gap
	if m.UnitY > 0 {
		m.MaxRows = int(math.Floor(m.InnerHeight / m.UnitY))
	}
	return m
}

// Usable reports whether the grid can accept placements at all.
func (m Metrics) Usable() bool {
	return m.Columns > 0 && m.ColumnWidth > 0
}

// Bounded reports whether placements are limited by the viewport height.
func (m Metrics) Bounded() bool {
	return m.Overflow != OverflowScroll
}

// Capacity returns the number of cells available in a bounded grid.
// Unbounded grids report math.MaxInt.
func (m Metrics) Capacity() int {
	if !m.Bounded() {
		return math.MaxInt
	}
	return m.Columns * m.MaxRows
}

// PixelToColumn snaps a content-relative x coordinate to a 1-based column start.
func (m Metrics) PixelToColumn(x float64) int {
	if m.Columns < 1 {
		return 1
	}
	if m.UnitX <= 0 {
		return 1
	}
	return clampInt(snapIndex(x/m.UnitX)+1, 1, m.Columns)
}

// PixelToRow snaps a content-relative y coordinate to a 1-based row start.
func (m Metrics) PixelToRow(y float64) int {
	if m.UnitY <= 0 {
		return 1
	}
	row := snapIndex(y/m.UnitY) + 1
	if row < 1 {
		row = 1
	}
	if m.Bounded() {
		row = clampInt(row, 1, max(1, m.MaxRows))
	}
	return row
}

// ColumnDelta converts an incremental pixel delta to whole columns, rounding to nearest.
func (m Metrics) ColumnDelta(dx float64) int {
	if m.UnitX <= 0 {
		return 0
	}
	return int(math.Round(dx / m.UnitX))
}

// RowDelta converts an incremental pixel delta to whole rows, rounding to nearest.
func (m Metrics) RowDelta(dy float64) int {
	if m.UnitY <= 0 {
		return 0
	}
	return int(math.Round(dy / m.UnitY))
}

// RowSpanFor returns the row span that keeps an image of the given aspect
// ratio (height / width) proportional at colSpan columns.
func (m Metrics) RowSpanFor(colSpan int, aspect float64) int {
	if aspect <= 0 || math.IsNaN(aspect) || math.IsInf(aspect, 0) {
		aspect = 1
	}
	if m.UnitY <= 0 || colSpan < 1 {
		return 1
	}
	return max(1, int(math.Round(float64(colSpan)*m.ColumnWidth*aspect/m.UnitY)))
}

// ClampColumnSpan limits a column span to [1, Columns].
func (m Metrics) ClampColumnSpan(span int) int {
	return clampInt(span, 1, max(1, m.Columns))
}

// ClampColumnStart keeps a tile of the given span inside the grid's columns.
func (m Metrics) ClampColumnStart(start, span int) int {
	span = m.ClampColumnSpan(span)
	return clampInt(start, 1, max(1, m.Columns-span+1))
}

// CellRect returns the pixel rectangle of a grid placement.
func (m Metrics) CellRect(col, row, colSpan, rowSpan int) Rect {
	return Rect{
		X:      float64(col-1) * m.UnitX,
		Y:      float64(row-1) * m.UnitY,
		Width:  float64(colSpan)*m.ColumnWidth + float64(max(0, colSpan-1))*m.Gap,
		Height: float64(rowSpan)*m.RowHeight + float64(max(0, rowSpan-1))*m.Gap,
	}
}

// InnerBounds returns the content rectangle tiles may occupy.
func (m Metrics) InnerBounds() Rect {
	return Rect{Width: m.InnerWidth, Height: m.InnerHeight}
}

// snapIndex floors a cell quotient. Quotients within rounding error of a
// whole number land on it; anything else keeps the lower cell.
func snapIndex(q float64) int {
	if nearest := math.Round(q); math.Abs(q-nearest) <= snapEpsilon*math.Max(1, math.Abs(q)) {
		return int(nearest)
	}
	return int(math.Floor(q))
}

// clampInt limits v to [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
