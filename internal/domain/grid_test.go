package domain

import (
	"math"
	"testing"
)

// testMetrics returns a 24-column grid whose columns are exactly 24px wide
// and whose viewport holds exactly ten 24px rows: unitX = unitY = 30.
func testMetrics() Metrics {
	return ComputeMetrics(Size{Width: 726, Height: 312}, GridSettings{Columns: 24, RowHeight: 24, Gap: 6}, OverflowFixed)
}

func TestComputeMetricsDefaults(t *testing.T) {
	m := testMetrics()
	if m.InnerWidth != 714 || m.InnerHeight != 300 {
		t.Fatalf("unexpected inner size %vx%v", m.InnerWidth, m.InnerHeight)
	}
	if m.ColumnWidth != 24 {
		t.Fatalf("unexpected column width %v", m.ColumnWidth)
	}
	if m.UnitX != 30 || m.UnitY != 30 {
		t.Fatalf("unexpected units %v/%v", m.UnitX, m.UnitY)
	}
	if m.MaxRows != 10 {
		t.Fatalf("expected 10 rows, got %d", m.MaxRows)
	}
	if m.Capacity() != 240 {
		t.Fatalf("expected capacity 240, got %d", m.Capacity())
	}
}

func TestComputeMetricsNeverDividesByZero(t *testing.T) {
	cases := []struct {
		name      string
		container Size
		grid      GridSettings
	}{
		{name: "zero container", container: Size{}, grid: GridSettings{Columns: 24, RowHeight: 24, Gap: 6}},
		{name: "zero columns", container: Size{Width: 800, Height: 600}, grid: GridSettings{Columns: 0, RowHeight: 24, Gap: 6}},
		{name: "negative columns", container: Size{Width: 800, Height: 600}, grid: GridSettings{Columns: -3, RowHeight: 24, Gap: 6}},
		{name: "zero row height and gap", container: Size{Width: 800, Height: 600}, grid: GridSettings{Columns: 12}},
		{name: "gaps wider than container", container: Size{Width: 40, Height: 40}, grid: GridSettings{Columns: 24, RowHeight: 24, Gap: 20}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := ComputeMetrics(tc.container, tc.grid, OverflowFixed)
			for _, v := range []float64{m.ColumnWidth, m.UnitX, m.UnitY, m.InnerWidth, m.InnerHeight} {
				if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
					t.Fatalf("metric out of range: %+v", m)
				}
			}
			if m.MaxRows < 0 {
				t.Fatalf("negative max rows: %+v", m)
			}
			_ = m.PixelToColumn(123)
			_ = m.PixelToRow(123)
			_ = m.ColumnDelta(50)
			_ = m.RowSpanFor(4, 1.5)
		})
	}
}

func TestComputeMetricsDegenerateColumns(t *testing.T) {
	m := ComputeMetrics(Size{Width: 800, Height: 600}, GridSettings{Columns: 0, RowHeight: 24, Gap: 6}, OverflowFixed)
	if m.ColumnWidth != 0 {
		t.Fatalf("expected zero column width, got %v", m.ColumnWidth)
	}
	if m.Usable() {
		t.Fatal("expected degenerate grid to be unusable")
	}
}

func TestPixelToColumnFloorsAtBoundaries(t *testing.T) {
	m := testMetrics()
	cases := []struct {
		x    float64
		want int
	}{
		{x: -50, want: 1},
		{x: 0, want: 1},
		{x: 18, want: 1},
		{x: 29.999, want: 1},
		{x: 30, want: 2},
		{x: 59.5, want: 2},
		{x: 10_000, want: 24},
	}
	for _, tc := range cases {
		if got := m.PixelToColumn(tc.x); got != tc.want {
			t.Fatalf("PixelToColumn(%v) = %d, want %d", tc.x, got, tc.want)
		}
	}
}

func TestPixelToColumnKeepsLowerCellJustBelowBoundary(t *testing.T) {
	m := testMetrics()
	if got := m.PixelToColumn(60 - 3e-9); got != 2 {
		t.Fatalf("PixelToColumn just below boundary = %d, want 2", got)
	}
	if got := m.PixelToRow(90 - 3e-9); got != 3 {
		t.Fatalf("PixelToRow just below boundary = %d, want 3", got)
	}

	// Fractional units: every cell origin must map back to its own cell.
	odd := ComputeMetrics(Size{Width: 1000, Height: 700}, GridSettings{Columns: 24, RowHeight: 23.7, Gap: 6}, OverflowScroll)
	for col := 1; col <= odd.Columns; col++ {
		rect := odd.CellRect(col, col, 1, 1)
		if got := odd.PixelToColumn(rect.X); got != col {
			t.Fatalf("PixelToColumn(%v) = %d, want %d", rect.X, got, col)
		}
		if got := odd.PixelToRow(rect.Y); got != col {
			t.Fatalf("PixelToRow(%v) = %d, want %d", rect.Y, got, col)
		}
	}
}

func TestPixelToRowBoundedAndScroll(t *testing.T) {
	m := testMetrics()
	if got := m.PixelToRow(10_000); got != 10 {
		t.Fatalf("expected bounded row clamp to 10, got %d", got)
	}
	if got := m.PixelToRow(29); got != 1 {
		t.Fatalf("expected row 1, got %d", got)
	}
	m.Overflow = OverflowScroll
	if got := m.PixelToRow(600); got != 21 {
		t.Fatalf("expected unbounded row 21, got %d", got)
	}
}

func TestDeltasRoundToNearest(t *testing.T) {
	m := testMetrics()
	if got := m.ColumnDelta(44); got != 1 {
		t.Fatalf("ColumnDelta(44) = %d, want 1", got)
	}
	if got := m.ColumnDelta(46); got != 2 {
		t.Fatalf("ColumnDelta(46) = %d, want 2", got)
	}
	if got := m.RowDelta(-46); got != -2 {
		t.Fatalf("RowDelta(-46) = %d, want -2", got)
	}
}

func TestRowSpanFor(t *testing.T) {
	m := testMetrics()
	if got := m.RowSpanFor(10, 1); got != 8 {
		t.Fatalf("RowSpanFor(10, 1) = %d, want 8", got)
	}
	if got := m.RowSpanFor(10, 0.75); got != 6 {
		t.Fatalf("RowSpanFor(10, 0.75) = %d, want 6", got)
	}
	if got := m.RowSpanFor(1, 0.01); got != 1 {
		t.Fatalf("expected minimum row span 1, got %d", got)
	}
	if got := m.RowSpanFor(5, -2); got != 4 {
		t.Fatalf("expected invalid aspect to fall back to 1, got %d", got)
	}
}

func TestCellRect(t *testing.T) {
	m := testMetrics()
	got := m.CellRect(2, 3, 2, 1)
	want := Rect{X: 30, Y: 60, Width: 54, Height: 24}
	if got != want {
		t.Fatalf("CellRect() = %+v, want %+v", got, want)
	}
}

func TestParseOverflowMode(t *testing.T) {
	if mode, err := ParseOverflowMode(""); err != nil || mode != OverflowFixed {
		t.Fatalf("expected fixed default, got %q %v", mode, err)
	}
	if mode, err := ParseOverflowMode("scroll"); err != nil || mode != OverflowScroll {
		t.Fatalf("expected scroll, got %q %v", mode, err)
	}
	if _, err := ParseOverflowMode("auto"); err != ErrInvalidOverflow {
		t.Fatalf("expected ErrInvalidOverflow, got %v", err)
	}
}
