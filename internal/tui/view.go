package tui

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/kollage/internal/app"
)

var tilePalette = []color.Color{
	lipgloss.Color("24"),
	lipgloss.Color("130"),
	lipgloss.Color("29"),
	lipgloss.Color("90"),
	lipgloss.Color("94"),
	lipgloss.Color("31"),
	lipgloss.Color("125"),
	lipgloss.Color("58"),
}

var (
	accentColor   = lipgloss.Color("212")
	mutedColor    = lipgloss.Color("241")
	dimColor      = lipgloss.Color("239")
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle   = lipgloss.NewStyle().Foreground(dimColor)
	emptyStyle    = lipgloss.NewStyle().Foreground(dimColor)
	ghostStyle    = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	hiddenStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("232")).Background(accentColor).Bold(true)
)

// View renders the board preview.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.MouseMode = tea.MouseModeCellMotion
	v.AltScreen = true
	return v
}

func (m Model) render() string {
	if m.err != nil {
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	}
	if !m.loaded {
		return "loading..."
	}

	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor)
	var body string
	if m.showInfo {
		frame = frame.BorderForeground(accentColor).Padding(0, 1)
		body = m.markdown.render(m.infoMarkdown(), max(24, m.width-6))
	} else {
		body = m.renderGrid()
	}

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(mutedColor).
		BorderTop(true).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	sections := []string{
		m.titleLine(),
		frame.Render(body),
		statusStyle.Render(m.status),
		helpLine,
	}
	content := strings.Join(sections, "\n")
	if m.height > 0 {
		content = fitLines(content, m.height)
	}
	return content
}

func (m Model) titleLine() string {
	l := m.layout
	capacity := "unbounded"
	if l.Capacity >= 0 {
		capacity = fmt.Sprintf("%d", l.Capacity)
	}
	parts := []string{
		"kollage",
		l.Board.ID,
		fmt.Sprintf("%d tiles", len(l.Board.Tiles)),
		fmt.Sprintf("%d/%s cells", l.UsedCells, capacity),
		string(l.Metrics.Overflow),
	}
	if p := m.preview; p.State != app.GestureIdle && p.Ghost != nil {
		parts = append(parts, fmt.Sprintf("%s %d,%d %dx%d", p.State, p.Span.Column, p.Span.Row, p.Span.ColumnSpan, p.Span.RowSpan))
	}
	return titleStyle.Render(strings.Join(parts, " · "))
}

// renderGrid draws one text cell per grid cell, cellWidth characters wide.
func (m Model) renderGrid() string {
	met := m.layout.Metrics
	cols := met.Columns
	if cols < 1 || !met.Usable() {
		return emptyStyle.Render("grid has no usable columns")
	}
	cw := m.cellWidth()
	rows := m.visibleRows()

	owners := make([][]int, rows)
	for r := range owners {
		owners[r] = make([]int, cols)
		for c := range owners[r] {
			owners[r][c] = -1
		}
	}
	for i, p := range m.layout.Placements {
		for r := p.Row; r < p.Row+p.RowSpan; r++ {
			rr := r - 1 - m.scrollRow
			if rr < 0 || rr >= rows {
				continue
			}
			for c := p.Column; c < p.Column+p.ColumnSpan && c <= cols; c++ {
				owners[rr][c-1] = i
			}
		}
	}

	ghost := m.preview.State != app.GestureIdle && m.preview.Ghost != nil
	span := m.preview.Span
	inGhost := func(col, row int) bool {
		return ghost && col >= span.Column && col < span.Column+span.ColumnSpan &&
			row >= span.Row && row < span.Row+span.RowSpan
	}

	lines := make([]string, 0, rows)
	for r := range rows {
		row := r + 1 + m.scrollRow
		var b strings.Builder
		for c := range cols {
			col := c + 1
			if inGhost(col, row) {
				b.WriteString(ghostStyle.Render(strings.Repeat("░", cw)))
				continue
			}
			b.WriteString(m.renderCell(owners[r][c], col, row, cw))
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderCell(owner, col, row, cw int) string {
	if owner < 0 {
		return emptyStyle.Render(padCell("·", cw))
	}
	p := m.layout.Placements[owner]
	if m.preview.Hidden && m.preview.TileID == p.TileID {
		return hiddenStyle.Render(strings.Repeat("·", cw))
	}
	idx := max(0, m.layout.Board.TileIndex(p.TileID))
	label := ""
	switch {
	case col == p.Column && row == p.Row:
		label = fmt.Sprintf("%d", idx+1)
	case col == p.Column+p.ColumnSpan-1 && row == p.Row+p.RowSpan-1:
		label = strings.Repeat(" ", max(0, cw-1)) + "◢"
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(tilePalette[idx%len(tilePalette)])
	if p.TileID == m.selectedID {
		style = selectedStyle
	}
	return style.Render(padCell(label, cw))
}

// padCell fits s into exactly w columns.
func padCell(s string, w int) string {
	n := utf8.RuneCountInString(s)
	if n >= w {
		return string([]rune(s)[:w])
	}
	return s + strings.Repeat(" ", w-n)
}

// infoMarkdown summarizes the board for the info panel.
func (m Model) infoMarkdown() string {
	l := m.layout
	b := l.Board
	capacity := "unbounded"
	if l.Capacity >= 0 {
		capacity = fmt.Sprintf("%d", l.Capacity)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Board `%s`\n\n", b.ID)
	sb.WriteString("| setting | value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| grid | %d columns, %.0fpx rows, %.0fpx gap |\n", b.Grid.Columns, b.Grid.RowHeight, b.Grid.Gap)
	fmt.Fprintf(&sb, "| overflow | %s |\n", b.Overflow)
	fmt.Fprintf(&sb, "| viewport | %.0f × %.0f |\n", b.Viewport.Width, b.Viewport.Height)
	fmt.Fprintf(&sb, "| column width | %.1fpx |\n", l.Metrics.ColumnWidth)
	fmt.Fprintf(&sb, "| cells | %d of %s |\n\n", l.UsedCells, capacity)

	sb.WriteString("## Tiles\n\n")
	if len(b.Tiles) == 0 {
		sb.WriteString("_No tiles._\n")
	}
	for i, t := range b.Tiles {
		where := "auto"
		if p, ok := l.Placement(t.ID); ok {
			where = fmt.Sprintf("%d,%d", p.Column, p.Row)
			if t.Position.IsAuto() {
				where += " (auto)"
			}
		}
		fmt.Fprintf(&sb, "%d. `%s` %dx%d at %s, %s\n", i+1, t.ID, t.ColumnSpan, t.RowSpan, where, shortSource(t.Source))
	}

	if len(m.events) > 0 {
		sb.WriteString("\n## Recent activity\n\n")
		for _, ev := range m.events {
			fmt.Fprintf(&sb, "- %s **%s** `%s`\n", ev.OccurredAt.Local().Format("15:04:05"), ev.Operation, ev.TileID)
		}
	}
	return sb.String()
}

// shortSource keeps data URLs and long links readable.
func shortSource(src string) string {
	if strings.HasPrefix(src, "data:") {
		if i := strings.IndexByte(src, ','); i > 0 {
			return "`" + src[:i] + "`"
		}
	}
	if len(src) > 48 {
		return "`" + src[:45] + "...`"
	}
	return "`" + src + "`"
}

// fitLines pads or truncates content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		padding := make([]string, maxLines-len(lines))
		lines = append(lines, padding...)
	}
	return strings.Join(lines, "\n")
}
