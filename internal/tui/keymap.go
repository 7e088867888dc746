package tui

import "charm.land/bubbles/v2/key"

// keyMap holds the board preview bindings.
type keyMap struct {
	quit       key.Binding
	reload     key.Binding
	toggleHelp key.Binding
	nextTile   key.Binding
	prevTile   key.Binding
	nudgeLeft  key.Binding
	nudgeRight key.Binding
	nudgeUp    key.Binding
	nudgeDown  key.Binding
	growCols   key.Binding
	shrinkCols key.Binding
	growRows   key.Binding
	shrinkRows key.Binding
	pack       key.Binding
	remove     key.Binding
	duplicate  key.Binding
	copyDoc    key.Binding
	info       key.Binding
	cancel     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		nextTile:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tile")),
		prevTile:   key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous tile")),
		nudgeLeft:  key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "nudge left")),
		nudgeRight: key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "nudge right")),
		nudgeUp:    key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "nudge up")),
		nudgeDown:  key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "nudge down")),
		growCols:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "wider")),
		shrinkCols: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "narrower")),
		growRows:   key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "taller")),
		shrinkRows: key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "shorter")),
		pack:       key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pack")),
		remove:     key.NewBinding(key.WithKeys("d", "delete", "backspace"), key.WithHelp("d", "delete tile")),
		duplicate:  key.NewBinding(key.WithKeys("D", "shift+d"), key.WithHelp("D", "duplicate tile")),
		copyDoc:    key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy document")),
		info:       key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "board info")),
		cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "drop gesture / close")),
	}
}

// ShortHelp returns the footer bindings.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.nextTile, k.growCols, k.shrinkCols, k.pack, k.info, k.toggleHelp, k.quit}
}

// FullHelp returns every binding grouped by concern.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.nextTile, k.prevTile, k.nudgeLeft, k.nudgeRight, k.nudgeUp, k.nudgeDown},
		{k.growCols, k.shrinkCols, k.growRows, k.shrinkRows, k.pack},
		{k.remove, k.duplicate, k.copyDoc, k.info, k.cancel, k.reload, k.toggleHelp, k.quit},
	}
}
