package tui

import (
	"context"
	"time"

	"github.com/hylla/kollage/internal/app"
)

type Option func(*Model)

// WithClipboard overrides how the document is copied. Tests use this to avoid the system clipboard.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}

// WithSaveFeed shows a saved indicator whenever feed reports a settled change for the open board.
func WithSaveFeed(feed *SaveFeed) Option {
	return func(m *Model) {
		m.saves = feed
	}
}

// WithClock overrides the status timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// SaveFeed is an app.ChangeSink that hands settled notifications to the TUI.
type SaveFeed struct {
	ch chan app.ChangeNotification
}

// NewSaveFeed constructs a feed with a small buffer.
func NewSaveFeed() *SaveFeed {
	return &SaveFeed{ch: make(chan app.ChangeNotification, 16)}
}

// Publish queues a notification, dropping it when the TUI is behind.
func (f *SaveFeed) Publish(_ context.Context, note app.ChangeNotification) error {
	select {
	case f.ch <- note:
	default:
	}
	return nil
}

// WithMarkdownStyle selects the glamour style for the info panel ("dark", "light", "notty").
func WithMarkdownStyle(style string) Option {
	return func(m *Model) {
		m.markdown.style = style
	}
}
