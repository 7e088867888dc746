package app

import (
	"context"
	"time"

	"github.com/hylla/kollage/internal/domain"
)

// Repository persists boards and their tiles.
type Repository interface {
	CreateBoard(context.Context, domain.Board) error
	UpdateBoard(context.Context, domain.Board) error
	GetBoard(context.Context, string) (domain.Board, error)
	ListBoards(context.Context) ([]domain.Board, error)
	DeleteBoard(context.Context, string) error
	ListBoardChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)
}

// ImageInfo describes a decoded image header.
type ImageInfo struct {
	Width  int
	Height int
	Format string
}

// AspectRatio returns height / width, or 1 when the size is unknown.
func (i ImageInfo) AspectRatio() float64 {
	if i.Width <= 0 || i.Height <= 0 {
		return 1
	}
	return float64(i.Height) / float64(i.Width)
}

// ImageProvider loads enough of an image to learn its natural size.
type ImageProvider interface {
	Probe(context.Context, string) (ImageInfo, error)
}

// ChangeNotification carries the serialized board after changes settle.
type ChangeNotification struct {
	BoardID  string
	Document []byte
	Tiles    int
	At       time.Time
}

// ChangeSink receives settled board documents.
type ChangeSink interface {
	Publish(context.Context, ChangeNotification) error
}
