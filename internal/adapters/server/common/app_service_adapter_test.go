package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylla/kollage/internal/adapters/imageprobe"
	"github.com/hylla/kollage/internal/adapters/storage/sqlite"
	"github.com/hylla/kollage/internal/app"
	"github.com/hylla/kollage/internal/domain"
)

// pngBytes encodes a blank image of the given size.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

// newTestAdapter wires an adapter over an in-memory sqlite service.
func newTestAdapter(t *testing.T) *AppServiceAdapter {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	blobs := imageprobe.NewBlobStore(0)
	ids := 0
	svc := app.NewService(repo, imageprobe.New(imageprobe.Config{Blobs: blobs}), func() string {
		ids++
		return fmt.Sprintf("id%d", ids)
	}, func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}, app.ServiceConfig{Debounce: time.Hour})
	t.Cleanup(svc.Close)
	return NewAppServiceAdapter(svc, blobs)
}

func TestAdapterBoardAndTileRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	board, err := a.CreateBoard(ctx, CreateBoardRequest{ID: "b1", Columns: 24, Gap: 6, ViewportWidth: 726, ViewportHeight: 312})
	require.NoError(t, err)
	assert.Equal(t, 240, board.Capacity)
	assert.Equal(t, 10, board.MaxRows)
	assert.InDelta(t, 24.0, board.ColumnWidth, 1e-9)
	assert.Equal(t, "fixed", board.Overflow)

	blob, err := a.UploadBlob(ctx, pngBytes(t, 40, 20), "image/png")
	require.NoError(t, err)
	assert.Equal(t, 40, blob.Width)
	assert.Equal(t, "png", blob.Format)

	tile, err := a.AddTile(ctx, AddTileRequest{BoardID: "b1", Source: blob.Source, ColumnSpan: 4})
	require.NoError(t, err)
	assert.True(t, tile.Auto)
	assert.Nil(t, tile.ColumnStart)
	assert.Equal(t, 4, tile.ColumnSpan)
	assert.Equal(t, 2, tile.RowSpan)
	assert.Equal(t, domain.Placement{TileID: tile.ID, Column: 1, Row: 1, ColumnSpan: 4, RowSpan: 2}, tile.Placement)
	assert.Equal(t, domain.Rect{X: 0, Y: 0, Width: 114, Height: 54}, tile.Rect)

	moved, err := a.MoveTile(ctx, MoveTileRequest{BoardID: "b1", TileID: tile.ID, Column: 3, Row: 2})
	require.NoError(t, err)
	require.NotNil(t, moved.ColumnStart)
	assert.Equal(t, 3, *moved.ColumnStart)
	assert.Equal(t, 2, *moved.RowStart)
	assert.Equal(t, domain.Rect{X: 60, Y: 30, Width: 114, Height: 54}, moved.Rect)

	raw, err := a.ExportDocument(ctx, "b1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), blob.Source)

	events, err := a.ListEvents(ctx, "b1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "move", events[0].Operation)

	list, err := a.ListBoards(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 8, list[0].UsedCells)

	require.NoError(t, a.RemoveTile(ctx, "b1", tile.ID))
	require.NoError(t, a.RemoveTile(ctx, "b1", tile.ID))
	require.NoError(t, a.DeleteBoard(ctx, "b1"))
	_, err = a.GetBoard(ctx, "b1")
	assert.Equal(t, CodeNotFound, ErrorCode(err))
}

func TestAdapterViewportWarningIsNotFatal(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	_, err := a.CreateBoard(ctx, CreateBoardRequest{ID: "b1", Columns: 24, Gap: 6, ViewportWidth: 726, ViewportHeight: 612})
	require.NoError(t, err)

	tall, err := a.UploadBlob(ctx, pngBytes(t, 10, 200), "image/png")
	require.NoError(t, err)
	for range 20 {
		_, err := a.AddTile(ctx, AddTileRequest{BoardID: "b1", Source: tall.Source, ColumnSpan: 1})
		require.NoError(t, err)
	}

	view, err := a.SetViewport(ctx, ViewportRequest{BoardID: "b1", Width: 726, Height: 312})
	require.NoError(t, err)
	assert.NotEmpty(t, view.Warning)
	assert.Equal(t, domain.Size{Width: 726, Height: 312}, view.Viewport)
}

func TestAdapterRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	_, err := a.CreateBoard(ctx, CreateBoardRequest{ID: "b1", Overflow: "sideways"})
	assert.Equal(t, CodeInvalidRequest, ErrorCode(err))

	_, err = a.CreateBoard(ctx, CreateBoardRequest{ID: "b1"})
	require.NoError(t, err)
	_, err = a.CreateBoard(ctx, CreateBoardRequest{ID: "b1"})
	assert.Equal(t, CodeConflict, ErrorCode(err))

	_, err = a.AddTile(ctx, AddTileRequest{BoardID: "b1", Source: "javascript:alert(1)"})
	assert.Equal(t, CodeInvalidSource, ErrorCode(err))

	_, err = a.UploadBlob(ctx, []byte("not an image"), "image/png")
	assert.Equal(t, CodeLoadFailed, ErrorCode(err))

	_, err = a.ImportDocument(ctx, ImportRequest{BoardID: "b1", Document: []byte(`{"items":`)})
	assert.Equal(t, CodeParseError, ErrorCode(err))
}

func TestNilAdapterIsUnavailable(t *testing.T) {
	var a *AppServiceAdapter
	_, err := a.GetBoard(context.Background(), "b1")
	assert.True(t, errors.Is(err, ErrServiceUnavailable))
	assert.Equal(t, CodeUnavailable, ErrorCode(err))

	_, err = NewAppServiceAdapter(nil, nil).UploadBlob(context.Background(), []byte{1}, "")
	assert.Equal(t, CodeUnavailable, ErrorCode(err))
}

func TestErrorCodeClassification(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", app.ErrNotFound), CodeNotFound},
		{domain.ErrCapacity, CodeCapacityExceeded},
		{domain.ErrUnpackable, CodeUnpackable},
		{domain.ErrDegenerateGrid, CodeDegenerateGrid},
		{app.ErrGestureActive, CodeConflict},
		{domain.ErrInvalidSpan, CodeInvalidRequest},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ErrorCode(tc.err), "%v", tc.err)
	}
}
