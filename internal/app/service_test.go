package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hylla/kollage/internal/domain"
)

type fakeRepo struct {
	mu     sync.Mutex
	boards map[string]domain.Board
	events []domain.ChangeEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{boards: map[string]domain.Board{}}
}

func (f *fakeRepo) CreateBoard(_ context.Context, b domain.Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[b.ID] = b.Clone()
	return nil
}

func (f *fakeRepo) UpdateBoard(_ context.Context, b domain.Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.boards[b.ID]; !ok {
		return ErrNotFound
	}
	f.boards[b.ID] = b.Clone()
	return nil
}

func (f *fakeRepo) GetBoard(_ context.Context, id string) (domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[id]
	if !ok {
		return domain.Board{}, ErrNotFound
	}
	return b.Clone(), nil
}

func (f *fakeRepo) ListBoards(_ context.Context) ([]domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Board, 0, len(f.boards))
	for _, b := range f.boards {
		out = append(out, b.Clone())
	}
	slices.SortFunc(out, func(a, b domain.Board) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *fakeRepo) DeleteBoard(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.boards[id]; !ok {
		return ErrNotFound
	}
	delete(f.boards, id)
	return nil
}

func (f *fakeRepo) ListBoardChangeEvents(_ context.Context, boardID string, limit int) ([]domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ChangeEvent, 0, len(f.events))
	for _, e := range f.events {
		if e.BoardID == boardID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeImages struct {
	mu      sync.Mutex
	infos   map[string]ImageInfo
	errs    map[string]error
	calls   []string
	onProbe func(src string)
	block   bool
}

func newFakeImages() *fakeImages {
	return &fakeImages{infos: map[string]ImageInfo{}, errs: map[string]error{}}
}

func (f *fakeImages) Probe(ctx context.Context, src string) (ImageInfo, error) {
	f.mu.Lock()
	f.calls = append(f.calls, src)
	info, hasInfo := f.infos[src]
	err := f.errs[src]
	hook := f.onProbe
	block := f.block
	f.mu.Unlock()
	if hook != nil {
		hook(src)
	}
	if block {
		<-ctx.Done()
		return ImageInfo{}, ctx.Err()
	}
	if err != nil {
		return ImageInfo{}, err
	}
	if !hasInfo {
		return ImageInfo{Width: 100, Height: 100, Format: "png"}, nil
	}
	return info, nil
}

func (f *fakeImages) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingSink struct {
	mu    sync.Mutex
	notes []ChangeNotification
}

func (r *recordingSink) Publish(_ context.Context, n ChangeNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

func (r *recordingSink) last() ChangeNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notes[len(r.notes)-1]
}

// smallViewport gives 24 columns of 24px and ten 24px rows (capacity 240).
var smallViewport = domain.Size{Width: 726, Height: 312}

func newTestService(t *testing.T, images ImageProvider, cfg ServiceConfig) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	ids := 0
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if cfg.Debounce == 0 {
		cfg.Debounce = time.Hour
	}
	svc := NewService(repo, images, func() string {
		ids++
		return fmt.Sprintf("id%d", ids)
	}, func() time.Time { return now }, cfg)
	t.Cleanup(svc.Close)
	return svc, repo
}

func newTestBoard(t *testing.T, svc *Service) domain.Board {
	t.Helper()
	board, err := svc.CreateBoard(context.Background(), CreateBoardInput{Viewport: smallViewport})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	return board
}

func intPtr(v int) *int { return &v }

func TestCreateBoardUsesDefaultsAndRegistry(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board, err := svc.CreateBoard(ctx, CreateBoardInput{})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	if !strings.HasPrefix(board.ID, BoardIDPrefix) {
		t.Fatalf("expected prefixed board id, got %q", board.ID)
	}
	if board.Grid.Columns != 24 || board.Grid.RowHeight != 24 || board.Grid.Gap != 6 {
		t.Fatalf("unexpected grid defaults %+v", board.Grid)
	}
	if _, err := svc.CreateBoard(ctx, CreateBoardInput{ID: board.ID}); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if err := svc.DeleteBoard(ctx, board.ID); err != nil {
		t.Fatalf("DeleteBoard() error = %v", err)
	}
	if _, err := svc.CreateBoard(ctx, CreateBoardInput{ID: board.ID}); err != nil {
		t.Fatalf("expected released id to be reusable, got %v", err)
	}
}

func TestEnsureDefaultBoardSeedsOnce(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board, err := svc.EnsureDefaultBoard(ctx)
	if err != nil {
		t.Fatalf("EnsureDefaultBoard() error = %v", err)
	}
	if len(board.Tiles) != 2 {
		t.Fatalf("expected 2 seed tiles, got %d", len(board.Tiles))
	}
	for _, tile := range board.Tiles {
		if !tile.Position.IsAuto() {
			t.Fatalf("expected seed tiles repacked to auto, got %+v", tile)
		}
		if !strings.HasPrefix(tile.Source, "data:image/svg+xml") {
			t.Fatalf("unexpected seed source %q", tile.Source)
		}
	}
	again, err := svc.EnsureDefaultBoard(ctx)
	if err != nil {
		t.Fatalf("EnsureDefaultBoard() second call error = %v", err)
	}
	if again.ID != board.ID || len(again.Tiles) != 2 {
		t.Fatalf("expected existing board reused, got %+v", again)
	}
}

func TestAddTileDerivesRowsAndClampsColumns(t *testing.T) {
	images := newFakeImages()
	images.infos["https://example.com/wide.jpg"] = ImageInfo{Width: 800, Height: 600, Format: "jpeg"}
	svc, _ := newTestService(t, images, ServiceConfig{})
	ctx := context.Background()
	board, err := svc.CreateBoard(ctx, CreateBoardInput{})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}

	tile, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/wide.jpg", ColumnSpan: 10})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	// 1200px viewport: column width 43.75, unitY 30.
	if tile.ColumnSpan != 10 || tile.RowSpan != 11 {
		t.Fatalf("expected 10x11 tile, got %dx%d", tile.ColumnSpan, tile.RowSpan)
	}
	if tile.AspectRatio != 0.75 {
		t.Fatalf("expected aspect 0.75, got %v", tile.AspectRatio)
	}
	layout, err := svc.Layout(ctx, board.ID)
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	if p, ok := layout.Placement(tile.ID); !ok || p.Column != 1 || p.Row != 1 {
		t.Fatalf("expected first auto slot (1,1), got %+v", p)
	}

	wide, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/other.png", ColumnSpan: 40, RowSpan: 2})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	if wide.ColumnSpan != 24 {
		t.Fatalf("expected column span clamped to 24, got %d", wide.ColumnSpan)
	}

	def, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/def.png"})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	if def.ColumnSpan != 6 {
		t.Fatalf("expected default column span 6, got %d", def.ColumnSpan)
	}
}

func TestAddTileCapacityRejectsWithoutMutation(t *testing.T) {
	svc, repo := newTestService(t, newFakeImages(), ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)

	for i := range 2 {
		if _, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 12, RowSpan: 10}); err != nil {
			t.Fatalf("AddTile(%d) error = %v", i, err)
		}
	}
	_, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/b.png", ColumnSpan: 1, RowSpan: 1})
	if !errors.Is(err, domain.ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	stored, _ := repo.GetBoard(ctx, board.ID)
	if len(stored.Tiles) != 2 {
		t.Fatalf("expected tile count unchanged at 2, got %d", len(stored.Tiles))
	}
}

func TestAddTileRejectsUnsafeSourceBeforeLoading(t *testing.T) {
	images := newFakeImages()
	svc, repo := newTestService(t, images, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)

	_, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "javascript:alert(1)"})
	if !errors.Is(err, domain.ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource, got %v", err)
	}
	if images.callCount() != 0 {
		t.Fatalf("expected no image load, got %d", images.callCount())
	}
	stored, _ := repo.GetBoard(ctx, board.ID)
	if len(stored.Tiles) != 0 {
		t.Fatalf("expected no tiles, got %d", len(stored.Tiles))
	}
}

func TestAddTileLoadFailures(t *testing.T) {
	images := newFakeImages()
	images.errs["https://example.com/broken.png"] = errors.New("decode failed")
	svc, repo := newTestService(t, images, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)

	if _, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/broken.png"}); !errors.Is(err, domain.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}

	slow := newFakeImages()
	slow.block = true
	slowSvc, slowRepo := newTestService(t, slow, ServiceConfig{LoadTimeout: 20 * time.Millisecond})
	slowBoard := newTestBoard(t, slowSvc)
	if _, err := slowSvc.AddTile(ctx, slowBoard.ID, AddTileInput{Source: "https://example.com/slow.png"}); !errors.Is(err, domain.ErrLoad) {
		t.Fatalf("expected ErrLoad on timeout, got %v", err)
	}

	for _, r := range []*fakeRepo{repo, slowRepo} {
		boards, _ := r.ListBoards(ctx)
		for _, b := range boards {
			if len(b.Tiles) != 0 {
				t.Fatalf("expected failed loads to leave board empty, got %d tiles", len(b.Tiles))
			}
		}
	}
}

func TestRemoveTileIsNoOpWhenMissing(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	tile, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 2, RowSpan: 2})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	if err := svc.RemoveTile(ctx, board.ID, "missing"); err != nil {
		t.Fatalf("RemoveTile(missing) error = %v", err)
	}
	if err := svc.RemoveTile(ctx, board.ID, tile.ID); err != nil {
		t.Fatalf("RemoveTile() error = %v", err)
	}
	got, _ := svc.GetBoard(ctx, board.ID)
	if len(got.Tiles) != 0 {
		t.Fatalf("expected empty board, got %d tiles", len(got.Tiles))
	}
}

func TestDuplicateTileOffsetsByOneColumn(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	tile, err := svc.AddTile(ctx, board.ID, AddTileInput{
		Source: "https://example.com/a.png", ColumnSpan: 4, RowSpan: 3,
		ColumnStart: intPtr(3), RowStart: intPtr(2),
	})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	dup, err := svc.DuplicateTile(ctx, board.ID, tile.ID)
	if err != nil {
		t.Fatalf("DuplicateTile() error = %v", err)
	}
	if dup.ID == tile.ID {
		t.Fatal("expected a new id for the duplicate")
	}
	if col, row, ok := dup.Position.Cell(); !ok || col != 4 || row != 2 {
		t.Fatalf("expected duplicate at (4,2), got (%d,%d,%t)", col, row, ok)
	}
	if dup.ColumnSpan != 4 || dup.RowSpan != 3 || dup.Source != tile.Source {
		t.Fatalf("unexpected duplicate %+v", dup)
	}
	if _, err := svc.DuplicateTile(ctx, board.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateTileRespectsCapacity(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	tile, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 20, RowSpan: 10})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	if _, err := svc.DuplicateTile(ctx, board.ID, tile.ID); !errors.Is(err, domain.ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
}

func TestReplaceTileKeepsSpans(t *testing.T) {
	images := newFakeImages()
	images.infos["https://example.com/tall.png"] = ImageInfo{Width: 100, Height: 300}
	svc, _ := newTestService(t, images, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	tile, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 5, RowSpan: 4})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	replaced, err := svc.ReplaceTile(ctx, board.ID, tile.ID, "https://example.com/tall.png")
	if err != nil {
		t.Fatalf("ReplaceTile() error = %v", err)
	}
	if replaced.ColumnSpan != 5 || replaced.RowSpan != 4 || replaced.AspectRatio != 3 {
		t.Fatalf("unexpected replaced tile %+v", replaced)
	}
	if _, err := svc.ReplaceTile(ctx, board.ID, tile.ID, "ftp://example.com/x.png"); !errors.Is(err, domain.ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource, got %v", err)
	}
}

func TestReplaceTileDetectsRemovalDuringLoad(t *testing.T) {
	images := newFakeImages()
	svc, _ := newTestService(t, images, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	tile, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 2, RowSpan: 2})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	images.mu.Lock()
	images.onProbe = func(src string) {
		if src == "https://example.com/new.png" {
			if err := svc.RemoveTile(ctx, board.ID, tile.ID); err != nil {
				t.Errorf("RemoveTile() error = %v", err)
			}
		}
	}
	images.mu.Unlock()

	if _, err := svc.ReplaceTile(ctx, board.ID, tile.ID, "https://example.com/new.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after concurrent removal, got %v", err)
	}
	got, _ := svc.GetBoard(ctx, board.ID)
	if len(got.Tiles) != 0 {
		t.Fatalf("expected removed tile to stay removed, got %+v", got.Tiles)
	}
}

func TestMoveTileClampsAtBottomEdge(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	tile, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 5, RowSpan: 4})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	moved, err := svc.MoveTile(ctx, board.ID, tile.ID, 22, 9)
	if err != nil {
		t.Fatalf("MoveTile() error = %v", err)
	}
	col, row, ok := moved.Position.Cell()
	if !ok {
		t.Fatal("expected explicit position after move")
	}
	if col+moved.ColumnSpan-1 > 24 {
		t.Fatalf("tile overflows columns: col %d span %d", col, moved.ColumnSpan)
	}
	if row+moved.RowSpan-1 > 10 {
		t.Fatalf("tile overflows rows: row %d span %d", row, moved.RowSpan)
	}
}

func TestNudgeTileResolvesAutoCell(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	if _, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 4, RowSpan: 2}); err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	second, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/b.png", ColumnSpan: 4, RowSpan: 2})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	nudged, err := svc.NudgeTile(ctx, board.ID, second.ID, 1, 1)
	if err != nil {
		t.Fatalf("NudgeTile() error = %v", err)
	}
	if col, row, _ := nudged.Position.Cell(); col != 6 || row != 2 {
		t.Fatalf("expected (6,2) from auto cell (5,1), got (%d,%d)", col, row)
	}
	left, err := svc.NudgeTile(ctx, board.ID, second.ID, -10, -10)
	if err != nil {
		t.Fatalf("NudgeTile() error = %v", err)
	}
	if col, row, _ := left.Position.Cell(); col != 1 || row != 1 {
		t.Fatalf("expected nudge clamped at (1,1), got (%d,%d)", col, row)
	}
}

func TestResizeTileAspectLockRecomputesRows(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	tile, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 4, RowSpan: 2})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	resized, err := svc.ResizeTile(ctx, board.ID, tile.ID, ResizeTileInput{ColumnSpan: 7, RowsPerColumn: 0.5})
	if err != nil {
		t.Fatalf("ResizeTile() error = %v", err)
	}
	if resized.ColumnSpan != 7 || resized.RowSpan != 4 {
		t.Fatalf("expected 7x4 after locked resize, got %dx%d", resized.ColumnSpan, resized.RowSpan)
	}
	if !resized.Position.IsAuto() {
		t.Fatal("expected auto tile to stay auto without explicit starts")
	}
}

func TestResizeTileClampsToCapacityAndRows(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	if _, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 24, RowSpan: 8}); err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	tile, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/b.png", ColumnSpan: 2, RowSpan: 2})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	resized, err := svc.ResizeTile(ctx, board.ID, tile.ID, ResizeTileInput{ColumnSpan: 20, RowSpan: 20, ColumnStart: intPtr(1), RowStart: intPtr(9)})
	if err != nil {
		t.Fatalf("ResizeTile() error = %v", err)
	}
	_, row, _ := resized.Position.Cell()
	if row+resized.RowSpan-1 > 10 {
		t.Fatalf("resized tile overflows rows: row %d span %d", row, resized.RowSpan)
	}
	got, _ := svc.GetBoard(ctx, board.ID)
	if got.UsedCells() > 240 {
		t.Fatalf("capacity exceeded: %d", got.UsedCells())
	}
}

func TestPackAndViewportShrink(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board, err := svc.CreateBoard(ctx, CreateBoardInput{Viewport: domain.Size{Width: 726, Height: 612}})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	for i := range 2 {
		if _, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 12, ColumnStart: intPtr(1 + 12*i), RowStart: intPtr(1)}); err != nil {
			t.Fatalf("AddTile(%d) error = %v", i, err)
		}
	}
	if _, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/b.png", ColumnSpan: 12}); err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}

	packed, err := svc.Pack(ctx, board.ID)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	again, err := svc.Pack(ctx, board.ID)
	if err != nil {
		t.Fatalf("Pack() second call error = %v", err)
	}
	for i, p := range LayoutFor(packed).Placements {
		if LayoutFor(again).Placements[i] != p {
			t.Fatalf("expected pack to be idempotent at %d", i)
		}
	}
	if packed.UsedCells() != 360 {
		t.Fatalf("expected pack to leave fitting tiles alone, used %d", packed.UsedCells())
	}

	shrunk, err := svc.SetViewport(ctx, board.ID, smallViewport)
	if err != nil {
		t.Fatalf("SetViewport() error = %v", err)
	}
	m := shrunk.Metrics()
	if shrunk.UsedCells() > m.Capacity() {
		t.Fatalf("expected viewport shrink to pack within %d cells, used %d", m.Capacity(), shrunk.UsedCells())
	}
	for _, tile := range shrunk.Tiles {
		if !tile.Position.IsAuto() {
			t.Fatalf("expected packed tiles to be auto, got %+v", tile.Position)
		}
	}
}

func TestSetViewportPullsExplicitTilesAboveBottomEdge(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board, err := svc.CreateBoard(ctx, CreateBoardInput{Viewport: domain.Size{Width: 726, Height: 612}})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	low, err := svc.AddTile(ctx, board.ID, AddTileInput{
		Source: "https://example.com/a.png", ColumnSpan: 4, RowSpan: 2,
		ColumnStart: intPtr(1), RowStart: intPtr(15),
	})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	top, err := svc.AddTile(ctx, board.ID, AddTileInput{
		Source: "https://example.com/b.png", ColumnSpan: 4, RowSpan: 2,
		ColumnStart: intPtr(5), RowStart: intPtr(1),
	})
	if err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}

	shrunk, err := svc.SetViewport(ctx, board.ID, smallViewport)
	if err != nil {
		t.Fatalf("SetViewport() error = %v", err)
	}
	maxRows := shrunk.Metrics().MaxRows
	moved, _ := shrunk.Tile(low.ID)
	col, row, ok := moved.Position.Cell()
	if !ok {
		t.Fatal("expected tile to stay explicit")
	}
	if row+moved.RowSpan-1 > maxRows || col+moved.ColumnSpan-1 > 24 {
		t.Fatalf("expected tile inside %d rows, got (%d,%d) %dx%d", maxRows, col, row, moved.ColumnSpan, moved.RowSpan)
	}
	kept, _ := shrunk.Tile(top.ID)
	if c, r, _ := kept.Position.Cell(); c != 5 || r != 1 || kept.ColumnSpan != 4 || kept.RowSpan != 2 {
		t.Fatalf("expected fitting tile untouched, got (%d,%d) %dx%d", c, r, kept.ColumnSpan, kept.RowSpan)
	}
}

func TestPackReportsUnpackableButStores(t *testing.T) {
	images := newFakeImages()
	images.infos["https://example.com/tall.png"] = ImageInfo{Width: 1, Height: 20}
	svc, repo := newTestService(t, images, ServiceConfig{})
	ctx := context.Background()
	board, err := svc.CreateBoard(ctx, CreateBoardInput{Viewport: domain.Size{Width: 726, Height: 612}})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	// Single-column 1:20 tiles need 16 rows each and cannot shrink further.
	for range 20 {
		tile, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/tall.png", ColumnSpan: 1})
		if err != nil {
			t.Fatalf("AddTile() error = %v", err)
		}
		if tile.RowSpan != 16 {
			t.Fatalf("expected 16 rows, got %d", tile.RowSpan)
		}
	}
	if _, err := svc.SetViewport(ctx, board.ID, smallViewport); !errors.Is(err, domain.ErrUnpackable) {
		t.Fatalf("expected ErrUnpackable, got %v", err)
	}
	stored, _ := repo.GetBoard(ctx, board.ID)
	if stored.Viewport != smallViewport {
		t.Fatalf("expected best-effort state stored, got viewport %+v", stored.Viewport)
	}
}

func TestChangesAreDebouncedIntoOneNotification(t *testing.T) {
	sink := &recordingSink{}
	svc, _ := newTestService(t, nil, ServiceConfig{Sinks: []ChangeSink{sink}})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	for range 3 {
		if _, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 2, RowSpan: 2}); err != nil {
			t.Fatalf("AddTile() error = %v", err)
		}
	}
	if sink.count() != 0 {
		t.Fatalf("expected no notification before settle, got %d", sink.count())
	}
	svc.FlushChanges(board.ID)
	if sink.count() != 1 {
		t.Fatalf("expected one notification, got %d", sink.count())
	}
	note := sink.last()
	if note.BoardID != board.ID || note.Tiles != 3 {
		t.Fatalf("unexpected notification %+v", note)
	}
	doc, err := DecodeDocument(note.Document)
	if err != nil {
		t.Fatalf("DecodeDocument() error = %v", err)
	}
	if len(doc.Items) != 3 {
		t.Fatalf("expected full document with 3 items, got %d", len(doc.Items))
	}
}
