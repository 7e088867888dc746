package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hylla/kollage/internal/domain"
)

func TestDocumentRoundTripPreservesBoard(t *testing.T) {
	images := newFakeImages()
	images.infos["https://example.com/wide.png"] = ImageInfo{Width: 200, Height: 100}
	svc, _ := newTestService(t, images, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	if _, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/wide.png", ColumnSpan: 6}); err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}
	if _, err := svc.AddTile(ctx, board.ID, AddTileInput{
		Source: "https://example.com/a.png", ColumnSpan: 3, RowSpan: 2,
		ColumnStart: intPtr(10), RowStart: intPtr(4),
	}); err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}

	want, err := svc.ExportDocument(ctx, board.ID)
	if err != nil {
		t.Fatalf("ExportDocument() error = %v", err)
	}
	encoded, err := EncodeDocument(want)
	if err != nil {
		t.Fatalf("EncodeDocument() error = %v", err)
	}
	if !strings.Contains(string(encoded), `"colStart": null`) {
		t.Fatalf("expected auto tile to encode null starts, got %s", encoded)
	}

	other, _ := newTestService(t, images, ServiceConfig{})
	if _, err := other.CreateBoard(ctx, CreateBoardInput{ID: board.ID, Viewport: smallViewport}); err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	if _, err := other.ImportDocument(ctx, board.ID, encoded, ImportOptions{TrustAspect: true}); err != nil {
		t.Fatalf("ImportDocument() error = %v", err)
	}
	got, err := other.ExportDocument(ctx, board.ID)
	if err != nil {
		t.Fatalf("ExportDocument() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestImportDocumentRejectsMalformedJSON(t *testing.T) {
	svc, repo := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)
	if _, err := svc.AddTile(ctx, board.ID, AddTileInput{Source: "https://example.com/a.png", ColumnSpan: 2, RowSpan: 2}); err != nil {
		t.Fatalf("AddTile() error = %v", err)
	}

	cases := map[string]string{
		"truncated":     `{not json`,
		"empty":         `   `,
		"missing items": `{"version":1,"id":"b"}`,
		"bad columns":   `{"cols":0,"items":[]}`,
		"bad overflow":  `{"overflow":"sideways","items":[]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.ImportDocument(ctx, board.ID, []byte(raw), ImportOptions{}); !errors.Is(err, domain.ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			stored, _ := repo.GetBoard(ctx, board.ID)
			if len(stored.Tiles) != 1 {
				t.Fatalf("expected board unchanged with 1 tile, got %d", len(stored.Tiles))
			}
		})
	}
}

func TestImportDocumentIsAllOrNothing(t *testing.T) {
	images := newFakeImages()
	images.errs["https://example.com/missing.png"] = errors.New("404")
	svc, repo := newTestService(t, images, ServiceConfig{})
	ctx := context.Background()
	board := newTestBoard(t, svc)

	badSource := `{"items":[{"id":"a","src":"https://example.com/a.png","colStart":null,"colSpan":2,"rowStart":null,"rowSpan":2},{"id":"b","src":"file:///etc/passwd","colStart":null,"colSpan":2,"rowStart":null,"rowSpan":2}]}`
	if _, err := svc.ImportDocument(ctx, board.ID, []byte(badSource), ImportOptions{}); !errors.Is(err, domain.ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource, got %v", err)
	}
	badLoad := `{"items":[{"id":"a","src":"https://example.com/a.png","colStart":null,"colSpan":2,"rowStart":null,"rowSpan":2},{"id":"b","src":"https://example.com/missing.png","colStart":null,"colSpan":2,"rowStart":null,"rowSpan":2}]}`
	if _, err := svc.ImportDocument(ctx, board.ID, []byte(badLoad), ImportOptions{}); !errors.Is(err, domain.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
	overCapacity := `{"items":[{"id":"a","src":"https://example.com/a.png","colStart":null,"colSpan":24,"rowStart":null,"rowSpan":8},{"id":"b","src":"https://example.com/b.png","colStart":null,"colSpan":24,"rowStart":null,"rowSpan":8}]}`
	if _, err := svc.ImportDocument(ctx, board.ID, []byte(overCapacity), ImportOptions{}); !errors.Is(err, domain.ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	stored, _ := repo.GetBoard(ctx, board.ID)
	if len(stored.Tiles) != 0 {
		t.Fatalf("expected failed imports to leave board empty, got %d tiles", len(stored.Tiles))
	}

	packed, err := svc.ImportDocument(ctx, board.ID, []byte(overCapacity), ImportOptions{Repack: true})
	if err != nil {
		t.Fatalf("ImportDocument(repack) error = %v", err)
	}
	if len(packed.Tiles) != 2 || packed.UsedCells() > packed.Metrics().Capacity() {
		t.Fatalf("expected repacked import within capacity, got %d tiles using %d cells", len(packed.Tiles), packed.UsedCells())
	}
}

func TestImportDocumentCreatesMissingBoard(t *testing.T) {
	svc, _ := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()
	raw := `{"version":1,"id":"board_imported","cols":12,"row":20,"gap":4,"items":[{"id":"t_1","src":"data:image/png;base64,iVBORw0KGgo=","colStart":2,"colSpan":3,"rowStart":1,"rowSpan":2}]}`
	board, err := svc.ImportDocument(ctx, "", []byte(raw), ImportOptions{})
	if err != nil {
		t.Fatalf("ImportDocument() error = %v", err)
	}
	if board.ID != "board_imported" {
		t.Fatalf("expected document id to name the board, got %q", board.ID)
	}
	if board.Grid != (domain.GridSettings{Columns: 12, RowHeight: 20, Gap: 4}) {
		t.Fatalf("expected document grid settings, got %+v", board.Grid)
	}
	tile, ok := board.Tile("t_1")
	if !ok {
		t.Fatal("expected imported tile id to be kept")
	}
	if col, row, ok := tile.Position.Cell(); !ok || col != 2 || row != 1 {
		t.Fatalf("expected explicit (2,1), got (%d,%d,%t)", col, row, ok)
	}
}

func TestImportDocumentFailureLeavesNoNewBoard(t *testing.T) {
	svc, repo := newTestService(t, nil, ServiceConfig{})
	ctx := context.Background()

	badGrid := `{"id":"board_new","cols":0,"items":[]}`
	if _, err := svc.ImportDocument(ctx, "", []byte(badGrid), ImportOptions{}); !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if _, err := svc.GetBoard(ctx, "board_new"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no board after failed import, got %v", err)
	}

	overCapacity := `{"id":"board_new","items":[{"id":"a","src":"https://example.com/a.png","colStart":null,"colSpan":24,"rowStart":null,"rowSpan":200},{"id":"b","src":"https://example.com/b.png","colStart":null,"colSpan":24,"rowStart":null,"rowSpan":200}]}`
	if _, err := svc.ImportDocument(ctx, "", []byte(overCapacity), ImportOptions{}); err == nil {
		t.Fatal("expected over-capacity import to fail")
	}
	boards, err := repo.ListBoards(ctx)
	if err != nil {
		t.Fatalf("ListBoards() error = %v", err)
	}
	if len(boards) != 0 {
		t.Fatalf("expected no boards after failed imports, got %d", len(boards))
	}

	valid := `{"id":"board_new","items":[]}`
	board, err := svc.ImportDocument(ctx, "", []byte(valid), ImportOptions{})
	if err != nil {
		t.Fatalf("expected id to be free for a later import, got %v", err)
	}
	if board.ID != "board_new" {
		t.Fatalf("unexpected board id %q", board.ID)
	}
}

func TestDecodeDocumentTreatsPartialStartsAsAuto(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"items":[{"id":"a","src":"blob:x","colStart":3,"colSpan":2,"rowStart":null,"rowSpan":2}]}`))
	if err != nil {
		t.Fatalf("DecodeDocument() error = %v", err)
	}
	if doc.Cols != nil || doc.Row != nil {
		t.Fatal("expected absent settings to stay nil")
	}
	item := doc.Items[0]
	if !domain.PositionFromStarts(item.ColStart, item.RowStart).IsAuto() {
		t.Fatal("expected partial start to resolve to auto")
	}
}

func TestSeedDocumentDecodes(t *testing.T) {
	doc, err := DecodeDocument(SeedDocument("board_seed"))
	if err != nil {
		t.Fatalf("DecodeDocument() error = %v", err)
	}
	if doc.ID != "board_seed" || len(doc.Items) != 2 {
		t.Fatalf("unexpected seed document %+v", doc)
	}
	for _, item := range doc.Items {
		if _, err := domain.ValidateSource(item.Src); err != nil {
			t.Fatalf("seed source rejected: %v", err)
		}
	}
}
