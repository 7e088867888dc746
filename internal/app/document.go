package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hylla/kollage/internal/domain"
)

// Document is the persisted JSON form of a board.
type Document struct {
	Version        int            `json:"version"`
	ID             string         `json:"id"`
	Cols           int            `json:"cols"`
	Row            float64        `json:"row"`
	Gap            float64        `json:"gap"`
	DefaultColSpan int            `json:"defaultColSpan,omitempty"`
	Overflow       string         `json:"overflow,omitempty"`
	Items          []DocumentItem `json:"items"`
}

// DocumentItem is one tile in a Document. Null starts mean Auto placement.
type DocumentItem struct {
	ID       string  `json:"id"`
	Src      string  `json:"src"`
	ColStart *int    `json:"colStart"`
	ColSpan  int     `json:"colSpan"`
	RowStart *int    `json:"rowStart"`
	RowSpan  int     `json:"rowSpan"`
	AR       float64 `json:"ar,omitempty"`
}

// documentWire decodes a document while telling absent fields from zero values.
type documentWire struct {
	Version        int             `json:"version"`
	ID             string          `json:"id"`
	Cols           *int            `json:"cols"`
	Row            *float64        `json:"row"`
	Gap            *float64        `json:"gap"`
	DefaultColSpan *int            `json:"defaultColSpan"`
	Overflow       *string         `json:"overflow"`
	Items          *[]DocumentItem `json:"items"`
}

// ParsedDocument is a decoded document plus which settings it carried.
type ParsedDocument struct {
	Version        int
	ID             string
	Cols           *int
	Row            *float64
	Gap            *float64
	DefaultColSpan *int
	Overflow       *string
	Items          []DocumentItem
}

// DocumentFromBoard serializes a board.
func DocumentFromBoard(b domain.Board) Document {
	items := make([]DocumentItem, 0, len(b.Tiles))
	for _, t := range b.Tiles {
		item := DocumentItem{
			ID:      t.ID,
			Src:     t.Source,
			ColSpan: t.ColumnSpan,
			RowSpan: t.RowSpan,
			AR:      t.AspectRatio,
		}
		if col, row, ok := t.Position.Cell(); ok {
			item.ColStart = &col
			item.RowStart = &row
		}
		items = append(items, item)
	}
	return Document{
		Version:        b.Version,
		ID:             b.ID,
		Cols:           b.Grid.Columns,
		Row:            b.Grid.RowHeight,
		Gap:            b.Grid.Gap,
		DefaultColSpan: b.DefaultColumnSpan,
		Overflow:       string(b.Overflow),
		Items:          items,
	}
}

// EncodeDocument renders a document as indented JSON.
func EncodeDocument(doc Document) ([]byte, error) {
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode board document: %w", err)
	}
	return append(encoded, '\n'), nil
}

// DecodeDocument parses a document. Malformed JSON or a missing items list
// fails with domain.ErrParse.
func DecodeDocument(raw []byte) (ParsedDocument, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ParsedDocument{}, fmt.Errorf("%w: empty document", domain.ErrParse)
	}
	var wire documentWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ParsedDocument{}, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if wire.Items == nil {
		return ParsedDocument{}, fmt.Errorf("%w: items is required", domain.ErrParse)
	}
	return ParsedDocument{
		Version:        wire.Version,
		ID:             wire.ID,
		Cols:           wire.Cols,
		Row:            wire.Row,
		Gap:            wire.Gap,
		DefaultColSpan: wire.DefaultColSpan,
		Overflow:       wire.Overflow,
		Items:          *wire.Items,
	}, nil
}

// ExportDocument serializes one board.
func (s *Service) ExportDocument(ctx context.Context, boardID string) (Document, error) {
	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return Document{}, err
	}
	return DocumentFromBoard(board), nil
}

// ImportOptions tunes how a document replaces board content.
type ImportOptions struct {
	// Repack defers capacity to one pack pass after every item is placed.
	Repack bool
	// TrustAspect skips loading items that already carry an aspect ratio.
	TrustAspect bool
}

// ImportDocument replaces a board's tiles with a document's items. Items are
// preloaded concurrently and applied in document order. Any failure leaves
// the board untouched. When boardID is empty the document id is used, and a
// board that does not exist yet is created; it is removed again when the
// import fails. ErrUnpackable after a repack is
// reported with the imported board already stored.
func (s *Service) ImportDocument(ctx context.Context, boardID string, raw []byte, opts ImportOptions) (domain.Board, error) {
	doc, err := DecodeDocument(raw)
	if err != nil {
		return domain.Board{}, err
	}
	if boardID == "" {
		boardID = doc.ID
	}
	if boardID == "" {
		return domain.Board{}, fmt.Errorf("%w: document has no board id", domain.ErrParse)
	}

	sources := make([]string, len(doc.Items))
	for i, item := range doc.Items {
		src, err := domain.ValidateSource(item.Src)
		if err != nil {
			return domain.Board{}, fmt.Errorf("items[%d]: %w", i, err)
		}
		sources[i] = src
	}
	aspects, err := s.preloadAll(ctx, doc.Items, sources, opts.TrustAspect)
	if err != nil {
		return domain.Board{}, err
	}

	created := false
	if _, err := s.repo.GetBoard(ctx, boardID); errors.Is(err, ErrNotFound) {
		_, err := s.CreateBoard(ctx, CreateBoardInput{ID: boardID})
		switch {
		case err == nil:
			created = true
		case !errors.Is(err, domain.ErrDuplicateID):
			return domain.Board{}, err
		}
	} else if err != nil {
		return domain.Board{}, err
	}

	board, err := s.mutate(ctx, boardID, func(b *domain.Board, now time.Time) error {
		if err := applyDocumentSettings(b, doc, now); err != nil {
			return err
		}
		b.Tiles = nil
		for i, item := range doc.Items {
			tile, err := s.buildTile(b, now, tileSpec{
				ID:          item.ID,
				Source:      sources[i],
				Aspect:      aspects[i],
				ColumnSpan:  item.ColSpan,
				RowSpan:     item.RowSpan,
				ColumnStart: item.ColStart,
				RowStart:    item.RowStart,
			}, !opts.Repack)
			if err != nil {
				return fmt.Errorf("items[%d]: %w", i, err)
			}
			if err := b.AddTile(tile, now); err != nil {
				return fmt.Errorf("items[%d]: %w", i, err)
			}
		}
		if !opts.Repack {
			return nil
		}
		packed, err := domain.Pack(b.Metrics(), b.Tiles, now)
		if err != nil && !errors.Is(err, domain.ErrUnpackable) {
			return err
		}
		b.Tiles = packed
		return err
	})
	if err != nil && created && !errors.Is(err, domain.ErrUnpackable) {
		// The board only existed to receive this document.
		if derr := s.DeleteBoard(context.WithoutCancel(ctx), boardID); derr != nil {
			return domain.Board{}, errors.Join(err, derr)
		}
	}
	return board, err
}

// applyDocumentSettings copies grid settings carried by a document onto b.
func applyDocumentSettings(b *domain.Board, doc ParsedDocument, now time.Time) error {
	grid := b.Grid
	if doc.Cols != nil {
		grid.Columns = *doc.Cols
	}
	if doc.Row != nil {
		grid.RowHeight = *doc.Row
	}
	if doc.Gap != nil {
		grid.Gap = *doc.Gap
	}
	if err := b.UpdateGrid(grid, now); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if doc.DefaultColSpan != nil && *doc.DefaultColSpan > 0 {
		b.DefaultColumnSpan = min(*doc.DefaultColSpan, grid.Columns)
	}
	if doc.Overflow != nil {
		mode, err := domain.ParseOverflowMode(*doc.Overflow)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrParse, err)
		}
		b.Overflow = mode
	}
	if doc.Version > 0 {
		b.Version = doc.Version
	}
	return nil
}

// preloadAll loads every item concurrently and returns aspects in item order.
func (s *Service) preloadAll(ctx context.Context, items []DocumentItem, sources []string, trustAspect bool) ([]float64, error) {
	aspects := make([]float64, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.importConcurrency)
	for i := range items {
		if trustAspect && items[i].AR > 0 {
			aspects[i] = items[i].AR
			continue
		}
		g.Go(func() error {
			info, err := s.preload(gctx, sources[i])
			if err != nil {
				return fmt.Errorf("items[%d]: %w", i, err)
			}
			aspects[i] = info.AspectRatio()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return aspects, nil
}

// SeedDocument returns the demo content placed on a fresh default board.
func SeedDocument(boardID string) []byte {
	blue := seedSVG(`<svg xmlns="http://www.w3.org/2000/svg" width="800" height="600"><defs><linearGradient id="g" x1="0" x2="1"><stop offset="0" stop-color="#60a5fa"/><stop offset="1" stop-color="#1d4ed8"/></linearGradient></defs><rect width="100%" height="100%" fill="url(#g)"/></svg>`)
	orange := seedSVG(`<svg xmlns="http://www.w3.org/2000/svg" width="800" height="600"><rect width="100%" height="100%" fill="#f97316"/></svg>`)
	one, twelve := 1, 12
	encoded, _ := json.Marshal(struct {
		Version int            `json:"version"`
		ID      string         `json:"id"`
		Items   []DocumentItem `json:"items"`
	}{
		Version: domain.DocumentVersion,
		ID:      boardID,
		Items: []DocumentItem{
			{Src: blue, ColStart: &one, ColSpan: 10, RowStart: &one, RowSpan: 10},
			{Src: orange, ColStart: &twelve, ColSpan: 7, RowStart: &one, RowSpan: 6},
		},
	})
	return encoded
}

// seedSVG wraps inline SVG markup in a data URL.
func seedSVG(markup string) string {
	return "data:image/svg+xml;utf8," + url.PathEscape(markup)
}
