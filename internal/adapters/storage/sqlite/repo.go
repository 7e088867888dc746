package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/kollage/internal/app"
	"github.com/hylla/kollage/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository stores boards, tiles, and the tile activity ledger.
type Repository struct {
	db *sql.DB
}

// Open opens or creates a database file and migrates it.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the schema.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS boards (
			id TEXT PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			columns INTEGER NOT NULL,
			row_height REAL NOT NULL,
			gap REAL NOT NULL,
			default_col_span INTEGER NOT NULL,
			overflow TEXT NOT NULL DEFAULT 'fixed',
			viewport_width REAL NOT NULL DEFAULT 0,
			viewport_height REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tiles (
			board_id TEXT NOT NULL,
			id TEXT NOT NULL,
			z INTEGER NOT NULL,
			source TEXT NOT NULL,
			aspect_ratio REAL NOT NULL DEFAULT 1,
			col_start INTEGER,
			row_start INTEGER,
			col_span INTEGER NOT NULL,
			row_span INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY(board_id, id),
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			board_id TEXT NOT NULL,
			tile_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tiles_board_z ON tiles(board_id, z);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_board_created_at ON change_events(board_id, created_at DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateBoard inserts a board with its tiles.
func (r *Repository) CreateBoard(ctx context.Context, b domain.Board) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO boards(id, version, columns, row_height, gap, default_col_span, overflow, viewport_width, viewport_height, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID,
		b.Version,
		b.Grid.Columns,
		b.Grid.RowHeight,
		b.Grid.Gap,
		b.DefaultColumnSpan,
		string(b.Overflow),
		b.Viewport.Width,
		b.Viewport.Height,
		ts(b.CreatedAt),
		ts(b.UpdatedAt),
	)
	if err != nil {
		if isUniqueErr(err) {
			return fmt.Errorf("board %q: %w", b.ID, domain.ErrDuplicateID)
		}
		return err
	}
	if err = insertTiles(ctx, tx, b.ID, b.Tiles); err != nil {
		return err
	}
	for _, t := range b.Tiles {
		if err = insertChangeEvent(ctx, tx, createEvent(b.ID, t)); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// UpdateBoard replaces a board's settings and tiles, recording one change
// event per tile that differs from the stored version.
func (r *Repository) UpdateBoard(ctx context.Context, b domain.Board) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := listTiles(ctx, tx, b.ID)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE boards
		SET version = ?, columns = ?, row_height = ?, gap = ?, default_col_span = ?, overflow = ?,
		    viewport_width = ?, viewport_height = ?, updated_at = ?
		WHERE id = ?
	`,
		b.Version,
		b.Grid.Columns,
		b.Grid.RowHeight,
		b.Grid.Gap,
		b.DefaultColumnSpan,
		string(b.Overflow),
		b.Viewport.Width,
		b.Viewport.Height,
		ts(b.UpdatedAt),
		b.ID,
	)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM tiles WHERE board_id = ?`, b.ID); err != nil {
		return err
	}
	if err = insertTiles(ctx, tx, b.ID, b.Tiles); err != nil {
		return err
	}
	for _, event := range diffTiles(b.ID, prev, b.Tiles, b.UpdatedAt) {
		if err = insertChangeEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	err = tx.Commit()
	return err
}

// GetBoard returns a board with its tiles in stacking order.
func (r *Repository) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	row := r.db.QueryRowContext(ctx, boardSelect+` WHERE id = ?`, id)
	board, err := scanBoard(row)
	if err != nil {
		return domain.Board{}, err
	}
	board.Tiles, err = listTiles(ctx, r.db, id)
	if err != nil {
		return domain.Board{}, err
	}
	return board, nil
}

// ListBoards returns every board ordered by creation time.
func (r *Repository) ListBoards(ctx context.Context) ([]domain.Board, error) {
	rows, err := r.db.QueryContext(ctx, boardSelect+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	out := []domain.Board{}
	for rows.Next() {
		board, err := scanBoard(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, board)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Tiles load after the board cursor is closed; the in-memory pool holds one connection.
	for i := range out {
		out[i].Tiles, err = listTiles(ctx, r.db, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteBoard removes a board with its tiles and events.
func (r *Repository) DeleteBoard(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Pooled connections may not have foreign_keys enabled, so children go explicitly.
	for _, stmt := range []string{
		`DELETE FROM change_events WHERE board_id = ?`,
		`DELETE FROM tiles WHERE board_id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// ListBoardChangeEvents lists recent tile events, newest first.
func (r *Repository) ListBoardChangeEvents(ctx context.Context, boardID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, board_id, tile_id, operation, metadata_json, created_at
		FROM change_events
		WHERE board_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, boardID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			opRaw       string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.BoardID, &event.TileID, &opRaw, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.Operation = normalizeChangeOperation(opRaw)
		event.OccurredAt = parseTS(createdRaw)
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// boardSelect is the shared board column list.
const boardSelect = `
	SELECT id, version, columns, row_height, gap, default_col_span, overflow, viewport_width, viewport_height, created_at, updated_at
	FROM boards`

// queryer represents a read-only DB contract used by DB and Tx implementations.
type queryer interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// listTiles loads a board's tiles in stacking order.
func listTiles(ctx context.Context, q queryer, boardID string) ([]domain.Tile, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, source, aspect_ratio, col_start, row_start, col_span, row_span, created_at, updated_at
		FROM tiles
		WHERE board_id = ?
		ORDER BY z ASC
	`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Tile
	for rows.Next() {
		tile, err := scanTile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tile)
	}
	return out, rows.Err()
}

// insertTiles writes tiles with their slice index as stacking order.
func insertTiles(ctx context.Context, execer execerContext, boardID string, tiles []domain.Tile) error {
	for z, t := range tiles {
		var colStart, rowStart any
		if col, row, ok := t.Position.Cell(); ok {
			colStart, rowStart = col, row
		}
		_, err := execer.ExecContext(ctx, `
			INSERT INTO tiles(board_id, id, z, source, aspect_ratio, col_start, row_start, col_span, row_span, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			boardID,
			t.ID,
			z,
			t.Source,
			t.AspectRatio,
			colStart,
			rowStart,
			t.ColumnSpan,
			t.RowSpan,
			ts(t.CreatedAt),
			ts(t.UpdatedAt),
		)
		if err != nil {
			if isUniqueErr(err) {
				return fmt.Errorf("tile %q: %w", t.ID, domain.ErrDuplicateID)
			}
			return fmt.Errorf("insert tile: %w", err)
		}
	}
	return nil
}

// insertChangeEvent inserts a change-event ledger record.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(board_id, tile_id, operation, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.BoardID,
		event.TileID,
		string(event.Operation),
		string(metadataJSON),
		ts(normalizeEventTS(event.OccurredAt)),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// createEvent describes a newly added tile.
func createEvent(boardID string, t domain.Tile) domain.ChangeEvent {
	return domain.ChangeEvent{
		BoardID:    boardID,
		TileID:     t.ID,
		Operation:  domain.ChangeOperationCreate,
		Metadata:   map[string]string{"span": spanText(t), "cell": cellText(t)},
		OccurredAt: t.CreatedAt,
	}
}

// diffTiles classifies what happened to each tile between two stored versions.
func diffTiles(boardID string, prev, next []domain.Tile, now time.Time) []domain.ChangeEvent {
	before := make(map[string]domain.Tile, len(prev))
	for _, t := range prev {
		before[t.ID] = t
	}
	var out []domain.ChangeEvent
	for _, t := range next {
		old, ok := before[t.ID]
		delete(before, t.ID)
		if !ok {
			out = append(out, createEvent(boardID, t))
			continue
		}
		op, metadata, changed := classifyTileTransition(old, t)
		if !changed {
			continue
		}
		out = append(out, domain.ChangeEvent{
			BoardID:    boardID,
			TileID:     t.ID,
			Operation:  op,
			Metadata:   metadata,
			OccurredAt: t.UpdatedAt,
		})
	}
	for _, t := range prev {
		if _, removed := before[t.ID]; !removed {
			continue
		}
		out = append(out, domain.ChangeEvent{
			BoardID:    boardID,
			TileID:     t.ID,
			Operation:  domain.ChangeOperationDelete,
			Metadata:   map[string]string{"span": spanText(t), "cell": cellText(t)},
			OccurredAt: now,
		})
	}
	return out
}

// classifyTileTransition picks the most significant change for one tile.
func classifyTileTransition(prev, next domain.Tile) (domain.ChangeOperation, map[string]string, bool) {
	switch {
	case prev.Source != next.Source:
		return domain.ChangeOperationReplace, map[string]string{
			"aspect_ratio": strconv.FormatFloat(next.AspectRatio, 'f', -1, 64),
		}, true
	case prev.ColumnSpan != next.ColumnSpan || prev.RowSpan != next.RowSpan:
		return domain.ChangeOperationResize, map[string]string{
			"from_span": spanText(prev),
			"to_span":   spanText(next),
		}, true
	case prev.Position != next.Position:
		return domain.ChangeOperationMove, map[string]string{
			"from_cell": cellText(prev),
			"to_cell":   cellText(next),
		}, true
	default:
		return "", nil, false
	}
}

func spanText(t domain.Tile) string {
	return strconv.Itoa(t.ColumnSpan) + "x" + strconv.Itoa(t.RowSpan)
}

func cellText(t domain.Tile) string {
	col, row, ok := t.Position.Cell()
	if !ok {
		return "auto"
	}
	return strconv.Itoa(col) + "," + strconv.Itoa(row)
}

// normalizeChangeOperation canonicalizes persisted operation values.
func normalizeChangeOperation(raw string) domain.ChangeOperation {
	raw = strings.TrimSpace(strings.ToLower(raw))
	switch raw {
	case string(domain.ChangeOperationCreate):
		return domain.ChangeOperationCreate
	case string(domain.ChangeOperationMove):
		return domain.ChangeOperationMove
	case string(domain.ChangeOperationResize):
		return domain.ChangeOperationResize
	case string(domain.ChangeOperationReplace):
		return domain.ChangeOperationReplace
	case string(domain.ChangeOperationDelete):
		return domain.ChangeOperationDelete
	default:
		return domain.ChangeOperationMove
	}
}

// normalizeEventTS ensures event timestamps are always populated and UTC-normalized.
func normalizeEventTS(in time.Time) time.Time {
	if in.IsZero() {
		return time.Now().UTC()
	}
	return in.UTC()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanBoard reads one boards row.
func scanBoard(s scanner) (domain.Board, error) {
	var (
		b           domain.Board
		overflowRaw string
		createdRaw  string
		updatedRaw  string
	)
	if err := s.Scan(
		&b.ID,
		&b.Version,
		&b.Grid.Columns,
		&b.Grid.RowHeight,
		&b.Grid.Gap,
		&b.DefaultColumnSpan,
		&overflowRaw,
		&b.Viewport.Width,
		&b.Viewport.Height,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Board{}, app.ErrNotFound
		}
		return domain.Board{}, err
	}
	overflow, err := domain.ParseOverflowMode(overflowRaw)
	if err != nil {
		overflow = domain.OverflowFixed
	}
	b.Overflow = overflow
	b.CreatedAt = parseTS(createdRaw)
	b.UpdatedAt = parseTS(updatedRaw)
	return b, nil
}

// scanTile reads one tiles row.
func scanTile(s scanner) (domain.Tile, error) {
	var (
		t          domain.Tile
		colStart   sql.NullInt64
		rowStart   sql.NullInt64
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(
		&t.ID,
		&t.Source,
		&t.AspectRatio,
		&colStart,
		&rowStart,
		&t.ColumnSpan,
		&t.RowSpan,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return domain.Tile{}, err
	}
	t.Position = domain.AutoPosition()
	if colStart.Valid && rowStart.Valid {
		t.Position = domain.ExplicitPosition(int(colStart.Int64), int(rowStart.Int64))
	}
	t.AspectRatio = domain.NormalizeAspect(t.AspectRatio)
	t.CreatedAt = parseTS(createdRaw)
	t.UpdatedAt = parseTS(updatedRaw)
	return t, nil
}

// translateNoRows maps a zero-row write to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts formats a timestamp for storage.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// isUniqueErr reports whether err is a primary key or unique constraint violation.
func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed: primary key")
}
