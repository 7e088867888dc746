package mcpapi

import (
	"context"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/kollage/internal/adapters/server/common"
	"github.com/hylla/kollage/internal/app"
)

// boardIDArg is shared by every board-scoped tool.
var boardIDArg = mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier"))

// registerBoardTools registers board lifecycle, document, and layout tools.
func registerBoardTools(srv *mcpserver.MCPServer, boards common.BoardService) {
	srv.AddTool(
		mcp.NewTool(
			"collage.list_boards",
			mcp.WithDescription("List boards with tile counts and cell usage."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			list, err := boards.ListBoards(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_boards", map[string]any{"boards": list})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.create_board",
			mcp.WithDescription("Create an empty board. Omitted settings use server defaults."),
			mcp.WithString("id", mcp.Description("Board identifier (generated when empty)")),
			mcp.WithNumber("columns", mcp.Description("Grid column count")),
			mcp.WithNumber("row_height", mcp.Description("Row height in pixels")),
			mcp.WithNumber("gap", mcp.Description("Gap between cells in pixels")),
			mcp.WithNumber("default_column_span", mcp.Description("Column span for tiles added without one")),
			mcp.WithString("overflow", mcp.Description("fixed or scroll"), mcp.Enum("fixed", "scroll")),
			mcp.WithNumber("viewport_width", mcp.Description("Host container width in pixels")),
			mcp.WithNumber("viewport_height", mcp.Description("Host container height in pixels")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			board, err := boards.CreateBoard(ctx, common.CreateBoardRequest{
				ID:                req.GetString("id", ""),
				Columns:           req.GetInt("columns", 0),
				RowHeight:         req.GetFloat("row_height", 0),
				Gap:               req.GetFloat("gap", app.DefaultBoardDefaults().Grid.Gap),
				DefaultColumnSpan: req.GetInt("default_column_span", 0),
				Overflow:          req.GetString("overflow", ""),
				ViewportWidth:     req.GetFloat("viewport_width", 0),
				ViewportHeight:    req.GetFloat("viewport_height", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_board", board)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.get_board",
			mcp.WithDescription("Return one board with resolved tile cells and pixel rectangles."),
			boardIDArg,
		),
		boardTool("get_board", boards.GetBoard),
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.delete_board",
			mcp.WithDescription("Delete one board and its activity history."),
			boardIDArg,
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := boards.DeleteBoard(ctx, boardID); err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("delete_board", map[string]any{"deleted": boardID})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.set_viewport",
			mcp.WithDescription("Record the host container size. Fixed boards that no longer fit are packed."),
			boardIDArg,
			mcp.WithNumber("width", mcp.Required(), mcp.Description("Container width in pixels")),
			mcp.WithNumber("height", mcp.Required(), mcp.Description("Container height in pixels")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			width, err := req.RequireFloat("width")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			height, err := req.RequireFloat("height")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			board, err := boards.SetViewport(ctx, common.ViewportRequest{BoardID: boardID, Width: width, Height: height})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("set_viewport", board)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.pack",
			mcp.WithDescription("Shrink tiles to fit capacity and reflow them densely."),
			boardIDArg,
		),
		boardTool("pack", boards.Pack),
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.export_document",
			mcp.WithDescription("Return the board's JSON document."),
			boardIDArg,
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			raw, err := boards.ExportDocument(ctx, boardID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return mcp.NewToolResultText(string(raw)), nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.import_document",
			mcp.WithDescription("Replace a board's tiles with a JSON document. All items load or nothing changes."),
			mcp.WithString("board_id", mcp.Description("Board identifier (defaults to the document id)")),
			mcp.WithString("document", mcp.Required(), mcp.Description("Board document JSON")),
			mcp.WithBoolean("repack", mcp.Description("Pack the board after import")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			document, err := req.RequireString("document")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			board, err := boards.ImportDocument(ctx, common.ImportRequest{
				BoardID:  req.GetString("board_id", ""),
				Document: []byte(document),
				Repack:   req.GetBool("repack", false),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("import_document", board)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.list_events",
			mcp.WithDescription("List recent tile activity for one board, newest first."),
			boardIDArg,
			mcp.WithNumber("limit", mcp.Description("Maximum events to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			events, err := boards.ListEvents(ctx, boardID, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_events", map[string]any{"events": events})
		},
	)
}

// registerTileTools registers tile mutation tools.
func registerTileTools(srv *mcpserver.MCPServer, boards common.BoardService) {
	tileIDArg := mcp.WithString("tile_id", mcp.Required(), mcp.Description("Tile identifier"))

	srv.AddTool(
		mcp.NewTool(
			"collage.add_tile",
			mcp.WithDescription("Load an image and place it on a board. Without both starts the tile is auto-placed."),
			boardIDArg,
			mcp.WithString("src", mcp.Required(), mcp.Description("http(s), data:image, or blob: source")),
			mcp.WithNumber("col_span", mcp.Description("Column span (board default when omitted)")),
			mcp.WithNumber("row_span", mcp.Description("Row span (derived from the image aspect when omitted)")),
			mcp.WithNumber("col_start", mcp.Description("1-based start column")),
			mcp.WithNumber("row_start", mcp.Description("1-based start row")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			src, err := req.RequireString("src")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			tile, err := boards.AddTile(ctx, common.AddTileRequest{
				BoardID:     boardID,
				Source:      src,
				ColumnSpan:  req.GetInt("col_span", 0),
				RowSpan:     req.GetInt("row_span", 0),
				ColumnStart: optionalInt(req, "col_start"),
				RowStart:    optionalInt(req, "row_start"),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("add_tile", tile)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.remove_tile",
			mcp.WithDescription("Remove one tile. Removing a missing tile succeeds."),
			boardIDArg,
			tileIDArg,
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, tileID, result := requireTile(req)
			if result != nil {
				return result, nil
			}
			if err := boards.RemoveTile(ctx, boardID, tileID); err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("remove_tile", map[string]any{"removed": tileID})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.duplicate_tile",
			mcp.WithDescription("Copy one tile one column to the right of the original."),
			boardIDArg,
			tileIDArg,
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, tileID, result := requireTile(req)
			if result != nil {
				return result, nil
			}
			tile, err := boards.DuplicateTile(ctx, boardID, tileID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("duplicate_tile", tile)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.replace_tile",
			mcp.WithDescription("Swap one tile's image, keeping its cell and spans."),
			boardIDArg,
			tileIDArg,
			mcp.WithString("src", mcp.Required(), mcp.Description("New image source")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, tileID, result := requireTile(req)
			if result != nil {
				return result, nil
			}
			src, err := req.RequireString("src")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			tile, err := boards.ReplaceTile(ctx, common.ReplaceTileRequest{BoardID: boardID, TileID: tileID, Source: src})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("replace_tile", tile)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.move_tile",
			mcp.WithDescription("Pin one tile at a 1-based cell, clamped into the grid."),
			boardIDArg,
			tileIDArg,
			mcp.WithNumber("column", mcp.Required(), mcp.Description("1-based start column")),
			mcp.WithNumber("row", mcp.Required(), mcp.Description("1-based start row")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, tileID, result := requireTile(req)
			if result != nil {
				return result, nil
			}
			column, err := req.RequireInt("column")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			row, err := req.RequireInt("row")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			tile, err := boards.MoveTile(ctx, common.MoveTileRequest{BoardID: boardID, TileID: tileID, Column: column, Row: row})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("move_tile", tile)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"collage.resize_tile",
			mcp.WithDescription("Change one tile's spans within the grid rows and board capacity."),
			boardIDArg,
			tileIDArg,
			mcp.WithNumber("col_span", mcp.Required(), mcp.Description("New column span")),
			mcp.WithNumber("row_span", mcp.Description("New row span (ignored when rows_per_column is set)")),
			mcp.WithNumber("rows_per_column", mcp.Description("Lock rows to this ratio of the column span")),
			mcp.WithNumber("col_start", mcp.Description("Optional new 1-based start column")),
			mcp.WithNumber("row_start", mcp.Description("Optional new 1-based start row")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, tileID, result := requireTile(req)
			if result != nil {
				return result, nil
			}
			colSpan, err := req.RequireInt("col_span")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			tile, err := boards.ResizeTile(ctx, common.ResizeTileRequest{
				BoardID:       boardID,
				TileID:        tileID,
				ColumnSpan:    colSpan,
				RowSpan:       req.GetInt("row_span", 0),
				RowsPerColumn: req.GetFloat("rows_per_column", 0),
				ColumnStart:   optionalInt(req, "col_start"),
				RowStart:      optionalInt(req, "row_start"),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("resize_tile", tile)
		},
	)
}

// boardTool adapts a board-id-only call into a tool handler.
func boardTool(name string, call func(context.Context, string) (common.BoardView, error)) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		boardID, err := req.RequireString("board_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		board, err := call(ctx, boardID)
		if err != nil {
			return toolResultFromError(err), nil
		}
		return jsonResult(name, board)
	}
}

// requireTile reads board_id and tile_id, returning an error result when either is missing.
func requireTile(req mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	boardID, err := req.RequireString("board_id")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	tileID, err := req.RequireString("tile_id")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	return boardID, tileID, nil
}

// optionalInt returns a pointer to an integer argument, or nil when it is absent or not a whole number.
func optionalInt(req mcp.CallToolRequest, key string) *int {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil
	}
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	default:
		return nil
	}
	if v != math.Trunc(v) {
		return nil
	}
	out := int(v)
	return &out
}
