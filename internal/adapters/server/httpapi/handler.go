// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hylla/kollage/internal/adapters/imageprobe"
	"github.com/hylla/kollage/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// maxUploadBytes limits raw image uploads.
const maxUploadBytes = imageprobe.DefaultMaxBytes

// BlobReader serves uploaded image bytes.
type BlobReader interface {
	Blob(src string) (imageprobe.Blob, bool)
}

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	boards common.BoardService
	blobs  BlobReader
	router chi.Router
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter. blobs may be nil.
func NewHandler(boards common.BoardService, blobs BlobReader) *Handler {
	h := &Handler{boards: boards, blobs: blobs}
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{Code: common.CodeNotFound, Message: "endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Route("/boards", func(r chi.Router) {
		r.Get("/", h.handleListBoards)
		r.Post("/", h.handleCreateBoard)
		r.Route("/{boardID}", func(r chi.Router) {
			r.Get("/", h.handleGetBoard)
			r.Delete("/", h.handleDeleteBoard)
			r.Get("/layout", h.handleGetBoard)
			r.Put("/viewport", h.handleSetViewport)
			r.Get("/document", h.handleExportDocument)
			r.Put("/document", h.handleImportDocument)
			r.Get("/events", h.handleListEvents)
			r.Post("/pack", h.handlePack)
			r.Post("/tiles", h.handleAddTile)
			r.Route("/tiles/{tileID}", func(r chi.Router) {
				r.Delete("/", h.handleRemoveTile)
				r.Post("/duplicate", h.handleDuplicateTile)
				r.Put("/source", h.handleReplaceTile)
				r.Put("/placement", h.handleMoveTile)
				r.Put("/span", h.handleResizeTile)
			})
		})
	})
	r.Post("/blobs", h.handleUploadBlob)
	r.Get("/blobs/{blobID}", h.handleGetBlob)

	h.router = r
	return h
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.boards == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    common.CodeUnavailable,
			Message: "board service is not configured",
		})
		return
	}
	h.router.ServeHTTP(w, r)
}

// handleListBoards serves GET `/boards`.
func (h *Handler) handleListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.boards.ListBoards(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": boards})
}

// handleCreateBoard serves POST `/boards`.
func (h *Handler) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req common.CreateBoardRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	board, err := h.boards.CreateBoard(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

// handleGetBoard serves GET `/boards/{boardID}` and its `/layout` alias.
func (h *Handler) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.boards.GetBoard(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	if err := h.boards.DeleteBoard(r.Context(), chi.URLParam(r, "boardID")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetViewport serves PUT `/boards/{boardID}/viewport`.
func (h *Handler) handleSetViewport(w http.ResponseWriter, r *http.Request) {
	var req common.ViewportRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.BoardID = chi.URLParam(r, "boardID")
	board, err := h.boards.SetViewport(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// handleExportDocument serves GET `/boards/{boardID}/document` as the raw board document.
func (h *Handler) handleExportDocument(w http.ResponseWriter, r *http.Request) {
	raw, err := h.boards.ExportDocument(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// handleImportDocument serves PUT `/boards/{boardID}/document`. The body is a
// board document; `?repack=true` packs after applying it.
func (h *Handler) handleImportDocument(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()
	raw, err := io.ReadAll(reader)
	if err != nil {
		writeErrorFrom(w, fmt.Errorf("read document: %w", errors.Join(common.ErrInvalidRequest, err)))
		return
	}
	repack, err := parseBoolQuery(r, "repack")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	board, err := h.boards.ImportDocument(r.Context(), common.ImportRequest{
		BoardID:  chi.URLParam(r, "boardID"),
		Document: raw,
		Repack:   repack,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// handleListEvents serves GET `/boards/{boardID}/events?limit=`.
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeErrorFrom(w, fmt.Errorf("limit must be a non-negative integer: %w", common.ErrInvalidRequest))
			return
		}
		limit = parsed
	}
	events, err := h.boards.ListEvents(r.Context(), chi.URLParam(r, "boardID"), limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handlePack serves POST `/boards/{boardID}/pack`.
func (h *Handler) handlePack(w http.ResponseWriter, r *http.Request) {
	board, err := h.boards.Pack(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// handleAddTile serves POST `/boards/{boardID}/tiles`.
func (h *Handler) handleAddTile(w http.ResponseWriter, r *http.Request) {
	var req common.AddTileRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.BoardID = chi.URLParam(r, "boardID")
	tile, err := h.boards.AddTile(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tile)
}

func (h *Handler) handleRemoveTile(w http.ResponseWriter, r *http.Request) {
	if err := h.boards.RemoveTile(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "tileID")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDuplicateTile(w http.ResponseWriter, r *http.Request) {
	tile, err := h.boards.DuplicateTile(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "tileID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tile)
}

func (h *Handler) handleReplaceTile(w http.ResponseWriter, r *http.Request) {
	var req common.ReplaceTileRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.BoardID, req.TileID = chi.URLParam(r, "boardID"), chi.URLParam(r, "tileID")
	tile, err := h.boards.ReplaceTile(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tile)
}

func (h *Handler) handleMoveTile(w http.ResponseWriter, r *http.Request) {
	var req common.MoveTileRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.BoardID, req.TileID = chi.URLParam(r, "boardID"), chi.URLParam(r, "tileID")
	tile, err := h.boards.MoveTile(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tile)
}

func (h *Handler) handleResizeTile(w http.ResponseWriter, r *http.Request) {
	var req common.ResizeTileRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.BoardID, req.TileID = chi.URLParam(r, "boardID"), chi.URLParam(r, "tileID")
	tile, err := h.boards.ResizeTile(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tile)
}

// handleUploadBlob serves POST `/blobs` with raw image bytes as the body.
func (h *Handler) handleUploadBlob(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		writeErrorFrom(w, fmt.Errorf("read upload: %w", errors.Join(common.ErrInvalidRequest, err)))
		return
	}
	blob, err := h.boards.UploadBlob(r.Context(), data, r.Header.Get("Content-Type"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, blob)
}

// handleGetBlob serves GET `/blobs/{blobID}` with the stored bytes.
func (h *Handler) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeJSONError(w, http.StatusNotFound, APIError{Code: common.CodeNotFound, Message: "blob storage is not configured"})
		return
	}
	blob, ok := h.blobs.Blob(imageprobe.BlobPrefix + chi.URLParam(r, "blobID"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, APIError{Code: common.CodeNotFound, Message: "blob not found"})
		return
	}
	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

// parseBoolQuery reads an optional boolean query parameter.
func parseBoolQuery(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, common.ErrInvalidRequest)
	}
	return v, nil
}

// statusForCode maps common error codes to HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case common.CodeNotFound:
		return http.StatusNotFound
	case common.CodeInvalidRequest, common.CodeInvalidSource, common.CodeParseError:
		return http.StatusBadRequest
	case common.CodeLoadFailed:
		return http.StatusUnprocessableEntity
	case common.CodeCapacityExceeded, common.CodeUnpackable, common.CodeDegenerateGrid, common.CodeConflict:
		return http.StatusConflict
	case common.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// hintForCode returns a short recovery hint for selected failures.
func hintForCode(code string) string {
	switch code {
	case common.CodeCapacityExceeded:
		return "Remove or shrink tiles, or pack the board, before adding more."
	case common.CodeDegenerateGrid:
		return "Enlarge the viewport so at least one row fits."
	case common.CodeInvalidSource:
		return "Use an http(s), data:image, or blob: source."
	default:
		return ""
	}
}

// writeErrorFrom maps one adapter error into its structured API response.
func writeErrorFrom(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    common.CodeInternal,
			Message: "unknown error",
		})
		return
	}
	code := common.ErrorCode(err)
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, APIError{
			Code:    "payload_too_large",
			Message: err.Error(),
			Context: map[string]any{"limit": maxBytes.Limit},
		})
		return
	}
	writeJSONError(w, statusForCode(code), APIError{
		Code:    code,
		Message: err.Error(),
		Hint:    hintForCode(code),
	})
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
