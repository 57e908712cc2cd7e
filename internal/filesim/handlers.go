package filesim

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"gofile/internal/core"
	"gofile/internal/filestore"
)

// Expiry bounds accepted for expires_after[seconds], per the OpenAI API.
const (
	minExpirySeconds = 3600
	maxExpirySeconds = 2592000
)

// Handler holds the dependencies for HTTP handlers
type Handler struct {
	store           filestore.Store
	processingDelay time.Duration
	validateJSONL   bool
}

// NewHandler creates a new handler with the given file store.
func NewHandler(store filestore.Store, processingDelay time.Duration, validateJSONL bool) *Handler {
	return &Handler{
		store:           store,
		processingDelay: processingDelay,
		validateJSONL:   validateJSONL,
	}
}

// Health handles the health check endpoint
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// CreateFile handles POST /v1/files. The request is multipart/form-data
// with a required file part and purpose field, plus optional
// expires_after[anchor] / expires_after[seconds] fields.
func (h *Handler) CreateFile(c echo.Context) error {
	ctx := c.Request().Context()

	purpose := strings.TrimSpace(c.FormValue("purpose"))
	if purpose == "" {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "", "purpose",
			"Missing required parameter: 'purpose'.")
	}
	if !core.KnownPurpose(purpose) {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "", "purpose",
			fmt.Sprintf("'%s' is not a valid purpose.", purpose))
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "", "file",
			"Missing required parameter: 'file'.")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "", "file",
			"Could not read the uploaded file.")
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "", "file",
			"Could not read the uploaded file.")
	}
	if len(content) == 0 {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "", "file",
			"Uploaded file is empty.")
	}

	now := time.Now().Unix()

	expiresAt, fieldErr := parseExpiresAfter(
		c.FormValue("expires_after[anchor]"),
		c.FormValue("expires_after[seconds]"),
		now,
	)
	if fieldErr != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "", fieldErr.param, fieldErr.message)
	}

	if h.validateJSONL && purpose == core.PurposeFineTune {
		if line, ok := firstInvalidJSONLine(content); !ok {
			return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "", "file",
				fmt.Sprintf("Invalid file format. Line %d is not a valid JSON object.", line))
		}
	}

	filename := fileHeader.Filename
	if filename == "" {
		filename = "file"
	}

	file := &core.FileObject{
		ID:        "file-" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		Object:    "file",
		Bytes:     int64(len(content)),
		CreatedAt: now,
		ExpiresAt: expiresAt,
		Filename:  filename,
		Purpose:   purpose,
		Status:    core.FileStatusUploaded,
	}

	if err := h.store.Create(ctx, file, content); err != nil {
		return internalError(c, "create file", err)
	}

	return c.JSON(http.StatusOK, file)
}

// ListFiles handles GET /v1/files with purpose, limit, after and order
// query parameters.
func (h *Handler) ListFiles(c echo.Context) error {
	ctx := c.Request().Context()

	filter := filestore.ListFilter{
		Purpose: strings.TrimSpace(c.QueryParam("purpose")),
		After:   strings.TrimSpace(c.QueryParam("after")),
	}

	if limitStr := c.QueryParam("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 10000 {
			return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "", "limit",
				"Invalid 'limit': must be an integer between 1 and 10000.")
		}
		filter.Limit = limit
	}

	switch order := strings.TrimSpace(c.QueryParam("order")); order {
	case "", "asc", "desc":
		filter.Order = order
	default:
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "", "order",
			"Invalid 'order': must be 'asc' or 'desc'.")
	}

	files, hasMore, err := h.store.List(ctx, filter)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			// The only lookup List does by ID is the cursor.
			return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "", "after",
				fmt.Sprintf("Invalid 'after' cursor: no file %s.", filter.After))
		}
		return internalError(c, "list files", err)
	}

	data := make([]core.FileObject, 0, len(files))
	for _, file := range files {
		upgraded, err := h.maybeProcess(ctx, file)
		if err != nil {
			return internalError(c, "list files", err)
		}
		data = append(data, *upgraded)
	}

	return c.JSON(http.StatusOK, core.FileListResponse{
		Object:  "list",
		Data:    data,
		HasMore: hasMore,
	})
}

// RetrieveFile handles GET /v1/files/:id
func (h *Handler) RetrieveFile(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	file, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return notFoundJSON(c, id)
		}
		return internalError(c, "retrieve file", err)
	}

	file, err = h.maybeProcess(ctx, file)
	if err != nil {
		return internalError(c, "retrieve file", err)
	}

	return c.JSON(http.StatusOK, file)
}

// DeleteFile handles DELETE /v1/files/:id
func (h *Handler) DeleteFile(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.store.Delete(ctx, id); err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return notFoundJSON(c, id)
		}
		return internalError(c, "delete file", err)
	}

	return c.JSON(http.StatusOK, core.FileDeleteResponse{
		ID:      id,
		Object:  "file",
		Deleted: true,
	})
}

// FileContent handles GET /v1/files/:id/content. Responses carry an ETag
// derived from the content so clients can revalidate with If-None-Match.
func (h *Handler) FileContent(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	file, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return notFoundJSON(c, id)
		}
		return internalError(c, "file content", err)
	}

	content, err := h.store.GetContent(ctx, id)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			// Deleted between the two reads.
			return notFoundJSON(c, id)
		}
		return internalError(c, "file content", err)
	}

	etag := fmt.Sprintf("\"%016x\"", xxhash.Sum64(content))
	c.Response().Header().Set("ETag", etag)
	if etagMatches(c.Request().Header.Get("If-None-Match"), etag) {
		return c.NoContent(http.StatusNotModified)
	}

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	return c.Blob(http.StatusOK, contentTypeFor(file.Filename), content)
}

// maybeProcess upgrades an uploaded file to processed once the configured
// processing delay has elapsed. The upgrade is applied lazily on read.
func (h *Handler) maybeProcess(ctx context.Context, file *core.FileObject) (*core.FileObject, error) {
	if file.Status != core.FileStatusUploaded {
		return file, nil
	}
	if time.Since(time.Unix(file.CreatedAt, 0)) < h.processingDelay {
		return file, nil
	}

	file.Status = core.FileStatusProcessed
	if err := h.store.Update(ctx, file); err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			// Deleted while reading; report the record as read.
			return file, nil
		}
		return nil, err
	}
	return file, nil
}

// fieldError describes a rejected request parameter.
type fieldError struct {
	param   string
	message string
}

// parseExpiresAfter reads the expires_after multipart fields and returns
// the absolute expiry timestamp. Both fields must be present together.
func parseExpiresAfter(anchor, secondsStr string, now int64) (*int64, *fieldError) {
	anchor = strings.TrimSpace(anchor)
	secondsStr = strings.TrimSpace(secondsStr)
	if anchor == "" && secondsStr == "" {
		return nil, nil
	}

	if anchor != "created_at" {
		return nil, &fieldError{"expires_after[anchor]", "Invalid anchor: only 'created_at' is supported."}
	}
	seconds, err := strconv.ParseInt(secondsStr, 10, 64)
	if err != nil {
		return nil, &fieldError{"expires_after[seconds]", "Invalid 'expires_after[seconds]': expected an integer."}
	}
	if seconds < minExpirySeconds || seconds > maxExpirySeconds {
		return nil, &fieldError{"expires_after[seconds]",
			fmt.Sprintf("Invalid 'expires_after[seconds]': must be between %d and %d.", minExpirySeconds, maxExpirySeconds)}
	}

	expiresAt := now + seconds
	return &expiresAt, nil
}

// firstInvalidJSONLine returns the 1-based number of the first line that
// is not a JSON object. Blank lines are skipped.
func firstInvalidJSONLine(content []byte) (int, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' || !gjson.ValidBytes(line) {
			return lineNo, false
		}
	}
	if err := scanner.Err(); err != nil {
		return lineNo + 1, false
	}
	return 0, true
}

// etagMatches reports whether an If-None-Match header value matches etag.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

// contentTypeFor picks a Content-Type from the stored filename. The mapping
// is fixed rather than host-dependent so downloads behave the same on every
// platform.
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jsonl":
		return "application/jsonl"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// notFoundJSON renders the canonical missing-file error.
func notFoundJSON(c echo.Context, id string) error {
	return errorJSON(c, http.StatusNotFound, "invalid_request_error", "not_found", "id",
		fmt.Sprintf("No such File object: %s", id))
}

// internalError logs err and renders an opaque 500 envelope.
func internalError(c echo.Context, op string, err error) error {
	slog.Error("files api "+op+" failed", "error", err)
	return errorJSON(c, http.StatusInternalServerError, "server_error", "", "",
		"Internal server error.")
}

// errorJSON writes an OpenAI-style error envelope. Empty code and param
// render as JSON null.
func errorJSON(c echo.Context, status int, errType, code, param, message string) error {
	errBody := map[string]interface{}{
		"message": message,
		"type":    errType,
		"param":   nil,
		"code":    nil,
	}
	if param != "" {
		errBody["param"] = param
	}
	if code != "" {
		errBody["code"] = code
	}
	return c.JSON(status, map[string]interface{}{
		"error": errBody,
	})
}
