package core

import (
	"net/url"
	"strconv"
	"strings"
)

// Purposes documented for OpenAI-compatible file uploads. The server is
// authoritative; unknown values are passed through unchanged.
const (
	PurposeAssistants = "assistants"
	PurposeBatch      = "batch"
	PurposeFineTune   = "fine-tune"
	PurposeVision     = "vision"
	PurposeUserData   = "user_data"
	PurposeEvals      = "evals"
)

// KnownPurpose reports whether purpose is one of the documented values.
func KnownPurpose(purpose string) bool {
	switch strings.TrimSpace(purpose) {
	case PurposeAssistants, PurposeBatch, PurposeFineTune, PurposeVision, PurposeUserData, PurposeEvals:
		return true
	}
	return false
}

// File processing statuses reported by the server.
const (
	FileStatusUploaded  = "uploaded"
	FileStatusProcessed = "processed"
	FileStatusError     = "error"
)

// FileCreateRequest represents an OpenAI-compatible file upload request.
// The actual request is multipart/form-data; Content is never serialized.
type FileCreateRequest struct {
	Purpose  string `json:"purpose"`
	Filename string `json:"filename,omitempty"`
	Content  []byte `json:"-"`

	// ExpiresAfter requests server-side expiry for the uploaded file.
	ExpiresAfter *FileExpiresAfter `json:"expires_after,omitempty"`
}

// FileExpiresAfter mirrors the expires_after[anchor] / expires_after[seconds]
// multipart fields. The only documented anchor is "created_at".
type FileExpiresAfter struct {
	Anchor  string `json:"anchor"`
	Seconds int64  `json:"seconds"`
}

// FileObject represents an OpenAI-compatible file object.
type FileObject struct {
	ID            string  `json:"id"`
	Object        string  `json:"object"`
	Bytes         int64   `json:"bytes"`
	CreatedAt     int64   `json:"created_at"`
	ExpiresAt     *int64  `json:"expires_at,omitempty"`
	Filename      string  `json:"filename"`
	Purpose       string  `json:"purpose"`
	Status        string  `json:"status,omitempty"`
	StatusDetails *string `json:"status_details,omitempty"`

	// Enrichment for deployments that talk to more than one endpoint.
	Provider string `json:"provider,omitempty"`
}

// FileListQuery holds the supported GET /v1/files filters.
// Zero values are omitted from the query string.
type FileListQuery struct {
	Purpose string
	Limit   int
	After   string
	Order   string // "asc" or "desc"; server default when empty
}

// Values serializes the query to URL values.
func (q *FileListQuery) Values() url.Values {
	values := url.Values{}
	if q == nil {
		return values
	}
	if trimmed := strings.TrimSpace(q.Purpose); trimmed != "" {
		values.Set("purpose", trimmed)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if trimmed := strings.TrimSpace(q.After); trimmed != "" {
		values.Set("after", trimmed)
	}
	if trimmed := strings.TrimSpace(q.Order); trimmed != "" {
		values.Set("order", trimmed)
	}
	return values
}

// FileListResponse is returned by GET /v1/files.
type FileListResponse struct {
	Object  string       `json:"object"`
	Data    []FileObject `json:"data"`
	HasMore bool         `json:"has_more"`
}

// FileDeleteResponse is returned by DELETE /v1/files/{id}.
type FileDeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// FileContentResponse wraps raw file bytes with response metadata.
type FileContentResponse struct {
	ID          string
	Filename    string
	ContentType string
	Data        []byte
}

// Text returns the content decoded as a string. Callers handling binary
// files should read Data directly.
func (r *FileContentResponse) Text() string {
	return string(r.Data)
}
