// Package files provides a typed client for OpenAI-compatible file APIs.
//
// The client wraps the five /files operations (upload, list, retrieve,
// delete, content download) and delegates authentication, retries, and
// serialization to the shared transport in internal/apiclient.
package files

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gofile/internal/apiclient"
	"gofile/internal/core"
)

const (
	providerName   = "openai"
	defaultBaseURL = "https://api.openai.com/v1"
)

// Options configures a files client. The zero value targets the public
// OpenAI API with transport defaults.
type Options struct {
	// BaseURL overrides the API base URL (default: https://api.openai.com/v1)
	BaseURL string

	// Organization is sent as OpenAI-Organization when set
	Organization string

	// Project is sent as OpenAI-Project when set
	Project string

	// UserAgent overrides the default Go http client User-Agent when set
	UserAgent string

	// Retry overrides the transport retry policy when set
	Retry *apiclient.RetryConfig

	// CircuitBreaker overrides the transport circuit breaker when set
	CircuitBreaker *apiclient.CircuitBreakerConfig

	// Hooks receive request lifecycle notifications (e.g. Prometheus)
	Hooks apiclient.Hooks
}

// Client is a typed client for the files API.
//
// A Client holds no mutable state beyond its transport and is safe for
// concurrent use. It applies no retries, caching, or rate limiting of its
// own: resilience policy lives in the transport configuration.
type Client struct {
	client       *apiclient.Client
	apiKey       string
	organization string
	project      string
	userAgent    string
}

// New creates a files client using the pooled default HTTP client.
func New(apiKey string, opts Options) *Client {
	return newClient(nil, apiKey, opts)
}

// NewWithHTTPClient creates a files client with a custom HTTP client.
// If httpClient is nil, http.DefaultClient is used.
func NewWithHTTPClient(apiKey string, httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return newClient(httpClient, apiKey, opts)
}

func newClient(httpClient *http.Client, apiKey string, opts Options) *Client {
	c := &Client{
		apiKey:       apiKey,
		organization: strings.TrimSpace(opts.Organization),
		project:      strings.TrimSpace(opts.Project),
		userAgent:    strings.TrimSpace(opts.UserAgent),
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	cfg := apiclient.DefaultConfig(providerName, baseURL)
	if opts.Retry != nil {
		cfg.Retry = *opts.Retry
	}
	if opts.CircuitBreaker != nil {
		cfg.CircuitBreaker = opts.CircuitBreaker
	}
	cfg.Hooks = opts.Hooks

	if httpClient != nil {
		c.client = apiclient.NewWithHTTPClient(httpClient, cfg, c.setHeaders)
	} else {
		c.client = apiclient.New(cfg, c.setHeaders)
	}
	return c
}

// SetBaseURL allows configuring a custom base URL after construction
func (c *Client) SetBaseURL(url string) {
	c.client.SetBaseURL(url)
}

// setHeaders sets the required headers for files API requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}
	if c.project != "" {
		req.Header.Set("OpenAI-Project", c.project)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Forward request ID if present in context using OpenAI's X-Client-Request-Id header.
	// OpenAI requires ASCII-only characters and max 512 bytes, otherwise returns 400.
	if requestID := core.RequestIDFrom(req.Context()); requestID != "" && isValidClientRequestID(requestID) {
		req.Header.Set("X-Client-Request-Id", requestID)
	}
}

// Create uploads a file using the multipart files API.
// Purpose and content are required; a missing filename defaults to
// "upload.jsonl".
func (c *Client) Create(ctx context.Context, req *core.FileCreateRequest) (*core.FileObject, error) {
	if req == nil {
		return nil, core.NewInvalidRequestError("request is required", nil)
	}
	if strings.TrimSpace(req.Purpose) == "" {
		return nil, core.NewInvalidRequestError("purpose is required", nil)
	}
	if len(req.Content) == 0 {
		return nil, core.NewInvalidRequestError("file is required", nil)
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "upload.jsonl"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("purpose", strings.TrimSpace(req.Purpose)); err != nil {
		return nil, core.NewInvalidRequestError("failed to write purpose field", err)
	}
	if req.ExpiresAfter != nil {
		if anchor := strings.TrimSpace(req.ExpiresAfter.Anchor); anchor != "" {
			if err := writer.WriteField("expires_after[anchor]", anchor); err != nil {
				return nil, core.NewInvalidRequestError("failed to write expires_after anchor", err)
			}
		}
		if req.ExpiresAfter.Seconds > 0 {
			if err := writer.WriteField("expires_after[seconds]", strconv.FormatInt(req.ExpiresAfter.Seconds, 10)); err != nil {
				return nil, core.NewInvalidRequestError("failed to write expires_after seconds", err)
			}
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create multipart file field", err)
	}
	if _, err := part.Write(req.Content); err != nil {
		return nil, core.NewInvalidRequestError("failed to write file content", err)
	}
	if err := writer.Close(); err != nil {
		return nil, core.NewInvalidRequestError("failed to finalize multipart payload", err)
	}

	var fileObj core.FileObject
	if err := c.client.Do(ctx, apiclient.Request{
		Method:      http.MethodPost,
		Endpoint:    "/files",
		RawBody:     buf.Bytes(),
		ContentType: writer.FormDataContentType(),
	}, &fileObj); err != nil {
		return nil, err
	}
	if fileObj.Object == "" {
		fileObj.Object = "file"
	}
	fileObj.Provider = providerName
	return &fileObj, nil
}

// List returns one page of file metadata. A nil query lists with server
// defaults; pagination is the caller's concern via query.After.
func (c *Client) List(ctx context.Context, query *core.FileListQuery) (*core.FileListResponse, error) {
	var resp core.FileListResponse
	if err := c.client.Do(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/files",
		Query:    query.Values(),
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Object == "" {
		resp.Object = "list"
	}
	for i := range resp.Data {
		if resp.Data[i].Object == "" {
			resp.Data[i].Object = "file"
		}
		resp.Data[i].Provider = providerName
	}
	return &resp, nil
}

// Retrieve fetches the metadata of a single file by id.
func (c *Client) Retrieve(ctx context.Context, id string) (*core.FileObject, error) {
	fileID, err := cleanFileID(id)
	if err != nil {
		return nil, err
	}

	var resp core.FileObject
	if err := c.client.Do(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/files/" + url.PathEscape(fileID),
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Object == "" {
		resp.Object = "file"
	}
	resp.Provider = providerName
	return &resp, nil
}

// Delete removes a file by id. Deletion is not guaranteed idempotent:
// deleting an already-deleted id may surface a not-found error.
func (c *Client) Delete(ctx context.Context, id string) (*core.FileDeleteResponse, error) {
	fileID, err := cleanFileID(id)
	if err != nil {
		return nil, err
	}

	var resp core.FileDeleteResponse
	if err := c.client.Do(ctx, apiclient.Request{
		Method:   http.MethodDelete,
		Endpoint: "/files/" + url.PathEscape(fileID),
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Object == "" {
		resp.Object = "file"
	}
	return &resp, nil
}

// Content downloads the raw bytes of a file via /files/{id}/content.
// The body is returned verbatim; use FileContentResponse.Text for UTF-8
// payloads such as JSONL.
func (c *Client) Content(ctx context.Context, id string) (*core.FileContentResponse, error) {
	fileID, err := cleanFileID(id)
	if err != nil {
		return nil, err
	}

	raw, err := c.client.DoRaw(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/files/" + url.PathEscape(fileID) + "/content",
	})
	if err != nil {
		return nil, err
	}

	contentType := "application/octet-stream"
	filename := ""
	if raw.Header != nil {
		if ct := raw.Header.Get("Content-Type"); ct != "" {
			contentType = ct
		}
		if cd := raw.Header.Get("Content-Disposition"); cd != "" {
			if _, params, err := mime.ParseMediaType(cd); err == nil {
				filename = params["filename"]
			}
		}
	}

	return &core.FileContentResponse{
		ID:          fileID,
		Filename:    filename,
		ContentType: contentType,
		Data:        raw.Body,
	}, nil
}

// StreamContent returns the file content as a stream for large downloads.
// The caller must close the returned reader. Streaming requests are not
// retried.
func (c *Client) StreamContent(ctx context.Context, id string) (io.ReadCloser, error) {
	fileID, err := cleanFileID(id)
	if err != nil {
		return nil, err
	}

	return c.client.DoStream(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/files/" + url.PathEscape(fileID) + "/content",
	})
}

// cleanFileID trims and validates a caller-supplied file id.
// IDs are otherwise opaque; the server is authoritative about their format.
func cleanFileID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", core.NewInvalidRequestError("file id is required", nil)
	}
	return trimmed, nil
}

func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}
