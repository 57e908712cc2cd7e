// Package filestore provides persistence for uploaded file records and
// their raw content behind the files simulator.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gofile/internal/core"
)

// ErrNotFound indicates a requested file was not found.
var ErrNotFound = errors.New("file not found")

// ErrExists indicates a file with the same id is already stored.
var ErrExists = errors.New("file already exists")

// ListFilter narrows and pages List results.
type ListFilter struct {
	// Purpose filters to files uploaded with this purpose when non-empty.
	Purpose string
	// Limit is the page size, normalized to 20 when unset and capped at 10000.
	Limit int
	// After is a file id cursor; the page starts after that record.
	After string
	// Order sorts by created_at: "asc" or "desc" (default).
	Order string
}

// Store defines persistence operations for file records and content.
type Store interface {
	Create(ctx context.Context, file *core.FileObject, content []byte) error
	Get(ctx context.Context, id string) (*core.FileObject, error)
	GetContent(ctx context.Context, id string) ([]byte, error)
	// List returns one page of matching records plus whether more follow it.
	List(ctx context.Context, filter ListFilter) ([]*core.FileObject, bool, error)
	Update(ctx context.Context, file *core.FileObject) error
	Delete(ctx context.Context, id string) error
	Close() error
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 10000:
		return 10000
	default:
		return limit
	}
}

func isExpired(file *core.FileObject, now int64) bool {
	return file != nil && file.ExpiresAt != nil && *file.ExpiresAt <= now
}

func cloneFile(src *core.FileObject) (*core.FileObject, error) {
	if src == nil {
		return nil, fmt.Errorf("file is nil")
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("marshal file: %w", err)
	}
	var dst core.FileObject
	if err := json.Unmarshal(b, &dst); err != nil {
		return nil, fmt.Errorf("unmarshal file: %w", err)
	}
	return &dst, nil
}

func serializeFile(file *core.FileObject) ([]byte, error) {
	if file == nil {
		return nil, fmt.Errorf("file is nil")
	}
	if file.ID == "" {
		return nil, fmt.Errorf("file ID is empty")
	}
	b, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("marshal file: %w", err)
	}
	return b, nil
}

func deserializeFile(raw []byte) (*core.FileObject, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty file payload")
	}
	var file core.FileObject
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("unmarshal file: %w", err)
	}
	return &file, nil
}

// sortFiles orders by created_at then id, newest first unless ascending.
func sortFiles(files []*core.FileObject, ascending bool) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].CreatedAt == files[j].CreatedAt {
			if ascending {
				return files[i].ID < files[j].ID
			}
			return files[i].ID > files[j].ID
		}
		if ascending {
			return files[i].CreatedAt < files[j].CreatedAt
		}
		return files[i].CreatedAt > files[j].CreatedAt
	})
}

// pageFiles slices one page out of an already sorted result set.
// A cursor that does not appear in the set reports ErrNotFound.
func pageFiles(all []*core.FileObject, after string, limit int) ([]*core.FileObject, bool, error) {
	start := 0
	if after != "" {
		idx := -1
		for i := range all {
			if all[i].ID == after {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, false, ErrNotFound
		}
		start = idx + 1
	}

	if start >= len(all) {
		return []*core.FileObject{}, false, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], end < len(all), nil
}
