package filestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gofile/internal/core"
)

// SQLiteStore stores file records and content in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the files table and indexes if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			purpose TEXT NOT NULL,
			expires_at INTEGER,
			data TEXT NOT NULL,
			content BLOB NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create files table: %w", err)
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create files created_at index: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_files_purpose ON files(purpose)"); err != nil {
		return nil, fmt.Errorf("failed to create files purpose index: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_files_expires_at ON files(expires_at)"); err != nil {
		return nil, fmt.Errorf("failed to create files expires_at index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create inserts a new file record with its content.
func (s *SQLiteStore) Create(ctx context.Context, file *core.FileObject, content []byte) error {
	payload, err := serializeFile(file)
	if err != nil {
		return err
	}
	if content == nil {
		content = []byte{}
	}

	updatedAt := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO files (id, created_at, updated_at, purpose, expires_at, data, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, file.ID, file.CreatedAt, updatedAt, file.Purpose, file.ExpiresAt, string(payload), content)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read insert rows affected: %w", err)
	}
	if affected == 0 {
		return ErrExists
	}
	return nil
}

// Get returns a file record by id. Expired records are not visible.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.FileObject, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM files
		WHERE id = ? AND (expires_at IS NULL OR expires_at > ?)
	`, id, time.Now().Unix()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file: %w", err)
	}

	file, err := deserializeFile([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	return file, nil
}

// GetContent returns the raw content of a stored file.
func (s *SQLiteStore) GetContent(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM files
		WHERE id = ? AND (expires_at IS NULL OR expires_at > ?)
	`, id, time.Now().Unix()).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file content: %w", err)
	}
	return content, nil
}

// List returns one page of file records ordered by created_at, id.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]*core.FileObject, bool, error) {
	limit := normalizeLimit(filter.Limit)
	now := time.Now().Unix()

	// Sweep expired rows before paging.
	if _, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE expires_at IS NOT NULL AND expires_at <= ?", now); err != nil {
		return nil, false, fmt.Errorf("sweep expired files: %w", err)
	}

	descending := filter.Order != "asc"
	conds := []string{"(expires_at IS NULL OR expires_at > ?)"}
	args := []interface{}{now}

	if filter.Purpose != "" {
		conds = append(conds, "purpose = ?")
		args = append(args, filter.Purpose)
	}

	if filter.After != "" {
		var cursorCreatedAt int64
		err := s.db.QueryRowContext(ctx, "SELECT created_at FROM files WHERE id = ?", filter.After).Scan(&cursorCreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, false, ErrNotFound
			}
			return nil, false, fmt.Errorf("query after cursor: %w", err)
		}
		if descending {
			conds = append(conds, "((created_at < ?) OR (created_at = ? AND id < ?))")
		} else {
			conds = append(conds, "((created_at > ?) OR (created_at = ? AND id > ?))")
		}
		args = append(args, cursorCreatedAt, cursorCreatedAt, filter.After)
	}

	orderBy := "ORDER BY created_at DESC, id DESC"
	if !descending {
		orderBy = "ORDER BY created_at ASC, id ASC"
	}

	// Fetch one extra row to learn whether another page follows.
	args = append(args, limit+1)
	query := "SELECT data FROM files WHERE " + strings.Join(conds, " AND ") + " " + orderBy + " LIMIT ?"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	items := make([]*core.FileObject, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, false, fmt.Errorf("scan file row: %w", err)
		}
		file, err := deserializeFile([]byte(payload))
		if err != nil {
			return nil, false, fmt.Errorf("decode file row: %w", err)
		}
		items = append(items, file)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate file rows: %w", err)
	}

	hasMore := false
	if len(items) > limit {
		hasMore = true
		items = items[:limit]
	}
	return items, hasMore, nil
}

// Update updates a stored file record. Content is immutable.
func (s *SQLiteStore) Update(ctx context.Context, file *core.FileObject) error {
	payload, err := serializeFile(file)
	if err != nil {
		return err
	}

	updatedAt := time.Now().Unix()
	result, err := s.db.ExecContext(ctx, `
		UPDATE files
		SET updated_at = ?, purpose = ?, expires_at = ?, data = ?
		WHERE id = ? AND (expires_at IS NULL OR expires_at > ?)
	`, updatedAt, file.Purpose, file.ExpiresAt, string(payload), file.ID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read update rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a file record and its content.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM files
		WHERE id = ? AND (expires_at IS NULL OR expires_at > ?)
	`, id, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read delete rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; DB lifecycle is managed by the storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
