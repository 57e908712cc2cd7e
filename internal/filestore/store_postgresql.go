package filestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gofile/internal/core"
)

// PostgreSQLStore stores file records and content in PostgreSQL.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the files table and indexes if needed.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			purpose TEXT NOT NULL,
			expires_at BIGINT,
			data JSONB NOT NULL,
			content BYTEA NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create files table: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create files created_at index: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_files_purpose ON files(purpose)"); err != nil {
		return nil, fmt.Errorf("failed to create files purpose index: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_files_expires_at ON files(expires_at)"); err != nil {
		return nil, fmt.Errorf("failed to create files expires_at index: %w", err)
	}

	return &PostgreSQLStore{pool: pool}, nil
}

// Create inserts a new file record with its content.
func (s *PostgreSQLStore) Create(ctx context.Context, file *core.FileObject, content []byte) error {
	payload, err := serializeFile(file)
	if err != nil {
		return err
	}
	if content == nil {
		content = []byte{}
	}

	updatedAt := time.Now().Unix()
	cmd, err := s.pool.Exec(ctx, `
		INSERT INTO files (id, created_at, updated_at, purpose, expires_at, data, content)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		ON CONFLICT (id) DO NOTHING
	`, file.ID, file.CreatedAt, updatedAt, file.Purpose, file.ExpiresAt, payload, content)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

// Get returns a file record by id. Expired records are not visible.
func (s *PostgreSQLStore) Get(ctx context.Context, id string) (*core.FileObject, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM files
		WHERE id = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, id, time.Now().Unix()).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file: %w", err)
	}

	file, err := deserializeFile(payload)
	if err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	return file, nil
}

// GetContent returns the raw content of a stored file.
func (s *PostgreSQLStore) GetContent(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	err := s.pool.QueryRow(ctx, `
		SELECT content FROM files
		WHERE id = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, id, time.Now().Unix()).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file content: %w", err)
	}
	return content, nil
}

// List returns one page of file records ordered by created_at, id.
func (s *PostgreSQLStore) List(ctx context.Context, filter ListFilter) ([]*core.FileObject, bool, error) {
	limit := normalizeLimit(filter.Limit)
	now := time.Now().Unix()

	// Sweep expired rows before paging.
	if _, err := s.pool.Exec(ctx, "DELETE FROM files WHERE expires_at IS NOT NULL AND expires_at <= $1", now); err != nil {
		return nil, false, fmt.Errorf("sweep expired files: %w", err)
	}

	descending := filter.Order != "asc"
	args := []interface{}{now}
	conds := []string{"(expires_at IS NULL OR expires_at > $1)"}

	if filter.Purpose != "" {
		args = append(args, filter.Purpose)
		conds = append(conds, fmt.Sprintf("purpose = $%d", len(args)))
	}

	if filter.After != "" {
		var cursorCreatedAt int64
		err := s.pool.QueryRow(ctx, "SELECT created_at FROM files WHERE id = $1", filter.After).Scan(&cursorCreatedAt)
		switch {
		case err == nil:
			args = append(args, cursorCreatedAt)
			createdArg := len(args)
			args = append(args, filter.After)
			idArg := len(args)
			if descending {
				conds = append(conds, fmt.Sprintf("((created_at < $%d) OR (created_at = $%d AND id < $%d))", createdArg, createdArg, idArg))
			} else {
				conds = append(conds, fmt.Sprintf("((created_at > $%d) OR (created_at = $%d AND id > $%d))", createdArg, createdArg, idArg))
			}
		case errors.Is(err, pgx.ErrNoRows):
			// Cursor may have been deleted between requests; restart from the first page.
		default:
			return nil, false, fmt.Errorf("query after cursor: %w", err)
		}
	}

	orderBy := "ORDER BY created_at DESC, id DESC"
	if !descending {
		orderBy = "ORDER BY created_at ASC, id ASC"
	}

	// Fetch one extra row to learn whether another page follows.
	args = append(args, limit+1)
	query := fmt.Sprintf("SELECT data FROM files WHERE %s %s LIMIT $%d", strings.Join(conds, " AND "), orderBy, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	items := make([]*core.FileObject, 0, limit)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, false, fmt.Errorf("scan file row: %w", err)
		}
		file, err := deserializeFile(payload)
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
func (s *PostgreSQLStore) Update(ctx context.Context, file *core.FileObject) error {
	payload, err := serializeFile(file)
	if err != nil {
		return err
	}

	updatedAt := time.Now().Unix()
	cmd, err := s.pool.Exec(ctx, `
		UPDATE files
		SET updated_at = $1, purpose = $2, expires_at = $3, data = $4::jsonb
		WHERE id = $5 AND (expires_at IS NULL OR expires_at > $6)
	`, updatedAt, file.Purpose, file.ExpiresAt, payload, file.ID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a file record and its content.
func (s *PostgreSQLStore) Delete(ctx context.Context, id string) error {
	cmd, err := s.pool.Exec(ctx, `
		DELETE FROM files
		WHERE id = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, id, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; pool lifecycle is managed by the storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
