//go:build integration

// Package dbassert provides database state assertions for integration tests.
package dbassert

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// FileRow mirrors one persisted file record for test assertions. Data holds
// the serialized file object exactly as the simulator stored it.
type FileRow struct {
	ID        string
	CreatedAt int64
	UpdatedAt int64
	Purpose   string
	ExpiresAt *int64
	Data      map[string]any
	Content   []byte
}

// QueryFileRow loads a file row by id from PostgreSQL, failing the test
// when it is absent.
func QueryFileRow(t *testing.T, pool *pgxpool.Pool, id string) FileRow {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT id, created_at, updated_at, purpose, expires_at, data, content
		FROM files
		WHERE id = $1
	`

	var row FileRow
	var dataJSON []byte
	err := pool.QueryRow(ctx, query, id).Scan(
		&row.ID, &row.CreatedAt, &row.UpdatedAt,
		&row.Purpose, &row.ExpiresAt, &dataJSON, &row.Content,
	)
	require.NoError(t, err, "failed to query file row %s", id)

	row.Data = unmarshalRowData(t, dataJSON)
	return row
}

// FileRowExists reports whether a file row exists in PostgreSQL.
func FileRowExists(t *testing.T, pool *pgxpool.Pool, id string) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var count int
	err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM files WHERE id = $1", id).Scan(&count)
	require.NoError(t, err, "failed to check file row existence")

	return count > 0
}

// CountFiles returns the total count of file rows in PostgreSQL.
func CountFiles(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var count int
	err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM files").Scan(&count)
	require.NoError(t, err, "failed to count file rows")

	return count
}

// ClearFiles deletes all file rows from PostgreSQL.
func ClearFiles(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, "DELETE FROM files")
	require.NoError(t, err, "failed to clear file rows")
}

// mongoFileRow mirrors the simulator's MongoDB document layout.
type mongoFileRow struct {
	ID        string `bson:"_id"`
	CreatedAt int64  `bson:"created_at"`
	UpdatedAt int64  `bson:"updated_at"`
	Purpose   string `bson:"purpose"`
	ExpiresAt *int64 `bson:"expires_at,omitempty"`
	Data      []byte `bson:"data"`
	Content   []byte `bson:"content"`
}

// QueryFileRowMongo loads a file document by id from MongoDB, failing the
// test when it is absent.
func QueryFileRowMongo(t *testing.T, db *mongo.Database, id string) FileRow {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var doc mongoFileRow
	err := db.Collection("files").FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	require.NoError(t, err, "failed to query file document %s", id)

	return FileRow{
		ID:        doc.ID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		Purpose:   doc.Purpose,
		ExpiresAt: doc.ExpiresAt,
		Data:      unmarshalRowData(t, doc.Data),
		Content:   doc.Content,
	}
}

// FileRowExistsMongo reports whether a file document exists in MongoDB.
func FileRowExistsMongo(t *testing.T, db *mongo.Database, id string) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := db.Collection("files").CountDocuments(ctx, bson.M{"_id": id})
	require.NoError(t, err, "failed to check file document existence")

	return count > 0
}

// CountFilesMongo returns the total count of file documents in MongoDB.
func CountFilesMongo(t *testing.T, db *mongo.Database) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := db.Collection("files").CountDocuments(ctx, bson.M{})
	require.NoError(t, err, "failed to count file documents")

	return int(count)
}

// ClearFilesMongo deletes all file documents from MongoDB.
func ClearFilesMongo(t *testing.T, db *mongo.Database) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := db.Collection("files").DeleteMany(ctx, bson.M{})
	require.NoError(t, err, "failed to clear file documents")
}

// ExpectedFile contains expected values for file row assertions.
// Zero values are not checked, allowing partial matching.
type ExpectedFile struct {
	ID       string
	Purpose  string
	Filename string
	Status   string
	Bytes    int64
}

// AssertFileRowCompleteness verifies that all required fields are populated.
func AssertFileRowCompleteness(t *testing.T, row FileRow) {
	t.Helper()

	assert.NotEmpty(t, row.ID, "file row ID should not be empty")
	assert.Greater(t, row.CreatedAt, int64(0), "file row created_at should be set")
	assert.Greater(t, row.UpdatedAt, int64(0), "file row updated_at should be set")
	assert.NotEmpty(t, row.Purpose, "file row purpose should not be empty")
	assert.NotNil(t, row.Data, "file row should have data field populated")
	assert.NotEmpty(t, row.Content, "file row content should not be empty")
}

// AssertFileRowMatches verifies that the row matches expected values.
// Only non-zero expected values are checked. Columns and the serialized
// object must agree where both carry the value.
func AssertFileRowMatches(t *testing.T, expected ExpectedFile, row FileRow) {
	t.Helper()

	if expected.ID != "" {
		assert.Equal(t, expected.ID, row.ID, "id mismatch")
		assert.Equal(t, expected.ID, row.Data["id"], "serialized id mismatch")
	}
	if expected.Purpose != "" {
		assert.Equal(t, expected.Purpose, row.Purpose, "purpose column mismatch")
		assert.Equal(t, expected.Purpose, row.Data["purpose"], "serialized purpose mismatch")
	}
	if expected.Filename != "" {
		assert.Equal(t, expected.Filename, row.Data["filename"], "filename mismatch")
	}
	if expected.Status != "" {
		assert.Equal(t, expected.Status, row.Data["status"], "status mismatch")
	}
	if expected.Bytes != 0 {
		assert.EqualValues(t, expected.Bytes, row.Data["bytes"], "bytes mismatch")
	}
}

// unmarshalRowData unmarshals JSON bytes to map[string]any.
func unmarshalRowData(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var rowData map[string]any
	err := json.Unmarshal(data, &rowData)
	require.NoError(t, err, "failed to unmarshal file row data")
	return rowData
}
