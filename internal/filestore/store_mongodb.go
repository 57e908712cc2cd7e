package filestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"gofile/internal/core"
)

type mongoFileDocument struct {
	ID        string `bson:"_id"`
	CreatedAt int64  `bson:"created_at"`
	UpdatedAt int64  `bson:"updated_at"`
	Purpose   string `bson:"purpose"`
	ExpiresAt *int64 `bson:"expires_at,omitempty"`
	Data      []byte `bson:"data"`
	Content   []byte `bson:"content"`
}

// MongoDBStore stores file records and content in MongoDB.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates collection indexes if needed.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	coll := database.Collection("files")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "purpose", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create files indexes: %w", err)
	}

	return &MongoDBStore{collection: coll}, nil
}

// liveCondition matches documents that have not expired.
// A nil expires_at query matches both missing and null fields.
func liveCondition(now int64) bson.M {
	return bson.M{
		"$or": bson.A{
			bson.M{"expires_at": nil},
			bson.M{"expires_at": bson.M{"$gt": now}},
		},
	}
}

// Create inserts a new file record with its content.
func (s *MongoDBStore) Create(ctx context.Context, file *core.FileObject, content []byte) error {
	payload, err := serializeFile(file)
	if err != nil {
		return err
	}
	if content == nil {
		content = []byte{}
	}

	doc := mongoFileDocument{
		ID:        file.ID,
		CreatedAt: file.CreatedAt,
		UpdatedAt: time.Now().Unix(),
		Purpose:   file.Purpose,
		ExpiresAt: file.ExpiresAt,
		Data:      payload,
		Content:   content,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// Get returns a file record by id. Expired records are not visible.
func (s *MongoDBStore) Get(ctx context.Context, id string) (*core.FileObject, error) {
	filter := bson.M{"$and": bson.A{bson.M{"_id": id}, liveCondition(time.Now().Unix())}}

	var doc mongoFileDocument
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file: %w", err)
	}

	file, err := deserializeFile(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	return file, nil
}

// GetContent returns the raw content of a stored file.
func (s *MongoDBStore) GetContent(ctx context.Context, id string) ([]byte, error) {
	filter := bson.M{"$and": bson.A{bson.M{"_id": id}, liveCondition(time.Now().Unix())}}
	opts := options.FindOne().SetProjection(bson.M{"content": 1})

	var doc mongoFileDocument
	err := s.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file content: %w", err)
	}
	return doc.Content, nil
}

// List returns one page of file records ordered by created_at, _id.
func (s *MongoDBStore) List(ctx context.Context, filter ListFilter) ([]*core.FileObject, bool, error) {
	limit := normalizeLimit(filter.Limit)
	now := time.Now().Unix()

	// Sweep expired documents before paging. Comparison operators only
	// match numeric expires_at values, so null and missing are untouched.
	if _, err := s.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}}); err != nil {
		return nil, false, fmt.Errorf("sweep expired files: %w", err)
	}

	descending := filter.Order != "asc"
	conds := bson.A{liveCondition(now)}

	if filter.Purpose != "" {
		conds = append(conds, bson.M{"purpose": filter.Purpose})
	}

	if filter.After != "" {
		var cursorDoc mongoFileDocument
		err := s.collection.FindOne(ctx, bson.M{"_id": filter.After}).Decode(&cursorDoc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, false, ErrNotFound
			}
			return nil, false, fmt.Errorf("query after cursor: %w", err)
		}
		if descending {
			conds = append(conds, bson.M{
				"$or": bson.A{
					bson.M{"created_at": bson.M{"$lt": cursorDoc.CreatedAt}},
					bson.M{
						"created_at": cursorDoc.CreatedAt,
						"_id":        bson.M{"$lt": cursorDoc.ID},
					},
				},
			})
		} else {
			conds = append(conds, bson.M{
				"$or": bson.A{
					bson.M{"created_at": bson.M{"$gt": cursorDoc.CreatedAt}},
					bson.M{
						"created_at": cursorDoc.CreatedAt,
						"_id":        bson.M{"$gt": cursorDoc.ID},
					},
				},
			})
		}
	}

	sortDir := -1
	if !descending {
		sortDir = 1
	}
	// Fetch one extra document to learn whether another page follows.
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: sortDir}, {Key: "_id", Value: sortDir}}).
		SetLimit(int64(limit + 1))

	cursor, err := s.collection.Find(ctx, bson.M{"$and": conds}, opts)
	if err != nil {
		return nil, false, fmt.Errorf("list files: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]*core.FileObject, 0, limit)
	for cursor.Next(ctx) {
		var doc mongoFileDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, false, fmt.Errorf("decode file document: %w", err)
		}
		file, err := deserializeFile(doc.Data)
		if err != nil {
			return nil, false, fmt.Errorf("decode file payload: %w", err)
		}
		items = append(items, file)
	}
	if err := cursor.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate files cursor: %w", err)
	}

	hasMore := false
	if len(items) > limit {
		hasMore = true
		items = items[:limit]
	}
	return items, hasMore, nil
}

// Update updates a stored file record. Content is immutable.
func (s *MongoDBStore) Update(ctx context.Context, file *core.FileObject) error {
	payload, err := serializeFile(file)
	if err != nil {
		return err
	}

	filter := bson.M{"$and": bson.A{bson.M{"_id": file.ID}, liveCondition(time.Now().Unix())}}
	result, err := s.collection.UpdateOne(ctx,
		filter,
		bson.M{"$set": bson.M{
			"updated_at": time.Now().Unix(),
			"purpose":    file.Purpose,
			"expires_at": file.ExpiresAt,
			"data":       payload,
		}},
	)
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a file record and its content.
func (s *MongoDBStore) Delete(ctx context.Context, id string) error {
	filter := bson.M{"$and": bson.A{bson.M{"_id": id}, liveCondition(time.Now().Unix())}}
	result, err := s.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; Mongo client lifecycle is managed by the storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
