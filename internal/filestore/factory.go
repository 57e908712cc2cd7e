package filestore

import (
	"context"
	"errors"
	"fmt"

	"gofile/internal/storage"
)

// Store types without a shared database connection behind them.
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
	TypeS3     = "s3"
)

// Config selects and configures a file store backend.
type Config struct {
	// Type is one of "memory", "sqlite", "postgresql", "mongodb", "redis", "s3".
	Type string

	SQLite     storage.SQLiteConfig
	PostgreSQL storage.PostgreSQLConfig
	MongoDB    storage.MongoDBConfig
	Redis      RedisConfig
	S3         S3Config
}

// Result holds the initialized file store and optional owned storage.
type Result struct {
	Store   Store
	Storage *storage.Conn
}

// Close releases resources held by the file store.
func (r *Result) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New creates a file store from configuration. Database-backed types own
// their storage connection; memory, redis and s3 stand alone.
func New(ctx context.Context, cfg Config) (*Result, error) {
	switch cfg.Type {
	case "", TypeMemory:
		return &Result{Store: NewMemoryStore()}, nil
	case TypeRedis:
		store, err := NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &Result{Store: store}, nil
	case TypeS3:
		store, err := NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return &Result{Store: store}, nil
	case storage.TypeSQLite, storage.TypePostgreSQL, storage.TypeMongoDB:
		conn, err := storage.New(ctx, buildStorageConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}

		fileStore, err := createStore(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}

		return &Result{
			Store:   fileStore,
			Storage: conn,
		}, nil
	default:
		return nil, fmt.Errorf("unknown file store type: %s (valid: memory, sqlite, postgresql, mongodb, redis, s3)", cfg.Type)
	}
}

func buildStorageConfig(cfg Config) storage.Config {
	storageCfg := storage.Config{
		Type:       cfg.Type,
		SQLite:     cfg.SQLite,
		PostgreSQL: cfg.PostgreSQL,
		MongoDB:    cfg.MongoDB,
	}

	if storageCfg.SQLite.Path == "" {
		storageCfg.SQLite.Path = storage.DefaultSQLitePath
	}
	if storageCfg.MongoDB.Database == "" {
		storageCfg.MongoDB.Database = "gofile"
	}
	return storageCfg
}

func createStore(ctx context.Context, conn *storage.Conn) (Store, error) {
	switch conn.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(conn.SQLiteDB())
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, conn.PostgreSQLPool())
	case storage.TypeMongoDB:
		return NewMongoDBStore(conn.MongoDatabase())
	default:
		return nil, fmt.Errorf("unknown storage type: %s", conn.Type())
	}
}
