package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"gofile/internal/core"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3 connection configuration. Endpoint and UsePathStyle
// make the store work against MinIO and other S3-compatible services.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
}

// S3Store stores file records and content as objects in an S3 bucket.
// Each file becomes two objects under the prefix: meta/<id>.json and
// content/<id>.
type S3Store struct {
	s3Client s3API
	bucket   string
	prefix   string
}

// NewS3Store builds an S3 client from the configuration.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		s3Client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

// newS3StoreWithClient injects a concrete s3 API, used by tests.
func newS3StoreWithClient(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{s3Client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) resolveKey(location string) string {
	if s.prefix == "" {
		return location
	}
	return s.prefix + "/" + location
}

func (s *S3Store) metaKey(id string) string {
	return s.resolveKey("meta/" + id + ".json")
}

func (s *S3Store) contentKey(id string) string {
	return s.resolveKey("content/" + id)
}

// Create stores a new file record with its content.
func (s *S3Store) Create(ctx context.Context, file *core.FileObject, content []byte) error {
	payload, err := serializeFile(file)
	if err != nil {
		return err
	}

	_, err = s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.metaKey(file.ID)),
	})
	if err == nil {
		return ErrExists
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to check if file exists: %w", err)
	}

	// Content goes first so a visible meta object implies its content exists.
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.contentKey(file.ID)),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file content: %w", err)
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.metaKey(file.ID)),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file metadata: %w", err)
	}
	return nil
}

// Get retrieves one file record by id.
func (s *S3Store) Get(ctx context.Context, id string) (*core.FileObject, error) {
	file, err := s.getMeta(ctx, id)
	if err != nil {
		return nil, err
	}
	if isExpired(file, time.Now().Unix()) {
		_ = s.purge(ctx, id)
		return nil, ErrNotFound
	}
	return file, nil
}

// GetContent returns the raw content of a stored file.
func (s *S3Store) GetContent(ctx context.Context, id string) ([]byte, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.contentKey(id)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file content: %w", err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	return content, nil
}

// List returns one page of file records ordered by created_at.
func (s *S3Store) List(ctx context.Context, filter ListFilter) ([]*core.FileObject, bool, error) {
	limit := normalizeLimit(filter.Limit)
	now := time.Now().Unix()

	keys, err := s.listMetaKeys(ctx)
	if err != nil {
		return nil, false, err
	}

	all := make([]*core.FileObject, 0, len(keys))
	for _, key := range keys {
		file, err := s.readMeta(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Deleted between list and read.
				continue
			}
			return nil, false, err
		}
		if isExpired(file, now) {
			_ = s.purge(ctx, file.ID)
			continue
		}
		if filter.Purpose != "" && file.Purpose != filter.Purpose {
			continue
		}
		all = append(all, file)
	}

	sortFiles(all, filter.Order == "asc")
	return pageFiles(all, filter.After, limit)
}

// Update replaces the metadata object of an existing file. Content is immutable.
func (s *S3Store) Update(ctx context.Context, file *core.FileObject) error {
	payload, err := serializeFile(file)
	if err != nil {
		return err
	}

	if _, err := s.Get(ctx, file.ID); err != nil {
		return err
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.metaKey(file.ID)),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file metadata: %w", err)
	}
	return nil
}

// Delete removes a file record and its content.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.purge(ctx, id)
}

// Close is a no-op; the SDK client holds no connections to release.
func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) getMeta(ctx context.Context, id string) (*core.FileObject, error) {
	return s.readMeta(ctx, s.metaKey(id))
}

func (s *S3Store) readMeta(ctx context.Context, key string) (*core.FileObject, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file metadata: %w", err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file metadata: %w", err)
	}

	file, err := deserializeFile(payload)
	if err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	return file, nil
}

func (s *S3Store) listMetaKeys(ctx context.Context) ([]string, error) {
	prefix := s.resolveKey("meta/")

	var keys []string
	var continuationToken *string
	for {
		out, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list file metadata: %w", err)
		}

		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}
	return keys, nil
}

func (s *S3Store) purge(ctx context.Context, id string) error {
	var errs []error
	for _, key := range []string{s.metaKey(id), s.contentKey(id)} {
		_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete object %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
