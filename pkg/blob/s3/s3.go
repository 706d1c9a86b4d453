// Package s3 implements the blob store on Amazon S3 or S3-compatible
// storage (MinIO, Localstack).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/atticfs/attic/pkg/blob"
	"github.com/atticfs/attic/pkg/tree"
)

// S3Store stores each blob as one object. The ContentID is the object key
// (with an optional prefix), so the bucket is directly inspectable and the
// inventory can be rebuilt from a plain listing.
//
// Uploads are bounded by the configured file size limit, so Put buffers the
// body and issues a single PutObject instead of a multipart upload.
//
// Thread safety: the S3 client is safe for concurrent use; the store holds
// no mutable state of its own.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the bucket name. Must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys.
	KeyPrefix string
}

// NewS3Store verifies bucket access and returns the store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func (s *S3Store) key(id tree.ContentID) string {
	return s.keyPrefix + string(id)
}

// Put buffers the reader and uploads it as one object.
func (s *S3Store) Put(ctx context.Context, id tree.ContentID, r io.Reader) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return 0, err
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put object: %w", err)
	}

	return uint64(buf.Len()), nil
}

// Open downloads the object and returns its body.
func (s *S3Store) Open(ctx context.Context, id tree.ContentID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("blob %s: %w", id, blob.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return result.Body, nil
}

// Size returns the object's content length from a HEAD request.
func (s *S3Store) Size(ctx context.Context, id tree.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		// HEAD reports missing keys as NotFound, not NoSuchKey.
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, fmt.Errorf("blob %s: %w", id, blob.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to head object: %w", err)
	}

	if result.ContentLength == nil {
		return 0, nil
	}
	return uint64(*result.ContentLength), nil
}

// Delete removes the object. S3 DELETE is idempotent already.
func (s *S3Store) Delete(ctx context.Context, id tree.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// List pages through the bucket under the key prefix.
func (s *S3Store) List(ctx context.Context) ([]tree.ContentID, error) {
	var ids []tree.ContentID

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := *obj.Key
			if len(key) < len(s.keyPrefix) {
				continue
			}
			ids = append(ids, tree.ContentID(key[len(s.keyPrefix):]))
		}
	}
	return ids, nil
}

// Stats pages through the bucket and sums object sizes.
func (s *S3Store) Stats(ctx context.Context) (*blob.Stats, error) {
	stats := &blob.Stats{}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			stats.Count++
			if obj.Size != nil {
				stats.TotalSize += uint64(*obj.Size)
			}
		}
	}
	return stats, nil
}

// Healthcheck verifies the bucket is still reachable.
func (s *S3Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %q unreachable: %w", s.bucket, err)
	}
	return nil
}
