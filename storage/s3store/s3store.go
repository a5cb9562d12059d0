// Package s3store keeps credential blobs in an S3 compatible bucket using minio-go.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/jrsteele09/wa-session-gateway/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

var _ storage.Store = (*Store)(nil)

// Options configures the bucket connection
type Options struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type Store struct {
	client *minio.Client
	bucket string
}

// New connects to the endpoint and creates the bucket when it does not exist yet
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, fmt.Errorf("[s3store.New] endpoint is required")
	}
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("[s3store.New] bucket is required")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("[s3store.New] client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, storage.Unavailable(err, "bucketExists", opts.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, storage.Unavailable(err, "makeBucket", opts.Bucket)
		}
		log.Info().Str("bucket", opts.Bucket).Msg("created credential bucket")
	}

	return &Store{client: client, bucket: opts.Bucket}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return storage.Unavailable(err, "put", key)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(err, "get", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(err, "get", key)
	}
	return data, nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, storage.Unavailable(info.Err, "list", prefix)
		}
		keys = append(keys, info.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && isNotFound(err) {
		return nil
	}
	return storage.Unavailable(err, "delete", key)
}

func (s *Store) DeleteAll(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	go func() {
		defer close(objects)
		for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if info.Err != nil {
				listErr <- info.Err
				return
			}
			select {
			case objects <- info:
			case <-ctx.Done():
				return
			}
		}
	}()

	var firstErr error
	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil && !isNotFound(rerr.Err) && firstErr == nil {
			firstErr = storage.Unavailable(rerr.Err, "deleteAll", rerr.ObjectName)
		}
	}
	if firstErr != nil {
		return firstErr
	}

	select {
	case err := <-listErr:
		return storage.Unavailable(err, "deleteAll", prefix)
	default:
		return nil
	}
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == minio.NoSuchKey || code == "NotFound"
}

func classify(err error, op, key string) error {
	if isNotFound(err) {
		return errors.Wrapf(storage.ErrNotFound, "[%s %s]", op, key)
	}
	return storage.Unavailable(err, op, key)
}
