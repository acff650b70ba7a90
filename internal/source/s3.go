package source

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Scheme prefixes arguments that name S3 objects.
const S3Scheme = "s3://"

// ObjectStore is the subset of an S3-compatible client the resolver needs.
type ObjectStore interface {
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	// Get opens an object for streaming.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3Config configures the S3 client.
type S3Config struct {
	Endpoint  string
	Region    string
	Secure    bool
	AccessKey string
	SecretKey string
}

// MinioStore implements ObjectStore with minio-go.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore connects to the configured endpoint. It does not perform any
// request until the first List or Get.
func NewMinioStore(cfg S3Config) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is not configured")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

// List implements ObjectStore.
func (s *MinioStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key != "" && !strings.HasSuffix(obj.Key, "/") {
			keys = append(keys, obj.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get implements ObjectStore.
func (s *MinioStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if _, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, fmt.Errorf("s3://%s/%s: no such object", bucket, key)
		}
		return nil, err
	}
	return s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(arg string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(arg, S3Scheme)
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %s", arg)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 url without bucket: %s", arg)
	}
	return bucket, key, nil
}

// ObjectHandle is a source backed by one S3 object.
type ObjectHandle struct {
	Store  ObjectStore
	Bucket string
	Key    string
	Opts   OpenOptions
	// Ctx bounds the object download.
	Ctx context.Context
}

// Name implements Handle.
func (h *ObjectHandle) Name() string {
	return S3Scheme + h.Bucket + "/" + h.Key
}

// Open implements Handle.
func (h *ObjectHandle) Open() (Reader, error) {
	ctx := h.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	rc, err := h.Store.Get(ctx, h.Bucket, h.Key)
	if err != nil {
		return nil, err
	}
	return wrap(rc, h.Key, h.Opts)
}
