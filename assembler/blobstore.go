package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wptagent/agent/iox"
)

// BlobStore writes a result archive to an object-storage backend under a
// flat key, as opposed to the Hive-partitioned layout a dataset warehouse
// would use.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// S3Config configures the S3 blob-storage backend.
type S3Config struct {
	// Bucket is the destination bucket (required).
	Bucket string
	// Region is the AWS region; empty uses the default credential chain's
	// resolved region.
	Region string
	// Endpoint overrides the S3 endpoint for S3-compatible providers
	// (Cloudflare R2, MinIO). Empty uses the AWS default.
	Endpoint string
	// PathStyle forces path-style bucket addressing, required by most
	// S3-compatible providers.
	PathStyle bool
}

func (c S3Config) validate() error {
	if c.Bucket == "" {
		return errors.New("assembler: s3 bucket is required")
	}
	return nil
}

// S3BlobStore uploads result archives to a bucket via PutObject.
type S3BlobStore struct {
	bucket string
	client *s3.Client
}

// NewS3BlobStore builds an S3-backed BlobStore using the AWS SDK's default
// credential chain (env vars, shared config, IAM role).
func NewS3BlobStore(ctx context.Context, cfg S3Config) (*S3BlobStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("assembler: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &S3BlobStore{
		bucket: cfg.Bucket,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// Put uploads data to {bucket}/{key}.
func (s *S3BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("assembler: s3 put %s: %w", key, err)
	}
	return nil
}

// FilesystemBlobStore writes archives under a local directory, standing in
// for object storage in tests and single-host deployments.
type FilesystemBlobStore struct {
	root string
}

// NewFilesystemBlobStore returns a BlobStore rooted at dir.
func NewFilesystemBlobStore(dir string) *FilesystemBlobStore {
	return &FilesystemBlobStore{root: dir}
}

// Put writes data to {root}/{key}, creating parent directories as needed.
func (f *FilesystemBlobStore) Put(_ context.Context, key string, data []byte, _ string) error {
	dest := filepath.Join(f.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("assembler: mkdir for %s: %w", key, err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("assembler: create %s: %w", dest, err)
	}
	defer iox.DiscardClose(out)
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("assembler: write %s: %w", dest, err)
	}
	return nil
}

// BlobKey builds the "{path}/{test_id}.zip" key spec.md's upload priority
// names, trimming any accidental leading/trailing slashes from path.
func BlobKey(path, testID string) string {
	return strings.Trim(path, "/") + "/" + testID + ".zip"
}
