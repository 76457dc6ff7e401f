package remote

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dotkeep/internal/config"
	"dotkeep/internal/dot"
)

// S3 stores bundles as objects under a key prefix. It works against AWS
// and against S3-compatible servers such as MinIO via a custom endpoint.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   dot.Logger
}

// NewS3 builds the client from the remote configuration. Credentials may
// come from the config or from the usual AWS environment and files.
func NewS3(cfg config.RemoteConfig, logger dot.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 remote requires bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	ac, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(ac, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO-style endpoints resolve buckets by path, not subdomain.
			o.UsePathStyle = true
		}
	})

	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		logger:   logger,
	}, nil
}

func (s *S3) key(name string) string {
	return path.Join(s.prefix, name)
}

// Push uploads the bundle. The manager splits large bundles into
// multipart uploads on its own.
func (s *S3) Push(ctx context.Context, bundle io.Reader, name string) error {
	key := s.key(name)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bundle,
	})
	if err != nil {
		return fmt.Errorf("uploading bundle: %w", err)
	}
	s.logger.Info("bundle pushed", "bucket", s.bucket, "key", key)
	return nil
}

// Pull downloads the bundle with the lexicographically newest key under
// the prefix.
func (s *S3) Pull(ctx context.Context) (io.ReadCloser, string, error) {
	var newest string
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("listing bundles: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !IsBundleName(key) {
				continue
			}
			if key > newest {
				newest = key
			}
		}
	}
	if newest == "" {
		return nil, "", fmt.Errorf("no bundles found in s3://%s/%s", s.bucket, strings.TrimPrefix(s.prefix, "/"))
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(newest),
	})
	if err != nil {
		return nil, "", fmt.Errorf("downloading bundle: %w", err)
	}
	return out.Body, path.Base(newest), nil
}

var _ dot.RemoteBackend = (*S3)(nil)
