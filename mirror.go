package pagekit

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Mirror copies compressed uploads to secondary storage. The upload
// directory stays the source of truth; mirror failures are logged only.
type Mirror interface {
	Put(ctx context.Context, filename, localPath, contentType string) error
	Delete(ctx context.Context, filename string) error
}

// S3Mirror mirrors uploads into an S3-compatible bucket.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
	log    *zap.Logger
}

// NewS3Mirror builds an S3 client from the S3_* settings. A custom endpoint
// (MinIO, R2, ...) switches the client to path-style addressing.
func NewS3Mirror(ctx context.Context, cfg Config, log *zap.Logger) (*S3Mirror, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Mirror{
		client: client,
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
		log:    log,
	}, nil
}

func (m *S3Mirror) key(filename string) string {
	return path.Join(m.prefix, filename)
}

// Put uploads the file at localPath under the mirror prefix.
func (m *S3Mirror) Put(ctx context.Context, filename, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(m.key(filename)),
		Body:          f,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", m.key(filename), err)
	}

	m.log.Debug("upload mirrored",
		zap.String("bucket", m.bucket),
		zap.String("key", m.key(filename)),
		zap.Int64("size", info.Size()))
	return nil
}

// Delete removes the mirrored object. Deleting a missing key is not an error in S3.
func (m *S3Mirror) Delete(ctx context.Context, filename string) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.key(filename)),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", m.key(filename), err)
	}
	return nil
}
