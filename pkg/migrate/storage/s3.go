// Package storage uploads staged files to s3 compatible object storage
package storage

import (
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/retry"
)

// files above this go through the multipart uploader
const defaultMultipartThreshold = 100 * 1024 * 1024

// Client : the object storage operations a migration needs
type Client interface {
	Upload(ctx context.Context, localPath string, key string) error
	Delete(ctx context.Context, key string) error
}

// Key : {prefix}/{jobID}/{name}
func Key(prefix string, jobID string, name string) string {
	return path.Join(prefix, jobID, name)
}

// Pattern : {bucket}/{prefix}/{jobID}/*.parquet, what bulk loads read from
func Pattern(bucket string, prefix string, jobID string) string {
	return path.Join(bucket, prefix, jobID, "*.parquet")
}

// S3 : Client backed by aws-sdk-go
type S3 struct {
	api                s3iface.S3API
	uploader           *s3manager.Uploader
	fs                 afero.Fs
	bucket             string
	retry              retry.Policy
	log                zerolog.Logger
	multipartThreshold int64
}

// Option : optional S3 settings
type Option func(*S3)

// WithFs : filesystem staged files are read from
func WithFs(fs afero.Fs) Option {
	return func(s *S3) { s.fs = fs }
}

// WithRetry : retry policy for uploads
func WithRetry(p retry.Policy) Option {
	return func(s *S3) { s.retry = p }
}

// WithLogger : logger for upload events
func WithLogger(log zerolog.Logger) Option {
	return func(s *S3) { s.log = log }
}

// WithMultipartThreshold : size in bytes above which uploads go multipart
func WithMultipartThreshold(n int64) Option {
	return func(s *S3) { s.multipartThreshold = n }
}

// NewSession : aws session with static credentials, the endpoint override enables path style
// addressing for s3 compatible stores
func NewSession(cfg config.Storage) (*session.Session, error) {
	awsCfg := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return sess, nil
}

// NewS3 : client for the configured bucket
func NewS3(cfg config.Storage, opts ...Option) (*S3, error) {
	sess, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return NewS3WithAPI(s3.New(sess), cfg.Bucket, opts...), nil
}

// NewS3WithAPI : client over an existing s3 api
func NewS3WithAPI(api s3iface.S3API, bucket string, opts ...Option) *S3 {
	s := &S3{
		api:                api,
		uploader:           s3manager.NewUploaderWithClient(api),
		fs:                 afero.NewOsFs(),
		bucket:             bucket,
		retry:              retry.Policy{MaxRetries: config.DefaultMaxRetries},
		log:                zerolog.Nop(),
		multipartThreshold: defaultMultipartThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Upload : uploads a local file, retrying with backoff. Every attempt re-opens the file.
func (s *S3) Upload(ctx context.Context, localPath string, key string) error {
	return s.retry.Do(ctx, s.log, "upload "+key, func() error {
		return s.upload(ctx, localPath, key)
	})
}

func (s *S3) upload(ctx context.Context, localPath string, key string) error {
	f, err := s.fs.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	s.log.Debug().
		Str("bucket", s.bucket).
		Str("key", key).
		Int64("bytes", info.Size()).
		Msg("uploading")

	if info.Size() > s.multipartThreshold {
		_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		return err
	}
	_, err = s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return err
}

// Delete : removes one object
func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete s3://%s/%s : %w", s.bucket, key, err)
	}
	return nil
}
