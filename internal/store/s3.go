package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
)

// uploadPartSize should be greater than or equal 5MB.
// See github.com/aws/aws-sdk-go-v2/feature/s3/manager.
const uploadPartSize = 10 * 1024 * 1024

// S3Store keeps artifacts in an S3 bucket. A custom endpoint switches it to
// S3-compatible storage such as MinIO with static credentials.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	log     *zap.Logger
}

func NewS3Store(config *config.S3Config, log *zap.Logger) (*S3Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("s3 store requires a bucket")
	}

	client, err := newS3Client(config)
	if err != nil {
		return nil, err
	}

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  config.Bucket,
		log:     log,
	}, nil
}

func newS3Client(config *config.S3Config) (*s3.Client, error) {
	if config.Endpoint != "" {
		if _, err := url.Parse(config.Endpoint); err != nil {
			return nil, fmt.Errorf("invalid s3 endpoint: %w", err)
		}
		return s3.New(s3.Options{
			Region:       config.Region,
			Credentials:  credentials.NewStaticCredentialsProvider(config.AccessKey, config.SecretKey, ""),
			BaseEndpoint: aws.String(config.Endpoint),
			UsePathStyle: config.UsePathStyle,
		}), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

func (s *S3Store) Upload(ctx context.Context, localPath, storedPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer file.Close()

	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
	})

	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &storedPath,
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact: %w", err)
	}

	err = s3.NewObjectExistsWaiter(s.client).Wait(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &storedPath,
	}, time.Minute)
	if err != nil {
		return fmt.Errorf("failed to confirm artifact upload: %w", err)
	}

	s.log.Debug("stored artifact",
		zap.String("bucket", s.bucket),
		zap.String("key", storedPath))
	return nil
}

func (s *S3Store) DownloadURL(ctx context.Context, storedPath, downloadName string, expiresIn time.Duration) (string, error) {
	disposition := fmt.Sprintf("attachment; filename=%q", downloadName)

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     &s.bucket,
		Key:                        &storedPath,
		ResponseContentDisposition: &disposition,
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}

	return req.URL, nil
}

func (s *S3Store) Exists(ctx context.Context, storedPath string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &storedPath,
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to probe artifact: %w", err)
	}
	return true, nil
}

func (s *S3Store) Copy(ctx context.Context, srcPath, dstPath string) error {
	source := url.PathEscape(s.bucket + "/" + srcPath)

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &s.bucket,
		Key:        &dstPath,
		CopySource: &source,
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return ErrArtifactNotFound
		}
		return fmt.Errorf("failed to copy artifact: %w", err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, storedPath string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &storedPath,
	})
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}
