package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

// S3Store keeps objects in an S3 compatible bucket such as AWS S3 or MinIO.
type S3Store struct {
	settings conf.S3StorageSettings
	client   *s3.Client
	presign  *s3.PresignClient
	log      logger.Logger
}

// NewS3Store loads AWS configuration and creates a bucket client. Static credentials are
// used when configured, otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, settings conf.S3StorageSettings, log logger.Logger) (*S3Store, error) {
	if log == nil {
		log = logger.Global().Module("blobstore")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(settings.Region)}
	if settings.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			settings.AccessKeyID, settings.SecretAccessKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, storeError(err, "load_aws_config").Category(errors.CategoryConfiguration).Build()
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
		}
		o.UsePathStyle = settings.UsePathStyle
	})

	return &S3Store{
		settings: settings,
		client:   client,
		presign:  s3.NewPresignClient(client),
		log:      log.Module("s3"),
	}, nil
}

// Name returns the name of this store
func (s *S3Store) Name() string {
	return "s3"
}

// Put uploads data with PutObject. With a presign expiry configured the returned URL is a
// presigned GET, otherwise it is the plain object URL.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	start := time.Now()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.settings.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", storeError(err, "put_object").
			Context("bucket", s.settings.Bucket).
			Context("key", key).
			Timing("put_object", time.Since(start)).
			Build()
	}

	s.log.Debug("stored object",
		logger.String("bucket", s.settings.Bucket),
		logger.String("key", key),
		logger.Int("size", len(data)),
		logger.Duration("elapsed", time.Since(start)))

	return s.objectURL(ctx, key)
}

func (s *S3Store) objectURL(ctx context.Context, key string) (string, error) {
	if s.settings.PresignExpiry > 0 {
		req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.settings.Bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(s.settings.PresignExpiry))
		if err != nil {
			return "", storeError(err, "presign_get").Context("key", key).Build()
		}
		return req.URL, nil
	}

	if s.settings.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.settings.Endpoint, "/"), s.settings.Bucket, key), nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.settings.Bucket, s.settings.Region, key), nil
}

// Delete removes the object stored under key.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.settings.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return storeError(err, "delete_object").Context("key", key).Build()
	}
	return nil
}

// Validate checks that a bucket and region are configured.
func (s *S3Store) Validate() error {
	switch {
	case s.settings.Bucket == "":
		return storeError(errors.NewStd("s3 bucket is required"), "validate").Category(errors.CategoryConfiguration).Build()
	case s.settings.Region == "":
		return storeError(errors.NewStd("s3 region is required"), "validate").Category(errors.CategoryConfiguration).Build()
	case s.settings.AccessKeyID != "" && s.settings.SecretAccessKey == "":
		return storeError(errors.NewStd("s3 secret access key is required with an access key id"), "validate").
			Category(errors.CategoryConfiguration).Build()
	}
	return nil
}
